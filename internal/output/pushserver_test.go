package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/track"
)

func sampleState() track.FusedEntityState {
	return track.FusedEntityState{
		EntityID:         101,
		EntityKind:       track.EntityVehicle,
		Position:         track.Position{X: 1.23456, Y: -2, Z: 0},
		Velocity:         track.Velocity{VX: 10, VY: 0, VZ: 0},
		Confidence:       0.876543,
		MeasurementCount: 7,
	}
}

func TestMarshalStateFourDecimalPrecision(t *testing.T) {
	payload, err := MarshalState(sampleState())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	require.Equal(t, "vehicle", decoded["type"])
	require.Equal(t, float64(101), decoded["entityId"])
	require.Equal(t, float64(7), decoded["measurements"])
	require.Contains(t, string(payload), "1.2346")
	require.Contains(t, string(payload), "0.8765")
	require.NotContains(t, string(payload), "covariance")
}

func TestMarshalStatesRoundTrip(t *testing.T) {
	ss := []track.FusedEntityState{sampleState(), sampleState()}
	payload, err := MarshalStates(ss)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Len(t, decoded, 2)
}

func TestPushServerBroadcastsToSubscribers(t *testing.T) {
	srv := NewPushServer("127.0.0.1:18099", nil)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	time.Sleep(20 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18099/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	srv.PublishState(sampleState())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg, &decoded))
	require.Equal(t, float64(101), decoded["entityId"])
}

func TestPushServerStartFailsOnBindError(t *testing.T) {
	blocker := NewPushServer("127.0.0.1:18098", nil)
	require.NoError(t, blocker.Start())
	defer blocker.Stop()

	time.Sleep(10 * time.Millisecond)

	dup := NewPushServer("127.0.0.1:18098", nil)
	require.Error(t, dup.Start())
}
