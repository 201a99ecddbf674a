package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/track"
)

func TestCLIVisualizerRendersPublishedStates(t *testing.T) {
	var buf bytes.Buffer
	v := NewCLIVisualizer()
	v.SetWriter(&buf)

	require.NoError(t, v.Start())
	v.PublishState(track.FusedEntityState{
		EntityID:         5,
		EntityKind:       track.EntityAircraft,
		Position:         track.Position{X: 1, Y: 2, Z: 3},
		Velocity:         track.Velocity{VX: 4, VY: 5, VZ: 6},
		Confidence:       0.5,
		MeasurementCount: 3,
	})

	out := buf.String()
	require.Contains(t, out, "aircraft")
	require.Contains(t, out, "Active Entities: 1")
	require.NoError(t, v.Stop())
}

func TestCLIVisualizerPublishStatesBatchRendersAll(t *testing.T) {
	var buf bytes.Buffer
	v := NewCLIVisualizer()
	v.SetWriter(&buf)
	require.NoError(t, v.Start())

	v.PublishStates([]track.FusedEntityState{
		{EntityID: 1, EntityKind: track.EntityVehicle},
		{EntityID: 2, EntityKind: track.EntityPersonnel},
	})

	out := buf.String()
	require.Contains(t, out, "Active Entities: 2")
}
