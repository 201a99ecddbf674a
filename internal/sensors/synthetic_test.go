package sensors

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/track"
)

func TestSyntheticEmitsMeasurementsForRegisteredEntities(t *testing.T) {
	s := NewSynthetic(track.SensorGPS, 50, 0.01)
	s.AddEntity(EntityTrajectory{EntityID: 1, InitialPosition: track.Position{}, Velocity: track.Velocity{VX: 1}})

	var mu sync.Mutex
	var got []track.Measurement
	s.SetCallback(func(m track.Measurement) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})

	require.NoError(t, s.Start())
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	for _, m := range got {
		require.Equal(t, uint64(1), m.EntityID)
		require.False(t, m.HasVelocity, "GPS synthetic measurements are position-only")
	}
}

func TestSyntheticRadarReportsVelocity(t *testing.T) {
	s := NewSynthetic(track.SensorRadar, 50, 0.01)
	s.AddEntity(EntityTrajectory{EntityID: 2, Velocity: track.Velocity{VX: 3}})

	var mu sync.Mutex
	var got []track.Measurement
	s.SetCallback(func(m track.Measurement) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})

	require.NoError(t, s.Start())
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, s.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	require.True(t, got[0].HasVelocity)
}

func TestSyntheticDropoutProbabilityOneEmitsNothing(t *testing.T) {
	s := NewSynthetic(track.SensorGPS, 50, 0.01)
	s.AddEntity(EntityTrajectory{EntityID: 3})
	s.SetDropoutProbability(1.0)

	var mu sync.Mutex
	count := 0
	s.SetCallback(func(track.Measurement) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, s.Start())
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, s.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, count)
}

func TestSyntheticStopStopsEmission(t *testing.T) {
	s := NewSynthetic(track.SensorGPS, 100, 0.01)
	s.AddEntity(EntityTrajectory{EntityID: 4})

	var mu sync.Mutex
	count := 0
	s.SetCallback(func(track.Measurement) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, s.Start())
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	mu.Lock()
	countAtStop := count
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, countAtStop, count)
}
