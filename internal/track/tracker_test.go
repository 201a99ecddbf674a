package track

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func gpsMeasurement(entityID uint64, ts time.Time, pos Position) Measurement {
	return Measurement{
		EntityID:           entityID,
		SensorKind:         SensorGPS,
		Timestamp:          ts,
		Position:           pos,
		HasVelocity:        false,
		PositionCovariance: DiagCovariance3(1, 1, 1),
		Confidence:         0.9,
	}
}

func TestTrackerFirstMeasurementSkipsPrediction(t *testing.T) {
	now := time.Now()
	tr := NewTracker(1, EntityVehicle)

	m := gpsMeasurement(1, now, Position{X: 5, Y: 6, Z: 7})
	require.NoError(t, tr.ProcessMeasurement(m))

	snap := tr.Snapshot()
	require.InDelta(t, 5.0, snap.Position.X, 1e-9)
	require.InDelta(t, 6.0, snap.Position.Y, 1e-9)
	require.InDelta(t, 7.0, snap.Position.Z, 1e-9)
	require.Equal(t, 1, snap.MeasurementCount)
}

func TestTrackerTotalMeasurementsMatchesCallCount(t *testing.T) {
	now := time.Now()
	tr := NewTracker(1, EntityVehicle)

	for i := 0; i < 5; i++ {
		m := gpsMeasurement(1, now.Add(time.Duration(i)*time.Second), Position{X: float64(i)})
		require.NoError(t, tr.ProcessMeasurement(m))
	}

	require.Equal(t, 5, tr.Snapshot().MeasurementCount)
}

func TestTrackerBaseConfidenceStaysInRange(t *testing.T) {
	now := time.Now()
	tr := NewTracker(1, EntityVehicle)

	for i := 0; i < 500; i++ {
		m := gpsMeasurement(1, now.Add(time.Duration(i)*time.Second), Position{X: float64(i)})
		m.Confidence = 1.0
		require.NoError(t, tr.ProcessMeasurement(m))
		conf := tr.Snapshot().Confidence
		require.GreaterOrEqual(t, conf, 0.0)
		require.LessOrEqual(t, conf, 0.99)
	}
}

func TestTrackerContributingRingBoundedAtTen(t *testing.T) {
	now := time.Now()
	tr := NewTracker(1, EntityVehicle)

	for i := 0; i < 25; i++ {
		m := gpsMeasurement(1, now.Add(time.Duration(i)*time.Second), Position{})
		require.NoError(t, tr.ProcessMeasurement(m))
	}

	require.LessOrEqual(t, len(tr.Snapshot().ContributingSensors), 10)
}

func TestTrackerOutOfOrderTimestampFloorsDtAtZero(t *testing.T) {
	now := time.Now()
	tr := NewTracker(1, EntityVehicle)

	require.NoError(t, tr.ProcessMeasurement(gpsMeasurement(1, now, Position{X: 0})))
	// A measurement with an earlier timestamp than last_update_time must not
	// panic or produce a negative dt prediction.
	require.NoError(t, tr.ProcessMeasurement(gpsMeasurement(1, now.Add(-time.Second), Position{X: 1})))
}

func TestTrackerTimestampEqualToLastUpdateIsPureUpdate(t *testing.T) {
	now := time.Now()
	tr := NewTracker(1, EntityVehicle)

	require.NoError(t, tr.ProcessMeasurement(gpsMeasurement(1, now, Position{X: 0, Y: 0, Z: 0})))
	require.NoError(t, tr.ProcessMeasurement(gpsMeasurement(1, now, Position{X: 1, Y: 0, Z: 0})))

	require.Equal(t, 2, tr.Snapshot().MeasurementCount)
}

func TestTrackerIsStaleStrictGreaterThan(t *testing.T) {
	now := time.Now()
	tr := NewTracker(1, EntityVehicle)
	require.NoError(t, tr.ProcessMeasurement(gpsMeasurement(1, now, Position{})))

	require.False(t, tr.IsStale(now.Add(3*time.Second), 3*time.Second))
	require.True(t, tr.IsStale(now.Add(3*time.Second+time.Nanosecond), 3*time.Second))
}

func TestTrackerContributingRingKeepsMostRecentTenInOrder(t *testing.T) {
	now := time.Now()
	tr := NewTracker(1, EntityVehicle)

	kinds := []SensorKind{SensorGPS, SensorRadar, SensorVision, SensorLidar, SensorRF}
	for i := 0; i < 13; i++ {
		m := gpsMeasurement(1, now.Add(time.Duration(i)*time.Second), Position{})
		m.SensorKind = kinds[i%len(kinds)]
		require.NoError(t, tr.ProcessMeasurement(m))
	}

	var want []SensorKind
	for i := 3; i < 13; i++ {
		want = append(want, kinds[i%len(kinds)])
	}

	got := tr.Snapshot().ContributingSensors
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("contributing sensor ring mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackerCovarianceDiagonalNonIncreasingOnNoiselessConstantVelocity(t *testing.T) {
	now := time.Now()
	tr := NewTracker(1, EntityVehicle)

	pos := Position{X: 0, Y: 0, Z: 0}
	vel := Velocity{VX: 1, VY: 0, VZ: 0}

	var prevDiag float64 = -1
	for i := 0; i < 20; i++ {
		ts := now.Add(time.Duration(i) * 100 * time.Millisecond)
		m := Measurement{
			EntityID:           1,
			SensorKind:         SensorRadar,
			Timestamp:          ts,
			Position:           Position{X: pos.X + vel.VX*float64(i)*0.1, Y: pos.Y, Z: pos.Z},
			Velocity:           vel,
			HasVelocity:        true,
			PositionCovariance: DiagCovariance3(0.01, 0.01, 0.01),
			VelocityCovariance: DiagCovariance3(0.01, 0.01, 0.01),
			Confidence:         0.95,
		}
		require.NoError(t, tr.ProcessMeasurement(m))

		diag := tr.Snapshot().Covariance.At(0, 0)
		if i > 1 {
			require.LessOrEqual(t, diag, prevDiag+1e-6)
		}
		prevDiag = diag
	}
}
