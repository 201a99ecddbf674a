package track

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEngineStartStopIdempotent(t *testing.T) {
	e := NewEngine(nil)
	e.Start()
	e.Start()
	e.Stop()
	e.Stop()
}

func TestEngineFirstSightCreatesTracker(t *testing.T) {
	e := NewEngine(nil)
	e.SetOutputRateHz(50)
	e.Start()
	defer e.Stop()

	e.Ingest(gpsMeasurement(7, time.Now(), Position{X: 1, Y: 2, Z: 3}))

	require.Eventually(t, func() bool {
		return len(e.GetAllEntityStates()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEngineStaleEntityReapedOnNextTick(t *testing.T) {
	e := NewEngine(nil)
	e.SetOutputRateHz(50)
	e.SetStaleEntityTimeout(30 * time.Millisecond)
	e.Start()
	defer e.Stop()

	e.Ingest(gpsMeasurement(9, time.Now(), Position{}))
	require.Eventually(t, func() bool {
		return len(e.GetAllEntityStates()) == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(e.GetAllEntityStates()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestEngineNoCallbackAfterStop(t *testing.T) {
	e := NewEngine(nil)
	e.SetOutputRateHz(200)

	var mu sync.Mutex
	callbacks := 0
	e.SetOutputCallback(func(FusedEntityState) {
		mu.Lock()
		callbacks++
		mu.Unlock()
	})

	e.Start()
	e.Ingest(gpsMeasurement(1, time.Now(), Position{}))
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	mu.Lock()
	countAtStop := callbacks
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, countAtStop, callbacks, "no callback should fire after Stop returns")
}

// S1 — single entity, single GPS sensor, position-only, 1 Hz for 10s.
func TestScenarioS1SingleEntitySingleSensor(t *testing.T) {
	e := NewEngine(nil)
	e.SetOutputRateHz(2)
	e.SetStaleEntityTimeout(10 * time.Second)

	var mu sync.Mutex
	var latest FusedEntityState
	seen := false
	e.SetOutputCallback(func(s FusedEntityState) {
		mu.Lock()
		latest = s
		seen = true
		mu.Unlock()
	})

	e.Start()
	defer e.Stop()

	start := time.Now()
	for i := 0; i < 10; i++ {
		ts := start.Add(time.Duration(i) * time.Second)
		x := 10.0 * float64(i)
		e.Ingest(Measurement{
			EntityID:           101,
			SensorKind:         SensorGPS,
			Timestamp:          ts,
			Position:           Position{X: x},
			HasVelocity:        false,
			PositionCovariance: DiagCovariance3(1, 1, 1),
			Confidence:         0.9,
		})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen && latest.MeasurementCount >= 9
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, latest.Position.X, 85.0)
	require.LessOrEqual(t, latest.Position.X, 115.0)
}

// S4 — staleness reap, time-scaled: entity 401 emits once and goes silent
// while 402 keeps emitting every 20ms; with a 60ms stale timeout, only 402
// remains after 300ms.
func TestScenarioS4StalenessReap(t *testing.T) {
	e := NewEngine(nil)
	e.SetOutputRateHz(20)
	e.SetStaleEntityTimeout(60 * time.Millisecond)
	e.Start()
	defer e.Stop()

	now := time.Now()
	e.Ingest(gpsMeasurement(401, now, Position{}))
	e.Ingest(gpsMeasurement(402, now, Position{}))

	require.Eventually(t, func() bool {
		return len(e.GetAllEntityStates()) == 2
	}, time.Second, 5*time.Millisecond)

	// keep 402 alive, let 401 go stale.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case <-ticker.C:
			e.Ingest(gpsMeasurement(402, time.Now(), Position{}))
		case <-deadline:
			goto check
		}
	}

check:
	states := e.GetAllEntityStates()
	require.Len(t, states, 1)
	require.Equal(t, uint64(402), states[0].EntityID)
}

// S6 — first measurement uses no prediction: snapshot position equals the
// measurement position exactly.
func TestScenarioS6FirstMeasurementNoPrediction(t *testing.T) {
	e := NewEngine(nil)
	e.SetOutputRateHz(50)
	e.Start()
	defer e.Stop()

	e.Ingest(gpsMeasurement(601, time.Now(), Position{X: 42, Y: -7, Z: 3}))

	require.Eventually(t, func() bool {
		states := e.GetAllEntityStates()
		return len(states) == 1
	}, time.Second, 5*time.Millisecond)

	states := e.GetAllEntityStates()
	require.InDelta(t, 42.0, states[0].Position.X, 1e-9)
	require.InDelta(t, -7.0, states[0].Position.Y, 1e-9)
	require.InDelta(t, 3.0, states[0].Position.Z, 1e-9)
}
