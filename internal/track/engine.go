package track

import (
	"sync"
	"time"
)

const (
	defaultStaleTimeout = 10 * time.Second
	defaultOutputRateHz = 10.0
	outputPollInterval  = 10 * time.Millisecond
)

// FusedStateCallback is invoked once per live entity per output tick. It
// runs on the output worker's goroutine and must not block for long or
// re-enter the engine.
type FusedStateCallback func(FusedEntityState)

// Engine demultiplexes an asynchronous measurement stream by entity
// identity, maintains one Tracker per entity, evicts stale tracks and
// periodically publishes fused states to a registered callback.
//
// Start and Stop are idempotent and safe to call from any goroutine; all
// other exported methods expect to be called either before Start or
// concurrently with a running engine.
type Engine struct {
	queue *measurementQueue

	trackersMu sync.Mutex
	trackers   map[uint64]*Tracker

	callbackMu sync.Mutex
	callback   FusedStateCallback

	staleTimeoutMu sync.Mutex
	staleTimeout   time.Duration

	outputRateMu sync.Mutex
	outputRateHz float64

	runMu   sync.Mutex
	running bool
	wg      sync.WaitGroup

	logger Logger
}

// NewEngine returns a stopped engine with the default stale timeout (10s)
// and output rate (10Hz).
func NewEngine(logger Logger) *Engine {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Engine{
		queue:        newMeasurementQueue(),
		trackers:     make(map[uint64]*Tracker),
		staleTimeout: defaultStaleTimeout,
		outputRateHz: defaultOutputRateHz,
		logger:       logger,
	}
}

// SetOutputCallback replaces the callback invoked for each fused state.
// Expected to be set once before Start; safe to call at any time because
// it is read fresh on each output tick.
func (e *Engine) SetOutputCallback(cb FusedStateCallback) {
	e.callbackMu.Lock()
	e.callback = cb
	e.callbackMu.Unlock()
}

// SetStaleEntityTimeout sets the tracker eviction threshold.
func (e *Engine) SetStaleEntityTimeout(d time.Duration) {
	e.staleTimeoutMu.Lock()
	e.staleTimeout = d
	e.staleTimeoutMu.Unlock()
}

// SetOutputRateHz sets the periodic output cadence. rate must be strictly
// positive; callers must set this before Start, as the output worker
// reads it once when computing its period.
func (e *Engine) SetOutputRateHz(rate float64) {
	e.outputRateMu.Lock()
	e.outputRateHz = rate
	e.outputRateMu.Unlock()
}

// Ingest enqueues a measurement. Non-blocking; safe from any goroutine.
func (e *Engine) Ingest(m Measurement) {
	e.queue.Push(m)
}

// GetAllEntityStates returns a snapshot of every live tracker's fused
// state, taken under a single acquisition of the trackers lock.
func (e *Engine) GetAllEntityStates() []FusedEntityState {
	e.trackersMu.Lock()
	defer e.trackersMu.Unlock()

	states := make([]FusedEntityState, 0, len(e.trackers))
	for _, t := range e.trackers {
		states = append(states, t.Snapshot())
	}
	return states
}

// Start spawns the fusion worker and output worker. Idempotent.
func (e *Engine) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return
	}
	e.running = true

	e.wg.Add(2)
	go e.fusionLoop()
	go e.outputLoop()

	e.logger.Info("fusion engine started")
}

// Stop shuts down the ingest queue, waits for both workers to exit, and
// returns. After Stop returns, no further output callbacks will fire.
// Idempotent.
func (e *Engine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.running = false
	e.runMu.Unlock()

	e.queue.Shutdown()
	e.wg.Wait()

	e.logger.Info("fusion engine stopped")
}

func (e *Engine) isRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

// fusionLoop is the single fusion worker: it drains the ingest queue in
// order and is the only goroutine that creates trackers or feeds them
// measurements. The output worker only removes stale trackers.
func (e *Engine) fusionLoop() {
	defer e.wg.Done()

	for {
		m, ok := e.queue.Pop()
		if !ok {
			return
		}

		e.trackersMu.Lock()
		t, exists := e.trackers[m.EntityID]
		if !exists {
			// The measurement record carries no EntityKind, so every
			// newly created tracker is tagged VEHICLE unconditionally.
			t = NewTracker(m.EntityID, EntityVehicle)
			e.trackers[m.EntityID] = t
			e.logger.Info("created tracker for entity %d", m.EntityID)
		}
		if err := t.ProcessMeasurement(m); err != nil {
			e.logger.Warn("entity %d: %v", m.EntityID, err)
		}
		e.trackersMu.Unlock()
	}
}

// outputLoop is the periodic output worker. It polls at a fixed
// granularity and fires at most once per configured period. After each
// tick nextOutput advances by whole periods until it lies in the future,
// so ticks missed while a slow callback ran are skipped, never replayed
// back to back.
func (e *Engine) outputLoop() {
	defer e.wg.Done()

	e.outputRateMu.Lock()
	rate := e.outputRateHz
	e.outputRateMu.Unlock()
	period := time.Duration(float64(time.Second) / rate)

	nextOutput := time.Now()

	for e.isRunning() {
		now := time.Now()
		if !now.Before(nextOutput) {
			e.publishTick(now)
			for !nextOutput.After(time.Now()) {
				nextOutput = nextOutput.Add(period)
			}
		}
		time.Sleep(outputPollInterval)
	}
}

func (e *Engine) publishTick(now time.Time) {
	e.reapStale(now)

	states := e.GetAllEntityStates()

	e.callbackMu.Lock()
	cb := e.callback
	e.callbackMu.Unlock()

	if cb == nil {
		return
	}
	for _, s := range states {
		cb(s)
	}
}

func (e *Engine) reapStale(now time.Time) {
	e.staleTimeoutMu.Lock()
	timeout := e.staleTimeout
	e.staleTimeoutMu.Unlock()

	e.trackersMu.Lock()
	defer e.trackersMu.Unlock()

	for id, t := range e.trackers {
		if t.IsStale(now, timeout) {
			delete(e.trackers, id)
			e.logger.Info("removed stale entity %d", id)
		}
	}
}
