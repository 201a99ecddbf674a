package orchestrator

import (
	"sync"

	"github.com/banshee-data/fusion.report/internal/track"
)

// Orchestrator holds an ordered list of sensor producers, an ordered list
// of output consumers, and one fusion engine. Collections are append-only
// during configuration; Start freezes the wiring.
type Orchestrator struct {
	engine  *track.Engine
	sensors []SensorProducer
	outputs []OutputConsumer

	logger track.Logger

	mu      sync.Mutex
	running bool
}

// New returns an orchestrator around engine. logger may be nil.
func New(engine *track.Engine, logger track.Logger) *Orchestrator {
	if logger == nil {
		logger = track.NopLogger{}
	}
	return &Orchestrator{engine: engine, logger: logger}
}

// AddSensor registers a sensor producer. Must be called before Start.
func (o *Orchestrator) AddSensor(s SensorProducer) {
	o.sensors = append(o.sensors, s)
}

// AddOutput registers an output consumer. Must be called before Start.
func (o *Orchestrator) AddOutput(c OutputConsumer) {
	o.outputs = append(o.outputs, c)
}

// Start brings up the system in strict order: the engine's output
// callback is installed first, then the engine, then every output
// consumer in registration order, then every sensor producer (callback
// set immediately before that producer's Start) in registration order.
// If any consumer or producer returns an error, Start aborts and
// propagates it without unwinding the partial start. Idempotent.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	o.logger.Info("starting fusion system")

	o.engine.SetOutputCallback(o.onFusedState)
	o.engine.Start()

	for _, out := range o.outputs {
		if err := out.Start(); err != nil {
			return err
		}
	}

	for _, s := range o.sensors {
		s.SetCallback(o.engine.Ingest)
		if err := s.Start(); err != nil {
			return err
		}
	}

	o.running = true
	o.logger.Info("fusion system started")
	return nil
}

// Stop brings the system down in the data-flow order: every sensor
// producer first (so no further measurements arrive), then the fusion
// engine (drains, no more fused states emitted), then every output
// consumer. Idempotent.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return nil
	}

	o.logger.Info("stopping fusion system")

	var firstErr error
	for _, s := range o.sensors {
		if err := s.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	o.engine.Stop()

	for _, out := range o.outputs {
		if err := out.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	o.running = false
	o.logger.Info("fusion system stopped")
	return firstErr
}

// onFusedState forwards a fused state to every output consumer's
// PublishState in registration order. It runs on the engine's output
// worker and must not block for long.
func (o *Orchestrator) onFusedState(s track.FusedEntityState) {
	for _, out := range o.outputs {
		out.PublishState(s)
	}
}
