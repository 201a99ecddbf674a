// Package orchestrator wires sensor producers, the fusion engine, and
// output consumers together with deterministic start/stop ordering. It is
// the Go counterpart of SensorFusionSystem: it owns no filtering logic of
// its own, only the capability-based dispatch and lifecycle sequencing.
package orchestrator

import "github.com/banshee-data/fusion.report/internal/track"

// SensorProducer is the capability set a sensor implementation exposes.
// The orchestrator sets the callback before calling Start; an
// implementation must never invoke the callback after Stop returns.
type SensorProducer interface {
	Start() error
	Stop() error
	SetCallback(cb func(track.Measurement))
	Kind() track.SensorKind
}

// OutputConsumer is the capability set an output implementation exposes.
// PublishState is called once per entity per output tick in registration
// order; PublishStates exists for consumers that can exploit batching but
// is never exercised by the orchestrator itself.
type OutputConsumer interface {
	Start() error
	Stop() error
	PublishState(s track.FusedEntityState)
	PublishStates(ss []track.FusedEntityState)
}
