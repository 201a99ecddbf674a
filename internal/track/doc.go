// Package track implements the fusion core: a constant-velocity Kalman
// estimator per tracked entity (Estimator), the bookkeeping tracker that
// owns one estimator (Tracker), and the demultiplexing Engine that routes
// an asynchronous measurement stream to the right tracker, evicts stale
// tracks and publishes fused state on a periodic schedule.
//
// No data association is performed here: every Measurement already
// carries the entity identity it belongs to. No maneuver-model switching:
// the estimator is constant-velocity only. State is ephemeral — nothing
// in this package persists across process restarts.
package track
