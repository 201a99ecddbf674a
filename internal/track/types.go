package track

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// SensorKind identifies the physical sensor modality that produced a
// Measurement. Radar and lidar are the only kinds that report velocity
// directly; this is a property of the kind, not of any one measurement.
type SensorKind string

const (
	SensorGPS     SensorKind = "gps"
	SensorVision  SensorKind = "vision"
	SensorRF      SensorKind = "rf"
	SensorRadar   SensorKind = "radar"
	SensorLidar   SensorKind = "lidar"
	SensorUnknown SensorKind = "unknown"
)

// String returns the string representation of the sensor kind.
func (k SensorKind) String() string {
	return string(k)
}

// IsValid reports whether k is one of the known sensor kinds.
func (k SensorKind) IsValid() bool {
	switch k {
	case SensorGPS, SensorVision, SensorRF, SensorRadar, SensorLidar, SensorUnknown:
		return true
	default:
		return false
	}
}

// ReportsVelocity reports whether sensors of this kind natively report a
// velocity vector alongside position. It is a fixed property of the kind.
func (k SensorKind) ReportsVelocity() bool {
	return k == SensorRadar || k == SensorLidar
}

// EntityKind is a purely informational tag on a tracked entity; it has no
// bearing on the filtering math.
type EntityKind string

const (
	EntityVehicle   EntityKind = "vehicle"
	EntityAircraft  EntityKind = "aircraft"
	EntityPersonnel EntityKind = "personnel"
	EntityUnknown   EntityKind = "unknown"
)

// String returns the string representation of the entity kind.
func (k EntityKind) String() string {
	return string(k)
}

// IsValid reports whether k is one of the known entity kinds.
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityVehicle, EntityAircraft, EntityPersonnel, EntityUnknown:
		return true
	default:
		return false
	}
}

// Position is a point in the shared world frame, metres.
type Position struct {
	X, Y, Z float64
}

// Velocity is a rate of change in the shared world frame, metres/second.
type Velocity struct {
	VX, VY, VZ float64
}

// Measurement is an immutable observation of one entity by one sensor at
// one instant. Callers must not mutate a Measurement, or the covariance
// matrices referenced from it, after construction.
type Measurement struct {
	EntityID   uint64
	SensorKind SensorKind
	Timestamp  time.Time

	Position Position
	Velocity Velocity

	// HasVelocity reports whether Velocity and VelocityCovariance are
	// populated. It is independent of SensorKind.ReportsVelocity — a
	// radar measurement could in principle arrive without velocity, and
	// the estimator must honor HasVelocity rather than inferring it from
	// the sensor kind.
	HasVelocity bool

	// PositionCovariance is a 3x3 symmetric positive-definite matrix.
	PositionCovariance *mat.SymDense
	// VelocityCovariance is a 3x3 symmetric positive-definite matrix,
	// meaningful only when HasVelocity is true.
	VelocityCovariance *mat.SymDense

	// Confidence is the sensor's self-reported measurement quality, in
	// [0, 1].
	Confidence float64
}

// FusedEntityState is the consumer-visible, periodically published
// snapshot of one tracked entity.
type FusedEntityState struct {
	EntityID   uint64
	EntityKind EntityKind

	Position Position
	Velocity Velocity

	// Covariance is the full 6x6 estimator covariance at snapshot time.
	Covariance *mat.SymDense

	Confidence float64

	// Timestamp is when this snapshot was produced.
	Timestamp time.Time
	// LastUpdateTime is when the underlying tracker last incorporated a
	// measurement.
	LastUpdateTime time.Time

	// ContributingSensors is a copy of the tracker's bounded ring of the
	// most recent sensor kinds that fed this entity.
	ContributingSensors []SensorKind

	MeasurementCount int
}

// DiagCovariance3 builds a 3x3 diagonal covariance matrix from per-axis
// variances, the common case for an isotropic or axis-aligned sensor
// noise model.
func DiagCovariance3(varX, varY, varZ float64) *mat.SymDense {
	cov := mat.NewSymDense(3, nil)
	cov.SetSym(0, 0, varX)
	cov.SetSym(1, 1, varY)
	cov.SetSym(2, 2, varZ)
	return cov
}
