package track

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

const (
	contributingRingSize  = 10
	confidenceSmoothing   = 0.1
	confidenceBonusDivisor = 100.0
	confidenceBonusCap     = 0.2
	confidenceCeiling      = 0.99
	initialBaseConfidence  = 0.5
	velocityPriorVariance  = 10.0
	velocityFloorVariance  = 100.0
)

// Tracker owns one Estimator plus the bookkeeping the fusion engine needs
// to manage an entity's lifecycle: confidence, contributing sensors and
// timestamps. A Tracker is not safe for concurrent use; the fusion engine
// serializes all access through the trackers lock.
type Tracker struct {
	entityID   uint64
	entityKind EntityKind

	creationTime   time.Time
	lastUpdateTime time.Time

	totalMeasurements uint64
	baseConfidence    float64

	ring contributingRing

	est *Estimator
}

// NewTracker returns a tracker for entityID, tagged with entityKind. It
// holds no state until the first call to ProcessMeasurement.
func NewTracker(entityID uint64, entityKind EntityKind) *Tracker {
	return &Tracker{
		entityID:       entityID,
		entityKind:     entityKind,
		baseConfidence: initialBaseConfidence,
		est:            NewEstimator(),
	}
}

// EntityID returns the tracked entity's identifier.
func (t *Tracker) EntityID() uint64 {
	return t.entityID
}

// ProcessMeasurement folds m into the tracker's estimator and bookkeeping.
// On the first call for a fresh tracker it initializes the estimator
// instead of predicting — no prediction is ever applied before the first
// measurement.
func (t *Tracker) ProcessMeasurement(m Measurement) error {
	if t.totalMeasurements == 0 {
		t.creationTime = m.Timestamp
		t.initializeFrom(m)
	} else {
		dt := m.Timestamp.Sub(t.lastUpdateTime).Seconds()
		if dt > 0 {
			t.est.Predict(dt)
		}
		if err := t.applyUpdate(m); err != nil {
			return err
		}
	}

	t.updateConfidence(m.Confidence)
	t.ring.push(m.SensorKind)
	t.lastUpdateTime = m.Timestamp
	t.totalMeasurements++

	return nil
}

func (t *Tracker) initializeFrom(m Measurement) {
	vx, vy, vz := 0.0, 0.0, 0.0
	if m.HasVelocity {
		vx, vy, vz = m.Velocity.VX, m.Velocity.VY, m.Velocity.VZ
	}
	x0 := mat.NewVecDense(6, []float64{
		m.Position.X, m.Position.Y, m.Position.Z,
		vx, vy, vz,
	})

	p0 := mat.NewSymDense(6, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			p0.SetSym(i, j, m.PositionCovariance.At(i, j))
		}
	}
	if m.HasVelocity {
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				p0.SetSym(i+3, j+3, m.VelocityCovariance.At(i, j))
			}
		}
	} else {
		for i := 0; i < 3; i++ {
			p0.SetSym(i+3, i+3, velocityPriorVariance)
		}
	}

	t.est.Initialize(x0, p0)
}

// applyUpdate builds the measurement vector and noise covariance per the
// update path's R-matrix construction — the velocity covariance block is
// installed even when the measurement has no velocity; the position-only
// observation matrix simply never reads it.
func (t *Tracker) applyUpdate(m Measurement) error {
	z := mat.NewVecDense(6, []float64{
		m.Position.X, m.Position.Y, m.Position.Z,
		m.Velocity.VX, m.Velocity.VY, m.Velocity.VZ,
	})

	r := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		r.SetSym(i, i, velocityFloorVariance)
	}
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			r.SetSym(i, j, m.PositionCovariance.At(i, j))
		}
	}
	// The velocity covariance block is installed even when the measurement
	// has no velocity; a measurement that never reports one carries a nil
	// VelocityCovariance, and a nil here is skipped, leaving the
	// velocityFloorVariance diagonal in place.
	if m.VelocityCovariance != nil {
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				r.SetSym(i+3, j+3, m.VelocityCovariance.At(i, j))
			}
		}
	}

	return t.est.Update(z, r, m.HasVelocity)
}

// updateConfidence applies the exponential smoothing and measurement-count
// bonus. The bonus uses totalMeasurements before it is incremented for
// this measurement.
func (t *Tracker) updateConfidence(measurementConfidence float64) {
	t.baseConfidence = confidenceSmoothing*measurementConfidence + (1-confidenceSmoothing)*t.baseConfidence

	bonus := float64(t.totalMeasurements) / confidenceBonusDivisor
	if bonus > confidenceBonusCap {
		bonus = confidenceBonusCap
	}
	t.baseConfidence += bonus
	if t.baseConfidence > confidenceCeiling {
		t.baseConfidence = confidenceCeiling
	}
}

// Snapshot returns a by-value copy of the current fused state. It does not
// mutate any tracker field.
func (t *Tracker) Snapshot() FusedEntityState {
	return FusedEntityState{
		EntityID:            t.entityID,
		EntityKind:          t.entityKind,
		Position:            t.est.Position(),
		Velocity:            t.est.Velocity(),
		Covariance:          t.est.Covariance(),
		Confidence:          t.baseConfidence,
		Timestamp:           time.Now(),
		LastUpdateTime:      t.lastUpdateTime,
		ContributingSensors: t.ring.snapshot(),
		MeasurementCount:    int(t.totalMeasurements),
	}
}

// IsStale reports whether now - lastUpdateTime exceeds maxAge.
func (t *Tracker) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(t.lastUpdateTime) > maxAge
}

// contributingRing is a bounded FIFO of the last contributingRingSize
// sensor kinds that fed a tracker.
type contributingRing struct {
	items []SensorKind
}

func (r *contributingRing) push(k SensorKind) {
	r.items = append(r.items, k)
	if len(r.items) > contributingRingSize {
		r.items = r.items[len(r.items)-contributingRingSize:]
	}
}

func (r *contributingRing) snapshot() []SensorKind {
	out := make([]SensorKind, len(r.items))
	copy(out, r.items)
	return out
}
