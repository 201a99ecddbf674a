package sensors

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/fusion.report/internal/track"
)

// EntityTrajectory is a constant-velocity ground-truth path a Synthetic
// generator will sample from and add noise to.
type EntityTrajectory struct {
	EntityID        uint64
	InitialPosition track.Position
	Velocity        track.Velocity
}

var sensorBaseConfidence = map[track.SensorKind]float64{
	track.SensorGPS:    0.95,
	track.SensorRadar:  0.85,
	track.SensorVision: 0.75,
	track.SensorLidar:  0.90,
}

// Synthetic is a demonstration sensor producer that emits a constant-
// velocity ground-truth trajectory per entity with additive Gaussian
// position/velocity noise and a configurable per-tick dropout
// probability, mirroring SyntheticSensorGenerator.
type Synthetic struct {
	id                  string
	kind                track.SensorKind
	updateRate          float64
	noiseStdDev         float64
	velocityNoiseStdDev float64
	dropoutProb         float64

	mu        sync.Mutex
	entities  []EntityTrajectory
	cb        func(track.Measurement)
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	startTime time.Time

	rng *rand.Rand
}

// NewSynthetic returns a generator of sensorKind at updateRateHz with
// Gaussian position noise of standard deviation noiseStdDev.
func NewSynthetic(sensorKind track.SensorKind, updateRateHz, noiseStdDev float64) *Synthetic {
	return &Synthetic{
		id:                  uuid.NewString(),
		kind:                sensorKind,
		updateRate:          updateRateHz,
		noiseStdDev:         noiseStdDev,
		velocityNoiseStdDev: noiseStdDev * 0.1,
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetVelocityNoiseStdDev overrides the standard deviation of additive
// velocity noise, independent of the position noise passed to
// NewSynthetic. Must be called before Start.
func (s *Synthetic) SetVelocityNoiseStdDev(stdDev float64) {
	s.mu.Lock()
	s.velocityNoiseStdDev = stdDev
	s.mu.Unlock()
}

// ID returns this generator's run identifier.
func (s *Synthetic) ID() string { return s.id }

// AddEntity registers a ground-truth trajectory to be sampled on every
// tick. Must be called before Start.
func (s *Synthetic) AddEntity(traj EntityTrajectory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append(s.entities, traj)
}

// SetDropoutProbability sets the per-tick, per-entity probability that a
// measurement is skipped, clamped to [0, 1].
func (s *Synthetic) SetDropoutProbability(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	s.mu.Lock()
	s.dropoutProb = p
	s.mu.Unlock()
}

// Kind reports the sensor kind this generator emits as.
func (s *Synthetic) Kind() track.SensorKind { return s.kind }

// SetCallback sets the measurement callback. Must be called before Start.
func (s *Synthetic) SetCallback(cb func(track.Measurement)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// Start spawns the generator loop. Idempotent.
func (s *Synthetic) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.startTime = time.Now()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run()
	return nil
}

// Stop signals the generator loop to exit and waits for it. Idempotent.
func (s *Synthetic) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	return nil
}

func (s *Synthetic) run() {
	defer close(s.doneCh)

	period := time.Duration(float64(time.Second) / s.updateRate)
	nextUpdate := time.Now()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		now := time.Now()
		if !now.Before(nextUpdate) {
			s.tick(now)
			nextUpdate = nextUpdate.Add(period)
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func (s *Synthetic) tick(now time.Time) {
	s.mu.Lock()
	entities := make([]EntityTrajectory, len(s.entities))
	copy(entities, s.entities)
	dropoutProb := s.dropoutProb
	cb := s.cb
	running := s.running
	s.mu.Unlock()

	if !running || cb == nil {
		return
	}

	for _, e := range entities {
		if s.rng.Float64() < dropoutProb {
			continue
		}
		cb(s.generateMeasurement(e, now))
	}
}

func (s *Synthetic) generateMeasurement(traj EntityTrajectory, now time.Time) track.Measurement {
	elapsed := now.Sub(s.startTime).Seconds()

	s.mu.Lock()
	velocityNoiseStdDev := s.velocityNoiseStdDev
	s.mu.Unlock()

	noise := func() float64 { return s.rng.NormFloat64() * s.noiseStdDev }
	velocityNoise := func() float64 { return s.rng.NormFloat64() * velocityNoiseStdDev }

	pos := track.Position{
		X: traj.InitialPosition.X + traj.Velocity.VX*elapsed + noise(),
		Y: traj.InitialPosition.Y + traj.Velocity.VY*elapsed + noise(),
		Z: traj.InitialPosition.Z + traj.Velocity.VZ*elapsed + noise(),
	}

	variance := s.noiseStdDev * s.noiseStdDev
	m := track.Measurement{
		EntityID:           traj.EntityID,
		SensorKind:         s.kind,
		Timestamp:          now,
		Position:           pos,
		PositionCovariance: track.DiagCovariance3(variance, variance, variance),
		Confidence:         sensorConfidence(s.kind),
	}

	if s.kind.ReportsVelocity() {
		m.HasVelocity = true
		m.Velocity = track.Velocity{
			VX: traj.Velocity.VX + velocityNoise(),
			VY: traj.Velocity.VY + velocityNoise(),
			VZ: traj.Velocity.VZ + velocityNoise(),
		}
		velVariance := velocityNoiseStdDev * velocityNoiseStdDev
		m.VelocityCovariance = track.DiagCovariance3(velVariance, velVariance, velVariance)
	}

	return m
}

func sensorConfidence(kind track.SensorKind) float64 {
	if c, ok := sensorBaseConfidence[kind]; ok {
		return c
	}
	return 0.70
}
