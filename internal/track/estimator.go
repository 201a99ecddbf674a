package track

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularInnovationCovariance is returned by Update when the innovation
// covariance S is singular and cannot be inverted. The caller is expected to
// drop the measurement and log a warning; the estimator's state is left
// unchanged.
var ErrSingularInnovationCovariance = errors.New("track: singular innovation covariance")

// processNoiseScale is the fixed tuning scalar q in the constant-velocity
// white-noise-acceleration process noise model. Not configurable: the
// original implementation hardcodes it at the point Q is built, even though
// it exposes a setter for it elsewhere.
const processNoiseScale = 0.5

// Estimator is a linear Kalman filter over the six-dimensional state
// x = [px, py, pz, vx, vy, vz] with a constant-velocity motion model. It
// accepts either position-only or position-plus-velocity observations.
//
// An Estimator is not safe for concurrent use; callers (Tracker) must
// serialize access.
type Estimator struct {
	initialized bool
	x           *mat.VecDense // 6x1 state
	p           *mat.SymDense // 6x6 covariance
}

// NewEstimator returns an uninitialized estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Initialized reports whether Initialize has been called.
func (e *Estimator) Initialized() bool {
	return e.initialized
}

// Initialize sets the state and covariance and marks the filter
// initialized. Callers guarantee this is called at most once.
func (e *Estimator) Initialize(x0 *mat.VecDense, p0 *mat.SymDense) {
	e.x = mat.VecDenseCopyOf(x0)
	e.p = mat.NewSymDense(6, nil)
	e.p.CopySym(p0)
	e.initialized = true
}

// Position returns the first three components of the state.
func (e *Estimator) Position() Position {
	return Position{X: e.x.AtVec(0), Y: e.x.AtVec(1), Z: e.x.AtVec(2)}
}

// Velocity returns the last three components of the state.
func (e *Estimator) Velocity() Velocity {
	return Velocity{VX: e.x.AtVec(3), VY: e.x.AtVec(4), VZ: e.x.AtVec(5)}
}

// State returns a copy of the current six-dimensional state vector.
func (e *Estimator) State() *mat.VecDense {
	return mat.VecDenseCopyOf(e.x)
}

// Covariance returns a copy of the current 6x6 covariance.
func (e *Estimator) Covariance() *mat.SymDense {
	cov := mat.NewSymDense(6, nil)
	cov.CopySym(e.p)
	return cov
}

// Predict advances the state by dt seconds under the constant-velocity
// motion model. dt must be >= 0; dt == 0 is a no-op. Behavior on an
// uninitialized filter is undefined — callers never invoke it then.
func (e *Estimator) Predict(dt float64) {
	if dt <= 0 {
		return
	}

	f := transitionMatrix(dt)

	var xNext mat.VecDense
	xNext.MulVec(f, e.x)
	e.x = &xNext

	q := processNoise(dt)

	var fp mat.Dense
	fp.Mul(f, e.p)
	var fpft mat.Dense
	fpft.Mul(&fp, f.T())

	pNext := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			pNext.SetSym(i, j, fpft.At(i, j)+q.At(i, j))
		}
	}
	e.p = pNext
}

// Update folds a measurement into the state. z is the full six-vector
// [px,py,pz,vx,vy,vz] (the last three components are ignored when
// hasVelocity is false); r is the corresponding 6x6 measurement noise
// covariance. Returns ErrSingularInnovationCovariance if the innovation
// covariance cannot be inverted, in which case the estimator's state is
// left unchanged.
func (e *Estimator) Update(z *mat.VecDense, r *mat.SymDense, hasVelocity bool) error {
	h := observationMatrix(hasVelocity)
	rows, _ := h.Dims()

	zEff := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		zEff.SetVec(i, z.AtVec(i))
	}

	rEff := mat.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		for j := i; j < rows; j++ {
			rEff.SetSym(i, j, r.At(i, j))
		}
	}

	var hx mat.VecDense
	hx.MulVec(h, e.x)

	y := mat.NewVecDense(rows, nil)
	y.SubVec(zEff, &hx)

	var hp mat.Dense
	hp.Mul(h, e.p)
	var hpht mat.Dense
	hpht.Mul(&hp, h.T())

	s := mat.NewDense(rows, rows, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < rows; j++ {
			s.Set(i, j, hpht.At(i, j)+rEff.At(i, j))
		}
	}

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return ErrSingularInnovationCovariance
	}

	var pht mat.Dense
	pht.Mul(e.p, h.T())
	var k mat.Dense
	k.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, y)

	var xNext mat.VecDense
	xNext.AddVec(e.x, &ky)
	e.x = &xNext

	var kh mat.Dense
	kh.Mul(&k, h)

	ident := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		ident.Set(i, i, 1)
	}
	var imKh mat.Dense
	imKh.Sub(ident, &kh)

	var pNextDense mat.Dense
	pNextDense.Mul(&imKh, e.p)

	pNext := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			// average the two off-diagonal mirrors to absorb asymmetry
			// from floating point roundoff in the (I-KH)P product.
			pNext.SetSym(i, j, (pNextDense.At(i, j)+pNextDense.At(j, i))/2)
		}
	}
	e.p = pNext

	return nil
}

// transitionMatrix builds the 6x6 constant-velocity state transition
// matrix: identity with a dt*I3 block in the top-right.
func transitionMatrix(dt float64) *mat.Dense {
	f := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		f.Set(i, i, 1)
	}
	for i := 0; i < 3; i++ {
		f.Set(i, i+3, dt)
	}
	return f
}

// processNoise builds the constant-acceleration white-noise process noise
// matrix Q for interval dt, scaled by the fixed tuning constant q.
func processNoise(dt float64) *mat.Dense {
	q := mat.NewDense(6, 6, nil)
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt

	posPos := processNoiseScale * dt4 / 4
	posVel := processNoiseScale * dt3 / 2
	velVel := processNoiseScale * dt2

	for i := 0; i < 3; i++ {
		q.Set(i, i, posPos)
		q.Set(i, i+3, posVel)
		q.Set(i+3, i, posVel)
		q.Set(i+3, i+3, velVel)
	}
	return q
}

// observationMatrix returns the 3x6 position-only observation matrix when
// hasVelocity is false, or the 6x6 identity (full-state) observation matrix
// when true.
func observationMatrix(hasVelocity bool) *mat.Dense {
	if hasVelocity {
		h := mat.NewDense(6, 6, nil)
		for i := 0; i < 6; i++ {
			h.Set(i, i, 1)
		}
		return h
	}
	h := mat.NewDense(3, 6, nil)
	for i := 0; i < 3; i++ {
		h.Set(i, i, 1)
	}
	return h
}
