package integrator

import (
	"errors"
	"fmt"
	"math"
)

// Dormand-Prince 5(4) tableau.
const (
	c2 = 1.0 / 5.0
	c3 = 3.0 / 10.0
	c4 = 4.0 / 5.0
	c5 = 8.0 / 9.0

	a21 = 1.0 / 5.0
	a31 = 3.0 / 40.0
	a32 = 9.0 / 40.0
	a41 = 44.0 / 45.0
	a42 = -56.0 / 15.0
	a43 = 32.0 / 9.0
	a51 = 19372.0 / 6561.0
	a52 = -25360.0 / 2187.0
	a53 = 64448.0 / 6561.0
	a54 = -212.0 / 729.0
	a61 = 9017.0 / 3168.0
	a62 = -355.0 / 33.0
	a63 = 46732.0 / 5247.0
	a64 = 49.0 / 176.0
	a65 = -5103.0 / 18656.0

	b1 = 35.0 / 384.0
	b3 = 500.0 / 1113.0
	b4 = 125.0 / 192.0
	b5 = -2187.0 / 6784.0
	b6 = 11.0 / 84.0

	// Difference between the 5th and 4th order weights.
	e1 = 71.0 / 57600.0
	e3 = -71.0 / 16695.0
	e4 = 71.0 / 1920.0
	e5 = -17253.0 / 339200.0
	e6 = 22.0 / 525.0
	e7 = -1.0 / 40.0
)

const (
	safety   = 0.9
	minScale = 0.2
	maxScale = 10.0
)

var (
	// ErrStepUnderflow is returned when the step size required by the tolerance is below the minimum step.
	ErrStepUnderflow = errors.New("step size underflow")
	// ErrMaxSteps is returned when the integration did not reach its final time within the step budget.
	ErrMaxSteps = errors.New("maximum number of steps reached")
	// ErrNonFinite is returned when the state becomes NaN or infinite.
	ErrNonFinite = errors.New("non finite state")
)

// Config holds the step control settings of an adaptive integrator.
type Config struct {
	InitialStep float64 // Magnitude of the first attempted step.
	MinStep     float64 // Smallest step magnitude allowed before giving up.
	MaxStep     float64 // Largest step magnitude (0 for no limit).
	AbsTol      float64
	RelTol      float64
	MaxSteps    uint64 // Maximum number of accepted steps (0 for no limit).
}

// DefaultConfig returns the default step control settings.
func DefaultConfig() Config {
	return Config{InitialStep: 1e-6, MinStep: 1e-14, AbsTol: 1e-12, RelTol: 1e-14, MaxSteps: 1000000}
}

// StepError wraps an integration failure with the time and step at which it happened.
type StepError struct {
	T    float64
	Step float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("integration failed at t=%g (h=%g): %s", e.T, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// DOPRI45 defines an adaptive Dormand-Prince 5(4) integrator.
// The integration runs from T0 to TF, which may be before T0 for a backward integration.
type DOPRI45 struct {
	T0, TF     float64    // Integration bounds.
	Config                // Step control.
	Integrator Integrable // What is to be integrated.
}

// NewDOPRI45 returns a new DOPRI45 integrator instance.
func NewDOPRI45(t0, tf float64, conf Config, inte Integrable) *DOPRI45 {
	if inte == nil {
		panic("config Integrator may not be nil")
	}
	if conf.InitialStep <= 0 {
		panic("config InitialStep must be positive")
	}
	if conf.AbsTol <= 0 && conf.RelTol <= 0 {
		panic("at least one tolerance must be positive")
	}
	return &DOPRI45{T0: t0, TF: tf, Config: conf, Integrator: inte}
}

// Solve solves the configured integration.
// Returns the number of accepted steps, the last time reached, or an error.
func (d *DOPRI45) Solve() (uint64, float64, error) {
	dir := 1.0
	if d.TF < d.T0 {
		dir = -1
	}
	t := d.T0
	y := append([]float64(nil), d.Integrator.GetState()...)
	n := len(y)
	h := dir * d.InitialStep
	if d.MaxStep > 0 && math.Abs(h) > d.MaxStep {
		h = dir * d.MaxStep
	}

	k2 := make([]float64, n)
	k3 := make([]float64, n)
	k4 := make([]float64, n)
	k5 := make([]float64, n)
	k6 := make([]float64, n)
	tmp := make([]float64, n)
	yNew := make([]float64, n)
	k1 := d.Integrator.Func(t, y)

	var steps uint64
	for dir*(d.TF-t) > 0 {
		if d.Integrator.Stop(t) {
			return steps, t, nil
		}
		if d.MaxSteps > 0 && steps >= d.MaxSteps {
			return steps, t, &StepError{T: t, Step: h, Err: ErrMaxSteps}
		}
		last := false
		if dir*(t+h-d.TF) >= 0 {
			h = d.TF - t
			last = true
		}

		for i := range y {
			tmp[i] = y[i] + h*a21*k1[i]
		}
		copy(k2, d.Integrator.Func(t+c2*h, tmp))
		for i := range y {
			tmp[i] = y[i] + h*(a31*k1[i]+a32*k2[i])
		}
		copy(k3, d.Integrator.Func(t+c3*h, tmp))
		for i := range y {
			tmp[i] = y[i] + h*(a41*k1[i]+a42*k2[i]+a43*k3[i])
		}
		copy(k4, d.Integrator.Func(t+c4*h, tmp))
		for i := range y {
			tmp[i] = y[i] + h*(a51*k1[i]+a52*k2[i]+a53*k3[i]+a54*k4[i])
		}
		copy(k5, d.Integrator.Func(t+c5*h, tmp))
		for i := range y {
			tmp[i] = y[i] + h*(a61*k1[i]+a62*k2[i]+a63*k3[i]+a64*k4[i]+a65*k5[i])
		}
		copy(k6, d.Integrator.Func(t+h, tmp))
		for i := range y {
			yNew[i] = y[i] + h*(b1*k1[i]+b3*k3[i]+b4*k4[i]+b5*k5[i]+b6*k6[i])
		}
		k7 := d.Integrator.Func(t+h, yNew)

		errNorm := 0.0
		for i := range y {
			if math.IsNaN(yNew[i]) || math.IsInf(yNew[i], 0) {
				errNorm = math.Inf(1)
				break
			}
			sc := d.AbsTol + d.RelTol*math.Max(math.Abs(y[i]), math.Abs(yNew[i]))
			e := math.Abs(h*(e1*k1[i]+e3*k3[i]+e4*k4[i]+e5*k5[i]+e6*k6[i]+e7*k7[i])) / sc
			if e > errNorm {
				errNorm = e
			}
		}

		if errNorm <= 1 {
			if last {
				t = d.TF
			} else {
				t += h
			}
			y, yNew = yNew, y
			k1 = k7
			steps++
			d.Integrator.SetState(t, append([]float64(nil), y...))
			scale := maxScale
			if errNorm > 0 {
				scale = math.Min(maxScale, math.Max(minScale, safety*math.Pow(errNorm, -0.2)))
			}
			h *= scale
		} else {
			h *= math.Max(minScale, safety*math.Pow(errNorm, -0.2))
			if math.IsInf(errNorm, 1) && math.Abs(h) < d.MinStep {
				return steps, t, &StepError{T: t, Step: h, Err: ErrNonFinite}
			}
		}
		if d.MaxStep > 0 && math.Abs(h) > d.MaxStep {
			h = dir * d.MaxStep
		}
		if math.Abs(h) < d.MinStep && dir*(d.TF-t) > d.MinStep {
			return steps, t, &StepError{T: t, Step: h, Err: ErrStepUnderflow}
		}
	}
	return steps, t, nil
}
