package astrohelion

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// LowThrust is the CR3BP with a low thrust acceleration pointed relative to the rotating velocity.
// The nondimensional spacecraft mass is carried as an extra state: it only depends on time, so the
// 6x6 STM remains the full sensitivity of the position and velocity.
type LowThrust struct {
	*CR3BP
	thrust   ThrustParams
	accel    float64 // Nondimensional thrust acceleration at unit mass
	massRate float64
}

// NewLowThrust returns the low thrust model of the provided system, which must have thrust parameters.
func NewLowThrust(sys *System) (*LowThrust, error) {
	if sys.Thrust == nil {
		return nil, errors.New("low thrust model requires thrust parameters")
	}
	if sys.Thrust.Law == 0 {
		return nil, errors.New("low thrust model requires a pointing law")
	}
	return &LowThrust{CR3BP: NewCR3BP(sys), thrust: *sys.Thrust, accel: sys.Thrust.Accel(sys), massRate: sys.Thrust.MassRate(sys)}, nil
}

// Variant implements the Model interface.
func (m *LowThrust) Variant() ModelVariant {
	return LowThrustVariant
}

// ExtraDim implements the Model interface.
func (m *LowThrust) ExtraDim() int {
	return 1
}

// InitialExtras implements the Model interface.
func (m *LowThrust) InitialExtras() []float64 {
	return []float64{1}
}

// Thrust returns the thrust parameters of this model.
func (m *LowThrust) Thrust() ThrustParams {
	return m.thrust
}

// thrustAccel returns the nondimensional thrust acceleration magnitude for the mass in q.
func (m *LowThrust) thrustAccel(q []float64) float64 {
	if len(q) < 7 || q[6] <= 0 {
		// Dry spacecraft.
		return 0
	}
	return m.accel / q[6]
}

// StateDerivative implements the Model interface.
func (m *LowThrust) StateDerivative(t float64, q, dq []float64) {
	m.CR3BP.StateDerivative(t, q, dq)
	f := m.thrustAccel(q)
	dir := m.thrust.Law.Direction(q[3:6], m.thrust.Angle)
	for i := 0; i < 3; i++ {
		dq[3+i] += f * dir[i]
	}
	if f == 0 {
		dq[6] = 0
	} else {
		dq[6] = m.massRate
	}
}

// Variational implements the Model interface.
func (m *LowThrust) Variational(t float64, q []float64, A *mat.Dense) {
	m.CR3BP.Variational(t, q, A)
	f := m.thrustAccel(q)
	if f == 0 {
		return
	}
	p := m.thrust.Law.directionPartials(q[3:6], m.thrust.Angle)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			A.Set(3+i, 3+j, A.At(3+i, 3+j)+f*p[i][j])
		}
	}
}

// Conserved implements the Integral interface: only the laws perpendicular to the velocity keep
// the Jacobi constant.
func (m *LowThrust) Conserved() bool {
	return m.accel == 0 || m.thrust.Law.ConservesJacobi()
}
