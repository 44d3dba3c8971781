package astrohelion

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// Earth-Moon L1 planar Lyapunov orbit.
var (
	lyapunovIC     = []float64{0.8234, 0, 0, 0, 0.12623175831259, 0}
	lyapunovPeriod = 2.7429121546529
	lyapunovJacobi = 3.174373256970986
)

func earthMoon(t *testing.T) *System {
	sys, err := NewSystem(Earth, Moon)
	if err != nil {
		t.Fatalf("Earth-Moon system: %s", err)
	}
	return sys
}

func earthMoonLT(t *testing.T, law PointingLaw, angle float64) *LowThrust {
	tp := NewThrustParams(NewGenericEP(0.01, 2000), 1000, law)
	tp.Angle = angle
	m, err := NewLowThrust(earthMoon(t).WithThrust(tp))
	if err != nil {
		t.Fatalf("low thrust model: %s", err)
	}
	return m
}

// freeParticle is a force free model, whose trajectories are straight lines.
type freeParticle struct {
	sys *System
}

func (m freeParticle) System() *System          { return m.sys }
func (m freeParticle) Variant() ModelVariant    { return CR3BPVariant }
func (m freeParticle) ExtraDim() int            { return 0 }
func (m freeParticle) InitialExtras() []float64 { return nil }

func (m freeParticle) StateDerivative(t float64, q, dq []float64) {
	copy(dq[:3], q[3:6])
	dq[3], dq[4], dq[5] = 0, 0, 0
}

func (m freeParticle) Variational(t float64, q []float64, A *mat.Dense) {
	A.Zero()
	for i := 0; i < 3; i++ {
		A.Set(i, i+3, 1)
	}
}

func (m freeParticle) PrimaryPositions(t float64) [][3]float64 {
	return [][3]float64{{-1e3, 0, 0}, {1e3, 0, 0}}
}

func (m freeParticle) PrimaryVelocities(t float64) [][3]float64 {
	return [][3]float64{{}, {}}
}

// variationalFD returns the central difference Jacobian of the six state derivatives.
func variationalFD(m Model, q []float64) *mat.Dense {
	const h = 1e-6
	A := mat.NewDense(6, 6, nil)
	dqp := make([]float64, len(q))
	dqm := make([]float64, len(q))
	p := append([]float64(nil), q...)
	for j := 0; j < 6; j++ {
		p[j] = q[j] + h
		m.StateDerivative(0, p, dqp)
		p[j] = q[j] - h
		m.StateDerivative(0, p, dqm)
		p[j] = q[j]
		for i := 0; i < 6; i++ {
			A.Set(i, j, (dqp[i]-dqm[i])/(2*h))
		}
	}
	return A
}
