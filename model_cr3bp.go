package astrohelion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// CR3BP is the circular restricted three body problem in the rotating frame, nondimensionalized
// such that the primaries are one unit apart and revolve at unit angular rate.
type CR3BP struct {
	sys *System
}

// NewCR3BP returns the CR3BP model of the provided system.
func NewCR3BP(sys *System) *CR3BP {
	return &CR3BP{sys}
}

// System implements the Model interface.
func (m *CR3BP) System() *System {
	return m.sys
}

// Variant implements the Model interface.
func (m *CR3BP) Variant() ModelVariant {
	return CR3BPVariant
}

// ExtraDim implements the Model interface.
func (m *CR3BP) ExtraDim() int {
	return 0
}

// InitialExtras implements the Model interface.
func (m *CR3BP) InitialExtras() []float64 {
	return nil
}

// StateDerivative implements the Model interface.
func (m *CR3BP) StateDerivative(t float64, q, dq []float64) {
	copy(dq[:3], q[3:6])
	ax, ay, az := cr3bpAccel(m.sys.Mu, q)
	dq[3] = ax
	dq[4] = ay
	dq[5] = az
}

// Variational implements the Model interface.
func (m *CR3BP) Variational(t float64, q []float64, A *mat.Dense) {
	cr3bpVariational(m.sys.Mu, q, A)
}

// PrimaryPositions implements the Model interface.
func (m *CR3BP) PrimaryPositions(t float64) [][3]float64 {
	return m.sys.PrimaryPositions()
}

// PrimaryVelocities implements the Model interface: the primaries are fixed in the rotating frame.
func (m *CR3BP) PrimaryVelocities(t float64) [][3]float64 {
	return [][3]float64{{}, {}}
}

// Jacobi implements the Integral interface.
func (m *CR3BP) Jacobi(q []float64) float64 {
	return JacobiConstant(m.sys.Mu, q)
}

// JacobiGradient implements the Integral interface.
func (m *CR3BP) JacobiGradient(q []float64) []float64 {
	return jacobiGradient(m.sys.Mu, q)
}

// Conserved implements the Integral interface.
func (m *CR3BP) Conserved() bool {
	return true
}

// primaryDistances returns the distances to P1 and P2.
func primaryDistances(mu float64, q []float64) (d, r float64) {
	x, y, z := q[0], q[1], q[2]
	d = math.Sqrt((x+mu)*(x+mu) + y*y + z*z)
	r = math.Sqrt((x-1+mu)*(x-1+mu) + y*y + z*z)
	return
}

// cr3bpAccel returns the acceleration of the CR3BP in the rotating frame.
func cr3bpAccel(mu float64, q []float64) (ax, ay, az float64) {
	x, y, z, vx, vy := q[0], q[1], q[2], q[3], q[4]
	d, r := primaryDistances(mu, q)
	d3 := d * d * d
	r3 := r * r * r
	ax = 2*vy + x - (1-mu)*(x+mu)/d3 - mu*(x-1+mu)/r3
	ay = -2*vx + y - (1-mu)*y/d3 - mu*y/r3
	az = -(1-mu)*z/d3 - mu*z/r3
	return
}

// cr3bpVariational writes the linearized CR3BP dynamics in A.
func cr3bpVariational(mu float64, q []float64, A *mat.Dense) {
	x, y, z := q[0], q[1], q[2]
	d, r := primaryDistances(mu, q)
	d3 := d * d * d
	r3 := r * r * r
	d5 := d3 * d * d
	r5 := r3 * r * r

	uxx := 1 - (1-mu)/d3 - mu/r3 + 3*(1-mu)*(x+mu)*(x+mu)/d5 + 3*mu*(x+mu-1)*(x+mu-1)/r5
	uyy := 1 - (1-mu)/d3 - mu/r3 + 3*(1-mu)*y*y/d5 + 3*mu*y*y/r5
	uzz := -(1-mu)/d3 - mu/r3 + 3*(1-mu)*z*z/d5 + 3*mu*z*z/r5
	uxy := 3*(1-mu)*(x+mu)*y/d5 + 3*mu*(x+mu-1)*y/r5
	uxz := 3*(1-mu)*(x+mu)*z/d5 + 3*mu*(x+mu-1)*z/r5
	uyz := 3*(1-mu)*y*z/d5 + 3*mu*y*z/r5

	A.Zero()
	A.Set(0, 3, 1)
	A.Set(1, 4, 1)
	A.Set(2, 5, 1)
	A.Set(3, 0, uxx)
	A.Set(3, 1, uxy)
	A.Set(3, 2, uxz)
	A.Set(4, 0, uxy)
	A.Set(4, 1, uyy)
	A.Set(4, 2, uyz)
	A.Set(5, 0, uxz)
	A.Set(5, 1, uyz)
	A.Set(5, 2, uzz)
	A.Set(3, 4, 2)
	A.Set(4, 3, -2)
}

// JacobiConstant returns the Jacobi constant of the provided state for the mass ratio mu.
func JacobiConstant(mu float64, q []float64) float64 {
	d, r := primaryDistances(mu, q)
	v2 := q[3]*q[3] + q[4]*q[4] + q[5]*q[5]
	return q[0]*q[0] + q[1]*q[1] + 2*(1-mu)/d + 2*mu/r - v2
}

func jacobiGradient(mu float64, q []float64) []float64 {
	x, y, z := q[0], q[1], q[2]
	d, r := primaryDistances(mu, q)
	d3 := d * d * d
	r3 := r * r * r
	return []float64{
		2*x - 2*(1-mu)*(x+mu)/d3 - 2*mu*(x-1+mu)/r3,
		2*y - 2*(1-mu)*y/d3 - 2*mu*y/r3,
		-2*(1-mu)*z/d3 - 2*mu*z/r3,
		-2 * q[3],
		-2 * q[4],
		-2 * q[5],
	}
}
