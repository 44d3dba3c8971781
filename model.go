package astrohelion

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ModelVariant defines an enum of the available dynamical models.
type ModelVariant uint8

const (
	// CR3BPVariant is the circular restricted three body problem.
	CR3BPVariant ModelVariant = iota + 1
	// LowThrustVariant is the CR3BP with a velocity pointing low thrust acceleration.
	LowThrustVariant
)

func (v ModelVariant) String() string {
	switch v {
	case CR3BPVariant:
		return "cr3bp"
	case LowThrustVariant:
		return "cr3bp-lt"
	}
	panic("cannot stringify unknown model variant")
}

// ModelVariantFromString returns the model variant from its name.
func ModelVariantFromString(name string) (ModelVariant, error) {
	switch strings.ToLower(name) {
	case "cr3bp":
		return CR3BPVariant, nil
	case "cr3bp-lt", "lowthrust", "lt":
		return LowThrustVariant, nil
	}
	return 0, fmt.Errorf("unknown model variant '%s'", name)
}

// Model defines a dynamical model.
// The state q it operates on is made of the six position and velocity components followed by
// ExtraDim model specific scalars (e.g. the spacecraft mass). The STM is never part of q: it is
// handled by the propagator from the Variational matrix.
// All methods must be free of side effects so that a model may be shared between goroutines.
type Model interface {
	System() *System
	Variant() ModelVariant
	// ExtraDim returns the number of model specific scalars appended to the state.
	ExtraDim() int
	// InitialExtras returns the default values of the extra scalars.
	InitialExtras() []float64
	// StateDerivative writes the time derivative of q in dq.
	StateDerivative(t float64, q, dq []float64)
	// Variational writes the 6x6 Jacobian of the six state derivatives with respect to the six states in A.
	Variational(t float64, q []float64, A *mat.Dense)
	// PrimaryPositions returns the position of each primary at time t.
	PrimaryPositions(t float64) [][3]float64
	// PrimaryVelocities returns the velocity of each primary at time t.
	PrimaryVelocities(t float64) [][3]float64
}

// Integral is implemented by models which provide an energy-like scalar.
type Integral interface {
	// Jacobi returns the Jacobi constant of the state.
	Jacobi(q []float64) float64
	// JacobiGradient returns the partials of the Jacobi constant with respect to the six states.
	JacobiGradient(q []float64) []float64
	// Conserved returns whether the Jacobi constant is an integral of motion of the model.
	Conserved() bool
}

// NewModel returns the model of the requested variant for this system.
func NewModel(v ModelVariant, sys *System) (Model, error) {
	switch v {
	case CR3BPVariant:
		return NewCR3BP(sys), nil
	case LowThrustVariant:
		return NewLowThrust(sys)
	}
	return nil, fmt.Errorf("unknown model variant %d", v)
}

// stateDim returns the length of the state (without STM) of a model.
func stateDim(m Model) int {
	return 6 + m.ExtraDim()
}

// augmentedDim returns the length of the full propagated state of a model.
func augmentedDim(m Model, withSTM bool) int {
	if withSTM {
		return 6 + stmLen + m.ExtraDim()
	}
	return 6 + m.ExtraDim()
}

// splitAugmented returns the core and the extras of an augmented state.
func splitAugmented(m Model, y []float64, withSTM bool) (core, extras []float64) {
	core = y[:6]
	if withSTM {
		extras = y[6+stmLen:]
	} else {
		extras = y[6:]
	}
	return core, extras[:m.ExtraDim()]
}

// joinState returns [core][extras].
func joinState(core, extras []float64) []float64 {
	q := make([]float64, 6+len(extras))
	copy(q, core[:6])
	copy(q[6:], extras)
	return q
}
