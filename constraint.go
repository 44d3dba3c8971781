package astrohelion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ConstraintKind defines an enum of the constraint types.
type ConstraintKind uint8

const (
	StateKind ConstraintKind = iota + 1
	ContinuityKind
	MatchKind
	JacobiKind
	EventKind
	TOFKind
	ApseKind
	DistanceKind
	PseudoArclengthKind
	DeltaVKind
)

func (k ConstraintKind) String() string {
	switch k {
	case StateKind:
		return "state"
	case ContinuityKind:
		return "continuity"
	case MatchKind:
		return "match"
	case JacobiKind:
		return "jacobi"
	case EventKind:
		return "event"
	case TOFKind:
		return "tof"
	case ApseKind:
		return "apse"
	case DistanceKind:
		return "distance"
	case PseudoArclengthKind:
		return "pseudo-arclength"
	case DeltaVKind:
		return "delta-v"
	}
	panic("cannot stringify unknown constraint kind")
}

// Constraint is a condition that the corrector drives to zero. The set of implementations is closed:
// the constraints of this package are the only ones the corrector knows how to differentiate.
type Constraint interface {
	fmt.Stringer
	Kind() ConstraintKind
	// rows returns the number of residuals of this constraint.
	rows(p *problem) int
	validate(p *problem) error
	// evaluate writes the residuals in F[row:] and their partials in the same rows of J.
	evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int)
}

func checkNode(c Constraint, p *problem, node int) error {
	if node < 0 || node >= p.n {
		return &ConstraintArityError{c, fmt.Sprintf("node %d out of range [0, %d)", node, p.n)}
	}
	return nil
}

func checkMask(c Constraint, mask []bool) error {
	if mask != nil && len(mask) != 6 {
		return &ConstraintArityError{c, fmt.Sprintf("mask of length %d instead of 6", len(mask))}
	}
	return nil
}

func checkPrimary(c Constraint, p *problem, primary int) error {
	if primary < 0 || primary >= len(p.model.System().Primaries()) {
		return &ConstraintArityError{c, fmt.Sprintf("no primary %d", primary)}
	}
	return nil
}

func masked(mask []bool, k int) bool {
	return mask == nil || mask[k]
}

func maskCount(mask []bool) (n int) {
	for k := 0; k < 6; k++ {
		if masked(mask, k) {
			n++
		}
	}
	return
}

// StateConstraint fixes the components of a node state. NaN values are left free.
type StateConstraint struct {
	Node   int
	Values []float64
}

// FixedState returns a constraint fixing every component of the node state.
func FixedState(node int, state []float64) StateConstraint {
	return StateConstraint{node, append([]float64(nil), state[:6]...)}
}

// Kind implements the Constraint interface.
func (c StateConstraint) Kind() ConstraintKind { return StateKind }

func (c StateConstraint) rows(p *problem) (n int) {
	for _, v := range c.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return
}

func (c StateConstraint) validate(p *problem) error {
	if err := checkNode(c, p, c.Node); err != nil {
		return err
	}
	if len(c.Values) != 6 {
		return &ConstraintArityError{c, fmt.Sprintf("%d values instead of 6", len(c.Values))}
	}
	if c.rows(p) == 0 {
		return &ConstraintArityError{c, "no component is constrained"}
	}
	return nil
}

func (c StateConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	q := it.states[c.Node]
	for k, v := range c.Values {
		if math.IsNaN(v) {
			continue
		}
		F[row] = q[k] - v
		J.Set(row, p.stateCol(c.Node)+k, 1)
		row++
	}
}

func (c StateConstraint) String() string {
	return fmt.Sprintf("state constraint on node %d %v", c.Node, c.Values)
}

// ContinuityConstraint requires the end of segment Segment to match the next node on the masked
// components. The corrector adds one on every segment which is not explicitly constrained.
type ContinuityConstraint struct {
	Segment int
	Mask    []bool // nil for all components
}

// Kind implements the Constraint interface.
func (c ContinuityConstraint) Kind() ConstraintKind { return ContinuityKind }

func (c ContinuityConstraint) rows(p *problem) int {
	return maskCount(c.Mask)
}

func (c ContinuityConstraint) validate(p *problem) error {
	if c.Segment < 0 || c.Segment >= p.n-1 {
		return &ConstraintArityError{c, fmt.Sprintf("segment %d out of range [0, %d)", c.Segment, p.n-1)}
	}
	if err := checkMask(c, c.Mask); err != nil {
		return err
	}
	return nil
}

func (c ContinuityConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	i := c.Segment
	seg := it.segs[i]
	next := it.states[i+1]
	for k := 0; k < 6; k++ {
		if !masked(c.Mask, k) {
			continue
		}
		F[row] = seg.final[k] - next[k]
		for j := 0; j < 6; j++ {
			J.Set(row, p.stateCol(i)+j, seg.stm.At(k, j))
		}
		J.Set(row, p.stateCol(i+1)+k, -1)
		if col := p.tofCol(i); col >= 0 {
			J.Set(row, col, seg.fFinal[k]*p.tofScale())
		}
		if col := p.epochCol(i); col >= 0 {
			// Non autonomous sensitivity of the final state to the initial epoch.
			phiF0 := 0.0
			for j := 0; j < 6; j++ {
				phiF0 += seg.stm.At(k, j) * seg.f0[j]
			}
			J.Set(row, col, seg.fFinal[k]-phiF0)
		}
		row++
	}
}

func (c ContinuityConstraint) String() string {
	return fmt.Sprintf("continuity constraint on segment %d", c.Segment)
}

// MatchConstraint requires two nodes to be equal on the masked components, e.g. for periodicity.
type MatchConstraint struct {
	A, B int
	Mask []bool // nil for all components
}

// Kind implements the Constraint interface.
func (c MatchConstraint) Kind() ConstraintKind { return MatchKind }

func (c MatchConstraint) rows(p *problem) int {
	return maskCount(c.Mask)
}

func (c MatchConstraint) validate(p *problem) error {
	if err := checkNode(c, p, c.A); err != nil {
		return err
	}
	if err := checkNode(c, p, c.B); err != nil {
		return err
	}
	if c.A == c.B {
		return &ConstraintArityError{c, "a node cannot be matched with itself"}
	}
	return checkMask(c, c.Mask)
}

func (c MatchConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	a, b := it.states[c.A], it.states[c.B]
	for k := 0; k < 6; k++ {
		if !masked(c.Mask, k) {
			continue
		}
		F[row] = a[k] - b[k]
		J.Set(row, p.stateCol(c.A)+k, 1)
		J.Set(row, p.stateCol(c.B)+k, -1)
		row++
	}
}

func (c MatchConstraint) String() string {
	return fmt.Sprintf("match constraint between nodes %d and %d", c.A, c.B)
}

// JacobiConstraint targets the Jacobi constant of a node.
type JacobiConstraint struct {
	Node  int
	Value float64
}

// Kind implements the Constraint interface.
func (c JacobiConstraint) Kind() ConstraintKind { return JacobiKind }

func (c JacobiConstraint) rows(p *problem) int { return 1 }

func (c JacobiConstraint) validate(p *problem) error {
	if _, ok := p.model.(Integral); !ok {
		return &ConstraintArityError{c, fmt.Sprintf("%s has no Jacobi constant", p.model.Variant())}
	}
	return checkNode(c, p, c.Node)
}

func (c JacobiConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	integral := p.model.(Integral)
	q := it.states[c.Node]
	F[row] = integral.Jacobi(q) - c.Value
	for j, g := range integral.JacobiGradient(q) {
		J.Set(row, p.stateCol(c.Node)+j, g)
	}
}

func (c JacobiConstraint) String() string {
	return fmt.Sprintf("jacobi constraint C=%.12g on node %d", c.Value, c.Node)
}

// EventConstraint requires the condition of an event to be zero at a node.
type EventConstraint struct {
	Node  int
	Event Event
}

// Kind implements the Constraint interface.
func (c EventConstraint) Kind() ConstraintKind { return EventKind }

func (c EventConstraint) rows(p *problem) int { return 1 }

func (c EventConstraint) validate(p *problem) error {
	if c.Event == nil {
		return &ConstraintArityError{c, "nil event"}
	}
	return checkNode(c, p, c.Node)
}

func (c EventConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	q := joinState(it.states[c.Node], it.extras[c.Node])
	t := it.epochs[c.Node]
	F[row] = c.Event.Condition(t, q, p.model)
	// Extras are not free variables.
	for j, g := range c.Event.Gradient(t, q, p.model)[:6] {
		J.Set(row, p.stateCol(c.Node)+j, g)
	}
}

func (c EventConstraint) String() string {
	return fmt.Sprintf("event constraint %s on node %d", c.Event, c.Node)
}

// TOFConstraint targets the total time of flight. It requires variable times.
type TOFConstraint struct {
	Value float64
}

// Kind implements the Constraint interface.
func (c TOFConstraint) Kind() ConstraintKind { return TOFKind }

func (c TOFConstraint) rows(p *problem) int { return 1 }

func (c TOFConstraint) validate(p *problem) error {
	if !p.varTime {
		return &ConstraintArityError{c, "times of flight are not free variables"}
	}
	if p.n < 2 {
		return &ConstraintArityError{c, "no segment"}
	}
	return nil
}

func (c TOFConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	total := 0.0
	for _, tof := range it.tofs {
		total += tof
	}
	F[row] = total - c.Value
	if p.equalArcTime {
		J.Set(row, p.tofCol(0), 1)
		return
	}
	for i := range it.tofs {
		J.Set(row, p.tofCol(i), 1)
	}
}

func (c TOFConstraint) String() string {
	return fmt.Sprintf("total TOF constraint %.12g", c.Value)
}

// ApseConstraint requires a node to be an apse with respect to a primary, i.e. (r-rP).v = 0.
type ApseConstraint struct {
	Node    int
	Primary int
}

// Kind implements the Constraint interface.
func (c ApseConstraint) Kind() ConstraintKind { return ApseKind }

func (c ApseConstraint) rows(p *problem) int { return 1 }

func (c ApseConstraint) validate(p *problem) error {
	if err := checkNode(c, p, c.Node); err != nil {
		return err
	}
	return checkPrimary(c, p, c.Primary)
}

func (c ApseConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	q := it.states[c.Node]
	rP := p.model.PrimaryPositions(it.epochs[c.Node])[c.Primary]
	col := p.stateCol(c.Node)
	F[row] = 0
	for k := 0; k < 3; k++ {
		F[row] += (q[k] - rP[k]) * q[k+3]
		J.Set(row, col+k, q[k+3])
		J.Set(row, col+k+3, q[k]-rP[k])
	}
}

func (c ApseConstraint) String() string {
	return fmt.Sprintf("apse constraint on node %d w.r.t. primary %d", c.Node, c.Primary)
}

// DistanceConstraint targets the nondimensional distance between a node and a primary.
type DistanceConstraint struct {
	Node     int
	Primary  int
	Distance float64
}

// Kind implements the Constraint interface.
func (c DistanceConstraint) Kind() ConstraintKind { return DistanceKind }

func (c DistanceConstraint) rows(p *problem) int { return 1 }

func (c DistanceConstraint) validate(p *problem) error {
	if err := checkNode(c, p, c.Node); err != nil {
		return err
	}
	if c.Distance <= 0 {
		return &ConstraintArityError{c, "distance must be positive"}
	}
	return checkPrimary(c, p, c.Primary)
}

func (c DistanceConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	q := it.states[c.Node]
	rP := p.model.PrimaryPositions(it.epochs[c.Node])[c.Primary]
	rel := []float64{q[0] - rP[0], q[1] - rP[1], q[2] - rP[2]}
	d := norm(rel)
	F[row] = d - c.Distance
	for k := 0; k < 3; k++ {
		J.Set(row, p.stateCol(c.Node)+k, rel[k]/d)
	}
}

func (c DistanceConstraint) String() string {
	return fmt.Sprintf("distance constraint %.9g from primary %d on node %d", c.Distance, c.Primary, c.Node)
}

// PseudoArclengthConstraint requires the free variables to be at a distance Step from Reference
// along Tangent: (X-Reference).Tangent = Step.
type PseudoArclengthConstraint struct {
	Reference []float64
	Tangent   []float64
	Step      float64
}

// Kind implements the Constraint interface.
func (c PseudoArclengthConstraint) Kind() ConstraintKind { return PseudoArclengthKind }

func (c PseudoArclengthConstraint) rows(p *problem) int { return 1 }

func (c PseudoArclengthConstraint) validate(p *problem) error {
	if len(c.Reference) != p.nFree || len(c.Tangent) != p.nFree {
		return &ConstraintArityError{c, fmt.Sprintf("reference of length %d and tangent of length %d for %d free variables", len(c.Reference), len(c.Tangent), p.nFree)}
	}
	if floats.Norm(c.Tangent, 2) == 0 {
		return &ConstraintArityError{c, "zero tangent"}
	}
	return nil
}

func (c PseudoArclengthConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	F[row] = -c.Step
	for j, x := range it.X {
		F[row] += (x - c.Reference[j]) * c.Tangent[j]
		J.Set(row, j, c.Tangent[j])
	}
}

func (c PseudoArclengthConstraint) String() string {
	return fmt.Sprintf("pseudo-arclength constraint (ds=%g)", c.Step)
}

// DeltaVConstraint targets the sum of the velocity discontinuities of all the segments whose
// continuity constraint leaves a velocity component free.
type DeltaVConstraint struct {
	Value float64 // Nondimensional
}

// Kind implements the Constraint interface.
func (c DeltaVConstraint) Kind() ConstraintKind { return DeltaVKind }

func (c DeltaVConstraint) rows(p *problem) int { return 1 }

func (c DeltaVConstraint) validate(p *problem) error {
	if c.Value < 0 || math.IsNaN(c.Value) {
		return &ConstraintArityError{c, fmt.Sprintf("invalid delta-v %g", c.Value)}
	}
	return nil
}

// burns returns the segments ending with a velocity discontinuity.
func (c DeltaVConstraint) burns(p *problem) (segs []int) {
	for i, cc := range p.continuity {
		if !masked(cc.Mask, 3) || !masked(cc.Mask, 4) || !masked(cc.Mask, 5) {
			segs = append(segs, i)
		}
	}
	return
}

func (c DeltaVConstraint) evaluate(p *problem, it *iterate, F []float64, J *mat.Dense, row int) {
	add := func(col int, v float64) {
		J.Set(row, col, J.At(row, col)+v)
	}
	F[row] = -c.Value
	for _, i := range c.burns(p) {
		seg := it.segs[i]
		dv := make([]float64, 3)
		for k := range dv {
			dv[k] = it.states[i+1][3+k] - seg.final[3+k]
		}
		mag := norm(dv)
		F[row] += mag
		if mag == 0 {
			continue
		}
		floats.Scale(1/mag, dv)
		for k, u := range dv {
			add(p.stateCol(i+1)+3+k, u)
			for j := 0; j < 6; j++ {
				add(p.stateCol(i)+j, -u*seg.stm.At(3+k, j))
			}
			if col := p.tofCol(i); col >= 0 {
				add(col, -u*seg.fFinal[3+k]*p.tofScale())
			}
			if col := p.epochCol(i); col >= 0 {
				phiF0 := 0.0
				for j := 0; j < 6; j++ {
					phiF0 += seg.stm.At(3+k, j) * seg.f0[j]
				}
				add(col, -u*(seg.fFinal[3+k]-phiF0))
			}
		}
	}
}

func (c DeltaVConstraint) String() string {
	return fmt.Sprintf("total delta-v of %g", c.Value)
}
