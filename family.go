package astrohelion

import (
	"context"
	"errors"
	"fmt"
	"math"

	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/floats"
)

// FamilyParameter defines the continuation parameter of a family.
type FamilyParameter uint8

const (
	ParamX FamilyParameter = iota
	ParamY
	ParamZ
	ParamVX
	ParamVY
	ParamVZ
	ParamJacobi
	ParamPeriod
	ParamThrust // Thrust force in N
	ParamAngle  // Fixed pointing angle in radians
)

func (p FamilyParameter) String() string {
	switch p {
	case ParamX:
		return "x"
	case ParamY:
		return "y"
	case ParamZ:
		return "z"
	case ParamVX:
		return "vx"
	case ParamVY:
		return "vy"
	case ParamVZ:
		return "vz"
	case ParamJacobi:
		return "jacobi"
	case ParamPeriod:
		return "period"
	case ParamThrust:
		return "thrust"
	case ParamAngle:
		return "angle"
	}
	panic("cannot stringify unknown family parameter")
}

// FamilyParameterFromString returns the family parameter from its name.
func FamilyParameterFromString(name string) (FamilyParameter, error) {
	for p := ParamX; p <= ParamAngle; p++ {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown family parameter '%s'", name)
}

// isSystemParameter returns whether the parameter changes the system rather than the solution.
func (p FamilyParameter) isSystemParameter() bool {
	return p == ParamThrust || p == ParamAngle
}

// Termination is the reason why a continuation stopped.
type Termination uint8

const (
	MaxMembersReached Termination = iota + 1
	StepUnderflow
	RepeatedDivergence
	Cancelled
)

func (t Termination) String() string {
	switch t {
	case MaxMembersReached:
		return "maximum number of members reached"
	case StepUnderflow:
		return "step size underflow"
	case RepeatedDivergence:
		return "repeated divergence at the minimum step"
	case Cancelled:
		return "cancelled"
	}
	panic("cannot stringify unknown termination")
}

// FamilyMember is a converged periodic orbit of a family.
type FamilyMember struct {
	IC          []float64 // Initial position and velocity
	TOF         float64   // Period
	Jacobi      float64
	Param       float64 // Value of the continuation parameter
	Eigenvalues []complex128
	Stability   []float64 // Stability index of each reciprocal pair
	XWidth      float64
	YWidth      float64
	ZWidth      float64
	Nodeset     *Nodeset
	System      *System

	free []float64
}

// Family is the outcome of a continuation.
type Family struct {
	Parameter   FamilyParameter
	Members     []FamilyMember
	Termination Termination
}

// ContinuationConfig holds the settings of a family continuation.
type ContinuationConfig struct {
	Parameter       FamilyParameter
	Step            float64 // Initial signed step of the parameter
	MinStep         float64 // Smallest step magnitude
	MaxStep         float64 // Largest step magnitude
	MaxMembers      int     // Number of members, the seed included
	GrowAfter       int     // Number of consecutive successes before doubling the step
	MinStepRetries  int     // Attempts at the minimum step before terminating, zero to terminate on underflow
	PseudoArclength bool    // Predict with the secant of the last two members
	Corrector       CorrectorConfig
	Logger          kitlog.Logger
}

// DefaultContinuationConfig returns a natural parameter continuation configuration.
func DefaultContinuationConfig(param FamilyParameter, step float64) ContinuationConfig {
	return ContinuationConfig{
		Parameter:      param,
		Step:           step,
		MinStep:        math.Abs(step) / 64,
		MaxStep:        math.Abs(step) * 8,
		MaxMembers:     20,
		GrowAfter:      3,
		MinStepRetries: 2,
		Corrector:      DefaultCorrectorConfig(),
	}
}

type continuationState uint8

const (
	contSeed continuationState = iota + 1
	contStepping
	contTerminated
)

// Continuation computes a family of periodic orbits from a seed, one member at a time.
type Continuation struct {
	model  Model
	conf   ContinuationConfig
	logger kitlog.Logger
	state  continuationState

	members      []FamilyMember
	step         float64
	successes    int
	failuresAtMn int
	termination  Termination
}

// NewContinuation returns a new continuation in the provided model.
func NewContinuation(m Model, conf ContinuationConfig) (*Continuation, error) {
	if conf.Step == 0 {
		return nil, errors.New("continuation step must be non zero")
	}
	if conf.MinStep <= 0 || conf.MinStep > math.Abs(conf.Step) {
		conf.MinStep = math.Abs(conf.Step) / 64
	}
	if conf.MaxStep < math.Abs(conf.Step) {
		conf.MaxStep = math.Abs(conf.Step)
	}
	if conf.MaxMembers < 1 {
		conf.MaxMembers = 1
	}
	if conf.GrowAfter <= 0 {
		conf.GrowAfter = 3
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger("continuation")
	}
	// Every member is a periodic orbit spanned by equal segments.
	conf.Corrector.EqualArcTime = true
	conf.Corrector.VarTime = true
	conf.Corrector.VarEpoch = false
	if conf.Corrector.Logger == nil {
		conf.Corrector.Logger = conf.Logger
	}
	if err := checkParameter(m, conf.Parameter); err != nil {
		return nil, err
	}
	return &Continuation{model: m, conf: conf, logger: conf.Logger, state: contSeed, step: conf.Step}, nil
}

func checkParameter(m Model, p FamilyParameter) error {
	switch p {
	case ParamJacobi:
		if i, ok := m.(Integral); !ok || !i.Conserved() {
			return fmt.Errorf("%w: %s does not conserve the Jacobi constant", ErrUnsupportedParameter, m.Variant())
		}
	case ParamThrust, ParamAngle:
		lt, ok := m.(*LowThrust)
		if !ok {
			return fmt.Errorf("%w: %s has no thrust", ErrUnsupportedParameter, m.Variant())
		}
		if p == ParamAngle && lt.Thrust().Law != FixedAngle {
			return fmt.Errorf("%w: %s pointing has no angle", ErrUnsupportedParameter, lt.Thrust().Law)
		}
	case ParamX, ParamY, ParamZ, ParamVX, ParamVY, ParamVZ, ParamPeriod:
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedParameter, p)
	}
	return nil
}

// PeriodicConstraints returns the constraints of a periodic orbit discretized in n nodes: the first
// node lies on the XZ plane and the last node matches the first one. When the model conserves its
// Jacobi constant, the y velocity is left out of the match since it follows from the other components.
func PeriodicConstraints(m Model, n int) []Constraint {
	nan := math.NaN()
	mask := []bool{true, true, true, true, true, true}
	if i, ok := m.(Integral); ok && i.Conserved() {
		mask[4] = false
	}
	return []Constraint{
		StateConstraint{Node: 0, Values: []float64{nan, 0, nan, nan, nan, nan}},
		MatchConstraint{A: n - 1, B: 0, Mask: mask},
	}
}

// Members returns the members computed so far.
func (c *Continuation) Members() []FamilyMember {
	return append([]FamilyMember(nil), c.members...)
}

// Run computes the family from a seed nodeset spanning one period. The members are computed
// sequentially; the context is checked between members.
func (c *Continuation) Run(ctx context.Context, seed *Nodeset) (*Family, error) {
	for c.state != contTerminated {
		if err := ctx.Err(); err != nil {
			c.terminate(Cancelled)
			return c.family(), err
		}
		switch c.state {
		case contSeed:
			member, err := c.correctSeed(ctx, seed)
			if err != nil {
				c.state = contTerminated
				return nil, fmt.Errorf("seed correction: %w", err)
			}
			c.accept(member)
			c.state = contStepping
		case contStepping:
			if len(c.members) >= c.conf.MaxMembers {
				c.terminate(MaxMembersReached)
				break
			}
			c.stepOnce(ctx)
		}
	}
	return c.family(), nil
}

func (c *Continuation) family() *Family {
	return &Family{Parameter: c.conf.Parameter, Members: c.Members(), Termination: c.termination}
}

func (c *Continuation) terminate(t Termination) {
	c.termination = t
	c.state = contTerminated
	c.logger.Log("level", "info", "parameter", c.conf.Parameter, "members", len(c.members), "termination", t)
}

func (c *Continuation) accept(member FamilyMember) {
	c.members = append(c.members, member)
	familyMembers.WithLabelValues(c.conf.Parameter.String()).Inc()
	c.logger.Log("level", "info", "member", len(c.members)-1, "param", member.Param, "jacobi", member.Jacobi, "period", member.TOF)
}

// correctSeed corrects the seed with the parameter held at its seed value.
func (c *Continuation) correctSeed(ctx context.Context, seed *Nodeset) (FamilyMember, error) {
	m := seed.Model()
	cons := PeriodicConstraints(m, seed.Len())
	if hold := c.holdConstraint(m, seed, c.parameterOf(m, seed)); hold != nil {
		cons = append(cons, hold)
	}
	return c.correct(ctx, m, seed, cons)
}

// holdConstraint returns the constraint fixing the parameter at value, or nil when the periodic
// constraints alone determine the solution.
func (c *Continuation) holdConstraint(m Model, ns *Nodeset, value float64) Constraint {
	switch p := c.conf.Parameter; p {
	case ParamX, ParamY, ParamZ, ParamVX, ParamVY, ParamVZ:
		values := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()}
		values[p] = value
		return StateConstraint{Node: 0, Values: values}
	case ParamJacobi:
		return JacobiConstraint{Node: 0, Value: value}
	case ParamPeriod:
		return TOFConstraint{Value: value}
	}
	// System parameters: the orbit is isolated unless the Jacobi constant is an integral.
	if i, ok := m.(Integral); ok && i.Conserved() {
		return JacobiConstraint{Node: 0, Value: i.Jacobi(ns.nodes[0].State)}
	}
	return nil
}

// parameterOf returns the value of the continuation parameter for a nodeset.
func (c *Continuation) parameterOf(m Model, ns *Nodeset) float64 {
	switch p := c.conf.Parameter; p {
	case ParamX, ParamY, ParamZ, ParamVX, ParamVY, ParamVZ:
		return ns.nodes[0].State[p]
	case ParamJacobi:
		return JacobiConstant(m.System().Mu, ns.nodes[0].State)
	case ParamPeriod:
		return ns.TotalTOF()
	case ParamThrust:
		return m.System().Thrust.Force
	case ParamAngle:
		return m.System().Thrust.Angle
	}
	panic("unreachable")
}

func (c *Continuation) correct(ctx context.Context, m Model, guess *Nodeset, cons []Constraint) (FamilyMember, error) {
	res, err := NewCorrector(m, c.conf.Corrector).Correct(ctx, guess, cons)
	if err != nil {
		return FamilyMember{}, err
	}
	return c.member(m, res)
}

// member builds a family member from a converged periodic correction.
func (c *Continuation) member(m Model, res *CorrectionResult) (FamilyMember, error) {
	ns := res.Nodeset
	mono, err := res.Monodromy()
	if err != nil {
		return FamilyMember{}, err
	}
	pairs, err := Eigen(mono)
	if err != nil {
		return FamilyMember{}, &NumericalError{Op: "monodromy eigenvalues", Reason: err.Error(), Err: err}
	}
	member := FamilyMember{
		IC:        ns.Node(0).State,
		TOF:       ns.TotalTOF(),
		Jacobi:    JacobiConstant(m.System().Mu, ns.nodes[0].State),
		Param:     c.parameterOf(m, ns),
		Stability: StabilityIndices(pairs),
		Nodeset:   ns,
		System:    m.System(),
		free:      res.FreeVars,
	}
	for _, p := range pairs {
		member.Eigenvalues = append(member.Eigenvalues, p.Value)
	}
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, seg := range res.Segments {
		sLo, sHi := seg.Bounds()
		for i := 0; i < 3; i++ {
			lo[i] = math.Min(lo[i], sLo[i])
			hi[i] = math.Max(hi[i], sHi[i])
		}
	}
	member.XWidth, member.YWidth, member.ZWidth = hi[0]-lo[0], hi[1]-lo[1], hi[2]-lo[2]
	return member, nil
}

// stepOnce predicts and corrects the next member, and adapts the step.
func (c *Continuation) stepOnce(ctx context.Context) {
	last := c.members[len(c.members)-1]
	usePAC := c.conf.PseudoArclength && !c.conf.Parameter.isSystemParameter() && len(c.members) >= 2 && c.failuresAtMn == 0
	var member FamilyMember
	var err error
	if usePAC {
		member, err = c.pseudoArclengthStep(ctx, last)
	} else {
		member, err = c.naturalStep(ctx, last)
	}
	if err == nil {
		c.accept(member)
		c.failuresAtMn = 0
		c.successes++
		if c.successes >= c.conf.GrowAfter {
			c.successes = 0
			c.step = math.Copysign(math.Min(2*math.Abs(c.step), c.conf.MaxStep), c.step)
		}
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.terminate(Cancelled)
		return
	}
	c.logger.Log("level", "warning", "step", c.step, "pseudoArclength", usePAC, "err", err)
	c.successes = 0
	if math.Abs(c.step) <= c.conf.MinStep {
		c.failuresAtMn++
		if c.failuresAtMn >= c.conf.MinStepRetries {
			c.terminate(RepeatedDivergence)
		}
		return
	}
	half := c.step / 2
	if math.Abs(half) < c.conf.MinStep {
		if c.conf.MinStepRetries == 0 {
			c.terminate(StepUnderflow)
			return
		}
		half = math.Copysign(c.conf.MinStep, c.step)
	}
	c.step = half
}

// naturalStep increments the parameter from the last member and corrects with the parameter held.
func (c *Continuation) naturalStep(ctx context.Context, last FamilyMember) (FamilyMember, error) {
	m := last.Nodeset.Model()
	guess := last.Nodeset
	target := last.Param + c.step
	switch p := c.conf.Parameter; p {
	case ParamX, ParamY, ParamZ, ParamVX, ParamVY, ParamVZ:
		nodes := guess.Nodes()
		nodes[0].State[p] = target
		var err error
		if guess, err = NewNodeset(m, nodes); err != nil {
			return FamilyMember{}, err
		}
	case ParamThrust, ParamAngle:
		tp := *m.System().Thrust
		if p == ParamThrust {
			tp.Force = target
		} else {
			tp.Angle = target
		}
		var err error
		if m, err = NewModel(m.Variant(), m.System().WithThrust(tp)); err != nil {
			return FamilyMember{}, err
		}
		if guess, err = NewNodeset(m, guess.Nodes()); err != nil {
			return FamilyMember{}, err
		}
	}
	cons := PeriodicConstraints(m, guess.Len())
	if hold := c.holdConstraint(m, guess, target); hold != nil {
		cons = append(cons, hold)
	}
	return c.correct(ctx, m, guess, cons)
}

// pseudoArclengthStep predicts along the secant of the last two members and corrects with the
// pseudo-arclength constraint in place of the parameter constraint.
func (c *Continuation) pseudoArclengthStep(ctx context.Context, last FamilyMember) (FamilyMember, error) {
	prev := c.members[len(c.members)-2]
	m := last.Nodeset.Model()
	if len(prev.free) != len(last.free) {
		return c.naturalStep(ctx, last)
	}
	tangent := make([]float64, len(last.free))
	floats.SubTo(tangent, last.free, prev.free)
	secant := floats.Norm(tangent, 2)
	if secant == 0 {
		return FamilyMember{}, errors.New("identical consecutive members")
	}
	floats.Scale(1/secant, tangent)
	ds := secant
	if dp := math.Abs(last.Param - prev.Param); dp > 0 {
		ds = secant * math.Abs(c.step) / dp
	}
	X := make([]float64, len(last.free))
	floats.AddScaledTo(X, last.free, ds, tangent)

	conf := c.conf.Corrector
	p, err := newProblem(m, last.Nodeset.Len(), conf, nil)
	if err != nil {
		return FamilyMember{}, err
	}
	guess := p.nodeset(p.unpack(X, p.seed(last.Nodeset)))
	cons := append(PeriodicConstraints(m, guess.Len()), PseudoArclengthConstraint{Reference: last.free, Tangent: tangent, Step: ds})
	return c.correct(ctx, m, guess, cons)
}
