package astrohelion

import (
	"context"
	"errors"
	"fmt"
	"math"

	kitlog "github.com/go-kit/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CorrectionStatus is the outcome of a correction.
type CorrectionStatus uint8

const (
	// Converged means that all the constraints are met within the tolerance.
	Converged CorrectionStatus = iota + 1
	// Diverged means that the iteration cap was reached or the step damping was exhausted.
	Diverged
	// Errored means that a numerical, constraint or impact error stopped the correction.
	Errored
)

func (s CorrectionStatus) String() string {
	switch s {
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	case Errored:
		return "errored"
	}
	panic("cannot stringify unknown correction status")
}

// CorrectorConfig holds the settings of a multiple shooting corrector. Zero values use the configured defaults.
type CorrectorConfig struct {
	Tol           float64 // Convergence tolerance on max|F|
	MaxIterations int
	MaxHalvings   int     // Maximum number of step halvings within one iteration
	MaxCondition  float64 // Largest condition number of the Jacobian
	VarTime       bool    // Times of flight are free variables
	EqualArcTime  bool    // All segments share the same time of flight, implies VarTime
	VarEpoch      bool    // Node epochs are free variables
	IgnoreCrash   bool    // Do not fail when a segment crashes into a primary
	Workers       int     // Number of segments propagated in parallel
	Propagator    PropagatorConfig
	Logger        kitlog.Logger
}

// DefaultCorrectorConfig returns the configured corrector defaults, with variable times of flight.
func DefaultCorrectorConfig() CorrectorConfig {
	conf := ahConfig()
	return CorrectorConfig{
		Tol:           conf.CorrectTol,
		MaxIterations: conf.MaxIterations,
		MaxHalvings:   conf.MaxHalvings,
		MaxCondition:  conf.MaxCondition,
		VarTime:       true,
		Workers:       conf.Workers,
	}
}

// CorrectionResult holds the outcome of a correction and its diagnostics.
type CorrectionResult struct {
	Status      CorrectionStatus
	Nodeset     *Nodeset      // Corrected nodeset, or the last iterate
	Iterations  int           // Number of constraint evaluations, the initial guess included
	Residual    float64       // Norm of the constraint vector
	MaxResidual float64       // Largest absolute constraint
	FreeVars    []float64     // Free variable vector of the last iterate
	Segments    []*Trajectory // Propagated segments of the last iterate
	Err         error         // Cause of a divergence or an error
}

func (r *CorrectionResult) String() string {
	str := fmt.Sprintf("%s after %d iterations (|F|=%.3e)", r.Status, r.Iterations, r.Residual)
	if r.Err != nil {
		str += ": " + r.Err.Error()
	}
	return str
}

// Monodromy returns the product of the segment STMs, i.e. the STM from the first to the last node.
func (r *CorrectionResult) Monodromy() (*mat.Dense, error) {
	if len(r.Segments) == 0 {
		return nil, errors.New("no propagated segment")
	}
	phi := stmDense(identity6())
	for _, seg := range r.Segments {
		if !seg.HasSTM() {
			return nil, errors.New("segments were propagated without STM")
		}
		var next mat.Dense
		next.Mul(seg.STM(-1), phi)
		phi = &next
	}
	return phi, nil
}

// Corrector solves multiple shooting problems by Newton iterations.
type Corrector struct {
	model  Model
	conf   CorrectorConfig
	prop   *Propagator
	logger kitlog.Logger
}

// NewCorrector returns a new corrector in the provided model.
func NewCorrector(m Model, conf CorrectorConfig) *Corrector {
	d := DefaultCorrectorConfig()
	if conf.Tol <= 0 {
		conf.Tol = d.Tol
	}
	if conf.MaxIterations <= 0 {
		conf.MaxIterations = d.MaxIterations
	}
	if conf.MaxHalvings <= 0 {
		conf.MaxHalvings = d.MaxHalvings
	}
	if conf.MaxCondition <= 0 {
		conf.MaxCondition = d.MaxCondition
	}
	if conf.Workers <= 0 {
		conf.Workers = d.Workers
	}
	if conf.EqualArcTime {
		conf.VarTime = true
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger("corrector")
	}
	pc := conf.Propagator.withDefaults()
	pc.AbsTol = math.Min(pc.AbsTol, math.Max(conf.Tol/1000, 1e-15))
	pc.WithoutSTM = false
	pc.Events = nil
	pc.IgnoreCrash = conf.IgnoreCrash
	return &Corrector{model: m, conf: conf, prop: NewPropagator(m, pc), logger: conf.Logger}
}

// problem is the layout of the free variables and of the constraint rows of one correction.
type problem struct {
	model        Model
	n            int
	varTime      bool
	equalArcTime bool
	varEpoch     bool
	nFree        int
	tofOffset    int
	epochOffset  int

	continuity []ContinuityConstraint // One per segment
	contRow    []int
	epochRow   int
	user       []Constraint
	userRow    []int
	nRows      int
}

func newProblem(m Model, n int, conf CorrectorConfig, cons []Constraint) (*problem, error) {
	p := &problem{model: m, n: n, varTime: conf.VarTime && n > 1, varEpoch: conf.VarEpoch}
	p.equalArcTime = p.varTime && conf.EqualArcTime
	p.nFree = 6 * n
	p.tofOffset = p.nFree
	if p.varTime {
		if p.equalArcTime {
			p.nFree++
		} else {
			p.nFree += n - 1
		}
	}
	p.epochOffset = p.nFree
	if p.varEpoch {
		p.nFree += n
	}

	p.continuity = make([]ContinuityConstraint, n-1)
	explicit := make([]bool, n-1)
	for i := range p.continuity {
		p.continuity[i] = ContinuityConstraint{Segment: i}
	}
	for _, c := range cons {
		if c == nil {
			return nil, &ConstraintArityError{Reason: "nil constraint"}
		}
		if err := c.validate(p); err != nil {
			return nil, err
		}
		if cc, ok := c.(ContinuityConstraint); ok {
			if explicit[cc.Segment] {
				return nil, &ConstraintArityError{c, "segment already constrained"}
			}
			explicit[cc.Segment] = true
			p.continuity[cc.Segment] = cc
			continue
		}
		p.user = append(p.user, c)
	}

	for _, c := range p.user {
		if dv, ok := c.(DeltaVConstraint); ok && len(dv.burns(p)) == 0 {
			return nil, &ConstraintArityError{c, "no segment with a velocity discontinuity"}
		}
	}

	p.contRow = make([]int, n-1)
	for i, c := range p.continuity {
		p.contRow[i] = p.nRows
		p.nRows += c.rows(p)
	}
	p.epochRow = p.nRows
	if p.varEpoch {
		p.nRows += n - 1
	}
	p.userRow = make([]int, len(p.user))
	for i, c := range p.user {
		p.userRow[i] = p.nRows
		p.nRows += c.rows(p)
	}
	if p.nRows == 0 {
		return nil, &ConstraintArityError{Reason: "no constraint to solve"}
	}
	return p, nil
}

func (p *problem) stateCol(node int) int {
	return 6 * node
}

// tofCol returns the column of the time of flight of a segment, or -1 for fixed times.
func (p *problem) tofCol(seg int) int {
	switch {
	case !p.varTime:
		return -1
	case p.equalArcTime:
		return p.tofOffset
	}
	return p.tofOffset + seg
}

// tofScale is the partial of a segment time of flight with respect to its free variable.
func (p *problem) tofScale() float64 {
	if p.equalArcTime {
		return 1 / float64(p.n-1)
	}
	return 1
}

// epochCol returns the column of the epoch of a node, or -1 for fixed epochs.
func (p *problem) epochCol(node int) int {
	if !p.varEpoch {
		return -1
	}
	return p.epochOffset + node
}

// segment is the propagation of one node for its time of flight.
type segment struct {
	tr     *Trajectory
	final  []float64 // Final position and velocity
	extras []float64 // Final extras
	stm    *mat.Dense
	f0     []float64 // Initial state derivative
	fFinal []float64 // Final state derivative
}

// iterate is one value of the free variables and its evaluation.
type iterate struct {
	X      []float64
	states [][]float64
	extras [][]float64
	tofs   []float64
	epochs []float64
	segs   []*segment
}

// pack returns the free variable vector of a nodeset.
func (p *problem) pack(ns *Nodeset) []float64 {
	X := make([]float64, p.nFree)
	for i, n := range ns.nodes {
		copy(X[p.stateCol(i):], n.State)
		if col := p.epochCol(i); col >= 0 {
			X[col] = n.Epoch
		}
	}
	if p.varTime {
		if p.equalArcTime {
			X[p.tofOffset] = ns.TotalTOF()
		} else {
			for i := 0; i < p.n-1; i++ {
				X[p.tofCol(i)] = ns.nodes[i].TOF
			}
		}
	}
	return X
}

// seed returns the iterate holding the fixed data of a nodeset.
func (p *problem) seed(ns *Nodeset) *iterate {
	it := &iterate{}
	for _, n := range ns.nodes {
		it.extras = append(it.extras, n.Extras)
		it.epochs = append(it.epochs, n.Epoch)
	}
	it.tofs = ns.TOFs()
	return it
}

// unpack returns the iterate of X. Fixed data and the extras come from the previous iterate.
func (p *problem) unpack(X []float64, prev *iterate) *iterate {
	it := &iterate{
		X:      X,
		states: make([][]float64, p.n),
		extras: make([][]float64, p.n),
		tofs:   make([]float64, p.n-1),
		epochs: make([]float64, p.n),
		segs:   make([]*segment, p.n-1),
	}
	for i := range it.states {
		it.states[i] = X[p.stateCol(i) : p.stateCol(i)+6]
		it.extras[i] = prev.extras[i]
		if i > 0 && prev.segs != nil && prev.segs[i-1] != nil {
			// Extras are not free: they follow the propagation of the previous segment.
			it.extras[i] = prev.segs[i-1].extras
		}
	}
	for i := range it.tofs {
		switch {
		case p.equalArcTime:
			it.tofs[i] = X[p.tofOffset] / float64(p.n-1)
		case p.varTime:
			it.tofs[i] = X[p.tofCol(i)]
		default:
			it.tofs[i] = prev.tofs[i]
		}
	}
	it.epochs[0] = prev.epochs[0]
	for i := range it.epochs {
		if p.varEpoch {
			it.epochs[i] = X[p.epochCol(i)]
		} else if i > 0 {
			it.epochs[i] = it.epochs[i-1] + it.tofs[i-1]
		}
	}
	return it
}

// nodeset returns the nodeset of an iterate.
func (p *problem) nodeset(it *iterate) *Nodeset {
	nodes := make([]Node, p.n)
	for i := range nodes {
		nodes[i] = Node{Index: i, State: it.states[i], Epoch: it.epochs[i], Extras: it.extras[i]}
		if i > 0 && it.segs[i-1] != nil {
			nodes[i].Extras = it.segs[i-1].extras
		}
		if i < p.n-1 {
			nodes[i].TOF = it.tofs[i]
		}
	}
	ns, err := NewNodeset(p.model, nodes)
	if err != nil {
		panic(fmt.Errorf("corrector produced an invalid nodeset: %s", err))
	}
	return ns
}

// propagateSegment propagates node i of the iterate for its time of flight.
func (c *Corrector) propagateSegment(i int, it *iterate) (*segment, error) {
	tr, err := c.prop.Integrate(joinState(it.states[i], it.extras[i]), it.epochs[i], it.tofs[i])
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", i, err)
	}
	if tr.Crashed() {
		end := tr.EndEvent()
		return nil, &ImpactError{Segment: i, Body: end.Event.(CrashEvent).Body, T: end.T}
	}
	seg := &segment{tr: tr, final: tr.State(-1), extras: tr.Extras(-1), stm: tr.STM(-1)}
	dq := make([]float64, stateDim(c.model))
	c.model.StateDerivative(tr.Time(0), joinState(it.states[i], it.extras[i]), dq)
	seg.f0 = append([]float64(nil), dq[:6]...)
	c.model.StateDerivative(tr.Time(-1), joinState(seg.final, seg.extras), dq)
	seg.fFinal = append([]float64(nil), dq[:6]...)
	return seg, nil
}

// evaluate propagates all the segments of X in parallel and assembles the constraint vector and its Jacobian.
func (c *Corrector) evaluate(ctx context.Context, p *problem, X []float64, prev *iterate) (*iterate, []float64, *mat.Dense, error) {
	it := p.unpack(X, prev)
	F := make([]float64, p.nRows)
	J := mat.NewDense(p.nRows, p.nFree, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.conf.Workers)
	for i := 0; i < p.n-1; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seg, err := c.propagateSegment(i, it)
			if err != nil {
				return err
			}
			it.segs[i] = seg
			// Each segment owns its continuity rows.
			p.continuity[i].evaluate(p, it, F, J, p.contRow[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	if p.varEpoch {
		for i := 0; i < p.n-1; i++ {
			row := p.epochRow + i
			F[row] = it.epochs[i+1] - it.epochs[i] - it.tofs[i]
			J.Set(row, p.epochCol(i+1), 1)
			J.Set(row, p.epochCol(i), -1)
			if col := p.tofCol(i); col >= 0 {
				J.Set(row, col, -p.tofScale())
			}
		}
	}
	for k, con := range p.user {
		con.evaluate(p, it, F, J, p.userRow[k])
	}
	if !finite(F) {
		return nil, nil, nil, &NumericalError{Op: "evaluate constraints", Reason: "non finite constraint"}
	}
	return it, F, J, nil
}

// solve returns the Newton update -J⁺F: an exact solve when J is square, the minimum norm or least
// squares solution otherwise.
func (c *Corrector) solve(J *mat.Dense, F []float64) ([]float64, error) {
	r, cols := J.Dims()
	b := mat.NewVecDense(r, F)
	dx := mat.NewVecDense(cols, nil)
	if r == cols {
		var lu mat.LU
		lu.Factorize(J)
		if cond := lu.Cond(); math.IsNaN(cond) || cond > c.conf.MaxCondition {
			return nil, &NumericalError{Op: "solve", Cond: cond, Reason: "Jacobian too poorly conditioned"}
		}
		if err := lu.SolveVecTo(dx, false, b); err != nil {
			return nil, &NumericalError{Op: "solve", Reason: "singular Jacobian", Err: err}
		}
	} else {
		var svd mat.SVD
		if ok := svd.Factorize(J, mat.SVDThin); !ok {
			return nil, &NumericalError{Op: "solve", Reason: "SVD of the Jacobian failed"}
		}
		s := svd.Values(nil)
		if len(s) == 0 || s[0] == 0 {
			return nil, &NumericalError{Op: "solve", Reason: "zero Jacobian"}
		}
		if cond := s[0] / s[len(s)-1]; math.IsNaN(cond) || cond > c.conf.MaxCondition {
			return nil, &NumericalError{Op: "solve", Cond: cond, Reason: "Jacobian too poorly conditioned"}
		}
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		utb := mat.NewVecDense(len(s), nil)
		utb.MulVec(u.T(), b)
		for k, sk := range s {
			utb.SetVec(k, utb.AtVec(k)/sk)
		}
		dx.MulVec(&v, utb)
	}
	dX := make([]float64, cols)
	for i := range dX {
		dX[i] = -dx.AtVec(i)
	}
	return dX, nil
}

func (r *CorrectionResult) record(p *problem, it *iterate, F []float64) {
	r.Nodeset = p.nodeset(it)
	r.Residual = floats.Norm(F, 2)
	r.MaxResidual = maxAbs(F)
	r.FreeVars = append([]float64(nil), it.X...)
	r.Segments = make([]*Trajectory, len(it.segs))
	for i, seg := range it.segs {
		r.Segments[i] = seg.tr
	}
}

func (c *Corrector) finish(r *CorrectionResult, status CorrectionStatus, err error) (*CorrectionResult, error) {
	r.Status = status
	r.Err = err
	correctionsTotal.WithLabelValues(status.String()).Inc()
	if r.Iterations > 0 {
		correctionIterations.Observe(float64(r.Iterations))
	}
	if status == Converged {
		c.logger.Log("level", "info", "status", status, "iterations", r.Iterations, "residual", r.MaxResidual)
		return r, nil
	}
	c.logger.Log("level", "warning", "status", status, "iterations", r.Iterations, "err", err)
	return r, err
}

// Correct solves for the nodeset which satisfies the continuity of all its segments and the
// provided constraints. The result is never nil; the error is nil if and only if the correction converged.
func (c *Corrector) Correct(ctx context.Context, ns *Nodeset, cons []Constraint) (*CorrectionResult, error) {
	res := &CorrectionResult{Nodeset: ns}
	p, err := newProblem(c.model, ns.Len(), c.conf, cons)
	if err != nil {
		return c.finish(res, Errored, err)
	}
	X := p.pack(ns)
	it, F, J, err := c.evaluate(ctx, p, X, p.seed(ns))
	if err != nil {
		return c.finish(res, Errored, err)
	}
	for k := 1; ; k++ {
		res.Iterations = k
		res.record(p, it, F)
		c.logger.Log("level", "debug", "iteration", k, "maxF", res.MaxResidual, "normF", res.Residual)
		if res.MaxResidual < c.conf.Tol {
			return c.finish(res, Converged, nil)
		}
		if k >= c.conf.MaxIterations {
			return c.finish(res, Diverged, &DivergenceError{Iterations: k, Residual: res.Residual, Reason: "iteration cap reached"})
		}
		if err := ctx.Err(); err != nil {
			return c.finish(res, Errored, err)
		}
		dX, err := c.solve(J, F)
		if err != nil {
			return c.finish(res, Errored, err)
		}
		// Halve the step until the constraint norm decreases.
		alpha := 1.0
		accepted := false
		var stepErr error
		for h := 0; h <= c.conf.MaxHalvings; h++ {
			Xn := make([]float64, len(X))
			floats.AddScaledTo(Xn, X, alpha, dX)
			itn, Fn, Jn, err := c.evaluate(ctx, p, Xn, it)
			if err == nil && floats.Norm(Fn, 2) < res.Residual {
				X, it, F, J = Xn, itn, Fn, Jn
				accepted = true
				break
			}
			stepErr = err
			alpha /= 2
		}
		if !accepted {
			if stepErr != nil {
				return c.finish(res, Errored, stepErr)
			}
			return c.finish(res, Diverged, &DivergenceError{Iterations: k, Residual: res.Residual, Reason: "step damping exhausted"})
		}
	}
}

// FindEvent locates an event by correcting a two node problem: the first node is fixed at q0 and t0
// and the event condition is targeted on the second one, with a free time of flight starting at
// tofGuess. It returns the time of the event and the full augmented state at the event, including
// the STM from t0 and the extras.
func (c *Corrector) FindEvent(q0 []float64, t0, tofGuess float64, ev Event) (float64, []float64, error) {
	state := append([]float64(nil), q0[:6]...)
	extras := c.model.InitialExtras()
	if len(q0) > 6 {
		extras = append([]float64(nil), q0[6:]...)
	}
	pc := c.prop.Config()
	pc.WithoutSTM = true
	pc.IgnoreCrash = true
	guess, err := NewPropagator(c.model, pc).Integrate(joinState(state, extras), t0, tofGuess)
	if err != nil {
		return 0, nil, err
	}
	ns, err := NewNodeset(c.model, []Node{
		{Index: 0, State: state, Epoch: t0, TOF: tofGuess, Extras: extras},
		{Index: 1, State: guess.State(-1), Epoch: t0 + tofGuess, Extras: guess.Extras(-1)},
	})
	if err != nil {
		return 0, nil, err
	}
	conf := c.conf
	conf.VarTime = true
	conf.EqualArcTime = false
	conf.VarEpoch = false
	res, err := NewCorrector(c.model, conf).Correct(context.Background(), ns, []Constraint{
		FixedState(0, state),
		EventConstraint{Node: 1, Event: ev},
	})
	if err != nil {
		return 0, nil, err
	}
	seg := res.Segments[0]
	return seg.Time(-1), seg.Augmented(-1), nil
}
