package astrohelion

import (
	"errors"
	"fmt"
	"math"
	"sort"

	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/mat"

	"github.com/adcox/astrohelion-sub001/integrator"
)

// EventRefinement defines how a bracketed event is refined.
type EventRefinement uint8

const (
	// RefineBracketed uses a safeguarded Newton/secant iteration on the event time.
	RefineBracketed EventRefinement = iota
	// RefineShooting uses the event finding mode of the multiple shooting corrector.
	RefineShooting
)

// PropagatorConfig holds the settings of a propagator. Zero values are replaced by the defaults.
type PropagatorConfig struct {
	AbsTol, RelTol float64
	InitialStep    float64 // Initial step guess
	MinStep        float64
	MaxSteps       uint64
	WithoutSTM     bool // Do not propagate the state transition matrix
	Events         []Event
	IgnoreCrash    bool // Do not check for crashes into the primaries
	Refinement     EventRefinement
	EventTol       float64 // Tolerance on the event condition, defaults to the absolute tolerance
	Logger         kitlog.Logger
}

// DefaultPropagatorConfig returns the configured propagator defaults.
func DefaultPropagatorConfig() PropagatorConfig {
	conf := ahConfig()
	return PropagatorConfig{
		AbsTol:      conf.AbsTol,
		RelTol:      conf.RelTol,
		InitialStep: conf.StepGuess,
		MinStep:     1e-14,
		MaxSteps:    conf.MaxSteps,
		EventTol:    conf.AbsTol,
	}
}

func (c PropagatorConfig) withDefaults() PropagatorConfig {
	d := DefaultPropagatorConfig()
	if c.AbsTol <= 0 {
		c.AbsTol = d.AbsTol
	}
	if c.RelTol <= 0 {
		c.RelTol = d.RelTol
	}
	if c.InitialStep <= 0 {
		c.InitialStep = d.InitialStep
	}
	if c.MinStep <= 0 {
		c.MinStep = d.MinStep
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.EventTol <= 0 {
		c.EventTol = c.AbsTol
	}
	if c.Logger == nil {
		c.Logger = defaultLogger("propagator")
	}
	return c
}

func (c PropagatorConfig) integratorConfig() integrator.Config {
	return integrator.Config{InitialStep: c.InitialStep, MinStep: c.MinStep, AbsTol: c.AbsTol, RelTol: c.RelTol, MaxSteps: c.MaxSteps}
}

// Propagator integrates the equations of motion of a model, optionally with the STM, and detects events.
// A Propagator is read-only after creation and may be used concurrently.
type Propagator struct {
	model Model
	conf  PropagatorConfig
}

// NewPropagator returns a new propagator of the provided model.
func NewPropagator(m Model, conf PropagatorConfig) *Propagator {
	return &Propagator{model: m, conf: conf.withDefaults()}
}

// Model returns the model of this propagator.
func (p *Propagator) Model() Model {
	return p.model
}

// Config returns the configuration of this propagator.
func (p *Propagator) Config() PropagatorConfig {
	return p.conf
}

// Propagate integrates the initial conditions for the time of flight tof (negative for a backward
// propagation) starting at t0.
func Propagate(ic []float64, t0, tof float64, m Model, conf PropagatorConfig) (*Trajectory, error) {
	return NewPropagator(m, conf).Integrate(ic, t0, tof)
}

// augment returns the full propagated state from initial conditions which are either the six
// states, the six states and the extras, or the complete augmented state.
func (p *Propagator) augment(ic []float64) ([]float64, error) {
	withSTM := !p.conf.WithoutSTM
	nx := p.model.ExtraDim()
	var core, extras, stm []float64
	switch len(ic) {
	case 6:
		core, extras = ic, p.model.InitialExtras()
	case 6 + nx:
		core, extras = ic[:6], ic[6:]
	case 6 + stmLen + nx:
		core, stm, extras = ic[:6], ic[6:6+stmLen], ic[6+stmLen:]
	default:
		return nil, fmt.Errorf("initial conditions of length %d incompatible with %s", len(ic), p.model.Variant())
	}
	y := append([]float64(nil), core...)
	if withSTM {
		if stm == nil {
			stm = identity6()
		}
		y = append(y, stm...)
	}
	y = append(y, extras...)
	if !finite(y) {
		return nil, &NumericalError{Op: "propagate", Reason: "non finite initial conditions"}
	}
	return y, nil
}

// Integrate propagates the initial conditions ic from t0 for tof.
func (p *Propagator) Integrate(ic []float64, t0, tof float64) (*Trajectory, error) {
	y0, err := p.augment(ic)
	if err != nil {
		return nil, err
	}
	events := append([]Event(nil), p.conf.Events...)
	if !p.conf.IgnoreCrash {
		events = append(events, crashEvents(p.model)...)
	}
	run := p.newRun(y0, t0, events, true)
	steps, _, err := integrator.NewDOPRI45(t0, t0+tof, p.conf.integratorConfig(), run).Solve()
	integrationSteps.Add(float64(steps))
	variant := p.model.Variant().String()
	if err == nil {
		err = run.err
	}
	if err != nil {
		propagationsTotal.WithLabelValues(variant, "failure").Inc()
		p.conf.Logger.Log("level", "error", "t0", t0, "tof", tof, "err", err)
		var stepErr *integrator.StepError
		if errors.As(err, &stepErr) {
			return nil, &NumericalError{Op: "propagate", T: stepErr.T, Reason: "could not meet the integration tolerance", Err: err}
		}
		return nil, err
	}
	tr := run.b.freeze()
	outcome := "complete"
	if tr.EndedByEvent() {
		outcome = "event"
		if tr.Crashed() {
			outcome = "crash"
			p.conf.Logger.Log("level", "warning", "crash", tr.end.Event, "t", tr.end.T)
		}
	}
	propagationsTotal.WithLabelValues(variant, outcome).Inc()
	return tr, nil
}

// Restart propagates from sample i of a trajectory for tof. The STM of the new trajectory continues
// the one of the provided trajectory.
func (p *Propagator) Restart(tr *Trajectory, i int, tof float64) (*Trajectory, error) {
	ic := tr.Augmented(i)
	if tr.HasSTM() && p.conf.WithoutSTM {
		core, extras := splitAugmented(tr.Model(), ic, true)
		ic = joinState(core, extras)
	}
	return p.Integrate(ic, tr.Time(i), tof)
}

// flow propagates an augmented state from t0 to tf without any event and returns the final state.
func (p *Propagator) flow(y0 []float64, t0, tf float64) ([]float64, error) {
	run := p.newRun(y0, t0, nil, false)
	steps, _, err := integrator.NewDOPRI45(t0, tf, p.conf.integratorConfig(), run).Solve()
	integrationSteps.Add(float64(steps))
	if err != nil {
		return nil, &NumericalError{Op: "propagate", T: t0, Reason: "could not meet the integration tolerance", Err: err}
	}
	return run.y, nil
}

// FindEvent propagates from t0 for at most window until the first occurrence of the event.
// An EventNotFoundError is returned if the event does not occur.
func (p *Propagator) FindEvent(ic []float64, t0, window float64, ev Event) (EventOccurrence, *Trajectory, error) {
	conf := p.conf
	conf.Events = []Event{stopOn{ev}}
	tr, err := NewPropagator(p.model, conf).Integrate(ic, t0, window)
	if err != nil {
		return EventOccurrence{}, nil, err
	}
	if end := tr.EndEvent(); end != nil {
		if s, ok := end.Event.(stopOn); ok {
			end.Event = s.Event
			return *end, tr, nil
		}
	}
	return EventOccurrence{}, tr, &EventNotFoundError{Event: ev.String(), T0: t0, TF: tr.Time(-1)}
}

// stopOn makes any event terminal.
type stopOn struct {
	Event
}

func (s stopOn) Terminal() bool {
	return true
}

func eventKind(ev Event) string {
	if s, ok := ev.(stopOn); ok {
		ev = s.Event
	}
	return fmt.Sprintf("%T", ev)
}

// LocateEvent refines the time of an event known to occur between ta and tb, starting from the
// augmented state ya at ta. The returned state is the full augmented state at the event.
func (p *Propagator) LocateEvent(ya []float64, ta, tb float64, ev Event) (EventOccurrence, error) {
	y0, err := p.augment(ya)
	if err != nil {
		return EventOccurrence{}, err
	}
	var o EventOccurrence
	if p.conf.Refinement == RefineShooting {
		o, err = p.locateByShooting(y0, ta, tb, ev)
		if err != nil {
			p.conf.Logger.Log("level", "warning", "event", ev, "msg", "shooting refinement failed, using bracketed refinement", "err", err)
			o, err = p.locateBracketed(y0, ta, tb, ev)
		}
	} else {
		o, err = p.locateBracketed(y0, ta, tb, ev)
	}
	if err == nil {
		eventsLocated.WithLabelValues(eventKind(ev)).Inc()
	}
	return o, err
}

// locateBracketed refines the event time with Newton steps on the event condition, falling back on
// the secant or the bisection of the bracket when the Newton step leaves it.
func (p *Propagator) locateBracketed(ya []float64, ta, tb float64, ev Event) (EventOccurrence, error) {
	cond := func(t float64, y []float64) float64 {
		core, extras := splitAugmented(p.model, y, !p.conf.WithoutSTM)
		return ev.Condition(t, joinState(core, extras), p.model)
	}
	lo, hi := ta, tb
	glo := cond(ta, ya)
	yb, err := p.flow(ya, ta, tb)
	if err != nil {
		return EventOccurrence{}, err
	}
	ghi := cond(tb, yb)
	if glo == 0 {
		return EventOccurrence{Event: ev, T: ta, State: append([]float64(nil), ya...)}, nil
	}
	if ghi == 0 {
		return EventOccurrence{Event: ev, T: tb, State: yb}, nil
	}
	if math.Signbit(glo) == math.Signbit(ghi) {
		return EventOccurrence{}, &EventNotFoundError{Event: ev.String(), T0: ta, TF: tb}
	}

	t := lo - glo*(hi-lo)/(ghi-glo)
	dq := make([]float64, stateDim(p.model))
	for iter := 0; iter < 100; iter++ {
		y, err := p.flow(ya, ta, t)
		if err != nil {
			return EventOccurrence{}, err
		}
		g := cond(t, y)
		if math.Abs(g) <= p.conf.EventTol || math.Abs(hi-lo) <= 4e-16*math.Max(1, math.Abs(t)) {
			return EventOccurrence{Event: ev, T: t, State: y}, nil
		}
		if math.Signbit(g) == math.Signbit(glo) {
			lo, glo = t, g
		} else {
			hi, ghi = t, g
		}
		core, extras := splitAugmented(p.model, y, !p.conf.WithoutSTM)
		q := joinState(core, extras)
		p.model.StateDerivative(t, q, dq)
		grad := ev.Gradient(t, q, p.model)
		gdot := 0.0
		for i := 0; i < len(grad) && i < len(dq); i++ {
			gdot += grad[i] * dq[i]
		}
		next := math.NaN()
		if gdot != 0 {
			next = t - g/gdot
		}
		if !(next > math.Min(lo, hi) && next < math.Max(lo, hi)) {
			next = lo - glo*(hi-lo)/(ghi-glo)
			if !(next > math.Min(lo, hi) && next < math.Max(lo, hi)) {
				next = 0.5 * (lo + hi)
			}
		}
		t = next
	}
	return EventOccurrence{}, &NumericalError{Op: "locate event", T: t, Reason: "event refinement did not converge"}
}

// locateByShooting refines the event with the corrector, fixing the state at ta.
func (p *Propagator) locateByShooting(ya []float64, ta, tb float64, ev Event) (EventOccurrence, error) {
	withSTM := !p.conf.WithoutSTM
	core, extras := splitAugmented(p.model, ya, withSTM)
	conf := DefaultCorrectorConfig()
	conf.Propagator = p.conf
	conf.Propagator.Events = nil
	conf.Propagator.Refinement = RefineBracketed
	conf.Tol = math.Max(p.conf.EventTol, 1e-12)
	conf.Logger = p.conf.Logger
	tf, yf, err := NewCorrector(p.model, conf).FindEvent(joinState(core, extras), ta, tb-ta, ev)
	if err != nil {
		return EventOccurrence{}, err
	}
	state := append([]float64(nil), yf[:6]...)
	if withSTM {
		// The corrector STM starts at ta.
		var phi mat.Dense
		phi.Mul(stmDense(yf[6:]), stmDense(ya[6:]))
		state = append(state, phi.RawMatrix().Data...)
	}
	state = append(state, yf[6+stmLen:]...)
	return EventOccurrence{Event: ev, T: tf, State: state}, nil
}

// propRun is the Integrable of one propagation.
type propRun struct {
	p       *Propagator
	withSTM bool
	y       []float64
	t       float64
	b       *trajectoryBuilder
	events  []Event
	gPrev   []float64
	stop    bool
	err     error
	q, dq   []float64
	A       *mat.Dense
	out     []float64
}

func (p *Propagator) newRun(y0 []float64, t0 float64, events []Event, record bool) *propRun {
	r := &propRun{
		p:       p,
		withSTM: !p.conf.WithoutSTM,
		y:       append([]float64(nil), y0...),
		t:       t0,
		events:  events,
		q:       make([]float64, stateDim(p.model)),
		dq:      make([]float64, stateDim(p.model)),
		A:       mat.NewDense(6, 6, nil),
	}
	if record {
		r.b = newTrajectoryBuilder(p.model, r.withSTM)
		r.b.append(t0, y0)
	}
	r.gPrev = make([]float64, len(events))
	for i, ev := range events {
		r.gPrev[i] = ev.Condition(t0, r.state(y0), p.model)
	}
	return r
}

// state returns the non augmented state [core][extras] of y in a scratch buffer.
func (r *propRun) state(y []float64) []float64 {
	copy(r.q[:6], y[:6])
	if r.withSTM {
		copy(r.q[6:], y[6+stmLen:])
	} else {
		copy(r.q[6:], y[6:])
	}
	return r.q
}

// GetState implements the Integrable interface.
func (r *propRun) GetState() []float64 {
	return r.y
}

// Func implements the Integrable interface.
func (r *propRun) Func(t float64, y []float64) []float64 {
	m := r.p.model
	q := r.state(y)
	m.StateDerivative(t, q, r.dq)
	out := make([]float64, len(y))
	copy(out[:6], r.dq[:6])
	if !r.withSTM {
		copy(out[6:], r.dq[6:])
		return out
	}
	copy(out[6+stmLen:], r.dq[6:])
	m.Variational(t, q, r.A)
	a := r.A.RawMatrix().Data
	phi := y[6 : 6+stmLen]
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			s := 0.0
			for k := 0; k < 6; k++ {
				s += a[i*6+k] * phi[k*6+j]
			}
			out[6+i*6+j] = s
		}
	}
	return out
}

// SetState implements the Integrable interface.
func (r *propRun) SetState(t float64, y []float64) {
	ta, ya := r.t, r.y
	r.t, r.y = t, y
	if len(r.events) == 0 {
		if r.b != nil {
			r.b.append(t, y)
		}
		return
	}
	var found []EventOccurrence
	g := make([]float64, len(r.events))
	q := r.state(y)
	for i, ev := range r.events {
		g[i] = ev.Condition(t, q, r.p.model)
	}
	for i, ev := range r.events {
		if !triggered(ev, r.gPrev[i], g[i]) {
			continue
		}
		o, err := r.p.LocateEvent(ya, ta, t, ev)
		if err != nil {
			r.err = err
			return
		}
		found = append(found, o)
	}
	copy(r.gPrev, g)
	dir := 1.0
	if t < ta {
		dir = -1
	}
	sort.Slice(found, func(i, j int) bool { return dir*found[i].T < dir*found[j].T })
	for _, o := range found {
		r.b.append(o.T, o.State)
		r.b.addEvent(o)
		r.p.conf.Logger.Log("level", "debug", "event", o.Event, "t", o.T)
		if o.Event.Terminal() {
			r.b.endWith(o)
			r.t, r.y = o.T, o.State
			r.stop = true
			return
		}
	}
	r.b.append(t, y)
}

// Stop implements the Integrable interface.
func (r *propRun) Stop(t float64) bool {
	return r.stop || r.err != nil
}
