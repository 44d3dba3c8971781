package astrohelion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Trajectory is the ordered set of samples of one continuous propagation.
// It is immutable: every accessor returns copies.
type Trajectory struct {
	model   Model
	withSTM bool
	times   []float64
	states  [][]float64 // Augmented states: [6 core][36 STM if withSTM][extras]
	events  []EventOccurrence
	end     *EventOccurrence
}

// trajectoryBuilder accumulates the samples of a trajectory during a propagation.
type trajectoryBuilder struct {
	tr *Trajectory
}

func newTrajectoryBuilder(m Model, withSTM bool) *trajectoryBuilder {
	return &trajectoryBuilder{&Trajectory{model: m, withSTM: withSTM}}
}

func (b *trajectoryBuilder) append(t float64, y []float64) {
	b.tr.times = append(b.tr.times, t)
	b.tr.states = append(b.tr.states, append([]float64(nil), y...))
}

func (b *trajectoryBuilder) addEvent(o EventOccurrence) {
	b.tr.events = append(b.tr.events, o)
}

func (b *trajectoryBuilder) endWith(o EventOccurrence) {
	b.tr.end = &o
}

// freeze returns the trajectory; the builder must not be used afterward.
func (b *trajectoryBuilder) freeze() *Trajectory {
	tr := b.tr
	b.tr = nil
	return tr
}

func (tr *Trajectory) index(i int) int {
	if i < 0 {
		i += len(tr.times)
	}
	if i < 0 || i >= len(tr.times) {
		panic(fmt.Errorf("sample %d out of range [0, %d)", i, len(tr.times)))
	}
	return i
}

// Model returns the model used to generate this trajectory.
func (tr *Trajectory) Model() Model {
	return tr.model
}

// HasSTM returns whether the STM was propagated.
func (tr *Trajectory) HasSTM() bool {
	return tr.withSTM
}

// Len returns the number of samples.
func (tr *Trajectory) Len() int {
	return len(tr.times)
}

// Time returns the time of sample i. Negative indexes count from the end.
func (tr *Trajectory) Time(i int) float64 {
	return tr.times[tr.index(i)]
}

// Times returns the times of all the samples.
func (tr *Trajectory) Times() []float64 {
	return append([]float64(nil), tr.times...)
}

// TOF returns the time of flight from the first to the last sample.
func (tr *Trajectory) TOF() float64 {
	return tr.times[len(tr.times)-1] - tr.times[0]
}

// State returns the position and velocity of sample i.
func (tr *Trajectory) State(i int) []float64 {
	return append([]float64(nil), tr.states[tr.index(i)][:6]...)
}

// States returns the position and velocity of all the samples.
func (tr *Trajectory) States() [][]float64 {
	states := make([][]float64, len(tr.states))
	for i, s := range tr.states {
		states[i] = append([]float64(nil), s[:6]...)
	}
	return states
}

// Augmented returns the full propagated state of sample i.
func (tr *Trajectory) Augmented(i int) []float64 {
	return append([]float64(nil), tr.states[tr.index(i)]...)
}

// STM returns the state transition matrix from the first sample to sample i, or nil if the STM was
// not propagated. For a restarted propagation, it is relative to the initial state of the restart.
func (tr *Trajectory) STM(i int) *mat.Dense {
	if !tr.withSTM {
		return nil
	}
	return stmDense(tr.states[tr.index(i)][6:])
}

// Extras returns the model specific scalars of sample i.
func (tr *Trajectory) Extras(i int) []float64 {
	_, extras := splitAugmented(tr.model, tr.states[tr.index(i)], tr.withSTM)
	return append([]float64(nil), extras...)
}

// Jacobi returns the Jacobi constant of sample i.
func (tr *Trajectory) Jacobi(i int) float64 {
	return JacobiConstant(tr.model.System().Mu, tr.states[tr.index(i)])
}

// Events returns all the events which occurred during the propagation.
func (tr *Trajectory) Events() []EventOccurrence {
	return append([]EventOccurrence(nil), tr.events...)
}

// EndedByEvent returns whether the propagation was stopped by a terminal event.
func (tr *Trajectory) EndedByEvent() bool {
	return tr.end != nil
}

// EndEvent returns the event which stopped the propagation, or nil.
func (tr *Trajectory) EndEvent() *EventOccurrence {
	if tr.end == nil {
		return nil
	}
	o := *tr.end
	return &o
}

// Crashed returns whether the propagation ended with a crash into a primary.
func (tr *Trajectory) Crashed() bool {
	if tr.end == nil {
		return false
	}
	_, ok := tr.end.Event.(CrashEvent)
	return ok
}

// ArcLengths returns the cumulative position arc length at each sample.
func (tr *Trajectory) ArcLengths() []float64 {
	s := make([]float64, len(tr.states))
	for i := 1; i < len(tr.states); i++ {
		a, b := tr.states[i-1], tr.states[i]
		s[i] = s[i-1] + math.Sqrt((b[0]-a[0])*(b[0]-a[0])+(b[1]-a[1])*(b[1]-a[1])+(b[2]-a[2])*(b[2]-a[2]))
	}
	return s
}

// Bounds returns the minimum and maximum of each position component over the samples.
func (tr *Trajectory) Bounds() (lo, hi [3]float64) {
	for i := 0; i < 3; i++ {
		lo[i] = math.Inf(1)
		hi[i] = math.Inf(-1)
	}
	for _, s := range tr.states {
		for i := 0; i < 3; i++ {
			lo[i] = math.Min(lo[i], s[i])
			hi[i] = math.Max(hi[i], s[i])
		}
	}
	return
}

func (tr *Trajectory) String() string {
	str := fmt.Sprintf("%s trajectory: %d samples over t=[%g, %g]", tr.model.Variant(), len(tr.times), tr.times[0], tr.times[len(tr.times)-1])
	if tr.end != nil {
		str += " ended by " + tr.end.String()
	}
	return str
}

// Save writes the trajectory to the provided field writer.
func (tr *Trajectory) Save(w FieldWriter) error {
	n := len(tr.times)
	core := make([]float64, 0, 6*n)
	stm := make([]float64, 0, stmLen*n)
	extras := make([]float64, 0, tr.model.ExtraDim()*n)
	for i, y := range tr.states {
		core = append(core, y[:6]...)
		if tr.withSTM {
			stm = append(stm, y[6:6+stmLen]...)
		}
		extras = append(extras, tr.Extras(i)...)
	}
	fields := []struct {
		name string
		data []float64
	}{
		{FieldTime, tr.times},
		{FieldState, core},
		{FieldSTM, stm},
		{FieldExtras, extras},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.data); err != nil {
			return fmt.Errorf("writing %s: %s", f.name, err)
		}
	}
	return saveSystem(w, tr.model.System())
}

// LoadTrajectory reads a trajectory from the provided field reader. The model must match the
// system parameters which were saved with the trajectory.
func LoadTrajectory(r FieldReader, m Model) (*Trajectory, error) {
	if err := checkSystem(r, m.System()); err != nil {
		return nil, err
	}
	times, err := r.ReadField(FieldTime)
	if err != nil {
		return nil, err
	}
	core, err := r.ReadField(FieldState)
	if err != nil {
		return nil, err
	}
	stm, err := r.ReadField(FieldSTM)
	if err != nil {
		return nil, err
	}
	extras, err := r.ReadField(FieldExtras)
	if err != nil {
		return nil, err
	}
	n := len(times)
	nx := m.ExtraDim()
	withSTM := len(stm) > 0
	if len(core) != 6*n || (withSTM && len(stm) != stmLen*n) || len(extras) != nx*n {
		return nil, fmt.Errorf("inconsistent trajectory fields for %d samples", n)
	}
	if n == 0 {
		return nil, fmt.Errorf("empty trajectory")
	}
	b := newTrajectoryBuilder(m, withSTM)
	for i := 0; i < n; i++ {
		y := append([]float64(nil), core[6*i:6*i+6]...)
		if withSTM {
			y = append(y, stm[stmLen*i:stmLen*(i+1)]...)
		}
		y = append(y, extras[nx*i:nx*(i+1)]...)
		b.append(times[i], y)
	}
	return b.freeze(), nil
}
