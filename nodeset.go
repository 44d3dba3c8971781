package astrohelion

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// NodeDistribution defines how nodes are spread along a trajectory.
type NodeDistribution uint8

const (
	// DistroTime spaces the nodes equally in time.
	DistroTime NodeDistribution = iota + 1
	// DistroArclength spaces the nodes equally in position arc length.
	DistroArclength
)

func (d NodeDistribution) String() string {
	switch d {
	case DistroTime:
		return "time"
	case DistroArclength:
		return "arclength"
	}
	panic("cannot stringify unknown node distribution")
}

// Node is one discretization point of a trajectory.
type Node struct {
	Index  int
	State  []float64 // Position and velocity
	Epoch  float64   // Nondimensional time of the node
	TOF    float64   // Time of flight to the next node, zero for the last node
	Extras []float64 // Model specific scalars
}

func (n Node) clone() Node {
	n.State = append([]float64(nil), n.State...)
	n.Extras = append([]float64(nil), n.Extras...)
	return n
}

// Nodeset is an ordered set of nodes in a given model.
type Nodeset struct {
	model Model
	nodes []Node
}

// NewNodeset returns a new nodeset after checking that the node indexes are contiguous from zero
// and that the states are consistent with the model. Missing extras default to the model's initial extras.
func NewNodeset(m Model, nodes []Node) (*Nodeset, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("a nodeset needs at least one node")
	}
	ns := &Nodeset{model: m, nodes: make([]Node, len(nodes))}
	for i, n := range nodes {
		if n.Index != i {
			return nil, fmt.Errorf("node %d has index %d", i, n.Index)
		}
		if len(n.State) != 6 {
			return nil, fmt.Errorf("node %d has %d states", i, len(n.State))
		}
		if n.Extras == nil {
			n.Extras = m.InitialExtras()
		}
		if len(n.Extras) != m.ExtraDim() {
			return nil, fmt.Errorf("node %d has %d extras, %s expects %d", i, len(n.Extras), m.Variant(), m.ExtraDim())
		}
		if i == len(nodes)-1 && n.TOF != 0 {
			return nil, fmt.Errorf("last node has a time of flight of %g", n.TOF)
		}
		if !finite(n.State) || !finite(n.Extras) || math.IsNaN(n.TOF) || math.IsNaN(n.Epoch) {
			return nil, fmt.Errorf("node %d is not finite", i)
		}
		ns.nodes[i] = n.clone()
	}
	return ns, nil
}

// Model returns the model of this nodeset.
func (ns *Nodeset) Model() Model {
	return ns.model
}

// Len returns the number of nodes.
func (ns *Nodeset) Len() int {
	return len(ns.nodes)
}

// Node returns a copy of node i. Negative indexes count from the end.
func (ns *Nodeset) Node(i int) Node {
	if i < 0 {
		i += len(ns.nodes)
	}
	return ns.nodes[i].clone()
}

// Nodes returns a copy of all the nodes.
func (ns *Nodeset) Nodes() []Node {
	nodes := make([]Node, len(ns.nodes))
	for i, n := range ns.nodes {
		nodes[i] = n.clone()
	}
	return nodes
}

// TOFs returns the time of flight of each segment.
func (ns *Nodeset) TOFs() []float64 {
	tofs := make([]float64, len(ns.nodes)-1)
	for i := range tofs {
		tofs[i] = ns.nodes[i].TOF
	}
	return tofs
}

// TotalTOF returns the sum of the times of flight.
func (ns *Nodeset) TotalTOF() (tof float64) {
	for _, n := range ns.nodes {
		tof += n.TOF
	}
	return
}

func (ns *Nodeset) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s nodeset of %d nodes (TOF=%.9g)", ns.model.Variant(), len(ns.nodes), ns.TotalTOF())
	for _, n := range ns.nodes {
		fmt.Fprintf(&b, "\n  #%d t=%.9g %+.9f tof=%.9g", n.Index, n.Epoch, n.State, n.TOF)
	}
	return b.String()
}

// FromTrajectory splits a trajectory into n nodes spaced in time or in arc length. Each node state is
// obtained by propagating from the preceding trajectory sample, using the provided propagator settings.
func FromTrajectory(tr *Trajectory, n int, distro NodeDistribution, conf PropagatorConfig) (*Nodeset, error) {
	if n < 2 {
		return nil, fmt.Errorf("cannot split a trajectory into %d nodes", n)
	}
	if tr.Len() < 2 {
		return nil, fmt.Errorf("cannot split a trajectory of %d samples", tr.Len())
	}
	times := tr.Times()
	t0, tf := times[0], times[len(times)-1]
	epochs := make([]float64, n)
	switch distro {
	case DistroTime:
		for k := range epochs {
			epochs[k] = t0 + float64(k)*(tf-t0)/float64(n-1)
		}
	case DistroArclength:
		s := tr.ArcLengths()
		total := s[len(s)-1]
		if total == 0 {
			return nil, fmt.Errorf("trajectory has a zero arc length")
		}
		for k := range epochs {
			target := float64(k) * total / float64(n-1)
			i := sort.SearchFloat64s(s, target)
			switch {
			case i == 0:
				epochs[k] = times[0]
			case i >= len(s):
				epochs[k] = tf
			default:
				// Linear interpolation of the time within the sample interval.
				frac := (target - s[i-1]) / (s[i] - s[i-1])
				epochs[k] = times[i-1] + frac*(times[i]-times[i-1])
			}
		}
	default:
		return nil, fmt.Errorf("unknown node distribution %d", distro)
	}
	epochs[0], epochs[n-1] = t0, tf

	conf.WithoutSTM = true
	conf.IgnoreCrash = true
	conf.Events = nil
	prop := NewPropagator(tr.Model(), conf)
	dir := 1.0
	if tf < t0 {
		dir = -1
	}
	nodes := make([]Node, n)
	for k, t := range epochs {
		// Last sample at or before t along the direction of motion.
		i := sort.Search(len(times), func(j int) bool { return dir*(times[j]-t) > 0 }) - 1
		if i < 0 {
			i = 0
		}
		var state, extras []float64
		if times[i] == t {
			state, extras = tr.State(i), tr.Extras(i)
		} else {
			seg, err := prop.Restart(tr, i, t-times[i])
			if err != nil {
				return nil, fmt.Errorf("node %d: %s", k, err)
			}
			state, extras = seg.State(-1), seg.Extras(-1)
		}
		nodes[k] = Node{Index: k, State: state, Epoch: t, Extras: extras}
		if k > 0 {
			nodes[k-1].TOF = t - epochs[k-1]
		}
	}
	return NewNodeset(tr.Model(), nodes)
}

// FromInitialConditions propagates the initial conditions for tof and splits the result into n nodes.
func FromInitialConditions(m Model, ic []float64, t0, tof float64, n int, distro NodeDistribution, conf PropagatorConfig) (*Nodeset, error) {
	conf.WithoutSTM = true
	conf.IgnoreCrash = true
	conf.Events = nil
	tr, err := Propagate(ic, t0, tof, m, conf)
	if err != nil {
		return nil, err
	}
	return FromTrajectory(tr, n, distro, conf)
}

// Save writes the nodeset to the provided field writer.
func (ns *Nodeset) Save(w FieldWriter) error {
	var states, extras, tofs, epochs []float64
	for _, n := range ns.nodes {
		states = append(states, n.State...)
		extras = append(extras, n.Extras...)
		tofs = append(tofs, n.TOF)
		epochs = append(epochs, n.Epoch)
	}
	for name, data := range map[string][]float64{FieldState: states, FieldExtras: extras, FieldTOF: tofs, FieldEpoch: epochs} {
		if err := w.WriteField(name, data); err != nil {
			return fmt.Errorf("writing %s: %s", name, err)
		}
	}
	return saveSystem(w, ns.model.System())
}

// LoadNodeset reads a nodeset from the provided field reader.
func LoadNodeset(r FieldReader, m Model) (*Nodeset, error) {
	if err := checkSystem(r, m.System()); err != nil {
		return nil, err
	}
	fields := make(map[string][]float64)
	for _, name := range []string{FieldState, FieldExtras, FieldTOF, FieldEpoch} {
		data, err := r.ReadField(name)
		if err != nil {
			return nil, err
		}
		fields[name] = data
	}
	n := len(fields[FieldTOF])
	nx := m.ExtraDim()
	if len(fields[FieldState]) != 6*n || len(fields[FieldExtras]) != nx*n || len(fields[FieldEpoch]) != n {
		return nil, fmt.Errorf("inconsistent nodeset fields for %d nodes", n)
	}
	nodes := make([]Node, n)
	for i := range nodes {
		nodes[i] = Node{
			Index:  i,
			State:  fields[FieldState][6*i : 6*i+6],
			Epoch:  fields[FieldEpoch][i],
			TOF:    fields[FieldTOF][i],
			Extras: fields[FieldExtras][nx*i : nx*(i+1)],
		}
	}
	return NewNodeset(m, nodes)
}
