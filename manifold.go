package astrohelion

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// ManifoldDirection defines the stable or unstable invariant manifold.
type ManifoldDirection uint8

const (
	Stable ManifoldDirection = iota + 1
	Unstable
)

func (d ManifoldDirection) String() string {
	switch d {
	case Stable:
		return "stable"
	case Unstable:
		return "unstable"
	}
	panic("cannot stringify unknown manifold direction")
}

// ManifoldConfig holds the settings of the manifold computation.
type ManifoldConfig struct {
	Direction  ManifoldDirection
	Branch     int     // +1 or -1 for one side of the orbit, 0 for both
	StepOff    float64 // Step off distance in km, 20 km by default
	Count      int     // Number of departure points along the orbit
	TOF        float64 // Magnitude of the propagation time of each arc
	Propagator PropagatorConfig
}

// Manifolds propagates the invariant manifold arcs of the periodic orbit starting at ic with the
// provided period. The eigenvector of the monodromy matrix is transported along the orbit by the STM.
// Stable arcs are propagated backward and unstable arcs forward.
func Manifolds(m Model, ic []float64, period float64, conf ManifoldConfig) ([]*Trajectory, error) {
	if conf.Count < 1 {
		return nil, fmt.Errorf("invalid number of manifold arcs %d", conf.Count)
	}
	if conf.Direction != Stable && conf.Direction != Unstable {
		return nil, errors.New("the manifold direction must be stable or unstable")
	}
	if conf.StepOff <= 0 {
		conf.StepOff = 20
	}
	if conf.TOF <= 0 {
		conf.TOF = 2 * period
	}
	orbitConf := conf.Propagator
	orbitConf.WithoutSTM = false
	orbitConf.Events = nil
	orbitConf.IgnoreCrash = true
	prop := NewPropagator(m, orbitConf)
	orbit, err := prop.Integrate(ic, 0, period)
	if err != nil {
		return nil, err
	}
	pairs, err := Eigen(orbit.STM(-1))
	if err != nil {
		return nil, err
	}
	mode, err := manifoldMode(pairs, conf.Direction)
	if err != nil {
		return nil, err
	}
	v0 := mat.NewVecDense(6, realVector(mode.Vector))

	branches := []float64{1, -1}
	switch conf.Branch {
	case 1:
		branches = branches[:1]
	case -1:
		branches = branches[1:]
	}
	tof := conf.TOF
	if conf.Direction == Stable {
		tof = -tof
	}
	arcConf := conf.Propagator
	arcConf.WithoutSTM = true
	arcProp := NewPropagator(m, arcConf)
	d := conf.StepOff / m.System().CharL

	var arcs []*Trajectory
	for k := 0; k < conf.Count; k++ {
		t := float64(k) * period / float64(conf.Count)
		aug := orbit.Augmented(0)
		if t > 0 {
			seg, err := prop.Integrate(ic, 0, t)
			if err != nil {
				return nil, err
			}
			aug = seg.Augmented(-1)
		}
		var v mat.VecDense
		v.MulVec(stmDense(aug[6:6+stmLen]), v0)
		scale := d / norm([]float64{v.AtVec(0), v.AtVec(1), v.AtVec(2)})
		core, extras := splitAugmented(m, aug, true)
		for _, b := range branches {
			q := joinState(core, extras)
			for i := 0; i < 6; i++ {
				q[i] += b * scale * v.AtVec(i)
			}
			arc, err := arcProp.Integrate(q, t, tof)
			if err != nil {
				return nil, fmt.Errorf("manifold arc %d: %w", k, err)
			}
			arcs = append(arcs, arc)
		}
	}
	return arcs, nil
}

// manifoldMode picks the eigenpair spanning the requested manifold out of reciprocal pairs: the first
// pair holds the largest eigenvalue and its reciprocal.
func manifoldMode(pairs []EigenPair, dir ManifoldDirection) (EigenPair, error) {
	if len(pairs) < 2 {
		return EigenPair{}, errors.New("not enough eigenvalues")
	}
	mode := pairs[0]
	if dir == Stable {
		mode = pairs[1]
	}
	mag := cmplx.Abs(mode.Value)
	if math.Abs(imag(mode.Value)) > 1e-8 || (dir == Unstable && mag <= 1) || (dir == Stable && mag >= 1) {
		return EigenPair{}, fmt.Errorf("the orbit has no real %s mode", dir)
	}
	return mode, nil
}
