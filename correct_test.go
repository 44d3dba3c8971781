package astrohelion

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

func lyapunovNodeset(t *testing.T, m Model, tof float64, n int) *Nodeset {
	conf := DefaultPropagatorConfig()
	conf.AbsTol = 1e-13
	ns, err := FromInitialConditions(m, lyapunovIC, 0, tof, n, DistroTime, conf)
	if err != nil {
		t.Fatal(err)
	}
	return ns
}

func TestCorrectFeasibleGuess(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	ns := lyapunovNodeset(t, m, 1, 3)
	conf := DefaultCorrectorConfig()
	conf.Tol = 1e-9
	before := testutil.ToFloat64(correctionsTotal.WithLabelValues(Converged.String()))
	res, err := NewCorrector(m, conf).Correct(context.Background(), ns, []Constraint{FixedState(0, lyapunovIC)})
	if err != nil {
		t.Fatalf("%s", res)
	}
	if res.Status != Converged || res.Iterations != 1 {
		t.Fatalf("a feasible guess should converge immediately: %s", res)
	}
	if res.MaxResidual >= 1e-9 || len(res.Segments) != 2 {
		t.Fatalf("residual %g with %d segments", res.MaxResidual, len(res.Segments))
	}
	if after := testutil.ToFloat64(correctionsTotal.WithLabelValues(Converged.String())); after != before+1 {
		t.Fatalf("converged corrections went from %f to %f", before, after)
	}
}

func TestCorrectContinuity(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	ns := lyapunovNodeset(t, m, 1.5, 4)
	// Perturb the interior nodes.
	nodes := ns.Nodes()
	nodes[1].State[0] += 1e-4
	nodes[2].State[4] -= 2e-4
	nodes[2].TOF += 1e-3
	guess, err := NewNodeset(m, nodes)
	if err != nil {
		t.Fatal(err)
	}
	for _, conf := range []CorrectorConfig{
		{VarTime: true},
		{VarTime: false},
		{VarTime: true, EqualArcTime: true},
		{VarTime: true, VarEpoch: true},
		{VarTime: true, Workers: 1},
	} {
		conf.Tol = 1e-10
		res, err := NewCorrector(m, conf).Correct(context.Background(), guess, []Constraint{FixedState(0, lyapunovIC)})
		if err != nil {
			t.Fatalf("%+v: %s", conf, err)
		}
		if res.Iterations < 2 {
			t.Fatalf("%+v: a perturbed guess should require Newton iterations", conf)
		}
		// The corrected nodeset is continuous: propagating the first node reaches the last one.
		out := res.Nodeset
		tr, err := Propagate(out.Node(0).State, 0, out.TotalTOF(), m, DefaultPropagatorConfig())
		if err != nil {
			t.Fatal(err)
		}
		if !floats.EqualApprox(tr.State(-1), out.Node(-1).State, 1e-7) {
			t.Fatalf("%+v: corrected nodeset is discontinuous: %v != %v", conf, tr.State(-1), out.Node(-1).State)
		}
		if !conf.VarTime && !scalar.EqualWithinAbs(out.TotalTOF(), guess.TotalTOF(), 1e-15) {
			t.Fatalf("fixed times of flight changed: %f", out.TotalTOF())
		}
		if conf.EqualArcTime {
			tofs := out.TOFs()
			if !scalar.EqualWithinAbs(tofs[0], tofs[2], 1e-14) {
				t.Fatalf("segments should have equal times of flight: %v", tofs)
			}
		}
		if conf.VarEpoch {
			for i := 1; i < out.Len(); i++ {
				if !scalar.EqualWithinAbs(out.Node(i).Epoch, out.Node(i-1).Epoch+out.Node(i-1).TOF, 1e-9) {
					t.Fatalf("epoch of node %d inconsistent with the times of flight", i)
				}
			}
		}
	}
}

func TestCorrectInconsistent(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	ns := lyapunovNodeset(t, m, 1, 3)
	conf := DefaultCorrectorConfig()
	conf.VarTime = false
	conf.IgnoreCrash = true
	conf.MaxIterations = 5
	moved := append([]float64(nil), ns.Node(1).State...)
	moved[0] += 0.05
	res, err := NewCorrector(m, conf).Correct(context.Background(), ns, []Constraint{
		FixedState(0, ns.Node(0).State),
		FixedState(1, moved),
	})
	if res == nil {
		t.Fatal("a result is always returned")
	}
	if res.Status != Diverged {
		t.Fatalf("status %s", res.Status)
	}
	var div *DivergenceError
	if !errors.As(err, &div) {
		t.Fatalf("expected a DivergenceError, got %v", err)
	}
	if res.Err != err || res.Nodeset == nil {
		t.Fatal("the result should hold the last iterate and its error")
	}
}

func TestCorrectArity(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	ns := lyapunovNodeset(t, m, 1, 3)
	nan := math.NaN()
	for _, cons := range [][]Constraint{
		{FixedState(3, lyapunovIC)},
		{StateConstraint{Node: 0, Values: []float64{1, 2}}},
		{StateConstraint{Node: 0, Values: []float64{nan, nan, nan, nan, nan, nan}}},
		{MatchConstraint{A: 0, B: 2, Mask: []bool{true}}},
		{ContinuityConstraint{Segment: 0}, ContinuityConstraint{Segment: 0}},
		{ApseConstraint{Node: 0, Primary: 2}},
		{EventConstraint{Node: 1}},
		{PseudoArclengthConstraint{Reference: []float64{1}, Tangent: []float64{1}, Step: 0.1}},
		{DeltaVConstraint{Value: 1e-3}},
		{DeltaVConstraint{Value: -1}, ContinuityConstraint{Segment: 0, Mask: []bool{true, true, true, false, false, false}}},
		{nil},
	} {
		res, err := NewCorrector(m, DefaultCorrectorConfig()).Correct(context.Background(), ns, cons)
		var arity *ConstraintArityError
		if !errors.As(err, &arity) {
			t.Fatalf("%v: expected a ConstraintArityError, got %v", cons, err)
		}
		if res.Status != Errored || res.Iterations != 0 {
			t.Fatalf("%v: %s", cons, res)
		}
	}
	conf := DefaultCorrectorConfig()
	conf.VarTime = false
	_, err := NewCorrector(m, conf).Correct(context.Background(), ns, []Constraint{TOFConstraint{Value: 1}})
	var arity *ConstraintArityError
	if !errors.As(err, &arity) {
		t.Fatalf("a TOF constraint requires variable times, got %v", err)
	}
}

func TestCorrectCancelled(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	ns := lyapunovNodeset(t, m, 1, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewCorrector(m, DefaultCorrectorConfig()).Correct(ctx, ns, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a cancellation, got %v", err)
	}
	if res.Status != Errored {
		t.Fatalf("status %s", res.Status)
	}
}

func TestCorrectPeriodicMonodromy(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	guess := lyapunovNodeset(t, m, lyapunovPeriod, 4)
	conf := DefaultCorrectorConfig()
	conf.EqualArcTime = true
	conf.Tol = 1e-10
	res, err := NewCorrector(m, conf).Correct(context.Background(), guess, PeriodicConstraints(m, guess.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(res.Nodeset.TotalTOF(), lyapunovPeriod, 1e-6) {
		t.Fatalf("period %.12f", res.Nodeset.TotalTOF())
	}
	mono, err := res.Monodromy()
	if err != nil {
		t.Fatal(err)
	}
	pairs, err := Eigen(mono)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 6 {
		t.Fatalf("%d eigenvalues", len(pairs))
	}
	if cmplx.Abs(pairs[0].Value) < 1000 {
		t.Fatalf("largest eigenvalue %v", pairs[0].Value)
	}
	foundUnit := false
	for k := 0; k < 6; k += 2 {
		if prod := cmplx.Abs(pairs[k].Value * pairs[k+1].Value); !scalar.EqualWithinAbs(prod, 1, 1e-2) {
			t.Fatalf("pair %d: %v × %v = %f", k/2, pairs[k].Value, pairs[k+1].Value, prod)
		}
		for _, p := range pairs[k : k+2] {
			if cmplx.Abs(p.Value-1) < 1e-2 {
				foundUnit = true
			}
		}
	}
	if !foundUnit {
		t.Fatal("a periodic orbit has a unit eigenvalue")
	}
	idx := StabilityIndices(pairs)
	if len(idx) != 3 || idx[0] < 500 {
		t.Fatalf("stability indices %v", idx)
	}
}

func TestCorrectorFindEvent(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	conf := DefaultCorrectorConfig()
	conf.Tol = 1e-10
	tf, yf, err := NewCorrector(m, conf).FindEvent(lyapunovIC, 0, 1.3, NewPlaneEvent(1, 0, -1, false))
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(tf, lyapunovPeriod/2, 1e-7) {
		t.Fatalf("half period %.15f", tf)
	}
	if len(yf) != 6+stmLen || math.Abs(yf[1]) > 1e-9 {
		t.Fatalf("event state %v", yf[:6])
	}
}

func TestEigenReciprocal(t *testing.T) {
	pairs := sortReciprocal([]EigenPair{{Value: 0.5}, {Value: 4}, {Value: 2}, {Value: 0.25}})
	exp := []complex128{4, 0.25, 2, 0.5}
	for i, p := range pairs {
		if p.Value != exp[i] {
			t.Fatalf("position %d: %v != %v", i, p.Value, exp[i])
		}
	}
	if idx := StabilityIndices(pairs); idx[0] != 2.125 || idx[1] != 1.25 {
		t.Fatalf("stability indices %v", idx)
	}
}

func TestCorrectorSolveConditioning(t *testing.T) {
	c := NewCorrector(NewCR3BP(earthMoon(t)), DefaultCorrectorConfig())
	dX, err := c.solve(mat.NewDense(2, 3, []float64{1, 0, 0, 0, 2, 0}), []float64{1, 4})
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(dX, []float64{-1, -2, 0}, 1e-14) {
		t.Fatalf("minimum norm update %v", dX)
	}
	var num *NumericalError
	_, err = c.solve(mat.NewDense(3, 2, []float64{1, 2, 2, 4, 3, 6}), []float64{1, 2, 3})
	if !errors.As(err, &num) {
		t.Fatalf("expected a NumericalError for a rank deficient Jacobian, got %v", err)
	}
	_, err = c.solve(mat.NewDense(2, 3, []float64{1, 1, 0, 1, 1, 0}), []float64{1, 1})
	if !errors.As(err, &num) {
		t.Fatalf("expected a NumericalError for dependent constraints, got %v", err)
	}
}

// burnGuess returns a three node guess with velocity discontinuities at the interior and last nodes.
func burnGuess(t *testing.T, m Model) *Nodeset {
	nodes := lyapunovNodeset(t, m, 1, 3).Nodes()
	nodes[1].State[4] += 5e-3
	nodes[2].State[3] -= 2e-3
	guess, err := NewNodeset(m, nodes)
	if err != nil {
		t.Fatal(err)
	}
	return guess
}

func TestDeltaVPartials(t *testing.T) {
	const h = 1e-6
	m := NewCR3BP(earthMoon(t))
	guess := burnGuess(t, m)
	position := []bool{true, true, true, false, false, false}
	cons := []Constraint{
		ContinuityConstraint{Segment: 0, Mask: position},
		ContinuityConstraint{Segment: 1, Mask: position},
		DeltaVConstraint{Value: 1e-3},
	}
	for _, conf := range []CorrectorConfig{
		{VarTime: true, VarEpoch: true},
		{VarTime: true, EqualArcTime: true},
	} {
		c := NewCorrector(m, conf)
		p, err := newProblem(m, guess.Len(), c.conf, cons)
		if err != nil {
			t.Fatal(err)
		}
		X := p.pack(guess)
		_, F, J, err := c.evaluate(context.Background(), p, X, p.seed(guess))
		if err != nil {
			t.Fatal(err)
		}
		row := p.userRow[0]
		// The first burn alone is 5e-3.
		if F[row] < 4e-3-1e-9 {
			t.Fatalf("%+v: delta-v residual %g", conf, F[row])
		}
		for col := range X {
			Xp := append([]float64(nil), X...)
			Xp[col] += h
			_, Fp, _, err := c.evaluate(context.Background(), p, Xp, p.seed(guess))
			if err != nil {
				t.Fatal(err)
			}
			Xp[col] -= 2 * h
			_, Fm, _, err := c.evaluate(context.Background(), p, Xp, p.seed(guess))
			if err != nil {
				t.Fatal(err)
			}
			if fd := (Fp[row] - Fm[row]) / (2 * h); !scalar.EqualWithinAbs(J.At(row, col), fd, 1e-6) {
				t.Fatalf("%+v: partial %d is %g, expected %g", conf, col, J.At(row, col), fd)
			}
		}
	}
}

func TestCorrectDeltaV(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	conf := DefaultCorrectorConfig()
	conf.VarTime = false
	conf.Tol = 1e-10
	res, err := NewCorrector(m, conf).Correct(context.Background(), burnGuess(t, m), []Constraint{
		FixedState(0, lyapunovIC),
		ContinuityConstraint{Segment: 0, Mask: []bool{true, true, true, false, false, false}},
		DeltaVConstraint{Value: 3e-3},
	})
	if err != nil {
		t.Fatalf("%s", res)
	}
	out := res.Nodeset
	tr, err := Propagate(out.Node(0).State, 0, out.Node(0).TOF, m, DefaultPropagatorConfig())
	if err != nil {
		t.Fatal(err)
	}
	arrival := tr.State(-1)
	if !floats.EqualApprox(arrival[:3], out.Node(1).State[:3], 1e-8) {
		t.Fatalf("position discontinuity: %v != %v", arrival[:3], out.Node(1).State[:3])
	}
	if dv := floats.Distance(arrival[3:6], out.Node(1).State[3:6], 2); !scalar.EqualWithinAbs(dv, 3e-3, 1e-8) {
		t.Fatalf("delta-v of %g", dv)
	}
}
