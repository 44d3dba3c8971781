package astrohelion

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func checkMonotonic(t *testing.T, fam *Family, increasing bool) {
	for i := 1; i < len(fam.Members); i++ {
		prev, cur := fam.Members[i-1].Param, fam.Members[i].Param
		if (increasing && cur <= prev) || (!increasing && cur >= prev) {
			t.Fatalf("%s member %d: %.12f after %.12f", fam.Parameter, i, cur, prev)
		}
	}
}

func checkDistinct(t *testing.T, fam *Family, tol float64) {
	for i := range fam.Members {
		for j := i + 1; j < len(fam.Members); j++ {
			if d := floats.Distance(fam.Members[i].IC, fam.Members[j].IC, math.Inf(1)); d <= tol {
				t.Fatalf("%s members %d and %d start %g apart", fam.Parameter, i, j, d)
			}
		}
	}
}

func TestContinuationX(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	for _, pac := range []bool{false, true} {
		conf := DefaultContinuationConfig(ParamX, -5e-4)
		conf.MaxMembers = 4
		conf.PseudoArclength = pac
		conf.Corrector.Tol = 1e-10
		cont, err := NewContinuation(m, conf)
		if err != nil {
			t.Fatal(err)
		}
		fam, err := cont.Run(context.Background(), lyapunovNodeset(t, m, lyapunovPeriod, 4))
		if err != nil {
			t.Fatalf("pseudo-arclength=%v: %s", pac, err)
		}
		if len(fam.Members) != 4 || fam.Termination != MaxMembersReached {
			t.Fatalf("pseudo-arclength=%v: %d members, %s", pac, len(fam.Members), fam.Termination)
		}
		checkMonotonic(t, fam, false)
		checkDistinct(t, fam, 1e-6)
		if !scalar.EqualWithinAbs(fam.Members[0].Param, lyapunovIC[0], 1e-9) {
			t.Fatalf("pseudo-arclength=%v: seed at x=%f", pac, fam.Members[0].Param)
		}
		if !pac && !scalar.EqualWithinAbs(fam.Members[1].Param, lyapunovIC[0]-5e-4, 1e-9) {
			t.Fatalf("first step to x=%f", fam.Members[1].Param)
		}
		for i, member := range fam.Members {
			if !scalar.EqualWithinAbs(member.IC[1], 0, 1e-10) {
				t.Fatalf("member %d does not start on the XZ plane", i)
			}
			if len(member.Eigenvalues) != 6 || len(member.Stability) != 3 || member.Stability[0] < 1 {
				t.Fatalf("member %d: eigenvalues %v", i, member.Eigenvalues)
			}
			if member.XWidth <= 0 || member.YWidth <= 0 || member.ZWidth > 1e-9 {
				t.Fatalf("member %d: widths %f %f %f", i, member.XWidth, member.YWidth, member.ZWidth)
			}
			if !scalar.EqualWithinAbs(member.Jacobi, JacobiConstant(m.System().Mu, member.IC), 1e-14) {
				t.Fatalf("member %d: Jacobi constant %f", i, member.Jacobi)
			}
		}
	}
}

func TestContinuationThrust(t *testing.T) {
	// Without mass flow, the perpendicular pointing keeps the model autonomous and conservative.
	tp := NewThrustParams(NewGenericEP(1e-4, 0), 1000, ConstCLeft)
	m, err := NewLowThrust(earthMoon(t).WithThrust(tp))
	if err != nil {
		t.Fatal(err)
	}
	conf := DefaultContinuationConfig(ParamThrust, 1e-4)
	conf.MaxMembers = 3
	conf.Corrector.Tol = 1e-10
	cont, err := NewContinuation(m, conf)
	if err != nil {
		t.Fatal(err)
	}
	fam, err := cont.Run(context.Background(), lyapunovNodeset(t, m, lyapunovPeriod, 4))
	if err != nil {
		t.Fatal(err)
	}
	if len(fam.Members) != 3 {
		t.Fatalf("%d members, %s", len(fam.Members), fam.Termination)
	}
	checkMonotonic(t, fam, true)
	checkDistinct(t, fam, 1e-9)
	for i, member := range fam.Members {
		if !scalar.EqualWithinAbs(member.System.Thrust.Force, 1e-4*float64(i+1), 1e-15) {
			t.Fatalf("member %d computed with %g N", i, member.System.Thrust.Force)
		}
		// The Jacobi constant is held along a system parameter family.
		if !scalar.EqualWithinAbs(member.Jacobi, fam.Members[0].Jacobi, 1e-9) {
			t.Fatalf("member %d: Jacobi constant %.12f", i, member.Jacobi)
		}
	}
}

func TestContinuationUnsupported(t *testing.T) {
	cr3bp := NewCR3BP(earthMoon(t))
	for _, p := range []FamilyParameter{ParamThrust, ParamAngle} {
		if _, err := NewContinuation(cr3bp, DefaultContinuationConfig(p, 0.1)); !errors.Is(err, ErrUnsupportedParameter) {
			t.Fatalf("%s on the CR3BP: %v", p, err)
		}
	}
	pro := earthMoonLT(t, ProVelocity, 0)
	for _, p := range []FamilyParameter{ParamJacobi, ParamAngle} {
		if _, err := NewContinuation(pro, DefaultContinuationConfig(p, 0.1)); !errors.Is(err, ErrUnsupportedParameter) {
			t.Fatalf("%s with %s pointing: %v", p, ProVelocity, err)
		}
	}
	if _, err := NewContinuation(earthMoonLT(t, FixedAngle, 0), DefaultContinuationConfig(ParamAngle, 0.1)); err != nil {
		t.Fatalf("angle continuation of a fixed angle law: %s", err)
	}
	if _, err := NewContinuation(cr3bp, DefaultContinuationConfig(ParamX, 0)); err == nil {
		t.Fatal("a zero step is invalid")
	}
}

func TestContinuationCancelled(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	cont, err := NewContinuation(m, DefaultContinuationConfig(ParamJacobi, 1e-3))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fam, err := cont.Run(ctx, lyapunovNodeset(t, m, lyapunovPeriod, 4))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a cancellation, got %v", err)
	}
	if fam.Termination != Cancelled || len(fam.Members) != 0 {
		t.Fatalf("%s with %d members", fam.Termination, len(fam.Members))
	}
}

func TestFamilyParameterFromString(t *testing.T) {
	for p := ParamX; p <= ParamAngle; p++ {
		found, err := FamilyParameterFromString(p.String())
		if err != nil || found != p {
			t.Fatalf("%s: %v", p, err)
		}
	}
	if _, err := FamilyParameterFromString("mass"); err == nil {
		t.Fatal("mass is not a continuation parameter")
	}
}
