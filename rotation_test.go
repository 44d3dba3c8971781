package astrohelion

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestR3(t *testing.T) {
	v := MxV33(R3(math.Pi/2), []float64{1, 0, 0})
	if !floats.EqualApprox(v, []float64{0, -1, 0}, 1e-15) {
		t.Fatalf("R3(π/2)·x=%v", v)
	}
}

func TestRotatingInertial(t *testing.T) {
	// A point fixed in the rotating frame moves on the unit circle in the inertial frame.
	inertial := RotatingToInertial([]float64{1, 0, 0, 0, 0, 0}, math.Pi/2)
	if !floats.EqualApprox(inertial, []float64{0, 1, 0, -1, 0, 0}, 1e-15) {
		t.Fatalf("inertial state %v", inertial)
	}
	for _, tm := range []float64{0, 0.3, -2, 10} {
		back := InertialToRotating(RotatingToInertial(lyapunovIC, tm), tm)
		if !floats.EqualApprox(back, lyapunovIC, 1e-14) {
			t.Fatalf("t=%f: %v != %v", tm, back, lyapunovIC)
		}
	}
	if !floats.Equal(RotatingToInertial(lyapunovIC, 0)[:3], lyapunovIC[:3]) {
		t.Fatal("frames coincide at t=0")
	}
}
