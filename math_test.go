package astrohelion

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestAngles(t *testing.T) {
	for i := 0.0; i < 360; i += 0.5 {
		if !scalar.EqualWithinAbs(Rad2deg(Deg2rad(i)), i, 1e-10) {
			t.Fatalf("incorrect conversion for %3.2f", i)
		}
	}
	if !scalar.EqualWithinAbs(Deg2rad(-90), 3*math.Pi/2, 1e-14) {
		t.Fatal("negative angles should be wrapped")
	}
}

func TestUnit(t *testing.T) {
	u := unit([]float64{3, 0, 4})
	if !floats.EqualApprox(u, []float64{0.6, 0, 0.8}, 1e-15) {
		t.Fatalf("incorrect unit vector %v", u)
	}
	if !floats.Equal(unit([]float64{0, 0, 0}), []float64{0, 0, 0}) {
		t.Fatal("unit of a zero vector should be zero")
	}
}

func TestMaxAbsFinite(t *testing.T) {
	if maxAbs([]float64{1, -3, 2}) != 3 {
		t.Fatal("incorrect max abs")
	}
	if !math.IsNaN(maxAbs([]float64{1, math.NaN()})) {
		t.Fatal("max abs should propagate NaN")
	}
	if finite([]float64{1, math.Inf(-1)}) || !finite([]float64{1, 2}) {
		t.Fatal("incorrect finite check")
	}
}

func TestSTMDense(t *testing.T) {
	id := identity6()
	phi := stmDense(id)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			exp := 0.0
			if i == j {
				exp = 1
			}
			if phi.At(i, j) != exp {
				t.Fatalf("identity(%d,%d)=%f", i, j, phi.At(i, j))
			}
		}
	}
	phi.Set(0, 0, 2)
	if id[0] != 1 {
		t.Fatal("stmDense must copy its data")
	}
}
