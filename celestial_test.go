package astrohelion

import (
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestCelestialObjectFromString(t *testing.T) {
	for _, obj := range []CelestialObject{Sun, Venus, Earth, Moon, Mars, Jupiter, Saturn, Uranus, Neptune, Pluto} {
		found, err := CelestialObjectFromString(obj.Name)
		if err != nil {
			t.Fatalf("%s: %s", obj.Name, err)
		}
		if !found.Equals(obj) {
			t.Fatalf("%s != %s", found, obj)
		}
	}
	if _, err := CelestialObjectFromString("Vulcan"); err == nil {
		t.Fatal("expected an error for an unknown body")
	}
}

func TestEarthMoonSystem(t *testing.T) {
	sys := earthMoon(t)
	if !scalar.EqualWithinAbs(sys.Mu, 0.012150584342897, 1e-14) {
		t.Fatalf("μ=%.15f", sys.Mu)
	}
	if sys.CharL != 384400 {
		t.Fatalf("L=%f", sys.CharL)
	}
	// About 4.34 days.
	if !scalar.EqualWithinRel(sys.CharT, 375190, 1e-3) {
		t.Fatalf("T=%f", sys.CharT)
	}
	if sys.Name() != "Earth-Moon" {
		t.Fatalf("name=%s", sys.Name())
	}
	if _, err := NewSystem(Moon, Earth); err == nil {
		t.Fatal("the Moon should not be the larger primary")
	}
	if _, err := NewSystem(Earth, Sun); err == nil {
		t.Fatal("the Sun has no orbit radius")
	}
}

func TestSystemDimensional(t *testing.T) {
	sys := earthMoon(t)
	dim := sys.Dimensional([]float64{1, 0, 0, 0, 1, 0})
	if dim[0] != sys.CharL || !scalar.EqualWithinRel(dim[4], sys.CharL/sys.CharT, 1e-15) {
		t.Fatalf("incorrect dimensional state %+v", dim)
	}
	fromMu := NewSystemFromMu(sys.Mu, sys.CharL, sys.CharT)
	if !scalar.EqualWithinRel(fromMu.CharM, sys.CharM, 1e-12) {
		t.Fatalf("mass %g != %g", fromMu.CharM, sys.CharM)
	}
}
