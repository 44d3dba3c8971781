package astrohelion

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

const (
	deg2rad = math.Pi / 180
	// stmLen is the number of elements of a flattened 6x6 state transition matrix.
	stmLen = 36
)

// norm returns the norm of a given vector which is supposed to be 3x1.
func norm(v []float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// unit returns the unit vector of a given vector.
func unit(a []float64) (b []float64) {
	n := norm(a)
	if scalar.EqualWithinAbs(n, 0, 1e-12) {
		return []float64{0, 0, 0}
	}
	b = make([]float64, len(a))
	for i, val := range a {
		b[i] = val / n
	}
	return
}

// maxAbs returns the infinity norm of a vector.
func maxAbs(v []float64) float64 {
	m := 0.0
	for _, val := range v {
		if a := math.Abs(val); a > m || math.IsNaN(a) {
			m = a
		}
	}
	return m
}

// finite returns whether all the values are finite.
func finite(v []float64) bool {
	for _, val := range v {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return false
		}
	}
	return true
}

// identity6 returns a flattened 6x6 identity matrix.
func identity6() []float64 {
	id := make([]float64, stmLen)
	for i := 0; i < 6; i++ {
		id[i*7] = 1
	}
	return id
}

// stmDense converts a flattened row-major STM into a mat.Dense (data is copied).
func stmDense(flat []float64) *mat.Dense {
	return mat.NewDense(6, 6, append([]float64(nil), flat[:stmLen]...))
}

// Deg2rad converts degrees to radians, and enforced only positive numbers.
func Deg2rad(a float64) float64 {
	if a < 0 {
		a += 360
	}
	return math.Mod(a*deg2rad, 2*math.Pi)
}

// Rad2deg converts radians to degrees, and enforced only positive numbers.
func Rad2deg(a float64) float64 {
	if a < 0 {
		a += 2 * math.Pi
	}
	return math.Mod(a/deg2rad, 360)
}
