package astrohelion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// R3 rotation about the 3rd axis.
func R3(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
}

// MxV33 multiplies a matrix with a vector. Note that there is no dimension check!
func MxV33(m mat.Matrix, v []float64) (o []float64) {
	var rVec mat.VecDense
	rVec.MulVec(m, mat.NewVecDense(len(v), v))
	return []float64{rVec.AtVec(0), rVec.AtVec(1), rVec.AtVec(2)}
}

// RotatingToInertial converts a nondimensional rotating state at time t to the inertial frame
// which coincides with the rotating frame at t = 0.
func RotatingToInertial(state []float64, t float64) []float64 {
	R := R3(-t)
	// Transport theorem with a unit angular rate about z.
	vI := []float64{state[3] - state[1], state[4] + state[0], state[5]}
	return append(MxV33(R, state[:3]), MxV33(R, vI)...)
}

// InertialToRotating is the inverse of RotatingToInertial.
func InertialToRotating(state []float64, t float64) []float64 {
	R := R3(t)
	r := MxV33(R, state[:3])
	v := MxV33(R, state[3:6])
	return []float64{r[0], r[1], r[2], v[0] + r[1], v[1] - r[0], v[2]}
}
