package astrohelion

import (
	"fmt"
	"math"
)

// LagrangePoint returns the position of the Lagrange point L1 to L5 of a system of mass ratio mu.
func LagrangePoint(mu float64, n int) ([3]float64, error) {
	if mu <= 0 || mu > 0.5 {
		return [3]float64{}, fmt.Errorf("invalid mass ratio %g", mu)
	}
	gamma := math.Cbrt(mu / 3)
	var x float64
	switch n {
	case 1:
		x = 1 - mu - gamma
	case 2:
		x = 1 - mu + gamma
	case 3:
		x = -mu - (1 - 7*mu/12)
	case 4:
		return [3]float64{0.5 - mu, math.Sqrt(3) / 2, 0}, nil
	case 5:
		return [3]float64{0.5 - mu, -math.Sqrt(3) / 2, 0}, nil
	default:
		return [3]float64{}, fmt.Errorf("no Lagrange point L%d", n)
	}
	// Newton iterations on the x acceleration along the line of the primaries.
	for i := 0; i < 50; i++ {
		r1 := math.Abs(x + mu)
		r2 := math.Abs(x - 1 + mu)
		f := x - (1-mu)*(x+mu)/(r1*r1*r1) - mu*(x-1+mu)/(r2*r2*r2)
		df := 1 + 2*(1-mu)/(r1*r1*r1) + 2*mu/(r2*r2*r2)
		dx := f / df
		x -= dx
		if math.Abs(dx) < 1e-15 {
			return [3]float64{x, 0, 0}, nil
		}
	}
	return [3]float64{}, &NumericalError{Op: "lagrange point", Reason: fmt.Sprintf("L%d did not converge", n)}
}
