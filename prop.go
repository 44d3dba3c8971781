package astrohelion

import (
	"fmt"
	"math"
	"strings"
)

// PointingLaw defines an enum of low thrust pointing laws.
// All laws point the thrust relative to the velocity in the rotating frame.
type PointingLaw uint8

const (
	// ProVelocity thrusts along the velocity.
	ProVelocity PointingLaw = iota + 1
	// AntiVelocity thrusts against the velocity.
	AntiVelocity
	// ConstCLeft thrusts in the xy-plane, 90 degrees left of the velocity. The Jacobi constant is preserved.
	ConstCLeft
	// ConstCRight thrusts in the xy-plane, 90 degrees right of the velocity. The Jacobi constant is preserved.
	ConstCRight
	// FixedAngle rotates the velocity direction about the z axis by a fixed angle.
	FixedAngle
)

func (pl PointingLaw) String() string {
	switch pl {
	case ProVelocity:
		return "proVelocity"
	case AntiVelocity:
		return "antiVelocity"
	case ConstCLeft:
		return "constCLeft"
	case ConstCRight:
		return "constCRight"
	case FixedAngle:
		return "fixedAngle"
	}
	panic("cannot stringify unknown pointing law")
}

// PointingLawFromString returns the pointing law from its name.
func PointingLawFromString(name string) (PointingLaw, error) {
	for _, pl := range []PointingLaw{ProVelocity, AntiVelocity, ConstCLeft, ConstCRight, FixedAngle} {
		if strings.EqualFold(pl.String(), name) {
			return pl, nil
		}
	}
	return 0, fmt.Errorf("unknown pointing law '%s'", name)
}

// ConservesJacobi returns whether thrusting with this law keeps the Jacobi constant unchanged.
func (pl PointingLaw) ConservesJacobi() bool {
	return pl == ConstCLeft || pl == ConstCRight
}

// rotation returns D such that the thrust direction is D·v/|v|.
func (pl PointingLaw) rotation(angle float64) [3][3]float64 {
	switch pl {
	case ProVelocity:
		return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	case AntiVelocity:
		return [3][3]float64{{-1, 0, 0}, {0, -1, 0}, {0, 0, -1}}
	case ConstCLeft:
		return [3][3]float64{{0, -1, 0}, {1, 0, 0}, {0, 0, 0}}
	case ConstCRight:
		return [3][3]float64{{0, 1, 0}, {-1, 0, 0}, {0, 0, 0}}
	case FixedAngle:
		s, c := math.Sincos(angle)
		return [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
	}
	panic(fmt.Errorf("unknown pointing law %d", pl))
}

// Direction returns the thrust direction for the provided velocity.
// A zero velocity has no defined direction and leads to no thrust.
func (pl PointingLaw) Direction(v []float64, angle float64) []float64 {
	vMag := norm(v)
	dir := make([]float64, 3)
	if vMag == 0 {
		return dir
	}
	D := pl.rotation(angle)
	for i := 0; i < 3; i++ {
		dir[i] = (D[i][0]*v[0] + D[i][1]*v[1] + D[i][2]*v[2]) / vMag
	}
	return dir
}

// directionPartials returns the partials of the thrust direction with respect to the velocity:
// D/|v| - (D v) vᵀ/|v|³.
func (pl PointingLaw) directionPartials(v []float64, angle float64) (p [3][3]float64) {
	vMag := norm(v)
	if vMag == 0 {
		return
	}
	D := pl.rotation(angle)
	v3 := vMag * vMag * vMag
	for i := 0; i < 3; i++ {
		dv := D[i][0]*v[0] + D[i][1]*v[1] + D[i][2]*v[2]
		for j := 0; j < 3; j++ {
			p[i][j] = D[i][j]/vMag - dv*v[j]/v3
		}
	}
	return
}
