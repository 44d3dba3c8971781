package astrohelion

import (
	"fmt"
	"strings"
)

// g0 is the standard gravity in km/s^2.
const g0 = 9.80665e-3

// Thruster defines an electric propulsion engine at its operating point.
type Thruster interface {
	// Returns the thrust in Newtons and isp consumed in seconds.
	Thrust() (thrust, isp float64)
}

// EPThruster is an electric thruster running at a fixed voltage and power.
type EPThruster struct {
	Name    string
	Voltage uint // V
	Power   uint // W
	thrust  float64
	isp     float64
}

// Thrust implements the Thruster interface.
func (t EPThruster) Thrust() (thrust, isp float64) {
	return t.thrust, t.isp
}

/* Available thrusters */

// PPS1350 is the Snecma thruster used on SMART-1.
var PPS1350 = EPThruster{"PPS1350", 350, 2500, 89e-3, 1650}

// HERMeS is based on the NASA & Rocketdyne 12.5kW demo
var HERMeS = EPThruster{"HERMeS", 800, 12500, 0.680, 2960}

// NewGenericEP returns a generic electric prop thruster.
func NewGenericEP(thrust, isp float64) EPThruster {
	return EPThruster{Name: "generic", thrust: thrust, isp: isp}
}

// ThrusterFromString returns one of the predefined thrusters.
func ThrusterFromString(name string) (EPThruster, error) {
	switch strings.ToLower(name) {
	case "pps1350":
		return PPS1350, nil
	case "hermes":
		return HERMeS, nil
	}
	return EPThruster{}, fmt.Errorf("unknown thruster '%s'", name)
}

// ThrustParams holds the low thrust parameters of a system.
type ThrustParams struct {
	Force float64 // Thrust in N
	Isp   float64 // Specific impulse in s, zero for no mass flow
	Mass0 float64 // Reference spacecraft mass in kg, the nondimensional mass is relative to it
	Law   PointingLaw
	Angle float64 // Pointing angle in radians, only used by FixedAngle
}

// NewThrustParams returns the thrust parameters of a spacecraft of the given mass using the provided thruster.
func NewThrustParams(t Thruster, mass float64, law PointingLaw) ThrustParams {
	thrust, isp := t.Thrust()
	return ThrustParams{Force: thrust, Isp: isp, Mass0: mass, Law: law}
}

// Accel returns the nondimensional thrust acceleration of the reference mass in the provided system.
func (p ThrustParams) Accel(sys *System) float64 {
	if p.Mass0 <= 0 {
		return 0
	}
	return (p.Force / 1000) / p.Mass0 * sys.CharT * sys.CharT / sys.CharL
}

// MassRate returns the nondimensional mass flow rate (negative) in the provided system.
func (p ThrustParams) MassRate(sys *System) float64 {
	if p.Isp <= 0 || p.Mass0 <= 0 {
		return 0
	}
	return -(p.Force / 1000) * sys.CharT / (p.Isp * g0 * p.Mass0)
}

func (p ThrustParams) String() string {
	law := "no pointing law"
	if p.Law != 0 {
		law = p.Law.String()
	}
	return fmt.Sprintf("%.4g N @ %.0f s (%s, m0=%.1f kg)", p.Force, p.Isp, law, p.Mass0)
}
