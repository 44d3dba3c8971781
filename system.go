package astrohelion

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// System holds the parameters of a circular restricted three body system.
// A System is read-only once created and may be shared between goroutines.
type System struct {
	P1, P2 CelestialObject // Larger and smaller primaries
	Mu     float64         // Mass ratio m2/(m1+m2)
	CharL  float64         // Characteristic length in km (distance between the primaries)
	CharT  float64         // Characteristic time in s (1/mean motion)
	CharM  float64         // Characteristic mass in kg (m1+m2)
	Thrust *ThrustParams   // Low thrust parameters, nil when no thrust is available
	Epoch  time.Time       // Reference epoch of the nondimensional time zero, optional
}

// NewSystem returns the system made of the two primaries. P2 must orbit P1.
func NewSystem(p1, p2 CelestialObject) (*System, error) {
	if p2.a <= 0 {
		return nil, fmt.Errorf("%s has no orbit radius", p2.Name)
	}
	if p1.μ <= 0 || p2.μ <= 0 {
		return nil, errors.New("primaries must have positive gravitational parameters")
	}
	if p2.μ > p1.μ {
		return nil, fmt.Errorf("%s is more massive than %s", p2.Name, p1.Name)
	}
	gm := p1.μ + p2.μ
	s := &System{P1: p1, P2: p2}
	s.CharL = p2.a
	s.CharM = gm / G
	s.CharT = math.Sqrt(s.CharL * s.CharL * s.CharL / gm)
	s.Mu = p2.μ / gm
	return s, nil
}

// NewSystemFromMu returns a system defined only from its mass ratio and characteristic quantities.
// Its primaries are point masses, so no crash may be detected.
func NewSystemFromMu(mu, charL, charT float64) *System {
	charM := charL * charL * charL / (charT * charT * G)
	return &System{
		P1:    CelestialObject{Name: "P1", μ: (1 - mu) * charM * G},
		P2:    CelestialObject{Name: "P2", a: charL, μ: mu * charM * G, Parent: "P1"},
		Mu:    mu,
		CharL: charL,
		CharT: charT,
		CharM: charM,
	}
}

// WithThrust returns a copy of this system using the provided thrust parameters.
func (s *System) WithThrust(p ThrustParams) *System {
	c := *s
	c.Thrust = &p
	return &c
}

// WithEpoch returns a copy of this system with the provided reference epoch.
func (s *System) WithEpoch(epoch time.Time) *System {
	c := *s
	c.Epoch = epoch
	return &c
}

// Name returns the name of the system, e.g. "Earth-Moon".
func (s *System) Name() string {
	return s.P1.Name + "-" + s.P2.Name
}

func (s *System) String() string {
	str := fmt.Sprintf("%s (μ=%.12g, L=%.1f km, T=%.2f s)", s.Name(), s.Mu, s.CharL, s.CharT)
	if s.Thrust != nil {
		str += " thrust: " + s.Thrust.String()
	}
	return str
}

// Primaries returns both primaries.
func (s *System) Primaries() []CelestialObject {
	return []CelestialObject{s.P1, s.P2}
}

// PrimaryPositions returns the fixed positions of the primaries in the rotating frame.
func (s *System) PrimaryPositions() [][3]float64 {
	return [][3]float64{{-s.Mu, 0, 0}, {1 - s.Mu, 0, 0}}
}

// CrashDistances returns the nondimensional crash distances of each primary.
func (s *System) CrashDistances() []float64 {
	return []float64{s.P1.CrashRadius() / s.CharL, s.P2.CrashRadius() / s.CharL}
}

// Duration converts a nondimensional time into a duration.
func (s *System) Duration(t float64) time.Duration {
	return time.Duration(t * s.CharT * float64(time.Second))
}

// Time returns the absolute time of the nondimensional time t, relative to the reference epoch.
func (s *System) Time(t float64) time.Time {
	return s.Epoch.Add(s.Duration(t))
}

// Dimensional returns the provided nondimensional state in km and km/s.
func (s *System) Dimensional(state []float64) []float64 {
	dim := make([]float64, 6)
	for i := 0; i < 3; i++ {
		dim[i] = state[i] * s.CharL
		dim[i+3] = state[i+3] * s.CharL / s.CharT
	}
	return dim
}
