package astrohelion

import (
	"fmt"
	"strings"
)

const (
	// AU is one astronomical unit in kilometers.
	AU = 1.49597870700e8
	// G is the universal gravitational constant in km^3/(kg s^2).
	G = 6.67384e-20
)

// CelestialObject defines a celestial object.
type CelestialObject struct {
	Name     string
	Radius   float64 // Mean radius in km
	a        float64 // Orbital radius about its parent in km
	μ        float64 // Gravitational parameter in km^3/s^2
	MinFlyBy float64 // Minimum flyby altitude in km
	Parent   string
}

// GM returns μ (which is unexported because it's a lowercase Greek letter).
func (c CelestialObject) GM() float64 {
	return c.μ
}

// Mass returns the mass of this object in kg.
func (c CelestialObject) Mass() float64 {
	return c.μ / G
}

// OrbitRadius returns the mean radius of the orbit of this object about its parent in km.
func (c CelestialObject) OrbitRadius() float64 {
	return c.a
}

// CrashRadius returns the distance from the center of the body under which a spacecraft is considered crashed.
func (c CelestialObject) CrashRadius() float64 {
	return c.Radius + c.MinFlyBy
}

// String implements the Stringer interface.
func (c CelestialObject) String() string {
	return c.Name + " body"
}

// Equals returns whether the provided celestial object is the same.
func (c *CelestialObject) Equals(b CelestialObject) bool {
	return c.Name == b.Name && c.Radius == b.Radius && c.a == b.a && c.μ == b.μ && c.MinFlyBy == b.MinFlyBy
}

// NewCelestialObject returns a body which is not part of the predefined ones.
func NewCelestialObject(name string, radius, orbitRadius, gm, minFlyBy float64, parent string) CelestialObject {
	return CelestialObject{name, radius, orbitRadius, gm, minFlyBy, parent}
}

// CelestialObjectFromString returns the object from its name.
func CelestialObjectFromString(name string) (CelestialObject, error) {
	switch strings.ToLower(name) {
	case "sun":
		return Sun, nil
	case "venus":
		return Venus, nil
	case "earth":
		return Earth, nil
	case "moon":
		return Moon, nil
	case "mars":
		return Mars, nil
	case "jupiter":
		return Jupiter, nil
	case "saturn":
		return Saturn, nil
	case "uranus":
		return Uranus, nil
	case "neptune":
		return Neptune, nil
	case "pluto":
		return Pluto, nil
	default:
		return CelestialObject{}, fmt.Errorf("undefined body '%s'", name)
	}
}

/* Definitions */

// Sun is our closest star.
var Sun = CelestialObject{"Sun", 695700, -1, 1.32712440017987e11, 0, ""}

// Venus is poisonous.
var Venus = CelestialObject{"Venus", 6051.8, 108208601, 3.24858599e5, 300, "Sun"}

// Earth is home.
var Earth = CelestialObject{"Earth", 6378.1363, 149598023, 3.98600433e5, 185, "Sun"}

// Moon is Earth's only natural satellite.
var Moon = CelestialObject{"Moon", 1737.4, 384400, 4.902800066e3, 100, "Earth"}

// Mars is the vacation place.
var Mars = CelestialObject{"Mars", 3396.19, 227939282.5616, 4.28283100e4, 200, "Sun"}

// Jupiter is big.
var Jupiter = CelestialObject{"Jupiter", 71492.0, 778298361, 1.266865361e8, 5000, "Sun"}

// Saturn floats and that's really cool.
var Saturn = CelestialObject{"Saturn", 60268.0, 1429394133, 3.7931208e7, 5000, "Sun"}

// Uranus is no joke.
var Uranus = CelestialObject{"Uranus", 25559.0, 2875038615, 5.7939513e6, 2000, "Sun"}

// Neptune is the farthest planet.
var Neptune = CelestialObject{"Neptune", 24764.0, 4498396441, 6.836529e6, 2000, "Sun"}

// Pluto is not a planet and had that down ranking coming. It should have stayed in its lane.
var Pluto = CelestialObject{"Pluto", 1151.0, 5915799000, 9. * 1e2, 50, "Sun"}
