package astrohelion

import (
	"fmt"
	"math"
)

// Event defines a scalar condition whose zero crossings are detected during a propagation.
type Event interface {
	fmt.Stringer
	// Condition returns the value of the event function; the event occurs when it crosses zero.
	Condition(t float64, q []float64, m Model) float64
	// Gradient returns the partials of the condition with respect to the six states, followed by the
	// partials with respect to the extras when the condition depends on them.
	Gradient(t float64, q []float64, m Model) []float64
	// Direction returns +1 (resp. -1) to only trigger on increasing (resp. decreasing) crossings, 0 for both.
	Direction() int
	// Terminal returns whether the propagation stops when the event occurs.
	Terminal() bool
}

// EventOccurrence is an event located during a propagation.
type EventOccurrence struct {
	Event Event
	T     float64
	State []float64 // Augmented state at the event
}

func (o EventOccurrence) String() string {
	return fmt.Sprintf("%s @ t=%.12g", o.Event, o.T)
}

// triggered returns whether the condition went through zero between two steps, in the event direction.
func triggered(ev Event, prev, cur float64) bool {
	up := prev < 0 && cur >= 0
	down := prev > 0 && cur <= 0
	switch ev.Direction() {
	case 1:
		return up
	case -1:
		return down
	}
	return up || down
}

// PlaneEvent occurs when the state crosses the plane normal to Axis (0: x, 1: y, 2: z) at Value:
// Axis 0 is a YZ plane crossing, 1 an XZ plane crossing and 2 an XY plane crossing.
type PlaneEvent struct {
	Axis  int
	Value float64
	Dir   int
	Stop  bool
}

// NewPlaneEvent returns a new plane crossing event.
func NewPlaneEvent(axis int, value float64, dir int, stop bool) PlaneEvent {
	if axis < 0 || axis > 2 {
		panic(fmt.Errorf("invalid plane event axis %d", axis))
	}
	return PlaneEvent{axis, value, dir, stop}
}

// Condition implements the Event interface.
func (e PlaneEvent) Condition(t float64, q []float64, m Model) float64 {
	return q[e.Axis] - e.Value
}

// Gradient implements the Event interface.
func (e PlaneEvent) Gradient(t float64, q []float64, m Model) []float64 {
	g := make([]float64, 6)
	g[e.Axis] = 1
	return g
}

// Direction implements the Event interface.
func (e PlaneEvent) Direction() int {
	return e.Dir
}

// Terminal implements the Event interface.
func (e PlaneEvent) Terminal() bool {
	return e.Stop
}

func (e PlaneEvent) String() string {
	return fmt.Sprintf("%s=%g crossing", []string{"x", "y", "z"}[e.Axis], e.Value)
}

// ApseEvent occurs at a periapse (increasing) or apoapse (decreasing) with respect to a primary.
type ApseEvent struct {
	Primary int
	Dir     int
	Stop    bool
}

// Condition implements the Event interface: the radial velocity times the distance.
func (e ApseEvent) Condition(t float64, q []float64, m Model) float64 {
	rP := m.PrimaryPositions(t)[e.Primary]
	vP := m.PrimaryVelocities(t)[e.Primary]
	s := 0.0
	for i := 0; i < 3; i++ {
		s += (q[i] - rP[i]) * (q[i+3] - vP[i])
	}
	return s
}

// Gradient implements the Event interface.
func (e ApseEvent) Gradient(t float64, q []float64, m Model) []float64 {
	rP := m.PrimaryPositions(t)[e.Primary]
	vP := m.PrimaryVelocities(t)[e.Primary]
	g := make([]float64, 6)
	for i := 0; i < 3; i++ {
		g[i] = q[i+3] - vP[i]
		g[i+3] = q[i] - rP[i]
	}
	return g
}

// Direction implements the Event interface.
func (e ApseEvent) Direction() int {
	return e.Dir
}

// Terminal implements the Event interface.
func (e ApseEvent) Terminal() bool {
	return e.Stop
}

func (e ApseEvent) String() string {
	return fmt.Sprintf("apse of P%d", e.Primary+1)
}

// StateEvent occurs when a component of the state, velocities included, crosses Value.
type StateEvent struct {
	Index int
	Value float64
	Dir   int
	Stop  bool
}

// NewStateEvent returns a new state crossing event on one of the six states.
func NewStateEvent(index int, value float64, dir int, stop bool) StateEvent {
	if index < 0 || index > 5 {
		panic(fmt.Errorf("invalid state event index %d", index))
	}
	return StateEvent{index, value, dir, stop}
}

// Condition implements the Event interface.
func (e StateEvent) Condition(t float64, q []float64, m Model) float64 {
	return q[e.Index] - e.Value
}

// Gradient implements the Event interface.
func (e StateEvent) Gradient(t float64, q []float64, m Model) []float64 {
	g := make([]float64, 6)
	g[e.Index] = 1
	return g
}

// Direction implements the Event interface.
func (e StateEvent) Direction() int {
	return e.Dir
}

// Terminal implements the Event interface.
func (e StateEvent) Terminal() bool {
	return e.Stop
}

func (e StateEvent) String() string {
	return fmt.Sprintf("%s=%g crossing", []string{"x", "y", "z", "vx", "vy", "vz"}[e.Index], e.Value)
}

// AngleEvent occurs when the state crosses the plane normal to the XY plane containing a primary,
// rotated by Angle from the x axis.
type AngleEvent struct {
	Primary int
	Angle   float64 // rad
	Dir     int
	Stop    bool
}

// Condition implements the Event interface: the projection of the position relative to the primary
// on the normal of the plane.
func (e AngleEvent) Condition(t float64, q []float64, m Model) float64 {
	rP := m.PrimaryPositions(t)[e.Primary]
	sin, cos := math.Sincos(e.Angle)
	return -sin*(q[0]-rP[0]) + cos*(q[1]-rP[1])
}

// Gradient implements the Event interface.
func (e AngleEvent) Gradient(t float64, q []float64, m Model) []float64 {
	sin, cos := math.Sincos(e.Angle)
	return []float64{-sin, cos, 0, 0, 0, 0}
}

// Direction implements the Event interface.
func (e AngleEvent) Direction() int {
	return e.Dir
}

// Terminal implements the Event interface.
func (e AngleEvent) Terminal() bool {
	return e.Stop
}

func (e AngleEvent) String() string {
	return fmt.Sprintf("%.2f deg plane about P%d", Rad2deg(e.Angle), e.Primary+1)
}

// JacobiEvent occurs when the Jacobi constant of the state reaches Value.
type JacobiEvent struct {
	Value float64
	Dir   int
	Stop  bool
}

// Condition implements the Event interface.
func (e JacobiEvent) Condition(t float64, q []float64, m Model) float64 {
	return JacobiConstant(m.System().Mu, q) - e.Value
}

// Gradient implements the Event interface.
func (e JacobiEvent) Gradient(t float64, q []float64, m Model) []float64 {
	return jacobiGradient(m.System().Mu, q)
}

// Direction implements the Event interface.
func (e JacobiEvent) Direction() int {
	return e.Dir
}

// Terminal implements the Event interface.
func (e JacobiEvent) Terminal() bool {
	return e.Stop
}

func (e JacobiEvent) String() string {
	return fmt.Sprintf("C=%g", e.Value)
}

// DistanceEvent occurs when the distance to a primary reaches Distance. A positive direction
// triggers when moving away from the primary.
type DistanceEvent struct {
	Primary  int
	Distance float64 // Nondimensional
	Dir      int
	Stop     bool
}

// Condition implements the Event interface.
func (e DistanceEvent) Condition(t float64, q []float64, m Model) float64 {
	rP := m.PrimaryPositions(t)[e.Primary]
	dx, dy, dz := q[0]-rP[0], q[1]-rP[1], q[2]-rP[2]
	return math.Sqrt(dx*dx+dy*dy+dz*dz) - e.Distance
}

// Gradient implements the Event interface.
func (e DistanceEvent) Gradient(t float64, q []float64, m Model) []float64 {
	rP := m.PrimaryPositions(t)[e.Primary]
	u := unit([]float64{q[0] - rP[0], q[1] - rP[1], q[2] - rP[2]})
	return []float64{u[0], u[1], u[2], 0, 0, 0}
}

// Direction implements the Event interface.
func (e DistanceEvent) Direction() int {
	return e.Dir
}

// Terminal implements the Event interface.
func (e DistanceEvent) Terminal() bool {
	return e.Stop
}

func (e DistanceEvent) String() string {
	return fmt.Sprintf("distance %g to P%d", e.Distance, e.Primary+1)
}

// MassEvent occurs when the nondimensional spacecraft mass, the first extra of the low thrust
// model, reaches Value. It never occurs in models without mass.
type MassEvent struct {
	Value float64
	Dir   int
	Stop  bool
}

// Condition implements the Event interface.
func (e MassEvent) Condition(t float64, q []float64, m Model) float64 {
	if len(q) < 7 {
		return math.NaN()
	}
	return q[6] - e.Value
}

// Gradient implements the Event interface.
func (e MassEvent) Gradient(t float64, q []float64, m Model) []float64 {
	g := make([]float64, 7)
	g[6] = 1
	return g
}

// Direction implements the Event interface.
func (e MassEvent) Direction() int {
	return e.Dir
}

// Terminal implements the Event interface.
func (e MassEvent) Terminal() bool {
	return e.Stop
}

func (e MassEvent) String() string {
	return fmt.Sprintf("mass fraction %g", e.Value)
}

// CrashEvent occurs when the distance to a primary drops below its crash radius (its radius plus
// its minimum flyby altitude). It is always terminal.
type CrashEvent struct {
	Primary int
	Radius  float64 // Nondimensional crash radius
	Body    string
}

// crashEvents returns the crash events of all the primaries of a model.
func crashEvents(m Model) []Event {
	sys := m.System()
	dists := sys.CrashDistances()
	evts := make([]Event, len(dists))
	for i, body := range sys.Primaries() {
		evts[i] = CrashEvent{Primary: i, Radius: dists[i], Body: body.Name}
	}
	return evts
}

// Condition implements the Event interface.
func (e CrashEvent) Condition(t float64, q []float64, m Model) float64 {
	rP := m.PrimaryPositions(t)[e.Primary]
	dx, dy, dz := q[0]-rP[0], q[1]-rP[1], q[2]-rP[2]
	return math.Sqrt(dx*dx+dy*dy+dz*dz) - e.Radius
}

// Gradient implements the Event interface.
func (e CrashEvent) Gradient(t float64, q []float64, m Model) []float64 {
	rP := m.PrimaryPositions(t)[e.Primary]
	rel := []float64{q[0] - rP[0], q[1] - rP[1], q[2] - rP[2]}
	u := unit(rel)
	return []float64{u[0], u[1], u[2], 0, 0, 0}
}

// Direction implements the Event interface.
func (e CrashEvent) Direction() int {
	return -1
}

// Terminal implements the Event interface.
func (e CrashEvent) Terminal() bool {
	return true
}

func (e CrashEvent) String() string {
	return "crash into " + e.Body
}

// FuncEvent is an event defined by an arbitrary condition. Without a gradient function, the
// gradient is computed by central differences.
type FuncEvent struct {
	Name string
	F    func(t float64, q []float64) float64
	Grad func(t float64, q []float64) []float64
	Dir  int
	Stop bool
}

// Condition implements the Event interface.
func (e FuncEvent) Condition(t float64, q []float64, m Model) float64 {
	return e.F(t, q)
}

// Gradient implements the Event interface.
func (e FuncEvent) Gradient(t float64, q []float64, m Model) []float64 {
	if e.Grad != nil {
		return e.Grad(t, q)
	}
	const h = 1e-7
	g := make([]float64, 6)
	p := append([]float64(nil), q...)
	for i := 0; i < 6; i++ {
		p[i] = q[i] + h
		fp := e.F(t, p)
		p[i] = q[i] - h
		fm := e.F(t, p)
		p[i] = q[i]
		g[i] = (fp - fm) / (2 * h)
	}
	return g
}

// Direction implements the Event interface.
func (e FuncEvent) Direction() int {
	return e.Dir
}

// Terminal implements the Event interface.
func (e FuncEvent) Terminal() bool {
	return e.Stop
}

func (e FuncEvent) String() string {
	return e.Name
}
