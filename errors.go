package astrohelion

import (
	"errors"
	"fmt"
)

// ErrUnsupportedParameter is returned when a continuation parameter cannot be used with a model.
var ErrUnsupportedParameter = errors.New("unsupported continuation parameter")

// NumericalError is returned when the requested accuracy cannot be achieved: either the integration
// failed to meet its tolerance, or a Jacobian is too poorly conditioned to be inverted.
type NumericalError struct {
	Op     string  // Operation which failed, e.g. "propagate" or "solve"
	T      float64 // Time of the failure, for integration failures
	Cond   float64 // Condition number, for linear algebra failures
	Reason string
	Err    error
}

func (e *NumericalError) Error() string {
	if e.Cond != 0 {
		return fmt.Sprintf("%s: %s (condition number %.3g)", e.Op, e.Reason, e.Cond)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s at t=%g: %s", e.Op, e.Reason, e.T, e.Err)
	}
	return fmt.Sprintf("%s: %s at t=%g", e.Op, e.Reason, e.T)
}

func (e *NumericalError) Unwrap() error {
	return e.Err
}

// DivergenceError is returned when the corrector does not converge.
type DivergenceError struct {
	Iterations int
	Residual   float64 // Norm of the constraint vector at the last iterate
	Reason     string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("correction diverged after %d iterations (|F|=%.3e): %s", e.Iterations, e.Residual, e.Reason)
}

// ConstraintArityError is returned when a constraint is inconsistent with the problem it is applied to.
type ConstraintArityError struct {
	Constraint Constraint
	Reason     string
}

func (e *ConstraintArityError) Error() string {
	if e.Constraint == nil {
		return "invalid constraint: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Constraint, e.Reason)
}

// EventNotFoundError is returned when an event never occurred in the propagation window.
type EventNotFoundError struct {
	Event  string
	T0, TF float64
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("event %s not found between t=%g and t=%g", e.Event, e.T0, e.TF)
}

// ImpactError is returned when a correction segment crashes into a primary.
type ImpactError struct {
	Segment int
	Body    string
	T       float64
}

func (e *ImpactError) Error() string {
	return fmt.Sprintf("segment %d impacted %s at t=%g", e.Segment, e.Body, e.T)
}
