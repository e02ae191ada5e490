package planner

import (
	"errors"
	"fmt"
)

// ErrUnsupported matches planning errors raised for query shapes the planner
// recognizes but does not implement, such as right-nested joins.
var ErrUnsupported = errors.New("not supported")

// PlanningError is the only error returned by the planner. Planning is
// all-or-nothing: when it is returned no plan is produced.
type PlanningError struct {
	Message string
	// Unsupported is set for recognized but unimplemented query shapes.
	Unsupported bool
}

// Error implements error.
func (e *PlanningError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrUnsupported) match unsupported shapes.
func (e *PlanningError) Is(target error) bool {
	return target == ErrUnsupported && e.Unsupported
}

func errorf(format string, args ...any) error {
	return &PlanningError{Message: fmt.Sprintf(format, args...)}
}

func unsupportedf(format string, args ...any) error {
	return &PlanningError{Message: fmt.Sprintf(format, args...), Unsupported: true}
}
