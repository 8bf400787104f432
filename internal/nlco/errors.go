package nlco

import (
	"errors"
	"fmt"
)

// ErrUserCancelled is returned by Optimize when the updater asked to cancel.
// Use errors.Is(err, ErrUserCancelled) to check for it.
var ErrUserCancelled = errors.New("nlco: optimization cancelled by user")

// errCancelled unwinds a back end once the updater returns Cancel. It never
// escapes the package; Optimize translates it into ErrUserCancelled.
var errCancelled = errors.New("nlco: cancel requested")

// ErrBadConvergence matches any *BadConvergenceError with errors.Is.
var ErrBadConvergence = &BadConvergenceError{}

// BadConvergenceError reports that a back end stopped without satisfying the
// convergence criteria. Reason is the back end's own message.
type BadConvergenceError struct {
	Algorithm Algorithm
	Reason    string
}

func (e *BadConvergenceError) Error() string {
	if e.Reason == "" {
		return "nlco: bad convergence"
	}
	return fmt.Sprintf("nlco: %s did not converge: %s", e.Algorithm, e.Reason)
}

func (e *BadConvergenceError) Is(target error) bool {
	_, ok := target.(*BadConvergenceError)
	return ok
}

// StateError is returned when a facade method is called out of order.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("nlco: %s not allowed in state %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool {
	_, ok := target.(*StateError)
	return ok
}
