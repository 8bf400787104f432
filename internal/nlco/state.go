package nlco

import (
	"fmt"
	"time"
)

// State is the lifecycle position of an NLCO problem.
type State int

const (
	Uninitialized State = iota
	Sized
	Bounded
	ObjectiveSet
	ConstraintsAdded
	Solving
	Converged
	Cancelled
	Failed
)

var stateNames = [...]string{
	Uninitialized:    "Uninitialized",
	Sized:            "Sized",
	Bounded:          "Bounded",
	ObjectiveSet:     "ObjectiveSet",
	ConstraintsAdded: "ConstraintsAdded",
	Solving:          "Solving",
	Converged:        "Converged",
	Cancelled:        "Cancelled",
	Failed:           "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether a solve has finished in this state.
func (s State) Terminal() bool {
	return s == Converged || s == Cancelled || s == Failed
}

// Status is the termination status reported to the host.
type Status int

const (
	NormalTermination Status = iota
	UserCancelled
	OtherTermination
)

func (s Status) String() string {
	switch s {
	case NormalTermination:
		return "NormalTermination"
	case UserCancelled:
		return "UserCancelled"
	case OtherTermination:
		return "OtherTermination"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result summarizes one call to Optimize.
type Result struct {
	Status Status
	// Reason is the back end's message when Status is OtherTermination.
	Reason string

	X               []float64
	Objective       float64
	MaxViolation    float64
	OuterIterations int
	FuncEvaluations int
	GradEvaluations int
	// FunctionCalls and GradientCalls sum the call counters of the
	// objective and every constraint that keeps them, for this solve only.
	FunctionCalls   int
	GradientCalls   int
	Elapsed         time.Duration
}

// Action is returned by an Updater to continue or abort a solve.
type Action int

const (
	Continue Action = iota
	Cancel
)

// Progress is the snapshot handed to the updater. X aliases solver memory
// and must not be retained or modified.
type Progress struct {
	Algorithm      Algorithm
	OuterIteration int
	Evaluations    int
	Objective      float64
	MaxViolation   float64
	Penalty        float64
	X              []float64
	Elapsed        time.Duration
}

// Updater is called periodically during a solve. Returning Cancel aborts the
// solve; it cannot be resumed.
type Updater func(Progress) Action
