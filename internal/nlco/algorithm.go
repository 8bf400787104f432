package nlco

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/optimize"
)

// Algorithm selects the back end used by Optimize.
type Algorithm int

const (
	LBFGS Algorithm = iota
	BFGS
	CG
	NelderMead
	Mayfly
)

var algorithmNames = [...]string{
	LBFGS:      "lbfgs",
	BFGS:       "bfgs",
	CG:         "cg",
	NelderMead: "neldermead",
	Mayfly:     "mayfly",
}

var algorithmNotes = [...]string{
	LBFGS:      "augmented Lagrangian over limited-memory BFGS; balanced default",
	BFGS:       "augmented Lagrangian over dense BFGS; robust on small problems",
	CG:         "augmented Lagrangian over nonlinear conjugate gradient; fastest, occasionally fails",
	NelderMead: "augmented Lagrangian over Nelder-Mead simplex; derivative-free, slow",
	Mayfly:     "penalized mayfly global search followed by an lbfgs polish; slowest, most robust",
}

// Algorithms lists every back end in presentation order.
func Algorithms() []Algorithm {
	return []Algorithm{LBFGS, BFGS, CG, NelderMead, Mayfly}
}

func (a Algorithm) String() string {
	if a < 0 || int(a) >= len(algorithmNames) {
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
	return algorithmNames[a]
}

// Description is a one-line summary of the back end's trade-offs.
func (a Algorithm) Description() string {
	if a < 0 || int(a) >= len(algorithmNotes) {
		return ""
	}
	return algorithmNotes[a]
}

// ParseAlgorithm maps a back end name to its Algorithm. Matching ignores case
// and surrounding spaces.
func ParseAlgorithm(s string) (Algorithm, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range algorithmNames {
		if n == name {
			return Algorithm(i), nil
		}
	}
	return 0, fmt.Errorf("unknown algorithm %q (want one of %s)", s, strings.Join(algorithmNames[:], ", "))
}

// MarshalText implements encoding.TextMarshaler so algorithms serialize by name.
func (a Algorithm) MarshalText() ([]byte, error) {
	if a < 0 || int(a) >= len(algorithmNames) {
		return nil, fmt.Errorf("invalid algorithm %d", int(a))
	}
	return []byte(a.String()), nil
}

func (a *Algorithm) UnmarshalText(text []byte) error {
	v, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// innerMethod returns a fresh gonum method for the augmented Lagrangian
// subproblems. Mayfly polishes with LBFGS.
func (a Algorithm) innerMethod() optimize.Method {
	switch a {
	case BFGS:
		return &optimize.BFGS{}
	case CG:
		return &optimize.CG{}
	case NelderMead:
		return &optimize.NelderMead{}
	default:
		return &optimize.LBFGS{}
	}
}

// tolerant reports whether a subproblem that ends in a gonum error may still
// hand its last point to the next outer iteration.
func (a Algorithm) tolerant() bool {
	return a != CG
}
