// Package fn holds the differentiable functions used as objectives and
// constraints by the tree optimizers.
//
// Every function reads a shared variable vector u. Node coordinates are
// addressed by the index of their x component; the y component always lives
// at the next index. Fixed operands are captured as literals at construction
// so that each variant only touches the variables it actually depends on.
package fn

import "math"

// DifferentiableFunction is a scalar function of the variable vector with an
// analytic gradient.
//
// Grad must zero every entry of du before writing the entries it depends on;
// callers rely on untouched entries being exactly zero.
type DifferentiableFunction interface {
	Func(u []float64) float64
	Grad(u, du []float64)
}

// Counted is implemented by functions that keep call statistics.
type Counted interface {
	FuncCalls() int
	GradCalls() int
}

// Counter records how many times a function and its gradient were evaluated.
// It is embedded by every function in this package.
type Counter struct {
	funcCalls int
	gradCalls int
}

// FuncCalls returns the number of Func evaluations.
func (c *Counter) FuncCalls() int { return c.funcCalls }

// GradCalls returns the number of Grad evaluations.
func (c *Counter) GradCalls() int { return c.gradCalls }

// ResetCounts clears both counters.
func (c *Counter) ResetCounts() {
	c.funcCalls = 0
	c.gradCalls = 0
}

func (c *Counter) countFunc() { c.funcCalls++ }

// countGrad bumps the gradient counter and clears du.
func (c *Counter) countGrad(du []float64) {
	c.gradCalls++
	clear(du)
}

// TotalCalls sums the call counters of all functions that keep them.
func TotalCalls(fns ...DifferentiableFunction) (funcCalls, gradCalls int) {
	for _, f := range fns {
		if c, ok := f.(Counted); ok {
			funcCalls += c.FuncCalls()
			gradCalls += c.GradCalls()
		}
	}
	return funcCalls, gradCalls
}

// invOrZero returns 1/d, or 0 when d is zero. Distance gradients use it so
// that coincident points produce a zero gradient instead of NaN.
func invOrZero(d float64) float64 {
	if d == 0 {
		return 0
	}
	return 1 / d
}

// sinCos returns the sine and cosine of an angle given in degrees.
func sinCos(degrees float64) (float64, float64) {
	return math.Sincos(degrees * math.Pi / 180)
}
