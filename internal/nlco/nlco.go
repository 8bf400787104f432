// Package nlco is a nonlinear constrained optimization facade. A problem is
// assembled step by step (size, bounds, objective, constraints) and then
// solved by one of several interchangeable back ends.
//
// Inequalities are satisfied when their function value is <= 0 and
// equalities when it is 0. Solves run on the calling goroutine; the updater
// is the only point where the host regains control.
package nlco

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/treeopt/internal/fn"
)

// NLCO owns the variables, bounds, objective and constraints of one problem.
// It is not safe for concurrent use.
type NLCO struct {
	algorithm Algorithm
	settings  Settings
	state     State

	n            int
	lower, upper []float64
	objective    fn.DifferentiableFunction
	equalities   []fn.DifferentiableFunction
	inequalities []fn.DifferentiableFunction
	updater      Updater
}

// New creates an empty problem solved by the given back end.
func New(algorithm Algorithm, settings Settings) (*NLCO, error) {
	if algorithm < 0 || int(algorithm) >= len(algorithmNames) {
		return nil, fmt.Errorf("nlco: invalid algorithm %d", int(algorithm))
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("nlco: %w", err)
	}
	return &NLCO{algorithm: algorithm, settings: settings}, nil
}

func (p *NLCO) Algorithm() Algorithm { return p.algorithm }
func (p *NLCO) Settings() Settings   { return p.settings }
func (p *NLCO) State() State         { return p.state }
func (p *NLCO) Size() int            { return p.n }
func (p *NLCO) NumEqualities() int   { return len(p.equalities) }
func (p *NLCO) NumInequalities() int { return len(p.inequalities) }

// NumConstraints counts user constraints. Bounds are not included.
func (p *NLCO) NumConstraints() int { return len(p.equalities) + len(p.inequalities) }

// Bounds returns copies of the variable bounds.
func (p *NLCO) Bounds() (lower, upper []float64) {
	return append([]float64(nil), p.lower...), append([]float64(nil), p.upper...)
}

// SetSize fixes the number of variables. Bounds default to (-Inf, +Inf).
func (p *NLCO) SetSize(n int) error {
	if p.state != Uninitialized {
		return &StateError{Op: "SetSize", State: p.state}
	}
	if n < 1 {
		return fmt.Errorf("nlco: size must be positive, got %d", n)
	}
	p.n = n
	p.lower = make([]float64, n)
	p.upper = make([]float64, n)
	for i := range n {
		p.lower[i] = math.Inf(-1)
		p.upper[i] = math.Inf(1)
	}
	p.state = Sized
	return nil
}

// SetBounds sets per-variable box bounds. Infinite entries leave a side open.
func (p *NLCO) SetBounds(lower, upper []float64) error {
	if p.state != Sized {
		return &StateError{Op: "SetBounds", State: p.state}
	}
	if len(lower) != p.n || len(upper) != p.n {
		return fmt.Errorf("nlco: bounds have lengths %d and %d, want %d", len(lower), len(upper), p.n)
	}
	for i := range lower {
		if math.IsNaN(lower[i]) || math.IsNaN(upper[i]) || lower[i] > upper[i] {
			return fmt.Errorf("nlco: invalid bounds [%g, %g] for variable %d", lower[i], upper[i], i)
		}
	}
	copy(p.lower, lower)
	copy(p.upper, upper)
	p.state = Bounded
	return nil
}

// SetObjective installs the function to minimize.
func (p *NLCO) SetObjective(f fn.DifferentiableFunction) error {
	if p.state != Sized && p.state != Bounded {
		return &StateError{Op: "SetObjective", State: p.state}
	}
	if f == nil {
		return errors.New("nlco: nil objective")
	}
	p.objective = f
	p.state = ObjectiveSet
	return nil
}

// AddNonlinearInequality adds a constraint satisfied when f(x) <= 0.
func (p *NLCO) AddNonlinearInequality(f fn.DifferentiableFunction) error {
	if err := p.checkConstraintState("AddNonlinearInequality", f); err != nil {
		return err
	}
	p.inequalities = append(p.inequalities, f)
	p.state = ConstraintsAdded
	return nil
}

// AddNonlinearEquality adds a constraint satisfied when f(x) == 0.
func (p *NLCO) AddNonlinearEquality(f fn.DifferentiableFunction) error {
	if err := p.checkConstraintState("AddNonlinearEquality", f); err != nil {
		return err
	}
	p.equalities = append(p.equalities, f)
	p.state = ConstraintsAdded
	return nil
}

func (p *NLCO) checkConstraintState(op string, f fn.DifferentiableFunction) error {
	if p.state != ObjectiveSet && p.state != ConstraintsAdded {
		return &StateError{Op: op, State: p.state}
	}
	if f == nil {
		return fmt.Errorf("nlco: %s: nil function", op)
	}
	return nil
}

// Reset empties the problem so it can be assembled again. The back end,
// settings and updater are kept.
func (p *NLCO) Reset() error {
	if p.state == Solving {
		return &StateError{Op: "Reset", State: p.state}
	}
	p.state = Uninitialized
	p.n = 0
	p.lower, p.upper = nil, nil
	p.objective = nil
	p.equalities = nil
	p.inequalities = nil
	return nil
}

// SetUpdater installs the progress callback. A nil updater disables it.
func (p *NLCO) SetUpdater(u Updater) error {
	if p.state == Solving {
		return &StateError{Op: "SetUpdater", State: p.state}
	}
	p.updater = u
	return nil
}

// Optimize solves the problem starting from x and writes the best point
// found back into x. A finished problem may be solved again from a new
// start; multipliers are not carried over.
//
// The error is nil on normal termination, ErrUserCancelled when the updater
// cancelled, and a *BadConvergenceError when the back end gave up.
func (p *NLCO) Optimize(x []float64) (Result, error) {
	switch {
	case p.state == ObjectiveSet, p.state == ConstraintsAdded, p.state.Terminal():
	default:
		return Result{}, &StateError{Op: "Optimize", State: p.state}
	}
	if len(x) != p.n {
		return Result{}, fmt.Errorf("nlco: start point has length %d, want %d", len(x), p.n)
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, fmt.Errorf("nlco: start point component %d is %g", i, v)
		}
	}

	p.state = Solving
	start := time.Now()
	slog.Debug("Starting solve",
		"algorithm", p.algorithm.String(),
		"variables", p.n,
		"equalities", len(p.equalities),
		"inequalities", len(p.inequalities),
	)

	calls0, grads0 := p.callCounts()
	s := newSolve(p, x, start)
	var err error
	if p.algorithm == Mayfly {
		err = s.runMayfly()
	}
	if err == nil {
		err = s.runAugmented()
	}

	res := s.result()
	copy(x, res.X)

	switch {
	case err == nil:
		p.state = Converged
		res.Status = NormalTermination
	case errors.Is(err, errCancelled):
		p.state = Cancelled
		res.Status = UserCancelled
		err = ErrUserCancelled
	default:
		p.state = Failed
		res.Status = OtherTermination
		res.Reason = err.Error()
		err = &BadConvergenceError{Algorithm: p.algorithm, Reason: res.Reason}
	}
	res.Elapsed = time.Since(start)
	calls, grads := p.callCounts()
	res.FunctionCalls, res.GradientCalls = calls-calls0, grads-grads0

	slog.Info("Solve finished",
		"algorithm", p.algorithm.String(),
		"status", res.Status.String(),
		"objective", res.Objective,
		"max_violation", res.MaxViolation,
		"outer_iterations", res.OuterIterations,
		"func_evaluations", res.FuncEvaluations,
		"function_calls", res.FunctionCalls,
		"gradient_calls", res.GradientCalls,
		"elapsed", res.Elapsed,
	)
	return res, err
}

// callCounts sums the call counters of the objective and the constraints.
func (p *NLCO) callCounts() (funcCalls, gradCalls int) {
	fns := make([]fn.DifferentiableFunction, 0, 1+len(p.equalities)+len(p.inequalities))
	fns = append(fns, p.objective)
	fns = append(fns, p.equalities...)
	fns = append(fns, p.inequalities...)
	return fn.TotalCalls(fns...)
}

// clamp projects x onto the bounds in place.
func clamp(x, lower, upper []float64) {
	for i := range x {
		x[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
	}
}

func allFinite(x []float64) bool {
	return !floats.HasNaN(x) && !math.IsInf(floats.Max(x), 1) && !math.IsInf(floats.Min(x), -1)
}
