package nlco

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/treeopt/internal/fn"
)

// bound is one finite side of a variable box, handled as an inequality
// during the solve.
type bound struct {
	i     int
	v     float64
	upper bool
}

func (b bound) value(x []float64) float64 {
	if b.upper {
		return x[b.i] - b.v
	}
	return b.v - x[b.i]
}

// solve is the working state of one Optimize call.
type solve struct {
	p     *NLCO
	start time.Time

	x      []float64
	du     []float64
	bounds []bound

	// Multipliers: lambda for equalities, mu for inequalities followed by
	// bounds.
	lambda []float64
	mu     []float64
	rho    float64

	outer      int
	evals      int
	grads      int
	lastUpdate int
	lastF      float64
	lastViol   float64

	best      []float64
	bestF     float64
	bestViol  float64
	converged bool
	cancelled bool
}

func newSolve(p *NLCO, x0 []float64, start time.Time) *solve {
	s := &solve{
		p:      p,
		start:  start,
		x:      append([]float64(nil), x0...),
		du:     make([]float64, p.n),
		lambda: make([]float64, len(p.equalities)),
		rho:    p.settings.InitialPenalty,
	}
	clamp(s.x, p.lower, p.upper)
	for i := range p.n {
		if !math.IsInf(p.lower[i], -1) {
			s.bounds = append(s.bounds, bound{i: i, v: p.lower[i]})
		}
		if !math.IsInf(p.upper[i], 1) {
			s.bounds = append(s.bounds, bound{i: i, v: p.upper[i], upper: true})
		}
	}
	s.mu = make([]float64, len(p.inequalities)+len(s.bounds))

	s.best = append([]float64(nil), s.x...)
	s.bestF, s.bestViol = s.evaluate(s.x)
	s.lastF, s.lastViol = s.bestF, s.bestViol
	return s
}

// evaluate returns the objective and the largest constraint violation at x.
func (s *solve) evaluate(x []float64) (f, viol float64) {
	f = s.p.objective.Func(x)
	for _, h := range s.p.equalities {
		viol = math.Max(viol, math.Abs(h.Func(x)))
	}
	for _, g := range s.p.inequalities {
		viol = math.Max(viol, g.Func(x))
	}
	for _, b := range s.bounds {
		viol = math.Max(viol, b.value(x))
	}
	return f, viol
}

// phr is the Powell-Hestenes-Rockafellar term for one inequality.
func phr(mu, g, rho float64) float64 {
	c := math.Max(0, mu+rho*g)
	return (c*c - mu*mu) / (2 * rho)
}

// merit is the augmented Lagrangian at x for the current multipliers.
func (s *solve) merit(x []float64) float64 {
	s.evals++
	f := s.p.objective.Func(x)
	m := f
	var viol float64
	for j, h := range s.p.equalities {
		v := h.Func(x)
		m += s.lambda[j]*v + s.rho/2*v*v
		viol = math.Max(viol, math.Abs(v))
	}
	for i, g := range s.p.inequalities {
		v := g.Func(x)
		m += phr(s.mu[i], v, s.rho)
		viol = math.Max(viol, v)
	}
	off := len(s.p.inequalities)
	for k, b := range s.bounds {
		v := b.value(x)
		m += phr(s.mu[off+k], v, s.rho)
		viol = math.Max(viol, v)
	}
	s.lastF, s.lastViol = f, viol
	return m
}

func (s *solve) meritGrad(grad, x []float64) {
	s.grads++
	s.p.objective.Grad(x, grad)
	for j, h := range s.p.equalities {
		c := s.lambda[j] + s.rho*h.Func(x)
		if c != 0 {
			h.Grad(x, s.du)
			floats.AddScaled(grad, c, s.du)
		}
	}
	for i, g := range s.p.inequalities {
		c := math.Max(0, s.mu[i]+s.rho*g.Func(x))
		if c != 0 {
			g.Grad(x, s.du)
			floats.AddScaled(grad, c, s.du)
		}
	}
	off := len(s.p.inequalities)
	for k, b := range s.bounds {
		c := math.Max(0, s.mu[off+k]+s.rho*b.value(x))
		if b.upper {
			grad[b.i] += c
		} else {
			grad[b.i] -= c
		}
	}
}

func (s *solve) updateMultipliers(x []float64) {
	for j, h := range s.p.equalities {
		s.lambda[j] += s.rho * h.Func(x)
	}
	for i, g := range s.p.inequalities {
		s.mu[i] = math.Max(0, s.mu[i]+s.rho*g.Func(x))
	}
	off := len(s.p.inequalities)
	for k, b := range s.bounds {
		s.mu[off+k] = math.Max(0, s.mu[off+k]+s.rho*b.value(x))
	}
}

// Init implements optimize.Recorder.
func (s *solve) Init() error { return nil }

// Record implements optimize.Recorder. gonum calls it on the goroutine that
// called Minimize after every operation, which makes it the place to hand
// control to the updater.
func (s *solve) Record(loc *optimize.Location, _ optimize.Operation, _ *optimize.Stats) error {
	if s.evals-s.lastUpdate < s.p.settings.UpdateEvery {
		return nil
	}
	x := s.x
	if loc != nil && loc.X != nil {
		x = loc.X
	}
	return s.notify(x)
}

// notify runs the updater and converts Cancel into errCancelled.
func (s *solve) notify(x []float64) error {
	s.lastUpdate = s.evals
	if s.p.updater == nil {
		return nil
	}
	action := s.p.updater(Progress{
		Algorithm:      s.p.algorithm,
		OuterIteration: s.outer,
		Evaluations:    s.evals,
		Objective:      s.lastF,
		MaxViolation:   s.lastViol,
		Penalty:        s.rho,
		X:              x,
		Elapsed:        time.Since(s.start),
	})
	if action == Cancel {
		s.cancelled = true
		slog.Info("Solve cancelled by updater",
			"outer_iteration", s.outer,
			"evaluations", s.evals,
		)
		return errCancelled
	}
	return nil
}

// consider keeps x as the best point if it beats the current best. Feasible
// points beat infeasible ones; among feasible points the lower objective
// wins, among infeasible ones the lower violation.
func (s *solve) consider(x []float64, f, viol float64) {
	tol := s.p.settings.Tolerance
	feasible, bestFeasible := viol <= tol, s.bestViol <= tol
	var better bool
	switch {
	case feasible && bestFeasible:
		better = f < s.bestF
	case feasible != bestFeasible:
		better = feasible
	default:
		better = viol < s.bestViol
	}
	if better {
		copy(s.best, x)
		s.bestF, s.bestViol = f, viol
	}
}

func (s *solve) innerSettings() *optimize.Settings {
	st := s.p.settings
	settings := &optimize.Settings{
		MajorIterations:   st.MaxInnerIterations,
		GradientThreshold: st.Tolerance,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-2 * st.Tolerance * st.Tolerance,
			Relative:   1e-2 * st.Tolerance * st.Tolerance,
			Iterations: 20,
		},
		Recorder: s,
	}
	if s.p.algorithm == NelderMead {
		settings.FuncEvaluations = st.MaxInnerIterations * 10 * (s.p.n + 1)
	}
	return settings
}

// runAugmented drives the outer augmented Lagrangian loop from s.x.
func (s *solve) runAugmented() error {
	st := s.p.settings
	problem := optimize.Problem{Func: s.merit, Grad: s.meritGrad}
	tracker := newStallTracker(st.Patience, stallThreshold)

	prevF, prevViol := s.evaluate(s.x)
	for s.outer = 1; s.outer <= st.MaxOuterIterations; s.outer++ {
		res, err := optimize.Minimize(problem, s.x, s.innerSettings(), s.p.algorithm.innerMethod())
		if s.cancelled || errors.Is(err, errCancelled) {
			return errCancelled
		}
		if err != nil {
			if !s.p.algorithm.tolerant() || res == nil || !allFinite(res.X) {
				return err
			}
			slog.Debug("Inner solve ended early",
				"outer_iteration", s.outer,
				"status", res.Status.String(),
				"error", err,
			)
		}
		copy(s.x, res.X)

		f, viol := s.evaluate(s.x)
		if math.IsNaN(f) || math.IsInf(f, 0) || math.IsNaN(viol) {
			return fmt.Errorf("non-finite merit at outer iteration %d", s.outer)
		}
		s.consider(s.x, f, viol)
		s.lastF, s.lastViol = f, viol

		slog.Debug("Outer iteration",
			"outer_iteration", s.outer,
			"objective", f,
			"max_violation", viol,
			"penalty", s.rho,
			"inner_status", res.Status.String(),
			"inner_iterations", res.Stats.MajorIterations,
		)

		if err := s.notify(s.x); err != nil {
			return err
		}

		if viol <= st.Tolerance && math.Abs(f-prevF) <= st.Tolerance*(1+math.Abs(f)) {
			s.converged = true
			return nil
		}

		s.updateMultipliers(s.x)
		if viol > 0.25*prevViol {
			s.rho = math.Min(s.rho*st.PenaltyGrowth, st.MaxPenalty)
		}

		if viol <= st.Tolerance {
			tracker.Reset()
		} else if tracker.Update(viol) {
			return fmt.Errorf("constraint violation stalled at %.3g after %d outer iterations (no 1%% improvement on %.3g in %d iterations)",
				viol, s.outer, tracker.LastSignificant(), tracker.StaleCount())
		}
		prevF, prevViol = f, viol
	}
	s.outer = st.MaxOuterIterations
	return fmt.Errorf("outer iteration limit %d reached with violation %.3g", st.MaxOuterIterations, s.lastViol)
}

// result assembles the Result from the final iterate on convergence and the
// best point otherwise. The point is clamped to the bounds.
func (s *solve) result() Result {
	x := s.best
	if s.converged {
		x = s.x
	}
	x = append([]float64(nil), x...)
	clamp(x, s.p.lower, s.p.upper)
	f, viol := s.evaluate(x)

	return Result{
		X:               x,
		Objective:       f,
		MaxViolation:    viol,
		OuterIterations: s.outer,
		FuncEvaluations: s.evals,
		GradEvaluations: s.grads,
	}
}

// penalized is the exterior penalty used by the global search.
func (s *solve) penalized(x []float64, weight float64) float64 {
	f := s.p.objective.Func(x)
	var sq float64
	for _, h := range s.p.equalities {
		v := h.Func(x)
		sq += v * v
	}
	for _, g := range s.p.inequalities {
		v := math.Max(0, g.Func(x))
		sq += v * v
	}
	for _, b := range s.bounds {
		v := math.Max(0, b.value(x))
		sq += v * v
	}
	return f + weight*sq
}

var _ optimize.Recorder = (*solve)(nil)
var _ fn.DifferentiableFunction = (*meritFunction)(nil)

// meritFunction exposes the merit of a solve as a DifferentiableFunction so it
// can be checked like any other function.
type meritFunction struct{ s *solve }

func (m meritFunction) Func(u []float64) float64 { return m.s.merit(u) }
func (m meritFunction) Grad(u, du []float64)     { m.s.meritGrad(du, u) }
