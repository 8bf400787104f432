package nlco

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// mayflySpan sizes the search box around the start point for variables whose
// bounds are open, in multiples of max(1, |x0|).
const mayflySpan = 10

// searchBox returns the lower corner and extent of the region sampled by the
// global search.
func searchBox(x0, lower, upper []float64) (lo, span []float64) {
	lo = make([]float64, len(x0))
	span = make([]float64, len(x0))
	for i, v := range x0 {
		r := mayflySpan * math.Max(1, math.Abs(v))
		l, h := lower[i], upper[i]
		if math.IsInf(l, -1) {
			l = v - r
		}
		if math.IsInf(h, 1) {
			h = v + r
		}
		lo[i], span[i] = l, h-l
	}
	return lo, span
}

// runMayfly searches the penalized problem globally and leaves the best point
// in s.x for the augmented Lagrangian polish. The library works on the unit
// hypercube, so positions are mapped onto the search box.
func (s *solve) runMayfly() (err error) {
	st := s.p.settings
	lo, span := searchBox(s.x, s.p.lower, s.p.upper)
	y := make([]float64, s.p.n)
	toProblem := func(t []float64) []float64 {
		for i := range y {
			y[i] = lo[i] + math.Max(0, math.Min(1, t[i]))*span[i]
		}
		return y
	}

	eval := func(t []float64) float64 {
		s.evals++
		x := toProblem(t)
		v := s.penalized(x, st.MayflyPenalty)
		if s.evals-s.lastUpdate >= st.UpdateEvery {
			s.lastF, s.lastViol = s.evaluate(x)
			if err := s.notify(x); err != nil {
				// The library has no way to stop early; unwind to the recover
				// below.
				panic(err)
			}
		}
		return v
	}

	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, errCancelled) {
				err = errCancelled
				return
			}
			panic(r)
		}
	}()

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = s.p.n
	config.MaxIterations = st.MayflyIterations
	config.NPop = st.MayflyPopulation
	config.NPopF = st.MayflyPopulation
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(st.Seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return fmt.Errorf("mayfly: %w", err)
	}

	candidate := append([]float64(nil), toProblem(result.GlobalBest.Position)...)
	if s.penalized(candidate, st.MayflyPenalty) < s.penalized(s.x, st.MayflyPenalty) {
		copy(s.x, candidate)
	}
	f, viol := s.evaluate(s.x)
	s.consider(s.x, f, viol)
	s.lastF, s.lastViol = f, viol

	slog.Debug("Global search finished",
		"iterations", result.IterationCount,
		"evaluations", result.FuncEvalCount,
		"cost", result.GlobalBest.Cost,
		"objective", f,
		"max_violation", viol,
	)
	return nil
}
