package nlco

import "fmt"

// Settings tunes the augmented Lagrangian loop and the global search.
type Settings struct {
	// Tolerance bounds both the maximum constraint violation and the
	// relative objective change between outer iterations at convergence.
	Tolerance float64

	MaxOuterIterations int
	// MaxInnerIterations caps the major iterations of each subproblem.
	MaxInnerIterations int

	InitialPenalty float64
	PenaltyGrowth  float64
	MaxPenalty     float64

	// UpdateEvery is the number of function evaluations between updater
	// calls. The updater also runs after every outer iteration.
	UpdateEvery int

	// Patience is the number of outer iterations the violation may fail to
	// improve before the solve is reported as stalled.
	Patience int

	MayflyIterations int
	MayflyPopulation int
	MayflyPenalty    float64
	Seed             int64
}

// DefaultSettings returns the settings used by the CLI and the job server
// unless overridden.
func DefaultSettings() Settings {
	return Settings{
		Tolerance:          1e-6,
		MaxOuterIterations: 50,
		MaxInnerIterations: 400,
		InitialPenalty:     10,
		PenaltyGrowth:      10,
		MaxPenalty:         1e9,
		UpdateEvery:        25,
		Patience:           6,
		MayflyIterations:   150,
		MayflyPopulation:   24,
		MayflyPenalty:      1e4,
		Seed:               1,
	}
}

// minMayflyPopulation is the smallest population the mayfly library accepts.
const minMayflyPopulation = 20

// Validate checks that the settings describe a runnable solve.
func (s Settings) Validate() error {
	switch {
	case s.Tolerance <= 0:
		return fmt.Errorf("tolerance must be positive, got %g", s.Tolerance)
	case s.MaxOuterIterations < 1:
		return fmt.Errorf("max outer iterations must be at least 1, got %d", s.MaxOuterIterations)
	case s.MaxInnerIterations < 1:
		return fmt.Errorf("max inner iterations must be at least 1, got %d", s.MaxInnerIterations)
	case s.InitialPenalty <= 0:
		return fmt.Errorf("initial penalty must be positive, got %g", s.InitialPenalty)
	case s.PenaltyGrowth <= 1:
		return fmt.Errorf("penalty growth must exceed 1, got %g", s.PenaltyGrowth)
	case s.MaxPenalty < s.InitialPenalty:
		return fmt.Errorf("max penalty %g is below initial penalty %g", s.MaxPenalty, s.InitialPenalty)
	case s.UpdateEvery < 1:
		return fmt.Errorf("update interval must be at least 1, got %d", s.UpdateEvery)
	case s.Patience < 1:
		return fmt.Errorf("patience must be at least 1, got %d", s.Patience)
	case s.MayflyIterations < 1:
		return fmt.Errorf("mayfly iterations must be at least 1, got %d", s.MayflyIterations)
	case s.MayflyPopulation < minMayflyPopulation:
		return fmt.Errorf("mayfly population must be at least %d, got %d", minMayflyPopulation, s.MayflyPopulation)
	case s.MayflyPenalty <= 0:
		return fmt.Errorf("mayfly penalty must be positive, got %g", s.MayflyPenalty)
	}
	return nil
}
