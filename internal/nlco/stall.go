package nlco

import (
	"log/slog"
	"math"
)

// stallThreshold is the relative drop in constraint violation that counts as
// progress between outer iterations.
const stallThreshold = 0.01

// stallTracker watches the constraint violation across outer iterations and
// reports a stall once it has failed to improve for patience iterations in a
// row.
type stallTracker struct {
	patience        int
	threshold       float64
	lastSignificant float64
	staleCount      int
}

func newStallTracker(patience int, threshold float64) *stallTracker {
	return &stallTracker{
		patience:        patience,
		threshold:       threshold,
		lastSignificant: math.Inf(1),
	}
}

// Update records a violation and returns true once the solve has stalled.
func (c *stallTracker) Update(violation float64) bool {
	if math.IsInf(c.lastSignificant, 1) {
		c.lastSignificant = violation
		return false
	}

	denom := math.Max(math.Abs(c.lastSignificant), math.SmallestNonzeroFloat64)
	improvement := (c.lastSignificant - violation) / denom
	if improvement >= c.threshold {
		c.lastSignificant = violation
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("No significant violation improvement",
		"violation", violation,
		"last_significant", c.lastSignificant,
		"relative_improvement", improvement,
		"stale_count", c.staleCount,
		"patience", c.patience,
	)
	return c.staleCount >= c.patience
}

// StaleCount is the number of outer iterations since the last significant
// improvement.
func (c *stallTracker) StaleCount() int { return c.staleCount }

// LastSignificant is the violation at the last significant improvement.
func (c *stallTracker) LastSignificant() float64 { return c.lastSignificant }

func (c *stallTracker) Reset() {
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
