package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/tree"
)

// JobConfig holds the settings of a solve job (checkpoint copy).
// This avoids import cycles with server package.
type JobConfig struct {
	DesignPath         string  `json:"designPath"`
	Optimizer          string  `json:"optimizer"` // strain, scale, edge
	Algorithm          string  `json:"algorithm"` // lbfgs, bfgs, cg, neldermead, mayfly
	Tolerance          float64 `json:"tolerance,omitempty"`
	MaxOuterIterations int     `json:"maxOuterIterations,omitempty"`
	// Seed of the mayfly back end. Nil keeps the default, so 0 is a valid seed.
	Seed               *int64  `json:"seed,omitempty"`
	CheckpointInterval int     `json:"checkpointInterval,omitempty"` // Checkpoint every N seconds (0 = only at the end)

	// Nodes and Edges select the variables by ID. Nil means the tree's
	// movable nodes and stretchy edges; an empty list selects none.
	Nodes []int `json:"nodes"`
	Edges []int `json:"edges"`
}

// Settings returns the solver settings for this job: the defaults with the
// configured tolerance, outer iteration cap and seed applied. A zero tolerance
// or iteration cap and a nil seed keep the defaults.
func (c JobConfig) Settings() nlco.Settings {
	s := nlco.DefaultSettings()
	if c.Tolerance > 0 {
		s.Tolerance = c.Tolerance
	}
	if c.MaxOuterIterations > 0 {
		s.MaxOuterIterations = c.MaxOuterIterations
	}
	if c.Seed != nil {
		s.Seed = *c.Seed
	}
	return s
}

// Checkpoint records a solve: the tree before it started and, once the
// solver produced a point, the tree after it. Reverting a design means
// restoring PreSolve.
//
// A checkpoint written while the solve runs has no PostSolve, Status
// "running" and the metrics of the last updater callback. Solver multipliers
// are not saved; resuming starts a fresh solve from Latest().
type Checkpoint struct {
	// JobID is the unique identifier for this solve job
	JobID string `json:"jobId"`

	// PreSolve is the tree as it was before the solve started
	PreSolve tree.Document `json:"preSolve"`

	// PostSolve is the tree with the solver's best point written back, or nil
	// when the solve failed before producing one
	PostSolve *tree.Document `json:"postSolve,omitempty"`

	// Status is "running" or the termination status of the solver
	Status string `json:"status"`

	// Reason carries the back end's message when the solve did not converge
	Reason string `json:"reason,omitempty"`

	Objective    float64 `json:"objective"`
	MaxViolation float64 `json:"maxViolation"`

	// Iteration is the outer iteration count when this checkpoint was created
	Iteration int `json:"iteration"`

	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed to resume the solve.
	Config JobConfig `json:"config"`
}

// StatusRunning marks a checkpoint written during a solve.
const StatusRunning = "running"

// CheckpointInfo contains metadata about a checkpoint without the tree
// snapshots. Used for listing checkpoints.
type CheckpointInfo struct {
	JobID        string    `json:"jobId"`
	Status       string    `json:"status"`
	Objective    float64   `json:"objective"`
	MaxViolation float64   `json:"maxViolation"`
	Iteration    int       `json:"iteration"`
	Timestamp    time.Time `json:"timestamp"`
	Optimizer    string    `json:"optimizer"`
	Algorithm    string    `json:"algorithm"`
	DesignPath   string    `json:"designPath"`
	Nodes        int       `json:"nodes"`
	Edges        int       `json:"edges"`
}

// NewCheckpoint creates a checkpoint for a solve that is about to start.
func NewCheckpoint(jobID string, pre tree.Document, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:     jobID,
		PreSolve:  pre,
		Status:    StatusRunning,
		Timestamp: time.Now(),
		Config:    config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:        c.JobID,
		Status:       c.Status,
		Objective:    c.Objective,
		MaxViolation: c.MaxViolation,
		Iteration:    c.Iteration,
		Timestamp:    c.Timestamp,
		Optimizer:    c.Config.Optimizer,
		Algorithm:    c.Config.Algorithm,
		DesignPath:   c.Config.DesignPath,
		Nodes:        len(c.PreSolve.Nodes),
		Edges:        len(c.PreSolve.Edges),
	}
}

// Latest returns the most recent tree snapshot: PostSolve if present,
// otherwise PreSolve.
func (c *Checkpoint) Latest() tree.Document {
	if c.PostSolve != nil {
		return *c.PostSolve
	}
	return c.PreSolve
}

// Validate checks if the checkpoint has valid data.
// Returns an error if any required field is missing or invalid.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.PreSolve.Nodes) == 0 {
		return &ValidationError{Field: "PreSolve", Reason: "has no nodes"}
	}
	if c.PostSolve != nil {
		if len(c.PostSolve.Nodes) != len(c.PreSolve.Nodes) || len(c.PostSolve.Edges) != len(c.PreSolve.Edges) {
			return &ValidationError{
				Field: "PostSolve",
				Reason: fmt.Sprintf("shape mismatch: %d nodes, %d edges, expected %d and %d",
					len(c.PostSolve.Nodes), len(c.PostSolve.Edges), len(c.PreSolve.Nodes), len(c.PreSolve.Edges)),
			}
		}
	}
	if c.Status == "" {
		return &ValidationError{Field: "Status", Reason: "cannot be empty"}
	}
	if c.MaxViolation < 0 {
		return &ValidationError{Field: "MaxViolation", Reason: "cannot be negative"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Optimizer == "" {
		return &ValidationError{Field: "Config.Optimizer", Reason: "cannot be empty"}
	}
	if c.Config.Algorithm == "" {
		return &ValidationError{Field: "Config.Algorithm", Reason: "cannot be empty"}
	}
	if c.Config.Tolerance < 0 {
		return &ValidationError{Field: "Config.Tolerance", Reason: "cannot be negative"}
	}
	if c.Config.MaxOuterIterations < 0 {
		return &ValidationError{Field: "Config.MaxOuterIterations", Reason: "cannot be negative"}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
// The algorithm may change between runs; the design and optimizer may not.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.DesignPath != config.DesignPath {
		return &CompatibilityError{
			Field:    "DesignPath",
			Expected: c.Config.DesignPath,
			Actual:   config.DesignPath,
		}
	}
	if c.Config.Optimizer != config.Optimizer {
		return &CompatibilityError{
			Field:    "Optimizer",
			Expected: c.Config.Optimizer,
			Actual:   config.Optimizer,
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
