// Package store persists solve checkpoints (tree snapshots taken before and
// after a solve) and per-job JSONL traces of solver progress.
package store

// Store persists checkpoints. Implementations must be safe for concurrent
// use.
//
// Load and Delete return ErrNotFound for unknown jobs; other failures wrap
// the underlying error with context.
type Store interface {
	// SaveCheckpoint atomically writes the checkpoint of jobID, replacing any
	// previous one.
	SaveCheckpoint(jobID string, checkpoint *Checkpoint) error

	// LoadCheckpoint reads the checkpoint of jobID.
	LoadCheckpoint(jobID string) (*Checkpoint, error)

	// ListCheckpoints returns metadata for every readable checkpoint, newest
	// first.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the job directory, including checkpoint.json
	// and trace.jsonl.
	DeleteCheckpoint(jobID string) error
}

// ErrNotFound is returned when a requested checkpoint does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint or trace.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "checkpoint not found: " + e.JobID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
