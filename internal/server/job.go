package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cwbudde/treeopt/internal/store"
	"github.com/cwbudde/treeopt/internal/tree"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether a job in this state will not change again.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job is a solve submitted to the server. The design snapshots are not part
// of the JSON view; they are served by the design endpoint.
type Job struct {
	ID     string    `json:"id"`
	State  JobState  `json:"state"`
	Config JobConfig `json:"config"`

	// Status is the solver's termination status once the solve returned.
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`

	Objective    float64 `json:"objective"`
	MaxViolation float64 `json:"maxViolation"`
	Iterations   int     `json:"iterations"`
	Evaluations  int     `json:"evaluations"`

	NumVars        int `json:"numVars,omitempty"`
	NumConstraints int `json:"numConstraints,omitempty"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`

	design tree.Document
	result *tree.Document
}

// Design returns the solved tree if the solve produced a point, otherwise the
// submitted one.
func (j *Job) Design() tree.Document {
	if j.result != nil {
		return *j.result
	}
	return j.design
}

// HasResult reports whether the solver wrote a point back.
func (j *Job) HasResult() bool { return j.result != nil }

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	cancels  map[string]context.CancelFunc
	progress *ProgressHub
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:     make(map[string]*Job),
		cancels:  make(map[string]context.CancelFunc),
		progress: NewProgressHub(),
	}
}

// CreateJob registers a pending job for the given design.
func (jm *JobManager) CreateJob(config JobConfig, design tree.Document) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
		design:    design,
	}

	jm.jobs[job.ID] = job
	snapshot := *job
	return &snapshot
}

// GetJob returns a snapshot of the job with the given ID.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// ListJobs returns snapshots of all jobs, oldest first.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	slices.SortFunc(jobs, func(a, b *Job) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns snapshots of the jobs whose worker is solving.
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			snapshot := *job
			runningJobs = append(runningJobs, &snapshot)
		}
	}
	return runningJobs
}

// Start derives the context a job's worker runs under. Cancel closes it.
func (jm *JobManager) Start(parent context.Context, id string) (context.Context, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if _, exists := jm.jobs[id]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	ctx, cancel := context.WithCancel(parent)
	jm.cancels[id] = cancel
	return ctx, nil
}

// Finish releases the cancel func of a job whose worker returned.
func (jm *JobManager) Finish(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if cancel, ok := jm.cancels[id]; ok {
		cancel()
		delete(jm.cancels, id)
	}
}

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when cancelling a job that already ended.
	ErrJobFinished = errors.New("job already finished")
)

// Cancel asks the worker of a job to stop. The solver notices on its next
// updater callback, so the job stays running briefly.
func (jm *JobManager) Cancel(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.State.Terminal() {
		return ErrJobFinished
	}
	cancel, ok := jm.cancels[id]
	if !ok {
		// Never started: nothing will pick it up.
		now := time.Now()
		job.State = StateCancelled
		job.EndTime = &now
		return nil
	}
	cancel()
	return nil
}

// Shutdown cancels every running job and ends the open progress streams.
func (jm *JobManager) Shutdown() {
	jm.mu.Lock()
	for _, cancel := range jm.cancels {
		cancel()
	}
	jm.mu.Unlock()

	jm.progress.Close()
}
