package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/optimizer"
	"github.com/cwbudde/treeopt/internal/store"
	"github.com/cwbudde/treeopt/internal/tree"
)

// runJob solves a job on the calling goroutine. Progress is broadcast twice a
// second; if checkpointStore is not nil a running checkpoint is saved before
// the solve, every CheckpointInterval seconds during it, and a final one with
// the solved tree afterwards.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.State.Terminal() {
		// Cancelled while pending.
		return nil
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job",
		"job_id", jobID,
		"optimizer", job.Config.Optimizer,
		"algorithm", job.Config.Algorithm,
		"design", job.Config.DesignPath,
	)

	kind, err := optimizer.ParseKind(job.Config.Optimizer)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	algorithm, err := nlco.ParseAlgorithm(job.Config.Algorithm)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	t, err := tree.FromDocument(job.design)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to build tree: %w", err))
		return err
	}
	nodes, edges, err := t.Select(job.Config.Nodes, job.Config.Edges)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	o, err := optimizer.NewFor(kind, t, nodes, edges, algorithm, job.Config.Settings())
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to initialize optimizer: %w", err))
		return err
	}

	jm.UpdateJob(jobID, func(j *Job) {
		j.NumVars = o.NumVars()
		j.NumConstraints = o.NumConstraints()
	})
	slog.Info("Optimizer initialized", "job_id", jobID, "variables", o.NumVars(), "constraints", o.NumConstraints())

	if checkpointStore != nil {
		if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
			slog.Warn("Failed to save initial checkpoint", "job_id", jobID, "error", err)
		}
	}
	trace := openTrace(checkpointStore, jobID)
	if trace != nil {
		defer trace.Close()
	}

	// Check for cancellation before starting expensive operation
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	start := time.Now()
	done := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, start, done)
	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		go monitorCheckpoints(ctx, jm, checkpointStore, jobID, done)
	}

	o.SetUpdater(func(p nlco.Progress) nlco.Action {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Objective = p.Objective
			j.MaxViolation = p.MaxViolation
			j.Iterations = p.OuterIteration
			j.Evaluations = p.Evaluations
		})
		if trace != nil {
			if err := trace.Write(store.EntryFromProgress(p, false)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
		if ctx.Err() != nil {
			return nlco.Cancel
		}
		return nlco.Continue
	})

	res, solveErr := o.Optimize()
	close(done)
	elapsed := time.Since(start)

	var result *tree.Document
	if res.X != nil {
		doc := tree.ToDocument(t)
		result = &doc
	}

	state := StateCompleted
	switch {
	case solveErr == nil:
	case errors.Is(solveErr, nlco.ErrUserCancelled):
		state = StateCancelled
	default:
		state = StateFailed
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.Status = res.Status.String()
		j.Reason = res.Reason
		j.Objective = res.Objective
		j.MaxViolation = res.MaxViolation
		j.Iterations = res.OuterIterations
		j.Evaluations = res.FuncEvaluations
		j.result = result
		j.EndTime = &endTime
		if state == StateFailed {
			j.Error = solveErr.Error()
		}
	})
	if err != nil {
		return err
	}

	if checkpointStore != nil {
		if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
			slog.Error("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	slog.Info("Job finished",
		"job_id", jobID,
		"state", state,
		"status", res.Status.String(),
		"elapsed", elapsed,
		"objective", res.Objective,
		"max_violation", res.MaxViolation,
		"evaluations", res.FuncEvaluations,
	)

	jm.progress.Publish(ProgressEvent{
		JobID:          jobID,
		State:          state,
		Iterations:     res.OuterIterations,
		Evaluations:    res.FuncEvaluations,
		Objective:      res.Objective,
		MaxViolation:   res.MaxViolation,
		EvalsPerSecond: evalsPerSecond(res.FuncEvaluations, elapsed),
		Timestamp:      time.Now(),
	})

	return solveErr
}

// openTrace opens the job's trace when the store lives on the filesystem.
func openTrace(checkpointStore store.Store, jobID string) *store.TraceWriter {
	fsStore, ok := checkpointStore.(interface{ BaseDir() string })
	if !ok {
		return nil
	}
	trace, err := store.NewTraceWriter(fsStore.BaseDir(), jobID, false)
	if err != nil {
		slog.Warn("Failed to open trace", "job_id", jobID, "error", err)
		return nil
	}
	return trace
}

func evalsPerSecond(evals int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(evals) / elapsed.Seconds()
}

// monitorProgress publishes the job's counters twice a second while it solves.
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			jm.progress.Publish(progressOf(job, time.Since(startTime)))
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}

// monitorCheckpoints periodically saves running checkpoints during optimization
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	interval := time.Duration(job.Config.CheckpointInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint writes the job's current state. While the job runs the
// checkpoint only carries metrics; once it ended it also holds the solved tree.
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	checkpoint := store.NewCheckpoint(jobID, job.design, job.Config)
	checkpoint.PostSolve = job.result
	checkpoint.Objective = job.Objective
	checkpoint.MaxViolation = job.MaxViolation
	checkpoint.Iteration = job.Iterations
	if job.State.Terminal() {
		checkpoint.Status = job.Status
		checkpoint.Reason = job.Reason
	}
	if checkpoint.Status == "" {
		checkpoint.Status = string(job.State)
	}

	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"status", checkpoint.Status,
		"iteration", checkpoint.Iteration,
		"objective", checkpoint.Objective,
	)
	return nil
}
