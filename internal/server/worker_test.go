package server

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/treeopt/internal/store"
	"github.com/cwbudde/treeopt/internal/tree"
)

// testDesign is a single edge from a pinned anchor at the origin to a tip
// that a condition pins at (0.5, 0), so the strain solve compresses the edge
// to half its length.
func testDesign() tree.Document {
	return tree.Document{
		PaperWidth:  4,
		PaperHeight: 4,
		Scale:       1,
		Nodes: []tree.NodeDoc{
			{ID: 0, Label: "anchor", X: 0, Y: 0, Pinned: true},
			{ID: 1, Label: "tip", X: 2, Y: 1},
		},
		Edges: []tree.EdgeDoc{
			{ID: 0, Node1: 0, Node2: 1, Length: 1, Stiffness: 1},
		},
		Conditions: []tree.ConditionDoc{
			{Condition: &tree.NodeFixed{Node: 1, XFixed: true, YFixed: true, X: 0.5, Y: 0}},
		},
	}
}

func TestRunJob_Success(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Optimizer: "strain", Algorithm: "lbfgs"}, testDesign())

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Fatalf("Job should be completed, got %s (%s)", updated.State, updated.Error)
	}
	if updated.Status != "NormalTermination" {
		t.Errorf("Status = %s", updated.Status)
	}
	if updated.NumVars != 3 {
		t.Errorf("Expected 3 variables (tip x, y and one strain), got %d", updated.NumVars)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
	if !updated.HasResult() {
		t.Fatal("Solved job should have a result")
	}

	design := updated.Design()
	if math.Abs(design.Edges[0].Strain+0.5) > 1e-3 {
		t.Errorf("Strain = %g, want -0.5", design.Edges[0].Strain)
	}
	if math.Abs(design.Nodes[1].X-0.5) > 1e-3 {
		t.Errorf("Tip x = %g, want 0.5", design.Nodes[1].X)
	}
	// The submitted design is untouched.
	if updated.design.Nodes[1].X != 2 {
		t.Errorf("Submitted design changed: tip x = %g", updated.design.Nodes[1].X)
	}
}

func TestRunJob_VariableSelection(t *testing.T) {
	jm := NewJobManager()
	// Only the strain varies; the tip stays where it is.
	job := jm.CreateJob(JobConfig{Optimizer: "strain", Algorithm: "lbfgs", Nodes: []int{}}, testDesign())

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}
	updated, _ := jm.GetJob(job.ID)
	if updated.NumVars != 1 {
		t.Errorf("Expected 1 variable, got %d", updated.NumVars)
	}
	if !updated.HasResult() {
		t.Fatal("Solved job should have a result")
	}
	design := updated.Design()
	if design.Nodes[1].X != 2 || design.Nodes[1].Y != 1 {
		t.Errorf("Tip moved to (%g, %g)", design.Nodes[1].X, design.Nodes[1].Y)
	}

	bad := jm.CreateJob(JobConfig{Optimizer: "strain", Algorithm: "lbfgs", Edges: []int{4}}, testDesign())
	if err := runJob(context.Background(), jm, nil, bad.ID); err == nil {
		t.Error("Unknown edge should fail the job")
	}
	if failed, _ := jm.GetJob(bad.ID); failed.State != StateFailed {
		t.Errorf("Expected failed, got %s", failed.State)
	}
}

func TestRunJob_WritesCheckpointAndTrace(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{DesignPath: "segment.json", Optimizer: "strain", Algorithm: "bfgs"}, testDesign())

	if err := runJob(context.Background(), jm, st, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	checkpoint, err := st.LoadCheckpoint(job.ID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if checkpoint.Status != "NormalTermination" {
		t.Errorf("Checkpoint status = %s", checkpoint.Status)
	}
	if checkpoint.PostSolve == nil {
		t.Fatal("Final checkpoint should carry the solved tree")
	}
	if checkpoint.PreSolve.Nodes[1].X != 2 {
		t.Errorf("PreSolve should be the submitted tree")
	}
	if checkpoint.Config.Algorithm != "bfgs" {
		t.Errorf("Config not stored: %+v", checkpoint.Config)
	}

	reader, err := store.NewTraceReader(dir, job.ID)
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer reader.Close()
	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) == 0 {
		t.Error("Expected trace entries from the updater")
	}
}

func TestRunJob_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config JobConfig
	}{
		{"unknown optimizer", JobConfig{Optimizer: "bogus", Algorithm: "lbfgs"}},
		{"unknown algorithm", JobConfig{Optimizer: "strain", Algorithm: "simplex9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jm := NewJobManager()
			job := jm.CreateJob(tt.config, testDesign())

			if err := runJob(context.Background(), jm, nil, job.ID); err == nil {
				t.Error("runJob should fail")
			}

			updated, _ := jm.GetJob(job.ID)
			if updated.State != StateFailed {
				t.Errorf("Job should be failed, got %s", updated.State)
			}
			if updated.Error == "" {
				t.Error("Error message should be set")
			}
		})
	}
}

func TestRunJob_NothingToOptimize(t *testing.T) {
	design := testDesign()
	design.Nodes[1].Pinned = true
	design.Edges[0].Pinned = true

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Optimizer: "strain", Algorithm: "lbfgs"}, design)

	if err := runJob(context.Background(), jm, nil, job.ID); err == nil {
		t.Error("runJob should fail when nothing can move")
	}
	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Optimizer: "strain", Algorithm: "lbfgs"}, testDesign())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runJob(ctx, jm, nil, job.ID)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("runJob should return context.Canceled, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_CancelledWhilePending(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Optimizer: "strain", Algorithm: "lbfgs"}, testDesign())
	if err := jm.Cancel(job.ID); err != nil {
		t.Fatal(err)
	}

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Errorf("runJob should skip a cancelled job, got %v", err)
	}
	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled || updated.HasResult() {
		t.Errorf("Job should stay cancelled without result, got %s", updated.State)
	}
}

func TestRunJob_NotFound(t *testing.T) {
	err := runJob(context.Background(), NewJobManager(), nil, "nonexistent")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}
