package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cwbudde/treeopt/internal/tree"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

// testDocument is a two-flap tree snapshot.
func testDocument() tree.Document {
	return tree.Document{
		PaperWidth:  1,
		PaperHeight: 1,
		Scale:       0.25,
		Nodes: []tree.NodeDoc{
			{ID: 0, X: 0.5, Y: 0.5},
			{ID: 1, X: 0.1, Y: 0.2},
			{ID: 2, X: 0.9, Y: 0.8},
		},
		Edges: []tree.EdgeDoc{
			{ID: 0, Node1: 0, Node2: 1, Length: 1, Stiffness: 1},
			{ID: 1, Node1: 0, Node2: 2, Length: 1, Stiffness: 1},
		},
	}
}

// createTestCheckpoint creates a finished checkpoint with test data.
func createTestCheckpoint(jobID string) *Checkpoint {
	pre := testDocument()
	post := testDocument()
	post.Nodes[1].X, post.Nodes[1].Y = 0, 0
	post.Nodes[2].X, post.Nodes[2].Y = 1, 1
	post.Edges[0].Strain = 0.05

	return &Checkpoint{
		JobID:        jobID,
		PreSolve:     pre,
		PostSolve:    &post,
		Status:       "NormalTermination",
		Objective:    0.0025,
		MaxViolation: 1e-9,
		Iteration:    7,
		Timestamp:    time.Now(),
		Config: JobConfig{
			DesignPath: "designs/lizard.json",
			Optimizer:  "strain",
			Algorithm:  "lbfgs",
			Tolerance:  1e-6,
			Seed:       seedOf(42),
		},
	}
}

func TestNewFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != dir {
		t.Errorf("BaseDir = %q, want %q", store.BaseDir(), dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("Base directory was not created: %v", err)
	}
}

func TestSaveCheckpoint(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "test-job-123"
	if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "jobs", jobID, "checkpoint.json")
	if _, err := os.Stat(expectedPath); err != nil {
		t.Fatalf("Checkpoint file was not created at %s", expectedPath)
	}
	if _, err := os.Stat(expectedPath + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Temp file should not exist after save")
	}
}

func TestSaveCheckpoint_RejectsBadInput(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveCheckpoint("", createTestCheckpoint("x")); err == nil {
		t.Error("Expected error for empty jobID")
	}
	if err := store.SaveCheckpoint("../escape", createTestCheckpoint("x")); err == nil {
		t.Error("Expected error for jobID with a path separator")
	}
	if err := store.SaveCheckpoint("test-job", nil); err == nil {
		t.Error("Expected error for nil checkpoint")
	}

	invalid := createTestCheckpoint("test-job")
	invalid.Status = ""
	err := store.SaveCheckpoint("test-job", invalid)
	if !errors.Is(err, &ValidationError{}) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestSaveCheckpoint_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "test-job-overwrite"
	running := NewCheckpoint(jobID, testDocument(), createTestCheckpoint(jobID).Config)
	if err := store.SaveCheckpoint(jobID, running); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded.Status != "NormalTermination" {
		t.Errorf("Expected overwritten status, got %q", loaded.Status)
	}
	if loaded.PostSolve == nil {
		t.Error("Expected PostSolve after overwrite")
	}
}

func TestLoadCheckpoint(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "test-job-load"
	original := createTestCheckpoint(jobID)
	if err := store.SaveCheckpoint(jobID, original); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	loaded, err := store.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}

	if loaded.JobID != original.JobID {
		t.Errorf("JobID mismatch: expected %s, got %s", original.JobID, loaded.JobID)
	}
	if loaded.Objective != original.Objective {
		t.Errorf("Objective mismatch: expected %g, got %g", original.Objective, loaded.Objective)
	}
	if !reflect.DeepEqual(loaded.Config, original.Config) {
		t.Errorf("Config mismatch: expected %+v, got %+v", original.Config, loaded.Config)
	}
	if !loaded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp mismatch: expected %v, got %v", original.Timestamp, loaded.Timestamp)
	}
	if got := loaded.PostSolve.Nodes[2]; got.X != 1 || got.Y != 1 {
		t.Errorf("PostSolve node 2 = (%g, %g), want (1, 1)", got.X, got.Y)
	}

	// The snapshots must still describe valid trees.
	if _, err := tree.FromDocument(loaded.PreSolve); err != nil {
		t.Errorf("PreSolve does not rebuild: %v", err)
	}
	if _, err := tree.FromDocument(*loaded.PostSolve); err != nil {
		t.Errorf("PostSolve does not rebuild: %v", err)
	}
}

func TestLoadCheckpoint_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadCheckpoint("nonexistent-job")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.JobID != "nonexistent-job" {
		t.Errorf("Expected job ID in error, got %v", err)
	}
}

func TestLoadCheckpoint_Corrupt(t *testing.T) {
	store, tempDir := setupTestStore(t)

	dir := filepath.Join(tempDir, "jobs", "corrupt")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "checkpoint.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := store.LoadCheckpoint("corrupt")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected decode error, got %v", err)
	}
}

func TestListCheckpoints_Empty(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected empty list, got %d checkpoints", len(infos))
	}
}

func TestListCheckpoints_NewestFirst(t *testing.T) {
	store, _ := setupTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := []string{"job-1", "job-2", "job-3"}
	for i, jobID := range jobs {
		checkpoint := createTestCheckpoint(jobID)
		checkpoint.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := store.SaveCheckpoint(jobID, checkpoint); err != nil {
			t.Fatalf("Failed to save checkpoint %s: %v", jobID, err)
		}
	}

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != len(jobs) {
		t.Fatalf("Expected %d checkpoints, got %d", len(jobs), len(infos))
	}
	for i, want := range []string{"job-3", "job-2", "job-1"} {
		if infos[i].JobID != want {
			t.Errorf("infos[%d] = %s, want %s", i, infos[i].JobID, want)
		}
	}
}

func TestListCheckpoints_SkipsInvalidDirectories(t *testing.T) {
	store, tempDir := setupTestStore(t)

	validJobID := "valid-job"
	if err := store.SaveCheckpoint(validJobID, createTestCheckpoint(validJobID)); err != nil {
		t.Fatalf("Failed to save valid checkpoint: %v", err)
	}

	// A directory without checkpoint.json, one with garbage, and a plain file.
	jobsDir := filepath.Join(tempDir, "jobs")
	if err := os.MkdirAll(filepath.Join(jobsDir, "empty-job"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(jobsDir, "broken-job"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jobsDir, "broken-job", "checkpoint.json"), []byte("]"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jobsDir, "dummy.txt"), []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 1 || infos[0].JobID != validJobID {
		t.Errorf("Expected only %s, got %+v", validJobID, infos)
	}
}

func TestDeleteCheckpoint(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "test-job-delete"
	if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	w, err := NewTraceWriter(tempDir, jobID, false)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	if err := store.DeleteCheckpoint(jobID); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}
	if _, err := store.LoadCheckpoint(jobID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFoundError after delete, got %v", err)
	}
	if _, err := os.Stat(w.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Trace should be removed with the job directory")
	}
}

func TestDeleteCheckpoint_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.DeleteCheckpoint("nonexistent-job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
	if err := store.DeleteCheckpoint(""); err == nil {
		t.Error("Expected error for empty jobID")
	}
}

func TestConcurrentSave(t *testing.T) {
	store, _ := setupTestStore(t)

	const numJobs = 10
	done := make(chan bool, numJobs)
	for i := 0; i < numJobs; i++ {
		go func(idx int) {
			jobID := fmt.Sprintf("concurrent-job-%d", idx)
			if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
				t.Errorf("Concurrent save failed for job %s: %v", jobID, err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < numJobs; i++ {
		<-done
	}

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != numJobs {
		t.Errorf("Expected %d checkpoints, got %d", numJobs, len(infos))
	}
}

// FSStore must satisfy the Store interface.
var _ Store = (*FSStore)(nil)
