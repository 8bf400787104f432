package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/treeopt/internal/store"
	"github.com/cwbudde/treeopt/internal/tree"
	"github.com/spf13/cobra"
)

// testCommand returns a bare command whose output is captured.
func testCommand(input string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(input))
	return cmd, out
}

// useDataDir points the commands at dir for the duration of the test.
func useDataDir(t *testing.T, dir string) {
	t.Helper()
	original := dataDir
	dataDir = dir
	t.Cleanup(func() { dataDir = original })
}

func saveTestCheckpoint(t *testing.T, st *store.FSStore, jobID string, age time.Duration) {
	t.Helper()
	checkpoint := store.NewCheckpoint(jobID, segmentDocument(), store.JobConfig{
		DesignPath: "segment.json",
		Optimizer:  "strain",
		Algorithm:  "lbfgs",
	})
	checkpoint.Status = "NormalTermination"
	checkpoint.Timestamp = time.Now().Add(-age)
	if err := st.SaveCheckpoint(jobID, checkpoint); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
}

func TestSelectCheckpointsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)}, // 10 days old
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},  // 5 days old
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},  // 1 day old
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)}, // 30 days old
	}

	// Delete checkpoints older than 7 days
	toDelete := selectCheckpointsForDeletion(infos, 0, 7)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}

	found10 := false
	found30 := false
	for _, info := range toDelete {
		if info.JobID == "job1" {
			found10 = true
		}
		if info.JobID == "job4" {
			found30 = true
		}
	}

	if !found10 || !found30 {
		t.Error("Expected job1 and job4 to be selected for deletion")
	}
}

func TestSelectCheckpointsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	// Keep only last 2 checkpoints
	toDelete := selectCheckpointsForDeletion(infos, 2, 0)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}
	// Oldest first.
	if toDelete[0].JobID != "job4" || toDelete[1].JobID != "job1" {
		t.Errorf("Expected job4 and job1 to be selected for deletion, got %s and %s", toDelete[0].JobID, toDelete[1].JobID)
	}

	// The input order is left alone.
	if infos[0].JobID != "job1" {
		t.Error("Input slice should not be reordered")
	}
}

func TestSelectCheckpointsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
		{JobID: "job5", Timestamp: now.AddDate(0, 0, -2)},
	}

	// Delete older than 7 days and keep only last 2: job4, job1 by age, job2
	// by count. No duplicates.
	toDelete := selectCheckpointsForDeletion(infos, 2, 7)

	if len(toDelete) != 3 {
		t.Errorf("Expected 3 checkpoints to delete, got %d", len(toDelete))
	}
	seen := map[string]bool{}
	for _, info := range toDelete {
		if seen[info.JobID] {
			t.Errorf("Duplicate %s", info.JobID)
		}
		seen[info.JobID] = true
	}
	if !seen["job1"] || !seen["job2"] || !seen["job4"] {
		t.Errorf("Unexpected selection: %v", seen)
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	content := []byte("Hello, World!")
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}

	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestCheckpointsListCommand_NoCheckpoints(t *testing.T) {
	useDataDir(t, t.TempDir())

	cmd, out := testCommand("")
	if err := runListCheckpoints(cmd, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "No checkpoints found.") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}

func TestCheckpointsListCommand_WithCheckpoints(t *testing.T) {
	tmpDir := t.TempDir()
	checkpointStore, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestCheckpoint(t, checkpointStore, "test-job-id", time.Hour)
	useDataDir(t, tmpDir)

	cmd, out := testCommand("")
	if err := runListCheckpoints(cmd, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	output := out.String()
	for _, want := range []string{"test-job-id", "NormalTermination", "strain/lbfgs", "Total checkpoints: 1"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output should contain %q: %q", want, output)
		}
	}
}

func TestCheckpointsCleanCommand_NoFlags(t *testing.T) {
	useDataDir(t, t.TempDir())

	keepLast = 0
	olderThanDays = 0

	cmd, _ := testCommand("")
	if err := runCleanCheckpoints(cmd, nil); err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestCheckpointsCleanCommand_WithForce(t *testing.T) {
	tmpDir := t.TempDir()
	checkpointStore, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestCheckpoint(t, checkpointStore, "old-job", 30*24*time.Hour)
	saveTestCheckpoint(t, checkpointStore, "new-job", time.Hour)
	useDataDir(t, tmpDir)

	keepLast = 0
	olderThanDays = 7
	forceClean = true
	defer func() { olderThanDays, forceClean = 0, false }()

	cmd, _ := testCommand("")
	if err := runCleanCheckpoints(cmd, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if _, err := checkpointStore.LoadCheckpoint("old-job"); err == nil {
		t.Error("Expected checkpoint to be deleted")
	}
	if _, err := checkpointStore.LoadCheckpoint("new-job"); err != nil {
		t.Errorf("Recent checkpoint should survive: %v", err)
	}
}

func TestCheckpointsCleanCommand_Aborted(t *testing.T) {
	tmpDir := t.TempDir()
	checkpointStore, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestCheckpoint(t, checkpointStore, "old-job", 30*24*time.Hour)
	useDataDir(t, tmpDir)

	keepLast = 0
	olderThanDays = 7
	forceClean = false
	defer func() { olderThanDays = 0 }()

	cmd, out := testCommand("n\n")
	if err := runCleanCheckpoints(cmd, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "Aborted.") {
		t.Errorf("Expected abort, got %q", out.String())
	}
	if _, err := checkpointStore.LoadCheckpoint("old-job"); err != nil {
		t.Errorf("Checkpoint should survive an aborted clean: %v", err)
	}
}

// segmentDocument is a single edge from a pinned anchor to a tip that a
// condition pins at (0.5, 0).
func segmentDocument() tree.Document {
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
