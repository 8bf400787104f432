package main

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/store"
	"github.com/cwbudde/treeopt/internal/tree"
)

// setupSolve writes the segment design into a temp dir and points the solve
// flags at it. It returns the design and output paths.
func setupSolve(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	design, err := tree.FromDocument(segmentDocument())
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	in := filepath.Join(dir, "segment.json")
	if err := writeTree(in, design); err != nil {
		t.Fatalf("writeTree: %v", err)
	}

	useDataDir(t, filepath.Join(dir, "data"))
	designPath = in
	outPath = filepath.Join(dir, "solved.json")
	optimizerName = "strain"
	algorithmName = "lbfgs"
	tolerance = 0
	maxOuter = 0
	seed = 1
	nodeIDs = nil
	edgeIDs = nil
	timeout = 0
	noCheckpoint = false
	traceX = false
	keepOnFailure = false

	return in, outPath
}

func readDocument(t *testing.T, path string) tree.Document {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	loaded, err := tree.Load(f)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	return tree.ToDocument(loaded)
}

func checkpointID(t *testing.T, output string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if id, ok := strings.CutPrefix(line, "Checkpoint: "); ok {
			return strings.TrimSpace(id)
		}
	}
	t.Fatalf("no checkpoint in output %q", output)
	return ""
}

func TestSolveCommand(t *testing.T) {
	_, out := setupSolve(t)

	cmd, buf := testCommand("")
	if err := runSolve(cmd, nil); err != nil {
		t.Fatalf("runSolve: %v", err)
	}

	doc := readDocument(t, out)
	if math.Abs(doc.Edges[0].Strain+0.5) > 1e-3 {
		t.Errorf("Strain = %g, want -0.5", doc.Edges[0].Strain)
	}
	if math.Abs(doc.Nodes[1].X-0.5) > 1e-3 || math.Abs(doc.Nodes[1].Y) > 1e-3 {
		t.Errorf("Tip = (%g, %g), want (0.5, 0)", doc.Nodes[1].X, doc.Nodes[1].Y)
	}
	if !strings.Contains(buf.String(), "NormalTermination") {
		t.Errorf("Output should report the status: %q", buf.String())
	}

	jobID := checkpointID(t, buf.String())
	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	checkpoint, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if checkpoint.Status != nlco.NormalTermination.String() {
		t.Errorf("Status = %s", checkpoint.Status)
	}
	if checkpoint.PostSolve == nil {
		t.Fatal("Expected a post-solve tree")
	}
	if checkpoint.PreSolve.Nodes[1].X != 2 {
		t.Errorf("Pre-solve tip moved: %g", checkpoint.PreSolve.Nodes[1].X)
	}

	reader, err := store.NewTraceReader(dataDir, jobID)
	if err != nil {
		t.Fatalf("NewTraceReader: %v", err)
	}
	defer reader.Close()
	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Error("Expected trace entries")
	}
}

func TestSolveCommand_NoCheckpoint(t *testing.T) {
	_, out := setupSolve(t)
	noCheckpoint = true

	cmd, buf := testCommand("")
	if err := runSolve(cmd, nil); err != nil {
		t.Fatalf("runSolve: %v", err)
	}
	if strings.Contains(buf.String(), "Checkpoint:") {
		t.Errorf("No checkpoint expected: %q", buf.String())
	}
	if _, err := os.Stat(filepath.Join(dataDir, "jobs")); !os.IsNotExist(err) {
		t.Errorf("Data dir should be untouched, stat error %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("Output not written: %v", err)
	}
}

func TestSolveCommand_InvalidFlags(t *testing.T) {
	tests := []struct {
		name  string
		setup func()
	}{
		{"bad optimizer", func() { optimizerName = "fold" }},
		{"bad algorithm", func() { algorithmName = "simplex" }},
		{"unknown node", func() { nodeIDs = []int{7} }},
		{"missing design", func() { designPath = filepath.Join(t.TempDir(), "missing.json") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out := setupSolve(t)
			tt.setup()

			cmd, _ := testCommand("")
			if err := runSolve(cmd, nil); err == nil {
				t.Error("Expected error")
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Error("No output expected")
			}
		})
	}
}

func TestSolveCommand_CancelledRevertsTree(t *testing.T) {
	_, out := setupSolve(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd, buf := testCommand("")
	cmd.SetContext(ctx)

	err := runSolve(cmd, nil)
	if !errors.Is(err, nlco.ErrUserCancelled) {
		t.Fatalf("Expected ErrUserCancelled, got %v", err)
	}

	doc := readDocument(t, out)
	if doc.Nodes[1].X != 2 || doc.Nodes[1].Y != 1 {
		t.Errorf("Tree not reverted: tip at (%g, %g)", doc.Nodes[1].X, doc.Nodes[1].Y)
	}

	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	checkpoint, err := checkpointStore.LoadCheckpoint(checkpointID(t, buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	if checkpoint.PostSolve != nil {
		t.Error("A reverted solve should not record a post-solve tree")
	}
	if checkpoint.Status != nlco.UserCancelled.String() {
		t.Errorf("Status = %s", checkpoint.Status)
	}
}

func TestSolveCommand_KeepOnFailure(t *testing.T) {
	_, out := setupSolve(t)
	keepOnFailure = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd, buf := testCommand("")
	cmd.SetContext(ctx)

	if err := runSolve(cmd, nil); !errors.Is(err, nlco.ErrUserCancelled) {
		t.Fatalf("Expected ErrUserCancelled, got %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("Output not written: %v", err)
	}

	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	checkpoint, err := checkpointStore.LoadCheckpoint(checkpointID(t, buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	if checkpoint.PostSolve == nil {
		t.Error("Expected the solver's point to be kept as the post-solve tree")
	}
}

func TestRevertCommand(t *testing.T) {
	in, _ := setupSolve(t)

	cmd, buf := testCommand("")
	if err := runSolve(cmd, nil); err != nil {
		t.Fatalf("runSolve: %v", err)
	}
	jobID := checkpointID(t, buf.String())

	// Without --out the design the solve started from is rewritten.
	revertOut = ""
	cmd, buf = testCommand("")
	if err := runRevert(cmd, []string{jobID}); err != nil {
		t.Fatalf("runRevert: %v", err)
	}
	if !strings.Contains(buf.String(), "Reverted "+in) {
		t.Errorf("Unexpected output: %q", buf.String())
	}

	doc := readDocument(t, in)
	if doc.Nodes[1].X != 2 || doc.Nodes[1].Y != 1 {
		t.Errorf("Tip at (%g, %g), want (2, 1)", doc.Nodes[1].X, doc.Nodes[1].Y)
	}
}

func TestRevertCommand_NotFound(t *testing.T) {
	setupSolve(t)

	cmd, _ := testCommand("")
	if err := runRevert(cmd, []string{"missing"}); err == nil {
		t.Error("Expected error for unknown job")
	}
}

func TestResumeCommand(t *testing.T) {
	_, out := setupSolve(t)

	cmd, buf := testCommand("")
	if err := runSolve(cmd, nil); err != nil {
		t.Fatalf("runSolve: %v", err)
	}
	jobID := checkpointID(t, buf.String())

	countTrace := func() int {
		reader, err := store.NewTraceReader(dataDir, jobID)
		if err != nil {
			t.Fatal(err)
		}
		defer reader.Close()
		entries, err := reader.ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		return len(entries)
	}
	before := countTrace()

	resumeOut = filepath.Join(filepath.Dir(out), "resumed.json")
	defer func() { resumeOut = "solved.json" }()
	cmd, _ = testCommand("")
	addSolverFlags(cmd)
	if err := cmd.Flags().Set("algorithm", "bfgs"); err != nil {
		t.Fatal(err)
	}
	if err := runResume(cmd, []string{jobID}); err != nil {
		t.Fatalf("runResume: %v", err)
	}

	doc := readDocument(t, resumeOut)
	if math.Abs(doc.Edges[0].Strain+0.5) > 1e-3 {
		t.Errorf("Strain = %g, want -0.5", doc.Edges[0].Strain)
	}

	if after := countTrace(); after <= before {
		t.Errorf("Trace should grow on resume: %d -> %d", before, after)
	}

	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	checkpoint, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatal(err)
	}
	if checkpoint.Config.Algorithm != "bfgs" {
		t.Errorf("Algorithm = %s, want bfgs", checkpoint.Config.Algorithm)
	}
	if checkpoint.PreSolve.Nodes[1].X != 2 {
		t.Error("Resume must keep the original pre-solve tree")
	}
}

func TestResumeCommand_KeepsVariableSelection(t *testing.T) {
	_, out := setupSolve(t)
	// Only the strain varies.
	nodeIDs = []int{}

	cmd, buf := testCommand("")
	if err := runSolve(cmd, nil); err != nil {
		t.Fatalf("runSolve: %v", err)
	}
	jobID := checkpointID(t, buf.String())

	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	checkpoint, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatal(err)
	}
	if checkpoint.Config.Nodes == nil || len(checkpoint.Config.Nodes) != 0 {
		t.Fatalf("Checkpoint should record the empty node selection, got %#v", checkpoint.Config.Nodes)
	}
	if checkpoint.Config.Edges != nil {
		t.Errorf("Edges = %v, want nil", checkpoint.Config.Edges)
	}

	nodeIDs = nil
	resumeOut = filepath.Join(filepath.Dir(out), "resumed.json")
	defer func() { resumeOut = "solved.json" }()
	cmd, _ = testCommand("")
	addSolverFlags(cmd)
	if err := runResume(cmd, []string{jobID}); err != nil {
		t.Fatalf("runResume: %v", err)
	}

	doc := readDocument(t, resumeOut)
	if doc.Nodes[1].X != 2 || doc.Nodes[1].Y != 1 {
		t.Errorf("Resume moved a node that was not selected: tip at (%g, %g)", doc.Nodes[1].X, doc.Nodes[1].Y)
	}
	if math.Abs(doc.Edges[0].Strain+0.5) < 1e-3 {
		t.Error("Resume solved the full problem instead of the selected variables")
	}
}

func TestResumeCommand_LeavesDesignFile(t *testing.T) {
	in, out := setupSolve(t)
	t.Chdir(filepath.Dir(in))

	cmd, buf := testCommand("")
	if err := runSolve(cmd, nil); err != nil {
		t.Fatalf("runSolve: %v", err)
	}
	jobID := checkpointID(t, buf.String())
	if err := os.Remove(out); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}

	resumeOut = resumeCmd.Flags().Lookup("out").DefValue
	cmd, _ = testCommand("")
	addSolverFlags(cmd)
	if err := runResume(cmd, []string{jobID}); err != nil {
		t.Fatalf("runResume: %v", err)
	}

	after, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Error("resume overwrote the design file")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(in), resumeOut)); err != nil {
		t.Errorf("Expected the result in %s: %v", resumeOut, err)
	}
}

func TestResumeCommand_IncompatibleOptimizer(t *testing.T) {
	setupSolve(t)

	cmd, buf := testCommand("")
	if err := runSolve(cmd, nil); err != nil {
		t.Fatalf("runSolve: %v", err)
	}
	jobID := checkpointID(t, buf.String())

	cmd, _ = testCommand("")
	addSolverFlags(cmd)
	if err := cmd.Flags().Set("optimizer", "scale"); err != nil {
		t.Fatal(err)
	}
	var compat *store.CompatibilityError
	if err := runResume(cmd, []string{jobID}); !errors.As(err, &compat) {
		t.Errorf("Expected CompatibilityError, got %v", err)
	}
}

func TestAlgorithmsAndVersionCommands(t *testing.T) {
	cmd, buf := testCommand("")
	algorithmsCmd.SetOut(buf)
	defer algorithmsCmd.SetOut(nil)
	algorithmsCmd.Run(algorithmsCmd, nil)
	for _, a := range nlco.Algorithms() {
		if !strings.Contains(buf.String(), a.String()) {
			t.Errorf("Algorithm %s missing from %q", a, buf.String())
		}
	}
	if !strings.Contains(buf.String(), "strain") {
		t.Error("Optimizers missing")
	}

	buf.Reset()
	versionCmd.Run(cmd, nil)
	if got := buf.String(); got != "treeopt version "+version+"\n" {
		t.Errorf("version output = %q", got)
	}
}
