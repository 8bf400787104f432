package main

import (
	"errors"
	"fmt"

	"github.com/cwbudde/treeopt/internal/store"
	"github.com/cwbudde/treeopt/internal/tree"
	"github.com/spf13/cobra"
)

var resumeOut string

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Solve again from a checkpoint",
	Long: `Starts a fresh solve from the latest tree of a checkpoint: the solved tree if
the job produced one, otherwise the tree it started from. The design,
optimizer and the nodes and edges the job varied are kept; the algorithm and
other solver flags may be changed. The result goes to --out and the design
file is left alone. The checkpoint keeps its original pre-solve tree, so
'revert' still restores the design as it was before the first solve.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeOut, "out", "solved.json", "Output path for the solved tree")
	addSolverFlags(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	checkpoint, err := checkpointStore.LoadCheckpoint(jobID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no checkpoint for job %s in %s", jobID, dataDir)
	}
	if err != nil {
		return err
	}

	config := checkpoint.Config
	flags := cmd.Flags()
	if flags.Changed("optimizer") {
		config.Optimizer = optimizerName
	}
	if err := checkpoint.IsCompatible(config); err != nil {
		return err
	}
	if flags.Changed("algorithm") {
		config.Algorithm = algorithmName
	}
	if flags.Changed("tolerance") {
		config.Tolerance = tolerance
	}
	if flags.Changed("max-outer") {
		config.MaxOuterIterations = maxOuter
	}
	if flags.Changed("seed") {
		config.Seed = seedFlag()
	}

	t, err := tree.FromDocument(checkpoint.Latest())
	if err != nil {
		return fmt.Errorf("checkpoint %s holds an invalid tree: %w", jobID, err)
	}

	path := resumeOut
	if path == "" {
		return fmt.Errorf("--out cannot be empty")
	}

	pre := checkpoint.PreSolve
	run := solveRun{
		JobID:       jobID,
		Tree:        t,
		Config:      config,
		Store:       checkpointStore,
		PreSolve:    &pre,
		AppendTrace: true,
	}

	ctx, cancel := solveContext(cmd.Context())
	defer cancel()

	res, solveErr := run.execute(ctx)
	if res.X == nil && solveErr != nil {
		return solveErr
	}
	if err := writeTree(path, t); err != nil {
		return err
	}
	printResult(cmd, res, path, run)
	return solveErr
}
