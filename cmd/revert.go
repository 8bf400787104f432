package main

import (
	"errors"
	"fmt"

	"github.com/cwbudde/treeopt/internal/store"
	"github.com/cwbudde/treeopt/internal/tree"
	"github.com/spf13/cobra"
)

var revertOut string

var revertCmd = &cobra.Command{
	Use:   "revert <job-id>",
	Short: "Restore the tree a solve started from",
	Long: `Writes the pre-solve tree of a checkpoint. By default the design file the
solve was started from is overwritten; use --out to write elsewhere.`,
	Args: cobra.ExactArgs(1),
	RunE: runRevert,
}

func init() {
	revertCmd.Flags().StringVar(&revertOut, "out", "", "Output path (default: the checkpoint's design path)")
	rootCmd.AddCommand(revertCmd)
}

func runRevert(cmd *cobra.Command, args []string) error {
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

	path := revertOut
	if path == "" {
		path = checkpoint.Config.DesignPath
	}
	if path == "" {
		return fmt.Errorf("checkpoint %s has no design path, use --out", jobID)
	}

	t, err := tree.FromDocument(checkpoint.PreSolve)
	if err != nil {
		return fmt.Errorf("checkpoint %s holds an invalid tree: %w", jobID, err)
	}
	if err := writeTree(path, t); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reverted %s to the tree before job %s\n", path, jobID)
	return nil
}
