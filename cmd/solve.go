package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/optimizer"
	"github.com/cwbudde/treeopt/internal/store"
	"github.com/cwbudde/treeopt/internal/tree"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	designPath    string
	outPath       string
	optimizerName string
	algorithmName string
	tolerance     float64
	maxOuter      int
	seed          int64
	nodeIDs       []int
	edgeIDs       []int
	timeout       time.Duration
	noCheckpoint  bool
	traceX        bool
	keepOnFailure bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a design and write the result",
	Long: `Builds the optimization problem for a tree snapshot, solves it and writes the
tree with the solution applied. Unless --no-checkpoint is given, the tree
before and after the solve is checkpointed under --data-dir so the design can
be reverted, and solver progress is traced to trace.jsonl.

When the solve is cancelled (Ctrl-C, --timeout) or fails to converge, the
tree is reverted to its state before the solve unless --keep-on-failure is
set.`,
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVar(&designPath, "design", "", "Tree snapshot to solve (required)")
	solveCmd.Flags().StringVar(&outPath, "out", "solved.json", "Output path for the solved tree")
	addSolverFlags(solveCmd)
	solveCmd.Flags().IntSliceVar(&nodeIDs, "nodes", nil, "IDs of the nodes to move (default: all unpinned leaves)")
	solveCmd.Flags().IntSliceVar(&edgeIDs, "edges", nil, "IDs of the edges whose strain varies (default: all unpinned edges)")
	solveCmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "Do not write a checkpoint or trace")

	solveCmd.MarkFlagRequired("design")
	rootCmd.AddCommand(solveCmd)
}

// addSolverFlags registers the flags shared by solve and resume.
func addSolverFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&optimizerName, "optimizer", optimizer.Strain.String(), "Optimizer: strain, scale, edge")
	cmd.Flags().StringVar(&algorithmName, "algorithm", nlco.LBFGS.String(), "Solver back end (see 'treeopt algorithms')")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "Convergence tolerance (0 = default)")
	cmd.Flags().IntVar(&maxOuter, "max-outer", 0, "Max outer iterations (0 = default)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed for the mayfly back end")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel the solve after this long (0 = no limit)")
	cmd.Flags().BoolVar(&traceX, "trace-x", false, "Include the variable vector in trace entries")
	cmd.Flags().BoolVar(&keepOnFailure, "keep-on-failure", false, "Keep the solver's point when the solve does not converge")
}

func runSolve(cmd *cobra.Command, args []string) error {
	config := store.JobConfig{
		DesignPath:         designPath,
		Optimizer:          optimizerName,
		Algorithm:          algorithmName,
		Tolerance:          tolerance,
		MaxOuterIterations: maxOuter,
		Seed:               seedFlag(),
		Nodes:              nodeIDs,
		Edges:              edgeIDs,
	}

	t, err := loadTree(designPath)
	if err != nil {
		return err
	}

	run := solveRun{
		JobID:  uuid.New().String(),
		Tree:   t,
		Config: config,
	}
	if !noCheckpoint {
		st, err := store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		run.Store = st
	}

	ctx, cancel := solveContext(cmd.Context())
	defer cancel()

	res, solveErr := run.execute(ctx)
	if res.X == nil && solveErr != nil {
		return solveErr
	}

	if err := writeTree(outPath, t); err != nil {
		return err
	}
	printResult(cmd, res, outPath, run)
	return solveErr
}

// seedFlag copies --seed for a job config.
func seedFlag() *int64 {
	s := seed
	return &s
}

// solveContext is cancelled by Ctrl-C or when --timeout expires.
func solveContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// solveRun is one solve of a tree with optional checkpointing. The variables
// are the ones Config.Nodes and Config.Edges select.
type solveRun struct {
	JobID  string
	Tree   *tree.Tree
	Config store.JobConfig

	// Store receives the checkpoint and trace; nil disables both.
	Store *store.FSStore
	// PreSolve overrides the checkpoint's pre-solve snapshot, so a resumed
	// job still reverts to the tree it started from.
	PreSolve *tree.Document
	// AppendTrace continues an existing trace instead of truncating it.
	AppendTrace bool
}

// execute solves the tree in place. When the solve ends without converging
// and --keep-on-failure is not set, the tree is restored to its state before
// the solve.
func (r solveRun) execute(ctx context.Context) (nlco.Result, error) {
	kind, err := optimizer.ParseKind(r.Config.Optimizer)
	if err != nil {
		return nlco.Result{}, err
	}
	algorithm, err := nlco.ParseAlgorithm(r.Config.Algorithm)
	if err != nil {
		return nlco.Result{}, err
	}

	nodes, edges, err := r.Tree.Select(r.Config.Nodes, r.Config.Edges)
	if err != nil {
		return nlco.Result{}, err
	}
	o, err := optimizer.NewFor(kind, r.Tree, nodes, edges, algorithm, r.Config.Settings())
	if err != nil {
		return nlco.Result{}, fmt.Errorf("failed to initialize optimizer: %w", err)
	}

	start := tree.ToDocument(r.Tree)
	pre := start
	if r.PreSolve != nil {
		pre = *r.PreSolve
	}

	slog.Info("Starting solve",
		"job_id", r.JobID,
		"optimizer", kind.String(),
		"algorithm", algorithm.String(),
		"variables", o.NumVars(),
		"constraints", o.NumConstraints(),
	)

	var trace *store.TraceWriter
	if r.Store != nil {
		checkpoint := store.NewCheckpoint(r.JobID, pre, r.Config)
		if err := r.Store.SaveCheckpoint(r.JobID, checkpoint); err != nil {
			return nlco.Result{}, err
		}
		trace, err = store.NewTraceWriter(r.Store.BaseDir(), r.JobID, r.AppendTrace)
		if err != nil {
			return nlco.Result{}, err
		}
		defer trace.Close()
	}

	o.SetUpdater(func(p nlco.Progress) nlco.Action {
		slog.Debug("Solve progress",
			"job_id", r.JobID,
			"iteration", p.OuterIteration,
			"evaluations", p.Evaluations,
			"objective", p.Objective,
			"max_violation", p.MaxViolation,
		)
		if trace != nil {
			if err := trace.Write(store.EntryFromProgress(p, traceX)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", r.JobID, "error", err)
			}
		}
		if ctx.Err() != nil {
			return nlco.Cancel
		}
		return nlco.Continue
	})

	res, solveErr := o.Optimize()

	kept := res.X != nil
	if solveErr != nil && kept && !keepOnFailure {
		if err := r.Tree.Apply(start); err != nil {
			return res, err
		}
		kept = false
		slog.Info("Reverted tree after unsuccessful solve", "job_id", r.JobID, "status", res.Status.String())
	}

	if r.Store != nil {
		checkpoint := store.NewCheckpoint(r.JobID, pre, r.Config)
		if kept {
			post := tree.ToDocument(r.Tree)
			checkpoint.PostSolve = &post
		}
		checkpoint.Status = res.Status.String()
		checkpoint.Reason = res.Reason
		checkpoint.Objective = res.Objective
		checkpoint.MaxViolation = res.MaxViolation
		checkpoint.Iteration = res.OuterIterations
		if err := r.Store.SaveCheckpoint(r.JobID, checkpoint); err != nil {
			slog.Error("Failed to save final checkpoint", "job_id", r.JobID, "error", err)
		}
	}

	return res, solveErr
}

func loadTree(path string) (*tree.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open design: %w", err)
	}
	defer f.Close()

	t, err := tree.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load design %s: %w", path, err)
	}
	slog.Info("Loaded design", "path", path, "nodes", len(t.Nodes), "edges", len(t.Edges), "conditions", len(t.Conditions))
	return t, nil
}

func writeTree(path string, t *tree.Tree) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := tree.Save(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printResult(cmd *cobra.Command, res nlco.Result, path string, run solveRun) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s (%s, objective %.6g, max violation %.2g, %d outer iterations, %s)\n",
		path, res.Status, res.Objective, res.MaxViolation, res.OuterIterations, res.Elapsed.Round(time.Millisecond))
	if res.Reason != "" {
		fmt.Fprintf(out, "Reason: %s\n", res.Reason)
	}
	if run.Store != nil {
		fmt.Fprintf(out, "Checkpoint: %s\n", run.JobID)
	}
}
