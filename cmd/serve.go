package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/treeopt/internal/server"
	"github.com/cwbudde/treeopt/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	noStore      bool
	drainTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server that runs solves as background jobs.

  POST /api/v1/jobs                 submit {"config": {...}, "design": {...}}
  GET  /api/v1/jobs                 list jobs
  GET  /api/v1/jobs/{id}[/status]   job status
  GET  /api/v1/jobs/{id}/stream     progress as server-sent events
  POST /api/v1/jobs/{id}/cancel     cancel a job
  GET  /api/v1/jobs/{id}/design     solved (or submitted) tree
  GET  /api/v1/algorithms           solver back ends

Checkpoints and traces are written under --data-dir.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&noStore, "no-checkpoint", false, "Do not write checkpoints or traces")
	serveCmd.Flags().DurationVar(&drainTimeout, "shutdown-timeout", 10*time.Second, "Grace period for open connections on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var checkpointStore store.Store
	if !noStore {
		st, err := store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		checkpointStore = st
	}

	s := server.NewServer(serveAddr, checkpointStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
