package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/treeopt/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(cmd, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(cmd *cobra.Command, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Optimizer: %s (%s)\n", job.Config.Optimizer, job.Config.Algorithm)
		if job.Config.DesignPath != "" {
			fmt.Fprintf(out, "  Design: %s\n", job.Config.DesignPath)
		}
		if job.Evaluations > 0 {
			fmt.Fprintf(out, "  Objective: %.6g (max violation %.2g)\n", job.Objective, job.MaxViolation)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(cmd *cobra.Command, url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status struct {
		server.Job
		Elapsed        float64 `json:"elapsed"`
		EvalsPerSecond float64 `json:"evalsPerSecond"`
		HasResult      bool    `json:"hasResult"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	if status.Status != "" {
		fmt.Fprintf(out, "Termination: %s\n", status.Status)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Design: %s\n", status.Config.DesignPath)
	fmt.Fprintf(out, "  Optimizer: %s\n", status.Config.Optimizer)
	fmt.Fprintf(out, "  Algorithm: %s\n", status.Config.Algorithm)
	if status.NumVars > 0 {
		fmt.Fprintf(out, "  Variables: %d, constraints: %d\n", status.NumVars, status.NumConstraints)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Outer iterations: %d\n", status.Iterations)
	fmt.Fprintf(out, "  Evaluations: %d\n", status.Evaluations)
	fmt.Fprintf(out, "  Objective: %.6g\n", status.Objective)
	fmt.Fprintf(out, "  Max violation: %.2g\n", status.MaxViolation)

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.EvalsPerSecond > 0 {
		fmt.Fprintf(out, "  Throughput: %.0f evaluations/sec\n", status.EvalsPerSecond)
	}
	if status.HasResult {
		fmt.Fprintf(out, "  Result: %s/api/v1/jobs/%s/design\n", serverURL, status.ID)
	}

	if status.Reason != "" {
		fmt.Fprintf(out, "\nReason: %s\n", status.Reason)
	}
	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}
