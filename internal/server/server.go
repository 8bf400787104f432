// Package server runs solves as background jobs behind a small JSON API and
// streams their progress over server-sent events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/treeopt/internal/nlco"
	"github.com/cwbudde/treeopt/internal/optimizer"
	"github.com/cwbudde/treeopt/internal/store"
	"github.com/cwbudde/treeopt/internal/tree"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	addr       string
	server     *http.Server

	// ctx outlives requests; workers derive their contexts from it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server. A nil store disables checkpoints and traces.
func NewServer(addr string, checkpointStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		store:      checkpointStore,
		addr:       addr,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Handler returns the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/algorithms", s.handleAlgorithms)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	for _, job := range s.jobManager.GetRunningJobs() {
		slog.Info("Cancelling running job",
			"job_id", job.ID,
			"iterations", job.Iterations,
			"objective", job.Objective,
			"max_violation", job.MaxViolation,
		)
	}
	s.jobManager.Shutdown()
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}
	if len(parts) > 2 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	method := http.MethodGet
	if sub == "cancel" {
		method = http.MethodPost
	}
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch sub {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "cancel":
		s.handleCancelJob(w, r, jobID)
	case "design":
		s.handleGetDesign(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// CreateJobRequest is the body of POST /api/v1/jobs. Design may be omitted
// when Config.DesignPath names a snapshot readable by the server.
type CreateJobRequest struct {
	Config JobConfig      `json:"config"`
	Design *tree.Document `json:"design,omitempty"`
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	config := req.Config
	if config.Optimizer == "" {
		config.Optimizer = optimizer.Strain.String()
	}
	if config.Algorithm == "" {
		config.Algorithm = nlco.LBFGS.String()
	}
	if _, err := optimizer.ParseKind(config.Optimizer); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := nlco.ParseAlgorithm(config.Algorithm); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch {
	case config.Tolerance < 0:
		http.Error(w, "tolerance cannot be negative", http.StatusBadRequest)
		return
	case config.MaxOuterIterations < 0:
		http.Error(w, "maxOuterIterations cannot be negative", http.StatusBadRequest)
		return
	case config.CheckpointInterval < 0:
		http.Error(w, "checkpointInterval cannot be negative", http.StatusBadRequest)
		return
	}

	var design tree.Document
	switch {
	case req.Design != nil:
		if _, err := tree.FromDocument(*req.Design); err != nil {
			http.Error(w, fmt.Sprintf("Invalid design: %v", err), http.StatusBadRequest)
			return
		}
		design = *req.Design
	case config.DesignPath != "":
		d, err := loadDesign(config.DesignPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		design = d
	default:
		http.Error(w, "design or config.designPath is required", http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config, design)
	s.launch(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// launch runs the worker of a job in the background.
func (s *Server) launch(jobID string) {
	ctx, err := s.jobManager.Start(s.ctx, jobID)
	if err != nil {
		slog.Error("Failed to start job", "job_id", jobID, "error", err)
		return
	}
	go func() {
		defer s.jobManager.Finish(jobID)
		if err := runJob(ctx, s.jobManager, s.store, jobID); err != nil {
			slog.Debug("Job returned error", "job_id", jobID, "error", err)
		}
	}()
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// JobStatus is the status view of a job.
type JobStatus struct {
	*Job
	Elapsed        float64 `json:"elapsed"`
	EvalsPerSecond float64 `json:"evalsPerSecond"`
	HasResult      bool    `json:"hasResult"`
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	writeJSON(w, http.StatusOK, JobStatus{
		Job:            job,
		Elapsed:        elapsed.Seconds(),
		EvalsPerSecond: evalsPerSecond(job.Evaluations, elapsed),
		HasResult:      job.HasResult(),
	})
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	err := s.jobManager.Cancel(jobID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrJobFinished):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("Cancel requested", "job_id", jobID)
	job, _ := s.jobManager.GetJob(jobID)
	writeJSON(w, http.StatusAccepted, job)
}

// handleGetDesign handles GET /api/v1/jobs/:id/design. The solved tree is
// returned once available; ?snapshot=pre selects the submitted one.
func (s *Server) handleGetDesign(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	switch r.URL.Query().Get("snapshot") {
	case "pre":
		writeJSON(w, http.StatusOK, job.design)
	case "", "latest":
		writeJSON(w, http.StatusOK, job.Design())
	case "post":
		if !job.HasResult() {
			http.Error(w, "No results yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job.Design())
	default:
		http.Error(w, "snapshot must be pre, post or latest", http.StatusBadRequest)
	}
}

// AlgorithmInfo describes a solver back end.
type AlgorithmInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleAlgorithms handles GET /api/v1/algorithms
func (s *Server) handleAlgorithms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	algorithms := nlco.Algorithms()
	infos := make([]AlgorithmInfo, len(algorithms))
	for i, a := range algorithms {
		infos[i] = AlgorithmInfo{Name: a.String(), Description: a.Description()}
	}
	writeJSON(w, http.StatusOK, infos)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
