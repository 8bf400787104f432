package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// keepAlive is how often an idle stream gets a comment line.
const keepAlive = 30 * time.Second

// subscriberBuffer bounds how far a slow client may lag before it misses
// events.
const subscriberBuffer = 10

// ProgressEvent is one SSE message about a running solve.
type ProgressEvent struct {
	JobID        string   `json:"jobId"`
	State        JobState `json:"state"`
	Iterations   int      `json:"iterations"`
	Evaluations  int      `json:"evaluations"`
	Objective    float64  `json:"objective"`
	MaxViolation float64  `json:"maxViolation"`
	// EvalsPerSecond is the objective evaluation throughput of the solve
	EvalsPerSecond float64   `json:"evalsPerSecond"`
	Timestamp      time.Time `json:"timestamp"`
}

// progressOf reports the counters the job's worker last recorded.
func progressOf(job *Job, elapsed time.Duration) ProgressEvent {
	return ProgressEvent{
		JobID:          job.ID,
		State:          job.State,
		Iterations:     job.Iterations,
		Evaluations:    job.Evaluations,
		Objective:      job.Objective,
		MaxViolation:   job.MaxViolation,
		EvalsPerSecond: evalsPerSecond(job.Evaluations, elapsed),
		Timestamp:      time.Now(),
	}
}

// ProgressHub fans solver progress out to the streams watching each job. The
// latest event of a job is kept so that a stream opened mid-solve starts from
// the current state.
type ProgressHub struct {
	mu     sync.Mutex
	subs   map[string]map[chan ProgressEvent]struct{}
	latest map[string]ProgressEvent
	closed bool
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subs:   make(map[string]map[chan ProgressEvent]struct{}),
		latest: make(map[string]ProgressEvent),
	}
}

// Subscribe opens a channel of progress events for a job. The channel is
// closed by Unsubscribe or Close.
func (h *ProgressHub) Subscribe(jobID string) chan ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan ProgressEvent, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch
	}
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	if ev, ok := h.latest[jobID]; ok {
		ch <- ev
	}

	slog.Debug("Progress stream opened", "job_id", jobID, "streams", len(h.subs[jobID]))
	return ch
}

// Unsubscribe closes ch unless the hub already did.
func (h *ProgressHub) Unsubscribe(jobID string, ch chan ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[jobID]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(h.subs, jobID)
	}
	slog.Debug("Progress stream closed", "job_id", jobID)
}

// Publish records ev as the job's latest progress and hands it to every open
// stream. Streams whose buffer is full skip the event.
func (h *ProgressHub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[ev.JobID] = ev
	for ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
			slog.Warn("Progress stream lagging, event dropped", "job_id", ev.JobID, "iterations", ev.Iterations)
		}
	}
}

// Close ends every open stream. Later subscriptions get a closed channel.
func (h *ProgressHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for jobID, subs := range h.subs {
		for ch := range subs {
			close(ch)
		}
		delete(h.subs, jobID)
	}
}

// handleJobStream serves the progress of one job as server-sent events until
// the job ends, the client leaves or the hub closes.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")

	events := s.jobManager.progress.Subscribe(jobID)
	defer s.jobManager.progress.Unsubscribe(jobID, events)

	send := func(ev ProgressEvent) bool {
		if err := writeSSEEvent(w, ev); err != nil {
			slog.Error("Failed to write progress event", "job_id", jobID, "error", err)
			return false
		}
		flusher.Flush()
		return !ev.State.Terminal()
	}

	if !send(progressOf(job, time.Since(job.StartTime))) {
		return
	}

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Progress client went away", "job_id", jobID)
			return
		case ev, ok := <-events:
			if !ok || !send(ev) {
				return
			}
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
