package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/iEdric/VectorMotionPro/exporter/internal/store"
)

// JobStore is the export job ledger. Re-exported from internal.
type JobStore = store.Store

// OpenJobStore opens (or creates) the ledger database at path.
func OpenJobStore(path string, logger *slog.Logger) (*JobStore, error) {
	return store.Open(path, logger)
}

// Service exposes the exporter over HTTP. Exports run one at a time; async
// submissions queue behind the exporter's own serialization.
type Service struct {
	exporter *Exporter
	jobs     *store.Store
	hub      *progressHub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewService wires the HTTP surface. jobs may be nil, in which case async
// submission is unavailable and only sync export and analysis work.
func NewService(exp *Exporter, jobs *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		exporter: exp,
		jobs:     jobs,
		hub:      newProgressHub(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterHTTP mounts the API on a chi router.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Post("/api/export", s.handleExport)
	r.Post("/api/analyze", s.handleAnalyze)
	r.Get("/api/jobs", s.handleListJobs)
	r.Get("/api/jobs/{id}", s.handleGetJob)
	r.Get("/api/jobs/{id}/result", s.handleJobResult)
	r.Get("/api/jobs/{id}/progress", s.handleJobProgress)
}

type exportRequest struct {
	SVG string `json:"svg"`
	Settings
}

// handleExport runs an export. With ?async=1 the job is queued and the
// response is the job id; otherwise the finished blob streams back
// directly.
func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SVG == "" {
		http.Error(w, "missing svg markup", http.StatusBadRequest)
		return
	}
	svg := Sanitize(req.SVG)

	if r.URL.Query().Get("async") == "1" {
		s.handleExportAsync(w, r, svg, req.Settings)
		return
	}

	res, err := s.exporter.Export(r.Context(), svg, req.Settings, nil)
	if err != nil {
		s.writeExportError(w, err)
		return
	}

	w.Header().Set("Content-Type", res.MIME)
	w.WriteHeader(http.StatusOK)
	w.Write(res.Bytes)
}

func (s *Service) handleExportAsync(w http.ResponseWriter, r *http.Request, svg string, settings Settings) {
	if s.jobs == nil {
		http.Error(w, "async export not configured", http.StatusNotImplemented)
		return
	}

	format := settings.Format
	if format == "" {
		format = FormatGIF
	}
	recorded, err := json.Marshal(settings)
	if err != nil {
		s.logger.Error("api: marshal settings", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	id, err := s.jobs.CreateJob(r.Context(), string(format), recorded)
	if err != nil {
		s.logger.Error("api: create job", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.hub.Open(id)

	// The job deliberately outlives the request: there is no way to
	// cancel a running export.
	go s.runJob(context.Background(), id, svg, settings)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"id": id, "state": store.StatePending})
}

func (s *Service) runJob(ctx context.Context, id, svg string, settings Settings) {
	defer s.hub.Close(id)

	if err := s.jobs.SetState(ctx, id, store.StateRunning); err != nil {
		s.logger.Error("api: job state", "job", id, "error", err)
	}

	onProgress := func(pct int) {
		s.hub.Publish(id, pct)
		s.jobs.SetProgress(ctx, id, pct)
	}

	res, err := s.exporter.Export(ctx, svg, settings, onProgress)
	if err != nil {
		s.logger.Warn("api: job failed", "job", id, "error", err)
		if ferr := s.jobs.Fail(ctx, id, err.Error()); ferr != nil {
			s.logger.Error("api: record failure", "job", id, "error", ferr)
		}
		return
	}
	if err := s.jobs.Finish(ctx, id, res.MIME, res.Bytes); err != nil {
		s.logger.Error("api: record result", "job", id, "error", err)
	}
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SVG string `json:"svg"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SVG == "" {
		http.Error(w, "missing svg markup", http.StatusBadRequest)
		return
	}

	hint := s.exporter.Suggest(r.Context(), req.SVG)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hint)
}

func (s *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "job ledger not configured", http.StatusNotImplemented)
		return
	}
	jobs, err := s.jobs.ListJobs(r.Context(), 50)
	if err != nil {
		s.logger.Error("api: list jobs", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*store.Job{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

func (s *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (s *Service) handleJobResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.State != store.StateComplete {
		http.Error(w, "job not complete", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", job.MIME)
	w.WriteHeader(http.StatusOK)
	w.Write(job.Output)
}

type progressMessage struct {
	Progress int    `json:"progress"`
	State    string `json:"state,omitempty"`
}

// handleJobProgress streams progress over a websocket. For a finished job
// the single terminal snapshot is sent before closing.
func (s *Service) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "job ledger not configured", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")

	ch, last, cancel, live := s.hub.Subscribe(id)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if live {
			cancel()
		}
		return
	}
	defer conn.Close()

	if !live {
		job, err := s.jobs.GetJob(r.Context(), id)
		if err != nil {
			conn.WriteJSON(progressMessage{Progress: 0, State: "unknown"})
			return
		}
		conn.WriteJSON(progressMessage{Progress: job.Progress, State: job.State})
		return
	}
	defer cancel()

	if err := conn.WriteJSON(progressMessage{Progress: last}); err != nil {
		return
	}
	for pct := range ch {
		if err := conn.WriteJSON(progressMessage{Progress: pct}); err != nil {
			return
		}
	}

	// Feed closed: report the terminal state from the ledger.
	if job, err := s.jobs.GetJob(r.Context(), id); err == nil {
		conn.WriteJSON(progressMessage{Progress: job.Progress, State: job.State})
	}
}

func (s *Service) loadJob(w http.ResponseWriter, r *http.Request) (*store.Job, bool) {
	if s.jobs == nil {
		http.Error(w, "job ledger not configured", http.StatusNotImplemented)
		return nil, false
	}
	id := chi.URLParam(r, "id")
	job, err := s.jobs.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.logger.Error("api: get job", "job", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return job, true
}

// writeExportError maps the pipeline error taxonomy onto HTTP statuses.
func (s *Service) writeExportError(w http.ResponseWriter, err error) {
	var (
		invalid     *InvalidMarkupError
		unavailable *EncoderUnavailableError
	)
	switch {
	case errors.Is(err, ErrInvalidSettings):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &invalid):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &unavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Error("api: export failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
