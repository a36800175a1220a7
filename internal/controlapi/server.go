// Package controlapi exposes the orchestrator over a loopback-only,
// token-authenticated HTTP control plane.
package controlapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vdengine/internal/engine"
	"vdengine/internal/model"
)

// Server is the control-plane HTTP API over one Orchestrator.
type Server struct {
	orch   *engine.Orchestrator
	token  string
	router *chi.Mux
	logger *slog.Logger
}

// New builds a Server. token authenticates every request via the
// X-Vdengine-Token header; an empty token disables auth (local dev only).
func New(orch *engine.Orchestrator, token string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{orch: orch, token: token, router: chi.NewRouter(), logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.localhostOnly)
	s.router.Use(s.authenticate)

	s.router.Post("/v1/tasks", s.handleAddTask)
	s.router.Post("/v1/tasks/batch", s.handleAddBatch)
	s.router.Get("/v1/tasks", s.handleListTasks)
	s.router.Get("/v1/tasks/{id}", s.handleGetTask)
	s.router.Post("/v1/tasks/{id}/control", s.handleTaskControl)
	s.router.Get("/v1/stats", s.handleGetStats)
	s.router.Get("/v1/rate-limit", s.handleGetRateLimit)
	s.router.Put("/v1/rate-limit", s.handleSetRateLimit)
}

// ListenAndServe binds a loopback listener on port and serves until the
// listener errors or the process exits; callers typically run it in a
// goroutine.
func (s *Server) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return http.Serve(lis, s.router)
}

func (s *Server) localhostOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "127.0.0.1" && host != "::1" {
			s.logger.Warn("rejected non-loopback control-api request", "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-Vdengine-Token") != s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type addTaskRequest struct {
	URL             string `json:"url"`
	OutputDir       string `json:"output_dir"`
	Priority        int    `json:"priority"`
	AllowDuplicates bool   `json:"allow_duplicates"`
	AutoStart       bool   `json:"auto_start"`
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req addTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.URL == "" || req.OutputDir == "" {
		http.Error(w, "url and output_dir are required", http.StatusBadRequest)
		return
	}

	task, err := s.orch.AddTask(req.URL, req.OutputDir, req.Priority, req.AllowDuplicates)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if req.AutoStart {
		if err := s.orch.StartDownload(task.ID); err != nil {
			s.logger.Warn("auto-start failed", "task_id", task.ID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

type batchEntryRequest struct {
	URL       string `json:"url"`
	OutputDir string `json:"output_dir"`
	Priority  int    `json:"priority"`
}

type addBatchRequest struct {
	Entries         []batchEntryRequest `json:"entries"`
	AllowDuplicates bool                `json:"allow_duplicates"`
}

type addBatchResponse struct {
	Tasks  []*model.Task `json:"tasks"`
	Errors []string      `json:"errors,omitempty"`
}

// handleAddBatch queues many tasks in one request; a malformed entry only
// fails that entry, it never aborts the rest of the batch.
func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	var req addBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	entries := make([]engine.BatchEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = engine.BatchEntry{URL: e.URL, OutputDir: e.OutputDir, Priority: e.Priority}
	}

	tasks, errs := s.orch.AddBatch(entries, req.AllowDuplicates)
	resp := addBatchResponse{Tasks: tasks}
	for _, err := range errs {
		resp.Errors = append(resp.Errors, err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.orch.GetTasks())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, ok := s.orch.GetTask(id)
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

type taskControlRequest struct {
	Action string `json:"action"` // start, pause, resume, cancel, remove, retry
}

func (s *Server) handleTaskControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req taskControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var err error
	switch req.Action {
	case "start":
		err = s.orch.StartDownload(id)
	case "pause":
		err = s.orch.PauseDownload(id)
	case "resume":
		err = s.orch.ResumeDownload(id)
	case "cancel":
		err = s.orch.CancelDownload(id)
	case "remove":
		err = s.orch.RemoveTask(id)
	case "retry":
		err = s.orch.RetryTask(id)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.orch.GetStats())
}

func (s *Server) handleGetRateLimit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"bytes_per_sec": s.orch.GetRateLimit()})
}

type rateLimitRequest struct {
	BytesPerSec int64 `json:"bytes_per_sec"`
}

func (s *Server) handleSetRateLimit(w http.ResponseWriter, r *http.Request) {
	var req rateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	s.orch.SetRateLimit(req.BytesPerSec)
	w.WriteHeader(http.StatusOK)
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch model.KindOf(err) {
	case model.ErrConfiguration, model.ErrClientRequest:
		status = http.StatusBadRequest
	case model.ErrAuthentication:
		status = http.StatusUnauthorized
	}
	http.Error(w, err.Error(), status)
}
