// Package api is the HTTP front door: it authenticates scoring requests and
// places them on the leaderboard queue.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/internal/errors"
	"scoregate/ports"
)

// Options configures the HTTP server.
type Options struct {
	Addr    string
	APIKey  string
	Metrics http.Handler
	// LogLevel and JSON configure request logging.
	LogLevel slog.Level
	JSON     bool
}

// Server accepts scoring requests over HTTP
type Server struct {
	router *chi.Mux
	queue  ports.Queue
	apiKey []byte
	srv    *http.Server
}

// NewServer builds the router. Requests that pass authentication are
// enqueued on queue.
func NewServer(queue ports.Queue, opts Options) *Server {
	s := &Server{
		router: chi.NewRouter(),
		queue:  queue,
		apiKey: []byte(opts.APIKey),
	}

	logger := httplog.NewLogger("scoregate", httplog.Options{
		LogLevel:         opts.LogLevel,
		JSON:             opts.JSON,
		Concise:          true,
		MessageFieldName: "message",
	})
	s.router.Use(httplog.RequestLogger(logger))
	s.router.Use(middleware.Recoverer)

	s.router.Post("/", s.handleScore)
	s.router.Get("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type scoreRequest struct {
	SubmissionID string `json:"submission_id"`
	APIKey       string `json:"api_key"`
}

type scoreResponse struct {
	Status       string `json:"status"`
	SubmissionID string `json:"submission_id,omitempty"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	var req scoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, logger, errors.InvalidInput("request body must be a JSON object"))
		return
	}
	id, err := core.ParseSubmissionID(req.SubmissionID)
	if err != nil {
		writeError(w, logger, errors.InvalidInput("submission_id is required"))
		return
	}
	if len(s.apiKey) == 0 || subtle.ConstantTimeCompare([]byte(req.APIKey), s.apiKey) != 1 {
		logger.Warn("rejected request with invalid api key", "submission_id", req.SubmissionID)
		writeError(w, logger, errors.Unauthorized("invalid api key"))
		return
	}

	if err := s.queue.Enqueue(r.Context(), submission.NewQueueItem(id)); err != nil {
		writeError(w, logger, errors.QueueError(s.queue.Name(), err))
		return
	}

	logger.Info("queued submission for scoring", "submission_id", req.SubmissionID)
	writeJSON(w, http.StatusAccepted, scoreResponse{Status: "queued", SubmissionID: req.SubmissionID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scoreResponse{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body scoreResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, scoreResponse{
		Status:  "error",
		Code:    errors.GetCode(err),
		Message: err.Error(),
	})
}
