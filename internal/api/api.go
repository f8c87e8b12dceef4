package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/slok/cartpool/internal/app/orchestrator"
	"github.com/slok/cartpool/internal/checkout"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/session"
)

// Service is the orchestrator service exposed by the API.
type Service interface {
	Enqueue(ctx context.Context, req orchestrator.EnqueueRequest) error
	ListSessions(ctx context.Context) []model.ActiveSession
	GetSession(ctx context.Context, taskID string) (*model.ActiveSession, error)
}

// HandlerConfig is the configuration for the API HTTP handler.
type HandlerConfig struct {
	Service Service
	// MetricsHandler is served on /metrics when set.
	MetricsHandler http.Handler
	Logger         log.Logger
}

func (c *HandlerConfig) defaults() error {
	if c.Service == nil {
		return fmt.Errorf("service is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Handler"})
	return nil
}

type handler struct {
	svc    Service
	logger log.Logger
}

// NewHandler returns the HTTP handler of the enqueue and inspection API.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{svc: cfg.Service, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/tasks/{id}/run", h.runTask)
		r.Get("/sessions", h.listSessions)
		r.Get("/sessions/{taskID}", h.getSession)
	})

	return r, nil
}

func (h handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h handler) runTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	var req RunTaskRequest
	if r.ContentLength != 0 {
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, fmt.Errorf("invalid body: %w: %w", err, model.ErrNotValid))
			return
		}
	}

	err := h.svc.Enqueue(r.Context(), orchestrator.EnqueueRequest{
		TaskID:           taskID,
		CardFriendlyName: req.CardFriendlyName,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, RunTaskResponse{TaskID: taskID, Status: "queued"})
}

func (h handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.ListSessions(r.Context())
	resp := ListSessionsResponse{Sessions: make([]Session, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, mapSessionToAPI(s))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, mapSessionToAPI(*s))
}

func (h handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warningf("Could not write response: %s", err)
	}
}

func (h handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, model.ErrNotValid):
		status = http.StatusBadRequest
	case errors.Is(err, checkout.ErrUnknownSite):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrDraining):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Errorf("Request failed: %s", err)
	}
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (h handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.WithValues(log.Kv{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"request-id": middleware.GetReqID(r.Context()),
		}).Debugf("Request handled in %s", time.Since(start))
	})
}
