// Package api exposes the agent over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/ZanzyTHEbar/dispatch-agent/internal/executor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"go.uber.org/zap"
)

const (
	serviceName     = "dispatch-agent"
	maxRequestBytes = 1 << 16
	shutdownTimeout = 5 * time.Second
)

// QueryHandler answers a single query.
type QueryHandler interface {
	Handle(ctx context.Context, query string) (*dispatch.RunRecord, error)
}

// LogSource is the stage log read by the logs endpoint.
type LogSource interface {
	Entries() []dispatch.LogEntry
	EntriesFor(runID string) []dispatch.LogEntry
}

// MetricsSource reports tool call statistics.
type MetricsSource interface {
	Metrics() executor.RunnerMetrics
}

// Server routes HTTP requests to the agent.
type Server struct {
	agent      QueryHandler
	logs       LogSource
	metrics    MetricsSource
	logger     *zap.Logger
	requestLog bool
	router     chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics enables the metrics endpoint.
func WithMetrics(source MetricsSource) Option {
	return func(s *Server) {
		s.metrics = source
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestLogging toggles the per-request access log.
func WithRequestLogging(enabled bool) Option {
	return func(s *Server) {
		s.requestLog = enabled
	}
}

// NewServer creates a Server for agent and logs.
func NewServer(agent QueryHandler, logs LogSource, options ...Option) *Server {
	s := &Server{
		agent:      agent,
		logs:       logs,
		logger:     zap.NewNop(),
		requestLog: true,
	}
	for _, option := range options {
		option(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.requestLog {
		r.Use(httplog.RequestLogger(httplog.NewLogger(serviceName, httplog.Options{JSON: true, Concise: true})))
	}
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/queries", s.handleQuery)
		r.Get("/logs", s.handleLogs)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Record  *dispatch.RunRecord `json:"record"`
	Entries []dispatch.LogEntry `json:"entries"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Code: dispatch.ErrCodeValidation, Message: "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, errorBody{Code: dispatch.ErrCodeValidation, Message: "query is required"})
		return
	}

	record, err := s.agent.Handle(r.Context(), req.Query)
	if err != nil {
		s.logger.Warn("query failed", zap.String("run_id", dispatch.RunID(req.Query)), zap.Error(err))
		status, body := describeError(err)
		writeError(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Record:  record,
		Entries: s.logs.EntriesFor(record.ID),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		writeJSON(w, http.StatusOK, s.logs.EntriesFor(runID))
		return
	}
	writeJSON(w, http.StatusOK, s.logs.Entries())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotFound, errorBody{Code: dispatch.ErrCodeConfiguration, Message: "metrics are not enabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Metrics())
}

// describeError maps err to a status code and response body.
func describeError(err error) (int, errorBody) {
	dErr, ok := dispatch.AsDispatchError(err)
	if !ok {
		return http.StatusInternalServerError, errorBody{Code: dispatch.ErrCodeInternal, Message: err.Error()}
	}

	body := errorBody{Code: dErr.Code, Message: dErr.Error(), Stage: dErr.Stage}
	switch dErr.Code {
	case dispatch.ErrCodeValidation:
		return http.StatusUnprocessableEntity, body
	case dispatch.ErrCodeTimeout:
		return http.StatusGatewayTimeout, body
	case dispatch.ErrCodeCancelled:
		return http.StatusServiceUnavailable, body
	case dispatch.ErrCodeToolExecution:
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, body
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, errorResponse{Error: body})
}
