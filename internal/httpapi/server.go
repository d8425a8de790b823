package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/service"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/types"
	"github.com/BrandonDHaskell/Beacon/server/internal/observability"
)

// defaultHistoryLimit applies when a history request has no limit parameter.
const defaultHistoryLimit = 100

type Dependencies struct {
	Logger           *zap.Logger
	Addr             string
	HeartbeatService *service.HeartbeatService
	Registry         *service.ServiceRegistry
	Metrics          *observability.Metrics // nil: /metrics is not served
	Monitor          *service.StoreMonitor  // nil: /healthz always reports ok
	RateLimiter      *RateLimiter           // nil: beats are not limited
	Tracer           *observability.Tracer  // nil: no request spans
}

type Server struct {
	httpServer       *http.Server
	logger           *zap.Logger
	mux              *http.ServeMux
	heartbeatService *service.HeartbeatService
	registry         *service.ServiceRegistry
	monitor          *service.StoreMonitor
	limiter          *RateLimiter
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		logger:           logger,
		mux:              mux,
		heartbeatService: d.HeartbeatService,
		registry:         d.Registry,
		monitor:          d.Monitor,
		limiter:          d.RateLimiter,
	}

	mux.HandleFunc("POST /services/{service_id}/beat", s.rateLimited(s.handleBeat))
	mux.HandleFunc("GET /services/{service_id}/status", s.handleStatus)
	mux.HandleFunc("GET /services/{service_id}/history", s.handleHistory)
	mux.HandleFunc("GET /services", s.handleServices)

	if d.Registry != nil {
		mux.HandleFunc("GET /services/management", s.handleListRegistered)
		mux.HandleFunc("POST /services/management", s.handleRegister)
		mux.HandleFunc("DELETE /services/management/{name}", s.handleUnregister)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	var handler http.Handler = requestIDMiddleware(loggingMiddleware(logger, d.Metrics, mux))
	if d.Tracer != nil {
		// Outermost, so service spans started from r.Context() are its children.
		handler = otelhttp.NewHandler(handler, "beacon.http",
			otelhttp.WithTracerProvider(d.Tracer.Provider()),
		)
	}

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Heartbeats ───────────────────────────────────────────────────────────────

func (s *Server) handleBeat(w http.ResponseWriter, r *http.Request) {
	req, err := readBeatRequest(r)
	if err != nil {
		s.logger.Debug("beat details ignored",
			zap.String("service_id", r.PathValue("service_id")),
			zap.Error(err),
		)
	}

	resp, err := s.heartbeatService.Beat(r.Context(), r.PathValue("service_id"), req)
	if err != nil {
		s.writeServiceError(w, r, "beat", err)
		return
	}

	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.heartbeatService.Status(r.Context(), r.PathValue("service_id"))
	if err != nil {
		s.writeServiceError(w, r, "status", err)
		return
	}

	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	resp, err := s.heartbeatService.History(r.Context(), r.PathValue("service_id"), limit)
	if err != nil {
		s.writeServiceError(w, r, "history", err)
		return
	}

	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	resp, err := s.heartbeatService.Services(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "services", err)
		return
	}

	respond(w, r, http.StatusOK, resp)
}

// ── Registry ─────────────────────────────────────────────────────────────────

func (s *Server) handleListRegistered(w http.ResponseWriter, r *http.Request) {
	list, err := s.registry.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "list_services", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"services": list})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterServiceRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	info, err := s.registry.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, "register_service", err)
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), r.PathValue("name")); err != nil {
		s.writeServiceError(w, r, "delete_service", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ── Health ───────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.monitor != nil && !s.monitor.Check(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps service and store errors onto HTTP responses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, store.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage is unavailable")
	case errors.Is(err, service.ErrInvalidServiceName):
		writeError(w, http.StatusBadRequest, "invalid_service_name", err.Error())
	case errors.Is(err, service.ErrInvalidTimeout):
		writeError(w, http.StatusBadRequest, "invalid_timeout", err.Error())
	case errors.Is(err, service.ErrServiceExists):
		writeError(w, http.StatusConflict, "service_exists", err.Error())
	case errors.Is(err, service.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_cancelled", "request cancelled")
	default:
		s.logger.Error("request failed",
			zap.String("op", op),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
