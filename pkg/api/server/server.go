// Package server exposes the Gate admission HTTP surface: health,
// admission checks, and metrics. It is thin glue over the enforcement
// pipeline; all decision logic lives in pkg/enforce.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rzbill/gate/pkg/enforce"
	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/metrics"
	"github.com/rzbill/gate/pkg/snapshot"
)

// Options configures the admission server.
type Options struct {
	Addr     string
	Cache    *snapshot.Cache
	Pipeline *enforce.Pipeline
	Metrics  *metrics.Metrics
	Logger   log.Logger
}

// Server is the Gate HTTP server.
type Server struct {
	options    Options
	logger     log.Logger
	router     *mux.Router
	httpServer *http.Server
}

// NewServer creates the admission server.
func NewServer(options Options) (*Server, error) {
	if options.Cache == nil {
		return nil, fmt.Errorf("server requires a snapshot cache")
	}
	if options.Pipeline == nil {
		return nil, fmt.Errorf("server requires an enforcement pipeline")
	}
	if options.Addr == "" {
		options.Addr = ":4283"
	}
	logger := options.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	s := &Server{
		options: options,
		logger:  logger.WithComponent("api-server"),
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestID())
	router.Use(Logging(s.logger))
	if s.options.Metrics != nil {
		router.Use(Instrument(s.options.Metrics))
	}

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/v1/admission/check", s.handleCheck).Methods(http.MethodPost)
	if s.options.Metrics != nil {
		router.Handle("/metrics", s.options.Metrics.Handler()).Methods(http.MethodGet)
	}
	return router
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. It returns once the listener is bound; serving
// continues in the background until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.options.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.Addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server stopped unexpectedly", log.Err(err))
		}
	}()

	s.logger.Info("admission server started", log.Str("addr", s.options.Addr))
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("stopping admission server")
	return s.httpServer.Shutdown(ctx)
}

// healthResponse is the wire shape of /healthz.
type healthResponse struct {
	Status string              `json:"status"`
	Reason string              `json:"reason,omitempty"`
	Cache  snapshot.CacheStats `json:"cache"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.options.Cache.Stats()

	resp := healthResponse{Status: "healthy", Cache: stats}
	status := http.StatusOK
	if !s.options.Cache.Healthy() {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
		switch stats.State {
		case snapshot.StateUninitialized:
			resp.Reason = "no snapshot loaded yet"
		default:
			resp.Reason = "snapshot expired"
		}
	}

	writeJSON(w, status, resp)
}

// checkRequest is the wire shape of an admission probe.
type checkRequest struct {
	ProjectID string `json:"projectId"`
	Service   string `json:"service,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("INVALID_REQUEST", "request body must be JSON", false, 0))
		return
	}
	if req.ProjectID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("INVALID_REQUEST", "projectId is required", false, 0))
		return
	}

	decision := s.options.Pipeline.Admit(r.Context(), enforce.Request{
		ProjectID: req.ProjectID,
		Service:   req.Service,
		Origin:    req.Origin,
	})
	if s.options.Metrics != nil {
		code := ""
		if decision.Err != nil {
			code = string(decision.Err.Code)
		}
		s.options.Metrics.RecordDecision(decision.Allowed, code)
	}

	writeDecision(w, decision)
}
