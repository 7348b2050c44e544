// Package server exposes the control API over HTTP. Each request maps to
// one registry or supervisor operation; no lock is held while writing a
// response.
package server

import (
	"net/http"
	"time"

	"github.com/harborlight/plugind/internal/logger"
	"github.com/harborlight/plugind/internal/registry"
	"github.com/harborlight/plugind/internal/sampler"
	"github.com/harborlight/plugind/internal/supervisor"
)

// Server wires the control API routes to the orchestrator components.
type Server struct {
	reg        *registry.Registry
	sup        *supervisor.Supervisor
	samp       *sampler.Sampler
	pluginDirs []string
	log        *logger.Logger
	mux        *http.ServeMux
}

// New creates a Server serving the control API for the given components.
func New(reg *registry.Registry, sup *supervisor.Supervisor, samp *sampler.Sampler, pluginDirs []string, log *logger.Logger) *Server {
	s := &Server{
		reg:        reg,
		sup:        sup,
		samp:       samp,
		pluginDirs: pluginDirs,
		log:        log.WithComponent("server"),
		mux:        http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("GET /api/v1/plugins", s.handleList)
	s.mux.HandleFunc("POST /api/v1/plugins/rescan", s.handleRescan)
	s.mux.HandleFunc("GET /api/v1/plugins/{name}", s.handleGet)
	s.mux.HandleFunc("POST /api/v1/plugins/{name}/start", s.handleStart)
	s.mux.HandleFunc("POST /api/v1/plugins/{name}/stop", s.handleStop)
	s.mux.HandleFunc("POST /api/v1/plugins/{name}/restart", s.handleRestart)
	s.mux.HandleFunc("GET /api/v1/plugins/{name}/config", s.handleGetConfig)
	s.mux.HandleFunc("PUT /api/v1/plugins/{name}/config", s.handlePutConfig)
	s.mux.HandleFunc("GET /api/v1/plugins/{name}/logs", s.handleLogs)
	s.mux.HandleFunc("GET /api/v1/plugins/{name}/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/v1/plugins/{name}/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/v1/system/info", s.handleSystemInfo)
}

// Handler returns the root handler for mounting into an http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// HTTPServer builds a configured http.Server on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
