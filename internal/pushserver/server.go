// Package pushserver exposes the heartbeat ingress: push-mode hosts call
// POST /update/{id} to report liveness.
package pushserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// Server wraps the http.Server to provide graceful shutdown.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer creates and configures a new push server.
func NewServer(port string, handlers *Handlers, log zerolog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    ":" + port,
			Handler: NewRouter(handlers),
		},
		log: log.With().Str("component", "pushserver").Logger(),
	}
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting push server")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Fatal().Err(err).Msg("could not start push server")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down push server")
	return s.httpServer.Shutdown(ctx)
}
