// Package httpapi is the REST control plane (spec ch.6): one
// httprouter-backed handler per mutation/query operation.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Config configures the HTTP listener.
type Config struct {
	Addr              string
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
}

// Server wraps an httprouter.Router behind a stoppable http.Server.
type Server struct {
	config Config
	http   *http.Server
	router *httprouter.Router
}

// New builds a Server ready to have handlers registered and then Start.
func New(config Config) *Server {
	s := &Server{config: config, router: httprouter.New()}
	s.http = &http.Server{Addr: config.Addr, Handler: s.router}
	if config.WriteTimeout != 0 {
		s.http.WriteTimeout = config.WriteTimeout
	}
	if config.ReadTimeout != 0 {
		s.http.ReadTimeout = config.ReadTimeout
	}
	if config.ReadHeaderTimeout != 0 {
		s.http.ReadHeaderTimeout = config.ReadHeaderTimeout
	}
	return s
}

// Start serves until Close, returning nil on a clean shutdown.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close gracefully shuts the server down.
func (s *Server) Close(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handle registers a handler for method and path.
func (s *Server) Handle(method, path string, h httprouter.Handle) {
	s.router.Handle(method, path, h)
}

// Params is the URL parameter list a Handle receives.
type Params = httprouter.Params
