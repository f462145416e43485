package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
)

// StreamLister reports the volume assembly state of every radar stream.
type StreamLister interface {
	Streams() []domain.StreamStatus
}

// Server exposes health, readiness, metrics, and stream status HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /streams routes. streams may be nil, in which case /streams is not served.
func NewServer(addr string, ready sharedobs.ReadinessChecker, streams StreamLister, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if streams != nil {
		mux.HandleFunc("GET /streams", handleStreams(streams))
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleStreams(streams StreamLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		list := streams.Streams()
		if list == nil {
			list = []domain.StreamStatus{}
		}
		sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"streams": list})
	}
}
