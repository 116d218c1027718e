// Package api serves the side HTTP endpoints of a migration run: Prometheus
// exposition on /healthz and live progress on /stats.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/okian/histsync/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Server wires HTTP routes for the side server.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Listener is a running side server.
type Listener struct {
	srv  *http.Server
	addr net.Addr
	done chan error
	log  logger.Logger
}

// Listen binds addr and serves h in the background. Use ":0" for an
// ephemeral port and read it back with Addr.
func Listen(ctx context.Context, addr string, h http.Handler, log logger.Logger) (*Listener, error) {
	if log == nil {
		log = logger.Nop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServe, err)
	}
	l := &Listener{
		srv: &http.Server{
			Handler:           h,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		addr: ln.Addr(),
		done: make(chan error, 1),
		log:  log,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", l.addr.String()))
		err := l.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		l.done <- err
	}()
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() string {
	return l.addr.String()
}

// Shutdown stops the server gracefully.
func (l *Listener) Shutdown(ctx context.Context) error {
	if err := l.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrServe, err)
	}
	if err := <-l.done; err != nil {
		return fmt.Errorf("%w: %w", ErrServe, err)
	}
	l.log.Info(ctx, "server stopped")
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
