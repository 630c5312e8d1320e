package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/medicore/medidash/internal/config"
	"github.com/medicore/medidash/internal/dashboard"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Pinger reports whether the warehouse is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the dashboard JSON API.
type Server struct {
	mu      gosync.RWMutex
	cfg     config.Config
	wh      Pinger
	runner  *dashboard.Runner
	mux     *http.ServeMux
	httpSrv *http.Server
	version VersionInfo
	now     func() time.Time

	// handlerDelay runs before every timeout-wrapped handler.
	// Tests set it; it is zero otherwise.
	handlerDelay time.Duration
}

// New builds a Server with its routes registered. Options are
// applied before routing.
func New(
	cfg config.Config, wh Pinger, runner *dashboard.Runner,
	opts ...Option,
) *Server {
	s := &Server{
		cfg:    cfg,
		wh:     wh,
		runner: runner,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithClock overrides the clock used for the default date
// window. Nil is ignored.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/v1/dashboards", s.withTimeout(s.handleListDashboards))
	s.mux.Handle(
		"GET /api/v1/dashboards/{dashboard}", s.withTimeout(s.handleGetDashboard),
	)
	s.mux.Handle(
		"GET /api/v1/dashboards/{dashboard}/options",
		s.withTimeout(s.handleGetOptions),
	)
	s.mux.Handle(
		"GET /api/v1/dashboards/{dashboard}/panels/{panel}",
		s.withTimeout(s.handleGetPanel),
	)
	// Parquet streams straight to the client, outside withTimeout.
	s.mux.Handle(
		"GET /api/v1/dashboards/{dashboard}/panels/{panel}/export",
		http.HandlerFunc(s.handleExportPanel),
	)
	s.mux.Handle("GET /api/v1/health", s.withTimeout(s.handleHealth))
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, s.version)
}

func (s *Server) handleHealth(
	w http.ResponseWriter, r *http.Request,
) {
	if err := s.wh.Ping(r.Context()); err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("health: %v", err)
		writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetPort updates the listen port (for testing).
func (s *Server) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Port = port
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(logMiddleware(s.mux))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.mu.RLock()
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.mu.RUnlock()
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	log.Printf("Starting server at http://%s", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// FindAvailablePort returns the first port in [start, start+100)
// that host can bind, or start if none can.
func FindAvailablePort(host string, start int) int {
	for port := start; port < start+100; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return start
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set(
				"Access-Control-Allow-Origin", "*",
			)
			w.Header().Set(
				"Access-Control-Allow-Methods",
				"GET, OPTIONS",
			)
			w.Header().Set(
				"Access-Control-Allow-Headers",
				"Content-Type",
			)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
