// Package web provides an HTTP status server for the vent controller.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/vent-controller/internal/metrics"
	"github.com/sweeney/vent-controller/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	metrics    *metrics.Metrics
}

// New creates a Server that reads state from the given tracker.
// m may be nil, in which case /metrics returns 404.
func New(addr string, tracker *status.Tracker, m *metrics.Metrics) *Server {
	s := &Server{tracker: tracker, metrics: m}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.wrap("/", s.handleIndex))
	r.Get("/index.html", s.wrap("/index.html", s.handleIndex))
	r.Get("/index.json", s.wrap("/index.json", s.handleJSON))
	r.Get("/healthz", s.wrap("/healthz", s.handleHealth))
	r.Method(http.MethodGet, "/metrics", m.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return s.metrics.WrapHandler(route, h).ServeHTTP
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// healthJSON is the /healthz body.
type healthJSON struct {
	Status   string `json:"status"`
	LastTick string `json:"last_tick,omitempty"`
}

// handleHealth reports 503 until the first decision, and when the last
// decision is older than three poll intervals.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	h := healthJSON{Status: "ok"}
	code := http.StatusOK

	switch {
	case !snap.Ready:
		h.Status = "starting"
		code = http.StatusServiceUnavailable
	default:
		h.LastTick = snap.Decision.Timestamp.UTC().Format(time.RFC3339)
		limit := 3 * time.Duration(snap.Config.PollMs) * time.Millisecond
		if limit > 0 && snap.Now.Sub(snap.Decision.Timestamp) > limit {
			h.Status = "stale"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(h)
}
