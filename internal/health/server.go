// Package health serves the relay's status surface.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/devblac/bridge-relay/internal/relay"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

type Checker struct {
	DBPing func(ctx context.Context) error
	RPC    map[string]Pinger
}

// Status exposes what the HTTP surface reports.
type Status struct {
	Checker   Checker
	Pipelines func() []relay.Snapshot
	Metrics   http.Handler
}

// Router mounts /healthz, /pipelines and, when a handler is set, /metrics.
func Router(s Status) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Get("/pipelines", s.pipelines)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}
	return r
}

func (s Status) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if s.Checker.DBPing != nil {
		if err := s.Checker.DBPing(ctx); err != nil {
			status["db"] = "fail"
			code = http.StatusServiceUnavailable
		} else {
			status["db"] = "ok"
		}
	}
	rpc, healthy := pingAll(ctx, s.Checker.RPC)
	for k, v := range rpc {
		status[k] = v
	}
	if !healthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, status)
}

func (s Status) pipelines(w http.ResponseWriter, _ *http.Request) {
	snaps := []relay.Snapshot{}
	if s.Pipelines != nil {
		snaps = s.Pipelines()
	}
	writeJSON(w, http.StatusOK, snaps)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve starts the status server in the background.
func Serve(addr string, h http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the status server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
