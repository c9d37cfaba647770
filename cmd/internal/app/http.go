package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"scrblit/cmd/internal/realtime"
)

// Handler returns the full middleware-wrapped route table.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)
	return WithRequestLogging(WithSecurityHeaders(mux), a.log)
}

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	// Plain-text liveness kept for existing uptime checks.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Scrblit server is running."))
	})

	mux.HandleFunc("GET /readyz", a.handleReady)

	mux.Handle("GET /metrics", a.metrics.Handler())

	mux.Handle("/api/v1/canvas", WithCORS(http.HandlerFunc(a.handleCanvas), a.cfg, a.log))
	mux.Handle("/api/v1/save-scribble", WithCORS(a.save, a.cfg, a.log))

	mux.Handle("GET /ws", a.ws)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	select {
	case <-a.hub.Done():
		http.Error(w, "hub stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	if a.cfg.ReadinessRequireDB && !a.dbEnabled {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}

	if a.dbEnabled && a.dbPool != nil {
		if err := PingDB(r.Context(), a.dbPool, 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.db.not_ready", "err", err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

// handleCanvas reports the live canvas status.
func (a *App) handleCanvas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := a.hub.Status(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, realtime.ErrHubClosed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "canvas unavailable", status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		a.log.Info("http.canvas.write.fail", "err", err)
	}
}
