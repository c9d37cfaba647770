// Package app wires the Scrblit server runtime: config, logging, HTTP routes, the canvas
// hub and the archive backend.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"scrblit/cmd/internal/archive"
	"scrblit/cmd/internal/canvas"
	"scrblit/cmd/internal/metrics"
	"scrblit/cmd/internal/realtime"
)

// hubDrainTimeout bounds how long shutdown waits for the hub, which itself waits for an
// in-flight archive.
const hubDrainTimeout = archive.DefaultTimeout + 5*time.Second

// App is the Scrblit server runtime: it owns HTTP server wiring, the hub and the archive
// backend's resources.
type App struct {
	cfg Config
	log Logger

	metrics *metrics.Metrics

	dbPool    *pgxpool.Pool
	dbEnabled bool

	backend string
	closers []func() error

	hub  *realtime.Hub
	ws   *realtime.WSGateway
	save *archive.SaveHandler
}

// New validates cfg and constructs a fully wired App.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
	}
	if err := a.wire(context.Background()); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		a.dbPool = pool
		a.dbEnabled = true
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.log.Info("db.enabled")
	}

	store, err := a.newArchiveStore(ctx)
	if err != nil {
		return err
	}

	format, err := archive.ParseFormat(cfg.ArchiveFormat)
	if err != nil {
		return err
	}
	handoff, err := archive.NewHandoff(archive.HandoffConfig{
		Store:      store,
		Credential: cfg.ArchiveCredential,
		Format:     format,
		Timeout:    cfg.ArchiveTimeout,
		Logger:     a.log,
	})
	if err != nil {
		return err
	}

	meter, err := canvas.NewMeter(cfg.CoverageModel, cfg.CanvasWidth, cfg.CanvasHeight, cfg.PenWidth)
	if err != nil {
		return err
	}
	policy, err := canvas.ParseFailurePolicy(cfg.ArchiveOnFailure)
	if err != nil {
		return err
	}
	coord, err := canvas.NewCoordinator(cfg.CoverageThreshold, policy)
	if err != nil {
		return err
	}
	session := canvas.NewSession(canvas.SessionConfig{
		Width:  cfg.CanvasWidth,
		Height: cfg.CanvasHeight,
		Meter:  meter,
	})

	a.hub, err = realtime.NewHub(realtime.HubConfig{
		Session:     session,
		Coordinator: coord,
		Archiver:    handoff,
		Logger:      a.log,
		Metrics:     a.metrics,
	})
	if err != nil {
		return err
	}

	a.ws, err = realtime.NewWSGateway(a.log, a.hub, realtime.WithGatewayMetrics(a.metrics))
	if err != nil {
		return err
	}

	a.save, err = archive.NewSaveHandler(a.log, handoff,
		archive.WithSaveMetrics(a.metrics),
		archive.WithSaveRateLimit(cfg.SaveRateLimit, time.Minute),
		archive.WithTrustProxy(cfg.TrustProxy),
	)
	return err
}

// newArchiveStore builds the configured backend. Resources it opens are released by close.
func (a *App) newArchiveStore(ctx context.Context) (archive.Store, error) {
	cfg := a.cfg

	backend, err := archive.ParseBackend(cfg.ArchiveBackend)
	if err != nil {
		return nil, err
	}
	a.backend = backend

	switch backend {
	case archive.BackendHTTP:
		return archive.NewHTTPStore(cfg.ArchiveUploadURL, &http.Client{Timeout: cfg.ArchiveTimeout})
	case archive.BackendGCS:
		st, err := archive.NewGCSStore(cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	case archive.BackendPostgres:
		if a.dbPool == nil {
			return nil, errors.New("archive: postgres backend requires SCRBLIT_DATABASE_URL")
		}
		st, err := archive.NewPostgresStore(a.dbPool)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("archive: ensure schema: %w", err)
		}
		return st, nil
	case archive.BackendDir:
		return archive.NewDirStore(cfg.ArchiveDir)
	default:
		a.log.Warn("archive.backend.memory", "note", "snapshots are kept in process memory only")
		return archive.NewMemoryStore(), nil
	}
}

// Run starts the hub and the HTTP server and blocks until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHub()
	hubDone := make(chan error, 1)
	go func() { hubDone <- a.hub.Run(hubCtx) }()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.log.Error("server.listen.fail", "addr", a.cfg.HTTPAddr, "err", err)
		return err
	}

	base := runtimeBaseURL(ln.Addr().String())
	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"archive_backend", a.backend,
		"db_enabled", a.dbEnabled,
	)

	if a.cfg.MDNSEnabled {
		stop, err := advertiseMDNS(a.cfg, ln.Addr(), a.log)
		if err != nil {
			a.log.Warn("mdns.advertise.fail", "err", err)
		} else {
			defer stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	// Stopping the hub first closes every client, so websocket handlers return before
	// the HTTP server drains.
	stopHub()
	select {
	case <-hubDone:
	case <-time.After(hubDrainTimeout):
		a.log.Error("hub.stop.timeout", "timeout", hubDrainTimeout.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	a.log.Info("server.stopped")
	return runErr
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error("app.close.fail", "err", err)
		}
	}
	a.closers = nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local client can dial. Wildcard
// binds map to the IPv4 loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
