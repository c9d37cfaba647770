package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"scrblit/cmd/internal/archive"
	"scrblit/cmd/internal/canvas"
)

// ValidateConfig enforces startup policy. It fails fast so a misconfigured deployment
// never runs a canvas whose snapshots cannot be archived.
func ValidateConfig(cfg Config) error {
	var errs []error

	if strings.TrimSpace(cfg.ArchiveCredential) == "" {
		errs = append(errs, errors.New("config: SCRBLIT_ARCHIVE_CREDENTIAL is required"))
	}

	backend, err := archive.ParseBackend(cfg.ArchiveBackend)
	if err != nil {
		errs = append(errs, fmt.Errorf("config: SCRBLIT_ARCHIVE_BACKEND: %w", err))
	}
	switch backend {
	case archive.BackendHTTP:
		if err := validateUploadURL(cfg.ArchiveUploadURL); err != nil {
			errs = append(errs, fmt.Errorf("config: SCRBLIT_ARCHIVE_UPLOAD_URL: %w", err))
		}
	case archive.BackendGCS:
		if strings.TrimSpace(cfg.ArchiveBucket) == "" {
			errs = append(errs, errors.New("config: SCRBLIT_ARCHIVE_BUCKET is required for the gcs backend"))
		}
	case archive.BackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			errs = append(errs, errors.New("config: SCRBLIT_DATABASE_URL is required for the postgres backend"))
		}
	case archive.BackendDir:
		if strings.TrimSpace(cfg.ArchiveDir) == "" {
			errs = append(errs, errors.New("config: SCRBLIT_ARCHIVE_DIR is required for the dir backend"))
		}
	}

	if _, err := archive.ParseFormat(cfg.ArchiveFormat); err != nil {
		errs = append(errs, fmt.Errorf("config: SCRBLIT_ARCHIVE_FORMAT: %w", err))
	}
	if _, err := canvas.ParseFailurePolicy(cfg.ArchiveOnFailure); err != nil {
		errs = append(errs, fmt.Errorf("config: SCRBLIT_ARCHIVE_ON_FAILURE: %w", err))
	}
	if t := cfg.CoverageThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("config: SCRBLIT_COVERAGE_THRESHOLD must be in (0, 1], got %v", t))
	}
	if _, err := canvas.NewMeter(cfg.CoverageModel, cfg.CanvasWidth, cfg.CanvasHeight, cfg.PenWidth); err != nil {
		errs = append(errs, fmt.Errorf("config: SCRBLIT_COVERAGE_MODEL: %w", err))
	}
	if cfg.PenWidth <= 0 {
		errs = append(errs, fmt.Errorf("config: SCRBLIT_PEN_WIDTH must be positive, got %v", cfg.PenWidth))
	}
	if cfg.ReadinessRequireDB && strings.TrimSpace(cfg.DatabaseURL) == "" {
		errs = append(errs, errors.New("config: SCRBLIT_READINESS_REQUIRE_DB=true but SCRBLIT_DATABASE_URL is empty"))
	}

	return errors.Join(errs...)
}

func validateUploadURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("required for the http backend")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
