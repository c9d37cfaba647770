package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"scrblit/cmd/internal/canvas"
	"scrblit/cmd/internal/ids"
)

// Format selects the archived image encoding.
type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
)

// DefaultTimeout bounds a single archival attempt.
const DefaultTimeout = 30 * time.Second

// ParseFormat accepts "png" or "pdf". Empty selects FormatPNG.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPNG, nil
	case FormatPNG, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("archive: unknown format %q", s)
	}
}

func (f Format) encode(snap canvas.Snapshot) (data []byte, contentType string, err error) {
	switch f {
	case FormatPDF:
		data, err = canvas.EncodePDF(snap)
		return data, canvas.ContentTypePDF, err
	default:
		data, err = canvas.EncodePNG(snap)
		return data, canvas.ContentTypePNG, err
	}
}

func (f Format) ext() string {
	if f == FormatPDF {
		return "pdf"
	}
	return "png"
}

// ObjectName returns "scribble_<unix-ms>_<ulid>.<ext>". The ULID keeps names unique when
// two archives land in the same millisecond.
func ObjectName(now time.Time, ext string) (string, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("scribble_%d_%s.%s", now.UnixMilli(), id, ext), nil
}

// Digest returns the hex BLAKE2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HandoffConfig configures NewHandoff.
type HandoffConfig struct {
	Store      Store
	Credential string
	Format     Format
	Timeout    time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// Handoff archives snapshots through a Store.
type Handoff struct {
	store      Store
	credential string
	format     Format
	timeout    time.Duration
	now        func() time.Time
	log        *slog.Logger
}

// NewHandoff validates cfg. An empty credential is accepted here and refused per call.
func NewHandoff(cfg HandoffConfig) (*Handoff, error) {
	if cfg.Store == nil {
		return nil, errors.New("archive: nil store")
	}
	format := cfg.Format
	if format == "" {
		format = FormatPNG
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handoff{
		store:      cfg.Store,
		credential: strings.TrimSpace(cfg.Credential),
		format:     format,
		timeout:    timeout,
		now:        now,
		log:        log,
	}, nil
}

// Archive encodes snap and stores it. It returns ErrMissingCredential without touching
// the store when no credential is configured.
func (h *Handoff) Archive(ctx context.Context, snap canvas.Snapshot) error {
	if h.credential == "" {
		return ErrMissingCredential
	}

	data, contentType, err := h.format.encode(snap)
	if err != nil {
		return err
	}
	name, err := ObjectName(h.now(), h.format.ext())
	if err != nil {
		return fmt.Errorf("archive: name: %w", err)
	}
	obj := Object{
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Digest:      Digest(data),
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	if err := h.store.Store(ctx, obj, h.credential); err != nil {
		return err
	}

	h.log.Info("archive.store.ok",
		"name", obj.Name,
		"bytes", len(obj.Data),
		"digest", obj.Digest,
		"cycle", snap.Cycle,
		"lines", len(snap.Lines),
		"took_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Put stores an already encoded object under the handoff's credential and timeout.
func (h *Handoff) Put(ctx context.Context, obj Object) error {
	if h.credential == "" {
		return ErrMissingCredential
	}
	if obj.Digest == "" {
		obj.Digest = Digest(obj.Data)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.store.Store(ctx, obj, h.credential)
}
