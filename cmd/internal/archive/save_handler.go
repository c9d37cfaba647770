package archive

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"scrblit/cmd/internal/metrics"
)

const (
	pngDataURLPrefix = "data:image/png;base64,"

	// A 900x500 RGBA PNG is far below this even uncompressed and base64-inflated.
	maxSaveBodyBytes = 8 << 20

	saveRateLimit  = 6
	saveRateWindow = time.Minute
)

// SaveHandler serves POST /api/v1/save-scribble: a client uploads its own rendering of the
// canvas as a PNG data URL and the server forwards it to the archive store.
type SaveHandler struct {
	log     *slog.Logger
	handoff *Handoff
	metrics *metrics.Metrics
	now     func() time.Time

	trustProxy bool
	limiter    *ipLimiter
}

// SaveOption configures SaveHandler.
type SaveOption func(*SaveHandler)

func WithSaveMetrics(m *metrics.Metrics) SaveOption {
	return func(h *SaveHandler) { h.metrics = m }
}

// WithSaveRateLimit caps uploads per client IP. limit <= 0 disables the cap.
func WithSaveRateLimit(limit int, window time.Duration) SaveOption {
	return func(h *SaveHandler) {
		if limit <= 0 {
			h.limiter = nil
			return
		}
		h.limiter = newIPLimiter(limit, window)
	}
}

// WithTrustProxy makes the rate limiter key on X-Forwarded-For / X-Real-IP.
func WithTrustProxy(trust bool) SaveOption {
	return func(h *SaveHandler) { h.trustProxy = trust }
}

func WithSaveClock(now func() time.Time) SaveOption {
	return func(h *SaveHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewSaveHandler returns a handler storing uploads through handoff.
func NewSaveHandler(log *slog.Logger, handoff *Handoff, opts ...SaveOption) (*SaveHandler, error) {
	if handoff == nil {
		return nil, errors.New("archive: nil handoff")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &SaveHandler{
		log:     log,
		handoff: handoff,
		now:     time.Now,
		limiter: newIPLimiter(saveRateLimit, saveRateWindow),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

func (h *SaveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed.")
		return
	}

	now := h.now()
	if h.limiter != nil {
		key := "unknown"
		if ip := clientIP(r, h.trustProxy); ip != nil {
			key = ip.String()
		}
		if ok, retry := h.limiter.allow(key, now); !ok {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(retry.Seconds())+1, 10))
			writeFailure(w, http.StatusTooManyRequests, "Too many save requests.")
			return
		}
	}

	var req saveRequest
	if err := decodeJSON(w, r, maxSaveBodyBytes, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusRequestEntityTooLarge, "Image data too large.")
			return
		}
		writeFailure(w, http.StatusBadRequest, "Invalid or missing image data.")
		return
	}

	if !strings.HasPrefix(req.ImageData, pngDataURLPrefix) {
		writeFailure(w, http.StatusBadRequest, "Invalid or missing image data.")
		return
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(req.ImageData, pngDataURLPrefix))
	if err != nil || len(data) == 0 {
		writeFailure(w, http.StatusBadRequest, "Invalid or missing image data.")
		return
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		writeFailure(w, http.StatusBadRequest, "Image data is not a PNG.")
		return
	}

	name, err := ObjectName(now, "png")
	if err != nil {
		h.log.Error("archive.save.name.fail", "err", err)
		writeFailure(w, http.StatusInternalServerError, "Server error during external transfer.")
		return
	}

	h.log.Info("archive.save.start", "name", name, "bytes", len(data))

	err = h.handoff.Put(r.Context(), Object{
		Name:        name,
		ContentType: "image/png",
		Data:        data,
	})
	switch {
	case err == nil:
		h.metrics.ClientSave(metrics.ResultOK)
		h.log.Info("archive.save.ok", "name", name)
		writeJSON(w, http.StatusOK, saveResponse{
			Success:  true,
			Message:  "Image successfully archived.",
			FileName: name,
		})
	case errors.Is(err, ErrMissingCredential):
		h.metrics.ClientSave(metrics.ResultRefused)
		h.log.Error("archive.save.refused", "name", name, "err", err)
		writeFailure(w, http.StatusServiceUnavailable, "Archive is not configured.")
	case errors.Is(err, ErrRejected):
		h.metrics.ClientSave(metrics.ResultError)
		h.log.Error("archive.save.rejected", "name", name, "err", err)
		writeFailure(w, http.StatusInternalServerError, "Failed to save image on archive server.")
	default:
		h.metrics.ClientSave(metrics.ResultError)
		h.log.Error("archive.save.fail", "name", name, "err", err)
		writeFailure(w, http.StatusInternalServerError, "Server error during external transfer.")
	}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

// ipLimiter is a sliding-window limiter keyed by client address.
type ipLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	if window <= 0 {
		window = saveRateWindow
	}
	return &ipLimiter{limit: limit, window: window, events: make(map[string][]time.Time)}
}

// allow records an event for key at now. When refused it reports how long until the
// oldest event in the window expires.
func (l *ipLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := now.Add(-l.window)
	kept := l.events[key][:0]
	for _, t := range l.events[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.events[key] = kept
		return false, kept[0].Sub(cut)
	}
	l.events[key] = append(kept, now)

	// Keep the map from growing with one-off clients.
	if len(l.events) > 4096 {
		for k, ts := range l.events {
			if len(ts) == 0 || !ts[len(ts)-1].After(cut) {
				delete(l.events, k)
			}
		}
	}
	return true, 0
}
