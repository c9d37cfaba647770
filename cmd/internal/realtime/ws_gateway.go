package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"scrblit/cmd/internal/metrics"
	v1 "scrblit/shared/contracts/scribble/v1"
)

const (
	// Offered, not required: browser clients of the original protocol connect without one.
	wsSubprotocolV1 = "scrblit.v1"

	wsDefaultSendQueueSize = 512
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	wsDefaultOriginRequired = false
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// WSGateway is the WebSocket entrypoint.
//
// It enforces the origin policy, rate limits and heartbeats, decodes inbound frames and
// hands them to the Hub. Outbound messages are drained from the client's queue by a
// dedicated writer goroutine. No transport goroutine touches canvas state.
type WSGateway struct {
	log     *slog.Logger
	hub     *Hub
	metrics *metrics.Metrics

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks: same-host origins pass by default, any
	// cross-origin host must be listed here.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// GatewayOption configures a WSGateway after env defaults are applied.
type GatewayOption func(*WSGateway)

// WithGatewayMetrics records malformed frames.
func WithGatewayMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *WSGateway) { g.metrics = m }
}

// WithAllowedOrigins replaces the origin allowlist.
func WithAllowedOrigins(origins []string) GatewayOption {
	return func(g *WSGateway) {
		g.allowedOrigins = origins
		g.originPatterns = deriveOriginPatternsFromAllowedOrigins(origins)
	}
}

// WithHeartbeat overrides the ping interval and timeout.
func WithHeartbeat(every, timeout time.Duration) GatewayOption {
	return func(g *WSGateway) {
		if every > 0 {
			g.heartbeatEvery = every
		}
		if timeout > 0 {
			g.heartbeatTimeout = timeout
		}
	}
}

// WithSendQueue overrides the per-client queue size (minimum 1).
func WithSendQueue(n int) GatewayOption {
	return func(g *WSGateway) {
		if n > 0 {
			g.sendQueueSize = n
		}
	}
}

// WithRateLimit overrides the per-connection inbound rate limit.
func WithRateLimit(events int, window time.Duration) GatewayOption {
	return func(g *WSGateway) {
		if events > 0 {
			g.rateEvents = events
		}
		if window > 0 {
			g.rateWindow = window
		}
	}
}

// NewWSGateway reads SCRBLIT_WS_* settings and applies opts.
func NewWSGateway(log *slog.Logger, hub *Hub, opts ...GatewayOption) (*WSGateway, error) {
	if hub == nil {
		return nil, errors.New("realtime: nil hub")
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &WSGateway{log: log, hub: hub}

	// InsecureSkipVerify disables websocket.Accept's origin check. Dev only.
	g.devInsecure = envBoolWS("SCRBLIT_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("SCRBLIT_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("SCRBLIT_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("SCRBLIT_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("SCRBLIT_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("SCRBLIT_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("SCRBLIT_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("SCRBLIT_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("SCRBLIT_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("SCRBLIT_WS_RATE_WINDOW", rateLimitWindow)

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and runs the connection until either side closes.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	id, err := NewClientID(time.Now())
	if err != nil {
		g.log.Error("ws.client_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(id, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := g.hub.Register(ctx, client); err != nil {
		g.log.Info("ws.register.fail", "client_id", id, "err", err)
		_ = conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}
	g.log.Info("ws.accept", "client_id", id, "remote", r.RemoteAddr, "subprotocol", conn.Subprotocol())

	var closeOnce sync.Once

	// shutdown is idempotent. Unregister runs before client.Close so the hub stops
	// fanning out to this client first.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			uctx, ucancel := context.WithTimeout(context.Background(), wsCloseGrace)
			_ = g.hub.Unregister(uctx, client)
			ucancel()

			client.Close()
			_ = conn.Close(code, reason)
			cancel()
			g.log.Info("ws.close", "client_id", id, "code", code.String(), "reason", reason)
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Evicted by the hub (queue overflow) or shut down below.
				shutdown(websocket.StatusTryAgainLater, "send queue overflow")
				return
			case <-g.hub.Done():
				shutdown(websocket.StatusGoingAway, "server shutting down")
				return
			case msg := <-client.Send:
				if err := writeMessage(ctx, conn, msg, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "client_id", id, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "client_id", id, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		data, err := readFrame(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			case readErrFrameType:
				g.malformed(id, err)
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "client_id", id, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.Allow(time.Now()) {
			g.log.Info("ws.rate_limited", "client_id", id, "limit", g.rateEvents, "window", g.rateWindow.String())
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		msg, err := v1.Decode(data)
		if err != nil {
			g.malformed(id, err)
			continue readLoop
		}

		if err := g.hub.Submit(ctx, client, msg); err != nil {
			if errors.Is(err, ErrHubClosed) {
				shutdown(websocket.StatusGoingAway, "server shutting down")
			} else {
				shutdown(websocket.StatusNormalClosure, "context done")
			}
			break readLoop
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (g *WSGateway) malformed(clientID string, err error) {
	g.metrics.MessageMalformed()
	g.log.Info("ws.message.malformed", "client_id", clientID, "err", err)
}

// ---- frame IO ----

var errFrameType = errors.New("unsupported frame type")

func readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return nil, fmt.Errorf("%w: %v", errFrameType, mt)
	}
	return data, nil
}

func writeMessage(parent context.Context, conn *websocket.Conn, msg v1.Message, timeout time.Duration) error {
	b, err := v1.Encode(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrFrameType
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, errFrameType) {
		return readErrFrameType
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		// Host match ignores scheme and port.
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins turns the allowlist into websocket.Accept host
// patterns. Accept matches against host:port, so each host is also allowed on any port.
// A "*" entry becomes the single pattern "*".
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return []string{"*"}
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
		seen[h+":*"] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
