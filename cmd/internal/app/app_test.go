package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://scrblit.example.com", want: "wss://scrblit.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func testConfig() Config {
	cfg := LoadConfig()
	cfg.ArchiveBackend = "memory"
	cfg.ArchiveCredential = "test-key"
	cfg.CoverageModel = "length"
	cfg.DatabaseURL = ""
	cfg.ReadinessRequireDB = false
	cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	return cfg
}

func startTestApp(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()

	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.hub.Run(ctx)
	}()

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv
}

func TestApp_Routes(t *testing.T) {
	t.Parallel()

	srv := startTestApp(t, testConfig())

	cases := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/healthz", wantStatus: http.StatusOK, wantBody: "ok\n"},
		{path: "/health", wantStatus: http.StatusOK, wantBody: "Scrblit server is running."},
		{path: "/readyz", wantStatus: http.StatusOK, wantBody: "ready\n"},
	}
	for _, tc := range cases {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode != tc.wantStatus || string(body) != tc.wantBody {
			t.Fatalf("GET %s: status=%d body=%q", tc.path, resp.StatusCode, body)
		}
		if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("GET %s: missing security headers", tc.path)
		}
	}
}

func TestApp_CanvasStatus(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.CanvasWidth = 640
	cfg.CanvasHeight = 480
	srv := startTestApp(t, cfg)

	resp, err := http.Get(srv.URL + "/api/v1/canvas")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var st struct {
		Connections int     `json:"connections"`
		Lines       int     `json:"lines"`
		Threshold   float64 `json:"threshold"`
		State       string  `json:"state"`
		Width       int     `json:"width"`
		Height      int     `json:"height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "ACTIVE" || st.Lines != 0 || st.Width != 640 || st.Height != 480 || st.Threshold != 0.9 {
		t.Fatalf("status=%+v", st)
	}

	post, err := http.Post(srv.URL+"/api/v1/canvas", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d", post.StatusCode)
	}
}

func TestApp_MetricsExposed(t *testing.T) {
	t.Parallel()

	srv := startTestApp(t, testConfig())

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "scrblit_connections") {
		t.Fatalf("status=%d body missing scrblit metrics", resp.StatusCode)
	}
}

func TestApp_SaveScribbleCORS(t *testing.T) {
	t.Parallel()

	srv := startTestApp(t, testConfig())

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/save-scribble", strings.NewReader(`{}`))
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status=%d want 403", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/v1/save-scribble", strings.NewReader(`{"imageData":"nope"}`))
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ArchiveCredential = ""
	if _, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected missing credential to be fatal")
	}
}
