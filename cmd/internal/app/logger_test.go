package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerTo_Formats(t *testing.T) {
	t.Parallel()

	var js bytes.Buffer
	newLoggerTo(&js, "info", "json", false).Info("server.start", "addr", ":8080")
	var rec map[string]any
	if err := json.Unmarshal(js.Bytes(), &rec); err != nil {
		t.Fatalf("json output: %v (%q)", err, js.String())
	}
	if rec["msg"] != "server.start" || rec["addr"] != ":8080" {
		t.Fatalf("record=%v", rec)
	}
	if _, ok := rec["source"]; !ok {
		t.Fatalf("expected source attribute")
	}

	var pretty bytes.Buffer
	newLoggerTo(&pretty, "debug", "pretty", false).Debug("hub.start")
	if fields := strings.Fields(pretty.String()); len(fields) < 3 || fields[1] != "DEBUG" || fields[2] != "hub.start" {
		t.Fatalf("pretty output=%q", pretty.String())
	}
}
