package app

import (
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"

	defaultLogWidth = 100
	minLogWidth     = 40

	ellipsis = "…"
)

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiSeq.ReplaceAllString(s, "")
}

// visualLen is the printed width of s in runes, ignoring color codes.
func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// wrapSegments packs segments into lines no wider than width. Continuation lines start
// with contPrefix; a segment that cannot fit on its own line is truncated.
func wrapSegments(segs []string, sep string, width int, contPrefix string) []string {
	if width <= 0 {
		return []string{strings.Join(segs, sep)}
	}

	var (
		lines  []string
		cur    string
		curLen int
		open   bool
	)
	start := func(seg string) {
		lead := ""
		if len(lines) > 0 {
			lead = contPrefix
		}
		cur = lead + truncateVisual(seg, width-visualLen(lead))
		curLen = visualLen(cur)
		open = true
	}

	sepLen := visualLen(sep)
	for _, seg := range segs {
		if !open {
			start(seg)
			continue
		}
		if curLen+sepLen+visualLen(seg) <= width {
			cur += sep + seg
			curLen += sepLen + visualLen(seg)
			continue
		}
		lines = append(lines, cur)
		start(seg)
	}
	if open {
		lines = append(lines, cur)
	}
	return lines
}

func truncateVisual(s string, limit int) string {
	if visualLen(s) <= limit {
		return s
	}
	if limit <= 1 {
		return ellipsis
	}
	runes := []rune(stripANSI(s))
	return string(runes[:limit-1]) + ellipsis
}

// terminalWidth prefers SCRBLIT_LOG_WIDTH, then COLUMNS. Values below minLogWidth are
// ignored.
func (h *prettyHandler) terminalWidth() int {
	for _, key := range []string{"SCRBLIT_LOG_WIDTH", "COLUMNS"} {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n >= minLogWidth {
			return n
		}
	}
	return defaultLogWidth
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func paint(s, code string, color bool) string {
	if !color || code == "" {
		return s
	}
	return code + s + ansiReset
}

func colorizeHTTPMethod(m string, color bool) string {
	switch m {
	case "GET", "HEAD":
		return paint(m, ansiGreen, color)
	case "POST":
		return paint(m, ansiBlue, color)
	case "PUT", "PATCH":
		return paint(m, ansiYellow, color)
	case "DELETE":
		return paint(m, ansiRed, color)
	default:
		return paint(m, ansiMagenta, color)
	}
}

func colorizeStatusCode(code int, color bool) string {
	return paint(strconv.Itoa(code), statusColor(code), color)
}

func colorizeStatusClass(class string, color bool) string {
	if len(class) == 0 {
		return `""`
	}
	code := 0
	if d := class[0]; d >= '1' && d <= '5' {
		code = int(d-'0') * 100
	}
	return paint(class, statusColor(code), color)
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	case code >= 200:
		return ansiGreen
	default:
		return ""
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return paint(s, ansiRed, color)
	case ms >= 250:
		return paint(s, ansiYellow, color)
	default:
		return paint(s, ansiDim, color)
	}
}

func colorizeResult(result string, color bool) string {
	switch result {
	case "success", "ok":
		return paint(result, ansiGreen, color)
	case "redirect":
		return paint(result, ansiCyan, color)
	case "client_error", "refused":
		return paint(result, ansiYellow, color)
	case "server_error", "error":
		return paint(result, ansiRed, color)
	default:
		return quoteIfNeeded(result)
	}
}
