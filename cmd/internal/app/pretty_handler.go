package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders one record as
//
//	15:04:05.000 INFO  hub.snapshot.trigger  cycle=3 coverage=91.2% cause=01J...
//
// and wraps long records when writing to a terminal.
type prettyHandler struct {
	w     io.Writer
	level slog.Leveler
	src   bool
	color bool
	mu    *sync.Mutex

	// prefix holds attrs bound through WithAttrs, already rendered.
	prefix []string
	group  string
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, level: slog.LevelInfo, color: color, mu: &sync.Mutex{}}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.src = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	segs := make([]string, 0, 4+len(h.prefix)+r.NumAttrs())
	segs = append(segs, paint(ts.Format("15:04:05.000"), ansiDim, h.color), h.levelLabel(r.Level), paint(r.Message, ansiBright, h.color))
	if h.src && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			segs = append(segs, paint("at="+filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line), ansiDim, h.color))
		}
	}
	segs = append(segs, h.prefix...)
	r.Attrs(func(a slog.Attr) bool {
		segs = h.render(segs, h.group, a)
		return true
	})

	var b strings.Builder
	if h.color {
		for _, line := range wrapSegments(segs, " ", h.terminalWidth(), "    ") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	} else {
		b.WriteString(strings.Join(segs, " "))
		b.WriteByte('\n')
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.prefix = append([]string(nil), h.prefix...)
	for _, a := range attrs {
		cp.prefix = h.render(cp.prefix, h.group, a)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.group = joinKey(h.group, name)
	return &cp
}

func (h *prettyHandler) render(segs []string, parent string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	if key == "" && a.Value.Kind() != slog.KindGroup {
		return segs
	}
	key = joinKey(parent, key)

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			segs = h.render(segs, key, ga)
		}
		return segs
	}
	return append(segs, key+"="+h.format(key, a.Value))
}

func joinKey(parent, key string) string {
	switch {
	case parent == "":
		return key
	case key == "":
		return parent
	default:
		return parent + "." + key
	}
}

// fieldFormats styles values by the last component of their key.
var fieldFormats = map[string]func(v slog.Value, color bool) (string, bool){
	"method": func(v slog.Value, color bool) (string, bool) {
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), color), true
	},
	"path": func(v slog.Value, color bool) (string, bool) {
		return paint(quoteIfNeeded(v.String()), ansiCyan, color), true
	},
	"status": func(v slog.Value, color bool) (string, bool) {
		n, ok := valueToInt64(v)
		return colorizeStatusCode(int(n), color), ok
	},
	"status_class": func(v slog.Value, color bool) (string, bool) {
		return colorizeStatusClass(strings.TrimSpace(v.String()), color), true
	},
	"duration_ms": durationField,
	"took_ms":     durationField,
	"result": func(v slog.Value, color bool) (string, bool) {
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), color), true
	},
	"coverage":  percentField,
	"threshold": percentField,
	"outcome": func(v slog.Value, color bool) (string, bool) {
		switch s := v.String(); s {
		case "reset":
			return paint(s, ansiGreen, color), true
		case "retained":
			return paint(s, ansiYellow, color), true
		default:
			return s, true
		}
	},
	"archived": func(v slog.Value, color bool) (string, bool) {
		if v.Kind() != slog.KindBool || v.Bool() {
			return "", false
		}
		return paint("false", ansiRed, color), true
	},
	"err": func(v slog.Value, color bool) (string, bool) {
		return paint(quoteIfNeeded(v.String()), ansiRed, color), true
	},
}

func durationField(v slog.Value, color bool) (string, bool) {
	n, ok := valueToInt64(v)
	return colorizeDurationMS(n, color), ok
}

func percentField(v slog.Value, _ bool) (string, bool) {
	if v.Kind() != slog.KindFloat64 {
		return "", false
	}
	return strconv.FormatFloat(v.Float64()*100, 'f', 1, 64) + "%", true
}

func (h *prettyHandler) format(key string, v slog.Value) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	if f, ok := fieldFormats[key]; ok {
		if s, ok := f(v, h.color); ok {
			return s
		}
	}
	if v.Kind() == slog.KindTime {
		return v.Time().Format(time.RFC3339)
	}
	return quoteIfNeeded(v.String())
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

var levelLabels = [...]struct {
	min   slog.Level
	label string
	code  string
}{
	{slog.LevelError, "ERROR", ansiRed},
	{slog.LevelWarn, "WARN ", ansiYellow},
	{slog.LevelInfo, "INFO ", ansiBlue},
	{slog.LevelDebug, "DEBUG", ansiMagenta},
}

func (h *prettyHandler) levelLabel(level slog.Level) string {
	for _, l := range levelLabels {
		if level >= l.min {
			return paint(l.label, l.code, h.color)
		}
	}
	return paint("TRACE", ansiDim, h.color)
}
