package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// shortBatchLen is how much of a batch id the console prints.
const shortBatchLen = 8

// newJSONHandler writes one JSON object per record with short top-level keys
// (ts, level, msg, src) and errors rendered as their message.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: jsonAttr,
	})
}

func jsonAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch a.Key {
		case slog.TimeKey:
			return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339Nano))
		case slog.LevelKey:
			return slog.String("level", strings.ToLower(levelLabel(a.Value.Any().(slog.Level))))
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
				return slog.String("src", filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
			}
		}
	}
	if err, ok := a.Value.Any().(error); ok && a.Value.Kind() == slog.KindAny {
		return slog.String(a.Key, err.Error())
	}
	return a
}

// field is one flattened attribute. Keys inside groups are dotted.
type field struct {
	key   string
	value slog.Value
}

// consoleHandler renders records as single human-readable lines:
//
//	2026-03-14T09:26:53Z WARN  filecache: cache write skipped [3f2a91c0 analyze clip.mp4] (analysis_write_failed) error=... hint=...
//
// batch_id, stage, file and worker are hoisted into the bracketed block,
// event_type follows in parentheses, and decision_* attributes collapse into
// decision=<type>:<result> plus a quoted reason.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	addSource bool
	prefix    string
	fields    []field
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: new(sync.Mutex), w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.fields = append([]field(nil), h.fields...)
	for _, a := range attrs {
		clone.fields = appendField(clone.fields, h.prefix, a)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	fields := append([]field(nil), h.fields...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, h.prefix, a)
		return true
	})
	hoisted := make(map[string]string, 8)
	rest := fields[:0]
	for _, f := range fields {
		if isHoisted(f.key) {
			// Later attributes win, matching slog's override order.
			hoisted[f.key] = plain(f.value)
			continue
		}
		rest = append(rest, f)
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	buf.WriteString(ts.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	fmt.Fprintf(&buf, "%-5s ", levelLabel(r.Level))
	if alert := hoisted[FieldAlert]; alert != "" {
		buf.WriteString("!" + alert + " ")
	}
	if c := hoisted[FieldComponent]; c != "" {
		buf.WriteString(c + ": ")
	}
	if msg := strings.TrimSpace(r.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}
	if block := contextBlock(hoisted); block != "" {
		buf.WriteString(" [" + block + "]")
	}
	if ev := hoisted[FieldEventType]; ev != "" {
		buf.WriteString(" (" + ev + ")")
	}
	if dt := hoisted[FieldDecisionType]; dt != "" {
		buf.WriteString(" decision=" + dt)
		if res := hoisted[FieldDecisionResult]; res != "" {
			buf.WriteString(":" + res)
		}
		if reason := hoisted[FieldDecisionReason]; reason != "" {
			buf.WriteString(" because=" + quote(reason))
		}
	}
	if h.addSource && r.PC != 0 {
		if src := r.Source(); src != nil {
			fmt.Fprintf(&buf, " src=%s:%d", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range rest {
		buf.WriteByte(' ')
		buf.WriteString(displayKey(f.key))
		buf.WriteByte('=')
		buf.WriteString(quote(plain(f.value)))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func appendField(dst []field, prefix string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			dst = appendField(dst, inner, ga)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	return append(dst, field{key: prefix + a.Key, value: a.Value})
}

func isHoisted(key string) bool {
	switch key {
	case FieldComponent, FieldBatchID, FieldStage, FieldFile, FieldWorker,
		FieldEventType, FieldAlert, FieldDecisionType, FieldDecisionResult, FieldDecisionReason:
		return true
	}
	return false
}

// contextBlock renders the batch/stage/worker/file identity of a line.
func contextBlock(h map[string]string) string {
	parts := make([]string, 0, 4)
	if id := h[FieldBatchID]; id != "" {
		if len(id) > shortBatchLen {
			id = id[:shortBatchLen]
		}
		parts = append(parts, id)
	}
	if s := h[FieldStage]; s != "" {
		parts = append(parts, s)
	}
	if w := h[FieldWorker]; w != "" {
		parts = append(parts, "w"+w)
	}
	if f := h[FieldFile]; f != "" {
		parts = append(parts, filepath.Base(f))
	}
	return strings.Join(parts, " ")
}

func displayKey(key string) string {
	if key == FieldErrorHint {
		return "hint"
	}
	return key
}

// plain renders v without quoting. Durations are rounded to the millisecond.
func plain(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		d := v.Duration()
		if d > time.Millisecond {
			d = d.Round(time.Millisecond)
		}
		return d.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " =\"\t\n\r") {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
