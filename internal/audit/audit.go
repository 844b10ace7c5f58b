// Package audit emits structured JSON audit lines, one per gateway request.
//
// Lines go to stdout (12-factor pattern) and optionally to a file, so log
// aggregators ingest them without parsing rules. The handler pulls the
// request ID from the context, keeping call sites free of correlation
// plumbing.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	gateway "github.com/bastionlabs/bastion/internal"
)

const loggerName = "gateway.audit"

// Logger writes audit events. It wraps slog so call sites use the standard
// LogAttrs API.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a Logger at the given level ("DEBUG", "INFO", "WARNING",
// "ERROR"; unknown means INFO). When file is non-empty, lines are appended
// there in addition to stdout.
func New(level, file string) (*Logger, error) {
	var w io.Writer = os.Stdout
	var f *os.File
	if file != "" {
		var err error
		f, err = os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
	}
	return &Logger{
		Logger: slog.New(NewHandler(w, parseLevel(level))),
		file:   f,
	}, nil
}

// NewWithWriter creates a Logger writing to w. Intended for tests.
func NewWithWriter(w io.Writer, level string) *Logger {
	return &Logger{Logger: slog.New(NewHandler(w, parseLevel(level)))}
}

// Close releases the optional file sink.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler formats records as single-line JSON objects with a fixed header:
// timestamp, level, logger, message, request_id, then the record's attrs.
type Handler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

// NewHandler creates a Handler writing to w at the given minimum level.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled reports whether records at level are emitted.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle serializes the record as one JSON line.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	entry := make(map[string]any, r.NumAttrs()+len(h.attrs)+5)
	entry["timestamp"] = r.Time.UTC().Format(time.RFC3339Nano)
	entry["level"] = levelName(r.Level)
	entry["logger"] = loggerName
	entry["message"] = r.Message
	entry["request_id"] = gateway.RequestIDFromContext(ctx)

	for _, a := range h.attrs {
		addAttr(entry, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(entry, a)
		return true
	})

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(line)
	return err
}

// WithAttrs returns a handler that includes attrs on every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &h2
}

// WithGroup flattens groups; audit lines stay one level deep.
func (h *Handler) WithGroup(string) slog.Handler { return h }

func addAttr(entry map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		for _, ga := range v.Group() {
			addAttr(entry, ga)
		}
	default:
		entry[a.Key] = v.Any()
	}
}

// levelName maps slog levels to the names log processors expect.
func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
