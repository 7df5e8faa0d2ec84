// Package tracelog wraps log/slog the way rcornwell-S370's
// util/logger package does: a custom slog.Handler that timestamps,
// writes to an optional trace file, and mirrors to stderr depending
// on level and a verbose flag. tracelog adds the one piece the teacher's
// wrapper doesn't need: Deduper, the per-session duplicate-message
// suppression spec.md §7 requires for operator-facing error lines.
package tracelog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler is a slog.Handler that writes timestamped, space-joined
// records to an optional trace file and, for anything at or above
// slog.LevelError (or always, when verbose is set), mirrors them to
// stderr.
type Handler struct {
	out     io.Writer
	inner   slog.Handler
	mu      *sync.Mutex
	verbose bool
}

func NewHandler(traceFile io.Writer, opts *slog.HandlerOptions, verbose bool) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &Handler{
		out: traceFile,
		inner: slog.NewTextHandler(traceFile, &slog.HandlerOptions{
			Level:     opts.Level,
			AddSource: opts.AddSource,
		}),
		mu:      &sync.Mutex{},
		verbose: verbose,
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{out: h.out, inner: h.inner.WithAttrs(attrs), mu: h.mu, verbose: h.verbose}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{out: h.out, inner: h.inner.WithGroup(name), mu: h.mu, verbose: h.verbose}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	formattedTime := r.Time.Format("2006/01/02 15:04:05")
	strs := []string{formattedTime, r.Level.String() + ":", r.Message}

	r.Attrs(func(a slog.Attr) bool {
		strs = append(strs, a.Key+"="+a.Value.String())
		return true
	})
	line := strings.Join(strs, " ") + "\n"
	b := []byte(line)

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write(b)
	}
	if h.verbose || r.Level >= slog.LevelError {
		if _, werr := os.Stderr.Write(b); err == nil {
			err = werr
		}
	}
	return err
}

// Logger is the session-facing entry point: a *slog.Logger over
// Handler, plus a Deduper for the operator-facing error path.
type Logger struct {
	*slog.Logger
	dedup *Deduper
}

// New builds a Logger writing its trace stream to traceFile (nil
// disables the file sink; stderr mirroring still applies per level).
func New(traceFile io.Writer, debugTrace, verbose bool) *Logger {
	level := slog.LevelError
	if debugTrace {
		level = slog.LevelDebug
	}
	h := NewHandler(traceFile, &slog.HandlerOptions{Level: level}, verbose)
	return &Logger{Logger: slog.New(h), dedup: NewDeduper()}
}

// Error logs an operator-facing condition through the Deduper: the
// first occurrence of a distinct message in this session passes
// through; repeats are counted and dropped, per spec.md §7's "one
// concise line per distinct condition" rule.
func (l *Logger) Error(msg string, args ...any) {
	if !l.dedup.Allow(msg) {
		return
	}
	l.Logger.Error(msg, args...)
}

// Deduper suppresses repeat occurrences of the same message text
// within one session. One Deduper is created with each Logger (see
// New), not as a package global, so suppression spans every connection
// attempt supervisor.Run makes with that Logger.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]int
}

func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]int)}
}

// Allow reports whether msg should be emitted: true the first time a
// given message text is seen, false (while incrementing the repeat
// counter) on every subsequent occurrence.
func (d *Deduper) Allow(msg string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.seen[msg]
	d.seen[msg] = n + 1
	return n == 0
}

// Count returns how many times msg has been seen (including
// suppressed repeats), for diagnostics.
func (d *Deduper) Count(msg string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[msg]
}
