package tracelog

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestHandlerWritesToTraceFile(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	logger := slog.New(h)

	logger.Info("connected", "host", "example.com")

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("connected")) {
		t.Errorf("trace output %q does not contain the message", out)
	}
	if !bytes.Contains([]byte(out), []byte("host=example.com")) {
		t.Errorf("trace output %q does not contain the attr", out)
	}
}

func TestHandlerWritesBelowErrorToTraceFileWhenNotVerbose(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	logger := slog.New(h)

	logger.Info("should only go to the trace file, not stderr")

	// Handle itself doesn't expose what reached stderr, but it must
	// still report the record as written to the trace file.
	if buf.Len() == 0 {
		t.Error("expected the info record to reach the trace file")
	}
}

func TestDeduperAllowsFirstOccurrenceOnly(t *testing.T) {
	d := NewDeduper()
	if !d.Allow("disk full") {
		t.Error("first occurrence should be allowed")
	}
	if d.Allow("disk full") {
		t.Error("second occurrence should be suppressed")
	}
	if d.Allow("disk full") {
		t.Error("third occurrence should be suppressed")
	}
	if d.Count("disk full") != 3 {
		t.Errorf("Count = %d, want 3", d.Count("disk full"))
	}
}

func TestDeduperTracksDistinctMessagesIndependently(t *testing.T) {
	d := NewDeduper()
	if !d.Allow("a") {
		t.Error("first occurrence of a should be allowed")
	}
	if !d.Allow("b") {
		t.Error("first occurrence of b should be allowed")
	}
}

func TestLoggerErrorDedupesRepeatedMessages(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, true, false)

	l.Error("host unreachable")
	l.Error("host unreachable")
	l.Error("host unreachable")

	n := bytes.Count(buf.Bytes(), []byte("host unreachable"))
	if n != 1 {
		t.Errorf("trace file contains the message %d times, want 1", n)
	}
}
