package scs

import (
	"bytes"
	"testing"

	"github.com/racingmars/pr3287/charset"
)

type recordingSink struct {
	buf bytes.Buffer
}

func (s *recordingSink) Write(b byte) error { return s.buf.WriteByte(b) }

func (s *recordingSink) WriteBytes(b []byte) error {
	_, err := s.buf.Write(b)
	return err
}

func (s *recordingSink) Flush() error { return nil }

func newTestInterpreter(t *testing.T, opts Options) (*Interpreter, *recordingSink) {
	t.Helper()
	cs, err := charset.New("037")
	if err != nil {
		t.Fatalf("charset.New: %v", err)
	}
	sink := &recordingSink{}
	return NewInterpreter(cs, sink, opts), sink
}

var asciiToEBCDIC = map[byte]byte{
	'A': 0xC1, 'B': 0xC2, 'C': 0xC3, ' ': 0x40,
}

func ebc(s string) []byte {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = asciiToEBCDIC[s[i]]
	}
	return out
}

func TestProcessSimpleLineAndNewLine(t *testing.T) {
	it, sink := newTestInterpreter(t, Options{})

	buf := append(ebc("ABC"), scsNL)
	if err := it.Process(buf); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := sink.buf.String(); got != "ABC\n" {
		t.Errorf("rendered %q, want %q", got, "ABC\n")
	}
}

func TestProcessLeftoverAcrossRecordBoundary(t *testing.T) {
	it, sink := newTestInterpreter(t, Options{})

	// Split a SET(SLD) order across two Process() calls: the order's
	// length byte claims one data byte that hasn't arrived yet.
	data := ebc("AB")
	first := append(append([]byte{}, data...), scsSET, setSLD, 0x01)
	second := []byte{0x00, scsNL}

	if err := it.Process(first); err != nil {
		t.Fatalf("Process(first): %v", err)
	}
	if len(it.leftover) == 0 {
		t.Fatal("expected a truncated SET order to be saved as leftover")
	}
	if err := it.Process(second); err != nil {
		t.Fatalf("Process(second): %v", err)
	}
	if got := sink.buf.String(); got != "AB\n" {
		t.Errorf("rendered %q, want %q", got, "AB\n")
	}
}

func TestFormfeedSkipSuppressesLeadingFF(t *testing.T) {
	it, sink := newTestInterpreter(t, Options{FFSkip: true})

	// A formfeed before any real data must be suppressed entirely.
	if err := it.Process([]byte{scsFF}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sink.buf.Len() != 0 {
		t.Errorf("leading formfeed produced output: %q", sink.buf.String())
	}

	// Once data has been printed, a subsequent formfeed must not be
	// skipped.
	if err := it.Process(append(ebc("A"), scsFF)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sink.buf.Len() == 0 || it.scsAny {
		t.Error("formfeed after real output should not be suppressed")
	}
}

func TestFormfeedThruPassesLiteralFF(t *testing.T) {
	it, sink := newTestInterpreter(t, Options{FFThru: true})

	if err := it.Process(append(ebc("A"), scsFF)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !bytes.Contains(sink.buf.Bytes(), []byte{'\f'}) {
		t.Errorf("rendered %q, expected a literal form-feed byte", sink.buf.String())
	}
}

func TestSHFSetsTabStops(t *testing.T) {
	it, _ := newTestInterpreter(t, Options{})

	// SET(SHF, mpp=40, lm=1, rm=40, tab at column 10)
	body := []byte{40, 1, 40, 10}
	payload := []byte{scsSET, setSHF, byte(len(body))}
	payload = append(payload, body...)
	if err := it.Process(payload); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if it.mpp != 40 {
		t.Errorf("mpp = %d, want 40", it.mpp)
	}
	if !it.htabs[10] {
		t.Error("expected a tab stop at column 10")
	}
}

func TestFlushEmitsPendingLineWithoutExtraBlank(t *testing.T) {
	it, sink := newTestInterpreter(t, Options{})
	if err := it.Process(ebc("ABC")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := it.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := sink.buf.String(); got != "ABC\n" {
		t.Errorf("rendered %q, want %q", got, "ABC\n")
	}
	// Flushing again with nothing pending must not add a blank line.
	if err := it.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := sink.buf.String(); got != "ABC\n" {
		t.Errorf("second Flush added output: %q", got)
	}
}
