package ds

import (
	"bytes"
	"testing"

	"github.com/racingmars/pr3287/charset"
)

// recordingSink is a Sink that just accumulates bytes, for asserting on
// rendered output without spawning a real printer.Job.
type recordingSink struct {
	buf bytes.Buffer
}

func (s *recordingSink) Write(b byte) error { return s.buf.WriteByte(b) }

func (s *recordingSink) WriteBytes(b []byte) error {
	_, err := s.buf.Write(b)
	return err
}

func (s *recordingSink) Flush() error { return nil }

func newTestInterpreter(t *testing.T, rows, cols int, opts Options) (*Interpreter, *recordingSink) {
	t.Helper()
	cs, err := charset.New("037")
	if err != nil {
		t.Fatalf("charset.New: %v", err)
	}
	page := NewPageBuilder(rows, cols)
	sink := &recordingSink{}
	return NewInterpreter(page, cs, sink, opts), sink
}

// asciiToEBCDIC maps ASCII uppercase letters to their CP037 EBCDIC codes, just
// the handful used by these tests.
var asciiToEBCDIC = map[byte]byte{
	'A': 0xC1, 'B': 0xC2, 'C': 0xC3, 'X': 0xE7, ' ': 0x40,
}

func ebc(s string) []byte {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = asciiToEBCDIC[s[i]]
	}
	return out
}

func TestDispatchUnformattedWriteRendersLine(t *testing.T) {
	it, sink := newTestInterpreter(t, 1, 80, Options{MPP: 132})

	payload := append([]byte{byte(CmdW), 0x00}, ebc("ABC")...)
	status, err := it.Dispatch(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != OkayNoOutput {
		t.Fatalf("got status %v, want OkayNoOutput", status)
	}

	if err := it.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := sink.buf.String(); got != "ABC\n" {
		t.Errorf("rendered %q, want %q", got, "ABC\n")
	}
}

func TestDispatchRepeatToOrder(t *testing.T) {
	it, sink := newTestInterpreter(t, 1, 10, Options{MPP: 132})

	// RA from address 0 to address 3, repeating 'A'.
	payload := []byte{byte(CmdW), 0x00, OrderRA, 0x40, 0x43, asciiToEBCDIC['A']}
	if _, err := it.Dispatch(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := it.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := sink.buf.String(); got != "AAA\n" {
		t.Errorf("rendered %q, want %q", got, "AAA\n")
	}
}

func TestEraseWriteClearsPriorBuffer(t *testing.T) {
	it, sink := newTestInterpreter(t, 1, 10, Options{MPP: 132})

	if _, err := it.Dispatch(append([]byte{byte(CmdW), 0x00}, ebc("ABC")...)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Erase/Write starts a fresh page; the prior "ABC" must not survive
	// into this page's render.
	if _, err := it.Dispatch(append([]byte{byte(CmdEW), 0x00}, ebc("C")...)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := it.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := sink.buf.String(); got != "C\n" {
		t.Errorf("rendered %q, want %q", got, "C\n")
	}
}

func TestDispatchEmptyPayloadIsBadCmd(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 10, Options{})
	status, err := it.Dispatch(nil)
	if err == nil {
		t.Fatal("expected an error for an empty payload")
	}
	if status != BadCmd {
		t.Errorf("got status %v, want BadCmd", status)
	}
}

func TestDispatchTruncatedSBAIsBadAddr(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 10, Options{})
	status, err := it.Dispatch([]byte{byte(CmdW), 0x00, OrderSBA, 0x40})
	if err == nil {
		t.Fatal("expected an error for a truncated SBA")
	}
	if status != BadAddr {
		t.Errorf("got status %v, want BadAddr", status)
	}
}

func TestFormattedFieldVisibility(t *testing.T) {
	it, sink := newTestInterpreter(t, 1, 10, Options{BlankLines: true})

	body := []byte{0x00}
	body = append(body, OrderSF, 0x40) // visible field, FA at col 0
	body = append(body, ebc("AB")...)
	body = append(body, OrderSF, 0x4C) // invisible field (0x4C&0x0C==0x0C)
	body = append(body, ebc("XX")...)

	payload := append([]byte{byte(CmdEW)}, body...)
	if _, err := it.Dispatch(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Formatted pages default to 80-col lines unless the WCC says
	// otherwise; force a narrower page via WCCLineLength for this test.
	it.Page.WCCLineLength = Line40
	if err := it.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	out := sink.buf.String()
	if !bytes.Contains([]byte(out), []byte("AB")) {
		t.Errorf("rendered %q: expected visible field's glyphs", out)
	}
	if bytes.Contains([]byte(out), []byte("X")) {
		t.Errorf("rendered %q: invisible field's glyphs leaked through", out)
	}
}
