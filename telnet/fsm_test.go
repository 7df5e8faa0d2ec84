package telnet

import (
	"bytes"
	"testing"
)

// pipeConn is a minimal io.ReadWriter double: writes go to Out, reads
// are served from In, exactly what Fsm needs and nothing more.
type pipeConn struct {
	In  *bytes.Reader
	Out bytes.Buffer
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.In.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.Out.Write(b) }

func TestQuoteIACDoublesEscapeByte(t *testing.T) {
	in := []byte{0x01, cmdIAC, 0x02}
	got := quoteIAC(in)
	want := []byte{0x01, cmdIAC, cmdIAC, 0x02}
	if !bytes.Equal(got, want) {
		t.Errorf("quoteIAC(%x) = %x, want %x", in, got, want)
	}
}

func TestHeaderMarshalParseRoundTrip(t *testing.T) {
	h := Header{DataType: DTSCSData, RequestFlag: RSFAlwaysResponse, ResponseFlag: RSFNegativeResponse, Seq: 0x1234}
	b := h.Marshal()
	if len(b) != headerLen {
		t.Fatalf("Marshal produced %d bytes, want %d", len(b), headerLen)
	}
	got, err := parseHeader(b)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if got != h {
		t.Errorf("round trip = %+v, want %+v", got, h)
	}
}

func TestSendRecordFramesHeaderAndQuotesIAC(t *testing.T) {
	conn := &pipeConn{In: bytes.NewReader(nil)}
	f := New(conn, "IBM-3287-1", NewLuSelector(nil, ""), nil)
	f.submode = Submode3270
	f.responsesNegotiated = true

	payload := []byte{0x01, cmdIAC, 0x02}
	if err := f.SendRecord(payload, DT3270Data, RSFNoResponse); err != nil {
		t.Fatalf("SendRecord: %v", err)
	}

	out := conn.Out.Bytes()
	if len(out) < headerLen {
		t.Fatalf("wrote %d bytes, too short for a header", len(out))
	}
	hdr, err := parseHeader(out[:headerLen])
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if hdr.DataType != DT3270Data || hdr.Seq != 1 {
		t.Errorf("header = %+v, want DataType=3270-DATA Seq=1", hdr)
	}
	rest := out[headerLen:]
	wantTail := []byte{0x01, cmdIAC, cmdIAC, 0x02, cmdIAC, cmdEOR}
	if !bytes.Equal(rest, wantTail) {
		t.Errorf("framed body = %x, want %x", rest, wantTail)
	}
}

func TestSendRecordSeqStaysZeroWithoutResponses(t *testing.T) {
	conn := &pipeConn{In: bytes.NewReader(nil)}
	f := New(conn, "IBM-3287-1", NewLuSelector(nil, ""), nil)
	f.submode = Submode3270
	f.responsesNegotiated = false

	if err := f.SendRecord([]byte{0x01}, DT3270Data, RSFNoResponse); err != nil {
		t.Fatalf("SendRecord: %v", err)
	}
	if err := f.SendRecord([]byte{0x02}, DT3270Data, RSFNoResponse); err != nil {
		t.Fatalf("SendRecord: %v", err)
	}
	if f.xmitSeq != 0 {
		t.Errorf("xmitSeq = %d, want 0 (RESPONSES not negotiated)", f.xmitSeq)
	}
}

func TestNextRecordStripsHeaderAndDequotesIAC(t *testing.T) {
	hdr := Header{DataType: DTSCSData, Seq: 7}
	wire := append([]byte{}, hdr.Marshal()...)
	wire = append(wire, quoteIAC([]byte{0x41, cmdIAC, 0x42})...)
	wire = append(wire, cmdIAC, cmdEOR)

	conn := &pipeConn{In: bytes.NewReader(wire)}
	f := New(conn, "IBM-3287-1", NewLuSelector(nil, ""), nil)
	f.submode = Submode3270

	payload, gotHdr, err := f.NextRecord()
	if err != nil {
		t.Fatalf("NextRecord: %v", err)
	}
	if gotHdr.DataType != DTSCSData || gotHdr.Seq != 7 {
		t.Errorf("header = %+v, want DataType=SCS-DATA Seq=7", gotHdr)
	}
	want := []byte{0x41, cmdIAC, 0x42}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = %x, want %x", payload, want)
	}
}

func TestHandleDoTN3270EAccepts(t *testing.T) {
	conn := &pipeConn{In: bytes.NewReader(nil)}
	f := New(conn, "IBM-3287-1", NewLuSelector(nil, ""), nil)

	if err := f.handleDo(OptTN3270E); err != nil {
		t.Fatalf("handleDo: %v", err)
	}
	if !f.myOpts[OptTN3270E] {
		t.Error("expected OptTN3270E to be recorded as accepted")
	}
	want := []byte{cmdIAC, cmdWILL, OptTN3270E}
	if !bytes.Equal(conn.Out.Bytes(), want) {
		t.Errorf("wrote %x, want %x", conn.Out.Bytes(), want)
	}
}

func TestHandleDoSTARTTLSWithoutProviderRefuses(t *testing.T) {
	conn := &pipeConn{In: bytes.NewReader(nil)}
	f := New(conn, "IBM-3287-1", NewLuSelector(nil, ""), nil)

	if err := f.handleDo(OptSTARTTLS); err != nil {
		t.Fatalf("handleDo: %v", err)
	}
	if !f.refusedTLS {
		t.Error("expected refusedTLS to be set when no TLS provider is configured")
	}
	want := []byte{cmdIAC, cmdWONT, OptSTARTTLS}
	if !bytes.Equal(conn.Out.Bytes(), want) {
		t.Errorf("wrote %x, want %x", conn.Out.Bytes(), want)
	}
}

func TestLuSelectorFallsBackOnReject(t *testing.T) {
	sel := NewLuSelector([]string{"LU1", "LU2"}, "")

	name, ok := sel.Current()
	if !ok || name != "LU1" {
		t.Fatalf("Current() = %q, %v, want LU1, true", name, ok)
	}
	if !sel.Advance() {
		t.Fatal("expected a further candidate after advancing past LU1")
	}
	name, ok = sel.Current()
	if !ok || name != "LU2" {
		t.Fatalf("Current() = %q, %v, want LU2, true", name, ok)
	}
	if sel.Advance() {
		t.Fatal("expected no further candidate after LU2")
	}
	if !sel.Exhausted() {
		t.Error("expected the selector to report exhausted")
	}
}

func TestLuSelectorMandatoryAssocNeverOffersCurrent(t *testing.T) {
	sel := NewLuSelector(nil, "PRINTER1")
	if !sel.Mandatory() {
		t.Fatal("expected Mandatory() with Assoc set")
	}
	if _, ok := sel.Current(); ok {
		t.Error("Current() should never succeed in mandatory-association mode")
	}
}
