package ds

import "testing"

func TestWSFReadPartitionQueryQueuesReply(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 80, Options{})

	// WSF( READ PARTITION(partition=0x00, op=QUERY) )
	payload := []byte{byte(CmdWSF), 0x00, 0x00, sfReadPartition, 0x00, rpQuery}
	status, err := it.Dispatch(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != OkayOutput {
		t.Fatalf("got status %v, want OkayOutput", status)
	}

	replies := it.TakeReplies()
	if len(replies) != 1 {
		t.Fatalf("got %d queued replies, want 1", len(replies))
	}
	if replies[0][0] != structuredField {
		t.Errorf("reply does not start with the structured-field lead byte: %02x", replies[0][0])
	}
	// A second TakeReplies call must return nothing: it clears the queue.
	if more := it.TakeReplies(); len(more) != 0 {
		t.Errorf("TakeReplies did not clear the queue, got %d leftover", len(more))
	}
}

func TestWSFReadPartitionQueryListSubset(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 80, Options{})

	// QUERY LIST, list-type=0x00 (specific ids), requesting qrColor only.
	body := []byte{0x00, rpQueryList, qlList, qrColor}
	payload := append([]byte{byte(CmdWSF), 0x00, 0x00, sfReadPartition}, body...)
	if _, err := it.Dispatch(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	replies := it.TakeReplies()
	if len(replies) != 1 {
		t.Fatalf("got %d queued replies, want 1", len(replies))
	}
	// The summary TLV always leads, followed by the one requested id's
	// own TLV; each TLV carries qrSummary/qrColor's id byte at offset 3.
	found := false
	for i := 0; i+3 < len(replies[0]); i++ {
		if replies[0][i+2] == qrColor {
			found = true
		}
	}
	if !found {
		t.Errorf("reply %x does not contain the requested qrColor id", replies[0])
	}
}

func TestWSFReadPartitionQueryOmitsDBCSAsiaByDefault(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 80, Options{})

	payload := []byte{byte(CmdWSF), 0x00, 0x00, sfReadPartition, 0x00, rpQuery}
	if _, err := it.Dispatch(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	replies := it.TakeReplies()
	if len(replies) != 1 {
		t.Fatalf("got %d queued replies, want 1", len(replies))
	}
	for i := 0; i+3 < len(replies[0]); i++ {
		if replies[0][i+2] == qrDBCSAsia {
			t.Errorf("reply %x advertises qrDBCSAsia without DBCS enabled", replies[0])
		}
	}
}

func TestWSFReadPartitionQueryIncludesDBCSAsiaWhenEnabled(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 80, Options{DBCS: true})

	payload := []byte{byte(CmdWSF), 0x00, 0x00, sfReadPartition, 0x00, rpQuery}
	if _, err := it.Dispatch(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	replies := it.TakeReplies()
	if len(replies) != 1 {
		t.Fatalf("got %d queued replies, want 1", len(replies))
	}
	found := false
	for i := 0; i+3 < len(replies[0]); i++ {
		if replies[0][i+2] == qrDBCSAsia {
			found = true
		}
	}
	if !found {
		t.Errorf("reply %x should advertise qrDBCSAsia with DBCS enabled", replies[0])
	}
}

func TestWSFEraseResetClearsPage(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 10, Options{})
	it.Page.Add(asciiToEBCDIC['A'], 'A', it.Page.DefaultCS, 0)
	if it.Page.CellAt(0).EBCDIC == 0 {
		t.Fatal("setup: expected a non-zero cell before ERASE RESET")
	}

	payload := []byte{byte(CmdWSF), 0x00, 0x00, sfEraseReset}
	if _, err := it.Dispatch(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.Page.CellAt(0).EBCDIC != 0 {
		t.Error("ERASE RESET did not clear the page")
	}
}

func TestWSFSetReplyModeRejectsUnknownMode(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 10, Options{})
	payload := []byte{byte(CmdWSF), 0x00, 0x00, sfSetReplyMode, 0x00, 0xFE}
	if _, err := it.Dispatch(payload); err == nil {
		t.Fatal("expected an error for an unrecognized reply mode")
	}
}

func TestWSFOutboundDSAppliesNestedWrite(t *testing.T) {
	it, sink := newTestInterpreter(t, 1, 10, Options{MPP: 132})

	nested := append([]byte{0x00, byte(CmdW), 0x00}, ebc("AB")...)
	payload := append([]byte{byte(CmdWSF), 0x00, 0x00, sfOutboundDS}, nested...)
	if _, err := it.Dispatch(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := it.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := sink.buf.String(); got != "AB\n" {
		t.Errorf("rendered %q, want %q", got, "AB\n")
	}
}

func TestWSFUnrecognizedFieldIsSkippedNotFatal(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 10, Options{})
	// An unrecognized structured field id (0xEE) of length 4 followed
	// by a valid ERASE RESET: the payload as a whole must still succeed.
	payload := []byte{byte(CmdWSF), 0x00, 0x04, 0xEE, 0x00, 0x00, 0x03, sfEraseReset}
	status, err := it.Dispatch(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status == BadCmd {
		t.Error("unrecognized structured field should not fail the whole payload")
	}
}

func TestWSFTruncatedFieldIsBadCmdWithNoPriorOutput(t *testing.T) {
	it, _ := newTestInterpreter(t, 1, 10, Options{})
	payload := []byte{byte(CmdWSF), 0x00, 0x00} // header with no id byte following
	status, err := it.Dispatch(payload)
	if err == nil {
		t.Fatal("expected an error for a truncated structured field header")
	}
	if status != BadCmd {
		t.Errorf("got status %v, want BadCmd", status)
	}
}
