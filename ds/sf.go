package ds

import "github.com/racingmars/pr3287/perr"

// Structured-field IDs recognized inside a Write Structured Field
// payload (spec.md §4.4).
const (
	sfReadPartition byte = 0x01
	sfEraseReset    byte = 0x03
	sfSetReplyMode  byte = 0x09
	sfOutboundDS    byte = 0x40
	sfTransferData  byte = 0xD0
)

// READ PARTITION sub-operations.
const (
	rpQuery     byte = 0x02
	rpQueryList byte = 0x03
)

// Query-list list-type byte (first byte of a QUERY LIST request body).
const (
	qlList byte = 0x00
	qlAll  byte = 0x01
)

// Query Reply IDs, following the IBM 3270 Data Stream query-reply ID
// assignments; the printer core only ever sends the subset a pr3287
// session needs to answer a host's READ PARTITION QUERY.
const (
	qrSummary       byte = 0x80
	qrUsableArea    byte = 0x81
	qrAlphaPart     byte = 0x84
	qrCharSets      byte = 0x85
	qrColor         byte = 0x86
	qrHighlighting  byte = 0x87
	qrReplyModes    byte = 0x88
	qrDBCSAsia      byte = 0x91
	qrImpPart       byte = 0xA6
	qrDDM           byte = 0x95
	structuredField byte = 0x3C // AID-like leading byte of an outbound WSF reply record
)

// replyMode values stored by SET REPLY MODE.
const (
	replyModeField  byte = 0x00
	replyModeXField byte = 0x01
	replyModeChar   byte = 0x02
)

// sfEngine is SfEngine (spec.md §4.4): dispatches the structured
// fields nested inside a Write Structured Field payload. It shares the
// owning Interpreter so OUTBOUND DS can hand its nested command back
// to the ordinary Write-stream walk, and so Query Reply output can be
// queued on Interpreter.replies for the caller to send.
type sfEngine struct {
	it        *Interpreter
	replyMode byte
}

func newSFEngine(it *Interpreter) *sfEngine {
	return &sfEngine{it: it, replyMode: replyModeField}
}

// dispatch walks the structured fields in body, each of the form
// [len_hi, len_lo, id, ...]. A length of 0 means "to the end of the
// message." A length under 3, or one that runs past the end of body,
// is an error: the field is abandoned and no further fields in this
// payload are processed, but any output already queued by an earlier
// field in the same payload is kept (spec.md §4.4's aggregation rule).
func (s *sfEngine) dispatch(body []byte) (Status, error) {
	producedOutput := false
	var firstErr error

	i := 0
	for i < len(body) {
		if i+2 >= len(body) {
			if firstErr == nil {
				firstErr = &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "truncated structured field header"}
			}
			break
		}
		flen := int(body[i])<<8 | int(body[i+1])
		id := body[i+2]

		var end int
		if flen == 0 {
			end = len(body)
		} else {
			end = i + flen
		}
		if flen != 0 && (flen < 3 || end > len(body)) {
			if firstErr == nil {
				firstErr = &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "structured field length out of range"}
			}
			break
		}

		st, err := s.dispatchField(id, body[i+3:end])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if st == OkayOutput {
			producedOutput = true
		}
		i = end
	}

	if firstErr != nil && !producedOutput {
		return BadCmd, firstErr
	}
	if producedOutput {
		return OkayOutput, nil
	}
	return OkayNoOutput, nil
}

func (s *sfEngine) dispatchField(id byte, fbody []byte) (Status, error) {
	switch id {
	case sfReadPartition:
		return s.readPartition(fbody)
	case sfEraseReset:
		return s.eraseReset(fbody)
	case sfSetReplyMode:
		return s.setReplyMode(fbody)
	case sfOutboundDS:
		return s.outboundDS(fbody)
	case sfTransferData:
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "file transfer structured field not supported"}
	default:
		// Unrecognized structured fields are skipped rather than
		// failing the whole payload; a printer session only needs to
		// answer the handful it actually implements.
		return OkayNoOutput, nil
	}
}

// readPartition implements READ PARTITION (id 0x01): only the QUERY
// and QUERY LIST operations make sense for a printer session (it has
// no keyboard, so partition read-buffer/read-modified requests are
// rejected); both synthesize and queue a Query Reply.
func (s *sfEngine) readPartition(body []byte) (Status, error) {
	if len(body) < 2 {
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "truncated READ PARTITION"}
	}
	partition, op := body[0], body[1]
	if partition != 0x00 && partition != 0xFF {
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "unsupported partition id in READ PARTITION"}
	}

	switch op {
	case rpQuery:
		s.it.replies = append(s.it.replies, s.buildQueryReply(s.allQueryIDs()))
		return OkayOutput, nil
	case rpQueryList:
		ids := s.queryListIDs(body[2:])
		s.it.replies = append(s.it.replies, s.buildQueryReply(ids))
		return OkayOutput, nil
	default:
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "unsupported READ PARTITION operation"}
	}
}

// allQueryIDs lists the Query Reply IDs this session can actually
// produce. qrDBCSAsia is included only when the session's code page
// supports DBCS (spec.md §4.4: "DBCS_ASIA (iff DBCS enabled)") --
// CP037 doesn't, so it's omitted by default rather than always
// advertised.
func (s *sfEngine) allQueryIDs() []byte {
	ids := []byte{qrSummary, qrUsableArea, qrAlphaPart, qrCharSets, qrColor,
		qrHighlighting, qrReplyModes}
	if s.it.Opts.DBCS {
		ids = append(ids, qrDBCSAsia)
	}
	return append(ids, qrImpPart, qrDDM)
}

// queryListIDs interprets a QUERY LIST request body: byte 0 is the
// list-type (0x00 "list these specific ones", 0x01 "all"), followed
// by the requested IDs when list-type is 0x00.
func (s *sfEngine) queryListIDs(rest []byte) []byte {
	if len(rest) == 0 || rest[0] == qlAll {
		return s.allQueryIDs()
	}
	supported := map[byte]bool{}
	for _, id := range s.allQueryIDs() {
		supported[id] = true
	}
	var ids []byte
	for _, id := range rest[1:] {
		if supported[id] {
			ids = append(ids, id)
		}
	}
	// SUMMARY always leads a Query Reply, listing what follows.
	return append([]byte{qrSummary}, ids...)
}

// buildQueryReply synthesizes the outbound WSF record containing one
// Query Reply TLV per requested id. Field content beyond the
// identifying bytes is kept minimal: a printer session's host only
// cares that the device answers with the capability codes it claims
// in FUNCTIONS, not with literal usable-area geometry.
func (s *sfEngine) buildQueryReply(ids []byte) []byte {
	out := []byte{structuredField}
	for _, id := range ids {
		if id == qrSummary {
			body := append([]byte{0x81, qrSummary}, ids...)
			out = append(out, lenPrefix(len(body)+2)...)
			out = append(out, body...)
			continue
		}
		body := []byte{0x81, id}
		out = append(out, lenPrefix(len(body)+2)...)
		out = append(out, body...)
	}
	return out
}

func lenPrefix(n int) []byte {
	return []byte{byte(n >> 8), byte(n)}
}

// eraseReset implements ERASE RESET (id 0x03): equivalent to an
// Erase-Write with no data, clearing the page back to its power-on
// state.
func (s *sfEngine) eraseReset(body []byte) (Status, error) {
	s.it.Page.Erase()
	return OkayNoOutput, nil
}

// setReplyMode implements SET REPLY MODE (id 0x09): byte 0 is the
// partition (must be 0x00 -- this printer core only models a single
// implicit partition), byte 1 the mode.
func (s *sfEngine) setReplyMode(body []byte) (Status, error) {
	if len(body) < 2 {
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "truncated SET REPLY MODE"}
	}
	if body[0] != 0x00 {
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "unsupported partition id in SET REPLY MODE"}
	}
	switch body[1] {
	case replyModeField, replyModeXField, replyModeChar:
		s.replyMode = body[1]
	default:
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "unrecognized reply mode"}
	}
	return OkayNoOutput, nil
}

// outboundDS implements OUTBOUND DS (id 0x40): byte 0 is the
// partition (must be 0x00), byte 1 the nested 3270 command, and the
// rest is that command's own body, handed straight back to the
// Write-stream interpreter (or Erase-Write* handling) it would have
// gotten if it had arrived as a top-level command.
func (s *sfEngine) outboundDS(body []byte) (Status, error) {
	if len(body) < 2 {
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "truncated OUTBOUND DS"}
	}
	if body[0] != 0x00 {
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "unsupported partition id in OUTBOUND DS"}
	}
	switch Command(body[1]) {
	case CmdEW, CmdEWA:
		s.it.Page.Erase()
		return s.it.write(body[2:])
	case CmdW:
		return s.it.write(body[2:])
	case CmdEAU:
		s.it.Page.EraseUnprotected()
		if err := s.it.Flush(); err != nil {
			return Failed, err
		}
		return OkayOutput, nil
	default:
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadSF, Msg: "unsupported nested command in OUTBOUND DS"}
	}
}
