package ds

import (
	"fmt"

	"github.com/racingmars/pr3287/charset"
	"github.com/racingmars/pr3287/perr"
)

// Status is the result of dispatching one inbound payload (spec.md
// §4.2).
type Status int

const (
	OkayNoOutput Status = iota
	OkayOutput
	BadCmd
	BadAddr
	Failed
)

// Sink is the byte-level PrinterSink contract DsInterpreter renders
// into (spec.md §4.6); printer.Job implements it.
type Sink interface {
	Write(b byte) error
	WriteBytes(b []byte) error
	Flush() error
}

// Options carries the subset of config.Options that affects
// rendering.
type Options struct {
	EmFlush    bool
	FFSkip     bool
	SkipCC     bool
	MPP        int
	BlankLines bool
	CRLF       bool

	// DBCS reports whether the session's code page supports a
	// double-byte character set, gating DBCS_ASIA in the Query Reply
	// supported-replies table (spec.md §4.4). It has no bearing on
	// scs.Interpreter's SO/SI subfield handling, which is always
	// active regardless of this flag.
	DBCS bool
}

// Interpreter is DsInterpreter: given a well-framed inbound payload,
// it applies the Write/Erase-Write/WSF command to Page and returns a
// Status.
type Interpreter struct {
	Page *PageBuilder
	CS   *charset.Translator
	Sink Sink
	Opts Options

	sf *sfEngine

	anyOutputSinceFF bool
	replies          [][]byte
}

// TakeReplies returns and clears any structured-field reply payloads
// SfEngine queued (Query Reply and similar); the caller is expected to
// send each through TelnetFsm.SendRecord as a 3270-DATA frame.
func (it *Interpreter) TakeReplies() [][]byte {
	r := it.replies
	it.replies = nil
	return r
}

func NewInterpreter(page *PageBuilder, cs *charset.Translator, sink Sink, opts Options) *Interpreter {
	it := &Interpreter{Page: page, CS: cs, Sink: sink, Opts: opts}
	it.sf = newSFEngine(it)
	return it
}

// Dispatch applies one inbound 3270-DATA payload.
func (it *Interpreter) Dispatch(payload []byte) (Status, error) {
	if len(payload) == 0 {
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadCmd, Msg: "empty 3270 payload"}
	}
	switch Command(payload[0]) {
	case CmdEAU:
		it.Page.EraseUnprotected()
		if err := it.Flush(); err != nil {
			return Failed, err
		}
		return OkayOutput, nil
	case CmdEW, CmdEWA:
		it.Page.Erase()
		return it.write(payload[1:])
	case CmdW:
		return it.write(payload[1:])
	case CmdWSF:
		return it.sf.dispatch(payload[1:])
	case CmdNOP:
		return OkayNoOutput, nil
	case CmdRB, CmdRM, CmdRMA:
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadCmd, Msg: "printer session does not read"}
	default:
		return BadCmd, &perr.ProtocolViolation{Kind: perr.BadCmd, Msg: fmt.Sprintf("unrecognized command 0x%02X", payload[0])}
	}
}

// translateDataByte runs a single EBCDIC data byte through the
// charset translator under the page's current default character set.
func (it *Interpreter) translateDataByte(b byte) rune {
	r, ok := it.CS.EBCDICToUnicode(b, it.Page.DefaultCS, charset.EUONone)
	if !ok {
		return 0xFFFD
	}
	return r
}

// write applies the WCC and orders of a Write/Erase-Write payload
// (spec.md §4.2).
func (it *Interpreter) write(body []byte) (Status, error) {
	if len(body) == 0 {
		return OkayNoOutput, nil
	}
	it.applyWCC(body[0])
	didOutput := false

	i := 1
	for i < len(body) {
		b := body[i]
		switch {
		case b == OrderSF:
			if i+1 >= len(body) {
				return BadCmd, &perr.ProtocolViolation{Kind: perr.BadCmd, Msg: "truncated SF"}
			}
			it.Page.StartField(body[i+1])
			i += 2

		case b == OrderSBA:
			if i+2 >= len(body) {
				return BadAddr, &perr.ProtocolViolation{Kind: perr.BadAddr, Msg: "truncated SBA"}
			}
			addr, err := DecodeAddr(body[i+1], body[i+2])
			if err != nil {
				return BadAddr, err
			}
			it.Page.SetAddress(addr)
			i += 3

		case b == OrderIC:
			it.Page.CursorAddr = it.Page.BufferAddr
			i++

		case b == OrderPT:
			// Program tab: the printer core has no keyboard-tab-stop
			// concept of its own, so PT is consumed as a no-op; the
			// host's subsequent SBA (which PT is normally paired with
			// on a real display) supplies the real position.
			i++

		case b == OrderRA:
			if i+3 >= len(body) {
				return BadAddr, &perr.ProtocolViolation{Kind: perr.BadAddr, Msg: "truncated RA"}
			}
			addr, err := DecodeAddr(body[i+1], body[i+2])
			if err != nil {
				return BadAddr, err
			}
			code := body[i+3]
			uni := it.translateDataByte(code)
			it.Page.RepeatTo(addr, code, uni, it.Page.DefaultCS, it.Page.DefaultGR)
			i += 4

		case b == OrderEUA:
			if i+2 >= len(body) {
				return BadAddr, &perr.ProtocolViolation{Kind: perr.BadAddr, Msg: "truncated EUA"}
			}
			addr, err := DecodeAddr(body[i+1], body[i+2])
			if err != nil {
				return BadAddr, err
			}
			it.Page.EraseUnprotectedTo(addr)
			i += 3

		case b == OrderGE:
			if i+1 >= len(body) {
				return BadCmd, &perr.ProtocolViolation{Kind: perr.BadCmd, Msg: "truncated GE"}
			}
			ch := body[i+1]
			uni, _ := it.CS.EBCDICToUnicode(ch, charset.CSLineDraw, charset.EUONone)
			it.Page.Add(ch, uni, charset.CSLineDraw, it.Page.DefaultGR)
			i += 2

		case b == OrderMF || b == OrderSFE:
			if i+1 >= len(body) {
				return BadCmd, &perr.ProtocolViolation{Kind: perr.BadCmd, Msg: "truncated SFE/MF"}
			}
			count := int(body[i+1])
			j := i + 2
			pairs := make([][2]byte, 0, count)
			for k := 0; k < count && j+1 < len(body); k++ {
				pairs = append(pairs, [2]byte{body[j], body[j+1]})
				j += 2
			}
			faAddr := it.Page.BufferAddr
			if b == OrderSFE {
				it.Page.StartField(0)
			}
			next := it.Page.BufferAddr
			it.Page.BufferAddr = faAddr
			it.Page.ModifyField(pairs)
			it.Page.BufferAddr = next
			i = j

		case b == OrderSA:
			if i+2 >= len(body) {
				return BadCmd, &perr.ProtocolViolation{Kind: perr.BadCmd, Msg: "truncated SA"}
			}
			it.Page.SetAttribute(body[i+1], body[i+2])
			i += 3

		case isFormatControl(b):
			it.Page.Add(b, 0, it.Page.DefaultCS, it.Page.DefaultGR)
			if b == FCEM && it.Opts.EmFlush && it.Page.WCCLineLength == LineUnformatted132 {
				if err := it.Flush(); err != nil {
					return Failed, err
				}
				didOutput = true
			}
			i++

		case b <= 0x3F:
			// Illegal but recoverable: emit a NUL cell and move on.
			it.Page.Add(0, 0, it.Page.DefaultCS, it.Page.DefaultGR)
			i++

		default:
			uni := it.translateDataByte(b)
			it.Page.Add(b, uni, it.Page.DefaultCS, it.Page.DefaultGR)
			i++
		}
	}

	if didOutput {
		return OkayOutput, nil
	}
	return OkayNoOutput, nil
}

func (it *Interpreter) applyWCC(wcc byte) {
	switch wcc & 0x30 {
	case 0x10:
		it.Page.WCCLineLength = Line40
	case 0x20:
		it.Page.WCCLineLength = Line64
	case 0x30:
		it.Page.WCCLineLength = Line80
	default:
		it.Page.WCCLineLength = LineUnformatted132
	}
}

// Flush renders the current page to Sink and resets the buffer for
// the next page, matching the PageBuffer lifecycle in spec.md §3.
func (it *Interpreter) Flush() error {
	var err error
	if it.Page.Formatted {
		err = it.renderFormatted()
	} else {
		err = it.renderUnformatted()
	}
	if err != nil {
		return &perr.PrinterFailure{Err: err}
	}
	it.Page.Erase()
	if err := it.Sink.Flush(); err != nil {
		return &perr.PrinterFailure{Err: err}
	}
	return nil
}
