package telnet

import (
	"bytes"
	"errors"
	"io"

	"github.com/racingmars/pr3287/perr"
	"github.com/racingmars/pr3287/tracelog"
)

var errNoTLSProvider = errors.New("telnet: no TLS provider configured")

// Fsm is TelnetFsm: it consumes raw socket bytes, assembles inbound
// records at EOR boundaries, and emits outbound option responses and
// TN3270E frames (spec.md §4.1).
type Fsm struct {
	rw  io.ReadWriter
	log *tracelog.Logger

	hisOpts [256]bool
	myOpts  [256]bool

	state     int
	subOption byte
	subBuf    []byte
	record    []byte

	termType    string
	lu          *LuSelector
	connectedLU string

	submode Submode
	bound   bool

	localFuncs          Funcs
	lastRequestedFuncs  Funcs
	negotiatedFuncs     Funcs
	responsesNegotiated bool

	tlsAvailable bool
	refusedTLS   bool
	tlsUpgrade   func(io.ReadWriter) (io.ReadWriter, error)

	xmitSeq uint16

	readBuf [4096]byte
}

// New builds a Fsm over rw (typically a net.Conn) that will negotiate
// as termType, trying LU candidates from lu.
func New(rw io.ReadWriter, termType string, lu *LuSelector, log *tracelog.Logger) *Fsm {
	return &Fsm{
		rw:         rw,
		termType:   termType,
		lu:         lu,
		log:        log,
		localFuncs: DesiredFuncs,
	}
}

// SetTLSProvider installs the STARTTLS collaborator; without one,
// STARTTLS FOLLOWS fails the connection with a TLSError.
func (f *Fsm) SetTLSProvider(fn func(io.ReadWriter) (io.ReadWriter, error)) {
	f.tlsUpgrade = fn
	f.tlsAvailable = fn != nil
}

func (f *Fsm) RefusedTLS() bool           { return f.refusedTLS }
func (f *Fsm) Submode() Submode           { return f.submode }
func (f *Fsm) Bound() bool                { return f.bound }
func (f *Fsm) SetBound(b bool)            { f.bound = b }
func (f *Fsm) ConnectedLU() string        { return f.connectedLU }
func (f *Fsm) ResponsesNegotiated() bool  { return f.responsesNegotiated }
func (f *Fsm) NegotiatedFunctions() Funcs { return f.negotiatedFuncs }

// Start sends the initial WILL TN3270E that drives S1's negotiation.
// Classic (non-TN3270E) hosts are expected to instead send DO TTYPE
// themselves, which Fsm answers reactively via handleDo.
func (f *Fsm) Start() error {
	return f.sendCmd(cmdWILL, OptTN3270E)
}

// NextRecord blocks reading from the underlying connection until one
// full EOR-terminated record has been assembled, stripping and
// returning its TN3270E header when a TN3270E submode is active.
func (f *Fsm) NextRecord() ([]byte, Header, error) {
	for {
		n, err := f.rw.Read(f.readBuf[:])
		if err != nil {
			return nil, Header{}, &perr.Transient{Err: err}
		}
		for _, b := range f.readBuf[:n] {
			rec, done, serr := f.step(b)
			if serr != nil {
				return nil, Header{}, serr
			}
			if !done {
				continue
			}
			if f.submode == SubmodeNone {
				return rec, Header{}, nil
			}
			if len(rec) < headerLen {
				return nil, Header{}, &perr.TelnetError{Msg: "short TN3270E record"}
			}
			hdr, herr := parseHeader(rec[:headerLen])
			if herr != nil {
				return nil, Header{}, &perr.TelnetError{Msg: herr.Error()}
			}
			return rec[headerLen:], hdr, nil
		}
	}
}

// step drives one byte through the framing state machine. It returns
// a completed record when an IAC EOR closes one.
func (f *Fsm) step(b byte) (rec []byte, done bool, err error) {
	switch f.state {
	case fsData:
		if b == cmdIAC {
			f.state = fsIAC
		} else {
			f.record = append(f.record, b)
		}

	case fsIAC:
		switch b {
		case cmdIAC:
			f.record = append(f.record, cmdIAC)
			f.state = fsData
		case cmdWILL:
			f.state = fsWill
		case cmdWONT:
			f.state = fsWont
		case cmdDO:
			f.state = fsDo
		case cmdDONT:
			f.state = fsDont
		case cmdSB:
			f.subBuf = f.subBuf[:0]
			f.state = fsSB
		case cmdEOR:
			rec = f.record
			f.record = nil
			done = true
			f.state = fsData
		default:
			// GA and any other unrecognized command: dropped per
			// spec.md §4.1's error semantics.
			f.state = fsData
		}

	case fsWill:
		err = f.handleWill(b)
		f.state = fsData

	case fsWont:
		f.hisOpts[b] = false
		f.state = fsData

	case fsDo:
		err = f.handleDo(b)
		f.state = fsData

	case fsDont:
		if f.myOpts[b] {
			f.myOpts[b] = false
			err = f.sendCmd(cmdWONT, b)
		}
		f.state = fsData

	case fsSB:
		f.subOption = b
		f.state = fsSBData

	case fsSBData:
		if b == cmdIAC {
			f.state = fsSBIAC
			break
		}
		if len(f.subBuf) >= maxSubOptionBuf {
			return nil, false, &perr.TelnetError{Msg: "sub-option buffer overflow"}
		}
		f.subBuf = append(f.subBuf, b)

	case fsSBIAC:
		switch b {
		case cmdSE:
			err = f.processSubneg(f.subOption, f.subBuf)
			f.state = fsData
		case cmdIAC:
			f.subBuf = append(f.subBuf, cmdIAC)
			f.state = fsSBData
		default:
			// malformed SB...SE framing: resync to DATA.
			f.state = fsData
		}
	}
	return rec, done, err
}

// --- option negotiation policy (spec.md §4.1) ---

func (f *Fsm) handleDo(opt byte) error {
	switch opt {
	case OptBinary, OptEOR, OptTTYPE, OptSGA, OptTN3270E:
		f.myOpts[opt] = true
		return f.sendCmd(cmdWILL, opt)
	case OptTM:
		// accepted but not recorded as persistent state
		return f.sendCmd(cmdWILL, opt)
	case OptSTARTTLS:
		if f.tlsAvailable {
			f.myOpts[opt] = true
			return f.sendCmd(cmdWILL, opt)
		}
		f.refusedTLS = true
		return f.sendCmd(cmdWONT, opt)
	default:
		return f.sendCmd(cmdWONT, opt)
	}
}

func (f *Fsm) handleWill(opt byte) error {
	switch opt {
	case OptSGA, OptBinary, OptTTYPE, OptEcho, OptTN3270E:
		f.hisOpts[opt] = true
		return f.sendCmd(cmdDO, opt)
	case OptEOR:
		f.hisOpts[opt] = true
		if err := f.sendCmd(cmdDO, opt); err != nil {
			return err
		}
		if !f.myOpts[OptEOR] {
			f.myOpts[OptEOR] = true
			return f.sendCmd(cmdWILL, OptEOR)
		}
		return nil
	default:
		return f.sendCmd(cmdDONT, opt)
	}
}

func (f *Fsm) processSubneg(opt byte, buf []byte) error {
	switch opt {
	case OptTTYPE:
		return f.handleTTYPESubneg(buf)
	case OptTN3270E:
		return f.handleTN3270ESubneg(buf)
	case OptSTARTTLS:
		return f.handleSTARTTLSSubneg(buf)
	default:
		return nil
	}
}

func (f *Fsm) handleTTYPESubneg(buf []byte) error {
	if len(buf) < 1 || buf[0] != ttypeSEND {
		return nil
	}
	name := f.termType
	if lu, ok := f.lu.Current(); ok {
		name = name + "@" + lu
	}
	payload := append([]byte{ttypeIS}, []byte(name)...)
	return f.sendSubneg(append([]byte{OptTTYPE}, payload...))
}

func (f *Fsm) handleSTARTTLSSubneg(buf []byte) error {
	if len(buf) < 1 || buf[0] != opFOLLOWS {
		return nil
	}
	if f.tlsUpgrade == nil {
		return &perr.TLSError{Err: errNoTLSProvider}
	}
	nrw, err := f.tlsUpgrade(f.rw)
	if err != nil {
		return &perr.TLSError{Err: err}
	}
	f.rw = nrw
	return nil
}

func (f *Fsm) handleTN3270ESubneg(buf []byte) error {
	if len(buf) < 1 {
		return nil
	}
	switch buf[0] {
	case opSEND:
		if len(buf) >= 2 && buf[1] == opDEVICETYPE {
			return f.sendDeviceTypeRequest()
		}
	case opDEVICETYPE:
		if len(buf) < 2 {
			return nil
		}
		switch buf[1] {
		case opIS:
			return f.handleDeviceTypeIs(buf[2:])
		case opREJECT:
			return f.handleDeviceTypeReject(buf[2:])
		}
	case opFUNCTIONS:
		if len(buf) < 2 {
			return nil
		}
		switch buf[1] {
		case opREQUEST:
			return f.handleFunctionsRequest(buf[2:])
		case opIS:
			return f.handleFunctionsIs(buf[2:])
		}
	}
	return nil
}

func (f *Fsm) handleDeviceTypeIs(rest []byte) error {
	var lu string
	if idx := bytes.IndexByte(rest, opCONNECT); idx >= 0 {
		lu = string(rest[idx+1:])
	} else if idx := bytes.IndexByte(rest, opASSOCIATE); idx >= 0 {
		lu = string(rest[idx+1:])
	}
	f.connectedLU = lu
	return f.sendFunctionsRequest(f.localFuncs)
}

func (f *Fsm) handleDeviceTypeReject(rest []byte) error {
	if f.lu.Mandatory() {
		return &perr.Fatal{Kind: perr.FatalAssocRefused, Msg: "host rejected ASSOCIATE " + f.lu.AssocName()}
	}
	if !f.lu.Advance() {
		return &perr.Fatal{Kind: perr.FatalNoDeviceType, Msg: "host rejected every candidate LU"}
	}
	return f.sendDeviceTypeRequest()
}

func (f *Fsm) handleFunctionsRequest(rest []byte) error {
	r := bytesToFuncs(rest)
	lf := f.localFuncs
	if r == lf || (r & ^lf) == 0 {
		f.negotiatedFuncs = r
		f.responsesNegotiated = r&FuncResponses != 0
		f.submode = Submode3270
		return f.sendFunctionsIs(r)
	}
	intersect := r & lf
	return f.sendFunctionsRequest(intersect)
}

func (f *Fsm) handleFunctionsIs(rest []byte) error {
	is := bytesToFuncs(rest)
	if f.lastRequestedFuncs != 0 && (is & ^f.lastRequestedFuncs) != 0 {
		f.submode = SubmodeNone
		return f.sendCmd(cmdWONT, OptTN3270E)
	}
	f.negotiatedFuncs = is
	f.responsesNegotiated = is&FuncResponses != 0
	f.submode = Submode3270
	return nil
}

// --- outbound framing (spec.md §4.1's send_record / respond_* /
// send_error_cleared) ---

func (f *Fsm) sendCmd(cmd, opt byte) error {
	_, err := f.rw.Write([]byte{cmdIAC, cmd, opt})
	return err
}

func (f *Fsm) sendSubneg(payload []byte) error {
	out := []byte{cmdIAC, cmdSB}
	out = append(out, quoteIAC(payload)...)
	out = append(out, cmdIAC, cmdSE)
	_, err := f.rw.Write(out)
	return err
}

func (f *Fsm) sendDeviceTypeRequest() error {
	payload := []byte{OptTN3270E, opDEVICETYPE, opREQUEST}
	payload = append(payload, []byte(f.termType)...)
	switch {
	case f.lu.Mandatory():
		payload = append(payload, opASSOCIATE)
		payload = append(payload, []byte(f.lu.AssocName())...)
	default:
		if name, ok := f.lu.Current(); ok {
			payload = append(payload, opCONNECT)
			payload = append(payload, []byte(name)...)
		}
	}
	return f.sendSubneg(payload)
}

func (f *Fsm) sendFunctionsRequest(funcs Funcs) error {
	f.lastRequestedFuncs = funcs
	payload := []byte{OptTN3270E, opFUNCTIONS, opREQUEST}
	payload = append(payload, funcsToBytes(funcs)...)
	return f.sendSubneg(payload)
}

func (f *Fsm) sendFunctionsIs(funcs Funcs) error {
	payload := []byte{OptTN3270E, opFUNCTIONS, opIS}
	payload = append(payload, funcsToBytes(funcs)...)
	return f.sendSubneg(payload)
}

// nextSeq implements invariant I5: the transmit sequence increments
// modulo 2^15 on every outbound DATA frame iff RESPONSES was
// negotiated; otherwise it stays at 0.
func (f *Fsm) nextSeq() uint16 {
	if !f.responsesNegotiated {
		return 0
	}
	f.xmitSeq = (f.xmitSeq + 1) % 0x8000
	return f.xmitSeq
}

func (f *Fsm) writeFramed(hdr Header, payload []byte) error {
	var out []byte
	if f.submode != SubmodeNone {
		out = append(out, hdr.Marshal()...)
	}
	out = append(out, quoteIAC(payload)...)
	out = append(out, cmdIAC, cmdEOR)
	_, err := f.rw.Write(out)
	return err
}

// SendRecord wraps payload with a TN3270E header (when negotiated)
// and IAC-quoting, then writes one EOR-terminated record.
func (f *Fsm) SendRecord(payload []byte, dt DataType, respFlag byte) error {
	hdr := Header{DataType: dt, ResponseFlag: respFlag, Seq: f.nextSeq()}
	return f.writeFramed(hdr, payload)
}

// RespondPositive sends a TN3270E RESPONSE frame carrying
// DEVICE-END for the given inbound sequence number.
func (f *Fsm) RespondPositive(seq uint16) error {
	hdr := Header{DataType: DTResponse, ResponseFlag: RSFPositiveResponse, Seq: seq}
	return f.writeFramed(hdr, []byte{PosDeviceEnd})
}

// RespondNegative sends a TN3270E RESPONSE frame carrying reason for
// the given inbound sequence number.
func (f *Fsm) RespondNegative(seq uint16, reason byte) error {
	hdr := Header{DataType: DTResponse, ResponseFlag: RSFNegativeResponse, Seq: seq}
	return f.writeFramed(hdr, []byte{reason})
}

// SendErrorCleared sends a REQUEST frame with request_flag =
// ERR-COND-CLEARED and the next transmit sequence number, used after
// recovering from an Intervention-Required condition.
func (f *Fsm) SendErrorCleared() error {
	hdr := Header{DataType: DTRequest, RequestFlag: RQFErrCondCleared, Seq: f.nextSeq()}
	return f.writeFramed(hdr, nil)
}

// quoteIAC implements P1: every 0xFF payload byte becomes two 0xFF
// bytes on the wire; every other byte is copied once.
func quoteIAC(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		out = append(out, c)
		if c == cmdIAC {
			out = append(out, cmdIAC)
		}
	}
	return out
}
