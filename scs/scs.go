// Package scs implements ScsInterpreter (spec.md §4.3): the SNA
// Character Stream order walker a printer session runs when the host
// negotiated SCS-CTL-CODES instead of raw 3270 datastream. Grounded on
// the order-walk shape of ds.Interpreter.write (itself grounded in
// racingmars-go3270), with per-order semantics taken from the original
// pr3287 ctlr.c's process_scs_contig/dump_scs_line/scs_formfeed.
package scs

import "github.com/racingmars/pr3287/charset"

// SCS order bytes. Standard SNA character-string control-code
// assignments; the originating header (ctlrc.h's SCS_* defines) isn't
// present in the retrieval pack, so these follow the well-known SNA
// LU1/LU3 control-code values rather than anything invented here.
const (
	scsBS  byte = 0x16
	scsCR  byte = 0x0D
	scsENP byte = 0x14
	scsFF  byte = 0x0C
	scsHT  byte = 0x05
	scsINP byte = 0x24
	scsIRS byte = 0x1E
	scsLF  byte = 0x25
	scsNL  byte = 0x15
	scsVT  byte = 0x0B
	scsVCS byte = 0x04
	scsGE  byte = 0x08
	scsSA  byte = 0x28
	scsTRN byte = 0x35
	scsSET byte = 0x2B
	scsSO  byte = 0x0E
	scsSI  byte = 0x0F
)

// SET sub-order selector bytes.
const (
	setSHF byte = 0xC1
	setSVF byte = 0xC2
	setSLD byte = 0xC6
)

// SA sub-order selector bytes, shared with the 3270 SA order's
// attribute-type space (ds.AttrHighlighting etc.) where they mean the
// same thing.
const (
	saReset     byte = 0x00
	saHighlight byte = 0x41
	saCharset   byte = 0x43
	saGrid      byte = 0x45
)

const (
	maxMPP = 132
	maxMPL = 108
)

// fcNOP is the dummy filler character stored for the right half of a
// DBCS pair so dump_scs_line can skip it without printing a blank.
const fcNOP rune = 0x0001

// trnSpan is the transparent-data bytes attached ahead of column pp,
// mirroring the original's per-column trnbuf.
type trnSpan struct {
	data []byte
}

// Sink is the byte-level PrinterSink contract (spec.md §4.6).
type Sink interface {
	Write(b byte) error
	WriteBytes(b []byte) error
	Flush() error
}

// Options carries the subset of config.Options that affects SCS
// rendering.
type Options struct {
	CRLF   bool
	FFSkip bool
	FFThru bool
}

// Interpreter is ScsInterpreter. One Interpreter is created per
// session and fed successive inbound SCS-DATA records via Process;
// state (page geometry, tab stops, partial-order leftover) persists
// across records for the life of the connection.
type Interpreter struct {
	CS   *charset.Translator
	Sink Sink
	Opts Options

	mpp, lm, rm int
	htabs       [maxMPP + 1]bool

	mpl, tm, bm int
	vtabs       [maxMPL + 1]bool

	pp, line int

	lineBuf [maxMPP + 1]rune
	trnBuf  [maxMPP + 1]trnSpan

	dbcsSubfield int
	dbcsC1       byte
	scsCS        byte

	scsAny bool // non-transparent data emitted since the last formfeed
	inited bool

	leftover []byte
}

// NewInterpreter constructs an ScsInterpreter with default horizontal
// and vertical format state.
func NewInterpreter(cs *charset.Translator, sink Sink, opts Options) *Interpreter {
	it := &Interpreter{CS: cs, Sink: sink, Opts: opts}
	it.initOnce()
	return it
}

func (it *Interpreter) initOnce() {
	if it.inited {
		return
	}
	it.initHoriz()
	it.initVert()
	it.pp = 1
	it.line = 1
	for i := range it.lineBuf {
		it.lineBuf[i] = ' '
	}
	it.inited = true
}

func (it *Interpreter) initHoriz() {
	it.mpp = maxMPP
	it.lm = 1
	for i := range it.htabs {
		it.htabs[i] = false
	}
	it.htabs[1] = true
}

func (it *Interpreter) initVert() {
	it.mpl = 1
	it.tm = 1
	it.bm = it.mpl
	for i := range it.vtabs {
		it.vtabs[i] = false
	}
	it.vtabs[1] = true
}

// Process consumes one inbound SCS-DATA payload, prepending any
// leftover bytes from a previous record that ended mid-order.
func (it *Interpreter) Process(buf []byte) error {
	it.initOnce()
	var contig []byte
	if len(it.leftover) > 0 {
		contig = append(append([]byte(nil), it.leftover...), buf...)
		it.leftover = nil
	} else {
		contig = buf
	}
	return it.processContig(contig)
}

func (it *Interpreter) processContig(buf []byte) error {
	i := 0
	for i < len(buf) {
		b := buf[i]
		switch b {
		case scsBS:
			if it.pp != 1 {
				it.pp--
			}
			if it.dbcsSubfield != 0 && it.pp != 1 {
				it.pp--
			}
			i++

		case scsCR:
			it.pp = it.lm
			i++

		case scsENP, scsINP:
			i++

		case scsFF:
			if err := it.dumpLine(true, false); err != nil {
				return err
			}
			if err := it.formfeed(true); err != nil {
				return err
			}
			i++

		case scsHT:
			target := -1
			for c := it.pp + 1; c <= it.mpp; c++ {
				if it.htabs[c] {
					target = c
					break
				}
			}
			if target >= 0 {
				it.pp = target
			} else if err := it.addChar(' '); err != nil {
				return err
			}
			i++

		case scsIRS, scsNL:
			if err := it.dumpLine(true, true); err != nil {
				return err
			}
			i++

		case scsVT:
			target := -1
			for r := it.line + 1; r <= maxMPL; r++ {
				if it.vtabs[r] {
					target = r
					break
				}
			}
			if target < 0 {
				// Fall through to LF behavior.
				if err := it.dumpLine(false, true); err != nil {
					return err
				}
				i++
				continue
			}
			if err := it.dumpLine(false, true); err != nil {
				return err
			}
			for it.line < target {
				if err := it.newline(); err != nil {
					return err
				}
				it.line++
			}
			i++

		case scsVCS, scsLF:
			if err := it.dumpLine(false, true); err != nil {
				return err
			}
			i++

		case scsGE:
			if i+1 >= len(buf) {
				it.saveLeftover(buf, i)
				return nil
			}
			if err := it.addChar(' '); err != nil {
				return err
			}
			i += 2

		case scsSA:
			if i+2 >= len(buf) {
				it.saveLeftover(buf, i)
				return nil
			}
			switch buf[i+1] {
			case saReset:
				it.dbcsSubfield = 0
				it.scsCS = 0
			case saHighlight, saGrid:
				// Recorded by the host for a real printer's ribbon/
				// grid control; this core has no analogue, so the
				// value is consumed and ignored.
			case saCharset:
				v := buf[i+2]
				if it.scsCS != v {
					if it.scsCS == 0xF8 {
						it.dbcsSubfield = 0
					} else if v == 0xF8 {
						it.dbcsSubfield = 1
					}
					it.scsCS = v
				}
			}
			i += 3

		case scsTRN:
			if i+1 >= len(buf) {
				it.saveLeftover(buf, i)
				return nil
			}
			cnt := int(buf[i+1])
			if i+2+cnt > len(buf) {
				it.saveLeftover(buf, i)
				return nil
			}
			it.addTrn(buf[i+2 : i+2+cnt])
			it.dbcsSubfield = 0
			i += 2 + cnt

		case scsSET:
			if i+2 >= len(buf) {
				it.saveLeftover(buf, i)
				return nil
			}
			sub := buf[i+1]
			cnt := int(buf[i+2])
			if i+3+cnt > len(buf) {
				it.saveLeftover(buf, i)
				return nil
			}
			switch sub {
			case setSHF:
				it.handleSHF(buf[i+3 : i+3+cnt])
			case setSVF:
				it.handleSVF(buf[i+3 : i+3+cnt])
			case setSLD:
				// Line density: consumed but not modeled.
			}
			i += 3 + cnt

		case scsSO:
			it.dbcsSubfield = 1
			i++

		case scsSI:
			it.dbcsSubfield = 0
			i++

		default:
			if b <= 0x3F {
				if err := it.addChar(' '); err != nil {
					return err
				}
				i++
				continue
			}
			if it.dbcsSubfield != 0 {
				if it.dbcsSubfield%2 == 1 {
					it.dbcsC1 = b
				} else {
					uni, ok := it.CS.EBCDICToUnicode(b, charset.CSDBCSLeft, charset.EUONone)
					if !ok || uni == 0 {
						if err := it.addChar(' '); err != nil {
							return err
						}
						if err := it.addChar(' '); err != nil {
							return err
						}
					} else {
						if err := it.addChar(uni); err != nil {
							return err
						}
						if err := it.addChar(fcNOP); err != nil {
							return err
						}
					}
				}
				it.dbcsSubfield++
				i++
				continue
			}
			uni, ok := it.CS.EBCDICToUnicode(b, charset.CSBase, charset.EUONone)
			if !ok {
				uni = 0xFFFD
			}
			if err := it.addChar(uni); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}

// handleSHF implements SET HORIZONTAL FORMAT: body is the cnt data
// bytes following SET's own sub-order and length fields -- mpp, lm,
// rm, then zero or more tab-stop columns.
func (it *Interpreter) handleSHF(body []byte) {
	it.initHoriz()
	if len(body) == 0 {
		return
	}
	mpp := int(body[0])
	if mpp == 0 || mpp > maxMPP {
		mpp = maxMPP
	}
	it.mpp = mpp
	if len(body) < 2 {
		return
	}
	lm := int(body[1])
	if lm < 1 || lm >= it.mpp {
		lm = 1
	}
	it.lm = lm
	if len(body) < 3 {
		return
	}
	it.rm = int(body[2])
	for _, t := range body[3:] {
		tab := int(t)
		if tab >= 1 && tab <= it.mpp {
			it.htabs[tab] = true
		}
	}
}

// handleSVF implements SET VERTICAL FORMAT.
func (it *Interpreter) handleSVF(body []byte) {
	it.initVert()
	if len(body) == 0 {
		return
	}
	mpl := int(body[0])
	if mpl == 0 || mpl > maxMPL {
		mpl = 1
	}
	it.mpl = mpl
	it.bm = mpl
	if len(body) < 2 {
		return
	}
	tm := int(body[1])
	if tm < 1 || tm >= it.mpl {
		tm = 1
	}
	it.tm = tm
	if len(body) < 3 {
		return
	}
	bm := int(body[2])
	if bm < it.tm || bm >= it.mpl {
		bm = it.mpl
	}
	it.bm = bm
	for _, t := range body[3:] {
		tab := int(t)
		if tab >= 1 && tab <= maxMPL {
			it.vtabs[tab] = true
		}
	}
}

func (it *Interpreter) saveLeftover(buf []byte, from int) {
	it.leftover = append([]byte(nil), buf[from:]...)
}

// addChar implements add_scs: stores one printable position, wrapping
// to the next line or page first if the write position would
// overflow.
func (it *Interpreter) addChar(c rune) error {
	if it.line > it.bm {
		if err := it.formfeed(false); err != nil {
			return err
		}
	}
	if it.pp > it.mpp {
		if err := it.dumpLine(true, true); err != nil {
			return err
		}
	}
	if c != ' ' {
		it.lineBuf[it.pp] = c
	}
	it.pp++
	return nil
}

// addTrn attaches transparent data to the current column; unlike
// addChar it never triggers a formfeed or line wrap of its own --
// overflow is left for the next addChar to resolve.
func (it *Interpreter) addTrn(data []byte) {
	span := &it.trnBuf[it.pp]
	span.data = append(span.data, data...)
}

// dumpLine implements dump_scs_line: emit the current line (trailing
// spaces trimmed) and optionally force a newline even if the line was
// blank.
func (it *Interpreter) dumpLine(resetPP, alwaysNL bool) error {
	last := 0
	for c := it.mpp; c >= 1; c-- {
		if len(it.trnBuf[c].data) != 0 || it.lineBuf[c] != ' ' {
			last = c
			break
		}
	}

	anyData := false
	if last >= 1 {
		for c := 1; c <= last; c++ {
			if len(it.trnBuf[c].data) != 0 {
				if err := it.Sink.WriteBytes(it.trnBuf[c].data); err != nil {
					return err
				}
				it.trnBuf[c].data = nil
			}
			if c < last || it.lineBuf[c] != ' ' {
				if it.lineBuf[c] == fcNOP {
					continue
				}
				anyData = true
				it.scsAny = true
				if err := it.writeRune(it.lineBuf[c]); err != nil {
					return err
				}
			}
		}
		for c := range it.lineBuf {
			it.lineBuf[c] = ' '
		}
	}

	if anyData || alwaysNL {
		if err := it.newline(); err != nil {
			return err
		}
		it.line++
	}
	if resetPP {
		it.pp = it.lm
	}
	return nil
}

func (it *Interpreter) writeRune(r rune) error {
	var buf []byte
	buf = it.CS.UnicodeToMultibyte(r, buf)
	return it.Sink.WriteBytes(buf)
}

func (it *Interpreter) newline() error {
	if it.Opts.CRLF {
		return it.Sink.WriteBytes([]byte{'\r', '\n'})
	}
	return it.Sink.Write('\n')
}

// formfeed implements scs_formfeed(explicit): spec.md §4.3's formfeed
// policy.
func (it *Interpreter) formfeed(explicit bool) error {
	if it.Opts.FFSkip && explicit && !it.scsAny {
		return nil
	}
	if it.Opts.FFThru {
		if explicit {
			if err := it.Sink.Write('\f'); err != nil {
				return err
			}
			it.scsAny = false
		}
		it.line = 1
		return nil
	}
	if explicit {
		it.scsAny = false
	}
	if it.mpl > 1 {
		for it.line <= it.mpl {
			if err := it.newline(); err != nil {
				return err
			}
			it.line++
		}
		it.line = 1
		for it.line < it.tm {
			if err := it.newline(); err != nil {
				return err
			}
			it.line++
		}
	} else {
		it.line = 1
	}
	return nil
}

// Flush forces out any buffered line without printing an extra blank
// line if nothing was pending (end-of-job handling, mirroring the
// original's dump_scs_line(true, false) at EOJ).
func (it *Interpreter) Flush() error {
	if err := it.dumpLine(true, false); err != nil {
		return err
	}
	return it.Sink.Flush()
}
