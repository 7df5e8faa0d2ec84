// Package ds implements the 3270 Write-stream interpreter: PageBuilder
// (the page buffer) and DsInterpreter/SfEngine (command and
// structured-field dispatch), spec.md §4.2, §4.4, §4.5. Grounded in
// racingmars-go3270's screen/response address-decode logic, adapted
// from a display client's outbound SBA encoder into the printer
// core's inbound order interpreter.
package ds

import "github.com/racingmars/pr3287/charset"

// GraphicRendition is the bitmap of display attributes a cell can
// carry (spec.md §3's "graphic-rendition bits").
type GraphicRendition uint8

const (
	GRIntensify GraphicRendition = 1 << iota
	GRBlink
	GRReverse
	GRUnderscore
)

// DBCSState tags a cell's role in a double-byte pair.
type DBCSState int

const (
	DBCSNone DBCSState = iota
	DBCSSB
	DBCSSI
	DBCSLeft
	DBCSRight
	DBCSLeftWrap
	DBCSRightWrap
)

// Cell is one buffer position (spec.md §3).
type Cell struct {
	EBCDIC  byte
	Unicode rune
	CharSet charset.CharSet
	GR      GraphicRendition
	FG      byte
	DBCS    DBCSState
	FA      byte // non-zero iff this cell is a field attribute position
}

// LineLength enumerates wcc_line_length.
type LineLength int

const (
	LineUnformatted132 LineLength = 0
	Line40             LineLength = 40
	Line64             LineLength = 64
	Line80             LineLength = 80
)

// PageBuilder owns the in-memory page (spec.md §4.5 / §3's
// PageBuffer).
type PageBuilder struct {
	Rows, Cols int

	cells []Cell

	CursorAddr int
	BufferAddr int
	Formatted  bool

	DefaultFG byte
	DefaultCS charset.CharSet
	DefaultGR GraphicRendition

	WCCLineLength LineLength
}

// NewPageBuilder allocates a page of Rows x Cols cells.
func NewPageBuilder(rows, cols int) *PageBuilder {
	return &PageBuilder{
		Rows:          rows,
		Cols:          cols,
		cells:         make([]Cell, rows*cols),
		WCCLineLength: LineUnformatted132,
	}
}

func (p *PageBuilder) n() int { return p.Rows * p.Cols }

// NumCells returns ROWS*COLS.
func (p *PageBuilder) NumCells() int { return p.n() }

// CellAt returns the cell at buffer position i (already wrapped).
func (p *PageBuilder) CellAt(i int) Cell { return p.cells[p.wrap(i)] }

// OwningFA walks backward from pos (wrapping once through the whole
// buffer) to find the field-attribute byte governing it, returning 0
// when no FA precedes pos (unformatted data, always visible).
func (p *PageBuilder) OwningFA(pos int) byte {
	n := p.n()
	for k := 0; k < n; k++ {
		i := p.wrap(pos - k)
		if p.cells[i].FA != 0 {
			return p.cells[i].FA
		}
	}
	return 0
}

func (p *PageBuilder) wrap(addr int) int {
	n := p.n()
	addr %= n
	if addr < 0 {
		addr += n
	}
	return addr
}

// Erase zeroes the buffer and resets the cursor (Erase-Write /
// Erase-Write-Alternate).
func (p *PageBuilder) Erase() {
	for i := range p.cells {
		p.cells[i] = Cell{}
	}
	p.CursorAddr = 0
	p.BufferAddr = 0
	p.Formatted = false
}

// EraseUnprotected clears every cell belonging to an unprotected field
// (Erase-All-Unprotected); fields are tracked only by their leading FA
// cell, so this walks the buffer clearing any non-FA cell that isn't
// inside a protected field (FA bit 0x20). On an unformatted page (no
// FA at all) every cell is cleared.
func (p *PageBuilder) EraseUnprotected() {
	fa := p.OwningFA(p.n() - 1)
	for i := range p.cells {
		if p.cells[i].FA != 0 {
			fa = p.cells[i].FA
			continue
		}
		if fa&0x20 == 0 {
			p.cells[i] = Cell{}
		}
	}
	p.CursorAddr = 0
}

// EraseUnprotectedTo clears non-FA cells from the current cursor
// (inclusive) up to but not including addr, implementing the EUA
// order.
func (p *PageBuilder) EraseUnprotectedTo(addr int) {
	target := p.wrap(addr)
	pos := p.BufferAddr
	for {
		if p.cells[pos].FA == 0 {
			p.cells[pos] = Cell{}
		}
		pos = p.wrap(pos + 1)
		if pos == target {
			break
		}
	}
	p.BufferAddr = target
}

// SetAddress implements set_address(addr): moves the write cursor,
// wrapping modulo N so invariant I1 holds regardless of the raw
// decoded address.
func (p *PageBuilder) SetAddress(addr int) {
	p.BufferAddr = p.wrap(addr)
	p.CursorAddr = p.BufferAddr
}

// Add implements add(ebc, unicode, cs, gr): writes one cell at the
// current address and advances it by one, wrapping modulo N.
func (p *PageBuilder) Add(ebc byte, uni rune, cs charset.CharSet, gr GraphicRendition) {
	p.cells[p.BufferAddr] = Cell{EBCDIC: ebc, Unicode: uni, CharSet: cs, GR: gr, FG: p.DefaultFG}
	p.BufferAddr = p.wrap(p.BufferAddr + 1)
}

// StartField implements start_field(fa): the current position becomes
// a field-attribute cell (invariant I2: never carries a graphic), and
// the page is marked formatted.
func (p *PageBuilder) StartField(fa byte) {
	p.cells[p.BufferAddr] = Cell{FA: orDefaultFA(fa)}
	p.Formatted = true
	p.BufferAddr = p.wrap(p.BufferAddr + 1)
}

func orDefaultFA(fa byte) byte {
	if fa == 0 {
		// A zero FA byte is still a field attribute -- it just carries
		// no flags. Store a value that reads "is an FA" to the renderer
		// without colliding with "not an FA."
		return 0x40
	}
	return fa
}

// RepeatTo implements repeat_to(addr, ebc, cs, gr, ge): fills cells
// from the current cursor (inclusive) up to but not including addr,
// translating the source byte exactly once.
func (p *PageBuilder) RepeatTo(addr int, ebc byte, uni rune, cs charset.CharSet, gr GraphicRendition) {
	target := p.wrap(addr)
	pos := p.BufferAddr
	for {
		p.cells[pos] = Cell{EBCDIC: ebc, Unicode: uni, CharSet: cs, GR: gr, FG: p.DefaultFG}
		pos = p.wrap(pos + 1)
		if pos == target {
			break
		}
	}
	p.BufferAddr = target
}

// ModifyField updates field-attribute-like pairs on the FA cell at
// the current position, per SFE/MF's attribute-pair walk (spec.md
// §4.2). Pair types it does not recognize are ignored.
func (p *PageBuilder) ModifyField(pairs [][2]byte) {
	cell := &p.cells[p.BufferAddr]
	for _, pr := range pairs {
		switch pr[0] {
		case AttrFA:
			cell.FA = orDefaultFA(pr[1])
		case AttrForeground:
			cell.FG = pr[1]
		case AttrHighlighting:
			cell.GR = grFromHighlight(pr[1])
		case AttrCharset:
			cell.CharSet = csFromAttr(pr[1])
		case AttrAllReset:
			*cell = Cell{FA: cell.FA}
		}
	}
}

// SetAttribute implements the SA order's effect on the running
// defaults used for subsequent plain data bytes.
func (p *PageBuilder) SetAttribute(attrType, value byte) {
	switch attrType {
	case AttrAllReset:
		p.DefaultFG = 0
		p.DefaultCS = charset.CSBase
		p.DefaultGR = 0
	case AttrForeground:
		p.DefaultFG = value
	case AttrHighlighting:
		p.DefaultGR = grFromHighlight(value)
	case AttrCharset:
		p.DefaultCS = csFromAttr(value)
	}
}

func grFromHighlight(v byte) GraphicRendition {
	switch v {
	case 0xF1:
		return GRBlink
	case 0xF2:
		return GRReverse
	case 0xF4:
		return GRUnderscore
	case 0xF8:
		return GRIntensify
	default:
		return 0
	}
}

func csFromAttr(v byte) charset.CharSet {
	switch v {
	case 0xF1:
		return charset.CSAPL
	case 0xF8:
		return charset.CSDBCSLeft
	default:
		return charset.CSBase
	}
}

// Attribute-pair type bytes recognized by SFE/MF/SA (spec.md §4.2).
const (
	AttrAllReset     byte = 0x00
	AttrFA           byte = 0xC0
	AttrForeground   byte = 0x42
	AttrHighlighting byte = 0x41
	AttrCharset      byte = 0x43
)
