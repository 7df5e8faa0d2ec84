package ds

import "github.com/racingmars/pr3287/config"

// renderUnformatted implements the unformatted rendering rules of
// spec.md §4.2: the buffer is a character stream with special codes
// for NL, CR, FF, EM; the print position wraps at MPP printable
// characters (skipcc adjusts the count by one); trailing spaces on a
// line are not emitted; an FF on an otherwise empty page is
// suppressed under ffskip.
func (it *Interpreter) renderUnformatted() error {
	mpp := it.Opts.MPP
	if mpp <= 0 {
		mpp = config.DefaultMPP
	}
	limit := mpp
	if it.Opts.SkipCC {
		limit++
	}

	var line []rune
	col := 0
	pageHasOutput := false

	flushLine := func() error {
		line = trimTrailingSpaces(line)
		if len(line) > 0 {
			if err := it.writeRunes(line); err != nil {
				return err
			}
			pageHasOutput = true
		}
		if err := it.writeNewline(); err != nil {
			return err
		}
		line = line[:0]
		col = 0
		return nil
	}

	n := it.Page.NumCells()
	for i := 0; i < n; i++ {
		cell := it.Page.CellAt(i)
		switch cell.EBCDIC {
		case FCFF:
			if err := flushLine(); err != nil {
				return err
			}
			if it.Opts.FFSkip && !pageHasOutput {
				continue
			}
			if err := it.Sink.Write('\f'); err != nil {
				return err
			}
			pageHasOutput = false
		case FCCR, FCNL:
			if err := flushLine(); err != nil {
				return err
			}
		case FCEM:
			// end-of-medium: a layout marker only, no glyph of its own.
		case FCNull:
			// unwritten and null positions carry no glyph.
		default:
			if cell.FA != 0 {
				continue
			}
			line = append(line, cell.Unicode)
			col++
			if col >= limit {
				if err := flushLine(); err != nil {
					return err
				}
			}
		}
	}
	return flushLine()
}

// renderFormatted implements the formatted rendering rules of spec.md
// §4.2: each line is exactly wcc_line_length cells; invisible fields
// print as blanks; trailing blank lines are suppressed unless
// blanklines is set.
func (it *Interpreter) renderFormatted() error {
	lineLen := int(it.Page.WCCLineLength)
	if lineLen == 0 {
		lineLen = int(Line80)
	}
	n := it.Page.NumCells()
	rows := (n + lineLen - 1) / lineLen
	if rows == 0 {
		return nil
	}

	lines := make([][]rune, rows)
	lastNonBlank := -1
	for r := 0; r < rows; r++ {
		line := make([]rune, 0, lineLen)
		for c := 0; c < lineLen; c++ {
			pos := r*lineLen + c
			if pos >= n {
				line = append(line, ' ')
				continue
			}
			cell := it.Page.CellAt(pos)
			if cell.FA != 0 || cell.Unicode == 0 || !visibleFA(it.Page.OwningFA(pos)) {
				line = append(line, ' ')
			} else {
				line = append(line, cell.Unicode)
			}
		}
		trimmed := trimTrailingSpaces(line)
		lines[r] = line
		if len(trimmed) > 0 {
			lastNonBlank = r
		}
	}

	last := rows - 1
	if !it.Opts.BlankLines {
		last = lastNonBlank
	}
	for r := 0; r <= last; r++ {
		if err := it.writeRunes(trimTrailingSpaces(lines[r])); err != nil {
			return err
		}
		if err := it.writeNewline(); err != nil {
			return err
		}
	}
	return nil
}

// visibleFA applies the VISIBLE/INVISIBLE sentinel (color_from_fa):
// on a real 3270 FA byte, both display bits set (fa&0x0C == 0x0C)
// mark a non-display field.
func visibleFA(fa byte) bool {
	return fa&0x0C != 0x0C
}

func trimTrailingSpaces(r []rune) []rune {
	end := len(r)
	for end > 0 && r[end-1] == ' ' {
		end--
	}
	return r[:end]
}

func (it *Interpreter) writeRunes(r []rune) error {
	var buf []byte
	for _, c := range r {
		buf = it.CS.UnicodeToMultibyte(c, buf)
	}
	return it.Sink.WriteBytes(buf)
}

func (it *Interpreter) writeNewline() error {
	if it.Opts.CRLF {
		return it.Sink.WriteBytes([]byte{'\r', '\n'})
	}
	return it.Sink.Write('\n')
}
