// Package codepage implements the byte-level EBCDIC<->Unicode mapping
// tables used by the charset translator. It is adapted from the
// go3270 codepage engine: a generic table-driven codepage type plus
// concrete data for the code pages the printer core actually ships.
package codepage

import "unicode/utf8"

// Codepage holds the EBCDIC<->Unicode tables for one IBM code page.
type Codepage struct {
	// EBCDIC byte to Unicode code point for bytes 0x00-0xFF.
	E2U []rune

	// Unicode code point to EBCDIC byte for codepoints 0x00-0xFF.
	U2E []byte

	// Unicode code point to EBCDIC byte for codepoints >0xFF.
	HighU2E map[rune]byte

	// EBCDIC substitute character used when no mapping exists.
	ESub byte

	// Graphic-escape EBCDIC byte (shifts into the line-drawing set).
	GE byte

	// Graphic-escape byte to Unicode, and the reverse map.
	GE2U []rune
	U2GE map[rune]byte

	ID string
}

// Decode converts EBCDIC bytes to a UTF-8 string, expanding graphic
// escapes into the line-drawing set.
func (cp *Codepage) Decode(b []byte) string {
	runes := make([]rune, 0, len(b))
	var escape bool
	for _, c := range b {
		if escape {
			escape = false
			if r := cp.GE2U[c]; r != utf8.RuneError {
				runes = append(runes, r)
			} else {
				runes = append(runes, 0x1A)
			}
			continue
		}
		if c == cp.GE {
			escape = true
			continue
		}
		runes = append(runes, cp.E2U[c])
	}
	return string(runes)
}

// DecodeByte translates a single EBCDIC byte, the primitive that
// ebcdic_to_unicode is built from. When lineDraw is set, the GE2U
// table is consulted instead of E2U.
func (cp *Codepage) DecodeByte(b byte, lineDraw bool) rune {
	if lineDraw {
		if r := cp.GE2U[b]; r != utf8.RuneError {
			return r
		}
		return 0x1A
	}
	return cp.E2U[b]
}

// Encode converts a UTF-8 string to EBCDIC bytes, using the graphic
// escape for line-drawing characters when needed.
func (cp *Codepage) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size <= 1 {
			break
		}
		switch {
		case int(r) < len(cp.U2E):
			out = append(out, cp.U2E[r])
		default:
			if v, ok := cp.HighU2E[r]; ok {
				out = append(out, v)
			} else if v, ok := cp.U2GE[r]; ok {
				out = append(out, cp.GE, v)
			} else {
				out = append(out, cp.ESub)
			}
		}
		s = s[size:]
	}
	return out
}

func (cp *Codepage) Name() string { return cp.ID }

// unicodeToCP310 maps the line-drawing glyphs of the "graphic escape"
// CP310 subset to their EBCDIC byte. Shared by every code page, since
// every code page uses the same graphic-escape byte (0x08) and the
// same CP310 subset.
var unicodeToCP310 = map[rune]byte{
	'◊': 0x70, '∧': 0x71, '®': 0x72, '⌻': 0x73, '⍸': 0x74, '⍷': 0x75,
	'⊢': 0x76, '⊣': 0x77, '∨': 0x78, '∼': 0x80, '║': 0x81, '═': 0x82,
	'↑': 0x8A, '↓': 0x8B, '≤': 0x8C, '⌈': 0x8D, '⌊': 0x8E, '→': 0x8F,
	'▌': 0x91, '▐': 0x92, '▀': 0x93, '▄': 0x94, '█': 0x95, '○': 0x9D,
	'±': 0x9E, '←': 0x9F, '°': 0xA1, '─': 0xA2, '∙': 0xA3, '∩': 0xAA,
	'∪': 0xAB, '≥': 0xAE, '∘': 0xAF, '∈': 0xB1, '×': 0xB6, '÷': 0xB8,
	'∇': 0xBA, '∆': 0xBB, '≠': 0xBE, '∣': 0xBF, '■': 0xC3, '└': 0xC4,
	'┌': 0xC5, '├': 0xC6, '┴': 0xC7, '┼': 0xD3, '┘': 0xD4, '┐': 0xD5,
	'┤': 0xD6, '┬': 0xD7, '≡': 0xE0,
}

// cp310ToUnicode is the reverse of unicodeToCP310, dense over
// 0x00-0xFF. utf8.RuneError marks unassigned positions.
var cp310ToUnicode = buildCP310Reverse()

func buildCP310Reverse() []rune {
	t := make([]rune, 256)
	for i := range t {
		t[i] = utf8.RuneError
	}
	for r, b := range unicodeToCP310 {
		t[b] = r
	}
	return t
}
