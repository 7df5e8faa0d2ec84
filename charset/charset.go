// Package charset implements CharsetXlate (spec.md §4.8): the pure,
// stateless EBCDIC<->Unicode translation the rest of the core treats
// as an external collaborator. The EBCDIC-to-Unicode direction is the
// go3270 codepage engine's own hand-built tables (internal/codepage);
// the Unicode-to-local-printer direction is delegated to
// golang.org/x/text, grounded in stlalpha-vision3's
// internal/terminalio/cp437_writer.go use of charmap+transform.
package charset

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/racingmars/pr3287/internal/codepage"
)

// CharSet selects which table a byte is translated against, matching
// the "character-set attribute" field of Cell (spec.md §3).
type CharSet int

const (
	CSBase CharSet = iota
	CSAPL
	CSLineDraw
	CSDBCSLeft
	CSDBCSRight
)

// ExpandOption mirrors the euo parameter of ebcdic_to_unicode: most
// callers pass EUONone; EUOAPL asks for the APL glyph set on ambiguous
// code points. The built-in CP037 tables have no APL overlay, so
// EBCDICToUnicode translates EUOAPL exactly like EUONone.
type ExpandOption int

const (
	EUONone ExpandOption = iota
	EUOAPL
)

// Translator is the concrete, stateless CharsetXlate. A *Translator is
// safe for concurrent use: all of its fields are fixed at New() time
// (xtable aside, which is only mutated during session setup, before
// any host traffic is processed).
type Translator struct {
	cp         *codepage.Codepage
	xtable     map[byte]rune
	printerEnc encoding.Encoding
}

var byName = map[string]*codepage.Codepage{
	"037": codepage.Codepage037,
}

// New builds a Translator for the named host code page. Only "037" is
// built in (see SPEC_FULL.md §12); callers needing a different host
// code page should supply an -xtable override file instead of adding
// silently-wrong tables here.
func New(name string) (*Translator, error) {
	if name == "" {
		name = "037"
	}
	cp, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("charset: unsupported code page %q", name)
	}
	return &Translator{cp: cp, printerEnc: charmap.ISO8859_1}, nil
}

// SetPrinterEncoding chooses the code page used by UnicodeToPrinter.
// The POSIX path (UnicodeToMultibyte) always emits UTF-8 and ignores
// this setting.
func (t *Translator) SetPrinterEncoding(enc encoding.Encoding) {
	t.printerEnc = enc
}

// EBCDICToUnicode is ebcdic_to_unicode(ebc, cs, euo) -> Option<Char>.
// It always returns ok=true: it cannot tell a field-attribute byte
// from data, so callers translating field-attribute bytes must not
// call this function on them in the first place (invariant I2).
func (t *Translator) EBCDICToUnicode(ebc byte, cs CharSet, euo ExpandOption) (r rune, ok bool) {
	if r, ok := t.xtable[ebc]; ok {
		return r, true
	}

	switch cs {
	case CSLineDraw:
		return t.cp.DecodeByte(ebc, true), true
	case CSDBCSLeft, CSDBCSRight:
		// Full double-byte combination is out of scope for this core
		// (spec.md treats CharsetXlate as a pure, already-available
		// collaborator); a DBCS half on its own renders as the
		// Unicode replacement character rather than silently
		// dropping data.
		return 0xFFFD, true
	default:
		_ = euo // APL glyph preference: CP037 has no APL overlay built in.
		return t.cp.DecodeByte(ebc, false), true
	}
}

// UnicodeToMultibyte is the POSIX half of unicode_to_multibyte: the
// local printer pipe receives UTF-8, so this is just utf8.AppendRune
// under another name -- kept as its own function so the DsInterpreter/
// ScsInterpreter call sites read the way spec.md names them.
func (t *Translator) UnicodeToMultibyte(u rune, out []byte) []byte {
	return utf8.AppendRune(out, u)
}

// UnicodeToPrinter is the Windows-style half: it encodes through the
// configured single-byte code page (default ISO-8859-1), the same
// transform.Bytes pattern stlalpha-vision3 uses for CP437.
func (t *Translator) UnicodeToPrinter(u rune) ([]byte, error) {
	enc := t.printerEnc.NewEncoder()
	out, _, err := transform.Bytes(enc, []byte(string(u)))
	return out, err
}

// LoadXTable loads a pr3287-style translation override file: each
// non-comment, non-blank line is "<ebcdic-hex> <unicode-hex>"; '#'
// starts a comment. Adopted verbatim from the format
// original_source/Common/pr3287/xtable.c reads (see SPEC_FULL.md §13).
func (t *Translator) LoadXTable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	table := make(map[byte]rune)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return fmt.Errorf("charset: xtable %s:%d: expected 2 fields, got %d", path, line, len(fields))
		}
		ebc, err := strconv.ParseUint(fields[0], 16, 8)
		if err != nil {
			return fmt.Errorf("charset: xtable %s:%d: bad ebcdic code: %w", path, line, err)
		}
		uni, err := strconv.ParseUint(fields[1], 16, 32)
		if err != nil {
			return fmt.Errorf("charset: xtable %s:%d: bad unicode code point: %w", path, line, err)
		}
		table[byte(ebc)] = rune(uni)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	t.xtable = table
	return nil
}
