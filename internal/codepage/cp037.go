package codepage

// Codepage037 implements the IBM CP 037 code page (US/Canada EBCDIC),
// pr3287's historical default. Laid out in the same e2u/u2e table
// shape that generate/generate.go emits for the go3270 codepages, but
// hand-built from the published CP037 mapping rather than generated
// from a UCM file, since this core ships a single default code page
// rather than the full go3270 set (see SPEC_FULL.md's domain-stack
// rationale).
var Codepage037 = &Codepage{
	ID:   "037",
	ESub: 0x3F,
	GE:   0x08,
	GE2U: cp310ToUnicode,
	U2GE: unicodeToCP310,
}

func init() {
	// Control codes 0x00-0x3F mostly pass straight through as C0
	// controls; only a handful of positions differ from their ASCII
	// ordinal, which is why this is built programmatically instead of
	// as a byte-for-byte literal.
	e2u := make([]rune, 256)
	u2e := make([]byte, 256)
	for i := range e2u {
		e2u[i] = 0xFFFD
	}

	set := func(ebc byte, uni rune) {
		e2u[ebc] = uni
		if int(uni) < 256 {
			u2e[uni] = ebc
		}
	}

	// C0 controls that map straight across.
	straight := []byte{0x00, 0x01, 0x02, 0x03, 0x37, 0x2D, 0x2E, 0x2F,
		0x16, 0x05, 0x25, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
		0x10, 0x11, 0x12, 0x13, 0x3C, 0x3D, 0x32, 0x26,
		0x18, 0x19, 0x3F, 0x27, 0x1C, 0x1D, 0x1E, 0x1F}
	for i, ebc := range straight {
		set(ebc, rune(i))
	}
	set(0x0A, 0x15) // RPT
	set(0x04, 0x9C) // SEL
	set(0x14, 0x9D)
	set(0x15, 0x0A) // NL -> LF
	set(0x1A, 0x08)
	set(0x24, 0x9F)
	set(0x28, 0x98)
	set(0x29, 0x99)
	set(0x2A, 0xA0)
	set(0x2B, 0x87)
	set(0x2C, 0x8A)
	set(0x30, 0x9A)
	set(0x31, 0x9B)
	set(0x33, 0x9E)
	set(0x34, 0x1B)
	set(0x35, 0x9C)
	set(0x36, 0x1E)
	set(0x38, 0x8D)
	set(0x39, 0x8E)
	set(0x3A, 0x8F)
	set(0x3B, 0x80)

	set(0x40, ' ')
	set(0x4A, 0xA2) // cent
	set(0x4B, '.')
	set(0x4C, '<')
	set(0x4D, '(')
	set(0x4E, '+')
	set(0x4F, '|')
	set(0x50, '&')
	set(0x5A, '!')
	set(0x5B, '$')
	set(0x5C, '*')
	set(0x5D, ')')
	set(0x5E, ';')
	set(0x5F, 0xAC) // not sign
	set(0x60, '-')
	set(0x61, '/')
	set(0x6A, 0xA6) // broken bar
	set(0x6B, ',')
	set(0x6C, '%')
	set(0x6D, '_')
	set(0x6E, '>')
	set(0x6F, '?')
	set(0x79, '`')
	set(0x7A, ':')
	set(0x7B, '#')
	set(0x7C, '@')
	set(0x7D, '\'')
	set(0x7E, '=')
	set(0x7F, '"')

	lower := "abcdefghi"
	for i, c := range lower[:9] {
		set(byte(0x81+i), c)
	}
	for i, c := range "jklmnopqr" {
		set(byte(0x91+i), c)
	}
	for i, c := range "stuvwxyz" {
		set(byte(0xA2+i), c)
	}
	set(0x9F, 0x00B1) // plus/minus

	upper := "ABCDEFGHI"
	for i, c := range upper {
		set(byte(0xC1+i), c)
	}
	for i, c := range "JKLMNOPQR" {
		set(byte(0xD1+i), c)
	}
	for i, c := range "STUVWXYZ" {
		set(byte(0xE2+i), c)
	}

	for i := 0; i < 10; i++ {
		set(byte(0xF0+i), rune('0'+i))
	}

	Codepage037.E2U = e2u
	Codepage037.U2E = u2e
}
