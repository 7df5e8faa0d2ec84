package ds

import "github.com/racingmars/pr3287/perr"

// addrCodes is the 3270 buffer-address 6-bit code table: the forward
// (address-nibble to on-wire byte) direction, adapted from
// racingmars-go3270's screen.go `codes` table, itself sourced from the
// well-known 3270 I/O code table. addrDecode is built as its reverse
// at init time, generalizing the teacher's encode-only getpos/sba into
// the decode direction the printer core actually needs (it never
// originates SBA orders, only interprets them).
var addrCodes = []byte{
	0x40, 0xc1, 0xc2, 0xc3, 0xc4, 0xc5, 0xc6, 0xc7, 0xc8,
	0xc9, 0x4a, 0x4b, 0x4c, 0x4d, 0x4e, 0x4f, 0x50, 0xd1, 0xd2, 0xd3, 0xd4,
	0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0x5a, 0x5b, 0x5c, 0x5d, 0x5e, 0x5f, 0x60,
	0x61, 0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0x6a, 0x6b, 0x6c,
	0x6d, 0x6e, 0x6f, 0xf0, 0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
	0xf9, 0x7a, 0x7b, 0x7c, 0x7d, 0x7e, 0x7f,
}

const addrUnmapped = 0xFF

var addrDecode [256]byte

func init() {
	for i := range addrDecode {
		addrDecode[i] = addrUnmapped
	}
	for sixbit, wire := range addrCodes {
		addrDecode[wire] = byte(sixbit)
	}
}

// DecodeAddr decodes a 2-byte 3270 buffer address per spec.md §4.2:
// the two high bits of b0 select 14-bit addressing (00) or 12-bit
// coded addressing (01 or 11, and also 10 -- real controllers only
// ever send 00/01/11, but nothing stops a malformed stream using 10,
// which this treats the same as 01/11 rather than rejecting it
// outright).
func DecodeAddr(b0, b1 byte) (int, error) {
	if b0>>6 == 0 {
		return int(b0&0x3F)<<8 | int(b1), nil
	}
	hi := addrDecode[b0]
	lo := addrDecode[b1]
	if hi == addrUnmapped || lo == addrUnmapped {
		return 0, &perr.ProtocolViolation{Kind: perr.BadAddr, Msg: "unmapped buffer address byte"}
	}
	return int(hi)<<6 | int(lo), nil
}

// EncodeAddr12 encodes addr (which must fit in 12 bits) using the
// coded-address table, the inverse of DecodeAddr's 12-bit path.
// Nothing in the printer core calls it (SfEngine's Query Replies carry
// no coded addresses); it is kept here alongside DecodeAddr since both
// sides of the table live together in the teacher.
func EncodeAddr12(addr int) (byte, byte) {
	hi := addrCodes[(addr>>6)&0x3F]
	lo := addrCodes[addr&0x3F]
	return hi, lo
}
