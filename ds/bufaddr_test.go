package ds

import "testing"

func TestEncodeAddr12(t *testing.T) {
	hi, lo := EncodeAddr12(0)
	if hi != 0x40 || lo != 0x40 {
		t.Errorf("address 0 encoded to %02x %02x, want 40 40", hi, lo)
	}

	hi, lo = EncodeAddr12(919)
	if hi != 0x4e || lo != 0xd7 {
		t.Errorf("address 919 encoded to %02x %02x, want 4e d7", hi, lo)
	}
}

func TestDecodeAddr12Bit(t *testing.T) {
	addr, err := DecodeAddr(0x40, 0x40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0 {
		t.Errorf("got %d, want 0", addr)
	}

	addr, err = DecodeAddr(0x4e, 0xd7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 919 {
		t.Errorf("got %d, want 919", addr)
	}
}

func TestDecodeAddr14Bit(t *testing.T) {
	// Top two bits of b0 are 00: the remaining 14 bits are the address
	// verbatim rather than coded.
	addr, err := DecodeAddr(0x00, 0xFF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0xFF {
		t.Errorf("got %d, want 255", addr)
	}
}

func TestDecodeAddrUnmapped(t *testing.T) {
	if _, err := DecodeAddr(0xFF, 0xFF); err == nil {
		t.Fatal("expected an error for an unmapped coded-address byte")
	}
}
