package telnet

import "fmt"

// Header is the 5-byte TN3270E header prefixing every DATA/RESPONSE/
// REQUEST record in TN3270E submode (spec.md §6): data_type(1) |
// request_flag(1) | response_flag(1) | seq_hi(1) | seq_lo(1).
type Header struct {
	DataType     DataType
	RequestFlag  byte
	ResponseFlag byte
	Seq          uint16
}

const headerLen = 5

func (h Header) Marshal() []byte {
	return []byte{
		byte(h.DataType),
		h.RequestFlag,
		h.ResponseFlag,
		byte(h.Seq >> 8),
		byte(h.Seq),
	}
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < headerLen {
		return Header{}, fmt.Errorf("telnet: short TN3270E header (%d bytes)", len(b))
	}
	return Header{
		DataType:     DataType(b[0]),
		RequestFlag:  b[1],
		ResponseFlag: b[2],
		Seq:          uint16(b[3])<<8 | uint16(b[4]),
	}, nil
}
