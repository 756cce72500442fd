package wire

import (
	"encoding/binary"
	"fmt"
)

// GTP-U message types (TS 29.281) this UPF cares about; everything else is
// counted and dropped by the pipeline.
const (
	GTPUMsgEcho  uint8 = 1
	GTPUMsgGPDU  uint8 = 0xFF
)

// GTPUHeader is the decoded fixed + optional part of a GTP-U header.
type GTPUHeader struct {
	Version     uint8
	MessageType uint8
	Length      uint16
	TEID        uint32
}

// ParseGTPUHeader decodes the 8-byte mandatory header and, if any of
// E/S/PN is set, the following optional fields and extension header chain.
// It returns the header and the byte offset at which the payload starts.
func ParseGTPUHeader(data []byte) (GTPUHeader, int, error) {
	if len(data) < 8 {
		return GTPUHeader{}, 0, fmt.Errorf("wire: gtp-u header truncated: %d bytes", len(data))
	}

	flags := data[0]
	h := GTPUHeader{
		Version:     (flags >> 5) & 0x07,
		MessageType: data[1],
		Length:      binary.BigEndian.Uint16(data[2:4]),
		TEID:        binary.BigEndian.Uint32(data[4:8]),
	}

	offset := 8
	if flags&0x07 == 0 {
		return h, offset, nil
	}

	// E, S or PN set: 4 more bytes (seq number, N-PDU number, next ext type).
	if len(data) < offset+4 {
		return GTPUHeader{}, 0, fmt.Errorf("wire: gtp-u optional fields truncated")
	}
	nextExtType := data[offset+3]
	offset += 4

	for flags&0x04 != 0 && nextExtType != 0 {
		if offset >= len(data) {
			return GTPUHeader{}, 0, fmt.Errorf("wire: gtp-u extension header chain truncated")
		}
		extLen := int(data[offset]) * 4 // length field counts 4-byte units
		if extLen < 4 || offset+extLen > len(data) {
			return GTPUHeader{}, 0, fmt.Errorf("wire: gtp-u extension header length invalid")
		}
		nextExtType = data[offset+extLen-1]
		offset += extLen
	}

	return h, offset, nil
}

// BuildGPDUHeader returns a fresh 8-byte GTP-U header (no optional fields)
// carrying teid, for the given payload length.
func BuildGPDUHeader(teid uint32, payloadLen int) []byte {
	h := make([]byte, 8)
	h[0] = 0x30 // version 1, PT=1, no optional fields
	h[1] = GTPUMsgGPDU
	binary.BigEndian.PutUint16(h[2:4], uint16(payloadLen))
	binary.BigEndian.PutUint32(h[4:8], teid)
	return h
}
