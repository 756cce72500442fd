package wire

import (
	"encoding/binary"
	"fmt"
)

// PFCP message types (3GPP TS 29.244 table 7.2.1-1), the subset this UPF
// routes on.
const (
	MsgHeartbeatRequest            uint8 = 1
	MsgHeartbeatResponse           uint8 = 2
	MsgAssociationSetupRequest     uint8 = 5
	MsgAssociationSetupResponse    uint8 = 6
	MsgAssociationReleaseRequest   uint8 = 7
	MsgAssociationReleaseResponse  uint8 = 8
	MsgSessionEstablishmentRequest  uint8 = 50
	MsgSessionEstablishmentResponse uint8 = 51
	MsgSessionModificationRequest   uint8 = 52
	MsgSessionModificationResponse  uint8 = 53
	MsgSessionDeletionRequest       uint8 = 54
	MsgSessionDeletionResponse      uint8 = 55
)

// Cause values (TS 29.244 table 8.2.1-1) used by this UPF.
const (
	CauseRequestAccepted        uint8 = 1
	CauseMandatoryIEMissing     uint8 = 64
	CauseSessionContextNotFound uint8 = 69
	CauseNoResourcesAvailable   uint8 = 72
	CauseNoEstablishedPFCPAssoc uint8 = 73
)

// IE type codes this UPF recognizes (§6); all others are skipped by their
// declared length.
const (
	IENodeID                uint16 = 60
	IERecoveryTimeStamp     uint16 = 96
	IECause                 uint16 = 19
	IEFSEID                 uint16 = 57
	IEFTEID                 uint16 = 21
	IEPDRID                 uint16 = 56
	IEPrecedence            uint16 = 29
	IEPDI                   uint16 = 2
	IESourceInterface       uint16 = 20
	IEDestinationInterface  uint16 = 42
	IEApplyAction           uint16 = 44
	IECreatePDR             uint16 = 1
	IECreateFAR             uint16 = 3
	IECreateQER             uint16 = 7
	IEUpdateQER             uint16 = 13
	IEForwardingParameters  uint16 = 4
	IEOuterHeaderCreation   uint16 = 84
	IEGateStatus            uint16 = 25
	IEMBR                   uint16 = 26
	IEGBR                   uint16 = 27
	IEQFI                   uint16 = 124
	IEFARID                 uint16 = 108
	IEQERID                 uint16 = 109
)

// Header is the decoded PFCP message header.
type Header struct {
	Version        uint8
	HasSEID        bool
	MessageType    uint8
	MessageLength  uint16
	SEID           uint64
	SequenceNumber uint32
}

// DecodeHeader parses the fixed PFCP header and returns the header plus the
// offset of the first IE in data.
func DecodeHeader(data []byte) (Header, int, error) {
	if len(data) < 4 {
		return Header{}, 0, fmt.Errorf("wire: pfcp header truncated: %d bytes", len(data))
	}

	flags := data[0]
	h := Header{
		Version:       (flags >> 5) & 0x07,
		HasSEID:       flags&0x01 != 0,
		MessageType:   data[1],
		MessageLength: binary.BigEndian.Uint16(data[2:4]),
	}

	offset := 4
	if h.HasSEID {
		if len(data) < offset+8+4 {
			return Header{}, 0, fmt.Errorf("wire: pfcp header truncated: seid/seq")
		}
		h.SEID = binary.BigEndian.Uint64(data[offset : offset+8])
		offset += 8
	} else if len(data) < offset+4 {
		return Header{}, 0, fmt.Errorf("wire: pfcp header truncated: seq")
	}

	// Sequence number is 3 bytes followed by one spare byte.
	h.SequenceNumber = uint32(data[offset])<<16 | uint32(data[offset+1])<<8 | uint32(data[offset+2])
	offset += 4

	return h, offset, nil
}

// Encoder builds a PFCP message: a header with a placeholder length,
// followed by IEs, finished with a back-patched length field per §4.3's
// response encoding procedure.
type Encoder struct {
	buf []byte
}

// NewEncoder starts a new message. If seid is non-nil the S-bit is set and
// the SEID occupies the header.
func NewEncoder(msgType uint8, seid *uint64, seq uint32) *Encoder {
	e := &Encoder{}
	flags := byte(1 << 5) // version 1
	if seid != nil {
		flags |= 0x01
	}
	e.buf = append(e.buf, flags, msgType, 0, 0) // length placeholder at [2:4]

	if seid != nil {
		var seidBuf [8]byte
		binary.BigEndian.PutUint64(seidBuf[:], *seid)
		e.buf = append(e.buf, seidBuf[:]...)
	}

	e.buf = append(e.buf,
		byte(seq>>16), byte(seq>>8), byte(seq), 0, // seq (3 bytes) + spare
	)
	return e
}

// PutIE appends a TLV information element. Grouped IEs are encoded the same
// way — value is the already-encoded inner IE stream.
func (e *Encoder) PutIE(ieType uint16, value []byte) *Encoder {
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], ieType)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(value)))
	e.buf = append(e.buf, hdr[:]...)
	e.buf = append(e.buf, value...)
	return e
}

// Finish back-patches the message length field and returns the complete
// message. Length counts all bytes following the length field itself.
func (e *Encoder) Finish() []byte {
	binary.BigEndian.PutUint16(e.buf[2:4], uint16(len(e.buf)-4))
	return e.buf
}

// IE is a decoded information element: its type and raw value bytes.
type IE struct {
	Type  uint16
	Value []byte
}

// DecodeIEs iterates the TLV stream in data, returning every IE it can
// fully read. Per §7, a truncated trailing IE stops parsing at that point
// instead of failing the whole decode — whatever IEs were read so far are
// returned. Grouped IEs are not recursed into here; callers that know an IE
// is grouped call DecodeIEs again on its Value.
func DecodeIEs(data []byte) []IE {
	var ies []IE
	offset := 0
	for offset+4 <= len(data) {
		ieType := binary.BigEndian.Uint16(data[offset : offset+2])
		length := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+length > len(data) {
			// Truncated value: stop parsing this IE stream.
			break
		}

		ies = append(ies, IE{Type: ieType, Value: data[offset : offset+length]})
		offset += length
	}
	return ies
}

// FindIE returns the first IE of the given type, if present.
func FindIE(ies []IE, ieType uint16) (IE, bool) {
	for _, ie := range ies {
		if ie.Type == ieType {
			return ie, true
		}
	}
	return IE{}, false
}

// FindAllIEs returns every IE of the given type, in order.
func FindAllIEs(ies []IE, ieType uint16) []IE {
	var out []IE
	for _, ie := range ies {
		if ie.Type == ieType {
			out = append(out, ie)
		}
	}
	return out
}
