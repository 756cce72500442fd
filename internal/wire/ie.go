package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// NodeID is the subset this UPF needs: an IPv4 address node identifier
// (type-byte 0x00, per TS 29.244 8.2.38).
func EncodeNodeID(ipv4 [4]byte) []byte {
	v := make([]byte, 5)
	v[0] = 0x00
	copy(v[1:], ipv4[:])
	return v
}

func DecodeNodeID(v []byte) (net.IP, error) {
	if len(v) < 5 {
		return nil, fmt.Errorf("wire: node id too short: %d bytes", len(v))
	}
	if v[0] != 0x00 {
		return nil, fmt.Errorf("wire: unsupported node id type %d", v[0])
	}
	return net.IP(append([]byte(nil), v[1:5]...)), nil
}

func EncodeRecoveryTimeStamp(ts uint32) []byte {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, ts)
	return v
}

func DecodeRecoveryTimeStamp(v []byte) (uint32, error) {
	if len(v) < 4 {
		return 0, fmt.Errorf("wire: recovery timestamp too short: %d bytes", len(v))
	}
	return binary.BigEndian.Uint32(v[:4]), nil
}

func EncodeCause(cause uint8) []byte {
	return []byte{cause}
}

func DecodeCause(v []byte) (uint8, error) {
	if len(v) < 1 {
		return 0, fmt.Errorf("wire: cause too short")
	}
	return v[0], nil
}

// FSEID carries the flags byte (V4 bit set), the 64-bit SEID and an IPv4
// address. IPv6 is out of scope (§1 non-goals).
type FSEID struct {
	SEID uint64
	IPv4 net.IP
}

func EncodeFSEID(f FSEID) []byte {
	v := make([]byte, 13)
	v[0] = 0x02 // V4 flag
	binary.BigEndian.PutUint64(v[1:9], f.SEID)
	copy(v[9:13], f.IPv4.To4())
	return v
}

func DecodeFSEID(v []byte) (FSEID, error) {
	if len(v) < 13 {
		return FSEID{}, fmt.Errorf("wire: f-seid too short: %d bytes", len(v))
	}
	return FSEID{
		SEID: binary.BigEndian.Uint64(v[1:9]),
		IPv4: net.IP(append([]byte(nil), v[9:13]...)),
	}, nil
}

// FTEID carries the CH (choose) flag, a TEID and an IPv4 address.
type FTEID struct {
	Choose bool
	TEID   uint32
	IPv4   net.IP
}

func EncodeFTEID(f FTEID) []byte {
	v := make([]byte, 9)
	flags := byte(0x01) // V4
	if f.Choose {
		flags |= 0x04 // CH
	}
	v[0] = flags
	binary.BigEndian.PutUint32(v[1:5], f.TEID)
	copy(v[5:9], f.IPv4.To4())
	return v
}

func DecodeFTEID(v []byte) (FTEID, error) {
	if len(v) < 5 {
		return FTEID{}, fmt.Errorf("wire: f-teid too short: %d bytes", len(v))
	}
	f := FTEID{
		Choose: v[0]&0x04 != 0,
		TEID:   binary.BigEndian.Uint32(v[1:5]),
	}
	if len(v) >= 9 {
		f.IPv4 = net.IP(append([]byte(nil), v[5:9]...))
	}
	return f, nil
}

func EncodePDRID(id uint16) []byte {
	v := make([]byte, 2)
	binary.BigEndian.PutUint16(v, id)
	return v
}

func DecodePDRID(v []byte) (uint16, error) {
	if len(v) < 2 {
		return 0, fmt.Errorf("wire: pdr id too short")
	}
	return binary.BigEndian.Uint16(v[:2]), nil
}

func EncodePrecedence(p uint32) []byte {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, p)
	return v
}

func DecodePrecedence(v []byte) (uint32, error) {
	if len(v) < 4 {
		return 0, fmt.Errorf("wire: precedence too short")
	}
	return binary.BigEndian.Uint32(v[:4]), nil
}

func EncodeSourceInterface(i uint8) []byte  { return []byte{i} }
func DecodeSourceInterface(v []byte) (uint8, error) {
	if len(v) < 1 {
		return 0, fmt.Errorf("wire: source interface too short")
	}
	return v[0], nil
}

func EncodeDestinationInterface(i uint8) []byte { return []byte{i} }
func DecodeDestinationInterface(v []byte) (uint8, error) {
	if len(v) < 1 {
		return 0, fmt.Errorf("wire: destination interface too short")
	}
	return v[0], nil
}

func EncodeFARID(id uint16) []byte {
	v := make([]byte, 2)
	binary.BigEndian.PutUint16(v, id)
	return v
}

func DecodeFARID(v []byte) (uint16, error) {
	if len(v) < 2 {
		return 0, fmt.Errorf("wire: far id too short")
	}
	return binary.BigEndian.Uint16(v[:2]), nil
}

func EncodeQERID(id uint16) []byte {
	v := make([]byte, 2)
	binary.BigEndian.PutUint16(v, id)
	return v
}

func DecodeQERID(v []byte) (uint16, error) {
	if len(v) < 2 {
		return 0, fmt.Errorf("wire: qer id too short")
	}
	return binary.BigEndian.Uint16(v[:2]), nil
}

// ApplyAction bit flags (§4.1): bit0 DROP, bit1 FORW, bit2 BUFF.
const (
	ApplyActionDrop    uint8 = 1 << 0
	ApplyActionForward uint8 = 1 << 1
	ApplyActionBuffer  uint8 = 1 << 2
)

func EncodeApplyAction(flags uint8) []byte { return []byte{flags} }
func DecodeApplyAction(v []byte) (uint8, error) {
	if len(v) < 1 {
		return 0, fmt.Errorf("wire: apply action too short")
	}
	return v[0], nil
}

// GateStatus: one byte, bits 0-1 UL gate, bits 2-3 DL gate. 0 = open.
func EncodeGateStatus(ulClosed, dlClosed bool) []byte {
	var v byte
	if ulClosed {
		v |= 0x01
	}
	if dlClosed {
		v |= 0x04
	}
	return []byte{v}
}

func DecodeGateStatus(v []byte) (ulClosed, dlClosed bool, err error) {
	if len(v) < 1 {
		return false, false, fmt.Errorf("wire: gate status too short")
	}
	return v[0]&0x03 != 0, v[0]&0x0c != 0, nil
}

// MBR/GBR: 5-byte big-endian uplink kbps, 5-byte big-endian downlink kbps.
// The codec reports bits/sec.
func encodeRate40(v []byte, kbps uint64) {
	v[0] = byte(kbps >> 32)
	v[1] = byte(kbps >> 24)
	v[2] = byte(kbps >> 16)
	v[3] = byte(kbps >> 8)
	v[4] = byte(kbps)
}

func decodeRate40(v []byte) uint64 {
	return uint64(v[0])<<32 | uint64(v[1])<<24 | uint64(v[2])<<16 | uint64(v[3])<<8 | uint64(v[4])
}

func EncodeMBR(ulBps, dlBps uint64) []byte {
	v := make([]byte, 10)
	encodeRate40(v[0:5], ulBps/1000)
	encodeRate40(v[5:10], dlBps/1000)
	return v
}

func DecodeMBR(v []byte) (ulBps, dlBps uint64, err error) {
	if len(v) < 10 {
		return 0, 0, fmt.Errorf("wire: mbr too short: %d bytes", len(v))
	}
	return decodeRate40(v[0:5]) * 1000, decodeRate40(v[5:10]) * 1000, nil
}

func EncodeGBR(ulBps, dlBps uint64) []byte { return EncodeMBR(ulBps, dlBps) }
func DecodeGBR(v []byte) (ulBps, dlBps uint64, err error) { return DecodeMBR(v) }

func EncodeQFI(qfi uint8) []byte { return []byte{qfi & 0x3f} }
func DecodeQFI(v []byte) (uint8, error) {
	if len(v) < 1 {
		return 0, fmt.Errorf("wire: qfi too short")
	}
	return v[0] & 0x3f, nil
}

// OuterHeaderCreation: 2-byte description, 4-byte TEID, 4-byte IPv4.
func EncodeOuterHeaderCreation(teid uint32, ipv4 [4]byte) []byte {
	v := make([]byte, 10)
	binary.BigEndian.PutUint16(v[0:2], 0x0100) // GTP-U/UDP/IPv4
	binary.BigEndian.PutUint32(v[2:6], teid)
	copy(v[6:10], ipv4[:])
	return v
}

func DecodeOuterHeaderCreation(v []byte) (teid uint32, ipv4 [4]byte, err error) {
	if len(v) < 10 {
		return 0, ipv4, fmt.Errorf("wire: outer header creation too short: %d bytes", len(v))
	}
	teid = binary.BigEndian.Uint32(v[2:6])
	copy(ipv4[:], v[6:10])
	return teid, ipv4, nil
}
