package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksumUDPKnownPacket(t *testing.T) {
	// RFC 1071-style sanity check: a buffer with its own correct checksum
	// sums to 0xFFFF (all ones), so re-checking it in place yields 0.
	data := []byte{0x45, 0x00, 0x00, 0x1c, 0x00, 0x00, 0x40, 0x00, 0x40, 0x11}
	checksum := Checksum(data)

	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], checksum)
	verifyData := append(append([]byte{}, data...), buf[:]...)
	require.EqualValues(t, 0, Checksum(verifyData))
}

func TestChecksumAdjustMatchesFullRecompute(t *testing.T) {
	// A 20-byte IPv4 header with checksum zeroed, then filled in.
	hdr := []byte{
		0x45, 0x00, 0x00, 0x30, 0x1c, 0x46, 0x40, 0x00,
		0x40, 0x06, 0x00, 0x00, // checksum field zeroed at [10:12]
		10, 45, 0, 7,
		8, 8, 8, 8,
	}
	full := Checksum(hdr)
	binary.BigEndian.PutUint16(hdr[10:12], full)

	oldIP := []byte{10, 45, 0, 7}
	newIP := []byte{192, 0, 2, 1}

	adjusted := ChecksumAdjust(full, oldIP, newIP)

	rewritten := append([]byte{}, hdr...)
	copy(rewritten[12:16], newIP)
	binary.BigEndian.PutUint16(rewritten[10:12], 0)
	recomputed := Checksum(rewritten)

	require.Equal(t, recomputed, adjusted)
}

func TestChecksumAdjustNoOpWhenUnchanged(t *testing.T) {
	old := []byte{192, 168, 1, 1}
	require.Equal(t, uint16(0x1234), ChecksumAdjust(0x1234, old, old))
}
