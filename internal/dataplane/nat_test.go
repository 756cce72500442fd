package dataplane

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/ngfabric/upf/internal/wire"
	"github.com/stretchr/testify/require"
)

// buildUDPPacket constructs a minimal IPv4/UDP packet with a correct UDP
// checksum (pseudo-header + header + payload) and a correct IP checksum.
func buildUDPPacket(t *testing.T, srcIP, dstIP net.IP, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	udpLen := 8 + len(payload)
	totalLen := 20 + udpLen

	pkt := make([]byte, totalLen)
	pkt[0] = 0x45 // version 4, ihl 5
	binary.BigEndian.PutUint16(pkt[2:4], uint16(totalLen))
	pkt[8] = 64   // ttl
	pkt[9] = 17   // udp
	copy(pkt[12:16], srcIP.To4())
	copy(pkt[16:20], dstIP.To4())

	udp := pkt[20:]
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpLen))
	copy(udp[8:], payload)

	ipChecksum := wire.Checksum(pkt[:20])
	binary.BigEndian.PutUint16(pkt[10:12], ipChecksum)

	pseudo := make([]byte, 12+udpLen)
	copy(pseudo[0:4], srcIP.To4())
	copy(pseudo[4:8], dstIP.To4())
	pseudo[9] = 17
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(udpLen))
	copy(pseudo[12:], udp)
	udpChecksum := wire.Checksum(pseudo)
	if udpChecksum == 0 {
		udpChecksum = 0xffff
	}
	binary.BigEndian.PutUint16(udp[6:8], udpChecksum)

	return pkt
}

func verifyIPChecksum(t *testing.T, pkt []byte) {
	t.Helper()
	ihl := int(pkt[0]&0x0f) * 4
	// A header carrying a correct checksum sums to 0xffff, so Checksum
	// (the complement of that sum) is 0.
	require.EqualValues(t, 0, wire.Checksum(pkt[:ihl]))
}

func verifyUDPChecksum(t *testing.T, pkt []byte) {
	t.Helper()
	srcIP := net.IP(pkt[12:16])
	dstIP := net.IP(pkt[16:20])
	udp := pkt[20:]
	udpLen := len(udp)

	pseudo := make([]byte, 12+udpLen)
	copy(pseudo[0:4], srcIP.To4())
	copy(pseudo[4:8], dstIP.To4())
	pseudo[9] = 17
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(udpLen))
	copy(pseudo[12:], udp)

	require.EqualValues(t, 0, wire.Checksum(pseudo))
}

// S5 — SNAT round-trip.
func TestSNATRoundTripChecksumsVerify(t *testing.T) {
	pkt := buildUDPPacket(t, net.IPv4(10, 45, 0, 7), net.IPv4(8, 8, 8, 8), 41234, 53, []byte("hello"))
	origDst := append([]byte(nil), pkt[16:20]...)

	err := SNAT(pkt, NATConfig{PublicIP: net.IPv4(192, 0, 2, 1), PublicPort: 55555})
	require.NoError(t, err)

	verifyIPChecksum(t, pkt)
	verifyUDPChecksum(t, pkt)

	require.Equal(t, net.IPv4(192, 0, 2, 1).To4(), net.IP(pkt[12:16]).To4())
	require.Equal(t, uint16(55555), binary.BigEndian.Uint16(pkt[20:22]))
	require.Equal(t, origDst, pkt[16:20], "destination must be unchanged by SNAT")
}

func TestDNATRewritesDestinationOnly(t *testing.T) {
	pkt := buildUDPPacket(t, net.IPv4(192, 0, 2, 1), net.IPv4(203, 0, 113, 5), 55555, 9000, []byte("x"))
	origSrc := append([]byte(nil), pkt[12:16]...)

	err := DNAT(pkt, net.IPv4(10, 45, 0, 7), 41234)
	require.NoError(t, err)

	verifyIPChecksum(t, pkt)
	verifyUDPChecksum(t, pkt)
	require.Equal(t, origSrc, pkt[12:16])
	require.Equal(t, uint16(41234), binary.BigEndian.Uint16(pkt[22:24]))
}

func TestNATLeavesZeroUDPChecksumUntouched(t *testing.T) {
	pkt := buildUDPPacket(t, net.IPv4(10, 45, 0, 7), net.IPv4(8, 8, 8, 8), 41234, 53, []byte("x"))
	pkt[20+6] = 0
	pkt[20+7] = 0

	require.NoError(t, SNAT(pkt, NATConfig{PublicIP: net.IPv4(192, 0, 2, 1), PublicPort: 1}))
	require.Equal(t, byte(0), pkt[20+6])
	require.Equal(t, byte(0), pkt[20+7])
}

func TestNATRejectsNonIPv4(t *testing.T) {
	pkt := make([]byte, 20)
	pkt[0] = 0x60 // version 6
	err := SNAT(pkt, NATConfig{PublicIP: net.IPv4(1, 2, 3, 4), PublicPort: 1})
	require.Error(t, err)
}

func TestNATRejectsShortPacket(t *testing.T) {
	err := SNAT(make([]byte, 10), NATConfig{PublicIP: net.IPv4(1, 2, 3, 4), PublicPort: 1})
	require.Error(t, err)
}

func TestPortTableAllocatesDistinctPortsPerFlow(t *testing.T) {
	table := NewPortTable(40000, 40001)

	pkt1 := buildUDPPacket(t, net.IPv4(10, 45, 0, 7), net.IPv4(8, 8, 8, 8), 41234, 53, []byte("a"))
	pkt2 := buildUDPPacket(t, net.IPv4(10, 45, 0, 8), net.IPv4(8, 8, 8, 8), 41234, 53, []byte("b"))

	require.NoError(t, table.SNAT(pkt1, net.IPv4(192, 0, 2, 1)))
	require.NoError(t, table.SNAT(pkt2, net.IPv4(192, 0, 2, 1)))

	port1 := binary.BigEndian.Uint16(pkt1[20:22])
	port2 := binary.BigEndian.Uint16(pkt2[20:22])
	require.NotEqual(t, port1, port2, "distinct internal flows must get distinct public ports")
}

func TestPortTableReusesPortForSameFlow(t *testing.T) {
	table := NewPortTable(40000, 40010)

	pkt1 := buildUDPPacket(t, net.IPv4(10, 45, 0, 7), net.IPv4(8, 8, 8, 8), 41234, 53, []byte("a"))
	pkt2 := buildUDPPacket(t, net.IPv4(10, 45, 0, 7), net.IPv4(1, 1, 1, 1), 41234, 80, []byte("b"))

	require.NoError(t, table.SNAT(pkt1, net.IPv4(192, 0, 2, 1)))
	require.NoError(t, table.SNAT(pkt2, net.IPv4(192, 0, 2, 1)))

	port1 := binary.BigEndian.Uint16(pkt1[20:22])
	port2 := binary.BigEndian.Uint16(pkt2[20:22])
	require.Equal(t, port1, port2, "same internal (proto, ip, port) flow must keep its allocated public port")
}

func TestPortTableExhaustionErrors(t *testing.T) {
	table := NewPortTable(40000, 40000)

	pkt1 := buildUDPPacket(t, net.IPv4(10, 45, 0, 7), net.IPv4(8, 8, 8, 8), 1, 53, []byte("a"))
	pkt2 := buildUDPPacket(t, net.IPv4(10, 45, 0, 8), net.IPv4(8, 8, 8, 8), 1, 53, []byte("b"))

	require.NoError(t, table.SNAT(pkt1, net.IPv4(192, 0, 2, 1)))
	require.ErrorIs(t, table.SNAT(pkt2, net.IPv4(192, 0, 2, 1)), ErrPortRangeExhausted)
}

func TestPortTableDNATRecoversOriginalInternalEndpoint(t *testing.T) {
	table := NewPortTable(40000, 40010)

	uplink := buildUDPPacket(t, net.IPv4(10, 45, 0, 7), net.IPv4(8, 8, 8, 8), 41234, 53, []byte("req"))
	require.NoError(t, table.SNAT(uplink, net.IPv4(192, 0, 2, 1)))
	publicPort := binary.BigEndian.Uint16(uplink[20:22])

	downlink := buildUDPPacket(t, net.IPv4(8, 8, 8, 8), net.IPv4(192, 0, 2, 1), 53, publicPort, []byte("resp"))
	require.NoError(t, table.DNAT(downlink))

	verifyIPChecksum(t, downlink)
	verifyUDPChecksum(t, downlink)
	require.Equal(t, net.IPv4(10, 45, 0, 7).To4(), net.IP(downlink[16:20]).To4())
	require.Equal(t, uint16(41234), binary.BigEndian.Uint16(downlink[22:24]))
}

func TestPortTableDNATRejectsUnmappedPort(t *testing.T) {
	table := NewPortTable(40000, 40010)
	downlink := buildUDPPacket(t, net.IPv4(8, 8, 8, 8), net.IPv4(192, 0, 2, 1), 53, 40005, []byte("x"))
	require.Error(t, table.DNAT(downlink))
}

func TestNATOnlyAdjustsIPChecksumForNonTCPUDP(t *testing.T) {
	pkt := make([]byte, 24)
	pkt[0] = 0x45
	binary.BigEndian.PutUint16(pkt[2:4], 24)
	pkt[9] = 1 // ICMP
	copy(pkt[12:16], net.IPv4(10, 45, 0, 7).To4())
	copy(pkt[16:20], net.IPv4(8, 8, 8, 8).To4())
	ipChecksum := wire.Checksum(pkt[:20])
	binary.BigEndian.PutUint16(pkt[10:12], ipChecksum)

	require.NoError(t, SNAT(pkt, NATConfig{PublicIP: net.IPv4(192, 0, 2, 1), PublicPort: 1}))
	verifyIPChecksum(t, pkt)
}
