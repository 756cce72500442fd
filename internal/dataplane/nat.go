package dataplane

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/ngfabric/upf/internal/wire"
)

const (
	protoTCP = 6
	protoUDP = 17
)

// NATConfig holds the SNAT public address and allocatable port range this
// UPF rewrites uplink traffic to (§4.6). PublicPort is the fixed port the
// raw SNAT primitive writes; NewPool also uses it as a one-port allocation
// range when PortRangeLo and PortRangeHi are both zero.
type NATConfig struct {
	PublicIP    net.IP
	PublicPort  uint16
	PortRangeLo uint16
	PortRangeHi uint16
}

// SNAT rewrites pkt's source IP/port to cfg's public address and port in
// place and fixes up the IP and, for TCP/UDP, transport checksums
// incrementally (§4.6, P3, S5). It returns an error if pkt fails a
// precondition check. This is the primitive the spec's port-rewrite property
// tests exercise directly; PortTable.SNAT wraps it with per-flow port
// allocation and a reverse mapping for DNAT.
func SNAT(pkt []byte, cfg NATConfig) error {
	return rewriteIPv4(pkt, cfg.PublicIP, cfg.PublicPort, true)
}

// DNAT is SNAT's mirror image for downlink: it rewrites the destination
// IP/port instead of the source.
func DNAT(pkt []byte, dstIP net.IP, dstPort uint16) error {
	return rewriteIPv4(pkt, dstIP, dstPort, false)
}

// rewriteIPv4 rewrites either the source (source=true, SNAT/uplink) or
// destination (source=false, DNAT/downlink) IP and L4 port of an IPv4
// packet, updating checksums incrementally.
func rewriteIPv4(pkt []byte, newIP net.IP, newPort uint16, source bool) error {
	if len(pkt) < 20 {
		return fmt.Errorf("dataplane: nat: packet too short for ipv4 header: %d bytes", len(pkt))
	}
	if pkt[0]>>4 != 4 {
		return fmt.Errorf("dataplane: nat: not ipv4 (version %d)", pkt[0]>>4)
	}
	ihl := int(pkt[0]&0x0f) * 4
	if ihl < 20 || ihl > len(pkt) {
		return fmt.Errorf("dataplane: nat: invalid ihl %d for packet length %d", ihl, len(pkt))
	}

	proto := pkt[9]
	newIP4 := newIP.To4()
	if newIP4 == nil {
		return fmt.Errorf("dataplane: nat: new address is not ipv4")
	}

	var ipOffset int
	if source {
		ipOffset = 12
	} else {
		ipOffset = 16
	}
	oldIP := append([]byte(nil), pkt[ipOffset:ipOffset+4]...)

	ipChecksum := binary.BigEndian.Uint16(pkt[10:12])
	ipChecksum = wire.ChecksumAdjust(ipChecksum, oldIP, newIP4)
	copy(pkt[ipOffset:ipOffset+4], newIP4)
	binary.BigEndian.PutUint16(pkt[10:12], ipChecksum)

	if proto != protoTCP && proto != protoUDP {
		return nil
	}

	l4 := pkt[ihl:]
	if len(l4) < 8 {
		return fmt.Errorf("dataplane: nat: transport header missing for proto %d", proto)
	}

	var portOffset, checksumOffset int
	if source {
		portOffset = 0
	} else {
		portOffset = 2
	}
	if proto == protoTCP {
		checksumOffset = 16
	} else {
		checksumOffset = 6
	}
	if len(l4) < checksumOffset+2 {
		return fmt.Errorf("dataplane: nat: transport header truncated for proto %d", proto)
	}

	oldPort := append([]byte(nil), l4[portOffset:portOffset+2]...)
	var newPortBytes [2]byte
	binary.BigEndian.PutUint16(newPortBytes[:], newPort)

	existing := binary.BigEndian.Uint16(l4[checksumOffset : checksumOffset+2])
	if proto == protoUDP && existing == 0 {
		// UDP checksum is optional; value 0 means "not computed" and must
		// stay untouched (§4.6).
		copy(l4[portOffset:portOffset+2], newPortBytes[:])
		return nil
	}

	l4Checksum := wire.ChecksumAdjust(existing, oldIP, newIP4)
	l4Checksum = wire.ChecksumAdjust(l4Checksum, oldPort, newPortBytes[:])
	copy(l4[portOffset:portOffset+2], newPortBytes[:])
	binary.BigEndian.PutUint16(l4[checksumOffset:checksumOffset+2], l4Checksum)

	return nil
}

// flowKey identifies one internal (UE-side) flow by protocol, address and
// port, the lookup key PortTable maps to an allocated public port.
type flowKey struct {
	proto byte
	ip    [4]byte
	port  uint16
}

// natEntry is the reverse-mapping value recovered on the downlink DNAT path.
type natEntry struct {
	proto byte
	ip    net.IP
	port  uint16
}

// PortTable allocates public L4 ports out of a fixed range for SNAT's
// uplink rewrite and remembers the mapping so a later downlink packet
// addressed to (publicIP, allocated port) can be DNAT'd back to the
// original internal address (§4.6: "rewrite ... to an allocated public
// port"; DNAT is SNAT's mirror image and must recover what SNAT chose).
// A given internal flow always gets the same public port back for as long
// as the table holds it, so a multi-packet flow NATs consistently.
type PortTable struct {
	mu       sync.Mutex
	lo, hi   uint16
	next     uint16
	byFlow   map[flowKey]uint16
	byPublic map[uint16]natEntry
}

// NewPortTable builds a table that allocates ports in [lo, hi] inclusive.
func NewPortTable(lo, hi uint16) *PortTable {
	if hi < lo {
		lo, hi = hi, lo
	}
	return &PortTable{
		lo: lo, hi: hi, next: lo,
		byFlow:   make(map[flowKey]uint16),
		byPublic: make(map[uint16]natEntry),
	}
}

// ErrPortRangeExhausted is returned when every port in the configured range
// is already assigned to a different flow.
var ErrPortRangeExhausted = fmt.Errorf("dataplane: nat: port range exhausted")

// allocate returns the public port assigned to (proto, ip, port), allocating
// one from the range on first use and reusing it on every later packet of
// the same flow.
func (t *PortTable) allocate(proto byte, ip net.IP, port uint16) (uint16, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("dataplane: nat: internal address is not ipv4")
	}
	var key flowKey
	key.proto = proto
	copy(key.ip[:], ip4)
	key.port = port

	t.mu.Lock()
	defer t.mu.Unlock()

	if pub, ok := t.byFlow[key]; ok {
		return pub, nil
	}

	span := int(t.hi) - int(t.lo) + 1
	for i := 0; i < span; i++ {
		candidate := t.next
		if t.next == t.hi {
			t.next = t.lo
		} else {
			t.next++
		}
		if _, taken := t.byPublic[candidate]; taken {
			continue
		}
		t.byFlow[key] = candidate
		t.byPublic[candidate] = natEntry{proto: proto, ip: append(net.IP(nil), ip4...), port: port}
		return candidate, nil
	}
	return 0, ErrPortRangeExhausted
}

// recover returns the internal (proto, ip, port) a public port was allocated
// for, for the downlink DNAT path.
func (t *PortTable) recover(proto byte, publicPort uint16) (natEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.byPublic[publicPort]
	if !ok || entry.proto != proto {
		return natEntry{}, false
	}
	return entry, true
}

// SNAT extracts pkt's source (protocol, address, port), allocates a public
// port for that flow from t, and rewrites pkt's source to (publicIP,
// allocated port) via the SNAT primitive above.
func (t *PortTable) SNAT(pkt []byte, publicIP net.IP) error {
	proto, srcIP, srcPort, err := extractEndpoint(pkt, true)
	if err != nil {
		return err
	}
	pubPort, err := t.allocate(proto, srcIP, srcPort)
	if err != nil {
		return err
	}
	return SNAT(pkt, NATConfig{PublicIP: publicIP, PublicPort: pubPort})
}

// DNAT extracts pkt's destination port, recovers the internal address that
// port was allocated to, and rewrites pkt's destination to it via the DNAT
// primitive above. It fails if no flow is mapped to that port (an unsolicited
// inbound packet) or the mapped flow has a different protocol.
func (t *PortTable) DNAT(pkt []byte) error {
	proto, _, dstPort, err := extractEndpoint(pkt, false)
	if err != nil {
		return err
	}
	entry, ok := t.recover(proto, dstPort)
	if !ok {
		return fmt.Errorf("dataplane: nat: no mapping for public port %d", dstPort)
	}
	return DNAT(pkt, entry.ip, entry.port)
}

// extractEndpoint reads pkt's source (source=true) or destination endpoint
// (protocol, IP, port) without mutating it, for the PortTable lookups above.
func extractEndpoint(pkt []byte, source bool) (proto byte, ip net.IP, port uint16, err error) {
	if len(pkt) < 20 {
		return 0, nil, 0, fmt.Errorf("dataplane: nat: packet too short for ipv4 header: %d bytes", len(pkt))
	}
	if pkt[0]>>4 != 4 {
		return 0, nil, 0, fmt.Errorf("dataplane: nat: not ipv4 (version %d)", pkt[0]>>4)
	}
	ihl := int(pkt[0]&0x0f) * 4
	if ihl < 20 || ihl > len(pkt) {
		return 0, nil, 0, fmt.Errorf("dataplane: nat: invalid ihl %d for packet length %d", ihl, len(pkt))
	}

	proto = pkt[9]
	var ipOffset int
	if source {
		ipOffset = 12
	} else {
		ipOffset = 16
	}
	ip = net.IP(append([]byte(nil), pkt[ipOffset:ipOffset+4]...))

	if proto != protoTCP && proto != protoUDP {
		return proto, ip, 0, nil
	}
	l4 := pkt[ihl:]
	if len(l4) < 4 {
		return 0, nil, 0, fmt.Errorf("dataplane: nat: transport header missing for proto %d", proto)
	}
	var portOffset int
	if source {
		portOffset = 0
	} else {
		portOffset = 2
	}
	port = binary.BigEndian.Uint16(l4[portOffset : portOffset+2])
	return proto, ip, port, nil
}
