// Package gtpu runs the N3 and N9 GTP-U UDP listeners and implements the
// dataplane.Egress side of packet forwarding (N3/N9 re-encapsulation, N6
// hand-off to the TUN device).
package gtpu

import (
	"context"
	"fmt"
	"net"

	"github.com/ngfabric/upf/internal/dataplane"
	"github.com/ngfabric/upf/internal/n6"
	"github.com/ngfabric/upf/internal/session"
	"github.com/ngfabric/upf/internal/wire"
	"go.uber.org/zap"
)

const readBufferSize = 65535

// Server owns the N3/N9 UDP sockets and the N6 device, decapsulating
// ingress traffic onto a dataplane.Queue and re-encapsulating/forwarding
// egress traffic the worker pool hands it.
type Server struct {
	queue  *dataplane.Queue
	device n6.Device
	logger *zap.Logger

	n3Conn *net.UDPConn
	n9Conn *net.UDPConn
	n3Port int
	n9Port int

	droppedFull uint64
}

// NewServer builds a gtpu.Server. No socket is bound until ListenN3 or
// ListenN9 is called; the N9 socket stays unset when N9 is disabled.
func NewServer(queue *dataplane.Queue, device n6.Device, logger *zap.Logger) *Server {
	return &Server{queue: queue, device: device, logger: logger}
}

// ListenN3 binds the N3 (access) GTP-U UDP socket.
func (s *Server) ListenN3(addr string) error {
	conn, port, err := listenUDP(addr)
	if err != nil {
		return fmt.Errorf("gtpu: n3 listen: %w", err)
	}
	s.n3Conn = conn
	s.n3Port = port
	return nil
}

// ListenN9 binds the N9 (UPF-to-UPF) GTP-U UDP socket.
func (s *Server) ListenN9(addr string) error {
	conn, port, err := listenUDP(addr)
	if err != nil {
		return fmt.Errorf("gtpu: n9 listen: %w", err)
	}
	s.n9Conn = conn
	s.n9Port = port
	return nil
}

func listenUDP(addr string) (*net.UDPConn, int, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, 0, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, 0, err
	}
	return conn, conn.LocalAddr().(*net.UDPAddr).Port, nil
}

// Run starts the N3/N9/N6 read loops and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	if s.n3Conn != nil {
		go s.readLoop(ctx, s.n3Conn, session.IfaceAccess)
	}
	if s.n9Conn != nil {
		go s.readLoop(ctx, s.n9Conn, session.IfaceSGiLAN)
	}
	if s.device != nil {
		go s.n6ReadLoop(ctx)
	}
	<-ctx.Done()
	if s.n3Conn != nil {
		_ = s.n3Conn.Close()
	}
	if s.n9Conn != nil {
		_ = s.n9Conn.Close()
	}
}

// readLoop pulls GTP-U datagrams off conn and enqueues them as dataplane
// packets tagged with sourceIf, per §4.5 step 1.
func (s *Server) readLoop(ctx context.Context, conn *net.UDPConn, sourceIf uint8) {
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("gtpu: read error", zap.Error(err))
			continue
		}

		data := append([]byte(nil), buf[:n]...)
		pkt := dataplane.Packet{Data: data, PeerAddr: peer, Conn: conn, SourceIf: sourceIf}
		if !s.queue.Enqueue(pkt) {
			s.droppedFull++
			s.logger.Warn("gtpu: queue full, packet dropped", zap.Uint64("total_dropped", s.droppedFull))
		}
	}
}

// n6ReadLoop reads decapsulated IP traffic back from the TUN device. The NAT
// engine's PortTable (internal/dataplane) can recover which internal UE
// address a downlink packet's destination port was allocated to via its
// DNAT method, but recovering the address is only half of this path: routing
// the packet on to the right N3 tunnel still requires a session lookup keyed
// by destination UE IP, and the session/PDR model here only indexes by TEID
// (§9 — no reverse-PDR-by-IP index). So this traffic is logged and dropped
// rather than silently discarded without trace, the same acknowledged gap as
// BUFF handling, not a new one introduced by NAT port allocation.
func (s *Server) n6ReadLoop(ctx context.Context) {
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := s.device.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("gtpu: n6 read error", zap.Error(err))
			return
		}
		s.logger.Debug("gtpu: n6 downlink packet received, no reverse classification", zap.Int("size", n))
	}
}

// SendN3 re-encapsulates payload in a fresh GTP-U header and writes it to
// the access-side peer at dstIP over the N3 socket.
func (s *Server) SendN3(teid uint32, dstIP net.IP, payload []byte) error {
	return s.sendGTPU(s.n3Conn, teid, dstIP, s.n3Port, payload)
}

// SendN9 is SendN3's N9 (UPF-to-UPF) counterpart.
func (s *Server) SendN9(teid uint32, dstIP net.IP, payload []byte) error {
	return s.sendGTPU(s.n9Conn, teid, dstIP, s.n9Port, payload)
}

func (s *Server) sendGTPU(conn *net.UDPConn, teid uint32, dstIP net.IP, port int, payload []byte) error {
	if conn == nil {
		return fmt.Errorf("gtpu: interface not configured")
	}
	if dstIP == nil {
		return fmt.Errorf("gtpu: destination IP required for outer header creation")
	}
	pkt := append(wire.BuildGPDUHeader(teid, len(payload)), payload...)
	_, err := conn.WriteToUDP(pkt, &net.UDPAddr{IP: dstIP, Port: port})
	return err
}

// SendN6 writes a decapsulated, NAT'd IP packet to the N6 TUN device.
func (s *Server) SendN6(payload []byte) error {
	if s.device == nil {
		return fmt.Errorf("gtpu: n6 device not configured")
	}
	_, err := s.device.Write(payload)
	return err
}
