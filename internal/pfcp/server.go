package pfcp

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// Listener runs the N4 PFCP UDP socket, handing every datagram to Handler
// and writing back whatever response it returns. It owns no protocol state
// of its own — Handler does, per message type.
type Listener struct {
	handler *Handler
	logger  *zap.Logger
	conn    *net.UDPConn
}

// NewListener builds a Listener around an already-constructed Handler.
func NewListener(handler *Handler, logger *zap.Logger) *Listener {
	return &Listener{handler: handler, logger: logger}
}

// Run binds addr and serves PFCP requests until ctx is cancelled.
func (l *Listener) Run(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("pfcp: resolve address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("pfcp: listen: %w", err)
	}
	l.conn = conn

	l.logger.Info("pfcp listener started", zap.String("address", addr))

	go l.serve(ctx)
	<-ctx.Done()
	return conn.Close()
}

func (l *Listener) serve(ctx context.Context) {
	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, peer, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("pfcp: read error", zap.Error(err))
			continue
		}

		resp := l.handler.Handle(append([]byte(nil), buf[:n]...))
		if resp == nil {
			continue
		}
		if _, err := l.conn.WriteToUDP(resp, peer); err != nil {
			l.logger.Error("pfcp: write error", zap.Error(err), zap.String("peer", peer.String()))
		}
	}
}
