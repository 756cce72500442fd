package dataplane

import (
	"context"
	"net"
	"time"

	"github.com/ngfabric/upf/internal/session"
	"github.com/ngfabric/upf/internal/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Egress is the set of send operations a worker needs to execute a FAR's
// forwarding action (§4.5 step 5). gtpu.Server implements this for the real
// N3/N9 sockets and the N6 TUN device; tests supply a fake.
type Egress interface {
	SendN3(teid uint32, dstIP net.IP, payload []byte) error
	SendN9(teid uint32, dstIP net.IP, payload []byte) error
	SendN6(payload []byte) error
}

// Counters is the minimal metrics surface the pipeline drives; implemented
// by internal/metrics and a no-op fake for tests.
type Counters interface {
	IncPacketsTX(iface uint8)
	IncPacketsDropped(reason string)
	AddBytesTX(iface uint8, n int)
}

type noopCounters struct{}

func (noopCounters) IncPacketsTX(uint8)       {}
func (noopCounters) IncPacketsDropped(string) {}
func (noopCounters) AddBytesTX(uint8, int)    {}

// Pool runs W worker goroutines draining queue, each executing the
// five-stage pipeline of §4.5 against store and dispatching via egress.
type Pool struct {
	queue    *Queue
	store    *session.Store
	egress   Egress
	nat      NATConfig
	natTable *PortTable
	logger   *zap.Logger
	tracer   trace.Tracer
	counters Counters
	workers  int
	stop     chan struct{}
}

// NewPool builds a worker pool. counters may be nil (a no-op is used). The
// N6 egress SNAT allocates public ports out of nat.PortRangeLo/PortRangeHi,
// falling back to the single range [nat.PublicPort, nat.PublicPort] if no
// range is configured. A zero-value NATConfig therefore allocates only
// port 0.
func NewPool(queue *Queue, store *session.Store, egress Egress, nat NATConfig, logger *zap.Logger, workers int, counters Counters) *Pool {
	if counters == nil {
		counters = noopCounters{}
	}
	lo, hi := nat.PortRangeLo, nat.PortRangeHi
	if lo == 0 && hi == 0 {
		lo, hi = nat.PublicPort, nat.PublicPort
	}
	return &Pool{
		queue:    queue,
		store:    store,
		egress:   egress,
		nat:      nat,
		natTable: NewPortTable(lo, hi),
		logger:   logger,
		tracer:   otel.Tracer("upf-dataplane"),
		counters: counters,
		workers:  workers,
		stop:     make(chan struct{}),
	}
}

// Run starts the worker pool and blocks until ctx is cancelled, then signals
// all workers to exit at their next dequeue/timeout boundary (§5).
func (p *Pool) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < p.workers; i++ {
		go p.workerLoop(ctx, i, done)
	}
	<-ctx.Done()
	for i := 0; i < p.workers; i++ {
		<-done
	}
}

func (p *Pool) workerLoop(ctx context.Context, id int, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	p.logger.Info("dataplane worker started", zap.Int("worker_id", id))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("dataplane worker stopped", zap.Int("worker_id", id))
			return
		default:
		}

		pkt, ok := p.queue.Dequeue()
		if !ok {
			// Polling wait (§5): a condition variable is the better design,
			// but the spec permits this since no test depends on it (§9).
			time.Sleep(time.Millisecond)
			continue
		}
		p.process(ctx, id, pkt)
	}
}

// process runs the five-stage pipeline for one packet.
func (p *Pool) process(ctx context.Context, workerID int, pkt Packet) {
	ctx, span := p.tracer.Start(ctx, "dataplane.worker.process")
	defer span.End()
	span.SetAttributes(attribute.Int("worker_id", workerID))

	// Stage 1: parse.
	hdr, offset, err := wire.ParseGTPUHeader(pkt.Data)
	if err != nil || hdr.MessageType != wire.GTPUMsgGPDU {
		p.drop(span, "parse_error_or_non_gpdu")
		return
	}
	payload := pkt.Data[offset:]

	// Stage 2: session lookup.
	sess, pdr, ok := p.store.FindByTEID(hdr.TEID, pkt.SourceIf)
	if !ok {
		p.drop(span, "no_session_for_teid")
		return
	}

	// Stage 3: PDR match is folded into FindByTEID above (it already scans
	// allocated PDRs under the per-session lock and picks the
	// greatest-precedence match); re-acquire the lock here only to look up
	// the FAR, since pdr/far references must be read under the session lock
	// per §3's ownership rule.
	sess.Lock()
	far, ok := sess.FindFAR(pdr.FARID)
	var farCopy session.FAR
	if ok {
		farCopy = *far
	}
	sess.Unlock()
	if !ok {
		p.drop(span, "missing_far")
		return
	}

	span.SetAttributes(
		attribute.Int64("up_seid", int64(sess.UPSEID)),
		attribute.Int("pdr_id", int(pdr.ID)),
		attribute.Int("precedence", int(pdr.Precedence)),
	)
	p.logger.Debug("classified packet",
		zap.Int("worker_id", workerID),
		zap.Uint32("teid", hdr.TEID),
		zap.Uint16("pdr_id", pdr.ID),
		zap.Uint32("precedence", pdr.Precedence),
	)

	// Stage 5: execute (stage 4, FAR lookup, already done above).
	p.execute(span, farCopy, payload)
}

func (p *Pool) execute(span trace.Span, far session.FAR, payload []byte) {
	switch far.Action {
	case session.ActionDrop:
		p.drop(span, "far_drop")
	case session.ActionForward:
		p.forward(span, far, payload)
	case session.ActionBuffer:
		// Buffering is accepted but not implemented (§9); count as drop.
		p.drop(span, "far_buffer_unimplemented")
	default:
		p.drop(span, "unknown_far_action")
	}
}

func (p *Pool) forward(span trace.Span, far session.FAR, payload []byte) {
	var sent int
	switch far.DestinationInterface {
	case session.IfaceAccess:
		if far.OuterHeaderCreation == nil {
			p.drop(span, "missing_outer_header_creation")
			return
		}
		if err := p.egress.SendN3(far.OuterHeaderCreation.TEID, far.OuterHeaderCreation.IPv4, payload); err != nil {
			p.drop(span, "n3_send_failed")
			return
		}
		sent = len(payload)
	case session.IfaceSGiLAN:
		if far.OuterHeaderCreation == nil {
			p.drop(span, "missing_outer_header_creation")
			return
		}
		if err := p.egress.SendN9(far.OuterHeaderCreation.TEID, far.OuterHeaderCreation.IPv4, payload); err != nil {
			p.drop(span, "n9_send_failed")
			return
		}
		sent = len(payload)
	case session.IfaceCore:
		out := append([]byte(nil), payload...)
		if err := p.natTable.SNAT(out, p.nat.PublicIP); err != nil {
			p.drop(span, "nat_precondition_failed")
			return
		}
		if err := p.egress.SendN6(out); err != nil {
			p.drop(span, "n6_send_failed")
			return
		}
		sent = len(out)
	default:
		p.drop(span, "unsupported_destination_interface")
		return
	}
	span.SetAttributes(attribute.String("action", "forward"))
	p.counters.IncPacketsTX(far.DestinationInterface)
	p.counters.AddBytesTX(far.DestinationInterface, sent)
}

func (p *Pool) drop(span trace.Span, reason string) {
	span.SetAttributes(attribute.String("action", "drop"), attribute.String("reason", reason))
	p.counters.IncPacketsDropped(reason)
}
