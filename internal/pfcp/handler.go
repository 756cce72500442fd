// Package pfcp implements the PFCP control-channel state machine (§4.3):
// association lifecycle, session lifecycle and heartbeat, running on a
// single goroutine per the N4 reader loop in server.go.
package pfcp

import (
	"sync/atomic"

	"github.com/ngfabric/upf/internal/session"
	"github.com/ngfabric/upf/internal/wire"
	"go.uber.org/zap"
)

// Counters is the metrics surface Handler drives; implemented by
// internal/metrics and a no-op fake for tests.
type Counters interface {
	IncPFCPMessage(msgType string)
	SetActiveSessions(n int)
}

type noopCounters struct{}

func (noopCounters) IncPFCPMessage(string) {}
func (noopCounters) SetActiveSessions(int) {}

// Handler decodes inbound PFCP datagrams and produces response bytes. It is
// deliberately synchronous and side-effect-free beyond the session store and
// the association flag, so it can be driven directly in tests against the
// literal byte scenarios without a socket.
type Handler struct {
	store       *session.Store
	logger      *zap.Logger
	startTime   uint32
	nodeIPv4    [4]byte
	counters    Counters
	associated  atomic.Bool
	malformed   atomic.Int64
	unsupported atomic.Int64
}

// NewHandler builds a handler bound to store. startTime is the Recovery Time
// Stamp this UPF reports (process start time, NTP-style seconds since 1900
// are not mandated by the spec — the value is opaque and only echoed back).
func NewHandler(store *session.Store, logger *zap.Logger, nodeIPv4 [4]byte, startTime uint32) *Handler {
	return &Handler{
		store:     store,
		logger:    logger,
		startTime: startTime,
		nodeIPv4:  nodeIPv4,
		counters:  noopCounters{},
	}
}

// SetCounters wires h's PFCP message/active-session metrics to c, replacing
// the no-op default. Call once, before Handle starts being driven.
func (h *Handler) SetCounters(c Counters) {
	h.counters = c
}

// Associated reports the process-wide association_established flag (§9: a
// known single-peer simplification — a faithful implementation would key
// this per peer Node ID).
func (h *Handler) Associated() bool { return h.associated.Load() }

// Handle decodes one inbound datagram and returns the response to send, or
// nil if the datagram was malformed or its message type is silently ignored
// (§4.3 step 2, "Any other -> log and silently ignore").
func (h *Handler) Handle(data []byte) []byte {
	hdr, offset, err := wire.DecodeHeader(data)
	if err != nil {
		h.malformed.Add(1)
		h.logger.Warn("malformed pfcp header", zap.Error(err), zap.Int("length", len(data)))
		return nil
	}
	ies := wire.DecodeIEs(data[offset:])
	h.counters.IncPFCPMessage(messageTypeName(hdr.MessageType))

	switch hdr.MessageType {
	case wire.MsgHeartbeatRequest:
		return h.handleHeartbeat(hdr)
	case wire.MsgAssociationSetupRequest:
		return h.handleAssociationSetup(hdr, ies)
	case wire.MsgAssociationReleaseRequest:
		return h.handleAssociationRelease(hdr)
	case wire.MsgSessionEstablishmentRequest:
		return h.handleSessionEstablishment(hdr, ies)
	case wire.MsgSessionModificationRequest:
		return h.handleSessionModification(hdr, ies)
	case wire.MsgSessionDeletionRequest:
		return h.handleSessionDeletion(hdr)
	default:
		h.unsupported.Add(1)
		h.logger.Debug("unsupported pfcp message type, ignoring", zap.Uint8("type", hdr.MessageType))
		return nil
	}
}

func (h *Handler) handleHeartbeat(hdr wire.Header) []byte {
	enc := wire.NewEncoder(wire.MsgHeartbeatResponse, nil, hdr.SequenceNumber)
	enc.PutIE(wire.IERecoveryTimeStamp, wire.EncodeRecoveryTimeStamp(h.startTime))
	return enc.Finish()
}

func (h *Handler) handleAssociationSetup(hdr wire.Header, ies []wire.IE) []byte {
	nodeIE, hasNode := wire.FindIE(ies, wire.IENodeID)
	tsIE, hasTS := wire.FindIE(ies, wire.IERecoveryTimeStamp)
	if !hasNode || !hasTS {
		h.logger.Warn("association setup missing mandatory ie", zap.Bool("node_id", hasNode), zap.Bool("recovery_ts", hasTS))
		return h.causeResponse(wire.MsgAssociationSetupResponse, nil, hdr.SequenceNumber, wire.CauseMandatoryIEMissing)
	}
	if _, err := wire.DecodeNodeID(nodeIE.Value); err != nil {
		return h.causeResponse(wire.MsgAssociationSetupResponse, nil, hdr.SequenceNumber, wire.CauseMandatoryIEMissing)
	}
	if _, err := wire.DecodeRecoveryTimeStamp(tsIE.Value); err != nil {
		return h.causeResponse(wire.MsgAssociationSetupResponse, nil, hdr.SequenceNumber, wire.CauseMandatoryIEMissing)
	}

	h.associated.Store(true)
	h.logger.Info("pfcp association established")

	enc := wire.NewEncoder(wire.MsgAssociationSetupResponse, nil, hdr.SequenceNumber)
	enc.PutIE(wire.IECause, wire.EncodeCause(wire.CauseRequestAccepted))
	enc.PutIE(wire.IENodeID, wire.EncodeNodeID(h.nodeIPv4))
	enc.PutIE(wire.IERecoveryTimeStamp, wire.EncodeRecoveryTimeStamp(h.startTime))
	return enc.Finish()
}

func (h *Handler) handleAssociationRelease(hdr wire.Header) []byte {
	h.associated.Store(false)
	h.logger.Info("pfcp association released")
	return h.causeResponse(wire.MsgAssociationReleaseResponse, nil, hdr.SequenceNumber, wire.CauseRequestAccepted)
}

func (h *Handler) handleSessionEstablishment(hdr wire.Header, ies []wire.IE) []byte {
	if !h.Associated() {
		return h.causeResponse(wire.MsgSessionEstablishmentResponse, nil, hdr.SequenceNumber, wire.CauseNoEstablishedPFCPAssoc)
	}

	fseidIE, ok := wire.FindIE(ies, wire.IEFSEID)
	if !ok {
		return h.causeResponse(wire.MsgSessionEstablishmentResponse, nil, hdr.SequenceNumber, wire.CauseMandatoryIEMissing)
	}
	fseid, err := wire.DecodeFSEID(fseidIE.Value)
	if err != nil {
		return h.causeResponse(wire.MsgSessionEstablishmentResponse, nil, hdr.SequenceNumber, wire.CauseMandatoryIEMissing)
	}

	upSEID, err := h.store.Create(fseid.SEID)
	if err != nil {
		return h.causeResponse(wire.MsgSessionEstablishmentResponse, nil, hdr.SequenceNumber, wire.CauseNoResourcesAvailable)
	}
	sess, _ := h.store.Find(upSEID)

	createPDRs := wire.FindAllIEs(ies, wire.IECreatePDR)
	createFARs := wire.FindAllIEs(ies, wire.IECreateFAR)
	createQERs := wire.FindAllIEs(ies, wire.IECreateQER)

	sess.Lock()
	if len(createPDRs) == 0 && len(createFARs) == 0 && len(createQERs) == 0 {
		installDefaultRuleSet(sess)
	} else {
		for _, ie := range createQERs {
			if q, err := decodeQER(ie.Value); err == nil {
				_ = sess.AddQER(q)
			} else {
				h.logger.Warn("skipping malformed create qer", zap.Error(err))
			}
		}
		for _, ie := range createFARs {
			if f, err := decodeFAR(ie.Value); err == nil {
				_ = sess.AddFAR(f)
			} else {
				h.logger.Warn("skipping malformed create far", zap.Error(err))
			}
		}
		for _, ie := range createPDRs {
			if p, err := decodePDR(ie.Value); err == nil {
				_ = sess.AddPDR(p)
			} else {
				h.logger.Warn("skipping malformed create pdr", zap.Error(err))
			}
		}
	}
	sess.Unlock()

	h.logger.Info("pfcp session established",
		zap.Uint64("up_seid", upSEID), zap.Uint64("cp_seid", fseid.SEID))
	h.counters.SetActiveSessions(h.store.Len())

	seidForResp := upSEID
	enc := wire.NewEncoder(wire.MsgSessionEstablishmentResponse, &seidForResp, hdr.SequenceNumber)
	enc.PutIE(wire.IECause, wire.EncodeCause(wire.CauseRequestAccepted))
	enc.PutIE(wire.IEFSEID, wire.EncodeFSEID(wire.FSEID{SEID: upSEID, IPv4: h.nodeIPv4[:]}))
	return enc.Finish()
}

// installDefaultRuleSet is the backward-compatibility default (§4.3) applied
// when an Establishment Request carries no Create IEs at all.
func installDefaultRuleSet(sess *session.Session) {
	_ = sess.AddQER(session.QER{
		ID: 1, QFI: session.DefaultQFI,
		ULGateOpen: true, DLGateOpen: true,
		HasMBR: true, MBRUplink: 10_000_000, MBRDown: 10_000_000,
		PPS: 1000,
	})
	_ = sess.AddFAR(session.FAR{
		ID: 1, Action: session.ActionForward, DestinationInterface: session.IfaceCore,
	})
	_ = sess.AddPDR(session.PDR{
		ID: 1, Precedence: 100, SourceInterface: session.IfaceAccess,
		TEID: 0x100, FARID: 1, QERID: 1, HasQER: true,
	})
}

func (h *Handler) handleSessionModification(hdr wire.Header, ies []wire.IE) []byte {
	if !hdr.HasSEID {
		return h.causeResponse(wire.MsgSessionModificationResponse, nil, hdr.SequenceNumber, wire.CauseSessionContextNotFound)
	}
	sess, ok := h.store.Find(hdr.SEID)
	if !ok {
		return h.causeResponse(wire.MsgSessionModificationResponse, nil, hdr.SequenceNumber, wire.CauseSessionContextNotFound)
	}

	sess.Lock()
	for _, ie := range wire.FindAllIEs(ies, wire.IEUpdateQER) {
		if q, err := decodeQER(ie.Value); err == nil {
			_ = sess.AddQER(q)
		} else {
			h.logger.Warn("skipping malformed update qer", zap.Error(err))
		}
	}
	// PDR/FAR modification (Create/Update/Remove via Modification) is a
	// known gap in the source this was ported from: Update QER is the only
	// rule mutation Modification applies. Requests still succeed so a peer
	// following the full 3GPP procedure does not stall on this message.
	sess.Unlock()

	seidForResp := hdr.SEID
	return h.causeResponse(wire.MsgSessionModificationResponse, &seidForResp, hdr.SequenceNumber, wire.CauseRequestAccepted)
}

func (h *Handler) handleSessionDeletion(hdr wire.Header) []byte {
	if !hdr.HasSEID || !h.store.Delete(hdr.SEID) {
		return h.causeResponse(wire.MsgSessionDeletionResponse, nil, hdr.SequenceNumber, wire.CauseSessionContextNotFound)
	}
	h.logger.Info("pfcp session deleted", zap.Uint64("up_seid", hdr.SEID))
	h.counters.SetActiveSessions(h.store.Len())
	seidForResp := hdr.SEID
	return h.causeResponse(wire.MsgSessionDeletionResponse, &seidForResp, hdr.SequenceNumber, wire.CauseRequestAccepted)
}

// messageTypeName maps a PFCP message type code to the label the
// pfcp_messages_total metric is broken out by.
func messageTypeName(msgType uint8) string {
	switch msgType {
	case wire.MsgHeartbeatRequest:
		return "heartbeat_request"
	case wire.MsgHeartbeatResponse:
		return "heartbeat_response"
	case wire.MsgAssociationSetupRequest:
		return "association_setup_request"
	case wire.MsgAssociationSetupResponse:
		return "association_setup_response"
	case wire.MsgAssociationReleaseRequest:
		return "association_release_request"
	case wire.MsgAssociationReleaseResponse:
		return "association_release_response"
	case wire.MsgSessionEstablishmentRequest:
		return "session_establishment_request"
	case wire.MsgSessionEstablishmentResponse:
		return "session_establishment_response"
	case wire.MsgSessionModificationRequest:
		return "session_modification_request"
	case wire.MsgSessionModificationResponse:
		return "session_modification_response"
	case wire.MsgSessionDeletionRequest:
		return "session_deletion_request"
	case wire.MsgSessionDeletionResponse:
		return "session_deletion_response"
	default:
		return "unsupported"
	}
}

func (h *Handler) causeResponse(msgType uint8, seid *uint64, seq uint32, cause uint8) []byte {
	enc := wire.NewEncoder(msgType, seid, seq)
	enc.PutIE(wire.IECause, wire.EncodeCause(cause))
	return enc.Finish()
}
