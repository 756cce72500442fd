package pfcp

import (
	"fmt"

	"github.com/ngfabric/upf/internal/session"
	"github.com/ngfabric/upf/internal/wire"
)

// decodePDR decodes a Create PDR (or, structurally identical, an Update PDR)
// grouped IE value into a session.PDR (§4.1, §6). PDR ID, Precedence and a
// PDI carrying Source Interface are mandatory; the PDI's F-TEID is optional
// (TEID 0 when absent), as are FAR ID and QER ID.
func decodePDR(value []byte) (session.PDR, error) {
	ies := wire.DecodeIEs(value)

	idIE, ok := wire.FindIE(ies, wire.IEPDRID)
	if !ok {
		return session.PDR{}, fmt.Errorf("create pdr: missing pdr id")
	}
	id, err := wire.DecodePDRID(idIE.Value)
	if err != nil {
		return session.PDR{}, fmt.Errorf("create pdr: %w", err)
	}

	precIE, ok := wire.FindIE(ies, wire.IEPrecedence)
	if !ok {
		return session.PDR{}, fmt.Errorf("create pdr %d: missing precedence", id)
	}
	precedence, err := wire.DecodePrecedence(precIE.Value)
	if err != nil {
		return session.PDR{}, fmt.Errorf("create pdr %d: %w", id, err)
	}

	pdiIE, ok := wire.FindIE(ies, wire.IEPDI)
	if !ok {
		return session.PDR{}, fmt.Errorf("create pdr %d: missing pdi", id)
	}
	pdi := wire.DecodeIEs(pdiIE.Value)

	srcIE, ok := wire.FindIE(pdi, wire.IESourceInterface)
	if !ok {
		return session.PDR{}, fmt.Errorf("create pdr %d: pdi missing source interface", id)
	}
	sourceIface, err := wire.DecodeSourceInterface(srcIE.Value)
	if err != nil {
		return session.PDR{}, fmt.Errorf("create pdr %d: %w", id, err)
	}

	var teid uint32
	if fteidIE, ok := wire.FindIE(pdi, wire.IEFTEID); ok {
		fteid, err := wire.DecodeFTEID(fteidIE.Value)
		if err != nil {
			return session.PDR{}, fmt.Errorf("create pdr %d: %w", id, err)
		}
		teid = fteid.TEID
	}

	p := session.PDR{
		ID:              id,
		Precedence:      precedence,
		SourceInterface: sourceIface,
		TEID:            teid,
	}

	if farIE, ok := wire.FindIE(ies, wire.IEFARID); ok {
		farID, err := wire.DecodeFARID(farIE.Value)
		if err != nil {
			return session.PDR{}, fmt.Errorf("create pdr %d: %w", id, err)
		}
		p.FARID = farID
	}
	if qerIE, ok := wire.FindIE(ies, wire.IEQERID); ok {
		qerID, err := wire.DecodeQERID(qerIE.Value)
		if err != nil {
			return session.PDR{}, fmt.Errorf("create pdr %d: %w", id, err)
		}
		p.QERID = qerID
		p.HasQER = true
	}

	return p, nil
}

// decodeFAR decodes a Create FAR grouped IE value into a session.FAR.
func decodeFAR(value []byte) (session.FAR, error) {
	ies := wire.DecodeIEs(value)

	idIE, ok := wire.FindIE(ies, wire.IEFARID)
	if !ok {
		return session.FAR{}, fmt.Errorf("create far: missing far id")
	}
	id, err := wire.DecodeFARID(idIE.Value)
	if err != nil {
		return session.FAR{}, fmt.Errorf("create far: %w", err)
	}

	actionIE, ok := wire.FindIE(ies, wire.IEApplyAction)
	if !ok {
		return session.FAR{}, fmt.Errorf("create far %d: missing apply action", id)
	}
	flags, err := wire.DecodeApplyAction(actionIE.Value)
	if err != nil {
		return session.FAR{}, fmt.Errorf("create far %d: %w", id, err)
	}

	f := session.FAR{ID: id, Action: applyActionToFARAction(flags)}

	if fpIE, ok := wire.FindIE(ies, wire.IEForwardingParameters); ok {
		fp := wire.DecodeIEs(fpIE.Value)
		if destIE, ok := wire.FindIE(fp, wire.IEDestinationInterface); ok {
			dest, err := wire.DecodeDestinationInterface(destIE.Value)
			if err != nil {
				return session.FAR{}, fmt.Errorf("create far %d: %w", id, err)
			}
			f.DestinationInterface = dest
		}
		if ohcIE, ok := wire.FindIE(fp, wire.IEOuterHeaderCreation); ok {
			teid, ipv4, err := wire.DecodeOuterHeaderCreation(ohcIE.Value)
			if err != nil {
				return session.FAR{}, fmt.Errorf("create far %d: %w", id, err)
			}
			f.OuterHeaderCreation = &session.OuterHeaderCreation{TEID: teid, IPv4: ipv4[:]}
		}
	}

	return f, nil
}

// applyActionToFARAction picks the first bit set, in DROP/FORW/BUFF order
// (§4.1: "first set wins in that order").
func applyActionToFARAction(flags uint8) uint8 {
	switch {
	case flags&wire.ApplyActionDrop != 0:
		return session.ActionDrop
	case flags&wire.ApplyActionForward != 0:
		return session.ActionForward
	case flags&wire.ApplyActionBuffer != 0:
		return session.ActionBuffer
	default:
		return session.ActionDrop
	}
}

// decodeQER decodes a Create QER or Update QER grouped IE value (identical
// structure, §4.2) into a session.QER.
func decodeQER(value []byte) (session.QER, error) {
	ies := wire.DecodeIEs(value)

	idIE, ok := wire.FindIE(ies, wire.IEQERID)
	if !ok {
		return session.QER{}, fmt.Errorf("create/update qer: missing qer id")
	}
	id, err := wire.DecodeQERID(idIE.Value)
	if err != nil {
		return session.QER{}, fmt.Errorf("create/update qer: %w", err)
	}

	q := session.QER{ID: id, QFI: session.DefaultQFI, ULGateOpen: true, DLGateOpen: true}

	if qfiIE, ok := wire.FindIE(ies, wire.IEQFI); ok {
		qfi, err := wire.DecodeQFI(qfiIE.Value)
		if err != nil {
			return session.QER{}, fmt.Errorf("qer %d: %w", id, err)
		}
		q.QFI = qfi
	}
	if gateIE, ok := wire.FindIE(ies, wire.IEGateStatus); ok {
		ulClosed, dlClosed, err := wire.DecodeGateStatus(gateIE.Value)
		if err != nil {
			return session.QER{}, fmt.Errorf("qer %d: %w", id, err)
		}
		q.ULGateOpen = !ulClosed
		q.DLGateOpen = !dlClosed
	}
	if mbrIE, ok := wire.FindIE(ies, wire.IEMBR); ok {
		ul, dl, err := wire.DecodeMBR(mbrIE.Value)
		if err != nil {
			return session.QER{}, fmt.Errorf("qer %d: %w", id, err)
		}
		q.HasMBR = true
		q.MBRUplink, q.MBRDown = ul, dl
		q.PPS = session.DerivePPS(ul)
	}
	if gbrIE, ok := wire.FindIE(ies, wire.IEGBR); ok {
		ul, dl, err := wire.DecodeGBR(gbrIE.Value)
		if err != nil {
			return session.QER{}, fmt.Errorf("qer %d: %w", id, err)
		}
		q.HasGBR = true
		q.GBRUplink, q.GBRDown = ul, dl
	}

	return q, nil
}
