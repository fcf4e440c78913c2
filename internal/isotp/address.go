package isotp

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"firestige.xyz/buscap/internal/config"
	"firestige.xyz/buscap/internal/core"
)

// maskedValue extracts the field selected by mask and shifts it down to
// bit zero. mask must be nonzero.
func maskedValue(v, mask uint32) uint32 {
	return (v & mask) >> uint(bits.TrailingZeros32(mask))
}

// resolver derives the addressing context of a frame and tells the
// classifier how many leading payload bytes addressing consumed.
type resolver struct {
	extended     bool // extended (in-band) addressing for CAN/CAN-FD
	flexrayWidth int  // 1 or 2 bytes per address
	ipdumWidth   int  // 0, 1 or 2 bytes per address
	canRules     []config.CANAddressRule
	pduRules     map[uint32]config.PduTransportRule
}

func newResolver(cfg Config) *resolver {
	r := &resolver{
		extended:     cfg.ExtendedAddressing,
		flexrayWidth: cfg.FlexRayAddressing,
		ipdumWidth:   cfg.IPduMAddressing,
		canRules:     cfg.CANRules,
		pduRules:     make(map[uint32]config.PduTransportRule, len(cfg.PduRules)),
	}
	for _, rule := range cfg.PduRules {
		r.pduRules[rule.PduID] = rule
	}
	return r
}

// resolve returns the frame's AddressPair and the number of leading
// bytes consumed by in-band addressing. A frame without any resolvable
// addressing is a normal case, not an error.
func (r *resolver) resolve(frame *core.LinkFrame) (core.AddressPair, int, error) {
	switch frame.Kind {
	case core.LinkFlexRay:
		return r.resolveWire(frame, r.flexrayWidth)

	case core.LinkIPduM:
		if r.ipdumWidth == 0 {
			return core.NoAddresses(), 0, nil
		}
		return r.resolveWire(frame, r.ipdumWidth)

	case core.LinkPduTransport:
		return r.resolvePduTransport(frame)

	case core.LinkLIN:
		// LIN is always extended addressing.
		return r.resolveExtendedByte(frame)

	default: // CAN / CAN-FD
		if r.extended {
			return r.resolveExtendedByte(frame)
		}
		ext := frame.LinkID&core.CANFlagExtended != 0
		id := frame.LinkID & core.CANMaskStandard
		if ext {
			id = frame.LinkID & core.CANMaskExtended
		}
		return r.lookupCANMapping(ext, id), 0, nil
	}
}

// resolveExtendedByte consumes the single in-band address byte used by
// extended addressing; it names both ends of the conversation.
func (r *resolver) resolveExtendedByte(frame *core.LinkFrame) (core.AddressPair, int, error) {
	if len(frame.Data) < 1 {
		return core.NoAddresses(), 0, fmt.Errorf("%w: missing address byte", core.ErrFrameTooShort)
	}
	addr := uint32(frame.Data[0])
	return core.AddressPair{Valid: 1, Source: addr, Target: addr}, 1, nil
}

// resolveWire consumes a width-byte source address followed by a
// width-byte target address from the start of the frame.
func (r *resolver) resolveWire(frame *core.LinkFrame, width int) (core.AddressPair, int, error) {
	if len(frame.Data) < 2*width {
		return core.NoAddresses(), 0, fmt.Errorf("%w: missing address bytes", core.ErrFrameTooShort)
	}
	return core.AddressPair{
		Valid:  2,
		Source: beUint(frame.Data[:width]),
		Target: beUint(frame.Data[width : 2*width]),
	}, 2 * width, nil
}

// lookupCANMapping scans the configured id mapping rules, first match
// wins. No match means the frame is addressless.
func (r *resolver) lookupCANMapping(ext bool, id uint32) core.AddressPair {
	for i := range r.canRules {
		rule := &r.canRules[i]
		if rule.Extended != ext || rule.CANID&rule.CANIDMask != id&rule.CANIDMask {
			continue
		}
		if rule.ECUAddrMask != 0 {
			addr := maskedValue(id, rule.ECUAddrMask)
			return core.AddressPair{Valid: 1, Source: addr, Target: addr}
		}
		return core.AddressPair{
			Valid:  2,
			Source: maskedValue(id, rule.SourceAddrMask),
			Target: maskedValue(id, rule.TargetAddrMask),
		}
	}
	return core.NoAddresses()
}

// resolvePduTransport applies the per-PDU-id address rule: an ECU slot
// beats source/target, and a wire-extracted size beats a fixed value.
func (r *resolver) resolvePduTransport(frame *core.LinkFrame) (core.AddressPair, int, error) {
	rule, ok := r.pduRules[frame.LinkID]
	if !ok {
		return core.NoAddresses(), 0, nil
	}

	if rule.ECU.Size != 0 {
		n := int(rule.ECU.Size)
		if len(frame.Data) < n {
			return core.NoAddresses(), 0, fmt.Errorf("%w: missing ecu address bytes", core.ErrFrameTooShort)
		}
		addr := beUint(frame.Data[:n])
		return core.AddressPair{Valid: 1, Source: addr, Target: addr}, n, nil
	}
	if rule.ECU.Fixed != nil {
		return core.AddressPair{Valid: 1, Source: *rule.ECU.Fixed, Target: *rule.ECU.Fixed}, 0, nil
	}
	if !rule.Source.Configured() && !rule.Target.Configured() {
		return core.NoAddresses(), 0, nil
	}

	pair := core.NoAddresses()
	pair.Valid = 2
	offset := 0

	if rule.Source.Size != 0 {
		n := int(rule.Source.Size)
		if len(frame.Data) < offset+n {
			return core.NoAddresses(), 0, fmt.Errorf("%w: missing source address bytes", core.ErrFrameTooShort)
		}
		pair.Source = beUint(frame.Data[offset : offset+n])
		offset += n
	} else if rule.Source.Fixed != nil {
		pair.Source = *rule.Source.Fixed
	}

	if rule.Target.Size != 0 {
		n := int(rule.Target.Size)
		if len(frame.Data) < offset+n {
			return core.NoAddresses(), 0, fmt.Errorf("%w: missing target address bytes", core.ErrFrameTooShort)
		}
		pair.Target = beUint(frame.Data[offset : offset+n])
		offset += n
	} else if rule.Target.Fixed != nil {
		pair.Target = *rule.Target.Fixed
	}

	return pair, offset, nil
}

// beUint reads a 1- or 2-byte big-endian unsigned value.
func beUint(b []byte) uint32 {
	if len(b) == 1 {
		return uint32(b[0])
	}
	return uint32(binary.BigEndian.Uint16(b))
}
