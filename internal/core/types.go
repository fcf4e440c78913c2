// Package core defines core types with zero external dependencies.
package core

// LinkKind identifies the link layer a frame was captured on.
type LinkKind uint8

const (
	LinkCAN LinkKind = iota
	LinkCANFD
	LinkLIN
	LinkFlexRay
	LinkIPduM
	LinkPduTransport
)

// String returns the short name used in logs and metric labels.
func (k LinkKind) String() string {
	switch k {
	case LinkCAN:
		return "can"
	case LinkCANFD:
		return "canfd"
	case LinkLIN:
		return "lin"
	case LinkFlexRay:
		return "flexray"
	case LinkIPduM:
		return "ipdum"
	case LinkPduTransport:
		return "pdu_transport"
	default:
		return "unknown"
	}
}

// SocketCAN identifier flag bits and id masks.
const (
	CANFlagExtended uint32 = 0x80000000
	CANFlagRTR      uint32 = 0x40000000
	CANFlagError    uint32 = 0x20000000

	CANMaskExtended uint32 = 0x1FFFFFFF // 29-bit id space
	CANMaskStandard uint32 = 0x000007FF // 11-bit id space
)

// AddrInvalid marks an unset address slot.
const AddrInvalid uint32 = 0xffffffff

// FlexRayLinkID folds a FlexRay frame id, cycle counter and channel
// into the combined link identifier FlexRay adapters hand to the
// analysis session. The frame id alone is ambiguous across cycles and
// channels.
func FlexRayLinkID(id, cycle, channel uint32) uint32 {
	return id<<16 | cycle<<8 | channel
}

// LinkFrame is one inbound unit handed over by a link-layer adapter.
// Num is the capture frame number and must be stable across analysis
// passes; FlexRay adapters fold channel/cluster into LinkID, I-PduM and
// PDU-transport adapters pass a PDU id in its place.
type LinkFrame struct {
	Num    uint32
	Kind   LinkKind
	LinkID uint32
	Data   []byte
	Length uint32 // length reported on the wire
}

// AddressPair is the addressing context resolved for a single frame.
// Valid=1 means a single ECU address (source and target identical),
// Valid=2 means distinct source and target, Valid=0 means addressless.
type AddressPair struct {
	Valid  uint8
	Source uint32
	Target uint32
}

// NoAddresses is the addressless pair with both slots unset.
func NoAddresses() AddressPair {
	return AddressPair{Source: AddrInvalid, Target: AddrInvalid}
}
