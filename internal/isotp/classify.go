// Package isotp implements the ISO 15765-2 transport layer: protocol
// control information parsing, conversation tracking and reassembly of
// segmented messages carried over CAN, CAN-FD, LIN, FlexRay, the
// AUTOSAR I-PDU multiplexer and generic PDU transport framing.
package isotp

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/buscap/internal/core"
)

// Message types, encoded in the high nibble of the PCI byte. Values 4-7
// are the AUTOSAR FlexRay TP variants.
const (
	TypeSingleFrame       = 0
	TypeFirstFrame        = 1
	TypeConsecutiveFrame  = 2
	TypeFlowControl       = 3
	TypeSingleFrameExt    = 4
	TypeFirstFrameExt     = 5
	TypeConsecutiveFrame2 = 6
	TypeAckFrame          = 7
)

// Flow status values carried by flow-control and ack frames.
const (
	FlowContinueToSend = 0
	FlowWait           = 1
	FlowOverflow       = 2
)

const (
	pciLen         = 1
	fdSingleHdrLen = 2 // PCI + escalated 1-byte length
	fdFirstHdrLen  = 6 // 16-bit PCI + 32-bit length

	typeMask       = 0xF0
	dataLengthMask = 0x0F
	seqNumberMask  = 0x0F
	flowStatusMask = 0x0F
	ackMask        = 0xF0

	fcBlockSizeOffset = pciLen
	fcSTminOffset     = fcBlockSizeOffset + 1
	fcAckOffset       = fcSTminOffset + 1
)

// TypeName returns the display name of a message type.
func TypeName(t uint8) string {
	switch t {
	case TypeSingleFrame:
		return "Single Frame"
	case TypeFirstFrame:
		return "First Frame"
	case TypeConsecutiveFrame:
		return "Consecutive Frame"
	case TypeFlowControl:
		return "Flow Control"
	case TypeSingleFrameExt:
		return "Single Frame Ext"
	case TypeFirstFrameExt:
		return "First Frame Ext"
	case TypeConsecutiveFrame2:
		return "Consecutive Frame 2"
	case TypeAckFrame:
		return "Ack Frame"
	default:
		return fmt.Sprintf("Unknown (0x%02x)", t)
	}
}

// FlowStatusName returns the display name of a flow status value.
func FlowStatusName(fs uint8) string {
	switch fs {
	case FlowContinueToSend:
		return "Continue to Send"
	case FlowWait:
		return "Wait"
	case FlowOverflow:
		return "Overflow"
	default:
		return fmt.Sprintf("Reserved (0x%x)", fs)
	}
}

// STmin is a decoded separation time minimum. The raw byte has a split
// numeric domain: 0xF1-0xF9 encode 100-900 microseconds, every other
// value is taken literally as milliseconds.
type STmin struct {
	Value  uint32
	Micros bool
}

func decodeSTmin(raw byte) STmin {
	if raw >= 0xF1 && raw <= 0xF9 {
		return STmin{Value: uint32(raw-0xF0) * 100, Micros: true}
	}
	return STmin{Value: uint32(raw)}
}

func (s STmin) String() string {
	if s.Micros {
		return fmt.Sprintf("%d µs", s.Value)
	}
	return fmt.Sprintf("%d ms", s.Value)
}

// FrameInfo is the decoded protocol control information of one frame.
// DataOffset/DataLength locate the transported payload bytes within the
// frame; FrameLength is the declared total message length of a first
// frame. Flow-control fields are only set for FC/Ack frames.
type FrameInfo struct {
	Type        uint8
	DataOffset  int
	DataLength  int
	FrameLength uint32
	SeqNumber   uint8
	FlowStatus  uint8
	BlockSize   uint8
	STmin       STmin
	Ack         uint8

	Fragmented bool
	Complete   bool
}

// Summary renders the per-frame info text in the shape the presentation
// layer puts into the summary column.
func (fi *FrameInfo) Summary() string {
	switch fi.Type {
	case TypeSingleFrame, TypeSingleFrameExt:
		return fmt.Sprintf("%s (Len: %d)", TypeName(fi.Type), fi.DataLength)
	case TypeFirstFrame, TypeFirstFrameExt:
		return fmt.Sprintf("%s (Frame Len: %d)", TypeName(fi.Type), fi.FrameLength)
	case TypeConsecutiveFrame, TypeConsecutiveFrame2:
		return fmt.Sprintf("%s (Seq: %d)", TypeName(fi.Type), fi.SeqNumber)
	case TypeAckFrame:
		return fmt.Sprintf("%s (Status: %d, Block size: 0x%x, Separation time minimum: %s, Ack: %d, Seq: %d)",
			TypeName(fi.Type), fi.FlowStatus, fi.BlockSize, fi.STmin, fi.Ack, fi.SeqNumber)
	case TypeFlowControl:
		return fmt.Sprintf("%s (Status: %d, Block size: 0x%x, Separation time minimum: %s)",
			TypeName(fi.Type), fi.FlowStatus, fi.BlockSize, fi.STmin)
	default:
		return TypeName(fi.Type)
	}
}

// classify parses the PCI byte(s) at offset ae (bytes consumed by
// addressing). A message-type nibble above 7 is a protocol violation:
// classification stops after the PCI byte and nothing else is consumed.
// segLimit is the FlexRay segment size cutoff, 0 = unlimited.
func classify(frame *core.LinkFrame, ae int, segLimit int) (*FrameInfo, error) {
	data := frame.Data
	if len(data) < ae+pciLen {
		return nil, fmt.Errorf("%w: no PCI byte at offset %d", core.ErrFrameTooShort, ae)
	}

	pci := data[ae]
	fi := &FrameInfo{Type: (pci & typeMask) >> 4}

	switch fi.Type {
	case TypeSingleFrame:
		if frame.Length > 8 && pci&dataLengthMask == 0 {
			// Escalated length byte, CAN-FD style frames only.
			if len(data) < ae+fdSingleHdrLen {
				return nil, fmt.Errorf("%w: truncated escalated single frame", core.ErrFrameTooShort)
			}
			fi.DataOffset = ae + fdSingleHdrLen
			fi.DataLength = int(data[ae+1])
		} else {
			fi.DataOffset = ae + pciLen
			fi.DataLength = int(pci & dataLengthMask)
		}
		if len(data) < fi.DataOffset+fi.DataLength {
			return nil, fmt.Errorf("%w: single frame declares %d payload bytes", core.ErrFrameTooShort, fi.DataLength)
		}
		fi.Complete = true

	case TypeFirstFrame:
		if len(data) < ae+2 {
			return nil, fmt.Errorf("%w: truncated first frame", core.ErrFrameTooShort)
		}
		pci16 := binary.BigEndian.Uint16(data[ae:])
		if pci16 == 0x1000 {
			// Escalated 32-bit length follows the zeroed 12-bit field.
			if len(data) < ae+fdFirstHdrLen {
				return nil, fmt.Errorf("%w: truncated escalated first frame", core.ErrFrameTooShort)
			}
			fi.FrameLength = binary.BigEndian.Uint32(data[ae+2:])
			fi.DataOffset = ae + fdFirstHdrLen
		} else {
			fi.FrameLength = uint32(pci16 & 0x0FFF)
			fi.DataOffset = ae + 2
		}
		fi.DataLength = len(data) - fi.DataOffset
		fi.Fragmented = true

	case TypeConsecutiveFrame, TypeConsecutiveFrame2:
		fi.DataOffset = ae + pciLen
		fi.DataLength = len(data) - fi.DataOffset
		fi.SeqNumber = pci & seqNumberMask
		fi.Fragmented = true

	case TypeFlowControl, TypeAckFrame:
		if len(data) < ae+fcSTminOffset+1 {
			return nil, fmt.Errorf("%w: truncated flow control frame", core.ErrFrameTooShort)
		}
		fi.FlowStatus = pci & flowStatusMask
		fi.BlockSize = data[ae+fcBlockSizeOffset]
		fi.STmin = decodeSTmin(data[ae+fcSTminOffset])
		if fi.Type == TypeAckFrame {
			if len(data) < ae+fcAckOffset+1 {
				return nil, fmt.Errorf("%w: truncated ack frame", core.ErrFrameTooShort)
			}
			fi.Ack = (data[ae+fcAckOffset] & ackMask) >> 4
			fi.SeqNumber = data[ae+fcAckOffset] & seqNumberMask
		}

	case TypeSingleFrameExt:
		// Same shape as the escalated single frame, but unconditional.
		if len(data) < ae+fdSingleHdrLen {
			return nil, fmt.Errorf("%w: truncated extended single frame", core.ErrFrameTooShort)
		}
		fi.DataOffset = ae + fdSingleHdrLen
		fi.DataLength = int(data[ae+1])
		if len(data) < fi.DataOffset+fi.DataLength {
			return nil, fmt.Errorf("%w: extended single frame declares %d payload bytes", core.ErrFrameTooShort, fi.DataLength)
		}
		fi.Complete = true

	case TypeFirstFrameExt:
		if len(data) < ae+pciLen+4 {
			return nil, fmt.Errorf("%w: truncated extended first frame", core.ErrFrameTooShort)
		}
		fi.FrameLength = binary.BigEndian.Uint32(data[ae+pciLen:])
		fi.DataOffset = ae + pciLen + 4
		fi.DataLength = len(data) - fi.DataOffset
		fi.Fragmented = true

	default:
		return nil, fmt.Errorf("%w: value %d > 7", core.ErrBadMessageType, fi.Type)
	}

	// FlexRay pads frames to a fixed size; the cutoff bounds how much of
	// the tail is real payload.
	if fi.Fragmented && frame.Kind == core.LinkFlexRay && segLimit != 0 {
		if budget := segLimit - (fi.DataOffset - ae); fi.DataLength > budget {
			fi.DataLength = budget
		}
	}
	if fi.DataLength < 0 {
		fi.DataLength = 0
	}

	return fi, nil
}
