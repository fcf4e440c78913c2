package isotp

import (
	"fmt"

	"firestige.xyz/buscap/internal/config"
	"firestige.xyz/buscap/internal/core"
	"firestige.xyz/buscap/internal/metrics"
)

// Config carries the preference surface of the transport layer. Zero
// values fall back to the protocol defaults in New.
type Config struct {
	ExtendedAddressing  bool // in-band address byte for CAN/CAN-FD
	FlexRayAddressing   int  // 1 or 2 bytes per address
	IPduMAddressing     int  // 0, 1 or 2 bytes per address
	FlexRaySegmentLimit int  // payload cutoff after addressing, 0 = unlimited
	Window              uint16

	CANRules []config.CANAddressRule
	PduRules []config.PduTransportRule
}

// frameNote is the state cached on a frame the first time it is
// analyzed. Revisits only read it, which keeps re-analysis of the same
// capture byte-identical: sequence ids are never allocated twice and
// wrap counters never advance twice for one physical frame.
type frameNote struct {
	linkID uint32
	seq    uint32
	fragID uint16
	last   bool
}

// linkKey identifies one link for conversation affinity purposes.
type linkKey struct {
	kind core.LinkKind
	id   uint32
}

// Session owns all per-capture conversation state. It is not safe for
// concurrent use; frames must be processed in capture order on the
// first pass, revisits may then come in any order.
type Session struct {
	cfg      Config
	resolver *resolver
	registry *Registry

	nextSeq       uint32
	lastSeqByLink map[linkKey]uint32
	conversations map[uint32]*conversation
	notes         map[uint32]*frameNote
}

// New creates an analysis session. registry may be nil when no
// next-level handlers or fallback sink are wanted.
func New(cfg Config, registry *Registry) *Session {
	if cfg.Window == 0 {
		cfg.Window = 8
	}
	if cfg.FlexRayAddressing == 0 {
		cfg.FlexRayAddressing = 1
	}
	return &Session{
		cfg:           cfg,
		resolver:      newResolver(cfg),
		registry:      registry,
		lastSeqByLink: make(map[linkKey]uint32),
		conversations: make(map[uint32]*conversation),
		notes:         make(map[uint32]*frameNote),
	}
}

// Result is the decoded outcome of analyzing one frame.
type Result struct {
	Frame     *FrameInfo
	Addresses core.AddressPair

	Seq    uint32 // conversation sequence id, 0 when untracked
	FragID uint16

	Complete    bool   // Payload is a full message
	Reassembled bool   // Complete via multi-frame reassembly
	Errored     bool   // conversation is in the errored terminal state
	Payload     []byte // full message when Complete, else raw fragment bytes
	Dispatched  bool   // a registered handler consumed the payload
}

// Summary renders the one-line info text for the frame.
func (r *Result) Summary() string {
	s := r.Frame.Summary()
	if r.Errored {
		return s + " [conversation error]"
	}
	if r.Reassembled {
		return fmt.Sprintf("%s [reassembled, %d bytes]", s, len(r.Payload))
	}
	return s
}

// Process runs one frame through address resolution, classification,
// conversation tracking and reassembly. The first analysis of a frame
// mutates session state; re-analysis of the same frame number only
// reads the cached note and reproduces the identical result.
func (s *Session) Process(frame *core.LinkFrame) (*Result, error) {
	note, visited := s.notes[frame.Num]

	addrs, ae, err := s.resolver.resolve(frame)
	if err != nil {
		return nil, err
	}

	fi, err := classify(frame, ae, s.cfg.FlexRaySegmentLimit)
	if err != nil {
		// Protocol violation or truncated frame: report and stop without
		// touching any conversation state.
		if !visited {
			metrics.ProtocolViolationsTotal.WithLabelValues(frame.Kind.String()).Inc()
		}
		return nil, err
	}

	if !visited {
		note = &frameNote{linkID: frame.LinkID}
		s.notes[frame.Num] = note
		metrics.FramesTotal.WithLabelValues(frame.Kind.String(), TypeName(fi.Type)).Inc()
	}

	res := &Result{Frame: fi, Addresses: addrs}
	key := linkKey{kind: frame.Kind, id: frame.LinkID}

	switch fi.Type {
	case TypeFirstFrame, TypeFirstFrameExt:
		if !visited {
			s.nextSeq++
			note.seq = s.nextSeq
			s.lastSeqByLink[key] = s.nextSeq
			s.conversations[note.seq] = newConversation(note.seq, fi.FrameLength)
			metrics.ConversationsStartedTotal.Inc()
		}
	case TypeConsecutiveFrame, TypeConsecutiveFrame2, TypeFlowControl, TypeAckFrame:
		// Simple affinity: continuation frames belong to the most recent
		// conversation started on the same link identifier.
		if !visited {
			note.seq = s.lastSeqByLink[key]
		}
	}
	res.Seq = note.seq

	info := Info{Kind: frame.Kind, LinkID: frame.LinkID, Addresses: addrs, FrameLength: frame.Length}

	if fi.Complete {
		// Single frames never involve the reassembly engine.
		res.Complete = true
		res.Payload = frame.Data[fi.DataOffset : fi.DataOffset+fi.DataLength]
		if s.registry != nil {
			res.Dispatched = s.registry.dispatch(res.Payload, info, true)
		}
		return res, nil
	}

	if !fi.Fragmented {
		// Flow control and ack frames carry no transported bytes.
		return res, nil
	}

	conv := s.conversations[note.seq]
	if conv == nil {
		// Continuation with no tracked start; render the raw bytes only.
		res.Payload = frame.Data[fi.DataOffset : fi.DataOffset+fi.DataLength]
		return res, nil
	}

	if !visited {
		note.fragID = conv.expandFragID(fi.SeqNumber)
		if note.fragID+s.cfg.Window < conv.lastFragID {
			// Two physically distinct conversations collided on this link
			// identifier without a quiet gap; poison the assembly for good.
			conv.errored = true
			metrics.ConversationErrorsTotal.Inc()
		}
	}
	res.FragID = note.fragID
	res.Errored = conv.errored

	if conv.errored {
		res.Payload = frame.Data[fi.DataOffset : fi.DataOffset+fi.DataLength]
		if s.registry != nil {
			s.registry.dispatch(res.Payload, info, false)
		}
		return res, nil
	}

	length := uint32(fi.DataLength)
	if !visited {
		if note.fragID > conv.lastFragID {
			conv.lastFragID = note.fragID
		}
		conv.offset += length
		if conv.offset >= conv.declaredLen {
			excess := conv.offset - conv.declaredLen
			if excess >= length {
				// Stale fragment arriving after the message already
				// finished; it contributes nothing.
				length = 0
			} else {
				// Completing fragment: drop the trailing pad bytes.
				length -= excess
			}
			if !conv.complete {
				note.last = true
				conv.complete = true
				metrics.MessagesReassembledTotal.Inc()
			}
		}
		conv.addFragment(note.fragID, frame.Data[fi.DataOffset:fi.DataOffset+int(length)])
	}

	if note.last && conv.complete {
		res.Complete = true
		res.Reassembled = true
		res.Payload = conv.assemble()
		if s.registry != nil {
			res.Dispatched = s.registry.dispatch(res.Payload, info, true)
		}
		return res, nil
	}

	res.Payload = frame.Data[fi.DataOffset : fi.DataOffset+fi.DataLength]
	if s.registry != nil {
		s.registry.dispatch(res.Payload, info, false)
	}
	return res, nil
}

// Conversations returns how many assemblies the session has tracked.
func (s *Session) Conversations() int {
	return len(s.conversations)
}
