package isotp

import (
	"fmt"
	"sort"
)

// maxFragments is the hard ceiling per conversation: 16 low-nibble
// values times a uint8 wrap counter. A conversation exceeding it cannot
// legitimately occur, so crossing the bound is an internal-consistency
// failure rather than a recoverable condition.
const maxFragments = 16 * 255

// conversation is one tracked multi-frame assembly. Entries live for
// the whole analysis session: earlier frames may be revisited at any
// time and must find their conversation again.
type conversation struct {
	seq         uint32
	declaredLen uint32
	offset      uint32 // bytes accumulated in arrival order
	errored     bool
	complete    bool
	lastFragID  uint16
	wrap        [16]uint8 // per-low-nibble wraparound counters

	frags     map[uint16][]byte
	assembled []byte
}

func newConversation(seq, declaredLen uint32) *conversation {
	return &conversation{
		seq:         seq,
		declaredLen: declaredLen,
		frags:       make(map[uint16][]byte),
	}
}

// expandFragID widens the 4-bit wire sequence number into an unbounded
// fragment id using the per-nibble wrap counter. Must only be called on
// the first analysis of a frame, it mutates the counter.
func (c *conversation) expandFragID(low uint8) uint16 {
	if low > 15 {
		panic(fmt.Sprintf("isotp: fragment sequence nibble %d out of range", low))
	}
	before := c.wrap[low]
	c.wrap[low]++
	if c.wrap[low] == 0 {
		panic(fmt.Sprintf("isotp: conversation %d exceeded %d fragments", c.seq, maxFragments))
	}
	return uint16(low) + 16*uint16(before)
}

// addFragment records a fragment payload under its expanded id. The
// payload is copied, the capture buffer may be reused by the reader.
func (c *conversation) addFragment(id uint16, payload []byte) {
	if _, dup := c.frags[id]; dup {
		return
	}
	c.frags[id] = append([]byte(nil), payload...)
}

// assemble concatenates the recorded fragments in increasing fragment
// id order, clamped to the declared total length. The result is cached:
// revisits of the completing frame reproduce the identical buffer.
func (c *conversation) assemble() []byte {
	if c.assembled != nil {
		return c.assembled
	}
	ids := make([]int, 0, len(c.frags))
	for id := range c.frags {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	buf := make([]byte, 0, c.declaredLen)
	for _, id := range ids {
		buf = append(buf, c.frags[uint16(id)]...)
	}
	if uint32(len(buf)) > c.declaredLen {
		buf = buf[:c.declaredLen]
	}
	c.assembled = buf
	return buf
}
