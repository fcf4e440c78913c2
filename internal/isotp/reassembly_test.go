package isotp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandFragIDWraparound(t *testing.T) {
	c := newConversation(1, 1000)

	// First cycle of nibbles maps to 0..15.
	for low := uint8(0); low < 16; low++ {
		if id := c.expandFragID(low); id != uint16(low) {
			t.Fatalf("first cycle: expand(%d) = %d", low, id)
		}
	}
	// Second cycle lands 16 higher.
	for low := uint8(0); low < 16; low++ {
		if id := c.expandFragID(low); id != uint16(low)+16 {
			t.Fatalf("second cycle: expand(%d) = %d", low, id)
		}
	}
}

func TestExpandFragIDOutOfRange(t *testing.T) {
	c := newConversation(1, 100)
	assert.Panics(t, func() { c.expandFragID(16) })
}

func TestExpandFragIDCeiling(t *testing.T) {
	c := newConversation(1, 100)
	for i := 0; i < 255; i++ {
		c.expandFragID(3)
	}
	assert.Panics(t, func() { c.expandFragID(3) })
}

func TestAddFragmentDuplicateIgnored(t *testing.T) {
	c := newConversation(1, 8)
	c.addFragment(0, []byte{1, 2, 3, 4})
	c.addFragment(0, []byte{9, 9, 9, 9})
	c.addFragment(1, []byte{5, 6, 7, 8})

	got := c.assemble()
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(got, want) {
		t.Errorf("assemble = %x, want %x", got, want)
	}
}

func TestAddFragmentCopiesPayload(t *testing.T) {
	buf := []byte{1, 2, 3}
	c := newConversation(1, 3)
	c.addFragment(0, buf)
	buf[0] = 0xFF

	if got := c.assemble(); got[0] != 1 {
		t.Errorf("fragment shares the caller buffer")
	}
}

func TestAssembleOrdersAndClamps(t *testing.T) {
	c := newConversation(1, 7)
	c.addFragment(2, []byte{6, 7, 8}) // trailing pad byte dropped by the clamp
	c.addFragment(0, []byte{0, 1, 2})
	c.addFragment(1, []byte{3, 4, 5})

	got := c.assemble()
	want := []byte{0, 1, 2, 3, 4, 5, 6}
	if !bytes.Equal(got, want) {
		t.Errorf("assemble = %x, want %x", got, want)
	}

	// Cached result is stable across calls.
	assert.Equal(t, got, c.assemble())
}
