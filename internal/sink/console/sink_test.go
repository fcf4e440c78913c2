package console

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/buscap/internal/core"
	"firestige.xyz/buscap/internal/isotp"
)

func TestSinkConsume(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkWriter(&buf)

	err := s.Consume([]byte{0x22, 0xF1, 0x90}, isotp.Info{
		Kind:      core.LinkCAN,
		LinkID:    0x7E0,
		Addresses: core.AddressPair{Valid: 2, Source: 0xF1, Target: 0x42},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "can/0x7e0")
	assert.Contains(t, out, "src=0xf1 dst=0x42")
	assert.Contains(t, out, "3 bytes")
	assert.Contains(t, out, "22 f1 90")
}

func TestSinkConsumeAddressless(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkWriter(&buf)

	err := s.Consume([]byte{0x01}, isotp.Info{Kind: core.LinkLIN, LinkID: 0x3C, Addresses: core.NoAddresses()})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "src=")
	assert.Contains(t, buf.String(), "lin/0x3c")
}
