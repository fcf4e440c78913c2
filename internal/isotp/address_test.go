package isotp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/buscap/internal/config"
	"firestige.xyz/buscap/internal/core"
)

func frameOn(kind core.LinkKind, id uint32, data ...byte) *core.LinkFrame {
	return &core.LinkFrame{Num: 1, Kind: kind, LinkID: id, Data: data, Length: uint32(len(data))}
}

func TestResolveNormalCANWithoutRules(t *testing.T) {
	r := newResolver(Config{})
	pair, ae, err := r.resolve(frameOn(core.LinkCAN, 0x7E0, 0x02, 0x10, 0x01))
	require.NoError(t, err)
	assert.Equal(t, 0, ae)
	assert.Equal(t, uint8(0), pair.Valid)
	assert.Equal(t, core.AddrInvalid, pair.Source)
}

func TestResolveExtendedAddressing(t *testing.T) {
	r := newResolver(Config{ExtendedAddressing: true})
	pair, ae, err := r.resolve(frameOn(core.LinkCAN, 0x7E0, 0x55, 0x02, 0x10, 0x01))
	require.NoError(t, err)
	assert.Equal(t, 1, ae)
	assert.Equal(t, uint8(1), pair.Valid)
	assert.Equal(t, uint32(0x55), pair.Source)
	assert.Equal(t, uint32(0x55), pair.Target)
}

func TestResolveLINAlwaysExtended(t *testing.T) {
	// LIN consumes the in-band address byte regardless of the CAN
	// addressing preference.
	r := newResolver(Config{})
	pair, ae, err := r.resolve(frameOn(core.LinkLIN, 0x3C, 0x0A, 0x02, 0x3E, 0x00))
	require.NoError(t, err)
	assert.Equal(t, 1, ae)
	assert.Equal(t, uint32(0x0A), pair.Source)
}

func TestResolveCANMappingECUMask(t *testing.T) {
	r := newResolver(Config{
		CANRules: []config.CANAddressRule{{
			CANID:       0x600,
			CANIDMask:   0x700,
			ECUAddrMask: 0x0FF,
		}},
	})
	pair, ae, err := r.resolve(frameOn(core.LinkCAN, 0x642, 0x02, 0x10, 0x01))
	require.NoError(t, err)
	assert.Equal(t, 0, ae)
	assert.Equal(t, uint8(1), pair.Valid)
	assert.Equal(t, uint32(0x42), pair.Source)
	assert.Equal(t, uint32(0x42), pair.Target)
}

func TestResolveCANMappingSourceTarget(t *testing.T) {
	r := newResolver(Config{
		CANRules: []config.CANAddressRule{{
			Extended:       true,
			CANID:          0x18DA0000,
			CANIDMask:      0x1FFF0000,
			SourceAddrMask: 0x000000FF,
			TargetAddrMask: 0x0000FF00,
		}},
	})
	id := uint32(0x18DAF142) | core.CANFlagExtended
	pair, _, err := r.resolve(frameOn(core.LinkCANFD, id, 0x02, 0x10, 0x01))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), pair.Valid)
	assert.Equal(t, uint32(0x42), pair.Source)
	assert.Equal(t, uint32(0xF1), pair.Target)
}

func TestResolveCANMappingFirstMatchWins(t *testing.T) {
	r := newResolver(Config{
		CANRules: []config.CANAddressRule{
			{CANID: 0x600, CANIDMask: 0x700, ECUAddrMask: 0x0FF},
			{CANID: 0x600, CANIDMask: 0x600, ECUAddrMask: 0x0F0},
		},
	})
	pair, _, err := r.resolve(frameOn(core.LinkCAN, 0x642, 0x01, 0xAA))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x42), pair.Source)
}

func TestResolveFlexRayWidths(t *testing.T) {
	r := newResolver(Config{FlexRayAddressing: 2})
	pair, ae, err := r.resolve(frameOn(core.LinkFlexRay, 0x50000, 0x12, 0x34, 0x56, 0x78, 0x10, 0x20))
	require.NoError(t, err)
	assert.Equal(t, 4, ae)
	assert.Equal(t, uint32(0x1234), pair.Source)
	assert.Equal(t, uint32(0x5678), pair.Target)

	r = newResolver(Config{FlexRayAddressing: 1})
	pair, ae, err = r.resolve(frameOn(core.LinkFlexRay, 0x50000, 0x12, 0x34, 0x10))
	require.NoError(t, err)
	assert.Equal(t, 2, ae)
	assert.Equal(t, uint32(0x12), pair.Source)
	assert.Equal(t, uint32(0x34), pair.Target)
}

func TestResolveIPduMDisabled(t *testing.T) {
	r := newResolver(Config{IPduMAddressing: 0})
	pair, ae, err := r.resolve(frameOn(core.LinkIPduM, 0x42, 0x02, 0x10, 0x01))
	require.NoError(t, err)
	assert.Equal(t, 0, ae)
	assert.Equal(t, uint8(0), pair.Valid)
}

func TestResolvePduTransportECUFromWire(t *testing.T) {
	r := newResolver(Config{
		PduRules: []config.PduTransportRule{{
			PduID: 0x42,
			ECU:   config.AddressSpec{Size: 2},
		}},
	})
	pair, ae, err := r.resolve(frameOn(core.LinkPduTransport, 0x42, 0xBE, 0xEF, 0x02, 0x10, 0x01))
	require.NoError(t, err)
	assert.Equal(t, 2, ae)
	assert.Equal(t, uint8(1), pair.Valid)
	assert.Equal(t, uint32(0xBEEF), pair.Source)
}

func TestResolvePduTransportFixedAndWire(t *testing.T) {
	fixed := uint32(0xA0)
	r := newResolver(Config{
		PduRules: []config.PduTransportRule{{
			PduID:  0x42,
			Source: config.AddressSpec{Size: 1},
			Target: config.AddressSpec{Fixed: &fixed},
		}},
	})
	pair, ae, err := r.resolve(frameOn(core.LinkPduTransport, 0x42, 0x17, 0x02, 0x10, 0x01))
	require.NoError(t, err)
	assert.Equal(t, 1, ae)
	assert.Equal(t, uint8(2), pair.Valid)
	assert.Equal(t, uint32(0x17), pair.Source)
	assert.Equal(t, uint32(0xA0), pair.Target)
}

func TestResolvePduTransportNoRule(t *testing.T) {
	r := newResolver(Config{})
	pair, ae, err := r.resolve(frameOn(core.LinkPduTransport, 0x99, 0x02, 0x10, 0x01))
	require.NoError(t, err)
	assert.Equal(t, 0, ae)
	assert.Equal(t, uint8(0), pair.Valid)
}

func TestResolveMissingAddressBytes(t *testing.T) {
	r := newResolver(Config{FlexRayAddressing: 2})
	_, _, err := r.resolve(frameOn(core.LinkFlexRay, 0x50000, 0x12, 0x34))
	assert.True(t, errors.Is(err, core.ErrFrameTooShort))

	r = newResolver(Config{ExtendedAddressing: true})
	_, _, err = r.resolve(frameOn(core.LinkCAN, 0x7E0))
	assert.True(t, errors.Is(err, core.ErrFrameTooShort))
}

func TestMaskedValue(t *testing.T) {
	assert.Equal(t, uint32(0x42), maskedValue(0x18DAF142, 0x000000FF))
	assert.Equal(t, uint32(0xF1), maskedValue(0x18DAF142, 0x0000FF00))
	assert.Equal(t, uint32(0x18), maskedValue(0x18DAF142, 0x1F000000))
}
