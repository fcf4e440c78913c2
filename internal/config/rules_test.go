package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/buscap/internal/core"
)

func TestParseRules(t *testing.T) {
	data := []byte(`
can_id_mappings:
  - can_id: 0x600
    can_id_mask: 0x700
    ecu_addr_mask: 0x0ff
  - extended: true
    can_id: 0x18da0000
    can_id_mask: 0x1fff0000
    source_addr_mask: 0x000000ff
    target_addr_mask: 0x0000ff00
pdu_transport:
  - pdu_id: 0x42
    ecu_addr:
      size: 2
  - pdu_id: 0x43
    source_addr:
      size: 1
    target_addr:
      fixed: 0xa0
`)
	rules, errs := ParseRules(data)
	require.Empty(t, errs)
	require.NotNil(t, rules)
	assert.Len(t, rules.CANMappings, 2)
	assert.Len(t, rules.PduTransport, 2)
	assert.True(t, rules.CANMappings[1].Extended)
	require.NotNil(t, rules.PduTransport[1].Target.Fixed)
	assert.Equal(t, uint32(0xa0), *rules.PduTransport[1].Target.Fixed)
}

func TestParseRulesDropsInvalid(t *testing.T) {
	data := []byte(`
can_id_mappings:
  - can_id: 0x600
    can_id_mask: 0x700
    ecu_addr_mask: 0x0ff
    source_addr_mask: 0x0ff
    target_addr_mask: 0xf00
  - can_id: 0x700
    can_id_mask: 0x700
    ecu_addr_mask: 0x0f0
pdu_transport:
  - pdu_id: 0x42
    ecu_addr:
      size: 2
  - pdu_id: 0x42
    ecu_addr:
      size: 1
`)
	rules, errs := ParseRules(data)
	require.NotNil(t, rules)
	// One mapping mixes ECU and source/target masks, one PDU id repeats.
	assert.Len(t, errs, 2)
	assert.Len(t, rules.CANMappings, 1)
	assert.Len(t, rules.PduTransport, 1)
}

func TestCANAddressRuleValidate(t *testing.T) {
	cases := map[string]CANAddressRule{
		"no masks":           {CANID: 0x600, CANIDMask: 0x700},
		"mixed masks":        {ECUAddrMask: 0xFF, SourceAddrMask: 0xFF, TargetAddrMask: 0xF0},
		"source only":        {SourceAddrMask: 0xFF},
		"mask exceeds 11bit": {ECUAddrMask: 0x1800},
	}
	for name, rule := range cases {
		if err := rule.Validate(); !errors.Is(err, core.ErrConfigInvalid) {
			t.Errorf("%s: err = %v, want config invalid", name, err)
		}
	}

	ok := CANAddressRule{Extended: true, CANID: 0x18da0000, CANIDMask: 0x1fff0000, ECUAddrMask: 0xFF00}
	assert.NoError(t, ok.Validate())
}

func TestPduTransportRuleValidate(t *testing.T) {
	fixed := uint32(1)
	cases := map[string]PduTransportRule{
		"size and fixed":  {PduID: 1, ECU: AddressSpec{Size: 1, Fixed: &fixed}},
		"size too large":  {PduID: 1, ECU: AddressSpec{Size: 3}},
		"ecu with source": {PduID: 1, ECU: AddressSpec{Size: 1}, Source: AddressSpec{Size: 1}, Target: AddressSpec{Size: 1}},
		"source alone":    {PduID: 1, Source: AddressSpec{Size: 1}},
	}
	for name, rule := range cases {
		if err := rule.Validate(); !errors.Is(err, core.ErrConfigInvalid) {
			t.Errorf("%s: err = %v, want config invalid", name, err)
		}
	}

	assert.NoError(t, (&PduTransportRule{PduID: 1}).Validate())
	assert.NoError(t, (&PduTransportRule{PduID: 1, ECU: AddressSpec{Size: 2}}).Validate())
}

func TestParseRulesBadYAML(t *testing.T) {
	rules, errs := ParseRules([]byte("can_id_mappings: {broken"))
	assert.Nil(t, rules)
	assert.Len(t, errs, 1)
}
