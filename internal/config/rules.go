package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"firestige.xyz/buscap/internal/core"
)

// CANAddressRule maps a CAN identifier pattern to diagnostic addresses.
// Either ECUAddrMask alone is set (one address, source == target) or
// SourceAddrMask and TargetAddrMask are set together (two addresses).
// Rules are matched in file order, first match wins.
type CANAddressRule struct {
	Extended       bool   `yaml:"extended"` // 29-bit id (true) or 11-bit id (false)
	CANID          uint32 `yaml:"can_id"`
	CANIDMask      uint32 `yaml:"can_id_mask"`
	SourceAddrMask uint32 `yaml:"source_addr_mask"`
	TargetAddrMask uint32 `yaml:"target_addr_mask"`
	ECUAddrMask    uint32 `yaml:"ecu_addr_mask"`
}

// Validate checks the mask combination and bit-width invariants.
func (r *CANAddressRule) Validate() error {
	if r.SourceAddrMask == 0 && r.TargetAddrMask == 0 && r.ECUAddrMask == 0 {
		return fmt.Errorf("%w: define the ECU mask or source mask/target mask", core.ErrConfigInvalid)
	}
	if (r.SourceAddrMask != 0 || r.TargetAddrMask != 0) && r.ECUAddrMask != 0 {
		return fmt.Errorf("%w: source/target masks and ECU mask are mutually exclusive", core.ErrConfigInvalid)
	}
	if (r.SourceAddrMask == 0 || r.TargetAddrMask == 0) && r.ECUAddrMask == 0 {
		return fmt.Errorf("%w: source mask and target mask must be set together", core.ErrConfigInvalid)
	}

	idMask := core.CANMaskStandard
	width := "standard (11bit)"
	if r.Extended {
		idMask = core.CANMaskExtended
		width = "extended (29bit)"
	}
	for name, mask := range map[string]uint32{
		"source": r.SourceAddrMask,
		"target": r.TargetAddrMask,
		"ecu":    r.ECUAddrMask,
	} {
		if mask&^idMask != 0 {
			return fmt.Errorf("%w: %s address mask 0x%x covers bits not allowed for %s ids",
				core.ErrConfigInvalid, name, mask, width)
		}
	}
	return nil
}

// AddressSpec configures one address slot of a PDU transport rule: the
// address is either extracted from the wire (Size bytes, 1 or 2) or
// fixed to a configured value, never both.
type AddressSpec struct {
	Size  uint32  `yaml:"size"`
	Fixed *uint32 `yaml:"fixed"`
}

// Configured reports whether the slot is set at all.
func (a AddressSpec) Configured() bool {
	return a.Size != 0 || a.Fixed != nil
}

func (a AddressSpec) validate(name string) error {
	if a.Size != 0 && a.Fixed != nil {
		return fmt.Errorf("%w: %s address can set a size or a fixed value, not both", core.ErrConfigInvalid, name)
	}
	if a.Size > 2 {
		return fmt.Errorf("%w: %s address size must be 0, 1 or 2 bytes", core.ErrConfigInvalid, name)
	}
	return nil
}

// PduTransportRule configures addressing for one PDU id on the generic
// PDU transport. The ECU slot is mutually exclusive with source/target;
// source and target must be configured together.
type PduTransportRule struct {
	PduID  uint32      `yaml:"pdu_id"`
	Source AddressSpec `yaml:"source_addr"`
	Target AddressSpec `yaml:"target_addr"`
	ECU    AddressSpec `yaml:"ecu_addr"`
}

// Validate checks the slot combination invariants.
func (r *PduTransportRule) Validate() error {
	for name, spec := range map[string]AddressSpec{
		"source": r.Source,
		"target": r.Target,
		"ecu":    r.ECU,
	} {
		if err := spec.validate(name); err != nil {
			return err
		}
	}
	if r.ECU.Configured() && (r.Source.Configured() || r.Target.Configured()) {
		return fmt.Errorf("%w: ECU address and source/target addresses are mutually exclusive", core.ErrConfigInvalid)
	}
	if r.Source.Configured() != r.Target.Configured() {
		return fmt.Errorf("%w: source and target addresses must be configured together", core.ErrConfigInvalid)
	}
	return nil
}

// RuleSet is the loaded contents of the rule-table file.
type RuleSet struct {
	CANMappings  []CANAddressRule   `yaml:"can_id_mappings"`
	PduTransport []PduTransportRule `yaml:"pdu_transport"`
}

// LoadRules parses the rule-table YAML file. Invalid rules are dropped
// and reported in the returned error slice; valid rules stay active.
func LoadRules(path string) (*RuleSet, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read rules file: %w", err)}
	}
	return ParseRules(data)
}

// ParseRules parses and validates rule-table YAML.
func ParseRules(data []byte) (*RuleSet, []error) {
	var raw RuleSet
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, []error{fmt.Errorf("failed to parse rules file: %w", err)}
	}

	var errs []error
	out := &RuleSet{}
	for i := range raw.CANMappings {
		if err := raw.CANMappings[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("can_id_mappings[%d]: %w", i, err))
			continue
		}
		out.CANMappings = append(out.CANMappings, raw.CANMappings[i])
	}
	seen := make(map[uint32]bool)
	for i := range raw.PduTransport {
		rec := raw.PduTransport[i]
		if err := rec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("pdu_transport[%d]: %w", i, err))
			continue
		}
		if seen[rec.PduID] {
			errs = append(errs, fmt.Errorf("pdu_transport[%d]: %w: duplicate pdu id 0x%x", i, core.ErrConfigInvalid, rec.PduID))
			continue
		}
		seen[rec.PduID] = true
		out.PduTransport = append(out.PduTransport, rec)
	}
	return out, errs
}
