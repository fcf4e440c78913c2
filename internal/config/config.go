// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"firestige.xyz/buscap/internal/log"
)

// GlobalConfig represents the top-level static configuration.
// Maps to the `buscap:` root key in YAML.
type GlobalConfig struct {
	Capture   CaptureConfig   `mapstructure:"capture"`
	Transport TransportConfig `mapstructure:"transport"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// CaptureConfig selects the capture source and its source-specific
// options. Options are decoded by the source implementation itself,
// so new source types do not grow this struct.
type CaptureConfig struct {
	Source  string                 `mapstructure:"source"` // "file"
	Options map[string]interface{} `mapstructure:"options"`
}

// DecodeOptions decodes the free-form options map into a
// source-specific option struct.
func (c *CaptureConfig) DecodeOptions(out interface{}) error {
	if err := mapstructure.Decode(c.Options, out); err != nil {
		return fmt.Errorf("invalid capture options: %w", err)
	}
	return nil
}

// TransportConfig contains the transport-layer analysis preferences.
type TransportConfig struct {
	Addressing              string `mapstructure:"addressing"`                 // "normal" | "extended"
	Window                  uint16 `mapstructure:"window"`                     // sequence tolerance for the overlap check
	FlexRayAddressing       int    `mapstructure:"flexray_addressing"`         // 1 | 2 bytes per address
	FlexRaySegmentSizeLimit int    `mapstructure:"flexray_segment_size_limit"` // 0 = no cutoff
	IPduMAddressing         int    `mapstructure:"ipdum_addressing"`           // 0 | 1 | 2 bytes per address
	LINDiagFrames           bool   `mapstructure:"lin_diag_frames"`            // claim LIN 0x3C/0x3D diagnostic frames

	// Claimed identifier ranges, e.g. "0x700-0x7ff,0x123". Frames whose
	// identifiers fall outside the claimed set bypass transport analysis.
	CANIDs    string `mapstructure:"can_ids"`
	ExtCANIDs string `mapstructure:"ext_can_ids"`
	PduIDs    string `mapstructure:"pdu_ids"`

	canIDs    *IDSet
	extCANIDs *IDSet
	pduIDs    *IDSet
}

// ClaimsCANID reports whether a standard CAN identifier is claimed for
// transport analysis. An empty range string claims everything.
func (c *TransportConfig) ClaimsCANID(id uint32) bool { return c.canIDs.Contains(id) }

// ClaimsExtCANID reports whether a 29 bit CAN identifier is claimed.
func (c *TransportConfig) ClaimsExtCANID(id uint32) bool { return c.extCANIDs.Contains(id) }

// ClaimsPduID reports whether a PDU-transport identifier is claimed.
func (c *TransportConfig) ClaimsPduID(id uint32) bool { return c.pduIDs.Contains(id) }

// RulesConfig points at the address mapping rule tables.
type RulesConfig struct {
	File string `mapstructure:"file"` // YAML rule table, empty = no rules
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string        `mapstructure:"level"`   // trace / debug / info / warn / error
	Pattern string        `mapstructure:"pattern"` // formatter pattern, empty = default
	Time    string        `mapstructure:"time"`    // timestamp layout, empty = default
	File    FileLogConfig `mapstructure:"file"`
}

// FileLogConfig configures the rotating file appender.
type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggerOptions translates the log section into the log package config.
func (cfg *GlobalConfig) LoggerOptions() *log.LoggerConfig {
	lc := &log.LoggerConfig{
		Pattern: cfg.Log.Pattern,
		Time:    cfg.Log.Time,
		Level:   cfg.Log.Level,
	}
	if cfg.Log.File.Enabled {
		lc.File = &log.FileAppenderOpt{
			Filename:   cfg.Log.File.Path,
			MaxSize:    cfg.Log.File.MaxSizeMB,
			MaxAge:     cfg.Log.File.MaxAgeDays,
			MaxBackups: cfg.Log.File.MaxBackups,
			Compress:   cfg.Log.File.Compress,
		}
	}
	return lc
}

// configRoot is the top-level wrapper matching the YAML structure `buscap: ...`.
type configRoot struct {
	Buscap GlobalConfig `mapstructure:"buscap"`
}

// Load loads configuration from file.
// The YAML file uses `buscap:` as root key; env vars override via the
// key replacer (e.g. key "buscap.log.level" maps to BUSCAP_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Buscap

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "buscap." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("buscap.capture.source", "file")

	// Transport defaults
	v.SetDefault("buscap.transport.addressing", "normal")
	v.SetDefault("buscap.transport.window", 8)
	v.SetDefault("buscap.transport.flexray_addressing", 1)
	v.SetDefault("buscap.transport.flexray_segment_size_limit", 0)
	v.SetDefault("buscap.transport.ipdum_addressing", 0)
	v.SetDefault("buscap.transport.lin_diag_frames", true)

	// Log defaults
	v.SetDefault("buscap.log.level", "info")
	v.SetDefault("buscap.log.file.enabled", false)
	v.SetDefault("buscap.log.file.path", "/var/log/buscap/buscap.log")
	v.SetDefault("buscap.log.file.max_size_mb", 100)
	v.SetDefault("buscap.log.file.max_age_days", 30)
	v.SetDefault("buscap.log.file.max_backups", 5)
	v.SetDefault("buscap.log.file.compress", true)

	// Metrics defaults
	v.SetDefault("buscap.metrics.enabled", false)
	v.SetDefault("buscap.metrics.listen", ":9091")
	v.SetDefault("buscap.metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and resolves the
// claimed identifier range sets.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}

	if cfg.Capture.Source == "" {
		cfg.Capture.Source = "file"
	}

	t := &cfg.Transport
	if t.Addressing != "normal" && t.Addressing != "extended" {
		return fmt.Errorf("invalid transport.addressing: %s (must be normal/extended)", t.Addressing)
	}
	if t.Window == 0 {
		t.Window = 8
	}
	if t.FlexRayAddressing != 1 && t.FlexRayAddressing != 2 {
		return fmt.Errorf("invalid transport.flexray_addressing: %d (must be 1 or 2)", t.FlexRayAddressing)
	}
	if t.IPduMAddressing < 0 || t.IPduMAddressing > 2 {
		return fmt.Errorf("invalid transport.ipdum_addressing: %d (must be 0, 1 or 2)", t.IPduMAddressing)
	}
	if t.FlexRaySegmentSizeLimit < 0 {
		return fmt.Errorf("invalid transport.flexray_segment_size_limit: %d", t.FlexRaySegmentSizeLimit)
	}

	var err error
	if t.canIDs, err = ParseIDRanges(t.CANIDs, 0x7ff); err != nil {
		return fmt.Errorf("invalid transport.can_ids: %w", err)
	}
	if t.extCANIDs, err = ParseIDRanges(t.ExtCANIDs, 0x1fffffff); err != nil {
		return fmt.Errorf("invalid transport.ext_can_ids: %w", err)
	}
	if t.pduIDs, err = ParseIDRanges(t.PduIDs, 0xffffffff); err != nil {
		return fmt.Errorf("invalid transport.pdu_ids: %w", err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}
