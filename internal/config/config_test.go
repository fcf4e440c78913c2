package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
buscap:
  capture:
    options:
      path: /tmp/capture.pcap
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Capture.Source)
	assert.Equal(t, "normal", cfg.Transport.Addressing)
	assert.Equal(t, uint16(8), cfg.Transport.Window)
	assert.Equal(t, 1, cfg.Transport.FlexRayAddressing)
	assert.True(t, cfg.Transport.LINDiagFrames)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)

	// Empty claim ranges claim every identifier.
	assert.True(t, cfg.Transport.ClaimsCANID(0x7E0))
	assert.True(t, cfg.Transport.ClaimsExtCANID(0x18DAF142))
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
buscap:
  capture:
    source: file
    options:
      path: /tmp/capture.pcap
  transport:
    addressing: extended
    window: 4
    flexray_addressing: 2
    ipdum_addressing: 1
    can_ids: "0x700-0x7ff"
    ext_can_ids: "0x18da0000-0x18daffff"
  rules:
    file: /etc/buscap/rules.yml
  metrics:
    enabled: true
    listen: ":9200"
  log:
    level: debug
    file:
      enabled: true
      path: /tmp/buscap.log
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "extended", cfg.Transport.Addressing)
	assert.Equal(t, uint16(4), cfg.Transport.Window)
	assert.Equal(t, 2, cfg.Transport.FlexRayAddressing)
	assert.Equal(t, 1, cfg.Transport.IPduMAddressing)
	assert.Equal(t, "/etc/buscap/rules.yml", cfg.Rules.File)
	assert.Equal(t, ":9200", cfg.Metrics.Listen)

	assert.True(t, cfg.Transport.ClaimsCANID(0x7E0))
	assert.False(t, cfg.Transport.ClaimsCANID(0x600))
	assert.True(t, cfg.Transport.ClaimsExtCANID(0x18DA0001))
	assert.False(t, cfg.Transport.ClaimsExtCANID(0x18DB0000))

	lc := cfg.LoggerOptions()
	assert.Equal(t, "debug", lc.Level)
	require.NotNil(t, lc.File)
	assert.Equal(t, "/tmp/buscap.log", lc.File.Filename)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad addressing": `
buscap:
  transport:
    addressing: weird
`,
		"bad flexray width": `
buscap:
  transport:
    flexray_addressing: 3
`,
		"bad ipdum width": `
buscap:
  transport:
    ipdum_addressing: 5
`,
		"can id out of range": `
buscap:
  transport:
    can_ids: "0x800"
`,
		"bad log level": `
buscap:
  log:
    level: loud
`,
	}
	for name, content := range cases {
		_, err := Load(writeConfig(t, content))
		assert.Error(t, err, name)
	}
}

func TestDecodeOptions(t *testing.T) {
	cfg := CaptureConfig{Options: map[string]interface{}{"path": "/tmp/x.pcap"}}
	var opts struct {
		Path string `mapstructure:"path"`
	}
	require.NoError(t, cfg.DecodeOptions(&opts))
	assert.Equal(t, "/tmp/x.pcap", opts.Path)
}

func TestParseIDRanges(t *testing.T) {
	set, err := ParseIDRanges("0x700-0x7ff, 0x123", 0x7ff)
	require.NoError(t, err)
	assert.False(t, set.Empty())
	assert.True(t, set.Contains(0x700))
	assert.True(t, set.Contains(0x7ff))
	assert.True(t, set.Contains(0x123))
	assert.False(t, set.Contains(0x6ff))
	assert.False(t, set.Contains(0x124))

	set, err = ParseIDRanges("", 0x7ff)
	require.NoError(t, err)
	assert.True(t, set.Empty())
	assert.True(t, set.Contains(0x42))

	_, err = ParseIDRanges("0x800", 0x7ff)
	assert.Error(t, err)
	_, err = ParseIDRanges("0x200-0x100", 0x7ff)
	assert.Error(t, err)
	_, err = ParseIDRanges("zzz", 0x7ff)
	assert.Error(t, err)
}
