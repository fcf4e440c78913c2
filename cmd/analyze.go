// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/buscap/internal/config"
	"firestige.xyz/buscap/internal/core"
	"firestige.xyz/buscap/internal/isotp"
	"firestige.xyz/buscap/internal/log"
	"firestige.xyz/buscap/internal/metrics"
	"firestige.xyz/buscap/internal/sink/console"
	"firestige.xyz/buscap/internal/source"
	"firestige.xyz/buscap/internal/source/file"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a capture file",
	Long: `Analyze a capture file: classify transport frames, track
multi-frame conversations and reassemble segmented messages.

Examples:
  buscap analyze -c config.yml
  buscap analyze -c config.yml --verify --quiet`,
	Run: func(cmd *cobra.Command, args []string) {
		runAnalyze()
	},
}

var (
	analyzeVerify bool
	analyzeQuiet  bool
)

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeVerify, "verify", false,
		"re-analyze every frame and verify identical results")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false,
		"suppress per-frame output")
}

func runAnalyze() {
	cfg, err := config.Load(configFile)
	if err != nil {
		exitWithError("invalid configuration", err)
	}
	log.Init(cfg.LoggerOptions())
	logger := log.GetLogger()

	rules := &config.RuleSet{}
	if cfg.Rules.File != "" {
		var ruleErrs []error
		rules, ruleErrs = config.LoadRules(cfg.Rules.File)
		for _, e := range ruleErrs {
			logger.WithError(e).Warn("rule dropped")
		}
		if rules == nil {
			exitWithError("failed to load rule tables", nil)
		}
	}

	ctx := context.Background()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			exitWithError("failed to start metrics server", err)
		}
		defer srv.Stop(ctx)
	}

	var fallback isotp.Sink
	if !analyzeQuiet {
		fallback = console.NewSink()
	}
	session := isotp.New(transportConfig(cfg, rules), isotp.NewRegistry(fallback))

	src, err := newSource(cfg)
	if err != nil {
		exitWithError("failed to create capture source", err)
	}
	if err := src.Start(ctx); err != nil {
		exitWithError("failed to open capture", err)
	}
	defer src.Stop()

	var (
		frames    []*core.LinkFrame
		summaries []string
		analyzed  int
		rejected  int
	)
	for {
		frame, err := src.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			exitWithError("capture read failed", err)
		}
		if !claimed(&cfg.Transport, frame) {
			metrics.CaptureFramesSkippedTotal.WithLabelValues("unclaimed_id").Inc()
			continue
		}

		res, err := session.Process(frame)
		if err != nil {
			rejected++
			logger.WithError(err).WithField("frame", frame.Num).Warn("frame rejected")
			continue
		}
		analyzed++
		if !analyzeQuiet {
			fmt.Printf("#%d %s\n", frame.Num, res.Summary())
		}
		if analyzeVerify {
			frames = append(frames, frame)
			summaries = append(summaries, res.Summary())
		}
	}

	if analyzeVerify {
		mismatches := 0
		for i, frame := range frames {
			res, err := session.Process(frame)
			if err != nil || res.Summary() != summaries[i] {
				mismatches++
				logger.WithField("frame", frame.Num).Error("re-analysis diverged")
			}
		}
		if mismatches == 0 {
			logger.Infof("verification passed for %d frames", len(frames))
		} else {
			exitWithError(fmt.Sprintf("verification failed for %d frames", mismatches), nil)
		}
	}

	logger.WithFields(map[string]interface{}{
		"analyzed":      analyzed,
		"rejected":      rejected,
		"conversations": session.Conversations(),
	}).Info("analysis finished")
}

// transportConfig translates the static configuration and rule tables
// into the analysis session config.
func transportConfig(cfg *config.GlobalConfig, rules *config.RuleSet) isotp.Config {
	return isotp.Config{
		ExtendedAddressing:  cfg.Transport.Addressing == "extended",
		FlexRayAddressing:   cfg.Transport.FlexRayAddressing,
		IPduMAddressing:     cfg.Transport.IPduMAddressing,
		FlexRaySegmentLimit: cfg.Transport.FlexRaySegmentSizeLimit,
		Window:              cfg.Transport.Window,
		CANRules:            rules.CANMappings,
		PduRules:            rules.PduTransport,
	}
}

// claimed reports whether a frame's identifier falls inside the
// configured claim ranges. Unclaimed frames bypass transport analysis.
func claimed(t *config.TransportConfig, frame *core.LinkFrame) bool {
	switch frame.Kind {
	case core.LinkCAN, core.LinkCANFD:
		if frame.LinkID&core.CANFlagExtended != 0 {
			return t.ClaimsExtCANID(frame.LinkID & core.CANMaskExtended)
		}
		return t.ClaimsCANID(frame.LinkID & core.CANMaskStandard)
	case core.LinkLIN:
		// Only the LIN diagnostic frames carry transport payloads.
		if frame.LinkID == 0x3c || frame.LinkID == 0x3d {
			return t.LINDiagFrames
		}
		return false
	case core.LinkIPduM, core.LinkPduTransport:
		return t.ClaimsPduID(frame.LinkID)
	}
	return true
}

func newSource(cfg *config.GlobalConfig) (source.Source, error) {
	switch cfg.Capture.Source {
	case "file":
		var opts file.Options
		if err := cfg.Capture.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return file.NewSource(opts)
	default:
		return nil, fmt.Errorf("unknown capture source: %s", cfg.Capture.Source)
	}
}
