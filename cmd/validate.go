// Package cmd implements CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/buscap/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and rule tables",
	Long: `Validate the configuration file and, when configured, the address
mapping rule tables, without analyzing anything.

Examples:
  buscap validate -c config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidate()
	},
}

func runValidate() {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	canRules, pduRules := 0, 0
	if cfg.Rules.File != "" {
		rules, ruleErrs := config.LoadRules(cfg.Rules.File)
		for _, e := range ruleErrs {
			fmt.Fprintf(os.Stderr, "rule error: %v\n", e)
		}
		if rules == nil {
			fmt.Fprintln(os.Stderr, "INVALID: rule tables unreadable")
			os.Exit(1)
		}
		if len(ruleErrs) > 0 {
			fmt.Fprintf(os.Stderr, "INVALID: %d rule(s) rejected\n", len(ruleErrs))
			os.Exit(1)
		}
		canRules = len(rules.CANMappings)
		pduRules = len(rules.PduTransport)
	}

	fmt.Printf("VALID: source %q, addressing %q, %d CAN mapping(s), %d PDU rule(s)\n",
		cfg.Capture.Source, cfg.Transport.Addressing, canRules, pduRules)
}
