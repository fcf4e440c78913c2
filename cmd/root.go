// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "buscap",
	Short: "buscap - automotive bus capture analyzer",
	Long: `buscap analyzes automotive bus captures and reassembles segmented
transport messages carried over CAN, CAN FD, LIN, FlexRay and PDU
transports.

It reads SocketCAN pcap captures, resolves diagnostic addressing from
configurable rule tables, tracks multi-frame conversations and hands
completed messages to registered next-level consumers.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/buscap/config.yml",
		"config file path")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(validateCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
