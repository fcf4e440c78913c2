// Package main is the entry point for the buscap bus capture analyzer.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/buscap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
