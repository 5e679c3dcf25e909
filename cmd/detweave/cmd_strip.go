package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"detweave/internal/circuit"
)

var stripOutput string

var stripCmd = &cobra.Command{
	Use:   "strip [circuit-file]",
	Short: "Remove DETECTOR and SHIFT_COORDS annotations from a circuit",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrip,
}

func runStrip(cmd *cobra.Command, args []string) error {
	text, err := readCircuitText(args[0])
	if err != nil {
		return err
	}
	parsed, err := circuit.Parse(text)
	if err != nil {
		return fmt.Errorf("parsing circuit: %w", err)
	}
	return writeOutput(stripOutput, parsed.Strip().String())
}
