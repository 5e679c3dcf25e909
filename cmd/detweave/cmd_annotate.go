package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"detweave/internal/assemble"
	"detweave/internal/circuit"
	"detweave/internal/detstore"
)

var (
	annotateOutput     string
	annotateCheckLoops bool
	annotateCache      string
	annotateWorkers    int
)

var annotateCmd = &cobra.Command{
	Use:   "annotate [circuit-file]",
	Short: "Synthesize DETECTOR annotations for a stabilizer circuit",
	Long: `Parses a stim-format circuit, strips any existing detector
annotations, derives the complete set of deterministic parity checks and
writes the annotated circuit back out.

Example:
  detweave annotate surface_code.stim -o surface_code.annotated.stim`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnotate,
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	text, err := readCircuitText(args[0])
	if err != nil {
		return err
	}
	parsed, err := circuit.Parse(text)
	if err != nil {
		return fmt.Errorf("parsing circuit: %w", err)
	}

	if annotateCheckLoops {
		cfg.Loops.InvarianceCheck = true
	}
	if annotateWorkers > 0 {
		cfg.Workers = annotateWorkers
	}
	if annotateCache != "" {
		cfg.CachePath = annotateCache
	}

	var cache *detstore.Store
	if cfg.CachePath != "" {
		cache, err = detstore.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer cache.Close()
		logger.Debug("detector cache opened",
			zap.String("path", cfg.CachePath),
			zap.String("run_id", cache.RunID()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	asm := assemble.New(cfg, logger, cache)
	res, err := asm.Annotate(ctx, parsed.Strip())
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		logger.Warn("synthesis diagnostic", zap.String("detail", d.Error()))
	}

	return writeOutput(annotateOutput, res.Circuit.String())
}
