package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"detweave/internal/config"
	"detweave/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "detweave",
	Short: "detweave - detector synthesis for stabilizer circuits",
	Long: `detweave inserts DETECTOR parity-check annotations into stabilizer
circuits by propagating reset and measurement stabilizers to fragment
boundaries and matching the flows that meet there.

The input format is the stim circuit text format. Existing DETECTOR and
SHIFT_COORDS annotations are stripped before synthesis, so annotate is
idempotent.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.JSON)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")

	annotateCmd.Flags().StringVarP(&annotateOutput, "output", "o", "", "Output file (default: stdout)")
	annotateCmd.Flags().BoolVar(&annotateCheckLoops, "check-loops", false, "Verify repeat blocks are loop-invariant")
	annotateCmd.Flags().StringVar(&annotateCache, "cache", "", "Detector cache database path")
	annotateCmd.Flags().IntVar(&annotateWorkers, "workers", 0, "Flow analysis parallelism (default: config value)")

	stripCmd.Flags().StringVarP(&stripOutput, "output", "o", "", "Output file (default: stdout)")

	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(stripCmd)
	rootCmd.AddCommand(verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readCircuitText loads a circuit from a path, with "-" meaning stdin.
func readCircuitText(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading circuit file: %w", err)
	}
	return string(data), nil
}

// writeOutput writes text to a file, or stdout when path is empty.
func writeOutput(path, text string) error {
	if path == "" {
		fmt.Print(text)
		return nil
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
