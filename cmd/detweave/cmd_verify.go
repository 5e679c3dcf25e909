package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"detweave/internal/assemble"
	"detweave/internal/circuit"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [circuit-file]",
	Short: "Check that a circuit's detector annotations match a fresh synthesis",
	Long: `Strips the circuit's detector annotations, re-derives them and
compares the result against the annotations the circuit already carries.
Exits non-zero when the sets differ.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	text, err := readCircuitText(args[0])
	if err != nil {
		return err
	}
	parsed, err := circuit.Parse(text)
	if err != nil {
		return fmt.Errorf("parsing circuit: %w", err)
	}

	existing := collectDetectors(parsed.Moments)

	asm := assemble.New(cfg, logger, nil)
	res, err := asm.Annotate(context.Background(), parsed.Strip())
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		logger.Warn("synthesis diagnostic", zap.String("detail", d.Error()))
	}
	derived := collectDetectors(res.Circuit.Moments)

	if missing, extra := diffDetectors(existing, derived); len(missing)+len(extra) > 0 {
		for _, d := range missing {
			fmt.Printf("missing: %s\n", d)
		}
		for _, d := range extra {
			fmt.Printf("extra:   %s\n", d)
		}
		return fmt.Errorf("detector annotations disagree with synthesis: %d missing, %d extra",
			len(missing), len(extra))
	}

	fmt.Printf("OK: %d detectors verified\n", len(existing))
	return nil
}

// collectDetectors gathers every DETECTOR line in the circuit, repeat
// bodies included, as rendered text.
func collectDetectors(moments []circuit.Moment) []string {
	var out []string
	for _, m := range moments {
		for _, ins := range m.Instructions {
			switch {
			case ins.Kind == circuit.KindRepeat && ins.Body != nil:
				body := collectDetectors(ins.Body.Moments)
				for i := 0; i < ins.Repetitions; i++ {
					out = append(out, body...)
				}
			case ins.Name == "DETECTOR":
				out = append(out, ins.String())
			}
		}
	}
	sort.Strings(out)
	return out
}

// diffDetectors compares two sorted multisets of detector lines.
func diffDetectors(existing, derived []string) (missing, extra []string) {
	i, j := 0, 0
	for i < len(existing) && j < len(derived) {
		switch {
		case existing[i] == derived[j]:
			i++
			j++
		case existing[i] < derived[j]:
			extra = append(extra, existing[i])
			i++
		default:
			missing = append(missing, derived[j])
			j++
		}
	}
	extra = append(extra, existing[i:]...)
	missing = append(missing, derived[j:]...)
	return missing, extra
}
