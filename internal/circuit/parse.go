package circuit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Pre-compiled regexps for the stim-style text format.
var (
	instrRegex  = regexp.MustCompile(`^([A-Z][A-Z0-9_]*)(?:\(([^)]*)\))?\s*(.*)$`)
	repeatRegex = regexp.MustCompile(`^REPEAT\s+(\d+)\s*\{$`)
	recRegex    = regexp.MustCompile(`^rec\[(-\d+)\]$`)
)

// Parse reads a circuit from its text form. Instructions between TICK
// lines form one moment; REPEAT blocks nest.
func Parse(text string) (*Circuit, error) {
	lines := splitLines(text)
	c, rest, err := parseBlock(lines, false)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("unmatched %q", rest[0])
	}
	return c, nil
}

func splitLines(text string) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// parseBlock consumes lines until end of input or, inside a repeat
// block, the closing brace. It returns the unconsumed tail.
func parseBlock(lines []string, inRepeat bool) (*Circuit, []string, error) {
	c := &Circuit{QubitCoords: make(map[int][]float64)}
	var current []Instruction

	flush := func() {
		if len(current) > 0 {
			c.Moments = append(c.Moments, Moment{Instructions: current})
			current = nil
		}
	}

	for len(lines) > 0 {
		line := lines[0]
		lines = lines[1:]

		switch {
		case line == "}":
			if !inRepeat {
				return nil, nil, fmt.Errorf("unmatched %q", "}")
			}
			flush()
			return c, lines, nil

		case line == "TICK":
			flush()

		case strings.HasPrefix(line, "REPEAT"):
			m := repeatRegex.FindStringSubmatch(line)
			if m == nil {
				return nil, nil, fmt.Errorf("malformed repeat header %q", line)
			}
			reps, _ := strconv.Atoi(m[1])
			if reps < 1 {
				return nil, nil, fmt.Errorf("repeat count must be >= 1, got %d", reps)
			}
			body, rest, err := parseBlock(lines, true)
			if err != nil {
				return nil, nil, err
			}
			lines = rest
			flush()
			c.Moments = append(c.Moments, Moment{Instructions: []Instruction{{
				Name:        "REPEAT",
				Kind:        KindRepeat,
				Body:        body,
				Repetitions: reps,
			}}})
			// Merge coordinates declared inside the block.
			for q, xy := range body.QubitCoords {
				c.QubitCoords[q] = xy
			}

		default:
			ins, err := parseInstruction(line)
			if err != nil {
				return nil, nil, err
			}
			if ins.Name == "QUBIT_COORDS" {
				for _, q := range ins.Targets {
					c.QubitCoords[q] = ins.Args
				}
			}
			current = append(current, ins)
		}
	}
	if inRepeat {
		return nil, nil, fmt.Errorf("unterminated repeat block")
	}
	flush()
	return c, nil, nil
}

func parseInstruction(line string) (Instruction, error) {
	m := instrRegex.FindStringSubmatch(line)
	if m == nil {
		return Instruction{}, fmt.Errorf("malformed instruction %q", line)
	}
	name, argText, targetText := m[1], m[2], m[3]

	var args []float64
	if argText != "" {
		for _, part := range strings.Split(argText, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return Instruction{}, fmt.Errorf("bad argument %q in %q: %w", part, line, err)
			}
			args = append(args, v)
		}
	}

	var targets []int
	var recs []int
	for _, tok := range strings.Fields(targetText) {
		if rm := recRegex.FindStringSubmatch(tok); rm != nil {
			off, _ := strconv.Atoi(rm[1])
			recs = append(recs, off)
			continue
		}
		q, err := strconv.Atoi(tok)
		if err != nil || q < 0 {
			return Instruction{}, fmt.Errorf("bad target %q in %q", tok, line)
		}
		targets = append(targets, q)
	}

	ins, err := NewInstruction(name, targets, args)
	if err != nil {
		return Instruction{}, fmt.Errorf("%s: %w", line, err)
	}
	ins.RecOffsets = recs
	return ins, nil
}
