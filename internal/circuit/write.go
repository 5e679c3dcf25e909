package circuit

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders the circuit in its text form. Parse(c.String()) yields
// an equivalent circuit.
func (c *Circuit) String() string {
	var sb strings.Builder
	writeMoments(&sb, c.Moments, "")
	return sb.String()
}

// String renders a single instruction line without indentation or
// trailing newline.
func (ins Instruction) String() string {
	var sb strings.Builder
	writeInstruction(&sb, ins, "")
	return strings.TrimSuffix(sb.String(), "\n")
}

func writeMoments(sb *strings.Builder, moments []Moment, indent string) {
	for i, m := range moments {
		if i > 0 {
			sb.WriteString(indent)
			sb.WriteString("TICK\n")
		}
		for _, ins := range m.Instructions {
			writeInstruction(sb, ins, indent)
		}
	}
}

func writeInstruction(sb *strings.Builder, ins Instruction, indent string) {
	if ins.Kind == KindRepeat {
		fmt.Fprintf(sb, "%sREPEAT %d {\n", indent, ins.Repetitions)
		if ins.Body != nil {
			writeMoments(sb, ins.Body.Moments, indent+"    ")
		}
		fmt.Fprintf(sb, "%s}\n", indent)
		return
	}

	sb.WriteString(indent)
	sb.WriteString(ins.Name)
	if len(ins.Args) > 0 {
		parts := make([]string, len(ins.Args))
		for i, a := range ins.Args {
			parts[i] = formatArg(a)
		}
		fmt.Fprintf(sb, "(%s)", strings.Join(parts, ", "))
	}
	for _, q := range ins.Targets {
		fmt.Fprintf(sb, " %d", q)
	}
	for _, off := range ins.RecOffsets {
		fmt.Fprintf(sb, " rec[%d]", off)
	}
	sb.WriteString("\n")
}

func formatArg(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
