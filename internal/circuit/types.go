// Package circuit defines the instruction IR consumed and produced by
// the detector synthesis pipeline: instructions classified into a closed
// kind enum at construction time, moments of simultaneous instructions,
// and a stim-style text format for circuits.
package circuit

import (
	"fmt"
	"strings"

	"detweave/internal/pauli"
)

// Kind classifies an instruction once, at IR construction time. Code
// downstream switches on Kind, never on the instruction name.
type Kind int

const (
	KindUnitary Kind = iota
	KindMeasurement
	KindReset
	KindCombined // atomic measure+reset (MR, MRX, MRY)
	KindAnnotation
	KindNoise
	KindRepeat
)

func (k Kind) String() string {
	switch k {
	case KindUnitary:
		return "unitary"
	case KindMeasurement:
		return "measurement"
	case KindReset:
		return "reset"
	case KindCombined:
		return "measure-reset"
	case KindAnnotation:
		return "annotation"
	case KindNoise:
		return "noise"
	case KindRepeat:
		return "repeat"
	}
	return "unknown"
}

var unitaryNames = map[string]bool{
	"I": true, "X": true, "Y": true, "Z": true,
	"H": true, "S": true, "S_DAG": true,
	"SQRT_X": true, "SQRT_X_DAG": true,
	"CX": true, "CNOT": true, "CY": true, "CZ": true, "SWAP": true,
}

var measurementNames = map[string]bool{
	"M": true, "MZ": true, "MX": true, "MY": true,
}

var resetNames = map[string]bool{
	"R": true, "RZ": true, "RX": true, "RY": true,
}

var combinedNames = map[string]bool{
	"MR": true, "MRZ": true, "MRX": true, "MRY": true,
}

var annotationNames = map[string]bool{
	"DETECTOR": true, "SHIFT_COORDS": true, "QUBIT_COORDS": true,
	"OBSERVABLE_INCLUDE": true,
}

var noiseNames = map[string]bool{
	"DEPOLARIZE1": true, "DEPOLARIZE2": true,
	"X_ERROR": true, "Y_ERROR": true, "Z_ERROR": true,
}

// Classify maps an instruction name to its kind.
func Classify(name string) (Kind, error) {
	switch {
	case unitaryNames[name]:
		return KindUnitary, nil
	case measurementNames[name]:
		return KindMeasurement, nil
	case resetNames[name]:
		return KindReset, nil
	case combinedNames[name]:
		return KindCombined, nil
	case annotationNames[name]:
		return KindAnnotation, nil
	case noiseNames[name]:
		return KindNoise, nil
	case name == "REPEAT":
		return KindRepeat, nil
	}
	return 0, fmt.Errorf("unknown instruction %q", name)
}

// CollapseBasis returns the Pauli basis a measurement or reset
// instruction collapses in. Names default to the Z basis; an X or Y
// suffix selects the others.
func CollapseBasis(name string) pauli.Basis {
	switch {
	case strings.HasSuffix(name, "X"):
		return pauli.X
	case strings.HasSuffix(name, "Y"):
		return pauli.Y
	}
	return pauli.Z
}

// Instruction is one IR operation. Repeat blocks carry a nested body and
// repetition count; annotations carry parenthesized arguments and, for
// DETECTOR, measurement-record offsets.
type Instruction struct {
	Name        string
	Kind        Kind
	Targets     []int
	Args        []float64
	RecOffsets  []int
	Body        *Circuit
	Repetitions int
}

// NewInstruction builds and classifies an instruction.
func NewInstruction(name string, targets []int, args []float64) (Instruction, error) {
	kind, err := Classify(name)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Name: name, Kind: kind, Targets: targets, Args: args}, nil
}

// IsCollapsing reports whether the instruction measures or resets.
func (ins Instruction) IsCollapsing() bool {
	return ins.Kind == KindMeasurement || ins.Kind == KindReset || ins.Kind == KindCombined
}

// Measures reports whether the instruction produces measurement records.
func (ins Instruction) Measures() bool {
	return ins.Kind == KindMeasurement || ins.Kind == KindCombined
}

// Resets reports whether the instruction re-prepares its targets.
func (ins Instruction) Resets() bool {
	return ins.Kind == KindReset || ins.Kind == KindCombined
}

// MalformedMomentError reports a moment mixing collapsing and
// non-collapsing operations, which the segmenter cannot attribute to a
// single fragment boundary. This is a precondition violation by the
// circuit producer.
type MalformedMomentError struct {
	Index int
	Names []string
}

func (e *MalformedMomentError) Error() string {
	return fmt.Sprintf("moment %d mixes collapsing and non-collapsing instructions: %s",
		e.Index, strings.Join(e.Names, ", "))
}

// Moment is a set of instructions simultaneous in time, targeting
// disjoint qubits.
type Moment struct {
	Instructions []Instruction
}

// operational filters out annotations and noise, which never affect
// segmentation or propagation.
func (m Moment) operational() []Instruction {
	out := make([]Instruction, 0, len(m.Instructions))
	for _, ins := range m.Instructions {
		if ins.Kind == KindAnnotation || ins.Kind == KindNoise {
			continue
		}
		out = append(out, ins)
	}
	return out
}

// IsEmpty reports whether the moment has no operational instructions.
func (m Moment) IsEmpty() bool { return len(m.operational()) == 0 }

// IsRepeat reports whether the moment is a repeat block. A repeat block
// always occupies a moment of its own.
func (m Moment) IsRepeat() bool {
	ops := m.operational()
	return len(ops) == 1 && ops[0].Kind == KindRepeat
}

// AllMeasurements reports whether every operational instruction
// measures (plain or combined measure+reset).
func (m Moment) AllMeasurements() bool {
	ops := m.operational()
	if len(ops) == 0 {
		return false
	}
	for _, ins := range ops {
		if !ins.Measures() {
			return false
		}
	}
	return true
}

// AllResets reports whether every operational instruction is a plain
// reset.
func (m Moment) AllResets() bool {
	ops := m.operational()
	if len(ops) == 0 {
		return false
	}
	for _, ins := range ops {
		if ins.Kind != KindReset {
			return false
		}
	}
	return true
}

// Validate rejects moments mixing collapsing and non-collapsing
// operational instructions.
func (m Moment) Validate(index int) error {
	var collapsing, other bool
	for _, ins := range m.operational() {
		if ins.IsCollapsing() {
			collapsing = true
		} else if ins.Kind != KindRepeat {
			other = true
		}
	}
	if collapsing && other {
		names := make([]string, 0, len(m.Instructions))
		for _, ins := range m.Instructions {
			names = append(names, ins.Name)
		}
		return &MalformedMomentError{Index: index, Names: names}
	}
	return nil
}

// MeasurementCount returns the number of measurement records the moment
// produces. Each target of a measuring instruction yields one record.
func (m Moment) MeasurementCount() int {
	n := 0
	for _, ins := range m.Instructions {
		if ins.Measures() {
			n += len(ins.Targets)
		}
	}
	return n
}

// Circuit is an ordered list of moments plus the qubit coordinate map
// used for detector annotation metadata.
type Circuit struct {
	Moments     []Moment
	QubitCoords map[int][]float64
}

// MeasurementCount returns the total number of measurement records,
// counting repeat blocks at their full repetition count.
func (c *Circuit) MeasurementCount() int {
	n := 0
	for _, m := range c.Moments {
		for _, ins := range m.Instructions {
			switch {
			case ins.Kind == KindRepeat && ins.Body != nil:
				n += ins.Repetitions * ins.Body.MeasurementCount()
			case ins.Measures():
				n += len(ins.Targets)
			}
		}
	}
	return n
}

// Strip returns a copy of the circuit with all DETECTOR and
// SHIFT_COORDS annotations removed, recursing into repeat blocks.
func (c *Circuit) Strip() *Circuit {
	out := &Circuit{QubitCoords: c.QubitCoords}
	for _, m := range c.Moments {
		var kept []Instruction
		for _, ins := range m.Instructions {
			switch ins.Name {
			case "DETECTOR", "SHIFT_COORDS":
				continue
			}
			if ins.Kind == KindRepeat && ins.Body != nil {
				ins.Body = ins.Body.Strip()
			}
			kept = append(kept, ins)
		}
		if len(kept) > 0 {
			out.Moments = append(out.Moments, Moment{Instructions: kept})
		}
	}
	return out
}
