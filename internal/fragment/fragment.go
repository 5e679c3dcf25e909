// Package fragment splits a circuit into maximal slices bounded by
// collapsing instructions. Each Fragment carries the Pauli operators its
// resets and measurements contribute as stabilizer-propagation sources;
// FragmentLoop wraps a repeated sequence of child segments.
package fragment

import (
	"fmt"
	"strings"

	"detweave/internal/circuit"
	"detweave/internal/pauli"
)

// MeasuredOperator is a measurement's collapse operator together with
// its record offset, negative and relative to the end of the owning
// fragment.
type MeasuredOperator struct {
	Operator pauli.Operator
	Offset   int
}

// Fragment is an immutable slice of a circuit: optional leading resets,
// a unitary body, optional trailing measurements, and optionally resets
// that follow the measurements (these belong to the next fragment).
type Fragment struct {
	Moments []circuit.Moment

	// ResetSources seed forward propagation from the fragment's own
	// leading resets. Deferred resets from the previous fragment are
	// merged in by the assembler, not stored here.
	ResetSources []pauli.Operator

	// MeasurementSources seed backward propagation from the trailing
	// measurements toward the fragment's start boundary.
	MeasurementSources []MeasuredOperator

	// NextResetSources are reset operators that physically occur inside
	// this fragment but logically collapse the next fragment's start
	// boundary: post-measurement resets and the reset half of combined
	// measure+reset instructions.
	NextResetSources []pauli.Operator
}

// MeasurementCount returns the number of measurement records the
// fragment produces.
func (f *Fragment) MeasurementCount() int {
	n := 0
	for _, m := range f.Moments {
		n += m.MeasurementCount()
	}
	return n
}

// MeasurementOperators returns the collapse operators of the trailing
// measurements in record order.
func (f *Fragment) MeasurementOperators() []pauli.Operator {
	ops := make([]pauli.Operator, len(f.MeasurementSources))
	for i, src := range f.MeasurementSources {
		ops[i] = src.Operator
	}
	return ops
}

// UnitaryMoments returns the fragment's unitary body, with collapsing
// moments and non-operational instructions filtered out.
func (f *Fragment) UnitaryMoments() []circuit.Moment {
	var out []circuit.Moment
	for _, m := range f.Moments {
		var kept []circuit.Instruction
		for _, ins := range m.Instructions {
			if ins.Kind == circuit.KindUnitary {
				kept = append(kept, ins)
			}
		}
		if len(kept) > 0 {
			out = append(out, circuit.Moment{Instructions: kept})
		}
	}
	return out
}

// Key returns a canonical text encoding of the fragment, used for
// steady-state comparison and cache fingerprints.
func (f *Fragment) Key() string {
	c := circuit.Circuit{Moments: f.Moments}
	var sb strings.Builder
	sb.WriteString(c.String())
	sb.WriteString("|R:")
	for _, op := range f.ResetSources {
		sb.WriteString(op.String())
		sb.WriteByte(';')
	}
	sb.WriteString("|M:")
	for _, src := range f.MeasurementSources {
		fmt.Fprintf(&sb, "%s@%d;", src.Operator, src.Offset)
	}
	sb.WriteString("|N:")
	for _, op := range f.NextResetSources {
		sb.WriteString(op.String())
		sb.WriteByte(';')
	}
	return sb.String()
}

// FragmentLoop is a repeated, non-empty sequence of segments.
type FragmentLoop struct {
	Children    []Segment
	Repetitions int
}

// Segment is the tagged variant over Fragment and FragmentLoop. Exactly
// one field is non-nil.
type Segment struct {
	Atomic *Fragment
	Loop   *FragmentLoop
}

// UnterminatedFragmentError is a non-fatal diagnostic: the circuit ends
// in uncommitted resets with no closing measurement, so those resets
// seed no detector.
type UnterminatedFragmentError struct {
	ResetCount int
}

func (e *UnterminatedFragmentError) Error() string {
	return fmt.Sprintf("circuit ends with %d reset operator(s) and no closing measurement", e.ResetCount)
}
