package fragment

import (
	"fmt"

	"detweave/internal/circuit"
	"detweave/internal/pauli"
)

// accumulator is the segmenter's working state for the fragment
// currently being built.
type accumulator struct {
	moments       []circuit.Moment
	resetSources  []pauli.Operator
	measurements  []MeasuredOperator // offsets assigned at flush
	nextResets    []pauli.Operator
	seenResetHead bool
	seenMeasTail  bool
	headRun       bool // still inside the leading reset run
	operational   bool // any measurement/reset/unitary accumulated
}

func newAccumulator() *accumulator {
	return &accumulator{headRun: true}
}

func (a *accumulator) empty() bool { return len(a.moments) == 0 }

// flush finalizes the accumulated fragment, assigning each measurement
// its negative record offset relative to the fragment end.
func (a *accumulator) flush() *Fragment {
	if a.empty() {
		return nil
	}
	f := &Fragment{
		Moments:          a.moments,
		ResetSources:     a.resetSources,
		NextResetSources: a.nextResets,
	}
	total := len(a.measurements)
	for i, src := range a.measurements {
		src.Offset = i - total
		f.MeasurementSources = append(f.MeasurementSources, src)
	}
	*a = *newAccumulator()
	return f
}

func collapseOperators(m circuit.Moment, measureHalf bool) []pauli.Operator {
	var ops []pauli.Operator
	for _, ins := range m.Instructions {
		use := ins.Resets()
		if measureHalf {
			use = ins.Measures()
		}
		if !use {
			continue
		}
		basis := circuit.CollapseBasis(ins.Name)
		for _, q := range ins.Targets {
			ops = append(ops, pauli.Single(q, basis))
		}
	}
	return ops
}

// Split segments the circuit into fragments and loops. It returns the
// segment sequence, non-fatal diagnostics, and a fatal error for
// structural violations.
func Split(c *circuit.Circuit) ([]Segment, []error, error) {
	return splitMoments(c.Moments)
}

func splitMoments(moments []circuit.Moment) ([]Segment, []error, error) {
	var segments []Segment
	var warnings []error
	acc := newAccumulator()

	commit := func() {
		if f := acc.flush(); f != nil {
			segments = append(segments, Segment{Atomic: f})
		}
	}

	for i, m := range moments {
		if err := m.Validate(i); err != nil {
			return nil, nil, err
		}
		if m.IsEmpty() && !m.IsRepeat() {
			if !acc.empty() {
				acc.moments = append(acc.moments, m)
			} else if len(segments) > 0 && segments[len(segments)-1].Atomic != nil {
				prev := segments[len(segments)-1].Atomic
				prev.Moments = append(prev.Moments, m)
			} else {
				acc.moments = append(acc.moments, m)
			}
			continue
		}

		switch {
		case m.IsRepeat():
			if acc.operational && !acc.seenMeasTail {
				return nil, nil, fmt.Errorf("repeat block at moment %d follows a dangling partial fragment", i)
			}
			commit()
			rep := m.Instructions[0]
			for _, ins := range m.Instructions {
				if ins.Kind == circuit.KindRepeat {
					rep = ins
				}
			}
			children, childWarnings, err := splitMoments(rep.Body.Moments)
			if err != nil {
				return nil, nil, err
			}
			warnings = append(warnings, childWarnings...)
			if len(children) == 0 {
				return nil, nil, fmt.Errorf("repeat block at moment %d has an empty body", i)
			}
			segments = append(segments, Segment{Loop: &FragmentLoop{
				Children:    children,
				Repetitions: rep.Repetitions,
			}})

		case m.AllMeasurements():
			// A measurement after deferred resets belongs to the next
			// fragment; the resets collapse its start boundary.
			if acc.seenMeasTail && len(acc.nextResets) > 0 {
				commit()
			}
			acc.moments = append(acc.moments, m)
			acc.operational = true
			acc.headRun = false
			acc.seenMeasTail = true
			for _, op := range collapseOperators(m, true) {
				acc.measurements = append(acc.measurements, MeasuredOperator{Operator: op})
			}
			// The reset half of combined instructions collapses the
			// next fragment's start boundary.
			acc.nextResets = append(acc.nextResets, collapseOperators(m, false)...)

		case m.AllResets():
			ops := collapseOperators(m, false)
			switch {
			case acc.seenMeasTail:
				acc.moments = append(acc.moments, m)
				acc.nextResets = append(acc.nextResets, ops...)
			case acc.headRun:
				acc.moments = append(acc.moments, m)
				acc.operational = true
				acc.seenResetHead = true
				acc.resetSources = append(acc.resetSources, ops...)
			default:
				commit()
				acc.moments = append(acc.moments, m)
				acc.operational = true
				acc.seenResetHead = true
				acc.resetSources = append(acc.resetSources, ops...)
			}

		default: // unitary moment
			if acc.seenMeasTail {
				commit()
			}
			acc.moments = append(acc.moments, m)
			acc.operational = true
			acc.headRun = false
		}
	}

	// Residue at end of input.
	if !acc.empty() {
		if len(acc.measurements) == 0 && len(acc.resetSources) > 0 {
			warnings = append(warnings, &UnterminatedFragmentError{ResetCount: len(acc.resetSources)})
		}
		commit()
	}
	return segments, warnings, nil
}
