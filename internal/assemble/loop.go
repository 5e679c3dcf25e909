package assemble

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"detweave/internal/circuit"
	"detweave/internal/flow"
	"detweave/internal/fragment"
	"detweave/internal/match"
	"detweave/internal/pauli"
)

// compileLoop lowers a repeat block. A body with no stabilizer sources
// and no open incoming state compiles once and repeats natively.
// Otherwise successive iterations are compiled until two consecutive
// ones emit the same instructions and boundary state; the steady
// iteration becomes a native REPEAT over the remaining count. A loop
// that is not steady by the third iteration is unrolled explicitly.
func (a *Assembler) compileLoop(ctx context.Context, l *fragment.FragmentLoop, st openState, e *emitCtx) (openState, error) {
	if st.empty() && loopHasNoSources(l) {
		scratch := e.fork()
		base := len(scratch.moments)
		if _, err := a.compileSequence(ctx, l.Children, openState{}, scratch); err != nil {
			return openState{}, err
		}
		body := scratch.moments[base:]
		e.moments = append(e.moments, repeatMoment(body, l.Repetitions))
		e.diags = scratch.diags
		return openState{}, nil
	}

	e1 := e.fork()
	st1, err := a.compileSequence(ctx, l.Children, st, e1)
	if err != nil {
		return openState{}, err
	}
	if l.Repetitions == 1 {
		*e = *e1
		return st1, nil
	}

	// The fold rebases carried offsets in place, so capture the steady
	// key before the second iteration consumes st1.
	st1Key := st1.key()

	e2 := e1.fork()
	var seam []string
	if a.cfg.Loops.InvarianceCheck {
		e2.seamCapture = &seam
	}
	st2, err := a.compileSequence(ctx, l.Children, st1, e2)
	if err != nil {
		return openState{}, err
	}
	e2.seamCapture = nil

	if a.cfg.Loops.InvarianceCheck {
		if err := a.checkLoopInvariance(l, seam, st2); err != nil {
			return openState{}, err
		}
	}

	firstBody := momentsText(e1.moments[len(e.moments):])
	secondBody := momentsText(e2.moments[len(e1.moments):])
	if firstBody == secondBody && st1Key == st2.key() {
		a.emitSteadyTail(e, e1, e2, l.Repetitions-1)
		return st2, nil
	}
	if l.Repetitions == 2 {
		*e = *e2
		return st2, nil
	}

	// The first iteration usually absorbs the pre-loop boundary and only
	// the second reaches the steady state, so compare iterations two and
	// three before giving up and unrolling.
	st2Key := st2.key()
	e3 := e2.fork()
	st3, err := a.compileSequence(ctx, l.Children, st2, e3)
	if err != nil {
		return openState{}, err
	}
	thirdBody := momentsText(e3.moments[len(e2.moments):])
	if secondBody == thirdBody && st2Key == st3.key() {
		a.emitSteadyTail(e, e2, e3, l.Repetitions-2)
		return st3, nil
	}

	a.log.Debug("repeat block does not reach a steady state, unrolling",
		zap.Int("repetitions", l.Repetitions))
	*e = *e3
	cur := st3
	for i := 3; i < l.Repetitions; i++ {
		cur, err = a.compileSequence(ctx, l.Children, cur, e)
		if err != nil {
			return openState{}, err
		}
	}
	return cur, nil
}

// emitSteadyTail adopts the prefix compiled into ePrefix and emits the
// steady iteration (the delta between ePrefix and eSteady) as a native
// repeat block covering the remaining iterations.
func (a *Assembler) emitSteadyTail(e, ePrefix, eSteady *emitCtx, remaining int) {
	body := eSteady.moments[len(ePrefix.moments):]
	bodyRecords := eSteady.records[len(ePrefix.records):]
	newDiags := eSteady.diags[len(ePrefix.diags):]

	*e = *ePrefix
	e.moments = append(e.moments, repeatMoment(body, remaining))
	for i := 0; i < remaining; i++ {
		e.records = append(e.records, bodyRecords...)
	}
	// Steady-state diagnostics repeat every iteration; surface them once.
	e.diags = append(e.diags, newDiags...)
}

// checkLoopInvariance takes the detectors actually matched at the seam
// between the first two iterations and independently re-derives the
// last-to-first boundary from the second iteration's carried state. A
// body whose seam matching has not settled into the state the repeat
// block replicates fails the check.
func (a *Assembler) checkLoopInvariance(l *fragment.FragmentLoop, across []string, st openState) error {
	first := l.Children[0].Atomic
	if first == nil || l.Children[len(l.Children)-1].Atomic == nil {
		a.log.Debug("loop invariance check skipped: nested loop at block edge")
		return nil
	}

	derived, err := a.deriveBoundaryDetectors(first, st)
	if err != nil {
		return err
	}
	if !stringSlicesEqual(across, derived) {
		return &CircuitNotLoopInvariantError{Expected: across, Derived: derived}
	}
	return nil
}

// deriveBoundaryDetectors computes the detector offset sets produced by
// matching the given open state against the fragment's begin boundary,
// without touching the real compile state.
func (a *Assembler) deriveBoundaryDetectors(f *fragment.Fragment, st openState) ([]string, error) {
	eff := append(append([]pauli.Operator(nil), st.deferredResets...), f.ResetSources...)
	flows, err := flow.ComputeFlows(flow.Job{Fragment: f, EffectiveResets: eff})
	if err != nil {
		return nil, err
	}
	m := f.MeasurementCount()
	carried := make([]*flow.BoundaryStabilizer, len(st.end))
	for i, s := range st.end {
		carried[i] = s.Clone()
		carried[i].ShiftOffsets(-m)
	}
	res := match.Boundary(carried, flows.Begin, match.Options{
		MaxCoverSize:       a.cfg.Matching.MaxCoverSize,
		MaxBruteCandidates: a.cfg.Matching.MaxBruteCandidates,
		EnableSAT:          a.cfg.Matching.EnableSAT,
		SATVarCap:          a.cfg.Matching.SATVarCap,
		SATClauseCap:       a.cfg.Matching.SATClauseCap,
		Logger:             a.log,
	})
	keys := make([]string, 0, len(res.Detectors))
	for _, d := range res.Detectors {
		sort.Ints(d.Offsets)
		keys = append(keys, intsKey(d.Offsets))
	}
	sort.Strings(keys)
	return keys, nil
}

func loopHasNoSources(l *fragment.FragmentLoop) bool {
	for _, child := range l.Children {
		switch {
		case child.Atomic != nil:
			f := child.Atomic
			if len(f.ResetSources) > 0 || len(f.MeasurementSources) > 0 || len(f.NextResetSources) > 0 {
				return false
			}
		case child.Loop != nil:
			if !loopHasNoSources(child.Loop) {
				return false
			}
		}
	}
	return true
}

func repeatMoment(body []circuit.Moment, repetitions int) circuit.Moment {
	return circuit.Moment{Instructions: []circuit.Instruction{{
		Name:        "REPEAT",
		Kind:        circuit.KindRepeat,
		Body:        &circuit.Circuit{Moments: body},
		Repetitions: repetitions,
	}}}
}

func momentsText(moments []circuit.Moment) string {
	c := circuit.Circuit{Moments: moments}
	return c.String()
}

func intsKey(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
