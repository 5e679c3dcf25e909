// Package match pairs boundary stabilizers across a fragment boundary
// into detectors. Matching runs in phases: exact shape pairing, then
// disjoint-cover search with a SAT fallback. Combining anticommuting
// stabilizers into compound detectors is a known gap; such stabilizers
// are reported as residuals, never matched.
package match

import (
	"sort"

	"go.uber.org/zap"

	"detweave/internal/flow"
)

// MatchedDetector is a deterministic parity check over measurement
// records. Coords are diagnostic metadata filled in by the assembler.
type MatchedDetector struct {
	Coords  []float64
	Offsets []int
}

// Options bound the cover search. Zero values select the defaults.
type Options struct {
	MaxCoverSize       int
	MaxBruteCandidates int
	EnableSAT          bool
	SATVarCap          int
	SATClauseCap       int
	Logger             *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxCoverSize <= 0 {
		o.MaxCoverSize = 4
	}
	if o.MaxBruteCandidates <= 0 {
		o.MaxBruteCandidates = 24
	}
	if o.SATVarCap <= 0 {
		o.SATVarCap = 512
	}
	if o.SATClauseCap <= 0 {
		o.SATClauseCap = 1 << 16
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Result is the outcome of matching one boundary. Leftovers are
// non-trivial stabilizers that found no partner; they may legitimately
// be open logical-observable legs, so they surface as diagnostics
// rather than errors.
type Result struct {
	Detectors        []MatchedDetector
	LeftoverForward  []*flow.BoundaryStabilizer
	LeftoverBackward []*flow.BoundaryStabilizer
}

// Boundary matches the previous fragment's end stabilizers (forward)
// against the current fragment's begin stabilizers (backward). Both
// input lists are owned by this call and destructively consumed.
func Boundary(forward, backward []*flow.BoundaryStabilizer, opts Options) Result {
	opts = opts.withDefaults()
	var res Result

	resolvedF, leftF := partitionResolved(forward)
	resolvedB, leftB := partitionResolved(backward)
	res.LeftoverForward = leftF
	res.LeftoverBackward = leftB

	// Trivial backward stabilizers are deterministic on their own.
	// Trivial forward stabilizers carry relations already emitted at
	// this boundary's backward side; emitting them too would produce
	// linearly dependent detectors, so they are dropped.
	resolvedB = emitTrivial(resolvedB, &res, opts)
	resolvedF = dropTrivial(resolvedF, opts)

	sortCanonical(resolvedF)
	sortCanonical(resolvedB)

	resolvedF, resolvedB = matchExact(resolvedF, resolvedB, &res)
	resolvedF, resolvedB = matchCovers(resolvedF, resolvedB, &res, opts)

	res.LeftoverForward = append(res.LeftoverForward, resolvedF...)
	res.LeftoverBackward = append(res.LeftoverBackward, resolvedB...)
	return res
}

func partitionResolved(stabs []*flow.BoundaryStabilizer) (resolved, unresolved []*flow.BoundaryStabilizer) {
	for _, s := range stabs {
		if s.Resolved() {
			resolved = append(resolved, s)
		} else {
			unresolved = append(unresolved, s)
		}
	}
	return resolved, unresolved
}

func emitTrivial(stabs []*flow.BoundaryStabilizer, res *Result, opts Options) []*flow.BoundaryStabilizer {
	kept := stabs[:0]
	for _, s := range stabs {
		if !s.IsTrivial() {
			kept = append(kept, s)
			continue
		}
		if len(s.Offsets) == 0 {
			continue
		}
		res.Detectors = append(res.Detectors, MatchedDetector{Offsets: append([]int(nil), s.Offsets...)})
	}
	return kept
}

func dropTrivial(stabs []*flow.BoundaryStabilizer, opts Options) []*flow.BoundaryStabilizer {
	kept := stabs[:0]
	for _, s := range stabs {
		if s.IsTrivial() {
			opts.Logger.Debug("dropping redundant trivial forward stabilizer",
				zap.Ints("offsets", s.Offsets))
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

func sortCanonical(stabs []*flow.BoundaryStabilizer) {
	sort.SliceStable(stabs, func(i, j int) bool {
		return stabs[i].SortKey() < stabs[j].SortKey()
	})
}

// matchExact pairs stabilizers with identical post-collapse shape,
// walking both sides in canonical order so equally valid pairings
// resolve reproducibly.
func matchExact(forward, backward []*flow.BoundaryStabilizer, res *Result) (f, b []*flow.BoundaryStabilizer) {
	queues := make(map[string][]*flow.BoundaryStabilizer)
	for _, s := range forward {
		key := s.Key()
		queues[key] = append(queues[key], s)
	}

	matchedF := make(map[*flow.BoundaryStabilizer]bool)
	var unmatchedB []*flow.BoundaryStabilizer
	for _, s := range backward {
		key := s.Key()
		q := queues[key]
		if len(q) == 0 {
			unmatchedB = append(unmatchedB, s)
			continue
		}
		partner := q[0]
		queues[key] = q[1:]
		matchedF[partner] = true
		offsets := flow.XorOffsets(partner.Offsets, s.Offsets)
		if len(offsets) > 0 {
			res.Detectors = append(res.Detectors, MatchedDetector{Offsets: offsets})
		}
	}

	var unmatchedF []*flow.BoundaryStabilizer
	for _, s := range forward {
		if !matchedF[s] {
			unmatchedF = append(unmatchedF, s)
		}
	}
	return unmatchedF, unmatchedB
}

// matchCovers resolves remaining stabilizers by finding a subset of the
// opposite side whose product reproduces them. A successful cover
// removes the target only; pool members remain available so several
// targets can share the same member.
func matchCovers(forward, backward []*flow.BoundaryStabilizer, res *Result, opts Options) (f, b []*flow.BoundaryStabilizer) {
	backward = coverPass(backward, forward, res, opts)
	forward = coverPass(forward, backward, res, opts)
	return forward, backward
}

func coverPass(targets, pool []*flow.BoundaryStabilizer, res *Result, opts Options) (remainingTargets []*flow.BoundaryStabilizer) {
	kept := targets[:0]
	for _, t := range targets {
		members, ok := findCover(t, pool, opts)
		if !ok {
			kept = append(kept, t)
			continue
		}
		offsets := append([]int(nil), t.Offsets...)
		for _, m := range members {
			offsets = flow.XorOffsets(offsets, m.Offsets)
		}
		if len(offsets) > 0 {
			res.Detectors = append(res.Detectors, MatchedDetector{Offsets: offsets})
		}
	}
	return kept
}
