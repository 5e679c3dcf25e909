// Package flow propagates stabilizer-propagation sources through a
// fragment's unitary body and records how the propagated operators meet
// the collapsing operations at the fragment boundary.
package flow

import (
	"fmt"
	"sort"
	"strings"

	"detweave/internal/fragment"
	"detweave/internal/pauli"
	"detweave/internal/tableau"
)

// Source is one propagation seed. Measurement seeds carry their record
// offset; reset seeds do not.
type Source struct {
	Operator  pauli.Operator
	Offset    int
	HasOffset bool
}

// CollapseOp is a collapsing operation at a boundary. Measurements carry
// their record offset; resets do not.
type CollapseOp struct {
	Operator  pauli.Operator
	Offset    int
	HasOffset bool
}

// BoundaryStabilizer is a propagated operator at a fragment boundary,
// with the overlapping collapsing operations partitioned by
// commutation, the implicated measurement-record offsets, and its
// propagation direction.
type BoundaryStabilizer struct {
	BeforeCollapse pauli.Operator
	Commuting      []pauli.Operator
	Anticommuting  []pauli.Operator
	Offsets        []int
	Forward        bool

	after       pauli.Operator
	afterCached bool
}

// Resolved reports whether the stabilizer survives its boundary
// collapses deterministically (no anticommuting overlap).
func (b *BoundaryStabilizer) Resolved() bool { return len(b.Anticommuting) == 0 }

// AfterCollapse returns the operator left after multiplying in every
// overlapping commuting collapse. Only defined for resolved
// stabilizers.
func (b *BoundaryStabilizer) AfterCollapse() pauli.Operator {
	if !b.afterCached {
		out := b.BeforeCollapse
		for _, c := range b.Commuting {
			out = out.Multiply(c)
		}
		b.after = out
		b.afterCached = true
	}
	return b.after
}

// IsTrivial reports whether the boundary collapses reduce the
// stabilizer to the identity, making it a deterministic parity check on
// its own.
func (b *BoundaryStabilizer) IsTrivial() bool {
	return b.Resolved() && b.AfterCollapse().Weight() == 0
}

// Key is the canonical encoding used for exact matching and tie-break
// ordering.
func (b *BoundaryStabilizer) Key() string {
	return b.AfterCollapse().String()
}

// SortKey orders stabilizers canonically: by after-collapse encoding,
// then by offsets. The ordering is independent of how the boundary's
// collapsing instructions were enumerated.
func (b *BoundaryStabilizer) SortKey() string {
	offs := make([]string, len(b.Offsets))
	for i, o := range b.Offsets {
		offs[i] = fmt.Sprintf("%d", o)
	}
	return b.Key() + "|" + strings.Join(offs, ",")
}

// Clone copies the stabilizer so offset rebasing on the copy leaves the
// original untouched. The operator maps are shared; they are never
// mutated.
func (b *BoundaryStabilizer) Clone() *BoundaryStabilizer {
	nb := *b
	nb.Offsets = append([]int(nil), b.Offsets...)
	return &nb
}

// ShiftOffsets rebases the measurement-record offsets by delta.
func (b *BoundaryStabilizer) ShiftOffsets(delta int) {
	for i := range b.Offsets {
		b.Offsets[i] += delta
	}
}

// XorOffsets combines two offset sets by symmetric difference: a record
// implicated by both sides cancels out of the parity check.
func XorOffsets(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	for _, o := range a {
		seen[o] = !seen[o]
	}
	for _, o := range b {
		seen[o] = !seen[o]
	}
	var out []int
	for o, on := range seen {
		if on {
			out = append(out, o)
		}
	}
	sort.Ints(out)
	return out
}

// ConstructBoundaryStabilizers propagates each source through the
// fragment's unitary body (inverted when propagating backward from the
// measurements) and splits the result's overlap with the boundary
// collapses into commuting and anticommuting parts. Offsets accumulate
// from the source itself and from every commuting measurement the
// stabilizer absorbs.
func ConstructBoundaryStabilizers(
	sources []Source,
	frag *fragment.Fragment,
	inverse bool,
	boundaryCollapse []CollapseOp,
) ([]*BoundaryStabilizer, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	t, err := tableau.FromMoments(frag.UnitaryMoments())
	if err != nil {
		return nil, fmt.Errorf("building fragment tableau: %w", err)
	}
	if inverse {
		t = t.Invert()
	}
	targets := t.Qubits()

	out := make([]*BoundaryStabilizer, 0, len(sources))
	for _, src := range sources {
		propagated := src.Operator.After(t, targets)
		b := &BoundaryStabilizer{
			BeforeCollapse: propagated,
			Forward:        !inverse,
		}
		var offsets []int
		if src.HasOffset {
			offsets = append(offsets, src.Offset)
		}
		for _, c := range boundaryCollapse {
			if !propagated.Intersects(c.Operator) {
				continue
			}
			if propagated.Commutes(c.Operator) {
				b.Commuting = append(b.Commuting, c.Operator)
				if c.HasOffset {
					offsets = XorOffsets(offsets, []int{c.Offset})
				}
			} else {
				b.Anticommuting = append(b.Anticommuting, c.Operator)
			}
		}
		sort.Ints(offsets)
		b.Offsets = offsets
		out = append(out, b)
	}
	return out, nil
}
