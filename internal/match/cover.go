package match

import (
	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	"go.uber.org/zap"

	"detweave/internal/flow"
	"detweave/internal/pauli"
)

// findCover searches for a subset of pool whose after-collapse product
// equals the target's, cancelling it to weight zero. Candidates are
// pre-filtered to those whose support lies inside the target's, which
// keeps the brute-force stage tractable for local-connectivity
// circuits. Past the configured bounds the search reduces to XOR-SAT;
// failure at any stage is a non-fatal "no cover".
func findCover(target *flow.BoundaryStabilizer, pool []*flow.BoundaryStabilizer, opts Options) ([]*flow.BoundaryStabilizer, bool) {
	goal := target.AfterCollapse()
	if goal.Weight() == 0 {
		return nil, false
	}

	var candidates []*flow.BoundaryStabilizer
	for _, c := range pool {
		after := c.AfterCollapse()
		if after.Weight() > 0 && after.SupportWithin(goal) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	if len(candidates) <= opts.MaxBruteCandidates {
		if members, ok := bruteCover(goal, candidates, opts.MaxCoverSize); ok {
			return members, true
		}
		// A cover larger than the subset-size bound may still exist.
		if len(candidates) <= opts.MaxCoverSize {
			return nil, false
		}
	}
	if !opts.EnableSAT {
		return nil, false
	}
	return satCover(goal, candidates, opts)
}

// bruteCover enumerates candidate subsets by increasing size.
func bruteCover(goal pauli.Operator, candidates []*flow.BoundaryStabilizer, maxSize int) ([]*flow.BoundaryStabilizer, bool) {
	if maxSize > len(candidates) {
		maxSize = len(candidates)
	}
	picked := make([]int, 0, maxSize)
	for size := 1; size <= maxSize; size++ {
		if members, ok := pickSubset(goal, pauli.Operator{}, candidates, picked, 0, size); ok {
			return members, true
		}
	}
	return nil, false
}

func pickSubset(goal, acc pauli.Operator, candidates []*flow.BoundaryStabilizer, picked []int, from, remaining int) ([]*flow.BoundaryStabilizer, bool) {
	if remaining == 0 {
		if acc.Equal(goal) {
			members := make([]*flow.BoundaryStabilizer, len(picked))
			for i, idx := range picked {
				members[i] = candidates[idx]
			}
			return members, true
		}
		return nil, false
	}
	for i := from; i <= len(candidates)-remaining; i++ {
		next := acc.Multiply(candidates[i].AfterCollapse())
		if members, ok := pickSubset(goal, next, candidates, append(picked, i), i+1, remaining-1); ok {
			return members, true
		}
	}
	return nil, false
}

// satCover encodes the cover as an XOR-SAT system: one selection
// variable per candidate, one parity constraint per symplectic
// coordinate of the goal's support. Caps on variables and clauses keep
// the solver bounded; overflow or UNSAT is a non-fatal miss.
func satCover(goal pauli.Operator, candidates []*flow.BoundaryStabilizer, opts Options) ([]*flow.BoundaryStabilizer, bool) {
	if len(candidates) > opts.SATVarCap {
		opts.Logger.Debug("cover search skipped: candidate count exceeds SAT cap",
			zap.Int("candidates", len(candidates)), zap.Int("cap", opts.SATVarCap))
		return nil, false
	}

	g := gini.New()
	clauses := 0
	sel := make([]z.Lit, len(candidates))
	for i := range candidates {
		sel[i] = g.Lit()
	}

	addClause := func(lits ...z.Lit) bool {
		clauses++
		if clauses > opts.SATClauseCap {
			return false
		}
		for _, l := range lits {
			g.Add(l)
		}
		g.Add(z.LitNull)
		return true
	}

	// v <-> a XOR b
	xorGate := func(a, b z.Lit) (z.Lit, bool) {
		v := g.Lit()
		ok := addClause(a.Not(), b.Not(), v.Not()) &&
			addClause(a, b, v.Not()) &&
			addClause(a, b.Not(), v) &&
			addClause(a.Not(), b, v)
		return v, ok
	}

	for _, coord := range symplecticCoords(goal, candidates) {
		var lits []z.Lit
		for i, c := range candidates {
			if coordBit(c.AfterCollapse(), coord) {
				lits = append(lits, sel[i])
			}
		}
		want := coordBit(goal, coord)
		if len(lits) == 0 {
			if want {
				return nil, false
			}
			continue
		}
		acc := lits[0]
		for _, l := range lits[1:] {
			var ok bool
			acc, ok = xorGate(acc, l)
			if !ok {
				opts.Logger.Debug("cover search skipped: clause cap exceeded",
					zap.Int("cap", opts.SATClauseCap))
				return nil, false
			}
		}
		if want {
			if !addClause(acc) {
				return nil, false
			}
		} else if !addClause(acc.Not()) {
			return nil, false
		}
	}

	if g.Solve() != 1 {
		return nil, false
	}
	var members []*flow.BoundaryStabilizer
	acc := pauli.Operator{}
	for i, c := range candidates {
		if g.Value(sel[i]) {
			members = append(members, c)
			acc = acc.Multiply(c.AfterCollapse())
		}
	}
	if len(members) == 0 || !acc.Equal(goal) {
		return nil, false
	}
	return members, true
}

// coordinate identifies one GF(2) bit of an operator: the x or z
// component of one qubit.
type coordinate struct {
	qubit int
	zBit  bool
}

func symplecticCoords(goal pauli.Operator, candidates []*flow.BoundaryStabilizer) []coordinate {
	seen := make(map[coordinate]bool)
	var out []coordinate
	add := func(op pauli.Operator) {
		for _, q := range op.Qubits() {
			for _, zb := range []bool{false, true} {
				c := coordinate{qubit: q, zBit: zb}
				if coordBit(op, c) && !seen[c] {
					seen[c] = true
					out = append(out, c)
				}
			}
		}
	}
	add(goal)
	for _, c := range candidates {
		add(c.AfterCollapse())
	}
	return out
}

func coordBit(op pauli.Operator, c coordinate) bool {
	b, ok := op[c.qubit]
	if !ok {
		return false
	}
	switch b {
	case pauli.X:
		return !c.zBit
	case pauli.Z:
		return c.zBit
	}
	return true // Y has both bits set
}
