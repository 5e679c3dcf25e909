// Package pauli implements phase-free multi-qubit Pauli operators over
// GF(2). Operators are stored sparsely: a qubit absent from the map acts
// as identity. All operations return fresh values; an Operator is never
// mutated after construction.
package pauli

import (
	"fmt"
	"sort"
	"strings"
)

// Basis is a single-qubit Pauli term. Identity is represented by absence
// from an Operator, never by an explicit entry.
type Basis byte

const (
	X Basis = 'X'
	Y Basis = 'Y'
	Z Basis = 'Z'
)

// bits returns the symplectic (x, z) encoding of a basis.
func (b Basis) bits() (bool, bool) {
	switch b {
	case X:
		return true, false
	case Z:
		return false, true
	case Y:
		return true, true
	}
	return false, false
}

func basisFromBits(x, z bool) (Basis, bool) {
	switch {
	case x && z:
		return Y, true
	case x:
		return X, true
	case z:
		return Z, true
	}
	return 0, false
}

// Operator maps qubit index to a non-identity Pauli term.
type Operator map[int]Basis

// New builds an operator from a qubit->basis map, dropping any entries
// a caller might have set to a zero value.
func New(terms map[int]Basis) Operator {
	op := make(Operator, len(terms))
	for q, b := range terms {
		if b == X || b == Y || b == Z {
			op[q] = b
		}
	}
	return op
}

// Single returns the weight-1 operator acting on one qubit.
func Single(qubit int, b Basis) Operator {
	return Operator{qubit: b}
}

// Weight is the number of non-identity terms.
func (op Operator) Weight() int { return len(op) }

// Qubits returns the support in ascending order.
func (op Operator) Qubits() []int {
	qs := make([]int, 0, len(op))
	for q := range op {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	return qs
}

// Multiply returns the qubit-wise symplectic product of two operators,
// ignoring the global phase. Equal terms cancel to identity.
func (op Operator) Multiply(other Operator) Operator {
	out := make(Operator, len(op)+len(other))
	for q, b := range op {
		out[q] = b
	}
	for q, b := range other {
		cur, ok := out[q]
		if !ok {
			out[q] = b
			continue
		}
		x1, z1 := cur.bits()
		x2, z2 := b.bits()
		if nb, ok := basisFromBits(x1 != x2, z1 != z2); ok {
			out[q] = nb
		} else {
			delete(out, q)
		}
	}
	return out
}

// Commutes reports whether the two operators commute: the number of
// qubits carrying differing non-identity terms on both sides is even.
func (op Operator) Commutes(other Operator) bool {
	diff := 0
	small, large := op, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for q, b := range small {
		if ob, ok := large[q]; ok && ob != b {
			diff++
		}
	}
	return diff%2 == 0
}

// Anticommutes is the negation of Commutes.
func (op Operator) Anticommutes(other Operator) bool { return !op.Commutes(other) }

// InvalidCollapseError reports a CollapseBy call against an operator the
// target anticommutes with. It indicates a caller bug, not a runtime
// condition.
type InvalidCollapseError struct {
	Target   Operator
	Collapse Operator
}

func (e *InvalidCollapseError) Error() string {
	return fmt.Sprintf("cannot collapse %s by anticommuting operator %s", e.Target, e.Collapse)
}

// CollapseBy multiplies the operator by each collapsing operator in
// order. It fails if the running product anticommutes with one of them.
func (op Operator) CollapseBy(operators []Operator) (Operator, error) {
	out := op
	for _, c := range operators {
		if out.Anticommutes(c) {
			return nil, &InvalidCollapseError{Target: out, Collapse: c}
		}
		out = out.Multiply(c)
	}
	return out, nil
}

// Conjugator transforms an operator by conjugation through a Clifford
// unitary. Implemented by the tableau package.
type Conjugator interface {
	Conjugate(Operator) Operator
}

// After conjugates the operator through the given tableau, restricted to
// the target qubits. Terms outside the target set pass through
// untouched.
func (op Operator) After(t Conjugator, targets []int) Operator {
	inTarget := make(map[int]bool, len(targets))
	for _, q := range targets {
		inTarget[q] = true
	}
	inside := make(Operator)
	outside := make(Operator)
	for q, b := range op {
		if inTarget[q] {
			inside[q] = b
		} else {
			outside[q] = b
		}
	}
	if len(inside) == 0 {
		return op
	}
	return t.Conjugate(inside).Multiply(outside)
}

// Contains reports whether every term of other appears in op with the
// same basis.
func (op Operator) Contains(other Operator) bool {
	for q, b := range other {
		if op[q] != b {
			return false
		}
	}
	return true
}

// SupportWithin reports whether op's support is a subset of other's
// support, regardless of basis values.
func (op Operator) SupportWithin(other Operator) bool {
	for q := range op {
		if _, ok := other[q]; !ok {
			return false
		}
	}
	return true
}

// Intersects reports whether the two operators share any support.
func (op Operator) Intersects(other Operator) bool {
	small, large := op, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for q := range small {
		if _, ok := large[q]; ok {
			return true
		}
	}
	return false
}

// Equal reports term-for-term equality.
func (op Operator) Equal(other Operator) bool {
	if len(op) != len(other) {
		return false
	}
	for q, b := range op {
		if other[q] != b {
			return false
		}
	}
	return true
}

// String renders the operator canonically, e.g. "X0*Z2*Y5". The empty
// operator renders as "I".
func (op Operator) String() string {
	if len(op) == 0 {
		return "I"
	}
	qs := op.Qubits()
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = fmt.Sprintf("%c%d", op[q], q)
	}
	return strings.Join(parts, "*")
}
