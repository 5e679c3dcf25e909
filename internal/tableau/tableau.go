// Package tableau provides the Clifford conjugation engine used to
// propagate Pauli operators through the unitary part of a circuit
// fragment. A tableau is built from an ordered list of primitive gate
// applications; propagation applies each gate's symplectic update to the
// (x, z) bit pair of every touched qubit.
package tableau

import (
	"fmt"
	"sort"

	"detweave/internal/circuit"
	"detweave/internal/pauli"
)

// gateApp is one primitive gate application: a single- or two-qubit
// Clifford with its concrete targets.
type gateApp struct {
	name    string
	targets [2]int
	arity   int
}

// Tableau encodes a Clifford unitary as the ordered gate sequence that
// produced it. Conjugation replays the sequence over a symplectic
// representation of the operator.
type Tableau struct {
	gates  []gateApp
	qubits map[int]bool
}

var singleQubitGates = map[string]bool{
	"I": true, "X": true, "Y": true, "Z": true,
	"H": true, "S": true, "S_DAG": true,
	"SQRT_X": true, "SQRT_X_DAG": true,
}

var twoQubitGates = map[string]bool{
	"CX": true, "CNOT": true, "CY": true, "CZ": true, "SWAP": true,
}

var inverseGate = map[string]string{
	"S":          "S_DAG",
	"S_DAG":      "S",
	"SQRT_X":     "SQRT_X_DAG",
	"SQRT_X_DAG": "SQRT_X",
}

// FromMoments builds a tableau from the unitary instructions of the
// given moments. Collapsing, annotation and noise instructions must have
// been filtered out by the caller; encountering one is an error.
func FromMoments(moments []circuit.Moment) (*Tableau, error) {
	t := &Tableau{qubits: make(map[int]bool)}
	for _, m := range moments {
		for _, ins := range m.Instructions {
			if ins.Kind != circuit.KindUnitary {
				return nil, fmt.Errorf("non-unitary instruction %q in tableau input", ins.Name)
			}
			if err := t.append(ins); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (t *Tableau) append(ins circuit.Instruction) error {
	name := ins.Name
	if name == "CNOT" {
		name = "CX"
	}
	switch {
	case singleQubitGates[ins.Name]:
		for _, q := range ins.Targets {
			t.gates = append(t.gates, gateApp{name: name, targets: [2]int{q, 0}, arity: 1})
			t.qubits[q] = true
		}
	case twoQubitGates[ins.Name]:
		if len(ins.Targets)%2 != 0 {
			return fmt.Errorf("two-qubit gate %q needs an even number of targets, got %d", ins.Name, len(ins.Targets))
		}
		for i := 0; i < len(ins.Targets); i += 2 {
			a, b := ins.Targets[i], ins.Targets[i+1]
			if a == b {
				return fmt.Errorf("two-qubit gate %q targets qubit %d twice", ins.Name, a)
			}
			t.gates = append(t.gates, gateApp{name: name, targets: [2]int{a, b}, arity: 2})
			t.qubits[a] = true
			t.qubits[b] = true
		}
	default:
		return fmt.Errorf("unsupported Clifford gate %q", ins.Name)
	}
	return nil
}

// Invert returns the tableau of the inverse unitary: the gate sequence
// reversed, with each gate replaced by its inverse.
func (t *Tableau) Invert() *Tableau {
	inv := &Tableau{
		gates:  make([]gateApp, len(t.gates)),
		qubits: t.qubits,
	}
	for i, g := range t.gates {
		if name, ok := inverseGate[g.name]; ok {
			g.name = name
		}
		inv.gates[len(t.gates)-1-i] = g
	}
	return inv
}

// Qubits returns the qubits the unitary acts on, in ascending order.
func (t *Tableau) Qubits() []int {
	qs := make([]int, 0, len(t.qubits))
	for q := range t.qubits {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	return qs
}

// symplectic is the mutable (x, z) bit-pair view used during
// propagation.
type symplectic map[int]*[2]bool

func (s symplectic) at(q int) *[2]bool {
	bits, ok := s[q]
	if !ok {
		bits = &[2]bool{}
		s[q] = bits
	}
	return bits
}

// Conjugate propagates the operator through the unitary, ignoring the
// global phase. It implements pauli.Conjugator.
func (t *Tableau) Conjugate(op pauli.Operator) pauli.Operator {
	s := make(symplectic, len(op))
	for q, b := range op {
		switch b {
		case pauli.X:
			s[q] = &[2]bool{true, false}
		case pauli.Z:
			s[q] = &[2]bool{false, true}
		case pauli.Y:
			s[q] = &[2]bool{true, true}
		}
	}
	for _, g := range t.gates {
		applyGate(s, g)
	}
	out := make(pauli.Operator, len(s))
	for q, bits := range s {
		switch {
		case bits[0] && bits[1]:
			out[q] = pauli.Y
		case bits[0]:
			out[q] = pauli.X
		case bits[1]:
			out[q] = pauli.Z
		}
	}
	return out
}

// applyGate performs the standard CHP-style symplectic update for one
// gate. Pauli gates only change phase, which is not tracked.
func applyGate(s symplectic, g gateApp) {
	switch g.name {
	case "I", "X", "Y", "Z":
	case "H":
		b := s.at(g.targets[0])
		b[0], b[1] = b[1], b[0]
	case "S", "S_DAG":
		b := s.at(g.targets[0])
		b[1] = b[1] != b[0]
	case "SQRT_X", "SQRT_X_DAG":
		b := s.at(g.targets[0])
		b[0] = b[0] != b[1]
	case "CX":
		c, t := s.at(g.targets[0]), s.at(g.targets[1])
		t[0] = t[0] != c[0]
		c[1] = c[1] != t[1]
	case "CZ":
		c, t := s.at(g.targets[0]), s.at(g.targets[1])
		t[1] = t[1] != c[0]
		c[1] = c[1] != t[0]
	case "CY":
		// CY = (I x S) CX (I x S_DAG), composed over the same updates.
		c, t := s.at(g.targets[0]), s.at(g.targets[1])
		t[1] = t[1] != t[0]
		t[0] = t[0] != c[0]
		c[1] = c[1] != t[1]
		t[1] = t[1] != t[0]
	case "SWAP":
		a, b := g.targets[0], g.targets[1]
		s[a], s[b] = s.at(b), s.at(a)
	}
}
