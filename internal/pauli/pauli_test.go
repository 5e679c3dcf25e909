package pauli

import (
	"errors"
	"testing"
)

func TestMultiply(t *testing.T) {
	tests := []struct {
		name string
		a, b Operator
		want string
	}{
		{"disjoint supports union", Single(0, X), Single(2, Z), "X0*Z2"},
		{"equal terms cancel", Single(0, X), Single(0, X), "I"},
		{"x times z gives y", Single(0, X), Single(0, Z), "Y0"},
		{"y times x gives z", Single(0, Y), Single(0, X), "Z0"},
		{"multi qubit", New(map[int]Basis{0: X, 1: Z}), New(map[int]Basis{1: Z, 2: Y}), "X0*Y2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Multiply(tt.b)
			if got.String() != tt.want {
				t.Errorf("Multiply() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMultiplyDoesNotMutate(t *testing.T) {
	a := Single(0, X)
	b := Single(0, Z)
	_ = a.Multiply(b)
	if a.String() != "X0" || b.String() != "Z0" {
		t.Errorf("operands mutated: a=%s b=%s", a, b)
	}
}

func TestCommutes(t *testing.T) {
	tests := []struct {
		name string
		a, b Operator
		want bool
	}{
		{"single anticommuting pair", Single(0, X), Single(0, Z), false},
		{"same basis commutes", Single(0, Z), Single(0, Z), true},
		{"disjoint commutes", Single(0, X), Single(1, Z), true},
		{"two anticommuting overlaps cancel", New(map[int]Basis{0: X, 1: X}), New(map[int]Basis{0: Z, 1: Z}), true},
		{"three overlaps anticommute", New(map[int]Basis{0: X, 1: X, 2: X}), New(map[int]Basis{0: Z, 1: Z, 2: Z}), false},
		{"identity commutes with all", Operator{}, Single(0, Y), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Commutes(tt.b); got != tt.want {
				t.Errorf("Commutes() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Commutes(tt.a); got != tt.want {
				t.Errorf("Commutes() not symmetric: %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollapseBy(t *testing.T) {
	// Z0*Z1 collapsed by Z1 leaves Z0.
	op := New(map[int]Basis{0: Z, 1: Z})
	got, err := op.CollapseBy([]Operator{Single(1, Z)})
	if err != nil {
		t.Fatalf("CollapseBy() error = %v", err)
	}
	if got.String() != "Z0" {
		t.Errorf("CollapseBy() = %s, want Z0", got)
	}
}

func TestCollapseByAnticommuting(t *testing.T) {
	_, err := Single(0, X).CollapseBy([]Operator{Single(0, Z)})
	var ice *InvalidCollapseError
	if !errors.As(err, &ice) {
		t.Fatalf("CollapseBy() error = %v, want *InvalidCollapseError", err)
	}
}

func TestCollapseByRunningProduct(t *testing.T) {
	// X0*X1 commutes with Z0*Z1, and the product Y0*Y1 still commutes
	// with the second collapse X0*X1.
	op := New(map[int]Basis{0: X, 1: X})
	got, err := op.CollapseBy([]Operator{
		New(map[int]Basis{0: Z, 1: Z}),
		New(map[int]Basis{0: Y, 1: Y}),
	})
	if err != nil {
		t.Fatalf("CollapseBy() error = %v", err)
	}
	if got.Weight() != 0 {
		t.Errorf("CollapseBy() = %s, want I", got)
	}
}

func TestContainsAndSupport(t *testing.T) {
	big := New(map[int]Basis{0: X, 1: Z, 2: Y})
	if !big.Contains(New(map[int]Basis{0: X, 2: Y})) {
		t.Error("Contains() = false for a term subset")
	}
	if big.Contains(Single(1, X)) {
		t.Error("Contains() = true for mismatched basis")
	}
	if !Single(1, X).SupportWithin(big) {
		t.Error("SupportWithin() = false for subset support")
	}
	if big.SupportWithin(Single(1, X)) {
		t.Error("SupportWithin() = true for superset support")
	}
	if !big.Intersects(Single(1, Y)) {
		t.Error("Intersects() = false for shared qubit")
	}
	if big.Intersects(Single(7, X)) {
		t.Error("Intersects() = true for disjoint supports")
	}
}

func TestString(t *testing.T) {
	if got := (Operator{}).String(); got != "I" {
		t.Errorf("empty operator String() = %q, want I", got)
	}
	op := New(map[int]Basis{5: Y, 0: X, 2: Z})
	if got := op.String(); got != "X0*Z2*Y5" {
		t.Errorf("String() = %q, want X0*Z2*Y5", got)
	}
}

func TestNewDropsInvalidEntries(t *testing.T) {
	op := New(map[int]Basis{0: X, 1: 0, 2: 'Q'})
	if op.Weight() != 1 {
		t.Errorf("New() kept invalid entries: %s", op)
	}
}
