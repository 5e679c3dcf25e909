package fragment

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"detweave/internal/circuit"
	"detweave/internal/pauli"
)

func mustSplit(t *testing.T, text string) ([]Segment, []error) {
	t.Helper()
	c, err := circuit.Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	segs, warnings, err := Split(c)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	return segs, warnings
}

func opStrings(ops []pauli.Operator) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

func TestSplitSingleFragment(t *testing.T) {
	segs, warnings := mustSplit(t, "R 0 1\nTICK\nH 0\nTICK\nCX 0 1\nTICK\nM 0 1")
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if len(segs) != 1 || segs[0].Atomic == nil {
		t.Fatalf("segments = %+v, want one atomic fragment", segs)
	}
	f := segs[0].Atomic

	if diff := cmp.Diff([]string{"Z0", "Z1"}, opStrings(f.ResetSources)); diff != "" {
		t.Errorf("ResetSources mismatch (-want +got):\n%s", diff)
	}
	if len(f.MeasurementSources) != 2 {
		t.Fatalf("MeasurementSources = %d, want 2", len(f.MeasurementSources))
	}
	if f.MeasurementSources[0].Offset != -2 || f.MeasurementSources[1].Offset != -1 {
		t.Errorf("offsets = %d, %d, want -2, -1",
			f.MeasurementSources[0].Offset, f.MeasurementSources[1].Offset)
	}
	if f.MeasurementCount() != 2 {
		t.Errorf("MeasurementCount() = %d, want 2", f.MeasurementCount())
	}
	if len(f.NextResetSources) != 0 {
		t.Errorf("NextResetSources = %v, want none", f.NextResetSources)
	}
}

func TestSplitBasisSuffixes(t *testing.T) {
	segs, _ := mustSplit(t, "RX 0\nRY 1\nTICK\nMX 0\nMY 1")
	f := segs[0].Atomic
	if diff := cmp.Diff([]string{"X0", "Y1"}, opStrings(f.ResetSources)); diff != "" {
		t.Errorf("ResetSources mismatch (-want +got):\n%s", diff)
	}
	if got := f.MeasurementSources[0].Operator.String(); got != "X0" {
		t.Errorf("measurement operator = %s, want X0", got)
	}
}

func TestSplitCombinedMeasureReset(t *testing.T) {
	segs, _ := mustSplit(t, "R 1\nTICK\nCX 0 1\nTICK\nMR 1")
	f := segs[0].Atomic
	if len(f.MeasurementSources) != 1 {
		t.Fatalf("MeasurementSources = %d, want 1", len(f.MeasurementSources))
	}
	// The reset half collapses the next fragment's start boundary.
	if diff := cmp.Diff([]string{"Z1"}, opStrings(f.NextResetSources)); diff != "" {
		t.Errorf("NextResetSources mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitPostMeasurementResetsDeferred(t *testing.T) {
	// The reset moment after the measurements stays in the same fragment
	// but seeds the next fragment's start boundary.
	segs, _ := mustSplit(t, "R 1\nTICK\nCX 0 1\nTICK\nM 1\nTICK\nR 1\nTICK\nCX 0 1\nTICK\nM 1")
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2", len(segs))
	}
	first, second := segs[0].Atomic, segs[1].Atomic
	if diff := cmp.Diff([]string{"Z1"}, opStrings(first.NextResetSources)); diff != "" {
		t.Errorf("first NextResetSources mismatch (-want +got):\n%s", diff)
	}
	if len(second.ResetSources) != 0 {
		t.Errorf("second ResetSources = %v, want none (deferred ownership)", second.ResetSources)
	}
	if len(second.MeasurementSources) != 1 {
		t.Errorf("second MeasurementSources = %d, want 1", len(second.MeasurementSources))
	}
}

func TestSplitMeasurementAfterDeferredResetStartsNewFragment(t *testing.T) {
	segs, _ := mustSplit(t, "R 0\nTICK\nM 0\nTICK\nR 0\nTICK\nM 0")
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2", len(segs))
	}
	first, second := segs[0].Atomic, segs[1].Atomic
	if diff := cmp.Diff([]string{"Z0"}, opStrings(first.NextResetSources)); diff != "" {
		t.Errorf("first NextResetSources mismatch (-want +got):\n%s", diff)
	}
	if len(second.MeasurementSources) != 1 || second.MeasurementSources[0].Offset != -1 {
		t.Errorf("second MeasurementSources = %+v, want one at offset -1", second.MeasurementSources)
	}
}

func TestSplitMidCircuitResetStartsNewFragment(t *testing.T) {
	// A reset after unitaries with no preceding measurement closes the
	// running fragment and opens a new one.
	segs, _ := mustSplit(t, "H 0\nTICK\nR 1\nTICK\nCX 0 1\nTICK\nM 1")
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2", len(segs))
	}
	if len(segs[0].Atomic.MeasurementSources) != 0 {
		t.Errorf("first fragment should have no measurements")
	}
	if diff := cmp.Diff([]string{"Z1"}, opStrings(segs[1].Atomic.ResetSources)); diff != "" {
		t.Errorf("second ResetSources mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitRepeatBlock(t *testing.T) {
	segs, _ := mustSplit(t, "R 0\nTICK\nM 0\nTICK\nREPEAT 5 {\nR 0\nTICK\nM 0\n}\nR 0\nTICK\nM 0")
	if len(segs) != 3 {
		t.Fatalf("segments = %d, want 3", len(segs))
	}
	loop := segs[1].Loop
	if loop == nil {
		t.Fatal("middle segment is not a loop")
	}
	if loop.Repetitions != 5 {
		t.Errorf("Repetitions = %d, want 5", loop.Repetitions)
	}
	if len(loop.Children) != 1 || loop.Children[0].Atomic == nil {
		t.Fatalf("loop children = %+v, want one atomic fragment", loop.Children)
	}
}

func TestSplitRepeatAfterDanglingFragment(t *testing.T) {
	c, err := circuit.Parse("H 0\nTICK\nREPEAT 2 {\nM 0\n}")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	_, _, err = Split(c)
	if err == nil || !strings.Contains(err.Error(), "dangling") {
		t.Errorf("Split() error = %v, want dangling-fragment error", err)
	}
}

func TestSplitEmptyRepeatBody(t *testing.T) {
	c, err := circuit.Parse("REPEAT 2 {\n}")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	_, _, err = Split(c)
	if err == nil || !strings.Contains(err.Error(), "empty body") {
		t.Errorf("Split() error = %v, want empty-body error", err)
	}
}

func TestSplitMalformedMoment(t *testing.T) {
	c, err := circuit.Parse("M 0\nH 1")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	_, _, err = Split(c)
	var mme *circuit.MalformedMomentError
	if !errors.As(err, &mme) {
		t.Errorf("Split() error = %v, want *MalformedMomentError", err)
	}
}

func TestSplitUnterminatedResets(t *testing.T) {
	_, warnings := mustSplit(t, "R 0 1\nTICK\nH 0")
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one", warnings)
	}
	var ufe *UnterminatedFragmentError
	if !errors.As(warnings[0], &ufe) {
		t.Fatalf("warning = %v, want *UnterminatedFragmentError", warnings[0])
	}
	if ufe.ResetCount != 2 {
		t.Errorf("ResetCount = %d, want 2", ufe.ResetCount)
	}
}

func TestFragmentKeyDistinguishesSources(t *testing.T) {
	segsA, _ := mustSplit(t, "R 0\nTICK\nM 0")
	segsB, _ := mustSplit(t, "RX 0\nTICK\nMX 0")
	if segsA[0].Atomic.Key() == segsB[0].Atomic.Key() {
		t.Error("fragments with different collapse bases share a key")
	}
}

func TestUnitaryMoments(t *testing.T) {
	segs, _ := mustSplit(t, "R 0\nTICK\nH 0\nDEPOLARIZE1(0.001) 0\nTICK\nM 0")
	um := segs[0].Atomic.UnitaryMoments()
	if len(um) != 1 {
		t.Fatalf("UnitaryMoments() = %d moments, want 1", len(um))
	}
	if len(um[0].Instructions) != 1 || um[0].Instructions[0].Name != "H" {
		t.Errorf("UnitaryMoments() kept %+v, want just H", um[0].Instructions)
	}
}
