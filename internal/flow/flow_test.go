package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"detweave/internal/circuit"
	"detweave/internal/fragment"
	"detweave/internal/pauli"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func parityRound(t *testing.T) *fragment.Fragment {
	t.Helper()
	c, err := circuit.Parse("R 2\nTICK\nCX 0 2\nTICK\nCX 1 2\nTICK\nM 2")
	require.NoError(t, err)
	segs, warnings, err := fragment.Split(c)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, segs, 1)
	return segs[0].Atomic
}

func TestComputeFlowsParityRound(t *testing.T) {
	frag := parityRound(t)
	flows, err := ComputeFlows(Job{Fragment: frag, EffectiveResets: frag.ResetSources})
	require.NoError(t, err)

	// Forward: the ancilla reset Z2 propagates to Z0*Z1*Z2 and commutes
	// with the measurement, leaving the data-qubit parity Z0*Z1.
	require.Len(t, flows.End, 1)
	end := flows.End[0]
	assert.True(t, end.Forward)
	assert.True(t, end.Resolved())
	assert.Equal(t, "Z0*Z1*Z2", end.BeforeCollapse.String())
	assert.Equal(t, "Z0*Z1", end.AfterCollapse().String())
	assert.Equal(t, []int{-1}, end.Offsets)

	// Backward: the measurement Z2 pulls back to Z0*Z1*Z2 and commutes
	// with the reset, leaving the same data-qubit parity at the start.
	require.Len(t, flows.Begin, 1)
	begin := flows.Begin[0]
	assert.False(t, begin.Forward)
	assert.True(t, begin.Resolved())
	assert.Equal(t, "Z0*Z1", begin.AfterCollapse().String())
	assert.Equal(t, []int{-1}, begin.Offsets)
}

func TestComputeFlowsTrivialStabilizer(t *testing.T) {
	// R 0 / M 0 with no unitary: both flows collapse to identity.
	c, err := circuit.Parse("R 0\nTICK\nM 0")
	require.NoError(t, err)
	segs, _, err := fragment.Split(c)
	require.NoError(t, err)
	frag := segs[0].Atomic

	flows, err := ComputeFlows(Job{Fragment: frag, EffectiveResets: frag.ResetSources})
	require.NoError(t, err)
	require.Len(t, flows.End, 1)
	assert.True(t, flows.End[0].IsTrivial())
	assert.Equal(t, []int{-1}, flows.End[0].Offsets)
	require.Len(t, flows.Begin, 1)
	assert.True(t, flows.Begin[0].IsTrivial())
}

func TestComputeFlowsAnticommuting(t *testing.T) {
	// R 0 / H 0 / M 0: the propagated reset X0 anticommutes with the
	// Z-basis measurement, so the outcome is random.
	c, err := circuit.Parse("R 0\nTICK\nH 0\nTICK\nM 0")
	require.NoError(t, err)
	segs, _, err := fragment.Split(c)
	require.NoError(t, err)
	frag := segs[0].Atomic

	flows, err := ComputeFlows(Job{Fragment: frag, EffectiveResets: frag.ResetSources})
	require.NoError(t, err)
	require.Len(t, flows.End, 1)
	assert.False(t, flows.End[0].Resolved())
	assert.Equal(t, "X0", flows.End[0].BeforeCollapse.String())
	assert.Len(t, flows.End[0].Anticommuting, 1)
}

func TestComputeFlowsDeferredResets(t *testing.T) {
	// Second fragment of a two-round memory circuit: no own resets, the
	// previous round's deferred reset collapses its start boundary.
	c, err := circuit.Parse("CX 0 1\nTICK\nM 1")
	require.NoError(t, err)
	segs, _, err := fragment.Split(c)
	require.NoError(t, err)
	frag := segs[0].Atomic
	require.Empty(t, frag.ResetSources)

	flows, err := ComputeFlows(Job{
		Fragment:        frag,
		EffectiveResets: []pauli.Operator{pauli.Single(1, pauli.Z)},
	})
	require.NoError(t, err)
	require.Len(t, flows.Begin, 1)
	assert.Equal(t, "Z0", flows.Begin[0].AfterCollapse().String())
	assert.Equal(t, []int{-1}, flows.Begin[0].Offsets)
	require.Len(t, flows.End, 1)
	assert.Equal(t, "Z0", flows.End[0].AfterCollapse().String())
}

func TestXorOffsets(t *testing.T) {
	assert.Equal(t, []int{-3, -1}, XorOffsets([]int{-1, -2}, []int{-2, -3}))
	assert.Empty(t, XorOffsets([]int{-1}, []int{-1}))
	assert.Equal(t, []int{-2, -1}, XorOffsets(nil, []int{-1, -2}))
}

func TestShiftAndClone(t *testing.T) {
	b := &BoundaryStabilizer{
		BeforeCollapse: pauli.Single(0, pauli.Z),
		Offsets:        []int{-1, -2},
	}
	cp := b.Clone()
	cp.ShiftOffsets(-3)
	assert.Equal(t, []int{-1, -2}, b.Offsets)
	assert.Equal(t, []int{-4, -5}, cp.Offsets)
	assert.Equal(t, b.Key(), cp.Key())
}

func TestSortKeyIndependentOfCollapseOrder(t *testing.T) {
	frag := parityRound(t)
	a, err := ConstructBoundaryStabilizers(
		[]Source{{Operator: pauli.Single(2, pauli.Z)}},
		frag, false,
		[]CollapseOp{{Operator: pauli.Single(2, pauli.Z), Offset: -1, HasOffset: true}},
	)
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, "Z0*Z1|-1", a[0].SortKey())
}

func TestComputeAllOrderedResults(t *testing.T) {
	frag := parityRound(t)
	trivial := func() *fragment.Fragment {
		c, err := circuit.Parse("R 3\nTICK\nM 3")
		require.NoError(t, err)
		segs, _, err := fragment.Split(c)
		require.NoError(t, err)
		return segs[0].Atomic
	}()

	jobs := []Job{
		{Fragment: frag, EffectiveResets: frag.ResetSources},
		{Fragment: trivial, EffectiveResets: trivial.ResetSources},
		{Fragment: frag, EffectiveResets: frag.ResetSources},
	}
	for _, workers := range []int{0, 1, 4} {
		flows, err := ComputeAll(context.Background(), jobs, workers)
		require.NoError(t, err)
		require.Len(t, flows, 3)
		assert.Equal(t, "Z0*Z1", flows[0].End[0].AfterCollapse().String())
		assert.True(t, flows[1].End[0].IsTrivial())
		assert.Equal(t, "Z0*Z1", flows[2].End[0].AfterCollapse().String())
	}
}

func TestComputeAllPropagatesErrors(t *testing.T) {
	bad := &fragment.Fragment{
		Moments: []circuit.Moment{{Instructions: []circuit.Instruction{{
			Name: "CX", Kind: circuit.KindUnitary, Targets: []int{0, 0},
		}}}},
		MeasurementSources: []fragment.MeasuredOperator{
			{Operator: pauli.Single(0, pauli.Z), Offset: -1},
		},
	}
	_, err := ComputeAll(context.Background(), []Job{{Fragment: bad}}, 2)
	require.Error(t, err)
}
