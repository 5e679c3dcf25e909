package flow

import (
	"context"

	"golang.org/x/sync/errgroup"

	"detweave/internal/fragment"
	"detweave/internal/pauli"
)

// Job pairs a fragment with its effective reset sources: the fragment's
// own leading resets plus any resets deferred from the previous
// fragment's combined measure+reset instructions.
type Job struct {
	Fragment        *fragment.Fragment
	EffectiveResets []pauli.Operator
}

// FragmentFlows holds both boundary-stabilizer lists of one fragment.
type FragmentFlows struct {
	// Begin holds backward flows from the trailing measurements,
	// collapsed against the effective resets at the start boundary.
	Begin []*BoundaryStabilizer
	// End holds forward flows from the effective resets, collapsed
	// against the trailing measurements at the end boundary.
	End []*BoundaryStabilizer
}

// ComputeFlows analyzes a single fragment. Stateless; safe to call
// concurrently for independent fragments.
func ComputeFlows(job Job) (FragmentFlows, error) {
	frag := job.Fragment

	beginSources := make([]Source, len(frag.MeasurementSources))
	beginCollapse := make([]CollapseOp, len(job.EffectiveResets))
	for i, src := range frag.MeasurementSources {
		beginSources[i] = Source{Operator: src.Operator, Offset: src.Offset, HasOffset: true}
	}
	for i, op := range job.EffectiveResets {
		beginCollapse[i] = CollapseOp{Operator: op}
	}

	endSources := make([]Source, len(job.EffectiveResets))
	endCollapse := make([]CollapseOp, len(frag.MeasurementSources))
	for i, op := range job.EffectiveResets {
		endSources[i] = Source{Operator: op}
	}
	for i, src := range frag.MeasurementSources {
		endCollapse[i] = CollapseOp{Operator: src.Operator, Offset: src.Offset, HasOffset: true}
	}

	begin, err := ConstructBoundaryStabilizers(beginSources, frag, true, beginCollapse)
	if err != nil {
		return FragmentFlows{}, err
	}
	end, err := ConstructBoundaryStabilizers(endSources, frag, false, endCollapse)
	if err != nil {
		return FragmentFlows{}, err
	}
	return FragmentFlows{Begin: begin, End: end}, nil
}

// ComputeAll fans flow analysis out across fragments and merges the
// results back in input order. Segmentation upstream is sequential; the
// per-fragment analysis is independent.
func ComputeAll(ctx context.Context, jobs []Job, workers int) ([]FragmentFlows, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]FragmentFlows, len(jobs))
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		eg.Go(func() error {
			flows, err := ComputeFlows(job)
			if err != nil {
				return err
			}
			out[i] = flows
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
