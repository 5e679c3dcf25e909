// Package assemble folds over a circuit's fragment sequence, threading
// the open boundary state and interleaving the synthesized DETECTOR
// annotations with the original instructions.
package assemble

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"detweave/internal/circuit"
	"detweave/internal/config"
	"detweave/internal/detstore"
	"detweave/internal/flow"
	"detweave/internal/fragment"
	"detweave/internal/match"
	"detweave/internal/pauli"
)

// Assembler owns one synthesis run.
type Assembler struct {
	cfg   *config.Config
	log   *zap.Logger
	cache *detstore.Store
}

// Result is the annotated circuit plus the non-fatal diagnostics
// collected along the way.
type Result struct {
	Circuit     *circuit.Circuit
	Diagnostics []error
}

// New builds an assembler. The cache may be nil.
func New(cfg *config.Config, log *zap.Logger, cache *detstore.Store) *Assembler {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{cfg: cfg, log: log, cache: cache}
}

// openState is the boundary state threaded across the fragment fold.
type openState struct {
	// end holds the previous fragment's end-boundary stabilizers, with
	// offsets relative to that fragment's last measurement record.
	end []*flow.BoundaryStabilizer

	// deferredResets collapse the next fragment's start boundary: the
	// reset half of combined measure+reset instructions and any
	// post-measurement reset moments.
	deferredResets []pauli.Operator
}

func (st openState) key() string {
	var sb strings.Builder
	for _, s := range st.end {
		fmt.Fprintf(&sb, "%s>%s|%v|%d;", s.BeforeCollapse, s.Key(), s.Offsets, len(s.Anticommuting))
	}
	sb.WriteString("/")
	for _, op := range st.deferredResets {
		sb.WriteString(op.String())
		sb.WriteByte(';')
	}
	return sb.String()
}

func (st openState) empty() bool {
	return len(st.end) == 0 && len(st.deferredResets) == 0
}

// emitCtx accumulates the output circuit: emitted moments, the full
// measurement-record history (for coordinate lookup), and the dedupe
// set of already-emitted detectors keyed by absolute record indices.
type emitCtx struct {
	moments  []circuit.Moment
	records  []pauli.Operator
	emitted  map[string]bool
	diags    []error
	coords   map[int][]float64
	coordDim int

	// seamCapture, when set, receives the offset sets matched at the
	// next fragment boundary and is then cleared. The loop invariance
	// check arms it to observe the across-iteration matches.
	seamCapture *[]string
}

func (e *emitCtx) fork() *emitCtx {
	cp := &emitCtx{
		moments:  append([]circuit.Moment(nil), e.moments...),
		records:  append([]pauli.Operator(nil), e.records...),
		emitted:  make(map[string]bool, len(e.emitted)),
		diags:    append([]error(nil), e.diags...),
		coords:   e.coords,
		coordDim: e.coordDim,
	}
	for k, v := range e.emitted {
		cp.emitted[k] = v
	}
	return cp
}

// Annotate synthesizes detectors for the circuit and returns the
// annotated copy. The input circuit is not modified.
func (a *Assembler) Annotate(ctx context.Context, c *circuit.Circuit) (*Result, error) {
	segments, warnings, err := fragment.Split(c)
	if err != nil {
		return nil, err
	}

	e := &emitCtx{
		emitted:  make(map[string]bool),
		coords:   c.QubitCoords,
		coordDim: coordDimension(c.QubitCoords),
	}
	e.diags = append(e.diags, warnings...)

	st, err := a.compileSequence(ctx, segments, openState{}, e)
	if err != nil {
		return nil, err
	}
	a.closeState(st, e)

	return &Result{
		Circuit:     &circuit.Circuit{Moments: e.moments, QubitCoords: c.QubitCoords},
		Diagnostics: e.diags,
	}, nil
}

func coordDimension(coords map[int][]float64) int {
	dim := 0
	for _, xy := range coords {
		if len(xy) > dim {
			dim = len(xy)
		}
	}
	return dim
}

// compileSequence folds over a segment run. Consecutive atomic
// fragments have their flow analysis fanned out in parallel before the
// sequential fold consumes the results in order.
func (a *Assembler) compileSequence(ctx context.Context, segs []fragment.Segment, st openState, e *emitCtx) (openState, error) {
	i := 0
	for i < len(segs) {
		if segs[i].Loop != nil {
			var err error
			st, err = a.compileLoop(ctx, segs[i].Loop, st, e)
			if err != nil {
				return openState{}, err
			}
			i++
			continue
		}

		j := i
		for j < len(segs) && segs[j].Atomic != nil {
			j++
		}
		jobs := make([]flow.Job, j-i)
		deferred := st.deferredResets
		for k, seg := range segs[i:j] {
			f := seg.Atomic
			eff := append(append([]pauli.Operator(nil), deferred...), f.ResetSources...)
			jobs[k] = flow.Job{Fragment: f, EffectiveResets: eff}
			deferred = f.NextResetSources
		}
		flowsList, err := flow.ComputeAll(ctx, jobs, a.cfg.Workers)
		if err != nil {
			return openState{}, err
		}
		for k, seg := range segs[i:j] {
			st = a.compileFragment(seg.Atomic, flowsList[k], st, e)
		}
		i = j
	}
	return st, nil
}

// compileFragment emits one fragment: matched detectors for its begin
// boundary, the original instructions, the sorted DETECTOR annotations
// and a SHIFT_COORDS bump, then carries its end boundary forward.
func (a *Assembler) compileFragment(f *fragment.Fragment, flows flow.FragmentFlows, st openState, e *emitCtx) openState {
	m := f.MeasurementCount()
	for _, s := range st.end {
		s.ShiftOffsets(-m)
	}

	dets, diags := a.matchBoundary(f, st.end, flows.Begin)
	if e.seamCapture != nil {
		keys := make([]string, 0, len(dets))
		for _, d := range dets {
			offs := append([]int(nil), d.Offsets...)
			sort.Ints(offs)
			keys = append(keys, intsKey(offs))
		}
		sort.Strings(keys)
		*e.seamCapture = keys
		e.seamCapture = nil
	}

	e.moments = append(e.moments, f.Moments...)
	e.records = append(e.records, f.MeasurementOperators()...)
	e.diags = append(e.diags, diags...)

	annots := a.buildDetectorInstructions(dets, e)
	if m > 0 && e.coordDim > 0 {
		annots = append(annots, shiftCoordsInstruction(e.coordDim))
	}
	appendAnnotations(e, annots)

	return openState{end: flows.End, deferredResets: f.NextResetSources}
}

// matchBoundary runs the detector matcher for one boundary, consulting
// the cache when configured.
func (a *Assembler) matchBoundary(f *fragment.Fragment, carried, begin []*flow.BoundaryStabilizer) ([]match.MatchedDetector, []error) {
	var fp string
	if a.cache != nil {
		fp = detstore.Fingerprint(f.Key(), stabsKey(carried))
		if entry, ok, err := a.cache.Lookup(fp); err != nil {
			a.log.Warn("detector cache lookup failed", zap.Error(err))
		} else if ok {
			dets := make([]match.MatchedDetector, len(entry.Detectors))
			for i, offs := range entry.Detectors {
				dets[i] = match.MatchedDetector{Offsets: offs}
			}
			diags := make([]error, len(entry.Warnings))
			for i, msg := range entry.Warnings {
				diags[i] = &cachedWarning{msg: msg}
			}
			return dets, diags
		}
	}

	res := match.Boundary(carried, begin, match.Options{
		MaxCoverSize:       a.cfg.Matching.MaxCoverSize,
		MaxBruteCandidates: a.cfg.Matching.MaxBruteCandidates,
		EnableSAT:          a.cfg.Matching.EnableSAT,
		SATVarCap:          a.cfg.Matching.SATVarCap,
		SATClauseCap:       a.cfg.Matching.SATClauseCap,
		Logger:             a.log,
	})

	var diags []error
	for _, s := range res.LeftoverForward {
		diags = append(diags, &IncompleteDetectorWarning{
			Direction: "forward", Stabilizer: s.BeforeCollapse.String(), Offsets: s.Offsets,
		})
	}
	for _, s := range res.LeftoverBackward {
		diags = append(diags, &IncompleteDetectorWarning{
			Direction: "backward", Stabilizer: s.BeforeCollapse.String(), Offsets: s.Offsets,
		})
	}

	if a.cache != nil {
		entry := detstore.Entry{}
		for _, d := range res.Detectors {
			entry.Detectors = append(entry.Detectors, d.Offsets)
		}
		for _, d := range diags {
			entry.Warnings = append(entry.Warnings, d.Error())
		}
		if err := a.cache.Save(fp, entry); err != nil {
			a.log.Warn("detector cache save failed", zap.Error(err))
		}
	}
	return res.Detectors, diags
}

func stabsKey(stabs []*flow.BoundaryStabilizer) string {
	keys := make([]string, len(stabs))
	for i, s := range stabs {
		keys[i] = fmt.Sprintf("%s>%s|%v|%d", s.BeforeCollapse, s.Key(), s.Offsets, len(s.Anticommuting))
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}

// buildDetectorInstructions dedupes, decorates and orders the matched
// detectors. Offsets are relative to the current end of the record
// history.
func (a *Assembler) buildDetectorInstructions(dets []match.MatchedDetector, e *emitCtx) []circuit.Instruction {
	var out []circuit.Instruction
	for _, d := range dets {
		abs := make([]int, len(d.Offsets))
		valid := true
		for i, off := range d.Offsets {
			idx := len(e.records) + off
			if idx < 0 {
				valid = false
				break
			}
			abs[i] = idx
		}
		if !valid || len(abs) == 0 {
			continue
		}
		sort.Ints(abs)
		key := fmt.Sprint(abs)
		if e.emitted[key] {
			continue
		}
		e.emitted[key] = true

		sort.Ints(d.Offsets)
		out = append(out, circuit.Instruction{
			Name:       "DETECTOR",
			Kind:       circuit.KindAnnotation,
			Args:       a.detectorCoords(abs, e),
			RecOffsets: d.Offsets,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compareFloats(out[i].Args, out[j].Args); c != 0 {
			return c < 0
		}
		return compareInts(out[i].RecOffsets, out[j].RecOffsets) < 0
	})
	return out
}

// detectorCoords averages the coordinates of the qubits supporting the
// implicated measurements and appends the relative time dimension.
// Circuits without coordinate annotations get bare detectors.
func (a *Assembler) detectorCoords(absRecords []int, e *emitCtx) []float64 {
	if e.coordDim == 0 {
		return nil
	}
	sum := make([]float64, e.coordDim)
	n := 0
	for _, idx := range absRecords {
		for _, q := range e.records[idx].Qubits() {
			xy, ok := e.coords[q]
			if !ok {
				continue
			}
			for d := 0; d < e.coordDim && d < len(xy); d++ {
				sum[d] += xy[d]
			}
			n++
		}
	}
	coords := make([]float64, 0, e.coordDim+1)
	for _, v := range sum {
		if n > 0 {
			v /= float64(n)
		}
		coords = append(coords, v)
	}
	return append(coords, 0)
}

func shiftCoordsInstruction(coordDim int) circuit.Instruction {
	args := make([]float64, coordDim+1)
	args[coordDim] = 1
	return circuit.Instruction{Name: "SHIFT_COORDS", Kind: circuit.KindAnnotation, Args: args}
}

// appendAnnotations attaches annotation instructions to the most recent
// emitted moment, without opening a new one.
func appendAnnotations(e *emitCtx, annots []circuit.Instruction) {
	if len(annots) == 0 {
		return
	}
	if len(e.moments) == 0 {
		e.moments = append(e.moments, circuit.Moment{Instructions: annots})
		return
	}
	last := &e.moments[len(e.moments)-1]
	merged := make([]circuit.Instruction, 0, len(last.Instructions)+len(annots))
	merged = append(merged, last.Instructions...)
	merged = append(merged, annots...)
	last.Instructions = merged
}

// closeState flushes the residual end-boundary state after the final
// fragment. Trivial leftovers carry relations already emitted; the rest
// surface as diagnostics.
func (a *Assembler) closeState(st openState, e *emitCtx) {
	for _, s := range st.end {
		if s.Resolved() && s.IsTrivial() {
			a.log.Debug("dropping trivial residual end stabilizer", zap.Ints("offsets", s.Offsets))
			continue
		}
		e.diags = append(e.diags, &IncompleteDetectorWarning{
			Direction: "forward", Stabilizer: s.BeforeCollapse.String(), Offsets: s.Offsets,
		})
	}
	if n := len(st.deferredResets); n > 0 {
		e.diags = append(e.diags, &fragment.UnterminatedFragmentError{ResetCount: n})
	}
}

func compareFloats(a, b []float64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return len(a) - len(b)
}

func compareInts(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] - b[i]
		}
	}
	return len(a) - len(b)
}
