package assemble

import (
	"fmt"
	"strings"
)

// IncompleteDetectorWarning is a non-fatal diagnostic: a non-trivial
// boundary stabilizer found no matching partner. This can be a
// legitimate open logical-observable leg, so synthesis continues.
type IncompleteDetectorWarning struct {
	Direction  string // "forward" or "backward"
	Stabilizer string
	Offsets    []int
}

func (e *IncompleteDetectorWarning) Error() string {
	return fmt.Sprintf("unmatched %s boundary stabilizer %s (offsets %v)",
		e.Direction, e.Stabilizer, e.Offsets)
}

// CircuitNotLoopInvariantError is fatal: with the loop sanity check
// enabled, the detectors derived between a repeat block's last and
// first inner fragments disagree with the across-iteration matches.
type CircuitNotLoopInvariantError struct {
	Expected []string
	Derived  []string
}

func (e *CircuitNotLoopInvariantError) Error() string {
	return fmt.Sprintf("repeat block is not loop-invariant: across-iteration detectors {%s} != re-derived detectors {%s}",
		strings.Join(e.Expected, " "), strings.Join(e.Derived, " "))
}

// cachedWarning replays a diagnostic message recovered from the
// detector cache.
type cachedWarning struct{ msg string }

func (e *cachedWarning) Error() string { return e.msg }
