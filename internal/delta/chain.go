package delta

import "fmt"

// DefaultMaxChainDepth is the default upper bound on how many delta hops
// separate an object from its nearest fully-materialized base (spec §3
// invariant 4, §4.4).
const DefaultMaxChainDepth = 10

// DefaultSavingsFloor is the delta-to-target size ratio at or above which a
// computed delta is discarded and the target stored in full (spec §4.4): a
// delta is kept only while its literal data is under 90% of the target.
const DefaultSavingsFloor = 0.9

// ErrChainDepthExceeded is returned by EvaluateChain when encoding as a
// delta would push the chain past its cap.
var ErrChainDepthExceeded = fmt.Errorf("delta: chain depth would exceed cap")

// ErrBelowSavingsFloor is returned when a computed delta does not save
// enough space to be worth storing over the full target.
var ErrBelowSavingsFloor = fmt.Errorf("delta: savings below floor, store full object instead")

// ChainDepthOf returns how deep a candidate new delta would sit when encoded
// against a base of depth baseDepth. It loads and walks nothing — callers
// pass the depth already known for the base object (0 if the base itself is
// not a delta).
func ChainDepthOf(baseDepth int) int {
	return baseDepth + 1
}

// EvaluateChain decides whether a computed delta should be kept, given the
// depth the resulting chain would have and the configured cap/floor. A
// rejection here means the caller must store the target object in full
// instead (spec §4.4: "when a new write would exceed the cap, store full
// and let GC later re-base the chain").
func EvaluateChain(d *Delta, baseDepth int, maxChainDepth int, savingsFloor float64) error {
	depth := ChainDepthOf(baseDepth)
	if depth > maxChainDepth {
		return ErrChainDepthExceeded
	}
	if d.TotalSize > 0 && float64(d.DeltaSize) >= savingsFloor*float64(d.TotalSize) {
		return ErrBelowSavingsFloor
	}
	d.ChainDepth = depth
	return nil
}
