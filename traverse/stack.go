// Package traverse implements the closest-hit and any-hit traversal state
// machines for all three BVH node layouts (binary/SBVH, QBVH, CWBVH) across
// a two-level BLAS/TLAS scene, plus the parallel-threads and
// single-threaded-cooperative scheduling modes from spec section 5.
package traverse

import (
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/log"
)

// stackEntry is one pending node visit. tlasMarker distinguishes a plain BLAS/TLAS
// node index from a TLAS-leaf marker recording the depth at which the ray
// was transformed into object space, so the control loop can restore the
// ray to world space when the stack unwinds back past it (spec section
// 4.6): re-deriving the world-space ray from its own inverse-transformed
// copy would accumulate floating point error, so the original untransformed
// ray is carried on the marker instead of being reconstructed.
type stackEntry struct {
	node uint32
	// tlasMarker is true when this entry is a "restore to world space"
	// marker rather than a node to visit; worldRay then holds the ray to
	// restore.
	tlasMarker bool
	worldRay   geometry.Ray
}

// stack is a fixed-capacity LIFO of bounded depth, mirroring the
// implementation-defined BVH_STACK_SIZE from spec section 5. Popping an
// empty stack signals "done with this ray" rather than being an error.
type stack struct {
	entries []stackEntry
	limit   int
}

func newStack(limit int) *stack {
	return &stack{entries: make([]stackEntry, 0, limit), limit: limit}
}

func (s *stack) reset() {
	s.entries = s.entries[:0]
}

func (s *stack) empty() bool {
	return len(s.entries) == 0
}

// push reports whether the entry was pushed; false means the stack would
// have overflowed the configured limit. Callers clamp the ray to a miss
// rather than propagating an error, per spec section 7's StackOverflow
// policy for the traversal hot path.
func (s *stack) push(e stackEntry) bool {
	if len(s.entries) >= s.limit {
		return false
	}
	s.entries = append(s.entries, e)
	return true
}

func (s *stack) pop() (stackEntry, bool) {
	n := len(s.entries)
	if n == 0 {
		return stackEntry{}, false
	}
	e := s.entries[n-1]
	s.entries = s.entries[:n-1]
	return e, true
}

func warnStackOverflow(logger log.Logger, limit int) {
	logger.Warningf("bvh: traversal stack overflow (limit %d); clamping ray to miss", limit)
}
