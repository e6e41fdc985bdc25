// Package bvh implements the construction, compaction and on-disk caching
// of the three supported acceleration structures: a binary SAH BVH
// (optionally with SBVH spatial splits), a 4-ary QBVH collapsed from it, and
// an 8-ary compressed wide BVH (CWBVH).
package bvh

import (
	"errors"
	"fmt"
)

// Type identifies which of the three node layouts a BVH is stored as.
type Type uint8

const (
	Binary Type = iota
	Spatial
	QBVH4
	CWBVH8
)

func (t Type) String() string {
	switch t {
	case Binary:
		return "bvh2"
	case Spatial:
		return "sbvh"
	case QBVH4:
		return "qbvh4"
	case CWBVH8:
		return "cwbvh8"
	default:
		return "unknown"
	}
}

// nodeTypeTag is the on-disk node-type identifier written to the cache
// header (spec section 6): 2 for binary/SBVH layouts (both use BVHNode2),
// 4 for QBVH, 8 for CWBVH.
func (t Type) nodeTypeTag() uint32 {
	switch t {
	case Binary, Spatial:
		return 2
	case QBVH4:
		return 4
	case CWBVH8:
		return 8
	default:
		return 0
	}
}

// Config collects the build-time parameters exposed by the CLI/config
// surface (spec section 6): which BVH variant to build, the SAH cost
// constants, the leaf size threshold and the SBVH spatial-split gate.
type Config struct {
	Type Type

	// MaxPrimitivesInLeaf bounds how many primitives the leaf-termination
	// heuristic is allowed to pack into a single binary-BVH leaf. CWBVH
	// construction always overrides this to 1 (single-primitive leaves are
	// required by the compressor).
	MaxPrimitivesInLeaf int

	// SAH traversal/intersection cost constants used by the leaf
	// termination heuristic (section 4.1).
	SAHCostNode float32
	SAHCostLeaf float32

	// SpatialSplitAlpha gates whether SBVH even attempts a spatial split
	// for a node: a spatial split is only evaluated when the overlap
	// between the object-split children's AABBs exceeds
	// SpatialSplitAlpha * (root AABB surface area). Set to 0 to attempt one
	// whenever those AABBs overlap at all, or >=1 to disable them entirely.
	SpatialSplitAlpha float32

	// StackSize bounds the traversal stack depth (section 5); exceeding it
	// is a StackOverflow, clamped to a miss.
	StackSize int
}

// DefaultConfig returns the conventional cost constants used throughout the
// reference engines this repo is grounded on.
func DefaultConfig(t Type) Config {
	cfg := Config{
		Type:                t,
		MaxPrimitivesInLeaf: 4,
		SAHCostNode:         1.0,
		SAHCostLeaf:         1.2,
		SpatialSplitAlpha:   1e-5,
		StackSize:           32,
	}
	if t == CWBVH8 {
		cfg.MaxPrimitivesInLeaf = 1
		cfg.StackSize = 64
	}
	return cfg
}

// Sentinel build/cache error kinds (spec section 7). Builders and the cache
// codec return these directly or wrapped (fmt.Errorf with %w, or
// invalidPrimitiveError's Unwrap), so callers can use errors.Is against them.
var (
	ErrEmptyInput      = errors.New("bvh: empty input")
	ErrInvalidPrimitive = errors.New("bvh: invalid primitive")
	ErrCacheCorrupt    = errors.New("bvh: cache corrupt")
	ErrCacheStale      = errors.New("bvh: cache stale")
)

// StackOverflowError describes a traversal stack overflow. No function in
// this repo returns it: the traversal engines clamp a stack-overflowing ray
// to a miss and log a warning instead of erroring, per the propagation
// policy in spec section 7.
type StackOverflowError struct {
	Depth, Limit int
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("bvh: traversal stack overflow (depth %d, limit %d)", e.Depth, e.Limit)
}
