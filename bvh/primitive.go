package bvh

import (
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

// BoundedVolume is implemented by anything the builder can partition:
// triangles, mesh instances, or any other primitive that owns an AABB and a
// centroid.
type BoundedVolume interface {
	BBox() geometry.AABB
	Center() types.Vec3
}

// primitiveRef pairs a primitive's original index with its (possibly
// clipped, for SBVH) AABB and centroid. The three per-axis index arrays the
// builder sorts hold indices into a slice of primitiveRef, not directly
// into the caller's primitive slice, so that SBVH duplication (one original
// primitive appearing under two different clipped AABBs) has somewhere to
// live.
type primitiveRef struct {
	origIndex int
	box       geometry.AABB
	center    types.Vec3
}
