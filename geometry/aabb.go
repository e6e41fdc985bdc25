// Package geometry implements the value types the BVH builders and
// traversal engines operate on: axis-aligned bounding boxes, triangles and
// rays. All intersection predicates here are pure and allocation-free so
// they can be called from the hot traversal loop.
package geometry

import (
	"math"

	"github.com/mravery/gobvh/types"
)

// growEpsilon is the starting inflation amount used by AABB.FixIfNeeded; it
// doubles per axis attempt to guarantee eventual non-degeneracy even for
// AABBs whose extent underflows float32 precision.
const growEpsilon float32 = 1e-4

// AABB is an axis-aligned bounding box. The empty AABB (see Empty) has
// Min > Max componentwise; a valid AABB has Min < Max componentwise.
type AABB struct {
	Min types.Vec3
	Max types.Vec3
}

// Empty returns the sentinel empty AABB: an AABB that, when expanded with
// any point or AABB, yields exactly that point/AABB.
func Empty() AABB {
	return AABB{
		Min: types.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: types.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// IsEmpty reports whether the AABB is the empty sentinel.
func (a AABB) IsEmpty() bool {
	return a.Min[0] > a.Max[0] || a.Min[1] > a.Max[1] || a.Min[2] > a.Max[2]
}

// IsValid reports whether Min < Max strictly on every axis.
func (a AABB) IsValid() bool {
	return a.Min[0] < a.Max[0] && a.Min[1] < a.Max[1] && a.Min[2] < a.Max[2]
}

// Expand grows the AABB to also contain other.
func (a AABB) Expand(other AABB) AABB {
	return AABB{
		Min: types.MinVec3(a.Min, other.Min),
		Max: types.MaxVec3(a.Max, other.Max),
	}
}

// ExpandPoint grows the AABB to also contain p.
func (a AABB) ExpandPoint(p types.Vec3) AABB {
	return AABB{
		Min: types.MinVec3(a.Min, p),
		Max: types.MaxVec3(a.Max, p),
	}
}

// Overlap returns the intersection of two AABBs. The result may be empty.
func Overlap(a, b AABB) AABB {
	out := AABB{
		Min: types.Vec3{maxf(a.Min[0], b.Min[0]), maxf(a.Min[1], b.Min[1]), maxf(a.Min[2], b.Min[2])},
		Max: types.Vec3{minf(a.Max[0], b.Max[0]), minf(a.Max[1], b.Max[1]), minf(a.Max[2], b.Max[2])},
	}
	return out
}

// FixIfNeeded inflates any zero-extent axis by a geometrically growing
// epsilon so that downstream slab-test division and surface-area math never
// see a degenerate (flat) box.
func (a AABB) FixIfNeeded() AABB {
	if a.IsEmpty() {
		return a
	}
	out := a
	eps := growEpsilon
	for axis := 0; axis < 3; axis++ {
		for out.Max[axis]-out.Min[axis] < growEpsilon {
			out.Min[axis] -= eps
			out.Max[axis] += eps
			eps *= 2
		}
	}
	return out
}

// SurfaceArea returns 2*(dx*dy + dy*dz + dz*dx).
func (a AABB) SurfaceArea() float32 {
	d := a.Max.Sub(a.Min)
	return 2 * (d[0]*d[1] + d[1]*d[2] + d[2]*d[0])
}

// HalfArea returns dx*dy + dy*dz + dz*dx, the proxy the QBVH/CWBVH
// collapsers compare children by (the factor of 2 cancels out of every
// comparison so it is dropped for speed).
func (a AABB) HalfArea() float32 {
	d := a.Max.Sub(a.Min)
	return d[0]*d[1] + d[1]*d[2] + d[2]*d[0]
}

// Center returns the midpoint of the box.
func (a AABB) Center() types.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// Transform returns the AABB of the 8 transformed corners of a.
func (a AABB) Transform(m types.Mat4) AABB {
	out := Empty()
	for i := 0; i < 8; i++ {
		corner := types.Vec3{
			pick(i&1 != 0, a.Max[0], a.Min[0]),
			pick(i&2 != 0, a.Max[1], a.Min[1]),
			pick(i&4 != 0, a.Max[2], a.Min[2]),
		}
		out = out.ExpandPoint(m.TransformPoint(corner))
	}
	return out
}

func pick(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
