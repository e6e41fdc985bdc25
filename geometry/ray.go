package geometry

import (
	"math"

	"github.com/mravery/gobvh/types"
)

// Ray is a ray in either world or object space. InvDir is cached so the
// AABB slab test never divides in the hot path.
type Ray struct {
	Origin types.Vec3
	Dir    types.Vec3
	InvDir types.Vec3
}

// NewRay builds a Ray, precomputing the componentwise reciprocal direction.
func NewRay(origin, dir types.Vec3) Ray {
	return Ray{
		Origin: origin,
		Dir:    dir,
		InvDir: types.Vec3{1.0 / dir[0], 1.0 / dir[1], 1.0 / dir[2]},
	}
}

// Octant returns the 3-bit sign pattern of the ray direction: bit i is set
// when Dir[i] is negative. Used to pick front-to-back child traversal order.
func (r Ray) Octant() uint8 {
	var o uint8
	if r.Dir[0] < 0 {
		o |= 1
	}
	if r.Dir[1] < 0 {
		o |= 2
	}
	if r.Dir[2] < 0 {
		o |= 4
	}
	return o
}

// Transform maps the ray into another coordinate frame via m, recomputing
// InvDir (never derived from the old InvDir, to avoid compounding error).
func (r Ray) Transform(m types.Mat4) Ray {
	return NewRay(m.TransformPoint(r.Origin), m.TransformVector(r.Dir))
}

// IntersectAABB performs the slab test against box, returning the entry and
// exit distances along the ray. If the ray misses, tNear > tFar.
func (r Ray) IntersectAABB(box AABB) (tNear, tFar float32) {
	// A zero direction component with the origin exactly on one of that
	// axis's slab planes gives 0*Inf = NaN. The ray then runs inside the
	// closed slab, so that axis places no bound on the interval.
	unbounded := func(t0, t1 float32) (float32, float32) {
		if t0 != t0 || t1 != t1 {
			return float32(math.Inf(-1)), float32(math.Inf(1))
		}
		return t0, t1
	}

	t0 := (box.Min[0] - r.Origin[0]) * r.InvDir[0]
	t1 := (box.Max[0] - r.Origin[0]) * r.InvDir[0]
	t0, t1 = unbounded(t0, t1)
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	tNear, tFar = t0, t1

	t0 = (box.Min[1] - r.Origin[1]) * r.InvDir[1]
	t1 = (box.Max[1] - r.Origin[1]) * r.InvDir[1]
	t0, t1 = unbounded(t0, t1)
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	if t0 > tNear {
		tNear = t0
	}
	if t1 < tFar {
		tFar = t1
	}

	t0 = (box.Min[2] - r.Origin[2]) * r.InvDir[2]
	t1 = (box.Max[2] - r.Origin[2]) * r.InvDir[2]
	t0, t1 = unbounded(t0, t1)
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	if t0 > tNear {
		tNear = t0
	}
	if t1 < tFar {
		tFar = t1
	}

	return tNear, tFar
}
