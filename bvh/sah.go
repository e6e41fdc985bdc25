package bvh

import (
	"math"
	"sort"

	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

// axisIndices holds, for a contiguous range of a builder's primitiveRef
// table, three permutations of that range's positions -- one sorted by
// centroid along each axis. findObjectSplit sweeps each permutation once to
// find the globally cheapest SAH object split without re-sorting per
// candidate.
type axisIndices [3][]int32

// sortAxisIndices builds axisIndices for refs[first:first+count], each
// permutation independently sorted by centroid along its axis.
func sortAxisIndices(refs []primitiveRef, first, count int) axisIndices {
	var idx axisIndices
	for axis := 0; axis < 3; axis++ {
		perm := make([]int32, count)
		for i := range perm {
			perm[i] = int32(first + i)
		}
		a := axis
		sort.Slice(perm, func(i, j int) bool {
			return refs[perm[i]].center[a] < refs[perm[j]].center[a]
		})
		idx[axis] = perm
	}
	return idx
}

// objectSplit is the cheapest SAH object-split candidate found by
// findObjectSplit, mirroring BVHPartitions::partition_object.
type objectSplit struct {
	axis      Axis
	position  int // split position within [0, count]; left gets [0,position)
	cost      float32
	boxLeft   geometry.AABB
	boxRight  geometry.AABB
}

// findObjectSplit sweeps prefix/suffix AABB unions over each of the three
// centroid-sorted permutations to find the split minimizing
// SA(left)*|left| + SA(right)*|right|, exactly as
// BVHPartitions::partition_object does.
func findObjectSplit(refs []primitiveRef, idx axisIndices, count int) objectSplit {
	best := objectSplit{cost: float32(math.Inf(1)), position: -1}

	boundsLeft := make([]geometry.AABB, count+1)
	boundsRight := make([]geometry.AABB, count+1)
	sah := make([]float32, count+1)

	for axis := Axis(0); axis < 3; axis++ {
		perm := idx[axis]

		boundsLeft[0] = geometry.Empty()
		for i := 1; i < count; i++ {
			boundsLeft[i] = boundsLeft[i-1].Expand(refs[perm[i-1]].box)
			sah[i] = boundsLeft[i].SurfaceArea() * float32(i)
		}

		boundsRight[count] = geometry.Empty()
		for i := count - 1; i > 0; i-- {
			boundsRight[i] = boundsRight[i+1].Expand(refs[perm[i]].box)
			sah[i] += boundsRight[i].SurfaceArea() * float32(count-i)
		}

		for i := 1; i < count; i++ {
			if sah[i] < best.cost {
				best.cost = sah[i]
				best.position = i
				best.axis = axis
				best.boxLeft = boundsLeft[i]
				best.boxRight = boundsRight[i]
			}
		}
	}

	return best
}

// applyObjectSplit reorders idx in place so that the winning axis's
// permutation has the left partition in [0, split.position) and the right
// partition in [split.position, count), then re-derives the other two
// axes' permutations to preserve the same left/right membership (the
// split_indices step in BVHPartitions).
func applyObjectSplit(refs []primitiveRef, idx axisIndices, count int, split objectSplit) {
	inLeft := make(map[int32]bool, split.position)
	winning := idx[split.axis]
	for i := 0; i < split.position; i++ {
		inLeft[winning[i]] = true
	}

	for axis := Axis(0); axis < 3; axis++ {
		if axis == split.axis {
			continue
		}
		perm := idx[axis]
		left := make([]int32, 0, split.position)
		right := make([]int32, 0, count-split.position)
		for _, p := range perm {
			if inLeft[p] {
				left = append(left, p)
			} else {
				right = append(right, p)
			}
		}
		copy(perm, left)
		copy(perm[len(left):], right)
	}
}

// spatialSplit is the cheapest SBVH spatial-split candidate found by
// findSpatialSplit, mirroring BVHPartitions::partition_spatial.
type spatialSplit struct {
	axis          Axis
	planeDistance float32
	cost          float32
	boxLeft       geometry.AABB
	boxRight      geometry.AABB
	numLeft       int
	numRight      int
}

const spatialBinCount = 256

type spatialBin struct {
	box     geometry.AABB
	entries int
	exits   int
}

// findSpatialSplit bins the primitive range into spatialBinCount bins per
// axis, clipping each triangle's AABB against every bin it straddles, then
// sweeps prefix/suffix bin unions to find the cheapest splitting plane.
// This is only meaningful for triangle primitives; callers must not invoke
// it when the primitive kind lacks vertex data.
func findSpatialSplit(tris []geometry.Triangle, refs []primitiveRef, idx axisIndices, count int, bounds geometry.AABB) spatialSplit {
	best := spatialSplit{cost: float32(math.Inf(1)), planeDistance: float32(math.NaN())}

	for axis := Axis(0); axis < 3; axis++ {
		boundsMin := bounds.Min[axis] - 0.001
		boundsMax := bounds.Max[axis] + 0.001
		step := (boundsMax - boundsMin) / spatialBinCount
		invDelta := 1.0 / (boundsMax - boundsMin)

		bins := make([]spatialBin, spatialBinCount)
		for i := range bins {
			bins[i].box = geometry.Empty()
		}

		perm := idx[axis]
		for i := 0; i < count; i++ {
			ref := refs[perm[i]]
			tri := tris[ref.origIndex]

			vmin := ref.box.Min[axis]
			vmax := ref.box.Max[axis]

			binMin := clampInt(int((float32(spatialBinCount))*((vmin-boundsMin)*invDelta)), 0, spatialBinCount-1)
			binMax := clampInt(int((float32(spatialBinCount))*((vmax-boundsMin)*invDelta)), 0, spatialBinCount-1)

			bins[binMin].entries++
			bins[binMax].exits++

			for b := binMin; b <= binMax; b++ {
				binLeft := boundsMin + float32(b)*step
				binRight := binLeft + step

				if vmin >= binRight || vmax <= binLeft {
					continue
				}

				clipped := clipTriangleToSlab(tri, ref.box, axis, binLeft, binRight)
				bins[b].box = geometry.Overlap(bins[b].box.Expand(clipped), bounds).FixIfNeeded()
			}
		}

		boundsLeft := make([]geometry.AABB, spatialBinCount+1)
		boundsRight := make([]geometry.AABB, spatialBinCount+1)
		countLeft := make([]int, spatialBinCount+1)
		countRight := make([]int, spatialBinCount+1)
		binSAH := make([]float32, spatialBinCount)

		boundsLeft[0] = geometry.Empty()
		for b := 1; b < spatialBinCount; b++ {
			boundsLeft[b] = boundsLeft[b-1].Expand(bins[b-1].box)
			countLeft[b] = countLeft[b-1] + bins[b-1].entries
			if countLeft[b] < count {
				binSAH[b] = boundsLeft[b].SurfaceArea() * float32(countLeft[b])
			} else {
				binSAH[b] = float32(math.Inf(1))
			}
		}

		boundsRight[spatialBinCount] = geometry.Empty()
		for b := spatialBinCount - 1; b > 0; b-- {
			boundsRight[b] = boundsRight[b+1].Expand(bins[b].box)
			countRight[b] = countRight[b+1] + bins[b].exits
			if countRight[b] < count {
				binSAH[b] += boundsRight[b].SurfaceArea() * float32(countRight[b])
			} else {
				binSAH[b] = float32(math.Inf(1))
			}
		}

		for b := 1; b < spatialBinCount; b++ {
			if binSAH[b] < best.cost {
				best.cost = binSAH[b]
				best.axis = axis
				best.planeDistance = boundsMin + step*float32(b)
				best.boxLeft = boundsLeft[b]
				best.boxRight = boundsRight[b]
				best.numLeft = countLeft[b]
				best.numRight = countRight[b]
			}
		}
	}

	return best
}

// clipTriangleToSlab clips triangle t's AABB (already computed as box) to
// the slab [planeMin, planeMax) along axis, mirroring
// BVHPartitions::triangle_intersect_plane's edge-intersection approach.
func clipTriangleToSlab(t geometry.Triangle, box geometry.AABB, axis Axis, planeMin, planeMax float32) geometry.AABB {
	vmin := box.Min[axis]
	vmax := box.Max[axis]

	if vmin >= planeMin && vmax <= planeMax {
		return box
	}

	clipped := geometry.Empty()
	verts := t.Positions[:]

	addPlaneIntersections := func(plane float32) {
		for i := 0; i < 3; i++ {
			for j := i + 1; j < 3; j++ {
				a, b := verts[i], verts[j]
				ai, bi := a[axis], b[axis]
				if ai > bi {
					a, b = b, a
					ai, bi = bi, ai
				}
				if ai <= plane && plane <= bi {
					if bi-ai == 0 {
						clipped = clipped.ExpandPoint(a).ExpandPoint(b)
					} else {
						tt := (plane - ai) / (bi - ai)
						clipped = clipped.ExpandPoint(lerpVec3(a, b, tt))
					}
				}
			}
		}
	}

	if vmin <= planeMin && planeMin <= vmax {
		addPlaneIntersections(planeMin)
	}
	if vmin <= planeMax && planeMax <= vmax {
		addPlaneIntersections(planeMax)
	}

	for _, v := range verts {
		if v[axis] >= planeMin && v[axis] <= planeMax {
			clipped = clipped.ExpandPoint(v)
		}
	}

	if clipped.IsEmpty() {
		return box
	}
	return geometry.Overlap(clipped, box)
}

func lerpVec3(a, b types.Vec3, t float32) types.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
