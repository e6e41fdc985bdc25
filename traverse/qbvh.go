package traverse

import (
	"math"

	"github.com/mravery/gobvh/bvh"
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/scene"
	"github.com/mravery/gobvh/types"
)

// packQBVHKey embeds a 2-bit slot index into the low mantissa bits of
// tNear's IEEE-754 bit pattern (spec section 4.7, QBVH specifics). Clearing
// and reusing 2 mantissa bits costs negligible precision and lets a plain
// unsigned-integer sort double as a float sort, so the 4 candidate children
// can be ordered without branching on which is smallest. That ordering holds
// only for non-negative floats, so a negative tNear (ray origin inside the
// box) is clamped to zero first.
func packQBVHKey(tNear float32, slot int) uint32 {
	if !(tNear > 0) {
		tNear = 0
	}
	bits := math.Float32bits(tNear)
	return (bits &^ 3) | uint32(slot)
}

// sortQBVHKeys4 ascending-sorts 4 packed keys with a fixed sorting network
// of 5 compare-and-swaps, a small fixed-width sort used in place of a
// general sort for 4 elements.
func sortQBVHKeys4(k [4]uint32) [4]uint32 {
	swap := func(i, j int) {
		if k[i] > k[j] {
			k[i], k[j] = k[j], k[i]
		}
	}
	swap(0, 1)
	swap(2, 3)
	swap(0, 2)
	swap(1, 3)
	swap(1, 2)
	return k
}

// pushQBVHChildren tests the internal-node slots of node against ray and
// pushes the survivors in descending t_near order, so the nearest pops
// first. Leaf slots are intersected directly by the caller and never
// pushed here.
func pushQBVHChildren(ray geometry.Ray, node *bvh.Node4, tFarLimit float32, st *stack) bool {
	var keys [4]uint32
	var hit [4]bool

	for i := 0; i < 4; i++ {
		if !node.IsInternalSlot(i) {
			keys[i] = packQBVHKey(float32(math.Inf(1)), i)
			continue
		}
		box := geometry.AABB{
			Min: types.XYZ(node.MinX[i], node.MinY[i], node.MinZ[i]),
			Max: types.XYZ(node.MaxX[i], node.MaxY[i], node.MaxZ[i]),
		}
		tNear, tFar := ray.IntersectAABB(box)
		hit[i] = tNear <= tFar && tNear <= tFarLimit && tFar >= 0
		if hit[i] {
			keys[i] = packQBVHKey(tNear, i)
		} else {
			keys[i] = packQBVHKey(float32(math.Inf(1)), i)
		}
	}

	sorted := sortQBVHKeys4(keys)

	ok := true
	for i := 3; i >= 0; i-- {
		slot := int(sorted[i] & 3)
		if !hit[slot] {
			continue
		}
		ok = st.push(stackEntry{node: uint32(node.Index[slot])}) && ok
	}
	return ok
}

// traceRayQBVH runs the shared control loop for a scene whose BLAS layout
// is the 4-ary QBVH Node4 array. The TLAS is always binary, so its half of
// the loop reuses pushNode2Children/intersectLeaf from binary.go.
func traceRayQBVH(sc *scene.Scene, worldRay geometry.Ray, tMax float32, anyHit bool, st *stack) (geometry.RayHit, bool) {
	best := geometry.Miss()
	best.T = tMax

	st.reset()
	if !st.push(stackEntry{node: 0}) {
		return best, false
	}

	currentRay := worldRay
	inBLAS := false
	var blas []bvh.Node4
	var prims []uint32
	var tris []geometry.Triangle
	var meshID uint32

	for {
		entry, ok := st.pop()
		if !ok {
			break
		}
		if entry.tlasMarker {
			currentRay = entry.worldRay
			inBLAS = false
			continue
		}

		if !inBLAS {
			node := sc.TLASNodes[entry.node]
			if node.IsLeaf() {
				inst := &sc.Instances[node.FirstPrimitive()]
				mesh := sc.Meshes[inst.MeshIndex]

				if !st.push(stackEntry{tlasMarker: true, worldRay: currentRay}) {
					return best, false
				}
				if !inst.WorldFromObject.IsIdentity() {
					currentRay = currentRay.Transform(inst.ObjectFromWorld)
				}
				inBLAS = true
				blas, prims, tris, meshID = mesh.Nodes4, mesh.Primitives, mesh.Triangles, inst.MeshIndex

				if !st.push(stackEntry{node: 0}) {
					return best, false
				}
				continue
			}
			if !pushNode2Children(currentRay, sc.TLASNodes, node, best.T, st) {
				return best, false
			}
			continue
		}

		node := &blas[entry.node]

		// Separate leaf slots from internal slots: leaf slots are
		// intersected directly, internal slots are pushed for later
		// descent (still respecting near-to-far ordering among
		// themselves).
		anyInternal := false
		for i := 0; i < node.ChildCount(); i++ {
			if node.IsInternalSlot(i) {
				anyInternal = true
			}
		}
		if anyInternal {
			if !pushQBVHChildren(currentRay, node, best.T, st) {
				return best, false
			}
		}
		for i := 0; i < node.ChildCount(); i++ {
			if !node.IsLeafSlot(i) {
				continue
			}
			box := geometry.AABB{
				Min: types.XYZ(node.MinX[i], node.MinY[i], node.MinZ[i]),
				Max: types.XYZ(node.MaxX[i], node.MaxY[i], node.MaxZ[i]),
			}
			tNear, tFar := currentRay.IntersectAABB(box)
			if !(tNear <= tFar && tNear <= best.T && tFar >= 0) {
				continue
			}
			if intersectLeaf(tris, prims, uint32(node.Index[i]), uint32(node.Count[i]), meshID, currentRay, &best.T, &best) && anyHit {
				return best, true
			}
		}
	}

	return best, true
}
