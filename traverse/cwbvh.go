package traverse

import (
	"github.com/mravery/gobvh/bvh"
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/scene"
	"github.com/mravery/gobvh/types"
)

// leafTriangleOffset returns the prefix sum of LeafTriangleCount over every
// leaf slot before slot in node, so BaseIndexTriangle plus this offset
// addresses slot's own triangle run (spec section 4.5's compaction layout).
func leafTriangleOffset(node *bvh.Node8, slot int) uint32 {
	var offset uint32
	for i := 0; i < slot; i++ {
		if node.IsLeafSlot(i) {
			offset += uint32(node.LeafTriangleCount(i))
		}
	}
	return offset
}

// cwbvhCandidate is one surviving inner-slot child, queued for push in
// nearest-last order.
type cwbvhCandidate struct {
	tNear  float32
	octant uint8
	child  uint32
}

// hammingDistance counts the differing bits between two 3-bit octant codes,
// used to break exact tNear ties below by proximity to the ray's own octant
// rather than leaving the tie at the mercy of slot scan order.
func hammingDistance(a, b uint8) int {
	x := a ^ b
	d := 0
	for x != 0 {
		d += int(x & 1)
		x >>= 1
	}
	return d
}

// pushCWBVHChildren tests every occupied inner slot of node against ray and
// pushes the survivors so the nearest is popped first.
//
// The spec's node-group/triangle-group bit manipulation (base+mask words,
// octant-invariant slot decode, the dynamic fetch heuristic) coordinates
// many GPU warp lanes cooperatively traversing divergent rays; it has no
// counterpart when one goroutine walks one ray to completion before
// touching the next, which is exactly the single-threaded cooperative mode
// the spec requires for correctness testing (section 5). This ordinary
// per-child test-and-push achieves the same nearest-first visitation order
// without that machinery.
//
// The primary sort key is still each candidate's own tNear, which is exact
// for this node's rays and therefore a better estimate of true traversal
// order than slot index alone. The builder's octant-invariant slot
// assignment (bvh.collapseWide's Pass 2) only earns its keep on ties: when
// two candidates straddle the same tNear (common for axis-aligned,
// equal-sized leaves), the one whose octant is closer -- by Hamming
// distance -- to ray.Octant() is the one a pure slot-order walk would have
// visited first, so it's kept first here too. Order only ever affects how
// quickly best.T shrinks, never correctness: every pushed candidate is
// re-tested against the live best.T when it's popped.
func pushCWBVHChildren(ray geometry.Ray, node *bvh.Node8, tFarLimit float32, st *stack) bool {
	rayOctant := ray.Octant()

	var candidates [8]cwbvhCandidate
	n := 0
	groupBox := geometry.Empty()
	var boxes [8]geometry.AABB
	for i := 0; i < 8; i++ {
		if node.IsEmptySlot(i) || !node.IsInnerSlot(i) {
			continue
		}
		box := geometry.AABB{Min: node.DequantizeMin(i), Max: node.DequantizeMax(i)}
		tNear, tFar := ray.IntersectAABB(box)
		if tNear <= tFar && tNear <= tFarLimit && tFar >= 0 {
			boxes[n] = box
			groupBox = groupBox.Expand(box)
			candidates[n] = cwbvhCandidate{tNear: tNear, child: node.BaseIndexChild + uint32(node.ChildBitIndex(i))}
			n++
		}
	}

	if n > 1 {
		center := groupBox.FixIfNeeded().Center()
		for i := 0; i < n; i++ {
			candidates[i].octant = octantOf(center, boxes[i].Center())
		}
	}

	// Insertion sort ascending by tNear, breaking exact ties by Hamming
	// distance to the ray's own octant; n is at most 8.
	rank := func(c cwbvhCandidate) int { return hammingDistance(c.octant, rayOctant) }
	for i := 1; i < n; i++ {
		for j := i; j > 0; j-- {
			a, b := candidates[j-1], candidates[j]
			less := a.tNear > b.tNear || (a.tNear == b.tNear && rank(a) > rank(b))
			if !less {
				break
			}
			candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
		}
	}

	ok := true
	for i := n - 1; i >= 0; i-- {
		ok = st.push(stackEntry{node: candidates[i].child}) && ok
	}
	return ok
}

// octantOf maps p to one of 8 octants of a box centered at center, matching
// bvh's collapseWide octant convention (bit 0/1/2 set on the +x/+y/+z
// side). ray.Octant() sets bit i for a negative direction instead, so a
// candidate whose bit i equals the ray's lies on the side the ray enters
// from along axis i.
func octantOf(center, p types.Vec3) uint8 {
	var o uint8
	if p[0] >= center[0] {
		o |= 1
	}
	if p[1] >= center[1] {
		o |= 2
	}
	if p[2] >= center[2] {
		o |= 4
	}
	return o
}

// traceRayCWBVH runs the shared control loop for a scene whose BLAS layout
// is the 8-ary CWBVH Node8 array.
func traceRayCWBVH(sc *scene.Scene, worldRay geometry.Ray, tMax float32, anyHit bool, st *stack) (geometry.RayHit, bool) {
	best := geometry.Miss()
	best.T = tMax

	st.reset()
	if !st.push(stackEntry{node: 0}) {
		return best, false
	}

	currentRay := worldRay
	inBLAS := false
	var blas []bvh.Node8
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
				blas, prims, tris, meshID = mesh.Nodes8, mesh.Primitives, mesh.Triangles, inst.MeshIndex

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
		if !pushCWBVHChildren(currentRay, node, best.T, st) {
			return best, false
		}
		for i := 0; i < 8; i++ {
			if !node.IsLeafSlot(i) {
				continue
			}
			box := geometry.AABB{Min: node.DequantizeMin(i), Max: node.DequantizeMax(i)}
			tNear, tFar := currentRay.IntersectAABB(box)
			if !(tNear <= tFar && tNear <= best.T && tFar >= 0) {
				continue
			}
			first := node.BaseIndexTriangle + leafTriangleOffset(node, i)
			count := uint32(node.LeafTriangleCount(i))
			if intersectLeaf(tris, prims, first, count, meshID, currentRay, &best.T, &best) && anyHit {
				return best, true
			}
		}
	}

	return best, true
}
