package traverse

import (
	"github.com/mravery/gobvh/bvh"
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/scene"
)

// intersectLeaf tests every triangle referenced by a leaf's primitive range
// against ray, updating best in place. It reports whether any intersection
// was found -- callers doing an any-hit query use that to short-circuit.
func intersectLeaf(tris []geometry.Triangle, primOrder []uint32, first, count uint32, meshID uint32, ray geometry.Ray, tMax *float32, best *geometry.RayHit) bool {
	hitAny := false
	for i := uint32(0); i < count; i++ {
		primID := primOrder[first+i]
		th, ok := tris[primID].Intersect(ray, 1e-4, *tMax)
		if !ok {
			continue
		}
		// Exact tie-break: strictly smaller t wins; on an exact tie the
		// lower primitive index wins, whichever leaf was visited first.
		if th.T < best.T || (th.T == best.T && primID < best.PrimitiveID) {
			best.T = th.T
			best.PrimitiveID = primID
			best.MeshID = meshID
			best.U, best.V = th.U, th.V
			*tMax = th.T
			hitAny = true
		}
	}
	return hitAny
}

// pushNode2Children tests both children of an internal Node2 against ray
// and pushes the survivors, ordered so the nearer child is popped first
// (spec section 4.7, Binary specifics): if the ray travels in the positive
// direction along the node's split axis, the right child was pushed first.
func pushNode2Children(ray geometry.Ray, nodes []bvh.Node2, node bvh.Node2, tFarLimit float32, st *stack) bool {
	left, right := node.LeftChild(), node.RightChild()
	lBox, rBox := nodes[left].Box, nodes[right].Box

	lNear, lFar := ray.IntersectAABB(lBox)
	lHit := lNear <= lFar && lNear <= tFarLimit && lFar >= 0

	rNear, rFar := ray.IntersectAABB(rBox)
	rHit := rNear <= rFar && rNear <= tFarLimit && rFar >= 0

	firstIdx, secondIdx := left, right
	firstHit, secondHit := lHit, rHit
	if ray.Dir[node.SplitAxis()] > 0 {
		firstIdx, secondIdx = right, left
		firstHit, secondHit = rHit, lHit
	}

	ok := true
	if firstHit {
		ok = st.push(stackEntry{node: firstIdx}) && ok
	}
	if secondHit {
		ok = st.push(stackEntry{node: secondIdx}) && ok
	}
	return ok
}

// traceRayBinary runs the shared control loop from spec section 4.7 for a
// scene whose BLAS layout is the binary/SBVH Node2 array.
func traceRayBinary(sc *scene.Scene, worldRay geometry.Ray, tMax float32, anyHit bool, st *stack) (geometry.RayHit, bool) {
	best := geometry.Miss()
	best.T = tMax

	st.reset()
	if !st.push(stackEntry{node: 0}) {
		return best, false
	}

	currentRay := worldRay
	inBLAS := false
	var blas []bvh.Node2
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
				if inst.WorldFromObject.IsIdentity() {
					// Skip the matrix multiply; still hop through the
					// marker so the control loop's mode flips back to
					// TLAS when this instance's subtree is exhausted.
				} else {
					currentRay = currentRay.Transform(inst.ObjectFromWorld)
				}
				inBLAS = true
				blas, prims, tris, meshID = mesh.Nodes2, mesh.Primitives, mesh.Triangles, inst.MeshIndex
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

		node := blas[entry.node]
		if node.IsLeaf() {
			if intersectLeaf(tris, prims, node.FirstPrimitive(), node.PrimitiveCount(), meshID, currentRay, &best.T, &best) && anyHit {
				return best, true
			}
			continue
		}
		if !pushNode2Children(currentRay, blas, node, best.T, st) {
			return best, false
		}
	}

	return best, true
}
