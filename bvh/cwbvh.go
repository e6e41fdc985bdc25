package bvh

import (
	"math"
	"sort"

	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

// wideNode is an intermediate, sparse-indexed 8-wide node used while
// collapsing a binary BVH toward CWBVH arity, before the compaction and
// quantization pass produces the final packed Node8 array. It plays the
// same role Node4 plays for BuildQBVH, generalized from arity 4 to arity 8.
//
// No CWBVH builder exists among the reference sources this repo is grounded
// on (the closest match, QBVHBuilder::collapse, only ever merges up to
// arity 4). This generalizes that exact greedy adoption rule -- repeatedly
// absorb whichever internal child has the largest half-surface-area, as
// long as doing so keeps arity at or under the target -- to arity 8, in
// lieu of the cost-annotated dynamic-programming construction a from-scratch
// CWBVH builder would normally use.
type wideNode struct {
	MinX, MinY, MinZ [8]float32
	MaxX, MaxY, MaxZ [8]float32
	Index            [8]int32
	Count            [8]int32
}

func (n *wideNode) unusedSlot(i int) {
	n.Index[i] = invalidSlot
	n.Count[i] = invalidSlot
}
func (n *wideNode) IsUnused(i int) bool       { return n.Count[i] == invalidSlot }
func (n *wideNode) IsLeafSlot(i int) bool     { return n.Count[i] > 0 }
func (n *wideNode) IsInternalSlot(i int) bool { return n.Count[i] == 0 }

func (n *wideNode) ChildCount() int {
	count := 0
	for i := 0; i < 8; i++ {
		if n.IsUnused(i) {
			break
		}
		count++
	}
	return count
}

func (n *wideNode) setSlot(i int, minX, minY, minZ, maxX, maxY, maxZ float32, index, count int32) {
	n.MinX[i], n.MinY[i], n.MinZ[i] = minX, minY, minZ
	n.MaxX[i], n.MaxY[i], n.MaxZ[i] = maxX, maxY, maxZ
	n.Index[i] = index
	n.Count[i] = count
}

func (n *wideNode) slotHalfArea(i int) float32 {
	dx := n.MaxX[i] - n.MinX[i]
	dy := n.MaxY[i] - n.MinY[i]
	dz := n.MaxZ[i] - n.MinZ[i]
	return dx*dy + dy*dz + dz*dx
}

// buildWide turns a binary BVH into the sparse-indexed wideNode array this
// file's collapse pass operates on; layout mirrors BuildQBVH's.
func buildWide(bin []Node2) []wideNode {
	wnodes := make([]wideNode, len(bin))
	for i := range wnodes {
		for s := 0; s < 8; s++ {
			wnodes[i].unusedSlot(s)
		}
	}

	if bin[0].IsLeaf() {
		wnodes[0].setSlot(0,
			bin[0].Box.Min[0], bin[0].Box.Min[1], bin[0].Box.Min[2],
			bin[0].Box.Max[0], bin[0].Box.Max[1], bin[0].Box.Max[2],
			int32(bin[0].FirstPrimitive()), int32(bin[0].PrimitiveCount()))
		return wnodes
	}

	for i, n := range bin {
		if n.IsLeaf() {
			continue
		}
		left := bin[n.LeftChild()]
		right := bin[n.RightChild()]

		wnodes[i].setSlot(0, left.Box.Min[0], left.Box.Min[1], left.Box.Min[2], left.Box.Max[0], left.Box.Max[1], left.Box.Max[2], 0, 0)
		wnodes[i].setSlot(1, right.Box.Min[0], right.Box.Min[1], right.Box.Min[2], right.Box.Max[0], right.Box.Max[1], right.Box.Max[2], 0, 0)

		if left.IsLeaf() {
			wnodes[i].Index[0] = int32(left.FirstPrimitive())
			wnodes[i].Count[0] = int32(left.PrimitiveCount())
		} else {
			wnodes[i].Index[0] = int32(n.LeftChild())
			wnodes[i].Count[0] = 0
		}
		if right.IsLeaf() {
			wnodes[i].Index[1] = int32(right.FirstPrimitive())
			wnodes[i].Count[1] = int32(right.PrimitiveCount())
		} else {
			wnodes[i].Index[1] = int32(n.RightChild())
			wnodes[i].Count[1] = 0
		}
	}

	collapseWide(wnodes, 0, 8)
	return wnodes
}

// collapseWide is collapseQBVH generalized to an arbitrary target arity.
//
// Pass 1 is the greedy absorption loop above: repeatedly fold in whichever
// internal child has the largest half-surface-area, as long as doing so
// keeps arity at or under the target. Once that settles, Pass 2
// (orderSlotsByOctant) reorders the settled children into octant-invariant,
// SAH-tie-broken slots so traversal can walk them front-to-back by XOR-ing a
// ray's octant against the slot index instead of sorting at trace time.
func collapseWide(wnodes []wideNode, nodeIndex int32, arity int) {
	node := &wnodes[nodeIndex]

	for {
		childCount := node.ChildCount()

		maxArea := float32(-1)
		maxIndex := -1
		for i := 0; i < childCount; i++ {
			if node.IsInternalSlot(i) {
				childChildCount := wnodes[node.Index[i]].ChildCount()
				if childCount+childChildCount-1 <= arity {
					area := node.slotHalfArea(i)
					if maxIndex == -1 || area > maxArea {
						maxArea = area
						maxIndex = i
					}
				}
			}
		}
		if maxIndex == -1 {
			break
		}

		child := wnodes[node.Index[maxIndex]]
		node.setSlot(maxIndex,
			child.MinX[0], child.MinY[0], child.MinZ[0], child.MaxX[0], child.MaxY[0], child.MaxZ[0],
			child.Index[0], child.Count[0])

		childChildCount := child.ChildCount()
		for i := 1; i < childChildCount; i++ {
			node.setSlot(childCount+i-1,
				child.MinX[i], child.MinY[i], child.MinZ[i], child.MaxX[i], child.MaxY[i], child.MaxZ[i],
				child.Index[i], child.Count[i])
		}
	}

	orderSlotsByOctant(node, node.ChildCount())

	for i := 0; i < arity; i++ {
		if node.IsUnused(i) {
			break
		}
		if node.IsInternalSlot(i) {
			collapseWide(wnodes, node.Index[i], arity)
		}
	}
}

// octantOf maps a point to one of the 8 octants of box, relative to box's
// own center: bit 0/1/2 is set when the point is on the +x/+y/+z side.
// geometry.Ray.Octant uses the opposite sense (bit i set for a negative
// direction along i), so a ray whose Octant bit i is set enters from the +i
// side and meets the slots whose bit i is set first along that axis.
func octantOf(center, p types.Vec3) int {
	o := 0
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

// orderSlotsByOctant implements collapseWide's Pass 2: reassign node's
// occupied slots (0..childCount-1) to positions ordered by the octant each
// child's own center falls into, relative to the union of all of node's
// children. Children sharing an octant break ties by descending
// half-surface-area, so the larger (and therefore SAH-costlier to miss)
// child of a pair claims the lower slot index within that octant.
//
// This never changes which child occupies which logical position in the
// tree, only the slot index it is stored under, so compactWide's
// quantization and BaseIndexChild/BaseIndexTriangle bookkeeping (which just
// walk slots 0..childCount-1 in whatever order they're in) need no changes.
func orderSlotsByOctant(node *wideNode, childCount int) {
	if childCount <= 1 {
		return
	}

	bounds := wideChildBounds(node, childCount)
	center := bounds.Center()

	order := make([]int, childCount)
	for i := range order {
		order[i] = i
	}

	octant := make([]int, childCount)
	for i := 0; i < childCount; i++ {
		slotCenter := types.Vec3{
			(node.MinX[i] + node.MaxX[i]) * 0.5,
			(node.MinY[i] + node.MaxY[i]) * 0.5,
			(node.MinZ[i] + node.MaxZ[i]) * 0.5,
		}
		octant[i] = octantOf(center, slotCenter)
	}

	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if octant[i] != octant[j] {
			return octant[i] < octant[j]
		}
		return node.slotHalfArea(i) > node.slotHalfArea(j)
	})

	var reordered wideNode
	for s, i := range order {
		reordered.setSlot(s,
			node.MinX[i], node.MinY[i], node.MinZ[i], node.MaxX[i], node.MaxY[i], node.MaxZ[i],
			node.Index[i], node.Count[i])
	}
	for s := childCount; s < 8; s++ {
		reordered.unusedSlot(s)
	}
	*node = reordered
}

// BuildCWBVH compresses a binary BVH into an 8-ary CWBVH (spec section
// 4.5): greedy 8-ary collapse (collapseWide) followed by a compaction pass
// that lays each node's occupied children out contiguously in the output
// array (so BaseIndexChild + a per-slot bit offset addresses them) and
// re-linearizes leaf primitive ranges the same way (BaseIndexTriangle + a
// per-slot triangle count prefix sum).
//
// primOrder is the leaf-order primitive list produced by BuildBinary; the
// returned primitive slice is a re-ordering of it.
func BuildCWBVH(bin []Node2, primOrder []uint32) ([]Node8, []uint32) {
	if len(bin) == 0 {
		return nil, nil
	}

	wnodes := buildWide(bin)

	out := make([]Node8, 0, len(bin))
	var outPrims []uint32

	// Reserve the root slot before recursing so children can be appended
	// contiguously right after it, then fill it in once children exist.
	out = append(out, Node8{})
	compactWide(wnodes, 0, &out, 0, primOrder, &outPrims)

	return out, outPrims
}

// compactWide flattens wnodes[srcIndex] into out[dstIndex], recursing into
// its internal children (which it appends contiguously right after
// dstIndex's siblings) before quantizing dstIndex against its own AABB.
func compactWide(wnodes []wideNode, srcIndex int32, out *[]Node8, dstIndex int, primOrder []uint32, outPrims *[]uint32) {
	src := &wnodes[srcIndex]
	childCount := src.ChildCount()

	// Reserve contiguous output slots for every internal child up front so
	// BaseIndexChild + bit-index addresses them correctly regardless of
	// recursion order.
	childDst := make([]int, 8)
	baseChild := len(*out)
	for i := 0; i < childCount; i++ {
		if src.IsInternalSlot(i) {
			childDst[i] = len(*out)
			*out = append(*out, Node8{})
		}
	}

	// Leaf slots' primitive ranges are re-linearized in slot order so that
	// BaseIndexTriangle plus a running prefix sum of LeafTriangleCount over
	// earlier slots addresses each group, mirroring how BaseIndexChild
	// addresses children.
	baseTri := len(*outPrims)
	for i := 0; i < childCount; i++ {
		if src.IsLeafSlot(i) {
			count := int(src.Count[i])
			first := int(src.Index[i])
			*outPrims = append(*outPrims, primOrder[first:first+count]...)
		}
	}

	node := &(*out)[dstIndex]
	*node = Node8{}

	nodeBox := wideChildBounds(src, childCount)
	node.P = nodeBox.Min
	ext := nodeBox.Max.Sub(nodeBox.Min)
	node.E[0] = quantizeExponent(ext[0])
	node.E[1] = quantizeExponent(ext[1])
	node.E[2] = quantizeExponent(ext[2])

	bitIndex := uint8(0)
	node.BaseIndexChild = uint32(baseChild)
	node.BaseIndexTriangle = uint32(baseTri)

	for i := 0; i < childCount; i++ {
		quantizeSlot(node, i, src.MinX[i], src.MinY[i], src.MinZ[i], src.MaxX[i], src.MaxY[i], src.MaxZ[i])

		if src.IsInternalSlot(i) {
			node.setInnerSlot(i, bitIndex)
			bitIndex++
		} else {
			node.setLeafSlot(i, int(src.Count[i]))
		}
	}

	// Recurse after quantizing this node so childDst positions (computed
	// above) remain valid even though *out may have grown by appends made
	// during the recursive calls.
	for i := 0; i < childCount; i++ {
		if src.IsInternalSlot(i) {
			compactWide(wnodes, src.Index[i], out, childDst[i], primOrder, outPrims)
		}
	}
}

func wideChildBounds(src *wideNode, childCount int) geometry.AABB {
	box := geometry.Empty()
	for i := 0; i < childCount; i++ {
		box = box.Expand(geometry.AABB{
			Min: types.Vec3{src.MinX[i], src.MinY[i], src.MinZ[i]},
			Max: types.Vec3{src.MaxX[i], src.MaxY[i], src.MaxZ[i]},
		})
	}
	return box.FixIfNeeded()
}

// quantizeExponent finds the smallest power-of-two scale (as a biased
// IEEE-754 exponent byte) such that extent/scale fits in a byte, i.e. the
// scale used to dequantize a Node8 slot never truncates the node's own
// AABB.
func quantizeExponent(extent float32) byte {
	if extent <= 0 {
		return 0
	}
	e := math.Ceil(math.Log2(float64(extent) / 255.0))
	biased := int(e) + 127
	if biased < 0 {
		biased = 0
	}
	if biased > 255 {
		biased = 255
	}
	return byte(biased)
}

func quantizeSlot(n *Node8, i int, minX, minY, minZ, maxX, maxY, maxZ float32) {
	sx := exponentToScale(n.E[0])
	sy := exponentToScale(n.E[1])
	sz := exponentToScale(n.E[2])

	n.QuantMinX[i] = quantizeDown(minX-n.P[0], sx)
	n.QuantMinY[i] = quantizeDown(minY-n.P[1], sy)
	n.QuantMinZ[i] = quantizeDown(minZ-n.P[2], sz)
	n.QuantMaxX[i] = quantizeUp(maxX-n.P[0], sx)
	n.QuantMaxY[i] = quantizeUp(maxY-n.P[1], sy)
	n.QuantMaxZ[i] = quantizeUp(maxZ-n.P[2], sz)
}

// quantizeDown/quantizeUp round outward so the quantized box never shrinks
// relative to the true child AABB (a closest-hit search must never miss a
// primitive because its box got over-tightened).
func quantizeDown(v, scale float32) byte {
	q := math.Floor(float64(v / scale))
	return clampByte(q)
}

func quantizeUp(v, scale float32) byte {
	q := math.Ceil(float64(v / scale))
	return clampByte(q)
}

func clampByte(q float64) byte {
	if q < 0 {
		return 0
	}
	if q > 255 {
		return 255
	}
	return byte(q)
}
