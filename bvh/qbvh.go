package bvh

// invalidSlot marks a Node4/Node8 slot as unoccupied.
const invalidSlot int32 = -1

// BuildQBVH collapses a binary BVH into a 4-ary QBVH (spec section 4.4):
// every binary internal node first becomes a 4-wide node holding its two
// direct children, then collapse greedily adopts the grandchildren of
// whichever child currently has the largest half-surface-area, as long as
// doing so keeps the node's arity at or under 4. This is a direct port of
// QBVHBuilder::build + QBVHBuilder::collapse.
//
// The returned slice is parallel to bin: nodes reachable only through a
// binary sibling that got collapsed away are left unused (Count == -1)
// rather than compacted out, matching the reference builder's layout.
func BuildQBVH(bin []Node2) []Node4 {
	if len(bin) == 0 {
		return nil
	}

	qnodes := make([]Node4, len(bin))
	for i := range qnodes {
		for s := 0; s < 4; s++ {
			qnodes[i].unusedSlot(s)
		}
	}

	if bin[0].IsLeaf() {
		qnodes[0].setSlot(0,
			bin[0].Box.Min[0], bin[0].Box.Min[1], bin[0].Box.Min[2],
			bin[0].Box.Max[0], bin[0].Box.Max[1], bin[0].Box.Max[2],
			int32(bin[0].FirstPrimitive()), int32(bin[0].PrimitiveCount()))
		return qnodes
	}

	for i, n := range bin {
		if n.IsLeaf() {
			continue
		}
		left := bin[n.LeftChild()]
		right := bin[n.RightChild()]

		qnodes[i].setSlot(0, left.Box.Min[0], left.Box.Min[1], left.Box.Min[2], left.Box.Max[0], left.Box.Max[1], left.Box.Max[2], 0, 0)
		qnodes[i].setSlot(1, right.Box.Min[0], right.Box.Min[1], right.Box.Min[2], right.Box.Max[0], right.Box.Max[1], right.Box.Max[2], 0, 0)

		if left.IsLeaf() {
			qnodes[i].Index[0] = int32(left.FirstPrimitive())
			qnodes[i].Count[0] = int32(left.PrimitiveCount())
		} else {
			qnodes[i].Index[0] = int32(n.LeftChild())
			qnodes[i].Count[0] = 0
		}

		if right.IsLeaf() {
			qnodes[i].Index[1] = int32(right.FirstPrimitive())
			qnodes[i].Count[1] = int32(right.PrimitiveCount())
		} else {
			qnodes[i].Index[1] = int32(n.RightChild())
			qnodes[i].Count[1] = 0
		}
	}

	collapseQBVH(qnodes, 0)
	return qnodes
}

func collapseQBVH(qnodes []Node4, nodeIndex int32) {
	node := &qnodes[nodeIndex]

	for {
		childCount := node.ChildCount()

		maxArea := float32(-1)
		maxIndex := -1
		for i := 0; i < childCount; i++ {
			if node.IsInternalSlot(i) {
				childChildCount := qnodes[node.Index[i]].ChildCount()
				if childCount+childChildCount-1 <= 4 {
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

		child := qnodes[node.Index[maxIndex]]
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

	for i := 0; i < 4; i++ {
		if node.IsUnused(i) {
			break
		}
		if node.IsInternalSlot(i) {
			collapseQBVH(qnodes, node.Index[i])
		}
	}
}
