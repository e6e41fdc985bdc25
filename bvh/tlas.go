package bvh

import (
	"time"

	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/log"
)

// BuildTLAS constructs the top-level binary BVH over a scene's mesh
// instances (spec section 4.6). It is BuildBinary's object-split-only
// sibling: TLAS leaves hold exactly one instance apiece (there is nothing
// to gain by batching multiple instances into a leaf, and SBVH-style
// duplication makes no sense for whole-instance bounding boxes), so there
// is no SAH leaf-vs-node comparison to make -- recursion always continues
// until each leaf holds one BoundedVolume.
func BuildTLAS(vols []BoundedVolume) ([]Node2, error) {
	if len(vols) == 0 {
		return nil, ErrEmptyInput
	}

	logger := log.New("bvh.tlas")

	refs := make([]primitiveRef, len(vols))
	for i, v := range vols {
		box := v.BBox().FixIfNeeded()
		refs[i] = primitiveRef{origIndex: i, box: box, center: v.Center()}
	}

	nodes := make([]Node2, 1, 2*len(vols))
	window := sortAxisIndices(refs, 0, len(refs))

	start := time.Now()
	buildTLASRecursive(refs, &nodes, 0, window, len(refs))
	logger.Debugf("tlas build: %s, instances=%d nodes=%d", time.Since(start), len(vols), len(nodes))

	return nodes, nil
}

func buildTLASRecursive(refs []primitiveRef, nodes *[]Node2, nodeSlot uint32, window axisIndices, count int) {
	box := geometry.Empty()
	for i := 0; i < count; i++ {
		box = box.Expand(refs[window[0][i]].box)
	}
	box = box.FixIfNeeded()

	if count == 1 {
		(*nodes)[nodeSlot].Box = box
		(*nodes)[nodeSlot].SetLeaf(uint32(refs[window[0][0]].origIndex), 1)
		return
	}

	split := findObjectSplit(refs, window, count)
	if split.position < 0 {
		// No finite-cost split was found (every candidate's SAH overflowed
		// or is NaN). Split the range in half rather than looping forever.
		split.position = count / 2
		split.axis = 0
	} else {
		applyObjectSplit(refs, window, count, split)
	}

	var leftWindow, rightWindow axisIndices
	for a := 0; a < 3; a++ {
		leftWindow[a] = window[a][:split.position]
		rightWindow[a] = window[a][split.position:count]
	}

	leftSlot := uint32(len(*nodes))
	*nodes = append(*nodes, Node2{}, Node2{})
	(*nodes)[nodeSlot].Box = box
	(*nodes)[nodeSlot].SetInternal(leftSlot, split.axis)

	buildTLASRecursive(refs, nodes, leftSlot, leftWindow, split.position)
	buildTLASRecursive(refs, nodes, leftSlot+1, rightWindow, count-split.position)
}
