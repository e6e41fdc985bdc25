package bvh

import (
	"math"
	"sort"
	"time"

	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/log"
	"github.com/mravery/gobvh/types"
)

// buildStats mirrors the stats struct the wide-BVH builders in this package
// report through their logger.
type buildStats struct {
	totalItems int
	nodes      int
	leafs      int
	maxDepth   int
}

// builder holds the mutable state threaded through the recursive binary
// build: the primitive-ref table (which SBVH spatial splits append
// duplicates to), the growing node array, the leaf-order primitive output,
// and the config governing leaf termination and spatial splits.
//
// Each recursive call owns a private, already-scoped window of per-axis
// index permutations (see axisIndices), so there is no shared mutable index
// array to keep in sync across sibling subtrees -- unlike the C++ this is
// grounded on, which reuses one array in place and threads a running
// node_index counter (BVHBuilder::build_bvh_recursive). That in-place reuse
// buys the original allocation-free construction; scoping windows per call
// buys a builder that duplicates cleanly under SBVH without positional
// bookkeeping across siblings.
type builder struct {
	logger log.Logger
	cfg    Config

	refs []primitiveRef
	tris []geometry.Triangle

	nodes []Node2

	primOrder []uint32 // leaf-order list of original triangle indices

	rootSurfaceArea float32

	stats buildStats
}

// BuildBinary constructs a binary SAH BVH (spec section 4.2) over tris. When
// cfg.Type is Spatial, nodes may additionally use SBVH spatial splits
// (section 4.3), which duplicates primitive references rather than
// physically splitting triangles.
//
// The returned index slice maps leaf-order primitive slots back to the
// caller's tris indices; a triangle referenced by two SBVH-duplicated leaves
// appears twice.
func BuildBinary(tris []geometry.Triangle, cfg Config) ([]Node2, []uint32, error) {
	if len(tris) == 0 {
		return nil, nil, ErrEmptyInput
	}
	for i, t := range tris {
		if !trianglePositionsFinite(t) || t.BBox().IsEmpty() {
			return nil, nil, &invalidPrimitiveError{index: i}
		}
	}

	b := &builder{
		logger: log.New("bvh.build"),
		cfg:    cfg,
		tris:   tris,
		refs:   make([]primitiveRef, len(tris)),
		nodes:  make([]Node2, 1, 2*len(tris)),
		stats:  buildStats{totalItems: len(tris)},
	}

	for i, t := range tris {
		box := t.BBox().FixIfNeeded()
		b.refs[i] = primitiveRef{origIndex: i, box: box, center: box.Center()}
	}

	root := geometry.Empty()
	for _, r := range b.refs {
		root = root.Expand(r.box)
	}
	b.rootSurfaceArea = root.SurfaceArea()

	window := sortAxisIndices(b.refs, 0, len(b.refs))

	start := time.Now()
	b.buildRecursive(0, window, len(b.refs), 0)
	b.logger.Debugf("binary bvh build: %s, nodes=%d leafs=%d maxDepth=%d prims=%d",
		time.Since(start), b.stats.nodes, b.stats.leafs, b.stats.maxDepth, b.stats.totalItems)

	return b.nodes, b.primOrder, nil
}

type invalidPrimitiveError struct{ index int }

func (e *invalidPrimitiveError) Error() string { return ErrInvalidPrimitive.Error() }
func (e *invalidPrimitiveError) Unwrap() error { return ErrInvalidPrimitive }

// trianglePositionsFinite rejects NaN/Inf vertex coordinates before BBox()
// ever runs. BBox's FixIfNeeded pads a degenerate box outward, it never
// rejects one, so a non-finite vertex would otherwise propagate into a
// non-empty (and meaningless) box and never trip the IsEmpty() check below.
func trianglePositionsFinite(t geometry.Triangle) bool {
	for _, p := range t.Positions {
		for _, c := range p {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return false
			}
		}
	}
	return true
}

// buildRecursive fills b.nodes[nodeSlot] and everything below it from the
// primitive range described by window (a zero-based, count-long per-axis
// index permutation local to this call), following
// BVHBuilder::build_bvh_recursive: compute bounds, terminate as a leaf when
// there is one primitive left or the SAH says a leaf is cheaper than the
// best split found, otherwise allocate a fresh child pair and recurse.
func (b *builder) buildRecursive(nodeSlot uint32, window axisIndices, count int, depth int) {
	if depth > b.stats.maxDepth {
		b.stats.maxDepth = depth
	}

	box := geometry.Empty()
	for i := 0; i < count; i++ {
		box = box.Expand(b.refs[window[0][i]].box)
	}
	box = box.FixIfNeeded()

	if count == 1 {
		b.setLeaf(nodeSlot, box, window, count)
		return
	}

	objSplit := findObjectSplit(b.refs, window, count)

	var spSplit spatialSplit
	spSplit.cost = objSplit.cost + 1
	tryingSpatial := b.cfg.Type == Spatial && b.cfg.SpatialSplitAlpha < 1 && objSplit.position >= 0
	if tryingSpatial {
		overlap := geometry.Overlap(objSplit.boxLeft, objSplit.boxRight)
		if !overlap.IsEmpty() && overlap.SurfaceArea() > b.cfg.SpatialSplitAlpha*b.rootSurfaceArea {
			spSplit = findSpatialSplit(b.tris, b.refs, window, count, box)
		}
	}
	useSpatial := tryingSpatial && spSplit.cost < objSplit.cost && spSplit.numLeft > 0 && spSplit.numRight > 0

	if objSplit.position < 0 && !useSpatial {
		// No finite-cost object split was found (every candidate's SAH
		// overflowed or is NaN). Force a leaf rather than looping forever.
		b.setLeaf(nodeSlot, box, window, count)
		return
	}

	splitCost := objSplit.cost
	if useSpatial {
		splitCost = spSplit.cost
	}
	leafCost := box.SurfaceArea() * b.cfg.SAHCostLeaf * float32(count)
	nodeCost := box.SurfaceArea()*b.cfg.SAHCostNode + splitCost

	if count <= b.cfg.MaxPrimitivesInLeaf && leafCost < nodeCost {
		b.setLeaf(nodeSlot, box, window, count)
		return
	}

	var leftWindow, rightWindow axisIndices
	var numLeft, numRight int
	var axis Axis
	if useSpatial {
		leftWindow, rightWindow, numLeft, numRight = b.spatialSplitWindows(window, count, spSplit)
		axis = spSplit.axis
	} else {
		applyObjectSplit(b.refs, window, count, objSplit)
		numLeft = objSplit.position
		numRight = count - objSplit.position
		axis = objSplit.axis
		for a := 0; a < 3; a++ {
			leftWindow[a] = window[a][:numLeft]
			rightWindow[a] = window[a][numLeft:count]
		}
	}

	leftSlot := uint32(len(b.nodes))
	b.nodes = append(b.nodes, Node2{}, Node2{})
	b.nodes[nodeSlot].Box = box
	b.nodes[nodeSlot].SetInternal(leftSlot, axis)
	b.stats.nodes++

	b.buildRecursive(leftSlot, leftWindow, numLeft, depth+1)
	b.buildRecursive(leftSlot+1, rightWindow, numRight, depth+1)
}

// setLeaf appends this leaf's primitives (in window[0] order) to the shared
// output list and points the node at the resulting contiguous range.
func (b *builder) setLeaf(nodeSlot uint32, box geometry.AABB, window axisIndices, count int) {
	first := uint32(len(b.primOrder))
	for i := 0; i < count; i++ {
		b.primOrder = append(b.primOrder, uint32(b.refs[window[0][i]].origIndex))
	}
	b.nodes[nodeSlot].Box = box
	b.nodes[nodeSlot].SetLeaf(first, uint32(count))
	b.stats.leafs++
}

// spatialSplitWindows performs the SBVH spatial-split partition: primitives
// entirely on one side of the plane go to that side, primitives straddling
// it are duplicated (appended to b.refs) and clipped into both. It returns
// brand new, independently owned windows for the two children, so growth
// from duplication never has to be reconciled against a shared array.
func (b *builder) spatialSplitWindows(window axisIndices, count int, split spatialSplit) (left, right axisIndices, numLeft, numRight int) {
	primary := window[split.axis][:count]

	leftIdx := make([]int32, 0, count)
	rightIdx := make([]int32, 0, count)

	for _, ri := range primary {
		ref := b.refs[ri]
		switch {
		case ref.box.Max[split.axis] <= split.planeDistance:
			leftIdx = append(leftIdx, ri)
		case ref.box.Min[split.axis] >= split.planeDistance:
			rightIdx = append(rightIdx, ri)
		default:
			leftBox := geometry.Overlap(ref.box, geometry.AABB{Min: ref.box.Min, Max: capAxis(split.axis, ref.box.Max, split.planeDistance)}).FixIfNeeded()
			rightBox := geometry.Overlap(ref.box, geometry.AABB{Min: capAxisMin(split.axis, ref.box.Min, split.planeDistance), Max: ref.box.Max}).FixIfNeeded()

			lRefIdx := int32(len(b.refs))
			b.refs = append(b.refs, primitiveRef{origIndex: ref.origIndex, box: leftBox, center: leftBox.Center()})
			leftIdx = append(leftIdx, lRefIdx)

			rRefIdx := int32(len(b.refs))
			b.refs = append(b.refs, primitiveRef{origIndex: ref.origIndex, box: rightBox, center: rightBox.Center()})
			rightIdx = append(rightIdx, rRefIdx)
		}
	}

	numLeft = len(leftIdx)
	numRight = len(rightIdx)

	for a := 0; a < 3; a++ {
		l := append([]int32{}, leftIdx...)
		r := append([]int32{}, rightIdx...)
		sortByCenter(b.refs, l, Axis(a))
		sortByCenter(b.refs, r, Axis(a))
		left[a] = l
		right[a] = r
	}
	return left, right, numLeft, numRight
}

// sortByCenter sorts perm (a permutation of b.refs indices) by centroid
// along axis, matching sortAxisIndices' use of sort.Slice in sah.go rather
// than a hand-rolled sort.
func sortByCenter(refs []primitiveRef, perm []int32, axis Axis) {
	sort.Slice(perm, func(i, j int) bool {
		return refs[perm[i]].center[axis] < refs[perm[j]].center[axis]
	})
}

func capAxis(axis Axis, v types.Vec3, cap float32) types.Vec3 {
	out := v
	if out[axis] > cap {
		out[axis] = cap
	}
	return out
}

func capAxisMin(axis Axis, v types.Vec3, cap float32) types.Vec3 {
	out := v
	if out[axis] < cap {
		out[axis] = cap
	}
	return out
}
