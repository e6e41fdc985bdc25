package bvh

import (
	"errors"
	"math"
	"testing"

	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

func singleTriangle() []geometry.Triangle {
	return []geometry.Triangle{{
		Positions: [3]types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
	}}
}

func TestBuildMeshEmptyInput(t *testing.T) {
	_, err := BuildMesh(nil, DefaultConfig(Binary))
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestBuildMeshRejectsNonFiniteVertex(t *testing.T) {
	tris := []geometry.Triangle{{
		Positions: [3]types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, float32(math.NaN()), 0}},
	}}
	_, err := BuildMesh(tris, DefaultConfig(Binary))
	var invalid *invalidPrimitiveError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected an invalidPrimitiveError for a NaN vertex, got %v", err)
	}
	if invalid.index != 0 {
		t.Fatalf("expected the error to name index 0, got %d", invalid.index)
	}
}

func TestBuildMeshRejectsInfiniteVertex(t *testing.T) {
	tris := []geometry.Triangle{{
		Positions: [3]types.Vec3{{0, 0, 0}, {float32(math.Inf(1)), 0, 0}, {0, 1, 0}},
	}}
	_, err := BuildMesh(tris, DefaultConfig(Binary))
	if !errors.Is(err, ErrInvalidPrimitive) {
		t.Fatalf("expected ErrInvalidPrimitive for an infinite vertex, got %v", err)
	}
}

func TestBuildMeshSingleTriangle(t *testing.T) {
	mesh, err := BuildMesh(singleTriangle(), DefaultConfig(Binary))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}
	if len(mesh.Nodes2) != 1 {
		t.Fatalf("expected a single root leaf node, got %d nodes", len(mesh.Nodes2))
	}
	if !mesh.Nodes2[0].IsLeaf() {
		t.Fatalf("root node of a one-triangle mesh must be a leaf")
	}
	if mesh.Nodes2[0].PrimitiveCount() != 1 {
		t.Fatalf("expected 1 primitive in root leaf, got %d", mesh.Nodes2[0].PrimitiveCount())
	}
}

// TestBuildBinaryLeafPermutation checks the Primitives table is a
// permutation of [0,n) for a build with no SBVH duplication: every source
// triangle appears in exactly one leaf slot.
func TestBuildBinaryLeafPermutation(t *testing.T) {
	tris := triangleGrid(200)
	mesh, err := BuildMesh(tris, DefaultConfig(Binary))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}
	seen := make([]bool, len(tris))
	for _, p := range mesh.Primitives {
		if seen[p] {
			t.Fatalf("primitive %d referenced by more than one leaf in a non-spatial build", p)
		}
		seen[p] = true
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("primitive %d missing from leaf-order table", i)
		}
	}
}

// TestAncestorBoxContainsDescendants checks the quantified invariant from
// spec section 8: every internal node's AABB contains both its children's
// AABBs.
func TestAncestorBoxContainsDescendants(t *testing.T) {
	tris := triangleGrid(200)
	mesh, err := BuildMesh(tris, DefaultConfig(Binary))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}
	nodes := mesh.Nodes2
	var walk func(i uint32)
	walk = func(i uint32) {
		n := nodes[i]
		if n.IsLeaf() {
			return
		}
		l, r := nodes[n.LeftChild()], nodes[n.RightChild()]
		if !boxContains(n.Box, l.Box) || !boxContains(n.Box, r.Box) {
			t.Fatalf("node %d does not contain both children's boxes", i)
		}
		walk(n.LeftChild())
		walk(n.RightChild())
	}
	walk(0)
}

func boxContains(outer, inner geometry.AABB) bool {
	const eps = 1e-4
	for a := 0; a < 3; a++ {
		if inner.Min[a] < outer.Min[a]-eps || inner.Max[a] > outer.Max[a]+eps {
			return false
		}
	}
	return true
}

func TestBuildQBVHAndCWBVHAgreeOnPrimitiveCoverage(t *testing.T) {
	tris := triangleGrid(300)

	qmesh, err := BuildMesh(tris, DefaultConfig(QBVH4))
	if err != nil {
		t.Fatalf("BuildMesh(QBVH4): %v", err)
	}
	cmesh, err := BuildMesh(tris, DefaultConfig(CWBVH8))
	if err != nil {
		t.Fatalf("BuildMesh(CWBVH8): %v", err)
	}

	assertCovers(t, "qbvh", qmesh.Primitives, len(tris))
	assertCovers(t, "cwbvh", cmesh.Primitives, len(tris))
}

// assertCovers checks every source triangle index in [0,n) appears at
// least once in refs. Both QBVH4 and CWBVH8 build on top of a spatial-split
// binary BVH, which may duplicate a triangle across leaves, so refs can be
// longer than n but never shorter or incomplete.
func assertCovers(t *testing.T, label string, refs []uint32, n int) {
	t.Helper()
	if len(refs) < n {
		t.Fatalf("%s: expected at least %d primitive refs, got %d", label, n, len(refs))
	}
	seen := make([]bool, n)
	for _, p := range refs {
		seen[p] = true
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("%s: primitive %d missing from leaf-order table", label, i)
		}
	}
}
