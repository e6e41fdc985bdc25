package bvh

import (
	"math"
	"testing"

	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

func TestClipTriangleToSlabStaysWithinBothBounds(t *testing.T) {
	tri := geometry.Triangle{Positions: [3]types.Vec3{
		{0, 0, 0}, {4, 0, 0}, {0, 4, 0},
	}}
	triBox := tri.BBox()

	clipped := clipTriangleToSlab(tri, triBox, AxisX, 1, 3)

	if clipped.Min[0] < 1-1e-4 || clipped.Max[0] > 3+1e-4 {
		t.Fatalf("clip to [1,3] on X leaked outside the slab: %+v", clipped)
	}
	// The clip can only shrink the box, never grow it relative to the
	// triangle's own bounds on the other two axes.
	if clipped.Min[1] < triBox.Min[1]-1e-4 || clipped.Max[1] > triBox.Max[1]+1e-4 {
		t.Fatalf("clip grew the box on an unrelated axis: %+v vs triangle box %+v", clipped, triBox)
	}
}

func TestClipTriangleToSlabFullRangeMatchesBBox(t *testing.T) {
	tri := geometry.Triangle{Positions: [3]types.Vec3{
		{0, 0, 0}, {2, 0, 1}, {0, 2, 1},
	}}
	box := tri.BBox()

	clipped := clipTriangleToSlab(tri, box, AxisX, box.Min[0]-1, box.Max[0]+1)

	const eps = 1e-4
	for a := 0; a < 3; a++ {
		if math.Abs(float64(clipped.Min[a]-box.Min[a])) > eps || math.Abs(float64(clipped.Max[a]-box.Max[a])) > eps {
			t.Fatalf("clipping outside the triangle's own range changed the box: got %+v want %+v", clipped, box)
		}
	}
}

// TestSpatialSplitCanDuplicatePrimitives exercises the SBVH path end to
// end. Two dense clusters sit far apart along x, and one long, flat
// triangle spans both of them. Every triangle shares the y extent
// [0, 0.01] and lies in z=0, so a y or z split cannot set the long triangle
// apart, and every object split leaves its full 10-unit-wide box on one
// side together with at least one cluster. A spatial split in the gap
// between the clusters clips the long triangle into two halves instead,
// which is cheaper and is only possible by duplicating its reference into
// both children.
func TestSpatialSplitCanDuplicatePrimitives(t *testing.T) {
	tris := make([]geometry.Triangle, 0, 64)
	// A dense cluster of small triangles on the left...
	for i := 0; i < 30; i++ {
		x := float32(i) * 0.03
		tris = append(tris, geometry.Triangle{Positions: [3]types.Vec3{
			{x, 0, 0}, {x + 0.01, 0, 0}, {x, 0.01, 0},
		}})
	}
	// ...a dense cluster on the right...
	for i := 0; i < 30; i++ {
		x := 9 + float32(i)*0.03
		tris = append(tris, geometry.Triangle{Positions: [3]types.Vec3{
			{x, 0, 0}, {x + 0.01, 0, 0}, {x, 0.01, 0},
		}})
	}
	// ...and one triangle whose bounding box covers both clusters' entire
	// x and y extent, so no axis-aligned centroid split can isolate it
	// from either cluster without inflating a child box across the full
	// gap between them.
	tris = append(tris, geometry.Triangle{Positions: [3]types.Vec3{
		{0, 0, 0}, {10, 0, 0}, {5, 0.01, 0},
	}})

	cfg := DefaultConfig(Spatial)
	cfg.SpatialSplitAlpha = 0 // search for a spatial split whenever the object-split children overlap
	mesh, err := BuildMesh(tris, cfg)
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}

	seen := make([]bool, len(tris))
	for _, p := range mesh.Primitives {
		seen[p] = true
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("primitive %d missing from SBVH leaf-order table", i)
		}
	}

	if len(mesh.Primitives) <= len(tris) {
		t.Fatalf("expected the spanning triangle to be duplicated by a spatial split: got %d leaf primitive refs for %d triangles", len(mesh.Primitives), len(tris))
	}
}
