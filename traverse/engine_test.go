package traverse

import (
	"math"
	"math/rand"
	"testing"

	"github.com/mravery/gobvh/bvh"
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/scene"
	"github.com/mravery/gobvh/types"
)

func gridTriangles(n int) []geometry.Triangle {
	tris := make([]geometry.Triangle, 0, 2*n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			fx, fy := float32(x), float32(y)
			v00 := types.XYZ(fx, fy, 0)
			v10 := types.XYZ(fx+1, fy, 0)
			v01 := types.XYZ(fx, fy+1, 0)
			v11 := types.XYZ(fx+1, fy+1, 0)
			tris = append(tris,
				geometry.Triangle{Positions: [3]types.Vec3{v00, v10, v11}},
				geometry.Triangle{Positions: [3]types.Vec3{v00, v11, v01}},
			)
		}
	}
	return tris
}

func buildSingleInstanceScene(t *testing.T, bvhType bvh.Type, tris []geometry.Triangle, xform types.Mat4) *scene.Scene {
	t.Helper()
	mesh, err := bvh.BuildMesh(tris, bvh.DefaultConfig(bvhType))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}
	inst := scene.NewInstance(0, xform, mesh.RootBox())
	sc, err := scene.Build(bvhType, []*bvh.Mesh{mesh}, []scene.Instance{inst})
	if err != nil {
		t.Fatalf("scene.Build: %v", err)
	}
	return sc
}

// linearScan intersects ray against every triangle in tris directly,
// independent of any BVH, as the ground truth for agreement tests.
func linearScan(tris []geometry.Triangle, ray geometry.Ray, tMax float32) geometry.RayHit {
	best := geometry.Miss()
	best.T = tMax
	for i, tr := range tris {
		th, ok := tr.Intersect(ray, 1e-4, best.T)
		if !ok {
			continue
		}
		if th.T < best.T {
			best.T = th.T
			best.PrimitiveID = uint32(i)
			best.U, best.V = th.U, th.V
		}
	}
	return best
}

func TestSingleTriangleHit(t *testing.T) {
	tris := gridTriangles(1)
	sc := buildSingleInstanceScene(t, bvh.Binary, tris, types.Ident4())
	eng := New(sc, 0)

	ray := geometry.NewRay(types.XYZ(0.6, 0.2, 1), types.XYZ(0, 0, -1))
	hits := make([]geometry.RayHit, 1)
	eng.TraceClosest([]geometry.Ray{ray}, hits, 1)

	if !hits[0].IsHit() {
		t.Fatal("expected a hit through the grid mesh's first triangle")
	}
	if math.Abs(float64(hits[0].T-1)) > 1e-4 {
		t.Fatalf("expected t=1, got %v", hits[0].T)
	}
}

func TestMissOutsideMesh(t *testing.T) {
	tris := gridTriangles(1)
	sc := buildSingleInstanceScene(t, bvh.Binary, tris, types.Ident4())
	eng := New(sc, 0)

	ray := geometry.NewRay(types.XYZ(10, 10, 1), types.XYZ(0, 0, -1))
	hits := make([]geometry.RayHit, 1)
	eng.TraceClosest([]geometry.Ray{ray}, hits, 1)

	if hits[0].IsHit() {
		t.Fatalf("expected a miss far outside the mesh, got hit %+v", hits[0])
	}
}

func TestInstanceTransformRoundTrip(t *testing.T) {
	tris := gridTriangles(1)
	xform := types.Translation4(types.XYZ(5, 0, 0))
	sc := buildSingleInstanceScene(t, bvh.Binary, tris, xform)
	eng := New(sc, 0)

	// The untransformed triangle occupies roughly [0,1]x[0,1] in the z=0
	// plane; after translating the instance by (5,0,0) the same local point
	// (0.6,0.2) in world space sits at x=5.6. The ray starts 5 units above
	// the z=0 plane and travels straight down, so it reaches it at t=5.
	ray := geometry.NewRay(types.XYZ(5.6, 0.2, 5), types.XYZ(0, 0, -1))
	hits := make([]geometry.RayHit, 1)
	eng.TraceClosest([]geometry.Ray{ray}, hits, 1)

	if !hits[0].IsHit() {
		t.Fatal("expected a hit after instance translation")
	}
	if math.Abs(float64(hits[0].T-5)) > 1e-4 {
		t.Fatalf("expected instance-transformed hit at t=5, got %v", hits[0].T)
	}
}

func TestAnyHitAgreesWithClosestHit(t *testing.T) {
	tris := gridTriangles(8)
	sc := buildSingleInstanceScene(t, bvh.Binary, tris, types.Ident4())
	eng := New(sc, 0)

	rays, maxDist := randomDownwardRays(500, 8)

	closest := make([]geometry.RayHit, len(rays))
	eng.TraceClosest(rays, closest, 1)

	anyFlags := make([]bool, len(rays))
	eng.TraceAny(rays, maxDist, anyFlags, 1)

	for i := range rays {
		want := closest[i].IsHit() && closest[i].T <= maxDist[i]
		if anyFlags[i] != want {
			t.Fatalf("ray %d: trace_any=%v but trace_closest implies %v (t=%v, maxDist=%v)", i, anyFlags[i], want, closest[i].T, maxDist[i])
		}
	}
}

// TestAnyHitReportsGenuineMisses exercises rays that miss the mesh
// entirely, and a ray that hits but farther than maxDist, so that
// trace_any's result can't be confused with "maxDist reached without
// testing anything" (the failure mode closest-hit agreement against
// near-total grid coverage would never expose).
func TestAnyHitReportsGenuineMisses(t *testing.T) {
	tris := gridTriangles(8)
	sc := buildSingleInstanceScene(t, bvh.Binary, tris, types.Ident4())
	eng := New(sc, 0)

	rays := []geometry.Ray{
		geometry.NewRay(types.XYZ(100, 100, 2), types.XYZ(0, 0, -1)), // misses the mesh outright
		geometry.NewRay(types.XYZ(4, 4, 10), types.XYZ(0, 0, -1)),    // hits, but past maxDist
		geometry.NewRay(types.XYZ(4, 4, 2), types.XYZ(0, 0, -1)),     // hits well within maxDist
	}
	maxDist := []float32{1000, 5, 1000}
	want := []bool{false, false, true}

	hitFlags := make([]bool, len(rays))
	eng.TraceAny(rays, maxDist, hitFlags, 1)

	for i := range rays {
		if hitFlags[i] != want[i] {
			t.Fatalf("ray %d: trace_any=%v, want %v", i, hitFlags[i], want[i])
		}
	}
}

// TestLayoutsAgreeWithLinearScan fuzzes all three BLAS layouts against a
// brute-force linear scan of the same triangles, checking closest-hit t
// agrees to within a small tolerance (spec section 8's "BVH2/QBVH/CWBVH
// traversal agreement" invariant, folded in with the linear-scan ground
// truth check since both compare the same quantity).
func TestLayoutsAgreeWithLinearScan(t *testing.T) {
	tris := gridTriangles(10)
	rays, _ := randomDownwardRays(300, 10)

	for _, bvhType := range []bvh.Type{bvh.Binary, bvh.QBVH4, bvh.CWBVH8} {
		sc := buildSingleInstanceScene(t, bvhType, tris, types.Ident4())
		eng := New(sc, 0)

		hits := make([]geometry.RayHit, len(rays))
		eng.TraceClosest(rays, hits, 1)

		for i, ray := range rays {
			want := linearScan(tris, ray, float32(math.Inf(1)))
			got := hits[i]
			if want.IsHit() != got.IsHit() {
				t.Fatalf("%v ray %d: linear scan hit=%v, bvh hit=%v", bvhType, i, want.IsHit(), got.IsHit())
			}
			if want.IsHit() && math.Abs(float64(want.T-got.T)) > 1e-4 {
				t.Fatalf("%v ray %d: t mismatch, linear=%v bvh=%v", bvhType, i, want.T, got.T)
			}
		}
	}
}

func TestParallelWorkersAgreeWithCooperativeSingleThread(t *testing.T) {
	tris := gridTriangles(12)
	sc := buildSingleInstanceScene(t, bvh.CWBVH8, tris, types.Ident4())
	eng := New(sc, 0)

	rays, _ := randomDownwardRays(400, 12)

	single := make([]geometry.RayHit, len(rays))
	eng.TraceClosest(rays, single, 1)

	parallel := make([]geometry.RayHit, len(rays))
	eng.TraceClosest(rays, parallel, 4)

	for i := range rays {
		if single[i].IsHit() != parallel[i].IsHit() {
			t.Fatalf("ray %d: cooperative hit=%v, pooled hit=%v", i, single[i].IsHit(), parallel[i].IsHit())
		}
		if single[i].IsHit() && math.Abs(float64(single[i].T-parallel[i].T)) > 1e-5 {
			t.Fatalf("ray %d: t mismatch between cooperative and pooled workers: %v vs %v", i, single[i].T, parallel[i].T)
		}
	}
}

func randomDownwardRays(n, gridSize int) ([]geometry.Ray, []float32) {
	rng := rand.New(rand.NewSource(42))
	rays := make([]geometry.Ray, n)
	maxDist := make([]float32, n)
	size := float32(gridSize)
	for i := 0; i < n; i++ {
		origin := types.XYZ(rng.Float32()*size, rng.Float32()*size, 2)
		rays[i] = geometry.NewRay(origin, types.XYZ(0, 0, -1))
		maxDist[i] = 3
	}
	return rays, maxDist
}
