package scene

import (
	"testing"

	"github.com/mravery/gobvh/bvh"
	"github.com/mravery/gobvh/geometry"
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

func TestNewInstanceTranslatesBox(t *testing.T) {
	mesh, err := bvh.BuildMesh(gridTriangles(2), bvh.DefaultConfig(bvh.Binary))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}
	localBox := mesh.RootBox()

	xform := types.Translation4(types.XYZ(5, 0, 0))
	inst := NewInstance(0, xform, localBox)

	wantMin := localBox.Min.Add(types.XYZ(5, 0, 0))
	gotMin := inst.BBox().Min
	const eps = 1e-4
	for a := 0; a < 3; a++ {
		if gotMin[a] < wantMin[a]-eps || gotMin[a] > wantMin[a]+eps {
			t.Fatalf("instance box min: got %v want %v", gotMin, wantMin)
		}
	}
}

func TestNewInstancePanicsOnSingularTransform(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on non-invertible transform")
		}
	}()
	singular := types.Mat4{}
	NewInstance(0, singular, geometry.Empty())
}

func TestBuildSceneRejectsNoInstances(t *testing.T) {
	mesh, err := bvh.BuildMesh(gridTriangles(2), bvh.DefaultConfig(bvh.Binary))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}
	_, err = Build(bvh.Binary, []*bvh.Mesh{mesh}, nil)
	if err == nil {
		t.Fatal("expected an error building a scene with no instances")
	}
}

func TestBuildSceneSingleInstance(t *testing.T) {
	mesh, err := bvh.BuildMesh(gridTriangles(4), bvh.DefaultConfig(bvh.Binary))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}
	inst := NewInstance(0, types.Ident4(), mesh.RootBox())
	sc, err := Build(bvh.Binary, []*bvh.Mesh{mesh}, []Instance{inst})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(sc.TLASNodes) == 0 {
		t.Fatal("expected a non-empty TLAS for one instance")
	}
	if sc.Stats() == "" {
		t.Fatal("expected a non-empty stats report")
	}
}
