package bvh

import (
	"errors"
	"testing"

	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

type fakeVolume struct {
	box geometry.AABB
}

func (f fakeVolume) BBox() geometry.AABB  { return f.box }
func (f fakeVolume) Center() types.Vec3   { return f.box.Center() }

func boxAt(x float32) geometry.AABB {
	return geometry.AABB{Min: types.XYZ(x, 0, 0), Max: types.XYZ(x+1, 1, 1)}
}

func TestBuildTLASEmptyInput(t *testing.T) {
	_, err := BuildTLAS(nil)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestBuildTLASOneLeafPerInstance(t *testing.T) {
	vols := make([]BoundedVolume, 20)
	for i := range vols {
		vols[i] = fakeVolume{box: boxAt(float32(i) * 2)}
	}

	nodes, err := BuildTLAS(vols)
	if err != nil {
		t.Fatalf("BuildTLAS: %v", err)
	}

	leafCount := 0
	seen := make([]bool, len(vols))
	for _, n := range nodes {
		if !n.IsLeaf() {
			continue
		}
		leafCount++
		if n.PrimitiveCount() != 1 {
			t.Fatalf("TLAS leaf holds %d instances, want exactly 1", n.PrimitiveCount())
		}
		idx := n.FirstPrimitive()
		if seen[idx] {
			t.Fatalf("instance %d referenced by more than one TLAS leaf", idx)
		}
		seen[idx] = true
	}
	if leafCount != len(vols) {
		t.Fatalf("expected %d TLAS leaves, got %d", len(vols), leafCount)
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("instance %d missing from the TLAS", i)
		}
	}
}

func TestBuildTLASSingleInstance(t *testing.T) {
	vols := []BoundedVolume{fakeVolume{box: boxAt(0)}}
	nodes, err := BuildTLAS(vols)
	if err != nil {
		t.Fatalf("BuildTLAS: %v", err)
	}
	if len(nodes) != 1 || !nodes[0].IsLeaf() {
		t.Fatalf("expected a single leaf root for one instance, got %+v", nodes)
	}
}
