package bvh

import (
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

// Mesh is a compiled acceleration structure over one triangle mesh (the
// "bottom-level" half of the two-level scene from spec section 4.6): the
// source triangles, plus whichever of the three node layouts cfg.Type
// selected. Only the node slice matching Type is populated; the other two
// are nil.
type Mesh struct {
	Triangles []geometry.Triangle

	Type Type

	Nodes2 []Node2
	Nodes4 []Node4
	Nodes8 []Node8

	// Primitives maps leaf-order primitive slots back into Triangles. A
	// triangle referenced by two SBVH-duplicated leaves appears twice.
	Primitives []uint32
}

// BuildMesh constructs a Mesh's acceleration structure according to
// cfg.Type: a plain or spatial-split binary BVH, or one of the two
// compaction targets built on top of a binary/spatial intermediate.
func BuildMesh(tris []geometry.Triangle, cfg Config) (*Mesh, error) {
	binCfg := cfg
	if cfg.Type == QBVH4 || cfg.Type == CWBVH8 {
		binCfg.Type = Spatial
	}
	if cfg.Type == CWBVH8 {
		binCfg.MaxPrimitivesInLeaf = 1
	}

	bin, prims, err := BuildBinary(tris, binCfg)
	if err != nil {
		return nil, err
	}

	m := &Mesh{Triangles: tris, Type: cfg.Type}

	switch cfg.Type {
	case Binary, Spatial:
		m.Nodes2 = bin
		m.Primitives = prims
	case QBVH4:
		m.Nodes4 = BuildQBVH(bin)
		m.Primitives = prims
	case CWBVH8:
		m.Nodes8, m.Primitives = BuildCWBVH(bin, prims)
	}
	return m, nil
}

// RootBox returns the object-space (pre-instance-transform) bounding box of
// the mesh, read from whichever node array is populated.
func (m *Mesh) RootBox() geometry.AABB {
	switch m.Type {
	case QBVH4:
		n := m.Nodes4[0]
		box := geometry.Empty()
		for i := 0; i < n.ChildCount(); i++ {
			box = box.Expand(geometry.AABB{
				Min: types.Vec3{n.MinX[i], n.MinY[i], n.MinZ[i]},
				Max: types.Vec3{n.MaxX[i], n.MaxY[i], n.MaxZ[i]},
			})
		}
		return box
	case CWBVH8:
		n := m.Nodes8[0]
		box := geometry.Empty()
		for i := 0; i < 8; i++ {
			if n.IsEmptySlot(i) {
				continue
			}
			box = box.Expand(geometry.AABB{Min: n.DequantizeMin(i), Max: n.DequantizeMax(i)})
		}
		return box
	default:
		return m.Nodes2[0].Box
	}
}
