// Package scene assembles compiled per-mesh acceleration structures
// (bvh.Mesh) into the two-level scene from spec section 4.6: a set of mesh
// instances, each carrying its own world<->object transform, and a
// top-level BVH (TLAS) built over the instances' world-space bounding
// boxes.
package scene

import (
	"github.com/mravery/gobvh/bvh"
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

// Instance places one compiled Mesh into the scene under a world transform.
// Multiple instances may share the same MeshIndex, reusing its BLAS.
type Instance struct {
	MeshIndex uint32

	WorldFromObject types.Mat4
	ObjectFromWorld types.Mat4

	// PrevWorldFromObject is the instance's transform as of the previous
	// frame, carried for reprojection (spec section 3's instance data
	// model). It equals WorldFromObject until MoveTo advances the
	// instance to a new transform.
	PrevWorldFromObject types.Mat4

	// box is the instance's AABB in world space, computed by NewInstance
	// and MoveTo for the TLAS builder.
	box geometry.AABB
}

// BBox satisfies bvh.BoundedVolume so the TLAS can be built with the same
// SAH partitioner used for mesh geometry.
func (in *Instance) BBox() geometry.AABB { return in.box }

// Center satisfies bvh.BoundedVolume.
func (in *Instance) Center() types.Vec3 { return in.box.Center() }

var _ bvh.BoundedVolume = (*Instance)(nil)

// NewInstance derives ObjectFromWorld from worldFromObject (it must be
// invertible; a singular transform is a caller bug, not a runtime
// condition, so this panics rather than returning an error) and computes
// the instance's world-space bounding box from the mesh's local-space root
// box. PrevWorldFromObject starts out equal to WorldFromObject -- a freshly
// created instance has no prior frame to reproject from.
func NewInstance(meshIndex uint32, worldFromObject types.Mat4, localBox geometry.AABB) Instance {
	inv, ok := worldFromObject.Inverse()
	if !ok {
		panic("scene: instance transform is not invertible")
	}
	return Instance{
		MeshIndex:            meshIndex,
		WorldFromObject:      worldFromObject,
		ObjectFromWorld:      inv,
		PrevWorldFromObject:  worldFromObject,
		box:                  localBox.Transform(worldFromObject),
	}
}

// MoveTo advances the instance to a new world transform, rolling the
// current WorldFromObject into PrevWorldFromObject first so a reprojection
// pass can see both the current and prior frame's placement. Panics under
// the same condition as NewInstance: a singular transform is a caller bug.
func (in *Instance) MoveTo(worldFromObject types.Mat4, localBox geometry.AABB) {
	inv, ok := worldFromObject.Inverse()
	if !ok {
		panic("scene: instance transform is not invertible")
	}
	in.PrevWorldFromObject = in.WorldFromObject
	in.WorldFromObject = worldFromObject
	in.ObjectFromWorld = inv
	in.box = localBox.Transform(worldFromObject)
}
