package geometry

import "github.com/mravery/gobvh/types"

// Triangle is a single ray-traceable primitive: three positions, three
// shading normals and three texture coordinates.
type Triangle struct {
	Positions [3]types.Vec3
	Normals   [3]types.Vec3
	UVs       [3]types.Vec2
}

// BBox returns the AABB of the triangle, satisfying bvh.BoundedVolume.
func (t Triangle) BBox() AABB {
	box := AABB{Min: t.Positions[0], Max: t.Positions[0]}
	box = box.ExpandPoint(t.Positions[1])
	box = box.ExpandPoint(t.Positions[2])
	return box.FixIfNeeded()
}

// Center returns the triangle's centroid, satisfying bvh.BoundedVolume.
func (t Triangle) Center() types.Vec3 {
	return t.Positions[0].Add(t.Positions[1]).Add(t.Positions[2]).Mul(1.0 / 3.0)
}

// TriangleHit is the result of a ray-triangle intersection test.
type TriangleHit struct {
	T    float32
	U, V float32
}

// Intersect performs a Möller-Trumbore ray-triangle intersection test.
// ok is false if the ray misses, is parallel to the triangle plane, or hits
// behind the valid [tMin, tMax] range.
func (t Triangle) Intersect(r Ray, tMin, tMax float32) (hit TriangleHit, ok bool) {
	e1 := t.Positions[1].Sub(t.Positions[0])
	e2 := t.Positions[2].Sub(t.Positions[0])

	pvec := r.Dir.Cross(e2)
	det := e1.Dot(pvec)
	if det > -1e-8 && det < 1e-8 {
		return TriangleHit{}, false
	}
	invDet := 1.0 / det

	tvec := r.Origin.Sub(t.Positions[0])
	u := tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return TriangleHit{}, false
	}

	qvec := tvec.Cross(e1)
	v := r.Dir.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return TriangleHit{}, false
	}

	dist := e2.Dot(qvec) * invDet
	if dist < tMin || dist > tMax {
		return TriangleHit{}, false
	}

	return TriangleHit{T: dist, U: u, V: v}, true
}
