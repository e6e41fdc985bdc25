package bvh

import (
	"encoding/binary"
	"math"

	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

// node2Size is the on-disk size of a marshaled Node2: 24-byte AABB plus two
// 4-byte uint32 fields.
const node2Size = 32

// Axis is a split axis, X, Y or Z.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// countAxisShift/countMask implement the "count field reuses the axis bits"
// invariant from spec section 3: internal nodes store their split axis in
// the top two bits of an otherwise-zero count field, leaf nodes store a
// strictly positive primitive count in the low 30 bits.
const (
	countAxisShift = 30
	countMask      = (1 << countAxisShift) - 1
)

// Node2 is a binary BVH node (32 bytes on disk: 24-byte AABB + 4-byte
// child/first index + 4-byte count/axis field). Exactly one of
// (internal, leaf) holds at any time: is_leaf iff (count & countMask) > 0.
type Node2 struct {
	Box geometry.AABB

	// left indexes the first of two consecutive children when internal;
	// first indexes the primitive table when a leaf. Siblings always sit
	// at (left, left+1).
	left uint32

	// count packs the split axis (top 2 bits, internal nodes only) and the
	// leaf primitive count (low 30 bits, zero for internal nodes).
	count uint32
}

// IsLeaf reports whether the node is a leaf.
func (n *Node2) IsLeaf() bool {
	return n.count&countMask > 0
}

// SetInternal marks the node as internal, pointing at children
// (left, left+1) and recording the split axis used to order them.
func (n *Node2) SetInternal(left uint32, axis Axis) {
	n.left = left
	n.count = uint32(axis) << countAxisShift
}

// SetLeaf marks the node as a leaf over primitive indices
// [first, first+count).
func (n *Node2) SetLeaf(first, count uint32) {
	if count == 0 {
		panic("bvh: leaf node must have count > 0")
	}
	n.left = first
	n.count = count & countMask
}

// LeftChild returns the index of the left child (internal nodes only).
func (n *Node2) LeftChild() uint32 { return n.left }

// RightChild returns the index of the right child (internal nodes only).
func (n *Node2) RightChild() uint32 { return n.left + 1 }

// SplitAxis returns the axis used to order this node's children (internal
// nodes only).
func (n *Node2) SplitAxis() Axis { return Axis(n.count >> countAxisShift) }

// FirstPrimitive returns the index of the first primitive in the leaf
// (leaf nodes only).
func (n *Node2) FirstPrimitive() uint32 { return n.left }

// PrimitiveCount returns the number of primitives in the leaf (leaf nodes
// only).
func (n *Node2) PrimitiveCount() uint32 { return n.count & countMask }

// offsetChildren rewrites left in place, adding offset. Used when
// concatenating BLAS node arrays into a shared arena.
func (n *Node2) offsetChildren(offset uint32) {
	if !n.IsLeaf() {
		n.left += offset
	}
}

func (n *Node2) marshalBinary(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(n.Box.Min[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(n.Box.Min[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(n.Box.Min[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(n.Box.Max[0]))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(n.Box.Max[1]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(n.Box.Max[2]))
	binary.LittleEndian.PutUint32(buf[24:28], n.left)
	binary.LittleEndian.PutUint32(buf[28:32], n.count)
}

func (n *Node2) unmarshalBinary(buf []byte) {
	n.Box.Min = types.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
	}
	n.Box.Max = types.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[16:20])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[20:24])),
	}
	n.left = binary.LittleEndian.Uint32(buf[24:28])
	n.count = binary.LittleEndian.Uint32(buf[28:32])
}
