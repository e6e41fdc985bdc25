package bvh

import (
	"encoding/binary"
	"math"

	"github.com/mravery/gobvh/types"
)

// node8Size is the fixed on-disk and in-memory size of a Node8 record
// (spec section 3): 12 (origin) + 3 (exponents) + 1 (imask) + 4 + 4
// (base indices) + 8 (meta) + 48 (quantised min/max * 3 axes) = 80 bytes.
const node8Size = 80

// meta[i] category encoding. The exact bit layout of a GPU-resident CWBVH
// node is explicitly out of scope (spec section 1 Non-goals); this is a
// self-consistent CPU-side encoding satisfying the same functional
// contract (child-bit index for inner slots, triangle count for leaf
// slots, a distinguishable empty category).
const (
	metaEmpty      byte = 0x00
	metaInnerFlag  byte = 0x80 // bit 7: slot holds another Node8
	metaLeafFlag   byte = 0x40 // bit 6: slot holds a triangle group
	metaIndexMask  byte = 0x1f // low 5 bits: child-bit index (inner) or triangle count (leaf)
)

// Node8 is an 8-ary CWBVH node: a shared local quantisation grid (origin +
// per-axis power-of-two exponent) plus 8 byte-quantised child AABBs and a
// meta byte per child describing whether the slot is empty, an inner node,
// or a leaf.
type Node8 struct {
	P types.Vec3 // quantisation grid origin (= the node AABB's min corner)
	E [3]byte    // biased IEEE-754 exponent byte, per axis

	Imask byte // bit i set => slot i is an inner-node child

	BaseIndexChild    uint32
	BaseIndexTriangle uint32

	Meta [8]byte

	QuantMinX, QuantMaxX [8]byte
	QuantMinY, QuantMaxY [8]byte
	QuantMinZ, QuantMaxZ [8]byte
}

// IsEmptySlot reports whether child slot i is unoccupied.
func (n *Node8) IsEmptySlot(i int) bool { return n.Meta[i] == metaEmpty }

// IsInnerSlot reports whether child slot i holds another Node8.
func (n *Node8) IsInnerSlot(i int) bool { return n.Meta[i]&metaInnerFlag != 0 }

// IsLeafSlot reports whether child slot i holds a triangle group.
func (n *Node8) IsLeafSlot(i int) bool { return n.Meta[i]&metaLeafFlag != 0 }

// ChildBitIndex returns the bit index (0-7) used to reconstruct the hit
// mask for an inner slot.
func (n *Node8) ChildBitIndex(i int) uint8 { return uint8(n.Meta[i] & metaIndexMask) }

// LeafTriangleCount returns the number of triangles referenced by a leaf
// slot.
func (n *Node8) LeafTriangleCount(i int) int { return int(n.Meta[i] & metaIndexMask) }

// setInnerSlot marks slot i as an inner node at childBit within the
// parent's imask-relative ordering.
func (n *Node8) setInnerSlot(i int, childBit uint8) {
	n.Meta[i] = metaInnerFlag | (childBit & metaIndexMask)
	n.Imask |= 1 << uint(i)
}

// setLeafSlot marks slot i as a leaf referencing triCount triangles.
func (n *Node8) setLeafSlot(i int, triCount int) {
	n.Meta[i] = metaLeafFlag | (byte(triCount) & metaIndexMask)
}

// DequantizeMin returns the decompressed AABB min corner for slot i.
func (n *Node8) DequantizeMin(i int) types.Vec3 {
	ex := exponentToScale(n.E[0])
	ey := exponentToScale(n.E[1])
	ez := exponentToScale(n.E[2])
	return types.Vec3{
		n.P[0] + float32(n.QuantMinX[i])*ex,
		n.P[1] + float32(n.QuantMinY[i])*ey,
		n.P[2] + float32(n.QuantMinZ[i])*ez,
	}
}

// DequantizeMax returns the decompressed AABB max corner for slot i.
func (n *Node8) DequantizeMax(i int) types.Vec3 {
	ex := exponentToScale(n.E[0])
	ey := exponentToScale(n.E[1])
	ez := exponentToScale(n.E[2])
	return types.Vec3{
		n.P[0] + float32(n.QuantMaxX[i])*ex,
		n.P[1] + float32(n.QuantMaxY[i])*ey,
		n.P[2] + float32(n.QuantMaxZ[i])*ez,
	}
}

// exponentToScale converts a biased IEEE-754 exponent byte back into the
// float scale 2^e it represents.
func exponentToScale(biased byte) float32 {
	return math.Float32frombits(uint32(biased) << 23)
}

// marshalBinary tight-packs the node into node8Size bytes, little-endian,
// for the persisted cache format (spec section 6). We serialise field by
// field rather than reinterpreting the struct's memory layout, per the
// design note in spec section 9 about explicit serialisation for on-disk
// compatibility.
func (n *Node8) marshalBinary(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(n.P[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(n.P[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(n.P[2]))
	buf[12], buf[13], buf[14] = n.E[0], n.E[1], n.E[2]
	buf[15] = n.Imask
	binary.LittleEndian.PutUint32(buf[16:20], n.BaseIndexChild)
	binary.LittleEndian.PutUint32(buf[20:24], n.BaseIndexTriangle)
	copy(buf[24:32], n.Meta[:])
	copy(buf[32:40], n.QuantMinX[:])
	copy(buf[40:48], n.QuantMaxX[:])
	copy(buf[48:56], n.QuantMinY[:])
	copy(buf[56:64], n.QuantMaxY[:])
	copy(buf[64:72], n.QuantMinZ[:])
	copy(buf[72:80], n.QuantMaxZ[:])
}

func (n *Node8) unmarshalBinary(buf []byte) {
	n.P[0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
	n.P[1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8]))
	n.P[2] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12]))
	n.E[0], n.E[1], n.E[2] = buf[12], buf[13], buf[14]
	n.Imask = buf[15]
	n.BaseIndexChild = binary.LittleEndian.Uint32(buf[16:20])
	n.BaseIndexTriangle = binary.LittleEndian.Uint32(buf[20:24])
	copy(n.Meta[:], buf[24:32])
	copy(n.QuantMinX[:], buf[32:40])
	copy(n.QuantMaxX[:], buf[40:48])
	copy(n.QuantMinY[:], buf[48:56])
	copy(n.QuantMaxY[:], buf[56:64])
	copy(n.QuantMinZ[:], buf[64:72])
	copy(n.QuantMaxZ[:], buf[72:80])
}
