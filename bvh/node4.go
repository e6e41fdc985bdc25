package bvh

import (
	"encoding/binary"
	"math"
)

// node4Size is the on-disk size of a marshaled Node4: 6 float arrays of 4
// plus 2 int32 arrays of 4, all 4 bytes wide: (6+2)*4*4 = 128 bytes.
const node4Size = 128

// Node4 is a 4-ary QBVH node stored as SoA float arrays so the traversal
// engine can run the 4 AABB slab tests with straight-line SIMD-friendly
// code. Slot i's meaning is given by Count[i]: -1 unused, 0 internal
// (Index[i] is another Node4), >0 leaf (Index[i] is a primitive-table
// offset and Count[i] is the primitive count).
type Node4 struct {
	MinX, MinY, MinZ [4]float32
	MaxX, MaxY, MaxZ [4]float32
	Index            [4]int32
	Count            [4]int32
}

// unusedSlot marks slot i of the node as unoccupied.
func (n *Node4) unusedSlot(i int) {
	n.Index[i] = -1
	n.Count[i] = -1
}

// IsUnused reports whether slot i is unoccupied.
func (n *Node4) IsUnused(i int) bool { return n.Count[i] == -1 }

// IsLeafSlot reports whether slot i holds a leaf.
func (n *Node4) IsLeafSlot(i int) bool { return n.Count[i] > 0 }

// IsInternalSlot reports whether slot i holds another Node4.
func (n *Node4) IsInternalSlot(i int) bool { return n.Count[i] == 0 }

// ChildCount returns how many of the 4 slots are occupied. Occupied slots
// are always packed at the front (0..ChildCount).
func (n *Node4) ChildCount() int {
	count := 0
	for i := 0; i < 4; i++ {
		if n.IsUnused(i) {
			break
		}
		count++
	}
	return count
}

// setSlot copies AABB + (index, count) into slot i.
func (n *Node4) setSlot(i int, minX, minY, minZ, maxX, maxY, maxZ float32, index, count int32) {
	n.MinX[i], n.MinY[i], n.MinZ[i] = minX, minY, minZ
	n.MaxX[i], n.MaxY[i], n.MaxZ[i] = maxX, maxY, maxZ
	n.Index[i] = index
	n.Count[i] = count
}

// slotHalfArea returns the half-surface-area proxy of slot i's AABB, used
// by the greedy collapse to prioritize which internal child to adopt.
func (n *Node4) slotHalfArea(i int) float32 {
	dx := n.MaxX[i] - n.MinX[i]
	dy := n.MaxY[i] - n.MinY[i]
	dz := n.MaxZ[i] - n.MinZ[i]
	return dx*dy + dy*dz + dz*dx
}

func (n *Node4) marshalBinary(buf []byte) {
	off := 0
	putFloats := func(a [4]float32) {
		for _, f := range a {
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
			off += 4
		}
	}
	putInts := func(a [4]int32) {
		for _, v := range a {
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(v))
			off += 4
		}
	}
	putFloats(n.MinX)
	putFloats(n.MinY)
	putFloats(n.MinZ)
	putFloats(n.MaxX)
	putFloats(n.MaxY)
	putFloats(n.MaxZ)
	putInts(n.Index)
	putInts(n.Count)
}

func (n *Node4) unmarshalBinary(buf []byte) {
	off := 0
	getFloats := func() (a [4]float32) {
		for i := range a {
			a[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		return a
	}
	getInts := func() (a [4]int32) {
		for i := range a {
			a[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		return a
	}
	n.MinX = getFloats()
	n.MinY = getFloats()
	n.MinZ = getFloats()
	n.MaxX = getFloats()
	n.MaxY = getFloats()
	n.MaxZ = getFloats()
	n.Index = getInts()
	n.Count = getInts()
}
