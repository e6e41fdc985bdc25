package bvh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/mravery/gobvh/geometry"
)

// cacheMagic and cacheVersion identify the persisted BVH cache format (spec
// section 6). Bumping cacheVersion invalidates every previously written
// cache file.
var cacheMagic = [4]byte{'B', 'V', 'H', ' '}

const cacheVersion uint32 = 1

const cacheHeaderSize = 20

// SaveCache writes m's node array and primitive index list to w in the
// persisted cache format: a fixed header (magic, version, node-type tag,
// node count, primitive count) followed by the tight-packed little-endian
// node and primitive arrays.
func SaveCache(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)

	var header [cacheHeaderSize]byte
	copy(header[0:4], cacheMagic[:])
	binary.LittleEndian.PutUint32(header[4:8], cacheVersion)
	binary.LittleEndian.PutUint32(header[8:12], m.Type.nodeTypeTag())
	binary.LittleEndian.PutUint32(header[12:16], uint32(nodeCount(m)))
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(m.Primitives)))
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}

	if err := writeNodes(bw, m); err != nil {
		return err
	}

	primBuf := make([]byte, 4*len(m.Primitives))
	for i, p := range m.Primitives {
		binary.LittleEndian.PutUint32(primBuf[i*4:i*4+4], p)
	}
	if _, err := bw.Write(primBuf); err != nil {
		return err
	}

	return bw.Flush()
}

// LoadCache reads a persisted BVH cache from r and reattaches it to tris,
// the triangle slice the cache was originally built from (the cache itself
// stores only nodes and leaf-order primitive indices, not triangle data).
// A header mismatch or truncated read is reported as ErrCacheCorrupt.
func LoadCache(r io.Reader, tris []geometry.Triangle) (*Mesh, error) {
	br := bufio.NewReader(r)

	var header [cacheHeaderSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	if string(header[0:4]) != string(cacheMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCacheCorrupt)
	}
	if binary.LittleEndian.Uint32(header[4:8]) != cacheVersion {
		return nil, fmt.Errorf("%w: version mismatch", ErrCacheCorrupt)
	}
	nodeTag := binary.LittleEndian.Uint32(header[8:12])
	nodeN := int(binary.LittleEndian.Uint32(header[12:16]))
	primN := int(binary.LittleEndian.Uint32(header[16:20]))

	m := &Mesh{Triangles: tris}
	switch nodeTag {
	case 2:
		m.Type = Binary
		nodes, err := readNodes2(br, nodeN)
		if err != nil {
			return nil, err
		}
		m.Nodes2 = nodes
	case 4:
		m.Type = QBVH4
		nodes, err := readNodes4(br, nodeN)
		if err != nil {
			return nil, err
		}
		m.Nodes4 = nodes
	case 8:
		m.Type = CWBVH8
		nodes, err := readNodes8(br, nodeN)
		if err != nil {
			return nil, err
		}
		m.Nodes8 = nodes
	default:
		return nil, fmt.Errorf("%w: unknown node type tag %d", ErrCacheCorrupt, nodeTag)
	}

	primBuf := make([]byte, 4*primN)
	if _, err := io.ReadFull(br, primBuf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	m.Primitives = make([]uint32, primN)
	for i := range m.Primitives {
		m.Primitives[i] = binary.LittleEndian.Uint32(primBuf[i*4 : i*4+4])
	}

	return m, nil
}

// SaveCacheFile writes m's cache to path, creating or truncating it.
func SaveCacheFile(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return SaveCache(f, m)
}

// LoadCacheFile loads the cache at cachePath, first rejecting it with
// ErrCacheStale if sourcePath's modification time is newer than the cache
// file's own -- the on-disk staleness check from spec section 6.
func LoadCacheFile(cachePath, sourcePath string, tris []geometry.Triangle) (*Mesh, error) {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return nil, err
	}
	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		return nil, err
	}
	if sourceInfo.ModTime().After(cacheInfo.ModTime()) {
		return nil, ErrCacheStale
	}

	f, err := os.Open(cachePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCache(f, tris)
}

func nodeCount(m *Mesh) int {
	switch m.Type {
	case QBVH4:
		return len(m.Nodes4)
	case CWBVH8:
		return len(m.Nodes8)
	default:
		return len(m.Nodes2)
	}
}

func writeNodes(w io.Writer, m *Mesh) error {
	switch m.Type {
	case QBVH4:
		buf := make([]byte, node4Size)
		for i := range m.Nodes4 {
			m.Nodes4[i].marshalBinary(buf)
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	case CWBVH8:
		buf := make([]byte, node8Size)
		for i := range m.Nodes8 {
			m.Nodes8[i].marshalBinary(buf)
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	default:
		buf := make([]byte, node2Size)
		for i := range m.Nodes2 {
			m.Nodes2[i].marshalBinary(buf)
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func readNodes2(r io.Reader, n int) ([]Node2, error) {
	nodes := make([]Node2, n)
	buf := make([]byte, node2Size)
	for i := range nodes {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
		}
		nodes[i].unmarshalBinary(buf)
	}
	return nodes, nil
}

func readNodes4(r io.Reader, n int) ([]Node4, error) {
	nodes := make([]Node4, n)
	buf := make([]byte, node4Size)
	for i := range nodes {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
		}
		nodes[i].unmarshalBinary(buf)
	}
	return nodes, nil
}

func readNodes8(r io.Reader, n int) ([]Node8, error) {
	nodes := make([]Node8, n)
	buf := make([]byte, node8Size)
	for i := range nodes {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
		}
		nodes[i].unmarshalBinary(buf)
	}
	return nodes, nil
}
