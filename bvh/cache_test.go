package bvh

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/types"
)

func triangleGrid(n int) []geometry.Triangle {
	tris := make([]geometry.Triangle, n)
	for i := 0; i < n; i++ {
		x := float32(i)
		tris[i] = geometry.Triangle{
			Positions: [3]types.Vec3{
				{x, 0, 0},
				{x + 1, 0, 0},
				{x, 1, 0},
			},
		}
	}
	return tris
}

func TestCacheRoundTripBinary(t *testing.T) {
	tris := triangleGrid(32)
	mesh, err := BuildMesh(tris, DefaultConfig(Binary))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}

	var buf bytes.Buffer
	if err := SaveCache(&buf, mesh); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}

	loaded, err := LoadCache(&buf, tris)
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if loaded.Type != Binary {
		t.Fatalf("expected type Binary, got %v", loaded.Type)
	}
	if len(loaded.Nodes2) != len(mesh.Nodes2) {
		t.Fatalf("node count mismatch: got %d want %d", len(loaded.Nodes2), len(mesh.Nodes2))
	}
	if len(loaded.Primitives) != len(mesh.Primitives) {
		t.Fatalf("primitive count mismatch: got %d want %d", len(loaded.Primitives), len(mesh.Primitives))
	}
	for i := range mesh.Nodes2 {
		if loaded.Nodes2[i] != mesh.Nodes2[i] {
			t.Fatalf("node %d mismatch after round trip: got %+v want %+v", i, loaded.Nodes2[i], mesh.Nodes2[i])
		}
	}
	for i := range mesh.Primitives {
		if loaded.Primitives[i] != mesh.Primitives[i] {
			t.Fatalf("primitive %d mismatch after round trip", i)
		}
	}
}

func TestCacheRoundTripQBVH(t *testing.T) {
	tris := triangleGrid(64)
	mesh, err := BuildMesh(tris, DefaultConfig(QBVH4))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}

	var buf bytes.Buffer
	if err := SaveCache(&buf, mesh); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	loaded, err := LoadCache(&buf, tris)
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if loaded.Type != QBVH4 {
		t.Fatalf("expected type QBVH4, got %v", loaded.Type)
	}
	if len(loaded.Nodes4) != len(mesh.Nodes4) {
		t.Fatalf("node count mismatch: got %d want %d", len(loaded.Nodes4), len(mesh.Nodes4))
	}
}

func TestCacheRoundTripCWBVH(t *testing.T) {
	tris := triangleGrid(64)
	mesh, err := BuildMesh(tris, DefaultConfig(CWBVH8))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}

	var buf bytes.Buffer
	if err := SaveCache(&buf, mesh); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	loaded, err := LoadCache(&buf, tris)
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if loaded.Type != CWBVH8 {
		t.Fatalf("expected type CWBVH8, got %v", loaded.Type)
	}
	if len(loaded.Nodes8) != len(mesh.Nodes8) {
		t.Fatalf("node count mismatch: got %d want %d", len(loaded.Nodes8), len(mesh.Nodes8))
	}
}

func TestCacheCorruptHeader(t *testing.T) {
	buf := bytes.NewBufferString("not a cache file at all")
	_, err := LoadCache(buf, nil)
	if !errors.Is(err, ErrCacheCorrupt) {
		t.Fatalf("expected ErrCacheCorrupt, got %v", err)
	}
}

func TestCacheTruncated(t *testing.T) {
	tris := triangleGrid(8)
	mesh, err := BuildMesh(tris, DefaultConfig(Binary))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}
	var buf bytes.Buffer
	if err := SaveCache(&buf, mesh); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-4])
	_, err = LoadCache(truncated, tris)
	if !errors.Is(err, ErrCacheCorrupt) {
		t.Fatalf("expected ErrCacheCorrupt on truncated cache, got %v", err)
	}
}

func TestCacheFileStaleness(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "source.bin")
	cachePath := filepath.Join(dir, "source.bvhcache")

	if err := os.WriteFile(sourcePath, []byte("triangles"), 0644); err != nil {
		t.Fatalf("WriteFile source: %v", err)
	}

	tris := triangleGrid(8)
	mesh, err := BuildMesh(tris, DefaultConfig(Binary))
	if err != nil {
		t.Fatalf("BuildMesh: %v", err)
	}
	if err := SaveCacheFile(cachePath, mesh); err != nil {
		t.Fatalf("SaveCacheFile: %v", err)
	}

	if _, err := LoadCacheFile(cachePath, sourcePath, tris); err != nil {
		t.Fatalf("expected fresh cache to load, got %v", err)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(sourcePath, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	_, err = LoadCacheFile(cachePath, sourcePath, tris)
	if !errors.Is(err, ErrCacheStale) {
		t.Fatalf("expected ErrCacheStale, got %v", err)
	}
}
