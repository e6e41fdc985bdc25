package cmd

import (
	"bytes"
	"fmt"
	"math/rand"
	"time"

	"github.com/mravery/gobvh/bvh"
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/scene"
	"github.com/mravery/gobvh/traverse"
	"github.com/mravery/gobvh/types"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// traceSeed is a fixed PRNG seed so `gobvh trace` fires the same ray batch
// on every run, matching the deterministic benchmark spec section 6 calls
// for.
const traceSeed = 1337

// randomRayBatch generates n rays aimed downward through the grid mesh's
// bounding box from random points above it, plus n matching max distances
// for the any-hit pass.
func randomRayBatch(n int, box geometry.AABB) ([]geometry.Ray, []float32) {
	rng := rand.New(rand.NewSource(traceSeed))
	rays := make([]geometry.Ray, n)
	maxDist := make([]float32, n)

	size := box.Max.Sub(box.Min)
	for i := 0; i < n; i++ {
		origin := types.XYZ(
			box.Min[0]+rng.Float32()*size[0],
			box.Min[1]+rng.Float32()*size[1],
			box.Max[2]+1,
		)
		rays[i] = geometry.NewRay(origin, types.XYZ(0, 0, -1))
		maxDist[i] = size[2] + 2
	}
	return rays, maxDist
}

// Trace loads a cached BVH and fires a deterministic ray batch at it in
// both closest-hit and any-hit mode, reporting the results with the same
// tablewriter idiom scene.Scene.Stats uses.
func Trace(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: gobvh trace [flags] <in.bvhcache>")
	}
	cachePath := ctx.Args().Get(0)

	gridSize := ctx.Int("grid-size")
	if gridSize <= 0 {
		gridSize = 32
	}
	tris := gridMesh(gridSize)

	// The procedurally generated grid mesh has no source file on disk to
	// stat, so the staleness check is given the cache file as its own
	// source: same mtime, never stale.
	mesh, err := bvh.LoadCacheFile(cachePath, cachePath, tris)
	if err != nil {
		logger.Error(err)
		return err
	}

	instances := []scene.Instance{scene.NewInstance(0, types.Ident4(), mesh.RootBox())}
	sc, err := scene.Build(mesh.Type, []*bvh.Mesh{mesh}, instances)
	if err != nil {
		logger.Error(err)
		return err
	}

	rayCount := ctx.Int("rays")
	if rayCount <= 0 {
		rayCount = 10000
	}
	workers := ctx.Int("workers")

	rays, maxDist := randomRayBatch(rayCount, mesh.RootBox())

	engine := traverse.New(sc, ctx.Int("stack-size"))

	hits := make([]geometry.RayHit, rayCount)
	start := time.Now()
	engine.TraceClosest(rays, hits, workers)
	closestTime := time.Since(start)

	hitFlags := make([]bool, rayCount)
	start = time.Now()
	engine.TraceAny(rays, maxDist, hitFlags, workers)
	anyTime := time.Since(start)

	closestHits, anyHits := 0, 0
	var tSum float32
	for i := range hits {
		if hits[i].IsHit() {
			closestHits++
			tSum += hits[i].T
		}
		if hitFlags[i] {
			anyHits++
		}
	}
	avgT := float32(0)
	if closestHits > 0 {
		avgT = tSum / float32(closestHits)
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Query", "Rays", "Hits", "Avg t", "Wall time"})
	table.Append([]string{"trace_closest", fmt.Sprintf("%d", rayCount), fmt.Sprintf("%d", closestHits), fmt.Sprintf("%.4f", avgT), closestTime.String()})
	table.Append([]string{"trace_any", fmt.Sprintf("%d", rayCount), fmt.Sprintf("%d", anyHits), "-", anyTime.String()})
	table.Render()

	fmt.Print(buf.String())
	return nil
}
