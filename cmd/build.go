package cmd

import (
	"fmt"
	"time"

	"github.com/mravery/gobvh/bvh"
	"github.com/mravery/gobvh/geometry"
	"github.com/mravery/gobvh/scene"
	"github.com/mravery/gobvh/types"
	"github.com/urfave/cli"
)

// bvhTypeFromFlag maps the CLI's bvh-type string onto bvh.Type, matching
// the config surface named in spec section 6.
func bvhTypeFromFlag(name string) (bvh.Type, error) {
	switch name {
	case "bvh2":
		return bvh.Binary, nil
	case "sbvh":
		return bvh.Spatial, nil
	case "qbvh":
		return bvh.QBVH4, nil
	case "cwbvh":
		return bvh.CWBVH8, nil
	default:
		return 0, fmt.Errorf("unknown bvh-type %q (want bvh2, sbvh, qbvh or cwbvh)", name)
	}
}

// gridMesh procedurally generates a subdivided-grid benchmark mesh: an n x
// n grid of unit quads (two triangles apiece) in the z=0 plane. This repo
// never parses an external asset format (spec section 1 Non-goals), so the
// build command always benchmarks against this generated geometry.
func gridMesh(n int) []geometry.Triangle {
	tris := make([]geometry.Triangle, 0, 2*n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			fx, fy := float32(x), float32(y)
			v00 := types.XYZ(fx, fy, 0)
			v10 := types.XYZ(fx+1, fy, 0)
			v01 := types.XYZ(fx, fy+1, 0)
			v11 := types.XYZ(fx+1, fy+1, 0)
			tris = append(tris,
				geometry.Triangle{Positions: [3]types.Vec3{v00, v10, v11}},
				geometry.Triangle{Positions: [3]types.Vec3{v00, v11, v01}},
			)
		}
	}
	return tris
}

// Build constructs a BVH from the procedurally generated benchmark mesh and
// writes it through the cache codec (spec section 6).
func Build(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: gobvh build [flags] <out.bvhcache>")
	}
	outPath := ctx.Args().Get(0)

	bvhType, err := bvhTypeFromFlag(ctx.String("bvh-type"))
	if err != nil {
		logger.Error(err)
		return err
	}

	cfg := bvh.DefaultConfig(bvhType)
	if v := ctx.Int("leaf-size"); v > 0 {
		cfg.MaxPrimitivesInLeaf = v
	}
	if v := ctx.Float64("sah-cost-node"); v > 0 {
		cfg.SAHCostNode = float32(v)
	}
	if v := ctx.Float64("sah-cost-leaf"); v > 0 {
		cfg.SAHCostLeaf = float32(v)
	}
	if v := ctx.Float64("sbvh-alpha"); v >= 0 {
		cfg.SpatialSplitAlpha = float32(v)
	}
	if v := ctx.Int("stack-size"); v > 0 {
		cfg.StackSize = v
	}

	gridSize := ctx.Int("grid-size")
	if gridSize <= 0 {
		gridSize = 32
	}
	tris := gridMesh(gridSize)

	start := time.Now()
	mesh, err := bvh.BuildMesh(tris, cfg)
	if err != nil {
		logger.Error(err)
		return err
	}
	logger.Noticef("built %s mesh: %d triangles, %d leaf primitive refs, in %s", bvhType, len(tris), len(mesh.Primitives), time.Since(start))

	instances := []scene.Instance{scene.NewInstance(0, types.Ident4(), mesh.RootBox())}
	sc, err := scene.Build(bvhType, []*bvh.Mesh{mesh}, instances)
	if err != nil {
		logger.Error(err)
		return err
	}

	if err := bvh.SaveCacheFile(outPath, mesh); err != nil {
		logger.Error(err)
		return err
	}

	fmt.Println(sc.Stats())
	logger.Noticef("wrote cache to %s", outPath)
	return nil
}
