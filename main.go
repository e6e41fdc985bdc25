package main

import (
	"os"

	"github.com/mravery/gobvh/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "gobvh"
	app.Usage = "construct, cache and trace BVH acceleration structures"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "build",
			Usage:     "build and cache a BVH from a generated benchmark mesh",
			ArgsUsage: "<out.bvhcache>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "bvh-type",
					Value: "cwbvh",
					Usage: "bvh2, sbvh, qbvh or cwbvh",
				},
				cli.IntFlag{
					Name:  "grid-size",
					Value: 32,
					Usage: "side length of the generated n x n triangle grid",
				},
				cli.IntFlag{
					Name:  "leaf-size",
					Usage: "max primitives per leaf (0 = bvh-type default; cwbvh always uses 1)",
				},
				cli.Float64Flag{
					Name:  "sah-cost-node",
					Usage: "SAH internal-node traversal cost (0 = default)",
				},
				cli.Float64Flag{
					Name:  "sah-cost-leaf",
					Usage: "SAH leaf intersection cost (0 = default)",
				},
				cli.Float64Flag{
					Name:  "sbvh-alpha",
					Value: -1,
					Usage: "spatial-split overlap gate (sbvh only, negative = default)",
				},
				cli.IntFlag{
					Name:  "stack-size",
					Usage: "traversal stack depth (0 = bvh-type default)",
				},
			},
			Action: cmd.Build,
		},
		{
			Name:      "trace",
			Usage:     "load a cached BVH and trace a deterministic ray batch against it",
			ArgsUsage: "<in.bvhcache>",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "grid-size",
					Value: 32,
					Usage: "side length of the generated n x n triangle grid (must match build)",
				},
				cli.IntFlag{
					Name:  "rays",
					Value: 10000,
					Usage: "number of rays to trace",
				},
				cli.IntFlag{
					Name:  "workers",
					Value: 1,
					Usage: "worker goroutines (1 = single-threaded cooperative mode)",
				},
				cli.IntFlag{
					Name:  "stack-size",
					Usage: "traversal stack depth (0 = bvh-type default)",
				},
			},
			Action: cmd.Trace,
		},
	}

	app.Run(os.Args)
}
