package scene

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/mravery/gobvh/bvh"
	"github.com/olekukonko/tablewriter"
)

// Scene is a compiled two-level acceleration structure: a list of unique
// meshes, a list of instances placing them in world space, and a TLAS
// (always a binary BVH, per spec section 4.6 -- instance counts are small
// enough that a wide TLAS buys nothing) built over the instances'
// world-space bounding boxes.
type Scene struct {
	Type bvh.Type

	Meshes    []*bvh.Mesh
	Instances []Instance

	TLASNodes []bvh.Node2
}

// Build assembles meshes and instances into a Scene by constructing the
// TLAS over the instances' cached world-space boxes. instances is stored on
// the Scene as given, so each Instance's PrevWorldFromObject travels with
// it for a later reprojection pass to read.
func Build(meshType bvh.Type, meshes []*bvh.Mesh, instances []Instance) (*Scene, error) {
	if len(instances) == 0 {
		return nil, bvh.ErrEmptyInput
	}

	vols := make([]bvh.BoundedVolume, len(instances))
	for i := range instances {
		vols[i] = &instances[i]
	}

	tlas, err := bvh.BuildTLAS(vols)
	if err != nil {
		return nil, err
	}

	return &Scene{
		Type:      meshType,
		Meshes:    meshes,
		Instances: instances,
		TLASNodes: tlas,
	}, nil
}

// Stats renders a tabular breakdown of the scene's memory footprint,
// grounded on Scene.Stats in the mesh/scene compiler this repo is derived
// from.
func (s *Scene) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Size"})

	var totalTris, totalNodes2, totalNodes4, totalNodes8, totalPrims int
	for _, m := range s.Meshes {
		totalTris += len(m.Triangles)
		totalNodes2 += len(m.Nodes2)
		totalNodes4 += len(m.Nodes4)
		totalNodes8 += len(m.Nodes8)
		totalPrims += len(m.Primitives)
	}

	table.Append([]string{"Geometry", "---", fmtSize(s.Meshes)})
	table.Append([]string{"", "Meshes", fmt.Sprintf("%d", len(s.Meshes))})
	table.Append([]string{"", "Triangles", fmt.Sprintf("%d", totalTris)})
	table.Append([]string{"", "Leaf primitive refs", fmt.Sprintf("%d", totalPrims)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"BVH", "---", ""})
	table.Append([]string{"", "BLAS bvh2 nodes", fmt.Sprintf("%d", totalNodes2)})
	table.Append([]string{"", "BLAS qbvh4 nodes", fmt.Sprintf("%d", totalNodes4)})
	table.Append([]string{"", "BLAS cwbvh8 nodes", fmt.Sprintf("%d", totalNodes8)})
	table.Append([]string{"", "TLAS nodes", fmt.Sprintf("%d", len(s.TLASNodes))})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Instances", "---", fmtSize(s.Instances)})
	table.SetFooter([]string{"Total instances", " ", fmt.Sprintf("%d", len(s.Instances))})

	table.Render()
	return buf.String()
}

func fmtSize(items interface{}) string {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice || v.Len() == 0 {
		return "0 bytes"
	}
	totalBytes := float32(int(v.Type().Elem().Size()) * v.Len())
	switch {
	case totalBytes < 1e3:
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	case totalBytes < 1e6:
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	default:
		return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
	}
}
