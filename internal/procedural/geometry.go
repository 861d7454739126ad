package procedural

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/infinitelandscape/server/internal/terrain"
)

// GeometryType tags chunk payloads sent to render clients.
const GeometryType = "landscape_chunk"

// ChunkGeometry is a chunk mesh laid out in render space.
// Vertices are [x, travel, height]; the renderer stands the plane up.
type ChunkGeometry struct {
	Type       string      `json:"type"`
	ChunkIndex int64       `json:"chunk_index"`
	Origin     float64     `json:"origin"`
	Columns    int         `json:"columns"`
	Rows       int         `json:"rows"`
	Vertices   [][]float64 `json:"vertices"` // Array of [x, travel, height] vertices
	Faces      [][]int     `json:"faces"`    // Array of [v1, v2, v3] face indices
	Normals    [][]float64 `json:"normals"`  // Array of [nx, ny, nz] normals
	Width      float64     `json:"width"`
	Length     float64     `json:"length"`
}

// BuildGeometry lays mesh out over a terrainWidth x chunkSize plane starting
// at the chunk's origin. The last row of chunk k lands exactly on the first
// row of chunk k+1.
func BuildGeometry(mesh *terrain.ChunkMesh, settings terrain.Settings) *ChunkGeometry {
	topo := mesh.Topology()
	cols, rows := topo.Columns(), topo.Rows()
	cellWidth := settings.TerrainWidth / float64(topo.WidthSegments)
	cellDepth := settings.ChunkSize / float64(topo.DepthSegments)
	left := -settings.TerrainWidth / 2

	geometry := &ChunkGeometry{
		Type:       GeometryType,
		ChunkIndex: mesh.Index(),
		Origin:     mesh.Origin(),
		Columns:    cols,
		Rows:       rows,
		Vertices:   make([][]float64, 0, mesh.VertexCount()),
		Faces:      make([][]int, 0, 2*topo.WidthSegments*topo.DepthSegments),
		Width:      settings.TerrainWidth,
		Length:     settings.ChunkSize,
	}

	for i := 0; i < mesh.VertexCount(); i++ {
		col, row := topo.Cell(i)
		geometry.Vertices = append(geometry.Vertices, []float64{
			left + float64(col)*cellWidth,
			mesh.Origin() + float64(row)*cellDepth,
			mesh.Height(i),
		})
	}

	for row := 0; row < topo.DepthSegments; row++ {
		for col := 0; col < topo.WidthSegments; col++ {
			a := row*cols + col
			b := a + 1
			d := a + cols
			e := d + 1
			geometry.Faces = append(geometry.Faces, []int{a, b, d}, []int{b, e, d})
		}
	}

	geometry.Normals = computeNormals(geometry.Vertices, geometry.Faces, mesh.Origin())
	return geometry
}

// computeNormals averages area-weighted face normals onto each vertex.
// Travel coordinates are taken relative to origin so float32 keeps full
// precision far along the axis.
func computeNormals(vertices [][]float64, faces [][]int, origin float64) [][]float64 {
	accum := make([]mgl32.Vec3, len(vertices))
	for _, face := range faces {
		p0 := toVec3(vertices[face[0]], origin)
		p1 := toVec3(vertices[face[1]], origin)
		p2 := toVec3(vertices[face[2]], origin)
		n := p1.Sub(p0).Cross(p2.Sub(p0))
		for _, idx := range face {
			accum[idx] = accum[idx].Add(n)
		}
	}

	normals := make([][]float64, len(vertices))
	for i, n := range accum {
		if n.Len() == 0 {
			normals[i] = []float64{0, 0, 1}
			continue
		}
		n = n.Normalize()
		normals[i] = []float64{float64(n.X()), float64(n.Y()), float64(n.Z())}
	}
	return normals
}

func toVec3(v []float64, origin float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1] - origin), float32(v[2])}
}
