package procedural

import (
	"math"
	"testing"

	"github.com/infinitelandscape/server/internal/noise"
	"github.com/infinitelandscape/server/internal/terrain"
)

type constantField float64

func (f constantField) Sample(x, y float64) float64 { return float64(f) }

func testBuilder(t *testing.T, field noise.Field) *terrain.Builder {
	t.Helper()
	builder, err := terrain.NewBuilder(field, terrain.Settings{
		Topology:     terrain.Topology{WidthSegments: 4, DepthSegments: 2, Scale: 0.1},
		ChunkSize:    100,
		TerrainWidth: 200,
		HeightScale:  10,
	})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	return builder
}

func TestBuildGeometryLayout(t *testing.T) {
	builder := testBuilder(t, constantField(0.5))
	mesh, _ := builder.CreateChunk(3, nil, true)

	geometry := BuildGeometry(mesh, builder.Settings())

	if geometry.Type != GeometryType {
		t.Errorf("Expected type %s, got %s", GeometryType, geometry.Type)
	}
	if geometry.ChunkIndex != 3 || geometry.Origin != 300 {
		t.Errorf("Expected chunk 3 at 300, got %d at %v", geometry.ChunkIndex, geometry.Origin)
	}
	if len(geometry.Vertices) != 15 {
		t.Fatalf("Expected 15 vertices, got %d", len(geometry.Vertices))
	}
	if len(geometry.Faces) != 16 {
		t.Fatalf("Expected 16 faces, got %d", len(geometry.Faces))
	}
	if len(geometry.Normals) != len(geometry.Vertices) {
		t.Fatalf("Expected one normal per vertex, got %d", len(geometry.Normals))
	}

	first := geometry.Vertices[0]
	if first[0] != -100 || first[1] != 300 || first[2] != 5 {
		t.Errorf("Expected first vertex [-100 300 5], got %v", first)
	}
	last := geometry.Vertices[14]
	if last[0] != 100 || last[1] != 400 {
		t.Errorf("Expected last vertex at [100 400], got %v", last)
	}
}

func TestBuildGeometryFlatNormalsPointUp(t *testing.T) {
	builder := testBuilder(t, constantField(0))
	mesh, _ := builder.CreateChunk(0, nil, true)

	geometry := BuildGeometry(mesh, builder.Settings())

	for i, n := range geometry.Normals {
		if math.Abs(n[0]) > 1e-6 || math.Abs(n[1]) > 1e-6 || math.Abs(n[2]-1) > 1e-6 {
			t.Fatalf("Normal %d = %v, want [0 0 1]", i, n)
		}
	}
}

func TestBuildGeometryFacesInRange(t *testing.T) {
	builder := testBuilder(t, noise.NewSimplex(7))
	mesh, _ := builder.CreateChunk(0, nil, true)

	geometry := BuildGeometry(mesh, builder.Settings())

	for i, face := range geometry.Faces {
		if len(face) != 3 {
			t.Fatalf("Face %d has %d indices", i, len(face))
		}
		for _, idx := range face {
			if idx < 0 || idx >= len(geometry.Vertices) {
				t.Fatalf("Face %d index %d out of range", i, idx)
			}
		}
	}
	for i, n := range geometry.Normals {
		length := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
		if math.Abs(length-1) > 1e-4 {
			t.Fatalf("Normal %d has length %v", i, length)
		}
		if n[2] <= 0 {
			t.Fatalf("Normal %d points down: %v", i, n)
		}
	}
}

func TestBuildGeometrySeamsMeet(t *testing.T) {
	builder := testBuilder(t, noise.NewSimplex(11))
	first, seam := builder.CreateChunk(0, nil, true)
	second, _ := builder.CreateChunk(1, seam, false)

	a := BuildGeometry(first, builder.Settings())
	b := BuildGeometry(second, builder.Settings())

	lastRow := first.Topology().LastRowStart()
	for col := 0; col < a.Columns; col++ {
		va := a.Vertices[lastRow+col]
		vb := b.Vertices[col]
		for k := range va {
			if va[k] != vb[k] {
				t.Fatalf("Column %d: %v != %v", col, va, vb)
			}
		}
	}
}

func TestBuildGeometryNormalsStableFarAlongAxis(t *testing.T) {
	builder := testBuilder(t, noise.NewSimplex(5))
	near, _ := builder.CreateChunk(0, nil, true)
	far, _ := builder.CreateChunk(10_000_000, nil, true)

	a := BuildGeometry(near, builder.Settings())
	b := BuildGeometry(far, builder.Settings())

	if b.Origin != 1e9 {
		t.Fatalf("Expected far origin 1e9, got %v", b.Origin)
	}
	for i := range a.Normals {
		for k := range a.Normals[i] {
			if math.Abs(a.Normals[i][k]-b.Normals[i][k]) > 1e-5 {
				t.Fatalf("Normal %d differs far along the axis: %v vs %v", i, a.Normals[i], b.Normals[i])
			}
		}
	}
}
