package compression

import (
	"math"
	"strings"
	"testing"

	"github.com/infinitelandscape/server/internal/noise"
	"github.com/infinitelandscape/server/internal/procedural"
	"github.com/infinitelandscape/server/internal/terrain"
)

func testGeometry(t *testing.T, index int64) *procedural.ChunkGeometry {
	t.Helper()
	builder, err := terrain.NewBuilder(noise.NewSimplex(5), terrain.Settings{
		Topology:     terrain.Topology{WidthSegments: 16, DepthSegments: 8, Scale: 0.1},
		ChunkSize:    1000,
		TerrainWidth: 2000,
		HeightScale:  10,
	})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	mesh, _ := builder.CreateChunk(index, nil, true)
	return procedural.BuildGeometry(mesh, builder.Settings())
}

func assertGeometryClose(t *testing.T, want, got *procedural.ChunkGeometry) {
	t.Helper()
	if got.ChunkIndex != want.ChunkIndex || got.Origin != want.Origin {
		t.Fatalf("Expected chunk %d at %v, got %d at %v", want.ChunkIndex, want.Origin, got.ChunkIndex, got.Origin)
	}
	if got.Columns != want.Columns || got.Rows != want.Rows {
		t.Fatalf("Expected %dx%d grid, got %dx%d", want.Columns, want.Rows, got.Columns, got.Rows)
	}
	if len(got.Vertices) != len(want.Vertices) || len(got.Faces) != len(want.Faces) {
		t.Fatalf("Expected %d vertices / %d faces, got %d / %d",
			len(want.Vertices), len(want.Faces), len(got.Vertices), len(got.Faces))
	}
	for i := range want.Vertices {
		for k := 0; k < 3; k++ {
			if math.Abs(got.Vertices[i][k]-want.Vertices[i][k]) > 0.01 {
				t.Fatalf("Vertex %d[%d]: expected %v, got %v", i, k, want.Vertices[i][k], got.Vertices[i][k])
			}
		}
	}
	for i := range want.Faces {
		for k := 0; k < 3; k++ {
			if got.Faces[i][k] != want.Faces[i][k] {
				t.Fatalf("Face %d: expected %v, got %v", i, want.Faces[i], got.Faces[i])
			}
		}
	}
	for i := range want.Normals {
		for k := 0; k < 3; k++ {
			if math.Abs(got.Normals[i][k]-want.Normals[i][k]) > 0.01 {
				t.Fatalf("Normal %d: expected %v, got %v", i, want.Normals[i], got.Normals[i])
			}
		}
	}
}

func TestEncodeDecodeChunkGeometry(t *testing.T) {
	geometry := testGeometry(t, 2)

	data, err := EncodeChunkGeometry(geometry)
	if err != nil {
		t.Fatalf("EncodeChunkGeometry failed: %v", err)
	}
	if string(data[:4]) != GeometryMagic {
		t.Errorf("Expected magic %s, got %q", GeometryMagic, data[:4])
	}

	decoded, err := DecodeChunkGeometry(data)
	if err != nil {
		t.Fatalf("DecodeChunkGeometry failed: %v", err)
	}
	assertGeometryClose(t, geometry, decoded)
}

func TestEncodeFarChunk(t *testing.T) {
	// Travel is stored relative to the origin, so chunks far down the axis still fit.
	geometry := testGeometry(t, 5_000_000)

	data, err := EncodeChunkGeometry(geometry)
	if err != nil {
		t.Fatalf("EncodeChunkGeometry failed: %v", err)
	}
	decoded, err := DecodeChunkGeometry(data)
	if err != nil {
		t.Fatalf("DecodeChunkGeometry failed: %v", err)
	}
	assertGeometryClose(t, geometry, decoded)
}

func TestEncodeChunkGeometryErrors(t *testing.T) {
	tests := []struct {
		name     string
		geometry *procedural.ChunkGeometry
	}{
		{"nil geometry", nil},
		{"short vertex", &procedural.ChunkGeometry{Vertices: [][]float64{{1, 2}}}},
		{"bad face", &procedural.ChunkGeometry{
			Vertices: [][]float64{{0, 0, 0}},
			Faces:    [][]int{{0, 1}},
		}},
		{"face out of range", &procedural.ChunkGeometry{
			Vertices: [][]float64{{0, 0, 0}},
			Faces:    [][]int{{0, 0, 4}},
		}},
		{"normal count mismatch", &procedural.ChunkGeometry{
			Vertices: [][]float64{{0, 0, 0}, {1, 0, 0}},
			Normals:  [][]float64{{0, 0, 1}},
		}},
		{"overflow", &procedural.ChunkGeometry{Vertices: [][]float64{{1e12, 0, 0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeChunkGeometry(tt.geometry); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestDecodeChunkGeometryRejectsBadInput(t *testing.T) {
	geometry := testGeometry(t, 0)
	data, err := EncodeChunkGeometry(geometry)
	if err != nil {
		t.Fatalf("EncodeChunkGeometry failed: %v", err)
	}

	badMagic := append([]byte(nil), data...)
	copy(badMagic, "CHNK")

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{"empty", nil, "header"},
		{"bad magic", badMagic, "magic"},
		{"truncated", data[:len(data)/2], "truncated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeChunkGeometry(tt.data)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestQuantizeVertices(t *testing.T) {
	quantized, err := quantizeVertices([][]float64{{-1000, 1500.25, 3.1416}}, 1000)
	if err != nil {
		t.Fatalf("quantizeVertices failed: %v", err)
	}
	got := quantized[0]
	if got.X != -100000 || got.Travel != 50025 || got.Height != 3142 {
		t.Errorf("Expected {-100000 50025 3142}, got %+v", got)
	}
}
