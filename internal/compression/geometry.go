package compression

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/infinitelandscape/server/internal/procedural"
)

const (
	// Magic number for terrain chunk geometry
	GeometryMagic = "TERR"
	// Current format version
	GeometryVersion = 1
)

// Quantization precision (in world units)
const (
	QuantizationX      = 0.01  // across the strip
	QuantizationTravel = 0.01  // along the travel axis, relative to the chunk origin
	QuantizationHeight = 0.001 // height
	normalScale        = 127.0
)

// Format flags
const (
	FlagNormals uint8 = 1 << 0
)

// GeometryHeader is the fixed-size prefix of an encoded chunk.
type GeometryHeader struct {
	Magic       [4]byte
	Version     uint8
	Flags       uint8
	Reserved    uint16
	VertexCount uint32
	IndexCount  uint32
	Columns     uint32
	Rows        uint32
	ChunkIndex  int64
	Origin      float64
	Width       float32
	Length      float32
}

// QuantizedVertex is a vertex in fixed-point units.
type QuantizedVertex struct {
	X, Travel, Height int32
}

// EncodeChunkGeometry writes geometry in the uncompressed binary layout.
func EncodeChunkGeometry(geometry *procedural.ChunkGeometry) ([]byte, error) {
	if geometry == nil {
		return nil, fmt.Errorf("geometry is nil")
	}

	quantized, err := quantizeVertices(geometry.Vertices, geometry.Origin)
	if err != nil {
		return nil, fmt.Errorf("failed to quantize vertices: %w", err)
	}

	header := GeometryHeader{
		Version:     GeometryVersion,
		VertexCount: uint32(len(quantized)),
		IndexCount:  uint32(len(geometry.Faces) * 3),
		Columns:     uint32(geometry.Columns),
		Rows:        uint32(geometry.Rows),
		ChunkIndex:  geometry.ChunkIndex,
		Origin:      geometry.Origin,
		Width:       float32(geometry.Width),
		Length:      float32(geometry.Length),
	}
	copy(header.Magic[:], GeometryMagic)
	if len(geometry.Normals) > 0 {
		if len(geometry.Normals) != len(geometry.Vertices) {
			return nil, fmt.Errorf("normal count %d does not match vertex count %d", len(geometry.Normals), len(geometry.Vertices))
		}
		header.Flags |= FlagNormals
	}

	var buf bytes.Buffer
	buf.Grow(binary.Size(header) + len(quantized)*12 + len(geometry.Faces)*12 + len(geometry.Normals)*3)

	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, quantized); err != nil {
		return nil, fmt.Errorf("failed to write vertices: %w", err)
	}

	indices := make([]uint32, 0, header.IndexCount)
	for i, face := range geometry.Faces {
		if len(face) != 3 {
			return nil, fmt.Errorf("face %d has %d indices", i, len(face))
		}
		for _, idx := range face {
			if idx < 0 || idx >= len(quantized) {
				return nil, fmt.Errorf("face %d index %d out of range", i, idx)
			}
			indices = append(indices, uint32(idx))
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, indices); err != nil {
		return nil, fmt.Errorf("failed to write indices: %w", err)
	}

	if header.Flags&FlagNormals != 0 {
		packed := make([]int8, 0, len(geometry.Normals)*3)
		for i, n := range geometry.Normals {
			if len(n) < 3 {
				return nil, fmt.Errorf("normal %d has insufficient components", i)
			}
			packed = append(packed, packNormal(n[0]), packNormal(n[1]), packNormal(n[2]))
		}
		if err := binary.Write(&buf, binary.LittleEndian, packed); err != nil {
			return nil, fmt.Errorf("failed to write normals: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeChunkGeometry reverses EncodeChunkGeometry up to quantization error.
func DecodeChunkGeometry(data []byte) (*procedural.ChunkGeometry, error) {
	r := bytes.NewReader(data)

	var header GeometryHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if string(header.Magic[:]) != GeometryMagic {
		return nil, fmt.Errorf("invalid magic %q", string(header.Magic[:]))
	}
	if header.Version != GeometryVersion {
		return nil, fmt.Errorf("unsupported geometry version %d", header.Version)
	}
	if header.IndexCount%3 != 0 {
		return nil, fmt.Errorf("index count %d is not a multiple of 3", header.IndexCount)
	}

	need := int64(header.VertexCount)*12 + int64(header.IndexCount)*4
	if header.Flags&FlagNormals != 0 {
		need += int64(header.VertexCount) * 3
	}
	if need > int64(r.Len()) {
		return nil, fmt.Errorf("payload truncated: need %d bytes, have %d", need, r.Len())
	}

	quantized := make([]QuantizedVertex, header.VertexCount)
	if err := binary.Read(r, binary.LittleEndian, quantized); err != nil {
		return nil, fmt.Errorf("failed to read vertices: %w", err)
	}
	indices := make([]uint32, header.IndexCount)
	if err := binary.Read(r, binary.LittleEndian, indices); err != nil {
		return nil, fmt.Errorf("failed to read indices: %w", err)
	}

	geometry := &procedural.ChunkGeometry{
		Type:       procedural.GeometryType,
		ChunkIndex: header.ChunkIndex,
		Origin:     header.Origin,
		Columns:    int(header.Columns),
		Rows:       int(header.Rows),
		Vertices:   make([][]float64, len(quantized)),
		Faces:      make([][]int, 0, len(indices)/3),
		Width:      float64(header.Width),
		Length:     float64(header.Length),
	}
	for i, v := range quantized {
		geometry.Vertices[i] = []float64{
			float64(v.X) * QuantizationX,
			header.Origin + float64(v.Travel)*QuantizationTravel,
			float64(v.Height) * QuantizationHeight,
		}
	}
	for i := 0; i < len(indices); i += 3 {
		face := []int{int(indices[i]), int(indices[i+1]), int(indices[i+2])}
		for _, idx := range face {
			if idx >= len(quantized) {
				return nil, fmt.Errorf("index %d out of range", idx)
			}
		}
		geometry.Faces = append(geometry.Faces, face)
	}

	if header.Flags&FlagNormals != 0 {
		packed := make([]int8, int(header.VertexCount)*3)
		if err := binary.Read(r, binary.LittleEndian, packed); err != nil {
			return nil, fmt.Errorf("failed to read normals: %w", err)
		}
		geometry.Normals = make([][]float64, header.VertexCount)
		for i := range geometry.Normals {
			geometry.Normals[i] = []float64{
				float64(packed[i*3]) / normalScale,
				float64(packed[i*3+1]) / normalScale,
				float64(packed[i*3+2]) / normalScale,
			}
		}
	}

	return geometry, nil
}

// quantizeVertices stores travel positions relative to origin so chunks far
// along the axis do not overflow int32.
func quantizeVertices(vertices [][]float64, origin float64) ([]QuantizedVertex, error) {
	quantized := make([]QuantizedVertex, len(vertices))

	for i, vertex := range vertices {
		if len(vertex) < 3 {
			return nil, fmt.Errorf("vertex %d has insufficient coordinates", i)
		}
		x, err := quantize(vertex[0], QuantizationX)
		if err != nil {
			return nil, fmt.Errorf("vertex %d x: %w", i, err)
		}
		travel, err := quantize(vertex[1]-origin, QuantizationTravel)
		if err != nil {
			return nil, fmt.Errorf("vertex %d travel: %w", i, err)
		}
		height, err := quantize(vertex[2], QuantizationHeight)
		if err != nil {
			return nil, fmt.Errorf("vertex %d height: %w", i, err)
		}
		quantized[i] = QuantizedVertex{X: x, Travel: travel, Height: height}
	}

	return quantized, nil
}

func quantize(value, step float64) (int32, error) {
	q := math.Round(value / step)
	if math.IsNaN(q) || q > math.MaxInt32 || q < math.MinInt32 {
		return 0, fmt.Errorf("value %v does not fit the quantized range", value)
	}
	return int32(q), nil
}

func packNormal(v float64) int8 {
	return int8(math.Round(math.Max(-1, math.Min(1, v)) * normalScale))
}
