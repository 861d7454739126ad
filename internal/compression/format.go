package compression

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/infinitelandscape/server/internal/procedural"
)

// Geometry payload formats
const (
	FormatBinaryGzip = "binary_gzip"
	FormatBinaryZstd = "binary_zstd"
	// FormatJSON sends ChunkGeometry as plain JSON.
	FormatJSON = "json"
)

const (
	// DefaultLevel balances size and speed for both codecs.
	DefaultLevel = 6
	// maxDecodedSize caps decompression of untrusted payloads.
	maxDecodedSize = 64 << 20
)

// CompressedGeometry represents compressed geometry data ready for transmission
type CompressedGeometry struct {
	Format           string `json:"format"`            // "binary_gzip" or "binary_zstd"
	Data             string `json:"data"`              // Base64-encoded compressed data
	Size             int    `json:"size"`              // Compressed size in bytes
	UncompressedSize int    `json:"uncompressed_size"` // Uncompressed size in bytes (for progress tracking)
}

// Codec compresses chunk geometry in one of the binary formats.
// It is safe for concurrent use.
type Codec struct {
	format string
	level  int
	zstd   *zstd.Encoder
}

// NewCodec builds a codec for format at the given level (1-9).
func NewCodec(format string, level int) (*Codec, error) {
	if level < 1 || level > 9 {
		return nil, fmt.Errorf("compression level must be between 1 and 9, got %d", level)
	}
	codec := &Codec{format: format, level: level}
	switch format {
	case FormatBinaryGzip:
	case FormatBinaryZstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		codec.zstd = encoder
	default:
		return nil, fmt.Errorf("unsupported geometry format %q", format)
	}
	return codec, nil
}

// Format returns the codec's payload format name.
func (c *Codec) Format() string {
	return c.format
}

// CompressChunkGeometry encodes and compresses geometry.
// It returns the compressed bytes and the uncompressed binary size.
func (c *Codec) CompressChunkGeometry(geometry *procedural.ChunkGeometry) ([]byte, int, error) {
	raw, err := EncodeChunkGeometry(geometry)
	if err != nil {
		return nil, 0, err
	}

	var compressed []byte
	switch c.format {
	case FormatBinaryZstd:
		compressed = c.zstd.EncodeAll(raw, make([]byte, 0, len(raw)/4))
	default:
		compressed, err = gzipCompress(raw, c.level)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to compress with gzip: %w", err)
		}
	}
	return compressed, len(raw), nil
}

// CompressAndFormat compresses geometry and wraps it for JSON transmission.
func (c *Codec) CompressAndFormat(geometry *procedural.ChunkGeometry) (*CompressedGeometry, error) {
	compressed, rawSize, err := c.CompressChunkGeometry(geometry)
	if err != nil {
		return nil, err
	}
	return FormatCompressedGeometry(c.format, compressed, rawSize), nil
}

// FormatCompressedGeometry formats compressed geometry data for JSON transmission
func FormatCompressedGeometry(format string, compressedData []byte, uncompressedSize int) *CompressedGeometry {
	return &CompressedGeometry{
		Format:           format,
		Data:             base64.StdEncoding.EncodeToString(compressedData),
		Size:             len(compressedData),
		UncompressedSize: uncompressedSize,
	}
}

// DecompressChunkGeometry decodes a payload produced by CompressAndFormat.
func DecompressChunkGeometry(payload *CompressedGeometry) (*procedural.ChunkGeometry, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	compressed, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var raw []byte
	switch payload.Format {
	case FormatBinaryGzip:
		raw, err = gzipDecompress(compressed)
	case FormatBinaryZstd:
		raw, err = zstdDecompress(compressed)
	default:
		return nil, fmt.Errorf("unsupported geometry format %q", payload.Format)
	}
	if err != nil {
		return nil, err
	}
	return DecodeChunkGeometry(raw)
}

// EstimateUncompressedSize estimates the JSON size of geometry data
func EstimateUncompressedSize(geometry *procedural.ChunkGeometry) int {
	if geometry == nil {
		return 0
	}

	vertexSize := len(geometry.Vertices) * 3 * 8 // 3 floats * 8 bytes per float64
	faceSize := len(geometry.Faces) * 3 * 4      // 3 ints * 4 bytes per int
	normalSize := len(geometry.Normals) * 3 * 8  // 3 floats * 8 bytes per float64

	baseSize := vertexSize + faceSize + normalSize
	overhead := baseSize / 10 // 10% overhead

	return baseSize + overhead
}

func gzipCompress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write to gzip: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, maxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip stream: %w", err)
	}
	if len(raw) > maxDecodedSize {
		return nil, fmt.Errorf("decoded geometry exceeds %d bytes", maxDecodedSize)
	}
	return raw, nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode zstd: %w", err)
	}
	return raw, nil
}
