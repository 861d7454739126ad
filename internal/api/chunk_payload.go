package api

import (
	"fmt"

	"github.com/infinitelandscape/server/internal/compression"
	"github.com/infinitelandscape/server/internal/performance"
	"github.com/infinitelandscape/server/internal/procedural"
	"github.com/infinitelandscape/server/internal/streaming"
	"github.com/infinitelandscape/server/internal/terrain"
)

// ChunkData is one chunk as delivered to a render client.
// Geometry is a *compression.CompressedGeometry for binary formats and a
// *procedural.ChunkGeometry for the json format.
type ChunkData struct {
	ChunkIndex int64       `json:"chunk_index"`
	Origin     float64     `json:"origin"`
	IsFirst    bool        `json:"is_first"`
	Geometry   interface{} `json:"geometry,omitempty"`
}

// StreamAckData is the payload of stream_ack messages.
type StreamAckData struct {
	SubscriptionID string  `json:"subscription_id"`
	Status         string  `json:"status"`
	ChunkIDs       []int64 `json:"chunk_ids,omitempty"`
	Position       float64 `json:"position"`
	ChunkSize      float64 `json:"chunk_size,omitempty"`
	GeometryFormat string  `json:"geometry_format,omitempty"`
}

// StreamDeltaData is the payload of stream_delta messages.
type StreamDeltaData struct {
	SubscriptionID string      `json:"subscription_id"`
	Position       float64     `json:"position"`
	AddedChunks    []ChunkData `json:"added_chunks"`
	RemovedChunks  []int64     `json:"removed_chunks"`
	CurrentChunks  []int64     `json:"current_chunks"`
}

// CameraStateData is the payload of camera_state messages.
type CameraStateData struct {
	SubscriptionID string           `json:"subscription_id"`
	Camera         streaming.Camera `json:"camera"`
}

// chunkEncoder turns chunk meshes into wire payloads.
type chunkEncoder struct {
	format   string
	codec    *compression.Codec
	profiler *performance.Profiler
}

func newChunkEncoder(format string, level int, profiler *performance.Profiler) (*chunkEncoder, error) {
	encoder := &chunkEncoder{format: format, profiler: profiler}
	if format == compression.FormatJSON {
		return encoder, nil
	}
	codec, err := compression.NewCodec(format, level)
	if err != nil {
		return nil, err
	}
	encoder.codec = codec
	return encoder, nil
}

// encode builds ChunkData for meshes. Geometry is omitted unless withGeometry.
func (e *chunkEncoder) encode(meshes []*terrain.ChunkMesh, settings terrain.Settings, withGeometry bool) ([]ChunkData, error) {
	chunks := make([]ChunkData, 0, len(meshes))
	for _, mesh := range meshes {
		chunk := ChunkData{
			ChunkIndex: mesh.Index(),
			Origin:     mesh.Origin(),
			IsFirst:    mesh.IsFirst(),
		}
		if withGeometry {
			op := e.profiler.Start(performance.OpGeometryEncode)
			geometry := procedural.BuildGeometry(mesh, settings)
			if e.codec == nil {
				chunk.Geometry = geometry
			} else {
				compressed, err := e.codec.CompressAndFormat(geometry)
				if err != nil {
					op.End()
					return nil, fmt.Errorf("failed to compress chunk %d: %w", mesh.Index(), err)
				}
				chunk.Geometry = compressed
			}
			op.End()
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
