package config

import (
	"fmt"

	"github.com/infinitelandscape/server/internal/noise"
	"github.com/infinitelandscape/server/internal/streaming"
	"github.com/infinitelandscape/server/internal/terrain"
)

// Settings converts the terrain section into builder settings.
func (t TerrainConfig) Settings() terrain.Settings {
	return terrain.Settings{
		Topology: terrain.Topology{
			WidthSegments: t.WidthSegments,
			DepthSegments: t.DepthSegments,
			Scale:         t.Scale,
		},
		ChunkSize:    t.ChunkSize,
		TerrainWidth: t.Width,
		HeightScale:  t.HeightScale,
		SampleMode:   t.SampleMode,
	}
}

// NewBuilder builds the noise field and a chunk builder over it.
func (t TerrainConfig) NewBuilder() (*terrain.Builder, error) {
	field, err := noise.New(t.Noise, t.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create noise field: %w", err)
	}
	return terrain.NewBuilder(field, t.Settings())
}

// StreamConfig returns the window geometry for a stream.
func (c *Config) StreamConfig() streaming.StreamConfig {
	return streaming.StreamConfig{
		ChunkSize: c.Terrain.ChunkSize,
		NumChunks: c.Terrain.NumChunks,
		Debug:     c.Logging.IsDebug(),
	}
}

// NewStreamFactory returns a factory for fresh streams sharing one builder.
// The builder is stateless, so streams built from it stay independent.
func (c *Config) NewStreamFactory() (streaming.Factory, error) {
	builder, err := c.Terrain.NewBuilder()
	if err != nil {
		return nil, err
	}
	streamConfig := c.StreamConfig()
	if _, err := streaming.New(streamConfig, builder); err != nil {
		return nil, err
	}
	return func() (*streaming.ChunkStream, error) {
		return streaming.New(streamConfig, builder)
	}, nil
}
