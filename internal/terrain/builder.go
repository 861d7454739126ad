package terrain

import (
	"fmt"
	"math"
	"strings"

	"github.com/infinitelandscape/server/internal/noise"
)

// Sample modes.
const (
	// SampleLocal samples every chunk from the same noise patch.
	SampleLocal = "local"
	// SampleWorld offsets each chunk's noise patch by its ordinal.
	SampleWorld = "world"
)

// Settings gathers everything needed to build chunks.
type Settings struct {
	Topology     Topology
	ChunkSize    float64
	TerrainWidth float64
	HeightScale  float64
	SampleMode   string
}

// Validate rejects settings that cannot produce a valid grid.
func (s Settings) Validate() error {
	if err := s.Topology.Validate(); err != nil {
		return err
	}
	if s.ChunkSize <= 0 || math.IsNaN(s.ChunkSize) || math.IsInf(s.ChunkSize, 0) {
		return fmt.Errorf("chunk size must be a positive finite number, got %v", s.ChunkSize)
	}
	if s.TerrainWidth <= 0 || math.IsNaN(s.TerrainWidth) || math.IsInf(s.TerrainWidth, 0) {
		return fmt.Errorf("terrain width must be a positive finite number, got %v", s.TerrainWidth)
	}
	switch s.SampleMode {
	case "", SampleLocal, SampleWorld:
	default:
		return fmt.Errorf("unknown sample mode %q", s.SampleMode)
	}
	return nil
}

// Builder creates chunk meshes. It is stateless; the caller carries the seam.
type Builder struct {
	settings Settings
	sampler  *HeightSampler
}

// NewBuilder validates settings and wires a sampler over field.
func NewBuilder(field noise.Field, settings Settings) (*Builder, error) {
	settings.SampleMode = strings.ToLower(strings.TrimSpace(settings.SampleMode))
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid terrain settings: %w", err)
	}
	if settings.SampleMode == "" {
		settings.SampleMode = SampleLocal
	}
	sampler, err := NewHeightSampler(field, settings.Topology, settings.HeightScale)
	if err != nil {
		return nil, err
	}
	return &Builder{settings: settings, sampler: sampler}, nil
}

// Settings returns the builder's normalized settings.
func (b *Builder) Settings() Settings {
	return b.settings
}

// Sampler exposes the height sampler.
func (b *Builder) Sampler() *HeightSampler {
	return b.sampler
}

// CreateChunk builds chunk number index at index*ChunkSize and returns it
// with its last row as the seam for the next creation.
func (b *Builder) CreateChunk(index int64, seam SeamRow, isFirst bool) (*ChunkMesh, SeamRow) {
	topo := b.settings.Topology
	yOffset := 0.0
	if b.settings.SampleMode == SampleWorld {
		yOffset = float64(index) * float64(topo.DepthSegments) * topo.Scale
	}

	heights := make([]float64, topo.VertexCount())
	for i := range heights {
		heights[i] = b.sampler.heightAt(i, isFirst, seam, yOffset)
	}

	mesh := &ChunkMesh{
		index:    index,
		origin:   float64(index) * b.settings.ChunkSize,
		topology: topo,
		heights:  heights,
		isFirst:  isFirst,
	}

	next := make(SeamRow, topo.Columns())
	copy(next, heights[topo.LastRowStart():])
	return mesh, next
}
