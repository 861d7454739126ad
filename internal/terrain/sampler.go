package terrain

import (
	"fmt"

	"github.com/infinitelandscape/server/internal/noise"
)

// DefaultHeightScale is the vertical amplitude applied to raw noise.
const DefaultHeightScale = 10.0

// SeamRow holds the trailing-edge heights of the most recently created chunk.
type SeamRow []float64

// Clone returns an independent copy.
func (s SeamRow) Clone() SeamRow {
	if s == nil {
		return nil
	}
	out := make(SeamRow, len(s))
	copy(out, s)
	return out
}

// HeightSampler turns grid indices into heights.
// It has no mutable state and can be shared freely.
type HeightSampler struct {
	field       noise.Field
	topology    Topology
	heightScale float64
}

// NewHeightSampler builds a sampler over field.
func NewHeightSampler(field noise.Field, topology Topology, heightScale float64) (*HeightSampler, error) {
	if field == nil {
		return nil, fmt.Errorf("noise field is required")
	}
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	return &HeightSampler{
		field:       field,
		topology:    topology,
		heightScale: heightScale,
	}, nil
}

// Topology returns the grid the sampler addresses.
func (s *HeightSampler) Topology() Topology {
	return s.topology
}

// HeightScale returns the amplitude multiplier.
func (s *HeightSampler) HeightScale() float64 {
	return s.heightScale
}

// HeightAt returns the height for a vertex of a chunk.
// First-row vertices of any chunk after the first copy seam verbatim.
func (s *HeightSampler) HeightAt(index int, isFirst bool, seam SeamRow) float64 {
	return s.heightAt(index, isFirst, seam, 0)
}

func (s *HeightSampler) heightAt(index int, isFirst bool, seam SeamRow, yOffset float64) float64 {
	if index < 0 || index >= s.topology.VertexCount() {
		panic(fmt.Sprintf("terrain: vertex index %d outside grid of %d", index, s.topology.VertexCount()))
	}
	if !isFirst && index < s.topology.Columns() {
		if len(seam) != s.topology.Columns() {
			panic(fmt.Sprintf("terrain: seam row has %d heights, want %d", len(seam), s.topology.Columns()))
		}
		return seam[index]
	}
	x, y := s.topology.LocalXY(index)
	return s.field.Sample(x, y+yOffset) * s.heightScale
}
