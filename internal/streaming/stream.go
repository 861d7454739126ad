package streaming

import (
	"fmt"
	"log"
	"math"

	"github.com/infinitelandscape/server/internal/terrain"
)

// State is the lifecycle phase of a ChunkStream.
type State int

const (
	StateUninitialized State = iota
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StreamConfig fixes the window geometry.
type StreamConfig struct {
	ChunkSize float64
	NumChunks int
	// Debug logs every eviction and creation.
	Debug bool
}

// ChunkRef identifies a chunk that has left the window.
type ChunkRef struct {
	Index  int64   `json:"index"`
	Origin float64 `json:"origin"`
}

// AdvanceResult describes what one Advance call changed.
// Created only holds chunks still in the window when Advance returns, so it
// never exceeds the window size. Chunks built and evicted again within one
// call appear in Evicted only; Generated counts every chunk built.
type AdvanceResult struct {
	Evicted   []ChunkRef
	Created   []*terrain.ChunkMesh
	Generated int
}

// Changed reports whether the window moved.
func (r AdvanceResult) Changed() bool {
	return len(r.Evicted) > 0
}

// ChunkStream keeps a fixed window of chunks ahead of a forward-moving viewer.
// It is not safe for concurrent use.
type ChunkStream struct {
	chunkSize float64
	numChunks int
	debug     bool
	builder   *terrain.Builder

	state  State
	window []*terrain.ChunkMesh
	seam   terrain.SeamRow
}

// New validates cfg. The builder's chunk size must agree with cfg.ChunkSize.
func New(cfg StreamConfig, builder *terrain.Builder) (*ChunkStream, error) {
	if builder == nil {
		return nil, fmt.Errorf("terrain builder is required")
	}
	if cfg.ChunkSize <= 0 || math.IsNaN(cfg.ChunkSize) || math.IsInf(cfg.ChunkSize, 0) {
		return nil, fmt.Errorf("chunk size must be a positive finite number, got %v", cfg.ChunkSize)
	}
	if cfg.NumChunks <= 0 {
		return nil, fmt.Errorf("num chunks must be positive, got %d", cfg.NumChunks)
	}
	if builderSize := builder.Settings().ChunkSize; builderSize != cfg.ChunkSize {
		return nil, fmt.Errorf("chunk size %v does not match builder chunk size %v", cfg.ChunkSize, builderSize)
	}
	return &ChunkStream{
		chunkSize: cfg.ChunkSize,
		numChunks: cfg.NumChunks,
		debug:     cfg.Debug,
		builder:   builder,
		window:    make([]*terrain.ChunkMesh, 0, cfg.NumChunks),
	}, nil
}

// Initialize fills the window with chunks 0..numChunks-1.
func (s *ChunkStream) Initialize() {
	if s.state != StateUninitialized {
		panic("streaming: Initialize called twice")
	}
	for i := 0; i < s.numChunks; i++ {
		s.appendChunk(int64(i), i == 0)
	}
	s.state = StateStreaming
	s.checkInvariants()
}

// Advance recycles chunks for the viewer's new position. While the leading
// chunk starts less than one chunk ahead of the viewer, the trailing chunk is
// dropped and a new one is appended past the leading edge.
func (s *ChunkStream) Advance(viewerPosition float64) AdvanceResult {
	if s.state != StateStreaming {
		panic("streaming: Advance called before Initialize")
	}
	if math.IsNaN(viewerPosition) || math.IsInf(viewerPosition, 0) {
		panic(fmt.Sprintf("streaming: non-finite viewer position %v", viewerPosition))
	}

	var result AdvanceResult
	for s.leading().Origin()-viewerPosition < s.chunkSize {
		evicted := s.evictTrailing()
		result.Evicted = append(result.Evicted, evicted)

		created := s.appendChunk(s.leading().Index()+1, false)
		result.Generated++
		if len(result.Created) == s.numChunks {
			// The oldest chunk created by this call was just evicted.
			copy(result.Created, result.Created[1:])
			result.Created[len(result.Created)-1] = nil
			result.Created = result.Created[:len(result.Created)-1]
		}
		result.Created = append(result.Created, created)

		if s.debug {
			log.Printf("[Stream] recycled chunk %d (origin %.0f) -> chunk %d (origin %.0f), viewer=%.2f",
				evicted.Index, evicted.Origin, created.Index(), created.Origin(), viewerPosition)
		}
	}
	if result.Changed() {
		s.checkInvariants()
	}
	return result
}

// evictTrailing drops window[0] and clears its slot. The window is briefly
// one short; appendChunk restores it before Advance returns.
func (s *ChunkStream) evictTrailing() ChunkRef {
	trailing := s.window[0]
	ref := ChunkRef{Index: trailing.Index(), Origin: trailing.Origin()}
	copy(s.window, s.window[1:])
	s.window[len(s.window)-1] = nil
	s.window = s.window[:len(s.window)-1]
	return ref
}

// appendChunk is the only place chunks are created; it keeps the seam chain.
func (s *ChunkStream) appendChunk(index int64, isFirst bool) *terrain.ChunkMesh {
	mesh, seam := s.builder.CreateChunk(index, s.seam, isFirst)
	s.seam = seam
	s.window = append(s.window, mesh)
	return mesh
}

func (s *ChunkStream) leading() *terrain.ChunkMesh {
	return s.window[len(s.window)-1]
}

func (s *ChunkStream) checkInvariants() {
	if len(s.window) != s.numChunks {
		panic(fmt.Sprintf("streaming: window holds %d chunks, want %d", len(s.window), s.numChunks))
	}
	for i := 1; i < len(s.window); i++ {
		if s.window[i].Index() != s.window[i-1].Index()+1 {
			panic(fmt.Sprintf("streaming: window gap between chunk %d and %d",
				s.window[i-1].Index(), s.window[i].Index()))
		}
	}
}

// State returns the lifecycle phase.
func (s *ChunkStream) State() State {
	return s.state
}

// ChunkSize returns the travel-axis length of one chunk.
func (s *ChunkStream) ChunkSize() float64 {
	return s.chunkSize
}

// NumChunks returns the window capacity.
func (s *ChunkStream) NumChunks() int {
	return s.numChunks
}

// Builder returns the chunk builder.
func (s *ChunkStream) Builder() *terrain.Builder {
	return s.builder
}

// Window returns the live chunks, trailing first.
func (s *ChunkStream) Window() []*terrain.ChunkMesh {
	out := make([]*terrain.ChunkMesh, len(s.window))
	copy(out, s.window)
	return out
}

// Origins returns the window's travel-axis positions, trailing first.
func (s *ChunkStream) Origins() []float64 {
	out := make([]float64, len(s.window))
	for i, mesh := range s.window {
		out[i] = mesh.Origin()
	}
	return out
}

// Indices returns the window's chunk ordinals, trailing first.
func (s *ChunkStream) Indices() []int64 {
	out := make([]int64, len(s.window))
	for i, mesh := range s.window {
		out[i] = mesh.Index()
	}
	return out
}

// Trailing returns the oldest chunk, or nil before Initialize.
func (s *ChunkStream) Trailing() *terrain.ChunkMesh {
	if len(s.window) == 0 {
		return nil
	}
	return s.window[0]
}

// Leading returns the newest chunk, or nil before Initialize.
func (s *ChunkStream) Leading() *terrain.ChunkMesh {
	if len(s.window) == 0 {
		return nil
	}
	return s.leading()
}

// SeamRow returns a copy of the seam the next chunk will inherit.
func (s *ChunkStream) SeamRow() terrain.SeamRow {
	return s.seam.Clone()
}
