package noise

import (
	"fmt"
	"strings"

	"github.com/aquilax/go-perlin"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Supported noise backends.
const (
	AlgorithmSimplex = "simplex"
	AlgorithmPerlin  = "perlin"
)

// Perlin tuning, same shape as the heightmap generators that use go-perlin.
const (
	perlinAlpha   = 2.0
	perlinBeta    = 2.0
	perlinOctaves = 3
)

// Field is a deterministic 2D scalar noise function.
// Sample must return values in [-1, 1] and be a pure function of (x, y).
type Field interface {
	Sample(x, y float64) float64
}

// New builds the field for the named algorithm.
func New(algorithm string, seed int64) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", AlgorithmSimplex:
		return NewSimplex(seed), nil
	case AlgorithmPerlin:
		return NewPerlin(seed), nil
	default:
		return nil, fmt.Errorf("unknown noise algorithm %q", algorithm)
	}
}

// Simplex samples OpenSimplex gradient noise.
type Simplex struct {
	seed  int64
	noise opensimplex.Noise
}

// NewSimplex creates a simplex field for the given seed.
func NewSimplex(seed int64) *Simplex {
	return &Simplex{seed: seed, noise: opensimplex.New(seed)}
}

// Sample implements Field.
func (s *Simplex) Sample(x, y float64) float64 {
	return clamp(s.noise.Eval2(x, y))
}

// Seed returns the seed the field was built with.
func (s *Simplex) Seed() int64 {
	return s.seed
}

// Perlin samples multi-octave Perlin noise.
type Perlin struct {
	seed  int64
	noise *perlin.Perlin
}

// NewPerlin creates a Perlin field for the given seed.
func NewPerlin(seed int64) *Perlin {
	return &Perlin{
		seed:  seed,
		noise: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed),
	}
}

// Sample implements Field. go-perlin can slightly overshoot the unit range
// when octaves stack, so results are clamped.
func (p *Perlin) Sample(x, y float64) float64 {
	return clamp(p.noise.Noise2D(x, y))
}

// Seed returns the seed the field was built with.
func (p *Perlin) Seed() int64 {
	return p.seed
}

func clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
