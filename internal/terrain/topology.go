package terrain

import (
	"fmt"
	"math"
)

// Topology is the grid layout shared by every chunk in a stream.
// Only heights and origin differ between chunks.
type Topology struct {
	WidthSegments int     // cells across the travel axis
	DepthSegments int     // cells along the travel axis
	Scale         float64 // noise-space distance between neighbouring vertices
}

// Validate reports a configuration error for a malformed topology.
func (t Topology) Validate() error {
	if t.WidthSegments <= 0 || t.DepthSegments <= 0 {
		return fmt.Errorf("segment counts must be positive, got width=%d depth=%d", t.WidthSegments, t.DepthSegments)
	}
	if t.Scale <= 0 || math.IsNaN(t.Scale) || math.IsInf(t.Scale, 0) {
		return fmt.Errorf("scale must be a positive finite number, got %v", t.Scale)
	}
	return nil
}

// Columns is the row stride: WidthSegments+1.
func (t Topology) Columns() int {
	return t.WidthSegments + 1
}

// Rows is DepthSegments+1.
func (t Topology) Rows() int {
	return t.DepthSegments + 1
}

// VertexCount is (WidthSegments+1)*(DepthSegments+1).
func (t Topology) VertexCount() int {
	return t.Columns() * t.Rows()
}

// Cell splits a row-major vertex index into column and row.
func (t Topology) Cell(index int) (col, row int) {
	return index % t.Columns(), index / t.Columns()
}

// LocalXY returns the noise-space position of a vertex.
func (t Topology) LocalXY(index int) (x, y float64) {
	col, row := t.Cell(index)
	return float64(col) * t.Scale, float64(row) * t.Scale
}

// LastRowStart is the index of the first vertex of the final row.
func (t Topology) LastRowStart() int {
	return t.DepthSegments * t.Columns()
}
