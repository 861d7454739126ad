package terrain

// Vertex is one grid point of a chunk in noise space.
type Vertex struct {
	X      float64
	Y      float64
	Height float64
}

// ChunkMesh is a single terrain tile. Heights are fixed at construction;
// accessors hand out copies.
type ChunkMesh struct {
	index    int64
	origin   float64
	topology Topology
	heights  []float64
	isFirst  bool
}

// Index is the chunk's ordinal in its stream. The first chunk is 0.
func (m *ChunkMesh) Index() int64 {
	return m.index
}

// Origin is the chunk's position on the travel axis.
func (m *ChunkMesh) Origin() float64 {
	return m.origin
}

// IsFirst reports whether the chunk was generated without a seam constraint.
func (m *ChunkMesh) IsFirst() bool {
	return m.isFirst
}

// Topology returns the grid layout.
func (m *ChunkMesh) Topology() Topology {
	return m.topology
}

// VertexCount returns the number of grid vertices.
func (m *ChunkMesh) VertexCount() int {
	return len(m.heights)
}

// Height returns the height of vertex i.
func (m *ChunkMesh) Height(i int) float64 {
	return m.heights[i]
}

// Vertex returns vertex i with its local position.
func (m *ChunkMesh) Vertex(i int) Vertex {
	x, y := m.topology.LocalXY(i)
	return Vertex{X: x, Y: y, Height: m.heights[i]}
}

// Heights returns a copy of all heights in row-major order.
func (m *ChunkMesh) Heights() []float64 {
	out := make([]float64, len(m.heights))
	copy(out, m.heights)
	return out
}

// Row returns a copy of row r.
func (m *ChunkMesh) Row(r int) []float64 {
	cols := m.topology.Columns()
	out := make([]float64, cols)
	copy(out, m.heights[r*cols:(r+1)*cols])
	return out
}

// FirstRow returns the leading-edge heights.
func (m *ChunkMesh) FirstRow() []float64 {
	return m.Row(0)
}

// LastRow returns the trailing-edge heights as a seam for the next chunk.
func (m *ChunkMesh) LastRow() SeamRow {
	return SeamRow(m.Row(m.topology.DepthSegments))
}
