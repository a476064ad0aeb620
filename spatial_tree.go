package density

import "fmt"

// NodeData describes a single node in a spatial tree.
type NodeData struct {
	IdxStart, IdxEnd int
	IsLeaf           bool
	Radius           float64 // ball tree radius; 0 for KD-tree
}

// Neighbor is a single query result: the index of an indexed point and its
// true (non-reduced) distance to the query.
type Neighbor struct {
	Index    int
	Distance float64
}

// SpatialIndex is the read interface shared by KD-trees and ball trees.
// Indices refer to the order in which points were handed to the tree.
type SpatialIndex interface {
	// RadiusQuery returns every indexed point whose distance to point is
	// <= radius, in no particular order. If point itself is indexed it is
	// part of the result.
	RadiusQuery(point []float64, radius float64) []Neighbor

	// KNNQuery returns the k nearest indexed points sorted by ascending
	// distance. Fewer than k results are returned when the index is smaller.
	KNNQuery(point []float64, k int) []Neighbor

	// NumPoints returns the number of points in the tree.
	NumPoints() int

	// NumFeatures returns the dimensionality of each point.
	NumFeatures() int
}

// IndexKind selects the spatial index implementation.
type IndexKind string

const (
	IndexKDTree   IndexKind = "kdtree"
	IndexBallTree IndexKind = "balltree"
)

// NewSpatialIndex builds the index of the given kind over flat row-major
// data with n points of dimensionality dims.
func NewSpatialIndex(kind IndexKind, data []float64, n, dims int, metric DistanceMetric, leafSize int) (SpatialIndex, error) {
	switch kind {
	case IndexKDTree, "":
		return NewKDTree(data, n, dims, metric, leafSize), nil
	case IndexBallTree:
		return NewBallTree(data, n, dims, metric, leafSize), nil
	default:
		return nil, fmt.Errorf("density: invalid Index %q", kind)
	}
}

// IndexBuilder collects points for a static spatial index. Points are added
// one at a time during ingestion; Build freezes them into a read-only tree.
type IndexBuilder struct {
	dims int
	data []float64
	n    int
}

// NewIndexBuilder returns a builder for points of dimensionality dims.
func NewIndexBuilder(dims int) *IndexBuilder {
	return &IndexBuilder{dims: dims}
}

// AddPoint appends a copy of vector and returns its index in the future tree.
// It panics if the vector does not have the builder's dimensionality.
func (b *IndexBuilder) AddPoint(vector []float64) int {
	if len(vector) != b.dims {
		panic(fmt.Sprintf("density: point has %d features, index expects %d", len(vector), b.dims))
	}
	b.data = append(b.data, vector...)
	b.n++
	return b.n - 1
}

// Len returns the number of points added so far.
func (b *IndexBuilder) Len() int { return b.n }

// Build creates the spatial index over all added points.
func (b *IndexBuilder) Build(kind IndexKind, metric DistanceMetric, leafSize int) (SpatialIndex, error) {
	return NewSpatialIndex(kind, b.data, b.n, b.dims, metric, leafSize)
}
