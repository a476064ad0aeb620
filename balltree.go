package density

import (
	"container/heap"
	"math"
	"sort"
)

// BallTree is a ball tree spatial index for radius and nearest-neighbor
// queries. Each node stores a centroid and radius defining the smallest
// enclosing ball for its points.
//
// The tree is stored as a complete binary tree in array form:
//   - node i has children at 2*i+1 and 2*i+2
//   - dist(query, centroid) - radius bounds every point of a node
type BallTree struct {
	data     []float64 // flat row-major point data (n * dims)
	n        int       // number of points
	dims     int       // dimensionality
	leafSize int
	metric   DistanceMetric
	prunable bool       // metric satisfies the triangle inequality
	idxArray []int      // permutation: tree-order position → original index
	nodes    []NodeData // one entry per tree node; Radius is used
	// centroids[node*dims .. (node+1)*dims) = centroid of node
	centroids []float64
	numNodes  int
}

// NewBallTree builds a ball tree from flat row-major data with n points
// of dimensionality dims. leafSize controls the max points per leaf node.
func NewBallTree(data []float64, n, dims int, metric DistanceMetric, leafSize int) *BallTree {
	if leafSize < 1 {
		leafSize = 1
	}
	if metric == nil {
		metric = EuclideanMetric{}
	}

	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	maxNodes := kdMaxNodes(n, leafSize) // reuse the same upper bound
	t := &BallTree{
		data:      dataCopy,
		n:         n,
		dims:      dims,
		leafSize:  leafSize,
		metric:    metric,
		prunable:  axisAligned(metric),
		idxArray:  idxArray,
		nodes:     make([]NodeData, maxNodes),
		centroids: make([]float64, maxNodes*dims),
	}

	if n > 0 {
		t.buildNode(0, 0, n)
		t.numNodes = kdCountNodes(t.nodes, 0, len(t.nodes))
	}

	return t
}

// buildNode recursively builds the ball tree for points in idxArray[start:end].
func (t *BallTree) buildNode(nodeID, start, end int) {
	for nodeID >= len(t.nodes) {
		t.nodes = append(t.nodes, NodeData{})
		t.centroids = append(t.centroids, make([]float64, t.dims)...)
	}

	t.computeCentroid(nodeID, start, end)

	// Radius: max distance from centroid to any point in this node.
	centroid := t.centroid(nodeID)
	var radius float64
	for i := start; i < end; i++ {
		if d := t.metric.Distance(centroid, t.point(t.idxArray[i])); d > radius {
			radius = d
		}
	}

	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: true, Radius: radius}
		return
	}

	t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: false, Radius: radius}

	// Split along the dimension with greatest spread at the median.
	splitDim := t.findSpreadDim(start, end)
	t.sortByDim(start, end, splitDim)
	mid := start + count/2

	t.buildNode(2*nodeID+1, start, mid)
	t.buildNode(2*nodeID+2, mid, end)
}

// computeCentroid computes the mean of points idxArray[start:end] and stores
// it in the centroids array.
func (t *BallTree) computeCentroid(nodeID, start, end int) {
	base := nodeID * t.dims
	count := float64(end - start)
	for d := 0; d < t.dims; d++ {
		t.centroids[base+d] = 0
	}
	for i := start; i < end; i++ {
		ptIdx := t.idxArray[i]
		for d := 0; d < t.dims; d++ {
			t.centroids[base+d] += t.data[ptIdx*t.dims+d]
		}
	}
	for d := 0; d < t.dims; d++ {
		t.centroids[base+d] /= count
	}
}

// findSpreadDim returns the dimension with the greatest spread among
// points in idxArray[start:end].
func (t *BallTree) findSpreadDim(start, end int) int {
	bestDim := 0
	bestSpread := -1.0
	for d := 0; d < t.dims; d++ {
		minVal := math.Inf(1)
		maxVal := math.Inf(-1)
		for i := start; i < end; i++ {
			v := t.data[t.idxArray[i]*t.dims+d]
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
		if spread := maxVal - minVal; spread > bestSpread {
			bestSpread = spread
			bestDim = d
		}
	}
	return bestDim
}

// sortByDim sorts idxArray[start:end] by the given dimension.
func (t *BallTree) sortByDim(start, end, dim int) {
	sub := t.idxArray[start:end]
	dims := t.dims
	data := t.data
	sort.Slice(sub, func(i, j int) bool {
		return data[sub[i]*dims+dim] < data[sub[j]*dims+dim]
	})
}

func (t *BallTree) NumPoints() int            { return t.n }
func (t *BallTree) NumFeatures() int          { return t.dims }
func (t *BallTree) NumNodes() int             { return t.numNodes }
func (t *BallTree) NodeDataArray() []NodeData { return t.nodes[:t.numNodes] }

func (t *BallTree) point(idx int) []float64 {
	return t.data[idx*t.dims : (idx+1)*t.dims]
}

func (t *BallTree) centroid(node int) []float64 {
	return t.centroids[node*t.dims : (node+1)*t.dims]
}

// minDistPoint returns a lower bound on the distance between point and any
// point in node. It returns 0 for metrics without a known lower bound.
func (t *BallTree) minDistPoint(node int, point []float64) float64 {
	if !t.prunable {
		return 0
	}
	d := t.metric.Distance(point, t.centroid(node)) - t.nodes[node].Radius
	if d < 0 {
		return 0
	}
	return d
}

// RadiusQuery returns all points within radius of point.
func (t *BallTree) RadiusQuery(point []float64, radius float64) []Neighbor {
	if t.n == 0 || radius < 0 {
		return nil
	}
	var out []Neighbor
	t.radiusSearch(0, point, radius, radius+radius*pruneSlack, &out)
	return out
}

func (t *BallTree) radiusSearch(nodeID int, query []float64, radius, bound float64, out *[]Neighbor) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.IdxStart == node.IdxEnd && nodeID != 0 {
		return
	}
	if t.minDistPoint(nodeID, query) > bound {
		return
	}

	if node.IsLeaf {
		for i := node.IdxStart; i < node.IdxEnd; i++ {
			ptIdx := t.idxArray[i]
			if d := t.metric.Distance(query, t.point(ptIdx)); d <= radius {
				*out = append(*out, Neighbor{Index: ptIdx, Distance: d})
			}
		}
		return
	}

	t.radiusSearch(2*nodeID+1, query, radius, bound, out)
	t.radiusSearch(2*nodeID+2, query, radius, bound, out)
}

// KNNQuery finds the k nearest neighbors of point.
func (t *BallTree) KNNQuery(point []float64, k int) []Neighbor {
	if t.n == 0 || k <= 0 {
		return nil
	}
	h := &knnHeap{}
	heap.Init(h)
	t.knnSearch(0, point, k, h)
	return h.sorted()
}

// knnSearch performs a single-tree KNN traversal for the ball tree.
func (t *BallTree) knnSearch(nodeID int, query []float64, k int, h *knnHeap) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.IdxStart == node.IdxEnd && nodeID != 0 {
		return
	}

	if node.IsLeaf {
		for i := node.IdxStart; i < node.IdxEnd; i++ {
			ptIdx := t.idxArray[i]
			h.offer(knnItem{index: ptIdx, dist: t.metric.Distance(query, t.point(ptIdx))}, k)
		}
		return
	}

	left := 2*nodeID + 1
	right := 2*nodeID + 2
	leftDist := t.minDistPoint(left, query)
	rightDist := t.minDistPoint(right, query)

	nearChild, farChild := left, right
	farDist := rightDist
	if rightDist < leftDist {
		nearChild, farChild = right, left
		farDist = leftDist
	}

	t.knnSearch(nearChild, query, k, h)

	if h.Len() < k || farDist <= (*h)[0].dist*(1+pruneSlack) {
		t.knnSearch(farChild, query, k, h)
	}
}
