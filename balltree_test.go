package density

import (
	"math"
	"testing"
)

// --- Construction tests ---

func TestBallTree_Construction_BasicProperties(t *testing.T) {
	data := []float64{
		0, 0,
		1, 0,
		2, 0,
		0, 3,
		1, 3,
		2, 3,
	}
	n, dims := 6, 2
	tree := NewBallTree(data, n, dims, EuclideanMetric{}, 2)

	if tree.NumPoints() != n {
		t.Errorf("NumPoints() = %d, want %d", tree.NumPoints(), n)
	}
	if tree.NumFeatures() != dims {
		t.Errorf("NumFeatures() = %d, want %d", tree.NumFeatures(), dims)
	}
	if tree.NumNodes() < 1 {
		t.Errorf("NumNodes() = %d, want >= 1", tree.NumNodes())
	}
}

func TestBallTree_Construction_RadiusNonNegative(t *testing.T) {
	n, dims := 40, 3
	tree := NewBallTree(randomData(n, dims, 5), n, dims, EuclideanMetric{}, 4)

	for i, nd := range tree.NodeDataArray() {
		if nd.Radius < 0 || math.IsNaN(nd.Radius) || math.IsInf(nd.Radius, 0) {
			t.Errorf("node %d has radius %v", i, nd.Radius)
		}
	}
}

func TestBallTree_Construction_BallsEnclosePoints(t *testing.T) {
	n, dims := 60, 2
	data := randomData(n, dims, 9)
	tree := NewBallTree(data, n, dims, EuclideanMetric{}, 3)

	for node, nd := range tree.NodeDataArray() {
		c := tree.centroid(node)
		for i := nd.IdxStart; i < nd.IdxEnd; i++ {
			if d := tree.metric.Distance(c, tree.point(tree.idxArray[i])); d > nd.Radius+floatTol {
				t.Errorf("node %d: point at %v outside radius %v", node, d, nd.Radius)
			}
		}
	}
}

func TestBallTree_EmptyData(t *testing.T) {
	tree := NewBallTree(nil, 0, 2, EuclideanMetric{}, 10)
	if got := tree.RadiusQuery([]float64{0, 0}, 1); len(got) != 0 {
		t.Errorf("RadiusQuery on empty tree = %v, want none", got)
	}
	if got := tree.KNNQuery([]float64{0, 0}, 3); len(got) != 0 {
		t.Errorf("KNNQuery on empty tree = %v, want none", got)
	}
}

// --- Query tests ---

func TestBallTree_Radius_BruteForceMatch(t *testing.T) {
	data := []float64{
		0, 0,
		3, 0,
		0, 4,
		3, 4,
		1.5, 2,
	}
	n, dims := 5, 2

	for _, metric := range testMetrics {
		tree := NewBallTree(data, n, dims, metric, 1)
		for _, r := range []float64{0.5, 1, 2.5, 3, 4, 5, 10} {
			for q := 0; q < n; q++ {
				query := data[q*dims : (q+1)*dims]
				got := tree.RadiusQuery(query, r)
				want := bruteForceRadius(data, n, dims, query, r, metric)
				if !radiusResultsMatch(got, want) {
					t.Errorf("metric=%T r=%v query=%d: tree %v, brute force %v", metric, r, q, got, want)
				}
			}
		}
	}
}

func TestBallTree_Radius_Random(t *testing.T) {
	n, dims := 300, 3
	data := randomData(n, dims, 17)
	for _, metric := range testMetrics {
		tree := NewBallTree(data, n, dims, metric, 8)
		for q := 0; q < n; q += 7 {
			query := data[q*dims : (q+1)*dims]
			got := tree.RadiusQuery(query, 0.25)
			want := bruteForceRadius(data, n, dims, query, 0.25, metric)
			if !radiusResultsMatch(got, want) {
				t.Errorf("metric=%T query=%d: tree found %d points, brute force %d", metric, q, len(got), len(want))
			}
		}
	}
}

func TestBallTree_KNN_Random(t *testing.T) {
	n, dims := 200, 4
	data := randomData(n, dims, 23)
	for _, metric := range testMetrics {
		tree := NewBallTree(data, n, dims, metric, 5)
		for k := 1; k <= 8; k += 3 {
			for q := 0; q < n; q += 11 {
				query := data[q*dims : (q+1)*dims]
				got := tree.KNNQuery(query, k)
				want := bruteForceKNN(data, n, dims, query, k, metric)
				if !knnResultsMatch(got, want, floatTol) {
					t.Errorf("metric=%T k=%d query=%d: tree %v, brute force %v", metric, k, q, got, want)
				}
			}
		}
	}
}

func TestBallTree_KNN_AllSamePoints(t *testing.T) {
	data := []float64{2, 2, 2, 2, 2, 2}
	tree := NewBallTree(data, 3, 2, EuclideanMetric{}, 1)

	got := tree.KNNQuery([]float64{2, 2}, 3)
	if len(got) != 3 {
		t.Fatalf("KNNQuery returned %d points, want 3", len(got))
	}
	for i, nn := range got {
		if nn.Index != i || nn.Distance != 0 {
			t.Errorf("result %d = %+v, want index %d at distance 0", i, nn, i)
		}
	}
}

// --- SpatialIndex ---

func TestSpatialIndex_Implementations(t *testing.T) {
	var _ SpatialIndex = (*KDTree)(nil)
	var _ SpatialIndex = (*BallTree)(nil)
}

func TestNewSpatialIndex_InvalidKind(t *testing.T) {
	if _, err := NewSpatialIndex("octree", nil, 0, 2, EuclideanMetric{}, 10); err == nil {
		t.Error("expected an error for an unknown index kind")
	}
}

func TestIndexBuilder_KindsAgree(t *testing.T) {
	n, dims := 120, 2
	data := randomData(n, dims, 31)
	b := NewIndexBuilder(dims)
	for i := 0; i < n; i++ {
		if idx := b.AddPoint(data[i*dims : (i+1)*dims]); idx != i {
			t.Fatalf("AddPoint returned %d, want %d", idx, i)
		}
	}
	if b.Len() != n {
		t.Fatalf("Len() = %d, want %d", b.Len(), n)
	}

	kd, err := b.Build(IndexKDTree, EuclideanMetric{}, 6)
	if err != nil {
		t.Fatal(err)
	}
	ball, err := b.Build(IndexBallTree, EuclideanMetric{}, 6)
	if err != nil {
		t.Fatal(err)
	}
	for q := 0; q < n; q += 9 {
		query := data[q*dims : (q+1)*dims]
		if !radiusResultsMatch(kd.RadiusQuery(query, 0.15), sortedByIndex(ball.RadiusQuery(query, 0.15))) {
			t.Errorf("query=%d: kd-tree and ball tree radius results differ", q)
		}
		if !knnResultsMatch(kd.KNNQuery(query, 5), ball.KNNQuery(query, 5), floatTol) {
			t.Errorf("query=%d: kd-tree and ball tree knn results differ", q)
		}
	}
}

func TestIndexBuilder_DimensionMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for a point with the wrong dimensionality")
		}
	}()
	NewIndexBuilder(2).AddPoint([]float64{1, 2, 3})
}

func sortedByIndex(ns []Neighbor) []Neighbor {
	out := append([]Neighbor(nil), ns...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Index < out[j-1].Index; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
