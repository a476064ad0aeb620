package density

import (
	"context"
	"errors"
	"testing"
)

func testPoints(data []float64, n, dims int) []*dataPoint {
	points := make([]*dataPoint, n)
	for i := range points {
		points[i] = newDataPoint(string(rune('a'+i%26))+string(rune('0'+i/26)), data[i*dims:(i+1)*dims])
	}
	return points
}

func TestQueryNeighbors_IdenticalForAllWorkerCounts(t *testing.T) {
	n, dims := 97, 2
	data := randomData(n, dims, 42)
	points := testPoints(data, n, dims)
	tree := NewKDTree(data, n, dims, EuclideanMetric{}, 4)
	query := func(p *dataPoint) []Neighbor { return tree.KNNQuery(p.vector, 5) }

	sequential, err := queryNeighbors(points, query, 1, NopMonitor())
	if err != nil {
		t.Fatal(err)
	}

	for _, workers := range []int{2, 3, 8, 200} {
		parallel, err := queryNeighbors(points, query, workers, NopMonitor())
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if len(parallel) != len(sequential) {
			t.Fatalf("workers=%d: length mismatch %d != %d", workers, len(parallel), len(sequential))
		}
		for i := range sequential {
			if !knnResultsMatch(parallel[i], sequential[i], 0) {
				t.Errorf("workers=%d: result[%d] = %v, expected %v", workers, i, parallel[i], sequential[i])
			}
		}
	}
}

func TestQueryNeighbors_SinglePoint(t *testing.T) {
	data := []float64{1, 2}
	points := testPoints(data, 1, 2)
	tree := NewKDTree(data, 1, 2, EuclideanMetric{}, 4)

	found, err := queryNeighbors(points, func(p *dataPoint) []Neighbor {
		return tree.RadiusQuery(p.vector, 1)
	}, 4, NopMonitor())
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || len(found[0]) != 1 || found[0][0].Index != 0 {
		t.Errorf("found = %v, want only the point itself", found)
	}
}

func TestQueryNeighbors_Canceled(t *testing.T) {
	n, dims := 50, 2
	data := randomData(n, dims, 1)
	points := testPoints(data, n, dims)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		_, err := queryNeighbors(points, func(*dataPoint) []Neighbor { return nil }, workers, NewMonitor(ctx, nil))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: err = %v, want context.Canceled", workers, err)
		}
	}
}
