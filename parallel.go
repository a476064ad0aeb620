package density

import (
	"sync"
	"sync/atomic"
)

// queryNeighbors runs query for every point and returns the results in point
// order. With numWorkers > 1 the points are split into contiguous ranges,
// one goroutine per range. Since ranges don't overlap, no synchronization is
// needed for writes. The result does not depend on numWorkers.
func queryNeighbors(points []*dataPoint, query func(*dataPoint) []Neighbor, numWorkers int, m Monitor) ([][]Neighbor, error) {
	n := len(points)
	found := make([][]Neighbor, n)
	if numWorkers <= 1 || n <= 1 {
		for i, p := range points {
			if err := stepProgress(m, i+1, n, "Querying neighbors of row %d of %d."); err != nil {
				return nil, err
			}
			found[i] = query(p)
		}
		return found, nil
	}

	var (
		wg       sync.WaitGroup
		done     atomic.Int64
		errOnce  sync.Once
		firstErr error
		stop     atomic.Bool
	)

	rowsPerWorker := (n + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := min(startRow+rowsPerWorker, n)
		if startRow >= n {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				if stop.Load() {
					return
				}
				step := int(done.Add(1))
				if err := stepProgress(m, step, n, "Querying neighbors of row %d of %d."); err != nil {
					errOnce.Do(func() { firstErr = err })
					stop.Store(true)
					return
				}
				found[i] = query(points[i])
			}
		}(startRow, endRow)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return found, nil
}
