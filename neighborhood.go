package density

import (
	"fmt"
	"slices"
)

// NeighborhoodStructure holds, for every point index, the indices of its
// neighbors. No point is its own neighbor.
type NeighborhoodStructure struct {
	neighborhoods [][]int
	sorted        bool
}

// NewNeighborhoodStructure wraps precomputed neighborhoods. If sorted is
// true every neighborhood must be in ascending order.
func NewNeighborhoodStructure(neighborhoods [][]int, sorted bool) *NeighborhoodStructure {
	return &NeighborhoodStructure{neighborhoods: neighborhoods, sorted: sorted}
}

// createNeighborhoodStructure materializes the registered neighbors of every
// point as index arrays, resolving neighbor keys through keyMap.
//
// A neighbor whose key is not in keyMap means a point referenced data that
// was never indexed, which is a defect in the build, so it panics.
func createNeighborhoodStructure(keyMap *KeyMap, sortNeighborhoods bool, points []*dataPoint, m Monitor) (*NeighborhoodStructure, error) {
	neighborhoods := make([][]int, len(points))
	for i, p := range points {
		if err := stepProgress(m, i+1, len(points), "Creating neighborhood for row %d of %d."); err != nil {
			return nil, err
		}
		nbh := make([]int, len(p.neighbors))
		for j, n := range p.neighbors {
			idx, err := keyMap.Index(n.key)
			if err != nil {
				panic(fmt.Sprintf("density: unknown row %q during model creation", n.key))
			}
			nbh[j] = idx
		}
		if sortNeighborhoods {
			slices.Sort(nbh)
		}
		neighborhoods[i] = nbh
	}
	return &NeighborhoodStructure{neighborhoods: neighborhoods, sorted: sortNeighborhoods}, nil
}

// Neighborhood returns the neighbor indices of idx. The slice must not be
// modified.
func (s *NeighborhoodStructure) Neighborhood(idx int) []int {
	return s.neighborhoods[idx]
}

// Len returns the number of points.
func (s *NeighborhoodStructure) Len() int { return len(s.neighborhoods) }

// Sorted reports whether every neighborhood is in ascending order.
func (s *NeighborhoodStructure) Sorted() bool { return s.sorted }
