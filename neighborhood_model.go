package density

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// NeighborhoodModel is the static part of a scorer: which rows are
// neighbors, how far apart they are and how a consumed row decays its
// neighbors. It is immutable once built and safe for concurrent reads.
//
// Squared distances are cached once per unordered pair. Row i stores the
// distances to its neighbors with a larger index, in neighborhood order,
// starting at idxOfFirstLargerNeighbor[i].
type NeighborhoodModel struct {
	id            uuid.UUID
	keyMap        *KeyMap
	neighborhoods *NeighborhoodStructure
	weight        KernelWeight

	idxOfFirstLargerNeighbor []int
	squaredDistances         [][]float64
}

// createNeighborhoodModel freezes the registered neighbors of points.
func createNeighborhoodModel(points []*dataPoint, weight KernelWeight, m Monitor) (*NeighborhoodModel, error) {
	keyMap, err := createKeyMap(points, m.SubProgress(0.1))
	if err != nil {
		return nil, err
	}
	if keyMap.Size() != len(points) {
		panic(fmt.Sprintf("density: %d points share %d keys", len(points), keyMap.Size()))
	}
	nbhs, err := createNeighborhoodStructure(keyMap, true, points, m.SubProgress(0.3))
	if err != nil {
		return nil, err
	}
	firstLarger, err := findFirstLargerNeighbors(nbhs, m.SubProgress(0.1))
	if err != nil {
		return nil, err
	}
	dists, err := createDistanceCache(keyMap, nbhs, firstLarger, points, m.SubProgress(0.5))
	if err != nil {
		return nil, err
	}
	return &NeighborhoodModel{
		id:                       uuid.New(),
		keyMap:                   keyMap,
		neighborhoods:            nbhs,
		weight:                   weight,
		idxOfFirstLargerNeighbor: firstLarger,
		squaredDistances:         dists,
	}, nil
}

// findFirstLargerNeighbors returns, for every row, the position of the first
// neighbor with a larger index in its sorted neighborhood.
func findFirstLargerNeighbors(nbhs *NeighborhoodStructure, m Monitor) ([]int, error) {
	if !nbhs.Sorted() {
		panic("density: neighborhoods must be sorted")
	}
	firstLarger := make([]int, nbhs.Len())
	for i := range firstLarger {
		if err := stepProgress(m, i+1, len(firstLarger), "Sorting neighborhood of row %d of %d."); err != nil {
			return nil, err
		}
		pos, found := slices.BinarySearch(nbhs.Neighborhood(i), i)
		if found {
			panic(fmt.Sprintf("density: row %d has itself as neighbor", i))
		}
		firstLarger[i] = pos
	}
	return firstLarger, nil
}

type indexedSqDist struct {
	idx    int
	sqDist float64
}

// createDistanceCache stores, for every row, the squared distances to its
// neighbors with a larger index. It panics if the neighbor relation is not
// symmetric, since half of the pairs would then have no cached distance.
func createDistanceCache(keyMap *KeyMap, nbhs *NeighborhoodStructure, firstLarger []int, points []*dataPoint, m Monitor) ([][]float64, error) {
	dists := make([][]float64, len(points))
	for i, p := range points {
		if err := stepProgress(m, i+1, len(points), "Caching distances of row %d of %d."); err != nil {
			return nil, err
		}
		nbh := nbhs.Neighborhood(i)
		for _, other := range nbh {
			if _, ok := slices.BinarySearch(nbhs.Neighborhood(other), i); !ok {
				panic(fmt.Sprintf("density: row %d is a neighbor of row %d but not vice versa", other, i))
			}
		}

		pairs := make([]indexedSqDist, len(p.neighbors))
		for j, n := range p.neighbors {
			idx, _ := keyMap.Index(n.key)
			pairs[j] = indexedSqDist{idx: idx, sqDist: p.sqDists[j]}
		}
		slices.SortFunc(pairs, func(a, b indexedSqDist) int { return cmp.Compare(a.idx, b.idx) })

		fl := firstLarger[i]
		row := make([]float64, len(pairs)-fl)
		for j := range row {
			row[j] = pairs[fl+j].sqDist
		}
		dists[i] = row
	}
	return dists, nil
}

// ID identifies the model. It is assigned once at creation and survives
// serialization.
func (m *NeighborhoodModel) ID() uuid.UUID { return m.id }

// Index returns the index of key or an *UnknownRowError.
func (m *NeighborhoodModel) Index(key string) (int, error) { return m.keyMap.Index(key) }

// Key returns the key of row idx.
func (m *NeighborhoodModel) Key(idx int) string { return m.keyMap.Key(idx) }

// Keys returns the row keys in index order. The slice must not be modified.
func (m *NeighborhoodModel) Keys() []string { return m.keyMap.Keys() }

// NrRows returns the number of rows in the model.
func (m *NeighborhoodModel) NrRows() int { return m.keyMap.Size() }

// Weight returns the decrement weight function.
func (m *NeighborhoodModel) Weight() KernelWeight { return m.weight }

// Neighborhood returns the sorted neighbor indices of row idx. The slice
// must not be modified.
func (m *NeighborhoodModel) Neighborhood(idx int) []int { return m.neighborhoods.Neighborhood(idx) }

// Neighbors returns the keys of the neighbors of key in index order.
func (m *NeighborhoodModel) Neighbors(key string) ([]string, error) {
	idx, err := m.keyMap.Index(key)
	if err != nil {
		return nil, err
	}
	nbh := m.neighborhoods.Neighborhood(idx)
	keys := make([]string, len(nbh))
	for i, n := range nbh {
		keys[i] = m.keyMap.Key(n)
	}
	return keys, nil
}

// SquaredDistance returns the squared distance between row current and its
// neighbor at position pos in its neighborhood.
func (m *NeighborhoodModel) SquaredDistance(current, pos int) float64 {
	other := m.neighborhoods.Neighborhood(current)[pos]
	switch {
	case current < other:
		return m.squaredDistances[current][pos-m.idxOfFirstLargerNeighbor[current]]
	case current > other:
		return m.orderedSquaredDistance(other, current)
	default:
		panic(fmt.Sprintf("density: row %d has itself as neighbor", current))
	}
}

// PairSquaredDistance returns the squared distance between rows i and j and
// whether they are neighbors.
func (m *NeighborhoodModel) PairSquaredDistance(i, j int) (float64, bool) {
	pos, found := slices.BinarySearch(m.neighborhoods.Neighborhood(i), j)
	if !found {
		return 0, false
	}
	return m.SquaredDistance(i, pos), true
}

// orderedSquaredDistance looks up the cached distance of smaller < larger.
func (m *NeighborhoodModel) orderedSquaredDistance(smaller, larger int) float64 {
	fl := m.idxOfFirstLargerNeighbor[smaller]
	j, found := slices.BinarySearch(m.neighborhoods.Neighborhood(smaller)[fl:], larger)
	if !found {
		panic(fmt.Sprintf("density: no cached distance between rows %d and %d", smaller, larger))
	}
	return m.squaredDistances[smaller][j]
}

// UpdateNeighbors consumes the row key: every neighbor n loses
// potential(key) * weight(d(key, n)) and key itself loses its whole
// potential. Potentials never drop below 0.
func (m *NeighborhoodModel) UpdateNeighbors(u *PotentialUpdater, key string) error {
	idx, err := m.keyMap.Index(key)
	if err != nil {
		return err
	}
	potential := u.Potential(idx)
	for pos, n := range m.neighborhoods.Neighborhood(idx) {
		u.DecreasePotential(n, potential*m.weight.Decrement(m.SquaredDistance(idx, pos)))
	}
	u.DecreasePotential(idx, potential)
	return nil
}
