package density

// dataPoint is the mutable per-row state used while a model is built.
type dataPoint struct {
	key     string
	vector  []float64
	density float64

	// neighbors and sqDists are parallel: sqDists[i] is the squared distance
	// to neighbors[i] as measured when the neighbor was registered.
	neighbors []*dataPoint
	sqDists   []float64

	// registered deduplicates neighbors for kernels that register pairs
	// from both sides. Nil for kernels that do not need it.
	registered map[*dataPoint]struct{}
}

func newDataPoint(key string, vector []float64) *dataPoint {
	return &dataPoint{key: key, vector: vector}
}

// registerNeighbor records n as a neighbor at distance dist.
func (p *dataPoint) registerNeighbor(n *dataPoint, dist float64) {
	if n == p {
		panic("density: a data point must not be its own neighbor")
	}
	p.neighbors = append(p.neighbors, n)
	p.sqDists = append(p.sqDists, dist*dist)
}

// registerUniqueNeighbor records n unless it is already a neighbor and
// reports whether it was added.
func (p *dataPoint) registerUniqueNeighbor(n *dataPoint, dist float64) bool {
	if p.registered == nil {
		p.registered = make(map[*dataPoint]struct{})
	}
	if _, ok := p.registered[n]; ok {
		return false
	}
	p.registerNeighbor(n, dist)
	p.registered[n] = struct{}{}
	return true
}
