package density

import (
	"fmt"
	"math"
)

// radiusBetaFactor scales RadiusAlpha to the neighborhood radius.
const radiusBetaFactor = 1.25

// Kernel decides how neighborhoods are discovered, how the raw potential of
// a point is seeded and how strongly a consumed point decays its neighbors.
type Kernel interface {
	// Weight returns the decrement weight stored with the built model.
	Weight() KernelWeight

	validate() error
	newSeeder(n int, cfg *Config) seeder
}

// seeder implements the build side of a kernel.
type seeder interface {
	// query finds the neighbor candidates of p. It only reads the index and
	// may run concurrently for different points.
	query(index SpatialIndex, p *dataPoint) []Neighbor

	// register applies the query result of points[i]. Calls are sequential.
	// It reports whether the neighborhood was unusually wide.
	register(points []*dataPoint, i int, found []Neighbor) bool

	// finish turns the accumulated density of p into its raw potential.
	finish(p *dataPoint)

	// wideAdvisory is the advisory emitted once if any register call
	// reported a wide neighborhood.
	wideAdvisory() string
}

// KernelKind identifies the decrement weight function of a model.
type KernelKind string

const (
	KernelPotential KernelKind = "potential"
	KernelGraph     KernelKind = "graph"
)

// KernelWeight is the serializable decrement weight function of a
// NeighborhoodModel.
//
// For KernelPotential the weight is exp(-Coefficient * sqDist) with
// Coefficient = beta. For KernelGraph it is exp(-dist / Coefficient) with
// Coefficient = 2 * sigma^2.
type KernelWeight struct {
	Kind        KernelKind
	Coefficient float64
}

// Decrement returns the weight applied to a consumed point's potential when
// decaying a neighbor at the given squared distance.
func (w KernelWeight) Decrement(sqDist float64) float64 {
	switch w.Kind {
	case KernelPotential:
		return math.Exp(-w.Coefficient * sqDist)
	case KernelGraph:
		return math.Exp(-math.Sqrt(sqDist) / w.Coefficient)
	default:
		panic(fmt.Sprintf("density: unknown kernel %q", w.Kind))
	}
}

func (w KernelWeight) validate() error {
	switch w.Kind {
	case KernelPotential, KernelGraph:
	default:
		return fmt.Errorf("unknown kernel %q", w.Kind)
	}
	if !(w.Coefficient > 0) || math.IsInf(w.Coefficient, 0) {
		return fmt.Errorf("kernel coefficient must be a positive number, got %v", w.Coefficient)
	}
	return nil
}

// PotentialKernel is the node potential kernel. Every point within
// RadiusBeta() is a neighbor; points within RadiusAlpha contribute
// exp(-alpha * d^2) to the raw potential.
type PotentialKernel struct {
	RadiusAlpha float64
}

// RadiusBeta is the neighborhood radius, 1.25 * RadiusAlpha.
func (k PotentialKernel) RadiusBeta() float64 { return k.RadiusAlpha * radiusBetaFactor }

// Alpha is the seeding coefficient 4 / RadiusAlpha^2.
func (k PotentialKernel) Alpha() float64 { return 4 / (k.RadiusAlpha * k.RadiusAlpha) }

// Beta is the decrement coefficient 4 / RadiusBeta^2.
func (k PotentialKernel) Beta() float64 {
	rb := k.RadiusBeta()
	return 4 / (rb * rb)
}

func (k PotentialKernel) Weight() KernelWeight {
	return KernelWeight{Kind: KernelPotential, Coefficient: k.Beta()}
}

func (k PotentialKernel) validate() error {
	if !(k.RadiusAlpha > 0) || math.IsInf(k.RadiusAlpha, 0) {
		return fmt.Errorf("density: RadiusAlpha must be a positive number, got %v", k.RadiusAlpha)
	}
	return nil
}

func (k PotentialKernel) newSeeder(n int, cfg *Config) seeder {
	return &potentialSeeder{
		radiusAlpha: k.RadiusAlpha,
		radiusBeta:  k.RadiusBeta(),
		alpha:       k.Alpha(),
		n:           n,
		threshold:   cfg.WideNeighborhoodThreshold,
	}
}

type potentialSeeder struct {
	radiusAlpha, radiusBeta float64
	alpha                   float64
	n                       int
	threshold               float64
}

func (s *potentialSeeder) query(index SpatialIndex, p *dataPoint) []Neighbor {
	return index.RadiusQuery(p.vector, s.radiusBeta)
}

func (s *potentialSeeder) register(points []*dataPoint, i int, found []Neighbor) bool {
	p := points[i]
	count := 0
	for _, nn := range found {
		if nn.Index == i {
			continue
		}
		count++
		p.registerNeighbor(points[nn.Index], nn.Distance)
		if nn.Distance <= s.radiusAlpha {
			p.density += math.Exp(-s.alpha * nn.Distance * nn.Distance)
		}
	}
	return float64(count)/float64(s.n) > s.threshold
}

func (s *potentialSeeder) finish(*dataPoint) {}

func (s *potentialSeeder) wideAdvisory() string {
	return fmt.Sprintf("Some rows have more than %g%% of the dataset in their neighborhood. "+
		"Consider reducing the radius alpha.", s.threshold*100)
}

// GraphKernel is the graph density kernel. Every point is connected to its
// Neighbors nearest points; an edge of length d weighs exp(-d / (2*sigma^2))
// and the raw potential of a point is the mean weight of its edges.
type GraphKernel struct {
	Sigma     float64
	Neighbors int
}

func (k GraphKernel) Weight() KernelWeight {
	return KernelWeight{Kind: KernelGraph, Coefficient: 2 * k.Sigma * k.Sigma}
}

func (k GraphKernel) validate() error {
	if !(k.Sigma > 0) || math.IsInf(k.Sigma, 0) {
		return fmt.Errorf("density: Sigma must be a positive number, got %v", k.Sigma)
	}
	if k.Neighbors < 1 {
		return fmt.Errorf("density: Neighbors must be >= 1, got %d", k.Neighbors)
	}
	return nil
}

func (k GraphKernel) newSeeder(n int, cfg *Config) seeder {
	return &graphSeeder{weight: k.Weight(), neighbors: k.Neighbors}
}

type graphSeeder struct {
	weight    KernelWeight
	neighbors int
}

func (s *graphSeeder) query(index SpatialIndex, p *dataPoint) []Neighbor {
	// one extra because the point itself is among its nearest neighbors
	return index.KNNQuery(p.vector, s.neighbors+1)
}

func (s *graphSeeder) register(points []*dataPoint, i int, found []Neighbor) bool {
	p := points[i]
	added := 0
	for _, nn := range found {
		if nn.Index == i || added == s.neighbors {
			continue
		}
		added++
		q := points[nn.Index]
		w := s.weight.Decrement(nn.Distance * nn.Distance)
		if p.registerUniqueNeighbor(q, nn.Distance) {
			p.density += w
		}
		if q.registerUniqueNeighbor(p, nn.Distance) {
			q.density += w
		}
	}
	return false
}

func (s *graphSeeder) finish(p *dataPoint) {
	if len(p.neighbors) == 0 {
		p.density = 0
		return
	}
	p.density /= float64(len(p.neighbors))
	p.registered = nil
}

func (s *graphSeeder) wideAdvisory() string { return "" }
