package density

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// modelFormatVersion is written into every snapshot. Snapshots with a
// different major version are rejected.
const modelFormatVersion = "1.0.0"

type neighborhoodSnapshot struct {
	Version          string      `msgpack:"v"`
	ID               string      `msgpack:"id"`
	Keys             []string    `msgpack:"keys"`
	Neighborhoods    [][]int     `msgpack:"nbh"`
	FirstLarger      []int       `msgpack:"first_larger"`
	SquaredDistances [][]float64 `msgpack:"sq_dists"`
	Kernel           string      `msgpack:"kernel"`
	Coefficient      float64     `msgpack:"coef"`
}

type potentialsSnapshot struct {
	Version    string    `msgpack:"v"`
	Potentials []float64 `msgpack:"potentials"`
}

type scorerSnapshot struct {
	Version      string               `msgpack:"v"`
	NrFeatures   int                  `msgpack:"nr_features"`
	Features     []string             `msgpack:"features"`
	Neighborhood neighborhoodSnapshot `msgpack:"neighborhood"`
	Potentials   []float64            `msgpack:"potentials"`
}

func (m *NeighborhoodModel) snapshot() neighborhoodSnapshot {
	nbhs := make([][]int, m.neighborhoods.Len())
	for i := range nbhs {
		nbhs[i] = m.neighborhoods.Neighborhood(i)
	}
	return neighborhoodSnapshot{
		Version:          modelFormatVersion,
		ID:               m.id.String(),
		Keys:             m.keyMap.Keys(),
		Neighborhoods:    nbhs,
		FirstLarger:      m.idxOfFirstLargerNeighbor,
		SquaredDistances: m.squaredDistances,
		Kernel:           string(m.weight.Kind),
		Coefficient:      m.weight.Coefficient,
	}
}

// MarshalNeighborhoodModel serializes m with msgpack.
func MarshalNeighborhoodModel(m *NeighborhoodModel) ([]byte, error) {
	return msgpack.Marshal(m.snapshot())
}

// UnmarshalNeighborhoodModel restores a model written by
// MarshalNeighborhoodModel, including its id.
func UnmarshalNeighborhoodModel(data []byte) (*NeighborhoodModel, error) {
	var s neighborhoodSnapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	return s.restore()
}

// MarshalPotentials serializes a potentials vector with msgpack.
func MarshalPotentials(potentials []float64) ([]byte, error) {
	return msgpack.Marshal(potentialsSnapshot{Version: modelFormatVersion, Potentials: potentials})
}

// UnmarshalPotentials restores a vector written by MarshalPotentials.
func UnmarshalPotentials(data []byte) ([]float64, error) {
	var s potentialsSnapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if err := checkVersion(s.Version); err != nil {
		return nil, err
	}
	if err := validatePotentials(s.Potentials); err != nil {
		return nil, err
	}
	return s.Potentials, nil
}

// WriteScorerModel writes s and its current potentials to w.
func WriteScorerModel(w io.Writer, s *ScorerModel) error {
	snap := scorerSnapshot{
		Version:      modelFormatVersion,
		NrFeatures:   s.nrFeatures,
		Features:     s.features,
		Neighborhood: s.neighborhood.snapshot(),
		Potentials:   s.Potentials(),
	}
	return msgpack.NewEncoder(w).Encode(&snap)
}

// ReadScorerModel reads a model written by WriteScorerModel.
func ReadScorerModel(r io.Reader) (*ScorerModel, error) {
	var snap scorerSnapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if err := checkVersion(snap.Version); err != nil {
		return nil, err
	}
	nm, err := snap.Neighborhood.restore()
	if err != nil {
		return nil, err
	}
	if err := validatePotentials(snap.Potentials); err != nil {
		return nil, err
	}
	if snap.NrFeatures < 1 {
		return nil, fmt.Errorf("%w: %d features", ErrCorruptModel, snap.NrFeatures)
	}
	if len(snap.Features) == 0 {
		snap.Features = nil
	}
	return NewScorerModel(snap.Potentials, nm, snap.NrFeatures, snap.Features)
}

func checkVersion(v string) error {
	major, _, _ := strings.Cut(v, ".")
	currentMajor, _, _ := strings.Cut(modelFormatVersion, ".")
	if v == "" || major != currentMajor {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedVersion, v, modelFormatVersion)
	}
	return nil
}

func validatePotentials(potentials []float64) error {
	for i, p := range potentials {
		if !(p >= 0 && p <= 1) {
			return fmt.Errorf("%w: potential %d is %v", ErrCorruptModel, i, p)
		}
	}
	return nil
}

// restore rebuilds a model from s after checking that it is consistent.
func (s *neighborhoodSnapshot) restore() (*NeighborhoodModel, error) {
	if err := checkVersion(s.Version); err != nil {
		return nil, err
	}
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrCorruptModel, fmt.Sprintf(format, args...))
	}

	id, err := uuid.Parse(s.ID)
	if err != nil {
		return nil, corrupt("invalid id: %v", err)
	}
	weight := KernelWeight{Kind: KernelKind(s.Kernel), Coefficient: s.Coefficient}
	if err := weight.validate(); err != nil {
		return nil, corrupt("%v", err)
	}

	n := len(s.Keys)
	keyMap := NewKeyMap(s.Keys)
	if keyMap.Size() != n {
		return nil, corrupt("duplicate keys")
	}
	if len(s.Neighborhoods) != n || len(s.FirstLarger) != n || len(s.SquaredDistances) != n {
		return nil, corrupt("%d keys, %d neighborhoods, %d offsets, %d distance rows",
			n, len(s.Neighborhoods), len(s.FirstLarger), len(s.SquaredDistances))
	}
	for i, nbh := range s.Neighborhoods {
		for j, other := range nbh {
			if other < 0 || other >= n || other == i {
				return nil, corrupt("row %d has invalid neighbor %d", i, other)
			}
			if j > 0 && nbh[j-1] >= other {
				return nil, corrupt("neighborhood of row %d is not sorted", i)
			}
		}
		pos, _ := slices.BinarySearch(nbh, i)
		if s.FirstLarger[i] != pos {
			return nil, corrupt("row %d has first larger neighbor at %d, expected %d", i, s.FirstLarger[i], pos)
		}
		if len(s.SquaredDistances[i]) != len(nbh)-pos {
			return nil, corrupt("row %d has %d cached distances, expected %d", i, len(s.SquaredDistances[i]), len(nbh)-pos)
		}
		for _, d := range s.SquaredDistances[i] {
			if !(d >= 0) || math.IsInf(d, 0) {
				return nil, corrupt("row %d has invalid squared distance %v", i, d)
			}
		}
	}
	for i, nbh := range s.Neighborhoods {
		for _, other := range nbh {
			if _, ok := slices.BinarySearch(s.Neighborhoods[other], i); !ok {
				return nil, corrupt("row %d is a neighbor of row %d but not vice versa", other, i)
			}
		}
	}

	for i := range s.Neighborhoods {
		if s.Neighborhoods[i] == nil {
			s.Neighborhoods[i] = []int{}
		}
		if s.SquaredDistances[i] == nil {
			s.SquaredDistances[i] = []float64{}
		}
	}
	return &NeighborhoodModel{
		id:                       id,
		keyMap:                   keyMap,
		neighborhoods:            NewNeighborhoodStructure(s.Neighborhoods, true),
		weight:                   weight,
		idxOfFirstLargerNeighbor: s.FirstLarger,
		squaredDistances:         s.SquaredDistances,
	}, nil
}
