package density

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ScorerModel pairs a NeighborhoodModel with the current potential of every
// row. Potentials start normalized to [0, 1] and only ever decrease as rows
// are consumed. All methods are safe for concurrent use; updates are
// serialized.
type ScorerModel struct {
	mu           sync.Mutex
	potentials   []float64
	neighborhood *NeighborhoodModel
	nrFeatures   int
	features     []string
}

// Score is the current potential of a row. Known is false for rows that
// are not part of the model; their Potential is 0.
type Score struct {
	Key       string
	Potential float64
	Known     bool
}

// NewScorerModel combines potentials with a neighborhood model. features
// may be nil when the feature columns are unnamed.
func NewScorerModel(potentials []float64, nm *NeighborhoodModel, nrFeatures int, features []string) (*ScorerModel, error) {
	if len(potentials) != nm.NrRows() {
		return nil, fmt.Errorf("%w: %d potentials for %d rows", ErrCorruptModel, len(potentials), nm.NrRows())
	}
	if features != nil && len(features) != nrFeatures {
		return nil, fmt.Errorf("%w: %d feature names for %d features", ErrCorruptModel, len(features), nrFeatures)
	}
	return &ScorerModel{
		potentials:   potentials,
		neighborhood: nm,
		nrFeatures:   nrFeatures,
		features:     features,
	}, nil
}

// ID returns the id of the underlying neighborhood model.
func (s *ScorerModel) ID() uuid.UUID { return s.neighborhood.ID() }

// NeighborhoodModel returns the immutable neighborhood part of the model.
func (s *ScorerModel) NeighborhoodModel() *NeighborhoodModel { return s.neighborhood }

// NrRows returns the number of rows in the model.
func (s *ScorerModel) NrRows() int { return s.neighborhood.NrRows() }

// NrFeatures returns the dimensionality of the rows.
func (s *ScorerModel) NrFeatures() int { return s.nrFeatures }

// Features returns the feature column names, or nil if they are unknown.
func (s *ScorerModel) Features() []string { return slices.Clone(s.features) }

// Potential returns the current potential of key.
func (s *ScorerModel) Potential(key string) (float64, error) {
	idx, err := s.neighborhood.Index(key)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.potentials[idx], nil
}

// Potentials returns a copy of all potentials in index order.
func (s *ScorerModel) Potentials() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.potentials)
}

// UpdateNeighbors consumes the row key. See NeighborhoodModel.UpdateNeighbors.
func (s *ScorerModel) UpdateNeighbors(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neighborhood.UpdateNeighbors(NewPotentialUpdater(s.potentials), key)
}

// BatchReport summarizes a batch operation.
type BatchReport struct {
	Processed int
	Ignored   int

	outcome string
}

// Advisory returns the message for the rows ignored because they are
// unknown to the model, or "" if none were.
func (r BatchReport) Advisory() string {
	if r.Ignored == 0 {
		return ""
	}
	return fmt.Sprintf("%d %s %s because %s unknown to the model.",
		r.Ignored, plural(r.Ignored, "row is", "rows are"), r.outcome, plural(r.Ignored, "it is", "they are"))
}

// UpdateBatch consumes keys in order. Unknown keys abort the batch with
// policy Fail or are skipped and counted with policy Ignore. A batch that
// fails or is canceled leaves the potentials untouched.
func (s *ScorerModel) UpdateBatch(m Monitor, keys []string, policy Policy) (BatchReport, error) {
	report := BatchReport{outcome: "ignored during the update"}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := slices.Clone(s.potentials)
	u := NewPotentialUpdater(s.potentials)
	for i, key := range keys {
		if err := stepProgress(m, i+1, len(keys), "Updating row %d of %d."); err != nil {
			copy(s.potentials, saved)
			return BatchReport{}, err
		}
		if err := s.neighborhood.UpdateNeighbors(u, key); err != nil {
			if errors.Is(err, ErrUnknownRow) && policy == Ignore {
				report.Ignored++
				continue
			}
			copy(s.potentials, saved)
			return BatchReport{}, fmt.Errorf("%w in input table", err)
		}
		report.Processed++
	}
	return report, nil
}

// ScoreBatch returns the current potential of every key in order. Unknown
// keys abort with policy Fail; with policy Ignore they are returned with
// Known set to false and counted.
func (s *ScorerModel) ScoreBatch(keys []string, policy Policy) ([]Score, BatchReport, error) {
	report := BatchReport{outcome: "scored as missing"}
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := make([]Score, 0, len(keys))
	for _, key := range keys {
		idx, err := s.neighborhood.Index(key)
		if err != nil {
			if policy == Ignore {
				report.Ignored++
				scores = append(scores, Score{Key: key})
				continue
			}
			return nil, BatchReport{}, fmt.Errorf("%w in input table", err)
		}
		scores = append(scores, Score{Key: key, Potential: s.potentials[idx], Known: true})
		report.Processed++
	}
	return scores, report, nil
}

// CheckCompatible returns ErrIncompatibleFeatures if columns lack a feature
// the model was built on.
func (s *ScorerModel) CheckCompatible(columns []string) error {
	if s.features == nil {
		if len(columns) < s.nrFeatures {
			return fmt.Errorf("%w: %d columns, model expects %d", ErrIncompatibleFeatures, len(columns), s.nrFeatures)
		}
		return nil
	}
	var missing []string
	for _, f := range s.features {
		if !slices.Contains(columns, f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %q", ErrIncompatibleFeatures, missing)
	}
	return nil
}

// Summary describes the model in one line.
func (s *ScorerModel) Summary() string {
	return fmt.Sprintf("Density Scorer Model consisting of %d %d-dimensional data points.", s.NrRows(), s.nrFeatures)
}
