package density

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var errCreatorUsed = errors.New("density: the model creator has already been built")

// ModelCreator accumulates rows and builds a ScorerModel from them.
// A ModelCreator builds exactly one model.
type ModelCreator struct {
	cfg        Config
	nrFeatures int
	features   []string

	points  []*dataPoint
	seen    map[string]struct{}
	index   *IndexBuilder
	ignored int
	wide    string
	built   bool
}

// NewModelCreator returns a creator for rows with nrFeatures feature cells.
func NewModelCreator(nrFeatures int, cfg Config) (*ModelCreator, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if nrFeatures < 1 {
		return nil, ErrNoFeatures
	}
	return &ModelCreator{
		cfg:        cfg,
		nrFeatures: nrFeatures,
		seen:       make(map[string]struct{}),
		index:      NewIndexBuilder(nrFeatures),
	}, nil
}

// SetFeatureNames records the names of the feature columns in the model so
// later tables can be checked for compatibility.
func (c *ModelCreator) SetFeatureNames(names []string) error {
	if len(names) != c.nrFeatures {
		return fmt.Errorf("%w: %d names for %d features", ErrDimensionMismatch, len(names), c.nrFeatures)
	}
	c.features = append([]string(nil), names...)
	return nil
}

// AddRow adds a row. Rows with a missing (or NaN) feature are skipped and
// counted when the missing value policy is Ignore.
func (c *ModelCreator) AddRow(row Row) error {
	if c.built {
		return errCreatorUsed
	}
	if len(row.Cells) != c.nrFeatures {
		return fmt.Errorf("%w: row %q has %d cells, expected %d",
			ErrDimensionMismatch, row.Key, len(row.Cells), c.nrFeatures)
	}
	vector := make([]float64, c.nrFeatures)
	for j, cell := range row.Cells {
		switch {
		case cell.Missing || (!cell.NonNumeric && math.IsNaN(cell.Value)):
			if c.cfg.MissingValues == Ignore {
				c.ignored++
				return nil
			}
			return fmt.Errorf("%w in row %q", ErrMissingValue, row.Key)
		case cell.NonNumeric:
			return fmt.Errorf("%w in row %q, feature %d", ErrNonNumericCell, row.Key, j)
		}
		vector[j] = cell.Value
	}
	if _, ok := c.seen[row.Key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, row.Key)
	}
	c.seen[row.Key] = struct{}{}
	c.index.AddPoint(vector)
	c.points = append(c.points, newDataPoint(row.Key, vector))
	return nil
}

// NrRows returns the number of rows added and not ignored.
func (c *ModelCreator) NrRows() int { return len(c.points) }

// Advisories returns the non-fatal messages collected so far: the number of
// rows skipped because of missing values and, after Build, whether some
// neighborhoods were unusually wide.
func (c *ModelCreator) Advisories() []string {
	var out []string
	if c.ignored > 0 {
		out = append(out, fmt.Sprintf("%d %s ignored due to missing values.",
			c.ignored, plural(c.ignored, "row is", "rows are")))
	}
	if c.wide != "" {
		out = append(out, c.wide)
	}
	return out
}

// Build computes the normalized potentials and the neighborhood model.
// The creator cannot be used afterwards, whether Build succeeds or not.
func (c *ModelCreator) Build(m Monitor) (*ScorerModel, error) {
	if c.built {
		return nil, errCreatorUsed
	}
	c.built = true
	defer func() { c.points, c.seen, c.index = nil, nil, nil }()

	if len(c.points) == 0 {
		if c.ignored > 0 {
			return nil, fmt.Errorf("%w: all %d rows have missing values", ErrEmptyTable, c.ignored)
		}
		return nil, ErrEmptyTable
	}

	if err := c.seedPotentials(m.SubProgress(0.3)); err != nil {
		return nil, err
	}
	potentials, err := normalizePotentials(c.points, m.SubProgress(0.3))
	if err != nil {
		return nil, err
	}
	nm, err := createNeighborhoodModel(c.points, c.cfg.Kernel.Weight(), m.SubProgress(0.4))
	if err != nil {
		return nil, err
	}
	model, err := NewScorerModel(potentials, nm, c.nrFeatures, c.features)
	if err != nil {
		return nil, err
	}
	m.SetProgress(1, "Model created.")
	return model, nil
}

// seedPotentials discovers the neighbors of every point and accumulates its
// raw potential.
func (c *ModelCreator) seedPotentials(m Monitor) error {
	indexProgress := m.SubProgress(0.2)
	if err := indexProgress.CheckCanceled(); err != nil {
		return err
	}
	index, err := c.index.Build(c.cfg.Index, c.cfg.Metric, c.cfg.LeafSize)
	if err != nil {
		return err
	}
	indexProgress.SetProgress(1, "Spatial index built.")

	n := len(c.points)
	s := c.cfg.Kernel.newSeeder(n, &c.cfg)
	found, err := queryNeighbors(c.points, func(p *dataPoint) []Neighbor {
		return s.query(index, p)
	}, c.cfg.Workers, m.SubProgress(0.5))
	if err != nil {
		return err
	}

	registerProgress := m.SubProgress(0.3)
	wide := false
	for i := range c.points {
		if err := stepProgress(registerProgress, i+1, n, "Calculating potential for row %d of %d."); err != nil {
			return err
		}
		if s.register(c.points, i, found[i]) {
			wide = true
		}
		found[i] = nil
	}
	for _, p := range c.points {
		s.finish(p)
	}
	if wide {
		c.wide = s.wideAdvisory()
	}
	return nil
}

// normalizePotentials rescales the raw potentials of points to [0, 1].
func normalizePotentials(points []*dataPoint, m Monitor) ([]float64, error) {
	n := len(points)
	potentials := make([]float64, n)
	collect := m.SubProgress(0.5)
	for i, p := range points {
		if err := stepProgress(collect, i+1, n, "Collecting potential of row %d of %d."); err != nil {
			return nil, err
		}
		potentials[i] = p.density
	}

	lo, hi := floats.Min(potentials), floats.Max(potentials)
	rescale := m.SubProgress(0.5)
	for i, v := range potentials {
		if err := stepProgress(rescale, i+1, n, "Normalizing potential of row %d of %d."); err != nil {
			return nil, err
		}
		potentials[i] = normalize(v, lo, hi)
	}
	return potentials, nil
}

// normalize maps v from [lo, hi] to [0, 1]. If all values are equal they
// become 0 when they are 0 and 1 otherwise.
func normalize(v, lo, hi float64) float64 {
	if lo == hi {
		if v == 0 {
			return 0
		}
		return 1
	}
	return (v - lo) / (hi - lo)
}

// Initialize reads every row of tbl and builds a ScorerModel on its columns.
// It returns the model and the advisories collected while building it.
// Reading accounts for 10% of the reported progress, building for the rest.
func Initialize(ctx context.Context, tbl Table, cfg Config, report ProgressFunc) (*ScorerModel, []string, error) {
	m := NewMonitor(ctx, report)
	columns := tbl.Columns()
	if len(columns) == 0 {
		return nil, nil, ErrNoFeatures
	}
	total := tbl.NumRows()
	if total == 0 {
		return nil, nil, ErrEmptyTable
	}
	c, err := NewModelCreator(len(columns), cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := c.SetFeatureNames(columns); err != nil {
		return nil, nil, err
	}

	if err := readRows(ctx, tbl, total, c, m.SubProgress(0.1)); err != nil {
		return nil, nil, err
	}
	model, err := c.Build(m.SubProgress(0.9))
	if err != nil {
		return nil, nil, err
	}
	return model, c.Advisories(), nil
}

func readRows(ctx context.Context, tbl Table, total int, c *ModelCreator, m Monitor) error {
	it, err := tbl.Rows(ctx)
	if err != nil {
		return fmt.Errorf("density: reading table: %w", err)
	}
	defer it.Close()

	for i := 1; it.Next(); i++ {
		if total > 0 {
			if err := stepProgress(m, i, total, "Reading row %d of %d."); err != nil {
				return err
			}
		} else if err := m.CheckCanceled(); err != nil {
			return err
		}
		if err := c.AddRow(it.Row()); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("density: reading table: %w", err)
	}
	return nil
}
