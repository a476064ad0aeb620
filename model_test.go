package density

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLineModel builds the model of the points 0, 1, 2, 10 and 11 with
// radius alpha 1.5 and replaces its potentials.
func newLineModel(t *testing.T, potentials ...float64) *ScorerModel {
	t.Helper()
	built, _, err := Initialize(context.Background(), lineTable(0, 1, 2, 10, 11), lineConfig(1.5), nil)
	require.NoError(t, err)
	model, err := NewScorerModel(potentials, built.NeighborhoodModel(), 1, []string{"x"})
	require.NoError(t, err)
	return model
}

func TestScorerModel_UpdateNeighbors(t *testing.T) {
	model := newLineModel(t, 0.5, 1, 0.8, 0.3, 0.2)
	require.NoError(t, model.UpdateNeighbors("x1"))

	// beta = 4 / 1.875^2, both neighbors are at distance 1
	dec := math.Exp(-4 / (1.875 * 1.875))
	assert.InDeltaSlice(t, []float64{0.5 - dec, 0, 0.8 - dec, 0.3, 0.2}, model.Potentials(), 1e-12)
}

func TestScorerModel_UpdateNeighborsClampsAtZero(t *testing.T) {
	model := newLineModel(t, 0.1, 1, 0.8, 0.3, 0.2)
	require.NoError(t, model.UpdateNeighbors("x1"))

	p, err := model.Potential("x0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)

	// Consuming a row with zero potential changes nothing.
	before := model.Potentials()
	require.NoError(t, model.UpdateNeighbors("x1"))
	assert.Equal(t, before, model.Potentials())
}

func TestScorerModel_UpdateNeighborsUnknownRow(t *testing.T) {
	model := newLineModel(t, 0.5, 1, 0.8, 0.3, 0.2)
	err := model.UpdateNeighbors("missing")
	require.ErrorIs(t, err, ErrUnknownRow)
	key, ok := UnknownKey(err)
	assert.True(t, ok)
	assert.Equal(t, "missing", key)
	assert.Equal(t, []float64{0.5, 1, 0.8, 0.3, 0.2}, model.Potentials())
}

func TestScorerModel_PotentialsNeverIncrease(t *testing.T) {
	n, dims := 100, 2
	data := randomData(n, dims, 21)
	tbl := &memTable{columns: []string{"a", "b"}, numRows: n}
	for i := 0; i < n; i++ {
		tbl.rows = append(tbl.rows, Row{Key: string(rune('A' + i)), Cells: []Cell{Float(data[2*i]), Float(data[2*i+1])}})
	}

	for _, kernel := range []Kernel{PotentialKernel{RadiusAlpha: 0.2}, GraphKernel{Sigma: 0.3, Neighbors: 5}} {
		cfg := DefaultConfig()
		cfg.Kernel = kernel
		model, _, err := Initialize(context.Background(), tbl, cfg, nil)
		require.NoError(t, err)

		rng := rand.New(rand.NewSource(3))
		keys := model.NeighborhoodModel().Keys()
		for step := 0; step < 40; step++ {
			before := model.Potentials()
			key := keys[rng.Intn(len(keys))]
			require.NoError(t, model.UpdateNeighbors(key))
			after := model.Potentials()

			p, err := model.Potential(key)
			require.NoError(t, err)
			assert.Equal(t, 0.0, p, "%T: consumed row %s keeps potential", kernel, key)
			for i := range after {
				assert.LessOrEqual(t, after[i], before[i], "%T: potential %d increased", kernel, i)
				assert.GreaterOrEqual(t, after[i], 0.0)
			}
		}
	}
}

func TestScorerModel_UpdateBatch(t *testing.T) {
	model := newLineModel(t, 0.5, 1, 0.8, 0.3, 0.2)

	report, err := model.UpdateBatch(NopMonitor(), []string{"x3", "unknown", "x1"}, Ignore)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Ignored)
	assert.Equal(t, "1 row is ignored during the update because it is unknown to the model.", report.Advisory())

	dec := math.Exp(-4 / (1.875 * 1.875))
	assert.InDeltaSlice(t, []float64{0.5 - dec, 0, 0.8 - dec, 0, max(0, 0.2-0.3*dec)}, model.Potentials(), 1e-12)
}

func TestScorerModel_UpdateBatchSeveralUnknown(t *testing.T) {
	model := newLineModel(t, 0.5, 1, 0.8, 0.3, 0.2)
	report, err := model.UpdateBatch(NopMonitor(), []string{"a", "b"}, Ignore)
	require.NoError(t, err)
	assert.Equal(t, "2 rows are ignored during the update because they are unknown to the model.", report.Advisory())
}

func TestScorerModel_UpdateBatchFailRestores(t *testing.T) {
	model := newLineModel(t, 0.5, 1, 0.8, 0.3, 0.2)

	_, err := model.UpdateBatch(NopMonitor(), []string{"x1", "nope", "x3"}, Fail)
	require.ErrorIs(t, err, ErrUnknownRow)
	assert.EqualError(t, err, `density: unknown row "nope" in input table`)
	assert.Equal(t, []float64{0.5, 1, 0.8, 0.3, 0.2}, model.Potentials())
}

func TestScorerModel_UpdateBatchCanceledRestores(t *testing.T) {
	model := newLineModel(t, 0.5, 1, 0.8, 0.3, 0.2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := model.UpdateBatch(NewMonitor(ctx, nil), []string{"x1"}, Fail)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []float64{0.5, 1, 0.8, 0.3, 0.2}, model.Potentials())
}

func TestScorerModel_UpdateBatchEmpty(t *testing.T) {
	model := newLineModel(t, 0.5, 1, 0.8, 0.3, 0.2)
	report, err := model.UpdateBatch(NopMonitor(), nil, Fail)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Empty(t, report.Advisory())
}

func TestScorerModel_ScoreBatch(t *testing.T) {
	model := newLineModel(t, 0.5, 1, 0.8, 0.3, 0.2)

	scores, report, err := model.ScoreBatch([]string{"x2", "zz", "x0"}, Ignore)
	require.NoError(t, err)
	assert.Equal(t, []Score{
		{Key: "x2", Potential: 0.8, Known: true},
		{Key: "zz"},
		{Key: "x0", Potential: 0.5, Known: true},
	}, scores)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, "1 row is scored as missing because it is unknown to the model.", report.Advisory())

	_, _, err = model.ScoreBatch([]string{"x2", "zz"}, Fail)
	require.ErrorIs(t, err, ErrUnknownRow)
	key, ok := UnknownKey(err)
	assert.True(t, ok)
	assert.Equal(t, "zz", key)
}

func TestScorerModel_ConcurrentUpdates(t *testing.T) {
	model := newLineModel(t, 0.5, 1, 0.8, 0.3, 0.2)
	keys := model.NeighborhoodModel().Keys()

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, model.UpdateNeighbors(key))
		}()
		go func() {
			defer wg.Done()
			_, _, err := model.ScoreBatch(keys, Fail)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every row was consumed.
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, model.Potentials())
}

func TestScorerModel_CheckCompatible(t *testing.T) {
	model := newLineModel(t, 0, 1, 0, 0, 0)
	assert.NoError(t, model.CheckCompatible([]string{"y", "x"}))
	assert.ErrorIs(t, model.CheckCompatible([]string{"y"}), ErrIncompatibleFeatures)

	unnamed, err := NewScorerModel(model.Potentials(), model.NeighborhoodModel(), 2, nil)
	require.NoError(t, err)
	assert.NoError(t, unnamed.CheckCompatible([]string{"a", "b", "c"}))
	assert.ErrorIs(t, unnamed.CheckCompatible([]string{"a"}), ErrIncompatibleFeatures)
	assert.Nil(t, unnamed.Features())
}

func TestNewScorerModel_Mismatch(t *testing.T) {
	model := newLineModel(t, 0, 1, 0, 0, 0)
	_, err := NewScorerModel([]float64{1}, model.NeighborhoodModel(), 1, nil)
	assert.ErrorIs(t, err, ErrCorruptModel)
	_, err = NewScorerModel(model.Potentials(), model.NeighborhoodModel(), 1, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrCorruptModel)
}

func TestScorerModel_Accessors(t *testing.T) {
	model := newLineModel(t, 0, 1, 0, 0, 0)
	assert.Equal(t, model.NeighborhoodModel().ID(), model.ID())
	assert.Equal(t, 5, model.NrRows())
	assert.Equal(t, 1, model.NrFeatures())

	features := model.Features()
	features[0] = "changed"
	assert.Equal(t, []string{"x"}, model.Features())

	_, err := model.Potential("x9")
	assert.ErrorIs(t, err, ErrUnknownRow)
}

func TestNeighborhoodModel_SquaredDistances(t *testing.T) {
	model := newLineModel(t, 0, 1, 0, 0, 0)
	nm := model.NeighborhoodModel()

	for _, tt := range []struct {
		i, j int
		want float64
		ok   bool
	}{
		{0, 1, 1, true},
		{1, 0, 1, true},
		{1, 2, 1, true},
		{2, 1, 1, true},
		{3, 4, 1, true},
		{0, 2, 0, false},
		{2, 3, 0, false},
	} {
		got, ok := nm.PairSquaredDistance(tt.i, tt.j)
		assert.Equal(t, tt.ok, ok, "(%d, %d)", tt.i, tt.j)
		assert.Equal(t, tt.want, got, "(%d, %d)", tt.i, tt.j)
	}
	assert.Equal(t, "x3", nm.Key(3))
	idx, err := nm.Index("x4")
	require.NoError(t, err)
	assert.Equal(t, 4, idx)
}

func TestPotentialUpdater(t *testing.T) {
	potentials := []float64{0.5, 0.2}
	u := NewPotentialUpdater(potentials)
	assert.Equal(t, 2, u.Len())

	u.DecreasePotential(0, 0.2)
	u.DecreasePotential(1, 0.7)
	assert.InDeltaSlice(t, []float64{0.3, 0}, potentials, 1e-15)
	assert.Equal(t, 0.0, u.Potential(1))

	assert.Panics(t, func() { u.DecreasePotential(0, -0.1) })
	assert.Panics(t, func() { u.DecreasePotential(0, math.NaN()) })
}
