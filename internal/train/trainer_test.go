package train

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziheng1027/gridcorrect/internal/domain"
	"github.com/ziheng1027/gridcorrect/internal/feature"
	"github.com/ziheng1027/gridcorrect/internal/regress"
	"github.com/ziheng1027/gridcorrect/internal/registry"
)

func testConfig() Config {
	return Config{
		ValidationFraction: 0.2,
		MinSamples:         10,
		Season:             SeasonAll,
		Pooling:            PoolingStation,
		Workers:            2,
	}
}

func testRegressorConfig() regress.Config {
	return regress.Config{Name: regress.NameLeastSquares, Ridge: 1e-6, Neighbors: 5}
}

// biasedRows builds n hourly rows where the station consistently observes the
// grid value plus a constant offset.
func biasedRows(stationID string, n int, offset float64) []domain.FeatureRow {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]domain.FeatureRow, n)
	for i := range rows {
		baseline := 15.0 + float64(i%24)
		rows[i] = domain.FeatureRow{
			StationID: stationID,
			Variable:  domain.VarTemperature,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Features:  []float64{baseline, 120, 118, 2, 0.5, 180, 0, 1, 0, 1, 39.9, 116.4},
			Baseline:  baseline,
			Target:    baseline + offset,
			HasTarget: true,
		}
	}
	return rows
}

func tableFor(rows []domain.FeatureRow) feature.PivotTable {
	table := make(feature.PivotTable)
	for _, row := range rows {
		key := domain.ModelKey{Variable: row.Variable, StationID: row.StationID, SchemaVersion: 1}
		table[key] = append(table[key], row)
	}
	return table
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(c *Config) {}},
		{name: "fraction zero", mutate: func(c *Config) { c.ValidationFraction = 0 }, wantErr: true},
		{name: "fraction one", mutate: func(c *Config) { c.ValidationFraction = 1 }, wantErr: true},
		{name: "min samples too small", mutate: func(c *Config) { c.MinSamples = 1 }, wantErr: true},
		{name: "unknown season", mutate: func(c *Config) { c.Season = "monsoon" }, wantErr: true},
		{name: "unknown pooling", mutate: func(c *Config) { c.Pooling = "region" }, wantErr: true},
		{name: "negative workers", mutate: func(c *Config) { c.Workers = -1 }, wantErr: true},
		{name: "negative window", mutate: func(c *Config) { c.WindowHours = -24 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTrainLearnsConstantBias(t *testing.T) {
	reg := registry.NewMemory()
	trainer, err := New(testConfig(), testRegressorConfig(), reg, slog.Default())
	require.NoError(t, err)

	rows := biasedRows("54511", 200, 2.5)
	report, err := trainer.Train(context.Background(), tableFor(rows), 1)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, domain.StatusTrained, outcome.Status)
	assert.NotEmpty(t, outcome.Version)

	// A constant bias is fully explainable, so the corrected RMSE must be
	// well under the uncorrected baseline's 2.5.
	assert.Less(t, outcome.Validation.RMSE, outcome.Baseline.RMSE)
	assert.Less(t, outcome.Validation.RMSE, 0.1)
	assert.InDelta(t, 2.5, outcome.Baseline.RMSE, 1e-6)

	model, ok := reg.Get(outcome.Key)
	require.True(t, ok)
	assert.InDelta(t, 2.5, model.Regressor.Predict(rows[0].Features), 0.05)
}

func TestTrainSkipsSparseKeys(t *testing.T) {
	reg := registry.NewMemory()
	trainer, err := New(testConfig(), testRegressorConfig(), reg, slog.Default())
	require.NoError(t, err)

	table := tableFor(biasedRows("sparse", 3, 1.0))
	table.Merge(tableFor(biasedRows("dense", 100, 1.0)))

	report, err := trainer.Train(context.Background(), table, 1)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)

	// Sparse key is reported untrained, not silently dropped, and nothing is
	// written to the registry for it.
	untrained := report.UntrainedKeys()
	require.Len(t, untrained, 1)
	assert.Equal(t, "sparse", untrained[0].StationID)
	assert.Equal(t, 1, report.Trained())
	assert.Equal(t, 1, reg.Len())
}

func TestTrainChronologicalSplit(t *testing.T) {
	reg := registry.NewMemory()
	cfg := testConfig()
	cfg.ValidationFraction = 0.25
	trainer, err := New(cfg, testRegressorConfig(), reg, slog.Default())
	require.NoError(t, err)

	rows := biasedRows("54511", 100, 1.0)
	report, err := trainer.Train(context.Background(), tableFor(rows), 1)
	require.NoError(t, err)

	outcome := report.Outcomes[0]
	assert.Equal(t, domain.StatusTrained, outcome.Status)

	model, ok := reg.Get(outcome.Key)
	require.True(t, ok)
	assert.Equal(t, 75, model.TrainRows)
	assert.Equal(t, 25, model.ValRows)
	// The validation window is the most recent slice: training ends exactly
	// where the held-out rows begin.
	assert.Equal(t, rows[74].Timestamp, model.TrainEnd)
	assert.Equal(t, rows[0].Timestamp, model.TrainStart)
}

func TestTrainSeasonFilter(t *testing.T) {
	reg := registry.NewMemory()
	cfg := testConfig()
	cfg.Season = SeasonWinter
	trainer, err := New(cfg, testRegressorConfig(), reg, slog.Default())
	require.NoError(t, err)

	// All rows fall in June, so a winter-only run trains nothing.
	report, err := trainer.Train(context.Background(), tableFor(biasedRows("54511", 100, 1.0)), 1)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, domain.StatusUntrained, report.Outcomes[0].Status)
	assert.Zero(t, report.Outcomes[0].Rows)
}

func TestTrainWindowFilter(t *testing.T) {
	reg := registry.NewMemory()
	cfg := testConfig()
	cfg.WindowHours = 24
	trainer, err := New(cfg, testRegressorConfig(), reg, slog.Default())
	require.NoError(t, err)

	// 100 hourly rows, but only the trailing 24 hours are inside the window.
	rows := biasedRows("54511", 100, 1.0)
	report, err := trainer.Train(context.Background(), tableFor(rows), 1)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, domain.StatusTrained, outcome.Status)
	assert.Equal(t, 24, outcome.Rows)

	model, ok := reg.Get(outcome.Key)
	require.True(t, ok)
	assert.True(t, model.TrainStart.Equal(rows[76].Timestamp))
}

func TestTrainPooledVariant(t *testing.T) {
	reg := registry.NewMemory()
	cfg := testConfig()
	cfg.Pooling = PoolingVariable
	trainer, err := New(cfg, testRegressorConfig(), reg, slog.Default())
	require.NoError(t, err)

	table := tableFor(biasedRows("a", 50, 2.0))
	table.Merge(tableFor(biasedRows("b", 50, 2.0)))

	report, err := trainer.Train(context.Background(), table, 1)
	require.NoError(t, err)

	// Two stations collapse to a single pooled key.
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, domain.PooledStationID, report.Outcomes[0].Key.StationID)
	assert.Equal(t, 100, report.Outcomes[0].Rows)
}

func TestSplitChronologicalBounds(t *testing.T) {
	rows := biasedRows("x", 10, 0)

	trainRows, valRows := splitChronological(rows, 0.01)
	assert.Len(t, trainRows, 9)
	assert.Len(t, valRows, 1)

	trainRows, valRows = splitChronological(rows, 0.99)
	assert.Len(t, trainRows, 1)
	assert.Len(t, valRows, 9)
}
