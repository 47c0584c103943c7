package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziheng1027/gridcorrect/internal/domain"
	"github.com/ziheng1027/gridcorrect/internal/regress"
)

func testKey(stationID string) domain.ModelKey {
	return domain.ModelKey{Variable: domain.VarTemperature, StationID: stationID, SchemaVersion: 1}
}

// fittedModel trains a small least-squares regressor so registry round trips
// exercise real state serialization.
func fittedModel(t *testing.T, key domain.ModelKey, version string) domain.CorrectionModel {
	t.Helper()
	reg := regress.NewLeastSquares(0)
	features := [][]float64{{1, 0}, {0, 1}, {1, 1}, {2, 1}}
	targets := []float64{2, 3, 5, 7}
	require.NoError(t, reg.Fit(features, targets))

	trainedAt := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	return domain.CorrectionModel{
		Key:        key,
		Version:    version,
		TrainedAt:  trainedAt,
		TrainStart: trainedAt.Add(-30 * 24 * time.Hour),
		TrainEnd:   trainedAt.Add(-time.Hour),
		TrainRows:  4,
		ValRows:    1,
		Validation: domain.MetricSummary{N: 1, RMSE: 0.2},
		Baseline:   domain.MetricSummary{N: 1, RMSE: 1.4},
		Regressor:  reg,
	}
}

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory()
	key := testKey("54511")

	_, ok := m.Get(key)
	assert.False(t, ok)
	assert.Zero(t, m.Len())

	model := fittedModel(t, key, "v1")
	require.NoError(t, m.Put(model))

	got, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, "v1", got.Version)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryPutSupersedes(t *testing.T) {
	m := NewMemory()
	key := testKey("54511")
	require.NoError(t, m.Put(fittedModel(t, key, "v1")))
	require.NoError(t, m.Put(fittedModel(t, key, "v2")))

	got, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, "v2", got.Version)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryKeysSorted(t *testing.T) {
	m := NewMemory()
	for _, id := range []string{"58847", "54511", "54623"} {
		require.NoError(t, m.Put(fittedModel(t, testKey(id), "v1")))
	}

	keys := m.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, "54511", keys[0].StationID)
	assert.Equal(t, "54623", keys[1].StationID)
	assert.Equal(t, "58847", keys[2].StationID)
}
