package evaluate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

type constPredictor struct{ value float64 }

func (p constPredictor) Predict([]float64) float64 { return p.value }
func (p constPredictor) Name() string              { return "const" }

type mapLookup map[domain.ModelKey]domain.CorrectionModel

func (m mapLookup) Get(key domain.ModelKey) (domain.CorrectionModel, bool) {
	model, ok := m[key]
	return model, ok
}

// evalRows builds n rows whose observations sit offset above the raw grid
// value, so a predictor returning offset corrects them exactly.
func evalRows(stationID string, n int, offset float64) []domain.FeatureRow {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]domain.FeatureRow, n)
	for i := range rows {
		baseline := 15.0 + float64(i%24)
		rows[i] = domain.FeatureRow{
			StationID: stationID,
			Variable:  domain.VarTemperature,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Features:  []float64{baseline, float64(i)},
			Baseline:  baseline,
			Target:    baseline + offset,
			HasTarget: true,
		}
	}
	return rows
}

func evalKey(stationID string) domain.ModelKey {
	return domain.ModelKey{Variable: domain.VarTemperature, StationID: stationID, SchemaVersion: 1}
}

func TestStationsReportsImprovement(t *testing.T) {
	key := evalKey("54511")
	rowsByKey := map[domain.ModelKey][]domain.FeatureRow{
		key: evalRows("54511", 48, 1.8),
	}
	models := mapLookup{key: {Key: key, Regressor: constPredictor{value: 1.8}}}

	results := Stations(rowsByKey, models)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, key, r.Key)
	assert.Equal(t, 48, r.Model.N)
	assert.InDelta(t, 0.0, r.Model.RMSE, 1e-9)
	assert.InDelta(t, 1.8, r.Baseline.RMSE, 1e-9)
	assert.True(t, r.ImprovedRMSE)
}

func TestStationsFlagsRegression(t *testing.T) {
	key := evalKey("54511")
	rowsByKey := map[domain.ModelKey][]domain.FeatureRow{
		key: evalRows("54511", 24, 0.5),
	}
	// Overcorrecting by 4x leaves the corrected values worse than raw.
	models := mapLookup{key: {Key: key, Regressor: constPredictor{value: 2.0}}}

	results := Stations(rowsByKey, models)
	require.Len(t, results, 1)
	assert.False(t, results[0].ImprovedRMSE)
	assert.Greater(t, results[0].Model.RMSE, results[0].Baseline.RMSE)
}

func TestStationsSkipsSparseAndModelless(t *testing.T) {
	trained := evalKey("54511")
	sparse := evalKey("54623")
	orphan := evalKey("58847")
	rowsByKey := map[domain.ModelKey][]domain.FeatureRow{
		trained: evalRows("54511", 24, 1.0),
		sparse:  evalRows("54623", 5, 1.0),
		orphan:  evalRows("58847", 24, 1.0),
	}
	models := mapLookup{
		trained: {Key: trained, Regressor: constPredictor{value: 1.0}},
		sparse:  {Key: sparse, Regressor: constPredictor{value: 1.0}},
	}

	results := Stations(rowsByKey, models)
	require.Len(t, results, 1)
	assert.Equal(t, trained, results[0].Key)
}

func TestStationsSkipsRowsWithoutTargets(t *testing.T) {
	key := evalKey("54511")
	rows := evalRows("54511", 12, 1.0)
	for i := range rows[:4] {
		rows[i].HasTarget = false
	}
	rowsByKey := map[domain.ModelKey][]domain.FeatureRow{key: rows}
	models := mapLookup{key: {Key: key, Regressor: constPredictor{value: 1.0}}}

	// Eight usable rows remain, below the evaluation minimum.
	assert.Empty(t, Stations(rowsByKey, models))
}

func TestStationsResultsSortedByKey(t *testing.T) {
	ids := []string{"58847", "54511", "54623"}
	rowsByKey := make(map[domain.ModelKey][]domain.FeatureRow, len(ids))
	models := mapLookup{}
	for _, id := range ids {
		key := evalKey(id)
		rowsByKey[key] = evalRows(id, 24, 1.0)
		models[key] = domain.CorrectionModel{Key: key, Regressor: constPredictor{value: 1.0}}
	}

	results := Stations(rowsByKey, models)
	require.Len(t, results, 3)
	assert.Equal(t, "54511", results[0].Key.StationID)
	assert.Equal(t, "54623", results[1].Key.StationID)
	assert.Equal(t, "58847", results[2].Key.StationID)
}
