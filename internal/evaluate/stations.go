package evaluate

import (
	"sort"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

// ModelLookup resolves a trained model for a key; absence means identity
// correction. Satisfied by the registry.
type ModelLookup interface {
	Get(key domain.ModelKey) (domain.CorrectionModel, bool)
}

// minEvalRows skips stations with too few rows for a meaningful comparison.
const minEvalRows = 10

// Stations evaluates every keyed row group against its trained model,
// reporting model-vs-baseline metrics per station. Keys without a model or
// with fewer than 10 rows are skipped. Results are ordered by key for
// deterministic reports.
func Stations(rowsByKey map[domain.ModelKey][]domain.FeatureRow, models ModelLookup) []domain.StationResult {
	keys := make([]domain.ModelKey, 0, len(rowsByKey))
	for k := range rowsByKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var results []domain.StationResult
	for _, key := range keys {
		rows := rowsByKey[key]
		if len(rows) < minEvalRows {
			continue
		}
		model, ok := models.Get(key)
		if !ok {
			continue
		}

		observed := make([]float64, 0, len(rows))
		corrected := make([]float64, 0, len(rows))
		baseline := make([]float64, 0, len(rows))
		for _, row := range rows {
			if !row.HasTarget {
				continue
			}
			observed = append(observed, row.Target)
			baseline = append(baseline, row.Baseline)
			corrected = append(corrected, row.Baseline+model.Regressor.Predict(row.Features))
		}
		if len(observed) < minEvalRows {
			continue
		}

		modelSummary := Summarize(observed, corrected)
		baseSummary := Summarize(observed, baseline)
		results = append(results, domain.StationResult{
			Key:          key,
			Model:        modelSummary,
			Baseline:     baseSummary,
			ImprovedRMSE: Improved("rmse", modelSummary, baseSummary),
		})
	}
	return results
}
