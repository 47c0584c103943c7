// Package feature turns aligned samples into the flattened numeric rows the
// regressors consume, and pivots them into per-station time series. Building
// is deterministic for a fixed schema version: the same samples always yield
// bit-identical rows.
package feature

import (
	"fmt"
	"time"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

// SchemaVersion1 is the current covariate layout.
const SchemaVersion1 = 1

// baseFeatureNames is the fixed covariate order of schema v1. Lag covariates
// follow, one per configured lag hour.
var baseFeatureNames = []string{
	"grid_value",
	"station_elevation",
	"cell_elevation",
	"elevation_delta",
	"slope",
	"aspect",
	"hour_sin",
	"hour_cos",
	"doy_sin",
	"doy_cos",
	"latitude",
	"longitude",
}

// Schema fixes the covariate layout for a run. Rows built under different
// schemas are never comparable; the schema version is part of every model key.
type Schema struct {
	Version  int   `json:"version"`
	LagHours []int `json:"lag_hours,omitempty"`
}

// Validate rejects unknown versions and non-positive lags.
func (s Schema) Validate() error {
	if s.Version != SchemaVersion1 {
		return fmt.Errorf("%w: unknown feature schema version %d", domain.ErrConfig, s.Version)
	}
	for _, h := range s.LagHours {
		if h <= 0 {
			return fmt.Errorf("%w: lag hours must be positive, got %d", domain.ErrConfig, h)
		}
	}
	return nil
}

// LagOffsets converts the configured lag hours to durations for the aligner.
func (s Schema) LagOffsets() []time.Duration {
	if len(s.LagHours) == 0 {
		return nil
	}
	out := make([]time.Duration, len(s.LagHours))
	for i, h := range s.LagHours {
		out[i] = time.Duration(h) * time.Hour
	}
	return out
}

// FeatureCount is the length of every feature vector under this schema.
func (s Schema) FeatureCount() int { return len(baseFeatureNames) + len(s.LagHours) }

// Names returns the ordered covariate names, for diagnostics and reports.
func (s Schema) Names() []string {
	names := make([]string, 0, s.FeatureCount())
	names = append(names, baseFeatureNames...)
	for _, h := range s.LagHours {
		names = append(names, fmt.Sprintf("grid_value_lag_%dh", h))
	}
	return names
}
