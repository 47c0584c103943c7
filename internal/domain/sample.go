package domain

import "time"

// AlignedSample joins one station observation with the grid and terrain
// values at the station's location for one timestamp. Exactly one exists per
// (station, variable, timestamp) where both sides have data.
type AlignedSample struct {
	Station StationObservation

	// GridValue is the raw (uncorrected) grid value at the station, resolved
	// by nearest-cell or bilinear interpolation.
	GridValue float64

	// Row/Col index the matched (nearest) cell.
	Row, Col int

	CellElevation  float64
	Slope          float64
	Aspect         float64
	ElevationDelta float64 // station elevation minus matched-cell elevation

	// LagValues holds the grid value at the station for each configured lag
	// offset, in schema order. Empty when no lags are configured.
	LagValues []float64

	// LagMissing is true when any configured lag field was unavailable.
	LagMissing bool
}

// AlignmentReport aggregates per-sample skip accounting for one alignment
// pass. Skips are valid degenerate outcomes, not errors.
type AlignmentReport struct {
	Aligned               int `json:"aligned"`
	SkippedOutOfBounds    int `json:"skipped_out_of_bounds"`
	SkippedMissingValue   int `json:"skipped_missing_value"`
	SkippedMissingGrid    int `json:"skipped_missing_grid"`
	SkippedMissingTerrain int `json:"skipped_missing_terrain"`
	SkippedMismatched     int `json:"skipped_mismatched"`
}

// Merge adds another report's counts into r.
func (r *AlignmentReport) Merge(o AlignmentReport) {
	r.Aligned += o.Aligned
	r.SkippedOutOfBounds += o.SkippedOutOfBounds
	r.SkippedMissingValue += o.SkippedMissingValue
	r.SkippedMissingGrid += o.SkippedMissingGrid
	r.SkippedMissingTerrain += o.SkippedMissingTerrain
	r.SkippedMismatched += o.SkippedMismatched
}

// Skipped is the total number of excluded samples.
func (r AlignmentReport) Skipped() int {
	return r.SkippedOutOfBounds + r.SkippedMissingValue + r.SkippedMissingGrid +
		r.SkippedMissingTerrain + r.SkippedMismatched
}

// FeatureRow is the flattened numeric vector the regressors consume. Feature
// order is fixed by the schema version; rows with the same schema version are
// directly comparable.
type FeatureRow struct {
	StationID string    `json:"station_id"`
	Variable  Variable  `json:"variable"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`

	Features []float64 `json:"features"`

	// Baseline is the raw grid value at the station's location; Target is the
	// observed station value. The model learns Target - Baseline.
	Baseline  float64 `json:"baseline"`
	Target    float64 `json:"target"`
	HasTarget bool    `json:"has_target"`
}

// Residual is the training target: observation minus raw grid value.
func (r FeatureRow) Residual() float64 { return r.Target - r.Baseline }
