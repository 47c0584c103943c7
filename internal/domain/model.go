package domain

import (
	"fmt"
	"time"
)

// Predictor is the trained-model handle the correction engine calls. Any
// regressor satisfying fit/predict is interchangeable; nothing outside the
// regressor package may assume a particular model family.
type Predictor interface {
	Predict(features []float64) float64
	Name() string
}

// ModelKey identifies one trained model: (variable, station, feature schema).
// Pooled models use PooledStationID in place of a station.
type ModelKey struct {
	Variable      Variable `json:"variable"`
	StationID     string   `json:"station_id"`
	SchemaVersion int      `json:"schema_version"`
}

// PooledStationID keys models trained jointly over all stations of a variable.
const PooledStationID = "*"

func (k ModelKey) String() string {
	return fmt.Sprintf("%s/%s/v%d", k.Variable, k.StationID, k.SchemaVersion)
}

// MetricSummary is the shared evaluation result: mean bias (MBE), mean
// absolute error, root mean square error, mean relative error, Pearson
// correlation, and coefficient of determination over N pairs.
type MetricSummary struct {
	N    int     `json:"n"`
	Bias float64 `json:"bias"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MRE  float64 `json:"mre"`
	Corr float64 `json:"corr"`
	R2   float64 `json:"r2"`
}

// CorrectionModel owns one trained regressor and its provenance. Read-only
// after training; retraining supersedes the registry entry.
type CorrectionModel struct {
	Key       ModelKey  `json:"key"`
	Version   string    `json:"version"` // UUID per training run
	TrainedAt time.Time `json:"trained_at"`

	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TrainRows  int       `json:"train_rows"`
	ValRows    int       `json:"val_rows"`

	// Validation holds held-out metrics for the corrected values; Baseline
	// holds the same metrics for the uncorrected grid, so improvement is
	// always measurable relative to doing nothing.
	Validation MetricSummary `json:"validation"`
	Baseline   MetricSummary `json:"baseline"`

	Regressor Predictor `json:"-"`
}

// TrainingStatus classifies the per-key outcome of a training pass.
type TrainingStatus string

const (
	// StatusTrained means a model was fitted and stored.
	StatusTrained TrainingStatus = "trained"
	// StatusUntrained means the key had fewer valid rows than the configured
	// minimum; correction falls back to identity for this key.
	StatusUntrained TrainingStatus = "untrained"
)

// TrainingOutcome reports one (station, variable) key's result.
type TrainingOutcome struct {
	Key        ModelKey       `json:"key"`
	Status     TrainingStatus `json:"status"`
	Rows       int            `json:"rows"`
	Version    string         `json:"version,omitempty"`
	Validation MetricSummary  `json:"validation,omitempty"`
	Baseline   MetricSummary  `json:"baseline,omitempty"`
}

// TrainingReport aggregates a training pass.
type TrainingReport struct {
	Outcomes []TrainingOutcome `json:"outcomes"`
}

// Trained counts successfully trained keys.
func (r TrainingReport) Trained() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusTrained {
			n++
		}
	}
	return n
}

// UntrainedKeys lists keys that fell back to identity correction.
func (r TrainingReport) UntrainedKeys() []ModelKey {
	var keys []ModelKey
	for _, o := range r.Outcomes {
		if o.Status == StatusUntrained {
			keys = append(keys, o.Key)
		}
	}
	return keys
}

// CorrectionReport describes one corrected grid.
type CorrectionReport struct {
	Variable     Variable  `json:"variable"`
	Timestamp    time.Time `json:"timestamp"`
	StationsUsed int       `json:"stations_used"`
	// Identity is true when no trained models covered this grid and the raw
	// field was returned unmodified.
	Identity     bool     `json:"identity"`
	ClampedCells int      `json:"clamped_cells"`
	Untrained    []string `json:"untrained_stations,omitempty"`
}

// CorrectedGrid is the engine's output: a field with identical shape and
// georeferencing to the input, plus its report.
type CorrectedGrid struct {
	Field  *GridField
	Report CorrectionReport
}

// StationResult compares one station's corrected values against the raw grid
// over an evaluation set.
type StationResult struct {
	Key      ModelKey      `json:"key"`
	Model    MetricSummary `json:"model"`
	Baseline MetricSummary `json:"baseline"`
	// ImprovedRMSE is the headline improvement flag; the full summaries let
	// callers compare any metric.
	ImprovedRMSE bool `json:"improved_rmse"`
}

// RunReport is the full account of one correction run, returned to the
// caller and published to the report sink. Every fallback path taken by the
// core is visible here.
type RunReport struct {
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Alignment   AlignmentReport    `json:"alignment"`
	Training    TrainingReport     `json:"training"`
	Evaluation  []StationResult    `json:"evaluation,omitempty"`
	Corrections []CorrectionReport `json:"corrections"`
}
