// Package train fits one correction model per (station, variable) key from
// pivoted feature rows. Training is embarrassingly parallel across keys: each
// key is a pure function of its own rows, and the registry is the only shared
// resource.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ziheng1027/gridcorrect/internal/domain"
	"github.com/ziheng1027/gridcorrect/internal/evaluate"
	"github.com/ziheng1027/gridcorrect/internal/feature"
	"github.com/ziheng1027/gridcorrect/internal/regress"
	"github.com/ziheng1027/gridcorrect/internal/registry"
)

// Pooling modes: per-station models (baseline) or one model per variable
// trained over all stations' rows.
const (
	PoolingStation  = "station"
	PoolingVariable = "variable"
)

// Season filters restrict training to a meteorological season.
const (
	SeasonAll    = "all"
	SeasonSpring = "spring" // Mar-May
	SeasonSummer = "summer" // Jun-Aug
	SeasonAutumn = "autumn" // Sep-Nov
	SeasonWinter = "winter" // Dec-Feb
)

// Config holds the training options enumerated by the configuration boundary.
type Config struct {
	// ValidationFraction is the most-recent share of each key's time-ordered
	// rows held out for validation. The split is chronological, never random:
	// meteorological autocorrelation makes a random split leak future
	// information into training.
	ValidationFraction float64 `koanf:"validation_fraction" json:"validation_fraction"`

	// MinSamples is the minimum valid rows per key; keys below it are
	// reported untrained and fall back to identity correction.
	MinSamples int `koanf:"min_samples" json:"min_samples"`

	// WindowHours bounds the training window: only rows within this many
	// hours of each key's newest row are used. 0 keeps the full history.
	WindowHours int `koanf:"window_hours" json:"window_hours"`

	Season  string `koanf:"season" json:"season"`
	Pooling string `koanf:"pooling" json:"pooling"`

	// Workers bounds concurrent key training; 0 means GOMAXPROCS.
	Workers int `koanf:"workers" json:"workers"`
}

// Validate rejects out-of-range options. Fatal at the point of use.
func (c Config) Validate() error {
	if c.ValidationFraction <= 0 || c.ValidationFraction >= 1 {
		return fmt.Errorf("%w: validation_fraction %.3f outside (0,1)", domain.ErrConfig, c.ValidationFraction)
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("%w: min_samples %d must be at least 2", domain.ErrConfig, c.MinSamples)
	}
	if c.WindowHours < 0 {
		return fmt.Errorf("%w: window_hours %d must be >= 0", domain.ErrConfig, c.WindowHours)
	}
	switch c.Season {
	case SeasonAll, SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter:
	default:
		return fmt.Errorf("%w: unknown season %q", domain.ErrConfig, c.Season)
	}
	switch c.Pooling {
	case PoolingStation, PoolingVariable:
	default:
		return fmt.Errorf("%w: unknown pooling mode %q", domain.ErrConfig, c.Pooling)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d must be >= 0", domain.ErrConfig, c.Workers)
	}
	return nil
}

// Trainer fits models and writes them to the registry.
type Trainer struct {
	cfg    Config
	regCfg regress.Config
	reg    registry.Registry
	logger *slog.Logger
}

// New validates configuration and returns a Trainer.
func New(cfg Config, regCfg regress.Config, reg registry.Registry, logger *slog.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := regCfg.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{cfg: cfg, regCfg: regCfg, reg: reg, logger: logger}, nil
}

// Train fits every key in the pivot table on a bounded worker pool and
// reports the per-key outcomes in deterministic key order. Every skipped key
// is reported, never silent.
func (t *Trainer) Train(ctx context.Context, table feature.PivotTable, schemaVersion int) (domain.TrainingReport, error) {
	if t.cfg.Pooling == PoolingVariable {
		table = table.Pooled(schemaVersion)
	}

	keys := make([]domain.ModelKey, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	workers := t.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]domain.TrainingOutcome, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcome, err := t.trainKey(key, table[key])
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.TrainingReport{}, err
	}

	report := domain.TrainingReport{Outcomes: outcomes}
	t.logger.Info("training pass complete",
		"keys", len(keys),
		"trained", report.Trained(),
		"untrained", len(keys)-report.Trained(),
	)
	return report, nil
}

func (t *Trainer) trainKey(key domain.ModelKey, rows []domain.FeatureRow) (domain.TrainingOutcome, error) {
	rows = filterSeason(rows, t.cfg.Season)
	rows = filterWindow(rows, t.cfg.WindowHours)

	if len(rows) < t.cfg.MinSamples {
		t.logger.Warn("insufficient samples, falling back to identity correction",
			"key", key.String(), "rows", len(rows), "min_samples", t.cfg.MinSamples)
		return domain.TrainingOutcome{Key: key, Status: domain.StatusUntrained, Rows: len(rows)}, nil
	}

	trainRows, valRows := splitChronological(rows, t.cfg.ValidationFraction)

	features := make([][]float64, len(trainRows))
	residuals := make([]float64, len(trainRows))
	for i, row := range trainRows {
		features[i] = row.Features
		residuals[i] = row.Residual()
	}

	reg, err := regress.New(t.regCfg)
	if err != nil {
		return domain.TrainingOutcome{}, err
	}
	if err := reg.Fit(features, residuals); err != nil {
		return domain.TrainingOutcome{}, fmt.Errorf("train %s: %w", key, err)
	}

	observed := make([]float64, len(valRows))
	corrected := make([]float64, len(valRows))
	baseline := make([]float64, len(valRows))
	for i, row := range valRows {
		observed[i] = row.Target
		baseline[i] = row.Baseline
		corrected[i] = row.Baseline + reg.Predict(row.Features)
	}

	model := domain.CorrectionModel{
		Key:        key,
		Version:    uuid.NewString(),
		TrainedAt:  domain.Now(),
		TrainStart: trainRows[0].Timestamp,
		TrainEnd:   trainRows[len(trainRows)-1].Timestamp,
		TrainRows:  len(trainRows),
		ValRows:    len(valRows),
		Validation: evaluate.Summarize(observed, corrected),
		Baseline:   evaluate.Summarize(observed, baseline),
		Regressor:  reg,
	}
	if err := t.reg.Put(model); err != nil {
		return domain.TrainingOutcome{}, fmt.Errorf("store %s: %w", key, err)
	}

	t.logger.Debug("trained key",
		"key", key.String(),
		"train_rows", model.TrainRows,
		"val_rows", model.ValRows,
		"rmse", model.Validation.RMSE,
		"baseline_rmse", model.Baseline.RMSE,
	)
	return domain.TrainingOutcome{
		Key:        key,
		Status:     domain.StatusTrained,
		Rows:       len(rows),
		Version:    model.Version,
		Validation: model.Validation,
		Baseline:   model.Baseline,
	}, nil
}

// splitChronological holds out the most recent fraction of time-ordered rows.
// At least one row lands on each side.
func splitChronological(rows []domain.FeatureRow, fraction float64) (trainRows, valRows []domain.FeatureRow) {
	n := len(rows)
	valN := int(math.Round(float64(n) * fraction))
	if valN < 1 {
		valN = 1
	}
	if valN >= n {
		valN = n - 1
	}
	return rows[:n-valN], rows[n-valN:]
}

// filterWindow keeps rows within windowHours of the newest row. Rows arrive
// time-ordered, so the window is a suffix.
func filterWindow(rows []domain.FeatureRow, windowHours int) []domain.FeatureRow {
	if windowHours == 0 || len(rows) == 0 {
		return rows
	}
	cutoff := rows[len(rows)-1].Timestamp.Add(-time.Duration(windowHours) * time.Hour)
	for i, row := range rows {
		if row.Timestamp.After(cutoff) {
			return rows[i:]
		}
	}
	return rows[len(rows)-1:]
}

// filterSeason keeps rows whose month falls inside the season, preserving
// order. "all" keeps everything.
func filterSeason(rows []domain.FeatureRow, season string) []domain.FeatureRow {
	if season == SeasonAll {
		return rows
	}
	out := make([]domain.FeatureRow, 0, len(rows))
	for _, row := range rows {
		if inSeason(row.Timestamp.Month(), season) {
			out = append(out, row)
		}
	}
	return out
}

func inSeason(m time.Month, season string) bool {
	switch season {
	case SeasonSpring:
		return m >= time.March && m <= time.May
	case SeasonSummer:
		return m >= time.June && m <= time.August
	case SeasonAutumn:
		return m >= time.September && m <= time.November
	case SeasonWinter:
		return m == time.December || m == time.January || m == time.February
	}
	return true
}
