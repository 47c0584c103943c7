// Package pipeline orchestrates a correction run: align station observations
// with raw grids, build features, train per-key models, correct every
// requested field, and deliver the run report. The stages themselves live in
// their own packages; the pipeline owns sequencing, observability, and the
// fallback accounting the report surfaces.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ziheng1027/gridcorrect/internal/align"
	"github.com/ziheng1027/gridcorrect/internal/correct"
	"github.com/ziheng1027/gridcorrect/internal/domain"
	"github.com/ziheng1027/gridcorrect/internal/evaluate"
	"github.com/ziheng1027/gridcorrect/internal/feature"
	"github.com/ziheng1027/gridcorrect/internal/observability"
	"github.com/ziheng1027/gridcorrect/internal/train"
)

// Inputs is one run's worth of data, assembled by a Source.
type Inputs struct {
	// Terrain shares the grids' georeferencing.
	Terrain *domain.TerrainField

	// Series holds the raw grid fields per variable, keyed by timestamp.
	Series map[domain.Variable]domain.GridSeries

	// Observations is the historical station record used for training. Any
	// observation without a matching grid field is ignored.
	Observations []domain.StationObservation

	// Stations lists the locations where residuals are predicted during
	// correction. Values are ignored; typically the same stations that
	// contributed observations.
	Stations []domain.StationObservation

	// CorrectTimes selects the timestamps to correct. Empty corrects every
	// field in Series.
	CorrectTimes []time.Time
}

// Source assembles a run's inputs.
type Source interface {
	Fetch(ctx context.Context) (Inputs, error)
}

// Sink receives corrected fields and the final run report.
type Sink interface {
	WriteField(ctx context.Context, grid domain.CorrectedGrid) error
	WriteReport(ctx context.Context, report domain.RunReport) error
}

// Runner executes correction runs.
type Runner struct {
	source  Source
	sink    Sink
	aligner *align.Aligner
	builder *feature.Builder
	trainer *train.Trainer
	engine  *correct.Engine
	models  evaluate.ModelLookup
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
	last    atomic.Pointer[domain.RunReport]
}

// New creates a Runner with the given stages and observability. models is the
// registry the trainer writes into; the run report's per-station evaluation
// reads from it.
func New(source Source, sink Sink, aligner *align.Aligner, builder *feature.Builder, trainer *train.Trainer, engine *correct.Engine, models evaluate.ModelLookup, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		source:  source,
		sink:    sink,
		aligner: aligner,
		builder: builder,
		trainer: trainer,
		engine:  engine,
		models:  models,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once at least one run has completed.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no correction run has completed yet")
	}
	return nil
}

// LastReport returns the most recent completed run's report.
func (r *Runner) LastReport() (domain.RunReport, bool) {
	report := r.last.Load()
	if report == nil {
		return domain.RunReport{}, false
	}
	return *report, true
}

// Run executes one complete correction run and returns its report. Report
// delivery failure does not fail the run: the report is still returned and
// the error is counted and logged.
func (r *Runner) Run(ctx context.Context) (domain.RunReport, error) {
	start := domain.Now()
	r.logger.Info("correction run started")

	report, err := r.run(ctx)
	report.StartedAt = start
	report.FinishedAt = domain.Now()
	if err != nil {
		r.metrics.RunsFailed.Inc()
		return report, err
	}

	r.metrics.RunsCompleted.Inc()
	r.metrics.RunDuration.Observe(report.FinishedAt.Sub(start).Seconds())
	r.ready.Store(true)
	r.last.Store(&report)

	if err := r.sink.WriteReport(ctx, report); err != nil {
		r.metrics.ReportErrors.Inc()
		r.logger.Warn("report delivery failed", "error", err)
	} else {
		r.metrics.ReportsPublished.Inc()
	}

	r.logger.Info("correction run finished",
		"aligned", report.Alignment.Aligned,
		"skipped", report.Alignment.Skipped(),
		"trained", report.Training.Trained(),
		"fields_corrected", len(report.Corrections),
		"duration", report.FinishedAt.Sub(start),
	)
	return report, nil
}

func (r *Runner) run(ctx context.Context) (domain.RunReport, error) {
	var report domain.RunReport

	inputs, err := r.source.Fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch inputs: %w", err)
	}

	table, alignment, err := r.buildTrainingTable(inputs)
	if err != nil {
		return report, err
	}
	report.Alignment = alignment
	r.observeAlignment(alignment)

	trainStart := domain.Now()
	training, err := r.trainer.Train(ctx, table, r.builder.Schema().Version)
	if err != nil {
		return report, fmt.Errorf("training: %w", err)
	}
	report.Training = training
	r.metrics.TrainingDuration.Observe(domain.Now().Sub(trainStart).Seconds())
	r.metrics.ModelsTrained.Add(float64(training.Trained()))
	r.metrics.ModelsUntrained.Add(float64(len(training.Outcomes) - training.Trained()))

	report.Evaluation = evaluate.Stations(table, r.models)

	corrections, err := r.correctFields(ctx, inputs)
	if err != nil {
		return report, err
	}
	report.Corrections = corrections
	return report, nil
}

// buildTrainingTable aligns every grid field with its matching observations
// and pivots the samples into per-key training rows. Fields are visited in
// chronological order so each key's rows stay time-ordered for the trainer's
// split.
func (r *Runner) buildTrainingTable(inputs Inputs) (feature.PivotTable, domain.AlignmentReport, error) {
	obsByKey := groupObservations(inputs.Observations)

	table := make(feature.PivotTable)
	var alignment domain.AlignmentReport
	excluded := 0

	for _, variable := range sortedVariables(inputs.Series) {
		series := inputs.Series[variable]
		for _, ts := range sortedTimes(series, nil) {
			grid := series.At(ts)
			obs := obsByKey[obsKey{variable: variable, ts: ts}]
			if len(obs) == 0 {
				continue
			}
			samples, rep, err := r.aligner.Align(grid, inputs.Terrain, series, obs)
			if err != nil {
				return nil, domain.AlignmentReport{}, fmt.Errorf("align %s at %s: %w", variable, ts, err)
			}
			alignment.Merge(rep)

			fieldTable, n := r.builder.Pivot(samples)
			excluded += n
			table.Merge(fieldTable)
		}
	}

	if excluded > 0 {
		r.logger.Debug("samples excluded from training table", "count", excluded)
	}
	if alignment.Aligned == 0 {
		// Degenerate but valid: the run proceeds and every key falls back to
		// identity correction.
		r.logger.Warn("no observations aligned with any grid field")
	}
	return table, alignment, nil
}

// correctFields runs the engine over every requested field in deterministic
// order and streams the results to the sink.
func (r *Runner) correctFields(ctx context.Context, inputs Inputs) ([]domain.CorrectionReport, error) {
	var reports []domain.CorrectionReport
	for _, variable := range sortedVariables(inputs.Series) {
		series := inputs.Series[variable]
		for _, ts := range sortedTimes(series, inputs.CorrectTimes) {
			grid := series.At(ts)
			if grid == nil {
				continue
			}

			fieldStart := domain.Now()
			out, err := r.engine.Correct(ctx, grid, inputs.Terrain, series, inputs.Stations)
			if err != nil {
				return nil, fmt.Errorf("correct %s at %s: %w", variable, ts, err)
			}
			r.metrics.FieldsCorrected.Inc()
			r.metrics.CorrectionDuration.Observe(domain.Now().Sub(fieldStart).Seconds())
			r.metrics.ClampedCells.Add(float64(out.Report.ClampedCells))
			if out.Report.Identity {
				r.metrics.IdentityCorrections.Inc()
			}

			if err := r.sink.WriteField(ctx, out); err != nil {
				return nil, fmt.Errorf("write corrected field %s at %s: %w", variable, ts, err)
			}
			reports = append(reports, out.Report)
		}
	}
	return reports, nil
}

func (r *Runner) observeAlignment(rep domain.AlignmentReport) {
	r.metrics.SamplesAligned.Add(float64(rep.Aligned))
	r.metrics.SamplesSkipped.WithLabelValues("out_of_bounds").Add(float64(rep.SkippedOutOfBounds))
	r.metrics.SamplesSkipped.WithLabelValues("missing_value").Add(float64(rep.SkippedMissingValue))
	r.metrics.SamplesSkipped.WithLabelValues("missing_grid").Add(float64(rep.SkippedMissingGrid))
	r.metrics.SamplesSkipped.WithLabelValues("missing_terrain").Add(float64(rep.SkippedMissingTerrain))
	r.metrics.SamplesSkipped.WithLabelValues("mismatched").Add(float64(rep.SkippedMismatched))
}

type obsKey struct {
	variable domain.Variable
	ts       time.Time
}

func groupObservations(obs []domain.StationObservation) map[obsKey][]domain.StationObservation {
	grouped := make(map[obsKey][]domain.StationObservation)
	for _, o := range obs {
		key := obsKey{variable: o.Variable, ts: o.Timestamp.UTC()}
		grouped[key] = append(grouped[key], o)
	}
	return grouped
}

func sortedVariables(series map[domain.Variable]domain.GridSeries) []domain.Variable {
	vars := make([]domain.Variable, 0, len(series))
	for v := range series {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	return vars
}

// sortedTimes returns the series' timestamps in chronological order. A
// non-empty filter restricts the result to the requested timestamps.
func sortedTimes(series domain.GridSeries, filter []time.Time) []time.Time {
	var times []time.Time
	if len(filter) > 0 {
		for _, ts := range filter {
			if series.At(ts) != nil {
				times = append(times, ts.UTC())
			}
		}
	} else {
		for ts := range series {
			times = append(times, ts)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}
