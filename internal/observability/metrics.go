package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// correction service.
type Metrics struct {
	RunsCompleted prometheus.Counter
	RunsFailed    prometheus.Counter
	RunDuration   prometheus.Histogram
	EngineRunning prometheus.Gauge

	// Alignment metrics.
	SamplesAligned prometheus.Counter
	SamplesSkipped *prometheus.CounterVec // label: reason={out_of_bounds,missing_value,missing_grid,missing_terrain,mismatched}

	// Training metrics.
	ModelsTrained    prometheus.Counter
	ModelsUntrained  prometheus.Counter
	TrainingDuration prometheus.Histogram

	// Correction metrics.
	FieldsCorrected     prometheus.Counter
	IdentityCorrections prometheus.Counter
	ClampedCells        prometheus.Counter
	CorrectionDuration  prometheus.Histogram

	// Report sink metrics.
	ReportsPublished prometheus.Counter
	ReportErrors     prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "runs_completed_total",
			Help:      "Total correction runs completed.",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "runs_failed_total",
			Help:      "Total correction runs aborted by an error.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridcorrect",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete align-train-correct run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridcorrect",
			Name:      "engine_running",
			Help:      "1 when the service is active, 0 when shut down.",
		}),
		SamplesAligned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "samples_aligned_total",
			Help:      "Total station observations joined with grid and terrain values.",
		}),
		SamplesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "samples_skipped_total",
			Help:      "Station observations excluded from alignment by reason.",
		}, []string{"reason"}),
		ModelsTrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "models_trained_total",
			Help:      "Total correction models fitted and stored.",
		}),
		ModelsUntrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "models_untrained_total",
			Help:      "Total keys skipped for insufficient samples.",
		}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridcorrect",
			Name:      "training_duration_seconds",
			Help:      "Duration of a full training pass across all keys.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		FieldsCorrected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "fields_corrected_total",
			Help:      "Total grid fields run through the correction engine.",
		}),
		IdentityCorrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "identity_corrections_total",
			Help:      "Grid fields returned unmodified because no trained models covered them.",
		}),
		ClampedCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "clamped_cells_total",
			Help:      "Corrected cells clipped to the variable's physical bounds.",
		}),
		CorrectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridcorrect",
			Name:      "correction_duration_seconds",
			Help:      "Duration of correcting a single grid field.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ReportsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "reports_published_total",
			Help:      "Run reports delivered to the report sink.",
		}),
		ReportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridcorrect",
			Name:      "report_errors_total",
			Help:      "Failures delivering run reports.",
		}),
	}

	prometheus.MustRegister(
		m.RunsCompleted,
		m.RunsFailed,
		m.RunDuration,
		m.EngineRunning,
		m.SamplesAligned,
		m.SamplesSkipped,
		m.ModelsTrained,
		m.ModelsUntrained,
		m.TrainingDuration,
		m.FieldsCorrected,
		m.IdentityCorrections,
		m.ClampedCells,
		m.CorrectionDuration,
		m.ReportsPublished,
		m.ReportErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RunsCompleted:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "runs_completed_total"}),
		RunsFailed:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "runs_failed_total"}),
		RunDuration:         prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "gridcorrect", Name: "run_duration_seconds"}),
		EngineRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gridcorrect", Name: "engine_running"}),
		SamplesAligned:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "samples_aligned_total"}),
		SamplesSkipped:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "samples_skipped_total"}, []string{"reason"}),
		ModelsTrained:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "models_trained_total"}),
		ModelsUntrained:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "models_untrained_total"}),
		TrainingDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "gridcorrect", Name: "training_duration_seconds"}),
		FieldsCorrected:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "fields_corrected_total"}),
		IdentityCorrections: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "identity_corrections_total"}),
		ClampedCells:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "clamped_cells_total"}),
		CorrectionDuration:  prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "gridcorrect", Name: "correction_duration_seconds"}),
		ReportsPublished:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "reports_published_total"}),
		ReportErrors:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridcorrect", Name: "report_errors_total"}),
	}
}
