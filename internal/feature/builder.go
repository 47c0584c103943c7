package feature

import (
	"math"
	"sort"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

// Builder maps aligned samples to feature rows under a fixed schema.
type Builder struct {
	schema Schema
}

// NewBuilder validates the schema and returns a Builder.
func NewBuilder(schema Schema) (*Builder, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Builder{schema: schema}, nil
}

// Schema returns the builder's schema.
func (b *Builder) Schema() Schema { return b.schema }

// Row builds a training row. ok is false when the sample must be excluded:
// missing target, or a configured lag unavailable — excluded, never imputed,
// so training cannot learn from synthetic zeros.
func (b *Builder) Row(s domain.AlignedSample) (domain.FeatureRow, bool) {
	if !s.Station.HasValue() {
		return domain.FeatureRow{}, false
	}
	row, ok := b.buildRow(s)
	if !ok {
		return domain.FeatureRow{}, false
	}
	row.Target = *s.Station.Value
	row.HasTarget = true
	return row, true
}

// InferenceRow builds a row without a target, for predicting residuals at a
// station location during correction.
func (b *Builder) InferenceRow(s domain.AlignedSample) (domain.FeatureRow, bool) {
	return b.buildRow(s)
}

func (b *Builder) buildRow(s domain.AlignedSample) (domain.FeatureRow, bool) {
	if s.LagMissing {
		return domain.FeatureRow{}, false
	}
	if len(b.schema.LagHours) > 0 && len(s.LagValues) != len(b.schema.LagHours) {
		return domain.FeatureRow{}, false
	}

	ts := s.Station.Timestamp.UTC()
	hourAngle := 2 * math.Pi * float64(ts.Hour()) / 24
	doyAngle := 2 * math.Pi * float64(ts.YearDay()-1) / 365

	features := make([]float64, 0, b.schema.FeatureCount())
	features = append(features,
		s.GridValue,
		s.Station.Elevation,
		s.CellElevation,
		s.ElevationDelta,
		s.Slope,
		s.Aspect,
		math.Sin(hourAngle),
		math.Cos(hourAngle),
		math.Sin(doyAngle),
		math.Cos(doyAngle),
		s.Station.Latitude,
		s.Station.Longitude,
	)
	features = append(features, s.LagValues...)

	return domain.FeatureRow{
		StationID: s.Station.StationID,
		Variable:  s.Station.Variable,
		Timestamp: ts,
		Latitude:  s.Station.Latitude,
		Longitude: s.Station.Longitude,
		Features:  features,
		Baseline:  s.GridValue,
	}, true
}

// PivotTable groups feature rows by model key. Within a key, insertion order
// is preserved — it carries the temporal ordering the trainer's
// chronological split depends on.
type PivotTable map[domain.ModelKey][]domain.FeatureRow

// Pivot builds training rows from samples and groups them by (station,
// variable, schema version). Returns the table and the count of excluded
// samples.
func (b *Builder) Pivot(samples []domain.AlignedSample) (PivotTable, int) {
	table := make(PivotTable)
	excluded := 0
	for _, s := range samples {
		row, ok := b.Row(s)
		if !ok {
			excluded++
			continue
		}
		key := domain.ModelKey{
			Variable:      row.Variable,
			StationID:     row.StationID,
			SchemaVersion: b.schema.Version,
		}
		table[key] = append(table[key], row)
	}
	return table, excluded
}

// Merge folds another pivot table into t, appending rows in call order.
// Callers feeding timestamps in chronological order keep series ordered.
func (t PivotTable) Merge(o PivotTable) {
	for k, rows := range o {
		t[k] = append(t[k], rows...)
	}
}

// Pooled collapses the table to one key per variable, concatenating all
// stations' rows and re-sorting by timestamp so the chronological split stays
// meaningful. Used when the run is configured to train pooled models to
// combat sparse per-station samples.
func (t PivotTable) Pooled(schemaVersion int) PivotTable {
	pooled := make(PivotTable)
	for k, rows := range t {
		pk := domain.ModelKey{Variable: k.Variable, StationID: domain.PooledStationID, SchemaVersion: schemaVersion}
		pooled[pk] = append(pooled[pk], rows...)
	}
	for _, rows := range pooled {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	}
	return pooled
}
