// Package align resolves grid-cell / station / terrain-cell correspondences
// for a single timestamp. Alignment is a pure function of its inputs: stations
// outside the grid, missing readings, and missing grid or terrain values are
// skipped and counted, never raised as errors. An empty result is a valid,
// reportable degenerate case.
package align

import (
	"fmt"
	"time"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

// Mode selects how a station's location resolves to grid values.
type Mode string

const (
	// ModeNearest maps each station to the single cell whose center is
	// closest.
	ModeNearest Mode = "nearest"
	// ModeBilinear blends the four enclosing cells. A station exactly on a
	// cell center receives that cell's value with zero interpolation error.
	ModeBilinear Mode = "bilinear"
)

// ParseMode validates an alignment mode from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNearest, ModeBilinear:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: unknown alignment mode %q", domain.ErrConfig, s)
}

// Aligner joins station observations with grid and terrain values. Zero value
// is not usable; construct with New.
type Aligner struct {
	mode Mode
	lags []time.Duration
}

// New creates an Aligner. lags lists the offsets (e.g. 1h, 3h) for which
// lagged grid values are attached to samples; nil disables lag lookup.
func New(mode Mode, lags []time.Duration) (*Aligner, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	for _, lag := range lags {
		if lag <= 0 {
			return nil, fmt.Errorf("%w: lag offset %s must be positive", domain.ErrConfig, lag)
		}
	}
	return &Aligner{mode: mode, lags: lags}, nil
}

// Align produces the aligned samples for one grid field. Observations must
// carry the grid's variable and timestamp; mismatches are counted as skips so
// that callers can feed unfiltered observation sets. series supplies lagged
// grid fields and may be nil. terrain must share the grid's georeferencing.
func (a *Aligner) Align(grid *domain.GridField, terrain *domain.TerrainField, series domain.GridSeries, obs []domain.StationObservation) ([]domain.AlignedSample, domain.AlignmentReport, error) {
	if !grid.Ref.Equal(terrain.Ref) {
		return nil, domain.AlignmentReport{}, fmt.Errorf("%w: terrain georeferencing differs from grid", domain.ErrConfig)
	}

	var report domain.AlignmentReport
	samples := make([]domain.AlignedSample, 0, len(obs))
	for _, o := range obs {
		o = domain.SanitizeObservation(o)
		sample, outcome := a.alignOne(grid, terrain, series, o)
		switch outcome {
		case outcomeAligned:
			samples = append(samples, sample)
			report.Aligned++
		case outcomeOutOfBounds:
			report.SkippedOutOfBounds++
		case outcomeMissingValue:
			report.SkippedMissingValue++
		case outcomeMissingGrid:
			report.SkippedMissingGrid++
		case outcomeMissingTerrain:
			report.SkippedMissingTerrain++
		case outcomeMismatched:
			report.SkippedMismatched++
		}
	}
	return samples, report, nil
}

// AlignLocations aligns station locations without requiring observed values,
// used at inference time when the engine predicts residuals at stations. The
// observation's Value is ignored.
func (a *Aligner) AlignLocations(grid *domain.GridField, terrain *domain.TerrainField, series domain.GridSeries, stations []domain.StationObservation) ([]domain.AlignedSample, domain.AlignmentReport, error) {
	if !grid.Ref.Equal(terrain.Ref) {
		return nil, domain.AlignmentReport{}, fmt.Errorf("%w: terrain georeferencing differs from grid", domain.ErrConfig)
	}

	var report domain.AlignmentReport
	samples := make([]domain.AlignedSample, 0, len(stations))
	for _, s := range stations {
		s.Value = nil
		s.Variable = grid.Variable
		s.Timestamp = grid.Timestamp
		sample, outcome := a.resolve(grid, terrain, series, s)
		switch outcome {
		case outcomeAligned:
			samples = append(samples, sample)
			report.Aligned++
		case outcomeOutOfBounds:
			report.SkippedOutOfBounds++
		case outcomeMissingGrid:
			report.SkippedMissingGrid++
		case outcomeMissingTerrain:
			report.SkippedMissingTerrain++
		}
	}
	return samples, report, nil
}

type outcome int

const (
	outcomeAligned outcome = iota
	outcomeOutOfBounds
	outcomeMissingValue
	outcomeMissingGrid
	outcomeMissingTerrain
	outcomeMismatched
)

func (a *Aligner) alignOne(grid *domain.GridField, terrain *domain.TerrainField, series domain.GridSeries, o domain.StationObservation) (domain.AlignedSample, outcome) {
	if o.Variable != grid.Variable || !o.Timestamp.UTC().Equal(grid.Timestamp) {
		return domain.AlignedSample{}, outcomeMismatched
	}
	if !o.HasValue() {
		return domain.AlignedSample{}, outcomeMissingValue
	}
	return a.resolve(grid, terrain, series, o)
}

// resolve performs the spatial join for a station already validated against
// the grid's variable and timestamp.
func (a *Aligner) resolve(grid *domain.GridField, terrain *domain.TerrainField, series domain.GridSeries, o domain.StationObservation) (domain.AlignedSample, outcome) {
	row, col, ok := grid.Ref.NearestCell(o.Latitude, o.Longitude)
	if !ok {
		return domain.AlignedSample{}, outcomeOutOfBounds
	}

	gridVal, ok := a.valueAt(grid, o.Latitude, o.Longitude)
	if !ok {
		return domain.AlignedSample{}, outcomeMissingGrid
	}

	cellElev := terrain.ElevationAt(row, col)
	if terrain.IsMissing(cellElev) {
		return domain.AlignedSample{}, outcomeMissingTerrain
	}
	// Slope/aspect can be underivable at cells with missing elevation
	// neighbors even when the cell itself has elevation; a flat cell is the
	// neutral covariate in that case.
	slope := terrain.SlopeAt(row, col)
	aspect := terrain.AspectAt(row, col)
	if terrain.IsMissing(slope) {
		slope = 0
	}
	if terrain.IsMissing(aspect) {
		aspect = 0
	}

	sample := domain.AlignedSample{
		Station:        o,
		GridValue:      gridVal,
		Row:            row,
		Col:            col,
		CellElevation:  cellElev,
		Slope:          slope,
		Aspect:         aspect,
		ElevationDelta: o.Elevation - cellElev,
	}

	if len(a.lags) > 0 {
		sample.LagValues = make([]float64, len(a.lags))
		for i, lag := range a.lags {
			lagGrid := series.At(grid.Timestamp.Add(-lag))
			if lagGrid == nil {
				sample.LagMissing = true
				continue
			}
			v, ok := a.valueAt(lagGrid, o.Latitude, o.Longitude)
			if !ok {
				sample.LagMissing = true
				continue
			}
			sample.LagValues[i] = v
		}
	}

	return sample, outcomeAligned
}

// valueAt resolves the grid value at a point using the configured mode.
// Bilinear requires all contributing cells to be present; a missing corner
// makes the whole lookup missing rather than skewing the blend.
func (a *Aligner) valueAt(grid *domain.GridField, lat, lon float64) (float64, bool) {
	switch a.mode {
	case ModeBilinear:
		w, ok := grid.Ref.Bilinear(lat, lon)
		if !ok {
			return 0, false
		}
		var v float64
		for i := 0; i < 4; i++ {
			cell := grid.At(w.Rows[i], w.Cols[i])
			if w.Weights[i] == 0 {
				continue
			}
			if grid.IsMissing(cell) {
				return 0, false
			}
			v += w.Weights[i] * cell
		}
		return v, true
	default:
		row, col, ok := grid.Ref.NearestCell(lat, lon)
		if !ok {
			return 0, false
		}
		v := grid.At(row, col)
		if grid.IsMissing(v) {
			return 0, false
		}
		return v, true
	}
}
