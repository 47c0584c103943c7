// Package correct applies trained correction models to full grid fields. The
// engine predicts residuals at station locations, spreads them across the grid
// with inverse-distance weighting, and clamps the result to each variable's
// physical bounds. It never fails a run for missing models: uncovered grids
// fall back to identity correction and the report says so.
package correct

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ziheng1027/gridcorrect/internal/align"
	"github.com/ziheng1027/gridcorrect/internal/domain"
	"github.com/ziheng1027/gridcorrect/internal/feature"
)

// ModelSource resolves trained models. Satisfied by registry implementations.
type ModelSource interface {
	Get(key domain.ModelKey) (domain.CorrectionModel, bool)
}

// Config holds the interpolation options.
type Config struct {
	// Exponent is the inverse-distance power. Larger values localize each
	// station's influence.
	Exponent float64 `koanf:"exponent" json:"exponent"`

	// Neighbors caps the stations contributing to each cell; 0 uses all.
	Neighbors int `koanf:"neighbors" json:"neighbors"`

	// DecayDistance relaxes the interpolated residual toward zero for cells
	// far from every station, in grid degrees: a cell at this distance from a
	// lone station receives half that station's residual, and the correction
	// vanishes with further distance. 0 disables relaxation, giving pure
	// normalized inverse-distance weights.
	DecayDistance float64 `koanf:"decay_distance" json:"decay_distance"`

	// Workers bounds concurrent row processing; 0 means GOMAXPROCS.
	Workers int `koanf:"workers" json:"workers"`
}

// Validate rejects out-of-range options.
func (c Config) Validate() error {
	if c.Exponent <= 0 {
		return fmt.Errorf("%w: idw exponent %.3f must be positive", domain.ErrConfig, c.Exponent)
	}
	if c.Neighbors < 0 {
		return fmt.Errorf("%w: idw neighbors %d must be >= 0", domain.ErrConfig, c.Neighbors)
	}
	if c.DecayDistance < 0 {
		return fmt.Errorf("%w: idw decay distance %.3f must be >= 0", domain.ErrConfig, c.DecayDistance)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d must be >= 0", domain.ErrConfig, c.Workers)
	}
	return nil
}

// Engine corrects grid fields using models from a source.
type Engine struct {
	cfg     Config
	aligner *align.Aligner
	builder *feature.Builder
	models  ModelSource
	bounds  map[domain.Variable]domain.Bounds
	logger  *slog.Logger
}

// New validates configuration and returns an Engine. bounds may omit
// variables; fields of an unbounded variable are corrected without clamping.
func New(cfg Config, aligner *align.Aligner, builder *feature.Builder, models ModelSource, bounds map[domain.Variable]domain.Bounds, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for v, b := range bounds {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("bounds for %s: %w", v, err)
		}
	}
	return &Engine{cfg: cfg, aligner: aligner, builder: builder, models: models, bounds: bounds, logger: logger}, nil
}

// residualPoint is one station's predicted residual, anchored at its location.
type residualPoint struct {
	lat, lon float64
	residual float64
}

// Correct produces a corrected copy of the grid field. The input field is
// never mutated; the output shares its georeferencing, timestamp, and missing
// sentinel, and every missing input cell stays missing. stations supplies the
// locations where residuals are predicted — their Value is ignored. series
// supplies lagged grid fields when the feature schema uses lags and may be
// nil otherwise.
func (e *Engine) Correct(ctx context.Context, grid *domain.GridField, terrain *domain.TerrainField, series domain.GridSeries, stations []domain.StationObservation) (domain.CorrectedGrid, error) {
	report := domain.CorrectionReport{
		Variable:  grid.Variable,
		Timestamp: grid.Timestamp,
	}

	samples, _, err := e.aligner.AlignLocations(grid, terrain, series, stations)
	if err != nil {
		return domain.CorrectedGrid{}, err
	}

	points := make([]residualPoint, 0, len(samples))
	for _, s := range samples {
		row, ok := e.builder.InferenceRow(s)
		if !ok {
			continue
		}
		model, ok := e.lookup(grid.Variable, s.Station.StationID)
		if !ok {
			report.Untrained = append(report.Untrained, s.Station.StationID)
			continue
		}
		points = append(points, residualPoint{
			lat:      s.Station.Latitude,
			lon:      s.Station.Longitude,
			residual: model.Regressor.Predict(row.Features),
		})
	}
	sort.Strings(report.Untrained)
	report.StationsUsed = len(points)

	if len(points) == 0 {
		// No trained coverage: the raw field passes through unchanged. Fields
		// are immutable, so returning the input is safe.
		report.Identity = true
		e.logger.Warn("no trained models cover grid, returning identity correction",
			"variable", grid.Variable, "timestamp", grid.Timestamp)
		return domain.CorrectedGrid{Field: grid, Report: report}, nil
	}

	bounds, hasBounds := e.bounds[grid.Variable]

	workers := e.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	values := make([]float64, grid.Ref.Rows*grid.Ref.Cols)
	clamped := make([]int, grid.Ref.Rows)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for row := 0; row < grid.Ref.Rows; row++ {
		g.Go(func() error {
			for col := 0; col < grid.Ref.Cols; col++ {
				idx := row*grid.Ref.Cols + col
				raw := grid.At(row, col)
				if grid.IsMissing(raw) {
					values[idx] = grid.Missing
					continue
				}
				lat, lon := grid.Ref.CellCenter(row, col)
				v := raw + e.interpolate(lat, lon, points)
				if hasBounds {
					var hit bool
					if v, hit = bounds.Clamp(v); hit {
						clamped[row]++
					}
				}
				values[idx] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.CorrectedGrid{}, err
	}
	for _, n := range clamped {
		report.ClampedCells += n
	}

	field, err := domain.NewGridField(grid.Ref, grid.Variable, grid.Timestamp, grid.Missing, values)
	if err != nil {
		return domain.CorrectedGrid{}, err
	}

	e.logger.Debug("corrected grid field",
		"variable", grid.Variable,
		"timestamp", grid.Timestamp,
		"stations_used", report.StationsUsed,
		"clamped_cells", report.ClampedCells,
	)
	return domain.CorrectedGrid{Field: field, Report: report}, nil
}

// lookup resolves the station's model, falling back to the variable's pooled
// model when no per-station model exists.
func (e *Engine) lookup(variable domain.Variable, stationID string) (domain.CorrectionModel, bool) {
	version := e.builder.Schema().Version
	key := domain.ModelKey{Variable: variable, StationID: stationID, SchemaVersion: version}
	if m, ok := e.models.Get(key); ok {
		return m, true
	}
	key.StationID = domain.PooledStationID
	return e.models.Get(key)
}

// interpolate estimates the residual at a point by inverse-distance weighting
// over the nearest residual points. A cell coinciding with one or more
// stations takes the equal-weight mean of those stations' residuals rather
// than a divergent weight.
func (e *Engine) interpolate(lat, lon float64, points []residualPoint) float64 {
	type weighted struct {
		dist float64
		idx  int
	}
	nearest := make([]weighted, len(points))
	for i, p := range points {
		nearest[i] = weighted{dist: planarDistance(lat, lon, p.lat, p.lon), idx: i}
	}
	if e.cfg.Neighbors > 0 && e.cfg.Neighbors < len(nearest) {
		sort.Slice(nearest, func(i, j int) bool { return nearest[i].dist < nearest[j].dist })
		nearest = nearest[:e.cfg.Neighbors]
	}

	const coincident = 1e-9
	var exactSum float64
	exactN := 0
	for _, w := range nearest {
		if w.dist < coincident {
			exactSum += points[w.idx].residual
			exactN++
		}
	}
	if exactN > 0 {
		return exactSum / float64(exactN)
	}

	var num, den float64
	for _, w := range nearest {
		weight := 1 / math.Pow(w.dist, e.cfg.Exponent)
		num += weight * points[w.idx].residual
		den += weight
	}
	if e.cfg.DecayDistance > 0 {
		// A zero-residual anchor at the decay distance pulls remote cells
		// back toward the raw grid instead of extrapolating the nearest
		// station's residual across the whole field.
		den += 1 / math.Pow(e.cfg.DecayDistance, e.cfg.Exponent)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// planarDistance approximates the distance between two points in degrees with
// the longitude span scaled by the cosine of latitude. Adequate at the
// regional scales these grids cover.
func planarDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat1 - lat2
	dLon := (lon1 - lon2) * math.Cos(lat1*math.Pi/180)
	return math.Sqrt(dLat*dLat + dLon*dLon)
}
