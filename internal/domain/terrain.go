package domain

import (
	"fmt"
	"math"
)

// metersPerDegreeLat approximates the meridional length of one degree.
const metersPerDegreeLat = 111320.0

// TerrainField holds static elevation and its derived slope/aspect rasters on
// the same GridRef as the grid fields it corrects. Built once per process and
// shared read-only.
type TerrainField struct {
	Ref     GridRef
	Missing float64

	elevation []float64
	slope     []float64 // degrees from horizontal
	aspect    []float64 // downslope direction, degrees clockwise from north
}

// NewTerrainField validates the elevation raster and derives slope and aspect
// by central differences (one-sided at edges). Cells with a missing elevation
// neighbor get missing slope/aspect.
func NewTerrainField(ref GridRef, missing float64, elevation []float64) (*TerrainField, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if len(elevation) != ref.Rows*ref.Cols {
		return nil, fmt.Errorf("%w: %d elevation values for %dx%d grid", ErrShape, len(elevation), ref.Rows, ref.Cols)
	}

	t := &TerrainField{
		Ref:       ref,
		Missing:   missing,
		elevation: elevation,
		slope:     make([]float64, len(elevation)),
		aspect:    make([]float64, len(elevation)),
	}
	t.deriveSlopeAspect()
	return t, nil
}

// ElevationAt returns the elevation at (row, col).
func (t *TerrainField) ElevationAt(row, col int) float64 { return t.elevation[row*t.Ref.Cols+col] }

// SlopeAt returns the slope in degrees at (row, col).
func (t *TerrainField) SlopeAt(row, col int) float64 { return t.slope[row*t.Ref.Cols+col] }

// AspectAt returns the aspect in degrees at (row, col). Flat cells report 0.
func (t *TerrainField) AspectAt(row, col int) float64 { return t.aspect[row*t.Ref.Cols+col] }

// IsMissing reports whether v is the terrain's missing sentinel or NaN.
func (t *TerrainField) IsMissing(v float64) bool {
	return v == t.Missing || math.IsNaN(v)
}

func (t *TerrainField) deriveSlopeAspect() {
	dyMeters := t.Ref.CellSizeLat * metersPerDegreeLat
	for r := 0; r < t.Ref.Rows; r++ {
		lat, _ := t.Ref.CellCenter(r, 0)
		dxMeters := t.Ref.CellSizeLon * metersPerDegreeLat * math.Cos(lat*math.Pi/180)
		if dxMeters <= 0 {
			dxMeters = dyMeters
		}
		for c := 0; c < t.Ref.Cols; c++ {
			i := r*t.Ref.Cols + c
			dzdx, okX := t.gradient(r, c, 0, 1, dxMeters)
			dzdy, okY := t.gradient(r, c, 1, 0, dyMeters)
			if !okX || !okY {
				t.slope[i] = t.Missing
				t.aspect[i] = t.Missing
				continue
			}
			t.slope[i] = math.Atan(math.Hypot(dzdx, dzdy)) * 180 / math.Pi
			if dzdx == 0 && dzdy == 0 {
				t.aspect[i] = 0
				continue
			}
			// Downslope direction, clockwise from north. Rows advance north,
			// so +dzdy points north.
			az := math.Atan2(-dzdx, dzdy) * 180 / math.Pi
			az = 180 - az
			for az < 0 {
				az += 360
			}
			for az >= 360 {
				az -= 360
			}
			t.aspect[i] = az
		}
	}
}

// gradient computes a finite difference along (dr, dc), falling back to
// one-sided differences at grid edges.
func (t *TerrainField) gradient(r, c, dr, dc int, spacing float64) (float64, bool) {
	rp, cp := r+dr, c+dc
	rm, cm := r-dr, c-dc
	hasPlus := rp >= 0 && rp < t.Ref.Rows && cp >= 0 && cp < t.Ref.Cols
	hasMinus := rm >= 0 && rm < t.Ref.Rows && cm >= 0 && cm < t.Ref.Cols

	center := t.ElevationAt(r, c)
	if t.IsMissing(center) {
		return 0, false
	}

	var plus, minus float64
	if hasPlus {
		plus = t.ElevationAt(rp, cp)
		if t.IsMissing(plus) {
			hasPlus = false
		}
	}
	if hasMinus {
		minus = t.ElevationAt(rm, cm)
		if t.IsMissing(minus) {
			hasMinus = false
		}
	}

	switch {
	case hasPlus && hasMinus:
		return (plus - minus) / (2 * spacing), true
	case hasPlus:
		return (plus - center) / spacing, true
	case hasMinus:
		return (center - minus) / spacing, true
	}
	return 0, false
}
