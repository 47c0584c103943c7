package domain

import (
	"fmt"
	"math"
	"time"
)

// GridRef georeferences a regular lat/lon grid. OriginLat/OriginLon is the
// center of cell (0,0); row r is at OriginLat + r*CellSizeLat, column c at
// OriginLon + c*CellSizeLon. Cell sizes are positive degrees.
type GridRef struct {
	OriginLat   float64 `json:"origin_lat"`
	OriginLon   float64 `json:"origin_lon"`
	CellSizeLat float64 `json:"cell_size_lat"`
	CellSizeLon float64 `json:"cell_size_lon"`
	Rows        int     `json:"rows"`
	Cols        int     `json:"cols"`
}

// Validate rejects degenerate grids.
func (g GridRef) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("%w: grid %dx%d", ErrConfig, g.Rows, g.Cols)
	}
	if g.CellSizeLat <= 0 || g.CellSizeLon <= 0 {
		return fmt.Errorf("%w: cell size %.6f x %.6f must be positive", ErrConfig, g.CellSizeLat, g.CellSizeLon)
	}
	return nil
}

// Equal reports whether two references describe the same grid.
func (g GridRef) Equal(o GridRef) bool {
	return g.Rows == o.Rows && g.Cols == o.Cols &&
		g.OriginLat == o.OriginLat && g.OriginLon == o.OriginLon &&
		g.CellSizeLat == o.CellSizeLat && g.CellSizeLon == o.CellSizeLon
}

// CellCenter returns the coordinates of a cell's center.
func (g GridRef) CellCenter(row, col int) (lat, lon float64) {
	return g.OriginLat + float64(row)*g.CellSizeLat, g.OriginLon + float64(col)*g.CellSizeLon
}

// NearestCell maps a point to the cell whose center is closest. ok is false
// when the point lies outside the grid's bounding box (half a cell beyond the
// outermost centers).
func (g GridRef) NearestCell(lat, lon float64) (row, col int, ok bool) {
	fr := (lat - g.OriginLat) / g.CellSizeLat
	fc := (lon - g.OriginLon) / g.CellSizeLon
	if fr < -0.5 || fr > float64(g.Rows-1)+0.5 || fc < -0.5 || fc > float64(g.Cols-1)+0.5 {
		return 0, 0, false
	}
	row = int(math.Round(fr))
	col = int(math.Round(fc))
	if row < 0 {
		row = 0
	} else if row >= g.Rows {
		row = g.Rows - 1
	}
	if col < 0 {
		col = 0
	} else if col >= g.Cols {
		col = g.Cols - 1
	}
	return row, col, true
}

// BilinearWeights holds the four enclosing cells of a point and their
// interpolation weights. A point exactly on a cell center puts full weight on
// that cell.
type BilinearWeights struct {
	Rows    [4]int
	Cols    [4]int
	Weights [4]float64
}

// Bilinear computes interpolation weights for a point. Points between the
// outermost cell centers and the grid edge are clamped onto the edge cells.
// ok is false outside the grid's bounding box.
func (g GridRef) Bilinear(lat, lon float64) (BilinearWeights, bool) {
	fr := (lat - g.OriginLat) / g.CellSizeLat
	fc := (lon - g.OriginLon) / g.CellSizeLon
	if fr < -0.5 || fr > float64(g.Rows-1)+0.5 || fc < -0.5 || fc > float64(g.Cols-1)+0.5 {
		return BilinearWeights{}, false
	}
	if fr < 0 {
		fr = 0
	} else if fr > float64(g.Rows-1) {
		fr = float64(g.Rows - 1)
	}
	if fc < 0 {
		fc = 0
	} else if fc > float64(g.Cols-1) {
		fc = float64(g.Cols - 1)
	}

	r0 := int(math.Floor(fr))
	c0 := int(math.Floor(fc))
	if r0 >= g.Rows-1 {
		r0 = g.Rows - 1
	}
	if c0 >= g.Cols-1 {
		c0 = g.Cols - 1
	}
	r1, c1 := r0, c0
	if r0 < g.Rows-1 {
		r1 = r0 + 1
	}
	if c0 < g.Cols-1 {
		c1 = c0 + 1
	}
	dr := fr - float64(r0)
	dc := fc - float64(c0)

	return BilinearWeights{
		Rows:    [4]int{r0, r0, r1, r1},
		Cols:    [4]int{c0, c1, c0, c1},
		Weights: [4]float64{(1 - dr) * (1 - dc), (1 - dr) * dc, dr * (1 - dc), dr * dc},
	}, true
}

// GridField is a 2-D array of one variable at one timestamp. Values are
// row-major and immutable after construction; mutate by building a new field.
type GridField struct {
	Ref       GridRef
	Variable  Variable
	Timestamp time.Time
	Missing   float64

	values []float64
}

// NewGridField validates shape and wraps values. The slice is taken over by
// the field and must not be mutated by the caller afterwards.
func NewGridField(ref GridRef, variable Variable, ts time.Time, missing float64, values []float64) (*GridField, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if len(values) != ref.Rows*ref.Cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d grid", ErrShape, len(values), ref.Rows, ref.Cols)
	}
	return &GridField{Ref: ref, Variable: variable, Timestamp: ts.UTC(), Missing: missing, values: values}, nil
}

// At returns the value at (row, col). Callers are responsible for bounds.
func (f *GridField) At(row, col int) float64 {
	return f.values[row*f.Ref.Cols+col]
}

// IsMissing reports whether v is the field's missing sentinel or NaN.
func (f *GridField) IsMissing(v float64) bool {
	return v == f.Missing || math.IsNaN(v)
}

// Values returns a copy of the backing array, preserving immutability.
func (f *GridField) Values() []float64 {
	out := make([]float64, len(f.values))
	copy(out, f.values)
	return out
}

// GridSeries looks up grid fields of one variable by timestamp, used for lag
// covariates. A nil series means no lagged fields are available.
type GridSeries map[time.Time]*GridField

// At returns the field for a timestamp, or nil.
func (s GridSeries) At(ts time.Time) *GridField {
	if s == nil {
		return nil
	}
	return s[ts.UTC()]
}
