package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const terrainMissing = -9999.0

func terrainRef() GridRef {
	return GridRef{
		OriginLat:   0.0, // equator keeps dx == dy for easy expected slopes
		OriginLon:   110.0,
		CellSizeLat: 0.1,
		CellSizeLon: 0.1,
		Rows:        3,
		Cols:        3,
	}
}

func TestNewTerrainFieldShapeCheck(t *testing.T) {
	_, err := NewTerrainField(terrainRef(), terrainMissing, make([]float64, 4))
	assert.ErrorIs(t, err, ErrShape)
}

func TestFlatTerrain(t *testing.T) {
	elevation := []float64{
		100, 100, 100,
		100, 100, 100,
		100, 100, 100,
	}
	terrain, err := NewTerrainField(terrainRef(), terrainMissing, elevation)
	require.NoError(t, err)

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			assert.Zero(t, terrain.SlopeAt(r, c))
			assert.Zero(t, terrain.AspectAt(r, c))
		}
	}
}

func TestTiltedPlaneSlopeAndAspect(t *testing.T) {
	// Elevation rises to the east by 1113.2 m per cell; at 0.1 degree on the
	// equator a cell spans 11132 m, so the gradient is 0.1 and the downslope
	// direction is due west.
	elevation := []float64{
		0, 1113.2, 2226.4,
		0, 1113.2, 2226.4,
		0, 1113.2, 2226.4,
	}
	terrain, err := NewTerrainField(terrainRef(), terrainMissing, elevation)
	require.NoError(t, err)

	// atan(0.1) = 5.71 degrees.
	assert.InDelta(t, 5.71, terrain.SlopeAt(1, 1), 0.01)
	assert.InDelta(t, 270, terrain.AspectAt(1, 1), 0.5)
	// One-sided differences at the edges see the same uniform gradient.
	assert.InDelta(t, terrain.SlopeAt(1, 1), terrain.SlopeAt(1, 0), 1e-9)
	assert.InDelta(t, terrain.SlopeAt(1, 1), terrain.SlopeAt(1, 2), 1e-9)
}

func TestNorthFacingSlopeAspect(t *testing.T) {
	// Elevation rises to the north (rows advance north), so water flows
	// south: aspect 180.
	elevation := []float64{
		0, 0, 0,
		1113.2, 1113.2, 1113.2,
		2226.4, 2226.4, 2226.4,
	}
	terrain, err := NewTerrainField(terrainRef(), terrainMissing, elevation)
	require.NoError(t, err)

	assert.InDelta(t, 180, terrain.AspectAt(1, 1), 0.5)
}

func TestMissingNeighborPropagates(t *testing.T) {
	elevation := []float64{
		100, 100, 100,
		terrainMissing, 100, 100,
		100, 100, 100,
	}
	terrain, err := NewTerrainField(terrainRef(), terrainMissing, elevation)
	require.NoError(t, err)

	// The missing cell itself has no slope.
	assert.True(t, terrain.IsMissing(terrain.SlopeAt(1, 0)))
	// Its row neighbor falls back to a one-sided difference and stays valid.
	assert.False(t, terrain.IsMissing(terrain.SlopeAt(1, 1)))
	assert.True(t, terrain.IsMissing(terrain.ElevationAt(1, 0)))
}
