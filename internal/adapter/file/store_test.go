package file

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

const testMissing = -9999.0

func testRef() domain.GridRef {
	return domain.GridRef{
		OriginLat:   30.0,
		OriginLon:   110.0,
		CellSizeLat: 0.1,
		CellSizeLon: 0.1,
		Rows:        2,
		Cols:        3,
	}
}

func writeFixtureTree(t *testing.T, dir string) time.Time {
	t.Helper()
	ref := testRef()
	ts := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	writeDoc(t, filepath.Join(dir, "terrain.json"), terrainFile{
		Ref:       ref,
		Missing:   testMissing,
		Elevation: []float64{10, 20, 30, 40, 50, 60},
	})

	obs := []domain.StationObservation{
		{
			StationID: "54511",
			Latitude:  30.0,
			Longitude: 110.0,
			Elevation: 12,
			Variable:  domain.VarTemperature,
			Timestamp: ts,
			Value:     domain.Float64Ptr(21.5),
		},
	}
	writeDoc(t, filepath.Join(dir, "observations.json"), obs)

	gridDir := filepath.Join(dir, "grids", "temperature")
	require.NoError(t, os.MkdirAll(gridDir, 0o755))
	writeDoc(t, filepath.Join(gridDir, "20240601T120000Z.json"), gridFile{
		Ref:       ref,
		Variable:  domain.VarTemperature,
		Timestamp: ts,
		Missing:   testMissing,
		Values:    []float64{20, 20, 20, 20, 20, 20},
	})
	return ts
}

func writeDoc(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFetchLoadsTree(t *testing.T) {
	dir := t.TempDir()
	ts := writeFixtureTree(t, dir)
	store := NewStore(dir, slog.Default())

	inputs, err := store.Fetch(context.Background())
	require.NoError(t, err)

	require.NotNil(t, inputs.Terrain)
	assert.Equal(t, 10.0, inputs.Terrain.ElevationAt(0, 0))

	require.Len(t, inputs.Observations, 1)
	assert.Equal(t, "54511", inputs.Observations[0].StationID)

	grid := inputs.Series[domain.VarTemperature].At(ts)
	require.NotNil(t, grid)
	assert.Equal(t, 20.0, grid.At(1, 2))

	// Without stations.json, inference locations come from the observations
	// with values stripped.
	require.Len(t, inputs.Stations, 1)
	assert.Nil(t, inputs.Stations[0].Value)
}

func TestFetchPrefersStationsFile(t *testing.T) {
	dir := t.TempDir()
	writeFixtureTree(t, dir)
	writeDoc(t, filepath.Join(dir, "stations.json"), []domain.StationObservation{
		{StationID: "a", Latitude: 30.0, Longitude: 110.1},
		{StationID: "b", Latitude: 30.1, Longitude: 110.2},
	})
	store := NewStore(dir, slog.Default())

	inputs, err := store.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, inputs.Stations, 2)
}

func TestFetchRejectsMisfiledGrid(t *testing.T) {
	dir := t.TempDir()
	ts := writeFixtureTree(t, dir)

	// A humidity field stored under grids/temperature must be rejected, not
	// silently trained against the wrong variable.
	writeDoc(t, filepath.Join(dir, "grids", "temperature", "bad.json"), gridFile{
		Ref:       testRef(),
		Variable:  domain.VarHumidity,
		Timestamp: ts,
		Missing:   testMissing,
		Values:    []float64{1, 1, 1, 1, 1, 1},
	})

	_, err := NewStore(dir, slog.Default()).Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrShape)
}

func TestWriteFieldRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	grid, err := domain.NewGridField(testRef(), domain.VarTemperature, ts, testMissing,
		[]float64{21, 21, 21, 21, 21, 21})
	require.NoError(t, err)

	store := NewStore(dir, slog.Default())
	err = store.WriteField(context.Background(), domain.CorrectedGrid{
		Field: grid,
		Report: domain.CorrectionReport{
			Variable:     domain.VarTemperature,
			Timestamp:    ts,
			StationsUsed: 3,
		},
	})
	require.NoError(t, err)

	var out reportFile
	data, err := os.ReadFile(filepath.Join(dir, "corrected", "temperature", "20240601T120000Z.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 3, out.StationsUsed)
	assert.Equal(t, []float64{21, 21, 21, 21, 21, 21}, out.Values)
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, slog.Default())

	err := store.WriteReport(context.Background(), domain.RunReport{
		Alignment: domain.AlignmentReport{Aligned: 7},
	})
	require.NoError(t, err)

	var report domain.RunReport
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 7, report.Alignment.Aligned)
}
