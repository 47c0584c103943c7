// Package file reads run inputs from and writes corrected fields to a
// directory tree of JSON documents. The layout is:
//
//	terrain.json                     elevation field
//	observations.json                historical station readings
//	stations.json                    station locations for inference
//	grids/<variable>/<stamp>.json    raw grid fields
//
// Outputs land under corrected/<variable>/<stamp>.json plus report.json.
// Timestamps in file names use a colon-free UTC stamp so the tree works on
// every filesystem.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ziheng1027/gridcorrect/internal/domain"
	"github.com/ziheng1027/gridcorrect/internal/pipeline"
)

const stampLayout = "20060102T150405Z"

type gridFile struct {
	Ref       domain.GridRef  `json:"ref"`
	Variable  domain.Variable `json:"variable"`
	Timestamp time.Time       `json:"timestamp"`
	Missing   float64         `json:"missing"`
	Values    []float64       `json:"values"`
}

type terrainFile struct {
	Ref       domain.GridRef `json:"ref"`
	Missing   float64        `json:"missing"`
	Elevation []float64      `json:"elevation"`
}

type reportFile struct {
	domain.CorrectionReport
	Values []float64 `json:"values"`
}

// Store reads inputs from and writes outputs to one run directory. It
// implements pipeline.Source and pipeline.Sink.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{root: dir, logger: logger}
}

// Fetch loads one run's inputs from the directory tree. stations.json is
// optional; when absent, inference locations default to the distinct stations
// found in observations.json.
func (s *Store) Fetch(_ context.Context) (pipeline.Inputs, error) {
	var inputs pipeline.Inputs

	terrain, err := s.readTerrain()
	if err != nil {
		return inputs, err
	}
	inputs.Terrain = terrain

	if err := readJSON(filepath.Join(s.root, "observations.json"), &inputs.Observations); err != nil {
		return inputs, err
	}

	stationsPath := filepath.Join(s.root, "stations.json")
	if _, err := os.Stat(stationsPath); err == nil {
		if err := readJSON(stationsPath, &inputs.Stations); err != nil {
			return inputs, err
		}
	} else {
		inputs.Stations = distinctStations(inputs.Observations)
	}

	inputs.Series, err = s.readSeries()
	if err != nil {
		return inputs, err
	}

	s.logger.Info("inputs loaded",
		"dir", s.root,
		"observations", len(inputs.Observations),
		"stations", len(inputs.Stations),
		"variables", len(inputs.Series),
	)
	return inputs, nil
}

// WriteField stores one corrected field with its report.
func (s *Store) WriteField(_ context.Context, grid domain.CorrectedGrid) error {
	dir := filepath.Join(s.root, "corrected", string(grid.Field.Variable))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out := reportFile{
		CorrectionReport: grid.Report,
		Values:           grid.Field.Values(),
	}
	path := filepath.Join(dir, grid.Field.Timestamp.UTC().Format(stampLayout)+".json")
	return writeJSON(path, out)
}

// WriteReport stores the run report at the tree root.
func (s *Store) WriteReport(_ context.Context, report domain.RunReport) error {
	return writeJSON(filepath.Join(s.root, "report.json"), report)
}

func (s *Store) readTerrain() (*domain.TerrainField, error) {
	var tf terrainFile
	if err := readJSON(filepath.Join(s.root, "terrain.json"), &tf); err != nil {
		return nil, err
	}
	return domain.NewTerrainField(tf.Ref, tf.Missing, tf.Elevation)
}

func (s *Store) readSeries() (map[domain.Variable]domain.GridSeries, error) {
	gridsDir := filepath.Join(s.root, "grids")
	entries, err := os.ReadDir(gridsDir)
	if err != nil {
		return nil, fmt.Errorf("read grids dir: %w", err)
	}

	series := make(map[domain.Variable]domain.GridSeries)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		variable, err := domain.ParseVariable(entry.Name())
		if err != nil {
			return nil, err
		}
		files, err := os.ReadDir(filepath.Join(gridsDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		vs := make(domain.GridSeries, len(files))
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			var gf gridFile
			if err := readJSON(filepath.Join(gridsDir, entry.Name(), f.Name()), &gf); err != nil {
				return nil, err
			}
			if gf.Variable != variable {
				return nil, fmt.Errorf("%w: %s field stored under grids/%s", domain.ErrShape, gf.Variable, variable)
			}
			grid, err := domain.NewGridField(gf.Ref, gf.Variable, gf.Timestamp, gf.Missing, gf.Values)
			if err != nil {
				return nil, err
			}
			vs[grid.Timestamp] = grid
		}
		series[variable] = vs
	}
	return series, nil
}

// distinctStations reduces observations to one location record per station,
// keeping first-seen order deterministic by sorting on ID.
func distinctStations(obs []domain.StationObservation) []domain.StationObservation {
	seen := make(map[string]domain.StationObservation)
	for _, o := range obs {
		if _, ok := seen[o.StationID]; !ok {
			o.Value = nil
			seen[o.StationID] = o
		}
	}
	stations := make([]domain.StationObservation, 0, len(seen))
	for _, o := range seen {
		stations = append(stations, o)
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i].StationID < stations[j].StationID })
	return stations
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
