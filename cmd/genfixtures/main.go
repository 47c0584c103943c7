// Command genfixtures writes a synthetic input tree for the correction
// service: a terrain field, hourly raw grids with a known spatial pattern,
// and station observations that read the grid plus a fixed per-station bias.
// Because the biases are known, corrected output quality is verifiable by
// inspection.
//
// Usage:
//
//	go run ./cmd/genfixtures -out data -hours 72 -stations 12
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

var baseTime = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

const (
	missing     = -9999.0
	stampLayout = "20060102T150405Z"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the fixture tree")
	hours := flag.Int("hours", 72, "number of hourly grid fields per variable")
	stations := flag.Int("stations", 12, "number of synthetic stations")
	variables := flag.String("variables", "temperature,humidity", "comma-separated variables")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	vars, err := parseVariables(*variables)
	if err != nil {
		return err
	}

	ref := domain.GridRef{
		OriginLat:   30.05,
		OriginLon:   110.05,
		CellSizeLat: 0.1,
		CellSizeLon: 0.1,
		Rows:        24,
		Cols:        36,
	}
	rng := rand.New(rand.NewSource(*seed))

	if err := writeTerrain(*out, ref); err != nil {
		return err
	}

	sites := makeStations(ref, *stations, vars, rng)
	var obs []domain.StationObservation

	for _, v := range vars {
		dir := filepath.Join(*out, "grids", string(v))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for h := 0; h < *hours; h++ {
			ts := baseTime.Add(time.Duration(h) * time.Hour)
			values := gridValues(ref, v, h)
			if err := writeJSONFile(filepath.Join(dir, ts.Format(stampLayout)+".json"), map[string]any{
				"ref":       ref,
				"variable":  v,
				"timestamp": ts,
				"missing":   missing,
				"values":    values,
			}); err != nil {
				return err
			}
			obs = append(obs, observe(ref, values, sites, v, ts, rng)...)
		}
		log.Printf("%s: %d fields", v, *hours)
	}

	if err := writeJSONFile(filepath.Join(*out, "observations.json"), obs); err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(*out, "stations.json"), locations(sites)); err != nil {
		return err
	}

	log.Printf("wrote fixture tree: %s", *out)
	printStats(sites, obs)
	return nil
}

// station is a synthetic site with a fixed bias per variable; the trained
// models should recover roughly these values.
type station struct {
	obs    domain.StationObservation
	biases map[domain.Variable]float64
}

func parseVariables(s string) ([]domain.Variable, error) {
	var vars []domain.Variable
	for _, name := range strings.Split(s, ",") {
		v, err := domain.ParseVariable(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// writeTerrain emits a single ridge running west to east so slope and aspect
// covariates are non-trivial.
func writeTerrain(out string, ref domain.GridRef) error {
	elevation := make([]float64, ref.Rows*ref.Cols)
	for r := 0; r < ref.Rows; r++ {
		for c := 0; c < ref.Cols; c++ {
			ridge := math.Exp(-math.Pow(float64(r)-float64(ref.Rows)/2, 2) / 18)
			elevation[r*ref.Cols+c] = 200 + 800*ridge + 5*float64(c)
		}
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(out, "terrain.json"), map[string]any{
		"ref":       ref,
		"missing":   missing,
		"elevation": elevation,
	})
}

func makeStations(ref domain.GridRef, n int, vars []domain.Variable, rng *rand.Rand) []station {
	sites := make([]station, n)
	for i := range sites {
		row := rng.Intn(ref.Rows)
		col := rng.Intn(ref.Cols)
		lat, lon := ref.CellCenter(row, col)
		biases := make(map[domain.Variable]float64, len(vars))
		for _, v := range vars {
			biases[v] = rng.Float64()*4 - 2
		}
		sites[i] = station{
			obs: domain.StationObservation{
				StationID: fmt.Sprintf("S%03d", i+1),
				Name:      fmt.Sprintf("synthetic site %d", i+1),
				Latitude:  lat,
				Longitude: lon,
				Elevation: 200 + rng.Float64()*900,
			},
			biases: biases,
		}
	}
	return sites
}

// gridValues builds a smooth field with a diurnal cycle and a gentle
// north-south gradient.
func gridValues(ref domain.GridRef, v domain.Variable, hour int) []float64 {
	diurnal := math.Sin(2 * math.Pi * float64(hour%24) / 24)
	var base, amp float64
	switch v {
	case domain.VarTemperature:
		base, amp = 18, 6
	case domain.VarHumidity:
		base, amp = 60, 15
	case domain.VarPrecipitation:
		base, amp = 0.4, 0.4
	case domain.VarWindSpeed:
		base, amp = 4, 2
	}

	values := make([]float64, ref.Rows*ref.Cols)
	for r := 0; r < ref.Rows; r++ {
		for c := 0; c < ref.Cols; c++ {
			gradient := 0.05 * float64(r)
			values[r*ref.Cols+c] = base + amp*diurnal + gradient
		}
	}
	return values
}

// observe produces one reading per station: the grid value at its cell plus
// the station's bias and a little noise. Roughly one reading in fifty carries
// a QC failure code instead of a value.
func observe(ref domain.GridRef, values []float64, sites []station, v domain.Variable, ts time.Time, rng *rand.Rand) []domain.StationObservation {
	obs := make([]domain.StationObservation, 0, len(sites))
	for _, s := range sites {
		o := s.obs
		o.Variable = v
		o.Timestamp = ts
		if rng.Float64() < 0.02 {
			o.Value = domain.Float64Ptr(999999)
		} else {
			row, col, _ := ref.NearestCell(o.Latitude, o.Longitude)
			truth := values[row*ref.Cols+col] + s.biases[v] + rng.NormFloat64()*0.3
			o.Value = domain.Float64Ptr(truth)
		}
		obs = append(obs, o)
	}
	return obs
}

func locations(sites []station) []domain.StationObservation {
	out := make([]domain.StationObservation, len(sites))
	for i, s := range sites {
		out[i] = s.obs
	}
	return out
}

func writeJSONFile(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func printStats(sites []station, obs []domain.StationObservation) {
	sentinel := 0
	perVariable := map[domain.Variable]int{}
	for _, o := range obs {
		perVariable[o.Variable]++
		if o.Value != nil && *o.Value > domain.QCSentinel {
			sentinel++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Stations: %d\n", len(sites))
	fmt.Printf("Observations: %d (QC sentinel: %d)\n", len(obs), sentinel)
	for v, n := range perVariable {
		fmt.Printf("  %s: %d\n", v, n)
	}
	fmt.Println("\nStation biases:")
	for _, s := range sites {
		fmt.Printf("  %s:", s.obs.StationID)
		for v, b := range s.biases {
			fmt.Printf(" %s=%+.2f", v, b)
		}
		fmt.Println()
	}
}
