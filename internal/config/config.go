// Package config loads service configuration from layered sources: built-in
// defaults, an optional YAML file, and CORRECT_-prefixed environment
// variables, in ascending precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ziheng1027/gridcorrect/internal/align"
	"github.com/ziheng1027/gridcorrect/internal/correct"
	"github.com/ziheng1027/gridcorrect/internal/domain"
	"github.com/ziheng1027/gridcorrect/internal/regress"
	"github.com/ziheng1027/gridcorrect/internal/train"
)

// EnvPrefix is stripped from environment overrides. A double underscore
// separates nesting levels, so CORRECT_TRAIN__MIN_SAMPLES maps to
// train.min_samples.
const EnvPrefix = "CORRECT_"

// ConfigPathEnvVar points at the YAML config file; unset means defaults plus
// environment only.
const ConfigPathEnvVar = "CORRECT_CONFIG"

// Config holds all service settings.
type Config struct {
	HTTPAddr        string        `koanf:"http_addr"`
	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// DataDir is the run directory read by the file source and written by
	// the file sink.
	DataDir string `koanf:"data_dir"`

	// RunInterval re-runs the pipeline on a fixed period. Zero runs once and
	// exits after the run completes.
	RunInterval time.Duration `koanf:"run_interval"`

	Grid     GridConfig     `koanf:"grid"`
	Align    AlignConfig    `koanf:"align"`
	Train    train.Config   `koanf:"train"`
	Regress  regress.Config `koanf:"regress"`
	Correct  correct.Config `koanf:"correct"`
	Registry RegistryConfig `koanf:"registry"`
	Kafka    KafkaConfig    `koanf:"kafka"`

	// Bounds maps variable names to physical clamp ranges, overriding the
	// per-variable defaults.
	Bounds map[string]domain.Bounds `koanf:"bounds"`
}

// GridConfig describes the georeferencing of incoming grid fields.
type GridConfig struct {
	OriginLat   float64 `koanf:"origin_lat"`
	OriginLon   float64 `koanf:"origin_lon"`
	CellSizeLat float64 `koanf:"cell_size_lat"`
	CellSizeLon float64 `koanf:"cell_size_lon"`
	Rows        int     `koanf:"rows"`
	Cols        int     `koanf:"cols"`
	Missing     float64 `koanf:"missing"`
}

// Ref converts the grid settings to a domain GridRef.
func (g GridConfig) Ref() domain.GridRef {
	return domain.GridRef{
		OriginLat:   g.OriginLat,
		OriginLon:   g.OriginLon,
		CellSizeLat: g.CellSizeLat,
		CellSizeLon: g.CellSizeLon,
		Rows:        g.Rows,
		Cols:        g.Cols,
	}
}

// AlignConfig selects the station-to-grid join mode and lagged features.
type AlignConfig struct {
	Mode     string `koanf:"mode"`
	LagHours []int  `koanf:"lag_hours"`
}

// Lags converts configured lag hours to durations.
func (a AlignConfig) Lags() []time.Duration {
	if len(a.LagHours) == 0 {
		return nil
	}
	lags := make([]time.Duration, len(a.LagHours))
	for i, h := range a.LagHours {
		lags[i] = time.Duration(h) * time.Hour
	}
	return lags
}

// RegistryConfig selects model persistence. An empty path keeps models in
// memory only.
type RegistryConfig struct {
	SQLitePath string `koanf:"sqlite_path"`
}

// KafkaConfig configures the run-report sink.
type KafkaConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Brokers     []string `koanf:"brokers"`
	ReportTopic string   `koanf:"report_topic"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
		DataDir:         "data",
		Grid: GridConfig{
			OriginLat:   15.05,
			OriginLon:   70.05,
			CellSizeLat: 0.1,
			CellSizeLon: 0.1,
			Rows:        460,
			Cols:        800,
			Missing:     -9999,
		},
		Align: AlignConfig{
			Mode: string(align.ModeNearest),
		},
		Train: train.Config{
			ValidationFraction: 0.2,
			MinSamples:         10,
			Season:             train.SeasonAll,
			Pooling:            train.PoolingStation,
		},
		Regress: regress.Config{
			Name:      regress.NameLeastSquares,
			Ridge:     1e-6,
			Neighbors: 5,
		},
		Correct: correct.Config{
			Exponent:      2,
			Neighbors:     8,
			DecayDistance: 2.0,
		},
		Kafka: KafkaConfig{
			Enabled:     false,
			Brokers:     []string{"localhost:9092"},
			ReportTopic: "correction-reports",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CORRECT_CONFIG, and CORRECT_-prefixed environment variables.
func Load() (*Config, error) {
	return load(os.Getenv(ConfigPathEnvVar))
}

// LoadFile builds the configuration from defaults, the given YAML file, and
// environment variables.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps CORRECT_TRAIN__MIN_SAMPLES to train.min_samples. The
// config path variable is consumed separately and dropped here.
func envTransform(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Validate checks every section. Configuration errors are fatal at startup.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: http_addr must not be empty", domain.ErrConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", domain.ErrConfig)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir must not be empty", domain.ErrConfig)
	}
	if c.RunInterval < 0 {
		return fmt.Errorf("%w: run_interval must not be negative", domain.ErrConfig)
	}
	if err := c.Grid.Ref().Validate(); err != nil {
		return err
	}
	if _, err := align.ParseMode(c.Align.Mode); err != nil {
		return err
	}
	for _, h := range c.Align.LagHours {
		if h <= 0 {
			return fmt.Errorf("%w: lag hours must be positive, got %d", domain.ErrConfig, h)
		}
	}
	if err := c.Train.Validate(); err != nil {
		return err
	}
	if err := c.Regress.Validate(); err != nil {
		return err
	}
	if err := c.Correct.Validate(); err != nil {
		return err
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: kafka.brokers must not be empty when the sink is enabled", domain.ErrConfig)
		}
		if c.Kafka.ReportTopic == "" {
			return fmt.Errorf("%w: kafka.report_topic must not be empty when the sink is enabled", domain.ErrConfig)
		}
	}
	if _, err := c.VariableBounds(); err != nil {
		return err
	}
	return nil
}

// VariableBounds resolves the clamp ranges: defaults for every known
// variable, overridden by the configured bounds map.
func (c *Config) VariableBounds() (map[domain.Variable]domain.Bounds, error) {
	bounds := make(map[domain.Variable]domain.Bounds, len(domain.Variables))
	for _, v := range domain.Variables {
		bounds[v] = v.DefaultBounds()
	}
	for name, b := range c.Bounds {
		v, err := domain.ParseVariable(name)
		if err != nil {
			return nil, err
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("bounds for %s: %w", v, err)
		}
		bounds[v] = b
	}
	return bounds, nil
}
