package main

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/23skdu/embedview/internal/embedding"
	"github.com/23skdu/embedview/internal/limiter"
	"github.com/23skdu/embedview/internal/logging"
	"github.com/23skdu/embedview/internal/pipeline"
)

// envPrefix namespaces every environment variable, e.g. EMBEDVIEW_DATASET_PATH.
const envPrefix = "EMBEDVIEW"

// Config validation errors
var (
	ErrInvalidListenAddr      = errors.New("listen_addr cannot be empty")
	ErrInvalidMetricsAddr     = errors.New("metrics_addr cannot be empty")
	ErrInvalidDatasetPath     = errors.New("dataset_path cannot be empty")
	ErrInvalidLogFormat       = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel        = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidPerplexity      = errors.New("perplexity must be positive")
	ErrInvalidIterations      = errors.New("iterations must be positive")
	ErrInvalidNeighborsK      = errors.New("neighbors_k must be positive")
	ErrInvalidRateLimit       = errors.New("rate_limit_rps and rate_limit_burst cannot be negative")
	ErrInvalidShutdownTimeout = errors.New("shutdown_timeout must be positive")
)

// Config is read from the environment with the EMBEDVIEW_ prefix.
type Config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:9604"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:"0.0.0.0:9090"`

	DatasetPath string `envconfig:"DATASET_PATH" default:"./saved_features_with_abs_paths.parquet"`
	// ImageRoot confines image resolution to one directory; empty trusts decoded paths verbatim.
	ImageRoot string `envconfig:"IMAGE_ROOT"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	Perplexity float64 `envconfig:"PERPLEXITY" default:"30"`
	Iterations int     `envconfig:"ITERATIONS" default:"1000"`
	Seed       uint64  `envconfig:"SEED" default:"42"`

	NeighborsK int `envconfig:"NEIGHBORS_K" default:"10"`

	// ListenBeforeReady starts the listeners before the pipeline finishes;
	// metadata requests then fail with NotReady until it does.
	ListenBeforeReady bool `envconfig:"LISTEN_BEFORE_READY" default:"false"`

	limiter.Config

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadConfig reads Config from the environment and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, err
	}
	return cfg, ValidateConfig(&cfg)
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if cfg.MetricsAddr == "" {
		return ErrInvalidMetricsAddr
	}
	if cfg.DatasetPath == "" {
		return ErrInvalidDatasetPath
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	if cfg.Perplexity <= 0 {
		return ErrInvalidPerplexity
	}
	if cfg.Iterations <= 0 {
		return ErrInvalidIterations
	}
	if cfg.NeighborsK <= 0 {
		return ErrInvalidNeighborsK
	}
	if cfg.RPS < 0 || cfg.Burst < 0 {
		return ErrInvalidRateLimit
	}
	if cfg.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}
	return nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "0.0.0.0:9604",
		MetricsAddr:     "0.0.0.0:9090",
		DatasetPath:     "./saved_features_with_abs_paths.parquet",
		LogFormat:       "json",
		LogLevel:        "info",
		Perplexity:      30,
		Iterations:      1000,
		Seed:            42,
		NeighborsK:      10,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoggingConfig maps the log settings onto the logging package.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Format = c.LogFormat
	lc.Level = c.LogLevel
	return lc
}

// PipelineConfig maps the dataset and projection settings onto the pipeline.
func (c *Config) PipelineConfig() pipeline.Config {
	params := embedding.DefaultParams()
	params.Perplexity = c.Perplexity
	params.Iterations = c.Iterations
	params.Seed = c.Seed
	return pipeline.Config{DatasetPath: c.DatasetPath, Embedding: params}
}
