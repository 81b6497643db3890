package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "eventstudy/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset" envconfig:"DATASET"`
	Prices   PricesConfig   `yaml:"prices" envconfig:"PRICES"`
	Analysis AnalysisConfig `yaml:"analysis" envconfig:"ANALYSIS"`
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// DatasetConfig pins the event dataset to an exact content revision
type DatasetConfig struct {
	Name string `yaml:"name" envconfig:"NAME" default:"glopardo/sp500-earnings-transcripts"`
	// Revision is the exact content revision (commit hash) of the
	// dataset. Required: mutable tags like "latest" break reproducibility.
	Revision string        `yaml:"hf_dataset_revision" envconfig:"REVISION"`
	BaseURL  string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://datasets-server.huggingface.co"`
	Split    string        `yaml:"split" envconfig:"SPLIT" default:"train"`
	Sector   string        `yaml:"sector" envconfig:"SECTOR" default:"Health Care"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"60s"`
	PageSize int           `yaml:"page_size" envconfig:"PAGE_SIZE" default:"100"`
}

// PricesConfig configures the price source and the on-disk price cache
type PricesConfig struct {
	CacheDir        string        `yaml:"price_cache_dir" envconfig:"CACHE_DIR" default:"data/price_cache"`
	SourceBaseURL   string        `yaml:"source_base_url" envconfig:"SOURCE_BASE_URL" default:"https://query1.finance.yahoo.com"`
	BenchmarkTicker string        `yaml:"benchmark_ticker" envconfig:"BENCHMARK_TICKER" default:"XBI"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
	RatePerSecond   float64       `yaml:"rate_per_second" envconfig:"RATE_PER_SECOND" default:"4"`
	RateBurst       int           `yaml:"rate_burst" envconfig:"RATE_BURST" default:"2"`
	FetchWorkers    int           `yaml:"fetch_workers" envconfig:"FETCH_WORKERS" default:"4"`
	// AllowStale opts into serving a stale cache entry when the network
	// fetch fails. Off by default: a failed fetch surfaces as an error
	// rather than silently reusing old data.
	AllowStale bool `yaml:"allow_stale" envconfig:"ALLOW_STALE" default:"false"`
}

// AnalysisConfig configures return windows and output locations
type AnalysisConfig struct {
	Windows          []int  `yaml:"windows" envconfig:"WINDOWS" default:"1,5"`
	AnchorSearchDays int    `yaml:"anchor_search_days" envconfig:"ANCHOR_SEARCH_DAYS" default:"5"`
	CalendarPadDays  int    `yaml:"calendar_pad_days" envconfig:"CALENDAR_PAD_DAYS" default:"10"`
	OutputDir        string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"data/processed"`
}

// ServerConfig contains HTTP server configuration for the dashboard API
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// revisionPattern is the syntactic shape of an acceptable content
// revision: an abbreviated or full git object hash. Resolution of the
// hash is deferred to the dataset fetch.
var revisionPattern = regexp.MustCompile(`^[0-9a-f]{7,64}$`)

// Load loads configuration from environment variables and an optional
// YAML config file. Environment variables take precedence.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileCfg, err := loadFromFile(configFile)
			if err != nil {
				return nil, apperrors.NewConfigError(fmt.Sprintf("failed to load config file %s", configFile), err)
			}
			cfg = mergeConfigs(*fileCfg, cfg)
		}
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envSet reports whether the prefixed environment variable is present.
// The env-processed config cannot distinguish an operator-set value from
// a struct-tag default, so precedence decisions consult the environment
// directly.
func envSet(key string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + key)
	return ok
}

// mergeConfigs starts from the env-processed config (set variables plus
// struct-tag defaults) and lets the file supply every field whose env
// variable was not explicitly set. Precedence: env over file over
// defaults.
func mergeConfigs(fileCfg, envCfg Config) Config {
	merged := envCfg

	if !envSet("DATASET_REVISION") && fileCfg.Dataset.Revision != "" {
		merged.Dataset.Revision = fileCfg.Dataset.Revision
	}
	if !envSet("DATASET_NAME") && fileCfg.Dataset.Name != "" {
		merged.Dataset.Name = fileCfg.Dataset.Name
	}
	if !envSet("DATASET_BASE_URL") && fileCfg.Dataset.BaseURL != "" {
		merged.Dataset.BaseURL = fileCfg.Dataset.BaseURL
	}
	if !envSet("DATASET_SPLIT") && fileCfg.Dataset.Split != "" {
		merged.Dataset.Split = fileCfg.Dataset.Split
	}
	if !envSet("DATASET_SECTOR") && fileCfg.Dataset.Sector != "" {
		merged.Dataset.Sector = fileCfg.Dataset.Sector
	}
	if !envSet("DATASET_TIMEOUT") && fileCfg.Dataset.Timeout != 0 {
		merged.Dataset.Timeout = fileCfg.Dataset.Timeout
	}
	if !envSet("DATASET_PAGE_SIZE") && fileCfg.Dataset.PageSize != 0 {
		merged.Dataset.PageSize = fileCfg.Dataset.PageSize
	}

	if !envSet("PRICES_CACHE_DIR") && fileCfg.Prices.CacheDir != "" {
		merged.Prices.CacheDir = fileCfg.Prices.CacheDir
	}
	if !envSet("PRICES_SOURCE_BASE_URL") && fileCfg.Prices.SourceBaseURL != "" {
		merged.Prices.SourceBaseURL = fileCfg.Prices.SourceBaseURL
	}
	if !envSet("PRICES_BENCHMARK_TICKER") && fileCfg.Prices.BenchmarkTicker != "" {
		merged.Prices.BenchmarkTicker = fileCfg.Prices.BenchmarkTicker
	}
	if !envSet("PRICES_TIMEOUT") && fileCfg.Prices.Timeout != 0 {
		merged.Prices.Timeout = fileCfg.Prices.Timeout
	}
	if !envSet("PRICES_RATE_PER_SECOND") && fileCfg.Prices.RatePerSecond != 0 {
		merged.Prices.RatePerSecond = fileCfg.Prices.RatePerSecond
	}
	if !envSet("PRICES_RATE_BURST") && fileCfg.Prices.RateBurst != 0 {
		merged.Prices.RateBurst = fileCfg.Prices.RateBurst
	}
	if !envSet("PRICES_FETCH_WORKERS") && fileCfg.Prices.FetchWorkers != 0 {
		merged.Prices.FetchWorkers = fileCfg.Prices.FetchWorkers
	}
	if !envSet("PRICES_ALLOW_STALE") && fileCfg.Prices.AllowStale {
		merged.Prices.AllowStale = true
	}

	if !envSet("ANALYSIS_WINDOWS") && len(fileCfg.Analysis.Windows) > 0 {
		merged.Analysis.Windows = fileCfg.Analysis.Windows
	}
	if !envSet("ANALYSIS_ANCHOR_SEARCH_DAYS") && fileCfg.Analysis.AnchorSearchDays != 0 {
		merged.Analysis.AnchorSearchDays = fileCfg.Analysis.AnchorSearchDays
	}
	if !envSet("ANALYSIS_CALENDAR_PAD_DAYS") && fileCfg.Analysis.CalendarPadDays != 0 {
		merged.Analysis.CalendarPadDays = fileCfg.Analysis.CalendarPadDays
	}
	if !envSet("ANALYSIS_OUTPUT_DIR") && fileCfg.Analysis.OutputDir != "" {
		merged.Analysis.OutputDir = fileCfg.Analysis.OutputDir
	}

	if !envSet("SERVER_PORT") && fileCfg.Server.Port != 0 {
		merged.Server.Port = fileCfg.Server.Port
	}
	if !envSet("SERVER_READ_TIMEOUT") && fileCfg.Server.ReadTimeout != 0 {
		merged.Server.ReadTimeout = fileCfg.Server.ReadTimeout
	}
	if !envSet("SERVER_WRITE_TIMEOUT") && fileCfg.Server.WriteTimeout != 0 {
		merged.Server.WriteTimeout = fileCfg.Server.WriteTimeout
	}
	if !envSet("SERVER_IDLE_TIMEOUT") && fileCfg.Server.IdleTimeout != 0 {
		merged.Server.IdleTimeout = fileCfg.Server.IdleTimeout
	}
	if !envSet("SERVER_SHUTDOWN_TIMEOUT") && fileCfg.Server.ShutdownTimeout != 0 {
		merged.Server.ShutdownTimeout = fileCfg.Server.ShutdownTimeout
	}

	if !envSet("LOGGING_LEVEL") && fileCfg.Logging.Level != "" {
		merged.Logging.Level = fileCfg.Logging.Level
	}
	if !envSet("LOGGING_FORMAT") && fileCfg.Logging.Format != "" {
		merged.Logging.Format = fileCfg.Logging.Format
	}
	if !envSet("LOGGING_OUTPUT") && fileCfg.Logging.Output != "" {
		merged.Logging.Output = fileCfg.Logging.Output
	}
	if !envSet("LOGGING_FILE_PATH") && fileCfg.Logging.FilePath != "" {
		merged.Logging.FilePath = fileCfg.Logging.FilePath
	}

	return merged
}

// resolvePaths makes relative directories absolute against the working
// directory so every component sees the same locations regardless of how
// it joins filenames later.
func (c *Config) resolvePaths() error {
	wd, err := os.Getwd()
	if err != nil {
		return apperrors.NewConfigError("failed to resolve working directory", err)
	}

	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wd, p)
	}

	c.Prices.CacheDir = resolve(c.Prices.CacheDir)
	c.Analysis.OutputDir = resolve(c.Analysis.OutputDir)
	c.Logging.FilePath = resolve(c.Logging.FilePath)
	return nil
}

// Validate checks the configuration invariants. Violations are
// ConfigErrors: fatal, reported before any fetch is attempted.
func (c *Config) Validate() error {
	if c.Dataset.Revision == "" {
		return apperrors.NewConfigError("dataset revision is required (set hf_dataset_revision or "+EnvPrefix+"_DATASET_REVISION)", nil)
	}
	if !revisionPattern.MatchString(c.Dataset.Revision) {
		return apperrors.NewConfigError(
			fmt.Sprintf("dataset revision %q is not a content hash; mutable tags are not accepted", c.Dataset.Revision), nil)
	}
	if c.Dataset.Name == "" {
		return apperrors.NewConfigError("dataset name is required", nil)
	}
	if c.Prices.CacheDir == "" {
		return apperrors.NewConfigError("price cache dir is required", nil)
	}
	if c.Prices.BenchmarkTicker == "" {
		return apperrors.NewConfigError("benchmark ticker is required", nil)
	}
	if len(c.Analysis.Windows) == 0 {
		return apperrors.NewConfigError("at least one return window is required", nil)
	}
	seen := make(map[int]bool, len(c.Analysis.Windows))
	for _, w := range c.Analysis.Windows {
		if w <= 0 {
			return apperrors.NewConfigError(fmt.Sprintf("return window %d must be positive", w), nil)
		}
		if seen[w] {
			return apperrors.NewConfigError(fmt.Sprintf("return window %d configured twice", w), nil)
		}
		seen[w] = true
	}
	if c.Analysis.AnchorSearchDays < 0 {
		return apperrors.NewConfigError("anchor search days must not be negative", nil)
	}
	if c.Prices.FetchWorkers <= 0 {
		return apperrors.NewConfigError("fetch workers must be positive", nil)
	}
	return nil
}

// MaxWindow returns the largest configured return window.
func (c *Config) MaxWindow() int {
	max := 0
	for _, w := range c.Analysis.Windows {
		if w > max {
			max = w
		}
	}
	return max
}
