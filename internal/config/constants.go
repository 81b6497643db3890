package config

import "time"

// Application constants for the event-study pipeline
const (
	// Application Info
	AppName    = "Event Study Pipeline"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces all environment variables, e.g.
	// ES_DATASET_REVISION, ES_PRICES_CACHE_DIR.
	EnvPrefix = "ES"

	// Network Timeouts
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultDatasetTimeout = 60 * time.Second

	// File Paths (relative to the working directory)
	DefaultDataDir      = "data"
	DefaultLogsDir      = "logs"
	DefaultCacheDir     = "data/price_cache"
	DefaultProcessedDir = "data/processed"

	// Well-known output files
	EnrichedCSVName  = "events_with_features.csv"
	EnrichedXLSXName = "events_with_features.xlsx"
	RunSummaryName   = "run_summary.json"
)
