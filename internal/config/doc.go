// Package config provides centralized configuration management for the
// event-study pipeline. Configuration is loaded from environment
// variables over an optional YAML file over struct-tag defaults, then
// validated before any network fetch is attempted.
//
// # Configuration Sources
//
//  1. Environment variables (highest priority)
//  2. YAML configuration file
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables use the ES_ prefix:
//
//	ES_DATASET_REVISION=abc1234
//	ES_PRICES_CACHE_DIR=data/price_cache
//	ES_PRICES_BENCHMARK_TICKER=XBI
//	ES_ANALYSIS_WINDOWS=1,5
//	ES_LOGGING_LEVEL=info
//
// # Revision Pinning
//
// Dataset.Revision must look like a content hash. Mutable references are
// rejected at load time so re-runs of the pipeline always resolve to the
// same bytes.
//
// # Usage
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    // *errors.AppError with type CONFIG
//	}
//	paths := config.NewPaths(cfg)
package config
