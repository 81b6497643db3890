package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths is the single source of truth for the file locations one run
// touches: the per-ticker price cache, the processed output table and the
// log directory.
type Paths struct {
	PriceCacheDir string
	ProcessedDir  string
	LogsDir       string
}

// NewPaths derives the path set from a loaded configuration.
func NewPaths(cfg *Config) *Paths {
	return &Paths{
		PriceCacheDir: cfg.Prices.CacheDir,
		ProcessedDir:  cfg.Analysis.OutputDir,
		LogsDir:       filepath.Dir(cfg.Logging.FilePath),
	}
}

// EnsureDirectories creates all required directories
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.PriceCacheDir, p.ProcessedDir, p.LogsDir}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetPriceCachePath returns the cache file path for a ticker. The name is
// derived deterministically from the upper-cased symbol so the same ticker
// always maps to the same file across runs.
func (p *Paths) GetPriceCachePath(ticker string) string {
	return filepath.Join(p.PriceCacheDir, fmt.Sprintf("%s.csv", strings.ToUpper(ticker)))
}

// GetEnrichedCSVPath returns the path of the exported enriched table.
func (p *Paths) GetEnrichedCSVPath() string {
	return filepath.Join(p.ProcessedDir, EnrichedCSVName)
}

// GetEnrichedXLSXPath returns the path of the exported Excel workbook.
func (p *Paths) GetEnrichedXLSXPath() string {
	return filepath.Join(p.ProcessedDir, EnrichedXLSXName)
}

// GetRunSummaryPath returns the path of the persisted run summary.
func (p *Paths) GetRunSummaryPath() string {
	return filepath.Join(p.ProcessedDir, RunSummaryName)
}

// GetLogPath returns a path under the logs directory.
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// FileExists checks whether a file exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
