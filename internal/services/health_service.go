package services

import (
	"context"
	"log/slog"
	"os"
	"time"

	"eventstudy/internal/config"
)

// HealthStatus is the aggregate health report served at /api/health.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
}

// HealthService reports whether the pipeline's working directories and
// configuration are usable.
type HealthService struct {
	cfg    *config.Config
	paths  *config.Paths
	logger *slog.Logger
}

// NewHealthService creates a health service.
func NewHealthService(cfg *config.Config, paths *config.Paths, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{cfg: cfg, paths: paths, logger: logger}
}

// Check runs the health probes. Status degrades to "degraded" when any
// probe fails; the service never reports hard down while it can answer.
func (hs *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   config.AppVersion,
		Checks:    make(map[string]string),
	}

	check := func(name string, ok bool, detail string) {
		if ok {
			status.Checks[name] = "ok"
			return
		}
		status.Checks[name] = detail
		status.Status = "degraded"
	}

	check("dataset_revision", hs.cfg.Dataset.Revision != "", "not configured")
	check("price_cache_dir", dirUsable(hs.paths.PriceCacheDir), "missing or not a directory")
	check("processed_dir", dirUsable(hs.paths.ProcessedDir), "missing or not a directory")
	check("run_summary", config.FileExists(hs.paths.GetRunSummaryPath()), "no completed run")

	return status
}

func dirUsable(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
