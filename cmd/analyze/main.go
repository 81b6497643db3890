// Command analyze runs the event-study pipeline once: load the pinned
// dataset revision, compute event-window returns through the price
// cache and export the enriched table.
//
// Exit code 1 signals a fatal run error: bad configuration, a failed
// dataset fetch or a failed benchmark price fetch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"eventstudy/internal/config"
	"eventstudy/internal/dataset"
	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/infrastructure"
	"eventstudy/internal/pricecache"
	"eventstudy/internal/pricesource"
	"eventstudy/internal/services"
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to the YAML config file")
	refreshCache := flag.Bool("refresh-cache", false, "refetch every ticker, bypassing cache coverage checks")
	outDir := flag.String("out", "", "override the output directory for processed files")
	flag.Parse()

	if err := run(*configFile, *refreshCache, *outDir); err != nil {
		slog.Error("analysis run failed",
			"error", err,
			"error_type", errorType(err))
		os.Exit(1)
	}
}

func run(configFile string, refreshCache bool, outDir string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if outDir != "" {
		cfg.Analysis.OutputDir = outDir
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer infrastructure.CloseLogFile()

	paths := config.NewPaths(cfg)
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}

	otelCfg := infrastructure.DefaultOTelConfig()
	otelCfg.EnableTracing = false // one-shot CLI, traces add nothing
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer providers.Shutdown(ctx)

	metrics, err := infrastructure.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return err
	}

	source := dataset.NewHTTPSource(cfg.Dataset.BaseURL, cfg.Dataset.Split, cfg.Dataset.PageSize, cfg.Dataset.Timeout)
	loader := dataset.NewLoader(source, cfg.Dataset, logger)

	priceClient := pricesource.NewHTTPClient(cfg.Prices.SourceBaseURL, cfg.Prices.Timeout,
		cfg.Prices.RatePerSecond, cfg.Prices.RateBurst, metrics)
	cache, err := pricecache.New(cfg.Prices.CacheDir, priceClient, pricecache.Options{
		AllowStale: cfg.Prices.AllowStale,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}

	analysis := services.NewAnalysisService(cfg, paths, loader, cache, logger, metrics)
	summary, err := analysis.Run(ctx, services.RunOptions{Refresh: refreshCache})
	if err != nil {
		return err
	}

	fmt.Printf("run %s finished: %d events, %d anchors unresolved, %d windows missing, %d tickers failed\n",
		summary.RunID, summary.EventsLoaded, summary.AnchorsUnresolved,
		summary.WindowsMissing, summary.TickersFailed)
	fmt.Printf("outputs: %s\n", paths.GetEnrichedCSVPath())
	return nil
}

// errorType names the error category for the final log line.
func errorType(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return string(appErr.Type)
	}
	return "UNKNOWN"
}
