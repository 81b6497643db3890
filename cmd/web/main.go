// Command web serves the dashboard API over the outputs of the last
// analysis run: run summary, enriched events, ticker aggregates, cached
// price history, downloads, health and metrics.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"eventstudy/internal/app"
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	application, err := app.NewApplication(*configFile)
	if err != nil {
		slog.Error("failed to start dashboard server", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		application.Logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
