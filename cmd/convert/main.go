package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafeventrouter/internal/config"
	"github.com/jittakal/kafeventrouter/internal/convert"
	"github.com/jittakal/kafeventrouter/internal/observability"
	"github.com/jittakal/kafeventrouter/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	bookmarkPath := flag.String("bookmark", os.Getenv("CONVERT_BOOKMARK_PATH"), "Bookmark file for incremental runs")
	flag.Parse()

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
		if *configPath == "" {
			*configPath = "config/application.yaml"
		}
	}

	cfg, err := config.NewLoader().LoadConvert(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		Output:      cfg.Observability.Logging.Output,
		Service:     cfg.Application.Name + "-convert",
		Environment: cfg.Application.Environment,
	})

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	sink, err := storage.NewSinkFromConfig(cfg.Storage, cfg.Convert.OutputPath, logger, metrics)
	if err != nil {
		logger.Error("failed to create storage sink", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	runCfg := convert.Config{
		InputPath:    cfg.Convert.InputPath,
		BookmarkPath: *bookmarkPath,
	}
	if cfg.Storage.Backend == storage.BackendFile {
		runCfg.Exclude = append(runCfg.Exclude, filepath.Join(cfg.Storage.File.BasePath, cfg.Convert.OutputPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting conversion",
		"table", cfg.Convert.Database+"."+cfg.Convert.Table,
		"input", cfg.Convert.InputPath,
		"output", sink.Location(""),
		"format", sink.Format(),
		"incremental", *bookmarkPath != "",
	)

	start := time.Now()
	summary, err := convert.New(sink, logger).Run(ctx, runCfg)
	if err != nil {
		logger.Error("conversion failed", "error", err)
		os.Exit(1)
	}

	logger.Info("conversion completed",
		"files", summary.Files,
		"records", summary.Records,
		"skipped", summary.Skipped,
		"partitions", summary.Partitions,
		"bytes", summary.Bytes,
		"duration", time.Since(start),
	)
}
