// Command processor loads the three source feeds, builds the combined
// series at the requested frequencies and writes them to disk together
// with the headline statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fundtracker/internal/config"
	"fundtracker/internal/exporter"
	"fundtracker/internal/infrastructure"
	"fundtracker/internal/services"
	"fundtracker/internal/timeseries"
)

func main() {
	outDir := flag.String("out", "", "output directory for exported files (defaults to the configured export dir)")
	freqList := flag.String("freq", "daily,weekly,monthly", "comma separated list of frequencies to export")
	withStats := flag.Bool("stats", true, "export headline statistics and patch summaries as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	if *outDir == "" {
		*outDir = cfg.Export.OutputDir
	}

	frequencies, err := parseFrequencies(*freqList)
	if err != nil {
		logger.Error("Invalid frequency list", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Starting feed processing",
		slog.String("transactions", cfg.Feeds.TransactionsFile),
		slog.String("annotations", cfg.Feeds.AnnotationsFile),
		slog.String("versions", cfg.Feeds.VersionsFile),
		slog.String("output_dir", *outDir))

	service, err := services.NewTrackerService(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to load feeds", slog.String("error", err.Error()))
		os.Exit(1)
	}

	report := service.LoadReport()
	logger.Info("Feeds loaded",
		slog.Int("transactions_accepted", report.TransactionsAccepted),
		slog.Int("transactions_rejected", report.TransactionsRejected),
		slog.Int("timestamps_repaired", report.TimestampsRepaired),
		slog.Int("unresolved_dates", report.UnresolvedDates),
		slog.Int("annotations_accepted", report.AnnotationsAccepted),
		slog.Int("versions_accepted", report.VersionsAccepted))

	writer := exporter.NewCSVWriter(*outDir, logger)

	for _, freq := range frequencies {
		series, err := service.CompleteSeries(freq)
		if err != nil {
			logger.Error("Failed to build series",
				slog.String("freq", freq.String()),
				slog.String("error", err.Error()))
			os.Exit(1)
		}

		filename := fmt.Sprintf("combined_%s.csv", freq.String())
		if err := writer.WriteSeries(filename, series); err != nil {
			logger.Error("Failed to write series",
				slog.String("file", filename),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Series exported",
			slog.String("file", filename),
			slog.Int("rows", series.Len()))
	}

	if *withStats {
		if err := exportStatistics(service, writer, logger); err != nil {
			logger.Error("Failed to export statistics", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if err := writer.WriteJSON("load_report.json", report); err != nil {
		logger.Error("Failed to write load report", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Processing completed")
}

func parseFrequencies(list string) ([]timeseries.Frequency, error) {
	var out []timeseries.Frequency
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		freq, err := timeseries.ParseFrequency(part)
		if err != nil {
			return nil, err
		}
		out = append(out, freq)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no frequencies given")
	}
	return out, nil
}

func exportStatistics(service *services.TrackerService, writer *exporter.CSVWriter, logger *slog.Logger) error {
	statistics, err := service.MainStatistics()
	if err != nil {
		return fmt.Errorf("main statistics: %w", err)
	}
	if err := writer.WriteJSON("statistics.json", exporter.StatisticsDocument(statistics)); err != nil {
		return err
	}

	// Patch summaries need the version feed, which is optional.
	patches, err := service.PatchStats()
	if err != nil {
		logger.Warn("Skipping patch summaries", slog.String("reason", err.Error()))
		return nil
	}
	return writer.WriteJSON("patch_stats.json", patches)
}
