package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cleanspend/internal/config"
	"cleanspend/internal/export"
	"cleanspend/internal/observability"
	"cleanspend/internal/report"
	"cleanspend/internal/services"
	"cleanspend/internal/store"
	"cleanspend/internal/taxonomy"
)

const loadTimeout = 60 * time.Second

func main() {
	var (
		out       = flag.String("out", "", "output path; - writes to stdout, empty uses a dated name under the export dir")
		top       = flag.Int("top", 0, "states in the rank table (default 10)")
		exportFmt = flag.String("export", "", "also export every aggregate table in this format (csv or json)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open award store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	tax := taxonomy.Default()
	if cfg.Taxonomy.File != "" {
		tax, err = taxonomy.Load(cfg.Taxonomy.File)
		if err != nil {
			logger.Error("failed to load taxonomy", "error", err)
			os.Exit(1)
		}
	}

	analytics := services.NewAnalytics(st, tax, services.Options{
		CacheDir:        cfg.Analytics.CacheDir,
		TopRecipients:   cfg.Analytics.TopRecipients,
		MinTrendPoints:  cfg.Analytics.MinTrendPoints,
		TrendThreshold:  cfg.Analytics.TrendThreshold,
		SeasonalMinimum: cfg.Analytics.SeasonalMinimum,
	})

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	if err := analytics.Load(ctx); err != nil {
		logger.Error("failed to load award data", "error", err)
		os.Exit(1)
	}

	snap, err := analytics.Current()
	if err != nil {
		logger.Error("no analytics snapshot available", "error", err)
		os.Exit(1)
	}

	content := report.RenderTop(snap, *top)

	if *out == "-" {
		fmt.Print(content)
	} else {
		path := *out
		if path == "" {
			path = filepath.Join(cfg.Export.Dir, report.Filename(time.Now()))
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logger.Error("failed to create report directory", "dir", dir, "error", err)
				os.Exit(1)
			}
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			logger.Error("failed to write report", "path", path, "error", err)
			os.Exit(1)
		}
		logger.Info("report written",
			"path", path,
			"awards", snap.Summary.AwardCount,
			"states", snap.Summary.UniqueStates,
		)
		fmt.Println(path)
	}

	if *exportFmt != "" {
		format, err := export.ParseFormat(*exportFmt)
		if err != nil {
			logger.Error("invalid export format", "error", err)
			os.Exit(2)
		}

		exporter := export.New(cfg.Export.Dir, logger)
		paths, err := exporter.ExportAll(export.Tables{
			States:       snap.States,
			Technologies: snap.Technologies,
			Recipients:   snap.Recipients,
			Timeline:     snap.Monthly,
			Keywords:     snap.Keywords,
			Awards:       snap.Records,
		}, format)
		if err != nil {
			logger.Error("table export failed", "error", err)
			os.Exit(1)
		}
		logger.Info("tables exported", "count", len(paths), "dir", cfg.Export.Dir)
	}
}
