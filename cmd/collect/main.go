package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cleanspend/internal/collector"
	"cleanspend/internal/config"
	"cleanspend/internal/observability"
	"cleanspend/internal/store"
	"cleanspend/internal/taxonomy"
)

const (
	modeTest = "test"
	modeFull = "full"
)

// Test mode keeps runs short enough to sanity-check wiring against the live
// API without burning the request budget.
var testPlanOptions = collector.PlanOptions{
	PeriodPages:  2,
	CFDAPages:    1,
	KeywordPages: 1,
}

func main() {
	var (
		mode       = flag.String("mode", modeTest, "collection mode: test (few pages per task) or full")
		periods    = flag.String("periods", "", "comma-separated period names to collect (default: all)")
		maxPages   = flag.Int("max-pages", 0, "page budget per task, overriding the mode defaults")
		workers    = flag.Int("workers", 0, "concurrent collection tasks (default from config)")
		progress   = flag.String("progress", "", "progress file path (default from config)")
		resume     = flag.Bool("resume", true, "skip tasks already recorded in the progress file")
		verify     = flag.Bool("verify", false, "cross-check stored totals against the API's own aggregates after the run")
		importFile = flag.String("import", "", "import awards from a CSV file instead of collecting from the API")
	)
	flag.Parse()

	if *mode != modeTest && *mode != modeFull {
		fmt.Fprintf(os.Stderr, "unknown mode %q: use %s or %s\n", *mode, modeTest, modeFull)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	if *workers > 0 {
		cfg.Collector.Workers = *workers
	}
	if *progress != "" {
		cfg.Collector.ProgressFile = *progress
	}

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

	client := collector.NewClient(cfg.Collector, logger)
	c := collector.New(client, st, tax, cfg.Collector.Workers, cfg.Collector.ProgressFile, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*resume {
		if err := os.Remove(cfg.Collector.ProgressFile); err != nil && !os.IsNotExist(err) {
			logger.Warn("could not clear progress file", "path", cfg.Collector.ProgressFile, "error", err)
		}
	}

	var summary *collector.Summary
	if *importFile != "" {
		summary, err = c.ImportCSV(ctx, *importFile)
	} else {
		plan, planErr := buildPlan(tax, cfg, *mode, *periods, *maxPages)
		if planErr != nil {
			logger.Error("invalid collection plan", "error", planErr)
			os.Exit(2)
		}
		logger.Info("collection plan built", "mode", *mode, "tasks", len(plan))
		summary, err = c.Run(ctx, *mode, plan)
	}
	if err != nil {
		logger.Error("collection aborted", "error", err)
		os.Exit(1)
	}

	printSummary(summary)

	if *verify {
		awards, err := st.Awards(ctx)
		if err != nil {
			logger.Error("failed to load stored awards for verification", "error", err)
			os.Exit(1)
		}
		if err := c.CrossCheck(ctx, awards); err != nil {
			logger.Error("cross-check failed", "error", err)
			os.Exit(1)
		}
	}

	if summary.Failures > 0 {
		logger.Warn("run completed with failures", "failures", summary.Failures)
	}
}

// buildPlan assembles the task list for the requested mode and restricts it
// to the named periods when -periods is given.
func buildPlan(tax *taxonomy.Taxonomy, cfg *config.Config, mode, periods string, maxPages int) ([]collector.Task, error) {
	opts := collector.PlanOptions{}
	if mode == modeTest {
		opts = testPlanOptions
	} else if cfg.Collector.MaxPages > 0 {
		opts.PeriodPages = cfg.Collector.MaxPages
	}
	if maxPages > 0 {
		opts.PeriodPages = maxPages
		opts.CFDAPages = maxPages
		opts.KeywordPages = maxPages
	}

	plan := collector.Plan(tax, opts)
	if periods == "" {
		return plan, nil
	}

	names := strings.Split(periods, ",")
	for i, name := range names {
		names[i] = strings.TrimSpace(name)
		if _, ok := tax.Period(names[i]); !ok {
			return nil, fmt.Errorf("unknown period %q", names[i])
		}
	}

	var filtered []collector.Task
	for _, task := range plan {
		for _, name := range names {
			if strings.HasPrefix(task.ID, "awards_"+name+"_") {
				filtered = append(filtered, task)
				break
			}
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("no tasks match periods %q", periods)
	}
	return filtered, nil
}

func printSummary(s *collector.Summary) {
	fmt.Printf("run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Printf("  tasks: %d total, %d completed, %d skipped, %d failed\n",
		s.Tasks, s.Completed, s.SkippedTasks, s.Failures)
	fmt.Printf("  records: %d fetched, %d stored, %d skipped during cleaning\n",
		s.Fetched, s.Stored, s.SkippedRows.Total())
}
