package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cleanspend/internal/models"
	"cleanspend/internal/observability"
	"cleanspend/internal/services"
	"cleanspend/internal/taxonomy"
)

// Task kinds in the collection plan.
const (
	KindAwards  = "awards"
	KindCFDA    = "cfda"
	KindKeyword = "keyword"
)

// Run statuses recorded on collection runs.
const (
	StatusRunning      = "running"
	StatusCompleted    = "completed"
	StatusWithFailures = "completed_with_failures"
	StatusCancelled    = "cancelled"
)

// Task is one unit of the collection plan. ID is stable across runs so the
// progress file can skip completed work.
type Task struct {
	ID       string
	Kind     string
	Keyword  string
	Filters  Filters
	MaxPages int
}

// PlanOptions sets per-kind page budgets. Zero values take the defaults.
type PlanOptions struct {
	PeriodPages  int
	CFDAPages    int
	KeywordPages int
}

func (o PlanOptions) withDefaults() PlanOptions {
	if o.PeriodPages <= 0 {
		o.PeriodPages = 20
	}
	if o.CFDAPages <= 0 {
		o.CFDAPages = 10
	}
	if o.KeywordPages <= 0 {
		o.KeywordPages = 5
	}
	return o
}

// Plan builds the full collection task list: every named period crossed with
// every award-type group searching the whole keyword vocabulary, one task
// per energy CFDA program over the full window, and one task per priority
// keyword over the current policy period. Task order is deterministic.
func Plan(tax *taxonomy.Taxonomy, opts PlanOptions) []Task {
	opts = opts.withDefaults()
	var tasks []Task

	for _, p := range tax.Periods {
		for _, group := range awardGroupOrder {
			tasks = append(tasks, Task{
				ID:   fmt.Sprintf("awards_%s_%s", p.Name, group),
				Kind: KindAwards,
				Filters: Filters{
					TimePeriod:     periodRange(p),
					Keywords:       CleanEnergyKeywords,
					AwardTypeCodes: AwardTypeGroups[group],
				},
				MaxPages: opts.PeriodPages,
			})
		}
	}

	if full, ok := tax.Period(taxonomy.FullPeriodName); ok {
		for _, code := range EnergyCFDACodes {
			tasks = append(tasks, Task{
				ID:      "cfda_" + code,
				Kind:    KindCFDA,
				Keyword: code,
				Filters: Filters{
					TimePeriod:     periodRange(full),
					CFDANumbers:    []string{code},
					AwardTypeCodes: AwardTypeGroups["grants"],
				},
				MaxPages: opts.CFDAPages,
			})
		}
	}

	if current, ok := tax.Period("ira_chips_period"); ok {
		for _, kw := range PriorityKeywords {
			tasks = append(tasks, Task{
				ID:      "keyword_" + strings.ReplaceAll(kw, " ", "_"),
				Kind:    KindKeyword,
				Keyword: kw,
				Filters: Filters{
					TimePeriod: periodRange(current),
					Keywords:   []string{kw},
				},
				MaxPages: opts.KeywordPages,
			})
		}
	}

	return tasks
}

// Store is the persistence surface the collector writes to.
type Store interface {
	UpsertAwards(ctx context.Context, awards []models.Award) (int, error)
	SaveRun(ctx context.Context, run *models.CollectionRun) error
	UpdateRun(ctx context.Context, run *models.CollectionRun) error
}

// Summary reports one finished run.
type Summary struct {
	RunID        string            `json:"run_id"`
	Tasks        int               `json:"tasks"`
	Completed    int               `json:"completed"`
	SkippedTasks int               `json:"skipped_tasks"`
	Failures     int               `json:"failures"`
	Fetched      int               `json:"fetched"`
	Stored       int               `json:"stored"`
	SkippedRows  models.SkipReport `json:"skipped_rows"`
	Duration     time.Duration     `json:"duration"`
}

// Collector runs the collection plan against the upstream API and persists
// the cleaned rows.
type Collector struct {
	client       *Client
	store        Store
	tax          *taxonomy.Taxonomy
	workers      int
	progressPath string
	logger       *slog.Logger
}

func New(client *Client, store Store, tax *taxonomy.Taxonomy, workers int, progressPath string, logger *slog.Logger) *Collector {
	if tax == nil {
		tax = taxonomy.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		client:       client,
		store:        store,
		tax:          tax,
		workers:      workers,
		progressPath: progressPath,
		logger:       logger,
	}
}

// Run executes the plan through a bounded worker pool. Individual task
// failures are counted, not fatal; rows from completed tasks are kept even
// when other tasks fail. Only context cancellation aborts the run.
func (c *Collector) Run(ctx context.Context, mode string, plan []Task) (*Summary, error) {
	start := time.Now()
	run := &models.CollectionRun{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: start.UTC(),
		Status:    StatusRunning,
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	progress, err := loadProgress(c.progressPath)
	if err != nil {
		c.logger.Warn("could not load progress file, starting fresh", "path", c.progressPath, "error", err)
	}
	if n := progress.count(); n > 0 {
		c.logger.Info("resuming collection", "completed_tasks", n)
	}

	var (
		mu      sync.Mutex
		summary = Summary{RunID: run.ID, Tasks: len(plan)}
	)

	var g errgroup.Group
	g.SetLimit(c.workers)

	for _, task := range plan {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if progress.done(task.ID) {
				c.logger.Info("skipping completed task", "task", task.ID)
				mu.Lock()
				summary.SkippedTasks++
				mu.Unlock()
				return nil
			}

			fetched, stored, skips, err := c.runTask(ctx, run.ID, task)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				summary.Failures++
				c.logger.Error("task failed", "task", task.ID, "error", err)
				return nil
			}

			summary.Completed++
			summary.Fetched += fetched
			summary.Stored += stored
			summary.SkippedRows.Add(skips)

			if err := progress.mark(task.ID, fetched); err != nil {
				c.logger.Warn("could not save progress", "task", task.ID, "error", err)
			}
			return nil
		})
	}

	waitErr := g.Wait()
	summary.Duration = time.Since(start)

	run.FinishedAt = time.Now().UTC()
	run.Fetched = summary.Fetched
	run.Stored = summary.Stored
	run.Skipped = summary.SkippedRows.Total()
	run.Failures = summary.Failures
	switch {
	case waitErr != nil:
		run.Status = StatusCancelled
	case summary.Failures > 0:
		run.Status = StatusWithFailures
	default:
		run.Status = StatusCompleted
	}

	// Final bookkeeping survives cancellation.
	if err := c.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Error("could not finalize run record", "run", run.ID, "error", err)
	}

	c.logger.Info("collection run finished",
		"run", run.ID,
		"status", run.Status,
		"tasks", summary.Tasks,
		"completed", summary.Completed,
		"skipped_tasks", summary.SkippedTasks,
		"failures", summary.Failures,
		"fetched", summary.Fetched,
		"stored", summary.Stored,
		"skipped_rows", summary.SkippedRows.Total(),
		"duration", summary.Duration)

	return &summary, waitErr
}

func (c *Collector) runTask(ctx context.Context, runID string, task Task) (fetched, stored int, skips models.SkipReport, err error) {
	ctx, span := observability.StartSpan(ctx, "collector.task")
	span.SetTag("task", task.ID)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Done(c.logger)
	}()

	records, err := c.client.CollectAwards(ctx, task.Filters, task.MaxPages)
	if err != nil {
		return 0, 0, models.SkipReport{}, err
	}

	raws := make([]models.RawAward, 0, len(records))
	for _, rec := range records {
		raws = append(raws, rawFromRecord(rec, task.Keyword))
	}

	awards, skips := services.CleanRaw(c.tax, raws)
	now := time.Now().UTC()
	for i := range awards {
		awards[i].RunID = runID
		awards[i].CollectedAt = now
	}

	if len(awards) > 0 {
		stored, err = c.store.UpsertAwards(ctx, awards)
		if err != nil {
			return len(records), 0, skips, fmt.Errorf("store awards: %w", err)
		}
	}

	c.logger.Info("task complete",
		"task", task.ID,
		"fetched", len(records),
		"stored", stored,
		"skipped", skips.Total())
	return len(records), stored, skips, nil
}

// CrossCheck pulls the API's own state and monthly aggregates for the full
// analysis window and logs where stored totals diverge. Stored data covers
// only cleaned rows, so deltas are expected; large ones point at collection
// gaps.
func (c *Collector) CrossCheck(ctx context.Context, awards []models.Award) (err error) {
	ctx, span := observability.StartSpan(ctx, "collector.crosscheck")
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Done(c.logger)
	}()

	full, ok := c.tax.Period(taxonomy.FullPeriodName)
	if !ok {
		return fmt.Errorf("no %s period configured", taxonomy.FullPeriodName)
	}
	filters := Filters{
		TimePeriod: periodRange(full),
		Keywords:   CleanEnergyKeywords,
	}

	states, err := c.client.SpendingByState(ctx, filters)
	if err != nil {
		return fmt.Errorf("spending by state: %w", err)
	}
	buckets, err := c.client.SpendingOverTime(ctx, filters, "month")
	if err != nil {
		return fmt.Errorf("spending over time: %w", err)
	}

	storedByState := make(map[string]float64)
	var storedTotal float64
	for _, a := range awards {
		storedByState[a.StateCode] += a.Amount
		storedTotal += a.Amount
	}

	var apiTotal float64
	for _, b := range buckets {
		apiTotal += b.Amount
	}

	for _, s := range states {
		local := storedByState[s.ShapeCode]
		if s.Amount == 0 {
			continue
		}
		coverage := local / s.Amount * 100
		c.logger.Info("state coverage",
			"state", s.ShapeCode,
			"api_total", s.Amount,
			"stored_total", local,
			"coverage_pct", fmt.Sprintf("%.1f", coverage))
	}

	c.logger.Info("cross-check complete",
		"api_states", len(states),
		"api_months", len(buckets),
		"api_total", apiTotal,
		"stored_total", storedTotal)
	return nil
}

// taskProgress is one completed entry in the progress file.
type taskProgress struct {
	CompletedAt time.Time `json:"completed_at"`
	Records     int       `json:"records"`
}

// progressLog tracks completed task IDs across runs through a JSON file.
// A missing file means a fresh start.
type progressLog struct {
	path  string
	mu    sync.Mutex
	tasks map[string]taskProgress
}

func loadProgress(path string) (*progressLog, error) {
	p := &progressLog{path: path, tasks: make(map[string]taskProgress)}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p.tasks); err != nil {
		return p, fmt.Errorf("parse progress file: %w", err)
	}
	return p, nil
}

func (p *progressLog) done(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[id]
	return ok
}

func (p *progressLog) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *progressLog) mark(id string, records int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks[id] = taskProgress{CompletedAt: time.Now().UTC(), Records: records}
	if p.path == "" {
		return nil
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(p.tasks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o644)
}
