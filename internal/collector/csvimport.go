package collector

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cleanspend/internal/models"
	"cleanspend/internal/services"
)

const importBatchSize = 500

// StatusFailed marks runs aborted by an error rather than cancellation.
const StatusFailed = "failed"

// requiredImportColumns must appear in the header row. Header matching is
// case-insensitive; extra columns are ignored.
var requiredImportColumns = []string{
	"award_id",
	"recipient_name",
	"award_amount",
	"start_date",
	"state_code",
	"description",
}

// ImportCSV bulk-loads a previously exported award file for backfill. Rows
// stream through the cleaner in batches; cleaning skips are counted per
// reason, but a malformed file or store failure aborts the import.
func (c *Collector) ImportCSV(ctx context.Context, path string) (*Summary, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredImportColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("import file missing column %q", name)
		}
	}

	run := &models.CollectionRun{
		ID:        uuid.NewString(),
		Mode:      "csv_import",
		StartedAt: start.UTC(),
		Status:    StatusRunning,
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = Summary{RunID: run.ID}
	)

	var g errgroup.Group
	g.SetLimit(c.workers)

	flush := func(batch []models.RawAward) {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			awards, skips := services.CleanRaw(c.tax, batch)
			now := time.Now().UTC()
			for i := range awards {
				awards[i].RunID = run.ID
				awards[i].CollectedAt = now
			}

			// Writes stay serialized; SQLite holds a single write lock.
			mu.Lock()
			defer mu.Unlock()
			stored := 0
			if len(awards) > 0 {
				var err error
				stored, err = c.store.UpsertAwards(ctx, awards)
				if err != nil {
					return fmt.Errorf("store batch: %w", err)
				}
			}
			summary.Tasks++
			summary.Completed++
			summary.Fetched += len(batch)
			summary.Stored += stored
			summary.SkippedRows.Add(skips)
			return nil
		})
	}

	var readErr error
	rows := 0
	batch := make([]models.RawAward, 0, importBatchSize)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("read row %d: %w", rows+1, err)
			break
		}
		rows++
		batch = append(batch, rawFromColumns(record, cols))
		if len(batch) >= importBatchSize {
			flush(batch)
			batch = make([]models.RawAward, 0, importBatchSize)
		}
	}
	if len(batch) > 0 && readErr == nil {
		flush(batch)
	}

	waitErr := g.Wait()
	summary.Duration = time.Since(start)

	finalErr := readErr
	if finalErr == nil {
		finalErr = waitErr
	}
	if finalErr == nil && rows == 0 {
		finalErr = fmt.Errorf("no award rows in %s", path)
	}

	run.FinishedAt = time.Now().UTC()
	run.Fetched = summary.Fetched
	run.Stored = summary.Stored
	run.Skipped = summary.SkippedRows.Total()
	if finalErr != nil {
		run.Status = StatusFailed
		run.Failures = 1
	} else {
		run.Status = StatusCompleted
	}
	if err := c.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Error("could not finalize run record", "run", run.ID, "error", err)
	}

	c.logger.Info("csv import finished",
		"run", run.ID,
		"path", path,
		"status", run.Status,
		"rows", rows,
		"stored", summary.Stored,
		"skipped_rows", summary.SkippedRows.Total(),
		"duration", summary.Duration)

	if finalErr != nil {
		return &summary, finalErr
	}
	return &summary, nil
}

func rawFromColumns(record []string, cols map[string]int) models.RawAward {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}
	return models.RawAward{
		AwardID:       field("award_id"),
		RecipientName: field("recipient_name"),
		Amount:        field("award_amount"),
		StartDate:     field("start_date"),
		EndDate:       field("end_date"),
		Agency:        field("awarding_agency"),
		StateCode:     field("state_code"),
		StateName:     field("state_name"),
		Description:   field("description"),
		SourceKeyword: field("source_keyword"),
	}
}
