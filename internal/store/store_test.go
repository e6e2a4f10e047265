package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cleanspend/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "awards.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storedAward(id string, amount float64, collected time.Time) models.Award {
	return models.Award{
		AwardID:       id,
		RecipientName: "Helios Energy Inc",
		Amount:        amount,
		StartDate:     time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC),
		StateCode:     "CA",
		Description:   "solar panel deployment",
		CollectedAt:   collected,
	}
}

func TestOpen_EmptyStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Count = %d, want 0", count)
	}

	fp, err := s.Fingerprint(ctx)
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}
	if fp != "0-0" {
		t.Errorf("Empty fingerprint = %q, want 0-0", fp)
	}
}

func TestUpsertAwards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	n, err := s.UpsertAwards(ctx, []models.Award{
		storedAward("A1", 100000, now),
		storedAward("A2", 200000, now),
	})
	if err != nil {
		t.Fatalf("UpsertAwards() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Rows written = %d, want 2", n)
	}

	count, _ := s.Count(ctx)
	if count != 2 {
		t.Fatalf("Count = %d, want 2", count)
	}

	// Re-collecting the same award updates instead of duplicating.
	if _, err := s.UpsertAwards(ctx, []models.Award{storedAward("A1", 150000, now)}); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	count, _ = s.Count(ctx)
	if count != 2 {
		t.Errorf("Count after re-upsert = %d, want 2", count)
	}

	awards, err := s.Awards(ctx)
	if err != nil {
		t.Fatalf("Awards() failed: %v", err)
	}
	for _, a := range awards {
		if a.AwardID == "A1" && a.Amount != 150000 {
			t.Errorf("A1 amount = %f, want updated 150000", a.Amount)
		}
	}
}

func TestUpsertAwards_Empty(t *testing.T) {
	s := openTestStore(t)

	n, err := s.UpsertAwards(context.Background(), nil)
	if err != nil {
		t.Fatalf("UpsertAwards(nil) failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Rows written = %d, want 0", n)
	}
}

func TestAwards_OrderedByStartDate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	early := storedAward("A1", 100, now)
	early.StartDate = time.Date(2010, 5, 1, 0, 0, 0, 0, time.UTC)
	late := storedAward("A2", 200, now)
	late.StartDate = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.UpsertAwards(ctx, []models.Award{late, early}); err != nil {
		t.Fatal(err)
	}

	awards, err := s.Awards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(awards) != 2 {
		t.Fatalf("Expected 2 awards, got %d", len(awards))
	}
	if awards[0].AwardID != "A1" {
		t.Errorf("Awards should be ordered by start date, got %s first", awards[0].AwardID)
	}
}

func TestFingerprint_TracksChanges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.UpsertAwards(ctx, []models.Award{storedAward("A1", 100, t0)}); err != nil {
		t.Fatal(err)
	}
	fp1, err := s.Fingerprint(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.UpsertAwards(ctx, []models.Award{storedAward("A2", 200, t0.Add(time.Hour))}); err != nil {
		t.Fatal(err)
	}
	fp2, err := s.Fingerprint(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if fp1 == fp2 {
		t.Errorf("Fingerprint should change after new rows: %q vs %q", fp1, fp2)
	}
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &models.CollectionRun{
		ID:        "run-1",
		Mode:      "full",
		StartedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Status:    "running",
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}

	run.Status = "completed"
	run.Fetched = 120
	run.Stored = 110
	run.FinishedAt = run.StartedAt.Add(time.Minute)
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun() failed: %v", err)
	}

	later := &models.CollectionRun{
		ID:        "run-2",
		Mode:      "resume",
		StartedAt: time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC),
		Status:    "running",
	}
	if err := s.SaveRun(ctx, later); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("Runs should be newest first, got %s", runs[0].ID)
	}
	if runs[1].Status != "completed" || runs[1].Stored != 110 {
		t.Errorf("Updated run not persisted: %+v", runs[1])
	}
}

func TestRuns_Limit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		run := &models.CollectionRun{
			ID:        string(rune('a' + i)),
			StartedAt: time.Date(2024, 6, 1+i, 0, 0, 0, 0, time.UTC),
			Status:    "completed",
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.Runs(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Errorf("Expected 3 runs, got %d", len(runs))
	}
}
