package collector

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cleanspend/internal/taxonomy"
)

func writeImportFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "awards.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write import file: %v", err)
	}
	return path
}

const importHeader = "award_id,recipient_name,award_amount,start_date,end_date,awarding_agency,state_code,state_name,description,source_keyword\n"

func TestImportCSV(t *testing.T) {
	content := importHeader +
		`A1,Helios Energy Inc,500000,2023-01-10,2024-01-10,Department of Energy,CA,California,solar panel deployment,solar
A2,Gale Power LLC,300000,2023-02-10,,Department of Energy,TX,Texas,"offshore wind, phase two",wind
A3,Bad Co,not-a-number,2023-03-01,,,NY,New York,battery storage,battery
`
	path := writeImportFile(t, content)

	st := openTestStore(t)
	c := New(nil, st, taxonomy.Default(), 2, "", discardLogger())

	ctx := context.Background()
	summary, err := c.ImportCSV(ctx, path)
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}

	if summary.Fetched != 3 || summary.Stored != 2 {
		t.Errorf("fetched/stored = %d/%d, want 3/2", summary.Fetched, summary.Stored)
	}
	if summary.SkippedRows.InvalidAmount != 1 {
		t.Errorf("InvalidAmount = %d, want 1", summary.SkippedRows.InvalidAmount)
	}

	count, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("stored %d awards, want 2", count)
	}

	awards, err := st.Awards(ctx)
	if err != nil {
		t.Fatalf("Awards() error = %v", err)
	}
	for _, a := range awards {
		if a.AwardID == "A2" {
			if a.Description != "offshore wind, phase two" {
				t.Errorf("quoted description mangled: %q", a.Description)
			}
			if a.RunID != summary.RunID {
				t.Errorf("RunID = %q, want %q", a.RunID, summary.RunID)
			}
		}
	}

	runs, err := st.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if runs[0].Mode != "csv_import" || runs[0].Status != StatusCompleted {
		t.Errorf("run = %+v, want completed csv_import", runs[0])
	}
}

func TestImportCSV_MissingColumn(t *testing.T) {
	content := "award_id,recipient_name,award_amount,start_date,description\n" +
		"A1,Helios Energy Inc,500000,2023-01-10,solar panels\n"
	path := writeImportFile(t, content)

	st := openTestStore(t)
	c := New(nil, st, taxonomy.Default(), 2, "", discardLogger())

	_, err := c.ImportCSV(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for missing column")
	}
	if !strings.Contains(err.Error(), `missing column "state_code"`) {
		t.Errorf("error = %v, want missing state_code", err)
	}
}

func TestImportCSV_HeaderOnly(t *testing.T) {
	path := writeImportFile(t, importHeader)

	st := openTestStore(t)
	c := New(nil, st, taxonomy.Default(), 2, "", discardLogger())

	ctx := context.Background()
	_, err := c.ImportCSV(ctx, path)
	if err == nil {
		t.Fatal("expected error for file with no rows")
	}
	if !strings.Contains(err.Error(), "no award rows") {
		t.Errorf("error = %v, want no award rows", err)
	}

	runs, runsErr := st.Runs(ctx, 1)
	if runsErr != nil {
		t.Fatalf("Runs() error = %v", runsErr)
	}
	if runs[0].Status != StatusFailed {
		t.Errorf("run status = %q, want %q", runs[0].Status, StatusFailed)
	}
}

func TestImportCSV_FileMissing(t *testing.T) {
	st := openTestStore(t)
	c := New(nil, st, taxonomy.Default(), 2, "", discardLogger())

	if _, err := c.ImportCSV(context.Background(), filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestImportCSV_Upsert(t *testing.T) {
	first := importHeader +
		"A1,Helios Energy Inc,500000,2023-01-10,,Department of Energy,CA,California,solar panel deployment,solar\n"
	second := importHeader +
		"A1,Helios Energy Inc,750000,2023-01-10,,Department of Energy,CA,California,solar panel deployment,solar\n"

	st := openTestStore(t)
	c := New(nil, st, taxonomy.Default(), 2, "", discardLogger())
	ctx := context.Background()

	if _, err := c.ImportCSV(ctx, writeImportFile(t, first)); err != nil {
		t.Fatalf("first import error = %v", err)
	}
	if _, err := c.ImportCSV(ctx, writeImportFile(t, second)); err != nil {
		t.Fatalf("second import error = %v", err)
	}

	count, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("stored %d awards after re-import, want 1", count)
	}

	awards, err := st.Awards(ctx)
	if err != nil {
		t.Fatalf("Awards() error = %v", err)
	}
	if awards[0].Amount != 750000 {
		t.Errorf("Amount = %v, want updated 750000", awards[0].Amount)
	}
}
