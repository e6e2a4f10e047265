package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"cleanspend/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func stateRows() []models.StateSummary {
	return []models.StateSummary{
		{StateCode: "CA", StateName: "California", TotalFunding: 900000, AwardCount: 3, AvgAwardSize: 300000, UniqueRecipients: 2, KeywordCount: 4},
		{StateCode: "TX", StateName: "Texas", TotalFunding: 200000, AwardCount: 1, AvgAwardSize: 200000, UniqueRecipients: 1, KeywordCount: 1},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", CSV, false},
		{"CSV", CSV, false},
		{"json", JSON, false},
		{" json ", JSON, false},
		{"excel", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteStates_CSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStates(&buf, stateRows(), CSV); err != nil {
		t.Fatalf("WriteStates() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows", len(records))
	}

	wantHeader := []string{"state_code", "state_name", "total_funding", "award_count", "avg_award_size", "unique_recipients", "keyword_count"}
	if !slices.Equal(records[0], wantHeader) {
		t.Errorf("header = %v", records[0])
	}
	wantRow := []string{"CA", "California", "900000.00", "3", "300000.00", "2", "4"}
	if !slices.Equal(records[1], wantRow) {
		t.Errorf("row = %v, want %v", records[1], wantRow)
	}
}

func TestWriteStates_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStates(&buf, stateRows(), JSON); err != nil {
		t.Fatalf("WriteStates() error = %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["state_code"] != "CA" {
		t.Errorf("state_code = %v", rows[0]["state_code"])
	}
	if rows[0]["total_funding"] != 900000.0 {
		t.Errorf("total_funding = %v", rows[0]["total_funding"])
	}
	for _, key := range []string{"state_name", "award_count", "avg_award_size", "unique_recipients"} {
		if _, ok := rows[0][key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

func TestWriteTimeline_GrowthColumn(t *testing.T) {
	growth := 50.0
	rows := []models.TimePoint{
		{Bucket: "2023-01", Start: day(2023, time.January, 1), TotalFunding: 100, AwardCount: 1, AvgAwardSize: 100, CumulativeFunding: 100},
		{Bucket: "2023-02", Start: day(2023, time.February, 1), TotalFunding: 150, AwardCount: 1, AvgAwardSize: 150, CumulativeFunding: 250, Growth: &growth},
	}

	var buf bytes.Buffer
	if err := WriteTimeline(&buf, rows, CSV); err != nil {
		t.Fatalf("WriteTimeline() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if got := records[1][6]; got != "" {
		t.Errorf("first bucket growth = %q, want empty", got)
	}
	if got := records[2][6]; got != "50.00" {
		t.Errorf("second bucket growth = %q, want 50.00", got)
	}
	if got := records[1][1]; got != "2023-01-01" {
		t.Errorf("start = %q, want 2023-01-01", got)
	}
}

func TestWriteAwards_HeaderCoversImportColumns(t *testing.T) {
	rows := []models.CategorizedAward{{
		Award: models.Award{
			AwardID:       "A1",
			RecipientName: "Helios Energy Inc",
			Amount:        500000,
			StartDate:     day(2023, time.January, 10),
			Agency:        "Department of Energy",
			StateCode:     "CA",
			StateName:     "California",
			Description:   "solar panel deployment, phase two",
			SourceKeyword: "solar",
		},
		Technology:     "Solar",
		MatchedKeyword: "solar",
		RecipientType:  "Corporation",
	}}

	var buf bytes.Buffer
	if err := WriteAwards(&buf, rows, CSV); err != nil {
		t.Fatalf("WriteAwards() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}

	// The CSV import reader requires these columns by name.
	required := []string{"award_id", "recipient_name", "award_amount", "start_date", "state_code", "description"}
	for _, col := range required {
		if !slices.Contains(records[0], col) {
			t.Errorf("header missing import column %q", col)
		}
	}

	row := records[1]
	if row[4] != "" {
		t.Errorf("zero end date = %q, want empty", row[4])
	}
	if row[8] != "solar panel deployment, phase two" {
		t.Errorf("description = %q, commas must survive", row[8])
	}
}

func TestWriteAwards_JSONFlattensEmbedded(t *testing.T) {
	rows := []models.CategorizedAward{{
		Award:         models.Award{AwardID: "A1", Amount: 500000},
		Technology:    "Solar",
		RecipientType: "Corporation",
	}}

	var buf bytes.Buffer
	if err := WriteAwards(&buf, rows, JSON); err != nil {
		t.Fatalf("WriteAwards() error = %v", err)
	}

	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if out[0]["award_id"] != "A1" {
		t.Errorf("award_id = %v, embedded fields must flatten", out[0]["award_id"])
	}
	if out[0]["technology_category"] != "Solar" {
		t.Errorf("technology_category = %v", out[0]["technology_category"])
	}
}

func TestWriteTable_Errors(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteTable(&buf, Tables{}, TableStates, CSV); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("empty table error = %v, want ErrEmptyDataset", err)
	}
	if err := WriteTable(&buf, Tables{States: stateRows()}, "budgets", CSV); err == nil || !strings.Contains(err.Error(), "unknown table") {
		t.Errorf("unknown table error = %v", err)
	}
	if err := WriteStates(&buf, stateRows(), Format("xml")); err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("unsupported format error = %v", err)
	}
}

func TestExporter_Export(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	path, err := e.Export(Tables{States: stateRows()}, TableStates, CSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if path != filepath.Join(dir, "states.csv") {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "state_code,") {
		t.Errorf("unexpected file contents: %q", string(data[:20]))
	}
}

func TestExporter_Export_EmptyLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := e.Export(Tables{}, TableStates, CSV); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("Export() error = %v, want ErrEmptyDataset", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "states.csv")); !os.IsNotExist(err) {
		t.Error("empty export must not leave a file behind")
	}
}

func TestExporter_ExportAll_SkipsEmptyTables(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tables := Tables{
		States: stateRows(),
		Technologies: []models.TechnologySummary{
			{Technology: "Solar", TotalFunding: 900000, AwardCount: 3, AvgAwardSize: 300000, UniqueRecipients: 2, FundingPercentage: 81.8},
		},
	}

	paths, err := e.ExportAll(tables, JSON)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2: %v", len(paths), paths)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing export %q: %v", p, err)
		}
	}
}
