// Package export renders aggregate tables and award sets as CSV or JSON,
// either to a writer or as files under the export directory. CSV column
// order is fixed; JSON is an array of objects with snake_case keys.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cleanspend/internal/models"
)

// Format selects the output encoding.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ErrEmptyDataset rejects exports with nothing to write.
var ErrEmptyDataset = errors.New("cannot export empty dataset")

// ParseFormat validates a format string from config or a query parameter.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", s)
	}
}

// Exportable table names.
const (
	TableStates       = "states"
	TableTechnologies = "technologies"
	TableRecipients   = "recipients"
	TableTimeline     = "timeline"
	TableKeywords     = "keywords"
	TableAwards       = "awards"
)

// TableNames lists every exportable table in output order.
var TableNames = []string{
	TableStates,
	TableTechnologies,
	TableRecipients,
	TableTimeline,
	TableKeywords,
	TableAwards,
}

// Tables bundles everything exportable from one analytics snapshot.
type Tables struct {
	States       []models.StateSummary
	Technologies []models.TechnologySummary
	Recipients   []models.RecipientSummary
	Timeline     []models.TimePoint
	Keywords     []models.KeywordStat
	Awards       []models.CategorizedAward
}

// WriteTable renders one named table from the bundle.
func WriteTable(w io.Writer, t Tables, name string, format Format) error {
	switch name {
	case TableStates:
		return WriteStates(w, t.States, format)
	case TableTechnologies:
		return WriteTechnologies(w, t.Technologies, format)
	case TableRecipients:
		return WriteRecipients(w, t.Recipients, format)
	case TableTimeline:
		return WriteTimeline(w, t.Timeline, format)
	case TableKeywords:
		return WriteKeywords(w, t.Keywords, format)
	case TableAwards:
		return WriteAwards(w, t.Awards, format)
	default:
		return fmt.Errorf("unknown table: %q", name)
	}
}

func WriteStates(w io.Writer, rows []models.StateSummary, format Format) error {
	if len(rows) == 0 {
		return ErrEmptyDataset
	}
	header := []string{"state_code", "state_name", "total_funding", "award_count", "avg_award_size", "unique_recipients", "keyword_count"}
	return writeRows(w, format, rows, header, func(r models.StateSummary) []string {
		return []string{
			r.StateCode,
			r.StateName,
			money(r.TotalFunding),
			strconv.Itoa(r.AwardCount),
			money(r.AvgAwardSize),
			strconv.Itoa(r.UniqueRecipients),
			strconv.Itoa(r.KeywordCount),
		}
	})
}

func WriteTechnologies(w io.Writer, rows []models.TechnologySummary, format Format) error {
	if len(rows) == 0 {
		return ErrEmptyDataset
	}
	header := []string{"technology_category", "total_funding", "award_count", "avg_award_size", "unique_recipients", "funding_percentage"}
	return writeRows(w, format, rows, header, func(r models.TechnologySummary) []string {
		return []string{
			r.Technology,
			money(r.TotalFunding),
			strconv.Itoa(r.AwardCount),
			money(r.AvgAwardSize),
			strconv.Itoa(r.UniqueRecipients),
			strconv.FormatFloat(r.FundingPercentage, 'f', 1, 64),
		}
	})
}

func WriteRecipients(w io.Writer, rows []models.RecipientSummary, format Format) error {
	if len(rows) == 0 {
		return ErrEmptyDataset
	}
	header := []string{"recipient_name", "recipient_type", "total_funding", "award_count", "avg_award_size", "primary_state", "primary_technology"}
	return writeRows(w, format, rows, header, func(r models.RecipientSummary) []string {
		return []string{
			r.RecipientName,
			r.RecipientType,
			money(r.TotalFunding),
			strconv.Itoa(r.AwardCount),
			money(r.AvgAwardSize),
			r.PrimaryState,
			r.PrimaryTechnology,
		}
	})
}

func WriteTimeline(w io.Writer, rows []models.TimePoint, format Format) error {
	if len(rows) == 0 {
		return ErrEmptyDataset
	}
	header := []string{"bucket", "start", "total_funding", "award_count", "avg_award_size", "cumulative_funding", "growth"}
	return writeRows(w, format, rows, header, func(r models.TimePoint) []string {
		growth := ""
		if r.Growth != nil {
			growth = strconv.FormatFloat(*r.Growth, 'f', 2, 64)
		}
		return []string{
			r.Bucket,
			fmtDate(r.Start),
			money(r.TotalFunding),
			strconv.Itoa(r.AwardCount),
			money(r.AvgAwardSize),
			money(r.CumulativeFunding),
			growth,
		}
	})
}

func WriteKeywords(w io.Writer, rows []models.KeywordStat, format Format) error {
	if len(rows) == 0 {
		return ErrEmptyDataset
	}
	header := []string{"keyword", "technology_category", "total_funding", "award_count", "state_count"}
	return writeRows(w, format, rows, header, func(r models.KeywordStat) []string {
		return []string{
			r.Keyword,
			r.Technology,
			money(r.TotalFunding),
			strconv.Itoa(r.AwardCount),
			strconv.Itoa(r.StateCount),
		}
	})
}

// WriteAwards renders the categorized award set. The CSV header is a
// superset of the import format, so exported files round-trip.
func WriteAwards(w io.Writer, rows []models.CategorizedAward, format Format) error {
	if len(rows) == 0 {
		return ErrEmptyDataset
	}
	header := []string{
		"award_id", "recipient_name", "award_amount", "start_date", "end_date",
		"awarding_agency", "state_code", "state_name", "description",
		"source_keyword", "technology_category", "matched_keyword", "recipient_type",
	}
	return writeRows(w, format, rows, header, func(r models.CategorizedAward) []string {
		return []string{
			r.AwardID,
			r.RecipientName,
			money(r.Amount),
			fmtDate(r.StartDate),
			fmtDate(r.EndDate),
			r.Agency,
			r.StateCode,
			r.StateName,
			r.Description,
			r.SourceKeyword,
			r.Technology,
			r.MatchedKeyword,
			r.RecipientType,
		}
	})
}

func writeRows[T any](w io.Writer, format Format, rows []T, header []string, csvRow func(T) []string) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case CSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write(csvRow(r)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported format: %q", format)
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// Exporter writes tables as files under the export directory.
type Exporter struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, logger: logger}
}

// Export writes one named table and returns the file path.
func (e *Exporter) Export(t Tables, name string, format Format) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, name+"."+string(format))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	if err := WriteTable(f, t, name, format); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	e.logger.Info("exported table", "table", name, "format", format, "path", path)
	return path, nil
}

// ExportAll writes every table with data and returns the file paths. Empty
// tables are skipped, not errors; an analysis with no keyword matches still
// exports its state table.
func (e *Exporter) ExportAll(t Tables, format Format) ([]string, error) {
	var paths []string
	for _, name := range TableNames {
		path, err := e.Export(t, name, format)
		if errors.Is(err, ErrEmptyDataset) {
			continue
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
