package taxonomy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	tax := Default()

	if len(tax.Technologies) != 11 {
		t.Errorf("expected 11 technology categories, got %d", len(tax.Technologies))
	}
	if tax.Technologies[0].Name != "Solar" {
		t.Errorf("highest-priority category should be Solar, got %s", tax.Technologies[0].Name)
	}
	if len(tax.RecipientTypes) != 4 {
		t.Errorf("expected 4 recipient types, got %d", len(tax.RecipientTypes))
	}
	if tax.StateCount() != 51 {
		t.Errorf("expected 51 state codes, got %d", tax.StateCount())
	}
}

func TestValidState(t *testing.T) {
	tax := Default()

	tests := []struct {
		code string
		want bool
	}{
		{"CA", true},
		{"DC", true},
		{"WY", true},
		{"PR", false},
		{"XX", false},
		{"ca", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tax.ValidState(tt.code); got != tt.want {
			t.Errorf("ValidState(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestPeriods(t *testing.T) {
	tax := Default()

	p, ok := tax.Period("arra_period")
	if !ok {
		t.Fatal("arra_period should exist")
	}
	if p.Start != time.Date(2009, 2, 17, 0, 0, 0, 0, time.UTC) {
		t.Errorf("arra_period start = %v", p.Start)
	}
	if !p.Contains(time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("arra_period should contain 2010-06-01")
	}
	if p.Contains(time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("arra_period should not contain 2013-01-01")
	}
	// Bounds are inclusive.
	if !p.Contains(p.Start) || !p.Contains(p.End) {
		t.Error("period bounds should be inclusive")
	}

	if _, ok := tax.Period("nonexistent"); ok {
		t.Error("unknown period should not resolve")
	}
}

func TestEraPeriodsAreDisjoint(t *testing.T) {
	tax := Default()
	eras := tax.EraPeriods()

	if len(eras) != 4 {
		t.Fatalf("expected 4 era periods, got %d", len(eras))
	}
	for i, a := range eras {
		if a.Name == FullPeriodName {
			t.Errorf("catch-all period leaked into eras")
		}
		for _, b := range eras[i+1:] {
			if a.Contains(b.Start) || a.Contains(b.End) || b.Contains(a.Start) {
				t.Errorf("periods %s and %s overlap", a.Name, b.Name)
			}
		}
	}
}

func TestSplitDate(t *testing.T) {
	tax := Default()
	want := time.Date(2022, 8, 16, 0, 0, 0, 0, time.UTC)
	if got := tax.SplitDate(); got != want {
		t.Errorf("SplitDate() = %v, want %v", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	tax, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got error: %v", err)
	}
	if len(tax.Technologies) != 11 {
		t.Errorf("defaults not applied, got %d categories", len(tax.Technologies))
	}
}

func TestLoadOverrides(t *testing.T) {
	content := `technologies:
  - name: Fusion
    keywords: [tokamak, " Plasma "]
  - name: Solar
    keywords: [solar]
`
	path := writeTaxonomyFile(t, content)

	tax, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(tax.Technologies) != 2 {
		t.Fatalf("expected 2 overridden categories, got %d", len(tax.Technologies))
	}
	if tax.Technologies[0].Name != "Fusion" {
		t.Errorf("file order should set priority, got %s first", tax.Technologies[0].Name)
	}
	if tax.Technologies[0].Keywords[1] != "plasma" {
		t.Errorf("keywords should be lower-cased and trimmed, got %q", tax.Technologies[0].Keywords[1])
	}
	// Recipient types untouched when the file omits them.
	if len(tax.RecipientTypes) != 4 {
		t.Errorf("recipient types should keep defaults, got %d", len(tax.RecipientTypes))
	}
}

func TestLoadRejectsEmptyKeywords(t *testing.T) {
	path := writeTaxonomyFile(t, "technologies:\n  - name: Broken\n    keywords: []\n")

	if _, err := Load(path); err == nil {
		t.Error("category without keywords should be rejected")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeTaxonomyFile(t, "technologies: [unclosed")

	if _, err := Load(path); err == nil {
		t.Error("malformed YAML should be rejected")
	}
}

func writeTaxonomyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
