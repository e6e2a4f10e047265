// Package taxonomy holds the classification vocabulary for award analysis:
// technology categories with their keyword lists, recipient types, named
// policy periods, and the state-code set. Defaults are compiled in; a YAML
// file may replace the category tables.
package taxonomy

import (
	"fmt"
	"time"
)

// Fallback labels used when no keyword list matches.
const (
	Uncategorized        = "Uncategorized"
	DefaultRecipientType = "Other"
)

// FullPeriodName is the catch-all period spanning the whole analysis window.
// It is a query alias, not a bucket: period aggregation uses only the
// disjoint policy eras.
const FullPeriodName = "full_period"

// Category is a named label with the keywords that select it. Order in a
// category list is priority order.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Period is a named closed date range [Start, End].
type Period struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls inside the period, bounds inclusive.
func (p Period) Contains(d time.Time) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

type Taxonomy struct {
	Technologies   []Category
	RecipientTypes []Category
	Periods        []Period

	states map[string]struct{}
}

// Default returns the built-in vocabulary.
func Default() *Taxonomy {
	t := &Taxonomy{
		Technologies:   defaultTechnologies(),
		RecipientTypes: defaultRecipientTypes(),
		Periods:        defaultPeriods(),
	}
	t.indexStates()
	return t
}

func (t *Taxonomy) indexStates() {
	t.states = make(map[string]struct{}, len(stateCodes))
	for _, code := range stateCodes {
		t.states[code] = struct{}{}
	}
}

// ValidState reports whether code is one of the 50 states or DC.
func (t *Taxonomy) ValidState(code string) bool {
	_, ok := t.states[code]
	return ok
}

func (t *Taxonomy) StateCount() int {
	return len(t.states)
}

// Period looks up a named period.
func (t *Taxonomy) Period(name string) (Period, bool) {
	for _, p := range t.Periods {
		if p.Name == name {
			return p, true
		}
	}
	return Period{}, false
}

// EraPeriods returns the disjoint policy eras, excluding the catch-all.
func (t *Taxonomy) EraPeriods() []Period {
	eras := make([]Period, 0, len(t.Periods))
	for _, p := range t.Periods {
		if p.Name == FullPeriodName {
			continue
		}
		eras = append(eras, p)
	}
	return eras
}

// SplitDate is the before/after boundary for period comparison: the first day
// of the ira_chips_period era.
func (t *Taxonomy) SplitDate() time.Time {
	if p, ok := t.Period("ira_chips_period"); ok {
		return p.Start
	}
	return date(2022, time.August, 16)
}

func (t *Taxonomy) validate() error {
	if len(t.Technologies) == 0 {
		return fmt.Errorf("no technology categories")
	}
	for _, c := range append(append([]Category{}, t.Technologies...), t.RecipientTypes...) {
		if c.Name == "" {
			return fmt.Errorf("category with empty name")
		}
		if len(c.Keywords) == 0 {
			return fmt.Errorf("category %q has no keywords", c.Name)
		}
	}
	seen := make(map[string]struct{})
	for _, p := range t.Periods {
		if p.Name == "" {
			return fmt.Errorf("period with empty name")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate period %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.End.Before(p.Start) {
			return fmt.Errorf("period %q ends before it starts", p.Name)
		}
	}
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func defaultTechnologies() []Category {
	return []Category{
		{Name: "Solar", Keywords: []string{
			"solar", "photovoltaic", "pv", "solar panel", "solar energy",
			"solar power", "solar cell", "solar array",
		}},
		{Name: "Wind", Keywords: []string{
			"wind", "wind turbine", "wind energy", "wind power", "wind farm",
			"offshore wind", "onshore wind",
		}},
		{Name: "Battery Storage", Keywords: []string{
			"battery", "energy storage", "battery storage", "grid storage",
			"lithium", "battery system", "energy storage system",
		}},
		{Name: "Grid Modernization", Keywords: []string{
			"grid", "smart grid", "grid modernization", "transmission",
			"distribution", "grid infrastructure", "power grid",
		}},
		{Name: "Electric Vehicles", Keywords: []string{
			"electric vehicle", "ev charging", "charging station",
			"charging infrastructure", "electric car", "ev",
		}},
		{Name: "Energy Efficiency", Keywords: []string{
			"efficiency", "energy efficiency", "weatherization", "insulation",
			"building efficiency", "hvac",
		}},
		{Name: "Carbon Capture", Keywords: []string{
			"carbon capture", "carbon sequestration", "ccs", "carbon storage",
			"co2 capture",
		}},
		{Name: "Geothermal", Keywords: []string{
			"geothermal", "geothermal energy", "geothermal power",
			"ground source heat",
		}},
		{Name: "Hydroelectric", Keywords: []string{
			"hydroelectric", "hydro", "hydropower", "water power", "dam",
			"turbine",
		}},
		{Name: "Biomass", Keywords: []string{
			"biomass", "biofuel", "biogas", "bioenergy", "renewable fuel",
			"ethanol",
		}},
		{Name: "Hydrogen", Keywords: []string{
			"hydrogen", "fuel cell", "hydrogen fuel", "clean hydrogen",
			"hydrogen energy",
		}},
	}
}

func defaultRecipientTypes() []Category {
	return []Category{
		{Name: "Corporation", Keywords: []string{
			"inc", "corp", "llc", "ltd", "company", "co.", "corporation",
			"incorporated",
		}},
		{Name: "University", Keywords: []string{
			"university", "college", "institute", "school", "academic",
			"education",
		}},
		{Name: "Government", Keywords: []string{
			"department", "agency", "bureau", "office", "government",
			"federal", "state", "city", "county",
		}},
		{Name: "Non-Profit", Keywords: []string{
			"foundation", "association", "society", "organization",
			"non-profit", "nonprofit",
		}},
	}
}

func defaultPeriods() []Period {
	return []Period{
		{Name: "pre_arra", Start: date(2007, time.January, 1), End: date(2009, time.February, 16)},
		{Name: "arra_period", Start: date(2009, time.February, 17), End: date(2012, time.December, 31)},
		{Name: "post_arra_pre_ira", Start: date(2013, time.January, 1), End: date(2022, time.August, 15)},
		{Name: "ira_chips_period", Start: date(2022, time.August, 16), End: date(2024, time.December, 31)},
		{Name: FullPeriodName, Start: date(2007, time.January, 1), End: date(2024, time.December, 31)},
	}
}

var stateCodes = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
	"DC",
}
