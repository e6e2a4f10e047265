package templates

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/a-h/templ"

	"cleanspend/internal/models"
)

// SummaryCards renders the overview card grid.
func SummaryCards(summary models.DatasetSummary, patterns models.GeographicPatterns) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div id="summary-content"><div class="cards">`)
		card(&b, money(summary.TotalFunding), "Total Funding")
		card(&b, fmt.Sprintf("%d", summary.AwardCount), "Awards")
		card(&b, fmt.Sprintf("%d", summary.UniqueStates), "States")
		card(&b, fmt.Sprintf("%d", summary.UniqueRecipients), "Recipients")
		card(&b, fmt.Sprintf("%.3f", patterns.Gini), "Gini Coefficient")
		card(&b, fmt.Sprintf("%.1f%%", patterns.TopFiveShare), "Top-5 State Share")
		b.WriteString(`</div></div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// StateTable renders the per-state funding table, capped at max rows when
// max is positive.
func StateTable(states []models.StateSummary, max int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if max > 0 && len(states) > max {
			states = states[:max]
		}
		var b strings.Builder
		b.WriteString(`<div id="states-content"><table class="modern-table">`)
		b.WriteString(`<thead><tr><th>#</th><th>State</th><th>Funding</th><th>Awards</th><th>Avg Award</th><th>Recipients</th></tr></thead><tbody>`)
		for i, s := range states {
			fmt.Fprintf(&b, `<tr><td>%d</td><td>%s</td><td><strong>%s</strong></td><td>%d</td><td>%s</td><td>%d</td></tr>`,
				i+1, templ.EscapeString(stateLabel(s)), money(s.TotalFunding), s.AwardCount, money(s.AvgAwardSize), s.UniqueRecipients)
		}
		b.WriteString(`</tbody></table></div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// TechnologyBreakdown renders the technology share table with inline share
// bars sized by funding percentage.
func TechnologyBreakdown(techs []models.TechnologySummary) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div id="technologies-content"><table class="modern-table">`)
		b.WriteString(`<thead><tr><th>Technology</th><th>Funding</th><th>Share</th><th></th><th>Awards</th></tr></thead><tbody>`)
		for _, t := range techs {
			width := math.Min(math.Max(t.FundingPercentage, 0), 100)
			fmt.Fprintf(&b, `<tr><td><span class="badge">%s</span></td><td><strong>%s</strong></td><td>%.1f%%</td><td><div class="share-bar"><span style="width: %.1f%%"></span></div></td><td>%d</td></tr>`,
				templ.EscapeString(t.Technology), money(t.TotalFunding), t.FundingPercentage, width, t.AwardCount)
		}
		b.WriteString(`</tbody></table></div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// InsightList renders the narrative findings list.
func InsightList(insights []models.Insight) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div id="insights-content">`)
		if len(insights) == 0 {
			b.WriteString(`<p class="placeholder">No findings yet.</p>`)
		} else {
			b.WriteString(`<ul class="insights">`)
			for _, in := range insights {
				fmt.Fprintf(&b, `<li><strong>%s</strong> %s</li>`,
					templ.EscapeString(in.Title), templ.EscapeString(in.Description))
			}
			b.WriteString(`</ul>`)
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// TimelineStatus replaces the timeline placeholder once chart signals have
// been pushed.
func TimelineStatus(buckets int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div id="timeline-content">Loaded %d monthly buckets</div>`, buckets)
		return err
	})
}

func card(b *strings.Builder, value, label string) {
	fmt.Fprintf(b, `<div class="card"><div class="value">%s</div><div class="label">%s</div></div>`,
		templ.EscapeString(value), templ.EscapeString(label))
}

func stateLabel(s models.StateSummary) string {
	if s.StateName == "" {
		return s.StateCode
	}
	return s.StateName + " (" + s.StateCode + ")"
}

// money compacts dollar amounts for card and table display. The exporter and
// the report keep exact figures; the dashboard trades precision for scan
// speed.
func money(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}
