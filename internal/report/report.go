// Package report renders the static markdown summary of an analytics
// snapshot: dataset header, state and technology rank tables, keyword
// effectiveness, policy-period totals with the before/after comparison,
// the funding trend, and the narrative findings.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cleanspend/internal/models"
	"cleanspend/internal/services"
)

const topStates = 10

// Render produces the full markdown report for a snapshot with the default
// state-table depth.
func Render(snap *services.Snapshot) string {
	return RenderTop(snap, topStates)
}

// RenderTop renders the report with the state rank table capped at top rows.
// top <= 0 falls back to the default depth.
func RenderTop(snap *services.Snapshot, top int) string {
	if top <= 0 {
		top = topStates
	}

	var b strings.Builder

	writeHeader(&b, snap)
	if len(snap.Records) == 0 {
		b.WriteString("No award data collected yet. Run the collector to populate the store.\n")
		return b.String()
	}

	writeStates(&b, snap.States, top)
	writeTechnologies(&b, snap.Technologies)
	writeKeywords(&b, snap.Keywords)
	writePeriods(&b, snap.Periods, snap.Comparison)
	writeTrend(&b, snap.Trend)
	writeFindings(&b, snap.Insights)

	return b.String()
}

func writeHeader(b *strings.Builder, snap *services.Snapshot) {
	b.WriteString("# Federal Clean Energy Funding Report\n\n")
	fmt.Fprintf(b, "Generated %s from %s awards totaling %s.\n",
		snap.ComputedAt.Format("2006-01-02"),
		groupInt(int64(snap.Summary.AwardCount)),
		Currency(snap.Summary.TotalFunding))
	if !snap.Summary.EarliestStart.IsZero() {
		fmt.Fprintf(b, "Coverage: %s to %s. Recipients: %s across %d states.\n",
			snap.Summary.EarliestStart.Format("2006-01-02"),
			snap.Summary.LatestStart.Format("2006-01-02"),
			groupInt(int64(snap.Summary.UniqueRecipients)),
			snap.Summary.UniqueStates)
	}
	if total := snap.Skips.Total(); total > 0 {
		fmt.Fprintf(b, "Excluded during cleaning: %d records.\n", total)
	}
	b.WriteString("\n")
}

func writeStates(b *strings.Builder, states []models.StateSummary, top int) {
	b.WriteString("## Top States\n\n")
	b.WriteString("| Rank | State | Total Funding | Awards | Avg Award | Recipients |\n")
	b.WriteString("|---:|---|---:|---:|---:|---:|\n")
	for i, s := range states {
		if i >= top {
			break
		}
		name := s.StateName
		if name == "" {
			name = s.StateCode
		} else {
			name = fmt.Sprintf("%s (%s)", name, s.StateCode)
		}
		fmt.Fprintf(b, "| %d | %s | %s | %d | %s | %d |\n",
			i+1, name, Currency(s.TotalFunding), s.AwardCount, Currency(s.AvgAwardSize), s.UniqueRecipients)
	}
	b.WriteString("\n")
}

func writeTechnologies(b *strings.Builder, techs []models.TechnologySummary) {
	b.WriteString("## Technology Breakdown\n\n")
	b.WriteString("| Technology | Total Funding | Share | Awards | Recipients |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, t := range techs {
		fmt.Fprintf(b, "| %s | %s | %.1f%% | %d | %d |\n",
			t.Technology, Currency(t.TotalFunding), t.FundingPercentage, t.AwardCount, t.UniqueRecipients)
	}
	b.WriteString("\n")
}

func writeKeywords(b *strings.Builder, keywords []models.KeywordStat) {
	if len(keywords) == 0 {
		return
	}
	b.WriteString("## Keyword Effectiveness\n\n")
	b.WriteString("| Keyword | Technology | Matched Awards | Total Funding | States Reached |\n")
	b.WriteString("|---|---|---:|---:|---:|\n")
	for _, k := range keywords {
		fmt.Fprintf(b, "| %s | %s | %d | %s | %d |\n",
			k.Keyword, k.Technology, k.AwardCount, Currency(k.TotalFunding), k.StateCount)
	}
	b.WriteString("\n")
}

func writePeriods(b *strings.Builder, periods []models.PeriodSummary, cmp models.PeriodComparison) {
	b.WriteString("## Policy Periods\n\n")
	b.WriteString("| Period | Range | Total Funding | Awards |\n")
	b.WriteString("|---|---|---:|---:|\n")
	for _, p := range periods {
		fmt.Fprintf(b, "| %s | %s to %s | %s | %d |\n",
			p.Name, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"),
			Currency(p.TotalFunding), p.AwardCount)
	}
	b.WriteString("\n")

	split := cmp.SplitDate.Format("2006-01-02")
	if cmp.Status != models.ComparisonOK {
		fmt.Fprintf(b, "Insufficient data to compare funding before and after %s.\n\n", split)
		return
	}

	fmt.Fprintf(b, "Before %s: %s across %d awards (mean %s).\n",
		split, Currency(cmp.Before.Total), cmp.Before.Count, Currency(cmp.Before.Mean))
	fmt.Fprintf(b, "Since %s: %s across %d awards (mean %s).\n",
		split, Currency(cmp.After.Total), cmp.After.Count, Currency(cmp.After.Mean))
	fmt.Fprintf(b, "Change: %s total%s, %+d awards.\n\n",
		signedCurrency(cmp.AbsoluteChange), pctSuffix(cmp.TotalChange), cmp.CountChange)
}

func writeTrend(b *strings.Builder, trend models.TrendResult) {
	b.WriteString("## Funding Trend\n\n")
	if trend.Direction == models.TrendInsufficient {
		fmt.Fprintf(b, "Not enough monthly history for trend analysis (%d points).\n\n", trend.Points)
		return
	}
	fmt.Fprintf(b, "Monthly funding is %s: slope %s per month over %d months (R² %.2f, strength %.2f).\n\n",
		trend.Direction, signedCurrency(trend.Slope), trend.Points, trend.RSquared, trend.Strength)
}

func writeFindings(b *strings.Builder, insights []models.Insight) {
	if len(insights) == 0 {
		return
	}
	b.WriteString("## Findings\n\n")
	for _, in := range insights {
		fmt.Fprintf(b, "- **%s**: %s\n", in.Title, in.Description)
	}
	b.WriteString("\n")
}

// Currency renders $1,234,567-style amounts. Cents round away; sub-dollar
// values collapse to $0.
func Currency(v float64) string {
	neg := math.Signbit(v)
	n := int64(math.Round(math.Abs(v)))
	s := "$" + groupInt(n)
	if neg && n != 0 {
		return "-" + s
	}
	return s
}

func signedCurrency(v float64) string {
	if v >= 0 {
		return "+" + Currency(v)
	}
	return Currency(v)
}

func pctSuffix(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf(" (%+.1f%%)", *p)
}

func groupInt(n int64) string {
	digits := strconv.FormatInt(n, 10)
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Filename suggests a dated report name for the CLI.
func Filename(now time.Time) string {
	return fmt.Sprintf("clean_energy_report_%s.md", now.Format("20060102"))
}
