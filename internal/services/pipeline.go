package services

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"cleanspend/internal/models"
	"cleanspend/internal/taxonomy"
)

// Frequency selects the bucket width for time series aggregation.
type Frequency string

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Fiscal    Frequency = "fiscal"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339}

// CleanRaw converts raw rows into validated awards. Rows that fail a rule
// are dropped and counted; the batch itself never fails.
func CleanRaw(tax *taxonomy.Taxonomy, raws []models.RawAward) ([]models.Award, models.SkipReport) {
	awards := make([]models.Award, 0, len(raws))
	var skips models.SkipReport

	for _, r := range raws {
		amount, ok := parseAmount(r.Amount)
		if !ok {
			skips.InvalidAmount++
			continue
		}
		if amount <= 0 {
			skips.NonPositiveAmount++
			continue
		}

		state := strings.ToUpper(strings.TrimSpace(r.StateCode))
		if !tax.ValidState(state) {
			skips.UnknownState++
			continue
		}

		recipient := strings.TrimSpace(r.RecipientName)
		if recipient == "" {
			skips.MissingRecipient++
			continue
		}

		desc := strings.TrimSpace(r.Description)
		if desc == "" {
			skips.EmptyDescription++
			continue
		}

		start, ok := parseDate(r.StartDate)
		if !ok {
			skips.InvalidDate++
			continue
		}
		end, _ := parseDate(r.EndDate)

		awards = append(awards, models.Award{
			AwardID:       strings.TrimSpace(r.AwardID),
			RecipientName: recipient,
			Amount:        amount,
			StartDate:     start,
			EndDate:       end,
			Agency:        strings.TrimSpace(r.Agency),
			StateCode:     state,
			StateName:     strings.TrimSpace(r.StateName),
			Description:   desc,
			SourceKeyword: strings.TrimSpace(r.SourceKeyword),
		})
	}

	return awards, skips
}

// validateAwards re-applies the cleaning rules to typed rows. Store contents
// normally pass untouched; rows edited outside the pipeline get filtered the
// same way raw input does.
func validateAwards(tax *taxonomy.Taxonomy, in []models.Award) ([]models.Award, models.SkipReport) {
	out := make([]models.Award, 0, len(in))
	var skips models.SkipReport

	for _, a := range in {
		switch {
		case math.IsNaN(a.Amount) || math.IsInf(a.Amount, 0):
			skips.InvalidAmount++
		case a.Amount <= 0:
			skips.NonPositiveAmount++
		case !tax.ValidState(a.StateCode):
			skips.UnknownState++
		case strings.TrimSpace(a.RecipientName) == "":
			skips.MissingRecipient++
		case strings.TrimSpace(a.Description) == "":
			skips.EmptyDescription++
		case a.StartDate.IsZero():
			skips.InvalidDate++
		default:
			out = append(out, a)
		}
	}

	return out, skips
}

func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CategorizeTechnology returns the first category whose keyword list matches
// the description, scanning categories in priority order. The matched keyword
// is returned alongside; no match yields the Uncategorized label.
func CategorizeTechnology(tax *taxonomy.Taxonomy, description string) (string, string) {
	text := strings.ToLower(description)
	for _, cat := range tax.Technologies {
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				return cat.Name, kw
			}
		}
	}
	return taxonomy.Uncategorized, ""
}

// CategorizeRecipient classifies a recipient name with the same first-match
// rule used for technologies.
func CategorizeRecipient(tax *taxonomy.Taxonomy, name string) string {
	text := strings.ToLower(name)
	for _, cat := range tax.RecipientTypes {
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				return cat.Name
			}
		}
	}
	return taxonomy.DefaultRecipientType
}

func Categorize(tax *taxonomy.Taxonomy, awards []models.Award) []models.CategorizedAward {
	rows := make([]models.CategorizedAward, len(awards))
	for i, a := range awards {
		tech, kw := CategorizeTechnology(tax, a.Description)
		rows[i] = models.CategorizedAward{
			Award:          a,
			Technology:     tech,
			MatchedKeyword: kw,
			RecipientType:  CategorizeRecipient(tax, a.RecipientName),
		}
	}
	return rows
}

// matchedKeywords scans every category's keyword list, not just the first
// match, so keyword statistics see cross-category hits.
func matchedKeywords(tax *taxonomy.Taxonomy, description string) []keywordMatch {
	text := strings.ToLower(description)
	var matches []keywordMatch
	for _, cat := range tax.Technologies {
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				matches = append(matches, keywordMatch{keyword: kw, technology: cat.Name})
			}
		}
	}
	return matches
}

type keywordMatch struct {
	keyword    string
	technology string
}

// AggregateStates groups awards by state. Each award counts once regardless
// of how many keywords hit its description; the keyword count is the number
// of distinct keywords matched across the state's awards.
func AggregateStates(tax *taxonomy.Taxonomy, rows []models.CategorizedAward) []models.StateSummary {
	groups := make(map[string]*models.StateSummary)
	recipients := make(map[string]map[string]struct{})
	keywords := make(map[string]map[string]struct{})

	for _, r := range rows {
		g := groups[r.StateCode]
		if g == nil {
			g = &models.StateSummary{StateCode: r.StateCode, StateName: r.StateName}
			groups[r.StateCode] = g
			recipients[r.StateCode] = make(map[string]struct{})
			keywords[r.StateCode] = make(map[string]struct{})
		}
		if g.StateName == "" && r.StateName != "" {
			g.StateName = r.StateName
		}
		g.TotalFunding += r.Amount
		g.AwardCount++
		recipients[r.StateCode][r.RecipientName] = struct{}{}
		for _, m := range matchedKeywords(tax, r.Description) {
			keywords[r.StateCode][m.keyword] = struct{}{}
		}
	}

	result := make([]models.StateSummary, 0, len(groups))
	for code, g := range groups {
		g.AvgAwardSize = g.TotalFunding / float64(g.AwardCount)
		g.UniqueRecipients = len(recipients[code])
		g.KeywordCount = len(keywords[code])
		result = append(result, *g)
	}
	slices.SortFunc(result, func(a, b models.StateSummary) int {
		if a.TotalFunding > b.TotalFunding {
			return -1
		}
		if a.TotalFunding < b.TotalFunding {
			return 1
		}
		return strings.Compare(a.StateCode, b.StateCode)
	})
	return result
}

// AggregateTechnologies groups by assigned category and reports each share of
// the grand total.
func AggregateTechnologies(rows []models.CategorizedAward) []models.TechnologySummary {
	groups := make(map[string]*models.TechnologySummary)
	recipients := make(map[string]map[string]struct{})
	grandTotal := 0.0

	for _, r := range rows {
		g := groups[r.Technology]
		if g == nil {
			g = &models.TechnologySummary{Technology: r.Technology}
			groups[r.Technology] = g
			recipients[r.Technology] = make(map[string]struct{})
		}
		g.TotalFunding += r.Amount
		g.AwardCount++
		recipients[r.Technology][r.RecipientName] = struct{}{}
		grandTotal += r.Amount
	}

	result := make([]models.TechnologySummary, 0, len(groups))
	for tech, g := range groups {
		g.AvgAwardSize = g.TotalFunding / float64(g.AwardCount)
		g.UniqueRecipients = len(recipients[tech])
		if grandTotal > 0 {
			g.FundingPercentage = g.TotalFunding / grandTotal * 100
		}
		result = append(result, *g)
	}
	slices.SortFunc(result, func(a, b models.TechnologySummary) int {
		if a.TotalFunding > b.TotalFunding {
			return -1
		}
		if a.TotalFunding < b.TotalFunding {
			return 1
		}
		return strings.Compare(a.Technology, b.Technology)
	})
	return result
}

// AggregateRecipients merges awards by recipient name and keeps the top n by
// total funding. Primary state is the first seen; primary technology is the
// most frequent, earliest seen on ties.
func AggregateRecipients(rows []models.CategorizedAward, topN int) []models.RecipientSummary {
	type recipientAgg struct {
		summary   models.RecipientSummary
		techCount map[string]int
		techOrder []string
	}
	groups := make(map[string]*recipientAgg)

	for _, r := range rows {
		g := groups[r.RecipientName]
		if g == nil {
			g = &recipientAgg{
				summary: models.RecipientSummary{
					RecipientName: r.RecipientName,
					RecipientType: r.RecipientType,
					PrimaryState:  r.StateCode,
				},
				techCount: make(map[string]int),
			}
			groups[r.RecipientName] = g
		}
		g.summary.TotalFunding += r.Amount
		g.summary.AwardCount++
		if _, seen := g.techCount[r.Technology]; !seen {
			g.techOrder = append(g.techOrder, r.Technology)
		}
		g.techCount[r.Technology]++
	}

	result := make([]models.RecipientSummary, 0, len(groups))
	for _, g := range groups {
		g.summary.AvgAwardSize = g.summary.TotalFunding / float64(g.summary.AwardCount)
		best, bestCount := "", -1
		for _, tech := range g.techOrder {
			if g.techCount[tech] > bestCount {
				best, bestCount = tech, g.techCount[tech]
			}
		}
		g.summary.PrimaryTechnology = best
		result = append(result, g.summary)
	}
	slices.SortFunc(result, func(a, b models.RecipientSummary) int {
		if a.TotalFunding > b.TotalFunding {
			return -1
		}
		if a.TotalFunding < b.TotalFunding {
			return 1
		}
		return strings.Compare(a.RecipientName, b.RecipientName)
	})

	if topN > 0 && len(result) > topN {
		result = result[:topN]
	}
	return result
}

// TimeSeries buckets awards by start date. Buckets are sorted ascending and
// carry cumulative funding plus bucket-over-bucket growth; growth is nil for
// the first bucket and for any bucket following a zero-total bucket.
func TimeSeries(rows []models.CategorizedAward, freq Frequency) []models.TimePoint {
	type bucketAgg struct {
		start time.Time
		total float64
		count int
	}
	buckets := make(map[string]*bucketAgg)

	for _, r := range rows {
		if r.StartDate.IsZero() {
			continue
		}
		label, start := bucketFor(r.StartDate, freq)
		b := buckets[label]
		if b == nil {
			b = &bucketAgg{start: start}
			buckets[label] = b
		}
		b.total += r.Amount
		b.count++
	}

	result := make([]models.TimePoint, 0, len(buckets))
	for label, b := range buckets {
		result = append(result, models.TimePoint{
			Bucket:       label,
			Start:        b.start,
			TotalFunding: b.total,
			AwardCount:   b.count,
			AvgAwardSize: b.total / float64(b.count),
		})
	}
	slices.SortFunc(result, func(a, b models.TimePoint) int {
		return a.Start.Compare(b.Start)
	})

	cumulative := 0.0
	for i := range result {
		cumulative += result[i].TotalFunding
		result[i].CumulativeFunding = cumulative
		if i > 0 {
			result[i].Growth = pctChange(result[i-1].TotalFunding, result[i].TotalFunding)
		}
	}
	return result
}

func bucketFor(t time.Time, freq Frequency) (string, time.Time) {
	switch freq {
	case Quarterly:
		q := (int(t.Month())-1)/3 + 1
		start := time.Date(t.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return strconv.Itoa(t.Year()) + "-Q" + strconv.Itoa(q), start
	case Fiscal:
		// Federal fiscal years run October through September, labeled by the
		// ending year.
		fy := t.Year()
		startYear := fy - 1
		if t.Month() >= time.October {
			fy++
			startYear = t.Year()
		}
		return "FY" + strconv.Itoa(fy), time.Date(startYear, time.October, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Format("2006-01"), time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// sizeClasses in display order.
var sizeClasses = []string{"<$100K", "$100K-$1M", "$1M-$10M", "$10M-$100M", ">$100M"}

func AwardSizeClass(amount float64) string {
	switch {
	case amount < 100_000:
		return sizeClasses[0]
	case amount < 1_000_000:
		return sizeClasses[1]
	case amount < 10_000_000:
		return sizeClasses[2]
	case amount < 100_000_000:
		return sizeClasses[3]
	default:
		return sizeClasses[4]
	}
}

func AggregateSizeClasses(rows []models.CategorizedAward) []models.SizeClassSummary {
	groups := make(map[string]*models.SizeClassSummary)
	for _, r := range rows {
		class := AwardSizeClass(r.Amount)
		g := groups[class]
		if g == nil {
			g = &models.SizeClassSummary{Class: class}
			groups[class] = g
		}
		g.AwardCount++
		g.TotalFunding += r.Amount
	}

	result := make([]models.SizeClassSummary, 0, len(groups))
	for _, class := range sizeClasses {
		if g, ok := groups[class]; ok {
			result = append(result, *g)
		}
	}
	return result
}

// AggregatePeriods totals awards per era. Eras with no awards appear with
// zero totals rather than being dropped.
func AggregatePeriods(rows []models.CategorizedAward, eras []taxonomy.Period) []models.PeriodSummary {
	result := make([]models.PeriodSummary, len(eras))
	for i, p := range eras {
		result[i] = models.PeriodSummary{Name: p.Name, Start: p.Start, End: p.End}
	}
	for _, r := range rows {
		for i, p := range eras {
			if p.Contains(r.StartDate) {
				result[i].TotalFunding += r.Amount
				result[i].AwardCount++
			}
		}
	}
	return result
}

// KeywordStats counts once per (keyword, award) pair: an award whose
// description matches three keywords contributes its amount to all three.
func KeywordStats(tax *taxonomy.Taxonomy, rows []models.CategorizedAward) []models.KeywordStat {
	type kwAgg struct {
		stat   models.KeywordStat
		states map[string]struct{}
	}
	groups := make(map[string]*kwAgg)

	for _, r := range rows {
		for _, m := range matchedKeywords(tax, r.Description) {
			g := groups[m.keyword]
			if g == nil {
				g = &kwAgg{
					stat:   models.KeywordStat{Keyword: m.keyword, Technology: m.technology},
					states: make(map[string]struct{}),
				}
				groups[m.keyword] = g
			}
			g.stat.TotalFunding += r.Amount
			g.stat.AwardCount++
			g.states[r.StateCode] = struct{}{}
		}
	}

	result := make([]models.KeywordStat, 0, len(groups))
	for _, g := range groups {
		g.stat.StateCount = len(g.states)
		result = append(result, g.stat)
	}
	slices.SortFunc(result, func(a, b models.KeywordStat) int {
		if a.TotalFunding > b.TotalFunding {
			return -1
		}
		if a.TotalFunding < b.TotalFunding {
			return 1
		}
		return strings.Compare(a.Keyword, b.Keyword)
	})
	return result
}
