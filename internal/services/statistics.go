package services

import (
	"fmt"
	"math"
	"slices"
	"time"

	"cleanspend/internal/models"
	"cleanspend/internal/taxonomy"
)

// pctChange returns the percentage change from base to target, nil when the
// base is zero. nil is the defined undefined marker; it renders as null in
// JSON and an empty cell in CSV.
func pctChange(base, target float64) *float64 {
	if base == 0 {
		return nil
	}
	v := (target - base) / base * 100
	return &v
}

// Summarize computes descriptive statistics over a value series. An empty
// series yields the zero value.
func Summarize(values []float64) models.SummaryStats {
	n := len(values)
	if n == 0 {
		return models.SummaryStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	slices.Sort(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	mean := total / float64(n)

	var m2, m3, m4 float64
	for _, v := range sorted {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}

	stats := models.SummaryStats{
		Count:  n,
		Mean:   mean,
		Median: percentile(sorted, 50),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Q25:    percentile(sorted, 25),
		Q75:    percentile(sorted, 75),
		Total:  total,
	}

	if n > 1 {
		stats.StdDev = math.Sqrt(m2 / float64(n-1))
	}
	if mean != 0 {
		stats.CV = stats.StdDev / mean
	}
	if n > 2 && m2 > 0 {
		fn := float64(n)
		g1 := (m3 / fn) / math.Pow(m2/fn, 1.5)
		stats.Skewness = g1 * math.Sqrt(fn*(fn-1)) / (fn - 2)
	}
	if n > 3 && m2 > 0 {
		fn := float64(n)
		g2 := (m4/fn)/math.Pow(m2/fn, 2) - 3
		stats.Kurtosis = ((fn+1)*g2 + 6) * (fn - 1) / ((fn - 2) * (fn - 3))
	}
	return stats
}

// percentile interpolates linearly over an ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Gini computes the concentration coefficient over a value distribution:
// 0 for perfectly even, approaching 1 as one holder takes everything.
// Empty and single-value inputs return 0.
func Gini(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	slices.Sort(sorted)

	var cumsum, sumCumsum float64
	for _, v := range sorted {
		cumsum += v
		sumCumsum += cumsum
	}
	if cumsum == 0 {
		return 0
	}
	return (float64(n) + 1 - 2*sumCumsum/cumsum) / float64(n)
}

// GeoPatterns summarizes concentration over the state aggregates: Gini over
// state totals, the share held by the five largest states, and the count of
// states with any funding. Empty input yields zeros.
func GeoPatterns(states []models.StateSummary) models.GeographicPatterns {
	values := make([]float64, 0, len(states))
	var total float64
	for _, s := range states {
		values = append(values, s.TotalFunding)
		total += s.TotalFunding
	}

	patterns := models.GeographicPatterns{
		Gini:              Gini(values),
		StatesWithFunding: len(states),
	}
	if total > 0 {
		var top5 float64
		// States arrive sorted descending by funding.
		for i, s := range states {
			if i >= 5 {
				break
			}
			top5 += s.TotalFunding
		}
		patterns.TopFiveShare = top5 / total
	}
	return patterns
}

// DetectTrend fits a least-squares line through the bucket totals and
// classifies the slope. A dead zone around zero slope, scaled by the series
// mean, absorbs noise; below minPoints the result is the insufficient-data
// marker rather than a guess.
func DetectTrend(points []models.TimePoint, minPoints int, threshold float64, seasonalMin int) models.TrendResult {
	n := len(points)
	if n < minPoints {
		return models.TrendResult{Direction: models.TrendInsufficient, Points: n}
	}

	var sumX, sumY float64
	for i, p := range points {
		sumX += float64(i)
		sumY += p.TotalFunding
	}
	fn := float64(n)
	meanX := sumX / fn
	meanY := sumY / fn

	var covXY, varX, varY float64
	for i, p := range points {
		dx := float64(i) - meanX
		dy := p.TotalFunding - meanY
		covXY += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	result := models.TrendResult{Points: n}
	result.Slope = covXY / varX
	result.Intercept = meanY - result.Slope*meanX
	if varY > 0 {
		r := covXY / math.Sqrt(varX*varY)
		result.Strength = math.Abs(r)
		result.RSquared = r * r
	}

	deadZone := threshold * math.Abs(meanY)
	switch {
	case math.Abs(result.Slope) <= deadZone:
		result.Direction = models.TrendFlat
	case result.Slope > 0:
		result.Direction = models.TrendIncreasing
	default:
		result.Direction = models.TrendDecreasing
	}

	if n >= seasonalMin && seasonalMin > 0 {
		result.Seasonal = seasonalMeans(points)
	}
	return result
}

func seasonalMeans(points []models.TimePoint) map[string]float64 {
	totals := make(map[time.Month]float64)
	counts := make(map[time.Month]int)
	for _, p := range points {
		m := p.Start.Month()
		totals[m] += p.TotalFunding
		counts[m]++
	}

	means := make(map[string]float64, len(totals))
	for m, t := range totals {
		means[m.String()] = t / float64(counts[m])
	}
	return means
}

// ComparePeriods splits awards at the given date and contrasts the two
// sides. Either side being empty short-circuits to the insufficient-data
// status instead of producing divisions by zero.
func ComparePeriods(rows []models.CategorizedAward, split time.Time) models.PeriodComparison {
	var before, after []float64
	for _, r := range rows {
		if r.StartDate.Before(split) {
			before = append(before, r.Amount)
		} else {
			after = append(after, r.Amount)
		}
	}

	comparison := models.PeriodComparison{SplitDate: split}
	if len(before) == 0 || len(after) == 0 {
		comparison.Status = models.ComparisonInsufficient
		return comparison
	}

	comparison.Status = models.ComparisonOK
	comparison.Before = periodStats(before)
	comparison.After = periodStats(after)
	comparison.AbsoluteChange = comparison.After.Total - comparison.Before.Total
	comparison.TotalChange = pctChange(comparison.Before.Total, comparison.After.Total)
	comparison.MeanChange = pctChange(comparison.Before.Mean, comparison.After.Mean)
	comparison.CountChange = comparison.After.Count - comparison.Before.Count
	return comparison
}

func periodStats(values []float64) models.PeriodStats {
	s := Summarize(values)
	return models.PeriodStats{
		Count:  s.Count,
		Total:  s.Total,
		Mean:   s.Mean,
		Median: s.Median,
	}
}

// DeltaBetween totals two named periods and reports the change from base to
// target. A zero-total base yields a nil percentage, not a panic.
func DeltaBetween(rows []models.CategorizedAward, base, target taxonomy.Period) models.PeriodDelta {
	delta := models.PeriodDelta{Base: base.Name, Target: target.Name}
	for _, r := range rows {
		if base.Contains(r.StartDate) {
			delta.BaseTotal += r.Amount
		}
		if target.Contains(r.StartDate) {
			delta.TargetTotal += r.Amount
		}
	}
	delta.AbsoluteChange = delta.TargetTotal - delta.BaseTotal
	delta.PercentChange = pctChange(delta.BaseTotal, delta.TargetTotal)
	return delta
}

// BuildInsights derives the short findings shown on the dashboard and in the
// report narrative.
func BuildInsights(snap *Snapshot) []models.Insight {
	var insights []models.Insight

	if len(snap.States) > 0 && snap.Summary.TotalFunding > 0 {
		top := snap.States[0]
		share := top.TotalFunding / snap.Summary.TotalFunding * 100
		insights = append(insights, models.Insight{
			Type:  "top_state",
			Title: fmt.Sprintf("%s leads all states", top.StateCode),
			Description: fmt.Sprintf("%s holds %s across %d awards, %.1f%% of all funding",
				top.StateCode, humanAmount(top.TotalFunding), top.AwardCount, share),
			Value:  share,
			Metric: "funding_share_pct",
		})
	}

	if len(snap.Technologies) > 0 {
		top := snap.Technologies[0]
		insights = append(insights, models.Insight{
			Type:  "top_technology",
			Title: fmt.Sprintf("%s attracts the most funding", top.Technology),
			Description: fmt.Sprintf("%s accounts for %s (%.1f%% of the total)",
				top.Technology, humanAmount(top.TotalFunding), top.FundingPercentage),
			Value:  top.FundingPercentage,
			Metric: "funding_share_pct",
		})
	}

	insights = append(insights, models.Insight{
		Type:        "concentration",
		Title:       fmt.Sprintf("Geographic concentration is %s", concentrationLabel(snap.Patterns.Gini)),
		Description: fmt.Sprintf("Gini coefficient %.2f; top five states hold %.1f%% of funding", snap.Patterns.Gini, snap.Patterns.TopFiveShare*100),
		Value:       snap.Patterns.Gini,
		Metric:      "gini_coefficient",
	})

	if snap.Trend.Direction != models.TrendInsufficient {
		insights = append(insights, models.Insight{
			Type:        "trend",
			Title:       fmt.Sprintf("Monthly funding is %s", snap.Trend.Direction),
			Description: fmt.Sprintf("Trend strength %.2f over %d monthly buckets", snap.Trend.Strength, snap.Trend.Points),
			Value:       snap.Trend.Slope,
			Metric:      "slope",
		})
	}

	if largest := largestAward(snap.Records); largest != nil {
		insights = append(insights, models.Insight{
			Type:  "largest_award",
			Title: fmt.Sprintf("Largest single award: %s", humanAmount(largest.Amount)),
			Description: fmt.Sprintf("%s (%s) received %s",
				largest.RecipientName, largest.StateCode, humanAmount(largest.Amount)),
			Value:  largest.Amount,
			Metric: "award_amount",
		})
	}

	return insights
}

func largestAward(rows []models.CategorizedAward) *models.CategorizedAward {
	var largest *models.CategorizedAward
	for i := range rows {
		if largest == nil || rows[i].Amount > largest.Amount {
			largest = &rows[i]
		}
	}
	return largest
}

func concentrationLabel(gini float64) string {
	switch {
	case gini >= 0.6:
		return "high"
	case gini >= 0.3:
		return "moderate"
	default:
		return "low"
	}
}

func humanAmount(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}
