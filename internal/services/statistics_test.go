package services

import (
	"math"
	"testing"
	"time"

	"cleanspend/internal/models"
	"cleanspend/internal/taxonomy"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestPctChange(t *testing.T) {
	if got := pctChange(100, 150); got == nil || *got != 50 {
		t.Errorf("pctChange(100, 150) = %v, want 50", got)
	}
	if got := pctChange(200, 100); got == nil || *got != -50 {
		t.Errorf("pctChange(200, 100) = %v, want -50", got)
	}
	if got := pctChange(0, 100); got != nil {
		t.Errorf("pctChange with zero base should be nil, got %v", *got)
	}
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]float64{10, 20, 30, 40, 50})

	if stats.Count != 5 {
		t.Errorf("Count = %d, want 5", stats.Count)
	}
	if stats.Mean != 30 {
		t.Errorf("Mean = %f, want 30", stats.Mean)
	}
	if stats.Median != 30 {
		t.Errorf("Median = %f, want 30", stats.Median)
	}
	if stats.Min != 10 || stats.Max != 50 {
		t.Errorf("Min/Max = %f/%f, want 10/50", stats.Min, stats.Max)
	}
	if stats.Q25 != 20 || stats.Q75 != 40 {
		t.Errorf("Q25/Q75 = %f/%f, want 20/40", stats.Q25, stats.Q75)
	}
	if stats.Total != 150 {
		t.Errorf("Total = %f, want 150", stats.Total)
	}
	// Sample standard deviation: sqrt(1000/4).
	if !almostEqual(stats.StdDev, math.Sqrt(250)) {
		t.Errorf("StdDev = %f, want %f", stats.StdDev, math.Sqrt(250))
	}
	if !almostEqual(stats.CV, math.Sqrt(250)/30) {
		t.Errorf("CV = %f, want %f", stats.CV, math.Sqrt(250)/30)
	}
	// A symmetric distribution has no skew.
	if !almostEqual(stats.Skewness, 0) {
		t.Errorf("Skewness = %f, want 0", stats.Skewness)
	}
}

func TestSummarize_Edges(t *testing.T) {
	if stats := Summarize(nil); stats.Count != 0 || stats.Mean != 0 {
		t.Errorf("Empty input should produce zero stats, got %+v", stats)
	}

	stats := Summarize([]float64{42})
	if stats.Count != 1 || stats.Mean != 42 || stats.Median != 42 || stats.StdDev != 0 {
		t.Errorf("Single value stats wrong: %+v", stats)
	}
}

func TestSummarize_Percentiles(t *testing.T) {
	// Even count forces interpolation.
	stats := Summarize([]float64{1, 2, 3, 4})
	if !almostEqual(stats.Median, 2.5) {
		t.Errorf("Median = %f, want 2.5", stats.Median)
	}
	if !almostEqual(stats.Q25, 1.75) {
		t.Errorf("Q25 = %f, want 1.75", stats.Q25)
	}
	if !almostEqual(stats.Q75, 3.25) {
		t.Errorf("Q75 = %f, want 3.25", stats.Q75)
	}
}

func TestGini(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"perfectly even", []float64{100, 100, 100, 100}, 0},
		{"fully concentrated", []float64{0, 0, 0, 100}, 0.75},
		{"empty", nil, 0},
		{"single value", []float64{500}, 0},
		{"all zero", []float64{0, 0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Gini(tt.values); !almostEqual(got, tt.want) {
				t.Errorf("Gini(%v) = %f, want %f", tt.values, got, tt.want)
			}
		})
	}
}

func TestGini_OrderIndependent(t *testing.T) {
	a := Gini([]float64{10, 400, 50, 200})
	b := Gini([]float64{400, 10, 200, 50})
	if !almostEqual(a, b) {
		t.Errorf("Gini should not depend on input order: %f vs %f", a, b)
	}
	if a <= 0 || a >= 1 {
		t.Errorf("Gini out of range: %f", a)
	}
}

func TestGeoPatterns(t *testing.T) {
	states := []models.StateSummary{
		{StateCode: "CA", TotalFunding: 500},
		{StateCode: "TX", TotalFunding: 300},
		{StateCode: "NY", TotalFunding: 200},
	}

	patterns := GeoPatterns(states)
	if patterns.StatesWithFunding != 3 {
		t.Errorf("StatesWithFunding = %d, want 3", patterns.StatesWithFunding)
	}
	// Only three states, so the top five hold everything.
	if !almostEqual(patterns.TopFiveShare, 1.0) {
		t.Errorf("TopFiveShare = %f, want 1.0", patterns.TopFiveShare)
	}
	if patterns.Gini <= 0 {
		t.Errorf("Uneven distribution should have positive Gini, got %f", patterns.Gini)
	}
}

func TestGeoPatterns_TopFive(t *testing.T) {
	states := make([]models.StateSummary, 7)
	for i := range states {
		states[i] = models.StateSummary{TotalFunding: float64(100 - i*10)}
	}
	// 100+90+80+70+60 of 490 total.
	patterns := GeoPatterns(states)
	if !almostEqual(patterns.TopFiveShare, 400.0/490.0) {
		t.Errorf("TopFiveShare = %f, want %f", patterns.TopFiveShare, 400.0/490.0)
	}
}

func TestGeoPatterns_Empty(t *testing.T) {
	patterns := GeoPatterns(nil)
	if patterns.Gini != 0 || patterns.TopFiveShare != 0 || patterns.StatesWithFunding != 0 {
		t.Errorf("Empty input should produce zero patterns: %+v", patterns)
	}
}

func trendPoints(values ...float64) []models.TimePoint {
	points := make([]models.TimePoint, len(values))
	for i, v := range values {
		points[i] = models.TimePoint{
			Start:        day(2023, time.Month(i%12+1), 1),
			TotalFunding: v,
		}
	}
	return points
}

func TestDetectTrend(t *testing.T) {
	tests := []struct {
		name          string
		values        []float64
		wantDirection string
	}{
		{"increasing", []float64{100, 200, 300, 400, 500}, models.TrendIncreasing},
		{"decreasing", []float64{500, 400, 300, 200, 100}, models.TrendDecreasing},
		{"flat", []float64{100, 100.5, 99.5, 100, 100.2}, models.TrendFlat},
		{"too few points", []float64{100, 200}, models.TrendInsufficient},
		{"empty", nil, models.TrendInsufficient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectTrend(trendPoints(tt.values...), 3, 0.01, 12)
			if result.Direction != tt.wantDirection {
				t.Errorf("Direction = %q, want %q", result.Direction, tt.wantDirection)
			}
			if result.Points != len(tt.values) {
				t.Errorf("Points = %d, want %d", result.Points, len(tt.values))
			}
		})
	}
}

func TestDetectTrend_Regression(t *testing.T) {
	// Exact line y = 100x + 100.
	result := DetectTrend(trendPoints(100, 200, 300, 400, 500), 3, 0.01, 12)

	if !almostEqual(result.Slope, 100) {
		t.Errorf("Slope = %f, want 100", result.Slope)
	}
	if !almostEqual(result.Intercept, 100) {
		t.Errorf("Intercept = %f, want 100", result.Intercept)
	}
	if !almostEqual(result.RSquared, 1) {
		t.Errorf("RSquared = %f, want 1", result.RSquared)
	}
	if !almostEqual(result.Strength, 1) {
		t.Errorf("Strength = %f, want 1", result.Strength)
	}
}

func TestDetectTrend_ConstantSeries(t *testing.T) {
	result := DetectTrend(trendPoints(100, 100, 100, 100), 3, 0.01, 12)
	if result.Direction != models.TrendFlat {
		t.Errorf("Direction = %q, want flat", result.Direction)
	}
	// Zero variance must not produce NaN.
	if math.IsNaN(result.Strength) || math.IsNaN(result.RSquared) {
		t.Errorf("Constant series produced NaN: %+v", result)
	}
}

func TestDetectTrend_Seasonal(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = float64(100 + i)
	}
	points := make([]models.TimePoint, 24)
	for i := range points {
		points[i] = models.TimePoint{
			Start:        day(2022+i/12, time.Month(i%12+1), 1),
			TotalFunding: values[i],
		}
	}

	result := DetectTrend(points, 3, 0.01, 12)
	if result.Seasonal == nil {
		t.Fatal("Expected seasonal means for 24 monthly points")
	}
	if len(result.Seasonal) != 12 {
		t.Errorf("Seasonal months = %d, want 12", len(result.Seasonal))
	}
	// January appears at index 0 (100) and 12 (112).
	if got := result.Seasonal["January"]; !almostEqual(got, 106) {
		t.Errorf("January mean = %f, want 106", got)
	}

	short := DetectTrend(trendPoints(100, 200, 300), 3, 0.01, 12)
	if short.Seasonal != nil {
		t.Error("Short series should not produce seasonal means")
	}
}

func TestComparePeriods(t *testing.T) {
	tax := taxonomy.Default()
	split := tax.SplitDate()

	rows := categorized(tax,
		testAward("A1", 100, "CA", "A Inc", "solar", day(2015, 1, 1)),
		testAward("A2", 200, "CA", "B Inc", "solar", day(2020, 6, 1)),
		testAward("A3", 600, "TX", "C Inc", "wind", day(2023, 3, 1)),
	)

	result := ComparePeriods(rows, split)
	if result.Status != models.ComparisonOK {
		t.Fatalf("Status = %q, want ok", result.Status)
	}
	if result.Before.Count != 2 || result.Before.Total != 300 || result.Before.Mean != 150 {
		t.Errorf("Unexpected before stats: %+v", result.Before)
	}
	if result.After.Count != 1 || result.After.Total != 600 {
		t.Errorf("Unexpected after stats: %+v", result.After)
	}
	if result.AbsoluteChange != 300 {
		t.Errorf("AbsoluteChange = %f, want 300", result.AbsoluteChange)
	}
	if result.TotalChange == nil || !almostEqual(*result.TotalChange, 100) {
		t.Errorf("TotalChange = %v, want 100", result.TotalChange)
	}
	if result.MeanChange == nil || !almostEqual(*result.MeanChange, 300) {
		t.Errorf("MeanChange = %v, want 300", result.MeanChange)
	}
	if result.CountChange != -1 {
		t.Errorf("CountChange = %d, want -1", result.CountChange)
	}
}

func TestComparePeriods_Insufficient(t *testing.T) {
	tax := taxonomy.Default()
	split := tax.SplitDate()

	// Everything lands before the split.
	rows := categorized(tax,
		testAward("A1", 100, "CA", "A Inc", "solar", day(2015, 1, 1)),
		testAward("A2", 200, "CA", "B Inc", "solar", day(2016, 1, 1)),
	)

	result := ComparePeriods(rows, split)
	if result.Status != models.ComparisonInsufficient {
		t.Errorf("Status = %q, want %q", result.Status, models.ComparisonInsufficient)
	}
	if result.TotalChange != nil || result.MeanChange != nil {
		t.Error("Change fields should be nil when comparison is insufficient")
	}

	if r := ComparePeriods(nil, split); r.Status != models.ComparisonInsufficient {
		t.Errorf("Empty input status = %q, want insufficient", r.Status)
	}
}

func TestComparePeriods_SplitBoundary(t *testing.T) {
	tax := taxonomy.Default()
	split := tax.SplitDate()

	// An award exactly on the split date counts as after.
	rows := categorized(tax,
		testAward("A1", 100, "CA", "A Inc", "solar", split.AddDate(0, 0, -1)),
		testAward("A2", 200, "CA", "B Inc", "solar", split),
	)

	result := ComparePeriods(rows, split)
	if result.Before.Count != 1 || result.After.Count != 1 {
		t.Errorf("Boundary split wrong: before=%d after=%d", result.Before.Count, result.After.Count)
	}
}

func TestDeltaBetween(t *testing.T) {
	tax := taxonomy.Default()
	arra, _ := tax.Period("arra_period")
	ira, _ := tax.Period("ira_chips_period")

	rows := categorized(tax,
		testAward("A1", 1000, "CA", "A Inc", "solar", day(2010, 6, 1)),
		testAward("A2", 500, "CA", "B Inc", "solar", day(2011, 6, 1)),
		testAward("A3", 3000, "TX", "C Inc", "wind", day(2023, 6, 1)),
	)

	delta := DeltaBetween(rows, arra, ira)
	if delta.Base != "arra_period" || delta.Target != "ira_chips_period" {
		t.Errorf("Unexpected period names: %+v", delta)
	}
	if delta.BaseTotal != 1500 || delta.TargetTotal != 3000 {
		t.Errorf("Totals = %f/%f, want 1500/3000", delta.BaseTotal, delta.TargetTotal)
	}
	if delta.AbsoluteChange != 1500 {
		t.Errorf("AbsoluteChange = %f, want 1500", delta.AbsoluteChange)
	}
	if delta.PercentChange == nil || !almostEqual(*delta.PercentChange, 100) {
		t.Errorf("PercentChange = %v, want 100", delta.PercentChange)
	}
}

func TestDeltaBetween_EmptyBase(t *testing.T) {
	tax := taxonomy.Default()
	pre, _ := tax.Period("pre_arra")
	arra, _ := tax.Period("arra_period")

	rows := categorized(tax,
		testAward("A1", 1000, "CA", "A Inc", "solar", day(2010, 6, 1)),
	)

	delta := DeltaBetween(rows, pre, arra)
	if delta.PercentChange != nil {
		t.Errorf("Zero base should give nil percent change, got %v", *delta.PercentChange)
	}
	if delta.AbsoluteChange != 1000 {
		t.Errorf("AbsoluteChange = %f, want 1000", delta.AbsoluteChange)
	}
}

func TestBuildInsights(t *testing.T) {
	snap := &Snapshot{
		States: []models.StateSummary{
			{StateCode: "CA", TotalFunding: 750, AwardCount: 3},
			{StateCode: "TX", TotalFunding: 250, AwardCount: 1},
		},
		Technologies: []models.TechnologySummary{
			{Technology: "Solar", TotalFunding: 600, FundingPercentage: 60},
			{Technology: "Wind", TotalFunding: 400, FundingPercentage: 40},
		},
		Patterns: models.GeographicPatterns{Gini: 0.5, TopFiveShare: 1.0, StatesWithFunding: 2},
		Trend:    models.TrendResult{Direction: models.TrendIncreasing, Slope: 10, Strength: 0.9, Points: 12},
		Summary:  models.DatasetSummary{AwardCount: 4, TotalFunding: 1000},
		Records: []models.CategorizedAward{
			{Award: models.Award{AwardID: "A1", Amount: 400, RecipientName: "Helios Energy Inc", StateCode: "CA"}},
			{Award: models.Award{AwardID: "A2", Amount: 600, RecipientName: "Gale Power LLC", StateCode: "TX"}},
		},
	}

	insights := BuildInsights(snap)

	types := make(map[string]models.Insight)
	for _, in := range insights {
		types[in.Type] = in
	}

	top, ok := types["top_state"]
	if !ok {
		t.Fatal("Expected a top_state insight")
	}
	if !almostEqual(top.Value, 75) {
		t.Errorf("top_state value = %f, want 75", top.Value)
	}

	if _, ok := types["top_technology"]; !ok {
		t.Error("Expected a top_technology insight")
	}
	if _, ok := types["concentration"]; !ok {
		t.Error("Expected a concentration insight")
	}
	if _, ok := types["trend"]; !ok {
		t.Error("Expected a trend insight")
	}

	largest, ok := types["largest_award"]
	if !ok {
		t.Fatal("Expected a largest_award insight")
	}
	if largest.Value != 600 {
		t.Errorf("largest_award value = %f, want 600", largest.Value)
	}
}

func TestBuildInsights_NoTrendWhenInsufficient(t *testing.T) {
	snap := &Snapshot{
		Trend: models.TrendResult{Direction: models.TrendInsufficient},
	}
	for _, in := range BuildInsights(snap) {
		if in.Type == "trend" {
			t.Error("Insufficient trend should not produce a trend insight")
		}
	}
}

func TestHumanAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2500000000, "$2.5B"},
		{7300000, "$7.3M"},
		{45000, "$45.0K"},
		{999, "$999"},
	}
	for _, tt := range tests {
		if got := humanAmount(tt.in); got != tt.want {
			t.Errorf("humanAmount(%f) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
