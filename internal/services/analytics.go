package services

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cleanspend/internal/metrics"
	"cleanspend/internal/models"
	"cleanspend/internal/taxonomy"
)

const cacheVersion = "v1"

var (
	ErrUnknownPeriod = errors.New("unknown period")
	ErrUnknownState  = errors.New("unknown state code")
	ErrNotLoaded     = errors.New("analytics not loaded")
)

// AwardSource supplies the awards the analytics engine works from, plus a
// fingerprint that changes whenever the underlying data changes. The store
// implements it; tests implement it inline.
type AwardSource interface {
	Awards(ctx context.Context) ([]models.Award, error)
	Fingerprint(ctx context.Context) (string, error)
}

// Options tunes the analytics engine. Zero values fall back to the defaults
// used by the server configuration.
type Options struct {
	CacheDir        string
	TopRecipients   int
	MinTrendPoints  int
	TrendThreshold  float64
	SeasonalMinimum int
}

func (o Options) withDefaults() Options {
	if o.CacheDir == "" {
		o.CacheDir = ".cache"
	}
	if o.TopRecipients <= 0 {
		o.TopRecipients = 50
	}
	if o.MinTrendPoints <= 0 {
		o.MinTrendPoints = 3
	}
	if o.TrendThreshold <= 0 {
		o.TrendThreshold = 0.01
	}
	if o.SeasonalMinimum <= 0 {
		o.SeasonalMinimum = 12
	}
	return o
}

// Snapshot holds every precomputed view over one version of the award data.
// It is immutable once published; readers share it without copying. All
// fields are exported so the gob cache round-trips the whole thing.
type Snapshot struct {
	Records      []models.CategorizedAward
	Skips        models.SkipReport
	States       []models.StateSummary
	Technologies []models.TechnologySummary
	Recipients   []models.RecipientSummary
	Monthly      []models.TimePoint
	Quarterly    []models.TimePoint
	Fiscal       []models.TimePoint
	SizeClasses  []models.SizeClassSummary
	Periods      []models.PeriodSummary
	Keywords     []models.KeywordStat
	Trend        models.TrendResult
	Patterns     models.GeographicPatterns
	Comparison   models.PeriodComparison
	Deltas       []models.PeriodDelta
	Amounts      models.SummaryStats
	Summary      models.DatasetSummary
	Insights     []models.Insight
	Fingerprint  string
	ComputedAt   time.Time
}

// Query filters the snapshot's awards. Empty fields match everything.
type Query struct {
	Keywords []string `json:"keywords,omitempty"`
	Period   string   `json:"period,omitempty"`
	States   []string `json:"states,omitempty"`
}

// Key returns a canonical cache key: two queries that differ only in case,
// whitespace, or element order share one entry.
func (q Query) Key() string {
	keywords := make([]string, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	slices.Sort(keywords)

	states := make([]string, 0, len(q.States))
	for _, s := range q.States {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			states = append(states, s)
		}
	}
	slices.Sort(states)

	return strings.Join(keywords, ",") + "|" + strings.TrimSpace(q.Period) + "|" + strings.Join(states, ",")
}

type QueryResult struct {
	Query        Query                      `json:"query"`
	AwardCount   int                        `json:"award_count"`
	TotalFunding float64                    `json:"total_funding"`
	AvgAward     float64                    `json:"avg_award"`
	States       []models.StateSummary      `json:"states"`
	Technologies []models.TechnologySummary `json:"technologies"`
	ComputedAt   time.Time                  `json:"computed_at"`
}

// Analytics precomputes every dashboard view from the award source and
// answers reads from an in-memory snapshot. Rebuilds swap the snapshot
// atomically under the lock; a gob cache keyed by the source fingerprint
// skips recomputation across restarts.
type Analytics struct {
	mu   sync.RWMutex
	snap *Snapshot

	queryMu    sync.RWMutex
	queryCache map[string]*QueryResult

	source        AwardSource
	tax           *taxonomy.Taxonomy
	opts          Options
	logger        *slog.Logger
	queriesServed atomic.Int64
}

func NewAnalytics(source AwardSource, tax *taxonomy.Taxonomy, opts Options) *Analytics {
	if tax == nil {
		tax = taxonomy.Default()
	}
	return &Analytics{
		snap:       &Snapshot{},
		queryCache: make(map[string]*QueryResult),
		source:     source,
		tax:        tax,
		opts:       opts.withDefaults(),
		logger:     slog.Default(),
	}
}

func (a *Analytics) Taxonomy() *taxonomy.Taxonomy {
	return a.tax
}

// Load populates the snapshot, reusing the gob cache when its fingerprint
// still matches the source.
func (a *Analytics) Load(ctx context.Context) error {
	fingerprint, err := a.source.Fingerprint(ctx)
	if err != nil {
		return fmt.Errorf("source fingerprint: %w", err)
	}

	if cached, err := a.loadFromCache(fingerprint); err == nil {
		a.swap(cached)
		a.logger.Info("loaded analytics snapshot from cache",
			"awards", cached.Summary.AwardCount,
			"fingerprint", fingerprint)
		return nil
	}

	return a.rebuild(ctx, fingerprint)
}

// Reload recomputes the snapshot unconditionally, bypassing the cache read.
func (a *Analytics) Reload(ctx context.Context) error {
	fingerprint, err := a.source.Fingerprint(ctx)
	if err != nil {
		return fmt.Errorf("source fingerprint: %w", err)
	}
	return a.rebuild(ctx, fingerprint)
}

func (a *Analytics) rebuild(ctx context.Context, fingerprint string) error {
	start := time.Now()

	awards, err := a.source.Awards(ctx)
	if err != nil {
		return fmt.Errorf("load awards: %w", err)
	}

	snap := a.compute(awards)
	snap.Fingerprint = fingerprint
	a.swap(snap)
	metrics.SnapshotRebuilds.Inc()

	if err := a.saveToCache(snap); err != nil {
		a.logger.Warn("failed to save snapshot cache", "error", err)
	}

	a.logger.Info("analytics snapshot computed",
		"awards", snap.Summary.AwardCount,
		"skipped", snap.Skips.Total(),
		"states", len(snap.States),
		"duration", time.Since(start))
	return nil
}

// SetData computes a snapshot directly from the given awards, bypassing the
// source and the cache. Used after bulk imports and by tests.
func (a *Analytics) SetData(awards []models.Award) {
	snap := a.compute(awards)
	snap.Fingerprint = fmt.Sprintf("inline-%d-%d", len(awards), snap.ComputedAt.UnixNano())
	a.swap(snap)
}

func (a *Analytics) swap(snap *Snapshot) {
	a.mu.Lock()
	a.snap = snap
	a.mu.Unlock()

	a.queryMu.Lock()
	a.queryCache = make(map[string]*QueryResult)
	a.queryMu.Unlock()
}

func (a *Analytics) compute(awards []models.Award) *Snapshot {
	clean, skips := validateAwards(a.tax, awards)
	rows := Categorize(a.tax, clean)

	snap := &Snapshot{
		Records:      rows,
		Skips:        skips,
		States:       AggregateStates(a.tax, rows),
		Technologies: AggregateTechnologies(rows),
		Recipients:   AggregateRecipients(rows, a.opts.TopRecipients),
		Monthly:      TimeSeries(rows, Monthly),
		Quarterly:    TimeSeries(rows, Quarterly),
		Fiscal:       TimeSeries(rows, Fiscal),
		SizeClasses:  AggregateSizeClasses(rows),
		Periods:      AggregatePeriods(rows, a.tax.EraPeriods()),
		Keywords:     KeywordStats(a.tax, rows),
		ComputedAt:   time.Now(),
	}

	snap.Trend = DetectTrend(snap.Monthly, a.opts.MinTrendPoints, a.opts.TrendThreshold, a.opts.SeasonalMinimum)
	snap.Patterns = GeoPatterns(snap.States)
	snap.Comparison = ComparePeriods(rows, a.tax.SplitDate())
	snap.Deltas = a.eraDeltas(rows)
	snap.Amounts = Summarize(awardAmounts(rows))
	snap.Summary = datasetSummary(rows)
	snap.Insights = BuildInsights(snap)
	return snap
}

// eraDeltas reports the change between each consecutive pair of eras.
func (a *Analytics) eraDeltas(rows []models.CategorizedAward) []models.PeriodDelta {
	eras := a.tax.EraPeriods()
	if len(eras) < 2 {
		return nil
	}
	deltas := make([]models.PeriodDelta, 0, len(eras)-1)
	for i := 1; i < len(eras); i++ {
		deltas = append(deltas, DeltaBetween(rows, eras[i-1], eras[i]))
	}
	return deltas
}

func awardAmounts(rows []models.CategorizedAward) []float64 {
	amounts := make([]float64, len(rows))
	for i, r := range rows {
		amounts[i] = r.Amount
	}
	return amounts
}

func datasetSummary(rows []models.CategorizedAward) models.DatasetSummary {
	summary := models.DatasetSummary{
		AwardCount:     len(rows),
		Technologies:   make(map[string]int),
		RecipientTypes: make(map[string]int),
	}

	recipients := make(map[string]struct{})
	states := make(map[string]struct{})
	for _, r := range rows {
		summary.TotalFunding += r.Amount
		recipients[r.RecipientName] = struct{}{}
		states[r.StateCode] = struct{}{}
		summary.Technologies[r.Technology]++
		summary.RecipientTypes[r.RecipientType]++

		if summary.EarliestStart.IsZero() || r.StartDate.Before(summary.EarliestStart) {
			summary.EarliestStart = r.StartDate
		}
		if r.StartDate.After(summary.LatestStart) {
			summary.LatestStart = r.StartDate
		}
	}
	summary.UniqueRecipients = len(recipients)
	summary.UniqueStates = len(states)
	return summary
}

// Snapshot accessors. Slices are shared, not copied; callers must not
// mutate them.

func (a *Analytics) States() []models.StateSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.States
}

func (a *Analytics) Technologies() []models.TechnologySummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Technologies
}

func (a *Analytics) Recipients(limit int) []models.RecipientSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if limit <= 0 || len(a.snap.Recipients) <= limit {
		return a.snap.Recipients
	}
	return a.snap.Recipients[:limit]
}

func (a *Analytics) TimeSeries(freq Frequency) []models.TimePoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch freq {
	case Quarterly:
		return a.snap.Quarterly
	case Fiscal:
		return a.snap.Fiscal
	default:
		return a.snap.Monthly
	}
}

func (a *Analytics) SizeClasses() []models.SizeClassSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.SizeClasses
}

func (a *Analytics) Periods() []models.PeriodSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Periods
}

func (a *Analytics) Keywords(limit int) []models.KeywordStat {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if limit <= 0 || len(a.snap.Keywords) <= limit {
		return a.snap.Keywords
	}
	return a.snap.Keywords[:limit]
}

func (a *Analytics) Trend() models.TrendResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Trend
}

func (a *Analytics) Patterns() models.GeographicPatterns {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Patterns
}

func (a *Analytics) Comparison() models.PeriodComparison {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Comparison
}

func (a *Analytics) Deltas() []models.PeriodDelta {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Deltas
}

func (a *Analytics) AmountStats() models.SummaryStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Amounts
}

func (a *Analytics) Summary() models.DatasetSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Summary
}

func (a *Analytics) SkipReport() models.SkipReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Skips
}

func (a *Analytics) Insights() []models.Insight {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Insights
}

// Current returns the published snapshot for bulk consumers such as the
// exporter and the report renderer.
func (a *Analytics) Current() (*Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snap == nil || a.snap.ComputedAt.IsZero() {
		return nil, ErrNotLoaded
	}
	return a.snap, nil
}

// Run executes an ad-hoc filter query against the snapshot, answering
// repeats from the query cache.
func (a *Analytics) Run(q Query) (*QueryResult, error) {
	a.queriesServed.Add(1)

	key := q.Key()
	a.queryMu.RLock()
	cached, ok := a.queryCache[key]
	a.queryMu.RUnlock()
	if ok {
		metrics.QueryCacheHits.Inc()
		return cached, nil
	}
	metrics.QueryCacheMisses.Inc()

	result, err := a.runQuery(q)
	if err != nil {
		return nil, err
	}

	a.queryMu.Lock()
	a.queryCache[key] = result
	a.queryMu.Unlock()
	return result, nil
}

func (a *Analytics) runQuery(q Query) (*QueryResult, error) {
	var period taxonomy.Period
	filterPeriod := strings.TrimSpace(q.Period) != ""
	if filterPeriod {
		p, ok := a.tax.Period(strings.TrimSpace(q.Period))
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPeriod, q.Period)
		}
		period = p
	}

	states := make(map[string]struct{}, len(q.States))
	for _, s := range q.States {
		code := strings.ToUpper(strings.TrimSpace(s))
		if code == "" {
			continue
		}
		if !a.tax.ValidState(code) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownState, code)
		}
		states[code] = struct{}{}
	}

	keywords := make([]string, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}

	a.mu.RLock()
	records := a.snap.Records
	a.mu.RUnlock()

	var matched []models.CategorizedAward
	for _, r := range records {
		if filterPeriod && !period.Contains(r.StartDate) {
			continue
		}
		if len(states) > 0 {
			if _, ok := states[r.StateCode]; !ok {
				continue
			}
		}
		if len(keywords) > 0 && !matchesAnyKeyword(r.Description, keywords) {
			continue
		}
		matched = append(matched, r)
	}

	result := &QueryResult{
		Query:        q,
		AwardCount:   len(matched),
		States:       AggregateStates(a.tax, matched),
		Technologies: AggregateTechnologies(matched),
		ComputedAt:   time.Now(),
	}
	for _, r := range matched {
		result.TotalFunding += r.Amount
	}
	if len(matched) > 0 {
		result.AvgAward = result.TotalFunding / float64(len(matched))
	}
	return result, nil
}

func matchesAnyKeyword(description string, keywords []string) bool {
	desc := strings.ToLower(description)
	for _, k := range keywords {
		if strings.Contains(desc, k) {
			return true
		}
	}
	return false
}

// ClearCache drops all cached query results and returns how many there were.
func (a *Analytics) ClearCache() int {
	a.queryMu.Lock()
	defer a.queryMu.Unlock()
	n := len(a.queryCache)
	a.queryCache = make(map[string]*QueryResult)
	return n
}

func (a *Analytics) CacheInfo() map[string]any {
	a.queryMu.RLock()
	defer a.queryMu.RUnlock()

	keys := make([]string, 0, len(a.queryCache))
	for k := range a.queryCache {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return map[string]any{
		"entries":        len(keys),
		"keys":           keys,
		"queries_served": a.queriesServed.Load(),
	}
}

// Cache management

func (a *Analytics) cacheFilename(fingerprint string) string {
	name := fmt.Sprintf("snapshot_%s_%s.gob", strings.ReplaceAll(fingerprint, "/", "_"), cacheVersion)
	return filepath.Join(a.opts.CacheDir, name)
}

func (a *Analytics) saveToCache(snap *Snapshot) error {
	if err := os.MkdirAll(a.opts.CacheDir, 0755); err != nil {
		return err
	}

	file, err := os.Create(a.cacheFilename(snap.Fingerprint))
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	return encoder.Encode(snap)
}

func (a *Analytics) loadFromCache(fingerprint string) (*Snapshot, error) {
	file, err := os.Open(a.cacheFilename(fingerprint))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snap Snapshot
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&snap); err != nil {
		return nil, err
	}
	if snap.Fingerprint != fingerprint {
		return nil, fmt.Errorf("stale snapshot cache: %s", snap.Fingerprint)
	}
	return &snap, nil
}

// Stats reports engine internals for the health and stats endpoints.
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	a.queryMu.RLock()
	cacheEntries := len(a.queryCache)
	a.queryMu.RUnlock()

	return map[string]any{
		"award_count":     a.snap.Summary.AwardCount,
		"total_funding":   a.snap.Summary.TotalFunding,
		"skipped_records": a.snap.Skips.Total(),
		"states":          len(a.snap.States),
		"technologies":    len(a.snap.Technologies),
		"recipients":      len(a.snap.Recipients),
		"monthly_buckets": len(a.snap.Monthly),
		"cache_entries":   cacheEntries,
		"queries_served":  a.queriesServed.Load(),
		"computed_at":     a.snap.ComputedAt,
		"fingerprint":     a.snap.Fingerprint,
	}
}
