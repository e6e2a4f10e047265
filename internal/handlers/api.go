package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"cleanspend/internal/errors"
	"cleanspend/internal/export"
	"cleanspend/internal/observability"
	"cleanspend/internal/report"
	"cleanspend/internal/services"
)

const (
	cacheMaxAge       = "public, max-age=300"
	defaultRecipients = 20
	maxQueryBody      = 1 << 20
)

var cacheHeaders = map[string]string{
	"Cache-Control": cacheMaxAge,
}

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

func (h *APIHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

// HandleSummary is the dashboard overview payload: dataset totals, cleaning
// exclusions, distribution statistics, and geographic concentration.
func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {

	data := map[string]any{
		"summary":             h.analytics.Summary(),
		"skip_report":         h.analytics.SkipReport(),
		"amount_stats":        h.analytics.AmountStats(),
		"geographic_patterns": h.analytics.Patterns(),
		"size_classes":        h.analytics.SizeClasses(),
	}

	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandleStates(w http.ResponseWriter, r *http.Request) {

	errors.WriteSuccessWithHeaders(w, h.analytics.States(), cacheHeaders)
}

func (h *APIHandlers) HandleTechnologies(w http.ResponseWriter, r *http.Request) {

	errors.WriteSuccessWithHeaders(w, h.analytics.Technologies(), cacheHeaders)
}

func (h *APIHandlers) HandleRecipients(w http.ResponseWriter, r *http.Request) {

	limit, err := queryLimit(r, defaultRecipients)
	if err != nil {
		h.writeError(w, r, errors.BadRequest(err.Error()))
		return
	}

	errors.WriteSuccessWithHeaders(w, h.analytics.Recipients(limit), cacheHeaders)
}

func (h *APIHandlers) HandleTimeline(w http.ResponseWriter, r *http.Request) {

	freq := services.Frequency(r.URL.Query().Get("freq"))
	switch freq {
	case "":
		freq = services.Monthly
	case services.Monthly, services.Quarterly, services.Fiscal:
	default:
		h.writeError(w, r, errors.BadRequest(fmt.Sprintf("unknown freq %q", freq)))
		return
	}

	errors.WriteSuccessWithHeaders(w, h.analytics.TimeSeries(freq), cacheHeaders)
}

func (h *APIHandlers) HandleKeywords(w http.ResponseWriter, r *http.Request) {

	limit, err := queryLimit(r, 0)
	if err != nil {
		h.writeError(w, r, errors.BadRequest(err.Error()))
		return
	}

	errors.WriteSuccessWithHeaders(w, h.analytics.Keywords(limit), cacheHeaders)
}

// HandleTrends returns the fitted funding trend together with the policy
// before/after comparison; both carry their own insufficient-data status.
func (h *APIHandlers) HandleTrends(w http.ResponseWriter, r *http.Request) {

	data := map[string]any{
		"trend":             h.analytics.Trend(),
		"policy_comparison": h.analytics.Comparison(),
	}

	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandlePeriods(w http.ResponseWriter, r *http.Request) {

	data := map[string]any{
		"periods": h.analytics.Periods(),
		"deltas":  h.analytics.Deltas(),
	}

	errors.WriteSuccessWithHeaders(w, data, cacheHeaders)
}

func (h *APIHandlers) HandlePeriodCompare(w http.ResponseWriter, r *http.Request) {

	base := r.URL.Query().Get("base")
	target := r.URL.Query().Get("target")
	if base == "" || target == "" {
		h.writeError(w, r, errors.BadRequest("base and target period names are required"))
		return
	}

	tax := h.analytics.Taxonomy()
	basePeriod, ok := tax.Period(base)
	if !ok {
		h.writeError(w, r, errors.NotFound(fmt.Sprintf("unknown period %q", base)))
		return
	}
	targetPeriod, ok := tax.Period(target)
	if !ok {
		h.writeError(w, r, errors.NotFound(fmt.Sprintf("unknown period %q", target)))
		return
	}

	snap, err := h.analytics.Current()
	if err != nil {
		h.writeError(w, r, errors.InsufficientData("no award data loaded"))
		return
	}

	errors.WriteSuccess(w, services.DeltaBetween(snap.Records, basePeriod, targetPeriod))
}

func (h *APIHandlers) HandleInsights(w http.ResponseWriter, r *http.Request) {

	errors.WriteSuccessWithHeaders(w, h.analytics.Insights(), cacheHeaders)
}

// HandleQuery runs an ad-hoc filter over the snapshot. Results are cached by
// canonical query key.
func (h *APIHandlers) HandleQuery(w http.ResponseWriter, r *http.Request) {

	var q services.Query
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&q); err != nil {
		h.writeError(w, r, errors.BadRequest("invalid query body"))
		return
	}

	result, err := h.analytics.Run(q)
	if err != nil {
		switch {
		case stderrors.Is(err, services.ErrUnknownPeriod), stderrors.Is(err, services.ErrUnknownState):
			h.writeError(w, r, errors.BadRequest(err.Error()))
		default:
			h.writeError(w, r, errors.InternalWrap(err, "query failed"))
		}
		return
	}

	errors.WriteSuccess(w, result)
}

func (h *APIHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {

	snap, err := h.analytics.Current()
	if err != nil {
		h.writeError(w, r, errors.InsufficientData("no award data loaded"))
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Cache-Control", cacheMaxAge)
	fmt.Fprint(w, report.Render(snap))
}

func (h *APIHandlers) HandleExport(w http.ResponseWriter, r *http.Request) {

	table := r.PathValue("table")
	if !slices.Contains(export.TableNames, table) {
		h.writeError(w, r, errors.NotFound(fmt.Sprintf("unknown export table %q", table)))
		return
	}

	formatParam := r.URL.Query().Get("format")
	if formatParam == "" {
		formatParam = string(export.CSV)
	}
	format, err := export.ParseFormat(formatParam)
	if err != nil {
		h.writeError(w, r, errors.BadRequest(err.Error()))
		return
	}

	snap, err := h.analytics.Current()
	if err != nil {
		h.writeError(w, r, errors.InsufficientData("no award data loaded"))
		return
	}

	tables := export.Tables{
		States:       snap.States,
		Technologies: snap.Technologies,
		Recipients:   snap.Recipients,
		Timeline:     snap.Monthly,
		Keywords:     snap.Keywords,
		Awards:       snap.Records,
	}

	// Buffer the table so a mid-write failure cannot leave a half-sent 200.
	var buf bytes.Buffer
	if err := export.WriteTable(&buf, tables, table, format); err != nil {
		if stderrors.Is(err, export.ErrEmptyDataset) {
			h.writeError(w, r, errors.InsufficientData(err.Error()))
			return
		}
		h.writeError(w, r, errors.InternalWrap(err, "export failed"))
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == export.JSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", table+"."+string(format)))
	w.Write(buf.Bytes())
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
		"awards":    h.analytics.Summary().AwardCount,
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {

	errors.WriteSuccess(w, h.analytics.Stats())
}

func (h *APIHandlers) HandleCacheInfo(w http.ResponseWriter, r *http.Request) {

	errors.WriteSuccess(w, h.analytics.CacheInfo())
}

func (h *APIHandlers) HandleCacheClear(w http.ResponseWriter, r *http.Request) {

	cleared := h.analytics.ClearCache()
	h.logger.Info("query cache cleared", "entries", cleared)

	errors.WriteSuccess(w, map[string]int{"cleared": cleared})
}

func queryLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}
