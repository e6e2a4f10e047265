package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"cleanspend/internal/services"
	"cleanspend/internal/ui/templates"
)

const maxTableRows = 50

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

func (h *SSEHandlers) renderFragment(r *http.Request, c templ.Component) (string, error) {
	html, err := templ.ToGoHTML(r.Context(), c)
	return string(html), err
}

func (h *SSEHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := h.renderFragment(r, templates.SummaryCards(h.analytics.Summary(), h.analytics.Patterns()))
	if err != nil {
		h.logger.Error("render summary cards", "error", err)
		return
	}
	sse.PatchElements(html)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleStates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := h.renderFragment(r, templates.StateTable(h.analytics.States(), maxTableRows))
	if err != nil {
		h.logger.Error("render state table", "error", err)
		return
	}
	sse.PatchElements(html)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleTechnologies(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	techs := h.analytics.Technologies()

	html, err := h.renderFragment(r, templates.TechnologyBreakdown(techs))
	if err != nil {
		h.logger.Error("render technology breakdown", "error", err)
		return
	}
	sse.PatchElements(html)

	signals, err := json.Marshal(map[string]any{
		"technologyData": techs,
	})
	if err != nil {
		h.logger.Error("marshal technology signals", "error", err)
		return
	}
	sse.PatchSignals(signals)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	html, err := h.renderFragment(r, templates.InsightList(h.analytics.Insights()))
	if err != nil {
		h.logger.Error("render insight list", "error", err)
		return
	}
	sse.PatchElements(html)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleRefresh re-patches every fragment and pushes fresh chart signals in
// one stream, mirroring what the dashboard's refresh button expects.
func (h *SSEHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	monthly := h.analytics.TimeSeries(services.Monthly)

	fragments := []templ.Component{
		templates.SummaryCards(h.analytics.Summary(), h.analytics.Patterns()),
		templates.StateTable(h.analytics.States(), maxTableRows),
		templates.TechnologyBreakdown(h.analytics.Technologies()),
		templates.InsightList(h.analytics.Insights()),
		templates.TimelineStatus(len(monthly)),
	}
	for _, fragment := range fragments {
		html, err := h.renderFragment(r, fragment)
		if err != nil {
			h.logger.Error("render dashboard fragment", "error", err)
			return
		}
		sse.PatchElements(html)
	}

	signals, err := json.Marshal(map[string]any{
		"technologyData": h.analytics.Technologies(),
		"timelineData":   monthly,
	})
	if err != nil {
		h.logger.Error("marshal dashboard signals", "error", err)
		return
	}
	sse.PatchSignals(signals)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
