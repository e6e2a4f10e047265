package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cleanspend/internal/handlers"
	"cleanspend/internal/services"
)

type Server struct {
	analytics   *services.Analytics
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(analytics *services.Analytics, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		analytics:   analytics,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(analytics, logger),
		sseHandlers: handlers.NewSSEHandlers(analytics, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard and operational routes
	s.mux.HandleFunc("GET /", templateHandlers.Dashboard)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /admin/cache", s.apiHandlers.HandleCacheInfo)
	s.mux.HandleFunc("POST /admin/cache/clear", s.apiHandlers.HandleCacheClear)

	// REST API endpoints
	s.mux.HandleFunc("GET /api/v1/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("GET /api/v1/states", s.apiHandlers.HandleStates)
	s.mux.HandleFunc("GET /api/v1/technologies", s.apiHandlers.HandleTechnologies)
	s.mux.HandleFunc("GET /api/v1/recipients", s.apiHandlers.HandleRecipients)
	s.mux.HandleFunc("GET /api/v1/timeline", s.apiHandlers.HandleTimeline)
	s.mux.HandleFunc("GET /api/v1/keywords", s.apiHandlers.HandleKeywords)
	s.mux.HandleFunc("GET /api/v1/trends", s.apiHandlers.HandleTrends)
	s.mux.HandleFunc("GET /api/v1/periods", s.apiHandlers.HandlePeriods)
	s.mux.HandleFunc("GET /api/v1/periods/compare", s.apiHandlers.HandlePeriodCompare)
	s.mux.HandleFunc("GET /api/v1/insights", s.apiHandlers.HandleInsights)
	s.mux.HandleFunc("GET /api/v1/report", s.apiHandlers.HandleReport)
	s.mux.HandleFunc("GET /api/v1/export/{table}", s.apiHandlers.HandleExport)
	s.mux.HandleFunc("POST /api/v1/query", s.apiHandlers.HandleQuery)
	s.mux.HandleFunc("GET /api/v1/health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /api/v1/stats", s.apiHandlers.HandleStats)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/summary", s.sseHandlers.HandleSummary)
	s.mux.HandleFunc("GET /sse/states", s.sseHandlers.HandleStates)
	s.mux.HandleFunc("GET /sse/technologies", s.sseHandlers.HandleTechnologies)
	s.mux.HandleFunc("GET /sse/insights", s.sseHandlers.HandleInsights)
	s.mux.HandleFunc("GET /sse/refresh", s.sseHandlers.HandleRefresh)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
