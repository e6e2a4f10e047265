package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cleanspend/internal/config"
	"cleanspend/internal/metrics"
	"cleanspend/internal/middleware"
	"cleanspend/internal/observability"
	"cleanspend/internal/server"
	"cleanspend/internal/services"
	"cleanspend/internal/store"
	"cleanspend/internal/taxonomy"
	"cleanspend/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	loadTimeout   = 60 * time.Second
	cacheMaxAge   = "public, max-age=300"
)

// handleDashboard serves the dashboard page. The mux routes every unmatched
// GET here, so unknown paths 404 instead of rendering the page.
func handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Cache-Control", cacheMaxAge)
	if err := templates.Dashboard().Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

func loadTaxonomy(cfg *config.Config) (*taxonomy.Taxonomy, error) {
	if cfg.Taxonomy.File == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.Load(cfg.Taxonomy.File)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"addr", cfg.Address(),
		"store", cfg.Store.Path,
	)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open award store", "error", err)
		os.Exit(1)
	}

	tax, err := loadTaxonomy(cfg)
	if err != nil {
		logger.Error("failed to load taxonomy", "error", err)
		os.Exit(1)
	}

	analytics := services.NewAnalytics(st, tax, services.Options{
		CacheDir:        cfg.Analytics.CacheDir,
		TopRecipients:   cfg.Analytics.TopRecipients,
		MinTrendPoints:  cfg.Analytics.MinTrendPoints,
		TrendThreshold:  cfg.Analytics.TrendThreshold,
		SeasonalMinimum: cfg.Analytics.SeasonalMinimum,
	})

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	start := time.Now()
	if err := analytics.Load(ctx); err != nil {
		logger.Error("failed to load award data", "error", err)
		os.Exit(1)
	}
	logger.Info("award data loaded",
		"awards", analytics.Summary().AwardCount,
		"duration", time.Since(start),
	)

	metrics.Init(analytics)

	templateHandlers := &server.TemplateHandlers{
		Dashboard: handleDashboard,
	}

	srv := server.NewServer(analytics, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.Metrics(),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook("store", func(ctx context.Context) error {
		logger.Info("closing award store")
		return st.Close()
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
