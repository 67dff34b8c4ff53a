package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "github.com/allprocessofworld/Contentsearchengine251112/internal/api/http"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/app"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/discovery"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/health"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/metrics"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/providers/customsearch"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/providers/gemini"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/providers/youtube"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/quota"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/retry"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// components holds everything both the server and the one-shot discover
// command need.
type components struct {
	discovery    *discovery.Service
	analyzer     *gemini.Client
	companies    *customsearch.Client
	tracker      *health.Tracker
	quota        quota.Meter
	closeQuota   func() error
	youtubeReady bool
}

func buildComponents(cfg app.Config, logger *slog.Logger) components {
	tracker := health.NewTracker()
	meter, closeQuota := buildQuotaMeter(cfg, logger)

	youtubeClient := youtube.NewClient(youtube.Config{
		APIKey:      cfg.GCPAPIKey,
		BaseURL:     cfg.YouTubeBaseURL,
		Timeout:     cfg.UpstreamTimeout,
		MaxInFlight: int64(cfg.YouTubeMaxInFlight),
		Client:      newUpstreamClient(cfg.UpstreamTimeout),
		Quota:       meter,
		Health:      tracker,
		Logger:      logger,
	})
	service := discovery.NewService(youtubeClient, youtubeClient, youtubeClient,
		discovery.WithLogger(logger),
		discovery.WithRegionCode(cfg.YouTubeRegionCode),
	)

	analyzer := gemini.NewClient(gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Timeout: analyzerTimeout(cfg),
		Client:  newUpstreamClient(analyzerTimeout(cfg)),
		Health:  tracker,
		Retry:   &analyzerRetry,
	})
	companies := customsearch.NewClient(customsearch.Config{
		APIKey:   cfg.GCPAPIKey,
		EngineID: cfg.CSEID,
		BaseURL:  cfg.CustomSearchURL,
		Timeout:  cfg.UpstreamTimeout,
		Client:   newUpstreamClient(cfg.UpstreamTimeout),
		Health:   tracker,
	})

	return components{
		discovery:    service,
		analyzer:     analyzer,
		companies:    companies,
		tracker:      tracker,
		quota:        meter,
		closeQuota:   closeQuota,
		youtubeReady: youtubeClient.Enabled(),
	}
}

const (
	discoveryStages   = 3
	writeTimeoutSlack = 5 * time.Second
)

// analyzerRetry is shared by the Gemini client and writeTimeout so the
// response deadline always covers every retry.
var analyzerRetry = retry.Default()

func analyzerTimeout(cfg app.Config) time.Duration {
	return 3 * cfg.UpstreamTimeout
}

// writeTimeout outlasts the slowest handler: three sequential YouTube calls
// for discovery or every Gemini attempt plus backoff for analysis.
func writeTimeout(cfg app.Config) time.Duration {
	budget := discoveryStages * cfg.UpstreamTimeout
	if analyze := analyzerRetry.Budget(analyzerTimeout(cfg)); analyze > budget {
		budget = analyze
	}
	return budget + writeTimeoutSlack
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("upstreamTimeout", cfg.UpstreamTimeout),
		slog.String("regionCode", cfg.YouTubeRegionCode),
		slog.Int("youtubeMaxInFlight", cfg.YouTubeMaxInFlight),
		slog.Bool("hasGCPKey", cfg.GCPAPIKey != ""),
		slog.Bool("hasCSEID", cfg.CSEID != ""),
		slog.Bool("hasGeminiKey", cfg.GeminiAPIKey != ""),
		slog.String("geminiModel", cfg.GeminiModel),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.String("corsAllowOrigin", cfg.CORSAllowOrigin),
	)

	deps := buildComponents(cfg, logger)
	defer func() {
		if err := deps.closeQuota(); err != nil {
			logger.Warn("quota store close failed", slog.String("error", err.Error()))
		}
	}()
	if !deps.youtubeReady {
		logger.Warn("GCP_API_KEY not configured, /api/youtube will fail upstream")
	}

	handler := apihttp.NewServer(deps.discovery,
		apihttp.WithLogger(logger),
		apihttp.WithAnalyzer(deps.analyzer),
		apihttp.WithCompanySearch(deps.companies),
		apihttp.WithDiagnostics(deps.tracker),
		apihttp.WithQuota(deps.quota),
		apihttp.WithCORSOrigin(cfg.CORSAllowOrigin),
		apihttp.WithRateLimit(float64(cfg.RateLimitRPS), cfg.RateLimitBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout(cfg),
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("content search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.UpstreamTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("content search service stopped")
	return nil
}

func newUpstreamClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = true
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// buildQuotaMeter uses Redis when REDIS_URL is reachable and an in-process
// meter otherwise.
func buildQuotaMeter(cfg app.Config, logger *slog.Logger) (quota.Meter, func() error) {
	noop := func() error { return nil }
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return quota.NewMemoryMeter(), noop
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, quota usage kept in memory", slog.String("error", err.Error()))
		return quota.NewMemoryMeter(), noop
	}
	client := redis.NewClient(redisOpts)
	meter := quota.NewRedisMeter(client, "")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := meter.Ping(ctx); err != nil {
		logger.Warn("redis not reachable, quota usage kept in memory", slog.String("error", err.Error()))
		_ = client.Close()
		return quota.NewMemoryMeter(), noop
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return meter, client.Close
}
