package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/discovery"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
)

const (
	subscriberStatsHeader = "X-Subscriber-Stats"
	maxTextLength         = 20000
	maxQueryLength        = 500
)

type DiscoveryService interface {
	Enrich(ctx context.Context, request domain.DiscoveryRequest) (domain.DiscoveryResult, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) (domain.Analysis, error)
}

type CompanySearcher interface {
	SearchCompanies(ctx context.Context, query string) ([]domain.Company, error)
}

type DiagnosticsSource interface {
	Diagnostics() []domain.ProviderDiagnostics
}

type QuotaReporter interface {
	Usage(ctx context.Context) (domain.QuotaUsage, error)
}

type Server struct {
	discovery       DiscoveryService
	analyzer        Analyzer
	companies       CompanySearcher
	diagnostics     DiagnosticsSource
	quota           QuotaReporter
	thumbnailClient *http.Client
	thumbnailHosts  map[string]struct{}
	corsOrigin      string
	rateRPS         float64
	rateBurst       int
	logger          *slog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithAnalyzer(analyzer Analyzer) ServerOption {
	return func(s *Server) {
		s.analyzer = analyzer
	}
}

func WithCompanySearch(companies CompanySearcher) ServerOption {
	return func(s *Server) {
		s.companies = companies
	}
}

func WithDiagnostics(source DiagnosticsSource) ServerOption {
	return func(s *Server) {
		s.diagnostics = source
	}
}

func WithQuota(quota QuotaReporter) ServerOption {
	return func(s *Server) {
		s.quota = quota
	}
}

func WithCORSOrigin(origin string) ServerOption {
	return func(s *Server) {
		s.corsOrigin = strings.TrimSpace(origin)
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.rateRPS = rps
			s.rateBurst = burst
		}
	}
}

func WithThumbnailClient(client *http.Client) ServerOption {
	return func(s *Server) {
		s.thumbnailClient = client
	}
}

func NewServer(discoveryService DiscoveryService, options ...ServerOption) *Server {
	server := &Server{
		discovery:      discoveryService,
		thumbnailHosts: defaultThumbnailHosts(),
		corsOrigin:     "*",
		rateRPS:        20,
		rateBurst:      40,
		logger:         slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	if server.thumbnailClient == nil {
		server.thumbnailClient = newThumbnailClient(server.thumbnailHosts)
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/youtube", s.handleYouTube)
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/company", s.handleCompany)
	mux.HandleFunc("/api/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/api/thumbnail", s.handleThumbnail)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "content-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, corsMiddleware(s.corsOrigin, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(traced))))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

type discoveryRequestBody struct {
	Keyword        string      `json:"keyword"`
	PublishedAfter string      `json:"publishedAfter"`
	MaxResults     flexibleInt `json:"maxResults"`
}

// flexibleInt accepts both 10 and "10"; browser form values arrive as strings.
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*f = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return errors.New("maxResults must be an integer")
	}
	*f = flexibleInt(value)
	return nil
}

func (s *Server) handleYouTube(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/youtube" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if s.discovery == nil {
		writeError(w, http.StatusInternalServerError, "discovery service is not configured")
		return
	}

	var body discoveryRequestBody
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keyword, err := discovery.ValidateKeyword(body.Keyword)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	publishedAfter, err := discovery.ParsePublishedAfter(body.PublishedAfter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.discovery.Enrich(r.Context(), domain.DiscoveryRequest{
		Keyword:        keyword,
		PublishedAfter: publishedAfter,
		MaxResults:     int(body.MaxResults),
	})
	if err != nil {
		s.writeDiscoveryError(w, keyword, err)
		return
	}

	s.logger.Info("discovery completed",
		slog.String("keyword", truncate(keyword, 80)),
		slog.Int("items", len(result.Items)),
		slog.Bool("statsDegraded", result.StatsDegraded),
	)
	if result.StatsDegraded {
		w.Header().Set(subscriberStatsHeader, "degraded")
	}
	items := result.Items
	if items == nil {
		items = []domain.EnrichedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) writeDiscoveryError(w http.ResponseWriter, keyword string, err error) {
	var upstreamErr *discovery.UpstreamError
	switch {
	case errors.Is(err, discovery.ErrInvalidKeyword),
		errors.Is(err, discovery.ErrKeywordTooLong),
		errors.Is(err, discovery.ErrInvalidMaxResults):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &upstreamErr):
		s.logger.Error("discovery request failed",
			slog.String("keyword", truncate(keyword, 80)),
			slog.String("stage", string(upstreamErr.Stage)),
			slog.Bool("malformed", errors.Is(err, domain.ErrMalformedResponse)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Error("discovery request failed",
			slog.String("keyword", truncate(keyword, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "discovery failed")
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/analyze" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if s.analyzer == nil {
		writeError(w, http.StatusInternalServerError, "analysis service is not configured")
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if len(text) > maxTextLength {
		writeError(w, http.StatusBadRequest, "text too long")
		return
	}

	analysis, err := s.analyzer.Analyze(r.Context(), text)
	if err != nil {
		s.logger.Error("analysis failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/company" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if s.companies == nil {
		writeError(w, http.StatusInternalServerError, "company search is not configured")
		return
	}

	var body struct {
		Query string `json:"query"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := strings.TrimSpace(body.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "query too long (max 500 characters)")
		return
	}

	companies, err := s.companies.SearchCompanies(r.Context(), query)
	if err != nil {
		s.logger.Error("company search failed",
			slog.String("query", truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if companies == nil {
		companies = []domain.Company{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	items := []domain.ProviderDiagnostics{}
	if s.diagnostics != nil {
		items = s.diagnostics.Diagnostics()
	}
	payload := map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     items,
	}
	if s.quota != nil {
		usage, err := s.quota.Usage(r.Context())
		if err != nil {
			s.logger.Warn("quota usage unavailable", slog.String("error", err.Error()))
		} else {
			payload["quota"] = usage
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}
