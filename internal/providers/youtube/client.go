// Package youtube adapts the YouTube Data API v3 list endpoints (search,
// videos, channels) to the discovery pipeline's provider contracts.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/health"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/quota"
)

const (
	defaultBaseURL     = "https://www.googleapis.com"
	defaultTimeout     = 10 * time.Second
	defaultMaxInFlight = 8
	maxBatchIDs        = 50
	maxResponseBytes   = 2 * 1024 * 1024
)

var ErrBatchTooLarge = errors.New("too many ids for one batched call")

type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxInFlight int64
	Client      *http.Client
	Quota       quota.Meter
	Health      *health.Tracker
	Logger      *slog.Logger
}

type Client struct {
	apiKey   string
	baseURL  string
	timeout  time.Duration
	http     *http.Client
	inflight *semaphore.Weighted
	quota    quota.Meter
	health   *health.Tracker
	logger   *slog.Logger
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  timeout,
		http:     httpClient,
		inflight: semaphore.NewWeighted(maxInFlight),
		quota:    cfg.Quota,
		health:   cfg.Health,
		logger:   logger,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// get performs one GET against /youtube/v3/<resource> and decodes the body
// into dest. Every failure is wrapped with domain.ErrProviderUnavailable or
// domain.ErrMalformedResponse.
func (c *Client) get(ctx context.Context, api, resource string, params url.Values, dest any) (err error) {
	upstream := "youtube." + resource
	if !c.Enabled() {
		return fmt.Errorf("%w: %s: api key is not configured", domain.ErrProviderUnavailable, upstream)
	}

	// The timeout covers waiting for an in-flight slot as well as the request.
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startedAt := time.Now()
	defer func() {
		c.health.Record(upstream, err, time.Since(startedAt))
	}()

	if err := c.inflight.Acquire(callCtx, 1); err != nil {
		return fmt.Errorf("%w: %s: waiting for in-flight slot: %w", domain.ErrProviderUnavailable, upstream, err)
	}
	defer c.inflight.Release(1)

	if c.quota != nil {
		if quotaErr := c.quota.Add(callCtx, api, quota.Cost(api)); quotaErr != nil {
			c.logger.Warn("quota accounting failed",
				slog.String("api", api),
				slog.String("error", quotaErr.Error()),
			)
		}
	}

	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("key", c.apiKey)
	reqURL := c.baseURL + "/youtube/v3/" + resource + "?" + query.Encode()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: build request: %w", domain.ErrProviderUnavailable, upstream, stripURL(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, upstream, stripURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %w", domain.ErrProviderUnavailable, upstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s HTTP %d%s", domain.ErrProviderUnavailable, upstream, resp.StatusCode, apiErrorSuffix(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrMalformedResponse, upstream, err)
	}
	return nil
}

// stripURL drops the request URL from transport errors so the API key never
// reaches logs or client-facing messages.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func apiErrorSuffix(body []byte) string {
	var payload apiErrorResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	message := strings.TrimSpace(payload.Error.Message)
	if message == "" {
		return ""
	}
	reason := ""
	if len(payload.Error.Errors) > 0 {
		reason = strings.TrimSpace(payload.Error.Errors[0].Reason)
	}
	if reason != "" {
		return fmt.Sprintf(": %s (%s)", message, reason)
	}
	return ": " + message
}

func checkBatch(upstream string, ids []string) error {
	if len(ids) > maxBatchIDs {
		return fmt.Errorf("%w: %s: %d ids (max %d)", ErrBatchTooLarge, upstream, len(ids), maxBatchIDs)
	}
	return nil
}
