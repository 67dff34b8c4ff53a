// Package customsearch looks up companies related to an industry keyword via
// the Google Custom Search JSON API.
package customsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/health"
)

const (
	defaultBaseURL     = "https://www.googleapis.com"
	defaultTimeout     = 10 * time.Second
	defaultResultCount = 5
	maxResultCount     = 10
	maxResponseBytes   = 1024 * 1024
	upstreamName       = "customsearch"
)

var ErrEmptyQuery = errors.New("query is required")

type Config struct {
	APIKey      string
	EngineID    string
	BaseURL     string
	ResultCount int
	Timeout     time.Duration
	Client      *http.Client
	Health      *health.Tracker
}

type Client struct {
	apiKey      string
	engineID    string
	baseURL     string
	resultCount int
	timeout     time.Duration
	http        *http.Client
	health      *health.Tracker
}

type searchResponse struct {
	Items []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"items"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	count := cfg.ResultCount
	if count <= 0 || count > maxResultCount {
		count = defaultResultCount
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		engineID:    strings.TrimSpace(cfg.EngineID),
		baseURL:     strings.TrimRight(baseURL, "/"),
		resultCount: count,
		timeout:     timeout,
		http:        httpClient,
		health:      cfg.Health,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != "" && c.engineID != ""
}

func (c *Client) SearchCompanies(ctx context.Context, query string) (companies []domain.Company, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: customsearch: api key or engine id is not configured", domain.ErrProviderUnavailable)
	}

	startedAt := time.Now()
	defer func() {
		c.health.Record(upstreamName, err, time.Since(startedAt))
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(c.resultCount))

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+"/customsearch/v1?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: customsearch: build request: %w", domain.ErrProviderUnavailable, stripURL(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: customsearch: %w", domain.ErrProviderUnavailable, stripURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: customsearch: read body: %w", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: customsearch HTTP %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: customsearch: %w", domain.ErrMalformedResponse, err)
	}

	companies = make([]domain.Company, 0, len(payload.Items))
	for _, item := range payload.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		companies = append(companies, domain.Company{
			Title: strings.TrimSpace(item.Title),
			Link:  link,
		})
	}
	return companies, nil
}

func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
