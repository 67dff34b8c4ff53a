// Package gemini extracts documentary topics and industries from free text
// through the Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/health"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/retry"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	defaultModel     = "gemini-pro"
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 1024 * 1024
	upstreamName     = "gemini"
)

const promptTemplate = `당신은 대한민국 산업 다큐멘터리 PD입니다. 다음 영상 정보를 보고, [핵심 주제] 3가지와 [구체적인 산업/업종] 3가지를 추출해주세요. 응답은 반드시 다음 JSON 형식으로만 하십시오: {"topics": ["주제1", "주제2"], "industries": ["산업1", "산업2"]}

[입력 텍스트]
%s`

var ErrEmptyText = errors.New("text is required")

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Client  *http.Client
	Health  *health.Tracker
	Retry   *retry.Config
}

type Client struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	http    *http.Client
	health  *health.Tracker
	retry   retry.Config
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	retryCfg := retry.Default()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	retryCfg.Retryable = retryable
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		timeout: timeout,
		http:    httpClient,
		health:  cfg.Health,
		retry:   retryCfg,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

func (c *Client) Analyze(ctx context.Context, text string) (result domain.Analysis, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Analysis{}, ErrEmptyText
	}
	if !c.Enabled() {
		return domain.Analysis{}, fmt.Errorf("%w: gemini: api key is not configured", domain.ErrProviderUnavailable)
	}

	startedAt := time.Now()
	defer func() {
		c.health.Record(upstreamName, err, time.Since(startedAt))
	}()

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: fmt.Sprintf(promptTemplate, text)}}}},
	})
	if err != nil {
		return domain.Analysis{}, err
	}

	var reply string
	err = retry.Do(ctx, c.retry, func(int) error {
		var callErr error
		reply, callErr = c.generate(ctx, payload)
		return callErr
	})
	if err != nil {
		return domain.Analysis{}, err
	}
	return ParseAnalysis(reply)
}

func (c *Client) generate(ctx context.Context, payload []byte) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: gemini: build request: %w", domain.ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: gemini: read body: %w", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, &statusError{code: resp.StatusCode})
	}

	var response generateResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%w: gemini: %w", domain.ErrMalformedResponse, err)
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini: response has no candidate text", domain.ErrMalformedResponse)
	}
	return response.Candidates[0].Content.Parts[0].Text, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gemini HTTP %d", e.code)
}

// retryable covers transport failures plus rate limiting and overload.
func retryable(err error) bool {
	var status *statusError
	if errors.As(err, &status) {
		return status.code == http.StatusTooManyRequests || status.code >= 500
	}
	return retry.IsTransient(err)
}

// ParseAnalysis decodes model output that may be wrapped in a markdown code
// fence.
func ParseAnalysis(raw string) (domain.Analysis, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}

	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: gemini: model output is not the expected JSON: %w", domain.ErrMalformedResponse, err)
	}
	if analysis.Topics == nil {
		analysis.Topics = []string{}
	}
	if analysis.Industries == nil {
		analysis.Industries = []string{}
	}
	return analysis, nil
}
