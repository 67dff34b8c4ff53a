package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/health"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/retry"
)

func modelReply(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
}

func TestAnalyzeSendsPromptAndParsesFencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1beta/models/gemini-pro:generateContent" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "gem-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		if r.URL.Query().Get("key") != "" {
			t.Error("api key must not be sent in the query string")
		}
		body, _ := io.ReadAll(r.Body)
		var request generateRequest
		if err := json.Unmarshal(body, &request); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		prompt := request.Contents[0].Parts[0].Text
		if !strings.Contains(prompt, "산업 다큐멘터리 PD") || !strings.HasSuffix(prompt, "LNG 운반선 건조 현장") {
			t.Errorf("unexpected prompt %q", prompt)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(modelReply("```json\n{\"topics\": [\"조선\", \"용접\", \"수출\"], \"industries\": [\"조선업\", \"철강\", \"해운\"]}\n```"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "gem-key", BaseURL: server.URL, Client: server.Client()})
	analysis, err := client.Analyze(context.Background(), "  LNG 운반선 건조 현장 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(analysis.Topics) != 3 || analysis.Topics[0] != "조선" {
		t.Fatalf("unexpected topics %v", analysis.Topics)
	}
	if len(analysis.Industries) != 3 || analysis.Industries[2] != "해운" {
		t.Fatalf("unexpected industries %v", analysis.Industries)
	}
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	tracker := health.NewTracker()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Client: server.Client(), Health: tracker, Retry: &retry.Config{MaxAttempts: 1}})
	_, err := client.Analyze(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "HTTP 429") {
		t.Fatalf("expected HTTP 429 error, got %v", err)
	}
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if diagnostics := tracker.Diagnostics(); len(diagnostics) != 1 || diagnostics[0].TotalFailures != 1 {
		t.Fatalf("expected one recorded failure, got %+v", diagnostics)
	}
}

func TestAnalyzeRetriesOverloadedUpstream(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(modelReply(`{"topics":["반도체"],"industries":["전자"]}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  "k",
		BaseURL: server.URL,
		Client:  server.Client(),
		Retry:   &retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond},
	})
	analysis, err := client.Analyze(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 || analysis.Topics[0] != "반도체" {
		t.Fatalf("expected success on second attempt, calls=%d analysis=%+v", calls.Load(), analysis)
	}
}

func TestAnalyzeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  "k",
		BaseURL: server.URL,
		Client:  server.Client(),
		Retry:   &retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	if _, err := client.Analyze(context.Background(), "text"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestAnalyzeWithoutCandidatesIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Client: server.Client()})
	_, err := client.Analyze(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), domain.ErrMalformedResponse.Error()) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestAnalyzeRejectsEmptyText(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	if _, err := client.Analyze(context.Background(), "   "); err != ErrEmptyText {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestParseAnalysis(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		topics  int
		wantErr bool
	}{
		{name: "plain json", raw: `{"topics":["a"],"industries":["b"]}`, topics: 1},
		{name: "bare fence", raw: "```\n{\"topics\":[\"a\",\"b\"]}\n```", topics: 2},
		{name: "leading prose", raw: "다음과 같습니다: {\"topics\":[],\"industries\":[]}", topics: 0},
		{name: "not json", raw: "죄송합니다", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analysis, err := ParseAnalysis(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(analysis.Topics) != tc.topics {
				t.Fatalf("expected %d topics, got %v", tc.topics, analysis.Topics)
			}
			if analysis.Industries == nil {
				t.Fatal("industries must never be nil")
			}
		})
	}
}
