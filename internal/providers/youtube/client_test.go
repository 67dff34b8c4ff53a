package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/health"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/quota"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
		Client:  server.Client(),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	return NewClient(cfg), server
}

func writeJSONBody(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(payload))
}

func TestSearchBuildsConstrainedQuery(t *testing.T) {
	publishedAfter := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("KST", 9*60*60))
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/youtube/v3/search", r.URL.Path)
		query := r.URL.Query()
		assert.Equal(t, "snippet", query.Get("part"))
		assert.Equal(t, "video", query.Get("type"))
		assert.Equal(t, "KR", query.Get("regionCode"))
		assert.Equal(t, "long", query.Get("videoDuration"))
		assert.Equal(t, "조선소", query.Get("q"))
		assert.Equal(t, "2", query.Get("maxResults"))
		assert.Equal(t, "2025-01-01T18:04:05Z", query.Get("publishedAfter"))
		assert.Equal(t, "test-key", query.Get("key"))

		writeJSONBody(t, w, map[string]any{
			"items": []map[string]any{
				{"id": map[string]any{"kind": "youtube#video", "videoId": "v1"}, "snippet": map[string]any{"channelId": "c1"}},
				{"id": map[string]any{"kind": "youtube#video", "videoId": "v2"}, "snippet": map[string]any{"channelId": "c1"}},
			},
		})
	})

	refs, err := client.Search(context.Background(), "조선소", domain.SearchConstraints{
		RegionCode:     "KR",
		VideoDuration:  "long",
		ContentType:    "video",
		MaxResults:     2,
		PublishedAfter: &publishedAfter,
	})
	require.NoError(t, err)
	require.Equal(t, []domain.CandidateRef{
		{ItemID: "v1", OwnerID: "c1"},
		{ItemID: "v2", OwnerID: "c1"},
	}, refs)
}

func TestSearchURLEncodesKeyword(t *testing.T) {
	var rawQuery string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		writeJSONBody(t, w, map[string]any{"items": []any{}})
	})

	_, err := client.Search(context.Background(), "ships&key=other", domain.SearchConstraints{})
	require.NoError(t, err)
	require.NotContains(t, rawQuery, "ships&key=other")
	require.Equal(t, 1, strings.Count(rawQuery, "key="))
}

func TestSearchZeroItemsIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, map[string]any{"pageInfo": map[string]any{"totalResults": 0}})
	})

	refs, err := client.Search(context.Background(), "nothing", domain.SearchConstraints{})
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestSearchMissingVideoIDIsMalformed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, map[string]any{
			"items": []map[string]any{{"id": map[string]any{"kind": "youtube#channel"}}},
		})
	})

	_, err := client.Search(context.Background(), "x", domain.SearchConstraints{})
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestSearchNonSuccessStatusIsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSONBody(t, w, map[string]any{
			"error": map[string]any{
				"code":    403,
				"message": "The request cannot be completed because you have exceeded your quota.",
				"errors":  []map[string]any{{"reason": "quotaExceeded"}},
			},
		})
	})

	_, err := client.Search(context.Background(), "x", domain.SearchConstraints{})
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	require.Contains(t, err.Error(), "HTTP 403")
	require.Contains(t, err.Error(), "quotaExceeded")
}

func TestSearchInvalidJSONIsMalformed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})

	_, err := client.Search(context.Background(), "x", domain.SearchConstraints{})
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestTimeoutIsUnavailableAndKeyIsNotLeaked(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
	})

	_, err := client.Search(context.Background(), "x", domain.SearchConstraints{})
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	require.True(t, health.IsTimeout(err))
	require.NotContains(t, err.Error(), "test-key")
}

func TestMissingAPIKeyIsUnavailable(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}, func(cfg *Config) {
		cfg.APIKey = " "
	})

	_, err := client.Search(context.Background(), "x", domain.SearchConstraints{})
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	require.Zero(t, hits.Load())
}

func TestFetchDetailsBatchesIDsAndParsesItems(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/youtube/v3/videos", r.URL.Path)
		assert.Equal(t, "snippet,statistics", r.URL.Query().Get("part"))
		assert.Equal(t, "v1,v2,v3", r.URL.Query().Get("id"))

		writeJSONBody(t, w, map[string]any{
			"items": []map[string]any{
				{
					"id": "v1",
					"snippet": map[string]any{
						"title":        "Shipyard",
						"description":  "Welding at dawn",
						"channelId":    "c1",
						"channelTitle": "Industry Docs",
						"publishedAt":  "2024-05-01T09:00:00Z",
						"thumbnails": map[string]any{
							"default": map[string]any{"url": "https://i.ytimg.com/vi/v1/default.jpg"},
							"medium":  map[string]any{"url": "https://i.ytimg.com/vi/v1/mqdefault.jpg"},
							"maxres":  map[string]any{"url": "https://i.ytimg.com/vi/v1/maxresdefault.jpg"},
						},
					},
					"statistics": map[string]any{"viewCount": "12345", "likeCount": "67"},
				},
				{
					"id": "v3",
					"snippet": map[string]any{
						"title":     "Hidden likes",
						"channelId": "c2",
					},
					"statistics": map[string]any{"viewCount": "10"},
				},
			},
		})
	})

	details, err := client.FetchDetails(context.Background(), []string{"v1", "v2", "v3"})
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())
	require.Len(t, details, 2)

	first := details[0]
	require.Equal(t, "v1", first.ItemID)
	require.Equal(t, "c1", first.OwnerID)
	require.Equal(t, "Industry Docs", first.OwnerTitle)
	require.Equal(t, int64(12345), first.ViewCount)
	require.Equal(t, int64(67), first.LikeCount)
	require.Equal(t, []domain.ThumbnailVariant{
		{Label: domain.ThumbnailMedium, URL: "https://i.ytimg.com/vi/v1/mqdefault.jpg"},
		{Label: domain.ThumbnailDefault, URL: "https://i.ytimg.com/vi/v1/default.jpg"},
	}, first.Thumbnails)

	require.Equal(t, "v3", details[1].ItemID)
	require.Zero(t, details[1].LikeCount)
	require.Empty(t, details[1].Thumbnails)
}

func TestFetchDetailsRejectsMissingChannel(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, map[string]any{
			"items": []map[string]any{{"id": "v1", "snippet": map[string]any{"title": "orphan"}}},
		})
	})

	_, err := client.FetchDetails(context.Background(), []string{"v1"})
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestFetchDetailsRejectsNonNumericCount(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, map[string]any{
			"items": []map[string]any{{
				"id":         "v1",
				"snippet":    map[string]any{"channelId": "c1"},
				"statistics": map[string]any{"viewCount": "lots"},
			}},
		})
	})

	_, err := client.FetchDetails(context.Background(), []string{"v1"})
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestFetchDetailsEmptyInputSkipsCall(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	details, err := client.FetchDetails(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, details)
	require.Zero(t, hits.Load())
}

func TestFetchDetailsRejectsOversizedBatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	ids := make([]string, maxBatchIDs+1)
	for i := range ids {
		ids[i] = "v"
	}

	_, err := client.FetchDetails(context.Background(), ids)
	require.True(t, errors.Is(err, ErrBatchTooLarge))
}

func TestFetchOwnerStats(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/youtube/v3/channels", r.URL.Path)
		assert.Equal(t, "statistics", r.URL.Query().Get("part"))
		assert.Equal(t, "c1,c2", r.URL.Query().Get("id"))
		writeJSONBody(t, w, map[string]any{
			"items": []map[string]any{
				{"id": "c1", "statistics": map[string]any{"subscriberCount": "50000", "hiddenSubscriberCount": false}},
				{"id": "c2", "statistics": map[string]any{"subscriberCount": "0", "hiddenSubscriberCount": true}},
			},
		})
	})

	stats, err := client.FetchOwnerStats(context.Background(), []string{"c1", "c2"})
	require.NoError(t, err)
	require.Equal(t, []domain.OwnerStats{
		{OwnerID: "c1", SubscriberCount: 50000},
		{OwnerID: "c2", Hidden: true},
	}, stats)
}

func TestCallsRecordQuotaAndHealth(t *testing.T) {
	meter := quota.NewMemoryMeter()
	tracker := health.NewTracker()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/youtube/v3/channels" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSONBody(t, w, map[string]any{"items": []any{}})
	}, func(cfg *Config) {
		cfg.Quota = meter
		cfg.Health = tracker
	})

	ctx := context.Background()
	_, err := client.Search(ctx, "x", domain.SearchConstraints{})
	require.NoError(t, err)
	_, err = client.FetchDetails(ctx, []string{"v1"})
	require.NoError(t, err)
	_, err = client.FetchOwnerStats(ctx, []string{"c1"})
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)

	usage, err := meter.Usage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(102), usage.Total)

	diagnostics := tracker.Diagnostics()
	require.Len(t, diagnostics, 3)
	require.Equal(t, "youtube.channels", diagnostics[0].Name)
	require.Equal(t, int64(1), diagnostics[0].TotalFailures)
}

func TestFetchOwnerStatsMissingStatisticsIsMalformed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, map[string]any{
			"items": []map[string]any{
				{"id": "c1", "statistics": map[string]any{"subscriberCount": "10"}},
				{"id": "c2"},
			},
		})
	})

	_, err := client.FetchOwnerStats(context.Background(), []string{"c1", "c2"})
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
	require.Contains(t, err.Error(), "c2")
}

func TestInFlightWaitCountsAgainstCallTimeout(t *testing.T) {
	started := make(chan struct{}, 1)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}, func(cfg *Config) {
		cfg.MaxInFlight = 1
		cfg.Timeout = 300 * time.Millisecond
	})

	firstDone := make(chan error, 1)
	go func() {
		_, err := client.FetchOwnerStats(context.Background(), []string{"c1"})
		firstDone <- err
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first call never reached the server")
	}

	begin := time.Now()
	_, err := client.FetchOwnerStats(context.Background(), []string{"c2"})
	elapsed := time.Since(begin)

	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	require.Less(t, elapsed, 450*time.Millisecond, "waiting for a slot must share the per-call timeout")
	require.ErrorIs(t, <-firstDone, domain.ErrProviderUnavailable)
}
