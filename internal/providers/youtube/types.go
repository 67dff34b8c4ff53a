package youtube

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
)

// Wire shapes of the YouTube Data API v3 list responses. Only the fields the
// adapters read are declared.

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			ChannelID string `json:"channelId"`
		} `json:"snippet"`
	} `json:"items"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type videosListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet *struct {
			Title        string               `json:"title"`
			Description  string               `json:"description"`
			ChannelID    string               `json:"channelId"`
			ChannelTitle string               `json:"channelTitle"`
			PublishedAt  string               `json:"publishedAt"`
			Thumbnails   map[string]thumbnail `json:"thumbnails"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type channelsListResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics *struct {
			SubscriberCount       string `json:"subscriberCount"`
			HiddenSubscriberCount bool   `json:"hiddenSubscriberCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// parseCount reads the decimal strings the API uses for 64-bit counters.
// Absent counters (hidden likes, disabled statistics) are zero.
func parseCount(field, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s %q is not a non-negative integer", domain.ErrMalformedResponse, field, raw)
	}
	return value, nil
}

// rankThumbnails orders the known variants best to worst, dropping missing
// or empty ones.
func rankThumbnails(thumbs map[string]thumbnail) []domain.ThumbnailVariant {
	if len(thumbs) == 0 {
		return nil
	}
	variants := make([]domain.ThumbnailVariant, 0, len(domain.ThumbnailPriority))
	for _, label := range domain.ThumbnailPriority {
		thumb, ok := thumbs[string(label)]
		if !ok {
			continue
		}
		link := strings.TrimSpace(thumb.URL)
		if link == "" {
			continue
		}
		variants = append(variants, domain.ThumbnailVariant{Label: label, URL: link})
	}
	return variants
}
