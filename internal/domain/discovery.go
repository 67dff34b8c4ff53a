package domain

import (
	"errors"
	"time"
)

const (
	VideoURLBase         = "https://www.youtube.com/watch?v="
	DefaultMaxResults    = 5
	MaxResultsUpperBound = 50
)

var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrMalformedResponse   = errors.New("malformed upstream response")
)

type ThumbnailLabel string

const (
	ThumbnailStandard ThumbnailLabel = "standard"
	ThumbnailHigh     ThumbnailLabel = "high"
	ThumbnailMedium   ThumbnailLabel = "medium"
	ThumbnailDefault  ThumbnailLabel = "default"
)

// ThumbnailPriority ranks the variant labels best to worst.
var ThumbnailPriority = []ThumbnailLabel{
	ThumbnailStandard,
	ThumbnailHigh,
	ThumbnailMedium,
	ThumbnailDefault,
}

type SearchConstraints struct {
	RegionCode     string
	VideoDuration  string
	ContentType    string
	MaxResults     int
	PublishedAfter *time.Time
}

type DiscoveryRequest struct {
	Keyword        string
	PublishedAfter *time.Time
	MaxResults     int
}

type CandidateRef struct {
	ItemID  string
	OwnerID string
}

type ThumbnailVariant struct {
	Label ThumbnailLabel
	URL   string
}

type ItemDetail struct {
	ItemID      string
	Title       string
	Description string
	OwnerID     string
	OwnerTitle  string
	PublishedAt string
	ViewCount   int64
	LikeCount   int64
	Thumbnails  []ThumbnailVariant
}

type OwnerStats struct {
	OwnerID         string
	SubscriberCount int64
	Hidden          bool
}

type EnrichedItem struct {
	VideoID         string `json:"videoId"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	ChannelTitle    string `json:"channelTitle"`
	PublishedAt     string `json:"publishedAt"`
	ViewCount       int64  `json:"viewCount"`
	LikeCount       int64  `json:"likeCount"`
	VideoURL        string `json:"videoUrl"`
	Thumbnail       string `json:"thumbnail"`
	SubscriberCount int64  `json:"subscriberCount"`
}

// DiscoveryResult is the pipeline output. StatsDegraded reports that owner
// statistics could not be fetched and every SubscriberCount is a placeholder 0.
type DiscoveryResult struct {
	Items         []EnrichedItem
	StatsDegraded bool
}

func VideoURL(videoID string) string {
	return VideoURLBase + videoID
}
