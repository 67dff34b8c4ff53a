package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/quota"
)

// FetchDetails calls videos.list once for all ids. Deleted or private videos
// are silently absent from the response.
func (c *Client) FetchDetails(ctx context.Context, itemIDs []string) ([]domain.ItemDetail, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	if err := checkBatch("youtube.videos", itemIDs); err != nil {
		return nil, err
	}

	params := url.Values{
		"part": {"snippet,statistics"},
		"id":   {strings.Join(itemIDs, ",")},
	}
	var response videosListResponse
	if err := c.get(ctx, quota.APIVideos, "videos", params, &response); err != nil {
		return nil, err
	}

	details := make([]domain.ItemDetail, 0, len(response.Items))
	for index, item := range response.Items {
		videoID := strings.TrimSpace(item.ID)
		if videoID == "" {
			return nil, fmt.Errorf("%w: youtube.videos: item %d has no id", domain.ErrMalformedResponse, index)
		}
		if item.Snippet == nil || strings.TrimSpace(item.Snippet.ChannelID) == "" {
			return nil, fmt.Errorf("%w: youtube.videos: video %s has no snippet.channelId", domain.ErrMalformedResponse, videoID)
		}
		views, err := parseCount("statistics.viewCount", item.Statistics.ViewCount)
		if err != nil {
			return nil, fmt.Errorf("youtube.videos: video %s: %w", videoID, err)
		}
		likes, err := parseCount("statistics.likeCount", item.Statistics.LikeCount)
		if err != nil {
			return nil, fmt.Errorf("youtube.videos: video %s: %w", videoID, err)
		}
		details = append(details, domain.ItemDetail{
			ItemID:      videoID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			OwnerID:     strings.TrimSpace(item.Snippet.ChannelID),
			OwnerTitle:  item.Snippet.ChannelTitle,
			PublishedAt: item.Snippet.PublishedAt,
			ViewCount:   views,
			LikeCount:   likes,
			Thumbnails:  rankThumbnails(item.Snippet.Thumbnails),
		})
	}
	return details, nil
}
