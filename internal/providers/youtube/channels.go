package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/quota"
)

// FetchOwnerStats calls channels.list once for all channel ids. Channels that
// hide their subscriber count report zero with Hidden set.
func (c *Client) FetchOwnerStats(ctx context.Context, ownerIDs []string) ([]domain.OwnerStats, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	if err := checkBatch("youtube.channels", ownerIDs); err != nil {
		return nil, err
	}

	params := url.Values{
		"part": {"statistics"},
		"id":   {strings.Join(ownerIDs, ",")},
	}
	var response channelsListResponse
	if err := c.get(ctx, quota.APIChannels, "channels", params, &response); err != nil {
		return nil, err
	}

	stats := make([]domain.OwnerStats, 0, len(response.Items))
	for index, item := range response.Items {
		channelID := strings.TrimSpace(item.ID)
		if channelID == "" {
			return nil, fmt.Errorf("%w: youtube.channels: item %d has no id", domain.ErrMalformedResponse, index)
		}
		if item.Statistics == nil {
			return nil, fmt.Errorf("%w: youtube.channels: channel %s has no statistics", domain.ErrMalformedResponse, channelID)
		}
		if item.Statistics.HiddenSubscriberCount {
			stats = append(stats, domain.OwnerStats{OwnerID: channelID, Hidden: true})
			continue
		}
		subscribers, err := parseCount("statistics.subscriberCount", item.Statistics.SubscriberCount)
		if err != nil {
			return nil, fmt.Errorf("youtube.channels: channel %s: %w", channelID, err)
		}
		stats = append(stats, domain.OwnerStats{OwnerID: channelID, SubscriberCount: subscribers})
	}
	return stats, nil
}
