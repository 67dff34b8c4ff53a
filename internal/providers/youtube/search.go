package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/quota"
)

// Search calls search.list. Zero items is a valid empty result.
func (c *Client) Search(ctx context.Context, keyword string, constraints domain.SearchConstraints) ([]domain.CandidateRef, error) {
	params := url.Values{
		"part": {"snippet"},
		"q":    {strings.TrimSpace(keyword)},
	}
	if constraints.ContentType != "" {
		params.Set("type", constraints.ContentType)
	}
	if constraints.RegionCode != "" {
		params.Set("regionCode", constraints.RegionCode)
	}
	if constraints.VideoDuration != "" {
		params.Set("videoDuration", constraints.VideoDuration)
	}
	if constraints.MaxResults > 0 {
		params.Set("maxResults", strconv.Itoa(constraints.MaxResults))
	}
	if constraints.PublishedAfter != nil {
		params.Set("publishedAfter", constraints.PublishedAfter.UTC().Format(time.RFC3339))
	}

	var response searchListResponse
	if err := c.get(ctx, quota.APISearch, "search", params, &response); err != nil {
		return nil, err
	}

	refs := make([]domain.CandidateRef, 0, len(response.Items))
	for index, item := range response.Items {
		videoID := strings.TrimSpace(item.ID.VideoID)
		if videoID == "" {
			return nil, fmt.Errorf("%w: youtube.search: item %d has no id.videoId", domain.ErrMalformedResponse, index)
		}
		refs = append(refs, domain.CandidateRef{
			ItemID:  videoID,
			OwnerID: strings.TrimSpace(item.Snippet.ChannelID),
		})
	}
	return refs, nil
}
