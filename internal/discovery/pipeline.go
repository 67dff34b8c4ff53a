// Package discovery runs the video discovery pipeline: keyword search, one
// batched details call, one batched owner statistics call, then a join into
// UI-ready items.
package discovery

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/metrics"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/telemetry"
)

const (
	defaultRegionCode    = "KR"
	defaultVideoDuration = "long"
	contentTypeVideo     = "video"
)

type Service struct {
	search        SearchProvider
	details       DetailsProvider
	stats         StatsProvider
	regionCode    string
	videoDuration string
	logger        *slog.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithRegionCode(regionCode string) ServiceOption {
	return func(s *Service) {
		if code := strings.ToUpper(strings.TrimSpace(regionCode)); code != "" {
			s.regionCode = code
		}
	}
}

func NewService(search SearchProvider, details DetailsProvider, stats StatsProvider, opts ...ServiceOption) *Service {
	svc := &Service{
		search:        search,
		details:       details,
		stats:         stats,
		regionCode:    defaultRegionCode,
		videoDuration: defaultVideoDuration,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Enrich runs the pipeline for one request. Discovery and details failures
// return *UpstreamError; owner statistics failures only set StatsDegraded.
func (s *Service) Enrich(ctx context.Context, request domain.DiscoveryRequest) (domain.DiscoveryResult, error) {
	keyword, err := ValidateKeyword(request.Keyword)
	if err != nil {
		return domain.DiscoveryResult{}, err
	}
	maxResults := request.MaxResults
	if maxResults == 0 {
		maxResults = domain.DefaultMaxResults
	}
	if maxResults < 0 || maxResults > domain.MaxResultsUpperBound {
		return domain.DiscoveryResult{}, ErrInvalidMaxResults
	}

	ctx, span := telemetry.StartSpan(ctx, "discovery.Enrich",
		attribute.String("keyword", keyword),
		attribute.Int("maxResults", maxResults),
	)
	result, err := s.enrich(ctx, keyword, maxResults, request)
	span.SetAttributes(
		attribute.Int("items", len(result.Items)),
		attribute.Bool("statsDegraded", result.StatsDegraded),
	)
	telemetry.EndSpan(span, err)
	if err == nil {
		metrics.PipelineItemsEmitted.Observe(float64(len(result.Items)))
	}
	return result, err
}

func (s *Service) enrich(ctx context.Context, keyword string, maxResults int, request domain.DiscoveryRequest) (domain.DiscoveryResult, error) {
	candidates, err := s.discover(ctx, keyword, maxResults, request)
	if err != nil {
		return domain.DiscoveryResult{}, err
	}
	if len(candidates) == 0 {
		s.logger.Debug("discovery returned no candidates", slog.String("keyword", keyword))
		return domain.DiscoveryResult{Items: []domain.EnrichedItem{}}, nil
	}

	details, err := s.fetchDetails(ctx, candidates)
	if err != nil {
		return domain.DiscoveryResult{}, err
	}

	subscribers, degraded := s.fetchOwnerStats(ctx, distinctOwners(details))

	items := make([]domain.EnrichedItem, 0, len(details))
	for _, detail := range details {
		thumb, ok := ResolveThumbnail(detail.Thumbnails)
		if !ok {
			s.logger.Warn("video has no thumbnail variants",
				slog.String("videoId", detail.ItemID),
			)
		}
		items = append(items, domain.EnrichedItem{
			VideoID:         detail.ItemID,
			Title:           detail.Title,
			Description:     detail.Description,
			ChannelTitle:    detail.OwnerTitle,
			PublishedAt:     detail.PublishedAt,
			ViewCount:       detail.ViewCount,
			LikeCount:       detail.LikeCount,
			VideoURL:        domain.VideoURL(detail.ItemID),
			Thumbnail:       thumb,
			SubscriberCount: subscribers[strings.TrimSpace(detail.OwnerID)],
		})
	}
	return domain.DiscoveryResult{Items: items, StatsDegraded: degraded}, nil
}

func (s *Service) discover(ctx context.Context, keyword string, maxResults int, request domain.DiscoveryRequest) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "discovery.stage.discovery")
	refs, err := s.search.Search(ctx, keyword, domain.SearchConstraints{
		RegionCode:     s.regionCode,
		VideoDuration:  s.videoDuration,
		ContentType:    contentTypeVideo,
		MaxResults:     maxResults,
		PublishedAfter: request.PublishedAfter,
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		metrics.PipelineStageTotal.WithLabelValues(string(StageDiscovery), "failed").Inc()
		return nil, &UpstreamError{Stage: StageDiscovery, Err: err}
	}

	ids := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		id := strings.TrimSpace(ref.ItemID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	outcome := "ok"
	if len(ids) == 0 {
		outcome = "empty"
	}
	metrics.PipelineStageTotal.WithLabelValues(string(StageDiscovery), outcome).Inc()
	return ids, nil
}

// fetchDetails issues exactly one batched call and keeps only rows that match
// a candidate, first occurrence wins, in provider order.
func (s *Service) fetchDetails(ctx context.Context, candidateIDs []string) ([]domain.ItemDetail, error) {
	ctx, span := telemetry.StartSpan(ctx, "discovery.stage.details",
		attribute.Int("requested", len(candidateIDs)),
	)
	rows, err := s.details.FetchDetails(ctx, candidateIDs)
	telemetry.EndSpan(span, err)
	if err != nil {
		metrics.PipelineStageTotal.WithLabelValues(string(StageDetails), "failed").Inc()
		return nil, &UpstreamError{Stage: StageDetails, Err: err}
	}

	allowed := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		allowed[id] = struct{}{}
	}
	kept := make([]domain.ItemDetail, 0, len(rows))
	emitted := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := allowed[row.ItemID]; !ok {
			s.logger.Warn("details returned an item that was not requested", slog.String("videoId", row.ItemID))
			continue
		}
		if _, dup := emitted[row.ItemID]; dup {
			s.logger.Warn("details returned a duplicate item", slog.String("videoId", row.ItemID))
			continue
		}
		emitted[row.ItemID] = struct{}{}
		kept = append(kept, row)
	}
	if dropped := len(candidateIDs) - len(kept); dropped > 0 {
		s.logger.Debug("details omitted candidates", slog.Int("dropped", dropped))
	}
	metrics.PipelineStageTotal.WithLabelValues(string(StageDetails), "ok").Inc()
	return kept, nil
}

// fetchOwnerStats never fails the pipeline. On any provider error every
// owner maps to 0 and degraded is true.
func (s *Service) fetchOwnerStats(ctx context.Context, ownerIDs []string) (map[string]int64, bool) {
	if len(ownerIDs) == 0 {
		metrics.PipelineStageTotal.WithLabelValues(string(StageOwnerStats), "skipped").Inc()
		return map[string]int64{}, false
	}

	ctx, span := telemetry.StartSpan(ctx, "discovery.stage.owner_stats",
		attribute.Int("owners", len(ownerIDs)),
	)
	stats, err := s.stats.FetchOwnerStats(ctx, ownerIDs)
	telemetry.EndSpan(span, err)
	if err != nil {
		s.logger.Warn("owner statistics unavailable, subscriber counts default to 0",
			slog.Int("owners", len(ownerIDs)),
			slog.String("error", err.Error()),
		)
		metrics.PipelineStageTotal.WithLabelValues(string(StageOwnerStats), "degraded").Inc()
		return map[string]int64{}, true
	}

	subscribers := make(map[string]int64, len(stats))
	for _, stat := range stats {
		count := stat.SubscriberCount
		if count < 0 || stat.Hidden {
			count = 0
		}
		subscribers[stat.OwnerID] = count
	}
	metrics.PipelineStageTotal.WithLabelValues(string(StageOwnerStats), "ok").Inc()
	return subscribers, false
}

func distinctOwners(details []domain.ItemDetail) []string {
	owners := make([]string, 0, len(details))
	seen := make(map[string]struct{}, len(details))
	for _, detail := range details {
		owner := strings.TrimSpace(detail.OwnerID)
		if owner == "" {
			continue
		}
		if _, ok := seen[owner]; ok {
			continue
		}
		seen[owner] = struct{}{}
		owners = append(owners, owner)
	}
	return owners
}
