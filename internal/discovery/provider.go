package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
)

var (
	ErrInvalidKeyword    = errors.New("keyword is required")
	ErrKeywordTooLong    = fmt.Errorf("keyword must be at most %d characters", MaxKeywordLength)
	ErrInvalidMaxResults = fmt.Errorf("maxResults must be between 1 and %d", domain.MaxResultsUpperBound)
)

type SearchProvider interface {
	Search(ctx context.Context, keyword string, constraints domain.SearchConstraints) ([]domain.CandidateRef, error)
}

type DetailsProvider interface {
	FetchDetails(ctx context.Context, itemIDs []string) ([]domain.ItemDetail, error)
}

type StatsProvider interface {
	FetchOwnerStats(ctx context.Context, ownerIDs []string) ([]domain.OwnerStats, error)
}

type Stage string

const (
	StageDiscovery  Stage = "discovery"
	StageDetails    Stage = "details"
	StageOwnerStats Stage = "owner_stats"
)

// UpstreamError is returned when a required stage (discovery or details)
// fails. Err wraps domain.ErrProviderUnavailable or domain.ErrMalformedResponse.
type UpstreamError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
