// Package quota accounts YouTube Data API quota units per quota day.
//
// The YouTube quota day rolls over at midnight Pacific time, so usage is
// bucketed by the calendar date in that zone.
package quota

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/metrics"
)

const (
	APISearch   = "search.list"
	APIVideos   = "videos.list"
	APIChannels = "channels.list"
)

var unitCosts = map[string]int64{
	APISearch:   100,
	APIVideos:   1,
	APIChannels: 1,
}

// Cost returns the documented quota cost of one call to api.
func Cost(api string) int64 {
	if cost, ok := unitCosts[api]; ok {
		return cost
	}
	return 1
}

type Meter interface {
	Add(ctx context.Context, api string, units int64) error
	Usage(ctx context.Context) (domain.QuotaUsage, error)
}

var pacific = loadPacific()

func loadPacific() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.FixedZone("PST", -8*60*60)
	}
	return loc
}

func quotaDay(now time.Time) string {
	return now.In(pacific).Format("2006-01-02")
}

type MemoryMeter struct {
	mu    sync.Mutex
	now   func() time.Time
	day   string
	byAPI map[string]int64
}

func NewMemoryMeter() *MemoryMeter {
	return &MemoryMeter{
		now:   time.Now,
		byAPI: make(map[string]int64),
	}
}

func (m *MemoryMeter) Add(_ context.Context, api string, units int64) error {
	api = strings.TrimSpace(api)
	if api == "" || units <= 0 {
		return nil
	}
	metrics.QuotaUnitsTotal.WithLabelValues(api).Add(float64(units))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollLocked()
	m.byAPI[api] += units
	return nil
}

func (m *MemoryMeter) Usage(_ context.Context) (domain.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollLocked()

	usage := domain.QuotaUsage{Day: m.day, ByAPI: make(map[string]int64, len(m.byAPI))}
	for api, units := range m.byAPI {
		usage.ByAPI[api] = units
		usage.Total += units
	}
	return usage, nil
}

func (m *MemoryMeter) rollLocked() {
	day := quotaDay(m.now())
	if day != m.day {
		m.day = day
		m.byAPI = make(map[string]int64)
	}
}

// SortedAPIs lists the API names of usage in a stable order.
func SortedAPIs(usage domain.QuotaUsage) []string {
	names := make([]string, 0, len(usage.ByAPI))
	for name := range usage.ByAPI {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
