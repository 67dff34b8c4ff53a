package quota

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/metrics"
)

const (
	defaultRedisKeyPrefix = "contentsearch:quota:"
	redisDayRetention     = 48 * time.Hour
)

// RedisMeter shares quota counters between replicas using one hash per quota day.
type RedisMeter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisMeter(client redis.UniversalClient, prefix string) *RedisMeter {
	if client == nil {
		return nil
	}
	keyPrefix := strings.TrimSpace(prefix)
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisMeter{
		client: client,
		prefix: keyPrefix,
		now:    time.Now,
	}
}

func (m *RedisMeter) key() string {
	return m.prefix + quotaDay(m.now())
}

func (m *RedisMeter) Add(ctx context.Context, api string, units int64) error {
	api = strings.TrimSpace(api)
	if api == "" || units <= 0 {
		return nil
	}
	metrics.QuotaUnitsTotal.WithLabelValues(api).Add(float64(units))

	key := m.key()
	pipe := m.client.TxPipeline()
	pipe.HIncrBy(ctx, key, api, units)
	pipe.Expire(ctx, key, redisDayRetention)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMeter) Usage(ctx context.Context) (domain.QuotaUsage, error) {
	day := quotaDay(m.now())
	usage := domain.QuotaUsage{Day: day, ByAPI: map[string]int64{}}

	items, err := m.client.HGetAll(ctx, m.prefix+day).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return usage, nil
		}
		return usage, err
	}
	for api, raw := range items {
		units, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || units < 0 {
			continue
		}
		usage.ByAPI[api] = units
		usage.Total += units
	}
	return usage, nil
}

func (m *RedisMeter) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}
