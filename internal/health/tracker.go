// Package health keeps per-upstream request bookkeeping for diagnostics and
// the upstream Prometheus series.
package health

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
	"github.com/allprocessofworld/Contentsearchengine251112/internal/metrics"
)

type upstreamHealth struct {
	consecutiveFailures int
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// Tracker is safe for concurrent use. A nil *Tracker ignores every call.
type Tracker struct {
	mu     sync.Mutex
	now    func() time.Time
	states map[string]*upstreamHealth
}

func NewTracker() *Tracker {
	return &Tracker{
		now:    time.Now,
		states: make(map[string]*upstreamHealth),
	}
}

func (t *Tracker) Record(upstream string, err error, latency time.Duration) {
	if t == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(upstream))
	if name == "" {
		return
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.states[name]
	if state == nil {
		state = &upstreamHealth{}
		t.states[name] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.UpstreamRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	state.lastTimeout = IsTimeout(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.UpstreamRequestsTotal.WithLabelValues(name, "ok").Inc()
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(name, status).Inc()
}

func (t *Tracker) Diagnostics() []domain.ProviderDiagnostics {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	items := make([]domain.ProviderDiagnostics, 0, len(t.states))
	for name, state := range t.states {
		item := domain.ProviderDiagnostics{
			Name:                name,
			ConsecutiveFailures: state.consecutiveFailures,
			LastError:           state.lastError,
			LastLatencyMS:       state.lastLatency.Milliseconds(),
			LastTimeout:         state.lastTimeout,
			TotalRequests:       state.totalRequests,
			TotalFailures:       state.totalFailures,
			TimeoutCount:        state.timeoutCount,
		}
		if !state.lastSuccessAt.IsZero() {
			lastSuccessAt := state.lastSuccessAt
			item.LastSuccessAt = &lastSuccessAt
		}
		if !state.lastFailureAt.IsZero() {
			lastFailureAt := state.lastFailureAt
			item.LastFailureAt = &lastFailureAt
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

// IsTimeout reports deadline-style failures, including the net/http client
// timeout which only surfaces as text.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}
