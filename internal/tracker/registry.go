package tracker

import (
	"sync"
	"time"

	"github.com/vantagevoice/callscope/internal/domain/cost"
	"github.com/vantagevoice/callscope/internal/domain/usage"
)

// registry owns all per-call tracking state, one map per concern. Call
// IDs are never reused concurrently, so entries for different calls are
// fully independent; the mutex only protects the maps themselves.
type registry struct {
	mu         sync.Mutex
	metrics    map[string]*usage.CallMetrics
	costs      map[string]*cost.Breakdown
	startTimes map[string]time.Time
}

func newRegistry() *registry {
	return &registry{
		metrics:    make(map[string]*usage.CallMetrics),
		costs:      make(map[string]*cost.Breakdown),
		startTimes: make(map[string]time.Time),
	}
}

func (r *registry) register(callID string, m *usage.CallMetrics, b *cost.Breakdown, startedAt time.Time) {
	r.metrics[callID] = m
	r.costs[callID] = b
	r.startTimes[callID] = startedAt
}

func (r *registry) get(callID string) (*usage.CallMetrics, *cost.Breakdown, bool) {
	m, ok := r.metrics[callID]
	if !ok {
		return nil, nil, false
	}
	return m, r.costs[callID], true
}

func (r *registry) remove(callID string) bool {
	_, ok := r.metrics[callID]
	delete(r.metrics, callID)
	delete(r.costs, callID)
	delete(r.startTimes, callID)
	return ok
}

func (r *registry) size() int {
	return len(r.metrics)
}
