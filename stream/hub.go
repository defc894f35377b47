package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"auction-agent/domain"
	"auction-agent/metrics"
	"auction-agent/repository"
)

const viewKeyPrefix = "progress:"

// TrackerFactory builds an unbound tracker.
type TrackerFactory func() *Tracker

// Hub keeps one tracker per analysis being watched through the HTTP layer
// and mirrors the latest view of each into the cache. A tracker is dropped
// once its analysis completes; later reads are served from the cache.
type Hub struct {
	ctx     context.Context
	factory TrackerFactory
	cache   repository.CacheRepository

	mu       sync.Mutex
	trackers map[string]*Tracker
}

func NewHub(ctx context.Context, factory TrackerFactory, cache repository.CacheRepository) *Hub {
	return &Hub{
		ctx:      ctx,
		factory:  factory,
		cache:    cache,
		trackers: make(map[string]*Tracker),
	}
}

// DefaultFactory builds trackers using both backend channels.
func DefaultFactory(sub *Subscriber, poller *StatusPoller, m *metrics.Registry) TrackerFactory {
	return func() *Tracker {
		return NewTracker(sub, poller, m)
	}
}

// Watch returns the tracker for subject, binding a new one if needed.
func (h *Hub) Watch(subject string) *Tracker {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.trackers[subject]; ok {
		return t
	}
	t := h.factory()
	t.OnUpdate = func(v domain.ProgressView) {
		h.mirror(v)
		if v.Complete {
			h.evict(subject, t)
		}
	}
	h.trackers[subject] = t
	t.Bind(h.ctx, subject)
	return t
}

// View returns the latest known view for subject, from a live tracker or
// from the cache.
func (h *Hub) View(subject string) (domain.ProgressView, bool) {
	h.mu.Lock()
	t, ok := h.trackers[subject]
	h.mu.Unlock()
	if ok {
		return t.View()
	}

	raw, ok := h.cache.Get(viewKeyPrefix + subject)
	if !ok {
		return domain.ProgressView{}, false
	}
	var v domain.ProgressView
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("discarding undecodable cached progress")
		return domain.ProgressView{}, false
	}
	return v, true
}

// evict drops t if it is still the tracker for subject. It runs on the
// tracker's own session goroutine, which exits right after, so no Unbind
// is needed.
func (h *Hub) evict(subject string, t *Tracker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.trackers[subject] == t {
		delete(h.trackers, subject)
	}
}

// Tracked reports how many analyses have a live tracker.
func (h *Hub) Tracked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.trackers)
}

// Forget stops and drops the tracker for subject.
func (h *Hub) Forget(subject string) bool {
	h.mu.Lock()
	t, ok := h.trackers[subject]
	delete(h.trackers, subject)
	h.mu.Unlock()

	if ok {
		t.Unbind()
	}
	return ok
}

// Close unbinds every tracker.
func (h *Hub) Close() {
	h.mu.Lock()
	trackers := h.trackers
	h.trackers = make(map[string]*Tracker)
	h.mu.Unlock()

	for _, t := range trackers {
		t.Unbind()
	}
}

func (h *Hub) mirror(v domain.ProgressView) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := h.cache.Set(viewKeyPrefix+v.Subject, string(data)); err != nil {
		log.Warn().Err(err).Str("subject", v.Subject).Msg("failed to cache progress view")
	}
}
