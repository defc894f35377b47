package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"auction-agent/domain"
	"auction-agent/metrics"
	"auction-agent/service"
)

const updateBuffer = 16

// Tracker follows one analysis at a time. Both transports feed a single
// session channel drained by one goroutine, so the aggregator only ever
// has one writer.
type Tracker struct {
	agg     *service.Aggregator
	sub     *Subscriber
	poller  *StatusPoller
	metrics *metrics.Registry

	// OnUpdate, if set, is called from the session goroutine after every
	// published view.
	OnUpdate func(domain.ProgressView)

	mu     sync.Mutex // guards the session lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lmu       sync.Mutex
	listeners map[int]chan domain.ProgressView
	nextID    int
}

// NewTracker wires a tracker. sub or poller may be nil to disable that
// channel; m may be nil.
func NewTracker(sub *Subscriber, poller *StatusPoller, m *metrics.Registry) *Tracker {
	return &Tracker{
		agg:       service.NewAggregator(),
		sub:       sub,
		poller:    poller,
		metrics:   m,
		listeners: make(map[int]chan domain.ProgressView),
	}
}

// Bind tears down any previous session, waits for its goroutines to exit,
// and starts following subject. An empty subject just unbinds. The initial
// all-pending view is published before any transport can deliver.
func (t *Tracker) Bind(ctx context.Context, subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.teardown()
	t.agg.Bind(subject)
	if subject == "" {
		return
	}
	t.publish(subject)

	sctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	updates := make(chan update, updateBuffer)

	if t.sub != nil {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if err := t.sub.Run(sctx, subject, updates); err != nil {
				log.Warn().Err(err).Str("subject", subject).Msg("progress websocket closed; relying on polling")
			}
		}()
	}
	if t.poller != nil {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.poller.Run(sctx, subject, updates, t.agg.Complete)
		}()
	}

	if t.metrics != nil {
		t.metrics.ActiveTrackers.Inc()
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if t.metrics != nil {
			defer t.metrics.ActiveTrackers.Dec()
		}
		t.loop(sctx, cancel, subject, updates)
	}()
}

// Unbind stops listening and returns the aggregator to idle.
func (t *Tracker) Unbind() {
	t.Bind(context.Background(), "")
}

func (t *Tracker) teardown() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.wg.Wait()
	t.cancel = nil
}

func (t *Tracker) loop(ctx context.Context, stop context.CancelFunc, subject string, updates <-chan update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if u.subject != subject {
				t.record("unknown", service.Stale)
				continue
			}

			var emitted bool
			var d service.Disposition
			kind := "snapshot"
			if u.event != nil {
				kind = string(u.event.Type)
				_, emitted, d = t.agg.Apply(*u.event)
			} else {
				_, emitted, d = t.agg.ApplySnapshot(subject, *u.status)
			}
			t.record(kind, d)
			if d == service.Malformed {
				log.Debug().Str("subject", subject).Str("type", kind).Msg("dropped malformed progress event")
			}

			complete := t.agg.Complete()
			if emitted || (d == service.Applied && complete) {
				t.publish(subject)
			}
			if complete {
				// nothing more to listen for; the view stays available
				log.Info().Str("subject", subject).Msg("analysis progress complete")
				stop()
				return
			}
		}
	}
}

func (t *Tracker) record(kind string, d service.Disposition) {
	if t.metrics != nil {
		t.metrics.ProgressEvents.WithLabelValues(kind, string(d)).Inc()
	}
}

// View returns the current state. ok is false while unbound.
func (t *Tracker) View() (domain.ProgressView, bool) {
	progress, complete, ok := t.agg.Snapshot()
	if !ok {
		return domain.ProgressView{}, false
	}
	return domain.ProgressView{Subject: t.agg.Subject(), Progress: progress, Complete: complete}, true
}

// Listen registers for views. Each listener holds at most the latest view;
// a slow reader skips intermediate ones. The returned func unregisters.
func (t *Tracker) Listen() (<-chan domain.ProgressView, func()) {
	ch := make(chan domain.ProgressView, 1)

	t.lmu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = ch
	t.lmu.Unlock()

	if v, ok := t.View(); ok {
		offer(ch, v)
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.lmu.Lock()
			delete(t.listeners, id)
			t.lmu.Unlock()
		})
	}
}

func (t *Tracker) publish(subject string) {
	v, ok := t.View()
	if !ok || v.Subject != subject {
		return
	}
	if t.OnUpdate != nil {
		t.OnUpdate(v)
	}

	t.lmu.Lock()
	chans := make([]chan domain.ProgressView, 0, len(t.listeners))
	for _, ch := range t.listeners {
		chans = append(chans, ch)
	}
	t.lmu.Unlock()

	for _, ch := range chans {
		offer(ch, v)
	}
}

// offer replaces whatever is buffered in ch with v.
func offer(ch chan domain.ProgressView, v domain.ProgressView) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
