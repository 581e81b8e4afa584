package changefeed

import (
	"context"
	"sync"
	"time"

	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

const defaultFreshWindow = 10 * time.Second

// FeedRecorder counts broker messages.
type FeedRecorder interface {
	IncFeedMessage(driver, result string)
}

// Sink receives raw envelopes from a Source. Resync is called after a gap
// in delivery (reconnect) so every view refetches.
type Sink interface {
	Deliver(payload []byte)
	Resync()
}

// Source pumps raw envelopes from a broker until ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}

type subscriber struct {
	key     Key
	deliver func(DirtySignal)
}

// Hub fans decoded notifications out to subscriptions in process.
type Hub struct {
	mu          sync.RWMutex
	subs        map[uint64]subscriber
	nextID      uint64
	logg        *logger.Logger
	recorder    FeedRecorder
	freshWindow time.Duration
	now         func() time.Time
}

type HubOption func(*Hub)

func WithFeedRecorder(recorder FeedRecorder) HubOption {
	return func(h *Hub) { h.recorder = recorder }
}

func WithFreshWindow(window time.Duration) HubOption {
	return func(h *Hub) {
		if window > 0 {
			h.freshWindow = window
		}
	}
}

func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func NewHub(logg *logger.Logger, opts ...HubOption) *Hub {
	if logg == nil {
		logg = logger.Nop()
	}
	h := &Hub{
		subs:        map[uint64]subscriber{},
		logg:        logg,
		freshWindow: defaultFreshWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers deliver for notifications whose order creation time
// falls in key. deliver must not block.
func (h *Hub) Subscribe(key Key, deliver func(DirtySignal)) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = subscriber{key: key, deliver: deliver}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers n to every matching subscription.
func (h *Hub) Publish(n Notification) {
	now := h.now()
	id := n.OrderID
	signal := DirtySignal{
		ApproximateID: &id,
		ObservedAt:    now,
		FreshOrder:    isFresh(n, now, h.freshWindow),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.key.Contains(n.OrderCreatedAt) {
			continue
		}
		sub.deliver(signal)
	}
}

// Run pumps src into the hub until ctx is cancelled or src fails.
func (h *Hub) Run(ctx context.Context, src Source) error {
	name := src.Name()
	ctx = h.logg.WithField(ctx, "feed_driver", name)
	h.logg.Info(ctx, "change feed source started")
	err := src.Run(ctx, &hubSink{hub: h, ctx: ctx, driver: name})
	if ctx.Err() != nil {
		h.logg.Info(ctx, "change feed source stopped")
		return nil
	}
	return err
}

// Resync marks every subscription dirty without an order hint.
func (h *Hub) Resync() {
	signal := DirtySignal{ObservedAt: h.now()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		sub.deliver(signal)
	}
}

type hubSink struct {
	hub    *Hub
	ctx    context.Context
	driver string
}

func (s *hubSink) Deliver(payload []byte) {
	s.hub.ingest(s.ctx, s.driver, payload)
}

func (s *hubSink) Resync() {
	s.hub.record(s.driver, "resync")
	s.hub.logg.Info(s.ctx, "change feed resynced")
	s.hub.Resync()
}

func (h *Hub) ingest(ctx context.Context, driver string, payload []byte) {
	n, err := Decode(payload)
	if err != nil {
		h.record(driver, "malformed")
		h.logg.Warn(h.logg.WithField(ctx, "payload_size", len(payload)), "dropping malformed change envelope")
		return
	}
	h.record(driver, "accepted")
	h.Publish(n)
}

func (h *Hub) record(driver, result string) {
	if h.recorder != nil {
		h.recorder.IncFeedMessage(driver, result)
	}
}
