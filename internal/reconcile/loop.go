package reconcile

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/internal/changefeed"
	"github.com/afonso-rickman/newdelivery/internal/orders"
	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

// Fetcher is the authoritative read the loop drives.
type Fetcher interface {
	FetchOrders(ctx context.Context, tenantID uuid.UUID, window orders.QueryWindow) ([]models.Order, error)
}

// Recorder observes loop activity.
type Recorder interface {
	ObserveFetch(outcome string, duration time.Duration)
	IncTrigger(source string, coalesced bool)
	SetOpenViews(n int)
}

// Trigger sources.
const (
	TriggerWindow   = "window"
	TriggerFeed     = "feed"
	TriggerMutation = "mutation"
	TriggerManual   = "manual"
	TriggerRetry    = "retry"
)

// Options tune a Loop. Zero values fall back to defaults.
type Options struct {
	Debounce      time.Duration
	FetchTimeout  time.Duration
	FreshWindow   time.Duration
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.FreshWindow <= 0 {
		o.FreshWindow = 10 * time.Second
	}
	if o.MaxRetryDelay < o.RetryDelay {
		o.MaxRetryDelay = o.RetryDelay
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

var errLoopClosed = errors.New("view already closed")

// Loop keeps one view's read model converged with the store. It is the only
// caller of FetchOrders for its view and never merges feed payloads: every
// trigger becomes a full refetch.
type Loop struct {
	tenantID uuid.UUID
	fetcher  Fetcher
	listener *changefeed.Listener
	recorder Recorder
	logg     *logger.Logger
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	closed      bool
	window      orders.QueryWindow
	generation  uint64
	inFlight    bool
	pending     bool
	debouncing  bool
	retryTimer  *time.Timer
	retryDelay  time.Duration
	model       ReadModel
	hints       map[uuid.UUID]time.Time
	fresh       map[uuid.UUID]time.Time
	watchers    map[uint64]chan ReadModel
	nextWatcher uint64
}

// NewLoop starts a loop for tenantID. The window starts empty; call SetWindow.
func NewLoop(tenantID uuid.UUID, fetcher Fetcher, hub *changefeed.Hub, recorder Recorder, logg *logger.Logger, opts Options) *Loop {
	if logg == nil {
		logg = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		tenantID: tenantID,
		fetcher:  fetcher,
		listener: changefeed.NewListener(hub),
		recorder: recorder,
		logg:     logg,
		opts:     opts.withDefaults(),
		ctx:      logg.WithTenantID(ctx, tenantID.String()),
		cancel:   cancel,
		done:     make(chan struct{}),
		model:    ReadModel{Orders: []models.Order{}},
		hints:    map[uuid.UUID]time.Time{},
		fresh:    map[uuid.UUID]time.Time{},
		watchers: map[uint64]chan ReadModel{},
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.listener.Signals():
			l.drainHints()
			l.Trigger(TriggerFeed)
		case hint := <-l.listener.Hints():
			l.storeHint(hint)
			l.drainHints()
			// queued signals fold into this refetch
			l.drainSignals()
			l.Trigger(TriggerFeed)
		}
	}
}

func (l *Loop) storeHint(hint changefeed.FreshOrderHint) {
	l.mu.Lock()
	l.hints[hint.OrderID] = hint.ObservedAt
	l.mu.Unlock()
}

func (l *Loop) drainHints() {
	for {
		select {
		case hint := <-l.listener.Hints():
			l.storeHint(hint)
		default:
			return
		}
	}
}

func (l *Loop) drainSignals() {
	for {
		select {
		case <-l.listener.Signals():
		default:
			return
		}
	}
}

// SetWindow replaces the query window. Any fetch in flight for the old
// window is discarded when it returns. An empty window clears the view
// without touching the store.
func (l *Loop) SetWindow(window orders.QueryWindow) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if l.generation > 0 && l.window.Equal(window) {
		l.mu.Unlock()
		return
	}
	l.window = window
	l.generation++
	l.stopRetryLocked()
	l.hints = map[uuid.UUID]time.Time{}
	l.fresh = map[uuid.UUID]time.Time{}

	if window.IsEmpty() {
		l.listener.Unsubscribe()
		l.pending = false
		l.model = ReadModel{Orders: []models.Order{}, Window: window, Generation: l.generation}
		l.broadcastLocked()
		l.mu.Unlock()
		return
	}

	l.listener.Subscribe(changefeed.Key{From: window.From, To: window.To})
	l.mu.Unlock()
	l.request(TriggerWindow, false)
}

// Trigger asks for a refetch. Feed signals honour the debounce; other
// sources fetch immediately.
func (l *Loop) Trigger(source string) {
	l.request(source, source == TriggerFeed)
}

// Refresh is the user-facing retry.
func (l *Loop) Refresh() {
	l.mu.Lock()
	l.stopRetryLocked()
	l.mu.Unlock()
	l.request(TriggerManual, false)
}

func (l *Loop) request(source string, debounced bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.window.IsEmpty() {
		return
	}
	if l.inFlight || l.debouncing {
		l.pending = true
		l.recordTrigger(source, true)
		return
	}
	l.recordTrigger(source, false)
	if debounced && l.opts.Debounce > 0 {
		l.debouncing = true
		time.AfterFunc(l.opts.Debounce, l.fireDebounced)
		return
	}
	l.startLocked()
}

func (l *Loop) fireDebounced() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debouncing = false
	if l.closed || l.window.IsEmpty() || l.inFlight {
		return
	}
	l.pending = false
	l.startLocked()
}

func (l *Loop) startLocked() {
	l.stopRetryLocked()
	l.inFlight = true
	l.pending = false
	gen := l.generation
	window := l.window
	l.model.Loading = true
	l.broadcastLocked()
	go l.fetch(gen, window)
}

func (l *Loop) fetch(gen uint64, window orders.QueryWindow) {
	ctx, cancel := context.WithTimeout(l.ctx, l.opts.FetchTimeout)
	defer cancel()

	started := l.opts.Now()
	list, err := l.fetcher.FetchOrders(ctx, l.tenantID, window)
	l.complete(gen, list, err, l.opts.Now().Sub(started))
}

func (l *Loop) complete(gen uint64, list []models.Order, err error, took time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight = false
	if l.closed {
		return
	}

	switch {
	case gen != l.generation:
		l.observe("discarded", took)
		// the newer window always needs its own fetch
		l.pending = true
	case err != nil:
		l.observe("failed", took)
		l.model.Loading = false
		l.model.Err = asRetryable(err)
		l.pending = true
		l.logg.Warn(l.logg.WithField(l.ctx, "error", err.Error()), "view refresh failed; keeping last good list")
		l.broadcastLocked()
		l.scheduleRetryLocked()
		return
	default:
		l.observe("applied", took)
		l.retryDelay = 0
		now := l.opts.Now()
		model := NewReadModel(l.window, list, now)
		model.Generation = gen
		model.FreshOrders = l.confirmHintsLocked(model.Orders, now)
		l.model = model
		l.broadcastLocked()
	}

	if l.pending && !l.debouncing {
		l.startLocked()
	}
}

// confirmHintsLocked promotes hints whose order is present and pending in
// the authoritative list to confirmed fresh orders. A confirmed order stays
// in FreshOrders on later models until FreshWindow has passed since it was
// observed, or it leaves the list or the pending status. Unconfirmed hints
// wait for a later fetch until they expire.
func (l *Loop) confirmHintsLocked(list []models.Order, now time.Time) []uuid.UUID {
	if len(l.hints) == 0 && len(l.fresh) == 0 {
		return nil
	}
	pending := make(map[uuid.UUID]bool, len(list))
	for _, o := range list {
		pending[o.ID] = o.DeliveryStatus == enums.DeliveryStatusPending
	}
	expired := func(observed time.Time) bool { return now.Sub(observed) > l.opts.FreshWindow }

	for id, observed := range l.hints {
		isPending, present := pending[id]
		if present && isPending {
			l.fresh[id] = observed
		}
		if present || expired(observed) {
			delete(l.hints, id)
		}
	}

	var confirmed []uuid.UUID
	for id, observed := range l.fresh {
		if !pending[id] || expired(observed) {
			delete(l.fresh, id)
			continue
		}
		confirmed = append(confirmed, id)
	}
	slices.SortFunc(confirmed, func(a, b uuid.UUID) int {
		if c := l.fresh[a].Compare(l.fresh[b]); c != 0 {
			return c
		}
		return strings.Compare(a.String(), b.String())
	})
	return confirmed
}

func (l *Loop) scheduleRetryLocked() {
	if l.opts.RetryDelay <= 0 || l.retryTimer != nil {
		return
	}
	if l.retryDelay == 0 {
		l.retryDelay = l.opts.RetryDelay
	} else {
		l.retryDelay *= 2
		if l.retryDelay > l.opts.MaxRetryDelay {
			l.retryDelay = l.opts.MaxRetryDelay
		}
	}
	var t *time.Timer
	t = time.AfterFunc(l.retryDelay, func() {
		l.mu.Lock()
		if l.retryTimer == t {
			l.retryTimer = nil
		}
		l.mu.Unlock()
		l.request(TriggerRetry, false)
	})
	l.retryTimer = t
}

func (l *Loop) stopRetryLocked() {
	if l.retryTimer != nil {
		l.retryTimer.Stop()
		l.retryTimer = nil
	}
}

// Snapshot returns a copy of the current read model.
func (l *Loop) Snapshot() ReadModel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLocked()
}

func (l *Loop) currentLocked() ReadModel {
	m := l.model.clone()
	m.RequestedGeneration = l.generation
	return m
}

// Window returns the current query window.
func (l *Loop) Window() orders.QueryWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window
}

// Watch streams read model changes. The channel holds only the latest
// model; slow readers skip intermediate states. The current model is sent
// immediately.
func (l *Loop) Watch() (<-chan ReadModel, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan ReadModel, 1)
	if l.closed {
		close(ch)
		return ch, func() {}
	}
	l.nextWatcher++
	id := l.nextWatcher
	l.watchers[id] = ch
	ch <- l.currentLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if w, ok := l.watchers[id]; ok {
				delete(l.watchers, id)
				close(w)
			}
		})
	}
}

func (l *Loop) broadcastLocked() {
	for _, ch := range l.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- l.currentLocked()
	}
}

// Close stops the loop and releases its feed subscription.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errLoopClosed
	}
	l.closed = true
	l.stopRetryLocked()
	for id, ch := range l.watchers {
		delete(l.watchers, id)
		close(ch)
	}
	l.mu.Unlock()

	l.listener.Unsubscribe()
	l.cancel()
	<-l.done
	return nil
}

func (l *Loop) recordTrigger(source string, coalesced bool) {
	if l.recorder != nil {
		l.recorder.IncTrigger(source, coalesced)
	}
}

func (l *Loop) observe(outcome string, took time.Duration) {
	if l.recorder != nil {
		l.recorder.ObserveFetch(outcome, took)
	}
}

func asRetryable(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order store timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order store unavailable")
}

func errorDTO(err error) *ErrorDTO {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order store unavailable")
	}
	return &ErrorDTO{
		Code:      string(typed.Code()),
		Message:   typed.Message(),
		Retryable: typed.Retryable(),
	}
}
