package changefeed

import (
	"sync"
)

// Listener owns the single feed subscription of one view. Signals coalesce:
// while one is unread, later ones are folded into it.
type Listener struct {
	hub *Hub

	mu          sync.Mutex
	key         Key
	active      bool
	unsubscribe func()
	signals     chan DirtySignal
	hints       chan FreshOrderHint
}

func NewListener(hub *Hub) *Listener {
	return &Listener{
		hub:     hub,
		signals: make(chan DirtySignal, 1),
		hints:   make(chan FreshOrderHint, 8),
	}
}

// Subscribe points the listener at key. Calling it with a different key
// drops the previous subscription first; the same key is a no-op.
func (l *Listener) Subscribe(key Key) <-chan DirtySignal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active && l.key.Equal(key) {
		return l.signals
	}
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
	l.key = key
	l.active = true
	l.unsubscribe = l.hub.Subscribe(key, l.deliver)
	return l.signals
}

// Signals is stable across resubscriptions.
func (l *Listener) Signals() <-chan DirtySignal {
	return l.signals
}

// Hints carries fresh-order hints; the consumer confirms them. A delivered
// hint stands in for the dirty signal of the same change, so the consumer
// must refetch on either channel.
func (l *Listener) Hints() <-chan FreshOrderHint {
	return l.hints
}

// Unsubscribe drops the current subscription. Pending signals stay readable.
func (l *Listener) Unsubscribe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
	l.active = false
}

// Active reports whether the listener holds a subscription.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Listener) deliver(signal DirtySignal) {
	if signal.FreshOrder && signal.ApproximateID != nil {
		select {
		case l.hints <- FreshOrderHint{OrderID: *signal.ApproximateID, ObservedAt: signal.ObservedAt}:
			return
		default:
		}
	}
	select {
	case l.signals <- signal:
	default:
		// an unread signal already forces a refetch after this change
	}
}
