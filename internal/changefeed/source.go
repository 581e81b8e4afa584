package changefeed

import (
	"context"
	"time"
)

const reconnectDelay = 2 * time.Second

// MemorySource is an in-process broker for development and tests.
type MemorySource struct {
	payloads chan []byte
}

func NewMemorySource(buffer int) *MemorySource {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemorySource{payloads: make(chan []byte, buffer)}
}

func (m *MemorySource) Name() string { return "memory" }

// Push enqueues a payload. It reports false when the buffer is full.
func (m *MemorySource) Push(payload []byte) bool {
	select {
	case m.payloads <- payload:
		return true
	default:
		return false
	}
}

func (m *MemorySource) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-m.payloads:
			sink.Deliver(payload)
		}
	}
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
