package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// captureTransport implements sentry.Transport and keeps every event.
type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

//nolint:gocritic // hugeParam: interface requirement, cannot change signature
func (t *captureTransport) Configure(_ sentry.ClientOptions) {}

func (t *captureTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *captureTransport) Flush(time.Duration) bool { return true }

func (t *captureTransport) FlushWithContext(ctx context.Context) bool {
	return ctx.Err() == nil
}

func (t *captureTransport) Close() {}

func (t *captureTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*sentry.Event, len(t.events))
	copy(out, t.events)
	return out
}

// waitForEvents polls until n events arrived or timeout passed.
func (t *captureTransport) waitForEvents(n int, timeout time.Duration) []*sentry.Event {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if events := t.Events(); len(events) >= n {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
	return t.Events()
}
