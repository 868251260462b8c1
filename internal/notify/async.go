package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async runs delivery on a background goroutine bounded by a timeout, so the
// caller never waits on a slow or failing sink. Notify always returns nil.
type Async struct {
	next     Notifier
	timeout  time.Duration
	logger   *slog.Logger
	observe  func(err error)
	inflight sync.WaitGroup
}

// NewAsync wraps next. observe, if non-nil, is called with the delivery
// result of every event (nil on success).
func NewAsync(next Notifier, timeout time.Duration, logger *slog.Logger, observe func(err error)) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{next: next, timeout: timeout, logger: logger, observe: observe}
}

func (a *Async) Notify(_ context.Context, ev Event) error {
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		err := a.next.Notify(ctx, ev)
		if err != nil {
			a.logger.Warn("notification failed", "event", ev.Kind, "key", ev.Key, "error", err)
		}
		if a.observe != nil {
			a.observe(err)
		}
	}()
	return nil
}

// Wait blocks until every in-flight delivery has finished.
func (a *Async) Wait() {
	a.inflight.Wait()
}
