package eventbus

import (
	"context"
	"sync"
)

// Closer is the minimal contract required to close a subscription.
type Closer interface {
	Close()
}

// Workers ties a set of subscriptions and consumer goroutines to one context
// so a component can stop them together.
type Workers struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []Closer
	wg   sync.WaitGroup
}

// Start derives the worker context from ctx.
func (w *Workers) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
}

// Context returns the worker context.
func (w *Workers) Context() context.Context {
	return w.ctx
}

// Track registers subscriptions closed by Stop.
func (w *Workers) Track(subs ...Closer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			w.subs = append(w.subs, sub)
		}
	}
}

// Go runs fn on a goroutine tracked by Wait.
func (w *Workers) Go(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	w.wg.Add(1)
	go func(ctx context.Context) {
		defer w.wg.Done()
		fn(ctx)
	}(w.ctx)
}

// Stop cancels the worker context and closes tracked subscriptions.
func (w *Workers) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// Wait blocks until all workers return or ctx is done.
func (w *Workers) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
