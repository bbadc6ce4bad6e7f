package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	audit "backoffice/pkg/platform/audit"
)

// ErrBufferFull is returned in async mode when the buffer cannot accept an
// event before the caller's context ends.
var ErrBufferFull = errors.New("audit buffer full")

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("audit publisher closed")

// Lister is implemented by stores that can read events back.
type Lister interface {
	ListByUser(ctx context.Context, userID string) ([]audit.Event, error)
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit enqueue into a buffered channel drained by a
// background goroutine. Close drains what remains.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan audit.Event, size)
		}
	}
}

// WithErrorHandler receives store errors from the async drain loop.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Publisher) {
		p.onError = fn
	}
}

// Publisher fans audit events into a Store, synchronously by default.
type Publisher struct {
	store   audit.Store
	queue   chan audit.Event
	onError func(error)
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit stamps a missing timestamp and category, then stores or enqueues.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.queue == nil {
		return p.store.Append(ctx, event)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- event:
		return nil
	default:
	}
	select {
	case p.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List reads events back when the store supports it.
func (p *Publisher) List(ctx context.Context, userID string) ([]audit.Event, error) {
	lister, ok := p.store.(Lister)
	if !ok {
		return nil, errors.New("audit store does not support listing")
	}
	return lister.ListByUser(ctx, userID)
}

// Close stops accepting async events and waits for the queue to drain.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.queue {
		if err := p.store.Append(context.Background(), event); err != nil && p.onError != nil {
			p.onError(err)
		}
	}
}
