package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscription channel buffer.
const DefaultBufferSize = 64

// BrokerOption configures a Broker.
type BrokerOption[T any] func(*Broker[T])

// WithBufferSize sets the buffer of every subscription channel.
func WithBufferSize[T any](size int) BrokerOption[T] {
	return func(b *Broker[T]) {
		b.bufferSize = size
	}
}

// WithDropPolicy selects what Publish does with a full subscription:
// drop the event (true, the default) or wait for the reader.
func WithDropPolicy[T any](drop bool) BrokerOption[T] {
	return func(b *Broker[T]) {
		b.dropOnFull = drop
	}
}

type subscription[T any] struct {
	ch   chan Event[T]
	keep func(T) bool
	gone chan struct{}
	once sync.Once
	stop func() bool
}

func (s *subscription[T]) leave() {
	s.once.Do(func() { close(s.gone) })
}

// Broker fans typed events out to subscribers. Each subscription lives
// until its context ends or the broker shuts down, at which point its
// channel is closed.
type Broker[T any] struct { //nolint:govet // fieldalignment: preserving logical field order
	name       string
	bufferSize int
	dropOnFull bool

	mu     sync.RWMutex
	subs   map[uint64]*subscription[T]
	nextID uint64
	peak   int
	done   chan struct{}
	closer sync.Once

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBroker creates a broker named for metrics and debug output.
func NewBroker[T any](name string, opts ...BrokerOption[T]) *Broker[T] {
	b := &Broker[T]{
		name:       name,
		bufferSize: DefaultBufferSize,
		dropOnFull: true,
		subs:       make(map[uint64]*subscription[T]),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the broker name.
func (b *Broker[T]) Name() string {
	return b.name
}

// Subscribe receives every event published after the call.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	return b.subscribe(ctx, nil)
}

// SubscribeFiltered receives only events whose payload keep accepts.
// Rejected events are neither delivered nor counted as dropped.
func (b *Broker[T]) SubscribeFiltered(ctx context.Context, keep func(T) bool) <-chan Event[T] {
	return b.subscribe(ctx, keep)
}

func (b *Broker[T]) subscribe(ctx context.Context, keep func(T) bool) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.IsShutdown() {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	id := b.nextID
	b.nextID++
	sub := &subscription[T]{
		ch:   make(chan Event[T], b.bufferSize),
		keep: keep,
		gone: make(chan struct{}),
	}
	b.subs[id] = sub
	b.peak = max(b.peak, len(b.subs))

	sub.stop = context.AfterFunc(ctx, func() { b.unsubscribe(id) })
	return sub.ch
}

func (b *Broker[T]) unsubscribe(id uint64) {
	b.mu.RLock()
	sub, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return
	}
	// Release a publisher blocked on this subscription before taking
	// the write lock.
	sub.leave()

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish delivers an event to every matching subscription. Sends happen
// under the read lock, so a subscription is never closed mid-send.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.IsShutdown() || len(b.subs) == 0 {
		return
	}

	event := Event[T]{Type: eventType, Payload: payload, Timestamp: time.Now()}
	b.published.Add(1)

	for _, sub := range b.subs {
		if sub.keep != nil && !sub.keep(payload) {
			continue
		}
		if b.dropOnFull {
			select {
			case sub.ch <- event:
			default:
				b.dropped.Add(1)
			}
			continue
		}
		select {
		case sub.ch <- event:
		case <-sub.gone:
		case <-b.done:
			return
		}
	}
}

// PublishAsync publishes from a new goroutine and returns immediately.
func (b *Broker[T]) PublishAsync(eventType EventType, payload T) {
	go b.Publish(eventType, payload)
}

// Shutdown closes every subscription. Later publishes are ignored and
// later subscriptions are returned already closed. It is safe to call
// more than once.
func (b *Broker[T]) Shutdown() {
	// Closing done first wakes publishers blocked under the read lock.
	b.closer.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		sub.stop()
		sub.leave()
		delete(b.subs, id)
		close(sub.ch)
	}
}

// IsShutdown reports whether Shutdown has been called.
func (b *Broker[T]) IsShutdown() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Metrics returns a snapshot of the broker counters.
func (b *Broker[T]) Metrics() BrokerMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BrokerMetrics{
		Name:            b.name,
		PublishCount:    b.published.Load(),
		DropCount:       b.dropped.Load(),
		SubscriberCount: len(b.subs),
		SubscriberPeak:  b.peak,
	}
}

// BrokerMetrics is a point-in-time view of a broker.
type BrokerMetrics struct {
	Name            string
	PublishCount    int64
	DropCount       int64
	SubscriberCount int
	SubscriberPeak  int
}
