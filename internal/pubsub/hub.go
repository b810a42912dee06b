package pubsub

import (
	"sync"

	"github.com/guilhermegouw/storyloom/internal/events"
)

// hubBufferSize keeps slow subscribers from losing run progress during
// a burst of short turns.
const hubBufferSize = 256

type member interface {
	BrokerInfo
	Shutdown()
}

// Hub owns the session, run and sanitize brokers and shuts them down
// together.
type Hub struct { //nolint:govet // fieldalignment: preserving logical field order
	Session  *Broker[events.SessionEvent]
	Run      *Broker[events.RunEvent]
	Sanitize *Broker[events.SanitizeEvent]

	members  []member
	registry *Registry
	once     sync.Once
	done     chan struct{}
}

// NewHub creates a hub with every broker registered.
func NewHub() *Hub {
	h := &Hub{
		Session:  NewBroker("session", WithBufferSize[events.SessionEvent](hubBufferSize)),
		Run:      NewBroker("run", WithBufferSize[events.RunEvent](hubBufferSize)),
		Sanitize: NewBroker("sanitize", WithBufferSize[events.SanitizeEvent](hubBufferSize)),
		registry: NewRegistry(),
		done:     make(chan struct{}),
	}
	h.members = []member{h.Session, h.Run, h.Sanitize}
	for _, m := range h.members {
		h.registry.Register(m.Name(), m)
	}
	return h
}

// Shutdown closes every subscription on every broker. Buffered events
// stay readable until drained.
func (h *Hub) Shutdown() {
	h.once.Do(func() {
		close(h.done)
		var wg sync.WaitGroup
		for _, m := range h.members {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Shutdown()
			}()
		}
		wg.Wait()
	})
}

// IsShutdown reports whether Shutdown has been called.
func (h *Hub) IsShutdown() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done is closed when the hub shuts down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Registry returns the broker registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// AllMetrics returns session, run and sanitize metrics in that order.
func (h *Hub) AllMetrics() []BrokerMetrics {
	out := make([]BrokerMetrics, 0, len(h.members))
	for _, m := range h.members {
		out = append(out, m.Metrics())
	}
	return out
}

// DebugString summarizes every broker on one line.
func (h *Hub) DebugString() string {
	return h.registry.DebugString()
}
