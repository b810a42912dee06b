package pubsub

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// BrokerInfo provides debug information about a registered broker.
type BrokerInfo interface {
	Name() string
	SubscriberCount() int
	IsShutdown() bool
	Metrics() BrokerMetrics
}

// Registry tracks brokers by name for introspection.
type Registry struct {
	brokers map[string]BrokerInfo
	mu      sync.RWMutex
}

// NewRegistry creates a new broker registry.
func NewRegistry() *Registry {
	return &Registry{
		brokers: make(map[string]BrokerInfo),
	}
}

// Register adds a broker, replacing any broker with the same name.
func (r *Registry) Register(name string, broker BrokerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brokers[name] = broker
}

// Get retrieves a broker by name.
func (r *Registry) Get(name string) (BrokerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.brokers[name]
	return b, ok
}

// List returns the registered broker names in order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	return slices.Sorted(maps.Keys(r.brokers))
}

// AllMetrics returns metrics for all registered brokers.
func (r *Registry) AllMetrics() map[string]BrokerMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metrics := make(map[string]BrokerMetrics, len(r.brokers))
	for name, broker := range r.brokers {
		metrics[name] = broker.Metrics()
	}
	return metrics
}

// DebugString summarizes every broker on one line, sorted by name, for
// the debug log.
func (r *Registry) DebugString() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parts := make([]string, 0, len(r.brokers))
	for _, name := range r.names() {
		broker := r.brokers[name]
		m := broker.Metrics()
		state := ""
		if broker.IsShutdown() {
			state = " shutdown"
		}
		parts = append(parts, fmt.Sprintf("%s[subs=%d peak=%d published=%d dropped=%d%s]",
			name, m.SubscriberCount, m.SubscriberPeak, m.PublishCount, m.DropCount, state))
	}
	return strings.Join(parts, " ")
}
