package session

import "sync"

// Locks guards session documents. The writer slot is held for a whole run
// or synchronous turn; the document mutex only across a read-modify-write.
type Locks struct {
	mu      sync.Mutex
	writers map[string]struct{}
	docs    map[string]*sync.Mutex
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{
		writers: make(map[string]struct{}),
		docs:    make(map[string]*sync.Mutex),
	}
}

// TryAcquire takes the writer slot of id without blocking. The returned
// release func is idempotent.
func (l *Locks) TryAcquire(id string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.writers[id]; busy {
		return nil, false
	}
	l.writers[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.writers, id)
			l.mu.Unlock()
		})
	}, true
}

// Busy reports whether the writer slot of id is held.
func (l *Locks) Busy(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.writers[id]
	return busy
}

// Lock takes the document mutex of id and returns its unlock func.
func (l *Locks) Lock(id string) func() {
	l.mu.Lock()
	m, ok := l.docs[id]
	if !ok {
		m = &sync.Mutex{}
		l.docs[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Forget drops the document mutex of a deleted session.
func (l *Locks) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.docs, id)
}
