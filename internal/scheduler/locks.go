package scheduler

import "sync"

// Locks hands out named, non-reentrant mutual exclusion guards. Acquisition
// never blocks: a caller that finds the guard held is told so immediately.
type Locks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocks creates an empty lock manager
func NewLocks() *Locks {
	return &Locks{held: make(map[string]struct{})}
}

// TryAcquire takes the guard for name. The returned release is idempotent.
func (l *Locks) TryAcquire(name string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[name]; busy {
		return func() {}, false
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, true
}

// Held reports whether name is currently guarded
func (l *Locks) Held(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[name]
	return busy
}
