package keylock

import "sync"

// KeyLock hands out at most one lock per key. TryLock is non-blocking so a
// second run for the same resource (a file already being ingested, a session
// already generating a reply) fails fast instead of queueing.
type KeyLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func New() *KeyLock {
	return &KeyLock{held: make(map[string]struct{})}
}

func (l *KeyLock) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *KeyLock) Unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
