package depot

import "sync"

// guard is an optional RWMutex. The zero value performs no locking.
type guard struct {
	mu *sync.RWMutex
}

func newGuard(enabled bool) guard {
	if !enabled {
		return guard{}
	}
	return guard{mu: &sync.RWMutex{}}
}

func (g guard) Lock() {
	if g.mu != nil {
		g.mu.Lock()
	}
}

func (g guard) Unlock() {
	if g.mu != nil {
		g.mu.Unlock()
	}
}

func (g guard) RLock() {
	if g.mu != nil {
		g.mu.RLock()
	}
}

func (g guard) RUnlock() {
	if g.mu != nil {
		g.mu.RUnlock()
	}
}

func (g guard) enabled() bool {
	return g.mu != nil
}
