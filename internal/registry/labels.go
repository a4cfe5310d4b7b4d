package registry

import (
	"context"
	"sync"
)

// labelTable maps qualified label names to global times. A name is set at
// most once; waiters for a name are released when it is published.
type labelTable struct {
	mu      sync.Mutex
	times   map[string]float64
	waiters map[string]chan struct{}
}

func newLabelTable() *labelTable {
	return &labelTable{
		times:   make(map[string]float64),
		waiters: make(map[string]chan struct{}),
	}
}

// publish stores name → at. It reports false if name was already set, in
// which case the existing time is kept.
func (t *labelTable) publish(name string, at float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.times[name]; exists {
		return false
	}
	t.times[name] = at
	if ch, ok := t.waiters[name]; ok {
		close(ch)
		delete(t.waiters, name)
	}
	return true
}

func (t *labelTable) lookup(name string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.times[name]
	return at, ok
}

// wait blocks until name is published or ctx is done.
func (t *labelTable) wait(ctx context.Context, name string) (float64, error) {
	t.mu.Lock()
	if at, ok := t.times[name]; ok {
		t.mu.Unlock()
		return at, nil
	}
	ch, ok := t.waiters[name]
	if !ok {
		ch = make(chan struct{})
		t.waiters[name] = ch
	}
	t.mu.Unlock()

	select {
	case <-ch:
		at, _ := t.lookup(name)
		return at, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (t *labelTable) snapshot() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.times))
	for k, v := range t.times {
		out[k] = v
	}
	return out
}
