package orchestrator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"timeline-orchestrator/internal/registry"
	"timeline-orchestrator/internal/timeline"
)

func newTestRepository() *InMemoryRepository {
	return NewInMemoryRepository(NewSessionFactory(registry.WithDependencyTimeout(100 * time.Millisecond)))
}

func TestInMemoryRepository_GetOrCreate(t *testing.T) {
	repo := newTestRepository()

	s1, err := repo.GetOrCreate("s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	again, err := repo.GetOrCreate("s1")
	if err != nil || again != s1 {
		t.Errorf("expected same session, got %p (err %v) want %p", again, err, s1)
	}
	if s1.Master == nil || s1.Registry == nil {
		t.Fatal("session should have a master timeline and a registry")
	}
	if s1.Registry.Timeline() != registry.Timeline(s1.Master) {
		t.Error("registry should schedule into the session's master timeline")
	}
}

func TestInMemoryRepository_End(t *testing.T) {
	repo := newTestRepository()
	sess, _ := repo.GetOrCreate("s1")

	if err := repo.End("s1"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if !sess.Ended() {
		t.Error("session should be ended")
	}
	if _, err := repo.GetOrCreate("s1"); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("expected ErrSessionEnded, got %v", err)
	}
	if err := sess.Registry.Register(registry.Request{ID: "x", Build: func() timeline.Content { return &timeline.Clip{} }}); !errors.Is(err, registry.ErrClosed) {
		t.Errorf("registry should be closed, got %v", err)
	}

	// Idempotent, and unknown sessions are a no-op.
	if err := repo.End("s1"); err != nil {
		t.Errorf("second End: %v", err)
	}
	if err := repo.End("missing"); err != nil {
		t.Errorf("End missing: %v", err)
	}
	if _, ok := repo.Get("s1"); !ok {
		t.Error("ended session should still be readable")
	}
}

func TestInMemoryRepository_ActiveSessionCount(t *testing.T) {
	repo := newTestRepository()
	repo.GetOrCreate("a")
	repo.GetOrCreate("b")
	repo.GetOrCreate("c")
	repo.End("b")

	if n := repo.ActiveSessionCount(); n != 2 {
		t.Errorf("expected 2 active sessions, got %d", n)
	}
}

func TestInMemoryRepository_concurrentGetOrCreate(t *testing.T) {
	repo := newTestRepository()
	var wg sync.WaitGroup
	sessions := make([]*Session, 20)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], _ = repo.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		if s != sessions[0] {
			t.Fatal("concurrent GetOrCreate returned different sessions")
		}
	}
}

func TestNewInMemoryRepositoryWithStore(t *testing.T) {
	store := NewInMemoryStore()
	repo := NewInMemoryRepositoryWithStore(store, nil)

	if _, err := repo.GetOrCreate("s1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, ok := store.GetSession("s1"); !ok {
		t.Error("injected store should contain session after GetOrCreate")
	}
}
