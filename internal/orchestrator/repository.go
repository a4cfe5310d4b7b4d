package orchestrator

import (
	"errors"
	"sync"
	"time"

	"timeline-orchestrator/internal/registry"
	"timeline-orchestrator/internal/timeline"
)

// Repository defines the concurrency-safe contract for session lifecycle.
type Repository interface {
	// GetOrCreate returns the session with the given id, creating it if it
	// does not exist. It returns ErrSessionEnded for an ended session.
	GetOrCreate(id SessionID) (*Session, error)

	// Get returns an existing session, ended or not.
	Get(id SessionID) (*Session, bool)

	// End tears the session down: its registry is closed and later
	// registrations are rejected. Ending an unknown or ended session is a
	// no-op.
	End(id SessionID) error

	// ActiveSessionCount returns the number of sessions not yet ended.
	ActiveSessionCount() int
}

// ErrSessionEnded is returned when registering into a session that has been
// ended.
var ErrSessionEnded = errors.New("session has ended")

// SessionFactory creates the state for a new session.
type SessionFactory func(id SessionID) *Session

// NewSessionFactory returns a factory that gives each session its own master
// timeline and a registry configured with opts.
func NewSessionFactory(opts ...registry.Option) SessionFactory {
	return func(id SessionID) *Session {
		master := timeline.NewMaster()
		return &Session{
			ID:        id,
			Master:    master,
			Registry:  registry.New(master, opts...),
			CreatedAt: time.Now().UTC(),
		}
	}
}

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
type InMemoryRepository struct {
	mu         sync.RWMutex
	store      Store
	newSession SessionFactory
}

// NewInMemoryRepository constructs a repository with a default in-memory
// store. A nil factory uses NewSessionFactory with no options.
func NewInMemoryRepository(factory SessionFactory) *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore(), factory)
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store, factory SessionFactory) *InMemoryRepository {
	if factory == nil {
		factory = NewSessionFactory()
	}
	return &InMemoryRepository{store: store, newSession: factory}
}

// GetOrCreate implements Repository.GetOrCreate.
func (r *InMemoryRepository) GetOrCreate(id SessionID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.store.GetSession(id); ok {
		if sess.Ended() {
			return nil, ErrSessionEnded
		}
		return sess, nil
	}
	sess := r.newSession(id)
	r.store.SetSession(sess)
	return sess, nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.GetSession(id)
}

// End implements Repository.End.
func (r *InMemoryRepository) End(id SessionID) error {
	r.mu.Lock()
	sess, exists := r.store.GetSession(id)
	if !exists || !sess.markEnded() {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	// Close waits for in-flight registrations; do it outside the lock.
	sess.Registry.Close()
	return nil
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListSessionIDs() {
		if sess, ok := r.store.GetSession(id); ok && !sess.Ended() {
			n++
		}
	}
	return n
}
