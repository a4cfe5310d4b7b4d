package orchestrator

import (
	"sync/atomic"
	"time"

	"timeline-orchestrator/internal/registry"
	"timeline-orchestrator/internal/timeline"
)

// SessionID identifies one composition session.
type SessionID string

// Session is the in-memory state of a session: its master timeline and the
// registry scheduling segments into it.
type Session struct {
	ID        SessionID
	Master    *timeline.Master
	Registry  *registry.Registry
	CreatedAt time.Time

	ended atomic.Bool
}

// Ended reports whether the session has been torn down.
func (s *Session) Ended() bool {
	return s.ended.Load()
}

// markEnded flips the session to ended and reports whether this call did it.
func (s *Session) markEnded() bool {
	return s.ended.CompareAndSwap(false, true)
}

// Status is the JSON view of a session served by the HTTP API.
type Status struct {
	ID         SessionID          `json:"id"`
	Expected   int                `json:"expected"`
	Settled    int                `json:"settled"`
	Ready      bool               `json:"ready"`
	Playing    bool               `json:"playing"`
	Ended      bool               `json:"ended"`
	Duration   float64            `json:"duration"`
	Placements []PlacementView    `json:"placements"`
	Labels     map[string]float64 `json:"labels"`
	Error      string             `json:"error,omitempty"`
}

// PlacementView adds the placement's error text, which registry.Placement
// does not serialise.
type PlacementView struct {
	registry.Placement
	Error string `json:"error,omitempty"`
}
