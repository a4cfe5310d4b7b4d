package timeline

import (
	"sync"
	"time"
)

// Entry is one piece of content placed on the master timeline.
type Entry struct {
	Content Content
	Offset  float64
	AddedAt time.Time
}

// End returns the absolute time at which the entry finishes.
func (e Entry) End() float64 {
	return e.Offset + e.Content.Duration()
}

// Master is the shared, concurrency-safe container every segment is placed
// into. Entries are append-only and their offsets are never revised.
type Master struct {
	mu       sync.RWMutex
	entries  []Entry
	markers  map[string]float64
	playing  bool
	playedAt time.Time
}

// NewMaster returns an empty, paused master timeline.
func NewMaster() *Master {
	return &Master{markers: make(map[string]float64)}
}

// AddSegment places content at an absolute offset. Nil content is ignored.
func (m *Master) AddSegment(c Content, offset float64) {
	if c == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{Content: c, Offset: offset, AddedAt: time.Now().UTC()})
}

// AddGlobalMarker records a named absolute time on the master timeline.
func (m *Master) AddGlobalMarker(name string, at float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[name] = at
}

// Play starts playback. Calling Play more than once has no further effect.
func (m *Master) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		return
	}
	m.playing = true
	m.playedAt = time.Now().UTC()
}

// Playing reports whether Play has been called, and when.
func (m *Master) Playing() (bool, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playing, m.playedAt
}

// Entries returns a copy of the placed entries in insertion order.
func (m *Master) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Marker returns the absolute time of a global marker.
func (m *Master) Marker(name string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.markers[name]
	return at, ok
}

// Markers returns a copy of all global markers.
func (m *Master) Markers() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.markers))
	for k, v := range m.markers {
		out[k] = v
	}
	return out
}

// Duration is the end of the latest-finishing entry.
func (m *Master) Duration() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var end float64
	for _, e := range m.entries {
		if e.End() > end {
			end = e.End()
		}
	}
	return end
}
