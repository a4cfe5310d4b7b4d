package timeline

import "sort"

// Content is a schedulable unit: something with a total duration and
// optional named markers measured from its own start.
type Content interface {
	Duration() float64
	Marker(name string) (float64, bool)
}

// Clip is the concrete Content used by segments in this repository.
// Times are in seconds.
type Clip struct {
	Name    string             `json:"name,omitempty"`
	Length  float64            `json:"length"`
	Markers map[string]float64 `json:"markers,omitempty"`
}

// Duration implements Content.
func (c *Clip) Duration() float64 {
	if c == nil {
		return 0
	}
	return c.Length
}

// Marker implements Content.
func (c *Clip) Marker(name string) (float64, bool) {
	if c == nil {
		return 0, false
	}
	at, ok := c.Markers[name]
	return at, ok
}

// MarkerNames returns the clip's marker names ordered by time, then name.
func (c *Clip) MarkerNames() []string {
	if c == nil || len(c.Markers) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.Markers))
	for name := range c.Markers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ti, tj := c.Markers[names[i]], c.Markers[names[j]]
		if ti != tj {
			return ti < tj
		}
		return names[i] < names[j]
	})
	return names
}

// Sequence builds a Clip by appending steps back to back, the way a segment
// chains its tweens. Mark records a marker at the current cursor.
type Sequence struct {
	name    string
	cursor  float64
	markers map[string]float64
}

// NewSequence starts an empty sequence.
func NewSequence(name string) *Sequence {
	return &Sequence{name: name, markers: make(map[string]float64)}
}

// Then appends a step of duration d. Negative durations are treated as 0.
func (s *Sequence) Then(d float64) *Sequence {
	if d > 0 {
		s.cursor += d
	}
	return s
}

// Mark places a marker at the current cursor. Re-marking a name moves it.
func (s *Sequence) Mark(name string) *Sequence {
	s.markers[name] = s.cursor
	return s
}

// Clip returns the built clip. The sequence may keep being extended; the
// returned clip is a snapshot.
func (s *Sequence) Clip() *Clip {
	markers := make(map[string]float64, len(s.markers))
	for k, v := range s.markers {
		markers[k] = v
	}
	return &Clip{Name: s.name, Length: s.cursor, Markers: markers}
}
