package registry

import (
	"time"

	"timeline-orchestrator/internal/timeline"
)

// Timeline is the master clock the registry schedules into.
type Timeline interface {
	AddSegment(c timeline.Content, offset float64)
	AddGlobalMarker(name string, at float64)
	Play()
}

// Request describes one segment registration. It must not be mutated after
// it is passed to Register.
type Request struct {
	// ID identifies the segment and namespaces its labels.
	ID string
	// DependsOn lists qualified labels the segment's start waits for.
	DependsOn []string
	// Labels maps local label names to their local times.
	Labels map[string]LabelSpec
	// Build produces the segment's content once its start is known.
	Build func() timeline.Content
	// OnDependencyFailure is consulted when a dependency never resolves.
	OnDependencyFailure func(id string, dependsOn []string) Fallback
	// Timeout overrides the registry's dependency timeout when > 0. A segment
	// that depends on another segment's fallback needs a longer budget than
	// the segment it waits on.
	Timeout time.Duration
}

// LabelSpec yields a label's local time, either fixed or derived from the
// built content.
type LabelSpec struct {
	fixed   float64
	extract func(timeline.Content) float64
}

// At is a label at a fixed local time.
func At(t float64) LabelSpec {
	return LabelSpec{fixed: t}
}

// From derives a label's local time from the built content.
func From(fn func(timeline.Content) float64) LabelSpec {
	return LabelSpec{extract: fn}
}

// MarkerOr resolves to the content's marker of the given name, or to the
// content's full duration when the marker is absent.
func MarkerOr(name string) LabelSpec {
	return From(func(c timeline.Content) float64 {
		if at, ok := c.Marker(name); ok {
			return at
		}
		return c.Duration()
	})
}

func (s LabelSpec) localTime(c timeline.Content) float64 {
	if s.extract != nil {
		return s.extract(c)
	}
	return s.fixed
}

// Fallback is the result of an OnDependencyFailure producer. It is one of
// NoFallback, BareContent or StructuredFallback.
type Fallback interface {
	fallback()
}

// NoFallback inserts nothing for the failed segment.
type NoFallback struct{}

// BareContent inserts Content at offset 0 without publishing labels.
type BareContent struct {
	Content timeline.Content
}

// StructuredFallback is inserted at StartAt and publishes its own Labels,
// exactly like a successful registration.
type StructuredFallback struct {
	Content timeline.Content
	Labels  map[string]LabelSpec
	StartAt float64
}

func (NoFallback) fallback()         {}
func (BareContent) fallback()        {}
func (StructuredFallback) fallback() {}

// Outcome is the terminal state of a registration.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeFallback Outcome = "fallback"
	OutcomeDropped  Outcome = "dropped"
	OutcomeCanceled Outcome = "canceled"
)

// Placement records how a registration settled.
type Placement struct {
	ID       string             `json:"id"`
	Outcome  Outcome            `json:"outcome"`
	StartAt  float64            `json:"start_at"`
	Duration float64            `json:"duration"`
	Inserted bool               `json:"inserted"`
	Labels   map[string]float64 `json:"labels,omitempty"`
	Err      error              `json:"-"`
	// Waited is how long the registration spent on its dependencies.
	Waited    time.Duration `json:"waited"`
	SettledAt time.Time     `json:"settled_at"`
}

// Recorder receives registry activity, typically for metrics.
type Recorder interface {
	SegmentSubmitted()
	SegmentSettled(outcome string, waited time.Duration)
	SessionReady()
}

type nopRecorder struct{}

func (nopRecorder) SegmentSubmitted()                    {}
func (nopRecorder) SegmentSettled(string, time.Duration) {}
func (nopRecorder) SessionReady()                        {}
