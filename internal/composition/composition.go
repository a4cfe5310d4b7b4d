// Package composition declares segments in data rather than code. A
// Composition is read from YAML files or JSON request bodies and turned into
// registry requests.
package composition

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"timeline-orchestrator/internal/registry"
	"timeline-orchestrator/internal/timeline"
)

// FallbackMode selects which registry.Fallback a segment falls back to.
type FallbackMode string

const (
	FallbackNone       FallbackMode = "none"
	FallbackBare       FallbackMode = "bare"
	FallbackStructured FallbackMode = "structured"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("composition: invalid")

// Composition is a named set of segments registered together.
type Composition struct {
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Segments []Segment `json:"segments" yaml:"segments"`
}

// Segment is the declarative form of a registry.Request.
type Segment struct {
	ID        string           `json:"id" yaml:"id"`
	DependsOn []string         `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Steps     []Step           `json:"steps" yaml:"steps"`
	Labels    map[string]Label `json:"labels,omitempty" yaml:"labels,omitempty"`
	Fallback  *Fallback        `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	// Timeout overrides the dependency timeout, e.g. "8s".
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Step either advances the segment by Duration or, with Mark set, records a
// marker at the current position.
type Step struct {
	Duration float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	Mark     string  `json:"mark,omitempty" yaml:"mark,omitempty"`
}

// Label is a fixed local time (At) or a marker lookup. With neither set the
// marker named like the label is used; a missing marker means the end of the
// segment.
type Label struct {
	At     *float64 `json:"at,omitempty" yaml:"at,omitempty"`
	Marker string   `json:"marker,omitempty" yaml:"marker,omitempty"`
}

// Fallback describes what to insert when a segment's dependencies never
// resolve. StartAfter names a qualified label whose resolved time, plus
// StartAt, becomes the fallback's start; if that label is unknown StartAt is
// used alone.
type Fallback struct {
	Mode       FallbackMode     `json:"mode" yaml:"mode"`
	Steps      []Step           `json:"steps,omitempty" yaml:"steps,omitempty"`
	StartAt    float64          `json:"start_at,omitempty" yaml:"start_at,omitempty"`
	StartAfter string           `json:"start_after,omitempty" yaml:"start_after,omitempty"`
	Labels     map[string]Label `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Parse decodes and validates a YAML (or JSON) composition.
func Parse(data []byte) (Composition, error) {
	var c Composition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Composition{}, fmt.Errorf("composition: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Composition{}, err
	}
	return c, nil
}

// Load reads and parses the composition file at path.
func Load(path string) (Composition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Composition{}, fmt.Errorf("composition: read %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks every segment and that segment ids are unique.
func (c Composition) Validate() error {
	seen := make(map[string]bool, len(c.Segments))
	for i, seg := range c.Segments {
		if err := seg.Validate(); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		if seen[seg.ID] {
			return fmt.Errorf("%w: duplicate segment id %q", ErrInvalid, seg.ID)
		}
		seen[seg.ID] = true
	}
	return nil
}

// Validate checks a single segment.
func (s Segment) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: segment id is required", ErrInvalid)
	}
	for _, dep := range s.DependsOn {
		if dep == "" {
			return fmt.Errorf("%w: segment %q has an empty dependency", ErrInvalid, s.ID)
		}
	}
	if s.Timeout != "" {
		if d, err := time.ParseDuration(s.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("%w: segment %q has invalid timeout %q", ErrInvalid, s.ID, s.Timeout)
		}
	}
	if err := validateSteps(s.ID, s.Steps); err != nil {
		return err
	}
	if err := validateLabels(s.ID, s.Labels); err != nil {
		return err
	}
	if s.Fallback == nil {
		return nil
	}
	switch s.Fallback.Mode {
	case FallbackNone, FallbackBare, FallbackStructured:
	default:
		return fmt.Errorf("%w: segment %q has unknown fallback mode %q", ErrInvalid, s.ID, s.Fallback.Mode)
	}
	if err := validateSteps(s.ID, s.Fallback.Steps); err != nil {
		return err
	}
	return validateLabels(s.ID, s.Fallback.Labels)
}

func validateSteps(id string, steps []Step) error {
	for i, st := range steps {
		if st.Duration < 0 {
			return fmt.Errorf("%w: segment %q step %d has negative duration", ErrInvalid, id, i)
		}
		if st.Duration > 0 && st.Mark != "" {
			return fmt.Errorf("%w: segment %q step %d sets both duration and mark", ErrInvalid, id, i)
		}
	}
	return nil
}

func validateLabels(id string, labels map[string]Label) error {
	for name, l := range labels {
		if name == "" {
			return fmt.Errorf("%w: segment %q has an unnamed label", ErrInvalid, id)
		}
		if l.At != nil && l.Marker != "" {
			return fmt.Errorf("%w: segment %q label %q sets both at and marker", ErrInvalid, id, name)
		}
	}
	return nil
}

// Clip builds the segment's content from its steps.
func (s Segment) Clip() *timeline.Clip {
	return buildClip(s.ID, s.Steps)
}

// Request converts the segment into a registry request. lookup reads resolved
// label times and is only used by fallbacks with StartAfter; it may be nil.
func (s Segment) Request(lookup func(name string) (float64, bool)) registry.Request {
	req := registry.Request{
		ID:        s.ID,
		DependsOn: append([]string(nil), s.DependsOn...),
		Labels:    labelSpecs(s.Labels),
		Build:     func() timeline.Content { return s.Clip() },
	}
	if d, err := time.ParseDuration(s.Timeout); err == nil && d > 0 {
		req.Timeout = d
	}
	if s.Fallback != nil {
		fb := *s.Fallback
		req.OnDependencyFailure = func(id string, _ []string) registry.Fallback {
			return fb.resolve(id, lookup)
		}
	}
	return req
}

func (f Fallback) resolve(id string, lookup func(string) (float64, bool)) registry.Fallback {
	switch f.Mode {
	case FallbackBare:
		return registry.BareContent{Content: buildClip(id+"~fallback", f.Steps)}
	case FallbackStructured:
		startAt := f.StartAt
		if f.StartAfter != "" && lookup != nil {
			if at, ok := lookup(f.StartAfter); ok {
				startAt += at
			}
		}
		return registry.StructuredFallback{
			Content: buildClip(id+"~fallback", f.Steps),
			Labels:  labelSpecs(f.Labels),
			StartAt: startAt,
		}
	default:
		return registry.NoFallback{}
	}
}

func buildClip(name string, steps []Step) *timeline.Clip {
	seq := timeline.NewSequence(name)
	for _, st := range steps {
		if st.Mark != "" {
			seq.Mark(st.Mark)
			continue
		}
		seq.Then(st.Duration)
	}
	return seq.Clip()
}

func labelSpecs(labels map[string]Label) map[string]registry.LabelSpec {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]registry.LabelSpec, len(labels))
	for name, l := range labels {
		switch {
		case l.At != nil:
			out[name] = registry.At(*l.At)
		case l.Marker != "":
			out[name] = registry.MarkerOr(l.Marker)
		default:
			out[name] = registry.MarkerOr(name)
		}
	}
	return out
}
