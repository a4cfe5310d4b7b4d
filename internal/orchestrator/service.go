package orchestrator

import (
	"errors"
	"fmt"
	"sort"

	"timeline-orchestrator/internal/composition"
	"timeline-orchestrator/internal/registry"
)

// Service turns declarative segments into registrations on a session's
// registry and reports on the composed timeline.
type Service struct {
	repo Repository
}

// NewService returns a Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RegisterSegment validates seg and submits it to the session's registry,
// creating the session if needed. Resolution continues in the background.
func (s *Service) RegisterSegment(id SessionID, seg composition.Segment) error {
	if err := seg.Validate(); err != nil {
		return err
	}
	sess, err := s.repo.GetOrCreate(id)
	if err != nil {
		return err
	}
	return register(sess, seg)
}

// LoadComposition registers every segment of c in one burst, so the session
// cannot become ready before the whole composition has been submitted.
func (s *Service) LoadComposition(id SessionID, c composition.Composition) error {
	if err := c.Validate(); err != nil {
		return err
	}
	sess, err := s.repo.GetOrCreate(id)
	if err != nil {
		return err
	}
	for _, seg := range c.Segments {
		if err := register(sess, seg); err != nil {
			return fmt.Errorf("segment %q: %w", seg.ID, err)
		}
	}
	return nil
}

func register(sess *Session, seg composition.Segment) error {
	err := sess.Registry.Register(seg.Request(sess.Registry.Label))
	if errors.Is(err, registry.ErrClosed) {
		return ErrSessionEnded
	}
	return err
}

// Status returns the current view of a session.
func (s *Service) Status(id SessionID) (Status, bool) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return Status{}, false
	}
	reg := sess.Registry
	expected, settled := reg.Ledger()
	playing, _ := sess.Master.Playing()

	placements := reg.Placements()
	sort.SliceStable(placements, func(i, j int) bool {
		if placements[i].StartAt != placements[j].StartAt {
			return placements[i].StartAt < placements[j].StartAt
		}
		return placements[i].ID < placements[j].ID
	})
	views := make([]PlacementView, 0, len(placements))
	for _, p := range placements {
		v := PlacementView{Placement: p}
		if p.Err != nil {
			v.Error = p.Err.Error()
		}
		views = append(views, v)
	}

	st := Status{
		ID:         sess.ID,
		Expected:   expected,
		Settled:    settled,
		Ready:      reg.Ready(),
		Playing:    playing,
		Ended:      sess.Ended(),
		Duration:   sess.Master.Duration(),
		Placements: views,
		Labels:     reg.Labels(),
	}
	if err := reg.Err(); err != nil {
		st.Error = err.Error()
	}
	return st, true
}

// Schedule renders the session's cue sheet.
func (s *Service) Schedule(id SessionID) (string, bool) {
	st, ok := s.Status(id)
	if !ok {
		return "", false
	}
	return BuildSchedule(st), true
}

// EndSession tears the session down; pending registrations settle as
// canceled.
func (s *Service) EndSession(id SessionID) error {
	return s.repo.End(id)
}

// ActiveSessionCount returns the number of sessions not yet ended.
func (s *Service) ActiveSessionCount() int {
	return s.repo.ActiveSessionCount()
}
