package orchestrator

import (
	"strings"
	"testing"

	"timeline-orchestrator/internal/registry"
)

func TestBuildSchedule_empty(t *testing.T) {
	sheet := BuildSchedule(Status{ID: "s1"})

	if !strings.HasPrefix(sheet, "#TIMELINE\n#SESSION:s1\n") {
		t.Errorf("unexpected header: %s", sheet)
	}
	if strings.Contains(sheet, "#LABEL") || strings.Contains(sheet, "#ENDED") {
		t.Errorf("empty session should have no labels or end marker: %s", sheet)
	}
}

func TestBuildSchedule_labelsOrderedByTime(t *testing.T) {
	sheet := BuildSchedule(Status{
		ID:     "s1",
		Ended:  true,
		Labels: map[string]float64{"b.end": 4, "a.mid": 1.5, "a.end": 3},
		Placements: []PlacementView{
			{Placement: registry.Placement{ID: "a", Outcome: registry.OutcomeResolved, Duration: 3, Inserted: true}},
			{Placement: registry.Placement{ID: "b", Outcome: registry.OutcomeFallback, StartAt: 1, Duration: 3, Inserted: true}},
		},
	})

	mid := strings.Index(sheet, "a.mid")
	end := strings.Index(sheet, "a.end")
	bEnd := strings.Index(sheet, "b.end")
	if !(mid < end && end < bEnd) {
		t.Errorf("labels not ordered by time:\n%s", sheet)
	}
	if !strings.Contains(sheet, "@1.000 b +3.000 fallback") {
		t.Errorf("missing fallback line:\n%s", sheet)
	}
	if !strings.HasSuffix(sheet, "#ENDED\n") {
		t.Errorf("ended session should end with #ENDED:\n%s", sheet)
	}
}

func TestOutcomeCounts(t *testing.T) {
	counts := outcomeCounts([]PlacementView{
		{Placement: registry.Placement{Outcome: registry.OutcomeResolved}},
		{Placement: registry.Placement{Outcome: registry.OutcomeResolved}},
		{Placement: registry.Placement{Outcome: registry.OutcomeDropped}},
	})
	if counts[registry.OutcomeResolved] != 2 || counts[registry.OutcomeDropped] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestBuildSchedule_labelsOrderedByTimeThenName(t *testing.T) {
	sheet := BuildSchedule(Status{
		ID:     "s1",
		Labels: map[string]float64{"b.end": 2, "a.mid": 1.5, "a.end": 2, "c.start": 0},
	})

	want := "#LABEL:0.000,c.start\n#LABEL:1.500,a.mid\n#LABEL:2.000,a.end\n#LABEL:2.000,b.end\n"
	if !strings.Contains(sheet, want) {
		t.Errorf("labels out of order, got:\n%s", sheet)
	}
}
