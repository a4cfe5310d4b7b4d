package orchestrator

import (
	"fmt"
	"strings"

	"timeline-orchestrator/internal/registry"
	"timeline-orchestrator/internal/timeline"
)

// BuildSchedule renders a session status as a plain-text cue sheet: one line
// per inserted segment in start order, then the global labels, then the
// segments that were not inserted.
func BuildSchedule(st Status) string {
	var b strings.Builder

	b.WriteString("#TIMELINE\n")
	b.WriteString(fmt.Sprintf("#SESSION:%s\n", st.ID))
	b.WriteString(fmt.Sprintf("#LEDGER:expected=%d,settled=%d,ready=%t,playing=%t\n",
		st.Expected, st.Settled, st.Ready, st.Playing))
	b.WriteString(fmt.Sprintf("#DURATION:%.3f\n", st.Duration))

	var dropped []PlacementView
	b.WriteString("\n")
	for _, p := range st.Placements {
		if !p.Inserted {
			dropped = append(dropped, p)
			continue
		}
		b.WriteString(fmt.Sprintf("@%.3f %s +%.3f %s\n", p.StartAt, p.ID, p.Duration, p.Outcome))
	}

	if len(st.Labels) > 0 {
		b.WriteString("\n")
		// Global labels order like a clip's markers: by time, then name.
		for _, name := range (&timeline.Clip{Markers: st.Labels}).MarkerNames() {
			b.WriteString(fmt.Sprintf("#LABEL:%.3f,%s\n", st.Labels[name], name))
		}
	}

	for _, p := range dropped {
		line := fmt.Sprintf("#NOT-INSERTED:%s,%s", p.ID, p.Outcome)
		if p.Error != "" {
			line += "," + p.Error
		}
		b.WriteString(line + "\n")
	}

	if st.Ended {
		b.WriteString("#ENDED\n")
	}
	return b.String()
}

// outcomeCounts tallies placements by outcome, used in log lines.
func outcomeCounts(placements []PlacementView) map[registry.Outcome]int {
	counts := make(map[registry.Outcome]int)
	for _, p := range placements {
		counts[p.Outcome]++
	}
	return counts
}
