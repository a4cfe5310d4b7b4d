package timeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_marksAtCursor(t *testing.T) {
	clip := NewSequence("box").Then(3).Mark("halfway").Then(1).Then(1).Clip()

	assert.Equal(t, "box", clip.Name)
	assert.Equal(t, 5.0, clip.Duration())
	at, ok := clip.Marker("halfway")
	require.True(t, ok)
	assert.Equal(t, 3.0, at)

	_, ok = clip.Marker("missing")
	assert.False(t, ok)
}

func TestSequence_ignoresNegativeSteps(t *testing.T) {
	clip := NewSequence("x").Then(-2).Then(1).Clip()
	assert.Equal(t, 1.0, clip.Duration())
}

func TestSequence_clipIsSnapshot(t *testing.T) {
	seq := NewSequence("x").Then(1).Mark("a")
	first := seq.Clip()
	seq.Then(2).Mark("a")

	at, _ := first.Marker("a")
	assert.Equal(t, 1.0, at)
	assert.Equal(t, 1.0, first.Duration())
}

func TestClip_MarkerNames_orderedByTime(t *testing.T) {
	clip := &Clip{Length: 4, Markers: map[string]float64{"end": 4, "b": 1, "a": 1, "start": 0}}
	assert.Equal(t, []string{"start", "a", "b", "end"}, clip.MarkerNames())
}

func TestClip_nilSafe(t *testing.T) {
	var c *Clip
	assert.Equal(t, 0.0, c.Duration())
	_, ok := c.Marker("x")
	assert.False(t, ok)
}

func TestMaster_AddSegmentAndDuration(t *testing.T) {
	m := NewMaster()
	m.AddSegment(&Clip{Length: 3}, 0)
	m.AddSegment(&Clip{Length: 1}, 1.5)
	m.AddSegment(nil, 10)

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 1.5, entries[1].Offset)
	assert.Equal(t, 3.0, m.Duration())
}

func TestMaster_markers(t *testing.T) {
	m := NewMaster()
	m.AddGlobalMarker("a.mid", 1.5)
	m.AddGlobalMarker("b.end", 0.5)

	at, ok := m.Marker("a.mid")
	require.True(t, ok)
	assert.Equal(t, 1.5, at)
	assert.Equal(t, map[string]float64{"a.mid": 1.5, "b.end": 0.5}, m.Markers())
}

func TestMaster_PlayOnce(t *testing.T) {
	m := NewMaster()
	playing, _ := m.Playing()
	assert.False(t, playing)

	m.Play()
	_, first := m.Playing()
	m.Play()
	playing, second := m.Playing()
	assert.True(t, playing)
	assert.Equal(t, first, second)
}

func TestMaster_concurrentAdds(t *testing.T) {
	m := NewMaster()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.AddSegment(&Clip{Length: 1}, float64(i))
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.Entries(), 50)
	assert.Equal(t, 50.0, m.Duration())
}
