package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventCollector records events; safe for concurrent use
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) OnEvent(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *eventCollector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *eventCollector) ofType(t EventType) []Event {
	var out []Event
	for _, e := range c.snapshot() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (c *eventCollector) percents() []int {
	var out []int
	for _, e := range c.ofType(EventProgress) {
		out = append(out, e.Percent)
	}
	return out
}

func TestEmitter_ProgressIsMonotonicAndClamped(t *testing.T) {
	c := &eventCollector{}
	em := newEmitter("job", []Observer{c})

	em.progress(10)
	em.progress(5)
	em.progress(10)
	em.progress(150)
	em.progress(-3)

	assert.Equal(t, []int{10, 10, 100}, c.percents())
	for _, e := range c.snapshot() {
		assert.Equal(t, "job", e.JobID)
	}
}

func TestEmitter_SingleTerminalEvent(t *testing.T) {
	c := &eventCollector{}
	em := newEmitter("job", []Observer{c})

	em.progress(50)
	require.True(t, em.fail(NewPipelineError(ErrorTypeAssemblyFailed, "disk full", nil)))
	assert.False(t, em.complete(Artifact{Name: "x.ts"}))
	assert.False(t, em.fail(NewPipelineError(ErrorTypeUnknown, "again", nil)))
	em.progress(100)
	em.state(StateFetching, StateFailed)

	events := c.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Type)
	assert.Contains(t, events[1].Message, "disk full")
	assert.True(t, events[1].Terminal())
}

func TestObserverFunc(t *testing.T) {
	var got Event
	var o Observer = ObserverFunc(func(e Event) { got = e })
	o.OnEvent(Event{Type: EventComplete, ArtifactName: "a.ts"})
	assert.Equal(t, "a.ts", got.ArtifactName)
	assert.Equal(t, "complete", got.Type.String())
}
