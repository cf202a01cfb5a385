package pipeline

import (
	"sync"
	"time"
)

// EventType identifies what an Event reports
type EventType int

const (
	EventProgress EventType = iota
	EventComplete
	EventError
	EventState
)

func (t EventType) String() string {
	switch t {
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	case EventState:
		return "state"
	default:
		return "unknown"
	}
}

// Event is a notification about a running job. Only the fields relevant to
// Type are set.
type Event struct {
	Type  EventType
	JobID string
	Time  time.Time

	Percent      int       // progress
	ArtifactName string    // complete
	Artifact     *Artifact // complete
	Message      string    // error
	Err          *PipelineError

	From State // state
	To   State
}

// Terminal reports whether the event ends the job
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Observer receives job events
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// OnEvent implements Observer
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// emitter fans events out to observers and enforces the event contract:
// progress never decreases, exactly one terminal event, nothing after it.
type emitter struct {
	mu          sync.Mutex
	jobID       string
	observers   []Observer
	lastPercent int
	done        bool
}

func newEmitter(jobID string, observers []Observer) *emitter {
	return &emitter{jobID: jobID, observers: observers, lastPercent: -1}
}

func (em *emitter) send(e Event) {
	e.JobID = em.jobID
	e.Time = time.Now()
	for _, o := range em.observers {
		o.OnEvent(e)
	}
}

func (em *emitter) progress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	if em.done || percent < em.lastPercent {
		return
	}
	em.lastPercent = percent
	em.send(Event{Type: EventProgress, Percent: percent})
}

func (em *emitter) state(from, to State) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.done {
		return
	}
	em.send(Event{Type: EventState, From: from, To: to})
}

// complete reports success. Returns false if a terminal event was already sent.
func (em *emitter) complete(artifact Artifact) bool {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.done {
		return false
	}
	em.done = true
	em.send(Event{Type: EventComplete, ArtifactName: artifact.Name, Artifact: &artifact})
	return true
}

func (em *emitter) fail(err *PipelineError) bool {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.done {
		return false
	}
	em.done = true
	em.send(Event{Type: EventError, Message: err.Error(), Err: err})
	return true
}
