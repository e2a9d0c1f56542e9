package audit

import "sync"

// InMemRecorder is an in-memory implementation of Recorder for testing.
type InMemRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemRecorder creates a new InMemRecorder.
func NewInMemRecorder() *InMemRecorder {
	return &InMemRecorder{}
}

var _ Recorder = (*InMemRecorder)(nil)

func (r *InMemRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *InMemRecorder) Close() {}

// Events returns a copy of the recorded events.
func (r *InMemRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// EventsOfType returns recorded events matching the given type.
func (r *InMemRecorder) EventsOfType(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
