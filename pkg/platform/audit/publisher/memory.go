package publisher

import (
	"context"
	"sync"

	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/requestcontext"
)

// Memory is an in-process audit sink for tests and single-node development.
type Memory struct {
	mu     sync.Mutex
	events []audit.Event
}

// NewMemory constructs an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Emit appends the event to the in-memory log.
func (m *Memory) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (m *Memory) Events() []audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByAction filters emitted events by action name.
func (m *Memory) ByAction(action audit.AuditEvent) []audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Event
	for _, e := range m.events {
		if e.Action == string(action) {
			out = append(out, e)
		}
	}
	return out
}

// Close is a no-op for the in-memory sink.
func (m *Memory) Close() error {
	return nil
}
