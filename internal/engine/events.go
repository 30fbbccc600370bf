package engine

import (
	"sync"
	"time"

	"github.com/talgya/ereea/internal/agents"
)

// Event categories.
const (
	CategorySpawn     = "spawn"
	CategoryDiscovery = "discovery"
	CategoryDeposit   = "deposit"
	CategoryRetire    = "retire"
	CategoryAgent     = "agent"
	CategoryControl   = "control"
)

const (
	maxRecentEvents  = 1000
	maxPendingEvents = 10000
)

// Event is a notable occurrence in the simulation.
type Event struct {
	Tick        uint64         `json:"tick"` // Global step count when emitted
	Time        time.Time      `json:"time"`
	AgentID     agents.AgentID `json:"agent_id,omitempty"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// eventLog keeps a bounded window of recent events plus a queue of events
// not yet drained to the journal.
type eventLog struct {
	mu      sync.Mutex
	recent  []Event
	pending []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = append(l.recent, e)
	if len(l.recent) > maxRecentEvents {
		l.recent = l.recent[len(l.recent)-maxRecentEvents:]
	}
	l.pending = append(l.pending, e)
	if len(l.pending) > maxPendingEvents {
		l.pending = l.pending[len(l.pending)-maxPendingEvents:]
	}
}

func (l *eventLog) last(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]Event, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

func (l *eventLog) drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.pending
	l.pending = nil
	return out
}

// EmitEvent records an event, stamping its tick and time.
func (s *Simulation) EmitEvent(e Event) {
	e.Tick = s.steps.Load()
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.events.add(e)
}

// RecentEvents returns up to n of the most recent events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	return s.events.last(n)
}

// DrainEvents returns and forgets every event emitted since the last drain.
func (s *Simulation) DrainEvents() []Event {
	return s.events.drain()
}
