package engine

import (
	"sync"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/world"
)

// DiscoveryQueue is the ordered record of resource coordinates reported by
// scouts, deduplicated by coordinate.
type DiscoveryQueue struct {
	mu      sync.Mutex
	entries []agents.Discovery
	seen    map[world.Coord]struct{}
}

// NewDiscoveryQueue creates an empty queue.
func NewDiscoveryQueue() *DiscoveryQueue {
	return &DiscoveryQueue{seen: make(map[world.Coord]struct{})}
}

// Claim appends d unless its coordinate is already queued. The check and the
// append happen in one critical section, so exactly one of any number of
// concurrent callers for the same coordinate gets true.
func (q *DiscoveryQueue) Claim(d agents.Discovery) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.seen[d.Coord]; dup {
		return false
	}
	q.seen[d.Coord] = struct{}{}
	q.entries = append(q.entries, d)
	return true
}

// Contains reports whether c has been claimed.
func (q *DiscoveryQueue) Contains(c world.Coord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.seen[c]
	return ok
}

// Len returns the number of claimed coordinates.
func (q *DiscoveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the queue in claim order.
func (q *DiscoveryQueue) Entries() []agents.Discovery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]agents.Discovery, len(q.entries))
	copy(out, q.entries)
	return out
}
