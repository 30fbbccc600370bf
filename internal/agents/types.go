// Package agents provides the agent record, the Scout and Hauler behaviors,
// and the shared movement primitive.
package agents

import (
	"fmt"

	"github.com/talgya/ereea/internal/world"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Kind selects an agent's per-tick behavior. The set is closed.
type Kind uint8

const (
	KindScout  Kind = iota // Finds unexplored terrain and resources
	KindHauler             // Collects resources and carries them to base
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindScout:
		return "scout"
	case KindHauler:
		return "hauler"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "scout":
		return KindScout, true
	case "hauler":
		return KindHauler, true
	default:
		return 0, false
	}
}

// State is the lifecycle state shared by both kinds.
//
//	Idle → Exploring (scout) / Harvesting (hauler)    on spawn
//	Exploring / Harvesting → Reporting                 results must go home
//	Reporting → Harvesting                             hauler, more remains
//	Reporting → Idle                                   otherwise; terminal
type State uint8

const (
	StateIdle State = iota
	StateExploring
	StateHarvesting
	StateReporting
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExploring:
		return "exploring"
	case StateHarvesting:
		return "harvesting"
	case StateReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// Bundle counts carried or collected resources.
type Bundle struct {
	Energy  uint32 `json:"energy"`
	Mineral uint32 `json:"mineral"`
	Science uint32 `json:"science"`
}

// Total returns the sum of all categories.
func (b Bundle) Total() uint32 {
	return b.Energy + b.Mineral + b.Science
}

// IsEmpty returns true if all quantities are zero.
func (b Bundle) IsEmpty() bool {
	return b.Total() == 0
}

// AddOne increments the counter for r.
func (b *Bundle) AddOne(r world.Resource) {
	switch r {
	case world.ResourceEnergy:
		b.Energy++
	case world.ResourceMineral:
		b.Mineral++
	case world.ResourceScience:
		b.Science++
	}
}

// Add accumulates another bundle.
func (b *Bundle) Add(o Bundle) {
	b.Energy += o.Energy
	b.Mineral += o.Mineral
	b.Science += o.Science
}

// Clear zeroes all quantities.
func (b *Bundle) Clear() {
	*b = Bundle{}
}

// Target is a hauler's assignment: a resource coordinate and whether the
// deposit there still holds material.
type Target struct {
	Coord       world.Coord    `json:"coord"`
	Resource    world.Resource `json:"resource"`
	MoreRemains bool           `json:"more_remains"`
}

// Discovery is a resource sighting reported by a scout.
type Discovery struct {
	Coord    world.Coord    `json:"coord"`
	Resource world.Resource `json:"resource"`
}

// Agent is one scout or hauler. A running agent is owned by its worker
// goroutine; other goroutines only see published copies.
type Agent struct {
	ID    AgentID `json:"id"`
	Kind  Kind    `json:"kind"`
	State State   `json:"state"`

	// Location
	Position world.Coord  `json:"position"`
	LastPos  *world.Coord `json:"last_pos,omitempty"` // Anti-oscillation memory
	Heading  *world.Coord `json:"heading,omitempty"`  // Destination LastPos belongs to

	// Capabilities: what a scout senses, what a hauler extracts.
	Capabilities world.ResourceSet `json:"capabilities"`
	Carried      Bundle            `json:"carried"`
	Capacity     uint32            `json:"capacity"`

	// Hauler assignment, nil for free-roaming haulers and scouts.
	Target *Target `json:"target,omitempty"`

	// Scout findings awaiting report.
	Discoveries []Discovery `json:"discoveries,omitempty"`

	// Consecutive steps spent unable to move toward a target.
	Stalled int `json:"stalled"`
}

// Full reports whether the agent carries its capacity.
func (a *Agent) Full() bool {
	return a.Carried.Total() >= a.Capacity
}

// Terminal reports whether the agent has finished its lifecycle.
func (a *Agent) Terminal() bool {
	return a.State == StateIdle
}

// SetState moves the agent into s. Entering a new state forgets LastPos and
// the heading it was recorded against.
func (a *Agent) SetState(s State) {
	if a.State != s {
		a.forgetPath()
	}
	a.State = s
}

func (a *Agent) forgetPath() {
	a.LastPos = nil
	a.Heading = nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (a *Agent) Clone() Agent {
	cp := *a
	if a.LastPos != nil {
		lp := *a.LastPos
		cp.LastPos = &lp
	}
	if a.Heading != nil {
		h := *a.Heading
		cp.Heading = &h
	}
	if a.Target != nil {
		t := *a.Target
		cp.Target = &t
	}
	if a.Discoveries != nil {
		cp.Discoveries = append([]Discovery(nil), a.Discoveries...)
	}
	return cp
}

// String returns a short label for logs.
func (a *Agent) String() string {
	return fmt.Sprintf("%s-%d", a.Kind, a.ID)
}
