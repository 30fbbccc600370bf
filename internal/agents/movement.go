package agents

import (
	"math/rand"
	"sort"

	"github.com/talgya/ereea/internal/world"
)

// RandomMoveAttempts caps how many random directions a wandering agent tries.
const RandomMoveAttempts = 10

// Surface is the part of the grid movement depends on. IsPassable must be
// false off the grid.
type Surface interface {
	IsPassable(c world.Coord) bool
	Occupied(c world.Coord) bool
}

// MoveToward advances the agent one orthogonal step and reports whether it
// moved.
//
// With a target, the four moves are ranked by resulting Manhattan distance
// (ties keep up/down/left/right order) and the first passable, unoccupied
// cell that is not the agent's previous position wins. Without a target the
// agent wanders, accepting the first of RandomMoveAttempts random moves that
// lands on a passable, unoccupied cell.
func MoveToward(a *Agent, target *world.Coord, s Surface, rng *rand.Rand) bool {
	if target == nil {
		return wander(a, s, rng)
	}
	if a.Position == *target {
		return false
	}

	candidates := a.Position.Neighbors()
	dest := *target
	sort.SliceStable(candidates[:], func(i, j int) bool {
		return world.Manhattan(candidates[i], dest) < world.Manhattan(candidates[j], dest)
	})

	for _, c := range candidates {
		if !s.IsPassable(c) || s.Occupied(c) {
			continue
		}
		if a.LastPos != nil && *a.LastPos == c {
			continue
		}
		a.moveTo(c)
		return true
	}
	return false
}

func wander(a *Agent, s Surface, rng *rand.Rand) bool {
	for i := 0; i < RandomMoveAttempts; i++ {
		c := a.Position.Add(world.Directions[rng.Intn(len(world.Directions))])
		if s.IsPassable(c) && !s.Occupied(c) {
			a.moveTo(c)
			return true
		}
	}
	return false
}

func (a *Agent) moveTo(c world.Coord) {
	prev := a.Position
	a.LastPos = &prev
	a.Position = c
}
