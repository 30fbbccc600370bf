// Per-tick agent behavior. Every step runs with exclusive access to the grid,
// so reads and writes inside one step are atomic with respect to other agents.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/ereea/internal/world"
)

// StepParams tunes per-step behavior.
type StepParams struct {
	SensorRadius int // Chebyshev radius a scout surveys each step
	StallLimit   int // Blocked steps before a target is abandoned; 0 = never
}

// Start moves a freshly spawned agent out of Idle.
func Start(a *Agent) {
	if a.State != StateIdle {
		return
	}
	switch a.Kind {
	case KindScout:
		a.SetState(StateExploring)
	case KindHauler:
		a.SetState(StateHarvesting)
	}
}

// ReadyToReport is true once a reporting agent stands on a base.
func ReadyToReport(a *Agent, g *world.Grid) bool {
	return a.State == StateReporting && g.IsBase(a.Position)
}

// Step advances the agent by one tick and returns notable events for the log.
// The caller must hold the grid's write lock.
func Step(a *Agent, g *world.Grid, rng *rand.Rand, p StepParams) []string {
	switch a.Kind {
	case KindScout:
		return stepScout(a, g, rng, p)
	case KindHauler:
		return stepHauler(a, g, rng, p)
	}
	return nil
}

func stepScout(a *Agent, g *world.Grid, rng *rand.Rand, p StepParams) []string {
	events := sense(a, g, p.SensorRadius)

	switch a.State {
	case StateExploring:
		if len(a.Discoveries) > 0 {
			a.SetState(StateReporting)
			events = append(events, fmt.Sprintf("%s heads home with %d discoveries", a, len(a.Discoveries)))
			return events
		}

		target, ok := g.NearestUnexploredPassable(a.Position)
		if !ok {
			a.SetState(StateReporting)
			events = append(events, fmt.Sprintf("%s finds nothing left to explore", a))
			return events
		}

		if !travel(a, &target, g, rng) && stalled(a, p) {
			// Unreachable for now; survey it from afar so the search moves on.
			g.MarkExploredRadius(target, 0)
			giveUp(a)
			events = append(events, fmt.Sprintf("%s abandons target (%d,%d)", a, target.X, target.Y))
		}

	case StateReporting:
		goHome(a, g, rng, p)
	}
	return events
}

// sense surveys unexplored cells around the scout, recording resources it is
// equipped to detect, then marks the area explored.
func sense(a *Agent, g *world.Grid, radius int) []string {
	if radius < 0 {
		radius = 0
	}
	var events []string
	for y := a.Position.Y - radius; y <= a.Position.Y+radius; y++ {
		for x := a.Position.X - radius; x <= a.Position.X+radius; x++ {
			c := world.Coord{X: x, Y: y}
			if g.Explored(c) {
				continue
			}
			cell, _ := g.At(c)
			r, ok := cell.Resource()
			if !ok || !a.Capabilities.Has(r) {
				continue
			}
			a.Discoveries = append(a.Discoveries, Discovery{Coord: c, Resource: r})
			events = append(events, fmt.Sprintf("%s spots %s at (%d,%d)", a, world.ResourceName(r), x, y))
		}
	}
	g.MarkExploredRadius(a.Position, radius)
	return events
}

func stepHauler(a *Agent, g *world.Grid, rng *rand.Rand, p StepParams) []string {
	var events []string

	switch a.State {
	case StateHarvesting:
		if a.Target != nil && !a.Capabilities.Has(a.Target.Resource) {
			a.Target.MoreRemains = false
		}

		if r, ok := collectable(a, g); ok {
			g.Harvest(a.Position)
			a.Carried.AddOne(r)
			events = append(events, fmt.Sprintf("%s extracts %s at (%d,%d)", a, world.ResourceName(r), a.Position.X, a.Position.Y))

			if a.Target != nil && a.Position == a.Target.Coord {
				retarget(a, g)
			}
			if a.Full() || (a.Target != nil && !a.Target.MoreRemains) {
				a.SetState(StateReporting)
				events = append(events, fmt.Sprintf("%s returns to base carrying %d", a, a.Carried.Total()))
			}
			return events
		}

		if a.Target != nil && a.Target.MoreRemains && a.Position == a.Target.Coord {
			retarget(a, g)
		}
		if a.Target != nil && !a.Target.MoreRemains {
			a.SetState(StateReporting)
			events = append(events, fmt.Sprintf("%s finds its deposit exhausted", a))
			return events
		}

		var dest *world.Coord
		if a.Target != nil {
			dest = &a.Target.Coord
		}
		if !travel(a, dest, g, rng) && dest != nil && stalled(a, p) {
			a.Target.MoreRemains = false
			a.SetState(StateReporting)
			giveUp(a)
			events = append(events, fmt.Sprintf("%s cannot reach (%d,%d), returning", a, dest.X, dest.Y))
		}

	case StateReporting:
		goHome(a, g, rng, p)
	}
	return events
}

// collectable returns the resource under the hauler if it may take it now.
// An empty capability set never collects.
func collectable(a *Agent, g *world.Grid) (world.Resource, bool) {
	if a.Full() {
		return 0, false
	}
	cell, ok := g.At(a.Position)
	if !ok {
		return 0, false
	}
	r, ok := cell.Resource()
	if !ok || !a.Capabilities.Has(r) {
		return 0, false
	}
	return r, true
}

// retarget points the hauler at the next cell of its deposit, or clears
// MoreRemains when the deposit is spent.
func retarget(a *Agent, g *world.Grid) {
	next, ok := g.NextInDeposit(a.Target.Coord, a.Target.Resource)
	if !ok {
		a.Target.MoreRemains = false
		return
	}
	a.Target.Coord = next
	a.forgetPath()
}

func goHome(a *Agent, g *world.Grid, rng *rand.Rand, p StepParams) {
	home := g.NearestBase(a.Position)
	if a.Position == home {
		return
	}
	if !travel(a, &home, g, rng) && stalled(a, p) {
		giveUp(a)
		travel(a, nil, g, rng)
	}
}

// travel moves the agent and keeps grid occupancy in sync. LastPos only
// constrains steps toward one destination; a new destination clears it.
func travel(a *Agent, dest *world.Coord, g *world.Grid, rng *rand.Rand) bool {
	if dest != nil && (a.Heading == nil || *a.Heading != *dest) {
		h := *dest
		a.LastPos = nil
		a.Heading = &h
	}
	from := a.Position
	if MoveToward(a, dest, g, rng) {
		g.Relocate(from, a.Position)
		a.Stalled = 0
		return true
	}
	if dest != nil {
		a.Stalled++
	}
	return false
}

func stalled(a *Agent, p StepParams) bool {
	return p.StallLimit > 0 && a.Stalled >= p.StallLimit
}

func giveUp(a *Agent) {
	a.Stalled = 0
	a.forgetPath()
}
