package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/world"
)

// worker is one agent's goroutine. agent and rng belong to the goroutine;
// view is the copy other goroutines read, guarded by registryMu.
type worker struct {
	agent *agents.Agent
	rng   *rand.Rand
	view  agents.Agent
}

// run is the agent's life: report at base, retire when idle, otherwise step,
// then sleep. A paused simulation neither steps nor reports.
func (s *Simulation) run(w *worker) {
	defer s.wg.Done()

	for {
		// Reports wait for play as well, so a paused simulation leaves
		// totals and discoveries untouched.
		if s.running.Load() {
			if agents.ReadyToReport(w.agent, s.grid) {
				s.report(w)
			}
			if w.agent.Terminal() {
				s.retire(w)
				return
			}
			s.step(w)
		}
		if !s.sleep() {
			return
		}
	}
}

// step advances the agent once under the grid write lock.
func (s *Simulation) step(w *worker) {
	s.gridMu.Lock()
	descs := agents.Step(w.agent, s.grid, w.rng, s.cfg.Step)
	s.gridMu.Unlock()

	s.steps.Add(1)
	s.publish(w)

	for _, d := range descs {
		slog.Debug(d, "agent", w.agent.String())
		s.EmitEvent(Event{AgentID: w.agent.ID, Description: d, Category: CategoryAgent})
	}
}

// report hands results back at a base. Scouts turn discoveries into hauler
// assignments; haulers add their load to the totals.
func (s *Simulation) report(w *worker) {
	a := w.agent

	switch a.Kind {
	case agents.KindScout:
		for _, d := range a.Discoveries {
			s.discover(a, d)
		}
		s.gridMu.Lock()
		s.grid.MarkExploredRadius(a.Position, s.cfg.Step.SensorRadius)
		s.gridMu.Unlock()
		a.Discoveries = nil
		a.SetState(agents.StateIdle)

	case agents.KindHauler:
		load := a.Carried
		if !load.IsEmpty() {
			s.totalsMu.Lock()
			s.totals.Add(load)
			s.totalsMu.Unlock()

			s.deposits.Add(1)
			slog.Info("deposit", "agent", a.String(),
				"energy", load.Energy, "mineral", load.Mineral, "science", load.Science)
			s.EmitEvent(Event{
				AgentID:     a.ID,
				Description: fmt.Sprintf("%s delivers %d units", a, load.Total()),
				Category:    CategoryDeposit,
				Meta: map[string]any{
					"energy": load.Energy, "mineral": load.Mineral, "science": load.Science,
				},
			})
		}
		a.Carried.Clear()
		if a.Target != nil && a.Target.MoreRemains {
			a.SetState(agents.StateHarvesting)
		} else {
			a.SetState(agents.StateIdle)
		}
	}

	s.publish(w)
}

// discover runs the discovery protocol for one reported resource. Only the
// first report of a coordinate spawns a hauler.
func (s *Simulation) discover(scout *agents.Agent, d agents.Discovery) {
	if !s.discoveries.Claim(d) {
		slog.Debug("duplicate discovery", "agent", scout.String(), "x", d.Coord.X, "y", d.Coord.Y)
		return
	}

	id := s.Spawn(agents.KindHauler, &agents.Target{Coord: d.Coord, Resource: d.Resource, MoreRemains: true})
	slog.Info("discovery", "agent", scout.String(), "resource", world.ResourceName(d.Resource),
		"x", d.Coord.X, "y", d.Coord.Y, "hauler", uint64(id))
	s.EmitEvent(Event{
		AgentID:     scout.ID,
		Description: fmt.Sprintf("%s reports %s at (%d,%d)", scout, world.ResourceName(d.Resource), d.Coord.X, d.Coord.Y),
		Category:    CategoryDiscovery,
		Meta:        map[string]any{"x": d.Coord.X, "y": d.Coord.Y, "hauler": uint64(id)},
	})
}

// retire releases the agent's cell and removes it from the registry.
func (s *Simulation) retire(w *worker) {
	a := w.agent

	s.gridMu.Lock()
	s.grid.Vacate(a.Position)
	s.gridMu.Unlock()

	s.registryMu.Lock()
	delete(s.workers, a.ID)
	s.registryMu.Unlock()

	s.retired.Add(1)
	slog.Info("agent retired", "agent", a.String())
	s.EmitEvent(Event{AgentID: a.ID, Description: a.String() + " retired", Category: CategoryRetire})
}

// publish refreshes the agent view other goroutines read.
func (s *Simulation) publish(w *worker) {
	view := w.agent.Clone()
	s.registryMu.Lock()
	w.view = view
	s.registryMu.Unlock()
}

// sleep waits one interval. It returns false when the simulation shuts down.
func (s *Simulation) sleep() bool {
	t := time.NewTimer(s.Interval())
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-s.done:
		return false
	}
}
