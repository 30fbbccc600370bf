package agents

import (
	"math/rand"
	"testing"

	"github.com/talgya/ereea/internal/world"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func placeAgent(g *world.Grid, a *Agent) *Agent {
	g.Occupy(a.Position)
	Start(a)
	return a
}

func newHauler(pos world.Coord, caps world.ResourceSet, capacity uint32) *Agent {
	return &Agent{ID: 1, Kind: KindHauler, Position: pos, Capabilities: caps, Capacity: capacity}
}

func newScout(pos world.Coord) *Agent {
	return &Agent{ID: 2, Kind: KindScout, Position: pos, Capabilities: ModuleSpectrometer}
}

func TestStart_EntersWorkingState(t *testing.T) {
	s := newScout(world.Coord{})
	Start(s)
	if s.State != StateExploring {
		t.Fatalf("scout state = %s, want exploring", s.State)
	}
	h := newHauler(world.Coord{}, ModuleDrill, 1)
	Start(h)
	if h.State != StateHarvesting {
		t.Fatalf("hauler state = %s, want harvesting", h.State)
	}
	h.State = StateReporting
	Start(h)
	if h.State != StateReporting {
		t.Fatalf("Start must only leave Idle")
	}
}

func TestHauler_CollectsAndReportsWhenFull(t *testing.T) {
	g := world.NewGrid(5, 5, []world.Coord{{X: 0, Y: 0}})
	pos := world.Coord{X: 3, Y: 3}
	g.SetCell(pos, world.CellEnergy)
	a := placeAgent(g, newHauler(pos, ModuleDrill, 1))

	events := Step(a, g, newTestRand(), StepParams{})

	if a.Carried.Energy != 1 {
		t.Fatalf("energy = %d, want 1", a.Carried.Energy)
	}
	if cell, _ := g.At(pos); cell != world.CellEmpty {
		t.Fatalf("cell = %s, want Empty", world.CellName(cell))
	}
	if a.State != StateReporting {
		t.Fatalf("state = %s, want reporting", a.State)
	}
	if len(events) == 0 {
		t.Fatalf("expected extraction events")
	}
}

func TestHauler_NoCapabilityNeverCollects(t *testing.T) {
	// Hauler boxed in on an energy cell so it cannot wander off.
	g := world.NewGrid(3, 3, []world.Coord{{X: 0, Y: 0}})
	pos := world.Coord{X: 1, Y: 1}
	g.SetCell(pos, world.CellEnergy)
	for _, n := range pos.Neighbors() {
		g.SetCell(n, world.CellObstacle)
	}
	a := placeAgent(g, newHauler(pos, 0, 5))

	rng := newTestRand()
	for i := 0; i < 5; i++ {
		Step(a, g, rng, StepParams{})
	}

	if !a.Carried.IsEmpty() {
		t.Fatalf("carried = %+v, want empty", a.Carried)
	}
	if cell, _ := g.At(pos); cell != world.CellEnergy {
		t.Fatalf("cell = %s, want Energy", world.CellName(cell))
	}
	if a.State != StateHarvesting {
		t.Fatalf("state = %s, want harvesting", a.State)
	}
}

func TestHauler_CapabilityGatesCategory(t *testing.T) {
	g := world.NewGrid(3, 1, []world.Coord{{X: 0, Y: 0}})
	pos := world.Coord{X: 2, Y: 0}
	g.SetCell(pos, world.CellScience)
	g.SetCell(world.Coord{X: 1, Y: 0}, world.CellObstacle)
	a := placeAgent(g, newHauler(pos, ModuleDrill, 2))

	Step(a, g, newTestRand(), StepParams{})

	if a.Carried.Science != 0 {
		t.Fatalf("drill-only hauler collected science")
	}
	if cell, _ := g.At(pos); cell != world.CellScience {
		t.Fatalf("cell changed to %s", world.CellName(cell))
	}
}

func TestHauler_CapacityNeverExceeded(t *testing.T) {
	g := world.NewGrid(8, 1, []world.Coord{{X: 0, Y: 0}})
	for x := 1; x < 8; x++ {
		g.SetCell(world.Coord{X: x, Y: 0}, world.CellMineral)
	}
	a := placeAgent(g, newHauler(world.Coord{X: 7, Y: 0}, ModuleDrill, 3))
	a.Target = &Target{Coord: a.Position, Resource: world.ResourceMineral, MoreRemains: true}

	rng := newTestRand()
	for i := 0; i < 40; i++ {
		Step(a, g, rng, StepParams{})
		if a.Carried.Total() > a.Capacity {
			t.Fatalf("tick %d: carried %d exceeds capacity %d", i, a.Carried.Total(), a.Capacity)
		}
	}
	if a.Carried.Total() != 3 {
		t.Fatalf("carried = %d, want 3", a.Carried.Total())
	}
	if a.State != StateReporting {
		t.Fatalf("state = %s, want reporting", a.State)
	}
	if a.Target == nil || !a.Target.MoreRemains {
		t.Fatalf("deposit should still have material: %+v", a.Target)
	}
}

func TestHauler_ExhaustedTargetReports(t *testing.T) {
	g := world.NewGrid(6, 1, []world.Coord{{X: 0, Y: 0}})
	a := placeAgent(g, newHauler(world.Coord{X: 2, Y: 0}, ModuleDrill, 3))
	a.Target = &Target{Coord: world.Coord{X: 3, Y: 0}, Resource: world.ResourceEnergy, MoreRemains: true}

	rng := newTestRand()
	Step(a, g, rng, StepParams{})
	if a.Position != (world.Coord{X: 3, Y: 0}) {
		t.Fatalf("position = %v, want target", a.Position)
	}
	Step(a, g, rng, StepParams{})
	if a.State != StateReporting || a.Target.MoreRemains {
		t.Fatalf("state = %s more=%v, want reporting with nothing left", a.State, a.Target.MoreRemains)
	}
}

// stepUntilReady steps a until it may report at a base, failing after limit
// steps.
func stepUntilReady(t *testing.T, a *Agent, g *world.Grid, limit int) {
	t.Helper()
	rng := newTestRand()
	for i := 0; i < limit; i++ {
		if ReadyToReport(a, g) {
			return
		}
		Step(a, g, rng, StepParams{})
	}
	if !ReadyToReport(a, g) {
		t.Fatalf("%s state=%s pos=%v lastPos=%v: not back at base after %d steps",
			a, a.State, a.Position, a.LastPos, limit)
	}
}

func TestHauler_ReturnsToBase(t *testing.T) {
	g := world.NewGrid(5, 5, []world.Coord{{X: 0, Y: 0}})
	a := placeAgent(g, newHauler(world.Coord{X: 4, Y: 4}, ModuleDrill, 1))
	a.State = StateReporting
	a.Carried.Energy = 1

	stepUntilReady(t, a, g, 8)
}

func TestHauler_FullAtDeadEndTurnsBack(t *testing.T) {
	// One-wide strip: the way home is the cell the hauler arrived from.
	g := world.NewGrid(5, 1, []world.Coord{{X: 0, Y: 0}})
	deposit := world.Coord{X: 4, Y: 0}
	g.SetCell(deposit, world.CellEnergy)
	a := placeAgent(g, newHauler(world.Coord{X: 0, Y: 0}, ModuleDrill, 1))
	a.Target = &Target{Coord: deposit, Resource: world.ResourceEnergy, MoreRemains: true}

	stepUntilReady(t, a, g, 50)
	if a.Carried.Energy != 1 {
		t.Fatalf("carried = %+v, want one energy", a.Carried)
	}
}

func TestHauler_RetargetBehindItTurnsBack(t *testing.T) {
	// The next deposit cell hangs off the corridor the hauler walked in by.
	//
	//	B . . . E
	//	# # E # #
	g := world.NewGrid(5, 2, []world.Coord{{X: 0, Y: 0}})
	for _, x := range []int{0, 1, 3, 4} {
		g.SetCell(world.Coord{X: x, Y: 1}, world.CellObstacle)
	}
	g.SetCell(world.Coord{X: 4, Y: 0}, world.CellEnergy)
	g.SetCell(world.Coord{X: 2, Y: 1}, world.CellEnergy)
	a := placeAgent(g, newHauler(world.Coord{X: 0, Y: 0}, ModuleDrill, 3))
	a.Target = &Target{Coord: world.Coord{X: 4, Y: 0}, Resource: world.ResourceEnergy, MoreRemains: true}

	stepUntilReady(t, a, g, 50)
	if a.Carried.Energy != 2 {
		t.Fatalf("carried = %+v, want both energy cells", a.Carried)
	}
	if a.Target.MoreRemains {
		t.Fatalf("deposit should be spent")
	}
}

func TestHauler_ResumesFromCornerBase(t *testing.T) {
	// Back at base after a delivery, the only way out is the cell it came from.
	g := world.NewGrid(4, 1, []world.Coord{{X: 0, Y: 0}})
	target := world.Coord{X: 3, Y: 0}
	g.SetCell(target, world.CellMineral)
	a := placeAgent(g, newHauler(world.Coord{X: 0, Y: 0}, ModuleDrill, 1))
	prev := world.Coord{X: 1, Y: 0}
	a.LastPos = &prev
	a.State = StateReporting
	a.Target = &Target{Coord: target, Resource: world.ResourceMineral, MoreRemains: true}

	a.SetState(StateHarvesting)
	Step(a, g, newTestRand(), StepParams{})
	if a.Position != prev {
		t.Fatalf("position = %v, want %v", a.Position, prev)
	}
}

func TestSetState_ForgetsLastPosOnChange(t *testing.T) {
	a := newScout(world.Coord{X: 1, Y: 0})
	prev := world.Coord{X: 0, Y: 0}
	a.State = StateExploring
	a.LastPos = &prev

	a.SetState(StateExploring)
	if a.LastPos == nil {
		t.Fatalf("same state must keep LastPos")
	}
	a.SetState(StateReporting)
	if a.LastPos != nil || a.Heading != nil {
		t.Fatalf("new state kept lastPos=%v heading=%v", a.LastPos, a.Heading)
	}
}

func TestScout_RecordsDiscoveryAndReports(t *testing.T) {
	g := world.NewGrid(4, 1, []world.Coord{{X: 0, Y: 0}})
	g.SetCell(world.Coord{X: 2, Y: 0}, world.CellScience)
	a := placeAgent(g, newScout(world.Coord{X: 0, Y: 0}))

	rng := newTestRand()
	for i := 0; i < 3 && a.State == StateExploring; i++ {
		Step(a, g, rng, StepParams{})
	}

	if a.State != StateReporting {
		t.Fatalf("state = %s, want reporting", a.State)
	}
	if len(a.Discoveries) != 1 {
		t.Fatalf("discoveries = %v, want one", a.Discoveries)
	}
	d := a.Discoveries[0]
	if d.Coord != (world.Coord{X: 2, Y: 0}) || d.Resource != world.ResourceScience {
		t.Fatalf("discovery = %+v", d)
	}
	if cell, _ := g.At(d.Coord); cell != world.CellScience {
		t.Fatalf("scout must not collect, cell = %s", world.CellName(cell))
	}

	// Home lies back the way the scout came.
	stepUntilReady(t, a, g, 20)
	if len(a.Discoveries) != 1 {
		t.Fatalf("discoveries changed on the way home: %v", a.Discoveries)
	}
}

func TestScout_IgnoresUndetectableResources(t *testing.T) {
	g := world.NewGrid(3, 1, []world.Coord{{X: 0, Y: 0}})
	g.SetCell(world.Coord{X: 1, Y: 0}, world.CellEnergy)
	a := newScout(world.Coord{X: 0, Y: 0})
	a.Capabilities = ModuleSampler
	placeAgent(g, a)

	rng := newTestRand()
	for i := 0; i < 6; i++ {
		Step(a, g, rng, StepParams{})
	}
	if len(a.Discoveries) != 0 {
		t.Fatalf("science-only scout reported %v", a.Discoveries)
	}
}

func TestScout_FullyExploredGoesHome(t *testing.T) {
	g := world.NewGrid(3, 3, []world.Coord{{X: 0, Y: 0}})
	g.MarkExploredRadius(world.Coord{X: 1, Y: 1}, 1)
	a := placeAgent(g, newScout(world.Coord{X: 2, Y: 2}))

	Step(a, g, newTestRand(), StepParams{})
	if a.State != StateReporting {
		t.Fatalf("state = %s, want reporting", a.State)
	}
}

func TestScout_StallLimitAbandonsUnreachableTarget(t *testing.T) {
	// The only unexplored cell sits behind an agent that never moves.
	g := world.NewGrid(3, 1, []world.Coord{{X: 0, Y: 0}})
	g.MarkExploredRadius(world.Coord{X: 0, Y: 0}, 1)
	g.Occupy(world.Coord{X: 1, Y: 0})
	g.SetCell(world.Coord{X: 2, Y: 0}, world.CellEmpty)
	a := placeAgent(g, newScout(world.Coord{X: 0, Y: 0}))

	rng := newTestRand()
	for i := 0; i < 3; i++ {
		Step(a, g, rng, StepParams{StallLimit: 2})
	}
	if !g.Explored(world.Coord{X: 2, Y: 0}) {
		t.Fatalf("abandoned target should be marked explored")
	}
	if a.State != StateReporting {
		t.Fatalf("state = %s, want reporting once nothing is left", a.State)
	}
}

func TestSpawner_UniqueIDsAndLoadout(t *testing.T) {
	s := NewSpawner(DefaultSpawnConfig())
	target := &Target{Coord: world.Coord{X: 3, Y: 4}, Resource: world.ResourceEnergy, MoreRemains: true}

	scout := s.Spawn(KindScout, world.Coord{}, nil)
	hauler := s.Spawn(KindHauler, world.Coord{}, target)

	if scout.ID == hauler.ID {
		t.Fatalf("duplicate id %d", scout.ID)
	}
	if scout.State != StateIdle || hauler.State != StateIdle {
		t.Fatalf("spawned agents must start idle")
	}
	if hauler.Capacity != 3 || !hauler.Capabilities.Has(world.ResourceEnergy) {
		t.Fatalf("unexpected hauler loadout %+v", hauler)
	}
	target.MoreRemains = false
	if !hauler.Target.MoreRemains {
		t.Fatalf("hauler target must be a private copy")
	}
	if scout.Target != nil {
		t.Fatalf("scouts never carry an assignment")
	}
}
