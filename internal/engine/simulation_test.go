package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/world"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Interval = time.Millisecond
	cfg.SpeedStep = time.Millisecond
	cfg.MinInterval = time.Millisecond
	cfg.MaxInterval = 10 * time.Millisecond
	return cfg
}

func newTestSim(t *testing.T, g *world.Grid, cfg Config) *Simulation {
	t.Helper()
	s := NewSimulation(g, cfg)
	t.Cleanup(s.Shutdown)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// place puts an already-built agent on the grid and starts it.
func place(s *Simulation, a *agents.Agent) {
	agents.Start(a)
	s.gridMu.Lock()
	s.grid.Occupy(a.Position)
	s.gridMu.Unlock()
}

func TestDiscoveryQueue_ConcurrentClaims(t *testing.T) {
	q := NewDiscoveryQueue()
	d := agents.Discovery{Coord: world.Coord{X: 3, Y: 3}, Resource: world.ResourceMineral}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Claim(d) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("claims won = %d, want 1", wins.Load())
	}
	if q.Len() != 1 || !q.Contains(d.Coord) {
		t.Fatalf("queue = %v, want one entry", q.Entries())
	}
}

func TestReport_DuplicateDiscoverySpawnsOneHauler(t *testing.T) {
	g := world.NewGrid(6, 6, nil)
	s := newTestSim(t, g, fastConfig())
	d := agents.Discovery{Coord: world.Coord{X: 4, Y: 4}, Resource: world.ResourceEnergy}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		a := s.spawner.Spawn(agents.KindScout, world.Coord{}, nil)
		a.State = agents.StateReporting
		a.Discoveries = []agents.Discovery{d}
		w := &worker{agent: a, view: a.Clone()}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.report(w)
		}()
	}
	wg.Wait()

	live := s.LiveAgents()
	if len(live) != 1 {
		t.Fatalf("live agents = %d, want exactly one hauler", len(live))
	}
	h := live[0]
	if h.Kind != agents.KindHauler || h.Target == nil || h.Target.Coord != d.Coord || !h.Target.MoreRemains {
		t.Fatalf("hauler = %+v, want assignment to %v", h, d.Coord)
	}
	if got := s.Discoveries(); len(got) != 1 {
		t.Fatalf("discoveries = %v", got)
	}
}

func TestReport_DepositAndResume(t *testing.T) {
	g := world.NewGrid(4, 4, nil)
	s := newTestSim(t, g, fastConfig())

	tests := []struct {
		name      string
		more      bool
		wantState agents.State
	}{
		{"deposit remains", true, agents.StateHarvesting},
		{"deposit spent", false, agents.StateIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.Totals()
			a := s.spawner.Spawn(agents.KindHauler, world.Coord{}, &agents.Target{
				Coord: world.Coord{X: 2, Y: 2}, Resource: world.ResourceEnergy, MoreRemains: tt.more,
			})
			a.State = agents.StateReporting
			a.Carried = agents.Bundle{Energy: 2, Mineral: 1}
			w := &worker{agent: a}

			s.report(w)

			after := s.Totals()
			if after.Energy-before.Energy != 2 || after.Mineral-before.Mineral != 1 {
				t.Fatalf("totals moved from %+v to %+v", before, after)
			}
			if !a.Carried.IsEmpty() {
				t.Fatalf("carried = %+v, want empty", a.Carried)
			}
			if a.State != tt.wantState {
				t.Fatalf("state = %s, want %s", a.State, tt.wantState)
			}
		})
	}
}

func TestEndToEnd_HaulerDeliversEnergy(t *testing.T) {
	g := world.Generate(world.SmallTestConfig())
	cell := world.Coord{X: 1, Y: 0}
	g.SetCell(cell, world.CellEnergy)

	cfg := fastConfig()
	cfg.Spawn.HaulerCapacity = 1
	cfg.Spawn.HaulerCapabilities = agents.ModuleDrill
	s := newTestSim(t, g, cfg)

	a := s.spawner.Spawn(agents.KindHauler, cell, nil)
	place(s, a)

	s.gridMu.Lock()
	agents.Step(a, s.grid, s.spawner.RandFor(a.ID), cfg.Step)
	s.gridMu.Unlock()

	if a.State != agents.StateReporting {
		t.Fatalf("state after one step = %s, want reporting", a.State)
	}
	if got, _ := g.At(cell); got != world.CellEmpty {
		t.Fatalf("cell = %s, want Empty", world.CellName(got))
	}

	if !s.launch(a, s.spawner.RandFor(a.ID)) {
		t.Fatalf("launch refused")
	}
	s.Play()

	waitFor(t, "energy delivery", func() bool { return s.Totals().Energy == 1 })
	waitFor(t, "hauler retirement", func() bool { return s.Stats().Retired == 1 })
	if live := s.LiveAgents(); len(live) != 0 {
		t.Fatalf("live agents = %v, want none", live)
	}
}

func TestEndToEnd_ScoutDiscoveryBecomesDelivery(t *testing.T) {
	g := world.NewGrid(6, 1, []world.Coord{{X: 0, Y: 0}})
	g.SetCell(world.Coord{X: 4, Y: 0}, world.CellScience)
	s := newTestSim(t, g, fastConfig())

	s.Play()
	if id := s.Spawn(agents.KindScout, nil); id == 0 {
		t.Fatalf("spawn refused")
	}

	waitFor(t, "science delivery", func() bool { return s.Totals().Science == 1 })
	if got := s.Discoveries(); len(got) != 1 || got[0].Coord != (world.Coord{X: 4, Y: 0}) {
		t.Fatalf("discoveries = %v", got)
	}
	waitFor(t, "all agents retired", func() bool { return s.Stats().Live == 0 })
	if st := s.Stats(); st.Spawned != 2 || st.Retired != 2 {
		t.Fatalf("stats = %+v, want one scout and one hauler", st)
	}
}

func TestPause_NoWorldMutation(t *testing.T) {
	g := world.NewGrid(4, 4, nil)
	pos := world.Coord{X: 2, Y: 2}
	g.SetCell(pos, world.CellMineral)
	s := newTestSim(t, g, fastConfig())

	a := s.spawner.Spawn(agents.KindHauler, pos, nil)
	place(s, a)
	s.launch(a, s.spawner.RandFor(a.ID))

	time.Sleep(30 * time.Millisecond)
	if s.Stats().Steps != 0 {
		t.Fatalf("paused simulation stepped %d times", s.Stats().Steps)
	}
	if s.Snapshot().Grid.At(pos) != world.CellMineral {
		t.Fatalf("paused simulation mutated the grid")
	}

	s.Play()
	waitFor(t, "harvest after play", func() bool { return s.Snapshot().Grid.At(pos) == world.CellEmpty })
}

func TestPause_HoldsReportAtBase(t *testing.T) {
	g := world.NewGrid(4, 4, nil)
	s := newTestSim(t, g, fastConfig())

	a := s.spawner.Spawn(agents.KindHauler, world.Coord{}, nil)
	a.State = agents.StateReporting
	a.Carried.Energy = 2
	place(s, a)
	s.launch(a, s.spawner.RandFor(a.ID))

	time.Sleep(30 * time.Millisecond)
	if got := s.Totals(); !got.IsEmpty() {
		t.Fatalf("paused simulation deposited %+v", got)
	}

	s.Play()
	waitFor(t, "deposit after play", func() bool { return s.Totals().Energy == 2 })
	waitFor(t, "hauler retirement", func() bool { return s.Stats().Retired == 1 })
}

func TestSpeed_Clamped(t *testing.T) {
	s := newTestSim(t, world.NewGrid(2, 2, nil), DefaultConfig())

	if got := s.Interval(); got != 500*time.Millisecond {
		t.Fatalf("initial interval = %v", got)
	}
	if got := s.SlowDown(); got != 500*time.Millisecond {
		t.Fatalf("slow down past max = %v", got)
	}
	for i := 0; i < 10; i++ {
		s.SpeedUp()
	}
	if got := s.Interval(); got != 100*time.Millisecond {
		t.Fatalf("speed up past min = %v", got)
	}
	if got := s.SetSpeed(250 * time.Millisecond); got != 350*time.Millisecond {
		t.Fatalf("SetSpeed(+250ms) = %v", got)
	}
}

func TestAutoExploreBeat_RespectsCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval, cfg.MinInterval, cfg.MaxInterval = time.Hour, time.Hour, time.Hour
	cfg.MaxScouts = 1
	s := newTestSim(t, world.NewGrid(5, 5, nil), cfg)

	if _, ok := s.AutoExploreBeat(); ok {
		t.Fatalf("auto-explore off must not deploy")
	}
	s.SetAutoExplore(true)
	if _, ok := s.AutoExploreBeat(); ok {
		t.Fatalf("paused simulation must not deploy")
	}
	s.Play()
	if _, ok := s.AutoExploreBeat(); !ok {
		t.Fatalf("expected a scout")
	}
	if _, ok := s.AutoExploreBeat(); ok {
		t.Fatalf("scout cap exceeded")
	}
}

func TestShutdown_RefusesSpawn(t *testing.T) {
	s := NewSimulation(world.NewGrid(3, 3, nil), fastConfig())
	s.Play()
	s.Spawn(agents.KindScout, nil)
	s.Shutdown()

	if id := s.Spawn(agents.KindScout, nil); id != 0 {
		t.Fatalf("spawn after shutdown = %d, want 0", id)
	}
	if s.Running() {
		t.Fatalf("shutdown must stop the simulation")
	}
	s.Shutdown()
}

func TestEvents_RecentAndDrain(t *testing.T) {
	s := newTestSim(t, world.NewGrid(2, 2, nil), fastConfig())
	for i := 0; i < 5; i++ {
		s.EmitEvent(Event{Description: "ping", Category: CategoryControl})
	}

	if got := s.RecentEvents(3); len(got) != 3 {
		t.Fatalf("recent = %d, want 3", len(got))
	}
	if got := s.DrainEvents(); len(got) != 5 {
		t.Fatalf("drained = %d, want 5", len(got))
	}
	if got := s.DrainEvents(); len(got) != 0 {
		t.Fatalf("second drain = %d, want 0", len(got))
	}
	if got := s.RecentEvents(0); len(got) != 5 {
		t.Fatalf("recent window lost events after drain")
	}
}

func TestHeartbeat_FiresCallbacks(t *testing.T) {
	h := NewHeartbeat(time.Millisecond)
	h.ReportEvery = 2

	var beats, reports atomic.Int32
	h.OnBeat = func(uint64) { beats.Add(1) }
	h.OnReport = func(uint64) { reports.Add(1) }

	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	waitFor(t, "two reports", func() bool { return reports.Load() >= 2 })
	h.Stop()
	h.Stop()
	<-done

	if beats.Load() < 4 {
		t.Fatalf("beats = %d, want at least 4", beats.Load())
	}
}
