// Simulation owns the shared world state and the per-agent workers that act on it.
package engine

import (
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/world"
)

// Config tunes the orchestrator.
type Config struct {
	Interval    time.Duration // Initial sleep between agent steps
	SpeedStep   time.Duration // Change applied by SpeedUp / SlowDown
	MinInterval time.Duration
	MaxInterval time.Duration
	MaxScouts   int // Live scout cap for auto-explore; 0 = unlimited

	Spawn agents.SpawnConfig
	Step  agents.StepParams
}

// DefaultConfig returns the standard orchestrator settings.
func DefaultConfig() Config {
	return Config{
		Interval:    500 * time.Millisecond,
		SpeedStep:   100 * time.Millisecond,
		MinInterval: 100 * time.Millisecond,
		MaxInterval: 500 * time.Millisecond,
		MaxScouts:   8,
		Spawn:       agents.DefaultSpawnConfig(),
	}
}

// Simulation holds the world, the aggregate counters and the live agents.
// Each mutable part has its own lock; no two are ever held together.
type Simulation struct {
	cfg     Config
	spawner *agents.Spawner

	gridMu sync.RWMutex
	grid   *world.Grid

	totalsMu sync.Mutex
	totals   agents.Bundle

	discoveries *DiscoveryQueue

	registryMu sync.Mutex
	workers    map[agents.AgentID]*worker
	closed     bool

	running     atomic.Bool
	autoExplore atomic.Bool
	nextBase    atomic.Uint64

	speedMu  sync.Mutex
	interval time.Duration

	events eventLog

	steps    atomic.Uint64
	spawned  atomic.Uint64
	retired  atomic.Uint64
	deposits atomic.Uint64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Stats are cumulative counters for the run.
type Stats struct {
	Steps    uint64 `json:"steps"`
	Spawned  uint64 `json:"spawned"`
	Retired  uint64 `json:"retired"`
	Deposits uint64 `json:"deposits"`
	Live     int    `json:"live"`
	Scouts   int    `json:"scouts"`
	Haulers  int    `json:"haulers"`
}

// Snapshot is a read-only view of the simulation at one moment.
type Snapshot struct {
	Grid        world.Snapshot `json:"grid"`
	Agents      []agents.Agent `json:"agents"`
	Totals      agents.Bundle  `json:"totals"`
	Discoveries int            `json:"discoveries"`
	Running     bool           `json:"running"`
	AutoExplore bool           `json:"auto_explore"`
	IntervalMS  int64          `json:"interval_ms"`
	Stats       Stats          `json:"stats"`
}

// NewSimulation wraps a generated grid. The simulation starts paused.
func NewSimulation(g *world.Grid, cfg Config) *Simulation {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Millisecond
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	s := &Simulation{
		cfg:         cfg,
		spawner:     agents.NewSpawner(cfg.Spawn),
		grid:        g,
		discoveries: NewDiscoveryQueue(),
		workers:     make(map[agents.AgentID]*worker),
		done:        make(chan struct{}),
	}
	s.interval = clampDuration(cfg.Interval, cfg.MinInterval, cfg.MaxInterval)
	return s
}

// Spawn places a new agent on a base and starts its worker. Haulers with an
// assignment start at the base nearest their target; everything else cycles
// through the bases. Returns 0 once the simulation has shut down.
func (s *Simulation) Spawn(kind agents.Kind, assignment *agents.Target) agents.AgentID {
	bases := s.grid.Bases()
	pos := bases[int(s.nextBase.Add(1)-1)%len(bases)]
	if kind == agents.KindHauler && assignment != nil {
		pos = s.grid.NearestBase(assignment.Coord)
	}

	a := s.spawner.Spawn(kind, pos, assignment)
	agents.Start(a)

	s.gridMu.Lock()
	s.grid.Occupy(a.Position)
	s.gridMu.Unlock()

	if !s.launch(a, s.spawner.RandFor(a.ID)) {
		s.gridMu.Lock()
		s.grid.Vacate(a.Position)
		s.gridMu.Unlock()
		return 0
	}

	s.spawned.Add(1)
	slog.Info("agent spawned", "agent", a.String(), "x", pos.X, "y", pos.Y)
	s.EmitEvent(Event{
		AgentID:     a.ID,
		Description: a.String() + " deployed",
		Category:    CategorySpawn,
		Meta:        map[string]any{"kind": a.Kind.String(), "x": pos.X, "y": pos.Y},
	})
	return a.ID
}

// launch registers the agent and starts its goroutine.
func (s *Simulation) launch(a *agents.Agent, rng *rand.Rand) bool {
	w := &worker{agent: a, rng: rng, view: a.Clone()}

	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	if s.closed {
		return false
	}
	s.workers[a.ID] = w
	s.wg.Add(1)
	go s.run(w)
	return true
}

// Play lets workers act on their next wake-up.
func (s *Simulation) Play() {
	if !s.running.Swap(true) {
		slog.Info("simulation resumed")
	}
}

// Pause stops all world mutation until Play. Workers keep sleeping.
func (s *Simulation) Pause() {
	if s.running.Swap(false) {
		slog.Info("simulation paused")
	}
}

// Running reports whether the simulation is playing.
func (s *Simulation) Running() bool {
	return s.running.Load()
}

// Interval returns the current sleep between agent steps.
func (s *Simulation) Interval() time.Duration {
	s.speedMu.Lock()
	defer s.speedMu.Unlock()
	return s.interval
}

// SetSpeed shifts the interval by delta, clamped to the configured bounds,
// and returns the new interval.
func (s *Simulation) SetSpeed(delta time.Duration) time.Duration {
	s.speedMu.Lock()
	defer s.speedMu.Unlock()
	s.interval = clampDuration(s.interval+delta, s.cfg.MinInterval, s.cfg.MaxInterval)
	return s.interval
}

// SpeedUp shortens the interval by one step.
func (s *Simulation) SpeedUp() time.Duration {
	return s.SetSpeed(-s.cfg.SpeedStep)
}

// SlowDown lengthens the interval by one step.
func (s *Simulation) SlowDown() time.Duration {
	return s.SetSpeed(s.cfg.SpeedStep)
}

// SetAutoExplore toggles periodic scout deployment.
func (s *Simulation) SetAutoExplore(on bool) {
	s.autoExplore.Store(on)
}

// AutoExplore reports whether periodic scout deployment is on.
func (s *Simulation) AutoExplore() bool {
	return s.autoExplore.Load()
}

// AutoExploreBeat deploys one scout when auto-explore is on, the simulation
// is running, and the live scout count is below the cap.
func (s *Simulation) AutoExploreBeat() (agents.AgentID, bool) {
	if !s.AutoExplore() || !s.Running() {
		return 0, false
	}
	if s.cfg.MaxScouts > 0 && s.Stats().Scouts >= s.cfg.MaxScouts {
		return 0, false
	}
	id := s.Spawn(agents.KindScout, nil)
	return id, id != 0
}

// Size returns the grid dimensions, fixed at construction.
func (s *Simulation) Size() (width, height int) {
	return s.grid.Width, s.grid.Height
}

// Totals returns the cumulative delivered resources.
func (s *Simulation) Totals() agents.Bundle {
	s.totalsMu.Lock()
	defer s.totalsMu.Unlock()
	return s.totals
}

// Discoveries returns the discovery queue in claim order.
func (s *Simulation) Discoveries() []agents.Discovery {
	return s.discoveries.Entries()
}

// LiveAgents returns the last published view of every live agent, by ID.
func (s *Simulation) LiveAgents() []agents.Agent {
	s.registryMu.Lock()
	out := make([]agents.Agent, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.view.Clone())
	}
	s.registryMu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns run counters and the live population.
func (s *Simulation) Stats() Stats {
	st := Stats{
		Steps:    s.steps.Load(),
		Spawned:  s.spawned.Load(),
		Retired:  s.retired.Load(),
		Deposits: s.deposits.Load(),
	}
	s.registryMu.Lock()
	for _, w := range s.workers {
		st.Live++
		if w.view.Kind == agents.KindScout {
			st.Scouts++
		} else {
			st.Haulers++
		}
	}
	s.registryMu.Unlock()
	return st
}

// Snapshot copies the current state for presentation.
func (s *Simulation) Snapshot() Snapshot {
	s.gridMu.RLock()
	g := s.grid.Snapshot()
	s.gridMu.RUnlock()

	return Snapshot{
		Grid:        g,
		Agents:      s.LiveAgents(),
		Totals:      s.Totals(),
		Discoveries: s.discoveries.Len(),
		Running:     s.Running(),
		AutoExplore: s.AutoExplore(),
		IntervalMS:  s.Interval().Milliseconds(),
		Stats:       s.Stats(),
	}
}

// Shutdown stops every worker and waits for them to exit. Agents are not
// retired, so occupancy and the registry keep their final state.
func (s *Simulation) Shutdown() {
	s.stopOnce.Do(func() {
		s.registryMu.Lock()
		s.closed = true
		s.registryMu.Unlock()

		s.running.Store(false)
		close(s.done)
		s.wg.Wait()
		slog.Info("simulation shut down", "steps", s.steps.Load(), "spawned", s.spawned.Load())
	})
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
