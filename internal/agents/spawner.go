// Agent spawning: issues IDs and equips new scouts and haulers.
package agents

import (
	"math/rand"
	"sync"

	"github.com/talgya/ereea/internal/world"
)

// Equipment modules, expressed as the resource categories they handle.
var (
	ModuleDrill        = world.SetOf(world.ResourceEnergy, world.ResourceMineral) // Extracts energy and minerals
	ModuleSampler      = world.SetOf(world.ResourceScience)                       // Collects science samples
	ModuleSpectrometer = world.AllResources                                       // Detects every category
)

// SpawnConfig controls how new agents are equipped.
type SpawnConfig struct {
	Seed               int64
	ScoutCapacity      uint32
	HaulerCapacity     uint32
	ScoutCapabilities  world.ResourceSet
	HaulerCapabilities world.ResourceSet
}

// DefaultSpawnConfig returns the standard loadout.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		Seed:               42,
		ScoutCapacity:      0,
		HaulerCapacity:     3,
		ScoutCapabilities:  ModuleSpectrometer,
		HaulerCapabilities: ModuleDrill | ModuleSampler,
	}
}

// Spawner creates agents for the simulation. Safe for concurrent use.
type Spawner struct {
	cfg SpawnConfig

	mu     sync.Mutex
	nextID AgentID
}

// NewSpawner creates an agent spawner.
func NewSpawner(cfg SpawnConfig) *Spawner {
	return &Spawner{
		cfg:    cfg,
		nextID: 1,
	}
}

// Spawn creates an Idle agent at pos. Haulers may carry an assignment.
func (s *Spawner) Spawn(kind Kind, pos world.Coord, target *Target) *Agent {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	a := &Agent{
		ID:       id,
		Kind:     kind,
		State:    StateIdle,
		Position: pos,
	}
	switch kind {
	case KindScout:
		a.Capabilities = s.cfg.ScoutCapabilities
		a.Capacity = s.cfg.ScoutCapacity
	case KindHauler:
		a.Capabilities = s.cfg.HaulerCapabilities
		a.Capacity = s.cfg.HaulerCapacity
		if target != nil {
			t := *target
			a.Target = &t
		}
	}
	return a
}

// RandFor returns a private random source for one agent's worker.
func (s *Spawner) RandFor(id AgentID) *rand.Rand {
	return rand.New(rand.NewSource(s.cfg.Seed + 300 + int64(id)))
}
