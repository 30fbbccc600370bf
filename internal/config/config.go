// Package config loads run settings from YAML, layered over defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/engine"
	"github.com/talgya/ereea/internal/world"
)

// AdminKeyEnv overrides api.admin_key when set.
const AdminKeyEnv = "EREEA_ADMIN_KEY"

type Config struct {
	World WorldConfig `yaml:"world"`
	Sim   SimConfig   `yaml:"sim"`
	API   APIConfig   `yaml:"api"`
	Data  DataConfig  `yaml:"data"`
}

type WorldConfig struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	Seed        int64   `yaml:"seed"`
	Scale       float64 `yaml:"scale"`
	Octaves     int     `yaml:"octaves"`
	Bases       int     `yaml:"bases"`
	ClearRadius int     `yaml:"clear_radius"`
}

type SimConfig struct {
	TickMS         int  `yaml:"tick_ms"`
	TickStepMS     int  `yaml:"tick_step_ms"`
	MinTickMS      int  `yaml:"min_tick_ms"`
	MaxTickMS      int  `yaml:"max_tick_ms"`
	ScoutCapacity  int  `yaml:"scout_capacity"`
	HaulerCapacity int  `yaml:"hauler_capacity"`
	SensorRadius   int  `yaml:"sensor_radius"`
	StallLimit     int  `yaml:"stall_limit"`
	InitialScouts  int  `yaml:"initial_scouts"`
	AutoExplore    bool `yaml:"auto_explore"`
	MaxScouts      int  `yaml:"max_scouts"`
	Autoplay       bool `yaml:"autoplay"`
	HeartbeatMS    int  `yaml:"heartbeat_ms"`
	ReportEvery    int  `yaml:"report_every"`
}

type APIConfig struct {
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"admin_key"`
	StreamMS int    `yaml:"stream_ms"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the built-in settings.
func Default() Config {
	gen := world.DefaultGenConfig()
	return Config{
		World: WorldConfig{
			Width:       gen.Width,
			Height:      gen.Height,
			Seed:        gen.Seed,
			Scale:       gen.Scale,
			Octaves:     gen.Octaves,
			Bases:       gen.BaseCount,
			ClearRadius: gen.ClearRadius,
		},
		Sim: SimConfig{
			TickMS:         500,
			TickStepMS:     100,
			MinTickMS:      100,
			MaxTickMS:      500,
			ScoutCapacity:  0,
			HaulerCapacity: 3,
			SensorRadius:   0,
			StallLimit:     0,
			InitialScouts:  1,
			AutoExplore:    false,
			MaxScouts:      8,
			Autoplay:       true,
			HeartbeatMS:    1000,
			ReportEvery:    30,
		},
		API: APIConfig{
			Port:     8080,
			StreamMS: 500,
		},
		Data: DataConfig{Dir: "data"},
	}
}

// Load reads path over Default and applies env overrides. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if v := os.Getenv(AdminKeyEnv); v != "" {
		cfg.API.AdminKey = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the simulation cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.World.Width < 1 || c.World.Height < 1 {
		errs = append(errs, fmt.Errorf("world: size %dx%d must be positive", c.World.Width, c.World.Height))
	}
	if c.World.Bases < 1 || c.World.Bases > 4 {
		errs = append(errs, fmt.Errorf("world: bases %d out of range 1..4", c.World.Bases))
	}
	if c.Sim.MinTickMS < 1 || c.Sim.MaxTickMS < c.Sim.MinTickMS {
		errs = append(errs, fmt.Errorf("sim: tick bounds %d..%d invalid", c.Sim.MinTickMS, c.Sim.MaxTickMS))
	}
	if c.Sim.HaulerCapacity < 1 {
		errs = append(errs, fmt.Errorf("sim: hauler_capacity %d must be at least 1", c.Sim.HaulerCapacity))
	}
	if c.Sim.ScoutCapacity < 0 {
		errs = append(errs, errors.New("sim: scout_capacity must not be negative"))
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"stall_limit", c.Sim.StallLimit},
		{"sensor_radius", c.Sim.SensorRadius},
		{"tick_step_ms", c.Sim.TickStepMS},
		{"initial_scouts", c.Sim.InitialScouts},
		{"max_scouts", c.Sim.MaxScouts},
		{"heartbeat_ms", c.Sim.HeartbeatMS},
		{"report_every", c.Sim.ReportEvery},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("sim: %s must not be negative", f.name))
		}
	}
	if c.API.StreamMS < 0 {
		errs = append(errs, errors.New("api: stream_ms must not be negative"))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api: port %d out of range", c.API.Port))
	}
	return errors.Join(errs...)
}

// GenConfig converts the world section.
func (c Config) GenConfig() world.GenConfig {
	return world.GenConfig{
		Width:       c.World.Width,
		Height:      c.World.Height,
		Seed:        c.World.Seed,
		Scale:       c.World.Scale,
		Octaves:     c.World.Octaves,
		BaseCount:   c.World.Bases,
		ClearRadius: c.World.ClearRadius,
	}
}

// EngineConfig converts the sim section.
func (c Config) EngineConfig() engine.Config {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }

	spawn := agents.DefaultSpawnConfig()
	spawn.Seed = c.World.Seed
	spawn.ScoutCapacity = uint32(c.Sim.ScoutCapacity)
	spawn.HaulerCapacity = uint32(c.Sim.HaulerCapacity)

	return engine.Config{
		Interval:    ms(c.Sim.TickMS),
		SpeedStep:   ms(c.Sim.TickStepMS),
		MinInterval: ms(c.Sim.MinTickMS),
		MaxInterval: ms(c.Sim.MaxTickMS),
		MaxScouts:   c.Sim.MaxScouts,
		Spawn:       spawn,
		Step: agents.StepParams{
			SensorRadius: c.Sim.SensorRadius,
			StallLimit:   c.Sim.StallLimit,
		},
	}
}
