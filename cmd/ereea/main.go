// Command ereea runs the swarm exploration simulation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/api"
	"github.com/talgya/ereea/internal/config"
	"github.com/talgya/ereea/internal/engine"
	"github.com/talgya/ereea/internal/persistence"
	"github.com/talgya/ereea/internal/world"
)

func main() {
	parser := argparse.NewParser("ereea", "Swarm exploration simulation")
	configPath := parser.String("c", "config", &argparse.Options{Help: "YAML config file"})
	seedFlag := parser.String("s", "seed", &argparse.Options{Help: "Map seed, overrides the config"})
	portFlag := parser.Int("p", "port", &argparse.Options{Default: -1, Help: "HTTP port, 0 disables the API"})
	dataFlag := parser.String("d", "data", &argparse.Options{Help: "Directory for the journal and exports"})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Log every agent step"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(2)
	}

	setupLogging(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *seedFlag != "" {
		seed, err := strconv.ParseInt(*seedFlag, 10, 64)
		if err != nil {
			slog.Error("invalid seed", "seed", *seedFlag, "error", err)
			os.Exit(1)
		}
		cfg.World.Seed = seed
	}
	if *portFlag >= 0 {
		cfg.API.Port = *portFlag
	}
	if *dataFlag != "" {
		cfg.Data.Dir = *dataFlag
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// ── Journal ───────────────────────────────────────────────────────
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		slog.Error("failed to create data dir", "dir", cfg.Data.Dir, "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(cfg.Data.Dir, "ereea.db")
	journal, err := persistence.OpenJournal(dbPath)
	if err != nil {
		slog.Error("failed to open journal", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer journal.Close()
	slog.Info("journal opened", "path", dbPath)

	// ── World (always regenerated, deterministic from seed) ───────────
	grid := world.Generate(cfg.GenConfig())
	logTerrain(grid)

	runID, err := journal.BeginRun(cfg.World.Seed, cfg.World.Width, cfg.World.Height)
	if err != nil {
		slog.Error("failed to start run", "error", err)
		os.Exit(1)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(grid, cfg.EngineConfig())
	sim.SetAutoExplore(cfg.Sim.AutoExplore)
	for i := 0; i < cfg.Sim.InitialScouts; i++ {
		sim.Spawn(agents.KindScout, nil)
	}
	if cfg.Sim.Autoplay {
		sim.Play()
	}

	export := func() (string, error) {
		path := persistence.SnapshotPath(cfg.Data.Dir, runID)
		h := persistence.SnapshotHeader{RunID: runID, Seed: cfg.World.Seed}
		if err := persistence.WriteSnapshot(path, h, sim.Snapshot()); err != nil {
			return "", err
		}
		slog.Info("snapshot exported", "path", path)
		return path, nil
	}

	// ── API ───────────────────────────────────────────────────────────
	apiServer := &api.Server{
		Sim:            sim,
		Journal:        journal,
		RunID:          runID,
		Port:           cfg.API.Port,
		AdminKey:       cfg.API.AdminKey,
		StreamInterval: time.Duration(cfg.API.StreamMS) * time.Millisecond,
		Export:         export,
	}
	if cfg.API.Port > 0 {
		apiServer.Start()
	}

	// ── Heartbeat ─────────────────────────────────────────────────────
	started := time.Now()
	hb := engine.NewHeartbeat(time.Duration(cfg.Sim.HeartbeatMS) * time.Millisecond)
	hb.ReportEvery = uint64(cfg.Sim.ReportEvery)
	hb.OnBeat = func(beat uint64) {
		if id, ok := sim.AutoExploreBeat(); ok {
			slog.Debug("auto-explore deployed scout", "agent", uint64(id), "beat", beat)
		}
		flushEvents(journal, runID, sim)
	}
	hb.OnReport = func(beat uint64) {
		reportStatus(sim, started)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		hb.Stop()
	}()

	fmt.Printf("\nereea is running: %dx%d grid, seed %d, %d base(s), run %s\n",
		cfg.World.Width, cfg.World.Height, cfg.World.Seed, len(grid.Bases()), runID)
	if cfg.API.Port > 0 {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	}
	fmt.Println("Press Ctrl+C to stop.")

	hb.Run()

	// ── Teardown ──────────────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := apiServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	cancel()

	sim.Shutdown()
	flushEvents(journal, runID, sim)

	if _, err := export(); err != nil {
		slog.Error("snapshot export failed", "error", err)
	}
	totals := sim.Totals()
	if err := journal.FinishRun(runID, totals, sim.Stats()); err != nil {
		slog.Error("failed to finish run", "error", err)
	}

	fmt.Printf("Simulation stopped after %s. Delivered %d energy, %d mineral, %d science.\n",
		time.Since(started).Round(time.Second), totals.Energy, totals.Mineral, totals.Science)
}

// setupLogging picks a text handler for terminals and JSON otherwise.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func logTerrain(g *world.Grid) {
	counts := world.CellCounts(g)
	cells := make([]world.Cell, 0, len(counts))
	for c := range counts {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })
	for _, c := range cells {
		slog.Info("terrain", "type", world.CellName(c), "count", counts[c])
	}
}

func flushEvents(j *persistence.Journal, runID string, sim *engine.Simulation) {
	events := sim.DrainEvents()
	if err := j.SaveEvents(runID, events); err != nil {
		slog.Error("journal write failed", "events", len(events), "error", err)
	}
}

func reportStatus(sim *engine.Simulation, started time.Time) {
	st := sim.Stats()
	totals := sim.Totals()
	slog.Info("status",
		"uptime", time.Since(started).Round(time.Second),
		"running", sim.Running(),
		"interval", sim.Interval(),
		"steps", humanize.Comma(int64(st.Steps)),
		"scouts", st.Scouts,
		"haulers", st.Haulers,
		"discoveries", len(sim.Discoveries()),
		"energy", totals.Energy,
		"mineral", totals.Mineral,
		"science", totals.Science,
	)
}
