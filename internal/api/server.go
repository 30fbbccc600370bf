// Package api serves the simulation over HTTP.
// GET endpoints are public (read-only observation).
// POST /api/v1/command requires a bearer token (control plane).
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/engine"
	"github.com/talgya/ereea/internal/persistence"
	"github.com/talgya/ereea/internal/world"
)

const (
	maxStreamConns  = 8
	maxCommandBytes = 16 << 10
)

// Server exposes a simulation to observers.
type Server struct {
	Sim      *engine.Simulation
	Journal  *persistence.Journal // Optional run history
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	StreamInterval time.Duration          // Push period for /api/v1/stream
	Export         func() (string, error) // Writes a snapshot export, returns its path

	started     time.Time
	streamConns atomic.Int32
	upgrader    websocket.Upgrader
	httpServer  *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	if s.StreamInterval <= 0 {
		s.StreamInterval = 500 * time.Millisecond
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	commandLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/map", s.handleMap)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/discoveries", s.handleDiscoveries)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Control endpoint (POST, requires bearer token).
	mux.HandleFunc("/api/v1/command", s.adminOnly(RateLimitMiddleware(commandLimiter, s.handleCommand)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require POST with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no EREEA_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.Sim.Stats()
	totals := s.Sim.Totals()
	width, height := s.Sim.Size()

	status := map[string]any{
		"name":         "ereea",
		"run_id":       s.RunID,
		"running":      s.Sim.Running(),
		"auto_explore": s.Sim.AutoExplore(),
		"interval_ms":  s.Sim.Interval().Milliseconds(),
		"width":        width,
		"height":       height,
		"totals":       totals,
		"discoveries":  len(s.Sim.Discoveries()),
		"stats":        stats,
		"started":      humanize.Time(s.started),
		"summary": fmt.Sprintf("%s steps, %s agents live, %s units delivered",
			humanize.Comma(int64(stats.Steps)), humanize.Comma(int64(stats.Live)),
			humanize.Comma(int64(totals.Total()))),
	}
	writeJSON(w, status)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	explored := 0
	for _, e := range snap.Grid.Explored {
		if e {
			explored++
		}
	}

	writeJSON(w, map[string]any{
		"width":        snap.Grid.Width,
		"height":       snap.Grid.Height,
		"bases":        snap.Grid.Bases,
		"terrain":      snap.Grid.Rows(),
		"rows":         RenderRows(snap),
		"explored":     explored,
		"explored_pct": percent(explored, len(snap.Grid.Explored)),
	})
}

// RenderRows draws the terrain with bases and agents on top: 'B' base,
// 'S' scout, 'H' hauler. Unexplored cells keep their terrain glyph.
func RenderRows(snap engine.Snapshot) []string {
	g := snap.Grid
	buf := make([][]byte, g.Height)
	for y, row := range g.Rows() {
		buf[y] = []byte(row)
	}
	put := func(c world.Coord, b byte) {
		if c.X >= 0 && c.Y >= 0 && c.X < g.Width && c.Y < g.Height {
			buf[c.Y][c.X] = b
		}
	}
	for _, b := range g.Bases {
		put(b, 'B')
	}
	for _, a := range snap.Agents {
		switch a.Kind {
		case agents.KindScout:
			put(a.Position, 'S')
		case agents.KindHauler:
			put(a.Position, 'H')
		}
	}
	rows := make([]string, g.Height)
	for y := range buf {
		rows[y] = string(buf[y])
	}
	return rows
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

type agentSummary struct {
	ID          agents.AgentID `json:"id"`
	Kind        string         `json:"kind"`
	State       string         `json:"state"`
	X           int            `json:"x"`
	Y           int            `json:"y"`
	Carried     agents.Bundle  `json:"carried"`
	Capacity    uint32         `json:"capacity"`
	Target      *agents.Target `json:"target,omitempty"`
	Discoveries int            `json:"discoveries"`
}

func summarize(a agents.Agent) agentSummary {
	return agentSummary{
		ID:          a.ID,
		Kind:        a.Kind.String(),
		State:       a.State.String(),
		X:           a.Position.X,
		Y:           a.Position.Y,
		Carried:     a.Carried,
		Capacity:    a.Capacity,
		Target:      a.Target,
		Discoveries: len(a.Discoveries),
	}
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	kindFilter := r.URL.Query().Get("kind")
	if kindFilter != "" {
		if _, ok := agents.ParseKind(kindFilter); !ok {
			http.Error(w, "unknown kind", http.StatusBadRequest)
			return
		}
	}

	result := []agentSummary{}
	for _, a := range s.Sim.LiveAgents() {
		if kindFilter != "" && a.Kind.String() != kindFilter {
			continue
		}
		result = append(result, summarize(a))
	}
	writeJSON(w, result)
}

// handleAgentDetail serves GET /api/v1/agent/:id.
func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/agent/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	for _, a := range s.Sim.LiveAgents() {
		if a.ID == agents.AgentID(id) {
			writeJSON(w, a)
			return
		}
	}
	http.Error(w, "agent not found", http.StatusNotFound)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var events []engine.Event
	if r.URL.Query().Get("source") == "journal" {
		if s.Journal == nil {
			http.Error(w, "journal not available", http.StatusServiceUnavailable)
			return
		}
		var err error
		events, err = s.Journal.RecentEvents(s.RunID, limit)
		if err != nil {
			slog.Error("journal query failed", "error", err)
			http.Error(w, "journal query failed", http.StatusInternalServerError)
			return
		}
	} else {
		events = s.Sim.RecentEvents(limit)
	}

	if category := r.URL.Query().Get("category"); category != "" {
		filtered := []engine.Event{}
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if events == nil {
		events = []engine.Event{}
	}
	writeJSON(w, events)
}

func (s *Server) handleDiscoveries(w http.ResponseWriter, r *http.Request) {
	type discovery struct {
		X        int    `json:"x"`
		Y        int    `json:"y"`
		Resource string `json:"resource"`
	}
	result := []discovery{}
	for _, d := range s.Sim.Discoveries() {
		result = append(result, discovery{X: d.Coord.X, Y: d.Coord.Y, Resource: world.ResourceName(d.Resource)})
	}
	writeJSON(w, result)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		writeJSON(w, []persistence.Run{})
		return
	}
	runs, err := s.Journal.Runs(20)
	if err != nil {
		slog.Error("journal query failed", "error", err)
		http.Error(w, "journal query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	cmd, err := DecodeCommand(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.apply(cmd)
	switch {
	case errors.Is(err, errBadCommand):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, errExportDisabled):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		slog.Error("command failed", "action", cmd.Action, "error", err)
		http.Error(w, "command failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
