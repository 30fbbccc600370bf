package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/engine"
)

// StreamFrame is one push on /api/v1/stream.
type StreamFrame struct {
	Type       string         `json:"type"`
	Running    bool           `json:"running"`
	IntervalMS int64          `json:"interval_ms"`
	Totals     agents.Bundle  `json:"totals"`
	Stats      engine.Stats   `json:"stats"`
	Rows       []string       `json:"rows"`
	Agents     []agentSummary `json:"agents"`
	Events     []engine.Event `json:"events"`
}

func (s *Server) frame() StreamFrame {
	snap := s.Sim.Snapshot()
	f := StreamFrame{
		Type:       "snapshot",
		Running:    snap.Running,
		IntervalMS: snap.IntervalMS,
		Totals:     snap.Totals,
		Stats:      snap.Stats,
		Rows:       RenderRows(snap),
		Agents:     make([]agentSummary, 0, len(snap.Agents)),
		Events:     s.Sim.RecentEvents(10),
	}
	for _, a := range snap.Agents {
		f.Agents = append(f.Agents, summarize(a))
	}
	return f
}

// handleStream upgrades to a WebSocket and pushes a frame every
// StreamInterval until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.streamConns.Add(1) > maxStreamConns {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streamConns.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	remote := clientIP(r)
	slog.Info("stream client connected", "remote", remote)

	// Reads only detect the close; clients send nothing we act on.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.StreamInterval)
	defer ticker.Stop()

	for {
		if err := writeFrame(conn, s.frame()); err != nil {
			slog.Debug("stream write failed", "remote", remote, "error", err)
			return
		}
		select {
		case <-ticker.C:
		case <-gone:
			slog.Info("stream client disconnected", "remote", remote)
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second))
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f StreamFrame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
