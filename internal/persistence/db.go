// Package persistence keeps a SQLite journal of runs and their events.
// The journal is history only; a simulation is never restored from it.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/engine"
)

// Journal wraps a SQLite connection.
type Journal struct {
	conn *sqlx.DB
}

// Run is one simulation run as recorded in the journal.
type Run struct {
	ID         string `db:"id" json:"id"`
	Seed       int64  `db:"seed" json:"seed"`
	Width      int    `db:"width" json:"width"`
	Height     int    `db:"height" json:"height"`
	StartedAt  int64  `db:"started_at" json:"started_at"`   // Unix ms
	FinishedAt int64  `db:"finished_at" json:"finished_at"` // Unix ms, 0 while running
	Energy     uint32 `db:"energy" json:"energy"`
	Mineral    uint32 `db:"mineral" json:"mineral"`
	Science    uint32 `db:"science" json:"science"`
	Steps      uint64 `db:"steps" json:"steps"`
	Spawned    uint64 `db:"spawned" json:"spawned"`
}

type eventRow struct {
	Tick        uint64 `db:"tick"`
	TimeMS      int64  `db:"time_ms"`
	AgentID     uint64 `db:"agent_id"`
	Description string `db:"description"`
	Category    string `db:"category"`
	MetaJSON    string `db:"meta_json"`
}

// OpenJournal opens or creates a SQLite database at the given path.
func OpenJournal(path string) (*Journal, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	j := &Journal{conn: conn}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		energy INTEGER NOT NULL DEFAULT 0,
		mineral INTEGER NOT NULL DEFAULT 0,
		science INTEGER NOT NULL DEFAULT 0,
		steps INTEGER NOT NULL DEFAULT 0,
		spawned INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		time_ms INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		meta_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journal_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, id);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// BeginRun records a new run and returns its ID.
func (j *Journal) BeginRun(seed int64, width, height int) (string, error) {
	id := uuid.New().String()
	_, err := j.conn.Exec(
		"INSERT INTO runs (id, seed, width, height, started_at) VALUES (?, ?, ?, ?, ?)",
		id, seed, width, height, time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	if err := j.SaveMeta("last_run", id); err != nil {
		return "", fmt.Errorf("save meta: %w", err)
	}
	slog.Info("run started", "run", id, "seed", seed)
	return id, nil
}

// SaveEvents appends events to a run.
func (j *Journal) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := j.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO events
		(run_id, tick, time_ms, agent_id, description, category, meta_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		metaJSON := "{}"
		if len(e.Meta) > 0 {
			b, err := json.Marshal(e.Meta)
			if err != nil {
				return fmt.Errorf("encode meta: %w", err)
			}
			metaJSON = string(b)
		}
		_, err := stmt.Exec(runID, e.Tick, e.Time.UnixMilli(), uint64(e.AgentID),
			e.Description, e.Category, metaJSON)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// FinishRun stores the run's final totals and counters.
func (j *Journal) FinishRun(runID string, totals agents.Bundle, stats engine.Stats) error {
	res, err := j.conn.Exec(`UPDATE runs SET
		finished_at = ?, energy = ?, mineral = ?, science = ?, steps = ?, spawned = ?
		WHERE id = ?`,
		time.Now().UnixMilli(), totals.Energy, totals.Mineral, totals.Science,
		stats.Steps, stats.Spawned, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %q", runID)
	}
	slog.Info("run finished", "run", runID, "energy", totals.Energy,
		"mineral", totals.Mineral, "science", totals.Science)
	return nil
}

// RecentEvents returns up to limit of a run's most recent events, oldest first.
func (j *Journal) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := j.conn.Select(&rows, `SELECT tick, time_ms, agent_id, description, category, meta_json
		FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, len(rows))
	for i, r := range rows {
		e := engine.Event{
			Tick:        r.Tick,
			Time:        time.UnixMilli(r.TimeMS),
			AgentID:     agents.AgentID(r.AgentID),
			Description: r.Description,
			Category:    r.Category,
		}
		if r.MetaJSON != "" && r.MetaJSON != "{}" {
			if err := json.Unmarshal([]byte(r.MetaJSON), &e.Meta); err != nil {
				return nil, fmt.Errorf("decode meta: %w", err)
			}
		}
		events[len(rows)-1-i] = e
	}
	return events, nil
}

// Runs returns up to limit runs, newest first.
func (j *Journal) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := j.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	return runs, err
}

// SaveMeta stores a key-value pair.
func (j *Journal) SaveMeta(key, value string) error {
	_, err := j.conn.Exec(
		"INSERT OR REPLACE INTO journal_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (j *Journal) GetMeta(key string) (string, error) {
	var value string
	err := j.conn.Get(&value, "SELECT value FROM journal_meta WHERE key = ?", key)
	return value, err
}
