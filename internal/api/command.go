package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/ereea/internal/agents"
	"github.com/talgya/ereea/internal/engine"
	"github.com/talgya/ereea/internal/world"
)

//go:embed command.schema.json
var commandSchemaJSON []byte

var commandSchema = mustCompileSchema("command.schema.json", commandSchemaJSON)

func mustCompileSchema(name string, src []byte) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(src)); err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	return s
}

// Command is a control request from an observer.
type Command struct {
	Action  string         `json:"action"`
	Kind    string         `json:"kind,omitempty"`
	Count   int            `json:"count,omitempty"`
	Enabled *bool          `json:"enabled,omitempty"`
	Target  *CommandTarget `json:"target,omitempty"`
}

// CommandTarget assigns a spawned hauler to a resource cell.
type CommandTarget struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Resource string `json:"resource"`
}

// errBadCommand marks errors caused by the request rather than the server.
var errBadCommand = errors.New("bad command")

// DecodeCommand validates body against the command schema and decodes it.
func DecodeCommand(body []byte) (Command, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Command{}, fmt.Errorf("%w: invalid json: %v", errBadCommand, err)
	}
	if err := commandSchema.Validate(doc); err != nil {
		return Command{}, fmt.Errorf("%w: %v", errBadCommand, err)
	}
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", errBadCommand, err)
	}
	return cmd, nil
}

// apply executes a validated command and returns the response body.
func (s *Server) apply(cmd Command) (map[string]any, error) {
	sim := s.Sim
	result := map[string]any{"action": cmd.Action}

	switch cmd.Action {
	case "play":
		sim.Play()
	case "pause":
		sim.Pause()
	case "toggle":
		if sim.Running() {
			sim.Pause()
		} else {
			sim.Play()
		}
	case "speed_up":
		sim.SpeedUp()
	case "slow_down":
		sim.SlowDown()

	case "auto_explore":
		on := !sim.AutoExplore()
		if cmd.Enabled != nil {
			on = *cmd.Enabled
		}
		sim.SetAutoExplore(on)

	case "spawn":
		ids, err := s.spawn(cmd)
		if err != nil {
			return nil, err
		}
		result["spawned"] = ids

	case "snapshot":
		if s.Export == nil {
			return nil, errExportDisabled
		}
		path, err := s.Export()
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		result["path"] = path

	default:
		return nil, fmt.Errorf("%w: unknown action %q", errBadCommand, cmd.Action)
	}

	slog.Info("command applied", "action", cmd.Action)
	sim.EmitEvent(engine.Event{Description: "command " + cmd.Action, Category: engine.CategoryControl})

	result["running"] = sim.Running()
	result["interval_ms"] = sim.Interval().Milliseconds()
	result["auto_explore"] = sim.AutoExplore()
	return result, nil
}

var errExportDisabled = errors.New("snapshot export disabled")

func (s *Server) spawn(cmd Command) ([]agents.AgentID, error) {
	kind := agents.KindScout
	if cmd.Target != nil {
		kind = agents.KindHauler
	}
	if cmd.Kind != "" {
		k, ok := agents.ParseKind(cmd.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: unknown kind %q", errBadCommand, cmd.Kind)
		}
		kind = k
	}

	var target *agents.Target
	if cmd.Target != nil {
		r, ok := world.ParseResource(cmd.Target.Resource)
		if !ok {
			return nil, fmt.Errorf("%w: unknown resource %q", errBadCommand, cmd.Target.Resource)
		}
		c := world.Coord{X: cmd.Target.X, Y: cmd.Target.Y}
		if w, h := s.Sim.Size(); c.X >= w || c.Y >= h {
			return nil, fmt.Errorf("%w: target (%d,%d) out of bounds", errBadCommand, c.X, c.Y)
		}
		target = &agents.Target{Coord: c, Resource: r, MoreRemains: true}
	}

	count := cmd.Count
	if count == 0 {
		count = 1
	}
	ids := make([]agents.AgentID, 0, count)
	for i := 0; i < count; i++ {
		id := s.Sim.Spawn(kind, target)
		if id == 0 {
			break
		}
		ids = append(ids, id)
	}
	return ids, nil
}
