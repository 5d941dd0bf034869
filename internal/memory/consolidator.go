package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/antoniostano/thicket/internal/extract"
	"github.com/antoniostano/thicket/internal/oracle"
	"github.com/antoniostano/thicket/internal/policy"
	"github.com/antoniostano/thicket/internal/world"
)

// UpdateShape is the schema an oracle memory reply must satisfy.
var UpdateShape = extract.MustShape("memory_update", `{
	"type": "object",
	"required": ["immediate_self_context", "relationship_updates"],
	"properties": {
		"immediate_self_context": {"type": "string"},
		"new_self_memory": {"type": ["string", "null"]},
		"relationship_updates": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["immediate_context", "current_sentiment"],
				"properties": {
					"immediate_context": {"type": "string"},
					"current_sentiment": {"type": "number"},
					"bond_delta": {"type": ["number", "null"]},
					"long_term_summary_update": {"type": ["string", "null"]},
					"potential_core_memory": {"type": ["string", "null"]},
					"new_memory": {
						"type": ["object", "null"],
						"required": ["event", "emotional_impact", "importance"],
						"properties": {
							"event": {"type": "string"},
							"timestamp": {"type": "string"},
							"emotional_impact": {"type": "string"},
							"importance": {"type": "number"}
						}
					}
				}
			}
		}
	}
}`)

// Input is what one actor learns about a finished turn.
type Input struct {
	Actor     string       `json:"npc_name"`
	Intent    world.Intent `json:"intent"`
	Narrative string       `json:"reality"`
	Present   []string     `json:"other_npcs_present"`
}

// Outcome is the result of consolidating one actor's memory.
type Outcome struct {
	Actor   string  `json:"actor"`
	Changes Changes `json:"changes"`
	Err     error   `json:"-"`
	Error   string  `json:"error,omitempty"`
}

// Prompter renders the memory-update prompt. The text is opaque to this package.
type Prompter interface {
	MemoryUpdate(in Input, current Timeline) string
}

type ConsolidatorConfig struct {
	Oracle   oracle.Oracle
	Store    Store
	Prompter Prompter
	Logger   *slog.Logger
	// WorkDir is where a local oracle process runs.
	WorkDir string
	// Known reports registered actor names. Relationship updates naming anyone else are dropped.
	Known func(string) bool
	Now   func() time.Time
}

// Consolidator applies memory updates one actor at a time.
type Consolidator struct {
	cfg ConsolidatorConfig
}

func NewConsolidator(cfg ConsolidatorConfig) *Consolidator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Consolidator{cfg: cfg}
}

// Consolidate processes inputs strictly in order. A failing actor is logged and recorded in its
// Outcome; the rest still run.
func (c *Consolidator) Consolidate(ctx context.Context, inputs []Input) []Outcome {
	out := make([]Outcome, 0, len(inputs))
	for _, in := range inputs {
		changes, err := c.consolidateOne(ctx, in)
		o := Outcome{Actor: in.Actor, Changes: changes, Err: err}
		if err != nil {
			o.Error = err.Error()
			c.cfg.Logger.Warn("memory update failed", "actor", in.Actor, "err", err)
		}
		out = append(out, o)
	}
	return out
}

func (c *Consolidator) consolidateOne(ctx context.Context, in Input) (Changes, error) {
	current, err := c.cfg.Store.Read(ctx, in.Actor)
	if err != nil {
		return Changes{}, err
	}

	prompt := c.cfg.Prompter.MemoryUpdate(in, current)
	wc := oracle.WorkingContext{Dir: c.cfg.WorkDir, Role: oracle.RoleMemory, Actor: in.Actor}
	raw, err := c.cfg.Oracle.Query(ctx, prompt, wc)
	if err != nil {
		return Changes{}, err
	}
	c.cfg.Logger.Debug("memory reply", "actor", in.Actor, "raw", policy.ForLog(raw, 2000))

	update, err := extract.ExtractWith[Update](raw, UpdateShape)
	if err != nil {
		return Changes{}, err
	}

	next := current.Clone()
	changes := next.Apply(in.Actor, update, c.cfg.Now(), c.cfg.Known)
	if len(changes.Skipped) > 0 {
		c.cfg.Logger.Info("relationship updates skipped", "actor", in.Actor, "names", changes.Skipped)
	}
	for name, rc := range changes.Relationships {
		if rc.Evicted != nil {
			c.cfg.Logger.Debug("memory faded", "actor", in.Actor, "about", name, "event", rc.Evicted.Event)
		}
	}

	if err := c.cfg.Store.Write(ctx, in.Actor, next); err != nil {
		return changes, fmt.Errorf("write memories: %w", err)
	}
	return changes, nil
}
