package turn

import (
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/thicket/internal/contracts"
	"github.com/antoniostano/thicket/internal/memory"
	"github.com/antoniostano/thicket/internal/world"
)

type Intent = world.Intent

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseCollecting    Phase = "collecting_intents"
	PhaseResolving     Phase = "resolving"
	PhaseApplying      Phase = "applying_state"
	PhaseConsolidating Phase = "consolidating_memory"
)

// Resolution is the arbiter's single adjudication of a turn.
type Resolution struct {
	Narrative      string            `json:"reality"`
	StateChanges   []StateChange     `json:"state_changes"`
	Contracts      []contracts.Op    `json:"contracts"`
	NextDirectives map[string]string `json:"next_prompts"`
}

type StateChange struct {
	Actor    string `json:"npc"`
	Location string `json:"location"`
	Activity string `json:"activity"`
}

// ArbiterInput is serialized verbatim into the arbiter prompt.
type ArbiterInput struct {
	CurrentState CurrentState     `json:"current_state"`
	Locations    []world.Location `json:"locations"`
	Intents      []Intent         `json:"intents"`
}

type CurrentState struct {
	Actors          map[string]world.Actor    `json:"npcs"`
	ActiveContracts map[string]world.Contract `json:"active_contracts"`
}

// ContractOutcome reports what happened to one contract op of a resolution.
type ContractOutcome struct {
	Action     string `json:"action"`
	ContractID string `json:"contract_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result is everything a completed turn produced.
type Result struct {
	TurnID     string            `json:"turn_id"`
	Number     int64             `json:"number"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
	Intents    []Intent          `json:"intents"`
	Resolution Resolution        `json:"resolution"`
	Contracts  []ContractOutcome `json:"contracts"`
	Skipped    []string          `json:"skipped,omitempty"`
	Memory     []memory.Outcome  `json:"memory"`
}

type ErrorKind string

const (
	// KindNoIntents: the arbiter failed and no actor had produced an intent.
	KindNoIntents ErrorKind = "no_intents"
	KindArbiter   ErrorKind = "arbiter"
	KindStorage   ErrorKind = "storage"
	// KindCanceled: the context ended while waiting for a running turn to finish.
	KindCanceled ErrorKind = "canceled"
)

// Error is a failed turn. Nothing from a turn that failed in the arbiter phase is applied.
type Error struct {
	Kind       ErrorKind
	TurnID     string
	Actor      string
	ContractID string
	// Raw is the oracle reply when the failure was a parse failure.
	Raw string
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "turn %s failed (%s)", e.TurnID, e.Kind)
	if e.ContractID != "" {
		fmt.Fprintf(&b, " contract %s", e.ContractID)
	}
	if e.Actor != "" {
		fmt.Fprintf(&b, " actor %s", e.Actor)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }
