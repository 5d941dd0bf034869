package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antoniostano/thicket/internal/turn"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"

	TypeTurnStarted     MessageType = "turn_started"
	TypePhaseChanged    MessageType = "phase_changed"
	TypeIntentCollected MessageType = "intent_collected"
	TypeIntentDropped   MessageType = "intent_dropped"
	TypeTurnResolved    MessageType = "turn_resolved"
	TypeTurnCompleted   MessageType = "turn_completed"
	TypeTurnFailed      MessageType = "turn_failed"
	TypeSystemEvent     MessageType = "system_event"
	TypeErrorEvent      MessageType = "error_event"
)

// Client control actions.
const (
	ActionPing        = "ping"
	ActionExecuteTurn = "execute_turn"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
	TSMs   int64       `json:"ts_ms,omitempty"`
}

type TurnStarted struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Number int64       `json:"number"`
}

type PhaseChanged struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Phase  turn.Phase  `json:"phase"`
}

type IntentCollected struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Intent turn.Intent `json:"intent"`
}

type IntentDropped struct {
	Type   MessageType `json:"type"`
	TurnID string      `json:"turn_id"`
	Actor  string      `json:"npc"`
	Detail string      `json:"detail"`
}

type TurnResolved struct {
	Type       MessageType     `json:"type"`
	TurnID     string          `json:"turn_id"`
	Resolution turn.Resolution `json:"resolution"`
}

type TurnCompleted struct {
	Type   MessageType `json:"type"`
	Result turn.Result `json:"result"`
}

type TurnFailed struct {
	Type       MessageType `json:"type"`
	TurnID     string      `json:"turn_id"`
	Kind       string      `json:"kind"`
	ContractID string      `json:"contract_id,omitempty"`
	Detail     string      `json:"detail"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

// NewTurnFailed flattens a turn error for the wire. The raw oracle reply is not sent.
func NewTurnFailed(err *turn.Error) TurnFailed {
	return TurnFailed{
		Type:       TypeTurnFailed,
		TurnID:     err.TurnID,
		Kind:       string(err.Kind),
		ContractID: err.ContractID,
		Detail:     err.Error(),
	}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionPing, ActionExecuteTurn:
			return msg, nil
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
	default:
		return nil, ErrUnsupportedType
	}
}
