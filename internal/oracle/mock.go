package oracle

import (
	"context"
	"encoding/json"
	"fmt"
)

// MockOracle provides deterministic replies when no real oracle is available.
type MockOracle struct{}

func NewMockOracle() *MockOracle { return &MockOracle{} }

func (o *MockOracle) Query(ctx context.Context, _ string, wc WorkingContext) (string, error) {
	if ce := classifyContext(ctx, "mock", wc, DefaultTimeout); ce != nil {
		return "", ce
	}

	var reply any
	switch wc.Role {
	case RoleActor:
		reply = map[string]any{
			"npc":      wc.Actor,
			"thought":  "Nothing seems to need my attention right now.",
			"action":   fmt.Sprintf("%s looks around and keeps to its routine.", wc.Actor),
			"dialogue": nil,
		}
	case RoleArbiter:
		reply = map[string]any{
			"reality":       "The forest stays quiet; everyone keeps to themselves.",
			"state_changes": []any{},
			"contracts":     []any{},
			"next_prompts":  map[string]string{},
		}
	case RoleMemory:
		reply = map[string]any{
			"immediate_self_context": "Keeping to my routine in a quiet forest.",
			"new_self_memory":        nil,
			"relationship_updates":   map[string]any{},
		}
	default:
		return "", newError(KindProvider, "mock", wc, "unsupported role", nil)
	}

	b, err := json.Marshal(reply)
	if err != nil {
		return "", newError(KindProvider, "mock", wc, "marshal reply", err)
	}
	// Wrap like a chatty model would so the extractor path is exercised end to end.
	return "Here is my answer:\n```json\n" + string(b) + "\n```", nil
}
