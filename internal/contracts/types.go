package contracts

import (
	"errors"
	"strings"
)

var (
	ErrTranscriptIO  = errors.New("contract transcript io")
	ErrUnknownAction = errors.New("unknown contract action")
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionEnd    Action = "end"
)

// ParseAction normalises an arbiter-supplied tag. ok is false for anything outside create,
// update and end.
func ParseAction(raw string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionCreate, ActionUpdate, ActionEnd:
		return a, true
	default:
		return a, false
	}
}

// Exchange is one participant's contribution to a transcript entry.
type Exchange struct {
	Action   string  `json:"action"`
	Dialogue *string `json:"dialogue"`
}

// Entry is one exchange inside a contract transcript.
type Entry struct {
	Narrative string              `json:"reality"`
	Details   map[string]Exchange `json:"details"`
}

// Op is a contract operation as emitted by the arbiter. ID is ignored for create.
type Op struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	Action       string   `json:"action"`
	Entry        *Entry   `json:"transcript_entry,omitempty"`
}
