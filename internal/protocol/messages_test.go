package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/antoniostano/thicket/internal/turn"
)

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","action":"execute_turn","ts_ms":456}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionExecuteTurn || control.TSMs != 456 {
		t.Fatalf("unexpected client control: %+v", control)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsUnknownAction(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_control","action":"reboot"}`))
	if err == nil || !strings.Contains(err.Error(), "reboot") {
		t.Fatalf("error = %v, want invalid action", err)
	}
}

func TestParseClientMessageRejectsGarbage(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatalf("ParseClientMessage(garbage) expected error")
	}
}

func TestNewTurnFailedOmitsRaw(t *testing.T) {
	terr := &turn.Error{
		Kind:       turn.KindStorage,
		TurnID:     "t1",
		ContractID: "conv_1",
		Raw:        "secret reply",
		Err:        fmt.Errorf("disk full"),
	}
	msg := NewTurnFailed(terr)
	if msg.Kind != "storage" || msg.ContractID != "conv_1" || msg.TurnID != "t1" {
		t.Fatalf("NewTurnFailed() = %+v", msg)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "secret reply") {
		t.Fatalf("raw reply leaked: %s", b)
	}
	if !strings.Contains(string(b), `"type":"turn_failed"`) {
		t.Fatalf("payload = %s", b)
	}
}
