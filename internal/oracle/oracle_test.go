package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAutoFallsBackToMockWhenNothingAvailable(t *testing.T) {
	o, err := New(Config{
		Mode:    "auto",
		CLIPath: "/definitely/missing/oracle-cli",
	}, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := o.(*MockOracle); !ok {
		t.Fatalf("New() = %T, want *MockOracle", o)
	}
}

func TestNewRejectsIncompleteModes(t *testing.T) {
	cases := []Config{
		{Mode: "cli"},
		{Mode: "ollama"},
		{Mode: "telepathy"},
	}
	for _, cfg := range cases {
		if _, err := New(cfg, discardLogger()); err == nil {
			t.Fatalf("New(%+v) expected error", cfg)
		}
	}
}

func TestNewExplicitModes(t *testing.T) {
	o, err := New(Config{Mode: "ollama", OllamaURL: "http://localhost:1"}, discardLogger())
	if err != nil {
		t.Fatalf("New(ollama) error = %v", err)
	}
	if _, ok := o.(*OllamaOracle); !ok {
		t.Fatalf("New(ollama) = %T", o)
	}
	o, err = New(Config{Mode: "CLI", CLIPath: "oracle-bin"}, discardLogger())
	if err != nil {
		t.Fatalf("New(cli) error = %v", err)
	}
	cli, ok := o.(*CLIOracle)
	if !ok {
		t.Fatalf("New(cli) = %T", o)
	}
	if cli.timeout != DefaultTimeout {
		t.Fatalf("cli timeout = %v, want %v", cli.timeout, DefaultTimeout)
	}
}

func TestMockOracleRepliesPerRole(t *testing.T) {
	o := NewMockOracle()
	for _, role := range []string{RoleActor, RoleArbiter, RoleMemory} {
		text, err := o.Query(context.Background(), "prompt", WorkingContext{Role: role, Actor: "bear"})
		if err != nil {
			t.Fatalf("Query(%s) error = %v", role, err)
		}
		if !strings.Contains(text, "```json") {
			t.Fatalf("Query(%s) = %q, want fenced json", role, text)
		}
	}
	if _, err := o.Query(context.Background(), "prompt", WorkingContext{Role: "bard"}); !errors.Is(err, ErrProvider) {
		t.Fatalf("Query(bard) error = %v, want ErrProvider", err)
	}
}

func TestMockOracleHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockOracle().Query(ctx, "p", WorkingContext{Role: RoleActor, Actor: "wolf"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Query() error = %v, want context.Canceled", err)
	}
	if KindOf(err) != KindTransport {
		t.Fatalf("KindOf() = %q, want %q", KindOf(err), KindTransport)
	}
}

func TestErrorKindsAreDistinct(t *testing.T) {
	wc := WorkingContext{Role: RoleActor, Actor: "bear"}
	cases := []struct {
		err  error
		want error
		kind Kind
	}{
		{newError(KindTimeout, "cli", wc, "", nil), ErrTimeout, KindTimeout},
		{newError(KindTransport, "cli", wc, "", io.ErrUnexpectedEOF), ErrTransport, KindTransport},
		{newError(KindProvider, "cli", wc, "bad", nil), ErrProvider, KindProvider},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("collect: %w", tc.err)
		if !errors.Is(wrapped, tc.want) {
			t.Fatalf("errors.Is(%v, %v) = false", wrapped, tc.want)
		}
		if KindOf(wrapped) != tc.kind {
			t.Fatalf("KindOf(%v) = %q, want %q", wrapped, KindOf(wrapped), tc.kind)
		}
		for _, other := range []error{ErrTimeout, ErrTransport, ErrProvider} {
			if other != tc.want && errors.Is(tc.err, other) {
				t.Fatalf("%v should not match %v", tc.err, other)
			}
		}
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("KindOf(plain) should be empty")
	}
}

func TestFuncAdapter(t *testing.T) {
	var got WorkingContext
	o := Func(func(_ context.Context, prompt string, wc WorkingContext) (string, error) {
		got = wc
		return "echo:" + prompt, nil
	})
	text, err := o.Query(context.Background(), "hi", WorkingContext{Role: RoleArbiter})
	if err != nil || text != "echo:hi" {
		t.Fatalf("Query() = %q, %v", text, err)
	}
	if got.Label() != "arbiter" {
		t.Fatalf("Label() = %q, want arbiter", got.Label())
	}
	if (WorkingContext{Role: RoleMemory, Actor: "wolf"}).Label() != "memory:wolf" {
		t.Fatalf("unexpected label")
	}
}

func TestWithObserverReportsOutcomes(t *testing.T) {
	var got []string
	fn := func(wc WorkingContext, outcome string, _ time.Duration) {
		got = append(got, wc.Label()+"="+outcome)
	}
	failing := Func(func(context.Context, string, WorkingContext) (string, error) {
		return "", newError(KindProvider, "fake", WorkingContext{}, "boom", nil)
	})
	o := WithObserver(NewMockOracle(), fn)
	if _, err := o.Query(context.Background(), "p", WorkingContext{Role: RoleArbiter}); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if _, err := WithObserver(failing, fn).Query(context.Background(), "p", WorkingContext{Role: RoleActor, Actor: "bear"}); !errors.Is(err, ErrProvider) {
		t.Fatalf("Query() error = %v, want provider", err)
	}
	if strings.Join(got, ",") != "arbiter=ok,actor:bear=provider" {
		t.Fatalf("observed = %v", got)
	}
}
