package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout is the hard per-call deadline when none is configured.
const DefaultTimeout = 60 * time.Second

// Role values identify which part of the turn pipeline is asking.
const (
	RoleActor   = "actor"
	RoleArbiter = "arbiter"
	RoleMemory  = "memory"
)

// WorkingContext is the ambient context of a query: where a local process runs and who asks.
type WorkingContext struct {
	Dir   string
	Role  string
	Actor string
}

// Label renders the role for logs, e.g. "actor:bear" or "arbiter".
func (wc WorkingContext) Label() string {
	if wc.Actor == "" {
		return wc.Role
	}
	return wc.Role + ":" + wc.Actor
}

// Oracle submits a prompt and returns the generated text. Every call is a single attempt
// bounded by a hard timeout; failures are *Error values of kind timeout, transport or provider.
type Oracle interface {
	Query(ctx context.Context, prompt string, wc WorkingContext) (string, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, prompt string, wc WorkingContext) (string, error)

func (f Func) Query(ctx context.Context, prompt string, wc WorkingContext) (string, error) {
	return f(ctx, prompt, wc)
}

// Pinger is implemented by oracles that can report readiness without generating text.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelLister is implemented by oracles that serve several models.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}

// Config controls oracle construction.
type Config struct {
	Mode        string
	CLIPath     string
	OllamaURL   string
	OllamaModel string
	Timeout     time.Duration
}

// New selects the concrete oracle once at startup.
func New(cfg Config, logger *slog.Logger) (Oracle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoOracle(cfg, logger), nil
	case "cli":
		if strings.TrimSpace(cfg.CLIPath) == "" {
			return nil, errors.New("oracle CLI path is required for cli mode")
		}
		return NewCLIOracle(cfg.CLIPath, cfg.Timeout), nil
	case "ollama":
		if strings.TrimSpace(cfg.OllamaURL) == "" {
			return nil, errors.New("oracle ollama url is required for ollama mode")
		}
		return NewOllamaOracle(cfg.OllamaURL, cfg.OllamaModel, cfg.Timeout), nil
	case "mock":
		return NewMockOracle(), nil
	default:
		return nil, fmt.Errorf("unsupported oracle mode %q", cfg.Mode)
	}
}

func newAutoOracle(cfg Config, logger *slog.Logger) Oracle {
	cliPath := strings.TrimSpace(cfg.CLIPath)
	if cliPath != "" {
		if _, err := exec.LookPath(cliPath); err == nil {
			logger.Info("oracle selected", "mode", "cli", "path", cliPath)
			return NewCLIOracle(cliPath, cfg.Timeout)
		}
	}

	if url := strings.TrimSpace(cfg.OllamaURL); url != "" {
		o := NewOllamaOracle(url, cfg.OllamaModel, cfg.Timeout)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := o.Ping(ctx)
		cancel()
		if err == nil {
			logger.Info("oracle selected", "mode", "ollama", "url", url, "model", o.model)
			return o
		}
		logger.Warn("ollama unreachable", "url", url, "err", err)
	}

	logger.Warn("oracle selected", "mode", "mock", "reason", "no cli binary and no reachable ollama")
	return NewMockOracle()
}
