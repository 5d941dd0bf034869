package oracle

import (
	"context"
	"time"
)

// CallObserver receives one callback per finished call. outcome is "ok" or the failure Kind.
type CallObserver func(wc WorkingContext, outcome string, elapsed time.Duration)

type observed struct {
	inner Oracle
	fn    CallObserver
}

// WithObserver wraps o so every call is reported to fn. fn may run concurrently.
func WithObserver(o Oracle, fn CallObserver) Oracle {
	if fn == nil {
		return o
	}
	return &observed{inner: o, fn: fn}
}

func (o *observed) Query(ctx context.Context, prompt string, wc WorkingContext) (string, error) {
	start := time.Now()
	out, err := o.inner.Query(ctx, prompt, wc)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	o.fn(wc, outcome, time.Since(start))
	return out, err
}

// Ping forwards to the wrapped oracle when it supports readiness checks.
func (o *observed) Ping(ctx context.Context) error {
	if p, ok := o.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Models forwards to the wrapped oracle; oracles without a model list report none.
func (o *observed) Models(ctx context.Context) ([]string, error) {
	if m, ok := o.inner.(ModelLister); ok {
		return m.Models(ctx)
	}
	return nil, nil
}
