package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why an oracle call failed.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindTransport Kind = "transport"
	KindProvider  Kind = "provider"
)

var (
	// ErrTimeout means the call exceeded its hard deadline.
	ErrTimeout = errors.New("oracle timeout")
	// ErrTransport means the oracle could not be reached: the process failed to start,
	// the connection broke, or the service was unavailable.
	ErrTransport = errors.New("oracle transport failure")
	// ErrProvider means the oracle ran but reported an application-level failure.
	ErrProvider = errors.New("oracle provider failure")
)

// Error carries the failure kind together with the implementation and role that failed.
type Error struct {
	Kind   Kind
	Oracle string
	Role   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Oracle)
	b.WriteString(" oracle ")
	b.WriteString(string(e.Kind))
	if e.Role != "" {
		b.WriteString(" (")
		b.WriteString(e.Role)
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrProvider:
		return e.Kind == KindProvider
	}
	return false
}

// KindOf reports the failure kind of err, or "" when err is not an oracle failure.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrProvider):
		return KindProvider
	}
	return ""
}

func newError(kind Kind, oracle string, wc WorkingContext, detail string, err error) *Error {
	return &Error{Kind: kind, Oracle: oracle, Role: wc.Label(), Detail: detail, Err: err}
}

// classifyContext maps a finished call context to a timeout or cancellation failure.
// It returns nil when the call context is still live.
func classifyContext(callCtx context.Context, oracle string, wc WorkingContext, timeout fmt.Stringer) *Error {
	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return newError(KindTimeout, oracle, wc, "no reply within "+timeout.String(), nil)
	case errors.Is(callCtx.Err(), context.Canceled):
		return newError(KindTransport, oracle, wc, "call canceled", context.Canceled)
	}
	return nil
}
