package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrMemoryIO = errors.New("memory io")

// Store persists one timeline per actor.
type Store interface {
	// Read returns NewTimeline() for an actor with nothing stored.
	Read(ctx context.Context, actor string) (Timeline, error)
	Write(ctx context.Context, actor string, t Timeline) error
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise files under dir, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL, dir string) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	if strings.TrimSpace(dir) != "" {
		return NewFileStore(dir), nil
	}
	return NewInMemoryStore(), nil
}

func validActor(actor string) error {
	if strings.TrimSpace(actor) == "" || strings.ContainsAny(actor, `/\`) || strings.Contains(actor, "..") {
		return fmt.Errorf("%w: invalid actor %q", ErrMemoryIO, actor)
	}
	return nil
}
