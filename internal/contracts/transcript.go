package contracts

import (
	"context"
	"fmt"
	"strings"
)

// TranscriptStore persists one ordered transcript per contract id. Write replaces the whole
// transcript; there is no append primitive.
type TranscriptStore interface {
	Read(ctx context.Context, id string) ([]Entry, error)
	Write(ctx context.Context, id string, entries []Entry) error
	// Ref names where id's transcript lives, for display only.
	Ref(id string) string
	Close() error
}

// NewTranscriptStore selects postgres when databaseURL is set, else files under dir, else memory.
func NewTranscriptStore(ctx context.Context, databaseURL, dir string) (TranscriptStore, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresTranscriptStore(ctx, databaseURL)
	}
	if strings.TrimSpace(dir) != "" {
		return NewFileTranscriptStore(dir), nil
	}
	return NewInMemoryTranscriptStore(), nil
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: invalid contract id %q", ErrTranscriptIO, id)
	}
	return nil
}

func cloneEntries(in []Entry) []Entry {
	if in == nil {
		return []Entry{}
	}
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = Entry{Narrative: e.Narrative, Details: make(map[string]Exchange, len(e.Details))}
		for k, v := range e.Details {
			if v.Dialogue != nil {
				d := *v.Dialogue
				v.Dialogue = &d
			}
			out[i].Details[k] = v
		}
	}
	return out
}
