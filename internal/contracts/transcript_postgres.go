package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTranscriptStore keeps each transcript as one jsonb row.
type PostgresTranscriptStore struct {
	pool *pgxpool.Pool
}

func NewPostgresTranscriptStore(ctx context.Context, databaseURL string) (*PostgresTranscriptStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresTranscriptStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contract_transcripts (
			id TEXT PRIMARY KEY,
			entries JSONB NOT NULL DEFAULT '[]'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresTranscriptStore) Ref(id string) string {
	return "postgres:contract_transcripts/" + id
}

func (s *PostgresTranscriptStore) Read(ctx context.Context, id string) ([]Entry, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT entries FROM contract_transcripts WHERE id=$1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("%w: query %s: %v", ErrTranscriptIO, id, err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrTranscriptIO, id, err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *PostgresTranscriptStore) Write(ctx context.Context, id string, entries []Entry) error {
	raw, err := json.Marshal(cloneEntries(entries))
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrTranscriptIO, id, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO contract_transcripts (id, entries, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET entries = EXCLUDED.entries, updated_at = EXCLUDED.updated_at`,
		id,
		raw,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrTranscriptIO, id, err)
	}
	return nil
}

func (s *PostgresTranscriptStore) Close() error {
	s.pool.Close()
	return nil
}
