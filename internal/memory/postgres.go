package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists actor timelines in PostgreSQL, one jsonb row per actor.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS actor_memories (
			actor TEXT PRIMARY KEY,
			timeline JSONB NOT NULL,
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

func (s *PostgresStore) Read(ctx context.Context, actor string) (Timeline, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT timeline FROM actor_memories WHERE actor=$1`, actor).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NewTimeline(), nil
		}
		return Timeline{}, fmt.Errorf("%w: query %s: %v", ErrMemoryIO, actor, err)
	}
	var t Timeline
	if err := json.Unmarshal(raw, &t); err != nil {
		return Timeline{}, fmt.Errorf("%w: decode %s: %v", ErrMemoryIO, actor, err)
	}
	t.normalize()
	return t, nil
}

func (s *PostgresStore) Write(ctx context.Context, actor string, t Timeline) error {
	t.normalize()
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrMemoryIO, actor, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO actor_memories (actor, timeline, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (actor) DO UPDATE SET timeline = EXCLUDED.timeline, updated_at = EXCLUDED.updated_at`,
		actor,
		raw,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrMemoryIO, actor, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
