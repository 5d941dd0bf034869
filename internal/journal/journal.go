// Package journal keeps an append-only sqlite history of completed turns. Each full turn result
// is stored zstd-compressed next to a few summary columns for listing.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/antoniostano/thicket/internal/turn"
)

var ErrNotFound = errors.New("journal: turn not found")

// Entry summarizes one recorded turn.
type Entry struct {
	TurnID    string    `json:"turn_id"`
	Number    int64     `json:"number"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Intents   int       `json:"intents"`
	Narrative string    `json:"reality"`
}

type Journal struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, enc: enc, dec: dec}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			number INTEGER NOT NULL,
			started_ns INTEGER NOT NULL,
			ended_ns INTEGER NOT NULL,
			intents INTEGER NOT NULL,
			narrative TEXT NOT NULL,
			result BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS turns_started_ns ON turns(started_ns);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record appends a completed turn. Recording the same turn twice keeps the first copy.
func (j *Journal) Record(ctx context.Context, res turn.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("journal: encode turn: %w", err)
	}
	blob := j.enc.EncodeAll(raw, nil)
	_, err = j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO turns (id, number, started_ns, ended_ns, intents, narrative, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.TurnID, res.Number, res.StartedAt.UnixNano(), res.EndedAt.UnixNano(),
		len(res.Intents), res.Resolution.Narrative, blob,
	)
	if err != nil {
		return fmt.Errorf("journal: insert turn %s: %w", res.TurnID, err)
	}
	return nil
}

// Recent lists up to limit turns, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, number, started_ns, ended_ns, intents, narrative
		 FROM turns ORDER BY started_ns DESC, number DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list turns: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e              Entry
			started, ended int64
		)
		if err := rows.Scan(&e.TurnID, &e.Number, &started, &ended, &e.Intents, &e.Narrative); err != nil {
			return nil, fmt.Errorf("journal: scan turn: %w", err)
		}
		e.StartedAt = time.Unix(0, started).UTC()
		e.EndedAt = time.Unix(0, ended).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns the full recorded result of one turn.
func (j *Journal) Get(ctx context.Context, turnID string) (turn.Result, error) {
	var blob []byte
	err := j.db.QueryRowContext(ctx, `SELECT result FROM turns WHERE id = ?`, turnID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return turn.Result{}, ErrNotFound
	}
	if err != nil {
		return turn.Result{}, fmt.Errorf("journal: read turn %s: %w", turnID, err)
	}
	raw, err := j.dec.DecodeAll(blob, nil)
	if err != nil {
		return turn.Result{}, fmt.Errorf("journal: decompress turn %s: %w", turnID, err)
	}
	var res turn.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return turn.Result{}, fmt.Errorf("journal: decode turn %s: %w", turnID, err)
	}
	return res, nil
}

func (j *Journal) Close() error {
	j.dec.Close()
	_ = j.enc.Close()
	return j.db.Close()
}
