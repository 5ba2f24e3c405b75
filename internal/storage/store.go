package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for pipeline watermarks and the outcome journal.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS watermarks (
  pipeline    TEXT PRIMARY KEY,
  block       INTEGER NOT NULL,
  updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS outcomes (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  batch_id    TEXT NOT NULL,
  pipeline    TEXT NOT NULL,
  event_tx    TEXT NOT NULL,
  block       INTEGER NOT NULL,
  status      TEXT NOT NULL,
  result_tx   TEXT,
  nonce       INTEGER,
  attempts    INTEGER NOT NULL DEFAULT 0,
  error       TEXT,
  created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS outcomes_pipeline_idx ON outcomes (pipeline, id);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertWatermark records the block a pipeline resumes polling from.
func (s *Store) UpsertWatermark(ctx context.Context, pipeline string, block uint64) error {
	if pipeline == "" {
		return errors.New("pipeline required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO watermarks (pipeline, block, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(pipeline) DO UPDATE SET
  block=excluded.block,
  updated_at=CURRENT_TIMESTAMP;
`, pipeline, block)
	if err != nil {
		return fmt.Errorf("upsert watermark: %w", err)
	}
	return nil
}

// GetWatermark retrieves the stored watermark for a pipeline.
func (s *Store) GetWatermark(ctx context.Context, pipeline string) (block uint64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT block FROM watermarks WHERE pipeline = ?;
`, pipeline)
	switch err = row.Scan(&block); err {
	case nil:
		return block, true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("get watermark: %w", err)
	}
}

// Watermark is a stored pipeline resume point.
type Watermark struct {
	Pipeline  string
	Block     uint64
	UpdatedAt time.Time
}

// ListWatermarks returns every stored watermark ordered by pipeline.
func (s *Store) ListWatermarks(ctx context.Context) ([]Watermark, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT pipeline, block, updated_at FROM watermarks ORDER BY pipeline;
`)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	defer rows.Close()

	var out []Watermark
	for rows.Next() {
		var w Watermark
		if err := rows.Scan(&w.Pipeline, &w.Block, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Outcome is one journaled per-event dispatch result.
type Outcome struct {
	BatchID   string
	Pipeline  string
	EventTx   string
	Block     uint64
	Status    string
	ResultTx  string
	Nonce     *uint64
	Attempts  int
	Error     string
	CreatedAt time.Time
}

// InsertOutcomes journals a resolved batch atomically.
func (s *Store) InsertOutcomes(ctx context.Context, outs []Outcome) error {
	if len(outs) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO outcomes (batch_id, pipeline, event_tx, block, status, result_tx, nonce, attempts, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`)
		if err != nil {
			return fmt.Errorf("prepare outcome: %w", err)
		}
		defer stmt.Close()

		for _, o := range outs {
			if o.BatchID == "" || o.Pipeline == "" || o.Status == "" {
				return errors.New("batch_id, pipeline, and status are required")
			}
			var nonce any
			if o.Nonce != nil {
				nonce = int64(*o.Nonce)
			}
			if _, err := stmt.ExecContext(ctx, o.BatchID, o.Pipeline, o.EventTx, o.Block, o.Status,
				nullString(o.ResultTx), nonce, o.Attempts, nullString(o.Error), nullTime(o.CreatedAt)); err != nil {
				return fmt.Errorf("insert outcome: %w", err)
			}
		}
		return nil
	})
}

// RecentOutcomes returns the latest journaled outcomes, newest first.
// An empty pipeline matches all pipelines.
func (s *Store) RecentOutcomes(ctx context.Context, pipeline string, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT batch_id, pipeline, event_tx, block, status, COALESCE(result_tx, ''), nonce, attempts, COALESCE(error, ''), created_at
FROM outcomes
WHERE (? = '' OR pipeline = ?)
ORDER BY id DESC
LIMIT ?;
`, pipeline, pipeline, limit)
	if err != nil {
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o     Outcome
			nonce sql.NullInt64
		)
		if err := rows.Scan(&o.BatchID, &o.Pipeline, &o.EventTx, &o.Block, &o.Status, &o.ResultTx, &nonce, &o.Attempts, &o.Error, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if nonce.Valid {
			n := uint64(nonce.Int64)
			o.Nonce = &n
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
