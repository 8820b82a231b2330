package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ProctoringStore is the Postgres implementation of proctoring.Store and
// proctoring.SettingsSource.
type ProctoringStore struct {
	db *sql.DB
}

// NewProctoringStore wraps an open pool. Run RunMigrations first.
func NewProctoringStore(db *sql.DB) *ProctoringStore {
	return &ProctoringStore{db: db}
}

// Ping checks the pool. Used by the health endpoint.
func (s *ProctoringStore) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

type rowScanner interface {
	Scan(dest ...any) error
}

// lookupErr maps a single-row lookup failure. A malformed id can never match
// a row, so it reads as not found.
func lookupErr(op, kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
		return notFound(kind, id)
	}
	return wrap(op, err)
}

func marshalJSONB(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}

func unmarshalJSONB(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return m, nil
}

// inTx runs fn inside a transaction, committing on success.
func (s *ProctoringStore) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return wrap(op, tx.Commit())
}
