package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/empire-compass/compass-server/internal/errs"
	"github.com/empire-compass/compass-server/internal/model"
)

// PgxPool is a minimal abstraction over a Postgres connection pool.
// It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SELECT and returns a rows iterator.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// BeginTx starts a transaction with the provided options.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	// Close shuts down the pool and frees resources.
	Close()
}

// PG stores documents as jsonb rows keyed by (collection, doc_id).
type PG struct{ pool PgxPool }

// NewPG creates a document store over an open connection pool.
func NewPG(pool *pgxpool.Pool) *PG { return &PG{pool: pool} }

// NewPGWithPool creates a document store over any PgxPool (for tests).
func NewPGWithPool(pool PgxPool) *PG { return &PG{pool: pool} }

// Close closes the underlying pool.
func (s *PG) Close() { s.pool.Close() }

// Get loads a single document body.
func (s *PG) Get(ctx context.Context, collection, id string) (model.Document, error) {
	const q = `SELECT body FROM documents WHERE collection=$1 AND doc_id=$2`
	var raw []byte
	if err := s.pool.QueryRow(ctx, q, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

const upsertSQL = `
INSERT INTO documents (collection, doc_id, body, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (collection, doc_id)
DO UPDATE SET body=EXCLUDED.body, updated_at=now()`

// Set upserts one document, replacing the stored body wholesale.
func (s *PG) Set(ctx context.Context, collection, id string, body model.Document) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = s.pool.Exec(ctx, upsertSQL, collection, id, raw)
	return err
}

// SetBatch upserts all writes inside a single transaction. The commit is
// all-or-nothing for the batch; batches are independent of each other.
func (s *PG) SetBatch(ctx context.Context, writes []Write) (err error) {
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	for i, w := range writes {
		var raw []byte
		raw, err = json.Marshal(w.Body)
		if err != nil {
			return fmt.Errorf("write[%d] encode %s/%s: %w", i, w.Collection, w.ID, err)
		}
		if _, err = tx.Exec(ctx, upsertSQL, w.Collection, w.ID, raw); err != nil {
			return fmt.Errorf("write[%d] %s/%s: %w", i, w.Collection, w.ID, err)
		}
	}
	return nil
}

// ListCollections returns distinct top-level collection names.
// Sub-collection paths (containing '/') are excluded.
func (s *PG) ListCollections(ctx context.Context) ([]string, error) {
	const q = `
SELECT DISTINCT collection FROM documents
WHERE position('/' in collection) = 0
ORDER BY collection`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ListDocuments returns every document of a collection keyed by id.
func (s *PG) ListDocuments(ctx context.Context, collection string) (map[string]model.Document, error) {
	const q = `SELECT doc_id, body FROM documents WHERE collection=$1 ORDER BY doc_id`
	rows, err := s.pool.Query(ctx, q, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.Document)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err = rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var doc model.Document
		if err = json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		out[id] = doc
	}
	return out, rows.Err()
}

// SubPath builds the storage path of a nested sub-collection.
func SubPath(parts ...string) string { return strings.Join(parts, "/") }
