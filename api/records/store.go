// Package records implements a small SQL-table-backed resource that
// gives the request dispatcher something concrete to route: POST/GET
// against a single "records" table, always reached through
// api/transactions.Dispatcher so it exercises the held-transaction core
// end-to-end.
package records

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sushant-115/heldtxn/core/dbfacade"
)

// Record is the one row shape this demo resource persists.
type Record struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// querier is the subset of pgx.Tx / *pgxpool.Pool this store needs.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists records either against the pool directly, for requests
// with no held transaction, or against the ambient pgx.Tx a held
// transaction's worker installed on ctx via
// dbfacade.WithTx/TxFromContext.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) querier(ctx context.Context) querier {
	if tx, ok := dbfacade.TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// Insert creates a new record and returns it.
func (s *Store) Insert(ctx context.Context, name string) (Record, error) {
	var rec Record
	rec.Name = name
	row := s.querier(ctx).QueryRow(ctx,
		`INSERT INTO records (name, created_at) VALUES ($1, now()) RETURNING id, name, created_at`,
		name)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.CreatedAt); err != nil {
		return Record{}, fmt.Errorf("records: insert: %w", err)
	}
	return rec, nil
}

// List returns every record visible to ctx's connection, oldest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.querier(ctx).Query(ctx, `SELECT id, name, created_at FROM records ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("records: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("records: scanning row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: iterating rows: %w", err)
	}
	return out, nil
}
