// Package db is the ledger: a typed wrapper over the relational store
// that every other component reads and writes through. It owns all
// persistent entities; callers never issue raw SQL of their own.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// method below can run against a bare connection or an open
// transaction without duplicating itself.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Queries bundles all per-aggregate query methods behind one handle,
// generalizing the teacher's sqlc-shaped db.Queries/db.Querier split.
type Queries struct {
	db DBTX
}

func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}

// GetDBTX returns the underlying connection or transaction, for callers
// that need to hand it to a lower-level helper.
func (q *Queries) GetDBTX() DBTX {
	return q.db
}

// Store owns the pool and is the entry point for beginning transactions.
type Store struct {
	Pool *pgxpool.Pool
	*Queries
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool, Queries: New(pool)}
}

// Begin starts a transaction and returns both the raw pgx.Tx (for
// Commit/Rollback) and a *Queries bound to it.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, *Queries, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	return tx, New(tx), nil
}

// WithTx returns a *Queries bound to an already-open transaction, used
// by callers composing several ledger operations into one commit.
func (s *Store) WithTx(tx pgx.Tx) *Queries {
	return New(tx)
}

// RunInTx begins a transaction, invokes fn with Queries bound to it,
// and commits iff fn returns nil; any error rolls back.
func RunInTx(ctx context.Context, store *Store, fn func(q *Queries) error) error {
	tx, q, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(q); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
