package billing

import (
	"context"
	"time"

	"github.com/labrinth-gg/labrinth/libs/go/db"
)

// Store is the ledger slice the billing engine reads and writes
// through; satisfied by *db.Queries.
type Store interface {
	db.BillingQuerier
	GetUser(ctx context.Context, id int64) (db.User, error)
	UpdateUserCustomerID(ctx context.Context, id int64, customerID string) error
	GetProduct(ctx context.Context, id int64) (db.Product, error)
	GetPrice(ctx context.Context, id int64) (db.Price, error)
}

// TxStore lets the engine run a sequence of ledger writes atomically;
// satisfied by *db.Store.
type TxStore interface {
	RunInTx(ctx context.Context, fn func(q Store) error) error
}

// storeAdapter narrows db.RunInTx's func(q *db.Queries) signature to
// the engine's Store interface so billing never imports pgx directly.
type storeAdapter struct {
	store *db.Store
}

func NewTxStore(store *db.Store) TxStore {
	return &storeAdapter{store: store}
}

func (a *storeAdapter) RunInTx(ctx context.Context, fn func(q Store) error) error {
	return db.RunInTx(ctx, a.store, func(q *db.Queries) error {
		return fn(q)
	})
}

// reconciliationWindow bundles the time cutoffs the reconciliation
// loops apply, computed once per tick so every query in the tick sees
// the same "now".
type reconciliationWindow struct {
	now          time.Time
	failedSince  time.Time
	cancelAfter  time.Time
}

func newReconciliationWindow(now time.Time) reconciliationWindow {
	return reconciliationWindow{
		now:         now,
		failedSince: now.Add(-2 * 24 * time.Hour),
		cancelAfter: now.Add(-30 * 24 * time.Hour),
	}
}
