package billing

import (
	"context"

	"github.com/labrinth-gg/labrinth/libs/go/db"
)

// dbBadgeGranter satisfies BadgeGranter directly against the database,
// outside any reconciliation transaction, since badge fulfillment for
// a succeeded charge is a best-effort side effect rather than part of
// the ledger write itself.
type dbBadgeGranter struct {
	store *db.Store
}

func NewBadgeGranter(store *db.Store) BadgeGranter {
	return &dbBadgeGranter{store: store}
}

func (g *dbBadgeGranter) GrantBadge(ctx context.Context, userID int64, badge int64) error {
	return db.RunInTx(ctx, g.store, func(q *db.Queries) error {
		return q.GrantBadge(ctx, userID, badge)
	})
}

func (g *dbBadgeGranter) RevokeBadge(ctx context.Context, userID int64, badge int64) error {
	return db.RunInTx(ctx, g.store, func(q *db.Queries) error {
		return q.RevokeBadge(ctx, userID, badge)
	})
}
