// Package billing implements the charge/subscription state machine of
// spec §4.6: charge creation policy, webhook ingestion, refunds with
// tax-transaction versioning, proration, and the periodic
// reconciliation loops that drive charges and subscriptions to steady
// state.
package billing

import (
	"github.com/labrinth-gg/labrinth/libs/go/cache"
)

const (
	// MidasBadge is the badge bitflag Midas subscriptions grant.
	MidasBadge int64 = 1 << 0
)

// Engine bundles the ledger, the three external adapters, and the
// cache invalidation hook every mutating operation calls.
type Engine struct {
	store       TxStore
	payment     PaymentProcessor
	tax         TaxProcessor
	provisioner Provisioner
	badges      BadgeGranter
	notifier    Notifier
	cache       *cache.Cache
	proration   *ProrationCalculator
}

func NewEngine(store TxStore, payment PaymentProcessor, tax TaxProcessor, prov Provisioner, badges BadgeGranter, notifier Notifier, c *cache.Cache) *Engine {
	return &Engine{
		store:       store,
		payment:     payment,
		tax:         tax,
		provisioner: prov,
		badges:      badges,
		notifier:    notifier,
		cache:       c,
		proration:   NewProrationCalculator(),
	}
}
