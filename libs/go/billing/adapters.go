package billing

import (
	"context"

	"github.com/labrinth-gg/labrinth/libs/go/client/paymentproc"
	"github.com/labrinth-gg/labrinth/libs/go/client/provisioner"
	"github.com/labrinth-gg/labrinth/libs/go/client/taxproc"
)

// PaymentProcessor is the slice of the Stripe-shaped adapter the
// billing engine depends on, kept as an interface so tests substitute
// a fake rather than hitting the network.
type PaymentProcessor interface {
	CreatePaymentIntent(ctx context.Context, customerID string, amount int64, currency string, metadata map[string]string) (paymentproc.Intent, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	HasDefaultPaymentMethod(ctx context.Context, customerID string) (bool, error)
	Refund(ctx context.Context, paymentIntentID string, amount int64) error
}

// TaxProcessor is the slice of the Anrok-shaped adapter the billing
// engine depends on.
type TaxProcessor interface {
	CreateEphemeralTransaction(ctx context.Context, fields taxproc.EphemeralTransactionFields) (taxproc.EphemeralTransactionResult, error)
	NegateOrCreatePartialNegation(ctx context.Context, originalID string, originalVersion int32, originalAmount int64, negation taxproc.NegationFields) (taxproc.NegationResult, error)
}

// Provisioner is the slice of the Archon-shaped server provisioner the
// billing engine depends on for Pyro/Medal product fulfillment.
type Provisioner interface {
	CreateServer(ctx context.Context, req provisioner.CreateServerRequest) (provisioner.CreateServerResponse, error)
	Suspend(ctx context.Context, serverID string, reason provisioner.SuspendReason) error
	Unsuspend(ctx context.Context, serverID string) error
	Reallocate(ctx context.Context, serverID string, req provisioner.ReallocateRequest) error
}

// BadgeGranter handles Midas product fulfillment, which is a badge
// bitflag on the user row rather than a server.
type BadgeGranter interface {
	GrantBadge(ctx context.Context, userID int64, badge int64) error
	RevokeBadge(ctx context.Context, userID int64, badge int64) error
}

// Notifier enqueues user-facing notifications, used for PaymentFailed
// and similar billing-triggered messages.
type Notifier interface {
	NotifyPaymentFailed(ctx context.Context, userID int64, chargeID int64) error
	NotifyTaxIssue(ctx context.Context, userID int64, chargeID int64, message string) error
}
