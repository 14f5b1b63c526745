package billing

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
	"github.com/labrinth-gg/labrinth/libs/go/metrics"
)

// paymentIntentMetadata holds the two modrinth_* payment intent metadata
// keys the webhook reads: modrinth_charge_id (required) and
// modrinth_tax_amount (optional).
type paymentIntentMetadata struct {
	ChargeID  int64
	TaxAmount int64
}

func parsePaymentIntentMetadata(raw map[string]string) (paymentIntentMetadata, error) {
	var m paymentIntentMetadata
	chargeID, err := strconv.ParseInt(raw["modrinth_charge_id"], 10, 64)
	if err != nil {
		return m, apperr.Wrap(apperr.InvalidInput, "webhook: missing or malformed modrinth_charge_id", err)
	}
	m.ChargeID = chargeID
	if v, ok := raw["modrinth_tax_amount"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			m.TaxAmount = n
		}
	}
	return m, nil
}

// HandleWebhookEvent dispatches a verified Stripe event to the
// matching charge transition, per spec §4.6. It is idempotent by
// charge id: re-applying a successful event leaves the ledger
// unchanged, because every payment-intent branch is keyed off a SELECT ... FOR UPDATE
// on the charge row inside a single transaction.
func (e *Engine) HandleWebhookEvent(ctx context.Context, event stripe.Event) error {
	var err error
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		err = e.handlePaymentIntentSucceeded(ctx, event)
	case stripe.EventTypePaymentIntentProcessing:
		err = e.handlePaymentIntentProcessing(ctx, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		err = e.handlePaymentIntentFailed(ctx, event)
	case stripe.EventTypePaymentMethodAttached:
		err = e.handlePaymentMethodAttached(ctx, event)
	default:
		logger.Debug("unhandled billing webhook event type", zap.String("event_type", string(event.Type)))
		return nil
	}

	outcome := "handled"
	if err != nil {
		outcome = "error"
	}
	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), outcome).Inc()
	return err
}

func (e *Engine) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "webhook: decode payment intent", err)
	}
	meta, err := parsePaymentIntentMetadata(pi.Metadata)
	if err != nil {
		return err
	}

	return e.store.RunInTx(ctx, func(q Store) error {
		charge, err := q.LockCharge(ctx, meta.ChargeID)
		if err != nil {
			return err
		}
		if charge.Status == db.ChargeSucceeded {
			return nil // already applied, replay is a no-op
		}

		charge.Status = db.ChargeSucceeded
		charge.TaxAmount = meta.TaxAmount
		intentID := pi.ID
		charge.PaymentPlatformID = &intentID
		net := pi.Amount - meta.TaxAmount
		charge.Net = &net
		if err := q.UpdateCharge(ctx, charge); err != nil {
			return err
		}

		if err := e.provisionForCharge(ctx, q, charge); err != nil {
			return err
		}

		if charge.SubscriptionID != nil {
			if err := e.advanceSubscriptionCharge(ctx, q, charge); err != nil {
				return err
			}
		}

		return nil
	})
}

// provisionForCharge fulfills the product purchased by a succeeded
// charge. Only the Midas badge grant is done here; no Pyro or Medal
// server is created, reallocated or unsuspended on this path.
func (e *Engine) provisionForCharge(ctx context.Context, q Store, charge db.Charge) error {
	price, err := q.GetPrice(ctx, charge.PriceID)
	if err != nil {
		return err
	}
	product, err := q.GetProduct(ctx, price.ProductID)
	if err != nil {
		return err
	}
	if product.Metadata.Kind == db.ProductMidas {
		return e.badges.GrantBadge(ctx, charge.UserID, MidasBadge)
	}
	return nil
}

// advanceSubscriptionCharge implements the three-way branch of spec
// §4.6's PaymentIntentSucceeded handler: convert an Expiring charge to
// Open, patch an existing proration-driven Open charge, or create the
// next Open charge for the following interval.
func (e *Engine) advanceSubscriptionCharge(ctx context.Context, q Store, charge db.Charge) error {
	sub, err := q.GetSubscription(ctx, *charge.SubscriptionID)
	if err != nil {
		return err
	}

	expiring, err := q.GetNextChargeForSubscription(ctx, sub.ID, []db.ChargeStatus{db.ChargeExpiring})
	if err != nil {
		return err
	}
	if expiring != nil {
		expiring.Status = db.ChargeOpen
		expiring.Due = time.Now().Add(intervalDuration(sub.Interval))
		expiring.PriceID = charge.PriceID
		expiring.PaymentPlatform = db.PlatformStripe
		return q.UpdateCharge(ctx, *expiring)
	}

	openCharge, err := q.GetNextChargeForSubscription(ctx, sub.ID, []db.ChargeStatus{db.ChargeOpen})
	if err != nil {
		return err
	}
	if openCharge != nil {
		openCharge.PriceID = charge.PriceID
		openCharge.SubscriptionInterval = &sub.Interval
		return q.UpdateCharge(ctx, *openCharge)
	}

	_, err = q.InsertCharge(ctx, db.Charge{
		UserID:               charge.UserID,
		PriceID:              charge.PriceID,
		CurrencyCode:         charge.CurrencyCode,
		Status:               db.ChargeOpen,
		Due:                  charge.Due.Add(intervalDuration(sub.Interval)),
		Type:                 db.ChargeSubscription,
		SubscriptionID:       &sub.ID,
		SubscriptionInterval: &sub.Interval,
		PaymentPlatform:      db.PlatformStripe,
	})
	return err
}

func (e *Engine) handlePaymentIntentProcessing(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "webhook: decode payment intent", err)
	}
	meta, err := parsePaymentIntentMetadata(pi.Metadata)
	if err != nil {
		return err
	}
	return e.store.RunInTx(ctx, func(q Store) error {
		charge, err := q.LockCharge(ctx, meta.ChargeID)
		if err != nil {
			return err
		}
		if charge.Status == db.ChargeProcessing || charge.Status == db.ChargeSucceeded {
			return nil
		}
		charge.Status = db.ChargeProcessing
		return q.UpdateCharge(ctx, charge)
	})
}

func (e *Engine) handlePaymentIntentFailed(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "webhook: decode payment intent", err)
	}
	meta, err := parsePaymentIntentMetadata(pi.Metadata)
	if err != nil {
		return err
	}

	var userID int64
	var shouldNotify bool
	err = e.store.RunInTx(ctx, func(q Store) error {
		charge, err := q.LockCharge(ctx, meta.ChargeID)
		if err != nil {
			return err
		}
		if charge.Status == db.ChargeFailed || charge.Status == db.ChargeSucceeded {
			return nil // already resolved; an out-of-order failure event must not downgrade it
		}
		charge.Status = db.ChargeFailed
		now := time.Now()
		charge.LastAttempt = &now
		userID = charge.UserID
		shouldNotify = true
		return q.UpdateCharge(ctx, charge)
	})
	if err != nil {
		return err
	}
	if shouldNotify && e.notifier != nil {
		if nerr := e.notifier.NotifyPaymentFailed(ctx, userID, meta.ChargeID); nerr != nil {
			logger.Warn("failed to enqueue payment-failed notification", zap.Error(nerr), zap.Int64("charge_id", meta.ChargeID))
		}
	}
	return nil
}

func (e *Engine) handlePaymentMethodAttached(ctx context.Context, event stripe.Event) error {
	var pm stripe.PaymentMethod
	if err := json.Unmarshal(event.Data.Raw, &pm); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "webhook: decode payment method", err)
	}
	if pm.Customer == nil {
		return nil
	}
	customerID := pm.Customer.ID
	hasDefault, err := e.payment.HasDefaultPaymentMethod(ctx, customerID)
	if err != nil {
		return err
	}
	if hasDefault {
		return nil
	}
	return e.payment.SetDefaultPaymentMethod(ctx, customerID, pm.ID)
}
