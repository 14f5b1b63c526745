package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/client/paymentproc"
	"github.com/labrinth-gg/labrinth/libs/go/db"
)

// ChangeSubscriptionProductResult mirrors spec §4.6's three proration
// outcomes. Downgrade and TooSmall both patch the subscription's open
// charge in place with no payment; Required leaves the charge
// untouched and returns a payment intent the caller must confirm — the
// subscription and open charge are only updated once the webhook
// reports the intent succeeded.
type ChangeSubscriptionProductResult struct {
	Outcome ProrationResult
	Intent  *paymentproc.Intent
}

// ChangeSubscriptionProduct applies spec §4.6's proration rule to a
// mid-cycle product change on an existing subscription.
func (e *Engine) ChangeSubscriptionProduct(ctx context.Context, subID int64, newPrice db.Price, now time.Time) (ChangeSubscriptionProductResult, error) {
	var result ChangeSubscriptionProductResult

	err := e.store.RunInTx(ctx, func(q Store) error {
		sub, err := q.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		openCharge, err := q.GetNextChargeForSubscription(ctx, sub.ID, []db.ChargeStatus{db.ChargeOpen})
		if err != nil {
			return err
		}
		if openCharge == nil {
			return apperr.Conflictf("subscription has no open charge to prorate against")
		}

		currentPrice, err := q.GetPrice(ctx, sub.PriceID)
		if err != nil {
			return err
		}

		intervalStart := openCharge.Due.Add(-intervalDuration(sub.Interval))
		outcome := e.proration.Calculate(intervalStart, openCharge.Due, now, currentPrice.AmountFor(sub.Interval), newPrice.AmountFor(sub.Interval))
		result.Outcome = outcome

		switch outcome.Kind {
		case ProrationDowngrade, ProrationTooSmall:
			openCharge.PriceID = newPrice.ID
			return q.UpdateCharge(ctx, *openCharge)
		case ProrationRequired:
			user, err := q.GetUser(ctx, sub.UserID)
			if err != nil {
				return err
			}
			if user.PaymentCustomerID == nil {
				return apperr.InvalidInputf("user has no payment customer on file")
			}
			prorationCharge, err := q.InsertCharge(ctx, db.Charge{
				UserID:               sub.UserID,
				PriceID:              newPrice.ID,
				Amount:               outcome.Amount,
				CurrencyCode:         newPrice.Currency,
				Status:               db.ChargeOpen,
				Due:                  now,
				Type:                 db.ChargeProration,
				SubscriptionID:       &sub.ID,
				SubscriptionInterval: &sub.Interval,
				PaymentPlatform:      db.PlatformStripe,
			})
			if err != nil {
				return err
			}
			intent, err := e.payment.CreatePaymentIntent(ctx, *user.PaymentCustomerID, prorationCharge.Amount, prorationCharge.CurrencyCode, map[string]string{
				"modrinth_charge_id": strconv.FormatInt(prorationCharge.ID, 10),
			})
			if err != nil {
				return err
			}
			result.Intent = &intent
			return nil
		default:
			return nil
		}
	})
	return result, err
}
