package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/client/paymentproc"
	"github.com/labrinth-gg/labrinth/libs/go/db"
)

// PromotionResult reports whether a Medal-to-Pyro promotion was
// deferred to the existing Expiring charge or required an immediate
// payment intent.
type PromotionResult struct {
	Deferred bool
	Intent   *paymentproc.Intent
	Charge   db.Charge
}

// PromoteMedalToPyro implements spec §4.6's promotion rule: a Pyro plan
// with RAM no larger than the Medal spec's is free to switch into on
// the existing Expiring charge's schedule; a larger plan requires
// payment before the subscription can change products.
func (e *Engine) PromoteMedalToPyro(ctx context.Context, subID int64, newPrice db.Price, newProduct db.Product) (PromotionResult, error) {
	if newProduct.Metadata.Kind != db.ProductPyro || newProduct.Metadata.Pyro == nil {
		return PromotionResult{}, apperr.InvalidInputf("promotion target must be a pyro product")
	}

	var result PromotionResult
	err := e.store.RunInTx(ctx, func(q Store) error {
		sub, err := q.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if sub.Metadata == nil || sub.Metadata.Kind != db.SubMetaMedal {
			return apperr.Conflictf("subscription is not an active medal plan")
		}

		currentPrice, err := q.GetPrice(ctx, sub.PriceID)
		if err != nil {
			return err
		}
		currentProduct, err := q.GetProduct(ctx, currentPrice.ProductID)
		if err != nil {
			return err
		}
		if currentProduct.Metadata.Medal == nil {
			return apperr.Conflictf("subscription's current product is not a medal plan")
		}
		medalRAM := currentProduct.Metadata.Medal.RAM
		pyroRAM := newProduct.Metadata.Pyro.RAM

		expiring, err := q.GetNextChargeForSubscription(ctx, sub.ID, []db.ChargeStatus{db.ChargeExpiring})
		if err != nil {
			return err
		}

		if pyroRAM <= medalRAM && expiring != nil {
			expiring.Status = db.ChargeOpen
			expiring.PriceID = newPrice.ID
			expiring.PaymentPlatform = db.PlatformStripe
			if err := q.UpdateCharge(ctx, *expiring); err != nil {
				return err
			}
			result = PromotionResult{Deferred: true, Charge: *expiring}
			return nil
		}

		user, err := q.GetUser(ctx, sub.UserID)
		if err != nil {
			return err
		}
		if user.PaymentCustomerID == nil {
			return apperr.InvalidInputf("user has no payment customer on file")
		}

		charge, err := q.InsertCharge(ctx, db.Charge{
			UserID:               sub.UserID,
			PriceID:              newPrice.ID,
			Amount:               newPrice.AmountFor(sub.Interval),
			CurrencyCode:         newPrice.Currency,
			Status:               db.ChargeOpen,
			Due:                  time.Now(),
			Type:                 db.ChargeProration,
			SubscriptionID:       &sub.ID,
			SubscriptionInterval: &sub.Interval,
			PaymentPlatform:      db.PlatformStripe,
		})
		if err != nil {
			return err
		}

		intent, err := e.payment.CreatePaymentIntent(ctx, *user.PaymentCustomerID, charge.Amount, charge.CurrencyCode, map[string]string{
			"modrinth_charge_id": strconv.FormatInt(charge.ID, 10),
		})
		if err != nil {
			return err
		}

		result = PromotionResult{Deferred: false, Intent: &intent, Charge: charge}
		return nil
	})
	return result, err
}
