package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/client/taxproc"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/metrics"
)

// CreateSubscriptionCharge opens an Open charge due one interval from
// now, for a newly created paid subscription.
func (e *Engine) CreateSubscriptionCharge(ctx context.Context, sub db.UserSubscription, price db.Price, now time.Time) (db.Charge, error) {
	var created db.Charge
	err := e.store.RunInTx(ctx, func(q Store) error {
		var err error
		created, err = q.InsertCharge(ctx, db.Charge{
			UserID:               sub.UserID,
			PriceID:              price.ID,
			Amount:               price.AmountFor(sub.Interval),
			CurrencyCode:         price.Currency,
			Status:               db.ChargeOpen,
			Due:                  now.Add(intervalDuration(sub.Interval)),
			Type:                 db.ChargeSubscription,
			SubscriptionID:       &sub.ID,
			SubscriptionInterval: &sub.Interval,
			PaymentPlatform:      db.PlatformStripe,
		})
		return err
	})
	return created, err
}

// CreateMedalRedeemalCharge opens an Expiring charge for a free-trial
// Medal redemption: no payment platform involved, the charge's due
// timestamp marks when the trial benefit ends.
func (e *Engine) CreateMedalRedeemalCharge(ctx context.Context, sub db.UserSubscription, price db.Price, now time.Time) (db.Charge, error) {
	var created db.Charge
	err := e.store.RunInTx(ctx, func(q Store) error {
		var err error
		created, err = q.InsertCharge(ctx, db.Charge{
			UserID:               sub.UserID,
			PriceID:              price.ID,
			Amount:               0,
			CurrencyCode:         price.Currency,
			Status:               db.ChargeExpiring,
			Due:                  now.Add(intervalDuration(sub.Interval)),
			Type:                 db.ChargeSubscription,
			SubscriptionID:       &sub.ID,
			SubscriptionInterval: &sub.Interval,
			PaymentPlatform:      db.PlatformNone,
		})
		return err
	})
	return created, err
}

func intervalDuration(d db.PriceDuration) time.Duration {
	switch d {
	case db.DurationFiveDays:
		return 5 * 24 * time.Hour
	case db.DurationMonthly:
		return 30 * 24 * time.Hour
	case db.DurationQuarterly:
		return 91 * 24 * time.Hour
	case db.DurationYearly:
		return 365 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// RefundAmountKind selects between the three refund request shapes of
// spec §4.6.
type RefundAmountKind string

const (
	RefundFull    RefundAmountKind = "full"
	RefundPartial RefundAmountKind = "partial"
	RefundNone    RefundAmountKind = "none"
)

type RefundRequest struct {
	Kind         RefundAmountKind
	Amount       int64 // only read when Kind == RefundPartial
	Unprovision  bool
}

// Refund implements spec §4.6's refund operation: preconditions, a
// child Refund charge, a negated (or partially negated) tax
// transaction, and the ManualTaxReconciliationRequired failure path
// when the tax processor rejects the negation on a version mismatch.
func (e *Engine) Refund(ctx context.Context, chargeID int64, req RefundRequest) (db.Charge, error) {
	var refundCharge db.Charge
	var manualTaxErr error

	err := e.store.RunInTx(ctx, func(q Store) error {
		parent, err := q.LockCharge(ctx, chargeID)
		if err != nil {
			return err
		}
		if parent.Status != db.ChargeSucceeded {
			return apperr.Conflictf("refund requires a succeeded parent charge")
		}

		children, err := q.GetChildCharges(ctx, parent.ID)
		if err != nil {
			return err
		}
		var alreadyRefunded int64
		for _, c := range children {
			if c.Type == db.ChargeRefund {
				alreadyRefunded += -c.Amount - c.TaxAmount
			}
		}

		requested := refundRequestAmount(req, parent)
		total := parent.Amount + parent.TaxAmount
		if alreadyRefunded+requested > total {
			return apperr.Conflictf("cumulative refund would exceed the parent charge amount")
		}

		refundCharge, err = q.InsertCharge(ctx, db.Charge{
			UserID:          parent.UserID,
			PriceID:         parent.PriceID,
			Amount:          -requested,
			CurrencyCode:    parent.CurrencyCode,
			Status:          db.ChargeSucceeded,
			Due:             time.Now(),
			Type:            db.ChargeRefund,
			SubscriptionID:  parent.SubscriptionID,
			PaymentPlatform: parent.PaymentPlatform,
			ParentChargeID:  &parent.ID,
		})
		if err != nil {
			return err
		}

		if parent.PaymentPlatformID != nil {
			if err := e.payment.Refund(ctx, *parent.PaymentPlatformID, requested); err != nil {
				return err
			}
		}

		if parent.TaxPlatformID != nil && parent.TaxTransactionVersion != nil {
			negResult, taxErr := e.tax.NegateOrCreatePartialNegation(ctx, *parent.TaxPlatformID, *parent.TaxTransactionVersion, parent.Amount, negationFieldsFor(refundCharge))
			if taxErr != nil {
				if apperr.Is(taxErr, apperr.ManualTaxReconciliationRequired) {
					manualTaxErr = taxErr
					return nil // commit the refund charge with tax_platform_id left null
				}
				return taxErr
			}
			refundCharge.TaxPlatformID = &negResult.TransactionID
			refundCharge.TaxTransactionVersion = &negResult.TransactionVersion
			if err := q.UpdateCharge(ctx, refundCharge); err != nil {
				return err
			}
		}

		if req.Unprovision && parent.SubscriptionID != nil {
			next, err := q.GetNextChargeForSubscription(ctx, *parent.SubscriptionID, []db.ChargeStatus{db.ChargeOpen})
			if err != nil {
				return err
			}
			if next != nil {
				next.Status = db.ChargeCancelled
				next.Due = time.Now()
				if err := q.UpdateCharge(ctx, *next); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return db.Charge{}, err
	}
	invalidateUserCache(ctx, e.cache, refundCharge.UserID)
	metrics.RefundsTotal.WithLabelValues(string(req.Kind)).Inc()
	if manualTaxErr != nil {
		return refundCharge, manualTaxErr
	}
	return refundCharge, nil
}

// ReprocessChargeTax retries the tax leg of a refund whose parent tax
// negation previously failed with ManualTaxReconciliationRequired.
func (e *Engine) ReprocessChargeTax(ctx context.Context, refundChargeID int64) error {
	return e.store.RunInTx(ctx, func(q Store) error {
		refundCharge, err := q.LockCharge(ctx, refundChargeID)
		if err != nil {
			return err
		}
		if refundCharge.Type != db.ChargeRefund || refundCharge.ParentChargeID == nil {
			return apperr.InvalidInputf("charge is not a pending refund")
		}
		parent, err := q.GetCharge(ctx, *refundCharge.ParentChargeID)
		if err != nil {
			return err
		}
		if parent.TaxPlatformID == nil || parent.TaxTransactionVersion == nil {
			return apperr.Conflictf("parent charge has no committed tax transaction")
		}
		negResult, err := e.tax.NegateOrCreatePartialNegation(ctx, *parent.TaxPlatformID, *parent.TaxTransactionVersion, parent.Amount, negationFieldsFor(refundCharge))
		if err != nil {
			return err
		}
		refundCharge.TaxPlatformID = &negResult.TransactionID
		refundCharge.TaxTransactionVersion = &negResult.TransactionVersion
		return q.UpdateCharge(ctx, refundCharge)
	})
}

func refundRequestAmount(req RefundRequest, parent db.Charge) int64 {
	switch req.Kind {
	case RefundFull:
		return parent.Amount + parent.TaxAmount
	case RefundPartial:
		return req.Amount
	default:
		return 0
	}
}

func invalidateUserCache(ctx context.Context, c *cache.Cache, userID int64) {
	c.Delete(ctx, cache.Key(cache.KindUser, userID))
}

func negationFieldsFor(refund db.Charge) taxproc.NegationFields {
	return taxproc.NegationFields{
		ID:     strconv.FormatInt(refund.ID, 10),
		Amount: refund.Amount,
	}
}
