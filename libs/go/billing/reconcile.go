package billing

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/labrinth-gg/labrinth/libs/go/client/provisioner"
	"github.com/labrinth-gg/labrinth/libs/go/client/taxproc"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
	"github.com/labrinth-gg/labrinth/libs/go/metrics"
)

// Reconciler runs, on one ticker, the three periodic passes spec §4.6/§5
// require: moving charges through their due/failed lifecycle, nudging
// subscriptions that are stuck between charge and provisioning state,
// and filling in tax amounts the processor hadn't computed yet at
// charge-creation time. The billing and tax passes throttle their
// processor calls to 5 requests/second; the subscription pass's
// provisioner calls are not throttled.
type Reconciler struct {
	engine   *Engine
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewReconciler(engine *Engine, interval time.Duration) *Reconciler {
	return &Reconciler{
		engine:   engine,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the reconciliation loop in the background, running
// once immediately and then on every tick.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.run()
	logger.Info("billing reconciler started", zap.Duration("interval", r.interval))
}

func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	logger.Info("billing reconciler stopped")
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	r.Tick(context.Background())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Tick(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// Tick runs all three reconciliation passes once. Exported so a
// one-shot cron invocation (outside the ticker loop) can drive it too.
func (r *Reconciler) Tick(ctx context.Context) {
	window := newReconciliationWindow(time.Now())

	if err := r.indexBilling(ctx, window); err != nil {
		logger.Error("index_billing pass failed", zap.Error(err))
	}
	if err := r.indexSubscriptions(ctx, window); err != nil {
		logger.Error("index_subscriptions pass failed", zap.Error(err))
	}
	if err := r.rollIndexTaxAmountOnCharges(ctx); err != nil {
		logger.Error("roll_index_tax_amount_on_charges pass failed", zap.Error(err))
	}
}

// indexBilling drives due Open charges to a payment attempt and
// abandons Failed charges that have sat unresolved past the failure
// cutoff. The candidate batch is claimed with FOR UPDATE SKIP LOCKED in
// its own short transaction, then each charge is re-locked and attempted
// in its own transaction, so a row's lock is never held across the
// rate-limited wait for the payment processor — only a single charge is
// ever locked at a time, for the duration of its own attempt.
func (r *Reconciler) indexBilling(ctx context.Context, window reconciliationWindow) error {
	timer := prometheus.NewTimer(metrics.ReconcileLoopDuration.WithLabelValues("index_billing"))
	defer timer.ObserveDuration()

	if err := r.engine.store.RunInTx(ctx, func(q Store) error {
		stale, err := q.GetStaleFailedCharges(ctx, window.cancelAfter)
		if err != nil {
			return err
		}
		for _, c := range stale {
			c.Status = db.ChargeCancelled
			if err := q.UpdateCharge(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	var charges []db.Charge
	if err := r.engine.store.RunInTx(ctx, func(q Store) error {
		var err error
		charges, err = q.GetChargesDueOrFailed(ctx, window.now, window.failedSince)
		return err
	}); err != nil {
		return err
	}

	limiter := rate.NewLimiter(5, 1)
	for _, charge := range charges {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		err := r.engine.store.RunInTx(ctx, func(q Store) error {
			return r.engine.attemptCharge(ctx, q, charge)
		})
		if err != nil {
			logger.Warn("charge attempt failed", zap.Error(err), zap.Int64("charge_id", charge.ID))
		}
	}
	return nil
}

// indexSubscriptions cancels subscriptions whose charge stream has
// definitively stopped: an Expiring/Cancelled charge past its due date
// with nothing to replace it, or a subscription stuck Failed beyond the
// 2-day grace window.
func (r *Reconciler) indexSubscriptions(ctx context.Context, window reconciliationWindow) error {
	timer := prometheus.NewTimer(metrics.ReconcileLoopDuration.WithLabelValues("index_subscriptions"))
	defer timer.ObserveDuration()

	return r.engine.store.RunInTx(ctx, func(q Store) error {
		subs, err := q.GetSubscriptionsForReconciliation(ctx, window.now)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if sub.Status == db.SubscriptionUnprovisioned {
				continue
			}

			reason := provisioner.SuspendCancelled
			if failed, err := q.GetNextChargeForSubscription(ctx, sub.ID, []db.ChargeStatus{db.ChargeFailed}); err == nil && failed != nil {
				reason = provisioner.SuspendPaymentFailed
			}

			if sub.Metadata != nil {
				if err := r.engine.provisioner.Suspend(ctx, sub.Metadata.ServerID, reason); err != nil {
					logger.Warn("failed to suspend server for unprovisioned subscription, leaving status untouched for retry", zap.Error(err), zap.Int64("subscription_id", sub.ID))
					continue
				}
			}
			if err := q.UpdateSubscriptionStatus(ctx, sub.ID, db.SubscriptionUnprovisioned); err != nil {
				return err
			}
		}
		return nil
	})
}

// rollIndexTaxAmountOnCharges fills tax_amount on succeeded charges the
// webhook committed before the tax processor had finished computing it.
// Like indexBilling, the candidate batch is claimed in its own short
// transaction and each charge is re-locked and backfilled in its own
// transaction, so no row lock is held across the rate-limited call to
// the tax processor.
func (r *Reconciler) rollIndexTaxAmountOnCharges(ctx context.Context) error {
	timer := prometheus.NewTimer(metrics.ReconcileLoopDuration.WithLabelValues("roll_index_tax_amount_on_charges"))
	defer timer.ObserveDuration()

	var charges []db.Charge
	if err := r.engine.store.RunInTx(ctx, func(q Store) error {
		var err error
		charges, err = q.GetChargesMissingTax(ctx, 100)
		return err
	}); err != nil {
		return err
	}

	limiter := rate.NewLimiter(5, 1)
	for _, charge := range charges {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		err := r.engine.store.RunInTx(ctx, func(q Store) error {
			locked, err := q.LockCharge(ctx, charge.ID)
			if err != nil {
				return err
			}
			if locked.TaxPlatformID != nil {
				return nil // already backfilled since the batch was claimed
			}
			user, err := q.GetUser(ctx, locked.UserID)
			if err != nil {
				return err
			}
			if user.PaymentCustomerID == nil {
				return nil
			}
			result, err := r.engine.tax.CreateEphemeralTransaction(ctx, taxproc.EphemeralTransactionFields{
				Amount:   locked.Amount,
				Currency: locked.CurrencyCode,
			})
			if err != nil {
				return err
			}
			locked.TaxAmount = result.TaxAmountToCollect
			locked.TaxPlatformID = &result.TransactionID
			version := result.TransactionVersion
			locked.TaxTransactionVersion = &version
			return q.UpdateCharge(ctx, locked)
		})
		if err != nil {
			logger.Warn("tax backfill failed", zap.Error(err), zap.Int64("charge_id", charge.ID))
		}
	}
	return nil
}

// attemptCharge re-locks an Open or Failed charge, fires a payment
// intent for it and records the outcome (Succeeded, Processing, or
// Failed when the intent cannot be created) with the attempt time. A
// charge whose user has no payment customer is left unchanged.
func (e *Engine) attemptCharge(ctx context.Context, q Store, charge db.Charge) error {
	locked, err := q.LockCharge(ctx, charge.ID)
	if err != nil {
		return err
	}
	if locked.Status != db.ChargeOpen && locked.Status != db.ChargeFailed {
		return nil // already advanced by a concurrent reconciler pass
	}

	user, err := q.GetUser(ctx, locked.UserID)
	if err != nil {
		return err
	}
	if user.PaymentCustomerID == nil {
		return nil
	}

	metadata := map[string]string{
		"modrinth_charge_id": strconv.FormatInt(locked.ID, 10),
	}
	intent, err := e.payment.CreatePaymentIntent(ctx, *user.PaymentCustomerID, locked.Amount+locked.TaxAmount, locked.CurrencyCode, metadata)
	if err != nil {
		metrics.ChargeAttemptsTotal.WithLabelValues("failed").Inc()
		now := time.Now()
		locked.Status = db.ChargeFailed
		locked.LastAttempt = &now
		return q.UpdateCharge(ctx, locked)
	}

	now := time.Now()
	locked.LastAttempt = &now
	locked.PaymentPlatformID = &intent.ID
	if intent.Status == "succeeded" {
		locked.Status = db.ChargeSucceeded
		metrics.ChargeAttemptsTotal.WithLabelValues("succeeded").Inc()
	} else {
		locked.Status = db.ChargeProcessing
		metrics.ChargeAttemptsTotal.WithLabelValues("processing").Inc()
	}
	return q.UpdateCharge(ctx, locked)
}
