package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
	"github.com/labrinth-gg/labrinth/libs/go/metrics"
)

// maxDeliveryAttempts is the bound spec §4.7 sets before a delivery
// gives up and is marked PermanentlyFailed.
const maxDeliveryAttempts = 3

// retryBackoff is added to next_attempt after a transient send failure.
const retryBackoff = 10 * time.Second

// Template renders one notification kind into a subject/body pair.
// Custom is the one kind whose render step hits an external template
// store and is guarded against a cache stampede.
type Template struct {
	Subject string
	Render  func(n db.Notification) (html string, err error)
	Custom  bool
}

// EmailWorker drains the email delivery queue: claim, render, send,
// with bounded concurrency and a single-permit semaphore around
// Custom-template renders so a cold template cache doesn't get hit by
// every in-flight goroutine at once.
type EmailWorker struct {
	store      Store
	client     *resend.Client
	fromEmail  string
	fromName   string
	templates  map[db.NotificationBodyKind]Template
	customSem  *semaphore.Weighted
}

func NewEmailWorker(store Store, apiKey, fromEmail, fromName string, templates map[db.NotificationBodyKind]Template) *EmailWorker {
	return &EmailWorker{
		store:     store,
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		templates: templates,
		customSem: semaphore.NewWeighted(1),
	}
}

// Index claims up to limit pending email deliveries and attempts each,
// per spec §4.7's outcome table.
func (w *EmailWorker) Index(ctx context.Context, limit int) error {
	claimed, err := w.claim(ctx, limit)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, d := range claimed {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.attempt(ctx, d)
		}()
	}
	wg.Wait()
	return nil
}

func (w *EmailWorker) claim(ctx context.Context, limit int) ([]db.NotificationDelivery, error) {
	due, err := w.store.ClaimPendingEmailDeliveries(ctx, limit)
	if err != nil {
		return nil, err
	}
	var claimed []db.NotificationDelivery
	for _, d := range due {
		if d.AttemptCount >= maxDeliveryAttempts {
			if err := w.store.UpdateDeliveryStatus(ctx, d.NotificationID, db.ChannelEmail, db.DeliveryPermanentlyFailed, d.NextAttempt); err != nil {
				logger.Warn("failed to mark delivery permanently failed", zap.Error(err), zap.Int64("notification_id", d.NotificationID))
			}
			continue
		}
		claimed = append(claimed, d)
	}
	return claimed, nil
}

func (w *EmailWorker) attempt(ctx context.Context, d db.NotificationDelivery) {
	notifications, err := w.notificationFor(ctx, d.NotificationID)
	if err != nil {
		logger.Warn("failed to load notification for delivery", zap.Error(err), zap.Int64("notification_id", d.NotificationID))
		return
	}

	tmpl, ok := w.templates[notifications.Body.Kind]
	if !ok {
		w.updateStatus(ctx, d, db.DeliverySkippedDefault, d.NextAttempt)
		return
	}

	user, err := w.store.GetUser(ctx, notifications.UserID)
	if err != nil {
		logger.Warn("failed to load recipient", zap.Error(err), zap.Int64("user_id", notifications.UserID))
		return
	}
	if user.Email == nil || *user.Email == "" {
		w.updateStatus(ctx, d, db.DeliverySkippedPreferences, d.NextAttempt)
		return
	}

	if tmpl.Custom {
		if err := w.customSem.Acquire(ctx, 1); err != nil {
			return
		}
		defer w.customSem.Release(1)
	}

	html, err := tmpl.Render(notifications)
	if err != nil {
		w.updateStatus(ctx, d, db.DeliveryPending, time.Now().Add(retryBackoff))
		return
	}

	from := fmt.Sprintf("%s <%s>", w.fromName, w.fromEmail)
	_, sendErr := w.client.Emails.Send(&resend.SendEmailRequest{
		From:    from,
		To:      []string{*user.Email},
		Subject: tmpl.Subject,
		Html:    html,
	})
	if sendErr != nil {
		// resend's client does not expose a structured permanent/transient
		// distinction, so every send failure gets the bounded-retry path.
		w.updateStatus(ctx, d, db.DeliveryPending, time.Now().Add(retryBackoff))
		return
	}
	w.updateStatus(ctx, d, db.DeliveryDelivered, d.NextAttempt)
}

func (w *EmailWorker) updateStatus(ctx context.Context, d db.NotificationDelivery, status db.DeliveryStatus, next time.Time) {
	metrics.EmailDeliveryOutcomesTotal.WithLabelValues(string(status)).Inc()
	if err := w.store.UpdateDeliveryStatus(ctx, d.NotificationID, db.ChannelEmail, status, next); err != nil {
		logger.Warn("failed to update delivery status", zap.Error(err), zap.Int64("notification_id", d.NotificationID), zap.String("status", string(status)))
	}
}

func (w *EmailWorker) notificationFor(ctx context.Context, notificationID int64) (db.Notification, error) {
	return w.store.GetNotification(ctx, notificationID)
}
