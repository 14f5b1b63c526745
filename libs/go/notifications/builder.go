package notifications

import (
	"context"

	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/db"
)

// Builder inserts a notification and fans it out to every channel the
// recipient has enabled, falling back to the channel's platform default
// when the user has no explicit preference row.
type Builder struct {
	store Store
	cache *cache.Cache
	queue *Queue
}

func NewBuilder(store Store, c *cache.Cache, q *Queue) *Builder {
	return &Builder{store: store, cache: c, queue: q}
}

// Insert creates one Notification row and one NotificationDelivery row
// per enabled channel, each Pending with next_attempt=now.
func (b *Builder) Insert(ctx context.Context, userID int64, body db.NotificationBody) (db.Notification, error) {
	var channels []db.NotificationChannel
	for _, ch := range allChannels {
		enabled, hasExplicit, err := b.store.GetUserNotificationPreference(ctx, userID, body.Kind, ch)
		if err != nil {
			return db.Notification{}, err
		}
		if !hasExplicit {
			enabled = defaultChannelEnabled(body.Kind, ch)
		}
		if enabled {
			channels = append(channels, ch)
		}
	}

	n, err := b.store.InsertNotification(ctx, db.Notification{UserID: userID, Body: body}, channels)
	if err != nil {
		return db.Notification{}, err
	}
	if b.cache != nil {
		b.cache.Delete(ctx, cache.Key(cache.KindUser, userID))
	}
	for _, ch := range channels {
		b.queue.Publish(ctx, DeliveryQueued{NotificationID: n.ID, Channel: ch})
	}
	return n, nil
}

// NotifyPaymentFailed satisfies billing.Notifier, so the billing engine
// never imports this package's concrete type.
func (b *Builder) NotifyPaymentFailed(ctx context.Context, userID int64, chargeID int64) error {
	_, err := b.Insert(ctx, userID, db.NotificationBody{
		Kind:   db.NotifyPaymentFailed,
		Fields: map[string]interface{}{"charge_id": chargeID},
	})
	return err
}

// NotifyTaxIssue satisfies billing.Notifier for the manual tax
// reconciliation path.
func (b *Builder) NotifyTaxIssue(ctx context.Context, userID int64, chargeID int64, message string) error {
	_, err := b.Insert(ctx, userID, db.NotificationBody{
		Kind:   db.NotifyTaxNotification,
		Fields: map[string]interface{}{"charge_id": chargeID, "message": message},
	})
	return err
}
