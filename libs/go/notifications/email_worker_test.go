package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labrinth-gg/labrinth/libs/go/db"
)

func TestEmailWorker_ClaimMarksOverflowAttemptsPermanentlyFailed(t *testing.T) {
	store := newFakeNotificationStore()
	store.deliveries = []db.NotificationDelivery{
		{NotificationID: 1, Channel: db.ChannelEmail, AttemptCount: maxDeliveryAttempts, Status: db.DeliveryPending},
	}

	worker := NewEmailWorker(store, "test-key", "noreply@example.com", "Labrinth", nil)
	claimed, err := worker.claim(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
	assert.Equal(t, db.DeliveryPermanentlyFailed, store.deliveries[0].Status)
}

func TestEmailWorker_ClaimPassesThroughDeliveriesUnderAttemptLimit(t *testing.T) {
	store := newFakeNotificationStore()
	store.deliveries = []db.NotificationDelivery{
		{NotificationID: 1, Channel: db.ChannelEmail, AttemptCount: 1, Status: db.DeliveryPending},
	}

	worker := NewEmailWorker(store, "test-key", "noreply@example.com", "Labrinth", nil)
	claimed, err := worker.claim(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestEmailWorker_AttemptSkipsUnknownTemplateKind(t *testing.T) {
	store := newFakeNotificationStore()
	store.notifications[1] = db.Notification{ID: 1, UserID: 1, Body: db.NotificationBody{Kind: db.NotifyModeratorMessage}}
	store.deliveries = []db.NotificationDelivery{{NotificationID: 1, Channel: db.ChannelEmail}}

	worker := NewEmailWorker(store, "test-key", "noreply@example.com", "Labrinth", map[db.NotificationBodyKind]Template{})
	worker.attempt(context.Background(), store.deliveries[0])

	assert.Equal(t, db.DeliverySkippedDefault, store.deliveries[0].Status)
}

func TestEmailWorker_AttemptSkipsRecipientWithoutEmail(t *testing.T) {
	store := newFakeNotificationStore()
	store.users[1] = db.User{ID: 1, Email: nil}
	store.notifications[1] = db.Notification{ID: 1, UserID: 1, Body: db.NotificationBody{Kind: db.NotifyPaymentFailed}}
	store.deliveries = []db.NotificationDelivery{{NotificationID: 1, Channel: db.ChannelEmail}}

	templates := map[db.NotificationBodyKind]Template{
		db.NotifyPaymentFailed: {Subject: "Payment failed", Render: func(n db.Notification) (string, error) { return "body", nil }},
	}
	worker := NewEmailWorker(store, "test-key", "noreply@example.com", "Labrinth", templates)
	worker.attempt(context.Background(), store.deliveries[0])

	assert.Equal(t, db.DeliverySkippedPreferences, store.deliveries[0].Status)
}

func TestEmailWorker_AttemptRetriesOnRenderFailure(t *testing.T) {
	store := newFakeNotificationStore()
	email := "user@example.com"
	store.users[1] = db.User{ID: 1, Email: &email}
	store.notifications[1] = db.Notification{ID: 1, UserID: 1, Body: db.NotificationBody{Kind: db.NotifyPaymentFailed}}
	store.deliveries = []db.NotificationDelivery{{NotificationID: 1, Channel: db.ChannelEmail, NextAttempt: time.Now()}}

	templates := map[db.NotificationBodyKind]Template{
		db.NotifyPaymentFailed: {Subject: "Payment failed", Render: func(n db.Notification) (string, error) {
			return "", assert.AnError
		}},
	}
	worker := NewEmailWorker(store, "test-key", "noreply@example.com", "Labrinth", templates)
	before := store.deliveries[0].NextAttempt
	worker.attempt(context.Background(), store.deliveries[0])

	assert.Equal(t, db.DeliveryPending, store.deliveries[0].Status)
	assert.True(t, store.deliveries[0].NextAttempt.After(before))
}
