package notifications

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/db"
)

type fakeNotificationStore struct {
	nextID      int64
	users       map[int64]db.User
	prefs       map[string]bool
	hasExplicit map[string]bool
	notifications map[int64]db.Notification
	deliveries  []db.NotificationDelivery
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{
		nextID:        1,
		users:         map[int64]db.User{},
		prefs:         map[string]bool{},
		hasExplicit:   map[string]bool{},
		notifications: map[int64]db.Notification{},
	}
}

func prefKey(userID int64, kind db.NotificationBodyKind, channel db.NotificationChannel) string {
	return string(kind) + "|" + string(channel) + "|" + strconv.FormatInt(userID, 10)
}

func (f *fakeNotificationStore) InsertNotification(ctx context.Context, n db.Notification, channels []db.NotificationChannel) (db.Notification, error) {
	n.ID = f.nextID
	f.nextID++
	f.notifications[n.ID] = n
	for _, ch := range channels {
		f.deliveries = append(f.deliveries, db.NotificationDelivery{
			NotificationID: n.ID, Channel: ch, Status: db.DeliveryPending, NextAttempt: time.Now(),
		})
	}
	return n, nil
}

func (f *fakeNotificationStore) GetNotification(ctx context.Context, id int64) (db.Notification, error) {
	n, ok := f.notifications[id]
	if !ok {
		return db.Notification{}, db.ErrNotFound
	}
	return n, nil
}

func (f *fakeNotificationStore) GetUserNotificationPreference(ctx context.Context, userID int64, kind db.NotificationBodyKind, channel db.NotificationChannel) (bool, bool, error) {
	key := prefKey(userID, kind, channel)
	return f.prefs[key], f.hasExplicit[key], nil
}

func (f *fakeNotificationStore) ClaimPendingEmailDeliveries(ctx context.Context, limit int) ([]db.NotificationDelivery, error) {
	if len(f.deliveries) > limit {
		return f.deliveries[:limit], nil
	}
	return f.deliveries, nil
}

func (f *fakeNotificationStore) UpdateDeliveryStatus(ctx context.Context, notificationID int64, channel db.NotificationChannel, status db.DeliveryStatus, nextAttempt time.Time) error {
	for i, d := range f.deliveries {
		if d.NotificationID == notificationID && d.Channel == channel {
			f.deliveries[i].Status = status
			f.deliveries[i].NextAttempt = nextAttempt
		}
	}
	return nil
}

func (f *fakeNotificationStore) MarkNotificationRead(ctx context.Context, id int64) error {
	n := f.notifications[id]
	n.Read = true
	f.notifications[id] = n
	return nil
}

func (f *fakeNotificationStore) GetUser(ctx context.Context, id int64) (db.User, error) {
	u, ok := f.users[id]
	if !ok {
		return db.User{}, db.ErrNotFound
	}
	return u, nil
}

func TestBuilder_InsertUsesPlatformDefaultsWithoutExplicitPreference(t *testing.T) {
	store := newFakeNotificationStore()
	b := NewBuilder(store, cache.New(nil, time.Minute), &Queue{})

	n, err := b.Insert(context.Background(), 1, db.NotificationBody{Kind: db.NotifyPaymentFailed})
	require.NoError(t, err)
	assert.NotZero(t, n.ID)

	var channels []db.NotificationChannel
	for _, d := range store.deliveries {
		if d.NotificationID == n.ID {
			channels = append(channels, d.Channel)
		}
	}
	assert.ElementsMatch(t, []db.NotificationChannel{db.ChannelSite, db.ChannelEmail}, channels,
		"payment_failed defaults to both channels per the platform defaults")
}

func TestBuilder_InsertHonorsExplicitOptOut(t *testing.T) {
	store := newFakeNotificationStore()
	store.prefs[prefKey(1, db.NotifyProjectUpdate, db.ChannelEmail)] = false
	store.hasExplicit[prefKey(1, db.NotifyProjectUpdate, db.ChannelEmail)] = true

	b := NewBuilder(store, cache.New(nil, time.Minute), &Queue{})
	n, err := b.Insert(context.Background(), 1, db.NotificationBody{Kind: db.NotifyProjectUpdate})
	require.NoError(t, err)

	for _, d := range store.deliveries {
		if d.NotificationID == n.ID {
			assert.NotEqual(t, db.ChannelEmail, d.Channel, "explicit opt-out must suppress the email delivery row")
		}
	}
}

func TestBuilder_NotifyPaymentFailedInsertsExpectedBody(t *testing.T) {
	store := newFakeNotificationStore()
	b := NewBuilder(store, cache.New(nil, time.Minute), &Queue{})

	err := b.NotifyPaymentFailed(context.Background(), 1, 42)
	require.NoError(t, err)

	var found bool
	for _, n := range store.notifications {
		if n.Body.Kind == db.NotifyPaymentFailed && n.Body.Fields["charge_id"] == int64(42) {
			found = true
		}
	}
	assert.True(t, found)
}
