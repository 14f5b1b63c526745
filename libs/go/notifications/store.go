// Package notifications implements the notification fabric of spec
// §4.7: inserting a notification row with one delivery per enabled
// channel, and the email worker that drains the delivery queue.
package notifications

import (
	"context"

	"github.com/labrinth-gg/labrinth/libs/go/db"
)

// Store is the ledger slice the notification fabric reads and writes
// through; satisfied by *db.Queries.
type Store interface {
	db.NotificationQuerier
	GetUser(ctx context.Context, id int64) (db.User, error)
}

// defaultChannelEnabled is the platform default applied when a user has
// no explicit preference row for a (kind, channel) pair.
func defaultChannelEnabled(kind db.NotificationBodyKind, channel db.NotificationChannel) bool {
	if channel == db.ChannelSite {
		return true
	}
	switch kind {
	case db.NotifyPaymentFailed, db.NotifyTaxNotification, db.NotifySubscriptionCredited:
		return true
	default:
		return false
	}
}

// allChannels is the full channel set a notification is evaluated
// against; a disabled channel simply gets no delivery row.
var allChannels = []db.NotificationChannel{db.ChannelSite, db.ChannelEmail}
