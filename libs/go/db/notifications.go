package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type NotificationQuerier interface {
	InsertNotification(ctx context.Context, n Notification, channels []NotificationChannel) (Notification, error)
	GetNotification(ctx context.Context, id int64) (Notification, error)
	GetUserNotificationPreference(ctx context.Context, userID int64, kind NotificationBodyKind, channel NotificationChannel) (bool, bool, error)
	ClaimPendingEmailDeliveries(ctx context.Context, limit int) ([]NotificationDelivery, error)
	UpdateDeliveryStatus(ctx context.Context, notificationID int64, channel NotificationChannel, status DeliveryStatus, nextAttempt time.Time) error
	MarkNotificationRead(ctx context.Context, id int64) error
}

func (q *Queries) InsertNotification(ctx context.Context, n Notification, channels []NotificationChannel) (Notification, error) {
	fields, err := json.Marshal(n.Body.Fields)
	if err != nil {
		return Notification{}, err
	}
	row := q.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, body_kind, body_fields, created, read)
		VALUES ($1,$2,$3,now(),false)
		RETURNING id, created`,
		n.UserID, string(n.Body.Kind), fields)
	if err := row.Scan(&n.ID, &n.Created); err != nil {
		return Notification{}, err
	}
	for _, ch := range channels {
		if _, err := q.db.Exec(ctx, `
			INSERT INTO notification_deliveries (notification_id, channel, status, attempt_count, next_attempt)
			VALUES ($1,$2,$3,0,now())`,
			n.ID, string(ch), string(DeliveryPending)); err != nil {
			return Notification{}, err
		}
	}
	return n, nil
}

// GetUserNotificationPreference reports (enabled, hasExplicitSetting).
// When hasExplicitSetting is false the caller falls back to the
// channel's platform default per spec §4.6.
func (q *Queries) GetUserNotificationPreference(ctx context.Context, userID int64, kind NotificationBodyKind, channel NotificationChannel) (bool, bool, error) {
	row := q.db.QueryRow(ctx, `
		SELECT enabled FROM user_notification_preferences
		WHERE user_id = $1 AND body_kind = $2 AND channel = $3`, userID, string(kind), string(channel))
	var enabled bool
	if err := row.Scan(&enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return enabled, true, nil
}

// ClaimPendingEmailDeliveries locks a batch of due email deliveries so
// concurrent worker instances never double-send, mirroring the
// FOR UPDATE SKIP LOCKED claim pattern the charge reconciliation loops
// use.
func (q *Queries) ClaimPendingEmailDeliveries(ctx context.Context, limit int) ([]NotificationDelivery, error) {
	rows, err := q.db.Query(ctx, `
		SELECT notification_id, channel, status, attempt_count, next_attempt
		FROM notification_deliveries
		WHERE channel = $1 AND status = $2 AND next_attempt <= now()
		ORDER BY next_attempt ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		string(ChannelEmail), string(DeliveryPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationDelivery
	for rows.Next() {
		var d NotificationDelivery
		var channel, status string
		if err := rows.Scan(&d.NotificationID, &channel, &status, &d.AttemptCount, &d.NextAttempt); err != nil {
			return nil, err
		}
		d.Channel = NotificationChannel(channel)
		d.Status = DeliveryStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateDeliveryStatus(ctx context.Context, notificationID int64, channel NotificationChannel, status DeliveryStatus, nextAttempt time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = $3, attempt_count = attempt_count + 1, next_attempt = $4
		WHERE notification_id = $1 AND channel = $2`,
		notificationID, string(channel), string(status), nextAttempt)
	return err
}

func (q *Queries) MarkNotificationRead(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `UPDATE notifications SET read = true WHERE id = $1`, id)
	return err
}

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	var kind string
	var fields []byte
	if err := row.Scan(&n.ID, &n.UserID, &kind, &fields, &n.Created, &n.Read); err != nil {
		return Notification{}, err
	}
	n.Body.Kind = NotificationBodyKind(kind)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &n.Body.Fields); err != nil {
			return Notification{}, err
		}
	}
	return n, nil
}

func (q *Queries) GetNotification(ctx context.Context, id int64) (Notification, error) {
	n, err := scanNotification(q.db.QueryRow(ctx, `
		SELECT id, user_id, body_kind, body_fields, created, read FROM notifications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, err
	}
	return n, nil
}

func (q *Queries) GetNotificationsForUser(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, body_kind, body_fields, created, read
		FROM notifications WHERE user_id = $1 ORDER BY created DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
