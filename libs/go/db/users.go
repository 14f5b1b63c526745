package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type UserQuerier interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	UpdateUserCustomerID(ctx context.Context, id int64, customerID string) error
	SoftDeleteUser(ctx context.Context, id int64) error
	GrantBadge(ctx context.Context, id int64, badge int64) error
	RevokeBadge(ctx context.Context, id int64, badge int64) error
}

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, username, email, role, badges, payment_customer_id, deleted, created
		FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Badges, &u.PaymentCustomerID, &u.Deleted, &u.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (q *Queries) GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `
		SELECT id, username, email, role, badges, payment_customer_id, deleted, created
		FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Badges, &u.PaymentCustomerID, &u.Deleted, &u.Created); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, username, email, role, badges, payment_customer_id, deleted, created
		FROM users WHERE lower(username) = lower($1)`, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Badges, &u.PaymentCustomerID, &u.Deleted, &u.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (q *Queries) UpdateUserCustomerID(ctx context.Context, id int64, customerID string) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET payment_customer_id = $2 WHERE id = $1`, id, customerID)
	return err
}

// GrantBadge sets a badge's bit on the user's badge flag set.
func (q *Queries) GrantBadge(ctx context.Context, id int64, badge int64) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET badges = badges | $2 WHERE id = $1`, id, badge)
	return err
}

// RevokeBadge clears a badge's bit on the user's badge flag set.
func (q *Queries) RevokeBadge(ctx context.Context, id int64, badge int64) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET badges = badges & ~$2 WHERE id = $1`, id, badge)
	return err
}

// SoftDeleteUser marks the user deleted and rewrites user_id in
// team_members, notifications and charges to the sentinel user id.
// References to the user in other tables are not rewritten.
func (q *Queries) SoftDeleteUser(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET deleted = true, email = NULL WHERE id = $1`, id)
	if err != nil {
		return err
	}
	tables := []string{"team_members", "notifications", "charges"}
	for _, t := range tables {
		if _, err := q.db.Exec(ctx, `UPDATE `+t+` SET user_id = $2 WHERE user_id = $1`, id, SentinelUserID); err != nil {
			return err
		}
	}
	return nil
}
