package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ProfileLink tracks what a client profile is already linked to, so
// create_from_local_profile can refuse a profile that is already a
// shared instance or a modpack per spec §4.8.
type ProfileLink struct {
	ProfileID        string
	SharedInstanceID *int64
	ModpackID        *int64
}

type ProfileQuerier interface {
	GetProfileLink(ctx context.Context, profileID string) (*ProfileLink, error)
	LinkProfileToSharedInstance(ctx context.Context, profileID string, sharedInstanceID int64) error
}

func (q *Queries) GetProfileLink(ctx context.Context, profileID string) (*ProfileLink, error) {
	var l ProfileLink
	l.ProfileID = profileID
	row := q.db.QueryRow(ctx, `
		SELECT shared_instance_id, modpack_id FROM profile_links WHERE profile_id = $1`, profileID)
	if err := row.Scan(&l.SharedInstanceID, &l.ModpackID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (q *Queries) LinkProfileToSharedInstance(ctx context.Context, profileID string, sharedInstanceID int64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO profile_links (profile_id, shared_instance_id, modpack_id)
		VALUES ($1, $2, NULL)
		ON CONFLICT (profile_id) DO UPDATE SET shared_instance_id = EXCLUDED.shared_instance_id`,
		profileID, sharedInstanceID)
	return err
}
