package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type SharedInstanceQuerier interface {
	GetSharedInstance(ctx context.Context, id int64) (SharedInstance, error)
	InsertSharedInstance(ctx context.Context, s SharedInstance) (SharedInstance, error)
	UpdateSharedInstance(ctx context.Context, s SharedInstance) error
	GetSharedInstancesOwnedOrShared(ctx context.Context, userID int64) ([]SharedInstance, error)
}

func scanSharedInstance(row pgx.Row) (SharedInstance, error) {
	var s SharedInstance
	if err := row.Scan(&s.ID, &s.OwnerUserID, &s.Name, &s.Loader, &s.LoaderVersion, &s.GameVersion, &s.Icon); err != nil {
		return SharedInstance{}, err
	}
	return s, nil
}

func (q *Queries) loadSharedInstanceChildren(ctx context.Context, s *SharedInstance) error {
	rows, err := q.db.Query(ctx, `SELECT version_id FROM shared_instance_versions WHERE shared_instance_id = $1`, s.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v SharedInstanceVersion
		if err := rows.Scan(&v.VersionID); err != nil {
			rows.Close()
			return err
		}
		s.Versions = append(s.Versions, v)
	}
	rows.Close()

	rows, err = q.db.Query(ctx, `SELECT install_path, sha1, sha512, file_url FROM shared_instance_overrides WHERE shared_instance_id = $1`, s.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var o SharedInstanceOverride
		if err := rows.Scan(&o.InstallPath, &o.Sha1, &o.Sha512, &o.FileURL); err != nil {
			rows.Close()
			return err
		}
		s.Overrides = append(s.Overrides, o)
	}
	rows.Close()

	rows, err = q.db.Query(ctx, `SELECT user_id FROM shared_instance_members WHERE shared_instance_id = $1`, s.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			rows.Close()
			return err
		}
		s.SharedWith = append(s.SharedWith, uid)
	}
	rows.Close()
	return rows.Err()
}

func (q *Queries) GetSharedInstance(ctx context.Context, id int64) (SharedInstance, error) {
	s, err := scanSharedInstance(q.db.QueryRow(ctx, `
		SELECT id, owner_user_id, name, loader, loader_version, game_version, icon
		FROM shared_instances WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SharedInstance{}, ErrNotFound
		}
		return SharedInstance{}, err
	}
	if err := q.loadSharedInstanceChildren(ctx, &s); err != nil {
		return SharedInstance{}, err
	}
	return s, nil
}

func (q *Queries) InsertSharedInstance(ctx context.Context, s SharedInstance) (SharedInstance, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO shared_instances (owner_user_id, name, loader, loader_version, game_version, icon)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		s.OwnerUserID, s.Name, s.Loader, s.LoaderVersion, s.GameVersion, s.Icon)
	if err := row.Scan(&s.ID); err != nil {
		return SharedInstance{}, err
	}
	for _, v := range s.Versions {
		if _, err := q.db.Exec(ctx, `INSERT INTO shared_instance_versions (shared_instance_id, version_id) VALUES ($1,$2)`, s.ID, v.VersionID); err != nil {
			return SharedInstance{}, err
		}
	}
	for _, o := range s.Overrides {
		if _, err := q.db.Exec(ctx, `
			INSERT INTO shared_instance_overrides (shared_instance_id, install_path, sha1, sha512, file_url)
			VALUES ($1,$2,$3,$4,$5)`, s.ID, o.InstallPath, o.Sha1, o.Sha512, o.FileURL); err != nil {
			return SharedInstance{}, err
		}
	}
	for _, uid := range s.SharedWith {
		if _, err := q.db.Exec(ctx, `INSERT INTO shared_instance_members (shared_instance_id, user_id) VALUES ($1,$2)`, s.ID, uid); err != nil {
			return SharedInstance{}, err
		}
	}
	return s, nil
}

// UpdateSharedInstance replaces the instance's version/override/member
// sets wholesale — callers compute the desired end state (inbound or
// outbound sync diff) and pass the full set here.
func (q *Queries) UpdateSharedInstance(ctx context.Context, s SharedInstance) error {
	if _, err := q.db.Exec(ctx, `
		UPDATE shared_instances SET name=$2, loader=$3, loader_version=$4, game_version=$5, icon=$6 WHERE id=$1`,
		s.ID, s.Name, s.Loader, s.LoaderVersion, s.GameVersion, s.Icon); err != nil {
		return err
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM shared_instance_versions WHERE shared_instance_id = $1`, s.ID); err != nil {
		return err
	}
	for _, v := range s.Versions {
		if _, err := q.db.Exec(ctx, `INSERT INTO shared_instance_versions (shared_instance_id, version_id) VALUES ($1,$2)`, s.ID, v.VersionID); err != nil {
			return err
		}
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM shared_instance_overrides WHERE shared_instance_id = $1`, s.ID); err != nil {
		return err
	}
	for _, o := range s.Overrides {
		if _, err := q.db.Exec(ctx, `
			INSERT INTO shared_instance_overrides (shared_instance_id, install_path, sha1, sha512, file_url)
			VALUES ($1,$2,$3,$4,$5)`, s.ID, o.InstallPath, o.Sha1, o.Sha512, o.FileURL); err != nil {
			return err
		}
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM shared_instance_members WHERE shared_instance_id = $1`, s.ID); err != nil {
		return err
	}
	for _, uid := range s.SharedWith {
		if _, err := q.db.Exec(ctx, `INSERT INTO shared_instance_members (shared_instance_id, user_id) VALUES ($1,$2)`, s.ID, uid); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queries) GetSharedInstancesOwnedOrShared(ctx context.Context, userID int64) ([]SharedInstance, error) {
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT s.id, s.owner_user_id, s.name, s.loader, s.loader_version, s.game_version, s.icon
		FROM shared_instances s
		LEFT JOIN shared_instance_members m ON m.shared_instance_id = s.id
		WHERE s.owner_user_id = $1 OR m.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	var out []SharedInstance
	for rows.Next() {
		s, err := scanSharedInstance(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := q.loadSharedInstanceChildren(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
