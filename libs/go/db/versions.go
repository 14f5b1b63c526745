package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type VersionQuerier interface {
	GetVersionsForProjects(ctx context.Context, projectIDs []int64) ([]Version, error)
	GetVersionByFileHash(ctx context.Context, sha1 string) (Version, error)
	InsertVersion(ctx context.Context, v Version) (Version, error)
}

func (q *Queries) GetVersionsForProjects(ctx context.Context, projectIDs []int64) ([]Version, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	statuses := make([]string, len(ListedVersionStatuses))
	for i, s := range ListedVersionStatuses {
		statuses[i] = string(s)
	}
	rows, err := q.db.Query(ctx, `
		SELECT id, project_id, name, version_number, status, channel, date_published
		FROM versions
		WHERE project_id = ANY($1) AND status = ANY($2)
		ORDER BY date_published DESC`, projectIDs, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		var status string
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.Name, &v.VersionNumber, &status, &v.Channel, &v.DatePublished); err != nil {
			return nil, err
		}
		v.Status = VersionStatus(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (q *Queries) GetVersionByFileHash(ctx context.Context, sha1 string) (Version, error) {
	row := q.db.QueryRow(ctx, `
		SELECT v.id, v.project_id, v.name, v.version_number, v.status, v.channel, v.date_published
		FROM versions v
		JOIN version_files f ON f.version_id = v.id
		WHERE f.sha1 = $1
		LIMIT 1`, sha1)
	var v Version
	var status string
	if err := row.Scan(&v.ID, &v.ProjectID, &v.Name, &v.VersionNumber, &status, &v.Channel, &v.DatePublished); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, ErrNotFound
		}
		return Version{}, err
	}
	v.Status = VersionStatus(status)
	return v, nil
}

func (q *Queries) InsertVersion(ctx context.Context, v Version) (Version, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO versions (project_id, name, version_number, status, channel, date_published)
		VALUES ($1,$2,$3,$4,$5, now())
		RETURNING id, date_published`,
		v.ProjectID, v.Name, v.VersionNumber, string(v.Status), v.Channel)
	if err := row.Scan(&v.ID, &v.DatePublished); err != nil {
		return Version{}, err
	}
	for i := range v.Files {
		v.Files[i].VersionID = v.ID
		frow := q.db.QueryRow(ctx, `
			INSERT INTO version_files (version_id, url, filename, is_primary, sha1, sha512, size)
			VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			v.ID, v.Files[i].URL, v.Files[i].Filename, v.Files[i].Primary, v.Files[i].Sha1, v.Files[i].Sha512, v.Files[i].Size)
		if err := frow.Scan(&v.Files[i].ID); err != nil {
			return Version{}, err
		}
	}
	return v, nil
}
