package db

import (
	"context"
	"errors"
)

type ProjectQuerier interface {
	GetProjectsByIDsOrSlugs(ctx context.Context, ids []int64, slugs []string) ([]Project, error)
	GetProject(ctx context.Context, id int64) (Project, error)
	InsertProject(ctx context.Context, p Project) (Project, error)
	UpdateProjectSlug(ctx context.Context, id int64, slug *string) error
	UpdateProjectOrganization(ctx context.Context, id int64, orgID *int64) error
	DeleteProjectCascade(ctx context.Context, id int64) (CascadeResult, error)
}

// CascadeResult carries the id-lists a project delete's callers need in
// order to invalidate caches and notify affected users, per the
// deterministic cascade order in spec §4.2.
type CascadeResult struct {
	AffectedUserIDs  []int64
	DeletedVersionIDs []int64
	OldSlug          *string
}

func (q *Queries) GetProjectsByIDsOrSlugs(ctx context.Context, ids []int64, slugs []string) ([]Project, error) {
	if len(ids) == 0 && len(slugs) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `
		SELECT id, slug, team_id, organization_id, name, summary, description, status,
		       monetization_status, downloads, follows, license_id, color, icon_url,
		       raw_icon_url, published, updated
		FROM projects
		WHERE id = ANY($1) OR lower(slug) = ANY($2)`, ids, slugs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var status string
		if err := rows.Scan(&p.ID, &p.Slug, &p.TeamID, &p.OrganizationID, &p.Name, &p.Summary,
			&p.Description, &status, &p.Monetization, &p.Downloads, &p.Follows, &p.LicenseID,
			&p.Color, &p.IconURL, &p.RawIconURL, &p.Published, &p.Updated); err != nil {
			return nil, err
		}
		p.Status = ParseProjectStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) GetProject(ctx context.Context, id int64) (Project, error) {
	res, err := q.GetProjectsByIDsOrSlugs(ctx, []int64{id}, nil)
	if err != nil {
		return Project{}, err
	}
	if len(res) == 0 {
		return Project{}, ErrNotFound
	}
	return res[0], nil
}

func (q *Queries) InsertProject(ctx context.Context, p Project) (Project, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO projects (slug, team_id, organization_id, name, summary, description, status,
		                       monetization_status, license_id, color, published, updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		RETURNING id, published, updated`,
		p.Slug, p.TeamID, p.OrganizationID, p.Name, p.Summary, p.Description, string(p.Status),
		string(p.Monetization), p.LicenseID, p.Color)
	if err := row.Scan(&p.ID, &p.Published, &p.Updated); err != nil {
		return Project{}, err
	}
	return p, nil
}

func (q *Queries) UpdateProjectSlug(ctx context.Context, id int64, slug *string) error {
	_, err := q.db.Exec(ctx, `UPDATE projects SET slug = $2 WHERE id = $1`, id, slug)
	return err
}

func (q *Queries) UpdateProjectOrganization(ctx context.Context, id int64, orgID *int64) error {
	_, err := q.db.Exec(ctx, `UPDATE projects SET organization_id = $2 WHERE id = $1`, id, orgID)
	return err
}

// DeleteProjectCascade removes a project and everything that hangs off
// it in the deterministic order spec §4.2 requires: follows, gallery,
// reports (detached, not deleted), categories/links, versions (and
// their dependants' dependency rows), payouts (detached), the project
// row, and finally the team membership / team rows — returning the
// user ids affected so callers can invalidate their project caches.
func (q *Queries) DeleteProjectCascade(ctx context.Context, id int64) (CascadeResult, error) {
	var res CascadeResult

	p, err := q.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return res, err
		}
		return res, err
	}
	res.OldSlug = p.Slug

	if _, err := q.db.Exec(ctx, `DELETE FROM follows WHERE project_id = $1`, id); err != nil {
		return res, err
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM gallery_items WHERE project_id = $1`, id); err != nil {
		return res, err
	}
	if _, err := q.db.Exec(ctx, `UPDATE reports SET project_id = NULL WHERE project_id = $1`, id); err != nil {
		return res, err
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM project_categories WHERE project_id = $1`, id); err != nil {
		return res, err
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM link_urls WHERE project_id = $1`, id); err != nil {
		return res, err
	}

	rows, err := q.db.Query(ctx, `SELECT id FROM versions WHERE project_id = $1`, id)
	if err != nil {
		return res, err
	}
	var versionIDs []int64
	for rows.Next() {
		var vid int64
		if err := rows.Scan(&vid); err != nil {
			rows.Close()
			return res, err
		}
		versionIDs = append(versionIDs, vid)
	}
	rows.Close()
	res.DeletedVersionIDs = versionIDs

	if len(versionIDs) > 0 {
		if _, err := q.db.Exec(ctx, `DELETE FROM dependencies WHERE dependency_id = ANY($1) OR dependency_project_id = $2`, versionIDs, id); err != nil {
			return res, err
		}
		if _, err := q.db.Exec(ctx, `DELETE FROM version_files WHERE version_id = ANY($1)`, versionIDs); err != nil {
			return res, err
		}
		if _, err := q.db.Exec(ctx, `DELETE FROM versions WHERE project_id = $1`, id); err != nil {
			return res, err
		}
	}

	if _, err := q.db.Exec(ctx, `UPDATE payouts SET project_id = NULL WHERE project_id = $1`, id); err != nil {
		return res, err
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return res, err
	}

	rows, err = q.db.Query(ctx, `SELECT user_id FROM team_members WHERE team_id = $1`, p.TeamID)
	if err != nil {
		return res, err
	}
	var userIDs []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			rows.Close()
			return res, err
		}
		userIDs = append(userIDs, uid)
	}
	rows.Close()
	res.AffectedUserIDs = userIDs

	if _, err := q.db.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, p.TeamID); err != nil {
		return res, err
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM teams WHERE id = $1`, p.TeamID); err != nil {
		return res, err
	}

	return res, nil
}
