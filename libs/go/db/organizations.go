package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type OrganizationQuerier interface {
	GetOrganization(ctx context.Context, id int64) (Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error)
	GetOrganizationByProject(ctx context.Context, projectID int64) (*Organization, error)
	InsertOrganization(ctx context.Context, o Organization) (Organization, error)
	GetDefaultProjectPermissions(ctx context.Context, orgID, userID int64) (uint64, error)
	SetDefaultProjectPermissions(ctx context.Context, orgID, userID int64, perms uint64) error
	GetOrganizationProjectIDs(ctx context.Context, orgID int64) ([]int64, error)
}

func (q *Queries) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	row := q.db.QueryRow(ctx, `SELECT id, slug, name, description, icon, team_id FROM organizations WHERE id = $1`, id)
	var o Organization
	if err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.Description, &o.Icon, &o.TeamID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	return o, nil
}

func (q *Queries) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	row := q.db.QueryRow(ctx, `SELECT id, slug, name, description, icon, team_id FROM organizations WHERE lower(slug) = lower($1)`, slug)
	var o Organization
	if err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.Description, &o.Icon, &o.TeamID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	return o, nil
}

func (q *Queries) GetOrganizationByProject(ctx context.Context, projectID int64) (*Organization, error) {
	row := q.db.QueryRow(ctx, `
		SELECT o.id, o.slug, o.name, o.description, o.icon, o.team_id
		FROM organizations o
		JOIN projects p ON p.organization_id = o.id
		WHERE p.id = $1`, projectID)
	var o Organization
	if err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.Description, &o.Icon, &o.TeamID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (q *Queries) InsertOrganization(ctx context.Context, o Organization) (Organization, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO organizations (slug, name, description, icon, team_id)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		o.Slug, o.Name, o.Description, o.Icon, o.TeamID)
	if err := row.Scan(&o.ID); err != nil {
		return Organization{}, err
	}
	return o, nil
}

// GetDefaultProjectPermissions returns the organization's configured
// default ProjectPermissions for a member, used when that member has
// no direct row on a project's own team.
func (q *Queries) GetDefaultProjectPermissions(ctx context.Context, orgID, userID int64) (uint64, error) {
	row := q.db.QueryRow(ctx, `
		SELECT default_project_permissions FROM organization_team_members
		WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
	var perms uint64
	if err := row.Scan(&perms); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return perms, nil
}

func (q *Queries) SetDefaultProjectPermissions(ctx context.Context, orgID, userID int64, perms uint64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO organization_team_members (organization_id, user_id, default_project_permissions)
		VALUES ($1,$2,$3)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET default_project_permissions = EXCLUDED.default_project_permissions`,
		orgID, userID, perms)
	return err
}

func (q *Queries) GetOrganizationProjectIDs(ctx context.Context, orgID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT id FROM projects WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
