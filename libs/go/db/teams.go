package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type TeamQuerier interface {
	GetTeam(ctx context.Context, id int64) (Team, error)
	GetTeamByProject(ctx context.Context, projectID int64) (Team, error)
	GetTeamByOrganization(ctx context.Context, orgID int64) (Team, error)
	GetTeamMembers(ctx context.Context, teamID int64) ([]TeamMember, error)
	GetTeamMember(ctx context.Context, teamID, userID int64) (TeamMember, error)
	UpsertTeamMember(ctx context.Context, m TeamMember) error
	DeleteTeamMember(ctx context.Context, teamID, userID int64) error
	InsertTeam(ctx context.Context, t Team) (Team, error)
}

func (q *Queries) GetTeam(ctx context.Context, id int64) (Team, error) {
	row := q.db.QueryRow(ctx, `SELECT id, project_id, organization_id FROM teams WHERE id = $1`, id)
	var t Team
	if err := row.Scan(&t.ID, &t.ProjectID, &t.OrganizationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Team{}, ErrNotFound
		}
		return Team{}, err
	}
	return t, nil
}

func (q *Queries) GetTeamByProject(ctx context.Context, projectID int64) (Team, error) {
	row := q.db.QueryRow(ctx, `SELECT id, project_id, organization_id FROM teams WHERE project_id = $1`, projectID)
	var t Team
	if err := row.Scan(&t.ID, &t.ProjectID, &t.OrganizationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Team{}, ErrNotFound
		}
		return Team{}, err
	}
	return t, nil
}

func (q *Queries) GetTeamByOrganization(ctx context.Context, orgID int64) (Team, error) {
	row := q.db.QueryRow(ctx, `SELECT id, project_id, organization_id FROM teams WHERE organization_id = $1`, orgID)
	var t Team
	if err := row.Scan(&t.ID, &t.ProjectID, &t.OrganizationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Team{}, ErrNotFound
		}
		return Team{}, err
	}
	return t, nil
}

func (q *Queries) GetTeamMembers(ctx context.Context, teamID int64) ([]TeamMember, error) {
	rows, err := q.db.Query(ctx, `
		SELECT team_id, user_id, role, is_owner, accepted, project_permissions,
		       organization_permissions, payouts_split, ordering
		FROM team_members WHERE team_id = $1 ORDER BY ordering`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TeamMember
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.IsOwner, &m.Accepted,
			&m.ProjectPermissions, &m.OrganizationPermissions, &m.PayoutsSplit, &m.Ordering); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *Queries) GetTeamMember(ctx context.Context, teamID, userID int64) (TeamMember, error) {
	row := q.db.QueryRow(ctx, `
		SELECT team_id, user_id, role, is_owner, accepted, project_permissions,
		       organization_permissions, payouts_split, ordering
		FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	var m TeamMember
	if err := row.Scan(&m.TeamID, &m.UserID, &m.Role, &m.IsOwner, &m.Accepted,
		&m.ProjectPermissions, &m.OrganizationPermissions, &m.PayoutsSplit, &m.Ordering); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TeamMember{}, ErrNotFound
		}
		return TeamMember{}, err
	}
	return m, nil
}

func (q *Queries) UpsertTeamMember(ctx context.Context, m TeamMember) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, is_owner, accepted, project_permissions,
		                          organization_permissions, payouts_split, ordering)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (team_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			is_owner = EXCLUDED.is_owner,
			accepted = EXCLUDED.accepted,
			project_permissions = EXCLUDED.project_permissions,
			organization_permissions = EXCLUDED.organization_permissions,
			payouts_split = EXCLUDED.payouts_split,
			ordering = EXCLUDED.ordering`,
		m.TeamID, m.UserID, m.Role, m.IsOwner, m.Accepted, m.ProjectPermissions,
		m.OrganizationPermissions, m.PayoutsSplit, m.Ordering)
	return err
}

func (q *Queries) DeleteTeamMember(ctx context.Context, teamID, userID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	return err
}

func (q *Queries) InsertTeam(ctx context.Context, t Team) (Team, error) {
	row := q.db.QueryRow(ctx, `INSERT INTO teams (project_id, organization_id) VALUES ($1,$2) RETURNING id`,
		t.ProjectID, t.OrganizationID)
	if err := row.Scan(&t.ID); err != nil {
		return Team{}, err
	}
	return t, nil
}
