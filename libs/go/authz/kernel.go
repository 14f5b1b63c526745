package authz

import (
	"context"
	"errors"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/db"
)

// Store is the slice of the ledger the kernel needs. It is satisfied
// by *db.Queries; tests substitute a fake.
type Store interface {
	GetUser(ctx context.Context, id int64) (db.User, error)
	GetProject(ctx context.Context, id int64) (db.Project, error)
	GetTeamByProject(ctx context.Context, projectID int64) (db.Team, error)
	GetTeamByOrganization(ctx context.Context, orgID int64) (db.Team, error)
	GetTeamMember(ctx context.Context, teamID, userID int64) (db.TeamMember, error)
	GetOrganization(ctx context.Context, id int64) (db.Organization, error)
	GetOrganizationByProject(ctx context.Context, projectID int64) (*db.Organization, error)
	GetDefaultProjectPermissions(ctx context.Context, orgID, userID int64) (uint64, error)
}

// Kernel resolves effective permissions per spec §4.3.
type Kernel struct {
	store Store
}

func NewKernel(store Store) *Kernel {
	return &Kernel{store: store}
}

// ProjectPermissionsFor resolves the project permissions bitflag for
// (user, project) by walking: admin override → direct team membership
// → organization inheritance → empty.
func (k *Kernel) ProjectPermissionsFor(ctx context.Context, userID, projectID int64) (ProjectPermissions, error) {
	project, err := k.store.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return k.projectPermissionsForProject(ctx, userID, project)
}

// projectPermissionsForProject is ProjectPermissionsFor for a caller
// that already holds the project row, so RequireProjectPermission
// doesn't fetch it twice.
func (k *Kernel) projectPermissionsForProject(ctx context.Context, userID int64, project db.Project) (ProjectPermissions, error) {
	user, err := k.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.Role == db.RoleAdmin {
		return ProjectPermissionsAll, nil
	}

	projectTeam, err := k.store.GetTeamByProject(ctx, project.ID)
	if err != nil {
		return 0, err
	}

	member, err := k.store.GetTeamMember(ctx, projectTeam.ID, userID)
	if err == nil && member.Accepted {
		return ProjectPermissions(member.ProjectPermissions), nil
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return 0, err
	}

	if project.OrganizationID == nil {
		return 0, nil
	}

	orgTeam, err := k.store.GetTeamByOrganization(ctx, *project.OrganizationID)
	if err != nil {
		return 0, err
	}
	orgMember, err := k.store.GetTeamMember(ctx, orgTeam.ID, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !orgMember.Accepted {
		return 0, nil
	}

	var orgPerms OrganizationPermissions
	if orgMember.OrganizationPermissions != nil {
		orgPerms = OrganizationPermissions(*orgMember.OrganizationPermissions)
	}
	if orgPerms.Has(OrgEditMemberDefaultPermissions) {
		return ProjectPermissionsAll, nil
	}

	defaultPerms, err := k.store.GetDefaultProjectPermissions(ctx, *project.OrganizationID, userID)
	if err != nil {
		return 0, err
	}
	return ProjectPermissions(defaultPerms), nil
}

// OrganizationPermissionsFor resolves the organization permissions
// bitflag for (user, org).
func (k *Kernel) OrganizationPermissionsFor(ctx context.Context, userID, orgID int64) (OrganizationPermissions, error) {
	user, err := k.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.Role == db.RoleAdmin {
		return OrganizationPermissionsAll, nil
	}

	orgTeam, err := k.store.GetTeamByOrganization(ctx, orgID)
	if err != nil {
		return 0, err
	}
	member, err := k.store.GetTeamMember(ctx, orgTeam.ID, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !member.Accepted || member.OrganizationPermissions == nil {
		return 0, nil
	}
	return OrganizationPermissions(*member.OrganizationPermissions), nil
}

// RequireProjectPermission resolves the caller's project permissions
// and fails with apperr.Unauthorized if the bit is missing, or with
// apperr.NotFound instead when the project's status is hidden — the
// visibility-preserving 404 rule of spec §7.
func (k *Kernel) RequireProjectPermission(ctx context.Context, userID, projectID int64, bit ProjectPermissions) error {
	project, err := k.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	perms, err := k.projectPermissionsForProject(ctx, userID, project)
	if err != nil {
		return err
	}
	if perms.Has(bit) {
		return nil
	}
	if project.Status.IsHidden() {
		return apperr.NotFoundf("project not found")
	}
	return apperr.Unauthorizedf("missing required permission")
}

func (k *Kernel) RequireOrganizationPermission(ctx context.Context, userID, orgID int64, bit OrganizationPermissions) error {
	perms, err := k.OrganizationPermissionsFor(ctx, userID, orgID)
	if err != nil {
		return err
	}
	if perms.Has(bit) {
		return nil
	}
	return apperr.Unauthorizedf("missing required organization permission")
}
