// Package teams implements the invite lifecycle, ownership transfer,
// and project/organization reparenting rules of spec §4.4, on top of
// the ledger's team_members rows and the authorization kernel.
package teams

import (
	"context"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/authz"
	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/db"
	"github.com/labrinth-gg/labrinth/libs/go/logger"
	"go.uber.org/zap"
)

// Store is the ledger slice this engine needs, in addition to the
// authorization kernel's own Store.
type Store interface {
	authz.Store
	GetTeam(ctx context.Context, teamID int64) (db.Team, error)
	GetTeamMembers(ctx context.Context, teamID int64) ([]db.TeamMember, error)
	UpsertTeamMember(ctx context.Context, m db.TeamMember) error
	DeleteTeamMember(ctx context.Context, teamID, userID int64) error
	UpdateProjectOrganization(ctx context.Context, id int64, orgID *int64) error
	GetOrganizationProjectIDs(ctx context.Context, orgID int64) ([]int64, error)
}

type Engine struct {
	store  Store
	kernel *authz.Kernel
	cache  *cache.Cache
}

func NewEngine(store Store, kernel *authz.Kernel, c *cache.Cache) *Engine {
	return &Engine{store: store, kernel: kernel, cache: c}
}

func (e *Engine) invalidate(ctx context.Context, teamID int64, affectedUserIDs ...int64) {
	e.cache.Delete(ctx, cache.Key(cache.KindTeam, teamID))
	if len(affectedUserIDs) > 0 {
		cache.DeleteMany(ctx, e.cache, cache.KindUser, affectedUserIDs)
	}
}

// Invite creates a Pending TeamMember row. Inviter must hold
// MANAGE_INVITES on the target team; a non-zero defaultProjectPerms on
// an organization-team additionally requires EDIT_MEMBER_DEFAULT_PERMISSIONS.
func (e *Engine) Invite(ctx context.Context, inviterID, teamID, inviteeID int64, role string, projectPerms uint64, orgPerms *uint64) error {
	team, err := e.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	isOrgTeam := team.OrganizationID != nil

	if err := e.requireTeamPermission(ctx, inviterID, team, authz.ProjectManageInvites, authz.OrgManageInvites); err != nil {
		return err
	}

	if isOrgTeam && projectPerms != 0 {
		orgMemberPerms, err := e.kernel.OrganizationPermissionsFor(ctx, inviterID, *team.OrganizationID)
		if err != nil {
			return err
		}
		if !orgMemberPerms.Has(authz.OrgEditMemberDefaultPermissions) {
			return apperr.Unauthorizedf("cannot set a non-zero default project permission without EDIT_MEMBER_DEFAULT_PERMISSIONS")
		}
	}

	m := db.TeamMember{
		TeamID:             team.ID,
		UserID:             inviteeID,
		Role:               role,
		IsOwner:            false,
		Accepted:           false,
		ProjectPermissions: projectPerms,
	}
	if isOrgTeam {
		m.OrganizationPermissions = orgPerms
	}
	if err := e.store.UpsertTeamMember(ctx, m); err != nil {
		return err
	}
	e.invalidate(ctx, team.ID, inviteeID)
	return nil
}

// Accept is idempotent: accepting an already-accepted membership is a
// no-op success.
func (e *Engine) Accept(ctx context.Context, teamID, userID int64) error {
	m, err := e.store.GetTeamMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if m.Accepted {
		return nil
	}
	m.Accepted = true
	if err := e.store.UpsertTeamMember(ctx, m); err != nil {
		return err
	}
	e.invalidate(ctx, teamID, userID)
	return nil
}

// RejectOrCancel may be called by the invitee themself, or by anyone
// holding MANAGE_INVITES, while the row is still Pending.
func (e *Engine) RejectOrCancel(ctx context.Context, actorID, teamID, targetUserID int64) error {
	m, err := e.store.GetTeamMember(ctx, teamID, targetUserID)
	if err != nil {
		return err
	}
	if m.Accepted {
		return apperr.Conflictf("membership is already accepted")
	}
	if actorID != targetUserID {
		team, err := e.teamByID(ctx, teamID)
		if err != nil {
			return err
		}
		if err := e.requireTeamPermission(ctx, actorID, team, authz.ProjectManageInvites, authz.OrgManageInvites); err != nil {
			return err
		}
	}
	if err := e.store.DeleteTeamMember(ctx, teamID, targetUserID); err != nil {
		return err
	}
	e.invalidate(ctx, teamID, targetUserID)
	return nil
}

// Remove detaches an accepted member: self-leave, or anyone holding
// REMOVE_MEMBER. Owners cannot be removed this way.
func (e *Engine) Remove(ctx context.Context, actorID, teamID, targetUserID int64) error {
	m, err := e.store.GetTeamMember(ctx, teamID, targetUserID)
	if err != nil {
		return err
	}
	if m.IsOwner {
		return apperr.Conflictf("cannot remove the team owner")
	}
	if actorID != targetUserID {
		team, err := e.teamByID(ctx, teamID)
		if err != nil {
			return err
		}
		if err := e.requireTeamPermission(ctx, actorID, team, authz.ProjectRemoveMember, authz.OrgRemoveMember); err != nil {
			return err
		}
	}
	if err := e.store.DeleteTeamMember(ctx, teamID, targetUserID); err != nil {
		return err
	}
	e.invalidate(ctx, teamID, targetUserID)
	return nil
}

// TransferOwnership is admin-only or owner-only. The former owner is
// reset to a non-owner default role with full permissions; the new
// owner must already be an accepted member and receives full
// permissions and is_owner=true.
func (e *Engine) TransferOwnership(ctx context.Context, actorID, teamID, newOwnerID int64) error {
	members, err := e.store.GetTeamMembers(ctx, teamID)
	if err != nil {
		return err
	}

	var oldOwner *db.TeamMember
	var newOwner *db.TeamMember
	for i := range members {
		if members[i].IsOwner {
			oldOwner = &members[i]
		}
		if members[i].UserID == newOwnerID {
			newOwner = &members[i]
		}
	}
	if newOwner == nil || !newOwner.Accepted {
		return apperr.InvalidInputf("new owner must be an accepted team member")
	}

	actor, err := e.store.GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	isOwnerActor := oldOwner != nil && oldOwner.UserID == actorID
	if actor.Role != db.RoleAdmin && !isOwnerActor {
		return apperr.Unauthorizedf("only the current owner or an admin may transfer ownership")
	}

	if oldOwner != nil {
		oldOwner.IsOwner = false
		oldOwner.Role = "Member"
		oldOwner.ProjectPermissions = uint64(authz.ProjectPermissionsAll)
		if err := e.store.UpsertTeamMember(ctx, *oldOwner); err != nil {
			return err
		}
	}

	newOwner.IsOwner = true
	newOwner.Role = "Owner"
	newOwner.ProjectPermissions = uint64(authz.ProjectPermissionsAll)
	if err := e.store.UpsertTeamMember(ctx, *newOwner); err != nil {
		return err
	}

	affected := []int64{newOwnerID}
	if oldOwner != nil {
		affected = append(affected, oldOwner.UserID)
	}
	e.invalidate(ctx, teamID, affected...)
	return nil
}

// AddProjectToOrganization implements spec §4.4's reparenting rule:
// caller must be project-owner (or admin) and must hold ADD_PROJECT on
// the target organization. The former project-team owner loses
// is_owner; the organization's team now governs permissions.
func (e *Engine) AddProjectToOrganization(ctx context.Context, actorID, projectID, orgID int64) error {
	projectTeam, err := e.store.GetTeamByProject(ctx, projectID)
	if err != nil {
		return err
	}

	actor, err := e.store.GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	actorMember, err := e.store.GetTeamMember(ctx, projectTeam.ID, actorID)
	isProjectOwner := err == nil && actorMember.IsOwner
	if actor.Role != db.RoleAdmin && !isProjectOwner {
		return apperr.Unauthorizedf("only the project owner or an admin may add a project to an organization")
	}
	if err := e.kernel.RequireOrganizationPermission(ctx, actorID, orgID, authz.OrgAddProject); err != nil {
		return err
	}

	members, err := e.store.GetTeamMembers(ctx, projectTeam.ID)
	if err != nil {
		return err
	}
	affected := make([]int64, 0, len(members))
	for _, m := range members {
		if m.IsOwner {
			m.IsOwner = false
			if err := e.store.UpsertTeamMember(ctx, m); err != nil {
				return err
			}
		}
		affected = append(affected, m.UserID)
	}

	if err := e.store.UpdateProjectOrganization(ctx, projectID, &orgID); err != nil {
		return err
	}
	e.invalidate(ctx, projectTeam.ID, affected...)
	e.cache.Delete(ctx, cache.Key(cache.KindProject, projectID))
	return nil
}

// RemoveProjectFromOrganization requires REMOVE_PROJECT on the
// organization. targetUserID must be an accepted organization-team
// member and becomes the new project-team owner with full
// permissions, replacing any existing row for that user.
func (e *Engine) RemoveProjectFromOrganization(ctx context.Context, actorID, projectID, orgID, targetUserID int64) error {
	if err := e.kernel.RequireOrganizationPermission(ctx, actorID, orgID, authz.OrgRemoveProject); err != nil {
		return err
	}

	orgTeam, err := e.store.GetTeamByOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	targetMember, err := e.store.GetTeamMember(ctx, orgTeam.ID, targetUserID)
	if err != nil || !targetMember.Accepted {
		return apperr.InvalidInputf("target user must be an accepted organization member")
	}

	projectTeam, err := e.store.GetTeamByProject(ctx, projectID)
	if err != nil {
		return err
	}

	newOwner := db.TeamMember{
		TeamID:             projectTeam.ID,
		UserID:             targetUserID,
		Role:               "Owner",
		IsOwner:            true,
		Accepted:           true,
		ProjectPermissions: uint64(authz.ProjectPermissionsAll),
	}
	if err := e.store.UpsertTeamMember(ctx, newOwner); err != nil {
		return err
	}

	if err := e.store.UpdateProjectOrganization(ctx, projectID, nil); err != nil {
		return err
	}
	e.invalidate(ctx, projectTeam.ID, targetUserID)
	e.cache.Delete(ctx, cache.Key(cache.KindProject, projectID))
	return nil
}

// DeleteOrganization transfers every owned project to the
// organization's current owner, who becomes the project-team owner
// for each, before the caller removes the organization row itself.
func (e *Engine) DeleteOrganization(ctx context.Context, actorID, orgID int64) ([]int64, error) {
	if err := e.kernel.RequireOrganizationPermission(ctx, actorID, orgID, authz.OrgDeleteOrganization); err != nil {
		return nil, err
	}

	orgTeam, err := e.store.GetTeamByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	members, err := e.store.GetTeamMembers(ctx, orgTeam.ID)
	if err != nil {
		return nil, err
	}
	var orgOwnerID int64
	for _, m := range members {
		if m.IsOwner {
			orgOwnerID = m.UserID
			break
		}
	}

	projectIDs, err := e.store.GetOrganizationProjectIDs(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, pid := range projectIDs {
		projectTeam, err := e.store.GetTeamByProject(ctx, pid)
		if err != nil {
			return nil, err
		}
		newOwner := db.TeamMember{
			TeamID:             projectTeam.ID,
			UserID:             orgOwnerID,
			Role:               "Owner",
			IsOwner:            true,
			Accepted:           true,
			ProjectPermissions: uint64(authz.ProjectPermissionsAll),
		}
		if err := e.store.UpsertTeamMember(ctx, newOwner); err != nil {
			return nil, err
		}
		if err := e.store.UpdateProjectOrganization(ctx, pid, nil); err != nil {
			return nil, err
		}
		e.cache.Delete(ctx, cache.Key(cache.KindProject, pid))
		e.invalidate(ctx, projectTeam.ID, orgOwnerID)
	}

	logger.Info("organization deleted, projects reparented to owner",
		zap.Int64("organization_id", orgID), zap.Int64("owner_id", orgOwnerID), zap.Int("project_count", len(projectIDs)))

	return projectIDs, nil
}

func (e *Engine) teamByID(ctx context.Context, teamID int64) (db.Team, error) {
	return e.store.GetTeam(ctx, teamID)
}

func (e *Engine) requireTeamPermission(ctx context.Context, actorID int64, team db.Team, projectBit authz.ProjectPermissions, orgBit authz.OrganizationPermissions) error {
	if team.ProjectID != nil {
		return e.kernel.RequireProjectPermission(ctx, actorID, *team.ProjectID, projectBit)
	}
	return e.kernel.RequireOrganizationPermission(ctx, actorID, *team.OrganizationID, orgBit)
}
