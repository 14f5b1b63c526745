package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labrinth-gg/labrinth/libs/go/apperr"
	"github.com/labrinth-gg/labrinth/libs/go/db"
)

type fakeStore struct {
	users               map[int64]db.User
	projects            map[int64]db.Project
	teamsByProject      map[int64]db.Team
	teamsByOrganization map[int64]db.Team
	organizations       map[int64]db.Organization
	members             map[[2]int64]db.TeamMember
	defaultPerms        map[[2]int64]uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:               map[int64]db.User{},
		projects:            map[int64]db.Project{},
		teamsByProject:      map[int64]db.Team{},
		teamsByOrganization: map[int64]db.Team{},
		organizations:       map[int64]db.Organization{},
		members:             map[[2]int64]db.TeamMember{},
		defaultPerms:        map[[2]int64]uint64{},
	}
}

func (f *fakeStore) GetUser(ctx context.Context, id int64) (db.User, error) {
	u, ok := f.users[id]
	if !ok {
		return db.User{}, db.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) GetProject(ctx context.Context, id int64) (db.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return db.Project{}, db.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetTeamByProject(ctx context.Context, projectID int64) (db.Team, error) {
	t, ok := f.teamsByProject[projectID]
	if !ok {
		return db.Team{}, db.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetTeamByOrganization(ctx context.Context, orgID int64) (db.Team, error) {
	t, ok := f.teamsByOrganization[orgID]
	if !ok {
		return db.Team{}, db.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetTeamMember(ctx context.Context, teamID, userID int64) (db.TeamMember, error) {
	m, ok := f.members[[2]int64{teamID, userID}]
	if !ok {
		return db.TeamMember{}, db.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) GetOrganization(ctx context.Context, id int64) (db.Organization, error) {
	o, ok := f.organizations[id]
	if !ok {
		return db.Organization{}, db.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) GetOrganizationByProject(ctx context.Context, projectID int64) (*db.Organization, error) {
	p, ok := f.projects[projectID]
	if !ok || p.OrganizationID == nil {
		return nil, nil
	}
	o, ok := f.organizations[*p.OrganizationID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f *fakeStore) GetDefaultProjectPermissions(ctx context.Context, orgID, userID int64) (uint64, error) {
	return f.defaultPerms[[2]int64{orgID, userID}], nil
}

func TestProjectPermissionsFor_AdminOverride(t *testing.T) {
	store := newFakeStore()
	store.users[1] = db.User{ID: 1, Role: db.RoleAdmin}
	store.projects[10] = db.Project{ID: 10, TeamID: 100}
	store.teamsByProject[10] = db.Team{ID: 100, ProjectID: int64Ptr(10)}

	kernel := NewKernel(store)
	perms, err := kernel.ProjectPermissionsFor(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, ProjectPermissionsAll, perms)
}

func TestProjectPermissionsFor_DirectMembership(t *testing.T) {
	store := newFakeStore()
	store.users[2] = db.User{ID: 2, Role: "member"}
	store.projects[10] = db.Project{ID: 10, TeamID: 100}
	store.teamsByProject[10] = db.Team{ID: 100}
	store.members[[2]int64{100, 2}] = db.TeamMember{
		TeamID: 100, UserID: 2, Accepted: true,
		ProjectPermissions: uint64(ProjectUploadVersion | ProjectEditDetails),
	}

	kernel := NewKernel(store)
	perms, err := kernel.ProjectPermissionsFor(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.True(t, perms.Has(ProjectUploadVersion))
	assert.True(t, perms.Has(ProjectEditDetails))
	assert.False(t, perms.Has(ProjectDeleteProject))
}

func TestProjectPermissionsFor_OrganizationInheritance(t *testing.T) {
	store := newFakeStore()
	orgID := int64(5)
	store.users[3] = db.User{ID: 3, Role: "member"}
	store.projects[10] = db.Project{ID: 10, TeamID: 100, OrganizationID: &orgID}
	store.teamsByProject[10] = db.Team{ID: 100}
	store.teamsByOrganization[5] = db.Team{ID: 200, OrganizationID: &orgID}
	orgPerms := uint64(OrgAddProject)
	store.members[[2]int64{200, 3}] = db.TeamMember{
		TeamID: 200, UserID: 3, Accepted: true, OrganizationPermissions: &orgPerms,
	}
	store.defaultPerms[[2]int64{5, 3}] = uint64(ProjectUploadVersion)

	kernel := NewKernel(store)
	perms, err := kernel.ProjectPermissionsFor(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Equal(t, ProjectPermissions(ProjectUploadVersion), perms)
}

func TestProjectPermissionsFor_OrgEditMemberDefaultPermissionsGrantsAll(t *testing.T) {
	store := newFakeStore()
	orgID := int64(5)
	store.users[3] = db.User{ID: 3, Role: "member"}
	store.projects[10] = db.Project{ID: 10, TeamID: 100, OrganizationID: &orgID}
	store.teamsByProject[10] = db.Team{ID: 100}
	store.teamsByOrganization[5] = db.Team{ID: 200, OrganizationID: &orgID}
	orgPerms := uint64(OrgEditMemberDefaultPermissions)
	store.members[[2]int64{200, 3}] = db.TeamMember{
		TeamID: 200, UserID: 3, Accepted: true, OrganizationPermissions: &orgPerms,
	}

	kernel := NewKernel(store)
	perms, err := kernel.ProjectPermissionsFor(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Equal(t, ProjectPermissionsAll, perms)
}

func TestProjectPermissionsFor_NoAccess(t *testing.T) {
	store := newFakeStore()
	store.users[4] = db.User{ID: 4, Role: "member"}
	store.projects[10] = db.Project{ID: 10, TeamID: 100}
	store.teamsByProject[10] = db.Team{ID: 100}

	kernel := NewKernel(store)
	perms, err := kernel.ProjectPermissionsFor(context.Background(), 4, 10)
	require.NoError(t, err)
	assert.Equal(t, ProjectPermissions(0), perms)
}

func TestRequireProjectPermission_HiddenProjectReturnsNotFound(t *testing.T) {
	store := newFakeStore()
	store.users[4] = db.User{ID: 4, Role: "member"}
	store.projects[10] = db.Project{ID: 10, TeamID: 100, Status: db.ProjectPrivate}
	store.teamsByProject[10] = db.Team{ID: 100}

	kernel := NewKernel(store)
	err := kernel.RequireProjectPermission(context.Background(), 4, 10, ProjectEditDetails)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func int64Ptr(v int64) *int64 { return &v }
