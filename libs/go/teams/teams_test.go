package teams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labrinth-gg/labrinth/libs/go/authz"
	"github.com/labrinth-gg/labrinth/libs/go/cache"
	"github.com/labrinth-gg/labrinth/libs/go/db"
)

type fakeStore struct {
	users               map[int64]db.User
	projects            map[int64]db.Project
	teams               map[int64]db.Team
	teamsByProject      map[int64]db.Team
	teamsByOrganization map[int64]db.Team
	organizations       map[int64]db.Organization
	members             map[[2]int64]db.TeamMember
	defaultPerms        map[[2]int64]uint64
	orgProjectIDs       map[int64][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:               map[int64]db.User{},
		projects:            map[int64]db.Project{},
		teams:               map[int64]db.Team{},
		teamsByProject:      map[int64]db.Team{},
		teamsByOrganization: map[int64]db.Team{},
		organizations:       map[int64]db.Organization{},
		members:             map[[2]int64]db.TeamMember{},
		defaultPerms:        map[[2]int64]uint64{},
		orgProjectIDs:       map[int64][]int64{},
	}
}

func (f *fakeStore) GetTeam(ctx context.Context, teamID int64) (db.Team, error) {
	t, ok := f.teams[teamID]
	if !ok {
		return db.Team{}, db.ErrNotFound
	}
	return t, nil
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

func (f *fakeStore) GetTeamMembers(ctx context.Context, teamID int64) ([]db.TeamMember, error) {
	var out []db.TeamMember
	for k, m := range f.members {
		if k[0] == teamID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertTeamMember(ctx context.Context, m db.TeamMember) error {
	f.members[[2]int64{m.TeamID, m.UserID}] = m
	return nil
}

func (f *fakeStore) DeleteTeamMember(ctx context.Context, teamID, userID int64) error {
	delete(f.members, [2]int64{teamID, userID})
	return nil
}

func (f *fakeStore) UpdateProjectOrganization(ctx context.Context, id int64, orgID *int64) error {
	p := f.projects[id]
	p.OrganizationID = orgID
	f.projects[id] = p
	return nil
}

func (f *fakeStore) GetOrganizationProjectIDs(ctx context.Context, orgID int64) ([]int64, error) {
	return f.orgProjectIDs[orgID], nil
}

func newEngine(store Store) *Engine {
	kernel := authz.NewKernel(store)
	return NewEngine(store, kernel, cache.New(nil, time.Minute))
}

func TestInvite_RequiresManageInvites(t *testing.T) {
	store := newFakeStore()
	store.users[1] = db.User{ID: 1, Role: "member"}
	store.projects[10] = db.Project{ID: 10, TeamID: 100}
	store.teams[100] = db.Team{ID: 100, ProjectID: int64Ptr(10)}

	engine := newEngine(store)
	err := engine.Invite(context.Background(), 1, 100, 2, "Member", 0, nil)
	require.Error(t, err)
}

func TestInvite_CreatesPendingMember(t *testing.T) {
	store := newFakeStore()
	store.users[1] = db.User{ID: 1, Role: "member"}
	store.projects[10] = db.Project{ID: 10, TeamID: 100}
	store.teams[100] = db.Team{ID: 100, ProjectID: int64Ptr(10)}
	store.members[[2]int64{100, 1}] = db.TeamMember{
		TeamID: 100, UserID: 1, Accepted: true,
		ProjectPermissions: uint64(authz.ProjectManageInvites),
	}

	engine := newEngine(store)
	err := engine.Invite(context.Background(), 1, 100, 2, "Member", 0, nil)
	require.NoError(t, err)

	m, ok := store.members[[2]int64{100, 2}]
	require.True(t, ok)
	assert.False(t, m.Accepted)
	assert.False(t, m.IsOwner)
}

func TestAccept_IsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.members[[2]int64{100, 2}] = db.TeamMember{TeamID: 100, UserID: 2, Accepted: true}

	engine := newEngine(store)
	err := engine.Accept(context.Background(), 100, 2)
	require.NoError(t, err)
	assert.True(t, store.members[[2]int64{100, 2}].Accepted)
}

func TestAccept_FlipsPendingToAccepted(t *testing.T) {
	store := newFakeStore()
	store.members[[2]int64{100, 2}] = db.TeamMember{TeamID: 100, UserID: 2, Accepted: false}

	engine := newEngine(store)
	err := engine.Accept(context.Background(), 100, 2)
	require.NoError(t, err)
	assert.True(t, store.members[[2]int64{100, 2}].Accepted)
}

func TestRemove_CannotRemoveOwner(t *testing.T) {
	store := newFakeStore()
	store.members[[2]int64{100, 1}] = db.TeamMember{TeamID: 100, UserID: 1, IsOwner: true, Accepted: true}

	engine := newEngine(store)
	err := engine.Remove(context.Background(), 1, 100, 1)
	require.Error(t, err)
	_, ok := store.members[[2]int64{100, 1}]
	assert.True(t, ok, "owner row must survive the rejected removal")
}

func TestRemove_SelfLeaveNeedsNoPermission(t *testing.T) {
	store := newFakeStore()
	store.members[[2]int64{100, 2}] = db.TeamMember{TeamID: 100, UserID: 2, Accepted: true}

	engine := newEngine(store)
	err := engine.Remove(context.Background(), 2, 100, 2)
	require.NoError(t, err)
	_, ok := store.members[[2]int64{100, 2}]
	assert.False(t, ok)
}

func TestTransferOwnership_RequiresAcceptedNewOwner(t *testing.T) {
	store := newFakeStore()
	store.users[1] = db.User{ID: 1, Role: "member"}
	store.members[[2]int64{100, 1}] = db.TeamMember{TeamID: 100, UserID: 1, IsOwner: true, Accepted: true}
	store.members[[2]int64{100, 2}] = db.TeamMember{TeamID: 100, UserID: 2, Accepted: false}

	engine := newEngine(store)
	err := engine.TransferOwnership(context.Background(), 1, 100, 2)
	require.Error(t, err)
}

func TestTransferOwnership_MovesOwnershipAndResetsOldOwner(t *testing.T) {
	store := newFakeStore()
	store.users[1] = db.User{ID: 1, Role: "member"}
	store.members[[2]int64{100, 1}] = db.TeamMember{TeamID: 100, UserID: 1, IsOwner: true, Accepted: true}
	store.members[[2]int64{100, 2}] = db.TeamMember{TeamID: 100, UserID: 2, Accepted: true}

	engine := newEngine(store)
	err := engine.TransferOwnership(context.Background(), 1, 100, 2)
	require.NoError(t, err)

	assert.False(t, store.members[[2]int64{100, 1}].IsOwner)
	assert.True(t, store.members[[2]int64{100, 2}].IsOwner)
	assert.Equal(t, "Owner", store.members[[2]int64{100, 2}].Role)
}

func TestTransferOwnership_AdminCanTransferWithoutBeingOwner(t *testing.T) {
	store := newFakeStore()
	store.users[99] = db.User{ID: 99, Role: db.RoleAdmin}
	store.members[[2]int64{100, 1}] = db.TeamMember{TeamID: 100, UserID: 1, IsOwner: true, Accepted: true}
	store.members[[2]int64{100, 2}] = db.TeamMember{TeamID: 100, UserID: 2, Accepted: true}

	engine := newEngine(store)
	err := engine.TransferOwnership(context.Background(), 99, 100, 2)
	require.NoError(t, err)
	assert.True(t, store.members[[2]int64{100, 2}].IsOwner)
}

func TestAddProjectToOrganization_DemotesOldOwnerAndReparents(t *testing.T) {
	store := newFakeStore()
	store.users[1] = db.User{ID: 1, Role: "member"}
	store.projects[10] = db.Project{ID: 10, TeamID: 100}
	store.teamsByProject[10] = db.Team{ID: 100, ProjectID: int64Ptr(10)}
	store.members[[2]int64{100, 1}] = db.TeamMember{TeamID: 100, UserID: 1, IsOwner: true, Accepted: true}
	store.teamsByOrganization[5] = db.Team{ID: 200, OrganizationID: int64Ptr(5)}
	orgPerms := uint64(authz.OrgAddProject)
	store.members[[2]int64{200, 1}] = db.TeamMember{TeamID: 200, UserID: 1, Accepted: true, OrganizationPermissions: &orgPerms}

	engine := newEngine(store)
	err := engine.AddProjectToOrganization(context.Background(), 1, 10, 5)
	require.NoError(t, err)

	assert.False(t, store.members[[2]int64{100, 1}].IsOwner)
	require.NotNil(t, store.projects[10].OrganizationID)
	assert.Equal(t, int64(5), *store.projects[10].OrganizationID)
}

func TestRemoveProjectFromOrganization_NewOwnerMustBeAcceptedOrgMember(t *testing.T) {
	store := newFakeStore()
	store.teamsByOrganization[5] = db.Team{ID: 200, OrganizationID: int64Ptr(5)}
	store.members[[2]int64{200, 9}] = db.TeamMember{TeamID: 200, UserID: 9, Accepted: false}
	store.users[1] = db.User{ID: 1, Role: db.RoleAdmin}

	engine := newEngine(store)
	err := engine.RemoveProjectFromOrganization(context.Background(), 1, 10, 5, 9)
	require.Error(t, err)
}

func TestDeleteOrganization_ReparentsProjectsToOrgOwner(t *testing.T) {
	store := newFakeStore()
	store.users[1] = db.User{ID: 1, Role: db.RoleAdmin}
	store.teamsByOrganization[5] = db.Team{ID: 200, OrganizationID: int64Ptr(5)}
	store.members[[2]int64{200, 7}] = db.TeamMember{TeamID: 200, UserID: 7, IsOwner: true, Accepted: true}
	store.orgProjectIDs[5] = []int64{10, 11}
	store.projects[10] = db.Project{ID: 10, TeamID: 100}
	store.teamsByProject[10] = db.Team{ID: 100, ProjectID: int64Ptr(10)}
	store.projects[11] = db.Project{ID: 11, TeamID: 101}
	store.teamsByProject[11] = db.Team{ID: 101, ProjectID: int64Ptr(11)}

	engine := newEngine(store)
	ids, err := engine.DeleteOrganization(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{10, 11}, ids)

	assert.True(t, store.members[[2]int64{100, 7}].IsOwner)
	assert.True(t, store.members[[2]int64{101, 7}].IsOwner)
	assert.Nil(t, store.projects[10].OrganizationID)
}

func int64Ptr(v int64) *int64 { return &v }
