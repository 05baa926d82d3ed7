package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/groupchat/internal/database"
	"github.com/thereayou/groupchat/internal/models"
)

type eviction struct {
	channel, user models.ID
}

type recordingRelay struct {
	mu        sync.Mutex
	published []*models.Message
	evicted   []eviction
}

func (r *recordingRelay) PublishMessage(m *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, m)
}

func (r *recordingRelay) Evict(channelID, userID models.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, eviction{channelID, userID})
}

type recordingCache struct {
	evicted []models.ID
}

func (c *recordingCache) Evict(_ context.Context, id models.ID) {
	c.evicted = append(c.evicted, id)
}

type fixture struct {
	db    *database.Database
	svc   *MembershipService
	relay *recordingRelay
	cache *recordingCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	relay := &recordingRelay{}
	cache := &recordingCache{}
	return &fixture{
		db:    db,
		svc:   NewMembershipService(db, db, db, relay, cache),
		relay: relay,
		cache: cache,
	}
}

func (f *fixture) user(t *testing.T, name string) models.ID {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Valid: true}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return u.ID
}

func (f *fixture) group(t *testing.T, founder models.ID) models.ID {
	t.Helper()
	g, err := f.svc.CreateGroup(context.Background(), founder, "general")
	require.NoError(t, err)
	return g.ID
}

func (f *fixture) join(t *testing.T, groupID, userID models.ID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.RequestJoinGroup(ctx, groupID, userID))
	require.NoError(t, f.svc.ApproveGroupJoin(ctx, groupID, userID))
}

func (f *fixture) channel(t *testing.T, admin, groupID models.ID, members ...models.ID) models.ID {
	t.Helper()
	ctx := context.Background()
	ch, err := f.svc.CreateChannel(ctx, admin, groupID, "random")
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, f.svc.RequestJoinChannel(ctx, ch.ID, m))
		require.NoError(t, f.svc.ResolveChannelJoin(ctx, ch.ID, m, true))
	}
	return ch.ID
}

// assertConsistent checks the inverse relation between user.Groups and
// group.Members, that channel members belong to the owning group, and the
// per-document invariants.
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	users, err := f.db.ListUsers(ctx)
	require.NoError(t, err)
	groups, err := f.db.ListGroups(ctx)
	require.NoError(t, err)
	channels, err := f.db.ListChannels(ctx)
	require.NoError(t, err)

	byID := map[models.ID]models.User{}
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, g := range groups {
		for _, m := range g.Members {
			u, ok := byID[m]
			if assert.True(t, ok, "group %s lists unknown member %s", g.ID, m) {
				assert.True(t, u.Groups.Contains(g.ID), "user %s lacks group %s", m, g.ID)
			}
		}
		for _, a := range g.Admins {
			assert.True(t, g.Members.Contains(a), "admin %s not a member of %s", a, g.ID)
		}
		for _, r := range g.JoinRequests {
			assert.False(t, g.Members.Contains(r))
		}
		for _, c := range g.Channels {
			ch, err := f.db.GetChannel(ctx, c)
			if assert.NoError(t, err) {
				assert.Equal(t, g.ID, ch.GroupID)
			}
		}
	}
	for _, u := range users {
		for _, gid := range u.Groups {
			g, err := f.db.GetGroup(ctx, gid)
			if assert.NoError(t, err) {
				assert.True(t, g.IsMember(u.ID), "group %s lacks member %s", gid, u.ID)
			}
		}
	}
	owners := map[models.ID]models.Group{}
	for _, g := range groups {
		owners[g.ID] = g
	}
	for _, ch := range channels {
		g, ok := owners[ch.GroupID]
		if assert.True(t, ok, "channel %s has no group", ch.ID) {
			for _, m := range ch.Members {
				assert.True(t, g.IsMember(m), "channel %s member %s is outside group %s", ch.ID, m, g.ID)
			}
		}
		for _, b := range ch.Blacklist {
			assert.False(t, ch.Members.Contains(b))
		}
		for _, r := range ch.JoinRequests {
			assert.False(t, ch.Members.Contains(r), "channel %s requester %s is a member", ch.ID, r)
			assert.False(t, ch.Blacklist.Contains(r), "channel %s requester %s is banned", ch.ID, r)
		}
	}
}

func TestCreateGroupFounder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	g := f.group(t, a1)

	user, err := f.db.GetUser(ctx, a1)
	require.NoError(t, err)
	assert.True(t, user.HasRole(models.RoleGroupAdmin))
	assert.Equal(t, models.IDs{g}, user.Groups)
	f.assertConsistent(t)
}

func TestCreateGroupRequiresValidatedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := &models.User{Username: "pending", Email: "p@example.com", PasswordHash: "x"}
	require.NoError(t, f.db.CreateUser(ctx, pending))

	_, err := f.svc.CreateGroup(ctx, pending.ID, "nope")
	assert.ErrorIs(t, err, models.ErrUnvalidated)

	require.NoError(t, f.svc.ValidateUser(ctx, pending.ID))
	_, err = f.svc.CreateGroup(ctx, pending.ID, "yes")
	assert.NoError(t, err)
}

func TestApproveGroupJoinRecordsGroupOnUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)

	require.NoError(t, f.svc.RequestJoinGroup(ctx, g, u1))
	assert.ErrorIs(t, f.svc.RequestJoinGroup(ctx, g, u1), models.ErrAlreadyRequested)
	require.NoError(t, f.svc.ApproveGroupJoin(ctx, g, u1))

	user, err := f.db.GetUser(ctx, u1)
	require.NoError(t, err)
	assert.Equal(t, models.IDs{g}, user.Groups)
	f.assertConsistent(t)
}

func TestRequestJoinGroupUnknownEntities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	g := f.group(t, a1)

	assert.ErrorIs(t, f.svc.RequestJoinGroup(ctx, models.NewID(), a1), models.ErrGroupOrUserNotFound)
	assert.ErrorIs(t, f.svc.RequestJoinGroup(ctx, g, models.NewID()), models.ErrGroupOrUserNotFound)
}

func TestRejectGroupJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)

	require.NoError(t, f.svc.RequestJoinGroup(ctx, g, u1))
	require.NoError(t, f.svc.RejectGroupJoin(ctx, g, u1))
	assert.ErrorIs(t, f.svc.ApproveGroupJoin(ctx, g, u1), models.ErrNoSuchRequest)

	user, err := f.db.GetUser(ctx, u1)
	require.NoError(t, err)
	assert.Empty(t, user.Groups)
}

func TestAddGroupAdminGrantsRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	f.join(t, g, u1)

	require.NoError(t, f.svc.AddGroupAdmin(ctx, g, u1))
	assert.ErrorIs(t, f.svc.AddGroupAdmin(ctx, g, u1), models.ErrAlreadyAdmin)
	assert.ErrorIs(t, f.svc.AddGroupAdmin(ctx, g, models.NewID()), models.ErrGroupOrUserNotFound)
	assert.ErrorIs(t, f.svc.AddGroupAdmin(ctx, models.NewID(), u1), models.ErrGroupOrUserNotFound)

	user, err := f.db.GetUser(ctx, u1)
	require.NoError(t, err)
	assert.True(t, user.HasRole(models.RoleGroupAdmin))

	group, err := f.db.GetGroup(ctx, g)
	require.NoError(t, err)
	assert.True(t, group.IsAdmin(u1))
	f.assertConsistent(t)
}

// Promoting a user who never joined enrolls them as a member as well.
func TestAddGroupAdminEnrollsNonMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)

	require.NoError(t, f.svc.AddGroupAdmin(ctx, g, u1))
	group, err := f.db.GetGroup(ctx, g)
	require.NoError(t, err)
	assert.True(t, group.IsMember(u1))
	f.assertConsistent(t)
}

func TestPromoteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := f.user(t, "bob")

	require.NoError(t, f.svc.PromoteUser(ctx, u1, models.RoleSuperAdmin))
	assert.ErrorIs(t, f.svc.PromoteUser(ctx, u1, models.RoleSuperAdmin), models.ErrAlreadyHasRole)
	assert.ErrorIs(t, f.svc.PromoteUser(ctx, models.NewID(), models.RoleSuperAdmin), models.ErrNotFound)
}

// Scenario E.
func TestLeaveGroupCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	f.join(t, g, u1)
	c1 := f.channel(t, a1, g, u1)
	c2 := f.channel(t, a1, g, u1)

	require.NoError(t, f.svc.LeaveGroup(ctx, u1, g))

	group, err := f.db.GetGroup(ctx, g)
	require.NoError(t, err)
	assert.False(t, group.IsMember(u1))

	user, err := f.db.GetUser(ctx, u1)
	require.NoError(t, err)
	assert.False(t, user.Groups.Contains(g))

	for _, c := range []models.ID{c1, c2} {
		ok, err := f.db.IsChannelMember(ctx, c, u1)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.ElementsMatch(t, []eviction{{c1, u1}, {c2, u1}}, f.relay.evicted)
	f.assertConsistent(t)
}

func TestLeaveGroupDropsPendingChannelRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	f.join(t, g, u1)
	c := f.channel(t, a1, g)
	require.NoError(t, f.svc.RequestJoinChannel(ctx, c, u1))

	require.NoError(t, f.svc.LeaveGroup(ctx, u1, g))

	ch, err := f.db.GetChannel(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, ch.JoinRequests)
	assert.Empty(t, f.relay.evicted, "a pending requester was never in the room")
	assert.ErrorIs(t, f.svc.ResolveChannelJoin(ctx, c, u1, true), models.ErrNoSuchRequest)
	f.assertConsistent(t)
}

// Approval racing a departure must not enroll someone outside the group.
func TestResolveChannelJoinAfterLeavingGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	f.join(t, g, u1)
	c := f.channel(t, a1, g)
	require.NoError(t, f.svc.RequestJoinChannel(ctx, c, u1))

	// The group side of the leave lands first; the channel step has not run.
	require.NoError(t, f.db.RemoveGroupMember(ctx, g, u1))
	require.NoError(t, f.db.RemoveUserGroup(ctx, u1, g))

	err := f.svc.ResolveChannelJoin(ctx, c, u1, true)
	assert.ErrorIs(t, err, models.ErrNotGroupMember)
	ok, err := f.db.IsChannelMember(ctx, c, u1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.svc.ResolveChannelJoin(ctx, c, u1, false))
	f.assertConsistent(t)
}

func TestLeaveGroupNotMemberTouchesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	other := f.group(t, a1)
	f.join(t, other, u1)
	f.channel(t, a1, g)

	assert.ErrorIs(t, f.svc.LeaveGroup(ctx, u1, g), models.ErrNotMember)
	assert.Empty(t, f.relay.evicted)

	user, err := f.db.GetUser(ctx, u1)
	require.NoError(t, err)
	assert.Equal(t, models.IDs{other}, user.Groups)
}

func TestRemoveMemberFromGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	f.join(t, g, u1)
	c := f.channel(t, a1, g, u1)

	assert.ErrorIs(t, f.svc.RemoveMemberFromGroup(ctx, g, models.NewID()), models.ErrGroupOrUserNotFound)
	require.NoError(t, f.svc.RemoveMemberFromGroup(ctx, g, u1))
	assert.ErrorIs(t, f.svc.RemoveMemberFromGroup(ctx, g, u1), models.ErrNotMember)

	ok, err := f.db.IsChannelMember(ctx, c, u1)
	require.NoError(t, err)
	assert.False(t, ok)
	f.assertConsistent(t)
}

type failingIdentityStore struct {
	*database.Database
}

func (failingIdentityStore) RemoveUserGroup(context.Context, models.ID, models.ID) error {
	return errors.New("connection reset")
}

func TestLeaveGroupPartialFailureKeepsEarlierSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	f.join(t, g, u1)
	c := f.channel(t, a1, g, u1)

	svc := NewMembershipService(failingIdentityStore{f.db}, f.db, f.db, nil, nil)
	err := svc.LeaveGroup(ctx, u1, g)
	require.Error(t, err)
	assert.False(t, models.IsTaxonomy(err))

	group, err := f.db.GetGroup(ctx, g)
	require.NoError(t, err)
	assert.False(t, group.IsMember(u1), "first step is not rolled back")

	ok, err := f.db.IsChannelMember(ctx, c, u1)
	require.NoError(t, err)
	assert.True(t, ok, "later steps do not run")
}

func TestDeleteUserCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g1 := f.group(t, a1)
	g2 := f.group(t, a1)
	g3 := f.group(t, a1)
	f.join(t, g1, u1)
	require.NoError(t, f.svc.AddGroupAdmin(ctx, g2, u1))
	require.NoError(t, f.svc.RequestJoinGroup(ctx, g3, u1))
	c1 := f.channel(t, a1, g1, u1)
	c2 := f.channel(t, a1, g2, u1)
	require.NoError(t, f.svc.BanFromChannel(ctx, c2, u1))

	require.NoError(t, f.svc.DeleteUser(ctx, u1))

	groups, err := f.db.ListGroups(ctx)
	require.NoError(t, err)
	for _, g := range groups {
		assert.False(t, g.Members.Contains(u1))
		assert.False(t, g.Admins.Contains(u1))
		assert.False(t, g.JoinRequests.Contains(u1))
	}
	channels, err := f.db.ListChannels(ctx)
	require.NoError(t, err)
	for _, ch := range channels {
		assert.False(t, ch.Members.Contains(u1))
		assert.False(t, ch.Blacklist.Contains(u1))
	}
	_, err = f.db.GetUser(ctx, u1)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, []models.ID{u1}, f.cache.evicted)
	assert.Contains(t, f.relay.evicted, eviction{c1, u1})

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, u1), models.ErrUserNotFound)
	f.assertConsistent(t)
}

func TestBanKeepsGroupMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	f.join(t, g, u1)
	c := f.channel(t, a1, g, u1)

	require.NoError(t, f.svc.BanFromChannel(ctx, c, u1))
	assert.ErrorIs(t, f.svc.BanFromChannel(ctx, c, u1), models.ErrAlreadyBanned)
	assert.ErrorIs(t, f.svc.RequestJoinChannel(ctx, c, u1), models.ErrBanned)

	group, err := f.db.GetGroup(ctx, g)
	require.NoError(t, err)
	assert.True(t, group.IsMember(u1))
	assert.Equal(t, []eviction{{c, u1}}, f.relay.evicted)
}

func TestRequestJoinChannelRequiresGroupMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	c := f.channel(t, a1, g)

	assert.ErrorIs(t, f.svc.RequestJoinChannel(ctx, c, u1), models.ErrCrossEntityViolation)
}

func TestRemoveFromChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	g := f.group(t, a1)
	c := f.channel(t, a1, g)

	removed, err := f.svc.RemoveFromChannel(ctx, c, a1)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = f.svc.RemoveFromChannel(ctx, c, a1)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Len(t, f.relay.evicted, 1)
}

func TestCreateChannelAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	root := f.user(t, "root")
	require.NoError(t, f.svc.PromoteUser(ctx, root, models.RoleSuperAdmin))
	g := f.group(t, a1)
	f.join(t, g, u1)

	_, err := f.svc.CreateChannel(ctx, u1, g, "nope")
	assert.ErrorIs(t, err, models.ErrForbidden)

	ch, err := f.svc.CreateChannel(ctx, a1, g, "ops")
	require.NoError(t, err)
	assert.Equal(t, models.IDs{a1}, ch.Members)

	ch, err = f.svc.CreateChannel(ctx, root, g, "audit")
	require.NoError(t, err)
	assert.Empty(t, ch.Members)

	group, err := f.db.GetGroup(ctx, g)
	require.NoError(t, err)
	assert.Len(t, group.Channels, 2)
	f.assertConsistent(t)
}

func TestDeleteGroupDetachesMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	f.join(t, g, u1)
	c := f.channel(t, a1, g, u1)

	require.NoError(t, f.svc.DeleteGroup(ctx, g))

	for _, id := range []models.ID{a1, u1} {
		user, err := f.db.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, user.Groups)
	}
	_, err := f.db.GetChannel(ctx, c)
	assert.ErrorIs(t, err, models.ErrNotFound)
	f.assertConsistent(t)
}

func TestDeleteChannelUnlinksGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	g := f.group(t, a1)
	c := f.channel(t, a1, g)

	require.NoError(t, f.svc.DeleteChannel(ctx, c))
	group, err := f.db.GetGroup(ctx, g)
	require.NoError(t, err)
	assert.Empty(t, group.Channels)
	assert.ErrorIs(t, f.svc.DeleteChannel(ctx, c), models.ErrNotFound)
}

func TestPostMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	g := f.group(t, a1)
	f.join(t, g, u1)
	c := f.channel(t, a1, g, u1)

	m, err := f.svc.PostMessage(ctx, c, a1, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, models.KindText, m.Kind)
	require.Len(t, f.relay.published, 1)
	assert.Equal(t, m.Seq, f.relay.published[0].Seq)

	_, err = f.svc.PostMessage(ctx, c, a1, "  ", "")
	assert.ErrorIs(t, err, models.ErrEmptyBody)

	require.NoError(t, f.svc.BanFromChannel(ctx, c, u1))
	_, err = f.svc.PostMessage(ctx, c, u1, "let me in", "")
	assert.ErrorIs(t, err, models.ErrBanned)

	outsider := f.user(t, "carol")
	_, err = f.svc.PostMessage(ctx, c, outsider, "hi", models.KindImage)
	assert.ErrorIs(t, err, models.ErrNotMember)
}

func TestCanAdministerGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.user(t, "alice")
	u1 := f.user(t, "bob")
	root := f.user(t, "root")
	require.NoError(t, f.svc.PromoteUser(ctx, root, models.RoleSuperAdmin))
	g := f.group(t, a1)
	c := f.channel(t, a1, g)

	for caller, want := range map[models.ID]bool{a1: true, u1: false, root: true} {
		ok, err := f.svc.CanAdministerGroup(ctx, caller, g)
		require.NoError(t, err)
		assert.Equal(t, want, ok)

		ok, err = f.svc.CanAdministerChannel(ctx, caller, c)
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
}
