package service

import (
	"context"
	"testing"

	"chatgraph/internal/models"
	"chatgraph/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryIDs(users []models.UserSummary) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

func eventKeys(events []notifications.Event) []string {
	keys := make([]string, len(events))
	for i, ev := range events {
		keys[i] = ev.Key
	}
	return keys
}

func TestCreateGroup_DropsNonFriends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createUsers(t, "amy", "ben", "cat", "dan")
	amy, ben, cat, dan := ids[0], ids[1], ids[2], ids[3]
	f.befriend(t, amy, ben)
	f.befriend(t, amy, cat)

	group, err := f.rooms.CreateGroup(ctx, CreateGroupInput{CreatorID: amy, Name: " Weekend ", FriendIDs: []string{ben, cat, dan}})
	require.NoError(t, err)
	assert.True(t, group.IsGroup)
	assert.Equal(t, "Weekend", group.Name)

	members, err := f.rooms.ListMembers(ctx, amy, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ben, cat}, summaryIDs(members))

	admins, err := f.rooms.ListAdmins(ctx, amy, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{amy}, summaryIDs(admins))

	assert.ElementsMatch(t, []string{ben, cat}, eventKeys(f.events.named(notifications.EventAddedMemberReceived)))

	_, err = f.rooms.CreateGroup(ctx, CreateGroupInput{CreatorID: amy, Name: "  "})
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestGroupMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createUsers(t, "amy", "ben", "cat", "dan")
	amy, ben, cat, dan := ids[0], ids[1], ids[2], ids[3]
	f.befriend(t, amy, ben)
	f.befriend(t, amy, cat)
	f.befriend(t, ben, dan)

	group, err := f.rooms.CreateGroup(ctx, CreateGroupInput{CreatorID: amy, Name: "crew", FriendIDs: []string{ben}})
	require.NoError(t, err)
	f.events.reset()

	t.Run("add requires admin and friendship", func(t *testing.T) {
		err := f.rooms.AddMember(ctx, ben, group.ID, dan)
		assert.True(t, models.HasCode(err, models.CodeForbidden), "non-admin")
		err = f.rooms.AddMember(ctx, amy, group.ID, dan)
		assert.True(t, models.HasCode(err, models.CodeForbidden), "admin not friends with target")
		err = f.rooms.AddMember(ctx, amy, group.ID, ben)
		assert.True(t, models.HasCode(err, models.CodeConflict), "already a member")
	})

	require.NoError(t, f.rooms.AddMember(ctx, amy, group.ID, cat))
	events := f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, notifications.EventAddedMemberReceived, events[0].Name)
	assert.Equal(t, cat, events[0].Key)
	assert.Equal(t, notifications.EventAddedMemRosterUpdated, events[1].Name)
	assert.Equal(t, group.ID, events[1].Key)
	f.events.reset()

	t.Run("remove publishes to target and roster", func(t *testing.T) {
		require.NoError(t, f.rooms.RemoveMember(ctx, amy, group.ID, cat))
		events := f.events.all()
		require.Len(t, events, 2)
		assert.Equal(t, notifications.EventRemovedMemberReceived, events[0].Name)
		assert.Equal(t, cat, events[0].Key)
		assert.JSONEq(t, `{"targetUserId":"`+cat+`","groupId":"`+group.ID+`"}`, string(events[0].Payload))
		assert.Equal(t, notifications.EventRemovedMemRosterUpdated, events[1].Name)
		assert.Equal(t, group.ID, events[1].Key)

		ok, err := f.rel.IsMember(ctx, cat, group.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove self is rejected", func(t *testing.T) {
		err := f.rooms.RemoveMember(ctx, amy, group.ID, amy)
		assert.True(t, models.HasCode(err, models.CodeValidation))
	})
}

func TestAdminRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createUsers(t, "amy", "ben")
	amy, ben := ids[0], ids[1]
	f.befriend(t, amy, ben)

	group, err := f.rooms.CreateGroup(ctx, CreateGroupInput{CreatorID: amy, Name: "crew", FriendIDs: []string{ben}})
	require.NoError(t, err)

	t.Run("sole admin cannot leave while others remain", func(t *testing.T) {
		err := f.rooms.LeaveGroup(ctx, amy, group.ID)
		assert.True(t, models.HasCode(err, models.CodeConflict))
	})

	t.Run("last admin cannot be demoted", func(t *testing.T) {
		err := f.rooms.DemoteAdmin(ctx, amy, group.ID, amy)
		assert.True(t, models.HasCode(err, models.CodeConflict))
	})

	t.Run("group details are members only", func(t *testing.T) {
		got, err := f.rooms.GetGroup(ctx, ben, group.ID)
		require.NoError(t, err)
		assert.Equal(t, "crew", got.Name)
		assert.True(t, got.IsGroup)

		outsider := f.createUsers(t, "cat")[0]
		_, err = f.rooms.GetGroup(ctx, outsider, group.ID)
		assert.True(t, models.HasCode(err, models.CodeForbidden))
	})

	nonAdmins, err := f.rooms.ListNonAdmins(ctx, amy, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ben}, summaryIDs(nonAdmins))

	t.Run("only admins may list removable admins", func(t *testing.T) {
		_, err := f.rooms.ListAdminsToRemove(ctx, ben, group.ID)
		assert.True(t, models.HasCode(err, models.CodeForbidden))
		_, err = f.rooms.ListAdminsToRemove(ctx, amy, "no-such-group")
		assert.True(t, models.HasCode(err, models.CodeForbidden))
	})

	f.events.reset()
	require.NoError(t, f.rooms.PromoteAdmin(ctx, amy, group.ID, ben))
	changed := f.events.named(notifications.EventAdminStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, group.ID, changed[0].Key)

	removable, err := f.rooms.ListAdminsToRemove(ctx, amy, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ben}, summaryIDs(removable))

	require.NoError(t, f.rooms.LeaveGroup(ctx, amy, group.ID))
	ok, err := f.rel.IsMember(ctx, amy, group.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	t.Run("last member leaving dissolves the group", func(t *testing.T) {
		require.NoError(t, f.rooms.LeaveGroup(ctx, ben, group.ID))
		_, err := f.rel.GetRoom(ctx, group.ID)
		assert.True(t, models.HasCode(err, models.CodeNotFound))
	})
}

func TestDeleteGroup_NotifiesFormerMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createUsers(t, "amy", "ben", "cat")
	amy, ben, cat := ids[0], ids[1], ids[2]
	f.befriend(t, amy, ben)
	f.befriend(t, amy, cat)

	group, err := f.rooms.CreateGroup(ctx, CreateGroupInput{CreatorID: amy, Name: "crew", FriendIDs: []string{ben, cat}})
	require.NoError(t, err)
	_, err = f.msgs.Send(ctx, SendMessageInput{SenderID: ben, RoomID: group.ID, Content: "hi"})
	require.NoError(t, err)
	f.events.reset()

	err = f.rooms.DeleteGroup(ctx, ben, group.ID)
	assert.True(t, models.HasCode(err, models.CodeForbidden))

	require.NoError(t, f.rooms.DeleteGroup(ctx, amy, group.ID))
	assert.ElementsMatch(t, []string{amy, ben, cat}, eventKeys(f.events.named(notifications.EventRemovedMemberReceived)))

	groups, err := f.rooms.ListGroups(ctx, ben)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestListGroups_AttachesLatestMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createUsers(t, "amy", "ben")
	f.befriend(t, ids[0], ids[1])

	quiet, err := f.rooms.CreateGroup(ctx, CreateGroupInput{CreatorID: ids[0], Name: "quiet", FriendIDs: []string{ids[1]}})
	require.NoError(t, err)
	busy, err := f.rooms.CreateGroup(ctx, CreateGroupInput{CreatorID: ids[0], Name: "busy", FriendIDs: []string{ids[1]}})
	require.NoError(t, err)
	_, err = f.msgs.Send(ctx, SendMessageInput{SenderID: ids[1], RoomID: busy.ID, Content: "first"})
	require.NoError(t, err)
	last, err := f.msgs.Send(ctx, SendMessageInput{SenderID: ids[0], RoomID: busy.ID, Content: "last"})
	require.NoError(t, err)

	groups, err := f.rooms.ListGroups(ctx, ids[1])
	require.NoError(t, err)
	require.Len(t, groups, 2)
	byID := map[string]models.ChatRoom{}
	for _, g := range groups {
		byID[g.ID] = g
	}
	assert.Nil(t, byID[quiet.ID].LastMessage)
	require.NotNil(t, byID[busy.ID].LastMessage)
	assert.Equal(t, last.ID, byID[busy.ID].LastMessage.ID)
}

func TestPrivateRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createUsers(t, "amy", "ben", "cat")
	amy, ben, cat := ids[0], ids[1], ids[2]
	f.befriend(t, amy, ben)

	_, err := f.rooms.GetOrCreatePrivateRoom(ctx, amy, amy)
	assert.True(t, models.HasCode(err, models.CodeValidation))
	_, err = f.rooms.GetOrCreatePrivateRoom(ctx, amy, cat)
	assert.True(t, models.HasCode(err, models.CodeForbidden))

	first, err := f.rooms.GetOrCreatePrivateRoom(ctx, amy, ben)
	require.NoError(t, err)
	second, err := f.rooms.GetOrCreatePrivateRoom(ctx, ben, amy)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, first.IsGroup)

	msg, err := f.msgs.Send(ctx, SendMessageInput{SenderID: amy, RoomID: first.ID, Content: "kept"})
	require.NoError(t, err)

	require.NoError(t, f.rooms.DeletePrivateChat(ctx, amy, ben))
	_, err = f.rooms.RoomForFriend(ctx, amy, ben)
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	friends, err := f.rel.AreFriends(ctx, amy, ben)
	require.NoError(t, err)
	assert.True(t, friends, "friendship survives")
	_, err = f.messages.GetByID(ctx, msg.ID)
	assert.NoError(t, err, "messages survive")
}
