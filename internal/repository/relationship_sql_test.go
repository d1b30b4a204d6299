package repository

import (
	"context"
	"sync"
	"testing"

	"chatgraph/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLRelationships_RequestLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRelationshipRepository(db)
	ctx := context.Background()
	u := createUsers(t, db, "amy", "ben")
	amy, ben := u[0].ID, u[1].ID

	require.NoError(t, repo.SendRequest(ctx, amy, ben))

	status, err := repo.RelationStatus(ctx, amy, ben)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusSent, status)
	status, err = repo.RelationStatus(ctx, ben, amy)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusReceived, status)

	t.Run("a pair holds one relation in either direction", func(t *testing.T) {
		assert.True(t, models.HasCode(repo.SendRequest(ctx, ben, amy), models.CodeConflict))
		assert.True(t, models.HasCode(repo.SendRequest(ctx, amy, ben), models.CodeConflict))
	})

	sent, err := repo.ListSentRequests(ctx, amy)
	require.NoError(t, err)
	assert.Equal(t, []string{ben}, sent)
	received, err := repo.ListReceivedRequests(ctx, ben)
	require.NoError(t, err)
	assert.Equal(t, []string{amy}, received)

	t.Run("only the receiver side can accept", func(t *testing.T) {
		err := repo.AcceptRequest(ctx, amy, ben)
		assert.True(t, models.HasCode(err, models.CodeNotFound))
	})

	require.NoError(t, repo.AcceptRequest(ctx, ben, amy))
	ok, err := repo.AreFriends(ctx, ben, amy)
	require.NoError(t, err)
	assert.True(t, ok)

	statuses, err := repo.RelationStatuses(ctx, amy, []string{ben, "nobody"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusFriend, statuses[ben])
	assert.Equal(t, models.RequestStatusNone, statuses["nobody"])

	assert.True(t, models.HasCode(repo.CancelRequest(ctx, amy, ben), models.CodeNotFound))
}

func TestSQLRelationships_CancelAndReject(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRelationshipRepository(db)
	ctx := context.Background()
	u := createUsers(t, db, "cat", "dan")
	cat, dan := u[0].ID, u[1].ID

	require.NoError(t, repo.SendRequest(ctx, cat, dan))
	assert.True(t, models.HasCode(repo.CancelRequest(ctx, dan, cat), models.CodeNotFound))
	require.NoError(t, repo.CancelRequest(ctx, cat, dan))

	require.NoError(t, repo.SendRequest(ctx, dan, cat))
	require.NoError(t, repo.RejectRequest(ctx, cat, dan))
	status, err := repo.RelationStatus(ctx, cat, dan)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusNone, status)
}

func TestSQLRelationships_PrivateRoomIsCreatedOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRelationshipRepository(db)
	ctx := context.Background()
	u := createUsers(t, db, "eli", "fay", "gus")
	eli, fay, gus := u[0].ID, u[1].ID, u[2].ID
	makeFriends(t, db, eli, fay)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		creates int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := eli, fay
			if i%2 == 1 {
				a, b = fay, eli
			}
			room, created, err := repo.GetOrCreatePrivateRoom(ctx, a, b)
			assert.NoError(t, err)
			if room == nil {
				return
			}
			mu.Lock()
			ids[room.ID] = true
			if created {
				creates++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, creates)

	var members int64
	require.NoError(t, db.Model(&models.RoomMember{}).Count(&members).Error)
	assert.EqualValues(t, 2, members)

	room, err := repo.FindPrivateRoom(ctx, fay, eli)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, models.PrivateRoomName, room.Name)
	assert.False(t, room.IsGroup)

	_, _, err = repo.GetOrCreatePrivateRoom(ctx, eli, gus)
	assert.True(t, models.HasCode(err, models.CodeForbidden))
}

func TestSQLRelationships_GroupManagement(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRelationshipRepository(db)
	ctx := context.Background()
	u := createUsers(t, db, "hal", "ivy", "jon", "kim")
	hal, ivy, jon, kim := u[0].ID, u[1].ID, u[2].ID, u[3].ID
	makeFriends(t, db, hal, ivy)
	makeFriends(t, db, hal, jon)

	group, added, err := repo.CreateGroup(ctx, hal, "Climbers", []string{ivy, kim, ivy, hal})
	require.NoError(t, err)
	assert.Equal(t, []string{ivy}, added, "non-friends and duplicates are dropped")
	assert.True(t, group.IsGroup)

	admin, err := repo.IsAdmin(ctx, hal, group.ID)
	require.NoError(t, err)
	assert.True(t, admin)

	t.Run("add member requires admin and friendship", func(t *testing.T) {
		assert.True(t, models.HasCode(repo.AddMember(ctx, ivy, group.ID, jon), models.CodeForbidden))
		assert.True(t, models.HasCode(repo.AddMember(ctx, hal, group.ID, kim), models.CodeForbidden))
		require.NoError(t, repo.AddMember(ctx, hal, group.ID, jon))
		assert.True(t, models.HasCode(repo.AddMember(ctx, hal, group.ID, jon), models.CodeConflict))
	})

	t.Run("listings", func(t *testing.T) {
		members, err := repo.ListMembers(ctx, hal, group.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{ivy, jon}, members)

		admins, err := repo.ListAdmins(ctx, ivy, group.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{hal}, admins)

		nonAdmins, err := repo.ListNonAdmins(ctx, ivy, group.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{ivy, jon}, nonAdmins)

		_, err = repo.ListAdminsToRemove(ctx, ivy, group.ID)
		assert.True(t, models.HasCode(err, models.CodeForbidden))

		_, err = repo.ListMembers(ctx, kim, group.ID)
		assert.True(t, models.HasCode(err, models.CodeForbidden))

		groups, err := repo.ListGroups(ctx, jon)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "Climbers", groups[0].Name)
	})

	t.Run("sole admin cannot leave while others remain", func(t *testing.T) {
		_, err := repo.LeaveGroup(ctx, hal, group.ID)
		assert.True(t, models.HasCode(err, models.CodeConflict))
	})

	t.Run("demoting the last admin is a conflict", func(t *testing.T) {
		assert.True(t, models.HasCode(repo.DemoteAdmin(ctx, hal, group.ID, hal), models.CodeConflict))
		assert.True(t, models.HasCode(repo.DemoteAdmin(ctx, hal, group.ID, ivy), models.CodeValidation))
	})

	t.Run("promote then demote", func(t *testing.T) {
		require.NoError(t, repo.PromoteAdmin(ctx, hal, group.ID, ivy))
		assert.True(t, models.HasCode(repo.PromoteAdmin(ctx, hal, group.ID, ivy), models.CodeConflict))

		removable, err := repo.ListAdminsToRemove(ctx, hal, group.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{ivy}, removable)

		require.NoError(t, repo.DemoteAdmin(ctx, ivy, group.ID, hal))
		admin, err := repo.IsAdmin(ctx, hal, group.ID)
		require.NoError(t, err)
		assert.False(t, admin)
		member, err := repo.IsMember(ctx, hal, group.ID)
		require.NoError(t, err)
		assert.True(t, member)
	})

	t.Run("remove member", func(t *testing.T) {
		assert.True(t, models.HasCode(repo.RemoveMember(ctx, ivy, group.ID, ivy), models.CodeValidation))
		assert.True(t, models.HasCode(repo.RemoveMember(ctx, hal, group.ID, jon), models.CodeForbidden))
		require.NoError(t, repo.RemoveMember(ctx, ivy, group.ID, jon))
		assert.True(t, models.HasCode(repo.RemoveMember(ctx, ivy, group.ID, jon), models.CodeNotFound))
	})

	t.Run("members leave until the group dissolves", func(t *testing.T) {
		dissolved, err := repo.LeaveGroup(ctx, hal, group.ID)
		require.NoError(t, err)
		assert.False(t, dissolved)

		dissolved, err = repo.LeaveGroup(ctx, ivy, group.ID)
		require.NoError(t, err)
		assert.True(t, dissolved)

		_, err = repo.GetRoom(ctx, group.ID)
		assert.True(t, models.HasCode(err, models.CodeNotFound))
	})
}

func TestSQLRelationships_DeleteGroupReturnsFormerMembers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRelationshipRepository(db)
	ctx := context.Background()
	u := createUsers(t, db, "lea", "max")
	makeFriends(t, db, u[0].ID, u[1].ID)

	group, _, err := repo.CreateGroup(ctx, u[0].ID, "Book club", []string{u[1].ID})
	require.NoError(t, err)

	_, err = repo.DeleteGroup(ctx, u[1].ID, group.ID)
	assert.True(t, models.HasCode(err, models.CodeForbidden))

	former, err := repo.DeleteGroup(ctx, u[0].ID, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{u[0].ID, u[1].ID}, former)

	var members int64
	require.NoError(t, db.Model(&models.RoomMember{}).Where("room_id = ?", group.ID).Count(&members).Error)
	assert.Zero(t, members)
}

func TestSQLRelationships_DetachAndRestore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRelationshipRepository(db)
	ctx := context.Background()
	u := createUsers(t, db, "ned", "ola")
	ned, ola := u[0].ID, u[1].ID
	makeFriends(t, db, ned, ola)

	room, _, err := repo.GetOrCreatePrivateRoom(ctx, ned, ola)
	require.NoError(t, err)

	d, err := repo.DetachFriendship(ctx, ola, ned)
	require.NoError(t, err)
	assert.Equal(t, room.ID, d.RoomID)

	ok, err := repo.AreFriends(ctx, ned, ola)
	require.NoError(t, err)
	assert.False(t, ok)
	gone, err := repo.FindPrivateRoom(ctx, ned, ola)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = repo.DetachFriendship(ctx, ned, ola)
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	require.NoError(t, repo.RestoreFriendship(ctx, ned, ola, d))
	ok, err = repo.AreFriends(ctx, ola, ned)
	require.NoError(t, err)
	assert.True(t, ok)

	restored, err := repo.FindPrivateRoom(ctx, ned, ola)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, room.ID, restored.ID)
	member, err := repo.IsMember(ctx, ola, room.ID)
	require.NoError(t, err)
	assert.True(t, member)

	friends, err := repo.ListFriends(ctx, ned)
	require.NoError(t, err)
	assert.Equal(t, []models.FriendEntry{{UserID: ola, RoomID: room.ID}}, friends)

	roomID, err := repo.DeletePrivateRoom(ctx, ned, ola)
	require.NoError(t, err)
	assert.Equal(t, room.ID, roomID)
	ok, err = repo.AreFriends(ctx, ned, ola)
	require.NoError(t, err)
	assert.True(t, ok, "deleting the chat keeps the friendship")
}

func TestSQLRelationships_InterestsAndSuggestions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRelationshipRepository(db)
	ctx := context.Background()
	u := createUsers(t, db, "me", "pal", "fof", "fan", "pending")
	me, pal, fof, fan, pending := u[0].ID, u[1].ID, u[2].ID, u[3].ID, u[4].ID

	require.NoError(t, repo.UpsertQuestion(ctx, &models.Question{
		ID:   "goat",
		Text: "Who is the greatest?",
		Options: []models.Option{
			{ID: "goat-messi", Value: "Messi"},
			{ID: "goat-ronaldo", Value: "Ronaldo"},
		},
	}))
	questions, err := repo.ListQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Len(t, questions[0].Options, 2)

	require.NoError(t, repo.SubmitAnswer(ctx, me, "goat-ronaldo"))
	require.NoError(t, repo.SubmitAnswer(ctx, me, "goat-messi"))
	var answers int64
	require.NoError(t, db.Model(&models.UserAnswer{}).Where("user_id = ?", me).Count(&answers).Error)
	assert.EqualValues(t, 1, answers, "a new answer replaces the old one")

	assert.True(t, models.HasCode(repo.SubmitAnswer(ctx, me, "missing"), models.CodeNotFound))

	makeFriends(t, db, me, pal)
	makeFriends(t, db, pal, fof)
	require.NoError(t, repo.SubmitAnswer(ctx, fof, "goat-messi"))
	require.NoError(t, repo.SubmitAnswer(ctx, fan, "goat-messi"))
	require.NoError(t, repo.SubmitAnswer(ctx, pending, "goat-messi"))
	require.NoError(t, repo.SendRequest(ctx, pending, me))

	suggestions, err := repo.Suggestions(ctx, me, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.ScoredUser{
		{UserID: fof, Score: MutualWeight + InterestWeight},
		{UserID: fan, Score: InterestWeight},
	}, suggestions)

	stats, err := repo.Stats(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FriendsCount)
	assert.Equal(t, 0, stats.GroupsCount)
	assert.Equal(t, "Messi", stats.Preference)
}

func TestScoreSuggestions_OrdersByScoreThenID(t *testing.T) {
	got := scoreSuggestions(
		map[string]int{"b": 1, "c": 2},
		map[string]int{"a": 1},
		map[string]bool{"c": true},
		2,
	)
	assert.Equal(t, []models.ScoredUser{{UserID: "a", Score: 10}, {UserID: "b", Score: 3}}, got)
}
