package service

import (
	"context"
	"testing"

	"chatgraph/internal/featureflags"
	"chatgraph/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_Search(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createUsers(t, "amy", "amelia", "ben", "ambrose")
	amy, amelia, ben, ambrose := ids[0], ids[1], ids[2], ids[3]
	f.befriend(t, amy, amelia)
	require.NoError(t, f.rel.SendRequest(ctx, ambrose, amy))

	svc := NewUserService(f.users, f.rel, nil)
	results, err := svc.Search(ctx, amy, "  AM ")
	require.NoError(t, err)

	got := map[string]models.RequestStatus{}
	for _, r := range results {
		got[r.ID] = r.RequestStatus
	}
	assert.Equal(t, map[string]models.RequestStatus{
		amelia:  models.RequestStatusFriend,
		ambrose: models.RequestStatusReceived,
	}, got, "caller excluded and ben does not match")
	assert.NotContains(t, got, ben)
}

func TestUserService_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createUsers(t, "amy", "ben")
	f.befriend(t, ids[0], ids[1])
	_, err := f.rooms.CreateGroup(ctx, CreateGroupInput{CreatorID: ids[0], Name: "g", FriendIDs: []string{ids[1]}})
	require.NoError(t, err)

	require.NoError(t, f.rel.UpsertQuestion(ctx, &models.Question{
		ID:   "music",
		Text: "Favourite music?",
		Options: []models.Option{
			{ID: "music-jazz", Value: "Jazz"},
			{ID: "music-rock", Value: "Rock"},
		},
	}))

	svc := NewUserService(f.users, f.rel, nil)
	questions, err := svc.Questions(ctx)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Len(t, questions[0].Options, 2)

	assert.True(t, models.HasCode(svc.SubmitAnswer(ctx, ids[0], " "), models.CodeValidation))
	assert.True(t, models.HasCode(svc.SubmitAnswer(ctx, ids[0], "nope"), models.CodeNotFound))
	require.NoError(t, svc.SubmitAnswer(ctx, ids[0], "music-jazz"))

	stats, err := svc.Stats(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], stats.User.ID)
	assert.Equal(t, 1, stats.FriendsCount)
	assert.Equal(t, 1, stats.GroupsCount)
	assert.Equal(t, "Jazz", stats.Preference)
}

func TestUserService_Suggestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createUsers(t, "amy", "ben", "cat", "dan")
	amy, ben, cat, dan := ids[0], ids[1], ids[2], ids[3]
	f.befriend(t, amy, ben)
	f.befriend(t, ben, cat)
	f.befriend(t, ben, dan)
	f.befriend(t, cat, dan)

	t.Run("flag off returns nothing", func(t *testing.T) {
		svc := NewUserService(f.users, f.rel, featureflags.NewManager("friend_suggestions=off"))
		out, err := svc.Suggestions(ctx, amy, 0)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	svc := NewUserService(f.users, f.rel, featureflags.NewManager("friend_suggestions=on"))
	out, err := svc.Suggestions(ctx, amy, 0)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	ids = make([]string, len(out))
	for i, s := range out {
		ids[i] = s.User.ID
		assert.Positive(t, s.Score)
	}
	assert.ElementsMatch(t, []string{cat, dan}, ids, "friends of friends, never existing friends")
	assert.NotContains(t, ids, ben)
}
