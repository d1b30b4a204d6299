package server

import (
	"net/http"
	"testing"

	"chatgraph/internal/models"

	"github.com/gofiber/fiber/v2"
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

func TestGroupLifecycle(t *testing.T) {
	ts := newTestServer(t)
	amy := ts.signup(t, "amy")
	ben := ts.signup(t, "ben")
	cat := ts.signup(t, "cat")
	dan := ts.signup(t, "dan")
	ts.befriend(t, amy, ben)
	ts.befriend(t, amy, cat)

	var group models.ChatRoom
	require.Equal(t, fiber.StatusCreated, ts.do(t, http.MethodPost, "/api/groups", amy.Token, fiber.Map{
		"name":       "  Hikers ",
		"friend_ids": []string{ben.ID, dan.ID},
	}, &group))
	assert.Equal(t, "Hikers", group.Name)
	assert.True(t, group.IsGroup)
	base := "/api/groups/" + group.ID

	var members []models.UserSummary
	require.Equal(t, fiber.StatusOK, ts.do(t, http.MethodGet, base+"/members", amy.Token, nil, &members))
	assert.Equal(t, []string{ben.ID}, summaryIDs(members), "non-friends are dropped")

	var fetched models.ChatRoom
	require.Equal(t, fiber.StatusOK, ts.do(t, http.MethodGet, base, ben.Token, nil, &fetched))
	assert.Equal(t, group.ID, fetched.ID)
	assert.Equal(t, fiber.StatusForbidden, ts.do(t, http.MethodGet, base, dan.Token, nil, nil))
	assert.Equal(t, fiber.StatusForbidden, ts.do(t, http.MethodGet, base+"/admins/removable", ben.Token, nil, nil))

	// Only admins add, and only their own friends.
	assert.Equal(t, fiber.StatusForbidden, ts.do(t, http.MethodPost, base+"/members/"+cat.ID, ben.Token, nil, nil))
	assert.Equal(t, fiber.StatusForbidden, ts.do(t, http.MethodPost, base+"/members/"+dan.ID, amy.Token, nil, nil))
	require.Equal(t, fiber.StatusCreated, ts.do(t, http.MethodPost, base+"/members/"+cat.ID, amy.Token, nil, nil))
	assert.Equal(t, fiber.StatusConflict, ts.do(t, http.MethodPost, base+"/members/"+cat.ID, amy.Token, nil, nil))

	var admins, nonAdmins, removable []models.UserSummary
	ts.do(t, http.MethodGet, base+"/admins", ben.Token, nil, &admins)
	assert.Equal(t, []string{amy.ID}, summaryIDs(admins))
	ts.do(t, http.MethodGet, base+"/non-admins", amy.Token, nil, &nonAdmins)
	assert.ElementsMatch(t, []string{ben.ID, cat.ID}, summaryIDs(nonAdmins))

	// The sole admin can neither leave nor step down.
	assert.Equal(t, fiber.StatusConflict, ts.do(t, http.MethodPost, base+"/leave", amy.Token, nil, nil))
	assert.Equal(t, fiber.StatusConflict, ts.do(t, http.MethodDelete, base+"/admins/"+amy.ID, amy.Token, nil, nil))

	require.Equal(t, fiber.StatusNoContent, ts.do(t, http.MethodPost, base+"/admins/"+ben.ID, amy.Token, nil, nil))
	ts.do(t, http.MethodGet, base+"/admins/removable", amy.Token, nil, &removable)
	assert.Equal(t, []string{ben.ID}, summaryIDs(removable))

	require.Equal(t, fiber.StatusNoContent, ts.do(t, http.MethodDelete, base+"/members/"+cat.ID, ben.Token, nil, nil))
	assert.Equal(t, fiber.StatusForbidden, ts.do(t, http.MethodGet, base+"/members", cat.Token, nil, nil))

	require.Equal(t, fiber.StatusNoContent, ts.do(t, http.MethodPost, base+"/leave", amy.Token, nil, nil))

	var groups []models.ChatRoom
	ts.do(t, http.MethodGet, "/api/groups", ben.Token, nil, &groups)
	require.Len(t, groups, 1)

	require.Equal(t, fiber.StatusNoContent, ts.do(t, http.MethodDelete, base, ben.Token, nil, nil))
	ts.do(t, http.MethodGet, "/api/groups", ben.Token, nil, &groups)
	assert.Empty(t, groups)
}

func TestGroupMessagesAndPreview(t *testing.T) {
	ts := newTestServer(t)
	amy := ts.signup(t, "amy")
	ben := ts.signup(t, "ben")
	ts.befriend(t, amy, ben)

	var group models.ChatRoom
	require.Equal(t, fiber.StatusCreated, ts.do(t, http.MethodPost, "/api/groups", amy.Token, fiber.Map{
		"name": "Duo", "friend_ids": []string{ben.ID},
	}, &group))

	var msg models.Message
	require.Equal(t, fiber.StatusCreated, ts.do(t, http.MethodPost, "/api/rooms/"+group.ID+"/messages", ben.Token,
		fiber.Map{"content": "group hello"}, &msg))

	// Admins may delete any message in their group.
	var groups []models.ChatRoom
	ts.do(t, http.MethodGet, "/api/groups", amy.Token, nil, &groups)
	require.Len(t, groups, 1)
	require.NotNil(t, groups[0].LastMessage)
	assert.Equal(t, msg.ID, groups[0].LastMessage.ID)

	assert.Equal(t, fiber.StatusOK, ts.do(t, http.MethodDelete, "/api/messages/"+msg.ID, amy.Token, nil, nil))
}

func TestPrivateRoomEndpoints(t *testing.T) {
	ts := newTestServer(t)
	amy := ts.signup(t, "amy")
	ben := ts.signup(t, "ben")

	assert.Equal(t, fiber.StatusForbidden, ts.do(t, http.MethodPost, "/api/rooms/private/"+ben.ID, amy.Token, nil, nil))
	ts.befriend(t, amy, ben)

	var first, second models.ChatRoom
	require.Equal(t, fiber.StatusOK, ts.do(t, http.MethodPost, "/api/rooms/private/"+ben.ID, amy.Token, nil, &first))
	require.Equal(t, fiber.StatusOK, ts.do(t, http.MethodPost, "/api/rooms/private/"+amy.ID, ben.Token, nil, &second))
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, first.IsGroup)

	require.Equal(t, fiber.StatusNoContent, ts.do(t, http.MethodDelete, "/api/rooms/private/"+ben.ID, amy.Token, nil, nil))
	assert.Equal(t, fiber.StatusNotFound, ts.do(t, http.MethodGet, "/api/rooms/private/"+ben.ID, amy.Token, nil, nil))

	var status map[string]any
	ts.do(t, http.MethodGet, "/api/friends/"+ben.ID+"/status", amy.Token, nil, &status)
	assert.Equal(t, true, status["is_friend"], "deleting the chat keeps the friendship")
}
