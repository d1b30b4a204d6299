package server

import (
	"chatgraph/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SendFriendRequest handles POST /api/friends/requests/:id
// @Summary Send friend request
// @Tags friends
// @Security BearerAuth
// @Param id path string true "Target user ID"
// @Success 201
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /friends/requests/{id} [post]
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	target, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := s.friendService.SendRequest(c.UserContext(), caller(c), target); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// CancelFriendRequest handles DELETE /api/friends/requests/:id
// @Summary Cancel a sent friend request
// @Tags friends
// @Security BearerAuth
// @Param id path string true "Receiver user ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /friends/requests/{id} [delete]
func (s *Server) CancelFriendRequest(c *fiber.Ctx) error {
	target, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := s.friendService.CancelRequest(c.UserContext(), caller(c), target); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AcceptFriendRequest handles POST /api/friends/requests/:id/accept
// @Summary Accept friend request
// @Tags friends
// @Security BearerAuth
// @Param id path string true "Sender user ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /friends/requests/{id}/accept [post]
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	sender, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := s.friendService.AcceptRequest(c.UserContext(), caller(c), sender); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RejectFriendRequest handles POST /api/friends/requests/:id/reject
// @Summary Reject friend request
// @Tags friends
// @Security BearerAuth
// @Param id path string true "Sender user ID"
// @Success 204
// @Router /friends/requests/{id}/reject [post]
func (s *Server) RejectFriendRequest(c *fiber.Ctx) error {
	sender, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := s.friendService.RejectRequest(c.UserContext(), caller(c), sender); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetFriends handles GET /api/friends
// @Summary List friends
// @Description Friends with their private room and its latest message
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Friend
// @Router /friends [get]
func (s *Server) GetFriends(c *fiber.Ctx) error {
	friends, err := s.friendService.ListFriends(c.UserContext(), caller(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(friends)
}

// GetSentRequests handles GET /api/friends/requests/sent
// @Summary Pending requests sent by the caller
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.UserSummary
// @Router /friends/requests/sent [get]
func (s *Server) GetSentRequests(c *fiber.Ctx) error {
	users, err := s.friendService.ListSentRequests(c.UserContext(), caller(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}

// GetReceivedRequests handles GET /api/friends/requests/received
// @Summary Pending requests addressed to the caller
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.UserSummary
// @Router /friends/requests/received [get]
func (s *Server) GetReceivedRequests(c *fiber.Ctx) error {
	users, err := s.friendService.ListReceivedRequests(c.UserContext(), caller(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}

// GetFriendshipStatus handles GET /api/friends/:id/status
// @Summary Relation to another user
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Param id path string true "Other user ID"
// @Success 200 {object} object{status=string,is_friend=bool}
// @Router /friends/{id}/status [get]
func (s *Server) GetFriendshipStatus(c *fiber.Ctx) error {
	other, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	status, err := s.friendService.Status(c.UserContext(), caller(c), other)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"status":    status,
		"is_friend": status == models.RequestStatusFriend,
	})
}

// ForgetFriend handles DELETE /api/friends/:id
// @Summary Unfriend and erase private history
// @Description Ends the friendship, removes the private room and deletes its messages. The optional room_id must match the private room.
// @Tags friends
// @Security BearerAuth
// @Param id path string true "Friend user ID"
// @Param room_id query string false "Expected private room ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /friends/{id} [delete]
func (s *Server) ForgetFriend(c *fiber.Ctx) error {
	friend, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := s.messageService.ForgetFriendAndHistory(c.UserContext(), caller(c), friend, c.Query("room_id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
