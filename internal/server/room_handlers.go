package server

import (
	"context"

	"chatgraph/internal/models"
	"chatgraph/internal/service"

	"github.com/gofiber/fiber/v2"
)

// OpenPrivateRoom handles POST /api/rooms/private/:friendId
// @Summary Get or create the private room with a friend
// @Description Concurrent callers receive the same room
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Param friendId path string true "Friend user ID"
// @Success 200 {object} models.ChatRoom
// @Failure 403 {object} models.ErrorResponse
// @Router /rooms/private/{friendId} [post]
func (s *Server) OpenPrivateRoom(c *fiber.Ctx) error {
	friend, err := paramID(c, "friendId")
	if err != nil {
		return fail(c, err)
	}
	room, err := s.roomService.GetOrCreatePrivateRoom(c.UserContext(), caller(c), friend)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(room)
}

// GetPrivateRoom handles GET /api/rooms/private/:friendId
// @Summary Look up the private room with a friend without creating it
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Param friendId path string true "Friend user ID"
// @Success 200 {object} models.ChatRoom
// @Failure 404 {object} models.ErrorResponse
// @Router /rooms/private/{friendId} [get]
func (s *Server) GetPrivateRoom(c *fiber.Ctx) error {
	friend, err := paramID(c, "friendId")
	if err != nil {
		return fail(c, err)
	}
	room, err := s.roomService.RoomForFriend(c.UserContext(), caller(c), friend)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(room)
}

// DeletePrivateRoom handles DELETE /api/rooms/private/:friendId
// @Summary Delete the private room, keeping the friendship and messages
// @Tags rooms
// @Security BearerAuth
// @Param friendId path string true "Friend user ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /rooms/private/{friendId} [delete]
func (s *Server) DeletePrivateRoom(c *fiber.Ctx) error {
	friend, err := paramID(c, "friendId")
	if err != nil {
		return fail(c, err)
	}
	if err := s.roomService.DeletePrivateChat(c.UserContext(), caller(c), friend); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetGroups handles GET /api/groups
// @Summary List the caller's groups
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ChatRoom
// @Router /groups [get]
func (s *Server) GetGroups(c *fiber.Ctx) error {
	groups, err := s.roomService.ListGroups(c.UserContext(), caller(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(groups)
}

// CreateGroup handles POST /api/groups
// @Summary Create a group
// @Description Candidates that are not the caller's friends are skipped
// @Tags groups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{name=string,friend_ids=[]string} true "Group"
// @Success 201 {object} models.ChatRoom
// @Failure 400 {object} models.ErrorResponse
// @Router /groups [post]
func (s *Server) CreateGroup(c *fiber.Ctx) error {
	var req struct {
		Name      string   `json:"name"`
		FriendIDs []string `json:"friend_ids"`
	}
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	room, err := s.roomService.CreateGroup(c.UserContext(), service.CreateGroupInput{
		CreatorID: caller(c),
		Name:      req.Name,
		FriendIDs: req.FriendIDs,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// DeleteGroup handles DELETE /api/groups/:id
// @Summary Delete a group
// @Tags groups
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Router /groups/{id} [delete]
func (s *Server) DeleteGroup(c *fiber.Ctx) error {
	group, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := s.roomService.DeleteGroup(c.UserContext(), caller(c), group); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LeaveGroup handles POST /api/groups/:id/leave
// @Summary Leave a group
// @Description The last member leaving dissolves the group. A sole admin cannot leave while others remain.
// @Tags groups
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 204
// @Failure 409 {object} models.ErrorResponse
// @Router /groups/{id}/leave [post]
func (s *Server) LeaveGroup(c *fiber.Ctx) error {
	group, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := s.roomService.LeaveGroup(c.UserContext(), caller(c), group); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// groupMemberAction runs fn with the group and target ids from the path.
func (s *Server) groupMemberAction(c *fiber.Ctx, status int, fn func(actor, group, target string) error) error {
	group, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	target, err := paramID(c, "userId")
	if err != nil {
		return fail(c, err)
	}
	if err := fn(caller(c), group, target); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(status)
}

// AddGroupMember handles POST /api/groups/:id/members/:userId
// @Summary Add a member
// @Description The caller must be an admin and a friend of the new member
// @Tags groups
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Param userId path string true "User ID"
// @Success 201
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /groups/{id}/members/{userId} [post]
func (s *Server) AddGroupMember(c *fiber.Ctx) error {
	return s.groupMemberAction(c, fiber.StatusCreated, func(actor, group, target string) error {
		return s.roomService.AddMember(c.UserContext(), actor, group, target)
	})
}

// RemoveGroupMember handles DELETE /api/groups/:id/members/:userId
// @Summary Remove a member
// @Tags groups
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Param userId path string true "User ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Router /groups/{id}/members/{userId} [delete]
func (s *Server) RemoveGroupMember(c *fiber.Ctx) error {
	return s.groupMemberAction(c, fiber.StatusNoContent, func(actor, group, target string) error {
		return s.roomService.RemoveMember(c.UserContext(), actor, group, target)
	})
}

// PromoteGroupAdmin handles POST /api/groups/:id/admins/:userId
// @Summary Promote a member to admin
// @Tags groups
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Param userId path string true "User ID"
// @Success 204
// @Router /groups/{id}/admins/{userId} [post]
func (s *Server) PromoteGroupAdmin(c *fiber.Ctx) error {
	return s.groupMemberAction(c, fiber.StatusNoContent, func(actor, group, target string) error {
		return s.roomService.PromoteAdmin(c.UserContext(), actor, group, target)
	})
}

// DemoteGroupAdmin handles DELETE /api/groups/:id/admins/:userId
// @Summary Revoke admin
// @Tags groups
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Param userId path string true "User ID"
// @Success 204
// @Failure 409 {object} models.ErrorResponse
// @Router /groups/{id}/admins/{userId} [delete]
func (s *Server) DemoteGroupAdmin(c *fiber.Ctx) error {
	return s.groupMemberAction(c, fiber.StatusNoContent, func(actor, group, target string) error {
		return s.roomService.DemoteAdmin(c.UserContext(), actor, group, target)
	})
}

// GetGroup handles GET /api/groups/:id
// @Summary Group details
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 200 {object} models.ChatRoom
// @Failure 403 {object} models.ErrorResponse
// @Router /groups/{id} [get]
func (s *Server) GetGroup(c *fiber.Ctx) error {
	group, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	room, err := s.roomService.GetGroup(c.UserContext(), caller(c), group)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(room)
}

// GetGroupMembers handles GET /api/groups/:id/members
// @Summary Other members of a group
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 200 {array} models.UserSummary
// @Router /groups/{id}/members [get]
func (s *Server) GetGroupMembers(c *fiber.Ctx) error {
	return s.groupListing(c, s.roomService.ListMembers)
}

// GetGroupAdmins handles GET /api/groups/:id/admins
// @Summary Admins of a group
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 200 {array} models.UserSummary
// @Router /groups/{id}/admins [get]
func (s *Server) GetGroupAdmins(c *fiber.Ctx) error {
	return s.groupListing(c, s.roomService.ListAdmins)
}

// GetRemovableAdmins handles GET /api/groups/:id/admins/removable
// @Summary Admins the caller could demote
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 200 {array} models.UserSummary
// @Router /groups/{id}/admins/removable [get]
func (s *Server) GetRemovableAdmins(c *fiber.Ctx) error {
	return s.groupListing(c, s.roomService.ListAdminsToRemove)
}

// GetGroupNonAdmins handles GET /api/groups/:id/non-admins
// @Summary Members that could be promoted
// @Tags groups
// @Produce json
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 200 {array} models.UserSummary
// @Router /groups/{id}/non-admins [get]
func (s *Server) GetGroupNonAdmins(c *fiber.Ctx) error {
	return s.groupListing(c, s.roomService.ListNonAdmins)
}

type listFunc func(ctx context.Context, userID, groupID string) ([]models.UserSummary, error)

func (s *Server) groupListing(c *fiber.Ctx, list listFunc) error {
	group, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	users, err := list(c.UserContext(), caller(c), group)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}
