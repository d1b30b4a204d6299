package server

import (
	"chatgraph/internal/models"
	"chatgraph/internal/service"

	"github.com/gofiber/fiber/v2"
)

const defaultMessagePage = 20

type sendMessageRequest struct {
	Content string `json:"content"`
}

// messageID reads the :id path parameter of message routes. Message ids are
// 24 character hex strings rather than UUIDs.
func messageID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if len(id) != 24 {
		return "", models.NewValidationError("Invalid message ID")
	}
	return id, nil
}

// SendRoomMessage handles POST /api/rooms/:id/messages
// @Summary Send a message to a room
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param request body sendMessageRequest true "Message"
// @Success 201 {object} models.Message
// @Failure 403 {object} models.ErrorResponse
// @Router /rooms/{id}/messages [post]
func (s *Server) SendRoomMessage(c *fiber.Ctx) error {
	room, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	return s.send(c, service.SendMessageInput{RoomID: room})
}

// SendFriendMessage handles POST /api/friends/:id/messages
// @Summary Send a private message to a friend
// @Description Creates the private room on first use
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Friend user ID"
// @Param request body sendMessageRequest true "Message"
// @Success 201 {object} models.Message
// @Failure 403 {object} models.ErrorResponse
// @Router /friends/{id}/messages [post]
func (s *Server) SendFriendMessage(c *fiber.Ctx) error {
	friend, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	return s.send(c, service.SendMessageInput{FriendID: friend})
}

func (s *Server) send(c *fiber.Ctx, in service.SendMessageInput) error {
	var req sendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	in.SenderID = caller(c)
	in.Content = req.Content

	msg, err := s.messageService.Send(c.UserContext(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetRoomMessages handles GET /api/rooms/:id/messages
// @Summary Room history, newest first
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param limit query int false "Page size"
// @Param skip query int false "Messages to skip"
// @Success 200 {array} models.Message
// @Router /rooms/{id}/messages [get]
func (s *Server) GetRoomMessages(c *fiber.Ctx) error {
	room, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	return s.list(c, service.ListMessagesInput{RoomID: room})
}

// GetFriendMessages handles GET /api/friends/:id/messages
// @Summary Private history with a friend, newest first
// @Description Never creates a room; without one the page is empty
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Friend user ID"
// @Param limit query int false "Page size"
// @Param skip query int false "Messages to skip"
// @Success 200 {array} models.Message
// @Router /friends/{id}/messages [get]
func (s *Server) GetFriendMessages(c *fiber.Ctx) error {
	friend, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	return s.list(c, service.ListMessagesInput{FriendID: friend})
}

func (s *Server) list(c *fiber.Ctx, in service.ListMessagesInput) error {
	page := parsePagination(c, defaultMessagePage)
	in.CallerID = caller(c)
	in.Limit = page.Limit
	in.Skip = page.Skip

	msgs, err := s.messageService.List(c.UserContext(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msgs)
}

// MarkMessageDelivered handles POST /api/messages/:id/delivered
// @Summary Mark delivered
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} models.Message
// @Router /messages/{id}/delivered [post]
func (s *Server) MarkMessageDelivered(c *fiber.Ctx) error {
	id, err := messageID(c)
	if err != nil {
		return fail(c, err)
	}
	msg, err := s.messageService.MarkDelivered(c.UserContext(), caller(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msg)
}

// MarkMessageRead handles POST /api/messages/:id/read
// @Summary Mark read
// @Description Adds a read receipt for the caller. Repeating the call changes nothing.
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} models.Message
// @Router /messages/{id}/read [post]
func (s *Server) MarkMessageRead(c *fiber.Ctx) error {
	id, err := messageID(c)
	if err != nil {
		return fail(c, err)
	}
	msg, err := s.messageService.MarkRead(c.UserContext(), caller(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage handles DELETE /api/messages/:id
// @Summary Delete a message
// @Description Allowed for the sender or an admin of the group
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} models.Message
// @Failure 403 {object} models.ErrorResponse
// @Router /messages/{id} [delete]
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	id, err := messageID(c)
	if err != nil {
		return fail(c, err)
	}
	msg, err := s.messageService.Delete(c.UserContext(), caller(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msg)
}
