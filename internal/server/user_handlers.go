package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/users/me
// @Summary Current user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Router /users/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.userService.GetUser(c.UserContext(), caller(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

// GetUserProfile handles GET /api/users/:id
// @Summary Get user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	user, err := s.userService.GetUser(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

// GetMyStats handles GET /api/users/me/stats
// @Summary Current user stats
// @Description Friend and group counts with the caller's interest answer
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.UserStats
// @Router /users/me/stats [get]
func (s *Server) GetMyStats(c *fiber.Ctx) error {
	stats, err := s.userService.Stats(c.UserContext(), caller(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(stats)
}

// SearchUsers handles GET /api/users/search?q=...
// @Summary Search users
// @Description Prefix search on username and name, annotated with the caller's relation to each hit
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param q query string true "Search text"
// @Success 200 {array} models.SearchResult
// @Router /users/search [get]
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	results, err := s.userService.Search(ctx, caller(c), c.Query("q"))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
				"error": "Request timeout",
			})
		}
		return fail(c, err)
	}
	return c.JSON(results)
}

// GetSuggestions handles GET /api/users/suggestions
// @Summary Friend suggestions
// @Description Friends of friends ranked by mutual friends and shared interests
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max results"
// @Success 200 {array} models.Suggestion
// @Router /users/suggestions [get]
func (s *Server) GetSuggestions(c *fiber.Ctx) error {
	out, err := s.userService.Suggestions(c.UserContext(), caller(c), c.QueryInt("limit", 0))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(out)
}

// GetQuestions handles GET /api/questions
// @Summary Interest questions
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Question
// @Router /questions [get]
func (s *Server) GetQuestions(c *fiber.Ctx) error {
	qs, err := s.userService.Questions(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(qs)
}

// SubmitAnswer handles POST /api/questions/answer
// @Summary Answer an interest question
// @Tags users
// @Accept json
// @Security BearerAuth
// @Param request body object{option_id=string} true "Chosen option"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Router /questions/answer [post]
func (s *Server) SubmitAnswer(c *fiber.Ctx) error {
	var req struct {
		OptionID string `json:"option_id"`
	}
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	if err := s.userService.SubmitAnswer(c.UserContext(), caller(c), req.OptionID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
