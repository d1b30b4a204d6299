package server

import (
	"time"

	"chatgraph/internal/middleware"
	"chatgraph/internal/models"
	"chatgraph/internal/service"

	"github.com/gofiber/fiber/v2"
)

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new user account and mirror it into the relationship store
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,name=string,password=string} true "Signup request"
// @Success 201 {object} authResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	user, token, err := s.authService.Signup(c.UserContext(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(authResponse{Token: token, User: user})
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate by email or username and return a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{identifier=string,password=string} true "Login credentials"
// @Success 200 {object} authResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Identifier string `json:"identifier"`
		Email      string `json:"email"`
		Password   string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" || req.Password == "" {
		return fail(c, models.NewValidationError("Identifier and password are required"))
	}

	user, token, err := s.authService.Login(c.UserContext(), identifier, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(authResponse{Token: token, User: user})
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the presented token until it expires
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	jti, _ := c.Locals("jti").(string)
	exp, _ := c.Locals("tokenExp").(time.Time)
	if jti != "" {
		if err := middleware.RevokeToken(c.UserContext(), jti, exp); err != nil {
			return fail(c, models.NewInternalError(err))
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// IssueWSTicket handles POST /api/auth/ws-ticket
// @Summary Issue websocket ticket
// @Description Returns a short-lived single-use ticket for the websocket upgrade
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string}
// @Router /auth/ws-ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	ticket, err := middleware.IssueWSTicket(c.UserContext(), caller(c))
	if err != nil {
		return fail(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"ticket": ticket})
}

// ChangePassword handles POST /api/auth/change-password
// @Summary Change password
// @Tags auth
// @Accept json
// @Security BearerAuth
// @Param request body object{old_password=string,new_password=string} true "Passwords"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/change-password [post]
func (s *Server) ChangePassword(c *fiber.Ctx) error {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	if err := s.authService.ChangePassword(c.UserContext(), caller(c), req.OldPassword, req.NewPassword); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ForgotPassword handles POST /api/auth/forgot-password
// @Summary Request password reset
// @Description Always answers 202 so callers cannot probe which emails exist
// @Tags auth
// @Accept json
// @Param request body object{email=string} true "Account email"
// @Success 202
// @Router /auth/forgot-password [post]
func (s *Server) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	if err := s.authService.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// ResetPassword handles POST /api/auth/reset-password
// @Summary Reset password
// @Tags auth
// @Accept json
// @Param request body object{token=string,password=string} true "Reset token and new password"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/reset-password [post]
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	if req.Token == "" {
		return fail(c, models.NewValidationError("token is required"))
	}
	if err := s.authService.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
