package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"chatgraph/internal/models"
	"chatgraph/internal/repository"
	"chatgraph/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// TokenIssuer signs an access token for a user.
type TokenIssuer func(userID, username string) (string, error)

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// LogMailer writes reset links to the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

// SendPasswordReset logs the link at info level.
func (m LogMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset requested", slog.String("to", to), slog.String("link", link))
	return nil
}

// AuthService handles signup, login and password management.
type AuthService struct {
	users       repository.UserRepository
	rel         repository.RelationshipRepository
	resets      repository.ResetTokenStore
	mailer      Mailer
	issueToken  TokenIssuer
	frontendURL string
	resetTTL    time.Duration
}

// AuthConfig carries the settings AuthService needs.
type AuthConfig struct {
	FrontendURL   string
	ResetTokenTTL time.Duration
}

// NewAuthService returns a new AuthService.
func NewAuthService(
	users repository.UserRepository,
	rel repository.RelationshipRepository,
	resets repository.ResetTokenStore,
	mailer Mailer,
	issueToken TokenIssuer,
	cfg AuthConfig,
) *AuthService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 10 * time.Minute
	}
	return &AuthService{
		users:       users,
		rel:         rel,
		resets:      resets,
		mailer:      mailer,
		issueToken:  issueToken,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		resetTTL:    cfg.ResetTokenTTL,
	}
}

// SignupInput is the input for creating an account.
type SignupInput struct {
	Username string
	Email    string
	Name     string
	Password string
}

// Signup creates an account, mirrors it into the relationship store and
// returns it with an access token.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.User, string, error) {
	username := validation.NormalizeUsername(in.Username)
	email := validation.NormalizeEmail(in.Email)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, "", err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, "", err
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, "", err
	}
	name, err := validation.DisplayName(in.Name)
	if err != nil {
		return nil, "", err
	}

	if existing, err := s.users.GetByEmail(ctx, email); err != nil {
		return nil, "", err
	} else if existing != nil {
		return nil, "", models.NewConflictError("Email is already registered")
	}
	if existing, err := s.users.GetByUsername(ctx, username); err != nil {
		return nil, "", err
	} else if existing != nil {
		return nil, "", models.NewConflictError("Username is already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}
	user := &models.User{Username: username, Email: email, Name: name, Password: string(hash)}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}
	if err := s.rel.EnsureUser(ctx, user.ID); err != nil {
		return nil, "", err
	}

	token, err := s.issueToken(user.ID, user.Username)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}
	user.Password = ""
	return user, token, nil
}

// Login authenticates by email or username.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*models.User, string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, "", models.NewValidationError("identifier and password are required")
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", models.NewUnauthorizedError("Invalid credentials")
	}

	// Heals accounts whose graph mirror failed at signup.
	if err := s.rel.EnsureUser(ctx, user.ID); err != nil {
		slog.WarnContext(ctx, "failed to mirror user into relationship store", slog.String("error", err.Error()))
	}

	token, err := s.issueToken(user.ID, user.Username)
	if err != nil {
		return nil, "", models.NewInternalError(err)
	}
	user.Password = ""
	return user, token, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.GetCredentials(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return models.NewUnauthorizedError("Current password is incorrect")
	}
	return s.setPassword(ctx, userID, newPassword)
}

// ForgotPassword emails a reset link when the address belongs to a user.
// It reports success either way so addresses cannot be probed.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	token, err := newResetToken()
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.resets.Save(ctx, &models.ResetToken{Token: token, UserID: user.ID, CreatedAt: time.Now().UTC()}, s.resetTTL); err != nil {
		return err
	}

	link := s.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		slog.ErrorContext(ctx, "failed to send password reset", slog.String("error", err.Error()))
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return err
	}
	rt, err := s.resets.Consume(ctx, token)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, rt.UserID, newPassword)
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	return s.users.UpdatePassword(ctx, userID, string(hash))
}

func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
