// Package middleware provides authentication, logging, tracing and rate limiting middleware.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatgraph/internal/config"
	"chatgraph/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// TokenIssuer is the iss claim of every issued token.
	TokenIssuer = "chatgraph-api"
	// TokenAudience is the aud claim of every issued token.
	TokenAudience = "chatgraph-client"
	// AccessTokenCookie is the cookie a browser client may carry the token in.
	AccessTokenCookie = "access_token"
	// WSTicketTTL bounds how long a websocket ticket can wait to be redeemed.
	WSTicketTTL = 30 * time.Second
)

var (
	cfg *config.Config
	rdb *redis.Client
)

// InitMiddleware initializes authentication middleware with the given config
// and Redis client. Redis may be nil, which disables revocation and tickets.
func InitMiddleware(c *config.Config, r *redis.Client) {
	cfg = c
	rdb = r
	if c != nil {
		rateLimitEnabled = c.RateLimitEnabled
	}
}

func revokedKey(jti string) string { return "jwt:revoked:" + jti }
func ticketKey(t string) string    { return "ws:ticket:" + t }

// IssueToken signs an HS256 token for the user.
func IssueToken(userID, username string) (string, error) {
	if cfg == nil || cfg.JWTSecret == "" {
		return "", errors.New("JWT secret not configured")
	}
	ttl := cfg.JWTTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"iss":      TokenIssuer,
		"aud":      TokenAudience,
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"jti":      fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()[:8]),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// RevokeToken blacklists a token id until its expiry.
func RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if rdb == nil || jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return rdb.Set(ctx, revokedKey(jti), "1", ttl).Err()
}

// IssueWSTicket stores a single-use ticket that authenticates one websocket upgrade.
func IssueWSTicket(ctx context.Context, userID string) (string, error) {
	if rdb == nil {
		return "", errors.New("redis unavailable")
	}
	ticket := uuid.NewString()
	if err := rdb.Set(ctx, ticketKey(ticket), userID, WSTicketTTL).Err(); err != nil {
		return "", err
	}
	return ticket, nil
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
}

func bearerToken(c *fiber.Ctx) (string, error) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.New("Invalid authorization header format")
		}
		return parts[1], nil
	}
	if cookie := c.Cookies(AccessTokenCookie); cookie != "" {
		return cookie, nil
	}
	return "", errors.New("Authorization header required")
}

// AuthRequired is a middleware that enforces authentication for protected routes.
// Websocket upgrades may present a single-use ticket instead of a token.
func AuthRequired(c *fiber.Ctx) error {
	if ticket := c.Query("ticket"); ticket != "" {
		return redeemTicket(c, ticket)
	}

	tokenString, err := bearerToken(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return unauthorized(c, "Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return unauthorized(c, "Invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return unauthorized(c, "Invalid token structure - missing subject")
	}
	if _, err := uuid.Parse(sub); err != nil {
		return unauthorized(c, "Invalid user ID in token")
	}

	jti, _ := claims["jti"].(string)
	if jti != "" && rdb != nil {
		revoked, err := rdb.Exists(c.UserContext(), revokedKey(jti)).Result()
		if err == nil && revoked > 0 {
			return unauthorized(c, "Token has been revoked")
		}
	}

	username, _ := claims["username"].(string)
	exp, _ := claims.GetExpirationTime()

	c.Locals("userID", sub)
	c.Locals("username", username)
	c.Locals("jti", jti)
	if exp != nil {
		c.Locals("tokenExp", exp.Time)
	}
	c.SetUserContext(WithUserID(c.UserContext(), sub))

	return c.Next()
}

func redeemTicket(c *fiber.Ctx, ticket string) error {
	if rdb == nil {
		return unauthorized(c, "Ticket authentication unavailable")
	}
	userID, err := rdb.GetDel(c.UserContext(), ticketKey(ticket)).Result()
	if err != nil || userID == "" {
		return unauthorized(c, "Invalid or expired ticket")
	}

	c.Locals("userID", userID)
	c.SetUserContext(WithUserID(c.UserContext(), userID))
	return c.Next()
}

// CurrentUserID returns the authenticated caller set by AuthRequired.
func CurrentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}
