package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatgraph/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func setupAuthApp(t *testing.T) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	InitMiddleware(&config.Config{JWTSecret: testSecret, JWTTTL: time.Hour}, client)

	app := fiber.New()
	app.Get("/test", AuthRequired, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": CurrentUserID(c)})
	})
	return app, mr
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestAuthRequired(t *testing.T) {
	app, _ := setupAuthApp(t)
	userID := uuid.NewString()

	valid, err := IssueToken(userID, "alice")
	require.NoError(t, err)

	tests := []struct {
		name           string
		authHeader     string
		cookie         string
		expectedStatus int
	}{
		{name: "Happy Path", authHeader: "Bearer " + valid, expectedStatus: http.StatusOK},
		{name: "Cookie", cookie: valid, expectedStatus: http.StatusOK},
		{name: "Missing Header", expectedStatus: http.StatusUnauthorized},
		{name: "Invalid Format", authHeader: "Basic dXNlcjpwYXNz", expectedStatus: http.StatusUnauthorized},
		{
			name: "Expired Token",
			authHeader: "Bearer " + signed(t, jwt.MapClaims{
				"sub": userID, "iss": TokenIssuer, "aud": TokenAudience,
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Wrong Audience",
			authHeader: "Bearer " + signed(t, jwt.MapClaims{
				"sub": userID, "iss": TokenIssuer, "aud": "someone-else",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Non UUID Subject",
			authHeader: "Bearer " + signed(t, jwt.MapClaims{
				"sub": "42", "iss": TokenIssuer, "aud": TokenAudience,
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tt.cookie})
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, userID, body["userID"])
			}
		})
	}
}

func TestAuthRequired_RevokedToken(t *testing.T) {
	app, _ := setupAuthApp(t)
	userID := uuid.NewString()
	tokenString, err := IssueToken(userID, "bob")
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.NoError(t, RevokeToken(context.Background(), claims["jti"].(string), time.Now().Add(time.Hour)))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequired_TicketIsSingleUse(t *testing.T) {
	app, _ := setupAuthApp(t)
	userID := uuid.NewString()

	ticket, err := IssueWSTicket(context.Background(), userID)
	require.NoError(t, err)

	first, err := app.Test(httptest.NewRequest(http.MethodGet, "/test?ticket="+ticket, nil))
	require.NoError(t, err)
	defer func() { _ = first.Body.Close() }()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := app.Test(httptest.NewRequest(http.MethodGet, "/test?ticket="+ticket, nil))
	require.NoError(t, err)
	defer func() { _ = second.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, second.StatusCode)
}

func TestAuthRequired_TicketExpires(t *testing.T) {
	app, mr := setupAuthApp(t)

	ticket, err := IssueWSTicket(context.Background(), uuid.NewString())
	require.NoError(t, err)
	mr.FastForward(WSTicketTTL + time.Second)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test?ticket="+ticket, nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
