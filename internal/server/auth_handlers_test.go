package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupAndLogin(t *testing.T) {
	ts := newTestServer(t)
	amy := ts.signup(t, "amy")
	assert.NotEmpty(t, amy.Token)

	tests := []struct {
		name           string
		body           fiber.Map
		expectedStatus int
	}{
		{"by username", fiber.Map{"identifier": "amy", "password": "secret123"}, fiber.StatusOK},
		{"by email", fiber.Map{"identifier": "AMY@example.com", "password": "secret123"}, fiber.StatusOK},
		{"legacy email field", fiber.Map{"email": "amy@example.com", "password": "secret123"}, fiber.StatusOK},
		{"wrong password", fiber.Map{"identifier": "amy", "password": "wrong-pass"}, fiber.StatusUnauthorized},
		{"unknown user", fiber.Map{"identifier": "ghost", "password": "secret123"}, fiber.StatusUnauthorized},
		{"missing fields", fiber.Map{"identifier": "amy"}, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res authResponse
			status := ts.do(t, http.MethodPost, "/api/auth/login", "", tt.body, &res)
			assert.Equal(t, tt.expectedStatus, status)
			if status == fiber.StatusOK {
				assert.NotEmpty(t, res.Token)
				assert.Equal(t, amy.ID, res.User.ID)
			}
		})
	}
}

func TestSignup_Rejections(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "amy")

	var body map[string]string
	status := ts.do(t, http.MethodPost, "/api/auth/signup", "", fiber.Map{
		"username": "amy2", "email": "amy@example.com", "password": "secret123",
	}, &body)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["code"])

	status = ts.do(t, http.MethodPost, "/api/auth/signup", "", fiber.Map{
		"username": "x", "email": "x@example.com", "password": "secret123",
	}, &body)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := newTestServer(t)
	amy := ts.signup(t, "amy")

	require.Equal(t, fiber.StatusOK, ts.do(t, http.MethodGet, "/api/users/me", amy.Token, nil, nil))
	require.Equal(t, fiber.StatusNoContent, ts.do(t, http.MethodPost, "/api/auth/logout", amy.Token, nil, nil))
	assert.Equal(t, fiber.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/users/me", amy.Token, nil, nil))
}

func TestChangePassword(t *testing.T) {
	ts := newTestServer(t)
	amy := ts.signup(t, "amy")

	assert.Equal(t, fiber.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/auth/change-password", amy.Token,
		fiber.Map{"old_password": "nope-nope", "new_password": "newsecret1"}, nil))
	require.Equal(t, fiber.StatusNoContent, ts.do(t, http.MethodPost, "/api/auth/change-password", amy.Token,
		fiber.Map{"old_password": "secret123", "new_password": "newsecret1"}, nil))

	assert.Equal(t, fiber.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/auth/login", "",
		fiber.Map{"identifier": "amy", "password": "secret123"}, nil))
	assert.Equal(t, fiber.StatusOK, ts.do(t, http.MethodPost, "/api/auth/login", "",
		fiber.Map{"identifier": "amy", "password": "newsecret1"}, nil))
}

func TestPasswordReset(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "amy")

	// Unknown emails get the same answer.
	assert.Equal(t, fiber.StatusAccepted, ts.do(t, http.MethodPost, "/api/auth/forgot-password", "",
		fiber.Map{"email": "ghost@example.com"}, nil))
	assert.Empty(t, resetTokens(ts))

	require.Equal(t, fiber.StatusAccepted, ts.do(t, http.MethodPost, "/api/auth/forgot-password", "",
		fiber.Map{"email": "amy@example.com"}, nil))

	tokens := resetTokens(ts)
	require.Len(t, tokens, 1)
	token := tokens[0]

	assert.Equal(t, fiber.StatusBadRequest, ts.do(t, http.MethodPost, "/api/auth/reset-password", "",
		fiber.Map{"token": "bogus", "password": "brandnew1"}, nil))
	require.Equal(t, fiber.StatusNoContent, ts.do(t, http.MethodPost, "/api/auth/reset-password", "",
		fiber.Map{"token": token, "password": "brandnew1"}, nil))
	assert.Equal(t, fiber.StatusBadRequest, ts.do(t, http.MethodPost, "/api/auth/reset-password", "",
		fiber.Map{"token": token, "password": "brandnew2"}, nil))

	assert.Equal(t, fiber.StatusOK, ts.do(t, http.MethodPost, "/api/auth/login", "",
		fiber.Map{"identifier": "amy", "password": "brandnew1"}, nil))
}

func resetTokens(ts *testServer) []string {
	var out []string
	for _, k := range ts.mr.Keys() {
		if rest, ok := strings.CutPrefix(k, "auth:reset:"); ok {
			out = append(out, rest)
		}
	}
	return out
}

func TestIssueWSTicket(t *testing.T) {
	ts := newTestServer(t)
	amy := ts.signup(t, "amy")

	var res map[string]string
	require.Equal(t, fiber.StatusOK, ts.do(t, http.MethodPost, "/api/auth/ws-ticket", amy.Token, nil, &res))
	assert.NotEmpty(t, res["ticket"])

	assert.Equal(t, fiber.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/auth/ws-ticket", "", nil, nil))
}
