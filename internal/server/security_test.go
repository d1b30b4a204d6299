package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestErrorResponsesDoNotLeakInternals(t *testing.T) {
	ts := newTestServer(t)
	amy := ts.signup(t, "amy")

	var body map[string]string
	status := ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"identifier": "amy", "password": "wrong-pass"}, &body)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", body["error"])

	status = ts.do(t, http.MethodGet, "/api/users/"+amy.ID, "Bearer-less-garbage", nil, &body)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}
