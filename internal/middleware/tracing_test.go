package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatgraph/internal/models"
	"chatgraph/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracedApp(t *testing.T) (*fiber.App, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := observability.Tracer
	observability.Tracer = tp.Tracer("test")
	t.Cleanup(func() {
		observability.Tracer = prev
		_ = tp.Shutdown(context.Background())
	})

	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/api/rooms/:id/messages", func(c *fiber.Ctx) error {
		c.Locals("userID", "user-1")
		switch c.Query("fail") {
		case "internal":
			return models.NewInternalError(assert.AnError)
		case "forbidden":
			return models.NewForbiddenError("no")
		}
		return c.SendStatus(fiber.StatusOK)
	})
	return app, recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTracingMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantError  bool
	}{
		{"ok", "", fiber.StatusOK, false},
		{"client error stays unset", "?fail=forbidden", fiber.StatusForbidden, false},
		{"server error marks span", "?fail=internal", fiber.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, recorder := setupTracedApp(t)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/rooms/room-42/messages"+tt.query, nil), -1)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			span := spans[0]

			assert.Equal(t, "GET /api/rooms/:id/messages", span.Name())
			attrs := spanAttrs(span)
			assert.Equal(t, "/api/rooms/:id/messages", attrs["http.route"].AsString())
			assert.Equal(t, "room-42", attrs["chat.id"].AsString())
			assert.Equal(t, "user-1", attrs["user.id"].AsString())
			assert.Equal(t, int64(tt.wantStatus), attrs["http.status_code"].AsInt64())

			if tt.wantError {
				assert.Equal(t, codes.Error, span.Status().Code)
			} else {
				assert.Equal(t, codes.Unset, span.Status().Code)
			}
		})
	}
}
