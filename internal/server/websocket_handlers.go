package server

import (
	"log/slog"

	"chatgraph/internal/middleware"
	"chatgraph/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketUpgrade rejects plain HTTP requests on the websocket route.
func (s *Server) WebsocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WebsocketHandler serves the event stream. The connection starts subscribed
// to events addressed to the caller; room events need subscribe or join_room
// frames, which are checked against room membership.
// @Summary Event stream
// @Description Upgrade with ?ticket= from /auth/ws-ticket or a bearer token
// @Tags realtime
// @Param ticket query string false "Single-use websocket ticket"
// @Success 101
// @Router /ws [get]
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(string)
		if userID == "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"code":"UNAUTHORIZED"}}`))
			_ = conn.Close()
			return
		}
		ctx := middleware.WithUserID(s.shutdownCtx, userID)

		client, err := s.gateway.Register(userID, conn)
		if err != nil {
			slog.WarnContext(ctx, "websocket registration refused", slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
			_ = conn.Close()
			return
		}

		sub, err := s.broker.Subscribe(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "websocket subscription failed", slog.String("error", err.Error()))
			s.gateway.UnregisterClient(client)
			_ = conn.Close()
			return
		}
		defer func() { _ = sub.Close() }()

		session := notifications.NewSession(ctx, client, sub, s.gate.RequireMembership)
		if err := session.SubscribeSelf(); err != nil {
			slog.ErrorContext(ctx, "websocket self subscription failed", slog.String("error", err.Error()))
			s.gateway.UnregisterClient(client)
			_ = conn.Close()
			return
		}

		go session.Forward()
		go client.WritePump()
		client.ReadPump()

		// Stop forwarding before closing Send so WritePump exits promptly.
		_ = sub.Close()
		client.Close()
	})
}
