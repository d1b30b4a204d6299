package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"chatgraph/internal/models"
)

// RoomAuthorizer returns nil when userID may watch events keyed by roomID.
type RoomAuthorizer func(ctx context.Context, userID, roomID string) error

// clientMessage is a frame sent by the websocket peer.
type clientMessage struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Key    string `json:"key"`
	RoomID string `json:"room_id"`
}

// Session binds one Client to one broker Subscription and speaks the
// subscribe protocol on its behalf.
type Session struct {
	ctx       context.Context
	client    *Client
	sub       *Subscription
	authorize RoomAuthorizer
}

// NewSession wires client and sub together. Call Forward in its own goroutine
// and install HandleMessage as the client's IncomingHandler.
func NewSession(ctx context.Context, client *Client, sub *Subscription, authorize RoomAuthorizer) *Session {
	s := &Session{ctx: ctx, client: client, sub: sub, authorize: authorize}
	client.IncomingHandler = func(_ *Client, raw []byte) { s.HandleMessage(raw) }
	return s
}

// SubscribeSelf subscribes to every event addressed to the session's user.
func (s *Session) SubscribeSelf() error {
	for _, name := range UserEvents {
		if err := s.sub.Add(s.ctx, name, s.client.UserID); err != nil {
			return err
		}
	}
	return nil
}

// Forward copies subscription events to the client until the subscription
// closes. Room-keyed events are re-authorized one by one, so a user who lost
// membership stops receiving the room even if no removal event reached them.
func (s *Session) Forward() {
	for ev := range s.sub.Events() {
		if !s.admit(ev) {
			continue
		}
		data, err := json.Marshal(Frame{Type: ev.Name, Key: ev.Key, Payload: ev.Payload})
		if err != nil {
			continue
		}
		s.client.TrySend(data)
		s.afterForward(ev)
	}
}

// admit reports whether ev may be sent to the client. Losing access to a room
// drops every subscription keyed on it.
func (s *Session) admit(ev Event) bool {
	if KindOf(ev.Name) != KeyRoom {
		return true
	}
	err := s.authorize(s.ctx, s.client.UserID, ev.Key)
	if err == nil {
		return true
	}
	if models.HasCode(err, models.CodeForbidden) || models.HasCode(err, models.CodeNotFound) {
		s.revokeRoom(ev.Key)
		return false
	}
	// Store failures drop the event but keep the subscription.
	slog.WarnContext(s.ctx, "room authorization failed, event dropped",
		slog.String("user_id", s.client.UserID),
		slog.String("room_id", ev.Key),
		slog.String("error", err.Error()),
	)
	return false
}

// afterForward reacts to membership events addressed to this session's user.
func (s *Session) afterForward(ev Event) {
	if ev.Name != EventRemovedMemberReceived || ev.Key != s.client.UserID {
		return
	}
	var body struct {
		GroupID string `json:"groupId"`
	}
	if err := json.Unmarshal(ev.Payload, &body); err != nil || body.GroupID == "" {
		return
	}
	s.revokeRoom(body.GroupID)
}

// revokeRoom removes every room-keyed subscription for roomID and tells the
// client when there was something to remove.
func (s *Session) revokeRoom(roomID string) {
	removed := false
	for _, name := range RoomEvents {
		if !s.sub.wants(name, roomID) {
			continue
		}
		if err := s.sub.Remove(s.ctx, name, roomID); err != nil {
			slog.WarnContext(s.ctx, "room unsubscribe failed", slog.String("room_id", roomID), slog.String("error", err.Error()))
		}
		removed = true
	}
	if removed {
		s.reply("room_left", roomID, map[string]string{"reason": "membership_revoked"})
	}
}

// HandleMessage processes one peer frame.
func (s *Session) HandleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.replyError(models.NewValidationError("Invalid message format"))
		return
	}

	switch msg.Type {
	case "subscribe":
		if err := s.subscribe(msg.Event, msg.Key); err != nil {
			s.replyError(err)
			return
		}
		s.reply("subscribed", msg.Key, map[string]string{"event": msg.Event})
	case "unsubscribe":
		if err := s.sub.Remove(s.ctx, msg.Event, msg.Key); err != nil {
			s.replyError(models.NewInternalError(err))
			return
		}
		s.reply("unsubscribed", msg.Key, map[string]string{"event": msg.Event})
	case "join_room":
		roomID := msg.RoomID
		if roomID == "" {
			roomID = msg.Key
		}
		if err := s.joinRoom(roomID); err != nil {
			s.replyError(err)
			return
		}
		s.reply("room_joined", roomID, nil)
	case "leave_room":
		roomID := msg.RoomID
		if roomID == "" {
			roomID = msg.Key
		}
		for _, name := range RoomMessageEvents {
			_ = s.sub.Remove(s.ctx, name, roomID)
		}
		s.reply("room_left", roomID, nil)
	case "ping":
		s.reply("pong", "", nil)
	default:
		s.replyError(models.NewValidationError("Unknown message type"))
	}
}

func (s *Session) subscribe(name, key string) error {
	if key == "" {
		return models.NewValidationError("key is required")
	}
	switch KindOf(name) {
	case KeyUser:
		if key != s.client.UserID {
			return models.NewForbiddenError("Cannot subscribe to another user's events")
		}
	case KeyRoom:
		if err := s.authorize(s.ctx, s.client.UserID, key); err != nil {
			return err
		}
	default:
		return models.NewValidationError("Unknown event")
	}
	if err := s.sub.Add(s.ctx, name, key); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *Session) joinRoom(roomID string) error {
	if roomID == "" {
		return models.NewValidationError("room_id is required")
	}
	if err := s.authorize(s.ctx, s.client.UserID, roomID); err != nil {
		return err
	}
	for _, name := range RoomMessageEvents {
		if err := s.sub.Add(s.ctx, name, roomID); err != nil {
			return models.NewInternalError(err)
		}
	}
	return nil
}

func (s *Session) reply(typ, key string, payload any) {
	frame := Frame{Type: typ, Key: key}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return
		}
		frame.Payload = raw
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	s.client.TrySend(data)
}

func (s *Session) replyError(err error) {
	code := models.CodeInternal
	message := "Internal server error"
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		if code != models.CodeInternal {
			message = appErr.Message
		}
	}
	if code == models.CodeInternal {
		slog.WarnContext(s.ctx, "websocket request failed", slog.String("user_id", s.client.UserID), slog.String("error", err.Error()))
	}
	s.reply("error", "", map[string]string{"code": code, "message": message})
}
