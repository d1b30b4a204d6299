package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chatgraph/internal/models"
	"chatgraph/internal/notifications"
	"chatgraph/internal/observability"
	"chatgraph/internal/repository"
	"chatgraph/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultMessageLimit = 20
	maxMessageLimit     = 100
)

// MessageService drives the message lifecycle: send, delivery and read
// receipts, deletion, listing, and forgetting a friend with their history.
type MessageService struct {
	rel      repository.RelationshipRepository
	messages repository.MessageRepository
	rooms    *RoomService
	gate     *Gate
	events   notifications.Publisher
	now      func() time.Time
}

// NewMessageService returns a new MessageService.
func NewMessageService(
	rel repository.RelationshipRepository,
	messages repository.MessageRepository,
	rooms *RoomService,
	events notifications.Publisher,
) *MessageService {
	return &MessageService{
		rel:      rel,
		messages: messages,
		rooms:    rooms,
		gate:     NewGate(rel),
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SendMessageInput addresses a message by room or, for private chats, by
// friend. RoomID wins when both are set.
type SendMessageInput struct {
	SenderID string
	RoomID   string
	FriendID string
	Content  string
}

// Send stores a message and announces it to the room.
func (s *MessageService) Send(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	content, err := validation.MessageContent(in.Content)
	if err != nil {
		return nil, err
	}

	roomID := in.RoomID
	if roomID == "" {
		if in.FriendID == "" {
			return nil, models.NewValidationError("room_id or friend_id is required")
		}
		room, err := s.rooms.GetOrCreatePrivateRoom(ctx, in.SenderID, in.FriendID)
		if err != nil {
			return nil, err
		}
		roomID = room.ID
	}
	if err := s.gate.RequireMembership(ctx, in.SenderID, roomID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		RoomID:    roomID,
		SenderID:  in.SenderID,
		Content:   content,
		Status:    models.MessageStatusSent,
		CreatedAt: s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	observability.MessageStatusTransitions.WithLabelValues(string(models.MessageStatusSent)).Inc()
	publish(ctx, s.events, notifications.EventMessageAdded, roomID, msg)
	return msg, nil
}

// MarkDelivered moves a message to delivered. A message that is already
// read stays read.
func (s *MessageService) MarkDelivered(ctx context.Context, callerID, messageID string) (*models.Message, error) {
	msg, err := s.loadForMember(ctx, callerID, messageID)
	if err != nil {
		return nil, err
	}
	updated, changed, err := s.messages.AdvanceStatus(ctx, msg.ID, models.MessageStatusDelivered)
	if err != nil {
		return nil, err
	}
	if changed {
		observability.MessageStatusTransitions.WithLabelValues(string(models.MessageStatusDelivered)).Inc()
		publish(ctx, s.events, notifications.EventMessageStatusUpdated, updated.RoomID, updated)
	}
	return updated, nil
}

// MarkRead records that callerID read the message. Repeating the call for the
// same reader changes nothing.
func (s *MessageService) MarkRead(ctx context.Context, callerID, messageID string) (*models.Message, error) {
	msg, err := s.loadForMember(ctx, callerID, messageID)
	if err != nil {
		return nil, err
	}
	wasRead := msg.Status == models.MessageStatusRead
	updated, changed, err := s.messages.MarkRead(ctx, msg.ID, callerID, s.now())
	if err != nil {
		return nil, err
	}
	if changed {
		if !wasRead {
			observability.MessageStatusTransitions.WithLabelValues(string(models.MessageStatusRead)).Inc()
		}
		publish(ctx, s.events, notifications.EventMessageStatusUpdated, updated.RoomID, updated)
	}
	return updated, nil
}

// Delete removes a message. Only its sender or an admin of its group may.
func (s *MessageService) Delete(ctx context.Context, callerID, messageID string) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != callerID {
		admin, err := s.rel.IsAdmin(ctx, callerID, msg.RoomID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, models.NewForbiddenError("Only the sender or a group admin can delete this message")
		}
	}

	deleted, err := s.messages.Delete(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.events, notifications.EventMessageDeleted, deleted.RoomID, deleted)
	return deleted, nil
}

// ListMessagesInput selects a page of a room's history.
type ListMessagesInput struct {
	CallerID string
	RoomID   string
	FriendID string
	Limit    int
	Skip     int
}

// List returns a page of messages, newest first. Listing by friend never
// creates a room; without one the page is empty.
func (s *MessageService) List(ctx context.Context, in ListMessagesInput) ([]models.Message, error) {
	limit := in.Limit
	switch {
	case limit <= 0:
		limit = defaultMessageLimit
	case limit > maxMessageLimit:
		limit = maxMessageLimit
	}
	skip := max(in.Skip, 0)

	roomID := in.RoomID
	if roomID == "" {
		if in.FriendID == "" {
			return nil, models.NewValidationError("room_id or friend_id is required")
		}
		if err := s.gate.RequireFriendship(ctx, in.CallerID, in.FriendID); err != nil {
			return nil, err
		}
		room, err := s.rel.FindPrivateRoom(ctx, in.CallerID, in.FriendID)
		if err != nil {
			return nil, err
		}
		if room == nil {
			return []models.Message{}, nil
		}
		roomID = room.ID
	}
	if err := s.gate.RequireMembership(ctx, in.CallerID, roomID); err != nil {
		return nil, err
	}
	return s.messages.ListByRoom(ctx, roomID, limit, skip)
}

// Preview returns the latest message of each room that has one.
func (s *MessageService) Preview(ctx context.Context, roomIDs []string) (map[string]*models.Message, error) {
	if len(roomIDs) == 0 {
		return map[string]*models.Message{}, nil
	}
	return s.messages.LatestByRooms(ctx, roomIDs)
}

// ForgetFriendAndHistory ends a friendship and erases the private history.
//
// The friendship and room live in the relationship store and the messages in
// the message store, so this runs as a two step saga. The relationship side
// goes first; if deleting the messages then fails, the friendship and room
// are restored under the same room id and the deletion error is returned.
func (s *MessageService) ForgetFriendAndHistory(ctx context.Context, self, friendID, roomID string) (err error) {
	if self == friendID {
		return models.NewValidationError("Cannot forget yourself")
	}

	span, ctx := observability.NewSpan(ctx, "message.forget_friend",
		attribute.String("user.id", self),
		attribute.String("friend.id", friendID),
	)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.End()
	}()

	if roomID != "" {
		room, err := s.rel.FindPrivateRoom(ctx, self, friendID)
		if err != nil {
			return err
		}
		if room == nil || room.ID != roomID {
			return models.NewForbiddenError("Room is not your private chat with this friend")
		}
	}

	detached, err := s.rel.DetachFriendship(ctx, self, friendID)
	if err != nil {
		return err
	}
	span.AddEvent("friendship_detached", attribute.String("room.id", detached.RoomID))

	if detached.RoomID != "" {
		if _, delErr := s.messages.DeleteByRoom(ctx, detached.RoomID); delErr != nil {
			return s.compensateForget(ctx, span, self, friendID, detached, delErr)
		}
	}

	publish(ctx, s.events, notifications.EventFriendRemoved, friendID, friendRemovedPayload{
		TargetUserID:  friendID,
		RemovedUserID: self,
	})
	return nil
}

func (s *MessageService) compensateForget(
	ctx context.Context,
	span *observability.Span,
	self, friendID string,
	detached *models.Detachment,
	cause error,
) error {
	span.AddEvent("compensating", attribute.String("cause", cause.Error()))
	restoreErr := s.rel.RestoreFriendship(context.WithoutCancel(ctx), self, friendID, detached)
	if restoreErr == nil {
		observability.SagaCompensations.WithLabelValues("forget_friend", "restored").Inc()
		slog.WarnContext(ctx, "forget friend rolled back",
			slog.String("friend_id", friendID),
			slog.String("room_id", detached.RoomID),
			slog.String("error", cause.Error()),
		)
		return cause
	}

	observability.SagaCompensations.WithLabelValues("forget_friend", "failed").Inc()
	slog.ErrorContext(ctx, "forget friend compensation failed, friendship lost with history intact",
		slog.String("friend_id", friendID),
		slog.String("room_id", detached.RoomID),
		slog.String("delete_error", cause.Error()),
		slog.String("restore_error", restoreErr.Error()),
	)
	return models.NewInternalError(errors.Join(cause, restoreErr))
}

// loadForMember fetches a message and checks the caller belongs to its room.
func (s *MessageService) loadForMember(ctx context.Context, callerID, messageID string) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireMembership(ctx, callerID, msg.RoomID); err != nil {
		return nil, err
	}
	return msg, nil
}
