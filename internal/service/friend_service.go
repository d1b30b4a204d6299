package service

import (
	"context"

	"chatgraph/internal/models"
	"chatgraph/internal/notifications"
	"chatgraph/internal/repository"
)

// FriendService provides friend-request and friendship business logic.
type FriendService struct {
	rel      repository.RelationshipRepository
	users    repository.UserRepository
	messages repository.MessageRepository
	events   notifications.Publisher
}

// NewFriendService returns a new FriendService.
func NewFriendService(
	rel repository.RelationshipRepository,
	users repository.UserRepository,
	messages repository.MessageRepository,
	events notifications.Publisher,
) *FriendService {
	return &FriendService{rel: rel, users: users, messages: messages, events: events}
}

// SendRequest sends a friend request from one user to another.
func (s *FriendService) SendRequest(ctx context.Context, from, to string) error {
	if from == to {
		return models.NewValidationError("Cannot send friend request to yourself")
	}
	if _, err := s.users.GetByID(ctx, to); err != nil {
		return err
	}
	sender, err := s.users.GetByID(ctx, from)
	if err != nil {
		return err
	}

	if err := s.rel.SendRequest(ctx, from, to); err != nil {
		return err
	}
	publish(ctx, s.events, notifications.EventFriendRequestReceived, to, friendRequestPayload{
		ReceiverID: to,
		UserID:     sender.ID,
		Username:   sender.Username,
		Name:       sender.Name,
	})
	return nil
}

// CancelRequest withdraws a pending request the caller sent.
func (s *FriendService) CancelRequest(ctx context.Context, from, to string) error {
	if err := s.rel.CancelRequest(ctx, from, to); err != nil {
		return err
	}
	publish(ctx, s.events, notifications.EventCancelRequestReceived, to, requestReceiverPayload{ReceiverID: to})
	return nil
}

// AcceptRequest turns a pending request from senderID into a friendship.
func (s *FriendService) AcceptRequest(ctx context.Context, receiverID, senderID string) error {
	if err := s.rel.AcceptRequest(ctx, receiverID, senderID); err != nil {
		return err
	}
	publish(ctx, s.events, notifications.EventAcceptRequestReceived, senderID, requestSenderPayload{SenderID: senderID})
	return nil
}

// RejectRequest declines a pending request from senderID.
func (s *FriendService) RejectRequest(ctx context.Context, receiverID, senderID string) error {
	if err := s.rel.RejectRequest(ctx, receiverID, senderID); err != nil {
		return err
	}
	publish(ctx, s.events, notifications.EventRejectRequestReceived, senderID, requestSenderPayload{SenderID: senderID})
	return nil
}

// ListFriends returns the caller's friends with their private room and its
// latest message, when there is one.
func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]models.Friend, error) {
	entries, err := s.rel.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []models.Friend{}, nil
	}

	ids := make([]string, 0, len(entries))
	roomIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
		if e.RoomID != "" {
			roomIDs = append(roomIDs, e.RoomID)
		}
	}
	summaries, err := userSummaries(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	latest := map[string]*models.Message{}
	if len(roomIDs) > 0 {
		if latest, err = s.messages.LatestByRooms(ctx, roomIDs); err != nil {
			return nil, err
		}
	}

	rooms := make(map[string]string, len(entries))
	for _, e := range entries {
		rooms[e.UserID] = e.RoomID
	}
	friends := make([]models.Friend, 0, len(summaries))
	for _, u := range summaries {
		f := models.Friend{UserSummary: u, RoomID: rooms[u.ID]}
		if f.RoomID != "" {
			f.LastMessage = latest[f.RoomID]
		}
		friends = append(friends, f)
	}
	return friends, nil
}

// ListSentRequests returns users the caller has pending requests to.
func (s *FriendService) ListSentRequests(ctx context.Context, userID string) ([]models.UserSummary, error) {
	ids, err := s.rel.ListSentRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userSummaries(ctx, s.users, ids)
}

// ListReceivedRequests returns users with pending requests to the caller.
func (s *FriendService) ListReceivedRequests(ctx context.Context, userID string) ([]models.UserSummary, error) {
	ids, err := s.rel.ListReceivedRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userSummaries(ctx, s.users, ids)
}

// IsFriend reports whether the two users are friends.
func (s *FriendService) IsFriend(ctx context.Context, self, other string) (bool, error) {
	return s.rel.AreFriends(ctx, self, other)
}

// Status describes the relation between the caller and another user.
func (s *FriendService) Status(ctx context.Context, self, other string) (models.RequestStatus, error) {
	if self == other {
		return models.RequestStatusNone, nil
	}
	if _, err := s.users.GetByID(ctx, other); err != nil {
		return "", err
	}
	return s.rel.RelationStatus(ctx, self, other)
}
