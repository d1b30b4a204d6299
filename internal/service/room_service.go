package service

import (
	"context"

	"chatgraph/internal/models"
	"chatgraph/internal/notifications"
	"chatgraph/internal/repository"
	"chatgraph/internal/validation"
)

// RoomService resolves private rooms and manages groups.
type RoomService struct {
	rel      repository.RelationshipRepository
	messages repository.MessageRepository
	users    repository.UserRepository
	events   notifications.Publisher
	gate     *Gate
}

// NewRoomService returns a new RoomService.
func NewRoomService(
	rel repository.RelationshipRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	events notifications.Publisher,
) *RoomService {
	return &RoomService{rel: rel, messages: messages, users: users, events: events, gate: NewGate(rel)}
}

// GetOrCreatePrivateRoom returns the room shared by two friends, creating it
// on first use. Concurrent callers get the same room.
func (s *RoomService) GetOrCreatePrivateRoom(ctx context.Context, self, friendID string) (*models.ChatRoom, error) {
	if self == friendID {
		return nil, models.NewValidationError("Cannot open a private chat with yourself")
	}
	room, _, err := s.rel.GetOrCreatePrivateRoom(ctx, self, friendID)
	return room, err
}

// RoomForFriend returns the existing private room with friendID without
// creating one.
func (s *RoomService) RoomForFriend(ctx context.Context, self, friendID string) (*models.ChatRoom, error) {
	room, err := s.rel.FindPrivateRoom(ctx, self, friendID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, models.NewNotFoundError("Private room", friendID)
	}
	return room, nil
}

// DeletePrivateChat removes the private room shared with partnerID. The
// friendship and the stored messages are kept.
func (s *RoomService) DeletePrivateChat(ctx context.Context, self, partnerID string) error {
	_, err := s.rel.DeletePrivateRoom(ctx, self, partnerID)
	return err
}

// CreateGroupInput is the input for creating a group.
type CreateGroupInput struct {
	CreatorID string
	Name      string
	FriendIDs []string
}

// CreateGroup creates a group administered by the creator. Candidates that
// are not the creator's friends are dropped without error.
func (s *RoomService) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.ChatRoom, error) {
	name, err := validation.GroupName(in.Name)
	if err != nil {
		return nil, err
	}
	room, added, err := s.rel.CreateGroup(ctx, in.CreatorID, name, in.FriendIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range added {
		publish(ctx, s.events, notifications.EventAddedMemberReceived, id, memberPayload{TargetUserID: id, GroupID: room.ID})
	}
	return room, nil
}

// LeaveGroup removes userID from the group. The last member leaving dissolves
// the group. A sole admin cannot leave while others remain.
func (s *RoomService) LeaveGroup(ctx context.Context, userID, groupID string) error {
	if _, err := s.rel.LeaveGroup(ctx, userID, groupID); err != nil {
		return err
	}
	publish(ctx, s.events, notifications.EventRemovedMemRosterUpdated, groupID, groupPayload{GroupID: groupID})
	return nil
}

// DeleteGroup removes the group and every membership. Messages are kept.
func (s *RoomService) DeleteGroup(ctx context.Context, actorID, groupID string) error {
	former, err := s.rel.DeleteGroup(ctx, actorID, groupID)
	if err != nil {
		return err
	}
	for _, id := range former {
		publish(ctx, s.events, notifications.EventRemovedMemberReceived, id, memberPayload{TargetUserID: id, GroupID: groupID})
	}
	publish(ctx, s.events, notifications.EventRemovedMemRosterUpdated, groupID, groupPayload{GroupID: groupID})
	return nil
}

// AddMember adds targetID to the group. The actor must be an admin and a
// friend of the target.
func (s *RoomService) AddMember(ctx context.Context, actorID, groupID, targetID string) error {
	if err := s.rel.AddMember(ctx, actorID, groupID, targetID); err != nil {
		return err
	}
	publish(ctx, s.events, notifications.EventAddedMemberReceived, targetID, memberPayload{TargetUserID: targetID, GroupID: groupID})
	publish(ctx, s.events, notifications.EventAddedMemRosterUpdated, groupID, groupPayload{GroupID: groupID})
	return nil
}

// RemoveMember removes targetID and any admin role it held.
func (s *RoomService) RemoveMember(ctx context.Context, actorID, groupID, targetID string) error {
	if err := s.rel.RemoveMember(ctx, actorID, groupID, targetID); err != nil {
		return err
	}
	publish(ctx, s.events, notifications.EventRemovedMemberReceived, targetID, memberPayload{TargetUserID: targetID, GroupID: groupID})
	publish(ctx, s.events, notifications.EventRemovedMemRosterUpdated, groupID, groupPayload{GroupID: groupID})
	return nil
}

// PromoteAdmin makes a member an admin.
func (s *RoomService) PromoteAdmin(ctx context.Context, actorID, groupID, targetID string) error {
	if err := s.rel.PromoteAdmin(ctx, actorID, groupID, targetID); err != nil {
		return err
	}
	publish(ctx, s.events, notifications.EventAdminStatusChanged, groupID, groupPayload{GroupID: groupID})
	return nil
}

// DemoteAdmin revokes an admin role. The last admin cannot be demoted.
func (s *RoomService) DemoteAdmin(ctx context.Context, actorID, groupID, targetID string) error {
	if err := s.rel.DemoteAdmin(ctx, actorID, groupID, targetID); err != nil {
		return err
	}
	publish(ctx, s.events, notifications.EventAdminStatusChanged, groupID, groupPayload{GroupID: groupID})
	return nil
}

// ListGroups returns the caller's groups, each with its latest message.
func (s *RoomService) ListGroups(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	groups, err := s.rel.ListGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return []models.ChatRoom{}, nil
	}

	ids := make([]string, len(groups))
	for i := range groups {
		ids[i] = groups[i].ID
	}
	latest, err := s.messages.LatestByRooms(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		groups[i].LastMessage = latest[groups[i].ID]
	}
	return groups, nil
}

// ListMembers returns the other members of a group.
func (s *RoomService) ListMembers(ctx context.Context, userID, groupID string) ([]models.UserSummary, error) {
	return s.summaries(ctx)(s.rel.ListMembers(ctx, userID, groupID))
}

// ListAdmins returns the admins of a group.
func (s *RoomService) ListAdmins(ctx context.Context, userID, groupID string) ([]models.UserSummary, error) {
	return s.summaries(ctx)(s.rel.ListAdmins(ctx, userID, groupID))
}

// GetGroup returns a group the caller belongs to.
func (s *RoomService) GetGroup(ctx context.Context, userID, groupID string) (*models.ChatRoom, error) {
	if err := s.gate.RequireMembership(ctx, userID, groupID); err != nil {
		return nil, err
	}
	room, err := s.rel.GetRoom(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !room.IsGroup {
		return nil, models.NewNotFoundError("Group", groupID)
	}
	return room, nil
}

// ListAdminsToRemove returns the admins the caller could demote. Only admins
// may ask.
func (s *RoomService) ListAdminsToRemove(ctx context.Context, userID, groupID string) ([]models.UserSummary, error) {
	if err := s.gate.RequireAdmin(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return s.summaries(ctx)(s.rel.ListAdminsToRemove(ctx, userID, groupID))
}

// ListNonAdmins returns the members that could be promoted.
func (s *RoomService) ListNonAdmins(ctx context.Context, userID, groupID string) ([]models.UserSummary, error) {
	return s.summaries(ctx)(s.rel.ListNonAdmins(ctx, userID, groupID))
}

func (s *RoomService) summaries(ctx context.Context) func([]string, error) ([]models.UserSummary, error) {
	return func(ids []string, err error) ([]models.UserSummary, error) {
		if err != nil {
			return nil, err
		}
		return userSummaries(ctx, s.users, ids)
	}
}

// userSummaries loads ids and returns them in the same order. Ids with no
// user row are skipped.
func userSummaries(ctx context.Context, users repository.UserRepository, ids []string) ([]models.UserSummary, error) {
	out := make([]models.UserSummary, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.User, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}
