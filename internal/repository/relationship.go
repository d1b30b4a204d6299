package repository

import (
	"cmp"
	"context"
	"slices"

	"chatgraph/internal/models"
)

// RelationshipRepository is the social graph: friendships, requests, rooms,
// memberships and interest answers. Every method is a single transaction and
// mutations check their preconditions inside it.
type RelationshipRepository interface {
	EnsureUser(ctx context.Context, userID string) error

	AreFriends(ctx context.Context, a, b string) (bool, error)
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	IsAdmin(ctx context.Context, userID, roomID string) (bool, error)
	GetRoom(ctx context.Context, roomID string) (*models.ChatRoom, error)
	// FindPrivateRoom returns nil, nil when the pair has no private room.
	FindPrivateRoom(ctx context.Context, a, b string) (*models.ChatRoom, error)

	GetOrCreatePrivateRoom(ctx context.Context, a, b string) (*models.ChatRoom, bool, error)
	DeletePrivateRoom(ctx context.Context, a, b string) (string, error)
	// CreateGroup keeps only the candidates that are friends of the creator
	// and returns the ids that were added.
	CreateGroup(ctx context.Context, creatorID, name string, candidateIDs []string) (*models.ChatRoom, []string, error)
	LeaveGroup(ctx context.Context, userID, groupID string) (bool, error)
	DeleteGroup(ctx context.Context, actorID, groupID string) ([]string, error)
	AddMember(ctx context.Context, actorID, groupID, targetID string) error
	RemoveMember(ctx context.Context, actorID, groupID, targetID string) error
	PromoteAdmin(ctx context.Context, actorID, groupID, targetID string) error
	DemoteAdmin(ctx context.Context, actorID, groupID, targetID string) error

	ListGroups(ctx context.Context, userID string) ([]models.ChatRoom, error)
	ListMembers(ctx context.Context, userID, groupID string) ([]string, error)
	ListAdmins(ctx context.Context, userID, groupID string) ([]string, error)
	ListAdminsToRemove(ctx context.Context, userID, groupID string) ([]string, error)
	ListNonAdmins(ctx context.Context, userID, groupID string) ([]string, error)

	ListFriends(ctx context.Context, userID string) ([]models.FriendEntry, error)
	ListSentRequests(ctx context.Context, userID string) ([]string, error)
	ListReceivedRequests(ctx context.Context, userID string) ([]string, error)
	RelationStatus(ctx context.Context, self, other string) (models.RequestStatus, error)
	RelationStatuses(ctx context.Context, self string, others []string) (map[string]models.RequestStatus, error)
	SendRequest(ctx context.Context, from, to string) error
	CancelRequest(ctx context.Context, from, to string) error
	AcceptRequest(ctx context.Context, receiver, sender string) error
	RejectRequest(ctx context.Context, receiver, sender string) error
	DetachFriendship(ctx context.Context, a, b string) (*models.Detachment, error)
	RestoreFriendship(ctx context.Context, a, b string, d *models.Detachment) error

	Stats(ctx context.Context, userID string) (*models.UserStats, error)
	Suggestions(ctx context.Context, userID string, limit int) ([]models.ScoredUser, error)
	ListQuestions(ctx context.Context) ([]models.Question, error)
	SubmitAnswer(ctx context.Context, userID, optionID string) error
	UpsertQuestion(ctx context.Context, q *models.Question) error
}

// Suggestion weights.
const (
	InterestWeight = 3
	MutualWeight   = 10
)

func errNotMember() error { return models.NewForbiddenError("Not a member of this room") }
func errNotAdmin() error  { return models.NewForbiddenError("Only group admins can do that") }
func errNotFriends() error {
	return models.NewForbiddenError("Users are not friends")
}
func errGroupNotFound(id string) error  { return models.NewNotFoundError("Group", id) }
func errMemberNotFound(id string) error { return models.NewNotFoundError("Member", id) }
func errSoleAdmin() error {
	return models.NewConflictError("Promote another admin before leaving the group")
}
func errLastAdmin() error     { return models.NewConflictError("A group needs at least one admin") }
func errAlreadyMember() error { return models.NewConflictError("User is already a member") }
func errAlreadyAdmin() error  { return models.NewConflictError("User is already an admin") }
func errNotAnAdmin() error    { return models.NewValidationError("User is not an admin") }
func errRemoveSelf() error {
	return models.NewValidationError("Use leave to remove yourself from a group")
}
func errRelationExists() error {
	return models.NewConflictError("A friend request or friendship already exists")
}
func errRequestNotFound(from, to string) error {
	return models.NewNotFoundError("Friend request", from+"->"+to)
}
func errFriendshipNotFound(a, b string) error {
	return models.NewNotFoundError("Friendship", models.PairKey(a, b))
}

// scoreSuggestions merges interest and mutual-friend counts into ranked users.
func scoreSuggestions(interest, mutual map[string]int, excluded map[string]bool, limit int) []models.ScoredUser {
	scores := make(map[string]int, len(interest)+len(mutual))
	for id, n := range interest {
		scores[id] += n * InterestWeight
	}
	for id, n := range mutual {
		scores[id] += n * MutualWeight
	}

	out := make([]models.ScoredUser, 0, len(scores))
	for id, score := range scores {
		if excluded[id] || score <= 0 {
			continue
		}
		out = append(out, models.ScoredUser{UserID: id, Score: score})
	}
	sortScored(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortScored(users []models.ScoredUser) {
	slices.SortFunc(users, func(a, b models.ScoredUser) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
}
