// Package service holds the chat domain logic: authorization, room
// resolution, the message lifecycle, friend requests and accounts.
package service

import (
	"context"

	"chatgraph/internal/models"
	"chatgraph/internal/repository"
)

// Gate answers relationship questions for read paths and the message engine.
// Mutations that need the same checks run them inside their own store
// transaction instead.
type Gate struct {
	rel repository.RelationshipRepository
}

// NewGate returns a Gate backed by rel.
func NewGate(rel repository.RelationshipRepository) *Gate {
	return &Gate{rel: rel}
}

// RequireMembership fails with Forbidden unless userID is a member of roomID.
func (g *Gate) RequireMembership(ctx context.Context, userID, roomID string) error {
	ok, err := g.rel.IsMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("You are not a member of this chat room")
	}
	return nil
}

// RequireAdmin fails with Forbidden unless userID administers roomID.
func (g *Gate) RequireAdmin(ctx context.Context, userID, roomID string) error {
	ok, err := g.rel.IsAdmin(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("Only group admins can do that")
	}
	return nil
}

// RequireFriendship fails with Forbidden unless a and b are friends. The
// order of the arguments does not matter.
func (g *Gate) RequireFriendship(ctx context.Context, a, b string) error {
	ok, err := g.rel.AreFriends(ctx, a, b)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("You are not friends with this user")
	}
	return nil
}
