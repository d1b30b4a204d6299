package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"chatgraph/internal/models"

	"github.com/redis/go-redis/v9"
)

const resetTokenPrefix = "auth:reset:"

// ResetTokenStore holds single-use password reset tokens.
type ResetTokenStore interface {
	Save(ctx context.Context, token *models.ResetToken, ttl time.Duration) error
	// Consume atomically removes and returns the token.
	Consume(ctx context.Context, token string) (*models.ResetToken, error)
}

type redisResetTokenStore struct {
	rdb *redis.Client
}

// NewResetTokenStore returns a Redis-backed ResetTokenStore.
func NewResetTokenStore(rdb *redis.Client) ResetTokenStore {
	return &redisResetTokenStore{rdb: rdb}
}

func (s *redisResetTokenStore) Save(ctx context.Context, token *models.ResetToken, ttl time.Duration) error {
	b, err := json.Marshal(token)
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.rdb.Set(ctx, resetTokenPrefix+token.Token, b, ttl).Err(); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *redisResetTokenStore) Consume(ctx context.Context, token string) (*models.ResetToken, error) {
	raw, err := s.rdb.GetDel(ctx, resetTokenPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.NewValidationError("Reset token is invalid or has expired")
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	var out models.ResetToken
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &out, nil
}
