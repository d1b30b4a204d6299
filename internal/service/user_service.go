package service

import (
	"context"
	"strings"

	"chatgraph/internal/featureflags"
	"chatgraph/internal/models"
	"chatgraph/internal/repository"
)

const (
	searchLimit            = 10
	defaultSuggestionLimit = 10
	maxSuggestionLimit     = 50
)

// UserService serves profiles, search, stats, interests and suggestions.
type UserService struct {
	users repository.UserRepository
	rel   repository.RelationshipRepository
	flags *featureflags.Manager
}

// NewUserService returns a new UserService.
func NewUserService(users repository.UserRepository, rel repository.RelationshipRepository, flags *featureflags.Manager) *UserService {
	return &UserService{users: users, rel: rel, flags: flags}
}

// GetUser returns a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// Search finds users whose username or name contains q, excluding the
// caller, and annotates each with the caller's relation to them.
func (s *UserService) Search(ctx context.Context, self, q string) ([]models.SearchResult, error) {
	found, err := s.users.Search(ctx, strings.TrimSpace(q), self, searchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchResult, 0, len(found))
	if len(found) == 0 {
		return out, nil
	}

	ids := make([]string, len(found))
	for i := range found {
		ids[i] = found[i].ID
	}
	statuses, err := s.rel.RelationStatuses(ctx, self, ids)
	if err != nil {
		return nil, err
	}
	for i := range found {
		status, ok := statuses[found[i].ID]
		if !ok {
			status = models.RequestStatusNone
		}
		out = append(out, models.SearchResult{UserSummary: found[i].Summary(), RequestStatus: status})
	}
	return out, nil
}

// Stats returns the caller's friend and group counts and latest preference.
func (s *UserService) Stats(ctx context.Context, self string) (*models.UserStats, error) {
	user, err := s.users.GetByID(ctx, self)
	if err != nil {
		return nil, err
	}
	stats, err := s.rel.Stats(ctx, self)
	if err != nil {
		return nil, err
	}
	stats.User = user
	return stats, nil
}

// Suggestions ranks people the caller may know. It returns nothing when the
// friend_suggestions flag is off for the caller.
func (s *UserService) Suggestions(ctx context.Context, self string, limit int) ([]models.Suggestion, error) {
	if !s.flags.Enabled(featureflags.Suggestions, self) {
		return []models.Suggestion{}, nil
	}
	switch {
	case limit <= 0:
		limit = defaultSuggestionLimit
	case limit > maxSuggestionLimit:
		limit = maxSuggestionLimit
	}

	scored, err := s.rel.Suggestions(ctx, self, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(scored))
	for i, sc := range scored {
		ids[i] = sc.UserID
	}
	summaries, err := userSummaries(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.UserSummary, len(summaries))
	for _, u := range summaries {
		byID[u.ID] = u
	}

	out := make([]models.Suggestion, 0, len(scored))
	for _, sc := range scored {
		if u, ok := byID[sc.UserID]; ok {
			out = append(out, models.Suggestion{User: u, Score: sc.Score})
		}
	}
	return out, nil
}

// Questions returns the interest catalog.
func (s *UserService) Questions(ctx context.Context) ([]models.Question, error) {
	return s.rel.ListQuestions(ctx)
}

// SubmitAnswer records the caller's answer, replacing any earlier answer to
// the same question.
func (s *UserService) SubmitAnswer(ctx context.Context, self, optionID string) error {
	if strings.TrimSpace(optionID) == "" {
		return models.NewValidationError("option_id is required")
	}
	return s.rel.SubmitAnswer(ctx, self, optionID)
}
