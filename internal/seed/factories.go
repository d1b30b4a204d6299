// Package seed provides helpers to create demo data through the repository
// layer, so every configured backend can be populated the same way. These
// helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatgraph/internal/models"
	"chatgraph/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

// Stores are the repositories seeding writes through.
type Stores struct {
	Users         repository.UserRepository
	Relationships repository.RelationshipRepository
	Messages      repository.MessageRepository
}

// Factory builds domain entities and persists them through Stores.
type Factory struct {
	stores Stores
	faker  *gofakeit.Faker
	hash   string
	// next keeps usernames unique within one run.
	next int
}

// NewFactory creates a Factory. A zero seed picks a random one.
func NewFactory(stores Stores, seed int64) (*Factory, error) {
	// One hash for every account keeps large runs fast.
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	return &Factory{stores: stores, faker: gofakeit.New(seed), hash: string(hash)}, nil
}

// CreateUser constructs and persists a sample user. Optional overrides may
// modify the generated user before saving.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	f.next++
	base := strings.ToLower(f.faker.Username())
	if len(base) > 20 {
		base = base[:20]
	}
	username := fmt.Sprintf("%s%d", base, f.next)
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Name:     f.faker.Name(),
		Password: f.hash,
	}
	for _, override := range overrides {
		override(user)
	}

	if err := f.stores.Users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := f.stores.Relationships.EnsureUser(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// Befriend records an accepted friendship between a and b.
func (f *Factory) Befriend(ctx context.Context, a, b *models.User) error {
	if err := f.stores.Relationships.SendRequest(ctx, a.ID, b.ID); err != nil {
		return err
	}
	return f.stores.Relationships.AcceptRequest(ctx, b.ID, a.ID)
}

// CreateConversation writes count messages alternating between senders,
// spaced a few minutes apart and ending before now.
func (f *Factory) CreateConversation(ctx context.Context, roomID string, senders []*models.User, count int, now time.Time) ([]models.Message, error) {
	if len(senders) == 0 || count <= 0 {
		return nil, nil
	}
	at := now.Add(-time.Duration(count*5) * time.Minute)
	out := make([]models.Message, 0, count)
	for i := 0; i < count; i++ {
		at = at.Add(time.Duration(f.faker.IntRange(1, 5)) * time.Minute)
		msg := models.Message{
			RoomID:    roomID,
			SenderID:  senders[i%len(senders)].ID,
			Content:   f.faker.Sentence(f.faker.IntRange(3, 12)),
			Status:    models.MessageStatusSent,
			CreatedAt: at.UTC(),
		}
		if err := f.stores.Messages.Create(ctx, &msg); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// Pick returns a random element index in [0, n).
func (f *Factory) Pick(n int) int {
	return f.faker.IntRange(0, n-1)
}
