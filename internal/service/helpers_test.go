package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatgraph/internal/database"
	"chatgraph/internal/models"
	"chatgraph/internal/notifications"
	"chatgraph/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recorder captures published events in order.
type recorder struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recorder) Publish(_ context.Context, ev notifications.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

func (r *recorder) named(name string) []notifications.Event {
	var out []notifications.Event
	for _, ev := range r.all() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fixture struct {
	db       *gorm.DB
	rel      repository.RelationshipRepository
	users    repository.UserRepository
	messages repository.MessageRepository
	events   *recorder

	rooms   *RoomService
	msgs    *MessageService
	friends *FriendService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	f := &fixture{
		db:       db,
		rel:      repository.NewSQLRelationshipRepository(db),
		users:    repository.NewUserRepository(db),
		messages: repository.NewSQLMessageRepository(db),
		events:   &recorder{},
	}
	f.wire()
	return f
}

// wire (re)builds the services, e.g. after swapping a repository.
func (f *fixture) wire() {
	f.rooms = NewRoomService(f.rel, f.messages, f.users, f.events)
	f.msgs = NewMessageService(f.rel, f.messages, f.rooms, f.events)
	f.friends = NewFriendService(f.rel, f.users, f.messages, f.events)

	// Strictly increasing timestamps keep history ordering deterministic.
	var mu sync.Mutex
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f.msgs.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
}

func (f *fixture) createUsers(t *testing.T, names ...string) []string {
	t.Helper()
	ids := make([]string, len(names))
	for i, name := range names {
		u := &models.User{Username: name, Email: name + "@example.com", Name: name, Password: "hash"}
		require.NoError(t, f.users.Create(context.Background(), u))
		ids[i] = u.ID
	}
	return ids
}

func (f *fixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.rel.SendRequest(ctx, a, b))
	require.NoError(t, f.rel.AcceptRequest(ctx, b, a))
}

// failingMessages overrides DeleteByRoom to fail.
type failingMessages struct {
	repository.MessageRepository
	err error
}

func (m failingMessages) DeleteByRoom(context.Context, string) (int64, error) {
	return 0, m.err
}

// failingRestore overrides RestoreFriendship to fail.
type failingRestore struct {
	repository.RelationshipRepository
	err error
}

func (r failingRestore) RestoreFriendship(context.Context, string, string, *models.Detachment) error {
	return r.err
}

var errStoreDown = errors.New("store unavailable")
