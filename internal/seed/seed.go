package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatgraph/internal/models"
)

// Options controls the size of a seeded social graph.
type Options struct {
	Users           int
	FriendsPerUser  int
	PendingRequests int
	Groups          int
	MessagesPerRoom int
	// Seed makes runs reproducible; zero picks a random one.
	Seed int64
}

// DefaultOptions is a small graph suitable for local development.
var DefaultOptions = Options{
	Users:           30,
	FriendsPerUser:  4,
	PendingRequests: 10,
	Groups:          5,
	MessagesPerRoom: 12,
}

// Summary counts what a run created.
type Summary struct {
	Questions    int
	Users        int
	Friendships  int
	Requests     int
	PrivateRooms int
	Groups       int
	Messages     int
}

// Seeder populates every store with a connected demo graph.
type Seeder struct {
	stores  Stores
	factory *Factory
	opts    Options
	log     *slog.Logger
	now     func() time.Time
}

// NewSeeder returns a seeder writing through stores.
func NewSeeder(stores Stores, opts Options, logger *slog.Logger) (*Seeder, error) {
	if opts.Users < 2 {
		return nil, fmt.Errorf("at least 2 users are required, got %d", opts.Users)
	}
	f, err := NewFactory(stores, opts.Seed)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{stores: stores, factory: f, opts: opts, log: logger, now: time.Now}, nil
}

// Run seeds questions, users, friendships, pending requests, rooms and
// messages, in that order.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	var sum Summary

	questions, err := Questions(ctx, s.stores.Relationships)
	if err != nil {
		return nil, err
	}
	sum.Questions = len(questions)

	users := make([]*models.User, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		u, err := s.factory.CreateUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, u)
		if err := s.answer(ctx, u, questions); err != nil {
			return nil, err
		}
	}
	sum.Users = len(users)
	s.log.Info("seeded users", slog.Int("count", sum.Users), slog.Int("questions", sum.Questions))

	friends, err := s.mesh(ctx, users, &sum)
	if err != nil {
		return nil, err
	}

	if err := s.rooms(ctx, users, friends, &sum); err != nil {
		return nil, err
	}

	s.log.Info("seeding complete",
		slog.Int("friendships", sum.Friendships),
		slog.Int("requests", sum.Requests),
		slog.Int("private_rooms", sum.PrivateRooms),
		slog.Int("groups", sum.Groups),
		slog.Int("messages", sum.Messages),
	)
	return &sum, nil
}

func (s *Seeder) answer(ctx context.Context, u *models.User, questions []models.Question) error {
	for _, q := range questions {
		opt := q.Options[s.factory.Pick(len(q.Options))]
		if err := s.stores.Relationships.SubmitAnswer(ctx, u.ID, opt.ID); err != nil {
			return fmt.Errorf("answer %s: %w", q.ID, err)
		}
	}
	return nil
}

// mesh links every user to its ring neighbours and then to random others, so
// the graph is connected and has mutual friends to suggest. Pending requests
// go between users who are not yet related.
func (s *Seeder) mesh(ctx context.Context, users []*models.User, sum *Summary) (map[string][]*models.User, error) {
	related := make(map[[2]string]bool)
	friends := make(map[string][]*models.User)
	key := func(a, b *models.User) [2]string {
		lo, hi := models.OrderedPair(a.ID, b.ID)
		return [2]string{lo, hi}
	}

	link := func(a, b *models.User) error {
		if a.ID == b.ID || related[key(a, b)] {
			return nil
		}
		if err := s.factory.Befriend(ctx, a, b); err != nil {
			return fmt.Errorf("befriend %s and %s: %w", a.Username, b.Username, err)
		}
		related[key(a, b)] = true
		friends[a.ID] = append(friends[a.ID], b)
		friends[b.ID] = append(friends[b.ID], a)
		sum.Friendships++
		return nil
	}

	n := len(users)
	for i, u := range users {
		if err := link(u, users[(i+1)%n]); err != nil {
			return nil, err
		}
		for extra := 1; extra < s.opts.FriendsPerUser && extra < n; extra++ {
			if err := link(u, users[s.factory.Pick(n)]); err != nil {
				return nil, err
			}
		}
	}

	for attempts := 0; sum.Requests < s.opts.PendingRequests && attempts < s.opts.PendingRequests*10; attempts++ {
		from, to := users[s.factory.Pick(n)], users[s.factory.Pick(n)]
		if from.ID == to.ID || related[key(from, to)] {
			continue
		}
		if err := s.stores.Relationships.SendRequest(ctx, from.ID, to.ID); err != nil {
			if models.HasCode(err, models.CodeConflict) {
				continue
			}
			return nil, fmt.Errorf("send request: %w", err)
		}
		related[key(from, to)] = true
		sum.Requests++
	}
	return friends, nil
}

func (s *Seeder) rooms(ctx context.Context, users []*models.User, friends map[string][]*models.User, sum *Summary) error {
	now := s.now()

	// One private conversation per user with their first friend.
	done := make(map[[2]string]bool)
	for _, u := range users {
		fs := friends[u.ID]
		if len(fs) == 0 {
			continue
		}
		other := fs[0]
		lo, hi := models.OrderedPair(u.ID, other.ID)
		if done[[2]string{lo, hi}] {
			continue
		}
		done[[2]string{lo, hi}] = true

		room, _, err := s.stores.Relationships.GetOrCreatePrivateRoom(ctx, u.ID, other.ID)
		if err != nil {
			return fmt.Errorf("private room: %w", err)
		}
		msgs, err := s.factory.CreateConversation(ctx, room.ID, []*models.User{u, other}, s.opts.MessagesPerRoom, now)
		if err != nil {
			return fmt.Errorf("private messages: %w", err)
		}
		sum.PrivateRooms++
		sum.Messages += len(msgs)
	}

	for g := 0; g < s.opts.Groups; g++ {
		creator := users[s.factory.Pick(len(users))]
		candidates := make([]string, 0, len(friends[creator.ID]))
		for _, f := range friends[creator.ID] {
			candidates = append(candidates, f.ID)
		}
		name := fmt.Sprintf("%s %s club", s.factory.faker.Adjective(), s.factory.faker.Noun())
		room, added, err := s.stores.Relationships.CreateGroup(ctx, creator.ID, name, candidates)
		if err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		senders := []*models.User{creator}
		for _, f := range friends[creator.ID] {
			for _, id := range added {
				if f.ID == id {
					senders = append(senders, f)
				}
			}
		}
		msgs, err := s.factory.CreateConversation(ctx, room.ID, senders, s.opts.MessagesPerRoom, now)
		if err != nil {
			return fmt.Errorf("group messages: %w", err)
		}
		sum.Groups++
		sum.Messages += len(msgs)
	}
	return nil
}
