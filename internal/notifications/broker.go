// Package notifications fans domain events out to websocket subscribers
// through Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"chatgraph/internal/config"
	"chatgraph/internal/observability"

	"github.com/redis/go-redis/v9"
)

const topicPrefix = "chatgraph:events:"

// subscriptionBuffer bounds the events a subscription holds before dropping.
const subscriptionBuffer = 128

// Publisher is the side of the broker that services depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Broker publishes events to Redis and hands out subscriptions.
//
// In addressed mode every (name, key) pair has its own channel and Redis does
// the filtering. In broadcast mode there is one channel per event name and each
// subscription filters by key on its side.
type Broker struct {
	rdb    *redis.Client
	mode   string
	logger *slog.Logger
}

// NewBroker creates a Broker. An unknown mode falls back to addressed.
func NewBroker(rdb *redis.Client, mode string) *Broker {
	if mode != config.FanoutBroadcast {
		mode = config.FanoutAddressed
	}
	return &Broker{rdb: rdb, mode: mode, logger: slog.Default()}
}

// Mode returns the fan-out strategy in use.
func (b *Broker) Mode() string { return b.mode }

// Topic returns the Redis channel an event is published on.
func (b *Broker) Topic(name, key string) string {
	if b.mode == config.FanoutBroadcast {
		return topicPrefix + name
	}
	return topicPrefix + name + ":" + key
}

// Publish sends ev at most once. Failures are logged and counted but never
// returned: the mutation that produced the event has already committed.
func (b *Broker) Publish(ctx context.Context, ev Event) {
	if b.rdb == nil {
		observability.EventsPublished.WithLabelValues(ev.Name, "skipped").Inc()
		return
	}
	if ev.PublishedAt.IsZero() {
		ev.PublishedAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		observability.EventsPublished.WithLabelValues(ev.Name, "error").Inc()
		b.logger.ErrorContext(ctx, "event encode failed", slog.String("event", ev.Name), slog.String("error", err.Error()))
		return
	}

	// Detached so a cancelled request still gets its event out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(pubCtx, b.Topic(ev.Name, ev.Key), data).Err(); err != nil {
		observability.EventsPublished.WithLabelValues(ev.Name, "error").Inc()
		b.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", ev.Name),
			slog.String("key", ev.Key),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.EventsPublished.WithLabelValues(ev.Name, "ok").Inc()
}

// Subscribe opens a subscription with no topics. Topics are added with Add.
// The subscription ends when ctx is cancelled or Close is called.
func (b *Broker) Subscribe(ctx context.Context) (*Subscription, error) {
	if b.rdb == nil {
		return nil, errors.New("event broker requires redis")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		broker: b,
		ps:     b.rdb.Subscribe(ctx),
		keys:   make(map[string]map[string]struct{}),
		events: make(chan Event, subscriptionBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// Subscription is one consumer's view of the broker.
type Subscription struct {
	broker *Broker
	ps     *redis.PubSub

	mu   sync.RWMutex
	keys map[string]map[string]struct{} // event name -> keys

	events    chan Event
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the channel events are delivered on. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan Event { return s.events }

// Add starts delivery of events named name with correlation key key.
func (s *Subscription) Add(ctx context.Context, name, key string) error {
	s.mu.Lock()
	keys, ok := s.keys[name]
	if !ok {
		keys = make(map[string]struct{})
		s.keys[name] = keys
	}
	if _, dup := keys[key]; dup {
		s.mu.Unlock()
		return nil
	}
	keys[key] = struct{}{}
	// Broadcast topics are shared by every key of an event name.
	needTopic := s.broker.mode == config.FanoutAddressed || len(keys) == 1
	s.mu.Unlock()

	if !needTopic {
		return nil
	}
	if err := s.ps.Subscribe(ctx, s.broker.Topic(name, key)); err != nil {
		observability.RedisErrorRate.WithLabelValues("subscribe").Inc()
		s.forget(name, key)
		return err
	}
	return nil
}

// Remove stops delivery of (name, key). Removing an unknown pair is a no-op.
func (s *Subscription) Remove(ctx context.Context, name, key string) error {
	s.mu.Lock()
	keys, ok := s.keys[name]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if _, present := keys[key]; !present {
		s.mu.Unlock()
		return nil
	}
	delete(keys, key)
	lastKey := len(keys) == 0
	if lastKey {
		delete(s.keys, name)
	}
	s.mu.Unlock()

	if s.broker.mode == config.FanoutBroadcast && !lastKey {
		return nil
	}
	return s.ps.Unsubscribe(ctx, s.broker.Topic(name, key))
}

// Close ends the subscription and releases its Redis connection.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.ps.Close()
		<-s.done
	})
	return err
}

func (s *Subscription) forget(name, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keys, ok := s.keys[name]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.keys, name)
		}
	}
}

func (s *Subscription) wants(name, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[name][key]
	return ok
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(ctx, msg)
		}
	}
}

func (s *Subscription) dispatch(ctx context.Context, msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.broker.logger.Error("panic in event subscription",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		s.broker.logger.Warn("dropping malformed event", slog.String("channel", msg.Channel), slog.String("error", err.Error()))
		return
	}
	// Also guards against frames still in flight after Remove.
	if !s.wants(ev.Name, ev.Key) {
		observability.EventsFiltered.WithLabelValues(ev.Name).Inc()
		return
	}

	select {
	case s.events <- ev:
		observability.EventsDelivered.WithLabelValues(ev.Name).Inc()
	case <-ctx.Done():
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues("subscription", "full").Inc()
	}
}
