package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chatgraph/internal/config"
	"chatgraph/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	broker  *Broker
	client  *Client
	session *Session
	sub     *Subscription

	mu    sync.Mutex
	rooms map[string]bool
}

// leave drops the fixture user's membership of roomID.
func (f *sessionFixture) leave(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, roomID)
}

func newSessionFixture(t *testing.T, userID string, memberOf ...string) *sessionFixture {
	t.Helper()
	b, _ := newTestBroker(t, config.FanoutAddressed)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	g := NewGateway()
	client, err := g.Register(userID, nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	f := &sessionFixture{broker: b, client: client, sub: sub, rooms: make(map[string]bool)}
	for _, r := range memberOf {
		f.rooms[r] = true
	}
	authorize := func(_ context.Context, _ string, roomID string) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.rooms[roomID] {
			return models.NewForbiddenError("User is not a member of this room")
		}
		return nil
	}

	f.session = NewSession(ctx, client, sub, authorize)
	go f.session.Forward()
	return f
}

func (f *sessionFixture) send(t *testing.T, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	f.client.IncomingHandler(f.client, raw)
}

func (f *sessionFixture) next(t *testing.T) Frame {
	t.Helper()
	select {
	case raw := <-f.client.Send:
		var frame Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(testEventuallyTimeout):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func errorCode(t *testing.T, frame Frame) string {
	t.Helper()
	require.Equal(t, "error", frame.Type)
	var body map[string]string
	require.NoError(t, json.Unmarshal(frame.Payload, &body))
	return body["code"]
}

func TestSession_RoomEventsRequireMembership(t *testing.T) {
	f := newSessionFixture(t, "u1", "room-1")

	f.send(t, map[string]string{"type": "subscribe", "event": EventMessageAdded, "key": "room-2"})
	assert.Equal(t, models.CodeForbidden, errorCode(t, f.next(t)))

	f.send(t, map[string]string{"type": "subscribe", "event": EventMessageAdded, "key": "room-1"})
	assert.Equal(t, "subscribed", f.next(t).Type)

	require.Eventually(t, func() bool { return f.sub.wants(EventMessageAdded, "room-1") }, testEventuallyTimeout, testPollInterval)
}

func TestSession_UserEventsRequireOwnKey(t *testing.T) {
	f := newSessionFixture(t, "u1")

	f.send(t, map[string]string{"type": "subscribe", "event": EventFriendRequestReceived, "key": "u2"})
	assert.Equal(t, models.CodeForbidden, errorCode(t, f.next(t)))

	f.send(t, map[string]string{"type": "subscribe", "event": EventFriendRequestReceived, "key": "u1"})
	assert.Equal(t, "subscribed", f.next(t).Type)

	f.send(t, map[string]string{"type": "subscribe", "event": "somethingElse", "key": "u1"})
	assert.Equal(t, models.CodeValidation, errorCode(t, f.next(t)))

	f.send(t, map[string]string{"type": "subscribe", "event": EventFriendRemoved})
	assert.Equal(t, models.CodeValidation, errorCode(t, f.next(t)))
}

func TestSession_JoinRoomForwardsMessageEvents(t *testing.T) {
	f := newSessionFixture(t, "u1", "room-1")

	f.send(t, map[string]string{"type": "join_room", "room_id": "room-1"})
	frame := f.next(t)
	require.Equal(t, "room_joined", frame.Type)
	assert.Equal(t, "room-1", frame.Key)

	for _, name := range RoomMessageEvents {
		assert.True(t, f.sub.wants(name, "room-1"), name)
	}

	f.send(t, map[string]string{"type": "join_room", "room_id": "room-9"})
	assert.Equal(t, models.CodeForbidden, errorCode(t, f.next(t)))

	// Publishing may race the SUBSCRIBE reaching redis, so retry until one lands.
	ev := mustEvent(t, EventMessageStatusUpdated, "room-1", map[string]string{"status": "read"})
	require.Eventually(t, func() bool {
		f.broker.Publish(context.Background(), ev)
		select {
		case raw := <-f.client.Send:
			var got Frame
			return json.Unmarshal(raw, &got) == nil && got.Type == EventMessageStatusUpdated && got.Key == "room-1"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*testEventuallyTimeout, testPollInterval)
}

func TestSession_UnknownAndMalformedFrames(t *testing.T) {
	f := newSessionFixture(t, "u1")

	f.client.IncomingHandler(f.client, []byte("{not json"))
	assert.Equal(t, models.CodeValidation, errorCode(t, f.next(t)))

	f.send(t, map[string]string{"type": "dance"})
	assert.Equal(t, models.CodeValidation, errorCode(t, f.next(t)))

	f.send(t, map[string]string{"type": "ping"})
	assert.Equal(t, "pong", f.next(t).Type)
}

func TestSession_SubscribeSelf(t *testing.T) {
	f := newSessionFixture(t, "u1")

	require.NoError(t, f.session.SubscribeSelf())
	for _, name := range UserEvents {
		assert.True(t, f.sub.wants(name, "u1"), name)
		assert.False(t, f.sub.wants(name, "u2"), name)
	}
}

func TestSession_LostMembershipRevokesRoom(t *testing.T) {
	f := newSessionFixture(t, "u1", "room-1")

	f.send(t, map[string]string{"type": "join_room", "room_id": "room-1"})
	require.Equal(t, "room_joined", f.next(t).Type)

	assert.True(t, f.session.admit(mustEvent(t, EventMessageAdded, "room-1", map[string]string{"content": "hi"})))

	f.leave("room-1")
	assert.False(t, f.session.admit(mustEvent(t, EventMessageAdded, "room-1", map[string]string{"content": "secret"})))
	for _, name := range RoomMessageEvents {
		assert.False(t, f.sub.wants(name, "room-1"), name)
	}
	frame := f.next(t)
	assert.Equal(t, "room_left", frame.Type)
	assert.Equal(t, "room-1", frame.Key)

	// User-keyed events are never gated by room membership.
	assert.True(t, f.session.admit(mustEvent(t, EventFriendRemoved, "u1", map[string]string{"targetUserId": "u1"})))
}

func TestSession_RemovalEventUnsubscribesGroup(t *testing.T) {
	f := newSessionFixture(t, "u1", "group-1", "group-2")

	f.send(t, map[string]string{"type": "join_room", "room_id": "group-1"})
	require.Equal(t, "room_joined", f.next(t).Type)
	f.send(t, map[string]string{"type": "join_room", "room_id": "group-2"})
	require.Equal(t, "room_joined", f.next(t).Type)

	// Removal addressed to someone else changes nothing.
	f.session.afterForward(mustEvent(t, EventRemovedMemberReceived, "u2", map[string]string{"targetUserId": "u2", "groupId": "group-1"}))
	assert.True(t, f.sub.wants(EventMessageAdded, "group-1"))

	f.session.afterForward(mustEvent(t, EventRemovedMemberReceived, "u1", map[string]string{"targetUserId": "u1", "groupId": "group-1"}))
	assert.False(t, f.sub.wants(EventMessageAdded, "group-1"))
	assert.True(t, f.sub.wants(EventMessageAdded, "group-2"))
	assert.Equal(t, "room_left", f.next(t).Type)
}

func TestSession_AuthorizationOutageKeepsSubscription(t *testing.T) {
	f := newSessionFixture(t, "u1", "room-1")
	f.send(t, map[string]string{"type": "join_room", "room_id": "room-1"})
	require.Equal(t, "room_joined", f.next(t).Type)

	f.session.authorize = func(context.Context, string, string) error {
		return models.NewInternalError(errors.New("store unavailable"))
	}
	assert.False(t, f.session.admit(mustEvent(t, EventMessageAdded, "room-1", map[string]string{"content": "hi"})))
	assert.True(t, f.sub.wants(EventMessageAdded, "room-1"))
}
