package notifications

import (
	"encoding/json"
	"time"
)

// Event names. Clients subscribe to these by name plus correlation key.
const (
	EventMessageAdded         = "messageAdded"
	EventMessageDeleted       = "messageDeleted"
	EventMessageStatusUpdated = "messageStatusUpdated"

	EventFriendRemoved         = "friendRemoved"
	EventFriendRequestReceived = "friendRequestReceived"
	EventCancelRequestReceived = "cancelRequestReceived"
	EventAcceptRequestReceived = "acceptRequestReceived"
	EventRejectRequestReceived = "rejectRequestReceived"

	EventAddedMemberReceived     = "addedMemberReceived"
	EventRemovedMemberReceived   = "removedMemberReceived"
	EventAddedMemRosterUpdated   = "addedMemRosterUpdated"
	EventRemovedMemRosterUpdated = "removedMemRosterUpdated"
	EventAdminStatusChanged      = "adminStatusChanged"
)

// KeyKind says what an event's correlation key identifies.
type KeyKind int

const (
	KeyUnknown KeyKind = iota
	// KeyRoom events are keyed by a room or group id.
	KeyRoom
	// KeyUser events are keyed by the id of the user they are addressed to.
	KeyUser
)

var eventKeyKinds = map[string]KeyKind{
	EventMessageAdded:            KeyRoom,
	EventMessageDeleted:          KeyRoom,
	EventMessageStatusUpdated:    KeyRoom,
	EventAddedMemRosterUpdated:   KeyRoom,
	EventRemovedMemRosterUpdated: KeyRoom,
	EventAdminStatusChanged:      KeyRoom,
	EventFriendRemoved:           KeyUser,
	EventFriendRequestReceived:   KeyUser,
	EventCancelRequestReceived:   KeyUser,
	EventAcceptRequestReceived:   KeyUser,
	EventRejectRequestReceived:   KeyUser,
	EventAddedMemberReceived:     KeyUser,
	EventRemovedMemberReceived:   KeyUser,
}

// KindOf returns the key kind of a known event name, or KeyUnknown.
func KindOf(name string) KeyKind {
	return eventKeyKinds[name]
}

// RoomMessageEvents are the events a join_room request subscribes to.
var RoomMessageEvents = []string{EventMessageAdded, EventMessageDeleted, EventMessageStatusUpdated}

// RoomEvents are all events keyed by a room id.
var RoomEvents = []string{
	EventMessageAdded,
	EventMessageDeleted,
	EventMessageStatusUpdated,
	EventAddedMemRosterUpdated,
	EventRemovedMemRosterUpdated,
	EventAdminStatusChanged,
}

// UserEvents are the events addressed to a user. A session subscribes to all
// of them for its own user on connect.
var UserEvents = []string{
	EventFriendRemoved,
	EventFriendRequestReceived,
	EventCancelRequestReceived,
	EventAcceptRequestReceived,
	EventRejectRequestReceived,
	EventAddedMemberReceived,
	EventRemovedMemberReceived,
}

// Event is a domain event after a successful mutation. Key is the
// correlation key subscribers filter on.
type Event struct {
	Name        string          `json:"name"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

// NewEvent marshals payload into an Event. Payloads are plain structs or maps
// so marshalling only fails on programmer error.
func NewEvent(name, key string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Key: key, Payload: raw}, nil
}

// Frame is what the gateway writes to a websocket client for each event.
type Frame struct {
	Type    string          `json:"type"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
