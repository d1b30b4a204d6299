package service

import (
	"context"
	"log/slog"

	"chatgraph/internal/notifications"
)

// publish emits an event after a committed mutation. It never fails the
// caller.
func publish(ctx context.Context, events notifications.Publisher, name, key string, payload any) {
	if events == nil {
		return
	}
	ev, err := notifications.NewEvent(name, key, payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode event", slog.String("event", name), slog.String("error", err.Error()))
		return
	}
	events.Publish(ctx, ev)
}

type groupPayload struct {
	GroupID string `json:"groupId"`
}

type memberPayload struct {
	TargetUserID string `json:"targetUserId"`
	GroupID      string `json:"groupId"`
}

type friendRemovedPayload struct {
	TargetUserID  string `json:"targetUserId"`
	RemovedUserID string `json:"removedUserId"`
}

type friendRequestPayload struct {
	ReceiverID string `json:"receiverId"`
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Name       string `json:"name"`
}

type requestReceiverPayload struct {
	ReceiverID string `json:"receiverId"`
}

type requestSenderPayload struct {
	SenderID string `json:"senderId"`
}
