package events

import (
	"context"
	"time"
)

// hubSendTimeout bounds how long a slow hub can hold up the sender.
const hubSendTimeout = 250 * time.Millisecond

// Broadcaster pushes messages to connected clients.
type Broadcaster interface {
	Send(ctx context.Context, msg []byte) error
}

// HubSink broadcasts every message regardless of topic.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink wraps a broadcaster.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Send(ctx context.Context, _, _ string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, hubSendTimeout)
	defer cancel()
	return s.hub.Send(ctx, payload)
}
