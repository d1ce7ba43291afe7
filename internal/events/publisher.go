// Package events publishes status-transition events to a Redis Stream so
// downstream consumers (dashboards, notifiers) can react without polling the
// database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"changewindow-tracker/internal/tracking"
)

// TransitionEvent is the payload written to the stream whenever an update
// moves an activity across status levels.
type TransitionEvent struct {
	GroupID    string          `json:"group_id"`
	Seq        int             `json:"seq"`
	From       tracking.Status `json:"from"`
	To         tracking.Status `json:"to"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher appends transition events to a Redis Stream.
type Publisher interface {
	PublishTransition(ctx context.Context, event TransitionEvent) error
}

// StreamPublisher is the go-redis backed Publisher.
type StreamPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewStreamPublisher(client *redis.Client, stream string, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, logger: logger}
}

var _ Publisher = (*StreamPublisher)(nil)

func (p *StreamPublisher) PublishTransition(ctx context.Context, event TransitionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transition event: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":      string(payload),
			"timestamp": event.OccurredAt.Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish transition event: %w", err)
	}

	p.logger.Debug("Published transition event",
		zap.String("stream", p.stream),
		zap.String("message_id", id),
		zap.String("group_id", event.GroupID),
		zap.Int("seq", event.Seq),
		zap.String("from", string(event.From)),
		zap.String("to", string(event.To)),
	)
	return nil
}

// NopPublisher drops every event. Used when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishTransition(context.Context, TransitionEvent) error { return nil }

var _ Publisher = NopPublisher{}
