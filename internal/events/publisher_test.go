package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"changewindow-tracker/internal/tracking"
)

func TestStreamPublisher_PublishTransition(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	pub := NewStreamPublisher(client, "changewindow:transitions", zap.NewNop())

	occurred := time.Date(2026, 8, 31, 0, 12, 0, 0, time.UTC)
	err := pub.PublishTransition(context.Background(), TransitionEvent{
		GroupID:    "REDE",
		Seq:        12,
		From:       tracking.StatusNotStartedOnTime,
		To:         tracking.StatusInExecutionOnTime,
		OccurredAt: occurred,
	})
	require.NoError(t, err)

	msgs, err := client.XRange(context.Background(), "changewindow:transitions", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var event TransitionEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &event))
	assert.Equal(t, "REDE", event.GroupID)
	assert.Equal(t, 12, event.Seq)
	assert.Equal(t, tracking.StatusNotStartedOnTime, event.From)
	assert.Equal(t, tracking.StatusInExecutionOnTime, event.To)
	assert.True(t, event.OccurredAt.Equal(occurred))
}
