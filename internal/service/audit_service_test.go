package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/internal/events"
	"github.com/spec-kit/tutor-bot/internal/observability"
)

func TestAuditServiceCountsEvents(t *testing.T) {
	ctx := context.Background()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	NewAuditService(dispatcher, zap.NewNop(), metrics).RegisterHandlers()

	quota := newTestQuota(t, newFakeClock(), dispatcher)
	for i := 0; i < 6; i++ {
		_, err := quota.TryConsume(ctx, "1", domain.CategoryAI)
		require.NoError(t, err)
	}
	require.NoError(t, dispatcher.Publish(ctx, events.New(events.EventBroadcastSent, "", time.Now(), events.BroadcastSentPayload{
		Recipients: 3, Delivered: 2, Failed: 1,
	})))

	assert.Equal(t, int64(1), metrics.Counter("events_user_created"))
	assert.Equal(t, int64(5), metrics.Counter("events_quota_granted"))
	assert.Equal(t, int64(1), metrics.Counter("events_quota_denied"))
	assert.Equal(t, int64(1), metrics.Counter("events_broadcast_sent"))
	assert.Equal(t, int64(2), metrics.Counter("broadcast_delivered"))
	assert.Equal(t, int64(1), metrics.Counter("broadcast_failed"))
}
