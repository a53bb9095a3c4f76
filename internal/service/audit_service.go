package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/events"
	"github.com/spec-kit/tutor-bot/internal/observability"
)

// AuditService records domain events in the log and the metrics counters.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		a.dispatcher.Subscribe(eventType, a.count)
	}
	a.dispatcher.Subscribe(events.EventTierChanged, a.handleTierChanged)
	a.dispatcher.Subscribe(events.EventBroadcastSent, a.handleBroadcastSent)
}

func (a *AuditService) count(_ context.Context, event events.Event) error {
	a.metrics.Inc("events_" + string(event.Type))
	return nil
}

func (a *AuditService) handleTierChanged(_ context.Context, event events.Event) error {
	a.logger.Info("TierChanged", zap.String("user_id", event.UserID), zap.Any("payload", event.Payload))
	return nil
}

func (a *AuditService) handleBroadcastSent(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.BroadcastSentPayload)
	if !ok {
		return nil
	}
	a.metrics.Add("broadcast_delivered", int64(payload.Delivered))
	a.metrics.Add("broadcast_failed", int64(payload.Failed))
	a.logger.Info("BroadcastSent",
		zap.String("run_id", payload.RunID),
		zap.String("day", payload.Day),
		zap.Int("recipients", payload.Recipients),
		zap.Int("delivered", payload.Delivered),
		zap.Int("failed", payload.Failed))
	return nil
}
