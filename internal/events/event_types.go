package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/tutor-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserCreated      EventType = "user_created"
	EventTierChanged      EventType = "tier_changed"
	EventPeriodReset      EventType = "period_reset"
	EventQuotaGranted     EventType = "quota_granted"
	EventQuotaDenied      EventType = "quota_denied"
	EventCompletionFailed EventType = "completion_failed"
	EventBroadcastSent    EventType = "broadcast_sent"
)

// AllEventTypes lists every type, for subscribers that want everything.
var AllEventTypes = []EventType{
	EventUserCreated,
	EventTierChanged,
	EventPeriodReset,
	EventQuotaGranted,
	EventQuotaDenied,
	EventCompletionFailed,
	EventBroadcastSent,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, userID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: at,
		Payload:   payload,
	}
}

// TierChangedPayload payload.
type TierChangedPayload struct {
	OldTier domain.Tier `json:"old_tier"`
	NewTier domain.Tier `json:"new_tier"`
}

// QuotaPayload payload for granted and denied consumptions.
type QuotaPayload struct {
	Category domain.Category `json:"category"`
	Tier     domain.Tier     `json:"tier"`
	Used     int             `json:"used"`
	Limit    int             `json:"limit"`
}

// PeriodResetPayload payload.
type PeriodResetPayload struct {
	PreviousAnchor time.Time `json:"previous_anchor"`
	NewAnchor      time.Time `json:"new_anchor"`
}

// CompletionFailedPayload payload.
type CompletionFailedPayload struct {
	Category domain.Category `json:"category"`
	Model    string          `json:"model"`
	Reason   string          `json:"reason"`
}

// BroadcastSentPayload payload.
type BroadcastSentPayload struct {
	RunID      string `json:"run_id"`
	Day        string `json:"day"`
	Recipients int    `json:"recipients"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`
}
