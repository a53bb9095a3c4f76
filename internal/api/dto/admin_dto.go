package dto

import "time"

// TierUpdateRequest payload for PUT /admin/users/:id/tier.
type TierUpdateRequest struct {
	Tier string `json:"tier"`
}

// CategoryUsageResponse is one usage line.
type CategoryUsageResponse struct {
	Category string `json:"category"`
	Used     int    `json:"used"`
	// Limit is -1 when unlimited.
	Limit int `json:"limit"`
}

// UserStatusResponse describes a ledger record.
type UserStatusResponse struct {
	UserID       string                  `json:"user_id"`
	Username     string                  `json:"username,omitempty"`
	Tier         string                  `json:"tier"`
	Model        string                  `json:"model"`
	PeriodAnchor time.Time               `json:"period_anchor"`
	ResetsAt     *time.Time              `json:"resets_at,omitempty"`
	Usage        []CategoryUsageResponse `json:"usage"`
	CreatedAt    time.Time               `json:"created_at"`
}
