package domain

import "time"

// User is the ledger record for one chat participant.
type User struct {
	ID           string
	Username     string
	Tier         Tier
	Usage        map[Category]int
	PeriodAnchor time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Used returns the counter for category, zero when never consumed.
func (u *User) Used(category Category) int {
	if u == nil || u.Usage == nil {
		return 0
	}
	return u.Usage[category]
}

// ConsumeResult reports the outcome of a quota check.
type ConsumeResult struct {
	Granted bool
	Tier    Tier
	Used    int
	Limit   int
}

// CategoryUsage is one line of a usage report.
type CategoryUsage struct {
	Category Category
	Used     int
	Limit    int
}

// UsageReport summarizes a user's plan for /status.
type UsageReport struct {
	UserID     string
	Tier       Tier
	Categories []CategoryUsage
	ResetsAt   time.Time
}
