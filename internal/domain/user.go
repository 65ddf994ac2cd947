// Package domain contains core domain types for the Farm Connect service.
package domain

import (
	"time"
)

// User is an anonymous dashboard visitor identified by cookie.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdleFor returns how long the user has been inactive.
func (u *User) IdleFor(now time.Time) time.Duration {
	if u.LastSeenAt.IsZero() || now.Before(u.LastSeenAt) {
		return 0
	}
	return now.Sub(u.LastSeenAt)
}

// UsageEvent records the outcome of one panel submission or assistant turn.
// It never carries fields, results or transcript text.
type UsageEvent struct {
	UserID    string        `json:"user_id"`
	Panel     string        `json:"panel"`
	Outcome   string        `json:"outcome"`
	Latency   time.Duration `json:"latency"`
	CreatedAt time.Time     `json:"created_at"`
}

// OutcomeOK is the outcome recorded for successful calls.
const OutcomeOK = "ok"

// UsageSummary aggregates a user's usage events per panel.
type UsageSummary struct {
	Panel    string `json:"panel"`
	Total    int    `json:"total"`
	Failures int    `json:"failures"`
}
