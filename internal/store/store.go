// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/farm-connect/internal/domain"
)

// Repository persists anonymous users and their usage events. Submitted
// fields, results and transcripts are never stored.
type Repository interface {
	// GetUser retrieves a user by ID. It returns nil, nil when the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// RecordUsage stores one usage event.
	RecordUsage(ctx context.Context, event *domain.UsageEvent) error

	// UsageSummary aggregates a user's usage events per panel, ordered by panel.
	UsageSummary(ctx context.Context, userID string) ([]domain.UsageSummary, error)

	// DeleteUsageBefore removes usage events created before cutoff.
	DeleteUsageBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteInactiveUsers removes users not seen since cutoff, with their usage.
	DeleteInactiveUsers(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
