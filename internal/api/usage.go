package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/farm-connect/internal/dashboard"
	"github.com/ashureev/farm-connect/internal/domain"
	"github.com/ashureev/farm-connect/internal/mediator"
	"github.com/ashureev/farm-connect/internal/store"
)

const usageWriteTimeout = 5 * time.Second

// UsageRecorder returns a dashboard OnOutcome hook that stores one usage
// event per resolved submission. Write failures are logged and dropped.
func UsageRecorder(repo store.Repository, logger *slog.Logger) func(dashboard.Key, mediator.Outcome) {
	return func(key dashboard.Key, o mediator.Outcome) {
		RecordUsage(repo, logger, key.UserID, o.Panel, o.Kind, o.Duration)
	}
}

// RecordUsage stores a single usage event for userID.
func RecordUsage(repo store.Repository, logger *slog.Logger, userID, panel string, kind mediator.Kind, d time.Duration) {
	outcome := domain.OutcomeOK
	if kind != "" {
		outcome = string(kind)
	}
	ctx, cancel := context.WithTimeout(context.Background(), usageWriteTimeout)
	defer cancel()

	err := repo.RecordUsage(ctx, &domain.UsageEvent{
		UserID:    userID,
		Panel:     panel,
		Outcome:   outcome,
		Latency:   d,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to record usage", "user_id", userID, "panel", panel, "error", err)
	}
}
