package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionInterval = time.Hour

// StartRetentionWorker runs a background goroutine that periodically purges
// usage events and users older than retention. The returned channel is closed
// when the worker exits after ctx is canceled.
func StartRetentionWorker(ctx context.Context, repo Repository, retention time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if retention <= 0 {
		close(done)
		return done
	}

	ticker := time.NewTicker(retentionInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", retentionInterval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				Purge(ctx, repo, time.Now().Add(-retention))
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// Purge removes usage events and users older than cutoff.
func Purge(ctx context.Context, repo Repository, cutoff time.Time) {
	if n, err := repo.DeleteUsageBefore(ctx, cutoff); err != nil {
		slog.Error("Retention worker failed to purge usage events", "error", err)
	} else if n > 0 {
		slog.Info("Retention worker purged usage events", "count", n)
	}

	if n, err := repo.DeleteInactiveUsers(ctx, cutoff); err != nil {
		slog.Error("Retention worker failed to purge inactive users", "error", err)
	} else if n > 0 {
		slog.Info("Retention worker purged inactive users", "count", n)
	}
}
