package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/ashureev/farm-connect/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "farmconnect.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetUser(ctx, "anon_missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil user, got %+v, %v", got, err)
	}

	now := time.Unix(1_750_000_000, 0)
	user := &domain.User{UserID: "anon_1", Username: "anon-1", LastSeenAt: now, CreatedAt: now, UpdatedAt: now}
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	later := now.Add(time.Hour)
	if err := s.UpdateLastSeen(ctx, "anon_1", later); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}

	got, err = s.GetUser(ctx, "anon_1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Username != "anon-1" || !got.LastSeenAt.Equal(later) || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user %+v", got)
	}
}

func TestUsageSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []domain.UsageEvent{
		{UserID: "anon_1", Panel: "fertilizer", Outcome: domain.OutcomeOK, Latency: 1200 * time.Millisecond},
		{UserID: "anon_1", Panel: "fertilizer", Outcome: "decode", Latency: 900 * time.Millisecond},
		{UserID: "anon_1", Panel: "crop-doctor", Outcome: "validation"},
		{UserID: "anon_2", Panel: "fertilizer", Outcome: domain.OutcomeOK},
	}
	for i := range events {
		if err := s.RecordUsage(ctx, &events[i]); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}

	got, err := s.UsageSummary(ctx, "anon_1")
	if err != nil {
		t.Fatalf("UsageSummary failed: %v", err)
	}
	want := []domain.UsageSummary{
		{Panel: "crop-doctor", Total: 1, Failures: 1},
		{Panel: "fertilizer", Total: 2, Failures: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	empty, err := s.UsageSummary(ctx, "anon_nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil summary, got %v, %v", empty, err)
	}
}

func TestConcurrentRecordUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RecordUsage(ctx, &domain.UsageEvent{UserID: "anon_1", Panel: "price-forecast", Outcome: domain.OutcomeOK})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent RecordUsage failed: %v", err)
		}
	}

	got, err := s.UsageSummary(ctx, "anon_1")
	if err != nil || len(got) != 1 || got[0].Total != 20 {
		t.Fatalf("unexpected summary %+v, %v", got, err)
	}
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	old := now.Add(-60 * 24 * time.Hour)

	for _, u := range []*domain.User{
		{UserID: "anon_old", Username: "old", LastSeenAt: old, CreatedAt: old, UpdatedAt: old},
		{UserID: "anon_new", Username: "new", LastSeenAt: now, CreatedAt: now, UpdatedAt: now},
	} {
		if err := s.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
	}
	for _, e := range []*domain.UsageEvent{
		{UserID: "anon_new", Panel: "fertilizer", Outcome: domain.OutcomeOK, CreatedAt: old},
		{UserID: "anon_new", Panel: "fertilizer", Outcome: domain.OutcomeOK, CreatedAt: now},
		{UserID: "anon_old", Panel: "fertilizer", Outcome: domain.OutcomeOK, CreatedAt: now},
	} {
		if err := s.RecordUsage(ctx, e); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}

	Purge(ctx, s, now.Add(-30*24*time.Hour))

	if u, _ := s.GetUser(ctx, "anon_old"); u != nil {
		t.Fatal("inactive user should be purged")
	}
	if u, _ := s.GetUser(ctx, "anon_new"); u == nil {
		t.Fatal("active user should be kept")
	}
	got, _ := s.UsageSummary(ctx, "anon_new")
	if len(got) != 1 || got[0].Total != 1 {
		t.Fatalf("expected one recent event, got %+v", got)
	}
	if got, _ := s.UsageSummary(ctx, "anon_old"); len(got) != 0 {
		t.Fatalf("purged user's usage should be gone, got %+v", got)
	}
}

func TestRetentionWorkerStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := StartRetentionWorker(ctx, s, 24*time.Hour)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention worker did not stop")
	}
}

func TestMemoryStore(t *testing.T) {
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite(:memory:) failed: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
