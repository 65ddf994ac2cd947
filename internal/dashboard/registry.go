package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/farm-connect/internal/advisor"
	"github.com/ashureev/farm-connect/internal/mediator"
)

// Registry creates dashboards lazily and evicts idle ones.
type Registry struct {
	adv         *advisor.Advisor
	hooks       Hooks
	opts        []mediator.Option
	logger      *slog.Logger
	now         func() time.Time
	chatTimeout time.Duration

	mu         sync.Mutex
	dashboards map[Key]*Dashboard
}

// Option configures a Registry.
type Option func(*Registry)

// WithHooks installs event hooks.
func WithHooks(h Hooks) Option {
	return func(r *Registry) { r.hooks = h }
}

// WithMediatorOptions applies opts to every panel mediator created.
func WithMediatorOptions(opts ...mediator.Option) Option {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

// WithConversationTimeout bounds each assistant turn. Zero means no bound.
func WithConversationTimeout(d time.Duration) Option {
	return func(r *Registry) { r.chatTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns an empty registry.
func NewRegistry(adv *advisor.Advisor, opts ...Option) *Registry {
	r := &Registry{
		adv:        adv,
		logger:     slog.Default(),
		now:        time.Now,
		dashboards: make(map[Key]*Dashboard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the dashboard for the user and session, creating it on first
// use, and marks it as recently used.
func (r *Registry) Get(userID, sessionID string) *Dashboard {
	key := Key{UserID: userID, SessionID: sessionID}

	r.mu.Lock()
	d, ok := r.dashboards[key]
	if !ok {
		d = newDashboard(key, r)
		r.dashboards[key] = d
	}
	r.mu.Unlock()

	if ok {
		d.Touch()
	} else {
		r.logger.Debug("Dashboard created", "user_id", userID, "session_id", sessionID)
	}
	return d
}

// Lookup returns an existing dashboard without creating one.
func (r *Registry) Lookup(userID, sessionID string) (*Dashboard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dashboards[Key{UserID: userID, SessionID: sessionID}]
	return d, ok
}

// Len returns the number of live dashboards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dashboards)
}

// Sweep removes dashboards idle for longer than ttl. Dashboards with a call in
// flight or an attached client are kept. It returns the evicted keys.
func (r *Registry) Sweep(ttl time.Duration) []Key {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var evicted []Key
	for key, d := range r.dashboards {
		if d.LastSeen().After(cutoff) || d.Attached() || d.Busy() {
			continue
		}
		delete(r.dashboards, key)
		evicted = append(evicted, key)
	}
	r.mu.Unlock()

	for _, key := range evicted {
		if r.hooks.OnEvict != nil {
			r.hooks.OnEvict(key)
		}
	}
	return evicted
}

// DefaultSweepInterval is used when StartSweeper is given a zero interval.
const DefaultSweepInterval = time.Minute

// StartSweeper runs a background goroutine that periodically evicts idle
// dashboards until ctx is canceled. The returned channel is closed on exit.
func StartSweeper(ctx context.Context, r *Registry, ttl, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		r.logger.Info("Dashboard sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if evicted := r.Sweep(ttl); len(evicted) > 0 {
					r.logger.Info("Dashboard sweeper evicted idle dashboards", "count", len(evicted))
				}
			case <-ctx.Done():
				r.logger.Info("Dashboard sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}
