// Package dashboard keeps one dashboard per browser tab: the panel mediators
// and open assistant conversations of an anonymous user's session.
package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/farm-connect/internal/advisor"
	"github.com/ashureev/farm-connect/internal/mediator"
)

// Key identifies a dashboard.
type Key struct {
	UserID    string
	SessionID string
}

// Hooks receive events from every dashboard of a registry. They run
// synchronously and must not call back into the dashboard that fired them.
type Hooks struct {
	// OnOutcome is called after every resolved panel submission.
	OnOutcome func(key Key, o mediator.Outcome)
	// OnMessage is called for every message appended to a conversation.
	OnMessage func(key Key, a *Assistant, m mediator.Message)
	// OnEvict is called after a dashboard has been removed by the sweeper.
	OnEvict func(key Key)
}

// Assistant is an open conversation with its identifier.
type Assistant struct {
	ID   string
	Name string
	*mediator.Conversation
}

// Dashboard holds the state of one tab.
type Dashboard struct {
	key         Key
	order       []string
	panels      map[string]mediator.Runner
	adv         *advisor.Advisor
	hooks       Hooks
	logger      *slog.Logger
	clock       func() time.Time
	created     time.Time
	chatTimeout time.Duration

	mu         sync.Mutex
	assistants map[string]*Assistant
	lastSeen   time.Time
	attached   int
}

func newDashboard(key Key, r *Registry) *Dashboard {
	now := r.now()
	d := &Dashboard{
		key:         key,
		panels:      make(map[string]mediator.Runner),
		adv:         r.adv,
		hooks:       r.hooks,
		logger:      r.logger,
		clock:       r.now,
		created:     now,
		chatTimeout: r.chatTimeout,
		assistants:  make(map[string]*Assistant),
		lastSeen:    now,
	}

	panelOpts := append([]mediator.Option{mediator.WithLogger(r.logger)}, r.opts...)
	if onOutcome := r.hooks.OnOutcome; onOutcome != nil {
		panelOpts = append(panelOpts, mediator.WithObserver(func(o mediator.Outcome) {
			onOutcome(key, o)
		}))
	}
	for _, p := range r.adv.NewPanels(panelOpts...) {
		d.order = append(d.order, p.Name())
		d.panels[p.Name()] = p
	}
	return d
}

// Key returns the dashboard's key.
func (d *Dashboard) Key() Key {
	return d.key
}

// Panel returns the mediator for name.
func (d *Dashboard) Panel(name string) (mediator.Runner, bool) {
	r, ok := d.panels[name]
	return r, ok
}

// Panels returns every panel mediator in display order.
func (d *Dashboard) Panels() []mediator.Runner {
	out := make([]mediator.Runner, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.panels[name])
	}
	return out
}

// OpenAssistant returns the open conversation for name, initializing one when
// none is open. ok is false for unknown assistant names.
func (d *Dashboard) OpenAssistant(ctx context.Context, name string) (a *Assistant, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, found := d.assistants[name]; found {
		return existing, true
	}

	cfg, open, found := d.adv.Assistant(name, d.logger)
	if !found {
		return nil, false
	}
	cfg.Timeout = d.chatTimeout
	a = &Assistant{ID: uuid.NewString(), Name: name}
	if d.hooks.OnMessage != nil {
		key := d.key
		cfg.OnMessage = func(m mediator.Message) { d.hooks.OnMessage(key, a, m) }
	}
	a.Conversation = mediator.NewConversation(ctx, open, cfg)
	d.assistants[name] = a

	d.logger.Info("Assistant opened",
		"user_id", d.key.UserID,
		"session_id", d.key.SessionID,
		"assistant", name,
		"conversation_id", a.ID,
		"available", a.Unavailable() == nil,
	)
	return a, true
}

// Assistant returns the open conversation for name, if any.
func (d *Dashboard) Assistant(name string) (*Assistant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.assistants[name]
	return a, ok
}

// CloseAssistant discards the conversation for name. It refuses while a send
// is pending and reports whether a conversation was discarded.
func (d *Dashboard) CloseAssistant(name string) (closed bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.assistants[name]
	if !ok {
		return false, nil
	}
	if a.Pending() {
		return false, mediator.ErrBusy
	}
	delete(d.assistants, name)
	return true, nil
}

// Busy reports whether any panel or conversation has a call in flight.
func (d *Dashboard) Busy() bool {
	for _, r := range d.panels {
		if r.View().State == mediator.StatePending {
			return true
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.assistants {
		if a.Pending() {
			return true
		}
	}
	return false
}

func (d *Dashboard) touch(now time.Time) {
	d.mu.Lock()
	d.lastSeen = now
	d.mu.Unlock()
}

// Touch marks the dashboard as used now.
func (d *Dashboard) Touch() {
	d.touch(d.clock())
}

// Attach records a long-lived client (a websocket or an event stream) of the
// dashboard. Attached dashboards are never swept. The returned detach func
// marks the dashboard used and is safe to call more than once.
func (d *Dashboard) Attach() (detach func()) {
	d.mu.Lock()
	d.attached++
	d.lastSeen = d.clock()
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.attached--
			d.lastSeen = d.clock()
			d.mu.Unlock()
		})
	}
}

// Attached reports whether any long-lived client is connected.
func (d *Dashboard) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached > 0
}

// LastSeen returns when the dashboard was last used.
func (d *Dashboard) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}
