// Package mediator turns form input into exactly one remote request and keeps
// the observable state of that request (idle, pending, resolved).
package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultFailureMessage is shown when a panel does not declare its own.
const DefaultFailureMessage = "Unable to obtain a result. Please try again."

// State is the lifecycle position of a mediator.
type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "pending"
	StateResolved State = "resolved"
)

// Panel declares what a mediator submits and how.
type Panel[R any] struct {
	Name           string
	Title          string
	Fields         []FieldSpec
	FailureMessage string
	// Unavailable, when set, rejects every submission before validation.
	Unavailable *Error
	// Invoke performs the single remote call for an already validated request.
	Invoke func(ctx context.Context, fields Fields) (R, error)
}

// Snapshot is a copy of a mediator's observable state.
type Snapshot[R any] struct {
	State     State     `json:"state"`
	Result    *R        `json:"result,omitempty"`
	Error     *Error    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Outcome describes a finished submission for observers.
type Outcome struct {
	Panel    string
	Kind     Kind // empty on success
	Duration time.Duration
}

// Option configures a Mediator.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	timeout time.Duration
	observe func(Outcome)
}

// WithLogger sets the logger used for diagnostics of failed calls.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTimeout bounds the remote call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithObserver registers a callback invoked after every resolved submission.
func WithObserver(fn func(Outcome)) Option {
	return func(o *options) { o.observe = fn }
}

// Mediator is the state container for one panel instance.
type Mediator[R any] struct {
	panel Panel[R]
	opts  options

	mu        sync.Mutex
	state     State
	result    *R
	err       *Error
	updatedAt time.Time
}

// New creates an idle mediator for panel.
func New[R any](panel Panel[R], opts ...Option) *Mediator[R] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if panel.FailureMessage == "" {
		panel.FailureMessage = DefaultFailureMessage
	}
	return &Mediator[R]{panel: panel, opts: o, state: StateIdle}
}

// Name returns the panel name.
func (m *Mediator[R]) Name() string {
	return m.panel.Name
}

// Title returns the panel's display title.
func (m *Mediator[R]) Title() string {
	return m.panel.Title
}

// Fields returns the declared form fields.
func (m *Mediator[R]) Fields() []FieldSpec {
	return m.panel.Fields
}

// Available reports whether the panel accepts submissions at all.
func (m *Mediator[R]) Available() bool {
	return m.panel.Unavailable == nil
}

// Submit validates fields and, when valid, performs the panel's remote call.
// It returns ErrBusy without side effects while another submission is pending.
func (m *Mediator[R]) Submit(ctx context.Context, fields Fields) (R, error) {
	var zero R
	if m.panel.Unavailable != nil {
		return zero, m.panel.Unavailable
	}

	m.mu.Lock()
	if m.state == StatePending {
		m.mu.Unlock()
		return zero, ErrBusy
	}
	if verr := Validate(m.panel.Fields, fields); verr != nil {
		m.resolveLocked(nil, verr)
		m.mu.Unlock()
		m.notify(KindValidation, 0)
		return zero, verr
	}
	m.state = StatePending
	m.result = nil
	m.err = nil
	m.updatedAt = time.Now()
	m.mu.Unlock()

	submitted := fields.clone()
	callCtx := context.WithoutCancel(ctx)
	if m.opts.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, m.opts.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := m.invoke(callCtx, submitted)
	elapsed := time.Since(start)

	if err != nil {
		merr := m.classify(err)
		m.opts.logger.Warn("Panel request failed",
			"panel", m.panel.Name,
			"kind", merr.Kind,
			"duration", elapsed,
			"error", err,
		)
		m.mu.Lock()
		m.resolveLocked(nil, merr)
		m.mu.Unlock()
		m.notify(merr.Kind, elapsed)
		return zero, merr
	}

	m.mu.Lock()
	m.resolveLocked(&result, nil)
	m.mu.Unlock()
	m.notify("", elapsed)
	return result, nil
}

func (m *Mediator[R]) invoke(ctx context.Context, fields Fields) (result R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panel %s panicked: %v", m.panel.Name, p)
		}
	}()
	if m.panel.Invoke == nil {
		return result, fmt.Errorf("panel %s has no invoke function", m.panel.Name)
	}
	return m.panel.Invoke(ctx, fields)
}

func (m *Mediator[R]) resolveLocked(result *R, err *Error) {
	m.state = StateResolved
	m.result = result
	m.err = err
	m.updatedAt = time.Now()
}

func (m *Mediator[R]) classify(err error) *Error {
	var merr *Error
	if errors.As(err, &merr) {
		switch merr.Kind {
		case KindValidation, KindUnavailable:
			return merr
		}
		return &Error{Kind: merr.Kind, Message: m.panel.FailureMessage, cause: err}
	}
	return &Error{Kind: KindRemote, Message: m.panel.FailureMessage, cause: err}
}

func (m *Mediator[R]) notify(kind Kind, d time.Duration) {
	if m.opts.observe != nil {
		m.opts.observe(Outcome{Panel: m.panel.Name, Kind: kind, Duration: d})
	}
}

// Snapshot returns the current observable state.
func (m *Mediator[R]) Snapshot() Snapshot[R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot[R]{State: m.state, Error: m.err, UpdatedAt: m.updatedAt}
	if m.result != nil {
		r := *m.result
		snap.Result = &r
	}
	return snap
}

// Reset clears a resolved mediator back to idle. It reports false while pending.
func (m *Mediator[R]) Reset() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatePending {
		return false
	}
	m.state = StateIdle
	m.result = nil
	m.err = nil
	m.updatedAt = time.Now()
	return true
}

// DecodeError marks err as a reply that did not match the expected shape.
func DecodeError(err error) *Error {
	return &Error{Kind: KindDecode, Message: "response did not match the expected format", cause: err}
}

// View is a type-erased Snapshot tagged with its panel name.
type View struct {
	Panel     string    `json:"panel"`
	State     State     `json:"state"`
	Result    any       `json:"result,omitempty"`
	Error     *Error    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Runner is a Mediator with its result type erased, so panels of different
// result types can be held in one registry.
type Runner interface {
	Name() string
	Title() string
	Fields() []FieldSpec
	Available() bool
	Run(ctx context.Context, fields Fields) (View, error)
	View() View
	Reset() bool
}

var _ Runner = (*Mediator[string])(nil)

// Run submits fields and returns the resulting view alongside Submit's error.
func (m *Mediator[R]) Run(ctx context.Context, fields Fields) (View, error) {
	_, err := m.Submit(ctx, fields)
	return m.View(), err
}

// View returns the current snapshot with its result type erased.
func (m *Mediator[R]) View() View {
	snap := m.Snapshot()
	v := View{Panel: m.panel.Name, State: snap.State, Error: snap.Error, UpdatedAt: snap.UpdatedAt}
	if snap.Result != nil {
		v.Result = *snap.Result
	}
	return v
}
