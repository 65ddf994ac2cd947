// Package api provides HTTP handlers for the Farm Connect API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/farm-connect/internal/advisor"
	"github.com/ashureev/farm-connect/internal/dashboard"
	"github.com/ashureev/farm-connect/internal/identity"
	"github.com/ashureev/farm-connect/internal/mediator"
	"github.com/ashureev/farm-connect/internal/store"
)

// These extend the mediator kinds on the wire.
const (
	KindBusy         = "busy"
	KindBadRequest   = "bad_request"
	KindUnauthorized = "unauthorized"
	KindNotFound     = "not_found"
	KindInternal     = "internal"
)

// Handler provides common handler utilities.
type Handler struct {
	repo           store.Repository
	registry       *dashboard.Registry
	adv            *advisor.Advisor
	model          string
	maxUploadBytes int64
	limit          func(http.Handler) http.Handler
	logger         *slog.Logger
}

// Options carries the handler's dependencies.
type Options struct {
	Repo           store.Repository
	Registry       *dashboard.Registry
	Advisor        *advisor.Advisor
	Model          string
	MaxUploadBytes int64
	// RateLimit wraps routes that trigger a remote call. Nil disables limiting.
	RateLimit func(http.Handler) http.Handler
	Logger    *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		repo:           opts.Repo,
		registry:       opts.Registry,
		adv:            opts.Advisor,
		model:          opts.Model,
		maxUploadBytes: opts.MaxUploadBytes,
		limit:          opts.RateLimit,
		logger:         opts.Logger,
	}
	if h.limit == nil {
		h.limit = func(next http.Handler) http.Handler { return next }
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 10 << 20
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string         `json:"error"`
	Kind  string         `json:"kind"`
	Field string         `json:"field,omitempty"`
	View  *mediator.View `json:"view,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, kind, message string) {
	JSON(w, status, ErrorBody{Error: message, Kind: kind})
}

// StatusFor maps a mediator error to an HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, mediator.ErrBusy) {
		return http.StatusConflict
	}
	switch mediator.KindOf(err) {
	case mediator.KindValidation:
		return http.StatusBadRequest
	case mediator.KindUnavailable:
		return http.StatusServiceUnavailable
	case mediator.KindRemote, mediator.KindDecode:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// MediatorError writes err with its mapped status. Only the user-facing
// message of a mediator error reaches the client.
func MediatorError(w http.ResponseWriter, err error, view *mediator.View) {
	body := ErrorBody{View: view}
	var merr *mediator.Error
	switch {
	case errors.Is(err, mediator.ErrBusy):
		body.Kind = KindBusy
		body.Error = "A request is already in progress. Please wait for it to finish."
	case errors.As(err, &merr):
		body.Kind = string(merr.Kind)
		body.Error = merr.Message
		body.Field = merr.Field
	default:
		body.Kind = KindInternal
		body.Error = "internal error"
	}
	JSON(w, StatusFor(err), body)
}

// dashboardFor returns the caller's dashboard, creating it on first use.
func (h *Handler) dashboardFor(r *http.Request) *dashboard.Dashboard {
	ctx := r.Context()
	return h.registry.Get(identity.UserIDFromContext(ctx), identity.SessionIDFromContext(ctx))
}
