package assistant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/farm-connect/internal/advisor"
	"github.com/ashureev/farm-connect/internal/api"
	"github.com/ashureev/farm-connect/internal/dashboard"
	"github.com/ashureev/farm-connect/internal/identity"
	"github.com/ashureev/farm-connect/internal/mediator"
	"github.com/ashureev/farm-connect/internal/store"
)

// maxMessageBytes bounds a chat request body.
const maxMessageBytes = 64 << 10

func assistantNames() []string {
	return advisor.AssistantNames()
}

func knownAssistant(name string) bool {
	return slices.Contains(assistantNames(), name)
}

// State is the observable state of an open conversation.
type State struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Available  bool               `json:"available"`
	Error      *mediator.Error    `json:"error,omitempty"`
	Pending    bool               `json:"pending"`
	Transcript []mediator.Message `json:"transcript"`
}

func stateOf(a *dashboard.Assistant) State {
	unavailable := a.Unavailable()
	return State{
		ID:         a.ID,
		Name:       a.Name,
		Available:  unavailable == nil,
		Error:      unavailable,
		Pending:    a.Pending(),
		Transcript: a.Transcript(),
	}
}

// ChatRequest is the body of a send.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the appended reply and the resulting state.
type ChatResponse struct {
	Reply mediator.Message `json:"reply"`
	State State            `json:"state"`
}

// Handler serves the assistant routes.
type Handler struct {
	registry       *dashboard.Registry
	repo           store.Repository
	broker         *Broker
	conns          *ConnManager
	limit          func(http.Handler) http.Handler
	allow          func(key string) bool
	allowedOrigins []string
	isDev          bool
	logger         *slog.Logger
}

// Options carries the handler's dependencies.
type Options struct {
	Registry *dashboard.Registry
	Repo     store.Repository
	Broker   *Broker
	Conns    *ConnManager
	// RateLimit wraps the HTTP send route; Allow gates websocket sends.
	RateLimit      func(http.Handler) http.Handler
	Allow          func(key string) bool
	AllowedOrigins []string
	IsDev          bool
	Logger         *slog.Logger
}

// NewHandler creates an assistant handler.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		registry:       opts.Registry,
		repo:           opts.Repo,
		broker:         opts.Broker,
		conns:          opts.Conns,
		limit:          opts.RateLimit,
		allow:          opts.Allow,
		allowedOrigins: opts.AllowedOrigins,
		isDev:          opts.IsDev,
		logger:         opts.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.broker == nil {
		h.broker = NewBroker(h.logger)
	}
	if h.conns == nil {
		h.conns = NewConnManager()
	}
	if h.limit == nil {
		h.limit = func(next http.Handler) http.Handler { return next }
	}
	if h.allow == nil {
		h.allow = func(string) bool { return true }
	}
	return h
}

// RegisterRoutes registers assistant routes. They expect the identity
// middleware to have run.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/assistants/{assistant}", h.Open)
	r.Get("/api/assistants/{assistant}", h.Get)
	r.Delete("/api/assistants/{assistant}", h.Close)
	r.With(h.limit).Post("/api/assistants/{assistant}/messages", h.Send)
	r.Get("/api/assistants/{assistant}/stream", h.Stream)
	r.Get("/ws/assistants/{assistant}", h.ServeWebSocket)
}

func (h *Handler) dashboardFor(r *http.Request) *dashboard.Dashboard {
	ctx := r.Context()
	return h.registry.Get(identity.UserIDFromContext(ctx), identity.SessionIDFromContext(ctx))
}

// Stream serves the broker's event stream and keeps the tab's dashboard
// attached while the stream is open.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if identity.UserIDFromContext(r.Context()) != "" && knownAssistant(chi.URLParam(r, "assistant")) {
		detach := h.dashboardFor(r).Attach()
		defer detach()
	}
	h.broker.HandleStream(w, r)
}

// Open initializes the conversation when none is open and returns its state.
// An unavailable conversation still opens; its state carries the error.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	a, ok := h.dashboardFor(r).OpenAssistant(r.Context(), chi.URLParam(r, "assistant"))
	if !ok {
		api.Error(w, http.StatusNotFound, api.KindNotFound, "unknown assistant")
		return
	}
	api.JSON(w, http.StatusOK, stateOf(a))
}

// Get returns the open conversation's state.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "assistant")
	if !knownAssistant(name) {
		api.Error(w, http.StatusNotFound, api.KindNotFound, "unknown assistant")
		return
	}
	a, ok := h.dashboardFor(r).Assistant(name)
	if !ok {
		api.Error(w, http.StatusNotFound, api.KindNotFound, "conversation not open")
		return
	}
	api.JSON(w, http.StatusOK, stateOf(a))
}

// Close discards the conversation. Reopening starts from the greeting.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "assistant")
	if !knownAssistant(name) {
		api.Error(w, http.StatusNotFound, api.KindNotFound, "unknown assistant")
		return
	}
	closed, err := h.dashboardFor(r).CloseAssistant(name)
	if err != nil {
		api.MediatorError(w, err, nil)
		return
	}
	api.JSON(w, http.StatusOK, map[string]bool{"closed": closed})
}

// Send appends the user's message and the assistant's reply. A failed
// remote call still answers 200 with the placeholder reply appended.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, api.KindBadRequest, "message too large")
			return
		}
		api.Error(w, http.StatusBadRequest, api.KindBadRequest, "invalid request body")
		return
	}

	a, ok := h.dashboardFor(r).OpenAssistant(r.Context(), chi.URLParam(r, "assistant"))
	if !ok {
		api.Error(w, http.StatusNotFound, api.KindNotFound, "unknown assistant")
		return
	}

	reply, err := h.send(r, a, req.Message)
	if err != nil {
		api.MediatorError(w, err, nil)
		return
	}
	api.JSON(w, http.StatusOK, ChatResponse{Reply: reply, State: stateOf(a)})
}

// send performs one turn and records its usage.
func (h *Handler) send(r *http.Request, a *dashboard.Assistant, text string) (mediator.Message, error) {
	userID := identity.UserIDFromContext(r.Context())
	start := time.Now()
	reply, err := a.Send(r.Context(), text)
	if errors.Is(err, mediator.ErrBusy) {
		return reply, err
	}
	if h.repo != nil {
		api.RecordUsage(h.repo, h.logger, userID, "assistant:"+a.Name, mediator.KindOf(err), time.Since(start))
	}
	return reply, err
}

// MessageHook returns a dashboard OnMessage hook that publishes every
// appended message to the broker and the conversation log.
func MessageHook(b *Broker, convLog ConversationLogger) func(dashboard.Key, *dashboard.Assistant, mediator.Message) {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	return func(key dashboard.Key, a *dashboard.Assistant, m mediator.Message) {
		b.Publish(Event{
			UserID:         key.UserID,
			SessionID:      key.SessionID,
			Assistant:      a.Name,
			ConversationID: a.ID,
			Message:        m,
		})

		direction, eventType := "inbound", "assistant_message"
		if m.Role == mediator.RoleUser {
			direction, eventType = "outbound", "user_message"
		}
		convLog.Log(ConversationLogEvent{
			Timestamp:  m.At.UTC().Format(time.RFC3339Nano),
			UserID:     key.UserID,
			SessionID:  key.SessionID,
			Channel:    "assistant",
			Direction:  direction,
			EventType:  eventType,
			ContentRaw: m.Text,
			Meta: map[string]any{
				"assistant":       a.Name,
				"conversation_id": a.ID,
			},
		})
	}
}

// EvictHook returns a dashboard OnEvict hook that drops the tab's replay
// buffer and closes its sockets.
func EvictHook(b *Broker, conns *ConnManager) func(dashboard.Key) {
	return func(key dashboard.Key) {
		b.Prune(key.UserID, key.SessionID)
		conns.CloseSession(key.UserID, key.SessionID)
	}
}
