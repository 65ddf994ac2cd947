package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/farm-connect/internal/api"
	"github.com/ashureev/farm-connect/internal/dashboard"
	"github.com/ashureev/farm-connect/internal/identity"
	"github.com/ashureev/farm-connect/internal/mediator"
)

const wsWriteTimeout = 10 * time.Second

// wsMessage is a client frame. A frame that is not JSON is sent as a chat
// message verbatim.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsFrame is a server frame.
type wsFrame struct {
	Type    string            `json:"type"`
	State   *State            `json:"state,omitempty"`
	Message *mediator.Message `json:"message,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ServeWebSocket chats with one assistant over a websocket. The first frame
// is the conversation state; each chat frame is answered with the reply or
// an error frame.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	name := chi.URLParam(r, "assistant")
	if !knownAssistant(name) {
		api.Error(w, http.StatusNotFound, api.KindNotFound, "unknown assistant")
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.conns.Register(userID, sessionID, name, ws)
	defer h.conns.Unregister(userID, sessionID, name, ws)

	ctx := r.Context()
	d := h.dashboardFor(r)
	detach := d.Attach()
	defer detach()
	a, _ := d.OpenAssistant(ctx, name)
	state := stateOf(a)
	if err := h.writeFrame(ctx, ws, wsFrame{Type: "state", State: &state}); err != nil {
		return
	}

	h.logger.Info("Assistant socket connected", "user_id", userID, "session_id", sessionID, "assistant", name)
	h.readLoop(ctx, ws, r, d, a)
	h.logger.Info("Assistant socket closed", "user_id", userID, "session_id", sessionID, "assistant", name)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, r *http.Request, d *dashboard.Dashboard, a *dashboard.Assistant) {
	userID := identity.UserIDFromContext(ctx)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}
		d.Touch()

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			msg = wsMessage{Type: "message", Content: string(data)}
		}

		var frame wsFrame
		switch msg.Type {
		case "message":
			frame = h.chat(r, a, msg.Content)
		case "state":
			state := stateOf(a)
			frame = wsFrame{Type: "state", State: &state}
		case "ping":
			frame = wsFrame{Type: "pong"}
		case "close":
			if _, err := d.CloseAssistant(a.Name); err != nil {
				frame = errorFrame(err)
				break
			}
			_ = h.writeFrame(ctx, ws, wsFrame{Type: "closed"})
			return
		default:
			frame = wsFrame{Type: "error", Kind: api.KindBadRequest, Error: "unknown frame type"}
		}
		if err := h.writeFrame(ctx, ws, frame); err != nil {
			return
		}
	}
}

func (h *Handler) chat(r *http.Request, a *dashboard.Assistant, text string) wsFrame {
	if !h.allow(identity.UserIDFromContext(r.Context())) {
		return wsFrame{Type: "error", Kind: "rate_limited", Error: "Too many requests. Please wait a moment and try again."}
	}
	reply, err := h.send(r, a, text)
	if err != nil {
		return errorFrame(err)
	}
	return wsFrame{Type: "message", Message: &reply}
}

func errorFrame(err error) wsFrame {
	var merr *mediator.Error
	if errors.As(err, &merr) {
		return wsFrame{Type: "error", Kind: string(merr.Kind), Error: merr.Message}
	}
	return wsFrame{Type: "error", Kind: api.KindBusy, Error: "A message is already being answered."}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, f wsFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), wsWriteTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Debug("WebSocket write error", "error", err)
		return err
	}
	return nil
}
