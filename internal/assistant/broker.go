// Package assistant serves the conversational assistants over HTTP,
// server-sent events and websockets.
package assistant

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/farm-connect/internal/identity"
	"github.com/ashureev/farm-connect/internal/mediator"
)

const (
	defaultReplaySize        = 100
	defaultEventBuffer       = 256
	defaultRetryDelay        = 5 * time.Second
	defaultKeepaliveInterval = 15 * time.Second
)

// Event is a message appended to an assistant conversation of one tab.
type Event struct {
	UserID         string
	SessionID      string
	Assistant      string
	ConversationID string
	Message        mediator.Message
}

type eventPayload struct {
	Assistant      string        `json:"assistant"`
	ConversationID string        `json:"conversation_id"`
	Role           mediator.Role `json:"role"`
	Text           string        `json:"text"`
	At             time.Time     `json:"at"`
}

func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

type queuedEvent struct {
	id    int64
	event Event
}

// replayQueue buffers recent events per tab so reconnecting clients can
// resume from Last-Event-ID. Each tab has its own bounded list.
type replayQueue struct {
	mu      sync.RWMutex
	queues  map[string]*list.List
	maxSize int
}

func newReplayQueue(maxSize int) *replayQueue {
	if maxSize <= 0 {
		maxSize = defaultReplaySize
	}
	return &replayQueue{queues: make(map[string]*list.List), maxSize: maxSize}
}

func (q *replayQueue) enqueue(id int64, ev Event) {
	key := sessionKey(ev.UserID, ev.SessionID)
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.queues[key]
	if !ok {
		l = list.New()
		q.queues[key] = l
	}
	l.PushBack(queuedEvent{id: id, event: ev})
	for l.Len() > q.maxSize {
		l.Remove(l.Front())
	}
}

func (q *replayQueue) after(userID, sessionID string, afterID int64) []queuedEvent {
	q.mu.RLock()
	defer q.mu.RUnlock()
	l, ok := q.queues[sessionKey(userID, sessionID)]
	if !ok {
		return nil
	}
	var out []queuedEvent
	for e := l.Front(); e != nil; e = e.Next() {
		if qe := e.Value.(queuedEvent); qe.id > afterID {
			out = append(out, qe)
		}
	}
	return out
}

func (q *replayQueue) prune(userID, sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queues, sessionKey(userID, sessionID))
}

// sseConn is one connected event-stream client.
type sseConn struct {
	id        int64
	userID    string
	sessionID string
	assistant string
	w         io.Writer
	flusher   http.Flusher

	mu     sync.Mutex
	closed bool
}

// send writes one event unless the connection has been closed.
func (c *sseConn) send(id int64, event, data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(id, event, data)
}

func (c *sseConn) sendLocked(id int64, event, data string) error {
	if c.closed {
		return nil
	}
	var err error
	if id > 0 {
		_, err = fmt.Fprintf(c.w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	} else {
		_, err = fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", event, data)
	}
	if err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *sseConn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Broker fans conversation events out to event-stream clients of the same
// tab and keeps a replay buffer per tab.
type Broker struct {
	events    chan Event
	queue     *replayQueue
	logger    *slog.Logger
	retry     time.Duration
	keepalive time.Duration

	mu      sync.RWMutex
	conns   map[string]map[int64]*sseConn
	eventID int64
	connID  int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithKeepalive sets the interval between ping events.
func WithKeepalive(d time.Duration) BrokerOption {
	return func(b *Broker) { b.keepalive = d }
}

// WithReplaySize bounds the per-tab replay buffer.
func WithReplaySize(n int) BrokerOption {
	return func(b *Broker) { b.queue = newReplayQueue(n) }
}

// NewBroker returns a broker. Call Start before publishing.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		events:    make(chan Event, defaultEventBuffer),
		queue:     newReplayQueue(defaultReplaySize),
		logger:    logger,
		retry:     defaultRetryDelay,
		keepalive: defaultKeepaliveInterval,
		conns:     make(map[string]map[int64]*sseConn),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish hands ev to the broadcast loop. It never blocks: conversation
// hooks call it while holding the conversation lock. It reports false when
// the event was dropped.
func (b *Broker) Publish(ev Event) bool {
	select {
	case b.events <- ev:
		return true
	default:
		b.logger.Warn("Event buffer full, dropping assistant event",
			"user_id", ev.UserID,
			"session_id", ev.SessionID,
			"assistant", ev.Assistant,
		)
		return false
	}
}

// Start runs the broadcast loop until ctx is canceled.
func (b *Broker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.logger.Info("Assistant event broadcast loop started")
		for {
			select {
			case <-ctx.Done():
				b.logger.Info("Assistant event broadcast loop shutting down")
				return
			case ev := <-b.events:
				b.broadcast(ev)
			}
		}
	}()
	return done
}

func (b *Broker) broadcast(ev Event) {
	b.mu.Lock()
	b.eventID++
	id := b.eventID
	var conns []*sseConn
	for _, c := range b.conns[sessionKey(ev.UserID, ev.SessionID)] {
		if c.assistant == ev.Assistant {
			conns = append(conns, c)
		}
	}
	// Enqueued under b.mu: register snapshots the replay under the same lock,
	// so each event reaches a new client once, by replay or live.
	b.queue.enqueue(id, ev)
	b.mu.Unlock()

	if len(conns) == 0 {
		return
	}
	data, err := encodeEvent(ev)
	if err != nil {
		b.logger.Error("Failed to marshal assistant event", "error", err)
		return
	}
	for _, c := range conns {
		if err := c.send(id, "message", data); err != nil {
			b.logger.Debug("Failed to write to event stream", "conn_id", c.id, "user_id", c.userID, "error", err)
		}
	}
}

func encodeEvent(ev Event) (string, error) {
	data, err := json.Marshal(eventPayload{
		Assistant:      ev.Assistant,
		ConversationID: ev.ConversationID,
		Role:           ev.Message.Role,
		Text:           ev.Message.Text,
		At:             ev.Message.At,
	})
	return string(data), err
}

// Prune drops the replay buffer of a tab.
func (b *Broker) Prune(userID, sessionID string) {
	b.queue.prune(userID, sessionID)
}

// Connections returns the number of connected stream clients.
func (b *Broker) Connections() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, m := range b.conns {
		n += len(m)
	}
	return n
}

// register adds c and returns its buffered events after afterID. c is
// returned locked: live events block until the caller has written the replay
// and unlocked it, so they never overtake replayed ones.
func (b *Broker) register(c *sseConn, afterID int64) []queuedEvent {
	key := sessionKey(c.userID, c.sessionID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connID++
	c.id = b.connID
	if _, ok := b.conns[key]; !ok {
		b.conns[key] = make(map[int64]*sseConn)
	}
	b.conns[key][c.id] = c
	c.mu.Lock()

	if afterID <= 0 {
		return nil
	}
	var replay []queuedEvent
	for _, qe := range b.queue.after(c.userID, c.sessionID, afterID) {
		if qe.event.Assistant == c.assistant {
			replay = append(replay, qe)
		}
	}
	return replay
}

// replayLocked writes events to c, which must be locked.
func (c *sseConn) replayLocked(events []queuedEvent) error {
	for _, qe := range events {
		data, err := encodeEvent(qe.event)
		if err != nil {
			continue
		}
		if err := c.sendLocked(qe.id, "message", data); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broker) unregister(c *sseConn) {
	key := sessionKey(c.userID, c.sessionID)
	b.mu.Lock()
	if m, ok := b.conns[key]; ok {
		delete(m, c.id)
		if len(m) == 0 {
			delete(b.conns, key)
		}
	}
	b.mu.Unlock()
	c.close()
}

// HandleStream streams appended messages of one assistant in the caller's
// tab as server-sent events. Clients resume with Last-Event-ID.
func (b *Broker) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	name := chi.URLParam(r, "assistant")
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !knownAssistant(name) {
		http.Error(w, `{"error": "unknown assistant"}`, http.StatusNotFound)
		return
	}

	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", b.retry.Milliseconds()); err != nil {
		return
	}
	flusher.Flush()

	conn := &sseConn{userID: userID, sessionID: sessionID, assistant: name, w: w, flusher: flusher}
	replay := b.register(conn, lastEventID)
	err := conn.replayLocked(replay)
	conn.mu.Unlock()
	defer func() {
		b.unregister(conn)
		b.logger.Info("Assistant stream closed", "user_id", userID, "session_id", sessionID, "assistant", name)
	}()
	if err != nil {
		return
	}

	connected := fmt.Sprintf(`{"status":"connected","assistant":%q}`, name)
	if err := conn.send(0, "connected", connected); err != nil {
		return
	}
	b.logger.Info("Assistant stream connected",
		"user_id", userID,
		"session_id", sessionID,
		"assistant", name,
		"reconnect", lastEventID > 0,
	)

	keepalive := time.NewTicker(b.keepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if err := conn.send(0, "ping", `{"status":"alive"}`); err != nil {
				return
			}
		}
	}
}
