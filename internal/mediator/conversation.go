package mediator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation transcript.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ChatSession continues a server-side conversation.
type ChatSession interface {
	Send(ctx context.Context, text string) (string, error)
}

// SessionOpener establishes a chat session anchored to instruction.
type SessionOpener func(ctx context.Context, instruction string) (ChatSession, error)

// ConversationConfig fixes the texts a conversation uses.
type ConversationConfig struct {
	Name            string
	Instruction     string
	Greeting        string
	Placeholder     string
	UnavailableText string
	// Timeout bounds each remote turn. Zero means no bound.
	Timeout time.Duration
	Logger  *slog.Logger
	// OnMessage, when set, is called for every appended message.
	OnMessage func(Message)
}

// Conversation is the stateful mediator for a multi-turn assistant.
type Conversation struct {
	cfg     ConversationConfig
	session ChatSession
	logger  *slog.Logger

	mu          sync.Mutex
	transcript  []Message
	pending     bool
	unavailable *Error
}

// NewConversation initializes a conversation. When the session cannot be
// opened the conversation is permanently unavailable; it never retries.
func NewConversation(ctx context.Context, open SessionOpener, cfg ConversationConfig) *Conversation {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conversation{cfg: cfg, logger: logger}

	var session ChatSession
	var err error
	if open == nil {
		err = ErrUnavailable
	} else {
		session, err = open(ctx, cfg.Instruction)
	}
	if err != nil {
		logger.Error("Failed to initialize conversation", "conversation", cfg.Name, "error", err)
		c.unavailable = UnavailableError(cfg.UnavailableText, err)
		c.appendLocked(RoleAssistant, cfg.UnavailableText)
		return c
	}

	c.session = session
	c.appendLocked(RoleAssistant, cfg.Greeting)
	return c
}

// Name returns the conversation name.
func (c *Conversation) Name() string {
	return c.cfg.Name
}

// Send appends text as a user message, performs one remote call and appends the
// reply, or the configured placeholder when the call fails. It returns the
// appended reply.
func (c *Conversation) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ValidationError("message", "Please enter a message.")
	}

	c.mu.Lock()
	if c.unavailable != nil {
		c.mu.Unlock()
		return Message{}, c.unavailable
	}
	if c.pending {
		c.mu.Unlock()
		return Message{}, ErrBusy
	}
	c.appendLocked(RoleUser, text)
	c.pending = true
	c.mu.Unlock()

	callCtx := context.WithoutCancel(ctx)
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, c.cfg.Timeout)
		defer cancel()
	}

	reply, err := c.send(callCtx, text)
	if err != nil {
		c.logger.Warn("Conversation turn failed", "conversation", c.cfg.Name, "error", err)
		reply = c.cfg.Placeholder
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	return c.appendLocked(RoleAssistant, reply), nil
}

func (c *Conversation) send(ctx context.Context, text string) (reply string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = UnavailableError("chat session panicked", nil)
		}
	}()
	return c.session.Send(ctx, text)
}

func (c *Conversation) appendLocked(role Role, text string) Message {
	msg := Message{Role: role, Text: text, At: time.Now()}
	c.transcript = append(c.transcript, msg)
	if c.cfg.OnMessage != nil {
		c.cfg.OnMessage(msg)
	}
	return msg
}

// Transcript returns a copy of all messages in send order.
func (c *Conversation) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Pending reports whether a send is in flight.
func (c *Conversation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Unavailable returns the initialization error, or nil when the conversation is usable.
func (c *Conversation) Unavailable() *Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unavailable
}
