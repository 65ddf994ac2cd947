// Package llmtest provides a scripted llm.Generator for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/ashureev/farm-connect/internal/llm"
)

// ErrNoReply is returned when the script is exhausted.
var ErrNoReply = errors.New("llmtest: no scripted reply")

// Reply is one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// Generator replays scripted replies in order and records every prompt.
type Generator struct {
	mu       sync.Mutex
	replies  []Reply
	prompts  []llm.Prompt
	chats    []llm.ChatConfig
	messages []string

	// StartErr, when set, makes StartChat fail.
	StartErr error
	// Hook runs before each reply is returned. Tests use it to block a call.
	// A call whose context is done after the hook fails with the context error.
	Hook func(ctx context.Context)
}

var _ llm.Generator = (*Generator)(nil)

// New returns a generator that answers with replies in order.
func New(replies ...Reply) *Generator {
	return &Generator{replies: replies}
}

// Text is shorthand for a successful reply.
func Text(s string) Reply { return Reply{Text: s} }

// Fail is shorthand for a failed reply.
func Fail(err error) Reply { return Reply{Err: err} }

// Push appends more scripted replies.
func (g *Generator) Push(replies ...Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, replies...)
}

// Generate implements llm.Generator.
func (g *Generator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	return g.next(ctx)
}

// StartChat implements llm.Generator.
func (g *Generator) StartChat(_ context.Context, cfg llm.ChatConfig) (llm.Chat, error) {
	if g.StartErr != nil {
		return nil, g.StartErr
	}
	g.mu.Lock()
	g.chats = append(g.chats, cfg)
	g.mu.Unlock()
	return chat{g: g}, nil
}

func (g *Generator) next(ctx context.Context) (string, error) {
	if g.Hook != nil {
		g.Hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.replies) == 0 {
		return "", ErrNoReply
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.Text, r.Err
}

// Prompts returns every prompt passed to Generate.
func (g *Generator) Prompts() []llm.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Prompt(nil), g.prompts...)
}

// Chats returns every chat configuration passed to StartChat.
func (g *Generator) Chats() []llm.ChatConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.ChatConfig(nil), g.chats...)
}

// Messages returns every chat message sent.
func (g *Generator) Messages() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.messages...)
}

// Calls is the number of remote calls made, prompts plus chat messages.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts) + len(g.messages)
}

type chat struct {
	g *Generator
}

func (c chat) Send(ctx context.Context, message string) (string, error) {
	c.g.mu.Lock()
	c.g.messages = append(c.g.messages, message)
	c.g.mu.Unlock()
	return c.g.next(ctx)
}
