// Package llm is the binding to the remote generative-language capability.
package llm

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

var (
	// ErrMissingAPIKey is returned when the generation credential is not configured.
	ErrMissingAPIKey = errors.New("generation API key is not configured")
	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrSchemaMismatch is returned when a structured reply does not fit its schema.
	ErrSchemaMismatch = errors.New("response does not match schema")
)

// Image is an inline image. Data holds the base64 encoding of the file bytes.
type Image struct {
	MIMEType string
	Data     string
}

// Prompt is one generation request. When Schema is set the reply is requested
// as JSON constrained by it.
type Prompt struct {
	Text        string
	Image       *Image
	Schema      *genai.Schema
	Temperature *float32
}

// ChatConfig anchors a chat session.
type ChatConfig struct {
	SystemInstruction string
	Temperature       *float32
}

// Chat is a server-side conversation continued across Send calls.
type Chat interface {
	Send(ctx context.Context, message string) (string, error)
}

// Generator performs remote generation.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	StartChat(ctx context.Context, cfg ChatConfig) (Chat, error)
}

// Temperature returns a pointer for use in Prompt and ChatConfig.
func Temperature(t float32) *float32 {
	return genai.Ptr(t)
}
