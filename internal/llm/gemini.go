package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini implements Generator on top of the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

var _ Generator = (*Gemini)(nil)

// NewGemini creates a Gemini generator. It fails fast with ErrMissingAPIKey
// so callers can treat a missing credential as a permanent unavailable state.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	logger.Info("Gemini generator ready", "model", model)
	return &Gemini{client: client, model: model, logger: logger}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// Generate sends one prompt and returns the trimmed reply text.
func (g *Gemini) Generate(ctx context.Context, p Prompt) (string, error) {
	parts := make([]*genai.Part, 0, 2)
	if p.Image != nil {
		data, err := base64.StdEncoding.DecodeString(p.Image.Data)
		if err != nil {
			return "", fmt.Errorf("decode image: %w", err)
		}
		mime := p.Image.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.NewPartFromBytes(data, mime))
	}
	parts = append(parts, genai.NewPartFromText(p.Text))

	config := &genai.GenerateContentConfig{Temperature: p.Temperature}
	if p.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = p.Schema
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		config,
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return responseText(resp)
}

// StartChat opens a chat session anchored to cfg.SystemInstruction.
func (g *Gemini) StartChat(ctx context.Context, cfg ChatConfig) (Chat, error) {
	config := &genai.GenerateContentConfig{Temperature: cfg.Temperature}
	if cfg.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	chat, err := g.client.Chats.Create(ctx, g.model, config, nil)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &geminiChat{chat: chat}, nil
}

type geminiChat struct {
	chat *genai.Chat
}

func (c *geminiChat) Send(ctx context.Context, message string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("send chat message: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
