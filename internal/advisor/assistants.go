package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/farm-connect/internal/domain"
	"github.com/ashureev/farm-connect/internal/llm"
	"github.com/ashureev/farm-connect/internal/mediator"
)

// Assistant names used in routes.
const (
	AssistantExpert  = "expert"
	AssistantSchemes = "schemes"
)

const expertInstruction = `You are "Farm Connect AI," a friendly and knowledgeable agricultural expert. Your goal is to help farmers by providing clear, concise, and actionable advice in multiple languages, including Indian languages. You can answer questions about:
- Crop information (sowing, harvesting, best practices)
- Pest and disease diagnosis and treatment
- Government schemes for farmers
- Weather patterns and advice
- Market prices and trends
When a user asks a question, provide the best possible answer based on your knowledge. Keep the tone supportive and easy to understand.`

// AssistantNames lists the assistants in display order.
func AssistantNames() []string {
	return []string{AssistantExpert, AssistantSchemes}
}

// Assistant returns the conversation configuration and session opener for
// name. ok is false for unknown names.
func (a *Advisor) Assistant(name string, logger *slog.Logger) (cfg mediator.ConversationConfig, open mediator.SessionOpener, ok bool) {
	switch name {
	case AssistantExpert:
		cfg = mediator.ConversationConfig{
			Name:            AssistantExpert,
			Instruction:     expertInstruction,
			Greeting:        "Hello! I am your AI Farming Assistant. How can I help you today? You can ask me about crops, diseases, government schemes, and more.",
			Placeholder:     "Sorry, I encountered an error while processing your request. Please check your connection and try again.",
			UnavailableText: "API Key is not configured. The chat feature is unavailable.",
		}
	case AssistantSchemes:
		cfg = mediator.ConversationConfig{
			Name:            AssistantSchemes,
			Instruction:     schemeInstruction(a.catalog.Schemes("")),
			Greeting:        "Hello! Ask me any questions you have about the Government Schemes listed on this page.",
			Placeholder:     "I apologize, but I couldn't process that. Please try rephrasing your question.",
			UnavailableText: "Sorry, the AI Assistant is unavailable due to a configuration issue.",
		}
	default:
		return cfg, nil, false
	}
	cfg.Logger = logger
	return cfg, a.opener(), true
}

// opener returns nil when generation is unavailable so conversations start
// in their terminal unavailable state without a network attempt.
func (a *Advisor) opener() mediator.SessionOpener {
	if a.gen == nil {
		return nil
	}
	return func(ctx context.Context, instruction string) (mediator.ChatSession, error) {
		chat, err := a.gen.StartChat(ctx, llm.ChatConfig{SystemInstruction: instruction})
		if err != nil {
			return nil, err
		}
		return chat, nil
	}
}

// schemeInstruction grounds the scheme assistant in a snapshot of the catalog.
func schemeInstruction(schemes []domain.Scheme) string {
	entries := make([]string, 0, len(schemes))
	for _, s := range schemes {
		var b strings.Builder
		fmt.Fprintf(&b, "Scheme Name: %s\n", s.Name)
		fmt.Fprintf(&b, "Benefit: %s\n", s.Benefit)
		fmt.Fprintf(&b, "Eligibility: %s\n", s.Eligibility)
		fmt.Fprintf(&b, "Application Process: %s\n", strings.Join(s.ApplyProcess, ", "))
		if s.Link != nil {
			fmt.Fprintf(&b, "Official Link: %s\n", s.Link.URL)
		}
		entries = append(entries, b.String())
	}

	return `You are a "Scheme AI Assistant" for the Farm Connect app. Your primary role is to answer farmer's questions *only* about the government schemes provided below. Be helpful, clear, and concise. Do not answer questions unrelated to these schemes. If a user asks something else, politely guide them back to the topic of government schemes.

Here is the list of available schemes:
---
` + strings.Join(entries, "---\n") + `---
Always base your answers on this information. When asked about a specific scheme, summarize its benefits, eligibility, and how to apply.`
}
