package usecase

import (
	"strings"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

const (
	DefaultSystemInstruction = "You are a concise and helpful lecture assistant. " +
		"Answer the student's question using the provided lecture context. " +
		"Keep your answer short and clear, no more than 4 sentences. " +
		"If the student asks for clarification (like 'I don't understand this'), " +
		"explain the same concept in simpler terms rather than giving a long summary. " +
		"If the question is not related to the lecture, say: " +
		"'I'm sorry, I don't have information about that topic in the lecture materials.'"

	NoContextMarker = "No relevant lecture context was found."
)

type PromptConfig struct {
	SystemInstruction string
	// MaxChars bounds the rendered prompt in runes. Zero means unbounded.
	MaxChars int
}

// PromptAssembler renders retrieved context, history and the query into one prompt.
// It is pure: the same inputs always give the same prompt.
type PromptAssembler struct {
	cfg PromptConfig
}

func NewPromptAssembler(cfg PromptConfig) *PromptAssembler {
	if strings.TrimSpace(cfg.SystemInstruction) == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.MaxChars < 0 {
		cfg.MaxChars = 0
	}
	return &PromptAssembler{cfg: cfg}
}

func (a *PromptAssembler) Assemble(history domain.ConversationHistory, retrieval domain.RetrievalResult, query string) domain.Prompt {
	prompt, _ := a.assemble(history, retrieval, query)
	return prompt
}

// assemble also returns the context that survived the size bound.
func (a *PromptAssembler) assemble(history domain.ConversationHistory, retrieval domain.RetrievalResult, query string) (domain.Prompt, domain.RetrievalResult) {
	chunks := make(domain.RetrievalResult, len(retrieval))
	copy(chunks, retrieval)
	chunks.SortBySimilarity()

	turns := make(domain.ConversationHistory, len(history))
	copy(turns, history)

	prompt := a.render(turns, chunks, query)
	for a.cfg.MaxChars > 0 && prompt.Len() > a.cfg.MaxChars {
		switch {
		case len(chunks) > 0:
			chunks = chunks[:len(chunks)-1]
		case len(turns) > 1:
			turns = turns[1:]
		default:
			return prompt, chunks
		}
		prompt = a.render(turns, chunks, query)
	}
	return prompt, chunks
}

func (a *PromptAssembler) render(history domain.ConversationHistory, chunks domain.RetrievalResult, query string) domain.Prompt {
	var b strings.Builder

	b.WriteString("Context:\n")
	if len(chunks) == 0 {
		b.WriteString(NoContextMarker)
		b.WriteString("\n")
	}
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[")
		b.WriteString(chunk.SourceDocumentID)
		b.WriteString("]\n")
		b.WriteString(strings.TrimSpace(chunk.Text))
		b.WriteString("\n")
	}

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, turn := range history {
			b.WriteString(roleLabel(turn.Role))
			b.WriteString(": ")
			b.WriteString(strings.TrimSpace(turn.Text))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nUser Question:\n")
	b.WriteString(query)
	b.WriteString("\n")

	return domain.Prompt{
		System: a.cfg.SystemInstruction,
		User:   b.String(),
	}
}

func roleLabel(role domain.Role) string {
	if role == domain.RoleAssistant {
		return "Assistant"
	}
	return "Student"
}
