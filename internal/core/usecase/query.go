package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
)

const (
	DefaultTopK         = 5
	DefaultHistoryTurns = 6

	DefaultFallbackMessage = "Sorry, I couldn't generate an answer right now. Please try again in a moment."
)

type QueryConfig struct {
	TopK            int
	HistoryTurns    int
	DeployedIndexID string
	FallbackMessage string
}

type QueryUseCase struct {
	embedder  ports.Embedder
	index     ports.VectorIndex
	generator ports.Generator
	assembler *PromptAssembler
	cfg       QueryConfig
}

func NewQueryUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	generator ports.Generator,
	assembler *PromptAssembler,
	cfg QueryConfig,
) *QueryUseCase {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	if strings.TrimSpace(cfg.FallbackMessage) == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}
	if assembler == nil {
		assembler = NewPromptAssembler(PromptConfig{})
	}
	return &QueryUseCase{
		embedder:  embedder,
		index:     index,
		generator: generator,
		assembler: assembler,
		cfg:       cfg,
	}
}

// Answer runs one retrieval-augmented request. Retrieval failures degrade to an ungrounded
// prompt and generation failures to the fallback message; only an empty query or a
// cancelled request return an error.
func (uc *QueryUseCase) Answer(
	ctx context.Context,
	query string,
	history domain.ConversationHistory,
) (*domain.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", errors.New("query is empty"))
	}
	history = history.Recent(uc.cfg.HistoryTurns)

	retrieved, err := uc.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	prompt, sources := uc.assembler.assemble(history, retrieved, query)

	text, err := uc.generator.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = domain.WrapError(domain.ErrNonRetriable, "generate answer", errors.New("empty response"))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Error("generation_failed",
			"error", err.Error(),
			"prompt_chars", prompt.Len(),
			"context_chunks", len(sources),
		)
		return &domain.Answer{
			Text:     uc.cfg.FallbackMessage,
			Sources:  sources,
			Grounded: len(sources) > 0,
			Fallback: true,
		}, nil
	}

	return &domain.Answer{
		Text:     strings.TrimSpace(text),
		Sources:  sources,
		Grounded: len(sources) > 0,
	}, nil
}

// retrieve only fails when the request itself is cancelled.
func (uc *QueryUseCase) retrieve(ctx context.Context, query string) (domain.RetrievalResult, error) {
	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("rag_degraded", "step", "embed_query", "error", err.Error())
		return nil, nil
	}

	result, err := uc.index.Search(ctx, vector, uc.cfg.TopK, uc.cfg.DeployedIndexID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("rag_degraded", "step", "vector_search", "error", err.Error())
		return nil, nil
	}
	return result, nil
}
