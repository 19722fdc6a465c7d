package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/resilience"
)

// Provider is one generative model backend; failures carry domain error kinds.
type Provider interface {
	Generate(ctx context.Context, prompt domain.Prompt) (string, error)
}

type Client struct {
	provider Provider
	exec     *resilience.Executor
}

func NewClient(provider Provider, exec *resilience.Executor) *Client {
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		provider: provider,
		exec:     exec,
	}
}

func (c *Client) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	if strings.TrimSpace(prompt.User) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "generate", fmt.Errorf("prompt is empty"))
	}

	var text string
	err := c.exec.Execute(ctx, "generation.generate", func(ctx context.Context) error {
		out, err := c.provider.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return domain.WrapError(domain.ErrNonRetriable, "generate", fmt.Errorf("model returned an empty response"))
		}
		text = out
		return nil
	}, resilience.DomainClassifier)
	if err != nil {
		return "", resilience.ToDomainError("generate", err, domain.ErrTransient)
	}
	return strings.TrimSpace(text), nil
}
