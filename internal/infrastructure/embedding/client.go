package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/resilience"
)

const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 4
	DefaultDimension   = 768
)

// Provider is one embedding backend. EmbedBatch must return vectors in input order
// and tag failures with domain error kinds.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Config struct {
	BatchSize   int
	Concurrency int
	Dimension   int
}

type Client struct {
	provider Provider
	query    Provider
	exec     *resilience.Executor
	cfg      Config
}

func NewClient(provider Provider, exec *resilience.Executor, cfg Config) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		provider: provider,
		exec:     exec,
		cfg:      cfg,
	}
}

// WithQueryProvider embeds query text with a separate provider, e.g. one using a
// query task type. Without it queries go through the document provider.
func (c *Client) WithQueryProvider(provider Provider) *Client {
	c.query = provider
	return c
}

func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

// Embed returns one vector per text, in input order. Batches run concurrently up to
// the configured limit; the first failing batch cancels the rest.
func (c *Client) Embed(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]domain.EmbeddingVector, len(texts))
	sem := make(chan struct{}, c.cfg.Concurrency)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				fail(ctx.Err())
				return
			}
			defer func() { <-sem }()

			vectors, err := c.embedBatch(ctx, c.provider, texts[start:end])
			if err != nil {
				fail(fmt.Errorf("embed batch [%d:%d]: %w", start, end, err))
				return
			}
			copy(out[start:end], vectors)
		}(start, end)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed query", fmt.Errorf("text is empty"))
	}
	if c.query == nil {
		vectors, err := c.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vectors[0], nil
	}
	vectors, err := c.embedBatch(ctx, c.query, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vectors[0], nil
}

func (c *Client) embedBatch(ctx context.Context, provider Provider, batch []string) ([]domain.EmbeddingVector, error) {
	var raw [][]float32
	err := c.exec.Execute(ctx, "embedding.embed_batch", func(ctx context.Context) error {
		vectors, err := provider.EmbedBatch(ctx, batch)
		if err != nil {
			return err
		}
		raw = vectors
		return nil
	}, resilience.DomainClassifier)
	if err != nil {
		return nil, resilience.ToDomainError("embed batch", err, domain.ErrTransient)
	}

	if len(raw) != len(batch) {
		return nil, domain.WrapError(domain.ErrDataIntegrity, "embed batch",
			fmt.Errorf("expected %d vectors, got %d", len(batch), len(raw)))
	}
	out := make([]domain.EmbeddingVector, len(raw))
	for i, vector := range raw {
		if len(vector) != c.cfg.Dimension {
			return nil, domain.WrapError(domain.ErrDataIntegrity, "embed batch",
				fmt.Errorf("vector %d has dimension %d, expected %d", i, len(vector), c.cfg.Dimension))
		}
		out[i] = domain.EmbeddingVector(vector)
	}
	return out, nil
}
