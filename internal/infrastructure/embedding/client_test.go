package embedding

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/resilience"
)

type fakeProvider struct {
	dim      int
	delay    time.Duration
	failures []error

	mu       sync.Mutex
	calls    int
	inFlight int32
	maxSeen  int32
	override func(texts []string) ([][]float32, error)
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&f.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.maxSeen, prev, cur) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if call <= len(f.failures) {
		return nil, f.failures[call-1]
	}
	if f.override != nil {
		return f.override(texts)
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		n, _ := strconv.Atoi(text)
		vec := make([]float32, f.dim)
		vec[0] = float32(n)
		out[i] = vec
	}
	return out, nil
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
}

func TestEmbedPreservesOrderAcrossBatches(t *testing.T) {
	provider := &fakeProvider{dim: 8, delay: 2 * time.Millisecond}
	client := NewClient(provider, testExecutor(), Config{BatchSize: 10, Concurrency: 3, Dimension: 8})

	texts := make([]string, 95)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}
	vectors, err := client.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 8 {
			t.Fatalf("vector %d has dimension %d", i, len(vec))
		}
		if int(vec[0]) != i {
			t.Fatalf("vector %d out of order: marker %v", i, vec[0])
		}
	}
	if provider.calls != 10 {
		t.Fatalf("expected 10 batches, got %d", provider.calls)
	}
	if peak := atomic.LoadInt32(&provider.maxSeen); peak > 3 {
		t.Fatalf("concurrency bound exceeded: %d", peak)
	}
}

func TestEmbedDimensionMismatchIsDataIntegrity(t *testing.T) {
	provider := &fakeProvider{dim: 4}
	client := NewClient(provider, testExecutor(), Config{Dimension: 8})

	_, err := client.Embed(context.Background(), []string{"1", "2"})
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("data integrity errors must not be retried, calls=%d", provider.calls)
	}
}

func TestEmbedCountMismatchIsDataIntegrity(t *testing.T) {
	provider := &fakeProvider{dim: 8, override: func(texts []string) ([][]float32, error) {
		return [][]float32{make([]float32, 8)}, nil
	}}
	client := NewClient(provider, testExecutor(), Config{Dimension: 8})

	_, err := client.Embed(context.Background(), []string{"1", "2", "3"})
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	provider := &fakeProvider{dim: 8, failures: []error{
		domain.WrapError(domain.ErrTransient, "embed", errors.New("503")),
	}}
	client := NewClient(provider, testExecutor(), Config{Dimension: 8})

	vectors, err := client.Embed(context.Background(), []string{"7"})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if int(vectors[0][0]) != 7 || provider.calls != 2 {
		t.Fatalf("unexpected result: vec=%v calls=%d", vectors[0], provider.calls)
	}
}

func TestEmbedNonRetriableFailsImmediately(t *testing.T) {
	provider := &fakeProvider{dim: 8, failures: []error{
		domain.WrapError(domain.ErrNonRetriable, "embed", errors.New("401")),
	}}
	client := NewClient(provider, testExecutor(), Config{Dimension: 8})

	_, err := client.Embed(context.Background(), []string{"1"})
	if !errors.Is(err, domain.ErrNonRetriable) {
		t.Fatalf("expected non-retriable error, got %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected 1 call, got %d", provider.calls)
	}
}

func TestEmbedQueryRejectsEmptyText(t *testing.T) {
	client := NewClient(&fakeProvider{dim: 8}, testExecutor(), Config{Dimension: 8})
	if _, err := client.EmbedQuery(context.Background(), "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEmbedQueryUsesQueryProvider(t *testing.T) {
	documents := &fakeProvider{dim: 4}
	queries := &fakeProvider{dim: 4}
	client := NewClient(documents, testExecutor(), Config{Dimension: 4}).WithQueryProvider(queries)

	vector, err := client.EmbedQuery(context.Background(), "7")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 4 || vector[0] != 7 {
		t.Fatalf("unexpected vector: %v", vector)
	}
	if queries.calls != 1 || documents.calls != 0 {
		t.Fatalf("query text must go to the query provider, documents=%d queries=%d", documents.calls, queries.calls)
	}

	if _, err := client.Embed(context.Background(), []string{"1", "2"}); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if documents.calls != 1 || queries.calls != 1 {
		t.Fatalf("document text must go to the document provider, documents=%d queries=%d", documents.calls, queries.calls)
	}
}

func TestEmbedQueryProviderDimensionIsChecked(t *testing.T) {
	client := NewClient(&fakeProvider{dim: 4}, testExecutor(), Config{Dimension: 4}).
		WithQueryProvider(&fakeProvider{dim: 3})
	if _, err := client.EmbedQuery(context.Background(), "1"); !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	client := NewClient(&fakeProvider{dim: 8}, testExecutor(), Config{Dimension: 8})
	vectors, err := client.Embed(context.Background(), nil)
	if err != nil || len(vectors) != 0 {
		t.Fatalf("expected no vectors and no error, got %v %v", vectors, err)
	}
}
