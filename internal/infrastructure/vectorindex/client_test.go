package vectorindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/resilience"
)

type fakeBackend struct {
	upserted   [][]domain.IndexRecord
	failBatch  map[int]error
	neighbors  []domain.Neighbor
	queryErr   error
	deleted    []string
	lastDeploy string
	lastTopK   int
}

func (f *fakeBackend) UpsertBatch(_ context.Context, records []domain.IndexRecord) error {
	idx := len(f.upserted)
	f.upserted = append(f.upserted, records)
	if err, ok := f.failBatch[idx]; ok {
		return err
	}
	return nil
}

func (f *fakeBackend) Query(_ context.Context, _ []float32, topK int, deployedIndexID string) ([]domain.Neighbor, error) {
	f.lastDeploy = deployedIndexID
	f.lastTopK = topK
	return f.neighbors, f.queryErr
}

func (f *fakeBackend) Delete(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func noRetryExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: time.Millisecond,
		BreakerEnabled:      false,
	})
}

func records(n int) []domain.IndexRecord {
	out := make([]domain.IndexRecord, n)
	for i := range out {
		out[i] = domain.IndexRecord{
			ID:     domain.RecordID("doc1", i),
			Vector: domain.EmbeddingVector{1, 0},
		}
	}
	return out
}

func TestUpsertReportsFailedBatchIDs(t *testing.T) {
	backend := &fakeBackend{failBatch: map[int]error{
		1: domain.WrapError(domain.ErrNonRetriable, "upsert", errors.New("bad request")),
	}}
	client := NewClient(backend, noRetryExecutor(), Config{UpsertBatchSize: 2})

	count, err := client.Upsert(context.Background(), records(5))
	if count != 3 {
		t.Fatalf("expected 3 successes, got %d", count)
	}
	var upsertErr *domain.UpsertError
	if !errors.As(err, &upsertErr) {
		t.Fatalf("expected UpsertError, got %v", err)
	}
	if len(upsertErr.FailedIDs) != 2 || upsertErr.FailedIDs[0] != "doc1#2" || upsertErr.FailedIDs[1] != "doc1#3" {
		t.Fatalf("unexpected failed ids: %v", upsertErr.FailedIDs)
	}
	if !errors.Is(err, domain.ErrNonRetriable) {
		t.Fatalf("expected wrapped kind, got %v", err)
	}
	if len(backend.upserted) != 3 {
		t.Fatalf("later batches must still run, got %d batches", len(backend.upserted))
	}
}

func TestUpsertRejectsEmptyVector(t *testing.T) {
	client := NewClient(&fakeBackend{}, noRetryExecutor(), Config{})
	_, err := client.Upsert(context.Background(), []domain.IndexRecord{{ID: "doc#0"}})
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	backend := &fakeBackend{}
	client := NewClient(backend, noRetryExecutor(), Config{Dimension: 3})

	_, err := client.Upsert(context.Background(), []domain.IndexRecord{
		{ID: "doc#0", Vector: domain.EmbeddingVector{1, 0, 0}},
		{ID: "doc#1", Vector: domain.EmbeddingVector{1}},
	})
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
	if len(backend.upserted) != 0 {
		t.Fatalf("nothing may reach the backend, got %d batches", len(backend.upserted))
	}
}

func TestUpsertWithoutDimensionRequiresAgreement(t *testing.T) {
	client := NewClient(&fakeBackend{}, noRetryExecutor(), Config{})
	_, err := client.Upsert(context.Background(), []domain.IndexRecord{
		{ID: "doc#0", Vector: domain.EmbeddingVector{1, 0, 0}},
		{ID: "doc#1", Vector: domain.EmbeddingVector{1}},
	})
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
}

func TestSearchRejectsQueryDimensionMismatch(t *testing.T) {
	backend := &fakeBackend{neighbors: []domain.Neighbor{{ID: "doc#0", Distance: 0.9}}}
	client := NewClient(backend, noRetryExecutor(), Config{Dimension: 3})

	_, err := client.Search(context.Background(), domain.EmbeddingVector{1, 0}, 5, "d")
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
	if backend.lastTopK != 0 {
		t.Fatalf("backend must not be queried")
	}
}

func TestSearchSortsAndLimits(t *testing.T) {
	backend := &fakeBackend{neighbors: []domain.Neighbor{
		{ID: "doc1#0", Distance: 0.2, Metadata: map[string]string{domain.MetaText: "a"}},
		{ID: "doc1#1", Distance: 0.9, Metadata: map[string]string{domain.MetaText: "b"}},
		{ID: "doc2#0", Distance: 0.5, Metadata: map[string]string{domain.MetaText: "c"}},
	}}
	client := NewClient(backend, noRetryExecutor(), Config{DeployedIndexID: "deployed"})

	result, err := client.Search(context.Background(), domain.EmbeddingVector{1}, 2, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result))
	}
	if result[0].RecordID != "doc1#1" || result[1].RecordID != "doc2#0" {
		t.Fatalf("unexpected order: %+v", result)
	}
	if result[1].SourceDocumentID != "doc2" || result[0].Text != "b" {
		t.Fatalf("unexpected chunk fields: %+v", result)
	}
	if backend.lastDeploy != "deployed" {
		t.Fatalf("expected default deployed index id, got %q", backend.lastDeploy)
	}
}

func TestSearchSquaredL2LowerIsBetter(t *testing.T) {
	backend := &fakeBackend{neighbors: []domain.Neighbor{
		{ID: "far#0", Distance: 4},
		{ID: "near#0", Distance: 0.5},
	}}
	client := NewClient(backend, noRetryExecutor(), Config{Distance: SquaredL2})

	result, err := client.Search(context.Background(), domain.EmbeddingVector{1}, 5, "d")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result[0].RecordID != "near#0" {
		t.Fatalf("expected nearest first, got %+v", result)
	}
	for i := 1; i < len(result); i++ {
		if result[i].Score > result[i-1].Score {
			t.Fatalf("scores must be non-increasing: %+v", result)
		}
	}
}

func TestSearchThresholdFilters(t *testing.T) {
	threshold := 0.4
	backend := &fakeBackend{neighbors: []domain.Neighbor{
		{ID: "a#0", Distance: 0.3},
		{ID: "b#0", Distance: 0.6},
	}}
	client := NewClient(backend, noRetryExecutor(), Config{MinSimilarity: &threshold})

	result, err := client.Search(context.Background(), domain.EmbeddingVector{1}, 5, "d")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result) != 1 || result[0].RecordID != "b#0" {
		t.Fatalf("unexpected filtered result: %+v", result)
	}
}

func TestSearchEmptyIndexIsNotAnError(t *testing.T) {
	client := NewClient(&fakeBackend{}, noRetryExecutor(), Config{})
	result, err := client.Search(context.Background(), domain.EmbeddingVector{1}, 5, "d")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestSearchUnreachableIndex(t *testing.T) {
	backend := &fakeBackend{queryErr: errors.New("dial tcp: connection refused")}
	client := NewClient(backend, noRetryExecutor(), Config{})

	_, err := client.Search(context.Background(), domain.EmbeddingVector{1}, 5, "d")
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected index unavailable, got %v", err)
	}
}

func TestDeleteBatches(t *testing.T) {
	backend := &fakeBackend{}
	client := NewClient(backend, noRetryExecutor(), Config{UpsertBatchSize: 2})
	if err := client.Delete(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(backend.deleted) != 3 {
		t.Fatalf("expected 3 deleted ids, got %v", backend.deleted)
	}
}

func TestParseDistanceMeasure(t *testing.T) {
	if m, err := ParseDistanceMeasure("squared_l2_distance"); err != nil || m != SquaredL2 {
		t.Fatalf("unexpected parse result: %v %v", m, err)
	}
	if _, err := ParseDistanceMeasure("manhattan"); err == nil {
		t.Fatalf("expected error for unknown measure")
	}
}
