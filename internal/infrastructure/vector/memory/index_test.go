package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/vectorindex"
)

func TestQueryOrdersByMeasure(t *testing.T) {
	ctx := context.Background()
	for _, measure := range []vectorindex.DistanceMeasure{vectorindex.DotProduct, vectorindex.Cosine, vectorindex.SquaredL2} {
		idx := New(measure)
		_ = idx.UpsertBatch(ctx, []domain.IndexRecord{
			{ID: "far", Vector: domain.EmbeddingVector{0, 1}},
			{ID: "near", Vector: domain.EmbeddingVector{1, 0.1}},
		})
		got, err := idx.Query(ctx, []float32{1, 0}, 1, "")
		if err != nil {
			t.Fatalf("%s: Query() error = %v", measure, err)
		}
		if len(got) != 1 || got[0].ID != "near" {
			t.Fatalf("%s: expected nearest record, got %+v", measure, got)
		}
	}
}

func TestUpsertOverwritesAndDeleteRemoves(t *testing.T) {
	ctx := context.Background()
	idx := New(vectorindex.DotProduct)
	_ = idx.UpsertBatch(ctx, []domain.IndexRecord{{ID: "doc#0", Vector: domain.EmbeddingVector{1}}})
	_ = idx.UpsertBatch(ctx, []domain.IndexRecord{{ID: "doc#0", Vector: domain.EmbeddingVector{2}}})
	if idx.Len() != 1 {
		t.Fatalf("expected overwrite, got %d records", idx.Len())
	}
	_ = idx.Delete(ctx, []string{"doc#0", "missing"})
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %v", idx.IDs())
	}
	got, err := idx.Query(ctx, []float32{1}, 5, "")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
}

func TestDimensionMismatchIsDataIntegrityError(t *testing.T) {
	ctx := context.Background()
	idx := New(vectorindex.DotProduct)
	if err := idx.UpsertBatch(ctx, []domain.IndexRecord{{ID: "doc#0", Vector: domain.EmbeddingVector{1, 0, 0}}}); err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}

	err := idx.UpsertBatch(ctx, []domain.IndexRecord{{ID: "doc#1", Vector: domain.EmbeddingVector{1}}})
	if !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error on upsert, got %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("rejected batch must not be stored, got %v", idx.IDs())
	}

	if _, err := idx.Query(ctx, []float32{1, 0}, 5, ""); !errors.Is(err, domain.ErrDataIntegrity) {
		t.Fatalf("expected data integrity error on query, got %v", err)
	}
}
