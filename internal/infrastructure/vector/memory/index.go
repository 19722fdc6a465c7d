package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/vectorindex"
)

// Index is an in-process brute-force backend for local runs and tests.
type Index struct {
	measure vectorindex.DistanceMeasure

	mu      sync.RWMutex
	records map[string]domain.IndexRecord
	// dim is the vector length of the stored records, 0 while empty.
	dim int
}

func New(measure vectorindex.DistanceMeasure) *Index {
	if measure == "" {
		measure = vectorindex.DotProduct
	}
	return &Index{
		measure: measure,
		records: make(map[string]domain.IndexRecord),
	}
}

func (x *Index) UpsertBatch(_ context.Context, records []domain.IndexRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	dim := x.dim
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim {
			return domain.WrapError(domain.ErrDataIntegrity, "memory upsert",
				fmt.Errorf("record %s has dimension %d, index holds %d", r.ID, len(r.Vector), dim))
		}
	}
	x.dim = dim
	for _, r := range records {
		meta := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		x.records[r.ID] = domain.IndexRecord{
			ID:       r.ID,
			Vector:   append(domain.EmbeddingVector(nil), r.Vector...),
			Metadata: meta,
		}
	}
	return nil
}

func (x *Index) Query(_ context.Context, vector []float32, topK int, _ string) ([]domain.Neighbor, error) {
	x.mu.RLock()
	if x.dim != 0 && len(vector) != x.dim {
		dim := x.dim
		x.mu.RUnlock()
		return nil, domain.WrapError(domain.ErrDataIntegrity, "memory query",
			fmt.Errorf("query vector has dimension %d, index holds %d", len(vector), dim))
	}
	out := make([]domain.Neighbor, 0, len(x.records))
	for _, r := range x.records {
		out = append(out, domain.Neighbor{
			ID:       r.ID,
			Distance: x.distance(vector, r.Vector),
			Metadata: r.Metadata,
		})
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		si, sj := x.measure.Similarity(out[i].Distance), x.measure.Similarity(out[j].Distance)
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (x *Index) Delete(_ context.Context, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		delete(x.records, id)
	}
	if len(x.records) == 0 {
		x.dim = 0
	}
	return nil
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

// IDs returns the stored record ids in sorted order.
func (x *Index) IDs() []string {
	x.mu.RLock()
	ids := make([]string, 0, len(x.records))
	for id := range x.records {
		ids = append(ids, id)
	}
	x.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (x *Index) distance(a []float32, b domain.EmbeddingVector) float64 {
	switch x.measure {
	case vectorindex.SquaredL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return sum
	case vectorindex.Cosine:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	default:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot
	}
}
