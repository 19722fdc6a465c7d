package domain

import "sort"

// EmbeddingVector has the fixed dimension agreed with the index.
type EmbeddingVector []float32

// Metadata keys stored alongside every index record.
const (
	MetaSourceDocumentID = "source_document_id"
	MetaSequenceIndex    = "sequence_index"
	MetaText             = "text"
	MetaSourceFile       = "source_file"
)

type IndexRecord struct {
	ID       string            `json:"id"`
	Vector   EmbeddingVector   `json:"vector"`
	Metadata map[string]string `json:"metadata"`
}

// Neighbor is a raw nearest-neighbour hit as reported by an index backend.
type Neighbor struct {
	ID       string
	Distance float64
	Metadata map[string]string
}

type RetrievedChunk struct {
	RecordID         string  `json:"record_id"`
	SourceDocumentID string  `json:"source_document_id"`
	Text             string  `json:"text"`
	Score            float64 `json:"score"`
}

// RetrievalResult is ordered by descending similarity.
type RetrievalResult []RetrievedChunk

// SortBySimilarity orders best-first; ties keep a stable record id order.
func (r RetrievalResult) SortBySimilarity() {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		return r[i].RecordID < r[j].RecordID
	})
}

type Answer struct {
	Text     string          `json:"text"`
	Sources  RetrievalResult `json:"sources"`
	Grounded bool            `json:"grounded"`
	Fallback bool            `json:"fallback"`
}
