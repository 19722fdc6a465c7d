package ports

import (
	"context"
	"io"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

// ObjectStorage reads and writes source documents.
type ObjectStorage interface {
	Open(ctx context.Context, ref domain.DocumentRef) (io.ReadCloser, error)
	Save(ctx context.Context, ref domain.DocumentRef, contentType string, data io.Reader) error
}

// MessageQueue publishes/consumes document upload events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, ref domain.DocumentRef) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, domain.DocumentRef) error) error
}

// TextExtractor extracts plain text from raw document bytes.
type TextExtractor interface {
	Supports(extension string) bool
	Extract(ctx context.Context, ref domain.DocumentRef, data []byte) (string, error)
}

// Chunker splits extracted text into ordered chunks.
type Chunker interface {
	Chunk(documentID, text string) []domain.Chunk
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error)
	EmbedQuery(ctx context.Context, text string) (domain.EmbeddingVector, error)
}

// VectorIndex stores index records and answers nearest-neighbour queries.
type VectorIndex interface {
	Upsert(ctx context.Context, records []domain.IndexRecord) (int, error)
	Search(ctx context.Context, queryVector domain.EmbeddingVector, topK int, deployedIndexID string) (domain.RetrievalResult, error)
	Delete(ctx context.Context, ids []string) error
}

// Generator sends an assembled prompt to the generative model.
type Generator interface {
	Generate(ctx context.Context, prompt domain.Prompt) (string, error)
}

// IngestionTracker records ingestion state transitions.
type IngestionTracker interface {
	SaveRun(ctx context.Context, run domain.IngestionRun) error
	GetRun(ctx context.Context, documentID string) (*domain.IngestionRun, error)
}
