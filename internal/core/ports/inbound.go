package ports

import (
	"context"
	"io"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

// DocumentIngestor is the entrypoint the source trigger delivers document references to.
type DocumentIngestor interface {
	Ingest(ctx context.Context, ref domain.DocumentRef) (*domain.IngestionReport, error)
}

// QueryService is the inbound contract for grounded question answering.
type QueryService interface {
	Answer(ctx context.Context, query string, history domain.ConversationHistory) (*domain.Answer, error)
}

// DocumentUploader stores a document in the source bucket and fires the ingestion trigger.
type DocumentUploader interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (domain.DocumentRef, error)
}

// IngestionReader exposes the tracked state of ingestion runs.
type IngestionReader interface {
	GetRun(ctx context.Context, documentID string) (*domain.IngestionRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.IngestionRun, error)
}
