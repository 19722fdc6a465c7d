package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/resilience"
)

const DefaultUpsertBatchSize = 100

type DistanceMeasure string

const (
	DotProduct DistanceMeasure = "DOT_PRODUCT_DISTANCE"
	Cosine     DistanceMeasure = "COSINE_DISTANCE"
	SquaredL2  DistanceMeasure = "SQUARED_L2_DISTANCE"
)

func ParseDistanceMeasure(raw string) (DistanceMeasure, error) {
	switch DistanceMeasure(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", DotProduct:
		return DotProduct, nil
	case Cosine:
		return Cosine, nil
	case SquaredL2:
		return SquaredL2, nil
	default:
		return "", fmt.Errorf("unsupported distance measure %q", raw)
	}
}

// Similarity converts a raw backend distance into a higher-is-better score.
func (m DistanceMeasure) Similarity(distance float64) float64 {
	if m == SquaredL2 {
		return -distance
	}
	return distance
}

// Backend is one vector index service. Distances are reported in the backend's native
// measure; errors are tagged with domain kinds, unreachable services as ErrIndexUnavailable.
type Backend interface {
	UpsertBatch(ctx context.Context, records []domain.IndexRecord) error
	Query(ctx context.Context, vector []float32, topK int, deployedIndexID string) ([]domain.Neighbor, error)
	Delete(ctx context.Context, ids []string) error
}

type Config struct {
	UpsertBatchSize int
	Distance        DistanceMeasure
	// MinSimilarity drops results scoring below it when set.
	MinSimilarity   *float64
	DeployedIndexID string
	// Dimension is the required vector length. Zero only requires records of one upsert to agree.
	Dimension       int
}

type Client struct {
	backend Backend
	exec    *resilience.Executor
	cfg     Config
}

func NewClient(backend Backend, exec *resilience.Executor, cfg Config) *Client {
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = DefaultUpsertBatchSize
	}
	if cfg.Distance == "" {
		cfg.Distance = DotProduct
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		backend: backend,
		exec:    exec,
		cfg:     cfg,
	}
}

// Upsert writes records batch by batch. Failed batches do not stop later ones unless the
// context is done; every record of a failed batch is listed in the returned *domain.UpsertError.
func (c *Client) Upsert(ctx context.Context, records []domain.IndexRecord) (int, error) {
	dimension := c.cfg.Dimension
	for _, record := range records {
		if strings.TrimSpace(record.ID) == "" {
			return 0, domain.WrapError(domain.ErrInvalidInput, "upsert records", fmt.Errorf("record id is empty"))
		}
		if len(record.Vector) == 0 {
			return 0, domain.WrapError(domain.ErrDataIntegrity, "upsert records", fmt.Errorf("record %s has no vector", record.ID))
		}
		if dimension == 0 {
			dimension = len(record.Vector)
		}
		if len(record.Vector) != dimension {
			return 0, domain.WrapError(domain.ErrDataIntegrity, "upsert records",
				fmt.Errorf("record %s has dimension %d, expected %d", record.ID, len(record.Vector), dimension))
		}
	}

	var (
		succeeded int
		failedIDs []string
		firstErr  error
	)
	for start := 0; start < len(records); start += c.cfg.UpsertBatchSize {
		end := start + c.cfg.UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if ctx.Err() != nil {
			failedIDs = append(failedIDs, recordIDs(records[start:])...)
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}

		err := c.exec.Execute(ctx, "vector_index.upsert_batch", func(ctx context.Context) error {
			return c.backend.UpsertBatch(ctx, batch)
		}, resilience.DomainClassifier)
		if err != nil {
			failedIDs = append(failedIDs, recordIDs(batch)...)
			if firstErr == nil {
				firstErr = resilience.ToDomainError("upsert batch", err, domain.ErrIndexUnavailable)
			}
			continue
		}
		succeeded += len(batch)
	}

	if len(failedIDs) > 0 {
		return succeeded, &domain.UpsertError{
			FailedIDs: failedIDs,
			Succeeded: succeeded,
			Err:       firstErr,
		}
	}
	return succeeded, nil
}

// Search returns at most topK results, best first. An empty index yields an empty result.
func (c *Client) Search(ctx context.Context, queryVector domain.EmbeddingVector, topK int, deployedIndexID string) (domain.RetrievalResult, error) {
	if len(queryVector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query vector is empty"))
	}
	if c.cfg.Dimension > 0 && len(queryVector) != c.cfg.Dimension {
		return nil, domain.WrapError(domain.ErrDataIntegrity, "search",
			fmt.Errorf("query vector has dimension %d, expected %d", len(queryVector), c.cfg.Dimension))
	}
	if topK <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("top_k must be positive, got %d", topK))
	}
	if strings.TrimSpace(deployedIndexID) == "" {
		deployedIndexID = c.cfg.DeployedIndexID
	}

	var neighbors []domain.Neighbor
	err := c.exec.Execute(ctx, "vector_index.query", func(ctx context.Context) error {
		out, err := c.backend.Query(ctx, queryVector, topK, deployedIndexID)
		if err != nil {
			return err
		}
		neighbors = out
		return nil
	}, resilience.DomainClassifier)
	if err != nil {
		return nil, resilience.ToDomainError("search", err, domain.ErrIndexUnavailable)
	}

	result := make(domain.RetrievalResult, 0, len(neighbors))
	for _, n := range neighbors {
		score := c.cfg.Distance.Similarity(n.Distance)
		if c.cfg.MinSimilarity != nil && score < *c.cfg.MinSimilarity {
			continue
		}
		result = append(result, domain.RetrievedChunk{
			RecordID:         n.ID,
			SourceDocumentID: sourceDocumentID(n),
			Text:             n.Metadata[domain.MetaText],
			Score:            score,
		})
	}
	result.SortBySimilarity()
	if len(result) > topK {
		result = result[:topK]
	}
	return result, nil
}

// Delete removes records by id; unknown ids are not an error.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += c.cfg.UpsertBatchSize {
		end := start + c.cfg.UpsertBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		err := c.exec.Execute(ctx, "vector_index.delete", func(ctx context.Context) error {
			return c.backend.Delete(ctx, batch)
		}, resilience.DomainClassifier)
		if err != nil {
			return resilience.ToDomainError("delete records", err, domain.ErrIndexUnavailable)
		}
	}
	return nil
}

func sourceDocumentID(n domain.Neighbor) string {
	if id := n.Metadata[domain.MetaSourceDocumentID]; id != "" {
		return id
	}
	if i := strings.LastIndex(n.ID, "#"); i > 0 {
		if _, err := strconv.Atoi(n.ID[i+1:]); err == nil {
			return n.ID[:i]
		}
	}
	return n.ID
}

func recordIDs(records []domain.IndexRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
