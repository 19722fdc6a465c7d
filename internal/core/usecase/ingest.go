package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
)

const rollbackTimeout = 30 * time.Second

// Retrier re-runs a whole operation while its error is retriable.
type Retrier interface {
	Retry(ctx context.Context, operation string, fn func(context.Context) error) error
}

type IngestDocumentUseCase struct {
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	tracker   ports.IngestionTracker
	retrier   Retrier

	locks *keyedMutex
	now   func() time.Time
}

// NewIngestDocumentUseCase wires the ingestion pipeline. tracker and retrier may be nil.
func NewIngestDocumentUseCase(
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	tracker ports.IngestionTracker,
	retrier Retrier,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		storage:   storage,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		tracker:   tracker,
		retrier:   retrier,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ingestRun carries state across whole-document attempts.
type ingestRun struct {
	ref        domain.DocumentRef
	documentID string
	report     *domain.IngestionReport
	created    time.Time
	prevChunks int
	written    map[string]struct{}
	// settled is set once no record beyond the current chunk count can remain.
	settled bool
}

// indexedChunks is the upper bound of sequence indexes that may exist in the index.
func (r *ingestRun) indexedChunks() int {
	if r.settled || r.report.Chunks >= r.prevChunks {
		return r.report.Chunks
	}
	return r.prevChunks
}

func (uc *IngestDocumentUseCase) Ingest(ctx context.Context, ref domain.DocumentRef) (*domain.IngestionReport, error) {
	documentID := ref.DocumentID()
	if documentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest document", errors.New("object key is empty"))
	}

	run := &ingestRun{
		ref:        ref,
		documentID: documentID,
		written:    make(map[string]struct{}),
		report: &domain.IngestionReport{
			DocumentID: documentID,
			Source:     ref,
			State:      domain.StateReceived,
			StartedAt:  uc.now(),
		},
	}
	run.created = run.report.StartedAt

	if !uc.extractor.Supports(ref.Extension()) {
		run.report.State = domain.StateSkipped
		run.report.FinishedAt = uc.now()
		slog.Info("ingestion_skipped", "document_id", documentID, "extension", ref.Extension())
		uc.track(ctx, run)
		return run.report, nil
	}

	unlock := uc.locks.Lock(documentID)
	defer unlock()

	uc.loadPrevious(ctx, run)
	uc.transition(ctx, run, domain.StateReceived)

	attempt := func(ctx context.Context) error {
		run.report.Attempts++
		return uc.runPipeline(ctx, run)
	}
	var err error
	if uc.retrier != nil {
		err = uc.retrier.Retry(ctx, "ingest_document", attempt)
	} else {
		err = attempt(ctx)
	}
	run.report.FinishedAt = uc.now()

	if err != nil {
		return run.report, uc.fail(ctx, run, err)
	}

	uc.prune(ctx, run)
	uc.track(ctx, run)
	slog.Info("ingestion_completed",
		"document_id", documentID,
		"chunks", run.report.Chunks,
		"upserted", run.report.Upserted,
		"pruned", run.report.Pruned,
		"attempts", run.report.Attempts,
	)
	return run.report, nil
}

func (uc *IngestDocumentUseCase) runPipeline(ctx context.Context, run *ingestRun) error {
	data, err := uc.loadDocument(ctx, run.ref)
	if err != nil {
		return stepError(run, domain.StateExtracted, err)
	}

	text, err := uc.extractText(ctx, run.ref, data)
	if err != nil {
		return stepError(run, domain.StateExtracted, err)
	}
	uc.transition(ctx, run, domain.StateExtracted)

	chunks := uc.chunker.Chunk(run.documentID, text)
	run.report.Chunks = len(chunks)
	uc.transition(ctx, run, domain.StateChunked)

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return stepError(run, domain.StateEmbedded, err)
	}
	uc.transition(ctx, run, domain.StateEmbedded)

	if err := uc.upsert(ctx, run, chunks, vectors); err != nil {
		return stepError(run, domain.StateUpserted, err)
	}
	uc.transition(ctx, run, domain.StateUpserted)
	return nil
}

func (uc *IngestDocumentUseCase) loadDocument(ctx context.Context, ref domain.DocumentRef) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransient, "read document", err)
	}
	return data, nil
}

func (uc *IngestDocumentUseCase) extractText(ctx context.Context, ref domain.DocumentRef, data []byte) (string, error) {
	text, err := uc.extractor.Extract(ctx, ref, data)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func (uc *IngestDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddingVector, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrDataIntegrity,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	return vectors, nil
}

func (uc *IngestDocumentUseCase) upsert(ctx context.Context, run *ingestRun, chunks []domain.Chunk, vectors []domain.EmbeddingVector) error {
	if len(chunks) == 0 {
		run.report.Upserted = 0
		return nil
	}
	records := make([]domain.IndexRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.IndexRecord{
			ID:     c.RecordID(),
			Vector: vectors[i],
			Metadata: map[string]string{
				domain.MetaSourceDocumentID: c.SourceDocumentID,
				domain.MetaSequenceIndex:    strconv.Itoa(c.SequenceIndex),
				domain.MetaText:             c.Text,
				domain.MetaSourceFile:       run.ref.Filename(),
			},
		}
	}

	count, err := uc.index.Upsert(ctx, records)
	run.report.Upserted = count
	if err == nil {
		for _, r := range records {
			run.written[r.ID] = struct{}{}
		}
		return nil
	}

	var upsertErr *domain.UpsertError
	if errors.As(err, &upsertErr) {
		failed := make(map[string]struct{}, len(upsertErr.FailedIDs))
		for _, id := range upsertErr.FailedIDs {
			failed[id] = struct{}{}
		}
		for _, r := range records {
			if _, ok := failed[r.ID]; !ok {
				run.written[r.ID] = struct{}{}
			}
		}
	}
	return fmt.Errorf("upsert records: %w", err)
}

// prune removes records left over from a previous run that produced more chunks.
func (uc *IngestDocumentUseCase) prune(ctx context.Context, run *ingestRun) {
	if run.prevChunks <= run.report.Chunks {
		run.settled = true
		return
	}
	stale := make([]string, 0, run.prevChunks-run.report.Chunks)
	for i := run.report.Chunks; i < run.prevChunks; i++ {
		stale = append(stale, domain.RecordID(run.documentID, i))
	}
	if err := uc.index.Delete(ctx, stale); err != nil {
		slog.Warn("ingestion_prune_failed", "document_id", run.documentID, "records", len(stale), "error", err.Error())
		return
	}
	run.report.Pruned = len(stale)
	run.settled = true
}

// fail records the terminal failure and removes whatever this run managed to write.
func (uc *IngestDocumentUseCase) fail(ctx context.Context, run *ingestRun, err error) error {
	var ingestErr *domain.IngestionError
	if !errors.As(err, &ingestErr) {
		ingestErr = &domain.IngestionError{DocumentID: run.documentID, Step: domain.StateReceived, Err: err}
	}

	run.report.State = domain.StateFailed
	run.report.FailedStep = ingestErr.Step
	run.report.Error = ingestErr.Error()

	if len(run.written) > 0 {
		uc.rollback(ctx, run)
	}

	slog.Error("ingestion_failed",
		"document_id", run.documentID,
		"failed_step", string(ingestErr.Step),
		"attempts", run.report.Attempts,
		"error", ingestErr.Err.Error(),
	)
	uc.track(ctx, run)
	return ingestErr
}

func (uc *IngestDocumentUseCase) rollback(ctx context.Context, run *ingestRun) {
	ids := make(map[string]struct{}, len(run.written)+run.prevChunks)
	for id := range run.written {
		ids[id] = struct{}{}
	}
	// the previous version was partly overwritten, so none of it can stay
	for i := 0; i < run.prevChunks; i++ {
		ids[domain.RecordID(run.documentID, i)] = struct{}{}
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := uc.index.Delete(rctx, list); err != nil {
		slog.Error("ingestion_rollback_failed", "document_id", run.documentID, "records", len(list), "error", err.Error())
		return
	}
	slog.Warn("ingestion_rolled_back", "document_id", run.documentID, "records", len(list))
	run.report.Upserted = 0
}

func (uc *IngestDocumentUseCase) loadPrevious(ctx context.Context, run *ingestRun) {
	if uc.tracker == nil {
		return
	}
	prev, err := uc.tracker.GetRun(ctx, run.documentID)
	if err != nil {
		if !domain.IsKind(err, domain.ErrNotFound) {
			slog.Warn("ingestion_tracker_read_failed", "document_id", run.documentID, "error", err.Error())
		}
		return
	}
	run.created = prev.CreatedAt
	run.prevChunks = prev.ChunkCount
}

func (uc *IngestDocumentUseCase) transition(ctx context.Context, run *ingestRun, state domain.IngestionState) {
	run.report.State = state
	slog.Debug("ingestion_state", "document_id", run.documentID, "state", string(state), "attempt", run.report.Attempts)
	uc.track(ctx, run)
}

func (uc *IngestDocumentUseCase) track(ctx context.Context, run *ingestRun) {
	if uc.tracker == nil {
		return
	}
	err := uc.tracker.SaveRun(context.WithoutCancel(ctx), domain.IngestionRun{
		DocumentID: run.documentID,
		Bucket:     run.ref.Bucket,
		ObjectKey:  run.ref.Key,
		State:      run.report.State,
		FailedStep: run.report.FailedStep,
		Error:      run.report.Error,
		ChunkCount: run.indexedChunks(),
		CreatedAt:  run.created,
		UpdatedAt:  uc.now(),
	})
	if err != nil {
		slog.Warn("ingestion_tracker_write_failed", "document_id", run.documentID, "state", string(run.report.State), "error", err.Error())
	}
}

func stepError(run *ingestRun, step domain.IngestionState, err error) error {
	return &domain.IngestionError{DocumentID: run.documentID, Step: step, Err: err}
}

// keyedMutex serialises work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
