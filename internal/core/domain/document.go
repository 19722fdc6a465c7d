package domain

import (
	"path"
	"strconv"
	"strings"
	"time"
)

// DocumentRef is what the source trigger delivers for a newly stored document.
type DocumentRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"name"`
}

// DocumentID derives the stable source document id from the bucket and the full object key,
// so bucket "lectures" with "cs101/doc1.pdf" becomes "lectures/cs101/doc1.pdf". Empty for an empty key.
func (r DocumentRef) DocumentID() string {
	key := strings.TrimLeft(strings.TrimSpace(r.Key), "/")
	if key == "" {
		return ""
	}
	bucket := strings.Trim(strings.TrimSpace(r.Bucket), "/")
	if bucket == "" {
		return key
	}
	return bucket + "/" + key
}

// Extension returns the lower-cased extension including the dot.
func (r DocumentRef) Extension() string {
	return strings.ToLower(path.Ext(r.Key))
}

// Filename returns the last path element of the key.
func (r DocumentRef) Filename() string {
	return path.Base(r.Key)
}

func (r DocumentRef) String() string {
	if r.Bucket == "" {
		return r.Key
	}
	return r.Bucket + "/" + r.Key
}

type IngestionState string

const (
	StateReceived  IngestionState = "received"
	StateExtracted IngestionState = "extracted"
	StateChunked   IngestionState = "chunked"
	StateEmbedded  IngestionState = "embedded"
	StateUpserted  IngestionState = "upserted"
	StateFailed    IngestionState = "failed"
	// StateSkipped is reported for documents with an unrecognised extension.
	StateSkipped IngestionState = "skipped"
)

func (s IngestionState) Terminal() bool {
	return s == StateUpserted || s == StateFailed || s == StateSkipped
}

// IngestionReport describes one ingestion run.
type IngestionReport struct {
	DocumentID string         `json:"document_id"`
	Source     DocumentRef    `json:"source"`
	State      IngestionState `json:"state"`
	FailedStep IngestionState `json:"failed_step,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`
	Chunks     int            `json:"chunks"`
	Upserted   int            `json:"upserted"`
	Pruned     int            `json:"pruned,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// IngestionRun is the tracked state of the latest run for a document.
type IngestionRun struct {
	DocumentID string         `json:"document_id"`
	Bucket     string         `json:"bucket"`
	ObjectKey  string         `json:"object_key"`
	State      IngestionState `json:"state"`
	FailedStep IngestionState `json:"failed_step,omitempty"`
	Error      string         `json:"error,omitempty"`
	ChunkCount int            `json:"chunk_count"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Chunk is a contiguous span of extracted text.
type Chunk struct {
	SourceDocumentID string `json:"source_document_id"`
	SequenceIndex    int    `json:"sequence_index"`
	Text             string `json:"text"`
	CharOffset       int    `json:"char_offset"`
}

// RecordID is the deterministic index record id for this chunk.
func (c Chunk) RecordID() string {
	return RecordID(c.SourceDocumentID, c.SequenceIndex)
}

func RecordID(documentID string, sequenceIndex int) string {
	return documentID + "#" + strconv.Itoa(sequenceIndex)
}
