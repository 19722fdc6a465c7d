package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/chunking"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/extractor/plaintext"
)

type queryFake struct {
	history domain.ConversationHistory
}

func (f *queryFake) Answer(_ context.Context, query string, history domain.ConversationHistory) (*domain.Answer, error) {
	f.history = history
	return &domain.Answer{
		Text:     "answer to " + query,
		Sources:  domain.RetrievalResult{{RecordID: "doc1#0", SourceDocumentID: "doc1", Score: 0.91}},
		Grounded: true,
	}, nil
}

type ingestFake struct {
	refs []domain.DocumentRef
}

func (f *ingestFake) Ingest(_ context.Context, ref domain.DocumentRef) (*domain.IngestionReport, error) {
	f.refs = append(f.refs, ref)
	if strings.HasSuffix(ref.Key, ".bad") {
		return &domain.IngestionReport{DocumentID: ref.DocumentID(), State: domain.StateFailed, FailedStep: domain.StateEmbedded},
			&domain.IngestionError{DocumentID: ref.DocumentID(), Step: domain.StateEmbedded, Err: errors.New("quota")}
	}
	return &domain.IngestionReport{DocumentID: ref.DocumentID(), State: domain.StateUpserted, Chunks: 3, Upserted: 3, Attempts: 1}, nil
}

type uploadFake struct {
	filename string
}

func (f *uploadFake) Upload(_ context.Context, filename, _ string, body io.Reader) (domain.DocumentRef, error) {
	_, _ = io.ReadAll(body)
	f.filename = filename
	return domain.DocumentRef{Bucket: "lectures", Key: "uploads/" + filepath.Base(filename)}, nil
}

func run(t *testing.T, deps Deps, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd(deps)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func depsWith(svc *Services) Deps {
	return Deps{
		Open: func(context.Context, bool) (*Services, func(), error) {
			return svc, func() {}, nil
		},
		TextPipeline: func() (ports.TextExtractor, ports.Chunker, error) {
			return plaintext.NewExtractor(), chunking.NewSplitter(40, 0), nil
		},
	}
}

func TestAskPrintsAnswerAndSources(t *testing.T) {
	query := &queryFake{}
	out, err := run(t, depsWith(&Services{Query: query}),
		"ask", "what", "is", "entropy?", "--turn", "user:hi", "--turn", "assistant:hello")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "answer to what is entropy?") || !strings.Contains(out, "doc1#0") {
		t.Fatalf("unexpected output: %s", out)
	}
	if len(query.history) != 2 || query.history[0].Text != "hi" {
		t.Fatalf("unexpected history: %+v", query.history)
	}
}

func TestAskRejectsMalformedTurn(t *testing.T) {
	_, err := run(t, depsWith(&Services{Query: &queryFake{}}), "ask", "q", "--turn", "no-separator")
	if err == nil {
		t.Fatalf("expected error for malformed turn")
	}
}

func TestIngestUsesDefaultBucketAndReportsFailures(t *testing.T) {
	ingest := &ingestFake{}
	out, err := run(t, depsWith(&Services{Ingest: ingest, DefaultBucket: "lectures"}),
		"ingest", "week1.txt", "week2.bad")
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("expected partial failure error, got %v", err)
	}
	if len(ingest.refs) != 2 || ingest.refs[0].Bucket != "lectures" {
		t.Fatalf("unexpected refs: %+v", ingest.refs)
	}
	if !strings.Contains(out, "lectures/week1.txt\tupserted") || !strings.Contains(out, "step embedded") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestUploadOpensLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("lecture"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	upload := &uploadFake{}
	out, err := run(t, depsWith(&Services{Upload: upload}), "upload", path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out, "queued lectures/uploads/notes.txt") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRunsRequiresTracking(t *testing.T) {
	_, err := run(t, depsWith(&Services{}), "runs")
	if err == nil || !strings.Contains(err.Error(), "POSTGRES_DSN") {
		t.Fatalf("expected tracking error, got %v", err)
	}
}

func TestChunkPreviewsLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "week1.txt")
	text := strings.Repeat("Entropy measures uncertainty. ", 5)
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := run(t, depsWith(nil), "chunk", path, "--preview", "10")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if !strings.Contains(out, "week1.txt#0") || !strings.Contains(out, "week1.txt#1") {
		t.Fatalf("expected multiple chunks, got: %s", out)
	}
}

func TestChunkRejectsUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slides.pptx")
	_ = os.WriteFile(path, []byte("x"), 0o600)
	if _, err := run(t, depsWith(nil), "chunk", path); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, Deps{}, "version")
	if err != nil || !strings.Contains(out, "lecturectl dev") {
		t.Fatalf("unexpected version output %q (%v)", out, err)
	}
}
