package bootstrap

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/config"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/vectorindex"
)

func localConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.EmbeddingProvider = config.ProviderOllama
	cfg.GenerationProvider = config.ProviderOllama
	cfg.VectorIndexProvider = config.ProviderMemory
	cfg.DocumentSource = config.SourceLocal
	cfg.StoragePath = t.TempDir()
	return cfg
}

func TestNewWiresLocalStackWithoutQueue(t *testing.T) {
	app, err := New(context.Background(), localConfig(t), Options{WithoutQueue: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Query == nil || app.Ingest == nil || app.Chunker == nil || app.Extractor == nil {
		t.Fatalf("expected core use cases to be wired: %+v", app)
	}
	if app.Upload != nil || app.Queue != nil {
		t.Fatalf("upload must not be wired without a queue")
	}
	if app.Runs != nil {
		t.Fatalf("tracking must stay disabled without POSTGRES_DSN")
	}
	if err := app.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func TestNewHonoursIngestExtensions(t *testing.T) {
	cfg := localConfig(t)
	cfg.IngestExtensions = []string{".pdf"}
	app, err := New(context.Background(), cfg, Options{WithoutQueue: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if !app.Extractor.Supports(".pdf") || app.Extractor.Supports(".txt") {
		t.Fatalf("extractor must follow INGEST_EXTENSIONS")
	}
}

func TestNewRejectsUnknownDistance(t *testing.T) {
	cfg := localConfig(t)
	cfg.DistanceMeasure = "manhattan"
	if _, err := New(context.Background(), cfg, Options{WithoutQueue: true}); err == nil {
		t.Fatalf("expected error for unknown distance measure")
	}
}

func TestReadyJoinsProbeFailures(t *testing.T) {
	app := &App{Probes: []Probe{
		{Name: "postgres", Check: func(context.Context) error { return errors.New("refused") }},
		{Name: "nats", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return errors.New("timeout") }},
	}}

	err := app.Ready(context.Background())
	if err == nil {
		t.Fatalf("expected readiness error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "postgres: refused") || !strings.Contains(msg, "redis: timeout") || strings.Contains(msg, "nats") {
		t.Fatalf("unexpected readiness error: %v", err)
	}
}

func TestVertexEmbeddingUsesQueryTaskType(t *testing.T) {
	cfg := config.Default()
	cfg.GCPProject = "p"

	providers, err := newEmbeddingProviders(cfg, nil)
	if err != nil {
		t.Fatalf("newEmbeddingProviders() error = %v", err)
	}
	if providers.documents == nil || providers.queries == nil {
		t.Fatalf("expected separate document and query providers: %+v", providers)
	}
	if providers.documentsTask != "RETRIEVAL_DOCUMENT" || providers.queriesTask != "RETRIEVAL_QUERY" {
		t.Fatalf("unexpected task types: %+v", providers)
	}

	cfg.VertexQueryTaskType = cfg.VertexEmbeddingTaskType
	providers, err = newEmbeddingProviders(cfg, nil)
	if err != nil {
		t.Fatalf("newEmbeddingProviders() error = %v", err)
	}
	if providers.queries != nil {
		t.Fatalf("equal task types must share one provider")
	}
}

func TestQdrantDistance(t *testing.T) {
	cases := map[vectorindex.DistanceMeasure]string{
		vectorindex.DotProduct: "Dot",
		vectorindex.Cosine:     "Cosine",
		vectorindex.SquaredL2:  "Euclid",
	}
	for in, want := range cases {
		if got := qdrantDistance(in); got != want {
			t.Fatalf("qdrantDistance(%s) = %s, want %s", in, got, want)
		}
	}
}
