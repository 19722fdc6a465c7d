package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/aiplatform/v1"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/config"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/ports"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/usecase"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/cache/rediscache"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/chunking"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/embedding"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/extractor"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/extractor/pdf"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/extractor/xlsx"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/gcp"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/generation"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/llm/ollama"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/llm/openai"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/llm/vertex"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/queue/nats"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/repository/postgres"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/resilience"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/storage/gcs"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/storage/localfs"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/vector/memory"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/vector/qdrant"
	vertexindex "github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/vector/vertex"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/vectorindex"
)

// Options selects the optional parts of the wiring. Binaries that never publish upload
// events skip the NATS connection.
type Options struct {
	WithoutQueue bool
}

// Probe is one readiness check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type App struct {
	Config config.Config

	Query  ports.QueryService
	Ingest ports.DocumentIngestor
	// Upload is nil when the queue is not wired.
	Upload ports.DocumentUploader
	// Runs is nil when POSTGRES_DSN is empty.
	Runs  ports.IngestionReader
	Queue *nats.Queue

	Chunker   ports.Chunker
	Extractor ports.TextExtractor

	Probes []Probe

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	distance, err := vectorindex.ParseDistanceMeasure(cfg.DistanceMeasure)
	if err != nil {
		return nil, err
	}

	var aiSvc *aiplatform.Service
	if cfg.EmbeddingProvider == config.ProviderVertex ||
		cfg.GenerationProvider == config.ProviderVertex ||
		cfg.VectorIndexProvider == config.ProviderVertex {
		aiSvc, err = vertex.NewService(ctx, cfg.GCPLocation, gcp.ClientConfig{
			Endpoint:        cfg.VertexAPIEndpoint,
			CredentialsFile: cfg.GCPCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("init vertex ai: %w", err)
		}
	}

	embedProviders, err := newEmbeddingProviders(cfg, aiSvc)
	if err != nil {
		return nil, err
	}
	if cfg.RedisAddr != "" {
		client := rediscache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		store := rediscache.NewRedisStore(client)
		app.closers = append(app.closers, func() { _ = client.Close() })
		app.Probes = append(app.Probes, Probe{Name: "redis", Check: store.Ping})
		embedProviders.cache(store, cfg)
	}
	embedder := embedding.NewClient(embedProviders.documents, providerExecutor(cfg), embedding.Config{
		BatchSize:   cfg.EmbeddingBatchSize,
		Concurrency: cfg.EmbeddingConcurrency,
		Dimension:   cfg.EmbeddingDimension,
	})
	if embedProviders.queries != nil {
		embedder.WithQueryProvider(embedProviders.queries)
	}

	genProvider, err := newGenerationProvider(cfg, aiSvc)
	if err != nil {
		return nil, err
	}
	generator := generation.NewClient(genProvider, providerExecutor(cfg))

	backend, err := app.newIndexBackend(ctx, cfg, aiSvc, distance)
	if err != nil {
		return nil, err
	}
	index := vectorindex.NewClient(backend, providerExecutor(cfg), vectorindex.Config{
		UpsertBatchSize: cfg.UpsertBatchSize,
		Distance:        distance,
		MinSimilarity:   cfg.ScoreThreshold,
		DeployedIndexID: cfg.VertexDeployedIndex,
		Dimension:       cfg.EmbeddingDimension,
	})

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var tracker ports.IngestionTracker
	if cfg.PostgresDSN != "" {
		repo, db, err := openTracker(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		app.Probes = append(app.Probes, Probe{Name: "postgres", Check: repo.Ping})
		tracker = repo
		app.Runs = repo
	}

	app.Extractor, app.Chunker = NewTextPipeline(cfg)

	app.Ingest = usecase.NewIngestDocumentUseCase(
		storage,
		app.Extractor,
		app.Chunker,
		embedder,
		index,
		tracker,
		ingestExecutor(cfg),
	)
	app.Query = usecase.NewQueryUseCase(
		embedder,
		index,
		generator,
		usecase.NewPromptAssembler(usecase.PromptConfig{MaxChars: cfg.PromptMaxChars}),
		usecase.QueryConfig{
			TopK:            cfg.RAGTopK,
			HistoryTurns:    cfg.HistoryTurns,
			DeployedIndexID: cfg.VertexDeployedIndex,
			FallbackMessage: cfg.FallbackMessage,
		},
	)

	if !opts.WithoutQueue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			Concurrency:        cfg.IngestConcurrency,
			ResilienceExecutor: providerExecutor(cfg),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		app.Probes = append(app.Probes, Probe{Name: "nats", Check: queue.Ping})
		app.Queue = queue
		app.Upload = usecase.NewUploadDocumentUseCase(storage, queue, app.Extractor, cfg.DocumentBucket, cfg.UploadPrefix)
	}

	slog.Info("bootstrap_ready",
		"embedding_provider", cfg.EmbeddingProvider,
		"generation_provider", cfg.GenerationProvider,
		"vector_index_provider", cfg.VectorIndexProvider,
		"document_source", cfg.DocumentSource,
		"tracking", app.Runs != nil,
		"embedding_cache", cfg.RedisAddr != "",
	)
	ok = true
	return app, nil
}

// NewTextPipeline builds the extraction and chunking stages alone. They need no external
// service, so offline previews can use them without credentials.
func NewTextPipeline(cfg config.Config) (ports.TextExtractor, ports.Chunker) {
	registry := extractor.NewRegistry(
		pdf.NewExtractor(),
		xlsx.NewExtractor(),
		plaintext.NewExtractor(),
	).WithExtensions(cfg.IngestExtensions...)
	return registry, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
}

// Ready runs every probe and joins the failures.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	for _, p := range a.Probes {
		if err := p.Check(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// embeddingProviders holds the document provider and, for task-typed models, a separate
// query provider.
type embeddingProviders struct {
	documents     embedding.Provider
	queries       embedding.Provider
	model         string
	documentsTask string
	queriesTask   string
}

func newEmbeddingProviders(cfg config.Config, aiSvc *aiplatform.Service) (*embeddingProviders, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderVertex:
		newEmbedder := func(taskType string) *vertex.Embedder {
			return vertex.NewEmbedder(aiSvc, cfg.GCPProject, cfg.GCPLocation, cfg.VertexEmbeddingModel, cfg.EmbeddingDimension).
				WithTaskType(taskType)
		}
		p := &embeddingProviders{
			documents:     newEmbedder(cfg.VertexEmbeddingTaskType),
			model:         cfg.VertexEmbeddingModel,
			documentsTask: cfg.VertexEmbeddingTaskType,
		}
		if cfg.VertexQueryTaskType != cfg.VertexEmbeddingTaskType {
			p.queries = newEmbedder(cfg.VertexQueryTaskType)
			p.queriesTask = cfg.VertexQueryTaskType
		}
		return p, nil
	case config.ProviderOllama:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.HTTPTimeout())
		return &embeddingProviders{documents: ollama.NewEmbedder(client), model: cfg.OllamaEmbedModel}, nil
	case config.ProviderOpenAI:
		return &embeddingProviders{documents: openai.New(openAIConfig(cfg)), model: cfg.OpenAIEmbeddingModel}, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}
}

// cache puts a redis read-through cache in front of every provider.
func (p *embeddingProviders) cache(store rediscache.Store, cfg config.Config) {
	wrap := func(provider embedding.Provider, taskType string) embedding.Provider {
		return rediscache.NewEmbeddingCache(provider, store, rediscache.Config{
			TTL:       cfg.EmbeddingCacheTTL(),
			Model:     p.model,
			Dimension: cfg.EmbeddingDimension,
			TaskType:  taskType,
		})
	}
	p.documents = wrap(p.documents, p.documentsTask)
	if p.queries != nil {
		p.queries = wrap(p.queries, p.queriesTask)
	}
}

func newGenerationProvider(cfg config.Config, aiSvc *aiplatform.Service) (generation.Provider, error) {
	switch cfg.GenerationProvider {
	case config.ProviderVertex:
		return vertex.NewGenerator(aiSvc, cfg.GCPProject, cfg.GCPLocation, cfg.GeminiModel, vertex.GenerationParams{
			Temperature:     cfg.GenerationTemperature,
			MaxOutputTokens: int64(cfg.GenerationMaxTokens),
		}), nil
	case config.ProviderOllama:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.HTTPTimeout()).
			WithOptions(ollama.Options{
				Temperature: cfg.GenerationTemperature,
				NumPredict:  cfg.GenerationMaxTokens,
			})
		return ollama.NewGenerator(client), nil
	case config.ProviderOpenAI:
		return openai.New(openAIConfig(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.GenerationProvider)
	}
}

func openAIConfig(cfg config.Config) openai.Config {
	return openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		ChatModel:      cfg.OpenAIChatModel,
		EmbeddingModel: cfg.OpenAIEmbeddingModel,
		Dimensions:     cfg.EmbeddingDimension,
		Temperature:    float32(cfg.GenerationTemperature),
		MaxTokens:      cfg.GenerationMaxTokens,
	}
}

func (a *App) newIndexBackend(
	ctx context.Context,
	cfg config.Config,
	aiSvc *aiplatform.Service,
	distance vectorindex.DistanceMeasure,
) (vectorindex.Backend, error) {
	switch cfg.VectorIndexProvider {
	case config.ProviderVertex:
		querySvc := aiSvc
		if host := strings.TrimSpace(cfg.VertexPublicEndpointDomain); host != "" {
			svc, err := vertex.NewService(ctx, cfg.GCPLocation, gcp.ClientConfig{
				Endpoint:        "https://" + strings.TrimSuffix(host, "/") + "/",
				CredentialsFile: cfg.GCPCredentialsFile,
			})
			if err != nil {
				return nil, fmt.Errorf("init vertex public endpoint: %w", err)
			}
			querySvc = svc
		}
		index, err := vertexindex.New(aiSvc, querySvc, vertexindex.Config{
			Project:           cfg.GCPProject,
			Location:          cfg.GCPLocation,
			IndexID:           cfg.VertexIndexID,
			IndexEndpoint:     cfg.VertexIndexEndpoint,
			TextRestrictChars: cfg.VertexTextRestrictChars,
		})
		if err != nil {
			return nil, fmt.Errorf("init vertex index: %w", err)
		}
		return index, nil
	case config.ProviderQdrant:
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrantDistance(distance))
		a.Probes = append(a.Probes, Probe{Name: "qdrant", Check: client.Ping})
		return client, nil
	case config.ProviderMemory:
		return memory.New(distance), nil
	default:
		return nil, fmt.Errorf("unsupported vector index provider %q", cfg.VectorIndexProvider)
	}
}

// qdrantDistance maps the configured measure onto the collection distance. Qdrant reports
// Euclid as a distance, so squared L2 ordering still holds.
func qdrantDistance(m vectorindex.DistanceMeasure) string {
	switch m {
	case vectorindex.Cosine:
		return "Cosine"
	case vectorindex.SquaredL2:
		return "Euclid"
	default:
		return "Dot"
	}
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	if cfg.DocumentSource == config.SourceGCS {
		s, err := gcs.New(ctx, cfg.DocumentBucket, gcp.ClientConfig{CredentialsFile: cfg.GCPCredentialsFile})
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return s, nil
	}
	s, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	return s, nil
}

func openTracker(ctx context.Context, dsn string) (*postgres.IngestionRepository, *sql.DB, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewIngestionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, db, nil
}

func providerExecutor(cfg config.Config) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff(),
		RetryMaxBackoff:     cfg.RetryMaxBackoff(),
		AttemptTimeout:      cfg.HTTPTimeout(),
		RateLimitRPS:        cfg.ProviderRateLimitRPS,
		BreakerEnabled:      cfg.BreakerEnabled,
	})
}

// ingestExecutor retries whole documents. The clients below it own the per-call deadlines,
// and the worker bounds the whole run with INGEST_TIMEOUT_SECONDS.
func ingestExecutor(cfg config.Config) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.IngestMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff(),
		RetryMaxBackoff:     cfg.RetryMaxBackoff(),
		BreakerEnabled:      false,
	})
}
