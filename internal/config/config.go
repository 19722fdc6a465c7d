package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderVertex = "vertex"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderQdrant = "qdrant"
	ProviderMemory = "memory"

	SourceGCS   = "gcs"
	SourceLocal = "local"
)

type Config struct {
	APIPort            string  `yaml:"api_port"`
	LogLevel           string  `yaml:"log_level"`
	CORSAllowAll       bool    `yaml:"cors_allow_all"`
	HTTPRateLimitRPS   float64 `yaml:"http_rate_limit_rps"`
	HTTPRateLimitBurst int     `yaml:"http_rate_limit_burst"`
	HTTPMaxInFlight    int     `yaml:"http_max_in_flight"`
	HTTPMaxConnections int     `yaml:"http_max_connections"`
	MaxUploadBytes     int64   `yaml:"max_upload_bytes"`

	EmbeddingProvider   string `yaml:"embedding_provider"`
	GenerationProvider  string `yaml:"generation_provider"`
	VectorIndexProvider string `yaml:"vector_index_provider"`
	DocumentSource      string `yaml:"document_source"`

	GCPProject         string `yaml:"gcp_project"`
	GCPLocation        string `yaml:"gcp_location"`
	GCPCredentialsFile string `yaml:"gcp_credentials_file"`
	// VertexAPIEndpoint overrides the regional aiplatform endpoint.
	VertexAPIEndpoint          string `yaml:"vertex_api_endpoint"`
	VertexEmbeddingModel       string `yaml:"vertex_embedding_model"`
	VertexEmbeddingTaskType    string `yaml:"vertex_embedding_task_type"`
	VertexQueryTaskType        string `yaml:"vertex_query_task_type"`
	GeminiModel                string `yaml:"gemini_model"`
	VertexIndexID              string `yaml:"vertex_index_id"`
	VertexIndexEndpoint        string `yaml:"vertex_index_endpoint"`
	VertexDeployedIndex        string `yaml:"vertex_deployed_index"`
	VertexPublicEndpointDomain string `yaml:"vertex_public_endpoint_domain"`
	VertexTextRestrictChars    int    `yaml:"vertex_text_restrict_chars"`

	EmbeddingDimension   int    `yaml:"embedding_dimension"`
	EmbeddingBatchSize   int    `yaml:"embedding_batch_size"`
	EmbeddingConcurrency int    `yaml:"embedding_concurrency"`
	DistanceMeasure      string `yaml:"distance_measure"`
	UpsertBatchSize      int    `yaml:"upsert_batch_size"`
	// ScoreThreshold drops weaker matches when set.
	ScoreThreshold *float64 `yaml:"score_threshold"`

	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	RAGTopK         int    `yaml:"rag_top_k"`
	HistoryTurns    int    `yaml:"history_turns"`
	PromptMaxChars  int    `yaml:"prompt_max_chars"`
	FallbackMessage string `yaml:"fallback_message"`

	GenerationTemperature float64 `yaml:"generation_temperature"`
	GenerationMaxTokens   int     `yaml:"generation_max_tokens"`

	HTTPTimeoutSeconds    int     `yaml:"http_timeout_seconds"`
	RetryMaxAttempts      int     `yaml:"retry_max_attempts"`
	RetryInitialBackoffMS int     `yaml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMS     int     `yaml:"retry_max_backoff_ms"`
	BreakerEnabled        bool    `yaml:"breaker_enabled"`
	ProviderRateLimitRPS  float64 `yaml:"provider_rate_limit_rps"`

	IngestExtensions     []string `yaml:"ingest_extensions"`
	IngestMaxAttempts    int      `yaml:"ingest_max_attempts"`
	IngestTimeoutSeconds int      `yaml:"ingest_timeout_seconds"`
	IngestConcurrency    int      `yaml:"ingest_concurrency"`

	DocumentBucket string `yaml:"document_bucket"`
	UploadPrefix   string `yaml:"upload_prefix"`
	StoragePath    string `yaml:"storage_path"`

	NATSURL        string `yaml:"nats_url"`
	NATSSubject    string `yaml:"nats_subject"`
	NATSQueueGroup string `yaml:"nats_queue_group"`

	// PostgresDSN enables ingestion run tracking when set.
	PostgresDSN string `yaml:"postgres_dsn"`

	// RedisAddr enables the embedding cache when set.
	RedisAddr            string `yaml:"redis_addr"`
	RedisPassword        string `yaml:"redis_password"`
	RedisDB              int    `yaml:"redis_db"`
	EmbeddingCacheTTLHrs int    `yaml:"embedding_cache_ttl_hours"`

	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`

	OllamaURL        string `yaml:"ollama_url"`
	OllamaGenModel   string `yaml:"ollama_gen_model"`
	OllamaEmbedModel string `yaml:"ollama_embed_model"`

	OpenAIAPIKey         string `yaml:"openai_api_key"`
	OpenAIBaseURL        string `yaml:"openai_base_url"`
	OpenAIChatModel      string `yaml:"openai_chat_model"`
	OpenAIEmbeddingModel string `yaml:"openai_embedding_model"`

	WorkerMetricsPort string `yaml:"worker_metrics_port"`
}

func Default() Config {
	return Config{
		APIPort:            "8000",
		LogLevel:           "info",
		CORSAllowAll:       true,
		HTTPRateLimitRPS:   20,
		HTTPRateLimitBurst: 40,
		HTTPMaxInFlight:    64,
		HTTPMaxConnections: 256,
		MaxUploadBytes:     50 << 20,

		EmbeddingProvider:   ProviderVertex,
		GenerationProvider:  ProviderVertex,
		VectorIndexProvider: ProviderVertex,
		DocumentSource:      SourceGCS,

		GCPLocation:             "us-central1",
		VertexEmbeddingModel:    "text-embedding-005",
		VertexEmbeddingTaskType: "RETRIEVAL_DOCUMENT",
		VertexQueryTaskType:     "RETRIEVAL_QUERY",
		GeminiModel:             "gemini-2.5-flash",
		VertexTextRestrictChars: 1000,

		EmbeddingDimension:   768,
		EmbeddingBatchSize:   100,
		EmbeddingConcurrency: 4,
		DistanceMeasure:      "DOT_PRODUCT_DISTANCE",
		UpsertBatchSize:      100,

		ChunkSize:      1500,
		ChunkOverlap:   0,
		RAGTopK:        5,
		HistoryTurns:   6,
		PromptMaxChars: 16000,

		GenerationTemperature: 0.2,
		GenerationMaxTokens:   512,

		HTTPTimeoutSeconds:    60,
		RetryMaxAttempts:      3,
		RetryInitialBackoffMS: 500,
		RetryMaxBackoffMS:     8000,
		BreakerEnabled:        true,

		IngestExtensions:     []string{".pdf", ".txt", ".md", ".xlsx"},
		IngestMaxAttempts:    3,
		IngestTimeoutSeconds: 600,
		IngestConcurrency:    4,

		UploadPrefix: "uploads",
		StoragePath:  "./data/storage",

		NATSURL:        "nats://localhost:4222",
		NATSSubject:    "documents.uploaded",
		NATSQueueGroup: "ingestion-workers",

		EmbeddingCacheTTLHrs: 168,

		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "lecture_chunks",

		OllamaURL:        "http://localhost:11434",
		OllamaGenModel:   "llama3.1:8b",
		OllamaEmbedModel: "nomic-embed-text",

		OpenAIChatModel:      "gpt-4o-mini",
		OpenAIEmbeddingModel: "text-embedding-3-small",

		WorkerMetricsPort: "9090",
	}
}

// Load builds the configuration from defaults, an optional YAML file (CONFIG_FILE),
// a .env file (ENV_FILE, default ".env") and the process environment, in that order.
func Load() (Config, error) {
	envFile := mustEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	// Cloud Run injects PORT.
	cfg.APIPort = mustEnv("API_PORT", mustEnv("PORT", cfg.APIPort))
	cfg.LogLevel = mustEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.CORSAllowAll = mustEnvBool("CORS_ALLOW_ALL", cfg.CORSAllowAll)
	cfg.HTTPRateLimitRPS = mustEnvFloat("HTTP_RATE_LIMIT_RPS", cfg.HTTPRateLimitRPS)
	cfg.HTTPRateLimitBurst = mustEnvInt("HTTP_RATE_LIMIT_BURST", cfg.HTTPRateLimitBurst)
	cfg.HTTPMaxInFlight = mustEnvInt("HTTP_MAX_IN_FLIGHT", cfg.HTTPMaxInFlight)
	cfg.HTTPMaxConnections = mustEnvInt("HTTP_MAX_CONNECTIONS", cfg.HTTPMaxConnections)
	cfg.MaxUploadBytes = int64(mustEnvInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))

	cfg.EmbeddingProvider = strings.ToLower(mustEnv("EMBEDDING_PROVIDER", cfg.EmbeddingProvider))
	cfg.GenerationProvider = strings.ToLower(mustEnv("GENERATION_PROVIDER", cfg.GenerationProvider))
	cfg.VectorIndexProvider = strings.ToLower(mustEnv("VECTOR_INDEX_PROVIDER", cfg.VectorIndexProvider))
	cfg.DocumentSource = strings.ToLower(mustEnv("DOCUMENT_SOURCE", cfg.DocumentSource))

	cfg.GCPProject = mustEnv("GOOGLE_CLOUD_PROJECT", cfg.GCPProject)
	cfg.GCPLocation = mustEnv("GOOGLE_CLOUD_LOCATION", cfg.GCPLocation)
	cfg.GCPCredentialsFile = mustEnv("GOOGLE_APPLICATION_CREDENTIALS", cfg.GCPCredentialsFile)
	cfg.VertexAPIEndpoint = mustEnv("VERTEX_AI_API_ENDPOINT", cfg.VertexAPIEndpoint)
	cfg.VertexEmbeddingModel = mustEnv("VERTEX_AI_EMBEDDING_MODEL", cfg.VertexEmbeddingModel)
	cfg.VertexEmbeddingTaskType = mustEnv("VERTEX_AI_EMBEDDING_TASK_TYPE", cfg.VertexEmbeddingTaskType)
	cfg.VertexQueryTaskType = mustEnv("VERTEX_AI_QUERY_TASK_TYPE", cfg.VertexQueryTaskType)
	cfg.GeminiModel = mustEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.VertexIndexID = mustEnv("VERTEX_AI_INDEX_ID", cfg.VertexIndexID)
	cfg.VertexIndexEndpoint = mustEnv("VERTEX_AI_INDEX_ENDPOINT", cfg.VertexIndexEndpoint)
	cfg.VertexDeployedIndex = mustEnv("VERTEX_AI_DEPLOYED_INDEX", cfg.VertexDeployedIndex)
	cfg.VertexPublicEndpointDomain = mustEnv("VERTEX_AI_PUBLIC_ENDPOINT_DOMAIN", cfg.VertexPublicEndpointDomain)
	cfg.VertexTextRestrictChars = mustEnvInt("VERTEX_AI_TEXT_RESTRICT_CHARS", cfg.VertexTextRestrictChars)

	cfg.EmbeddingDimension = mustEnvInt("EMBEDDING_DIMENSION", cfg.EmbeddingDimension)
	cfg.EmbeddingBatchSize = mustEnvInt("EMBEDDING_BATCH_SIZE", cfg.EmbeddingBatchSize)
	cfg.EmbeddingConcurrency = mustEnvInt("EMBEDDING_CONCURRENCY", cfg.EmbeddingConcurrency)
	cfg.DistanceMeasure = mustEnv("DISTANCE_MEASURE", cfg.DistanceMeasure)
	cfg.UpsertBatchSize = mustEnvInt("UPSERT_BATCH_SIZE", cfg.UpsertBatchSize)
	cfg.ScoreThreshold = mustEnvFloatPtr("SCORE_THRESHOLD", cfg.ScoreThreshold)

	cfg.ChunkSize = mustEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = mustEnvInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.RAGTopK = mustEnvInt("RAG_TOP_K", cfg.RAGTopK)
	cfg.HistoryTurns = mustEnvInt("HISTORY_TURNS", cfg.HistoryTurns)
	cfg.PromptMaxChars = mustEnvInt("PROMPT_MAX_CHARS", cfg.PromptMaxChars)
	cfg.FallbackMessage = mustEnv("FALLBACK_MESSAGE", cfg.FallbackMessage)

	cfg.GenerationTemperature = mustEnvFloat("GENERATION_TEMPERATURE", cfg.GenerationTemperature)
	cfg.GenerationMaxTokens = mustEnvInt("GENERATION_MAX_TOKENS", cfg.GenerationMaxTokens)

	cfg.HTTPTimeoutSeconds = mustEnvInt("HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeoutSeconds)
	cfg.RetryMaxAttempts = mustEnvInt("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.RetryInitialBackoffMS = mustEnvInt("RETRY_INITIAL_BACKOFF_MS", cfg.RetryInitialBackoffMS)
	cfg.RetryMaxBackoffMS = mustEnvInt("RETRY_MAX_BACKOFF_MS", cfg.RetryMaxBackoffMS)
	cfg.BreakerEnabled = mustEnvBool("BREAKER_ENABLED", cfg.BreakerEnabled)
	cfg.ProviderRateLimitRPS = mustEnvFloat("PROVIDER_RATE_LIMIT_RPS", cfg.ProviderRateLimitRPS)

	cfg.IngestExtensions = mustEnvList("INGEST_EXTENSIONS", cfg.IngestExtensions)
	cfg.IngestMaxAttempts = mustEnvInt("INGEST_MAX_ATTEMPTS", cfg.IngestMaxAttempts)
	cfg.IngestTimeoutSeconds = mustEnvInt("INGEST_TIMEOUT_SECONDS", cfg.IngestTimeoutSeconds)
	cfg.IngestConcurrency = mustEnvInt("INGEST_CONCURRENCY", cfg.IngestConcurrency)

	cfg.DocumentBucket = mustEnv("DOCUMENT_BUCKET", cfg.DocumentBucket)
	cfg.UploadPrefix = mustEnv("UPLOAD_PREFIX", cfg.UploadPrefix)
	cfg.StoragePath = mustEnv("STORAGE_PATH", cfg.StoragePath)

	cfg.NATSURL = mustEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = mustEnv("NATS_SUBJECT", cfg.NATSSubject)
	cfg.NATSQueueGroup = mustEnv("NATS_QUEUE_GROUP", cfg.NATSQueueGroup)

	cfg.PostgresDSN = mustEnv("POSTGRES_DSN", cfg.PostgresDSN)

	cfg.RedisAddr = mustEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = mustEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = mustEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.EmbeddingCacheTTLHrs = mustEnvInt("EMBEDDING_CACHE_TTL_HOURS", cfg.EmbeddingCacheTTLHrs)

	cfg.QdrantURL = mustEnv("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantCollection = mustEnv("QDRANT_COLLECTION", cfg.QdrantCollection)

	cfg.OllamaURL = mustEnv("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaGenModel = mustEnv("OLLAMA_GEN_MODEL", cfg.OllamaGenModel)
	cfg.OllamaEmbedModel = mustEnv("OLLAMA_EMBED_MODEL", cfg.OllamaEmbedModel)

	cfg.OpenAIAPIKey = mustEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = mustEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIChatModel = mustEnv("OPENAI_CHAT_MODEL", cfg.OpenAIChatModel)
	cfg.OpenAIEmbeddingModel = mustEnv("OPENAI_EMBEDDING_MODEL", cfg.OpenAIEmbeddingModel)

	cfg.WorkerMetricsPort = mustEnv("WORKER_METRICS_PORT", cfg.WorkerMetricsPort)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(oneOf(c.EmbeddingProvider, ProviderVertex, ProviderOllama, ProviderOpenAI),
		"EMBEDDING_PROVIDER must be vertex, ollama or openai, got %q", c.EmbeddingProvider)
	check(oneOf(c.GenerationProvider, ProviderVertex, ProviderOllama, ProviderOpenAI),
		"GENERATION_PROVIDER must be vertex, ollama or openai, got %q", c.GenerationProvider)
	check(oneOf(c.VectorIndexProvider, ProviderVertex, ProviderQdrant, ProviderMemory),
		"VECTOR_INDEX_PROVIDER must be vertex, qdrant or memory, got %q", c.VectorIndexProvider)
	check(oneOf(c.DocumentSource, SourceGCS, SourceLocal),
		"DOCUMENT_SOURCE must be gcs or local, got %q", c.DocumentSource)

	if c.usesVertex() {
		check(c.GCPProject != "", "GOOGLE_CLOUD_PROJECT is required for vertex providers")
		check(c.GCPLocation != "", "GOOGLE_CLOUD_LOCATION is required for vertex providers")
	}
	if c.VectorIndexProvider == ProviderVertex {
		check(c.VertexIndexID != "", "VERTEX_AI_INDEX_ID is required for the vertex vector index")
		check(c.VertexIndexEndpoint != "", "VERTEX_AI_INDEX_ENDPOINT is required for the vertex vector index")
		check(c.VertexDeployedIndex != "", "VERTEX_AI_DEPLOYED_INDEX is required for the vertex vector index")
	}
	if c.DocumentSource == SourceGCS {
		check(c.DocumentBucket != "", "DOCUMENT_BUCKET is required for the gcs document source")
	}
	if c.EmbeddingProvider == ProviderOpenAI || c.GenerationProvider == ProviderOpenAI {
		check(c.OpenAIAPIKey != "", "OPENAI_API_KEY is required for openai providers")
	}

	check(oneOf(strings.ToUpper(c.DistanceMeasure), "DOT_PRODUCT_DISTANCE", "COSINE_DISTANCE", "SQUARED_L2_DISTANCE"),
		"DISTANCE_MEASURE %q is not supported", c.DistanceMeasure)
	check(c.EmbeddingDimension > 0, "EMBEDDING_DIMENSION must be positive")
	check(c.ChunkSize > 0, "CHUNK_SIZE must be positive")
	check(c.ChunkOverlap >= 0 && c.ChunkOverlap < c.ChunkSize, "CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	check(c.RAGTopK > 0, "RAG_TOP_K must be positive")
	check(c.HistoryTurns > 0, "HISTORY_TURNS must be positive")
	check(c.PromptMaxChars >= 0, "PROMPT_MAX_CHARS must not be negative")
	check(c.RetryMaxAttempts > 0, "RETRY_MAX_ATTEMPTS must be positive")
	check(c.IngestMaxAttempts > 0, "INGEST_MAX_ATTEMPTS must be positive")
	check(c.IngestConcurrency > 0, "INGEST_CONCURRENCY must be positive")
	check(c.HTTPTimeoutSeconds > 0, "HTTP_TIMEOUT_SECONDS must be positive")

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) usesVertex() bool {
	return c.EmbeddingProvider == ProviderVertex ||
		c.GenerationProvider == ProviderVertex ||
		c.VectorIndexProvider == ProviderVertex
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) IngestTimeout() time.Duration {
	return time.Duration(c.IngestTimeoutSeconds) * time.Second
}

func (c Config) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMS) * time.Millisecond
}

func (c Config) RetryMaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoffMS) * time.Millisecond
}

func (c Config) EmbeddingCacheTTL() time.Duration {
	return time.Duration(c.EmbeddingCacheTTLHrs) * time.Hour
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvFloatPtr(key string, fallback *float64) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return &f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
