package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "emb:"
	DefaultTTL    = 7 * 24 * time.Hour
)

// Store is the byte-level cache behind EmbeddingCache.
type Store interface {
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error
}

// RedisStore keeps entries in redis with MGET and a pipelined SET.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// GetMany returns one entry per key; misses are nil.
func (s *RedisStore) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([][]byte, len(keys))
	for i, v := range values {
		if str, ok := v.(string); ok {
			out[i] = []byte(str)
		}
	}
	return out, nil
}

func (s *RedisStore) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range entries {
			pipe.Set(ctx, key, value, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline set: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Provider is the embedding backend being cached.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Config struct {
	Prefix    string
	TTL       time.Duration
	// Model, Dimension and TaskType namespace keys, so changing any of them never serves stale vectors.
	Model     string
	Dimension int
	TaskType  string
}

// EmbeddingCache decorates a Provider. Cache failures are logged and bypassed;
// only provider errors reach the caller.
type EmbeddingCache struct {
	provider  Provider
	store     Store
	cfg       Config
	namespace string
}

func NewEmbeddingCache(provider Provider, store Store, cfg Config) *EmbeddingCache {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &EmbeddingCache{
		provider:  provider,
		store:     store,
		cfg:       cfg,
		namespace: cfg.Prefix + cfg.Model + ":" + strconv.Itoa(cfg.Dimension) + ":" + cfg.TaskType + ":",
	}
}

func (c *EmbeddingCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return c.provider.EmbedBatch(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}

	out := make([][]float32, len(texts))
	cached, err := c.store.GetMany(ctx, keys)
	if err != nil {
		slog.Warn("embedding_cache_get_failed", "error", err.Error())
		cached = nil
	}

	var (
		missing    []string
		missingIdx []int
	)
	for i := range texts {
		if i < len(cached) && cached[i] != nil {
			if vec, ok := decodeVector(cached[i]); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, texts[i])
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.provider.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		// leave count validation to the embedding client
		return vectors, nil
	}

	entries := make(map[string][]byte, len(missing))
	for j, idx := range missingIdx {
		out[idx] = vectors[j]
		entries[keys[idx]] = encodeVector(vectors[j])
	}
	if err := c.store.SetMany(ctx, entries, c.cfg.TTL); err != nil {
		slog.Warn("embedding_cache_set_failed", "error", err.Error())
	}
	return out, nil
}

func (c *EmbeddingCache) key(text string) string {
	hash := sha256.Sum256([]byte(text))
	return c.namespace + hex.EncodeToString(hash[:16])
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, true
}
