package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"vidrag/internal/chunker"
	"vidrag/internal/config"
	"vidrag/internal/domain"
	"vidrag/internal/embedding"
	"vidrag/internal/embedding/openai"
	"vidrag/internal/embedding/tfidf"
	"vidrag/internal/llm/extractive"
	llmopenai "vidrag/internal/llm/openai"
	"vidrag/internal/logger"
	"vidrag/internal/service"
	"vidrag/internal/transcript"
	"vidrag/internal/vectorstore"
	"vidrag/internal/vectorstore/bolt"
	"vidrag/internal/vectorstore/memory"
	"vidrag/internal/vectorstore/milvus"
	"vidrag/internal/vectorstore/qdrant"
)

var errEmptyIndex = errors.New("the memory vector store starts empty; pass --manifest to index transcripts first")

// app holds the components assembled from one config.
type app struct {
	cfg     *config.AppConfig
	store   vectorstore.Storage
	redis   *goredis.Client
	service *service.RAGService
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	emb, rdb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	comp, err := newCompleter(cfg.Completer)
	if err != nil {
		return nil, err
	}
	st, err := newStore(ctx, cfg.VectorStore)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	svc := service.NewRAGService(newChunker(cfg.Chunker), emb, st, comp, service.Options{
		TopK:            cfg.Retrieval.TopK,
		Concurrency:     cfg.Retrieval.Concurrency,
		Workers:         cfg.Indexing.Workers,
		CitationBaseURL: cfg.Citations.BaseURL,
		Persona: service.Persona{
			Name:     cfg.Persona.Name,
			Who:      cfg.Persona.Who,
			Language: cfg.Persona.Language,
			Length:   cfg.Persona.Length,
		},
	})
	return &app{cfg: cfg, store: st, redis: rdb, service: svc}, nil
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

func (a *app) retrievalTimeout() time.Duration {
	return time.Duration(a.cfg.Retrieval.TimeoutSecs) * time.Second
}

// preload indexes the manifest given with --manifest. The memory store has
// nothing to query without it.
func (a *app) preload(cmd *cobra.Command, manifest string) error {
	if manifest == "" {
		if a.cfg.VectorStore.Type == "memory" {
			return errEmptyIndex
		}
		return nil
	}
	videos, err := transcript.LoadManifest(manifest)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	report, err := a.service.IndexVideos(cmd.Context(), videos)
	if err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	logger.Infow("indexed manifest", "path", manifest, "videos", report.Videos, "chunks", report.Chunks)
	return nil
}

func newChunker(cfg config.ChunkerConfig) *chunker.WindowChunker {
	opts := []chunker.Option{chunker.WithWindow(cfg.Window)}
	if cfg.BoundaryOnly {
		opts = append(opts, chunker.WithBoundaryOnly())
	}
	return chunker.NewWindowChunker(opts...)
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, *goredis.Client, error) {
	var emb domain.Embedder
	switch cfg.Type {
	case "tfidf":
		emb = tfidf.NewEmbedder()
	case "openai":
		if cfg.OpenAI == nil {
			return nil, nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKeyEnv:         cfg.OpenAI.APIKeyEnv,
			Model:             cfg.OpenAI.Model,
			Dimension:         cfg.OpenAI.Dimension,
			Timeout:           time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries:        cfg.OpenAI.MaxRetries,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}

	if cfg.Cache == nil || !cfg.Cache.Enabled {
		return emb, nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	cached := embedding.NewCachedEmbedder(emb, rdb, embedding.CacheConfig{
		TTL:       time.Duration(cfg.Cache.TTLHours) * time.Hour,
		KeyPrefix: cfg.Cache.KeyPrefix,
	})
	return cached, rdb, nil
}

func newStore(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "bolt":
		if cfg.Bolt == nil {
			return nil, errors.New("bolt config missing")
		}
		st, err := bolt.Open(bolt.Config{Path: cfg.Bolt.Path})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     envOrEmpty(cfg.Qdrant.APIKeyEnv),
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "milvus":
		if cfg.Milvus == nil {
			return nil, errors.New("milvus config missing")
		}
		st, err := milvus.New(ctx, milvus.Config{
			Address:    cfg.Milvus.Address,
			Username:   cfg.Milvus.Username,
			Password:   envOrEmpty(cfg.Milvus.PasswordEnv),
			Database:   cfg.Milvus.Database,
			Collection: cfg.Milvus.Collection,
			Timeout:    time.Duration(cfg.Milvus.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func newCompleter(cfg config.CompleterConfig) (domain.Completer, error) {
	switch cfg.Type {
	case "extractive":
		return extractive.NewCompleter(cfg.MaxQuotes), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai completer config missing")
		}
		c, err := llmopenai.NewCompleter(llmopenai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai completer init failed: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown completer: %s", cfg.Type)
	}
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
