package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, "extractive", cfg.Completer.Type)
	assert.Equal(t, 30, cfg.Chunker.Window)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "https://www.youtube.com/watch", cfg.Citations.BaseURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: openai
  cache:
    enabled: true
    addr: localhost:6379
chunker:
  window: 45
  boundary_only: true
vector_store:
  type: qdrant
  qdrant:
    url: http://localhost:6333
completer:
  type: openai
  openai:
    model: gpt-4o
persona:
  name: Sam
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 45, cfg.Chunker.Window)
	assert.True(t, cfg.Chunker.BoundaryOnly)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "text-embedding-ada-002", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 24, cfg.Embedder.Cache.TTLHours)
	assert.Equal(t, "vidrag", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "gpt-4o", cfg.Completer.OpenAI.Model)
	assert.Equal(t, "Sam", cfg.Persona.Name)
	assert.Equal(t, 100, cfg.Persona.Length)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder: [\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		ok     bool
	}{
		{"defaults", func(*AppConfig) {}, true},
		{"tfidf with bolt", func(c *AppConfig) {
			c.VectorStore = VectorStoreConfig{Type: "bolt", Bolt: &BoltConfig{Path: "x.db"}}
		}, false},
		{"openai with bolt", func(c *AppConfig) {
			c.Embedder.Type = "openai"
			c.VectorStore = VectorStoreConfig{Type: "bolt", Bolt: &BoltConfig{Path: "x.db"}}
		}, true},
		{"bolt without path", func(c *AppConfig) {
			c.Embedder.Type = "openai"
			c.VectorStore = VectorStoreConfig{Type: "bolt"}
		}, false},
		{"milvus without address", func(c *AppConfig) {
			c.Embedder.Type = "openai"
			c.VectorStore = VectorStoreConfig{Type: "milvus", Milvus: &MilvusConfig{}}
		}, false},
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "bert" }, false},
		{"unknown completer", func(c *AppConfig) { c.Completer.Type = "oracle" }, false},
		{"cache without addr", func(c *AppConfig) { c.Embedder.Cache = &CacheConfig{Enabled: true} }, false},
		{"cache with tfidf", func(c *AppConfig) { c.Embedder.Cache = &CacheConfig{Enabled: true, Addr: "localhost:6379"} }, false},
		{"cache with openai", func(c *AppConfig) {
			c.Embedder.Type = "openai"
			c.Embedder.Cache = &CacheConfig{Enabled: true, Addr: "localhost:6379"}
		}, true},
		{"negative window", func(c *AppConfig) { c.Chunker.Window = -1 }, false},
		{"negative top_k", func(c *AppConfig) { c.Retrieval.TopK = -1 }, false},
		{"negative concurrency", func(c *AppConfig) { c.Retrieval.Concurrency = -2 }, false},
		{"negative timeout", func(c *AppConfig) { c.Retrieval.TimeoutSecs = -5 }, false},
		{"negative workers", func(c *AppConfig) { c.Indexing.Workers = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Persona.Who = "a curious student"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDefault_PrefersWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("vidrag.yaml", []byte("retrieval:\n  top_k: 9\n"), 0o644))

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "vidrag.yaml", path)
	assert.Equal(t, 9, cfg.Retrieval.TopK)
}

func TestLoad_NegativeTimeoutRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  timeout_secs: -1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Retrieval.TimeoutSecs)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval.timeout_secs")
}
