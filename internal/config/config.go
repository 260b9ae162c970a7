package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension,omitempty"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// CacheConfig enables the redis embedding cache.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	TTLHours  int    `yaml:"ttl_hours"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Cache  *CacheConfig          `yaml:"cache,omitempty"`
}

// ChunkerConfig configures how transcripts are split into chunks.
type ChunkerConfig struct {
	// Window is the chunk duration in seconds.
	Window int `yaml:"window"`
	// BoundaryOnly drops the trailing partial window once a chunk exists.
	BoundaryOnly bool `yaml:"boundary_only"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Bolt   *BoltConfig   `yaml:"bolt,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
	Milvus *MilvusConfig `yaml:"milvus,omitempty"`
}

// BoltConfig points at a local bbolt index file.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// MilvusConfig contains connection details for a Milvus vector store.
type MilvusConfig struct {
	Address     string `yaml:"address"`
	Username    string `yaml:"username,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	Database    string `yaml:"database,omitempty"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrievalConfig tunes the query-then-expand step.
type RetrievalConfig struct {
	TopK        int `yaml:"top_k"`
	Concurrency int `yaml:"concurrency"`
	TimeoutSecs int `yaml:"timeout_secs"`
}

// OpenAICompleterConfig configures the chat completions client.
type OpenAICompleterConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// CompleterConfig selects the answer generator.
type CompleterConfig struct {
	Type      string                 `yaml:"type"`
	MaxQuotes int                    `yaml:"max_quotes,omitempty"`
	OpenAI    *OpenAICompleterConfig `yaml:"openai,omitempty"`
}

// IndexingConfig tunes batch indexing.
type IndexingConfig struct {
	Workers int `yaml:"workers"`
}

// CitationsConfig controls citation links.
type CitationsConfig struct {
	BaseURL string `yaml:"base_url"`
}

// PersonaConfig shapes the system prompt.
type PersonaConfig struct {
	Name     string `yaml:"name"`
	Who      string `yaml:"who"`
	Language string `yaml:"language"`
	Length   int    `yaml:"length"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Completer   CompleterConfig   `yaml:"completer"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	Citations   CitationsConfig   `yaml:"citations"`
	Persona     PersonaConfig     `yaml:"persona"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./vidrag.yaml first, then ~/.config/vidrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/vidrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "vidrag.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types and combinations that cannot work.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Embedder.Type {
	case "tfidf":
		// TF-IDF vocabularies live in process memory only.
		if c.VectorStore.Type != "memory" {
			errs = append(errs, fmt.Errorf("embedder tfidf requires vector_store memory, got %q", c.VectorStore.Type))
		}
	case "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder: %q", c.Embedder.Type))
	}
	if cache := c.Embedder.Cache; cache != nil && cache.Enabled {
		if cache.Addr == "" {
			errs = append(errs, errors.New("embedder cache enabled without addr"))
		}
		if c.Embedder.Type == "tfidf" {
			errs = append(errs, errors.New("embedder cache cannot be used with tfidf"))
		}
	}
	switch c.VectorStore.Type {
	case "memory":
	case "bolt":
		if c.VectorStore.Bolt == nil || c.VectorStore.Bolt.Path == "" {
			errs = append(errs, errors.New("bolt vector store needs bolt.path"))
		}
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			errs = append(errs, errors.New("qdrant vector store needs qdrant.url"))
		}
	case "milvus":
		if c.VectorStore.Milvus == nil || c.VectorStore.Milvus.Address == "" {
			errs = append(errs, errors.New("milvus vector store needs milvus.address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector store: %q", c.VectorStore.Type))
	}
	switch c.Completer.Type {
	case "extractive", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown completer: %q", c.Completer.Type))
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"chunker.window", c.Chunker.Window},
		{"retrieval.top_k", c.Retrieval.TopK},
		{"retrieval.concurrency", c.Retrieval.Concurrency},
		{"retrieval.timeout_secs", c.Retrieval.TimeoutSecs},
		{"indexing.workers", c.Indexing.Workers},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", f.name, f.value))
		}
	}
	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vidrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Window: 30},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Completer:   CompleterConfig{Type: "extractive"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.Completer.Type == "" {
		cfg.Completer.Type = "extractive"
	}
	if cfg.Chunker.Window == 0 {
		cfg.Chunker.Window = 30
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.Concurrency == 0 {
		cfg.Retrieval.Concurrency = 4
	}
	if cfg.Retrieval.TimeoutSecs == 0 {
		cfg.Retrieval.TimeoutSecs = 60
	}
	if cfg.Indexing.Workers == 0 {
		cfg.Indexing.Workers = 4
	}
	if cfg.Citations.BaseURL == "" {
		cfg.Citations.BaseURL = "https://www.youtube.com/watch"
	}
	if cfg.Persona.Language == "" {
		cfg.Persona.Language = "English"
	}
	if cfg.Persona.Length == 0 {
		cfg.Persona.Length = 100
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI == nil {
		cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
	}
	if o := cfg.Embedder.OpenAI; o != nil {
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-ada-002"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 5
		}
	}
	if c := cfg.Embedder.Cache; c != nil {
		if c.TTLHours == 0 {
			c.TTLHours = 24
		}
	}
	if cfg.Completer.Type == "openai" && cfg.Completer.OpenAI == nil {
		cfg.Completer.OpenAI = &OpenAICompleterConfig{}
	}
	if o := cfg.Completer.OpenAI; o != nil {
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "gpt-4o-mini"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 120
		}
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "vidrag"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if m := cfg.VectorStore.Milvus; m != nil {
		if m.Collection == "" {
			m.Collection = "vidrag"
		}
		if m.TimeoutSecs == 0 {
			m.TimeoutSecs = 15
		}
	}
}
