// Package config provides typed configuration for CodeSmriti.
// All recognized options are enumerated here; there is no dynamic
// key lookup anywhere in the core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete CodeSmriti configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Ingest    IngestConfig    `yaml:"ingest" json:"ingest"`
	Summarize SummarizeConfig `yaml:"summarize" json:"summarize"`
	Embed     EmbedConfig     `yaml:"embed" json:"embed"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Jobs      JobsConfig      `yaml:"jobs" json:"jobs"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	// DataDir holds the document store, search indexes, and logs.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// CheckoutDir is the root under which repository working trees live,
	// one subdirectory per (tenant, repo).
	CheckoutDir string `yaml:"checkout_dir" json:"checkout_dir"`
}

// IngestConfig tunes the walker, chunker, and reconciler.
type IngestConfig struct {
	// WorkersPerJob is loaded and defaulted but not passed to the
	// pipeline; ParserParallelism sets the walk/parse parallelism.
	WorkersPerJob int `yaml:"workers_per_job" json:"workers_per_job"`

	// ParserParallelism is the number of files parsed concurrently.
	ParserParallelism int `yaml:"parser_parallelism" json:"parser_parallelism"`

	// MinSymbolLines is the minimum source span for a symbol document.
	MinSymbolLines int `yaml:"min_symbol_lines" json:"min_symbol_lines"`

	// MaxFileBytes is the hard size cap; larger files are skipped.
	MaxFileBytes int64 `yaml:"max_file_bytes" json:"max_file_bytes"`

	// MinFileBytes is the minimum content length after whitespace strip.
	MinFileBytes int `yaml:"min_file_bytes" json:"min_file_bytes"`

	// FileTokenThreshold decides whole-file vs. per-symbol chunking.
	FileTokenThreshold int `yaml:"file_token_threshold" json:"file_token_threshold"`

	// JunkPatterns are doublestar globs appended to the built-in skip list.
	JunkPatterns []string `yaml:"junk_patterns" json:"junk_patterns"`

	// ChunkChannelSize bounds the walker→summarizer channel.
	ChunkChannelSize int `yaml:"chunk_channel_size" json:"chunk_channel_size"`
}

// SummarizeConfig configures the hierarchical summarizer and its LLM backend.
type SummarizeConfig struct {
	// Endpoint is the chat-completions base URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Model is the model name sent with every request.
	Model string `yaml:"model" json:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	// InputBudgetTokens caps the child-summary concatenation per parent.
	InputBudgetTokens int `yaml:"input_budget_tokens" json:"input_budget_tokens"`

	// MaxRetries is the number of LLM attempts, the first one included,
	// before emitting a degraded summary.
	MaxRetries int `yaml:"llm_max_retries" json:"llm_max_retries"`

	// BackoffBaseMS and BackoffCapMS shape the exponential backoff.
	BackoffBaseMS int `yaml:"llm_backoff_base_ms" json:"llm_backoff_base_ms"`
	BackoffCapMS  int `yaml:"llm_backoff_cap_ms" json:"llm_backoff_cap_ms"`

	// RequestTimeout bounds a single LLM call.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// EmbedConfig configures the embedding pipeline.
type EmbedConfig struct {
	// Endpoint is the embedding service base URL (Ollama-compatible).
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`

	// Dims is the fixed embedding dimensionality; any other length is fatal.
	Dims int `yaml:"embed_dims" json:"embed_dims"`

	// BatchSize is the encode batch size.
	BatchSize int `yaml:"embed_batch_size" json:"embed_batch_size"`

	// MaxItemBytes truncates any single input at a whitespace boundary.
	MaxItemBytes int `yaml:"max_item_bytes" json:"max_item_bytes"`

	// CacheSize is the LRU embedding cache capacity (0 disables).
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// RequestTimeout bounds a single encode call.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// StorageConfig tunes the storage adapter.
type StorageConfig struct {
	// BatchSize is the write batch size for upserts and deletes.
	BatchSize int `yaml:"storage_batch_size" json:"storage_batch_size"`
}

// SearchConfig tunes the retrieval engine.
type SearchConfig struct {
	// Oversample multiplies limit to form the kNN k.
	Oversample int `yaml:"oversample" json:"oversample"`

	// PreviewChars is the summary truncation length in preview mode.
	PreviewChars int `yaml:"preview_chars" json:"preview_chars"`

	// RRFConstant is the rank-fusion smoothing parameter.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// MaxLimit caps any single request's limit.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// FetchByteCap bounds a single get_file response body.
	FetchByteCap int `yaml:"fetch_byte_cap" json:"fetch_byte_cap"`
}

// JobsConfig tunes the orchestrator.
type JobsConfig struct {
	// WorkerPoolSize is the number of jobs running concurrently
	// across tenants. Jobs within a tenant always serialize.
	WorkerPoolSize int `yaml:"worker_pool_size" json:"worker_pool_size"`

	// QueueCapacity bounds the pending-job queue.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`
}

// ServerConfig configures the job API.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`

	// TokenSecretEnv names the environment variable holding the HMAC
	// secret for tenant bearer tokens.
	TokenSecretEnv string `yaml:"token_secret_env" json:"token_secret_env"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:     defaultDataDir(),
			CheckoutDir: filepath.Join(defaultDataDir(), "checkouts"),
		},
		Ingest: IngestConfig{
			WorkersPerJob:      runtime.NumCPU(),
			ParserParallelism:  10,
			MinSymbolLines:     5,
			MaxFileBytes:       1 << 20, // 1 MiB
			MinFileBytes:       100,
			FileTokenThreshold: 6000,
			ChunkChannelSize:   256,
		},
		Summarize: SummarizeConfig{
			Endpoint:          "http://localhost:11434/v1",
			Model:             "qwen2.5-coder:7b",
			APIKeyEnv:         "CODESMRITI_LLM_API_KEY",
			InputBudgetTokens: 3000,
			MaxRetries:        3,
			BackoffBaseMS:     1000,
			BackoffCapMS:      30000,
			RequestTimeout:    120 * time.Second,
		},
		Embed: EmbedConfig{
			Endpoint:       "http://localhost:11434",
			Model:          "nomic-embed-text",
			Dims:           768,
			BatchSize:      128,
			MaxItemBytes:   6 * 1024,
			CacheSize:      10000,
			RequestTimeout: 120 * time.Second,
		},
		Storage: StorageConfig{
			BatchSize: 100,
		},
		Search: SearchConfig{
			Oversample:   2,
			PreviewChars: 200,
			RRFConstant:  60,
			MaxLimit:     100,
			FetchByteCap: 64 * 1024,
		},
		Jobs: JobsConfig{
			WorkerPoolSize: 4,
			QueueCapacity:  256,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:7411",
			TokenSecretEnv: "CODESMRITI_TOKEN_SECRET",
		},
		Logging: LoggingConfig{
			Level:         "info",
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
	}
}

// Load reads a YAML config file and merges it over defaults.
// A missing path returns defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the small set of environment overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CODESMRITI_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("CODESMRITI_LLM_ENDPOINT"); v != "" {
		cfg.Summarize.Endpoint = v
	}
	if v := os.Getenv("CODESMRITI_EMBED_ENDPOINT"); v != "" {
		cfg.Embed.Endpoint = v
	}
	if v := os.Getenv("CODESMRITI_EMBED_DIMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embed.Dims = n
		}
	}
	if v := os.Getenv("CODESMRITI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks option ranges and normalizes zero values to defaults.
func (c *Config) Validate() error {
	d := Default()

	if c.Ingest.WorkersPerJob <= 0 {
		c.Ingest.WorkersPerJob = d.Ingest.WorkersPerJob
	}
	if c.Ingest.ParserParallelism <= 0 {
		c.Ingest.ParserParallelism = d.Ingest.ParserParallelism
	}
	if c.Ingest.MinSymbolLines <= 0 {
		c.Ingest.MinSymbolLines = d.Ingest.MinSymbolLines
	}
	if c.Ingest.MaxFileBytes <= 0 {
		c.Ingest.MaxFileBytes = d.Ingest.MaxFileBytes
	}
	if c.Ingest.MinFileBytes <= 0 {
		c.Ingest.MinFileBytes = d.Ingest.MinFileBytes
	}
	if c.Ingest.FileTokenThreshold <= 0 {
		c.Ingest.FileTokenThreshold = d.Ingest.FileTokenThreshold
	}
	if c.Ingest.ChunkChannelSize <= 0 {
		c.Ingest.ChunkChannelSize = d.Ingest.ChunkChannelSize
	}

	if c.Summarize.InputBudgetTokens <= 0 {
		c.Summarize.InputBudgetTokens = d.Summarize.InputBudgetTokens
	}
	if c.Summarize.MaxRetries <= 0 {
		c.Summarize.MaxRetries = d.Summarize.MaxRetries
	}
	if c.Summarize.BackoffBaseMS <= 0 {
		c.Summarize.BackoffBaseMS = d.Summarize.BackoffBaseMS
	}
	if c.Summarize.BackoffCapMS <= 0 {
		c.Summarize.BackoffCapMS = d.Summarize.BackoffCapMS
	}
	if c.Summarize.RequestTimeout <= 0 {
		c.Summarize.RequestTimeout = d.Summarize.RequestTimeout
	}

	if c.Embed.Dims <= 0 {
		return fmt.Errorf("embed_dims must be positive, got %d", c.Embed.Dims)
	}
	if c.Embed.BatchSize <= 0 {
		c.Embed.BatchSize = d.Embed.BatchSize
	}
	if c.Embed.BatchSize > 512 {
		return fmt.Errorf("embed_batch_size %d exceeds maximum 512", c.Embed.BatchSize)
	}
	if c.Embed.MaxItemBytes <= 0 {
		c.Embed.MaxItemBytes = d.Embed.MaxItemBytes
	}
	if c.Embed.RequestTimeout <= 0 {
		c.Embed.RequestTimeout = d.Embed.RequestTimeout
	}

	if c.Storage.BatchSize <= 0 {
		c.Storage.BatchSize = d.Storage.BatchSize
	}

	if c.Search.Oversample <= 0 {
		c.Search.Oversample = d.Search.Oversample
	}
	if c.Search.PreviewChars <= 0 {
		c.Search.PreviewChars = d.Search.PreviewChars
	}
	if c.Search.RRFConstant <= 0 {
		c.Search.RRFConstant = d.Search.RRFConstant
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = d.Search.MaxLimit
	}
	if c.Search.FetchByteCap <= 0 {
		c.Search.FetchByteCap = d.Search.FetchByteCap
	}

	if c.Jobs.WorkerPoolSize <= 0 {
		c.Jobs.WorkerPoolSize = d.Jobs.WorkerPoolSize
	}
	if c.Jobs.QueueCapacity <= 0 {
		c.Jobs.QueueCapacity = d.Jobs.QueueCapacity
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	return nil
}

// LLMAPIKey resolves the configured API key, empty when unset.
func (c *Config) LLMAPIKey() string {
	if c.Summarize.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Summarize.APIKeyEnv)
}

// TokenSecret resolves the tenant-token HMAC secret.
func (c *Config) TokenSecret() []byte {
	if c.Server.TokenSecretEnv == "" {
		return nil
	}
	return []byte(os.Getenv(c.Server.TokenSecretEnv))
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codesmriti"
	}
	return filepath.Join(home, ".codesmriti")
}
