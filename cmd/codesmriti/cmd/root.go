// Package cmd implements the codesmriti CLI.
package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbhalerao/codesmriti/internal/config"
	"github.com/kbhalerao/codesmriti/internal/embed"
	"github.com/kbhalerao/codesmriti/internal/gitrepo"
	"github.com/kbhalerao/codesmriti/internal/ingest"
	"github.com/kbhalerao/codesmriti/internal/logging"
	"github.com/kbhalerao/codesmriti/internal/search"
	"github.com/kbhalerao/codesmriti/internal/store"
	"github.com/kbhalerao/codesmriti/internal/summarize"
)

var (
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:           "codesmriti",
	Short:         "Persistent multi-tenant semantic index over source repositories",
	Long: `CodeSmriti ingests Git repositories into a hierarchical semantic index
(repository → module → file → symbol) and answers code questions with
hybrid vector and keyword retrieval.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// app bundles the process-wide singletons: storage adapter, encoder,
// and LLM client, shared by every command that needs them.
type app struct {
	cfg        *config.Config
	adapter    store.Adapter
	encoder    *embed.Encoder
	summarizer *summarize.Summarizer
	pipeline   *ingest.Pipeline
	engine     *search.Engine
	cleanup    func()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDebug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logCleanup, err := logging.SetupDefault(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.WriteToStderr,
	})
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	adapter, err := store.NewAdapter(store.Config{
		DataDir:   filepath.Join(cfg.Paths.DataDir, "index"),
		BatchSize: cfg.Storage.BatchSize,
		Dims:      cfg.Embed.Dims,
	})
	if err != nil {
		logCleanup()
		return nil, err
	}

	embedder, err := embed.NewHTTPEmbedder(embed.HTTPConfig{
		Host:           cfg.Embed.Endpoint,
		Model:          cfg.Embed.Model,
		Dimensions:     cfg.Embed.Dims,
		RequestTimeout: cfg.Embed.RequestTimeout,
	})
	if err != nil {
		_ = adapter.Close()
		logCleanup()
		return nil, err
	}

	encoder := embed.NewEncoder(
		embed.NewCachedEmbedder(embedder, cfg.Embed.CacheSize),
		embed.EncoderConfig{
			BatchSize:    cfg.Embed.BatchSize,
			MaxItemBytes: cfg.Embed.MaxItemBytes,
		})

	llm := summarize.NewClient(summarize.ClientConfig{
		Endpoint:       cfg.Summarize.Endpoint,
		Model:          cfg.Summarize.Model,
		APIKey:         cfg.LLMAPIKey(),
		RequestTimeout: cfg.Summarize.RequestTimeout,
	})
	summarizer := summarize.New(llm, summarize.Config{
		InputBudgetTokens: cfg.Summarize.InputBudgetTokens,
		MaxRetries:        cfg.Summarize.MaxRetries,
		BackoffBase:       msDuration(cfg.Summarize.BackoffBaseMS),
		BackoffCap:        msDuration(cfg.Summarize.BackoffCapMS),
	})

	pipeline := ingest.New(adapter, encoder, summarizer, ingest.Config{
		ParserParallelism:  cfg.Ingest.ParserParallelism,
		MinSymbolLines:     cfg.Ingest.MinSymbolLines,
		MaxFileBytes:       cfg.Ingest.MaxFileBytes,
		MinFileBytes:       cfg.Ingest.MinFileBytes,
		FileTokenThreshold: cfg.Ingest.FileTokenThreshold,
		JunkPatterns:       cfg.Ingest.JunkPatterns,
		ChunkChannelSize:   cfg.Ingest.ChunkChannelSize,
	})

	opener := func(tenant, repo string) (*gitrepo.Checkout, error) {
		return gitrepo.Open(checkoutPath(cfg, tenant, repo))
	}
	engine := search.New(adapter, encoder, opener, search.Config{
		Oversample:   cfg.Search.Oversample,
		PreviewChars: cfg.Search.PreviewChars,
		MaxLimit:     cfg.Search.MaxLimit,
		FetchByteCap: cfg.Search.FetchByteCap,
	})

	return &app{
		cfg:        cfg,
		adapter:    adapter,
		encoder:    encoder,
		summarizer: summarizer,
		pipeline:   pipeline,
		engine:     engine,
		cleanup: func() {
			_ = embedder.Close()
			_ = adapter.Close()
			logCleanup()
		},
	}, nil
}

func checkoutPath(cfg *config.Config, tenant, repo string) string {
	return filepath.Join(cfg.Paths.CheckoutDir, tenant, filepath.FromSlash(repo))
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
