package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/mcq-extractor/internal/cache"
	"github.com/spherical/mcq-extractor/internal/config"
	"github.com/spherical/mcq-extractor/internal/docx"
	"github.com/spherical/mcq-extractor/internal/extract"
	"github.com/spherical/mcq-extractor/internal/llm"
	"github.com/spherical/mcq-extractor/internal/observability"
	"github.com/spherical/mcq-extractor/internal/pdf"
	"github.com/spherical/mcq-extractor/internal/session"
)

func configPathFromEnv() string {
	return os.Getenv("CONFIG_PATH")
}

// pipeline is the wired set of shared components.
type pipeline struct {
	deps        session.Dependencies
	cacheClient cache.Client
}

// Close releases the cache connection.
func (p *pipeline) Close() error {
	if p.cacheClient == nil {
		return nil
	}
	return p.cacheClient.Close()
}

// buildPipeline wires the model client, renderers and cache from cfg.
func buildPipeline(cfg *config.Config, logger *observability.Logger) (*pipeline, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, fmt.Errorf("%w\nPlease set it in your .env file or environment", err)
	}

	client, err := llm.NewClient(llm.Options{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		RequestTimeout:    cfg.LLM.RequestTimeout,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		Retry: llm.RetryConfig{
			MaxRetries:     cfg.Retry.MaxRetries,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
	}, logger)
	if err != nil {
		return nil, err
	}

	cacheClient, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	return &pipeline{
		deps: session.Dependencies{
			Rasterizer: pdf.NewRasterizer(pdf.Options{
				Scale:     cfg.Render.Scale,
				Quality:   cfg.Render.Quality,
				BatchSize: cfg.Render.BatchSize,
			}, logger),
			Converter:   docx.NewConverter(),
			Extractor:   client,
			Cache:       cache.NewResultCache(cacheClient, cfg.Cache.TTL, logger),
			PageCounter: pdf.PageCount,
			Options: extract.Options{
				PageGroupSize:  cfg.Pipeline.PageGroupSize,
				ChunkGroupSize: cfg.Pipeline.ChunkGroupSize,
				Concurrency:    cfg.Pipeline.Concurrency,
				MaxChunkChars:  cfg.Pipeline.MaxChunkChars,
				Model:          cfg.LLM.Model,
			},
		},
		cacheClient: cacheClient,
	}, nil
}

// defaultOutputPath derives "<name>-mcqs<ext>" next to the input file.
func defaultOutputPath(input, ext string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), base+"-mcqs"+ext)
}
