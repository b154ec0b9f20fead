package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	defaultOllamaURL     = "http://localhost:11434"
	defaultOllamaModel   = "nomic-embed-text"
	defaultOllamaDims    = 768
	defaultOllamaTimeout = 30 * time.Second
	ollamaMaxBatchSize   = 32
)

// OllamaConfig holds configuration for the Ollama embedding provider.
type OllamaConfig struct {
	URL        string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// DefaultOllamaConfig returns a default configuration for Ollama.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		URL:        defaultOllamaURL,
		Model:      defaultOllamaModel,
		Dimensions: defaultOllamaDims,
		Timeout:    defaultOllamaTimeout,
	}
}

// OllamaProvider implements the Provider interface using a local Ollama server.
type OllamaProvider struct {
	config OllamaConfig
	client *api.Client
}

// NewOllamaProvider creates a new Ollama embedding provider.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.URL == "" {
		cfg.URL = defaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = defaultOllamaDims
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOllamaTimeout
	}

	cfg.URL = strings.TrimRight(cfg.URL, "/")
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, NewProviderError("ollama", "init", fmt.Errorf("parse url %q: %w", cfg.URL, err))
	}

	return &OllamaProvider{
		config: cfg,
		client: api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
	}, nil
}

// Embed generates an embedding for a single text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embeddings, err := p.doEmbed(ctx, []string{text})
	if err != nil {
		return nil, NewProviderError("ollama", "embed", err)
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in chunks.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	for i, text := range texts {
		if text == "" {
			return nil, NewProviderError("ollama", "embedBatch", fmt.Errorf("text %d: %w", i, ErrEmptyText))
		}
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += ollamaMaxBatchSize {
		end := min(i+ollamaMaxBatchSize, len(texts))

		embeddings, err := p.doEmbed(ctx, texts[i:end])
		if err != nil {
			return nil, NewProviderError("ollama", "embedBatch", err)
		}
		results = append(results, embeddings...)
	}

	return results, nil
}

func (p *OllamaProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.config.Model,
		Input: texts,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrContextCanceled
		}
		return nil, classifyOllamaError(err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	if err := checkDimensions(resp.Embeddings, p.config.Dimensions); err != nil {
		return nil, err
	}

	return resp.Embeddings, nil
}

func classifyOllamaError(err error) error {
	var statusErr api.StatusError
	if !errors.As(err, &statusErr) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	switch statusErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, statusErr.ErrorMessage)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, statusErr.ErrorMessage)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, statusErr.ErrorMessage)
	}
	return err
}

// Model returns the name of the embedding model.
func (p *OllamaProvider) Model() string {
	return p.config.Model
}

// Dimensions returns the embedding vector dimensions.
func (p *OllamaProvider) Dimensions() int {
	return p.config.Dimensions
}

// Ping checks that Ollama is running and the model is pulled.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		return NewProviderError("ollama", "ping", fmt.Errorf("%w: %v", ErrProviderUnavailable, err))
	}

	if _, err := p.client.Show(ctx, &api.ShowRequest{Model: p.config.Model}); err != nil {
		return NewProviderError("ollama", "ping", classifyOllamaError(err))
	}

	return nil
}
