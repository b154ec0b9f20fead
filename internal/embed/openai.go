package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIURL        = "https://api.openai.com/v1"
	defaultOpenAIModel      = string(openai.SmallEmbedding3)
	defaultOpenAIDims       = 1536
	defaultOpenAITimeout    = 60 * time.Second
	defaultOpenAIRetryDelay = 1 * time.Second
	openAIMaxBatchSize      = 2048 // OpenAI supports up to 2048 inputs per request
)

// OpenAIConfig holds configuration for the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string
	Timeout    time.Duration
	// MaxRetries is the number of extra attempts after a rate limited request.
	MaxRetries    int
	RetryInterval time.Duration
}

// OpenAIProvider implements the Provider interface using OpenAI's API.
type OpenAIProvider struct {
	config OpenAIConfig
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = defaultOpenAIDims
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOpenAITimeout
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = defaultOpenAIRetryDelay
	}

	// Ensure URL doesn't have trailing slash
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIProvider{
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// Embed generates an embedding for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embeddings, err := p.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	for i, text := range texts {
		if text == "" {
			return nil, NewProviderError("openai", "embedBatch", fmt.Errorf("text %d: %w", i, ErrEmptyText))
		}
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += openAIMaxBatchSize {
		end := min(i+openAIMaxBatchSize, len(texts))

		embeddings, err := p.embedWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}

	return results, nil
}

// embedWithRetry sends one request, retrying only when rate limited.
func (p *OpenAIProvider) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	if p.config.APIKey == "" {
		return nil, NewProviderError("openai", "embed", fmt.Errorf("%w: API key not configured", ErrUnauthorized))
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, NewProviderError("openai", "embed", ErrContextCanceled)
			case <-time.After(p.config.RetryInterval * time.Duration(1<<uint(attempt-1))):
			}
		}

		embeddings, err := p.doEmbed(ctx, texts)
		if err == nil {
			return embeddings, nil
		}

		lastErr = err
		if !errors.Is(err, ErrRateLimited) {
			break
		}
	}

	return nil, NewProviderError("openai", "embed", lastErr)
}

// doEmbed performs a single embedding request.
func (p *OpenAIProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.config.Model),
	}

	// Only text-embedding-3-* accepts a dimensions parameter
	if strings.HasPrefix(p.config.Model, "text-embedding-3") {
		req.Dimensions = p.config.Dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrContextCanceled
		}
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// Order by index; the API does not promise response order
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}

	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}

	if err := checkDimensions(embeddings, p.config.Dimensions); err != nil {
		return nil, err
	}

	return embeddings, nil
}

func classifyOpenAIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrModelNotFound, err)
	case 0:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return err
}

// Model returns the name of the embedding model.
func (p *OpenAIProvider) Model() string {
	return p.config.Model
}

// Dimensions returns the embedding vector dimensions.
func (p *OpenAIProvider) Dimensions() int {
	return p.config.Dimensions
}

// Ping checks if OpenAI is available and the API key is valid.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if p.config.APIKey == "" {
		return NewProviderError("openai", "ping", fmt.Errorf("%w: API key not configured", ErrUnauthorized))
	}

	// A one-word embedding is the cheapest call that exercises the key
	if _, err := p.Embed(ctx, "ping"); err != nil {
		return NewProviderError("openai", "ping", err)
	}

	return nil
}
