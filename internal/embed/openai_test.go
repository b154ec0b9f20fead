package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type embeddingRequestBody struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponseBody struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
}

// newEmbeddingServer answers every request with vectors of dims values,
// the first value carrying the input index.
func newEmbeddingServer(t *testing.T, dims int) (*httptest.Server, *embeddingRequestBody) {
	t.Helper()
	var last embeddingRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/embeddings" {
			t.Errorf("expected /embeddings, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("expected 'Bearer test-key', got %s", auth)
		}

		var req embeddingRequestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		last = req

		resp := embeddingResponseBody{Object: "list", Model: req.Model}
		// Reverse order to check index handling
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			vec[0] = float32(i)
			resp.Data = append(resp.Data, embeddingData{Object: "embedding", Index: i, Embedding: vec})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &last
}

func TestNewOpenAIProvider(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})

	if provider.config.Model != defaultOpenAIModel {
		t.Errorf("expected model %s, got %s", defaultOpenAIModel, provider.config.Model)
	}
	if provider.config.BaseURL != defaultOpenAIURL {
		t.Errorf("expected base URL %s, got %s", defaultOpenAIURL, provider.config.BaseURL)
	}
	if provider.Dimensions() != 1536 {
		t.Errorf("expected 1536 dimensions, got %d", provider.Dimensions())
	}
	if provider.config.MaxRetries != 0 {
		t.Errorf("expected no retries by default, got %d", provider.config.MaxRetries)
	}
}

func TestOpenAIProvider_Embed(t *testing.T) {
	server, last := newEmbeddingServer(t, 1536)

	provider := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/",
	})

	embedding, err := provider.Embed(context.Background(), "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(embedding) != 1536 {
		t.Errorf("expected 1536 dimensions, got %d", len(embedding))
	}
	if last.Model != "text-embedding-3-small" {
		t.Errorf("expected model text-embedding-3-small, got %s", last.Model)
	}
	if last.Dimensions != 1536 {
		t.Errorf("expected dimensions 1536 in request, got %d", last.Dimensions)
	}
	if len(last.Input) != 1 || last.Input[0] != "test text" {
		t.Errorf("unexpected input: %v", last.Input)
	}
}

func TestOpenAIProvider_EmbedEmpty(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})

	_, err := provider.Embed(context.Background(), "")
	if err != ErrEmptyText {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestOpenAIProvider_MissingAPIKey(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{})

	_, err := provider.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProviderError, got %T", err)
	}
}

func TestOpenAIProvider_EmbedBatch(t *testing.T) {
	server, _ := newEmbeddingServer(t, 8)

	provider := NewOpenAIProvider(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Dimensions: 8,
	})

	texts := []string{"first", "second", "third"}
	embeddings, err := provider.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(embeddings) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}
	for i, emb := range embeddings {
		if emb[0] != float32(i) {
			t.Errorf("embedding %d out of order: first value %v", i, emb[0])
		}
	}
}

func TestOpenAIProvider_EmbedBatchEmptyText(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})

	_, err := provider.EmbedBatch(context.Background(), []string{"ok", ""})
	if !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestOpenAIProvider_DimensionMismatch(t *testing.T) {
	server, _ := newEmbeddingServer(t, 4)

	provider := NewOpenAIProvider(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Dimensions: 1536,
	})

	_, err := provider.Embed(context.Background(), "short vector")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestOpenAIProvider_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})

	_, err := provider.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestOpenAIProvider_RateLimitNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})

	_, err := provider.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
}

func TestOpenAIProvider_RateLimitRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
			return
		}
		resp := embeddingResponseBody{
			Object: "list",
			Data:   []embeddingData{{Object: "embedding", Index: 0, Embedding: make([]float32, 3)}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{
		APIKey:        "test-key",
		BaseURL:       server.URL,
		Dimensions:    3,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	})

	if _, err := provider.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
}

func TestOpenAIProvider_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: url, Timeout: time.Second})

	_, err := provider.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestOpenAIProvider_ModelAndDimensions(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{
		APIKey:     "test-key",
		Model:      "text-embedding-3-large",
		Dimensions: 3072,
	})

	if provider.Model() != "text-embedding-3-large" {
		t.Errorf("expected model text-embedding-3-large, got %s", provider.Model())
	}
	if provider.Dimensions() != 3072 {
		t.Errorf("expected 3072 dimensions, got %d", provider.Dimensions())
	}
}
