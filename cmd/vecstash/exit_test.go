package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/abdul-hamid-achik/vecstash/internal/config"
	"github.com/abdul-hamid-achik/vecstash/internal/db"
	"github.com/abdul-hamid-achik/vecstash/internal/embed"
	"github.com/abdul-hamid-achik/vecstash/internal/items"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"invalid input", fmt.Errorf("add: %w", items.ErrInvalidInput), exitUsage},
		{"usage", usageError(errors.New("accepts 1 arg(s), received 0")), exitUsage},
		{"provider", fmt.Errorf("embed: %w", embed.NewProviderError("openai", "embed", embed.ErrRateLimited)), exitProvider},
		{"store", fmt.Errorf("add: %w", &db.StoreError{Backend: "postgres", Op: "insert", Err: errors.New("boom")}), exitStore},
		{"store not initialized", &db.StoreError{Backend: "postgres", Op: "search", Err: db.ErrNotInitialized}, exitStore},
		{"config", fmt.Errorf("%w: bad", config.ErrInvalidConfig), exitConfig},
		{"other", context.Canceled, exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
