// Package db stores items and their embeddings and answers nearest
// neighbour queries over them.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotInitialized is returned when the items table or collection does not exist yet.
	ErrNotInitialized = errors.New("store not initialized, run 'vecstash init'")
	// ErrDimensionMismatch is returned when a vector does not match the store's dimensions.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Item is a stored text snippet with its embedding and links.
type Item struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Links     []string  `json:"links"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewItem is an item that has not been stored yet.
type NewItem struct {
	Text      string
	Links     []string
	Embedding []float32
}

// SearchResult is one nearest neighbour of a query vector.
type SearchResult struct {
	ID    int64
	Text  string
	Links []string
	// Distance is the L2 distance to the query, smaller is closer
	Distance float64
}

// Stats describes the store for status output.
type Stats struct {
	Backend    string `json:"backend"`
	Version    string `json:"version"`
	Items      int64  `json:"items"`
	Dimensions int    `json:"dimensions"`
}

// Store is implemented by every storage backend.
type Store interface {
	// Init drops and recreates the items storage. All existing items are lost.
	Init(ctx context.Context) error

	// Insert stores one item and returns it with its assigned ID and timestamps.
	Insert(ctx context.Context, item NewItem) (*Item, error)

	// InsertBatch stores items atomically where the backend allows it.
	InsertBatch(ctx context.Context, items []NewItem) ([]*Item, error)

	// Delete removes the item with the given ID and reports how many rows went away.
	// Deleting a missing ID is not an error.
	Delete(ctx context.Context, id int64) (int64, error)

	// Search returns up to k items ordered by ascending distance to vector.
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// Stats returns backend information and the item count.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the store's resources.
	Close() error
}

// StoreError wraps backend failures with the operation that failed.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(backend, op string, err error) error {
	return &StoreError{Backend: backend, Op: op, Err: err}
}

func checkVector(vector []float32, dims int) error {
	if len(vector) != dims {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), dims)
	}
	return nil
}
