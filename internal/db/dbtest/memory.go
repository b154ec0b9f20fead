// Package dbtest provides an in-memory db.Store for tests.
package dbtest

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/vecstash/internal/db"
)

// MemoryStore is a db.Store backed by a slice. It starts initialized.
type MemoryStore struct {
	mu         sync.Mutex
	items      []*db.Item
	nextID     int64
	dimensions int

	// Err, when set, is returned by every operation
	Err error
	// Uninitialized makes every operation fail with db.ErrNotInitialized until Init
	Uninitialized bool
	InitCalls     int
}

// NewMemoryStore creates an empty store for vectors of dims values.
func NewMemoryStore(dims int) *MemoryStore {
	return &MemoryStore{dimensions: dims, nextID: 1}
}

func (m *MemoryStore) check(op string) error {
	if m.Err != nil {
		return &db.StoreError{Backend: "memory", Op: op, Err: m.Err}
	}
	if m.Uninitialized {
		return &db.StoreError{Backend: "memory", Op: op, Err: db.ErrNotInitialized}
	}
	return nil
}

func (m *MemoryStore) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitCalls++
	if m.Err != nil {
		return &db.StoreError{Backend: "memory", Op: "init", Err: m.Err}
	}
	m.items = nil
	m.Uninitialized = false
	return nil
}

func (m *MemoryStore) Insert(ctx context.Context, item db.NewItem) (*db.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("insert"); err != nil {
		return nil, err
	}
	return m.insertLocked(item)
}

func (m *MemoryStore) insertLocked(item db.NewItem) (*db.Item, error) {
	if len(item.Embedding) != m.dimensions {
		return nil, &db.StoreError{Backend: "memory", Op: "insert", Err: db.ErrDimensionMismatch}
	}
	links := append([]string{}, item.Links...)
	now := time.Now()
	stored := &db.Item{
		ID:        m.nextID,
		Text:      item.Text,
		Links:     links,
		Embedding: append([]float32(nil), item.Embedding...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.nextID++
	m.items = append(m.items, stored)
	return stored, nil
}

func (m *MemoryStore) InsertBatch(ctx context.Context, items []db.NewItem) ([]*db.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("insert batch"); err != nil {
		return nil, err
	}
	for _, it := range items {
		if len(it.Embedding) != m.dimensions {
			return nil, &db.StoreError{Backend: "memory", Op: "insert batch", Err: db.ErrDimensionMismatch}
		}
	}
	out := make([]*db.Item, 0, len(items))
	for _, it := range items {
		stored, err := m.insertLocked(it)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete"); err != nil {
		return 0, err
	}
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *MemoryStore) Search(ctx context.Context, vector []float32, k int) ([]db.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("search"); err != nil {
		return nil, err
	}
	if len(vector) != m.dimensions {
		return nil, &db.StoreError{Backend: "memory", Op: "search", Err: db.ErrDimensionMismatch}
	}

	results := make([]db.SearchResult, 0, len(m.items))
	for _, it := range m.items {
		var sum float64
		for i := range vector {
			d := float64(vector[i]) - float64(it.Embedding[i])
			sum += d * d
		}
		results = append(results, db.SearchResult{
			ID:       it.ID,
			Text:     it.Text,
			Links:    append([]string{}, it.Links...),
			Distance: math.Sqrt(sum),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*db.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("stats"); err != nil {
		return nil, err
	}
	return &db.Stats{
		Backend:    "memory",
		Version:    "memory",
		Items:      int64(len(m.items)),
		Dimensions: m.dimensions,
	}, nil
}

func (m *MemoryStore) Close() error { return nil }

// Items returns a snapshot of the stored items in insertion order.
func (m *MemoryStore) Items() []db.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.Item, len(m.items))
	for i, it := range m.items {
		out[i] = *it
	}
	return out
}
