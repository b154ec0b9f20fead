package db

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/veclite"
)

const (
	backendVecLite   = "veclite"
	itemsCollection  = "items"
	vecLiteFileName  = "items.veclite"
	payloadText      = "actual"
	payloadLinks     = "links"
	payloadCreatedAt = "created_at"
	payloadUpdatedAt = "updated_at"
)

// VecLiteStore keeps items in a local veclite file. The collection uses
// exact search; HNSW graphs drop live records from results after deletes.
// Links are stored in the payload as a JSON array string.
type VecLiteStore struct {
	mu         sync.Mutex
	db         *veclite.DB
	coll       *veclite.Collection
	path       string
	dimensions int
	now        func() time.Time
}

// VecLitePath returns the database file path inside dataDir.
func VecLitePath(dataDir string) string {
	return filepath.Join(dataDir, vecLiteFileName)
}

// OpenVecLite opens or creates the veclite database in dataDir.
// The items collection is looked up lazily so a fresh directory reports
// ErrNotInitialized until Init runs.
func OpenVecLite(dataDir string, dimensions int) (*VecLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, newStoreError(backendVecLite, "open", err)
	}

	path := VecLitePath(dataDir)
	vdb, err := veclite.Open(path)
	if err != nil {
		return nil, newStoreError(backendVecLite, "open", fmt.Errorf("open %s: %w", path, err))
	}

	s := &VecLiteStore{
		db:         vdb,
		path:       path,
		dimensions: dimensions,
		now:        time.Now,
	}
	if coll, err := vdb.GetCollection(itemsCollection); err == nil {
		s.coll = coll
	}
	return s, nil
}

// Init drops the items collection if present and creates it empty.
func (s *VecLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.GetCollection(itemsCollection); err == nil {
		if err := s.db.DropCollection(itemsCollection); err != nil {
			return newStoreError(backendVecLite, "init", fmt.Errorf("drop items: %w", err))
		}
	}

	coll, err := s.db.CreateCollection(itemsCollection,
		veclite.WithDimension(s.dimensions),
		veclite.WithDistanceType(veclite.DistanceEuclidean),
	)
	if err != nil {
		return newStoreError(backendVecLite, "init", fmt.Errorf("create items: %w", err))
	}
	s.coll = coll

	if err := s.db.Sync(); err != nil {
		return newStoreError(backendVecLite, "init", err)
	}
	return nil
}

// Insert stores one item.
func (s *VecLiteStore) Insert(ctx context.Context, item NewItem) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.insertLocked(item)
	if err != nil {
		return nil, newStoreError(backendVecLite, "insert", err)
	}
	if err := s.db.Sync(); err != nil {
		return nil, newStoreError(backendVecLite, "insert", err)
	}
	return stored, nil
}

// InsertBatch stores items in order. A failure part way leaves earlier
// items stored and reports the failing index.
func (s *VecLiteStore) InsertBatch(ctx context.Context, items []NewItem) ([]*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coll == nil {
		return nil, newStoreError(backendVecLite, "insert batch", ErrNotInitialized)
	}
	for i, item := range items {
		if err := checkVector(item.Embedding, s.dimensions); err != nil {
			return nil, newStoreError(backendVecLite, "insert batch", fmt.Errorf("item %d: %w", i, err))
		}
	}

	stored := make([]*Item, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, newStoreError(backendVecLite, "insert batch", err)
		}
		it, err := s.insertLocked(item)
		if err != nil {
			return nil, newStoreError(backendVecLite, "insert batch", fmt.Errorf("item %d: %w", i, err))
		}
		stored = append(stored, it)
	}

	if err := s.db.Sync(); err != nil {
		return nil, newStoreError(backendVecLite, "insert batch", err)
	}
	return stored, nil
}

func (s *VecLiteStore) insertLocked(item NewItem) (*Item, error) {
	if s.coll == nil {
		return nil, ErrNotInitialized
	}
	if err := checkVector(item.Embedding, s.dimensions); err != nil {
		return nil, err
	}

	stored := newStoredItem(item)
	links, err := json.Marshal(stored.Links)
	if err != nil {
		return nil, fmt.Errorf("encode links: %w", err)
	}
	now := s.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	id, err := s.coll.Insert(item.Embedding, map[string]any{
		payloadText:      item.Text,
		payloadLinks:     string(links),
		payloadCreatedAt: now.Format(time.RFC3339Nano),
		payloadUpdatedAt: now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	stored.ID = int64(id)
	return stored, nil
}

// Delete removes the item with id. A missing id deletes nothing.
func (s *VecLiteStore) Delete(ctx context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coll == nil {
		return 0, newStoreError(backendVecLite, "delete", ErrNotInitialized)
	}
	if id < 0 {
		return 0, nil
	}

	if rec, err := s.coll.Get(uint64(id)); err != nil || rec == nil {
		return 0, nil
	}
	if err := s.coll.Delete(uint64(id)); err != nil {
		return 0, newStoreError(backendVecLite, "delete", err)
	}
	if err := s.db.Sync(); err != nil {
		return 0, newStoreError(backendVecLite, "delete", err)
	}
	return 1, nil
}

// Search returns the k nearest items. Distances are recomputed from the
// stored vectors so both backends report plain L2 distance.
func (s *VecLiteStore) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coll == nil {
		return nil, newStoreError(backendVecLite, "search", ErrNotInitialized)
	}
	if err := checkVector(vector, s.dimensions); err != nil {
		return nil, newStoreError(backendVecLite, "search", err)
	}
	if k <= 0 || s.coll.Count() == 0 {
		return []SearchResult{}, nil
	}

	hits, err := s.coll.Search(vector, veclite.TopK(k))
	if err != nil {
		return nil, newStoreError(backendVecLite, "search", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Record == nil {
			continue
		}
		distance := float64(h.Score)
		if len(h.Record.Vector) == len(vector) {
			distance = l2Distance(vector, h.Record.Vector)
		}
		results = append(results, SearchResult{
			ID:       int64(h.Record.ID),
			Text:     stringPayload(h.Record.Payload, payloadText),
			Links:    linksPayload(h.Record.Payload),
			Distance: distance,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Stats reports the item count.
func (s *VecLiteStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coll == nil {
		return nil, newStoreError(backendVecLite, "stats", ErrNotInitialized)
	}
	return &Stats{
		Backend:    backendVecLite,
		Version:    "veclite " + s.path,
		Items:      int64(s.coll.Count()),
		Dimensions: s.dimensions,
	}, nil
}

// Close syncs and closes the database file.
func (s *VecLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if err := s.db.Sync(); err != nil {
		s.db.Close()
		return newStoreError(backendVecLite, "close", err)
	}
	err := s.db.Close()
	s.db = nil
	s.coll = nil
	if err != nil {
		return newStoreError(backendVecLite, "close", err)
	}
	return nil
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func stringPayload(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func linksPayload(payload map[string]any) []string {
	links := []string{}
	raw := stringPayload(payload, payloadLinks)
	if raw == "" {
		return links
	}
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return []string{}
	}
	return links
}
