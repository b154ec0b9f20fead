package db

import (
	"context"
	"errors"
	"testing"
)

const testDims = 4

func openTestVecLite(t *testing.T) *VecLiteStore {
	t.Helper()
	s, err := OpenVecLite(t.TempDir(), testDims)
	if err != nil {
		t.Fatalf("OpenVecLite failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s
}

func TestVecLite_NotInitialized(t *testing.T) {
	s, err := OpenVecLite(t.TempDir(), testDims)
	if err != nil {
		t.Fatalf("OpenVecLite failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_, err = s.Search(ctx, []float32{0, 0, 0, 0}, 5)
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}

	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %T", err)
	}
	if storeErr.Backend != "veclite" || storeErr.Op != "search" {
		t.Errorf("unexpected StoreError %+v", storeErr)
	}

	if _, err := s.Insert(ctx, NewItem{Text: "x", Embedding: make([]float32, testDims)}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized on insert, got %v", err)
	}
}

func TestVecLite_InsertAndSearch(t *testing.T) {
	s := openTestVecLite(t)
	ctx := context.Background()

	cat, err := s.Insert(ctx, NewItem{Text: "cat", Links: []string{"https://a.example"}, Embedding: []float32{1, 0, 0, 0}})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	dog, err := s.Insert(ctx, NewItem{Text: "dog", Links: []string{"https://b.example", "https://c.example"}, Embedding: []float32{0, 1, 0, 0}})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if dog.ID <= cat.ID {
		t.Errorf("expected increasing ids, got %d then %d", cat.ID, dog.ID)
	}
	if cat.CreatedAt.IsZero() || !cat.CreatedAt.Equal(cat.UpdatedAt) {
		t.Errorf("expected equal non-zero timestamps, got %v %v", cat.CreatedAt, cat.UpdatedAt)
	}

	results, err := s.Search(ctx, []float32{0.9, 0.1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Text != "cat" || results[1].Text != "dog" {
		t.Errorf("unexpected order: %s, %s", results[0].Text, results[1].Text)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results not ordered by ascending distance")
	}
	if len(results[1].Links) != 2 || results[1].Links[1] != "https://c.example" {
		t.Errorf("links not preserved: %v", results[1].Links)
	}
}

func TestVecLite_SearchLimit(t *testing.T) {
	s := openTestVecLite(t)
	ctx := context.Background()

	for i := range 7 {
		vec := []float32{float32(i), 0, 0, 0}
		if _, err := s.Insert(ctx, NewItem{Text: "item", Links: []string{"l"}, Embedding: vec}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.Search(ctx, []float32{0, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("expected 5 results, got %d", len(results))
	}
}

func TestVecLite_SearchEmpty(t *testing.T) {
	s := openTestVecLite(t)

	results, err := s.Search(context.Background(), []float32{1, 1, 1, 1}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestVecLite_DimensionMismatch(t *testing.T) {
	s := openTestVecLite(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, NewItem{Text: "x", Embedding: []float32{1, 2}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	_, err = s.Search(ctx, []float32{1, 2, 3}, 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestVecLite_Delete(t *testing.T) {
	s := openTestVecLite(t)
	ctx := context.Background()

	item, err := s.Insert(ctx, NewItem{Text: "gone soon", Links: []string{"l"}, Embedding: []float32{1, 1, 1, 1}})
	if err != nil {
		t.Fatal(err)
	}

	n, err := s.Delete(ctx, item.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row affected, got %d", n)
	}

	// Second delete is a no-op
	n, err = s.Delete(ctx, item.ID)
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows affected, got %d", n)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Items != 0 {
		t.Errorf("expected 0 items, got %d", stats.Items)
	}
}

func TestVecLite_SearchAfterDeletes(t *testing.T) {
	s := openTestVecLite(t)
	ctx := context.Background()

	var ids []int64
	for i := range 6 {
		vec := []float32{float32(i), float32(i % 2), 1, 0}
		item, err := s.Insert(ctx, NewItem{Text: string(rune('a' + i)), Links: []string{"l"}, Embedding: vec})
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		ids = append(ids, item.ID)
	}

	const k = 5
	for _, id := range ids[:5] {
		if _, err := s.Delete(ctx, id); err != nil {
			t.Fatalf("Delete %d failed: %v", id, err)
		}

		stats, err := s.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		results, err := s.Search(ctx, []float32{0, 0, 1, 0}, k)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}

		want := min(k, int(stats.Items))
		if len(results) != want {
			t.Errorf("after deleting %d: expected %d results for %d stored items, got %d", id, want, stats.Items, len(results))
		}
		for _, r := range results {
			if r.ID == id {
				t.Errorf("deleted item %d returned by search", id)
			}
		}
	}

	results, err := s.Search(ctx, []float32{0, 0, 1, 0}, k)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != ids[5] {
		t.Errorf("expected only the surviving item %d, got %+v", ids[5], results)
	}
}

func TestVecLite_InitClearsItems(t *testing.T) {
	s := openTestVecLite(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, NewItem{Text: "x", Links: []string{"l"}, Embedding: []float32{1, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Items != 0 {
		t.Errorf("expected empty store after Init, got %d", stats.Items)
	}
	if stats.Backend != "veclite" || stats.Dimensions != testDims {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestVecLite_InsertBatch(t *testing.T) {
	s := openTestVecLite(t)
	ctx := context.Background()

	items := []NewItem{
		{Text: "a", Links: []string{"1"}, Embedding: []float32{1, 0, 0, 0}},
		{Text: "b", Embedding: []float32{0, 1, 0, 0}},
	}
	stored, err := s.InsertBatch(ctx, items)
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 items, got %d", len(stored))
	}
	if stored[1].Links == nil || len(stored[1].Links) != 0 {
		t.Errorf("expected empty non-nil links, got %#v", stored[1].Links)
	}

	bad := []NewItem{{Text: "c", Embedding: []float32{1}}}
	if _, err := s.InsertBatch(ctx, bad); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	stats, _ := s.Stats(ctx)
	if stats.Items != 2 {
		t.Errorf("rejected batch must not insert, got %d items", stats.Items)
	}
}

func TestVecLite_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenVecLite(dir, testDims)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, NewItem{Text: "kept", Links: []string{"l"}, Embedding: []float32{1, 2, 3, 4}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = OpenVecLite(dir, testDims)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	results, err := s.Search(ctx, []float32{1, 2, 3, 4}, 1)
	if err != nil {
		t.Fatalf("Search after reopen failed: %v", err)
	}
	if len(results) != 1 || results[0].Text != "kept" {
		t.Errorf("expected persisted item, got %+v", results)
	}
}

func TestL2Distance(t *testing.T) {
	if d := l2Distance([]float32{0, 0}, []float32{3, 4}); d != 5 {
		t.Errorf("expected 5, got %f", d)
	}
}
