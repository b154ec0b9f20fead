package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const backendPostgres = "postgres"

// Postgres error codes that mean init has not run.
const (
	pgUndefinedTable  = "42P01"
	pgUndefinedObject = "42704"
)

// PostgresStore keeps items in a PostgreSQL table with a pgvector column.
type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// OpenPostgres connects to dsn. maxConns bounds the pool; the CLI uses 1.
func OpenPostgres(ctx context.Context, dsn string, dimensions int, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, newStoreError(backendPostgres, "parse dsn", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, newStoreError(backendPostgres, "connect", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, newStoreError(backendPostgres, "connect", err)
	}

	return &PostgresStore{pool: pool, dimensions: dimensions}, nil
}

// Init recreates the items table and its updated_at trigger in one transaction.
func (s *PostgresStore) Init(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return newStoreError(backendPostgres, "init", err)
	}
	defer tx.Rollback(ctx)

	for _, step := range initSteps(s.dimensions) {
		if _, err := tx.Exec(ctx, step.sql); err != nil {
			return newStoreError(backendPostgres, "init", fmt.Errorf("%s: %w", step.name, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return newStoreError(backendPostgres, "init", err)
	}
	return nil
}

// Insert stores one item.
func (s *PostgresStore) Insert(ctx context.Context, item NewItem) (*Item, error) {
	if err := checkVector(item.Embedding, s.dimensions); err != nil {
		return nil, newStoreError(backendPostgres, "insert", err)
	}

	stored := newStoredItem(item)
	err := s.pool.QueryRow(ctx, insertItemSQL, item.Text, pgvector.NewVector(item.Embedding), stored.Links).
		Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, newStoreError(backendPostgres, "insert", classifyPgError(err))
	}

	return stored, nil
}

// InsertBatch stores all items in one transaction using a pipelined batch.
func (s *PostgresStore) InsertBatch(ctx context.Context, items []NewItem) ([]*Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	for i, item := range items {
		if err := checkVector(item.Embedding, s.dimensions); err != nil {
			return nil, newStoreError(backendPostgres, "insert batch", fmt.Errorf("item %d: %w", i, err))
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, newStoreError(backendPostgres, "insert batch", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	stored := make([]*Item, len(items))
	for i, item := range items {
		stored[i] = newStoredItem(item)
		batch.Queue(insertItemSQL, item.Text, pgvector.NewVector(item.Embedding), stored[i].Links)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range stored {
		if err := results.QueryRow().Scan(&stored[i].ID, &stored[i].CreatedAt, &stored[i].UpdatedAt); err != nil {
			results.Close()
			return nil, newStoreError(backendPostgres, "insert batch", fmt.Errorf("item %d: %w", i, classifyPgError(err)))
		}
	}
	if err := results.Close(); err != nil {
		return nil, newStoreError(backendPostgres, "insert batch", classifyPgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, newStoreError(backendPostgres, "insert batch", err)
	}
	return stored, nil
}

// Delete removes the item with id.
func (s *PostgresStore) Delete(ctx context.Context, id int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteItemSQL, id)
	if err != nil {
		return 0, newStoreError(backendPostgres, "delete", classifyPgError(err))
	}
	return tag.RowsAffected(), nil
}

// Search returns the k nearest items by L2 distance.
func (s *PostgresStore) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	if err := checkVector(vector, s.dimensions); err != nil {
		return nil, newStoreError(backendPostgres, "search", err)
	}

	rows, err := s.pool.Query(ctx, searchItemsSQL, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, newStoreError(backendPostgres, "search", classifyPgError(err))
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SearchResult, error) {
		var r SearchResult
		err := row.Scan(&r.ID, &r.Text, &r.Links, &r.Distance)
		return r, err
	})
	if err != nil {
		return nil, newStoreError(backendPostgres, "search", classifyPgError(err))
	}

	return results, nil
}

// Stats reports the pgvector version and item count.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Backend: backendPostgres, Dimensions: s.dimensions}

	var version string
	err := s.pool.QueryRow(ctx, extensionVersionSQL).Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, newStoreError(backendPostgres, "stats", ErrNotInitialized)
	case err != nil:
		return nil, newStoreError(backendPostgres, "stats", err)
	}
	stats.Version = "pgvector " + version

	if err := s.pool.QueryRow(ctx, countItemsSQL).Scan(&stats.Items); err != nil {
		return nil, newStoreError(backendPostgres, "stats", classifyPgError(err))
	}

	return stats, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func newStoredItem(item NewItem) *Item {
	links := item.Links
	if links == nil {
		links = []string{}
	}
	return &Item{
		Text:      item.Text,
		Links:     links,
		Embedding: item.Embedding,
	}
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable, pgUndefinedObject:
			return fmt.Errorf("%w: %s", ErrNotInitialized, pgErr.Message)
		}
	}
	return err
}
