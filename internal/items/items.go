// Package items implements the item operations shared by the CLI and the servers.
package items

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/abdul-hamid-achik/vecstash/internal/db"
	"github.com/abdul-hamid-achik/vecstash/internal/embed"
	"github.com/abdul-hamid-achik/vecstash/internal/observe"
)

// ErrInvalidInput is returned for arguments rejected before any network call.
var ErrInvalidInput = errors.New("invalid input")

// Service orchestrates validation, embedding and storage.
type Service struct {
	store    db.Store
	provider embed.Provider
	logger   *log.Logger
}

// NewService creates a Service. provider may be nil for commands that
// never embed (init, delete, status).
func NewService(store db.Store, provider embed.Provider, logger *log.Logger) *Service {
	if logger == nil {
		logger = observe.Discard()
	}
	return &Service{store: store, provider: provider, logger: logger}
}

// Status combines store statistics with the embedding model in use.
type Status struct {
	db.Stats
	Model string `json:"model,omitempty"`
}

// Init recreates the items storage. Every stored item is deleted.
func (s *Service) Init(ctx context.Context) (err error) {
	ctx, span := observe.StartSpan(ctx, "items.Init")
	defer func() { observe.End(span, err) }()

	if err := s.store.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	s.logger.Info("Initialized items storage")
	return nil
}

// Add validates, embeds and stores one item. Text and at least one link
// are required; nothing is sent to the provider when validation fails.
func (s *Service) Add(ctx context.Context, text string, links []string) (item *db.Item, err error) {
	ctx, span := observe.StartSpan(ctx, "items.Add", attribute.Int("links", len(links)))
	defer func() { observe.End(span, err) }()

	if err := validate(text, links); err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, errors.New("add: no embedding provider configured")
	}

	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	item, err = s.store.Insert(ctx, db.NewItem{Text: text, Links: links, Embedding: vec})
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}

	span.SetAttributes(attribute.Int64("item.id", item.ID))
	s.logger.Info("Added item", "id", item.ID, "links", len(item.Links))
	return item, nil
}

// Delete removes the item with id. It reports whether a row was removed;
// a missing id is not an error.
func (s *Service) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	ctx, span := observe.StartSpan(ctx, "items.Delete", attribute.Int64("item.id", id))
	defer func() { observe.End(span, err) }()

	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	if n == 0 {
		s.logger.Info("No item deleted", "id", id)
		return false, nil
	}

	s.logger.Info("Deleted item", "id", id)
	return true, nil
}

// Import validates every entry, embeds all texts in one batch and stores
// them together.
func (s *Service) Import(ctx context.Context, entries []Entry) (stored []*db.Item, err error) {
	ctx, span := observe.StartSpan(ctx, "items.Import", attribute.Int("entries", len(entries)))
	defer func() { observe.End(span, err) }()

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries to import", ErrInvalidInput)
	}
	for i, e := range entries {
		if err := validate(e.Text, e.Links); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	if s.provider == nil {
		return nil, errors.New("import: no embedding provider configured")
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}

	vecs, err := s.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(entries) {
		return nil, fmt.Errorf("embed: expected %d vectors, got %d", len(entries), len(vecs))
	}

	batch := make([]db.NewItem, len(entries))
	for i, e := range entries {
		batch[i] = db.NewItem{Text: e.Text, Links: e.Links, Embedding: vecs[i]}
	}

	stored, err = s.store.InsertBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	s.logger.Info("Imported items", "count", len(stored))
	return stored, nil
}

// Status reports store statistics and the configured model.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	status := &Status{Stats: *stats}
	if s.provider != nil {
		status.Model = s.provider.Model()
	}
	return status, nil
}

// ParseID parses an item id argument.
func ParseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q is not an integer", ErrInvalidInput, arg)
	}
	return id, nil
}

func validate(text string, links []string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
	}
	if len(links) == 0 {
		return fmt.Errorf("%w: at least one link is required", ErrInvalidInput)
	}
	for i, l := range links {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("%w: link %d is empty", ErrInvalidInput, i+1)
		}
	}
	return nil
}
