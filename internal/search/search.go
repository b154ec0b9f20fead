// Package search finds the stored items nearest to a query.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/abdul-hamid-achik/vecstash/internal/db"
	"github.com/abdul-hamid-achik/vecstash/internal/embed"
	"github.com/abdul-hamid-achik/vecstash/internal/items"
	"github.com/abdul-hamid-achik/vecstash/internal/observe"
)

// DefaultLimit is the number of results returned when nothing else is configured.
const DefaultLimit = 5

// MaxLimit caps per-request limits from the servers.
const MaxLimit = 100

// Result is a search hit.
type Result struct {
	ID       int64    `json:"id"`
	Text     string   `json:"text"`
	Links    []string `json:"links"`
	Distance float64  `json:"distance"`
	Score    float64  `json:"score"` // 1/(1+distance), higher is better
}

// SearchOptions configures a single search.
type SearchOptions struct {
	// Limit is the maximum number of results; zero uses the searcher default
	Limit int
	// MinScore drops results scoring below it
	MinScore float64
}

// Searcher embeds queries and asks the store for the nearest items.
type Searcher struct {
	store        db.Store
	provider     embed.Provider
	logger       *log.Logger
	defaultLimit atomic.Int64
}

// NewSearcher creates a Searcher. A non-positive defaultLimit uses DefaultLimit.
func NewSearcher(store db.Store, provider embed.Provider, logger *log.Logger, defaultLimit int) *Searcher {
	if logger == nil {
		logger = observe.Discard()
	}
	s := &Searcher{store: store, provider: provider, logger: logger}
	s.SetDefaultLimit(defaultLimit)
	return s
}

// SetDefaultLimit changes the limit used when a search does not set one.
// It is safe to call while searches are running.
func (s *Searcher) SetDefaultLimit(limit int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.defaultLimit.Store(int64(limit))
}

// DefaultLimitValue returns the current default limit.
func (s *Searcher) DefaultLimitValue() int {
	return int(s.defaultLimit.Load())
}

// Search returns the items nearest to query, closest first.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) (results []Result, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", items.ErrInvalidInput)
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("%w: limit cannot be negative", items.ErrInvalidInput)
	}
	if opts.Limit == 0 {
		opts.Limit = s.DefaultLimitValue()
	}

	ctx, span := observe.StartSpan(ctx, "search.Search", attribute.Int("limit", opts.Limit))
	defer func() { observe.End(span, err) }()

	vec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, vec, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results = make([]Result, 0, len(hits))
	for _, h := range hits {
		r := Result{
			ID:       h.ID,
			Text:     h.Text,
			Links:    h.Links,
			Distance: h.Distance,
			Score:    Score(h.Distance),
		}
		if r.Links == nil {
			r.Links = []string{}
		}
		if opts.MinScore > 0 && r.Score < opts.MinScore {
			continue
		}
		results = append(results, r)
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	s.logger.Debug("Search finished", "results", len(results), "limit", opts.Limit)
	return results, nil
}

// Score converts an L2 distance into a similarity in (0, 1].
func Score(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}
