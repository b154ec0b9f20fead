// Package mcp exposes item operations as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/abdul-hamid-achik/vecstash/internal/items"
	"github.com/abdul-hamid-achik/vecstash/internal/observe"
	"github.com/abdul-hamid-achik/vecstash/internal/search"
	"github.com/abdul-hamid-achik/vecstash/internal/version"
)

// AddInput is the input for items_add.
type AddInput struct {
	Text  string   `json:"text" jsonschema:"The text snippet to store."`
	Links []string `json:"links" jsonschema:"One or more links associated with the text. At least one is required."`
}

// SearchInput is the input for items_search.
type SearchInput struct {
	Query string `json:"query" jsonschema:"Natural language text to find similar stored items for."`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of results to return. Defaults to the server setting."`
}

// DeleteInput is the input for items_delete.
type DeleteInput struct {
	ID int64 `json:"id" jsonschema:"The id of the item to delete."`
}

// StatusInput is the input for items_status (empty).
type StatusInput struct{}

// ServerConfig contains configuration for the MCP server.
type ServerConfig struct {
	Service  *items.Service
	Searcher *search.Searcher
	Logger   *log.Logger
}

// Server wraps the official MCP SDK server.
type Server struct {
	server   *sdkmcp.Server
	service  *items.Service
	searcher *search.Searcher
	logger   *log.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = observe.Discard()
	}

	s := &Server{
		service:  cfg.Service,
		searcher: cfg.Searcher,
		logger:   cfg.Logger,
	}

	s.server = sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "vecstash",
		Version: version.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: "vecstash stores text snippets with links and finds them again by meaning. " +
			"Use items_add to save a snippet, items_search to find similar snippets, " +
			"items_delete to remove one by id, and items_status to see how many are stored.",
	})

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "items_add",
		Description: "Store a text snippet together with one or more links. Returns the new item id.",
	}, s.handleAdd)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "items_search",
		Description: "Find the stored items most similar in meaning to the query, closest first.",
	}, s.handleSearch)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "items_delete",
		Description: "Delete a stored item by id. Deleting an id that does not exist is not an error.",
	}, s.handleDelete)

	sdkmcp.AddTool(s.server, &sdkmcp.Tool{
		Name:        "items_status",
		Description: "Report the storage backend, item count, vector dimensions and embedding model.",
	}, s.handleStatus)

	return s
}

// Run serves MCP over stdin and stdout until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")
	return s.server.Run(ctx, &sdkmcp.StdioTransport{})
}

// SDK returns the underlying SDK server.
func (s *Server) SDK() *sdkmcp.Server {
	return s.server
}

func (s *Server) handleAdd(ctx context.Context, req *sdkmcp.CallToolRequest, input AddInput) (*sdkmcp.CallToolResult, any, error) {
	item, err := s.service.Add(ctx, input.Text, input.Links)
	if err != nil {
		return s.errorResult("add", err), nil, nil
	}
	return textResult(fmt.Sprintf("Added item %d with %d link(s).", item.ID, len(item.Links))), nil, nil
}

func (s *Server) handleSearch(ctx context.Context, req *sdkmcp.CallToolRequest, input SearchInput) (*sdkmcp.CallToolResult, any, error) {
	limit := input.Limit
	if limit > search.MaxLimit {
		limit = search.MaxLimit
	}

	results, err := s.searcher.Search(ctx, input.Query, search.SearchOptions{Limit: limit})
	if err != nil {
		return s.errorResult("search", err), nil, nil
	}
	if len(results) == 0 {
		return textResult("No results found."), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s):\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. [id %d] (score: %.3f)\n%s\n", i+1, r.ID, r.Score, r.Text)
		for _, l := range r.Links {
			fmt.Fprintf(&sb, "   - %s\n", l)
		}
		sb.WriteString("\n")
	}
	return textResult(strings.TrimRight(sb.String(), "\n")), nil, nil
}

func (s *Server) handleDelete(ctx context.Context, req *sdkmcp.CallToolRequest, input DeleteInput) (*sdkmcp.CallToolResult, any, error) {
	deleted, err := s.service.Delete(ctx, input.ID)
	if err != nil {
		return s.errorResult("delete", err), nil, nil
	}
	if !deleted {
		return textResult(fmt.Sprintf("No item with id %d.", input.ID)), nil, nil
	}
	return textResult(fmt.Sprintf("Deleted item %d.", input.ID)), nil, nil
}

func (s *Server) handleStatus(ctx context.Context, req *sdkmcp.CallToolRequest, input StatusInput) (*sdkmcp.CallToolResult, any, error) {
	status, err := s.service.Status(ctx)
	if err != nil {
		return s.errorResult("status", err), nil, nil
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return s.errorResult("status", err), nil, nil
	}
	return textResult(string(data)), nil, nil
}

func (s *Server) errorResult(op string, err error) *sdkmcp.CallToolResult {
	s.logger.Warn("Tool failed", "op", op, "err", err)
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
		IsError: true,
	}
}

func textResult(text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
	}
}
