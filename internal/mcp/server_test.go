package mcp

import (
	"context"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/abdul-hamid-achik/vecstash/internal/db/dbtest"
	"github.com/abdul-hamid-achik/vecstash/internal/embed/embedtest"
	"github.com/abdul-hamid-achik/vecstash/internal/items"
	"github.com/abdul-hamid-achik/vecstash/internal/search"
)

const dims = 3

func setupTestServer(t *testing.T) (*Server, *dbtest.MemoryStore, *embedtest.FakeProvider) {
	t.Helper()
	store := dbtest.NewMemoryStore(dims)
	provider := embedtest.New(dims)
	srv := NewServer(ServerConfig{
		Service:  items.NewService(store, provider, nil),
		Searcher: search.NewSearcher(store, provider, nil, 5),
	})
	return srv, store, provider
}

func resultText(t *testing.T, res *sdkmcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(*sdkmcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", res.Content[0])
	}
	return tc.Text
}

func TestHandleAdd(t *testing.T) {
	srv, store, _ := setupTestServer(t)

	res, _, err := srv.handleAdd(context.Background(), nil, AddInput{Text: "hello", Links: []string{"https://a.example"}})
	if err != nil {
		t.Fatalf("handleAdd failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), "Added item 1") {
		t.Errorf("unexpected text %q", resultText(t, res))
	}
	if len(store.Items()) != 1 {
		t.Errorf("expected 1 item, got %d", len(store.Items()))
	}
}

func TestHandleAdd_NoLinks(t *testing.T) {
	srv, store, provider := setupTestServer(t)

	res, _, err := srv.handleAdd(context.Background(), nil, AddInput{Text: "hello"})
	if err != nil {
		t.Fatalf("handler must report failures in the result, got %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError")
	}
	if provider.Calls() != 0 || len(store.Items()) != 0 {
		t.Error("invalid add must not embed or write")
	}
}

func TestHandleSearch(t *testing.T) {
	srv, _, provider := setupTestServer(t)
	ctx := context.Background()
	provider.Vectors["apples"] = []float32{1, 0, 0}
	provider.Vectors["oranges"] = []float32{0, 1, 0}
	provider.Vectors["fruit like apples"] = []float32{0.9, 0.1, 0}

	srv.handleAdd(ctx, nil, AddInput{Text: "apples", Links: []string{"https://apples.example"}})
	srv.handleAdd(ctx, nil, AddInput{Text: "oranges", Links: []string{"https://oranges.example"}})

	res, _, err := srv.handleSearch(ctx, nil, SearchInput{Query: "fruit like apples", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(t, res)
	if !strings.Contains(text, "Found 1 result") || !strings.Contains(text, "apples") || strings.Contains(text, "oranges") {
		t.Errorf("unexpected search text:\n%s", text)
	}
	if !strings.Contains(text, "https://apples.example") {
		t.Errorf("expected links in output:\n%s", text)
	}
}

func TestHandleSearch_Empty(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	res, _, err := srv.handleSearch(context.Background(), nil, SearchInput{Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if resultText(t, res) != "No results found." {
		t.Errorf("unexpected text %q", resultText(t, res))
	}

	res, _, _ = srv.handleSearch(context.Background(), nil, SearchInput{Query: ""})
	if !res.IsError {
		t.Error("expected error for empty query")
	}
}

func TestHandleDelete(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()

	srv.handleAdd(ctx, nil, AddInput{Text: "x", Links: []string{"l"}})

	res, _, _ := srv.handleDelete(ctx, nil, DeleteInput{ID: 1})
	if res.IsError || resultText(t, res) != "Deleted item 1." {
		t.Errorf("unexpected result %q", resultText(t, res))
	}

	res, _, _ = srv.handleDelete(ctx, nil, DeleteInput{ID: 1})
	if res.IsError || resultText(t, res) != "No item with id 1." {
		t.Errorf("repeat delete should be a no-op, got %q", resultText(t, res))
	}
}

func TestHandleStatus(t *testing.T) {
	srv, store, _ := setupTestServer(t)

	res, _, _ := srv.handleStatus(context.Background(), nil, StatusInput{})
	text := resultText(t, res)
	if !strings.Contains(text, `"items": 0`) || !strings.Contains(text, `"model": "fake-embedding"`) {
		t.Errorf("unexpected status:\n%s", text)
	}

	store.Uninitialized = true
	res, _, _ = srv.handleStatus(context.Background(), nil, StatusInput{})
	if !res.IsError || !strings.Contains(resultText(t, res), "not initialized") {
		t.Errorf("expected not initialized error, got %q", resultText(t, res))
	}
}

func TestServer_ListToolsOverSession(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := srv.SDK().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer serverSession.Close()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"items_add", "items_search", "items_delete", "items_status"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "items_add",
		Arguments: map[string]any{"text": "over the wire", "links": []string{"https://wire.example"}},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError || !strings.Contains(resultText(t, res), "Added item") {
		t.Errorf("unexpected call result %+v", res)
	}
}
