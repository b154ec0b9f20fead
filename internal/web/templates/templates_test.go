package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestIndex_EscapesInput(t *testing.T) {
	var buf bytes.Buffer
	err := Index(IndexData{
		Query:    `<script>alert(1)</script>`,
		Limit:    5,
		Searched: true,
		Results: []SearchResult{
			{ID: 1, Text: "<b>bold</b>", Links: []string{"https://a.example/?x=1&y=2", "javascript:alert(1)"}, Score: 0.5},
		},
	}).Render(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "<script>") || strings.Contains(out, "<b>bold</b>") {
		t.Errorf("unescaped user content:\n%s", out)
	}
	if !strings.Contains(out, "&lt;b&gt;bold&lt;/b&gt;") {
		t.Errorf("expected escaped text:\n%s", out)
	}
	if strings.Contains(out, `href="javascript:`) {
		t.Errorf("unsafe link rendered:\n%s", out)
	}
	if !strings.Contains(out, "#1") {
		t.Errorf("expected result id:\n%s", out)
	}
}

func TestIndex_NoSearch(t *testing.T) {
	var buf bytes.Buffer
	if err := Index(IndexData{Limit: 5}).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "No results found.") {
		t.Error("empty page must not claim no results")
	}
}

func TestSearchResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := SearchResults(nil).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No results found.") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	if err := Error("bad & worse").Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != `<p class="error">bad &amp; worse</p>` {
		t.Errorf("unexpected output %q", buf.String())
	}
}
