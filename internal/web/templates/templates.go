// Package templates renders the HTML pages served by the web server.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// IndexData contains data for the index page.
type IndexData struct {
	Query   string
	Limit   int
	Results []SearchResult
	// Searched is true when Query was submitted, even if nothing matched
	Searched bool
	Error    string
}

// SearchResult represents a search result for display.
type SearchResult struct {
	ID    int64
	Text  string
	Links []string
	Score float64
}

const pageStyle = `body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;color:#222}
form{display:flex;gap:.5rem}input[type=text]{flex:1;padding:.4rem}
.result{border-bottom:1px solid #ddd;padding:.75rem 0}.meta{color:#888;font-size:.85rem}
.error{color:#b00020}pre{white-space:pre-wrap;margin:.25rem 0}`

// Index renders the search page with optional results.
func Index(data IndexData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>vecstash</title><style>`+pageStyle+`</style></head><body><h1>vecstash</h1>`); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<form method="get" action="/"><input type="text" name="q" value="%s" placeholder="Search items" autofocus><input type="number" name="limit" value="%d" min="1" max="100"><button type="submit">Search</button></form>`,
			templ.EscapeString(data.Query), data.Limit); err != nil {
			return err
		}

		switch {
		case data.Error != "":
			if err := Error(data.Error).Render(ctx, w); err != nil {
				return err
			}
		case data.Searched:
			if err := SearchResults(data.Results).Render(ctx, w); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// SearchResults renders a result list.
func SearchResults(results []SearchResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(results) == 0 {
			_, err := io.WriteString(w, `<p class="meta">No results found.</p>`)
			return err
		}

		if _, err := io.WriteString(w, `<div class="results">`); err != nil {
			return err
		}
		for _, r := range results {
			if _, err := fmt.Fprintf(w, `<div class="result"><div class="meta">#%d &middot; score %.3f</div><pre>%s</pre><ul>`,
				r.ID, r.Score, templ.EscapeString(r.Text)); err != nil {
				return err
			}
			for _, l := range r.Links {
				href := string(templ.URL(l))
				if _, err := fmt.Fprintf(w, `<li><a href="%s" rel="noopener noreferrer">%s</a></li>`,
					templ.EscapeString(href), templ.EscapeString(l)); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, `</ul></div>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

// Error renders an error message.
func Error(message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<p class="error">%s</p>`, templ.EscapeString(message))
		return err
	})
}
