package websearch

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/germanamz/shorts/pkg/chats/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `<!DOCTYPE html>
<html><body>
<div class="result results_links results_links_deep web-result ">
<h2 class="result__title">
<a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fblog%2Fgo1.25&amp;rut=abc">Go 1.25 is released - The <b>Go</b> Programming Language</a>
</h2>
<a class="result__url" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fblog%2Fgo1.25&amp;rut=abc">go.dev/blog/go1.25</a>
<a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fblog%2Fgo1.25">Today the Go team is happy to release <b>Go</b> 1.25 &amp; friends.</a>
</div>
<div class="result results_links results_links_deep web-result ">
<a rel="nofollow" class="result__a" href="https://example.com/direct">Direct link</a>
<a class="result__snippet" href="https://example.com/direct">A   snippet
</a>
</div>
<div class="result">
<a rel="nofollow" class="result__a" href="https://example.com/third">Third</a>
<a class="result__snippet" href="https://example.com/third">Third snippet</a>
</div>
</body></html>
`

func newTestSearcher(t *testing.T, handler http.HandlerFunc) (*Searcher, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	s, err := New(WithBaseURL(srv.URL+"/html/"), WithHTTPClient(srv.Client()), WithUserAgent("shorts-test"))
	require.NoError(t, err)

	return s, &calls
}

func serveFixture(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/html/", r.URL.Path)
		assert.Equal(t, "shorts-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(fixture))
	}
}

func TestSearch(t *testing.T) {
	var query string
	s, _ := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		serveFixture(t)(w, r)
	})

	results, err := s.Search(context.Background(), "  go 1.25 release ", 0)

	require.NoError(t, err)
	assert.Equal(t, "go 1.25 release", query)
	require.Len(t, results, 3)

	assert.Equal(t, "Go 1.25 is released - The Go Programming Language", results[0].Title)
	assert.Equal(t, "https://go.dev/blog/go1.25", results[0].URL)
	assert.Equal(t, "Today the Go team is happy to release Go 1.25 & friends.", results[0].Snippet)

	assert.Equal(t, "Direct link", results[1].Title)
	assert.Equal(t, "https://example.com/direct", results[1].URL)
	assert.Equal(t, "A snippet", results[1].Snippet)
}

func TestSearchLimit(t *testing.T) {
	s, _ := newTestSearcher(t, serveFixture(t))

	results, err := s.Search(context.Background(), "go", 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchEmptyQuery(t *testing.T) {
	s, calls := newTestSearcher(t, serveFixture(t))

	_, err := s.Search(context.Background(), "   ", 3)

	require.Error(t, err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSearchNoResults(t *testing.T) {
	s, _ := newTestSearcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>No results.</body></html>"))
	})

	_, err := s.Search(context.Background(), "zzz", 3)

	require.ErrorIs(t, err, ErrNoResults)
}

func TestSearchHTTPError(t *testing.T) {
	s, _ := newTestSearcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := s.Search(context.Background(), "go", 3)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFormat(t *testing.T) {
	got := Format([]Result{
		{Title: "A", URL: "https://a", Snippet: "first"},
		{Title: "B", URL: "https://b", Snippet: "second"},
	})

	assert.Equal(t, "A - https://a\nfirst\n\nB - https://b\nsecond", got)
}

func TestParseStopsAtLimit(t *testing.T) {
	results, err := parse(bufio.NewScanner(strings.NewReader(fixture)), 1)

	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestTool(t *testing.T) {
	s, _ := newTestSearcher(t, serveFixture(t))

	tool := s.Tool()
	assert.Equal(t, Name, tool.Name)
	require.NoError(t, tool.Validate())

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.InputSchema, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"query"}, schema["required"])

	res := s.ToolBox().Call(context.Background(), content.ToolCall{ID: "1", Name: Name, Arguments: `{"query":"go","limit":1}`})

	require.False(t, res.IsError, res.Content)
	assert.Equal(t, "Go 1.25 is released - The Go Programming Language - https://go.dev/blog/go1.25\nToday the Go team is happy to release Go 1.25 & friends.", res.Content)
}

func TestToolRejectsInvalidInput(t *testing.T) {
	s, calls := newTestSearcher(t, serveFixture(t))
	tb := s.ToolBox()

	for _, args := range []string{`{}`, `{"query": 3}`, `{"query":"go","limit":50}`, `not json`} {
		res := tb.Call(context.Background(), content.ToolCall{Name: Name, Arguments: args})
		assert.True(t, res.IsError, args)
		assert.Contains(t, res.Content, "invalid input", args)
	}

	assert.Equal(t, int32(0), calls.Load())
}

func TestToolNoResults(t *testing.T) {
	s, _ := newTestSearcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	})

	res := s.ToolBox().Call(context.Background(), content.ToolCall{Name: Name, Arguments: `{"query":"zzz"}`})

	require.False(t, res.IsError)
	assert.Equal(t, "No results found for zzz", res.Content)
}
