// Package websearch provides the web_search tool: a DuckDuckGo HTML search
// that lets the scriptwriter ground a script in current results.
package websearch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/germanamz/shorts/pkg/tools/toolbox"
)

const (
	// Name is the tool name declared to models.
	Name = "web_search"

	DefaultBaseURL = "https://html.duckduckgo.com/html/"
	DefaultLimit   = 5
	MaxLimit       = 10

	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.4 Safari/605.1.15"
)

// ErrNoResults is returned when a search matched nothing.
var ErrNoResults = errors.New("websearch: no results")

// Result is one search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Option customises a Searcher.
type Option func(*Searcher)

// WithBaseURL points the searcher at another endpoint.
func WithBaseURL(u string) Option {
	return func(s *Searcher) { s.baseURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Searcher) { s.client = c }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Searcher) { s.userAgent = ua }
}

// Searcher queries DuckDuckGo. It is safe for concurrent use.
type Searcher struct {
	baseURL   string
	client    *http.Client
	userAgent string
	schema    *jsonschema.Resolved
}

// New creates a Searcher.
func New(opts ...Option) (*Searcher, error) {
	s := &Searcher{
		baseURL:   DefaultBaseURL,
		client:    http.DefaultClient,
		userAgent: defaultUserAgent,
	}

	for _, opt := range opts {
		opt(s)
	}

	resolved, err := inputSchema().Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: resolve schema: %w", err)
	}
	s.schema = resolved

	return s, nil
}

func inputSchema() *jsonschema.Schema {
	minLimit, maxLimit := 1.0, float64(MaxLimit)

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {
				Type:        "string",
				Description: "What to search the web for.",
			},
			"limit": {
				Type:        "integer",
				Description: fmt.Sprintf("Maximum number of results (default %d).", DefaultLimit),
				Minimum:     &minLimit,
				Maximum:     &maxLimit,
			},
		},
		Required: []string{"query"},
	}
}

// Search returns at most limit results for query. A limit outside
// 1..MaxLimit uses DefaultLimit.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("websearch: query is required")
	}
	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("websearch: base url: %w", err)
	}

	values := u.Query()
	values.Set("q", query)
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("Referer", "https://duckduckgo.com/")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req) //nolint:gosec // URL is built from configured base URL.
	if err != nil {
		return nil, fmt.Errorf("websearch: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: unexpected status %d", resp.StatusCode)
	}

	results, err := parse(bufio.NewScanner(resp.Body), limit)
	if err != nil {
		return nil, fmt.Errorf("websearch: read response: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	return results, nil
}

var (
	regexLink = regexp.MustCompile(`href="([^"]+)"`)
	regexTags = regexp.MustCompile(`<[^>]*>`)
)

// parse walks the result page line by line. A result is complete once its
// snippet line has been seen.
func parse(scanner *bufio.Scanner, limit int) ([]Result, error) {
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var results []Result
	var cur Result

	for scanner.Scan() && len(results) < limit {
		line := scanner.Text()

		switch {
		case strings.Contains(line, "result__a"):
			cur.Title = cleanText(line)
			if cur.URL == "" {
				cur.URL = linkOf(line)
			}
		case strings.Contains(line, "result__url"):
			if u := linkOf(line); u != "" {
				cur.URL = u
			}
		case strings.Contains(line, "result__snippet"):
			cur.Snippet = cleanText(line)
		}

		if cur.Snippet == "" {
			continue
		}

		results = append(results, cur)
		cur = Result{}
	}

	return results, scanner.Err()
}

func cleanText(line string) string {
	s := regexTags.ReplaceAllString(line, "")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// linkOf extracts the target of the first href on line, unwrapping the
// DuckDuckGo redirect.
func linkOf(line string) string {
	m := regexLink.FindStringSubmatch(line)
	if len(m) < 2 {
		return ""
	}

	href := html.UnescapeString(m[1])
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}

	return href
}

// Format renders results as "title - url" followed by the snippet, one
// blank line between results.
func Format(results []Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("%s - %s\n%s", r.Title, r.URL, r.Snippet))
	}
	return strings.Join(blocks, "\n\n")
}

type input struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Tool returns the web_search tool descriptor.
func (s *Searcher) Tool() toolbox.Tool {
	schema, _ := json.Marshal(inputSchema())

	return toolbox.Tool{
		Name:        Name,
		Description: "Search the web for current information. Returns titles, links and snippets.",
		InputSchema: schema,
		Handler:     s.handle,
	}
}

// ToolBox returns a toolbox holding only the web_search tool.
func (s *Searcher) ToolBox() *toolbox.ToolBox {
	return toolbox.New().MustRegister(s.Tool())
}

func (s *Searcher) handle(ctx context.Context, raw json.RawMessage) (string, error) {
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := s.schema.Validate(args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	var in input
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	results, err := s.Search(ctx, in.Query, in.Limit)
	if errors.Is(err, ErrNoResults) {
		return "No results found for " + in.Query, nil
	}
	if err != nil {
		return "", err
	}

	return Format(results), nil
}
