// Package websearch queries a SearXNG-compatible metasearch instance and
// optionally extracts readable article text from the result pages.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"

	"github.com/openinfra/beacon/internal/log"
	"github.com/openinfra/beacon/internal/security"
)

const (
	// DefaultNumResults is returned when the caller does not ask for a
	// specific count.
	DefaultNumResults = 5

	// maxResponseSize caps both the search response and any fetched page.
	maxResponseSize = 10 << 20

	defaultTimeout = 15 * time.Second

	// maxContentChars truncates extracted article text.
	maxContentChars = 4000
)

// Result is a single external search hit. Content is populated only when
// the request asked for page extraction and the fetch succeeded.
type Result struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Snippet   string    `json:"snippet"`
	Published time.Time `json:"published,omitempty"`
	Content   string    `json:"content,omitempty"`
}

// Request describes one external search.
type Request struct {
	Query string

	// NumResults caps the hits returned after domain filtering.
	NumResults int

	// TemporalHint, when non-empty, is appended to the query to bias the
	// engine toward recent coverage ("2026", "latest", a month name).
	TemporalHint string

	// IncludeContent fetches each result page and extracts its readable
	// text. Pages that cannot be fetched keep an empty Content.
	IncludeContent bool
}

// Client talks to one SearXNG instance.
type Client struct {
	baseURL      string
	allowDomains []string
	httpClient   *http.Client
	guard        *security.FetchGuard
	logger       log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAllowDomains restricts results to the given domains and their
// subdomains. An empty list allows everything.
func WithAllowDomains(domains []string) Option {
	return func(c *Client) {
		c.allowDomains = normalizeDomains(domains)
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithFetchGuard enables SSRF protection: result URLs are validated before
// fetching and every dial re-checks the resolved address. Meant for
// production wiring; tests against loopback servers leave it off.
func WithFetchGuard() Option {
	return func(c *Client) {
		c.guard = security.NewFetchGuard()
	}
}

// New creates a Client for the SearXNG instance at baseURL.
func New(baseURL string, logger log.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("websearch: invalid base URL %q", baseURL)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.guard != nil {
		c.httpClient.Transport = c.guard.SafeTransport()
		c.httpClient.CheckRedirect = c.guard.CheckRedirect
	}
	return c, nil
}

// searxResponse mirrors the fields we use from the SearXNG JSON format.
type searxResponse struct {
	Results []searxResult `json:"results"`
}

type searxResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	PublishedDate string `json:"publishedDate"`
}

// Search runs one query and returns up to req.NumResults hits from allowed
// domains, ordered as the engine ranked them.
func (c *Client) Search(ctx context.Context, req Request) ([]Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("websearch: empty query")
	}
	if hint := strings.TrimSpace(req.TemporalHint); hint != "" {
		query = query + " " + hint
	}
	limit := req.NumResults
	if limit <= 0 {
		limit = DefaultNumResults
	}

	params := url.Values{}
	params.Set("q", c.scopeQuery(query))
	params.Set("format", "json")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request: unexpected status %d", resp.StatusCode)
	}

	var decoded searxResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, limit)
	for _, r := range decoded.Results {
		if r.URL == "" || !c.domainAllowed(r.URL) {
			continue
		}
		res := Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     r.URL,
			Snippet: strings.TrimSpace(r.Content),
		}
		if r.PublishedDate != "" {
			res.Published = parsePublished(r.PublishedDate)
		}
		results = append(results, res)
		if len(results) == limit {
			break
		}
	}

	if req.IncludeContent {
		for i := range results {
			content, err := c.extract(ctx, results[i].URL)
			if err != nil {
				c.logger.Warn("page extraction failed", "url", results[i].URL, "error", err)
				continue
			}
			results[i].Content = content
		}
	}

	c.logger.Debug("external search complete",
		"query", query,
		"engine_hits", len(decoded.Results),
		"returned", len(results))
	return results, nil
}

// extract fetches a result page and returns its readable text, scrubbed of
// invisible characters and instruction-override phrasing.
func (c *Client) extract(ctx context.Context, pageURL string) (string, error) {
	if c.guard != nil {
		if err := c.guard.Validate(pageURL); err != nil {
			return "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(io.LimitReader(resp.Body, maxResponseSize), parsed)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	text := security.ScrubExternal(strings.TrimSpace(article.TextContent))
	return truncate(text, maxContentChars), nil
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// scopeQuery narrows the engine query to the allowed domains with site:
// operators so the result budget is not spent on hits the post-response
// filter would discard. domainAllowed stays as the safety net for engines
// that ignore the operators.
func (c *Client) scopeQuery(query string) string {
	if len(c.allowDomains) == 0 {
		return query
	}
	sites := make([]string, len(c.allowDomains))
	for i, d := range c.allowDomains {
		sites[i] = "site:" + d
	}
	return query + " (" + strings.Join(sites, " OR ") + ")"
}

func (c *Client) domainAllowed(rawURL string) bool {
	if len(c.allowDomains) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range c.allowDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "www.")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePublished(s string) time.Time {
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
