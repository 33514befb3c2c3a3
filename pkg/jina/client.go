// Package jina provides a client for the Jina AI reader and search API.
package jina

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-search/internal/resilience"
)

// Client defines the Jina AI operations.
type Client interface {
	// Read fetches a URL via Jina AI Reader and returns the markdown content.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search performs a web search via Jina AI Search and returns results.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// ReadResponse is the parsed Jina API response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the content from Jina.
type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	Usage   ReadUsage `json:"usage"`
}

// ReadUsage tracks token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// Excerpt returns the page content trimmed of surrounding whitespace and cut
// to at most maxChars runes. maxChars <= 0 returns the whole content.
func (r *ReadResponse) Excerpt(maxChars int) string {
	if r == nil {
		return ""
	}
	content := strings.TrimSpace(r.Data.Content)
	if maxChars <= 0 {
		return content
	}
	if runes := []rune(content); len(runes) > maxChars {
		return string(runes[:maxChars])
	}
	return content
}

// SearchResponse is the parsed Jina Search API response.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// Hits returns the results that carry a URL, in rank order.
func (r *SearchResponse) Hits() []SearchResult {
	if r == nil {
		return nil
	}
	hits := make([]SearchResult, 0, len(r.Data))
	for _, d := range r.Data {
		if strings.TrimSpace(d.URL) != "" {
			hits = append(hits, d)
		}
	}
	return hits
}

// SearchResult represents a single search result. Results are ranked; the
// API does not return a score.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	count int
}

// WithCount caps the number of results returned.
func WithCount(n int) SearchOption {
	return func(o *searchOpts) {
		o.count = n
	}
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithSearchBaseURL sets a custom search base URL (for testing).
func WithSearchBaseURL(url string) Option {
	return func(c *httpClient) {
		c.searchBaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	http          *http.Client
}

// NewClient creates a new Jina AI client. Callers own retries.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://r.jina.ai",
		searchBaseURL: "https://s.jina.ai",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get issues an authenticated GET and returns the body of a 200 response.
// A status listed in empty yields a nil body and no error.
func (c *httpClient) get(ctx context.Context, op, reqURL string, header http.Header, empty ...int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "jina: %s: create request", op)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "jina: %s: request failed", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "jina: %s: read body", op)
	}
	for _, code := range empty {
		if resp.StatusCode == code {
			return nil, nil
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("jina", resp.StatusCode, body)
	}
	return body, nil
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	header := http.Header{}
	header.Set("X-Return-Format", "markdown")

	body, err := c.get(ctx, "read", c.baseURL+"/"+targetURL, header)
	if err != nil {
		return nil, err
	}

	var out ReadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "jina: read: decode response")
	}
	return &out, nil
}

// Search runs a web search. A 422, which the API returns when a query has
// no results, yields an empty response.
func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	var so searchOpts
	for _, opt := range opts {
		opt(&so)
	}

	reqURL := c.searchBaseURL + "/" + url.PathEscape(query)
	if so.count > 0 {
		reqURL += "?" + url.Values{"count": {strconv.Itoa(so.count)}}.Encode()
	}

	body, err := c.get(ctx, "search", reqURL, nil, http.StatusUnprocessableEntity)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return &SearchResponse{Code: http.StatusUnprocessableEntity}, nil
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "jina: search: decode response")
	}
	return &out, nil
}
