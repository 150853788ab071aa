// Package tools provides the concrete capabilities worker agents use:
// web search and scraping, a document workspace, and a sandbox for
// submitting code changes.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxScrapeBytes caps how much of a page a scrape will read.
const maxScrapeBytes = 1 << 20

// SearchResult is one hit from the search endpoint.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher performs web searches and page scrapes for the research team.
type Searcher struct {
	// Endpoint is the search API base URL. The query is passed as the
	// "q" parameter.
	Endpoint string

	// Client is the HTTP client, defaulting to one with a 30s timeout.
	Client *http.Client
}

// NewSearcher creates a searcher against the given endpoint.
func NewSearcher(endpoint string) *Searcher {
	return &Searcher{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Searcher) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

// Search queries the search endpoint and returns its results.
func (s *Searcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if s.Endpoint == "" {
		return nil, fmt.Errorf("no search endpoint configured")
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}
	return payload.Results, nil
}

// Scrape fetches a page and returns its visible text with markup stripped.
func (s *Searcher) Scrape(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("scrape request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scrape of %s returned status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBytes))
	if err != nil {
		return "", fmt.Errorf("reading page body: %w", err)
	}
	return StripTags(string(body)), nil
}

// StripTags removes HTML markup, script and style bodies, and collapses the
// remaining whitespace into single spaces between text runs.
func StripTags(html string) string {
	var sb strings.Builder
	inTag := false
	skipUntil := "" // closing tag whose body we discard

	lower := strings.ToLower(html)
	for i := 0; i < len(html); i++ {
		if skipUntil != "" {
			if strings.HasPrefix(lower[i:], skipUntil) {
				i += len(skipUntil) - 1
				skipUntil = ""
				inTag = false
				sb.WriteByte(' ')
			}
			continue
		}
		switch c := html[i]; {
		case c == '<':
			inTag = true
			if strings.HasPrefix(lower[i:], "<script") {
				skipUntil = "</script>"
			} else if strings.HasPrefix(lower[i:], "<style") {
				skipUntil = "</style>"
			}
		case c == '>':
			inTag = false
			sb.WriteByte(' ')
		case !inTag:
			sb.WriteByte(c)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
