package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/leafwise/leafwise/internal/capability"
)

const defaultEndpoint = "https://api.tavily.com/search"

// Search implements capability.WebSearcher against the Tavily search API.
type Search struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// New creates a Tavily searcher.
func New(apiKey string, timeout time.Duration) *Search {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Search{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearchWeb runs a Tavily search and maps the results.
func (s *Search) SearchWeb(ctx context.Context, query string, maxResults int) ([]capability.WebResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	reqBody := searchRequest{
		APIKey:        s.apiKey,
		Query:         query,
		SearchDepth:   "advanced",
		MaxResults:    maxResults,
		IncludeAnswer: true,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily API error (status %d): %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	out := make([]capability.WebResult, 0, len(sr.Results))
	for i, r := range sr.Results {
		if i >= maxResults {
			break
		}
		out = append(out, capability.WebResult{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Content,
			SourceQuery: query,
		})
	}
	return out, nil
}
