package serper

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

const defaultEndpoint = "https://google.serper.dev/search"

// Search implements capability.WebSearcher against the Serper API.
type Search struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// New creates a Serper searcher.
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

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// SearchWeb runs a Serper search and maps the organic results.
func (s *Search) SearchWeb(ctx context.Context, query string, maxResults int) ([]capability.WebResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	payload := map[string]any{"q": query, "num": maxResults}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
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
		return nil, fmt.Errorf("serper API error (status %d): %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	out := make([]capability.WebResult, 0, len(sr.Organic))
	for i, r := range sr.Organic {
		if i >= maxResults {
			break
		}
		out = append(out, capability.WebResult{
			Title:       r.Title,
			URL:         r.Link,
			Snippet:     r.Snippet,
			SourceQuery: query,
		})
	}
	return out, nil
}
