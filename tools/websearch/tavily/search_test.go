package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchWeb(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.APIKey != "test-key" || req.Query != "monstera care" {
			t.Errorf("unexpected request: %#v", req)
		}
		if req.SearchDepth != "advanced" || !req.IncludeAnswer {
			t.Errorf("expected advanced search with answer, got %#v", req)
		}
		_, _ = w.Write([]byte(`{
			"results": [
				{"title": "Monstera Care", "url": "https://a.example", "content": "bright light"},
				{"title": "Watering Guide", "url": "https://b.example", "content": "weekly"},
				{"title": "Extra", "url": "https://c.example", "content": "ignored"}
			]
		}`))
	}))
	defer srv.Close()

	s := New("test-key", 0)
	s.endpoint = srv.URL

	results, err := s.SearchWeb(context.Background(), "monstera care", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected max_results cap of 2, got %d", len(results))
	}
	if results[0].Title != "Monstera Care" || results[0].URL != "https://a.example" {
		t.Fatalf("unexpected first result: %#v", results[0])
	}
	if results[0].SourceQuery != "monstera care" {
		t.Fatalf("results must carry the source query, got %q", results[0].SourceQuery)
	}
}

func TestSearchWebAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := New("bad-key", 0)
	s.endpoint = srv.URL
	if _, err := s.SearchWeb(context.Background(), "q", 3); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}
