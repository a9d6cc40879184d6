package semantic

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/leafwise/leafwise/config"
)

// hashLLM produces deterministic embeddings from content hashes so vector
// search works without a real model.
type hashLLM struct{}

func (hashLLM) Generate(ctx context.Context, prompt string, options map[string]interface{}) (string, error) {
	return "", nil
}

func (hashLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, 16)
		for j := range vec {
			vec[j] = float32(sum[j]) + 1
		}
		out[i] = vec
	}
	return out, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.KnowledgeConfig{SearchTopK: 5, MaxResults: 3}, hashLLM{}, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestAppendAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []string{
		"Monstera care: water weekly, bright indirect light.",
		"Pothos care: tolerates low light, water when dry.",
	}
	for _, d := range docs {
		if err := store.Append(ctx, d, map[string]string{"source": "manual"}); err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}
	if store.Count() != 2 {
		t.Fatalf("expected 2 documents, got %d", store.Count())
	}

	results, err := store.SearchKnowledge(ctx, "monstera watering", 5)
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both documents back, got %d", len(results))
	}
	for _, r := range results {
		if r.Content == "" {
			t.Fatalf("result missing content: %#v", r)
		}
		if r.Metadata["source"] != "manual" {
			t.Fatalf("result missing metadata: %#v", r)
		}
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := "Fern care: keep soil moist and humidity high."
	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, content, nil); err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}
	if store.Count() != 1 {
		t.Fatalf("identical content must store once, got %d documents", store.Count())
	}
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Append(context.Background(), "", nil); err == nil {
		t.Fatalf("empty content must be rejected")
	}
}

func TestSearchEmptyStore(t *testing.T) {
	store := newTestStore(t)
	results, err := store.SearchKnowledge(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("empty store must return no results, got %d", len(results))
	}
}

func TestSearchClampsK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Append(ctx, "one document only", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Asking for more results than documents must not error.
	results, err := store.SearchKnowledge(ctx, "document", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Seed(ctx); err != nil {
		t.Fatalf("unexpected seed error: %v", err)
	}
	first := store.Count()
	if first != len(seedDocs) {
		t.Fatalf("expected %d seed documents, got %d", len(seedDocs), first)
	}

	if err := store.Seed(ctx); err != nil {
		t.Fatalf("unexpected second seed error: %v", err)
	}
	if store.Count() != first {
		t.Fatalf("re-seeding must not duplicate documents: %d vs %d", store.Count(), first)
	}
}

func TestContentIDStable(t *testing.T) {
	a := contentID("same content")
	b := contentID("same content")
	c := contentID("different content")
	if a != b {
		t.Fatalf("content ID must be stable: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("different content must get different IDs")
	}
}
