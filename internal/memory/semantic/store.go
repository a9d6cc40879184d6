package semantic

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/internal/capability"
	"github.com/leafwise/leafwise/provider"
)

const collectionName = "plant_care"

// Store is the semantic knowledge base: embedded vector search over plant
// care documents, fed by seed data and accepted feedback. It implements
// capability.KnowledgeSearcher.
type Store struct {
	db     *chromem.DB
	llm    provider.LLM
	cfg    config.KnowledgeConfig
	logger *log.Logger

	mu  sync.Mutex
	col *chromem.Collection
}

// NewStore opens (or creates) the knowledge store. When cfg.PersistPath is
// set the database survives restarts via gob snapshots; otherwise it lives
// in memory only.
func NewStore(cfg config.KnowledgeConfig, llm provider.LLM, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[KNOWLEDGE] ", log.LstdFlags)
	}

	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.PersistPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open knowledge store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	s := &Store{db: db, llm: llm, cfg: cfg, logger: logger}
	s.col, err = db.GetOrCreateCollection(collectionName, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", collectionName, err)
	}
	return s, nil
}

// embeddingFunc adapts the provider's batch Embed to chromem's single-text
// embedding signature.
func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := s.llm.Embed(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to embed text: %w", err)
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("embedding provider returned no vectors")
		}
		return vecs[0], nil
	}
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.col.Count()
}

// Append stores a document with metadata. The document ID is derived from
// content so re-appending identical content stays idempotent.
func (s *Store) Append(ctx context.Context, content string, metadata map[string]string) error {
	if content == "" {
		return fmt.Errorf("content is required")
	}
	doc := chromem.Document{
		ID:       contentID(content),
		Content:  content,
		Metadata: metadata,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

// SearchKnowledge runs a similarity query and returns up to k snippets above
// the configured similarity floor, best first.
func (s *Store) SearchKnowledge(ctx context.Context, query string, k int) ([]capability.KnowledgeSnippet, error) {
	if k <= 0 {
		k = s.cfg.SearchTopK
	}
	s.mu.Lock()
	count := s.col.Count()
	s.mu.Unlock()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := s.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge query failed: %w", err)
	}

	out := make([]capability.KnowledgeSnippet, 0, len(results))
	for _, r := range results {
		if float64(r.Similarity) < s.cfg.MinScore {
			continue
		}
		out = append(out, capability.KnowledgeSnippet{
			Content:  r.Content,
			Metadata: r.Metadata,
			Score:    float64(r.Similarity),
		})
	}
	return out, nil
}
