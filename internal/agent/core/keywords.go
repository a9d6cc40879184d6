package core

import (
	"context"
	"encoding/json"
	"strings"
)

const keywordSystemPrompt = `You are a search query analyst for a plant care assistant. Extract search keywords from the user's question.

Return ONLY a JSON object:
{
  "optimized_query": "best single search query",
  "primary_keywords": ["most", "important", "terms"],
  "secondary_keywords": ["supporting", "terms"],
  "care_categories": ["watering", "light", "soil", "fertilizer", "temperature", "humidity", "pruning", "repotting"],
  "plant_name": "plant name mentioned in the query, or empty string"
}

Include only care categories actually relevant to the question.`

// analyzeKeywords extracts search keywords from the query, preferring the
// LLM and degrading to a deterministic tokenizer when the model is
// unavailable or returns something unparseable.
func (o *Orchestrator) analyzeKeywords(ctx context.Context, state *TurnState) KeywordAnalysis {
	prompt := keywordSystemPrompt + "\n\nUser query: " + state.Query
	if state.IdentifiedPlant.Identified {
		prompt += "\nIdentified plant: " + state.IdentifiedPlant.PlantName
	}

	raw, err := o.llm.Generate(ctx, prompt, map[string]interface{}{
		"temperature": 0.1,
		"max_tokens":  300,
	})
	if err != nil {
		o.logger.Printf("keyword analysis LLM call failed, using naive fallback: %v", err)
		return naiveKeywords(state.Query, state.IdentifiedPlant.PlantName)
	}

	var ka KeywordAnalysis
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &ka); err != nil {
		o.logger.Printf("keyword analysis returned malformed JSON, using naive fallback: %v", err)
		return naiveKeywords(state.Query, state.IdentifiedPlant.PlantName)
	}
	if ka.OptimizedQuery == "" {
		ka.OptimizedQuery = state.Query
	}
	return ka
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "my": true,
	"i": true, "to": true, "for": true, "of": true, "in": true, "on": true,
	"how": true, "what": true, "why": true, "do": true, "does": true,
	"can": true, "should": true, "it": true, "this": true, "that": true,
	"and": true, "or": true, "with": true, "have": true, "has": true,
}

var careCategories = []string{
	"watering", "light", "soil", "fertilizer", "temperature",
	"humidity", "pruning", "repotting",
}

// categoryHints maps common phrasing to care categories. Ordered so the
// fallback extractor stays deterministic.
var categoryHints = []struct{ hint, category string }{
	{"water", "watering"},
	{"sun", "light"},
	{"shade", "light"},
	{"feed", "fertilizer"},
	{"fertiliz", "fertilizer"},
	{"humid", "humidity"},
	{"prune", "pruning"},
	{"trim", "pruning"},
	{"repot", "repotting"},
	{"pot", "repotting"},
	{"temperat", "temperature"},
	{"cold", "temperature"},
	{"heat", "temperature"},
}

// knownPlants lets the fallback recover a plant name directly from the query
// when identification produced nothing.
var knownPlants = []string{
	"monstera", "pothos", "snake plant", "sansevieria", "fiddle leaf fig",
	"ficus", "succulent", "cactus", "orchid", "fern", "philodendron",
	"peace lily", "spider plant", "aloe", "rose", "ivy", "palm", "bonsai",
}

// naiveKeywords is the deterministic keyword extractor: lowercase tokens
// minus stopwords, category detection by substring hints, plant name by
// dictionary lookup.
func naiveKeywords(query, plantName string) KeywordAnalysis {
	lower := strings.ToLower(query)

	if plantName == "" || plantName == "Unknown" {
		plantName = ""
		for _, p := range knownPlants {
			if strings.Contains(lower, p) {
				plantName = p
				break
			}
		}
	}

	var tokens []string
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 2 || stopwords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}

	ka := KeywordAnalysis{PlantName: plantName}
	for i, tok := range tokens {
		if i < 3 {
			ka.PrimaryKeywords = append(ka.PrimaryKeywords, tok)
		} else {
			ka.SecondaryKeywords = append(ka.SecondaryKeywords, tok)
		}
	}

	seen := map[string]bool{}
	for _, cat := range careCategories {
		if strings.Contains(lower, cat) && !seen[cat] {
			ka.CareCategories = append(ka.CareCategories, cat)
			seen[cat] = true
		}
	}
	for _, h := range categoryHints {
		if strings.Contains(lower, h.hint) && !seen[h.category] {
			ka.CareCategories = append(ka.CareCategories, h.category)
			seen[h.category] = true
		}
	}

	parts := ka.PrimaryKeywords
	if plantName != "" {
		parts = append([]string{plantName}, parts...)
	}
	ka.OptimizedQuery = strings.Join(parts, " ")
	if ka.OptimizedQuery == "" {
		ka.OptimizedQuery = query
	}
	return ka
}

// stripJSONFence removes markdown code fences around a JSON payload.
func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
