package capability

import (
	"context"
	"fmt"
)

// Identifier identifies a plant species (and health) from an image.
// Implementations never panic past the boundary: failures come back as an
// error, and the orchestrator substitutes UnknownPlant.
type Identifier interface {
	Identify(ctx context.Context, imageBase64, description string) (PlantRecord, error)
}

// DiseaseDetector inspects an image of a known plant for diseases and pests.
type DiseaseDetector interface {
	DetectDisease(ctx context.Context, imageBase64, plantName string) (HealthAssessment, error)
}

// KnowledgeSearcher queries the semantic knowledge store.
type KnowledgeSearcher interface {
	SearchKnowledge(ctx context.Context, query string, k int) ([]KnowledgeSnippet, error)
}

// WebSearcher queries a web search capability. Implementations return an
// empty list on failure rather than partial garbage.
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string, maxResults int) ([]WebResult, error)
}

// WeatherClient fetches current conditions for a location string.
type WeatherClient interface {
	CurrentWeather(ctx context.Context, location string) (WeatherReport, error)
}

// AdviceSynthesizer turns the assembled context into natural-language advice.
// This is the one capability whose failure is terminal for a turn.
type AdviceSynthesizer interface {
	SynthesizeAdvice(ctx context.Context, advCtx AdviceContext) (string, error)
}

// Registry holds exactly one client per capability. The typed fields make the
// capability set closed at compile time; there is no name-to-callable map.
type Registry struct {
	Identifier      Identifier
	DiseaseDetector DiseaseDetector
	Knowledge       KnowledgeSearcher
	Web             WebSearcher
	Weather         WeatherClient
	Advisor         AdviceSynthesizer
}

// ErrClientMissing indicates a required capability client is not wired.
var ErrClientMissing = fmt.Errorf("required capability client missing")

// Validate ensures every capability the orchestrator may dispatch has a client.
func (r *Registry) Validate() error {
	if r.Identifier == nil {
		return fmt.Errorf("%w: %s", ErrClientMissing, Identify)
	}
	if r.DiseaseDetector == nil {
		return fmt.Errorf("%w: %s", ErrClientMissing, DetectDisease)
	}
	if r.Knowledge == nil {
		return fmt.Errorf("%w: %s", ErrClientMissing, SearchKnowledge)
	}
	if r.Web == nil {
		return fmt.Errorf("%w: %s", ErrClientMissing, SearchWeb)
	}
	if r.Weather == nil {
		return fmt.Errorf("%w: %s", ErrClientMissing, GetWeather)
	}
	if r.Advisor == nil {
		return fmt.Errorf("%w: %s", ErrClientMissing, Synthesize)
	}
	return nil
}
