package core

import (
	"context"
	"strings"
	"testing"

	"github.com/leafwise/leafwise/internal/capability"
)

func TestSynthesizeAdvice(t *testing.T) {
	llm := &stubLLM{generate: func(ctx context.Context, prompt string, options map[string]interface{}) (string, error) {
		if !strings.Contains(prompt, "User question: how much light?") {
			t.Errorf("prompt missing user question:\n%s", prompt)
		}
		return "  Give it bright indirect light.  ", nil
	}}

	advisor := NewAdvisor(llm)
	response, err := advisor.SynthesizeAdvice(context.Background(), capability.AdviceContext{Query: "how much light?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response != "Give it bright indirect light." {
		t.Fatalf("response must be trimmed, got %q", response)
	}
}

func TestSynthesizeAdviceEmptyResponse(t *testing.T) {
	llm := &stubLLM{generate: func(ctx context.Context, prompt string, options map[string]interface{}) (string, error) {
		return "   ", nil
	}}
	advisor := NewAdvisor(llm)
	if _, err := advisor.SynthesizeAdvice(context.Background(), capability.AdviceContext{Query: "q"}); err == nil {
		t.Fatalf("empty model output must be an error")
	}
}

func TestRenderAdviceContext(t *testing.T) {
	rendered := renderAdviceContext(capability.AdviceContext{
		Query: "why yellow leaves?",
		Plant: capability.PlantRecord{
			Identified: true, PlantName: "Monstera deliciosa",
			ScientificName: "Monstera deliciosa", Family: "Araceae", Confidence: 0.92,
		},
		HealthIssues: []capability.HealthIssueRef{
			{Kind: "disease", Name: "leaf spot", Probability: 0.6},
		},
		Knowledge: []capability.KnowledgeSnippet{{Content: "Water weekly."}},
		WebResults: []capability.WebResult{
			{Title: "Yellow Leaves", Snippet: "usually overwatering"},
		},
		Weather:  capability.WeatherReport{Temperature: 21.5, Humidity: 60, Description: "clear sky"},
		Location: "Madrid",
	})

	for _, want := range []string{
		"User question: why yellow leaves?",
		"Identified plant: Monstera deliciosa",
		"Family: Araceae",
		"disease: leaf spot (60% likelihood)",
		"Water weekly.",
		"Yellow Leaves: usually overwatering",
		"Current weather in Madrid: clear sky",
	} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("rendered context missing %q:\n%s", want, rendered)
		}
	}
}

func TestRenderAdviceContextUnidentified(t *testing.T) {
	rendered := renderAdviceContext(capability.AdviceContext{
		Query:   "help",
		Plant:   capability.UnknownPlant(),
		Weather: capability.WeatherError("location not provided"),
	})
	if !strings.Contains(rendered, "Plant: not identified") {
		t.Fatalf("expected unidentified marker:\n%s", rendered)
	}
	if strings.Contains(rendered, "Current weather") {
		t.Fatalf("weather sentinel must not render as data:\n%s", rendered)
	}
}
