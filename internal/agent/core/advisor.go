package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/leafwise/leafwise/internal/capability"
	"github.com/leafwise/leafwise/provider"
)

const advisorSystemPrompt = `You are an expert plant care advisor. Using the context below, give the user practical, specific advice for their question. Ground the advice in the provided knowledge and search results; mention weather conditions when they matter for care. Be concise and concrete. If the plant could not be identified, say so and give the best general guidance you can.`

// Advisor synthesizes the final natural-language advice from the assembled
// turn context. It implements capability.AdviceSynthesizer on top of the
// LLM provider.
type Advisor struct {
	llm provider.LLM
}

// NewAdvisor creates the LLM-backed advice synthesizer.
func NewAdvisor(llm provider.LLM) *Advisor {
	return &Advisor{llm: llm}
}

// SynthesizeAdvice renders the advice context into a prompt and generates
// the response.
func (a *Advisor) SynthesizeAdvice(ctx context.Context, advCtx capability.AdviceContext) (string, error) {
	prompt := advisorSystemPrompt + "\n\n" + renderAdviceContext(advCtx)

	response, err := a.llm.Generate(ctx, prompt, map[string]interface{}{
		"temperature": 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("advice generation failed: %w", err)
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return "", fmt.Errorf("advice generation returned empty response")
	}
	return response, nil
}

// renderAdviceContext flattens the structured context into prompt text.
func renderAdviceContext(advCtx capability.AdviceContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User question: %s\n", advCtx.Query)

	if advCtx.Plant.Identified {
		fmt.Fprintf(&b, "\nIdentified plant: %s", advCtx.Plant.PlantName)
		if advCtx.Plant.ScientificName != "" && advCtx.Plant.ScientificName != advCtx.Plant.PlantName {
			fmt.Fprintf(&b, " (%s)", advCtx.Plant.ScientificName)
		}
		fmt.Fprintf(&b, ", confidence %.0f%%\n", advCtx.Plant.Confidence*100)
		if advCtx.Plant.Family != "" {
			fmt.Fprintf(&b, "Family: %s\n", advCtx.Plant.Family)
		}
	} else {
		b.WriteString("\nPlant: not identified\n")
	}

	if len(advCtx.HealthIssues) > 0 {
		b.WriteString("\nDetected health issues:\n")
		for _, issue := range advCtx.HealthIssues {
			fmt.Fprintf(&b, "- %s: %s (%.0f%% likelihood)\n", issue.Kind, issue.Name, issue.Probability*100)
		}
	}

	if len(advCtx.Knowledge) > 0 {
		b.WriteString("\nKnowledge base:\n")
		for _, snippet := range advCtx.Knowledge {
			fmt.Fprintf(&b, "- %s\n", snippet.Content)
		}
	}

	if len(advCtx.WebResults) > 0 {
		b.WriteString("\nWeb search results:\n")
		for _, r := range advCtx.WebResults {
			fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Snippet)
		}
	}

	if advCtx.Weather.OK() {
		fmt.Fprintf(&b, "\nCurrent weather in %s: %s, %.1f°C, %.0f%% humidity\n",
			advCtx.Location, advCtx.Weather.Description, advCtx.Weather.Temperature, advCtx.Weather.Humidity)
	}

	if advCtx.HasImage && advCtx.ImageDescription != "" {
		fmt.Fprintf(&b, "\nUser's description of the photo: %s\n", advCtx.ImageDescription)
	}

	return b.String()
}
