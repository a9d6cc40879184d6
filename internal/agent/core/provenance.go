package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/leafwise/leafwise/internal/capability"
)

// buildProvenance derives the source trace from populated turn state. It is
// called once per turn, right before the result is returned.
func buildProvenance(state *TurnState) Provenance {
	var p Provenance

	// Plant identification.
	identStep := ProvenanceStep{Name: "plant_identification"}
	switch {
	case state.FailedCapabilities[capability.Identify]:
		identStep.Status = StepFailed
	case state.ImageBase64 == "" && !state.IdentifiedPlant.Identified:
		identStep.Status = StepSkipped
	case state.IdentifiedPlant.Identified:
		identStep.Status = StepCompleted
		identStep.Details = map[string]string{
			"plant_name":      state.IdentifiedPlant.PlantName,
			"scientific_name": state.IdentifiedPlant.ScientificName,
			"confidence":      fmt.Sprintf("%.1f%%", state.IdentifiedPlant.Confidence*100),
			"health_status":   healthStatus(state),
		}
	default:
		identStep.Status = StepNoResults
		if state.IdentifiedPlant.Message != "" {
			identStep.Details = map[string]string{"message": state.IdentifiedPlant.Message}
		}
	}
	p.Steps = append(p.Steps, identStep)

	// Knowledge base search.
	kbStep := ProvenanceStep{Name: "knowledge_base"}
	if state.FailedCapabilities[capability.SearchKnowledge] {
		kbStep.Status = StepFailed
	} else if len(state.KnowledgeResults) > 0 {
		kbStep.Status = StepCompleted
		kbStep.Details = map[string]string{
			"sources_found": strconv.Itoa(len(state.KnowledgeResults)),
			"preview":       preview(state.KnowledgeResults[0].Content, 150),
		}
	} else {
		kbStep.Status = StepNoResults
	}
	p.Steps = append(p.Steps, kbStep)

	// Web search.
	webStep := ProvenanceStep{Name: "web_search"}
	switch {
	case state.FailedCapabilities[capability.SearchWeb]:
		webStep.Status = StepFailed
	case len(state.WebResults) > 0:
		webStep.Status = StepCompleted
		top := state.WebResults[0]
		webStep.Details = map[string]string{
			"results_found": strconv.Itoa(len(state.WebResults)),
			"top_source":    top.Title + " - " + top.URL,
		}
	case state.NeedsWebSearch:
		webStep.Status = StepNoResults
	default:
		webStep.Status = StepSkipped
	}
	p.Steps = append(p.Steps, webStep)

	// Weather.
	weatherStep := ProvenanceStep{Name: "weather_analysis"}
	switch {
	case state.Weather.OK():
		weatherStep.Status = StepCompleted
		weatherStep.Details = map[string]string{
			"temperature": fmt.Sprintf("%.1f°C", state.Weather.Temperature),
			"humidity":    fmt.Sprintf("%.0f%%", state.Weather.Humidity),
			"description": state.Weather.Description,
		}
	case state.Location == "":
		weatherStep.Status = StepSkipped
	case state.FailedCapabilities[capability.GetWeather] || state.Weather.Err != "":
		weatherStep.Status = StepFailed
		weatherStep.Details = map[string]string{"error": state.Weather.Err}
	default:
		// Location given but the plan never requested weather.
		weatherStep.Status = StepSkipped
	}
	p.Steps = append(p.Steps, weatherStep)

	// Image analysis.
	imageStep := ProvenanceStep{Name: "image_analysis"}
	if state.ImageBase64 != "" {
		imageStep.Status = StepCompleted
		if state.ImageDescription != "" {
			imageStep.Details = map[string]string{"description": preview(state.ImageDescription, 100)}
		}
	} else {
		imageStep.Status = StepSkipped
	}
	p.Steps = append(p.Steps, imageStep)

	// Advice generation.
	adviceStep := ProvenanceStep{Name: "advice_generation"}
	if state.FailedCapabilities[capability.Synthesize] {
		adviceStep.Status = StepFailed
	} else {
		adviceStep.Status = StepCompleted
		adviceStep.Details = map[string]string{
			"sources_combined": strconv.Itoa(sourcesCombined(state)),
		}
	}
	p.Steps = append(p.Steps, adviceStep)

	p.Summary = buildSummary(state)
	return p
}

func healthStatus(state *TurnState) string {
	switch {
	case state.DiseaseInfo != nil && !state.DiseaseInfo.IsHealthy:
		return "Issues detected"
	case state.DiseaseInfo != nil:
		return "Healthy"
	case state.IdentifiedPlant.Health == nil:
		return "Not assessed"
	case state.IdentifiedPlant.Health.IsHealthy:
		return "Healthy"
	default:
		return "Issues detected"
	}
}

func sourcesCombined(state *TurnState) int {
	n := len(state.KnowledgeResults) + len(state.WebResults)
	if state.Weather.OK() {
		n++
	}
	if state.ImageBase64 != "" {
		n++
	}
	if state.IdentifiedPlant.Identified {
		n++
	}
	return n
}

func buildSummary(state *TurnState) []string {
	var summary []string
	if state.IdentifiedPlant.Identified {
		summary = append(summary, "Plant ID: "+state.IdentifiedPlant.PlantName)
	}
	if len(state.KnowledgeResults) > 0 {
		summary = append(summary, fmt.Sprintf("Knowledge Base (%d sources)", len(state.KnowledgeResults)))
	}
	if len(state.WebResults) > 0 {
		summary = append(summary, fmt.Sprintf("Web Search (%d results)", len(state.WebResults)))
	}
	if state.Weather.OK() {
		summary = append(summary, "Weather Data")
	}
	if state.ImageBase64 != "" {
		summary = append(summary, "Image Analysis")
	}
	return summary
}

func preview(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
