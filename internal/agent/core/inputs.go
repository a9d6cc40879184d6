package core

import (
	"strings"

	"github.com/leafwise/leafwise/internal/capability"
)

// capabilityInput is the projection of turn state one capability consumes.
// projectInput is pure: it reads state and config only, and mutates nothing.
type capabilityInput struct {
	Query            string
	PlantName        string
	ImageBase64      string
	ImageDescription string
	Location         string
	SearchQuery      string
	Limit            int
	Advice           capability.AdviceContext
}

func (o *Orchestrator) projectInput(cap capability.Capability, state *TurnState) capabilityInput {
	in := capabilityInput{
		Query:     state.Query,
		PlantName: state.IdentifiedPlant.PlantName,
	}

	switch cap {
	case capability.Identify:
		in.ImageBase64 = state.ImageBase64
		in.ImageDescription = state.ImageDescription
	case capability.DetectDisease:
		in.ImageBase64 = state.ImageBase64
	case capability.SearchKnowledge:
		in.SearchQuery = knowledgeQuery(state)
		in.Limit = o.cfg.Knowledge.SearchTopK
	case capability.SearchWeb:
		in.SearchQuery = knowledgeQuery(state)
		in.Limit = o.cfg.WebSearch.MaxResults
	case capability.GetWeather:
		in.Location = state.Location
	case capability.Synthesize:
		in.Advice = projectAdviceContext(state)
	}
	return in
}

// knowledgeQuery builds the lookup query: plant name plus the user query,
// or the keyword-optimized query when analysis produced one.
func knowledgeQuery(state *TurnState) string {
	if state.Keywords.OptimizedQuery != "" {
		return state.Keywords.OptimizedQuery
	}
	plantName := state.IdentifiedPlant.PlantName
	if !state.IdentifiedPlant.Identified && state.Keywords.PlantName != "" {
		plantName = state.Keywords.PlantName
	}
	if plantName == "" || plantName == "Unknown" {
		return state.Query
	}
	return strings.TrimSpace(plantName + " " + state.Query)
}

// projectAdviceContext assembles everything the synthesis capability sees.
func projectAdviceContext(state *TurnState) capability.AdviceContext {
	return capability.AdviceContext{
		Query:            state.Query,
		Plant:            state.IdentifiedPlant,
		HealthIssues:     state.HealthIssues,
		Knowledge:        state.KnowledgeResults,
		WebResults:       state.WebResults,
		Weather:          state.Weather,
		Location:         state.Location,
		ImageDescription: state.ImageDescription,
		HasImage:         state.ImageBase64 != "",
	}
}

// flattenHealth converts a health assessment to the issue refs synthesis
// consumes.
func flattenHealth(ha *capability.HealthAssessment) []capability.HealthIssueRef {
	if ha == nil {
		return nil
	}
	out := make([]capability.HealthIssueRef, 0, len(ha.Diseases)+len(ha.Pests))
	for _, d := range ha.Diseases {
		out = append(out, capability.HealthIssueRef{Kind: "disease", Name: d.Name, Probability: d.Probability})
	}
	for _, p := range ha.Pests {
		out = append(out, capability.HealthIssueRef{Kind: "pest", Name: p.Name, Probability: p.Probability})
	}
	return out
}
