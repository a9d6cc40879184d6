package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/internal/capability"
)

// runPipeline executes the fixed seven-stage flow: identify, search
// knowledge, optional web search, weather, synthesize, collect feedback,
// update store. Stages six and seven complete later through SubmitFeedback.
func (o *Orchestrator) runPipeline(ctx context.Context, state *TurnState) {
	o.stageIdentify(ctx, state)
	o.stageSearchKnowledge(ctx, state)
	if state.NeedsWebSearch {
		o.stageWebSearch(ctx, state)
	}
	o.stageWeather(ctx, state)
	o.stageSynthesize(ctx, state)
	state.CurrentStep = "awaiting_feedback"
}

func (o *Orchestrator) stageIdentify(ctx context.Context, state *TurnState) {
	state.CurrentStep = "identifying_plant"

	if state.ImageBase64 == "" {
		// No image: keep the default Unknown record. Keyword analysis may
		// still recover a plant name from the query text.
		return
	}

	err := o.invoke(ctx, capability.Identify, state, nil, func(ctx context.Context) error {
		in := o.projectInput(capability.Identify, state)
		record, err := o.registry.Identifier.Identify(ctx, in.ImageBase64, in.ImageDescription)
		if err != nil {
			return err
		}
		state.IdentifiedPlant = record
		state.Confidence = record.Confidence
		state.ConfidenceScores[capability.Identify] = record.Confidence
		state.HealthIssues = flattenHealth(record.Health)
		return nil
	})
	if err != nil {
		state.ErrorMessage = fmt.Sprintf("plant identification failed: %v", err)
		state.IdentifiedPlant = capability.UnknownPlant()
	}
}

func (o *Orchestrator) stageSearchKnowledge(ctx context.Context, state *TurnState) {
	state.CurrentStep = "searching_knowledge"

	state.Keywords = o.analyzeKeywords(ctx, state)

	err := o.invoke(ctx, capability.SearchKnowledge, state, nil, func(ctx context.Context) error {
		in := o.projectInput(capability.SearchKnowledge, state)
		results, err := o.registry.Knowledge.SearchKnowledge(ctx, in.SearchQuery, in.Limit)
		if err != nil {
			return err
		}

		// Sparse first pass: retry with single primary keywords before
		// escalating to the web.
		if len(results) < o.cfg.Knowledge.MinResults {
			extra := state.Keywords.PrimaryKeywords
			if len(extra) > 2 {
				extra = extra[:2]
			}
			for _, kw := range extra {
				more, kerr := o.registry.Knowledge.SearchKnowledge(ctx, kw, in.Limit)
				if kerr != nil {
					continue
				}
				results = append(results, more...)
			}
		}

		state.KnowledgeResults = dedupeSnippets(results, o.cfg.Knowledge.MaxResults)
		state.ConfidenceScores[capability.SearchKnowledge] = 0.8
		return nil
	})
	if err != nil {
		state.ErrorMessage = fmt.Sprintf("knowledge search failed: %v", err)
		state.NeedsWebSearch = true
		return
	}

	if o.cfg.Orchestrator.WebSearchMode == config.WebSearchAlways {
		state.NeedsWebSearch = true
	} else {
		state.NeedsWebSearch = len(state.KnowledgeResults) < o.cfg.Knowledge.MinResults
	}
}

func (o *Orchestrator) stageWebSearch(ctx context.Context, state *TurnState) {
	state.CurrentStep = "searching_web"

	err := o.invoke(ctx, capability.SearchWeb, state, nil, func(ctx context.Context) error {
		queries := buildSearchQueries(state, o.cfg.WebSearch.MaxCalls)

		var all []capability.WebResult
		for i, q := range queries {
			if i > 0 && o.cfg.WebSearch.CallDelay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(o.cfg.WebSearch.CallDelay):
				}
			}
			results, err := o.registry.Web.SearchWeb(ctx, q, o.cfg.WebSearch.MaxResults)
			if err != nil {
				o.logger.Printf("web search failed for %q: %v", q, err)
				continue
			}
			all = append(all, results...)
		}

		state.WebResults = dedupeWebResults(all)
		state.ConfidenceScores[capability.SearchWeb] = 0.8
		return nil
	})
	if err != nil {
		state.ErrorMessage = fmt.Sprintf("web search failed: %v", err)
		state.WebResults = nil
	}
}

func (o *Orchestrator) stageWeather(ctx context.Context, state *TurnState) {
	state.CurrentStep = "fetching_weather"

	if state.Location == "" {
		state.Weather = capability.WeatherError("location not provided")
		return
	}

	err := o.invoke(ctx, capability.GetWeather, state, nil, func(ctx context.Context) error {
		in := o.projectInput(capability.GetWeather, state)
		report, err := o.registry.Weather.CurrentWeather(ctx, in.Location)
		if err != nil {
			return err
		}
		state.Weather = report
		state.ConfidenceScores[capability.GetWeather] = 0.9
		return nil
	})
	if err != nil {
		state.Weather = capability.WeatherError(err.Error())
	}
}

func (o *Orchestrator) stageSynthesize(ctx context.Context, state *TurnState) {
	state.CurrentStep = "generating_response"

	err := o.invoke(ctx, capability.Synthesize, state, nil, func(ctx context.Context) error {
		in := o.projectInput(capability.Synthesize, state)
		response, err := o.registry.Advisor.SynthesizeAdvice(ctx, in.Advice)
		if err != nil {
			return err
		}
		state.FinalResponse = response
		state.ConfidenceScores[capability.Synthesize] = 0.8
		return nil
	})
	if err != nil {
		// Synthesis is the one capability whose failure is terminal, but the
		// user still gets a response string.
		state.ErrorMessage = fmt.Sprintf("response generation failed: %v", err)
		state.FinalResponse = fmt.Sprintf(
			"Sorry, I was unable to generate complete advice for your question (%v). Please try again in a moment.", err)
	}

	state.Provenance = buildProvenance(state)
}

// buildSearchQueries assembles base guides, topic queries and the literal
// user query, capped at maxCalls.
func buildSearchQueries(state *TurnState, maxCalls int) []string {
	plantName := state.IdentifiedPlant.PlantName
	if !state.IdentifiedPlant.Identified && state.Keywords.PlantName != "" {
		plantName = state.Keywords.PlantName
	}
	if plantName == "" {
		plantName = "Unknown"
	}

	queries := []string{
		plantName + " care guide",
		plantName + " growing conditions",
		"how to care for " + plantName,
	}

	topics := state.Keywords.CareCategories
	if len(topics) == 0 {
		topics = []string{"care", "watering", "light", "soil"}
	}
	for _, topic := range topics {
		queries = append(queries, plantName+" "+topic+" requirements")
	}
	if state.Query != "" {
		queries = append(queries, strings.TrimSpace(plantName+" "+state.Query))
	}

	if maxCalls > 0 && len(queries) > maxCalls {
		queries = queries[:maxCalls]
	}
	return queries
}

func dedupeSnippets(in []capability.KnowledgeSnippet, max int) []capability.KnowledgeSnippet {
	seen := make(map[string]bool, len(in))
	out := make([]capability.KnowledgeSnippet, 0, len(in))
	for _, s := range in {
		if seen[s.Content] {
			continue
		}
		seen[s.Content] = true
		out = append(out, s)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func dedupeWebResults(in []capability.WebResult) []capability.WebResult {
	seen := make(map[string]bool, len(in))
	out := make([]capability.WebResult, 0, len(in))
	for _, r := range in {
		if r.URL != "" && seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r)
	}
	return out
}
