package core

import (
	"github.com/leafwise/leafwise/internal/capability"
)

// planTemplates maps each intent to its execution plan. Intents without a
// template (troubleshooting, seasonal_care, unknown) fall back to the
// general_info plan.
var planTemplates = map[Intent]ExecutionPlan{
	IntentPlantIdentification: {
		Intent:   IntentPlantIdentification,
		Strategy: PlanFallbackChain,
		Tasks: []Task{
			{Capability: capability.Identify, Priority: 1, Required: true, Conditions: []Predicate{PredHasImage}},
			{Capability: capability.SearchWeb, Priority: 2, Conditions: []Predicate{PredNoPlantIdentified}, FallbackFor: capability.Identify},
			{Capability: capability.Synthesize, Priority: 3, Conditions: []Predicate{PredPlantIdentified}},
		},
	},
	IntentDiseaseDiagnosis: {
		Intent:   IntentDiseaseDiagnosis,
		Strategy: PlanSequential,
		Tasks: []Task{
			{Capability: capability.Identify, Priority: 1, Conditions: []Predicate{PredHasImage}},
			{Capability: capability.DetectDisease, Priority: 2, Required: true, Conditions: []Predicate{PredHasImage}},
			{Capability: capability.SearchKnowledge, Priority: 3, Required: true, ParallelGroup: "search"},
			{Capability: capability.SearchWeb, Priority: 3, Required: true, ParallelGroup: "search"},
			{Capability: capability.Synthesize, Priority: 4, Required: true, Conditions: []Predicate{PredHasDiseaseInfo}},
		},
	},
	IntentCareAdvice: {
		Intent:   IntentCareAdvice,
		Strategy: PlanParallel,
		Tasks: []Task{
			{Capability: capability.Identify, Priority: 1, Conditions: []Predicate{PredHasImage}},
			{Capability: capability.SearchKnowledge, Priority: 2, Required: true, ParallelGroup: "search"},
			{Capability: capability.SearchWeb, Priority: 2, Required: true, ParallelGroup: "search"},
			{Capability: capability.GetWeather, Priority: 2, Conditions: []Predicate{PredHasLocation}, ParallelGroup: "search"},
			{Capability: capability.Synthesize, Priority: 3, Required: true, Conditions: []Predicate{PredHasSearchResults}},
		},
	},
	IntentWateringSchedule: {
		Intent:   IntentWateringSchedule,
		Strategy: PlanConditional,
		Tasks: []Task{
			{Capability: capability.Identify, Priority: 1, Conditions: []Predicate{PredHasImage}},
			{Capability: capability.GetWeather, Priority: 2, Required: true, Conditions: []Predicate{PredHasLocation}},
			{Capability: capability.SearchKnowledge, Priority: 2, Required: true, ParallelGroup: "search"},
			{Capability: capability.SearchWeb, Priority: 2, Required: true, ParallelGroup: "search"},
			{Capability: capability.Synthesize, Priority: 3, Required: true, Conditions: []Predicate{PredHasWeatherAndSearch}},
		},
	},
	IntentGeneralInfo: {
		Intent:   IntentGeneralInfo,
		Strategy: PlanParallel,
		Tasks: []Task{
			{Capability: capability.SearchKnowledge, Priority: 1, Required: true, ParallelGroup: "search"},
			{Capability: capability.SearchWeb, Priority: 1, Required: true, ParallelGroup: "search"},
			{Capability: capability.Synthesize, Priority: 2, Required: true, Conditions: []Predicate{PredHasSearchResults}},
		},
	},
}

// templateFor returns the plan template for an intent, defaulting to
// general_info.
func templateFor(intent Intent) ExecutionPlan {
	if plan, ok := planTemplates[intent]; ok {
		return plan
	}
	plan := planTemplates[IntentGeneralInfo]
	plan.Intent = intent
	return plan
}
