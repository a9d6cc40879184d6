package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/internal/capability"
)

func TestParseIntent(t *testing.T) {
	cases := map[string]Intent{
		"plant_identification": IntentPlantIdentification,
		"Disease_Diagnosis":    IntentDiseaseDiagnosis,
		" care_advice ":        IntentCareAdvice,
		"watering_schedule":    IntentWateringSchedule,
		"general_info":         IntentGeneralInfo,
		"troubleshooting":      IntentTroubleshooting,
		"seasonal_care":        IntentSeasonalCare,
		"nonsense":             IntentUnknown,
		"":                     IntentUnknown,
	}
	for in, want := range cases {
		if got := ParseIntent(in); got != want {
			t.Fatalf("ParseIntent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassifyByKeywords(t *testing.T) {
	cases := []struct {
		query    string
		hasImage bool
		want     Intent
	}{
		{"My plant has yellow leaves and brown spots", false, IntentDiseaseDiagnosis},
		{"How often should I water my fern?", false, IntentWateringSchedule},
		{"What plant is this?", false, IntentPlantIdentification},
		{"Why are the leaves dropping?", false, IntentTroubleshooting},
		{"Winter tips for my ficus", false, IntentSeasonalCare},
		{"How to grow roses", false, IntentCareAdvice},
		{"Tell me about orchids", false, IntentGeneralInfo},
		{"greetings", true, IntentPlantIdentification},
		{"greetings", false, IntentUnknown},
	}
	for _, tc := range cases {
		got, confidence := classifyByKeywords(tc.query, tc.hasImage)
		if got != tc.want {
			t.Fatalf("classifyByKeywords(%q) = %q, want %q", tc.query, got, tc.want)
		}
		if confidence <= 0 || confidence > 1 {
			t.Fatalf("confidence out of range for %q: %f", tc.query, confidence)
		}
	}
}

func TestAnalyzeIntentFallsBackOnBadLLM(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPlanner))

	// LLM unavailable.
	intent, _ := f.orch.analyzeIntent(context.Background(), "how often to water?", false, false)
	if intent != IntentWateringSchedule {
		t.Fatalf("expected keyword fallback to watering_schedule, got %q", intent)
	}

	// Malformed JSON.
	f.llm.generate = func(ctx context.Context, prompt string, options map[string]interface{}) (string, error) {
		return "not json", nil
	}
	intent, _ = f.orch.analyzeIntent(context.Background(), "how often to water?", false, false)
	if intent != IntentWateringSchedule {
		t.Fatalf("expected keyword fallback on malformed JSON, got %q", intent)
	}

	// Fenced JSON parses.
	f.llm.generate = func(ctx context.Context, prompt string, options map[string]interface{}) (string, error) {
		return "```json\n{\"intent\": \"disease_diagnosis\", \"confidence\": 0.9}\n```", nil
	}
	intent, confidence := f.orch.analyzeIntent(context.Background(), "anything", false, false)
	if intent != IntentDiseaseDiagnosis || confidence != 0.9 {
		t.Fatalf("expected disease_diagnosis/0.9, got %q/%f", intent, confidence)
	}
}

func TestTemplateForUnknownKeepsIntent(t *testing.T) {
	plan := templateFor(IntentTroubleshooting)
	if plan.Intent != IntentTroubleshooting {
		t.Fatalf("fallback plan must keep the requested intent, got %q", plan.Intent)
	}
	if len(plan.Tasks) != len(planTemplates[IntentGeneralInfo].Tasks) {
		t.Fatalf("fallback plan should mirror general_info tasks")
	}
}

func TestBuildPlanPromotesFallback(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPlanner))

	// Without an image the identify task is statically falsified, so its
	// web-search fallback must survive.
	state := newTurnState(TurnInput{Query: "what plant is this?"}, config.StrategyPlanner, "t1")
	plan := f.orch.buildPlan(IntentPlantIdentification, state)
	if hasTask(plan, capability.Identify) {
		t.Fatalf("identify task should be excluded without an image")
	}
	if !hasTask(plan, capability.SearchWeb) {
		t.Fatalf("web search fallback should be promoted when identify is excluded")
	}

	// With an image the fallback is dropped and identify stays.
	state = newTurnState(TurnInput{Query: "what plant is this?", ImageBase64: "aW1n"}, config.StrategyPlanner, "t2")
	plan = f.orch.buildPlan(IntentPlantIdentification, state)
	if !hasTask(plan, capability.Identify) {
		t.Fatalf("identify task should run when an image is present")
	}
	if hasTask(plan, capability.SearchWeb) {
		t.Fatalf("fallback must be dropped while its primary is in the plan")
	}
}

func TestBuildPlanDropsFailedCapabilities(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPlanner))

	state := newTurnState(TurnInput{Query: "care tips", ImageBase64: "aW1n"}, config.StrategyPlanner, "t1")
	state.FailedCapabilities[capability.Identify] = true

	plan := f.orch.buildPlan(IntentCareAdvice, state)
	if hasTask(plan, capability.Identify) {
		t.Fatalf("already-failed capability must not be planned again")
	}
	if !hasTask(plan, capability.SearchKnowledge) || !hasTask(plan, capability.SearchWeb) {
		t.Fatalf("search tasks should survive an identify failure")
	}
}

func TestPlannerTurnEndToEnd(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPlanner))

	result, err := f.orch.ProcessTurn(context.Background(), TurnInput{
		Query:    "How do I care for my monstera?",
		Location: "Lisbon",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Intent != IntentCareAdvice {
		t.Fatalf("expected care_advice intent, got %q", result.Intent)
	}
	if result.Response == "" {
		t.Fatalf("planner turn must produce a response")
	}
	if !result.Complete {
		t.Fatalf("care advice with a response should be complete, score %f", result.Completeness)
	}
	if len(f.store.queries) == 0 || len(f.web.queries) == 0 {
		t.Fatalf("care advice plan should run both searches in parallel")
	}
	if f.weather.calls != 1 {
		t.Fatalf("weather should run once with a location, got %d calls", f.weather.calls)
	}
}

func TestPlannerAlwaysResponds(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPlanner))
	f.store.err = errors.New("store offline")
	f.web.err = errors.New("search offline")

	// Both searches fail, so the plan's conditional synthesis never fires;
	// the unconditional post-plan synthesis must still run.
	result, err := f.orch.ProcessTurn(context.Background(), TurnInput{Query: "Tell me about orchids"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Response == "" {
		t.Fatalf("planner must fall back to unconditional synthesis")
	}
	if f.advisor.calls == 0 {
		t.Fatalf("advisor should have been invoked as the fallback")
	}
}

func TestPlannerWeatherSentinelWithoutLocation(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPlanner))

	// No location: the plan drops the weather task, but the weather field
	// must still hold the error sentinel rather than a zero value that reads
	// as real weather.
	result, err := f.orch.ProcessTurn(context.Background(), TurnInput{
		Query: "How often should I water my monstera?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Intent != IntentWateringSchedule {
		t.Fatalf("expected watering_schedule intent, got %q", result.Intent)
	}
	if f.weather.calls != 0 {
		t.Fatalf("weather client must not be called without a location, got %d calls", f.weather.calls)
	}
	if f.advisor.last.Weather.OK() {
		t.Fatalf("synthesis saw usable weather with no location: %#v", f.advisor.last.Weather)
	}
	if f.advisor.last.Weather.Err != "location not provided" {
		t.Fatalf("expected the location sentinel, got %#v", f.advisor.last.Weather)
	}
	if result.Response == "" {
		t.Fatalf("turn must still produce a response")
	}
	step := findStep(t, result.Provenance, "weather_analysis")
	if step.Status != StepSkipped {
		t.Fatalf("weather step should be skipped without a location, got %q", step.Status)
	}

	// The combined-conditions predicate must not pass on missing weather.
	state := &TurnState{
		KnowledgeResults: []capability.KnowledgeSnippet{{Content: "snippet"}},
	}
	if PredHasWeatherAndSearch.Eval(state) {
		t.Fatalf("has_weather_and_search must require actual weather data")
	}
}

func TestPlannerSkipsWeatherStepWhenUnplanned(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPlanner))

	// general_info plans never request weather, even with a location; the
	// provenance step must read skipped, not failed.
	result, err := f.orch.ProcessTurn(context.Background(), TurnInput{
		Query:    "Tell me about orchids",
		Location: "Seattle",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Intent != IntentGeneralInfo {
		t.Fatalf("expected general_info intent, got %q", result.Intent)
	}
	if f.weather.calls != 0 {
		t.Fatalf("weather client must not be called for general_info, got %d calls", f.weather.calls)
	}
	step := findStep(t, result.Provenance, "weather_analysis")
	if step.Status != StepSkipped {
		t.Fatalf("unrequested weather must be skipped, got %q (details %v)", step.Status, step.Details)
	}
	if _, ok := step.Details["error"]; ok {
		t.Fatalf("skipped weather step must not carry an error detail: %v", step.Details)
	}
}

func TestAssessCompleteness(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPlanner))

	state := newTurnState(TurnInput{Query: "q"}, config.StrategyPlanner, "t1")
	state.FinalResponse = "advice"
	state.ConfidenceScores[capability.SearchKnowledge] = 0.8
	state.ConfidenceScores[capability.Synthesize] = 0.8

	complete, score := f.orch.assessCompleteness(IntentCareAdvice, state)
	if !complete {
		t.Fatalf("full coverage should be complete")
	}
	want := 1.0*0.7 + 0.8*0.3
	if diff := score - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("completeness score = %f, want %f", score, want)
	}

	// Disease diagnosis needs disease info too: half coverage misses the
	// threshold.
	complete, score = f.orch.assessCompleteness(IntentDiseaseDiagnosis, state)
	if complete {
		t.Fatalf("half coverage must not be complete")
	}
	want = 0.5*0.7 + 0.8*0.3
	if diff := score - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("completeness score = %f, want %f", score, want)
	}

	// No capability ran: confidence defaults to 0.5.
	empty := newTurnState(TurnInput{Query: "q"}, config.StrategyPlanner, "t2")
	_, score = f.orch.assessCompleteness(IntentCareAdvice, empty)
	want = 0.0*0.7 + 0.5*0.3
	if diff := score - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("empty-state score = %f, want %f", score, want)
	}
}

func TestExecutePlanRespectsDynamicConditions(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPlanner))
	f.identifier.record = capability.PlantRecord{Identified: false, PlantName: "Unknown", Message: "not a plant"}

	state := newTurnState(TurnInput{Query: "what is this?", ImageBase64: "aW1n"}, config.StrategyPlanner, "t1")
	plan := f.orch.buildPlan(IntentPlantIdentification, state)
	f.orch.executePlan(context.Background(), plan, state)

	// Identify ran but produced nothing, so the plant_identified synthesis
	// condition stays false.
	if f.identifier.calls != 1 {
		t.Fatalf("expected one identify call, got %d", f.identifier.calls)
	}
	if f.advisor.calls != 0 {
		t.Fatalf("conditional synthesis must not run without an identified plant")
	}
}

func TestPredicates(t *testing.T) {
	state := newTurnState(TurnInput{Query: "q", ImageBase64: "aW1n"}, config.StrategyPlanner, "t1")
	if !PredHasImage.Eval(state) || PredHasLocation.Eval(state) {
		t.Fatalf("input predicates mis-evaluated")
	}
	if !PredNoPlantIdentified.Eval(state) {
		t.Fatalf("fresh state has no identified plant")
	}
	state.KnowledgeResults = []capability.KnowledgeSnippet{{Content: "x"}}
	if !PredHasSearchResults.Eval(state) {
		t.Fatalf("knowledge results satisfy has_search_results")
	}
	if PredHasWeatherAndSearch.Eval(state) {
		t.Fatalf("weather missing, combined predicate must fail")
	}
	state.Weather = capability.WeatherReport{Temperature: 20, Description: "clear"}
	if !PredHasWeatherAndSearch.Eval(state) {
		t.Fatalf("weather plus search should satisfy the combined predicate")
	}
	if Predicate("made_up").Eval(state) {
		t.Fatalf("unknown predicates must evaluate false")
	}

	if !PredHasImage.static() || PredPlantIdentified.static() {
		t.Fatalf("static predicate classification wrong")
	}
}

func hasTask(plan ExecutionPlan, cap capability.Capability) bool {
	for _, task := range plan.Tasks {
		if task.Capability == cap {
			return true
		}
	}
	return false
}

func TestIntentPromptMentionsAllCategories(t *testing.T) {
	for _, intent := range []Intent{
		IntentPlantIdentification, IntentDiseaseDiagnosis, IntentCareAdvice,
		IntentWateringSchedule, IntentGeneralInfo, IntentTroubleshooting,
		IntentSeasonalCare, IntentUnknown,
	} {
		if !strings.Contains(intentSystemPrompt, string(intent)) {
			t.Fatalf("intent prompt missing category %q", intent)
		}
	}
}
