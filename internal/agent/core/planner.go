package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leafwise/leafwise/internal/capability"
)

const intentSystemPrompt = `You are an expert at analyzing user intents for a plant care assistant. Classify the user query into one of these categories:

plant_identification - user wants to identify a plant ("What plant is this?")
disease_diagnosis - user reports plant health issues ("My plant has yellow leaves")
care_advice - user wants general care information ("How to care for roses?")
watering_schedule - user asks about watering ("How often to water?")
general_info - user wants general plant information ("Tell me about orchids")
troubleshooting - user has specific plant problems ("Why are leaves dropping?")
seasonal_care - user asks about seasonal care ("Winter care tips")
unknown - query does not fit other categories

Return ONLY a JSON object:
{"intent": "category_name", "confidence": 0.95}`

// runPlan executes the dynamic strategy: classify intent, build a plan from
// the intent template, execute it, assess completeness.
func (o *Orchestrator) runPlan(ctx context.Context, state *TurnState) {
	planCtx, planSpan := orchestratorTracer.Start(ctx, "agent.plan")
	intent, confidence := o.analyzeIntent(planCtx, state.Query, state.ImageBase64 != "", state.Location != "")
	state.Intent = intent
	state.IntentConfidence = confidence

	plan := o.buildPlan(intent, state)
	planSpan.SetAttributes(
		attribute.String("plan.intent", string(intent)),
		attribute.Float64("plan.intent_confidence", confidence),
		attribute.Int("plan.tasks", len(plan.Tasks)),
		attribute.String("plan.strategy", string(plan.Strategy)),
	)
	planSpan.End()

	o.logger.Printf("turn %s: intent=%s (%.2f), %d tasks (%s)",
		state.TurnID, intent, confidence, len(plan.Tasks), plan.Strategy)

	o.executePlan(ctx, plan, state)

	// Every turn ends with a response, even when the plan never reached a
	// satisfied synthesis task.
	if state.FinalResponse == "" {
		o.stageSynthesize(ctx, state)
	} else {
		state.Provenance = buildProvenance(state)
	}

	state.Complete, state.Completeness = o.assessCompleteness(intent, state)
	state.CurrentStep = "awaiting_feedback"
}

// analyzeIntent classifies the query via the LLM, with the keyword
// classifier as the deterministic fallback. It never returns an error:
// unparseable output degrades to unknown with confidence 0.5.
func (o *Orchestrator) analyzeIntent(ctx context.Context, query string, hasImage, hasLocation bool) (Intent, float64) {
	prompt := fmt.Sprintf("%s\n\nUser query: %q\nHas image: %t\nLocation provided: %t",
		intentSystemPrompt, query, hasImage, hasLocation)

	raw, err := o.llm.Generate(ctx, prompt, map[string]interface{}{
		"temperature": 0.1,
		"max_tokens":  200,
	})
	if err != nil {
		o.logger.Printf("intent classification LLM call failed, using keyword classifier: %v", err)
		return classifyByKeywords(query, hasImage)
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &parsed); err != nil {
		o.logger.Printf("intent classification returned malformed JSON, using keyword classifier: %v", err)
		return classifyByKeywords(query, hasImage)
	}

	intent := ParseIntent(parsed.Intent)
	confidence := parsed.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}
	return intent, confidence
}

// intentKeywords drive the deterministic classifier. First match wins, so
// more specific intents come first.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentDiseaseDiagnosis, []string{"sick", "disease", "yellow leaves", "brown spots", "dying", "wilting", "pest", "bugs", "fungus", "rot"}},
	{IntentWateringSchedule, []string{"water", "watering", "how often", "overwater", "underwater"}},
	{IntentPlantIdentification, []string{"what plant", "identify", "what is this", "which plant", "name of this"}},
	{IntentTroubleshooting, []string{"why", "not growing", "dropping", "falling", "problem"}},
	{IntentSeasonalCare, []string{"winter", "summer", "spring", "autumn", "fall", "season"}},
	{IntentCareAdvice, []string{"care", "how to", "grow", "light", "soil", "fertiliz", "humidity", "repot"}},
	{IntentGeneralInfo, []string{"tell me about", "about", "info", "varieties"}},
}

// classifyByKeywords is the fallback intent classifier.
func classifyByKeywords(query string, hasImage bool) (Intent, float64) {
	lower := strings.ToLower(query)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.intent, 0.6
			}
		}
	}
	if hasImage {
		return IntentPlantIdentification, 0.6
	}
	return IntentUnknown, 0.5
}

// buildPlan instantiates the intent's template against the turn state:
// statically falsified tasks and already-failed capabilities drop out, and
// fallback tasks are promoted when the task they back is excluded.
func (o *Orchestrator) buildPlan(intent Intent, state *TurnState) ExecutionPlan {
	template := templateFor(intent)

	excluded := make(map[capability.Capability]bool)
	var tasks []Task
	for _, task := range template.Tasks {
		if state.FailedCapabilities[task.Capability] {
			excluded[task.Capability] = true
			continue
		}
		if staticallyFalsified(task.Conditions, state) {
			excluded[task.Capability] = true
			continue
		}
		tasks = append(tasks, task)
	}

	// Keep fallbacks only when the task they substitute is actually gone.
	filtered := tasks[:0]
	for _, task := range tasks {
		if task.FallbackFor != "" && !excluded[task.FallbackFor] {
			continue
		}
		filtered = append(filtered, task)
	}

	return ExecutionPlan{
		Intent:                intent,
		Strategy:              template.Strategy,
		Tasks:                 filtered,
		CompletenessThreshold: o.cfg.Orchestrator.CompletenessThreshold,
		MaxIterations:         o.cfg.Orchestrator.MaxPlanIterations,
	}
}

// staticallyFalsified reports whether any input-only condition already
// fails. Dynamic conditions are re-checked at execution time.
func staticallyFalsified(conds []Predicate, state *TurnState) bool {
	for _, c := range conds {
		if c.static() && !c.Eval(state) {
			return true
		}
	}
	return false
}

// executePlan runs tasks in ascending priority. Consecutive tasks sharing a
// parallel group fan out over goroutines; everything else runs sequentially
// with state merged between steps. Conditions are re-checked against live
// state right before each unit runs, and one task's failure never cancels
// its siblings.
func (o *Orchestrator) executePlan(ctx context.Context, plan ExecutionPlan, state *TurnState) {
	sorted := make([]Task, len(plan.Tasks))
	copy(sorted, plan.Tasks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	// Units preserve priority order: a parallel group occupies the position
	// of its first member.
	type unit struct {
		group string
		tasks []Task
	}
	var units []unit
	groupIndex := make(map[string]int)
	for _, task := range sorted {
		if task.ParallelGroup == "" {
			units = append(units, unit{tasks: []Task{task}})
			continue
		}
		if idx, ok := groupIndex[task.ParallelGroup]; ok {
			units[idx].tasks = append(units[idx].tasks, task)
			continue
		}
		groupIndex[task.ParallelGroup] = len(units)
		units = append(units, unit{group: task.ParallelGroup, tasks: []Task{task}})
	}

	for _, u := range units {
		if u.group == "" {
			task := u.tasks[0]
			if !conditionsMet(task.Conditions, state) {
				continue
			}
			o.executeTask(ctx, task, state, nil)
			continue
		}

		groupCtx, groupSpan := orchestratorTracer.Start(ctx, "agent.parallel_group",
			trace.WithAttributes(attribute.String("group", u.group)))

		var executable []Task
		for _, task := range u.tasks {
			if conditionsMet(task.Conditions, state) {
				executable = append(executable, task)
			}
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, task := range executable {
			wg.Add(1)
			go func(task Task) {
				defer wg.Done()
				o.executeTask(groupCtx, task, state, &mu)
			}(task)
		}
		wg.Wait()
		groupSpan.End()
	}
}

// executeTask dispatches a single task to its capability client and merges
// the result into state. mu guards state when the task runs inside a
// parallel group.
func (o *Orchestrator) executeTask(ctx context.Context, task Task, state *TurnState, mu *sync.Mutex) {
	lock := func() {
		if mu != nil {
			mu.Lock()
		}
	}
	unlock := func() {
		if mu != nil {
			mu.Unlock()
		}
	}

	lock()
	in := o.projectInput(task.Capability, state)
	unlock()

	switch task.Capability {
	case capability.Identify:
		_ = o.invoke(ctx, capability.Identify, state, mu, func(ctx context.Context) error {
			record, err := o.registry.Identifier.Identify(ctx, in.ImageBase64, in.ImageDescription)
			if err != nil {
				return err
			}
			lock()
			defer unlock()
			state.IdentifiedPlant = record
			state.Confidence = record.Confidence
			state.ConfidenceScores[capability.Identify] = record.Confidence
			state.HealthIssues = flattenHealth(record.Health)
			return nil
		})

	case capability.DetectDisease:
		_ = o.invoke(ctx, capability.DetectDisease, state, mu, func(ctx context.Context) error {
			assessment, err := o.registry.DiseaseDetector.DetectDisease(ctx, in.ImageBase64, in.PlantName)
			if err != nil {
				return err
			}
			lock()
			defer unlock()
			state.DiseaseInfo = &assessment
			state.HealthIssues = flattenHealth(&assessment)
			state.ConfidenceScores[capability.DetectDisease] = assessment.HealthScore
			return nil
		})

	case capability.SearchKnowledge:
		_ = o.invoke(ctx, capability.SearchKnowledge, state, mu, func(ctx context.Context) error {
			results, err := o.registry.Knowledge.SearchKnowledge(ctx, in.SearchQuery, in.Limit)
			if err != nil {
				return err
			}
			lock()
			defer unlock()
			state.KnowledgeResults = dedupeSnippets(results, o.cfg.Knowledge.MaxResults)
			state.ConfidenceScores[capability.SearchKnowledge] = 0.8
			return nil
		})

	case capability.SearchWeb:
		_ = o.invoke(ctx, capability.SearchWeb, state, mu, func(ctx context.Context) error {
			results, err := o.registry.Web.SearchWeb(ctx, in.SearchQuery, in.Limit)
			if err != nil {
				return err
			}
			lock()
			defer unlock()
			state.WebResults = dedupeWebResults(results)
			state.ConfidenceScores[capability.SearchWeb] = 0.8
			return nil
		})

	case capability.GetWeather:
		err := o.invoke(ctx, capability.GetWeather, state, mu, func(ctx context.Context) error {
			report, err := o.registry.Weather.CurrentWeather(ctx, in.Location)
			if err != nil {
				return err
			}
			lock()
			defer unlock()
			state.Weather = report
			state.ConfidenceScores[capability.GetWeather] = 0.9
			return nil
		})
		if err != nil {
			lock()
			state.Weather = capability.WeatherError(err.Error())
			unlock()
		}

	case capability.Synthesize:
		err := o.invoke(ctx, capability.Synthesize, state, mu, func(ctx context.Context) error {
			response, err := o.registry.Advisor.SynthesizeAdvice(ctx, in.Advice)
			if err != nil {
				return err
			}
			lock()
			defer unlock()
			state.FinalResponse = response
			state.ConfidenceScores[capability.Synthesize] = 0.8
			return nil
		})
		if err != nil {
			lock()
			state.ErrorMessage = fmt.Sprintf("response generation failed: %v", err)
			unlock()
		}
	}
}

// requiredFields names what each intent must produce for a complete answer.
var requiredFields = map[Intent][]string{
	IntentPlantIdentification: {"identified_plant"},
	IntentDiseaseDiagnosis:    {"disease_info", "final_response"},
	IntentCareAdvice:          {"final_response"},
	IntentWateringSchedule:    {"final_response"},
	IntentGeneralInfo:         {"final_response"},
}

// assessCompleteness scores how well the turn covered the intent:
// 0.7 * field coverage + 0.3 * mean capability confidence. The turn counts
// as complete when coverage clears the configured threshold.
func (o *Orchestrator) assessCompleteness(intent Intent, state *TurnState) (bool, float64) {
	required, ok := requiredFields[intent]
	if !ok {
		required = []string{"final_response"}
	}

	available := 0
	for _, field := range required {
		switch field {
		case "identified_plant":
			if state.IdentifiedPlant.Identified {
				available++
			}
		case "disease_info":
			if state.DiseaseInfo != nil {
				available++
			}
		case "final_response":
			if state.FinalResponse != "" && !state.FailedCapabilities[capability.Synthesize] {
				available++
			}
		}
	}
	coverage := 1.0
	if len(required) > 0 {
		coverage = float64(available) / float64(len(required))
	}

	avgConfidence := 0.5
	if len(state.ConfidenceScores) > 0 {
		var sum float64
		for _, c := range state.ConfidenceScores {
			sum += c
		}
		avgConfidence = sum / float64(len(state.ConfidenceScores))
	}

	score := coverage*0.7 + avgConfidence*0.3
	return coverage >= o.cfg.Orchestrator.CompletenessThreshold, score
}
