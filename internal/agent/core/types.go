package core

import (
	"strings"
	"time"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/internal/capability"
)

// TurnInput is one user query entering the orchestrator.
type TurnInput struct {
	SessionID        string `json:"session_id"`
	Query            string `json:"query"`
	ImageBase64      string `json:"image_base64,omitempty"`
	ImageDescription string `json:"image_description,omitempty"`
	Location         string `json:"location,omitempty"`
}

// TurnState is the single mutable record for one turn. The orchestrator owns
// it; each stage writes only the fields it produces.
type TurnState struct {
	TurnID    string
	SessionID string
	StartedAt time.Time
	Strategy  config.Strategy

	// Input, copied once and never rewritten.
	Query            string
	ImageBase64      string
	ImageDescription string
	Location         string

	// Derived during the turn.
	IdentifiedPlant  capability.PlantRecord
	DiseaseInfo      *capability.HealthAssessment
	HealthIssues     []capability.HealthIssueRef
	KnowledgeResults []capability.KnowledgeSnippet
	WebResults       []capability.WebResult
	Weather          capability.WeatherReport
	Keywords         KeywordAnalysis

	// Output.
	FinalResponse    string
	Confidence       float64
	Provenance       Provenance
	ErrorMessage     string
	Intent           Intent
	IntentConfidence float64
	Completeness     float64
	Complete         bool

	// Control.
	CurrentStep      string
	NeedsWebSearch   bool
	FeedbackScore    *int
	FeedbackComments string
	KnowledgeUpdated bool

	// Per-turn execution bookkeeping. These live on the state, never on the
	// orchestrator, so concurrent turns cannot bleed into each other.
	FailedCapabilities map[capability.Capability]bool
	ConfidenceScores   map[capability.Capability]float64
}

// TurnResult is the immutable outcome returned to the caller. Later feedback
// never mutates a result already handed out.
type TurnResult struct {
	TurnID         string          `json:"turn_id"`
	SessionID      string          `json:"session_id"`
	Response       string          `json:"response"`
	Confidence     float64         `json:"confidence"`
	Provenance     Provenance      `json:"provenance"`
	Intent         Intent          `json:"intent,omitempty"`
	Completeness   float64         `json:"completeness,omitempty"`
	Complete       bool            `json:"complete"`
	Strategy       config.Strategy `json:"strategy"`
	ProcessingTime time.Duration   `json:"processing_time"`
}

// KeywordAnalysis is the result of the query keyword sub-step feeding the
// knowledge and web searches.
type KeywordAnalysis struct {
	OptimizedQuery    string   `json:"optimized_query"`
	PrimaryKeywords   []string `json:"primary_keywords"`
	SecondaryKeywords []string `json:"secondary_keywords"`
	CareCategories    []string `json:"care_categories"`
	PlantName         string   `json:"plant_name"`
}

// Intent classifies what the user is asking for.
type Intent string

const (
	IntentPlantIdentification Intent = "plant_identification"
	IntentDiseaseDiagnosis    Intent = "disease_diagnosis"
	IntentCareAdvice          Intent = "care_advice"
	IntentWateringSchedule    Intent = "watering_schedule"
	IntentGeneralInfo         Intent = "general_info"
	IntentTroubleshooting     Intent = "troubleshooting"
	IntentSeasonalCare        Intent = "seasonal_care"
	IntentUnknown             Intent = "unknown"
)

// ParseIntent maps a classifier label to an Intent, defaulting to unknown.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentPlantIdentification:
		return IntentPlantIdentification
	case IntentDiseaseDiagnosis:
		return IntentDiseaseDiagnosis
	case IntentCareAdvice:
		return IntentCareAdvice
	case IntentWateringSchedule:
		return IntentWateringSchedule
	case IntentGeneralInfo:
		return IntentGeneralInfo
	case IntentTroubleshooting:
		return IntentTroubleshooting
	case IntentSeasonalCare:
		return IntentSeasonalCare
	default:
		return IntentUnknown
	}
}

// Predicate is a condition over turn state gating task execution. The set is
// closed; plans cannot invent new predicates.
type Predicate string

const (
	PredHasImage            Predicate = "has_image"
	PredHasLocation         Predicate = "has_location"
	PredPlantIdentified     Predicate = "plant_identified"
	PredNoPlantIdentified   Predicate = "no_plant_identified"
	PredHasDiseaseInfo      Predicate = "has_disease_info"
	PredHasSearchResults    Predicate = "has_search_results"
	PredHasWeatherAndSearch Predicate = "has_weather_and_search"
)

// Eval checks the predicate against current state.
func (p Predicate) Eval(s *TurnState) bool {
	switch p {
	case PredHasImage:
		return s.ImageBase64 != ""
	case PredHasLocation:
		return s.Location != ""
	case PredPlantIdentified:
		return s.IdentifiedPlant.Identified
	case PredNoPlantIdentified:
		return !s.IdentifiedPlant.Identified
	case PredHasDiseaseInfo:
		return s.DiseaseInfo != nil
	case PredHasSearchResults:
		return len(s.KnowledgeResults) > 0 || len(s.WebResults) > 0
	case PredHasWeatherAndSearch:
		return s.Weather.OK() && (len(s.KnowledgeResults) > 0 || len(s.WebResults) > 0)
	default:
		return false
	}
}

// static reports whether the predicate depends only on turn input, so plan
// construction can evaluate it before anything runs.
func (p Predicate) static() bool {
	return p == PredHasImage || p == PredHasLocation
}

func conditionsMet(conds []Predicate, s *TurnState) bool {
	for _, c := range conds {
		if !c.Eval(s) {
			return false
		}
	}
	return true
}

// PlanStrategy is the declared shape of an execution plan.
type PlanStrategy string

const (
	PlanSequential    PlanStrategy = "sequential"
	PlanParallel      PlanStrategy = "parallel"
	PlanConditional   PlanStrategy = "conditional"
	PlanFallbackChain PlanStrategy = "fallback_chain"
)

// Task is one capability invocation within an execution plan.
type Task struct {
	Capability    capability.Capability
	Priority      int // lower runs earlier
	Required      bool
	Conditions    []Predicate
	ParallelGroup string
	FallbackFor   capability.Capability
}

// ExecutionPlan is the ordered task set for one intent. MaxIterations is an
// extension point; execution is currently single-pass.
type ExecutionPlan struct {
	Intent                Intent
	Strategy              PlanStrategy
	Tasks                 []Task
	CompletenessThreshold float64
	MaxIterations         int
}

// Provenance step statuses.
const (
	StepCompleted = "completed"
	StepSkipped   = "skipped"
	StepFailed    = "failed"
	StepNoResults = "no_results"
)

// ProvenanceStep records one stage's contribution to a response.
type ProvenanceStep struct {
	Name    string            `json:"name"`
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

// Provenance traces which sources fed a response. It is frozen once the
// turn's result is returned.
type Provenance struct {
	Steps   []ProvenanceStep `json:"steps"`
	Summary []string         `json:"summary"`
}

func newTurnState(input TurnInput, strategy config.Strategy, turnID string) *TurnState {
	// Without a location the weather field holds the error sentinel from the
	// start, whichever strategy runs and whether or not it schedules weather.
	weather := capability.WeatherReport{}
	if input.Location == "" {
		weather = capability.WeatherError("location not provided")
	}
	return &TurnState{
		TurnID:             turnID,
		SessionID:          input.SessionID,
		StartedAt:          time.Now(),
		Strategy:           strategy,
		Query:              input.Query,
		ImageBase64:        input.ImageBase64,
		ImageDescription:   input.ImageDescription,
		Location:           input.Location,
		IdentifiedPlant:    capability.UnknownPlant(),
		Weather:            weather,
		FailedCapabilities: make(map[capability.Capability]bool),
		ConfidenceScores:   make(map[capability.Capability]float64),
	}
}
