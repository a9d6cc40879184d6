package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/internal/agent/telemetry"
	"github.com/leafwise/leafwise/internal/capability"
	"github.com/leafwise/leafwise/provider"
	"github.com/leafwise/leafwise/session"
)

var orchestratorTracer trace.Tracer = otel.Tracer("leafwise/internal/agent/orchestrator")

// KnowledgeStore is the append side of the semantic store, used by
// feedback-driven updates on top of the search capability.
type KnowledgeStore interface {
	capability.KnowledgeSearcher
	Append(ctx context.Context, content string, metadata map[string]string) error
}

// Orchestrator routes user turns through the capability registry using the
// configured strategy and owns all per-turn state.
type Orchestrator struct {
	cfg       *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry
	registry  *capability.Registry
	store     KnowledgeStore
	sessions  session.History
	llm       provider.LLM

	mu        sync.RWMutex
	turns     map[string]*TurnState
	results   map[string]TurnResult
	turnOrder []string
}

// New creates an orchestrator. The registry must carry a client for every
// capability.
func New(cfg *config.Config, logger *log.Logger, tel *telemetry.Telemetry, registry *capability.Registry, store KnowledgeStore, sessions session.History, llm provider.LLM) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capability registry: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("knowledge store is required")
	}
	if sessions == nil {
		sessions = session.NewInMemory()
	}
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		registry:  registry,
		store:     store,
		sessions:  sessions,
		llm:       llm,
		turns:     make(map[string]*TurnState),
		results:   make(map[string]TurnResult),
	}, nil
}

// ProcessTurn runs one user turn end to end. It never surfaces a raw
// internal error: every outcome is a TurnResult with a usable response
// string; the error return covers input validation only.
func (o *Orchestrator) ProcessTurn(ctx context.Context, input TurnInput) (TurnResult, error) {
	if input.Query == "" {
		return TurnResult{}, fmt.Errorf("query is required")
	}

	strategy := o.cfg.Orchestrator.Strategy
	state := newTurnState(input, strategy, uuid.New().String())

	ctx, span := orchestratorTracer.Start(ctx, "agent.process_turn",
		trace.WithAttributes(
			attribute.String("turn.id", state.TurnID),
			attribute.String("turn.strategy", string(strategy)),
			attribute.Bool("turn.has_image", input.ImageBase64 != ""),
			attribute.Bool("turn.has_location", input.Location != ""),
		))
	defer span.End()

	o.logger.Printf("processing turn %s (strategy=%s)", state.TurnID, strategy)

	if input.SessionID != "" {
		if err := o.sessions.Append(ctx, input.SessionID, session.Entry{
			Role: "user", Content: input.Query, TurnID: state.TurnID,
		}); err != nil {
			o.logger.Printf("failed to record user entry: %v", err)
		}
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				state.ErrorMessage = fmt.Sprintf("internal error: %v", r)
				state.FinalResponse = "Sorry, something went wrong while processing your request. Please try again."
				span.RecordError(fmt.Errorf("panic: %v", r))
				span.SetStatus(codes.Error, state.ErrorMessage)
			}
		}()
		switch strategy {
		case config.StrategyPlanner:
			o.runPlan(ctx, state)
		default:
			o.runPipeline(ctx, state)
		}
	}()

	if state.Provenance.Steps == nil {
		state.Provenance = buildProvenance(state)
	}

	result := resultFromState(state)

	// The result is frozen here; later feedback updates the state but never
	// the stored result. Retention is bounded: once the cap is reached the
	// oldest turn is evicted with each new one.
	o.mu.Lock()
	o.turns[state.TurnID] = state
	o.results[state.TurnID] = result
	o.turnOrder = append(o.turnOrder, state.TurnID)
	if max := o.cfg.Orchestrator.MaxStoredTurns; max > 0 {
		for len(o.turnOrder) > max {
			oldest := o.turnOrder[0]
			o.turnOrder = o.turnOrder[1:]
			delete(o.turns, oldest)
			delete(o.results, oldest)
		}
	}
	o.mu.Unlock()

	if input.SessionID != "" {
		if err := o.sessions.Append(ctx, input.SessionID, session.Entry{
			Role: "assistant", Content: state.FinalResponse, TurnID: state.TurnID,
		}); err != nil {
			o.logger.Printf("failed to record assistant entry: %v", err)
		}
		if err := o.sessions.RecordTurn(ctx, input.SessionID, usedCapabilities(state), state.Completeness); err != nil {
			o.logger.Printf("failed to record turn stats: %v", err)
		}
	}

	if o.telemetry != nil {
		o.telemetry.RecordTurn(ctx, telemetry.TurnEvent{
			TurnID:           state.TurnID,
			Strategy:         string(strategy),
			Intent:           string(state.Intent),
			Duration:         result.ProcessingTime,
			Success:          state.ErrorMessage == "",
			Error:            state.ErrorMessage,
			Completeness:     state.Completeness,
			CapabilitiesUsed: usedCapabilities(state),
		})
	}

	span.SetAttributes(
		attribute.Float64("turn.confidence", result.Confidence),
		attribute.Float64("turn.completeness", result.Completeness),
	)
	if state.ErrorMessage == "" {
		span.SetStatus(codes.Ok, "completed")
	}

	return result, nil
}

// Turn returns the frozen result of a previously processed turn.
func (o *Orchestrator) Turn(turnID string) (TurnResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	result, ok := o.results[turnID]
	return result, ok
}

// invoke runs one capability call with a span, a per-capability timeout and
// telemetry. Failure marks the capability failed on the state and returns
// the error; it never aborts the turn by itself. mu guards the state's
// bookkeeping maps when the call runs inside a parallel group.
func (o *Orchestrator) invoke(ctx context.Context, cap capability.Capability, state *TurnState, mu *sync.Mutex, fn func(ctx context.Context) error) error {
	ctx, span := orchestratorTracer.Start(ctx, "agent.capability",
		trace.WithAttributes(attribute.String("capability", string(cap))))
	defer span.End()

	if timeout := o.cfg.Orchestrator.CapabilityTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if mu != nil {
		mu.Lock()
	}
	confidence := state.ConfidenceScores[cap]
	if err != nil {
		state.FailedCapabilities[cap] = true
	}
	if mu != nil {
		mu.Unlock()
	}

	if o.telemetry != nil {
		event := telemetry.CapabilityEvent{
			TurnID:     state.TurnID,
			Capability: string(cap),
			Duration:   duration,
			Success:    err == nil,
			Confidence: confidence,
		}
		if err != nil {
			event.Error = err.Error()
		}
		o.telemetry.RecordCapability(ctx, event)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Printf("capability %s failed after %v: %v", cap, duration, err)
		return err
	}
	span.SetStatus(codes.Ok, "completed")
	return nil
}

func resultFromState(state *TurnState) TurnResult {
	return TurnResult{
		TurnID:         state.TurnID,
		SessionID:      state.SessionID,
		Response:       state.FinalResponse,
		Confidence:     state.Confidence,
		Provenance:     state.Provenance,
		Intent:         state.Intent,
		Completeness:   state.Completeness,
		Complete:       state.Complete,
		Strategy:       state.Strategy,
		ProcessingTime: time.Since(state.StartedAt),
	}
}

func usedCapabilities(state *TurnState) []string {
	var used []string
	for _, c := range capability.All() {
		if _, ok := state.ConfidenceScores[c]; ok {
			used = append(used, string(c))
		} else if state.FailedCapabilities[c] {
			used = append(used, string(c))
		}
	}
	return used
}
