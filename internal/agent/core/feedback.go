package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FeedbackResult reports what a feedback submission did.
type FeedbackResult struct {
	Acknowledged     bool `json:"acknowledged"`
	KnowledgeUpdated bool `json:"knowledge_updated"`
}

// SubmitFeedback records a user's score for a previous turn and, when the
// score clears the update threshold, appends exactly one condensed record to
// the knowledge store. Re-submissions never produce a second write.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, turnID string, score int, comments string) (FeedbackResult, error) {
	ctx, span := orchestratorTracer.Start(ctx, "agent.feedback",
		trace.WithAttributes(
			attribute.String("turn.id", turnID),
			attribute.Int("feedback.score", score),
		))
	defer span.End()

	if score < 0 || score > 100 {
		return FeedbackResult{}, fmt.Errorf("feedback score must be in [0,100], got %d", score)
	}

	o.mu.Lock()
	state, ok := o.turns[turnID]
	o.mu.Unlock()
	if !ok {
		return FeedbackResult{}, fmt.Errorf("unknown turn %q", turnID)
	}

	state.FeedbackScore = &score
	state.FeedbackComments = comments
	if o.telemetry != nil {
		o.telemetry.RecordFeedback(ctx, score)
	}

	result := FeedbackResult{Acknowledged: true}
	if score < o.cfg.Feedback.UpdateThreshold {
		o.logger.Printf("turn %s: feedback %d below threshold %d, no knowledge update",
			turnID, score, o.cfg.Feedback.UpdateThreshold)
		return result, nil
	}
	if state.KnowledgeUpdated {
		result.KnowledgeUpdated = true
		return result, nil
	}

	content, metadata := condenseTurn(state, o.cfg.Feedback.MaxQueryLen, o.cfg.Feedback.MaxResponseLen)
	if err := o.store.Append(ctx, content, metadata); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("knowledge update failed: %w", err)
	}

	state.KnowledgeUpdated = true
	result.KnowledgeUpdated = true
	o.logger.Printf("turn %s: feedback %d accepted, knowledge store updated", turnID, score)
	return result, nil
}

// condenseTurn builds the bounded knowledge record written on accepted
// feedback: plant name, truncated query and response, provenance summary,
// and flat string metadata.
func condenseTurn(state *TurnState, maxQueryLen, maxResponseLen int) (string, map[string]string) {
	plantName := state.IdentifiedPlant.PlantName
	if plantName == "" {
		plantName = "Unknown"
	}
	query := truncate(state.Query, maxQueryLen)
	response := truncate(state.FinalResponse, maxResponseLen)

	content := fmt.Sprintf("Plant: %s\nQuery: %s\nAdvice: %s", plantName, query, response)

	metadata := map[string]string{
		"plant_name": plantName,
		"source":     "feedback",
		"type":       "feedback_entry",
	}
	if state.FeedbackScore != nil {
		metadata["feedback_score"] = strconv.Itoa(*state.FeedbackScore)
	}
	if len(state.Provenance.Summary) > 0 {
		metadata["provenance"] = strings.Join(state.Provenance.Summary, "; ")
	}
	if state.FeedbackComments != "" {
		metadata["comments"] = truncate(state.FeedbackComments, maxQueryLen)
	}
	return content, metadata
}

// truncate bounds s to at most max bytes, cutting on a rune boundary so the
// stored text stays valid UTF-8. max <= 0 disables the bound.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
