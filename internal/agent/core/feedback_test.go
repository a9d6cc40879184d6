package core

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leafwise/leafwise/config"
)

func TestSubmitFeedbackValidation(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPipeline))

	if _, err := f.orch.SubmitFeedback(context.Background(), "t1", -1, ""); err == nil {
		t.Fatalf("negative score must be rejected")
	}
	if _, err := f.orch.SubmitFeedback(context.Background(), "t1", 101, ""); err == nil {
		t.Fatalf("score above 100 must be rejected")
	}
	if _, err := f.orch.SubmitFeedback(context.Background(), "missing", 80, ""); err == nil {
		t.Fatalf("unknown turn must be rejected")
	}
}

func TestSubmitFeedbackBelowThreshold(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPipeline))
	result, err := f.orch.ProcessTurn(context.Background(), TurnInput{Query: "monstera care"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fb, err := f.orch.SubmitFeedback(context.Background(), result.TurnID, 69, "meh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fb.Acknowledged {
		t.Fatalf("feedback must be acknowledged even below the threshold")
	}
	if fb.KnowledgeUpdated {
		t.Fatalf("score 69 must not update the knowledge store")
	}
	if len(f.store.appended) != 0 {
		t.Fatalf("expected no appends, got %d", len(f.store.appended))
	}
}

func TestSubmitFeedbackUpdatesOnce(t *testing.T) {
	f := newFixture(t, testConfig(config.StrategyPipeline))
	result, err := f.orch.ProcessTurn(context.Background(), TurnInput{Query: "monstera care"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fb, err := f.orch.SubmitFeedback(context.Background(), result.TurnID, 70, "helpful")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fb.KnowledgeUpdated {
		t.Fatalf("score 70 must update the knowledge store")
	}
	if len(f.store.appended) != 1 {
		t.Fatalf("expected exactly one append, got %d", len(f.store.appended))
	}

	entry := f.store.appended[0]
	if !strings.Contains(entry.content, "Query: monstera care") {
		t.Fatalf("append content missing the query: %q", entry.content)
	}
	if entry.metadata["source"] != "feedback" || entry.metadata["type"] != "feedback_entry" {
		t.Fatalf("unexpected append metadata: %#v", entry.metadata)
	}
	if entry.metadata["feedback_score"] != "70" {
		t.Fatalf("unexpected feedback score metadata: %q", entry.metadata["feedback_score"])
	}

	// Re-submission acknowledges but never writes a second record.
	fb, err = f.orch.SubmitFeedback(context.Background(), result.TurnID, 95, "even better")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fb.KnowledgeUpdated {
		t.Fatalf("re-submission should still report the store as updated")
	}
	if len(f.store.appended) != 1 {
		t.Fatalf("re-submission must not append again, got %d appends", len(f.store.appended))
	}
}

func TestCondenseTurnTruncates(t *testing.T) {
	state := newTurnState(TurnInput{Query: strings.Repeat("q", 600)}, config.StrategyPipeline, "t1")
	state.FinalResponse = strings.Repeat("r", 3000)
	state.Provenance.Summary = []string{"Knowledge Base (2 sources)", "Weather Data"}
	score := 88
	state.FeedbackScore = &score
	state.FeedbackComments = "nice"

	content, metadata := condenseTurn(state, 500, 2000)
	if !strings.HasPrefix(content, "Plant: Unknown\n") {
		t.Fatalf("unexpected content prefix: %q", content[:40])
	}
	if len(content) > len("Plant: Unknown\nQuery: \nAdvice: ")+500+2000 {
		t.Fatalf("condensed content exceeds bounds: %d bytes", len(content))
	}
	if metadata["provenance"] != "Knowledge Base (2 sources); Weather Data" {
		t.Fatalf("unexpected provenance metadata: %q", metadata["provenance"])
	}
	if metadata["comments"] != "nice" {
		t.Fatalf("unexpected comments metadata: %q", metadata["comments"])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 0); got != "hello" {
		t.Fatalf("max 0 disables truncation, got %q", got)
	}
	if got := truncate("hello", 3); got != "hel" {
		t.Fatalf("truncate = %q, want %q", got, "hel")
	}
	if got := truncate("hi", 10); got != "hi" {
		t.Fatalf("short strings pass through, got %q", got)
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	// "日本語" is 9 bytes; cutting at 4 would split the second rune.
	got := truncate("日本語", 4)
	if got != "日" {
		t.Fatalf("truncate = %q, want %q", got, "日")
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated string is not valid UTF-8: %q", got)
	}
	if got := truncate("Überwässerung", 2); !utf8.ValidString(got) {
		t.Fatalf("truncated string is not valid UTF-8: %q", got)
	}

	p := preview("растение с жёлтыми листьями", 15)
	if !utf8.ValidString(p) {
		t.Fatalf("preview is not valid UTF-8: %q", p)
	}
	if !strings.HasSuffix(p, "...") {
		t.Fatalf("long previews carry an ellipsis, got %q", p)
	}
}
