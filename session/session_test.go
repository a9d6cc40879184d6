package session

import (
	"context"
	"testing"
)

func TestInMemoryEntries(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if err := s.Append(ctx, "s1", Entry{Role: "user", Content: "hi", TurnID: "t1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Append(ctx, "s1", Entry{Role: "assistant", Content: "hello", TurnID: "t1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := s.Entries(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != "user" || entries[1].Role != "assistant" {
		t.Fatalf("entries out of order: %#v", entries)
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatalf("append must stamp entries")
	}

	// Other sessions stay isolated.
	other, _ := s.Entries(ctx, "s2")
	if len(other) != 0 {
		t.Fatalf("expected empty history for unknown session, got %d entries", len(other))
	}
}

func TestInMemoryStats(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if err := s.RecordTurn(ctx, "s1", []string{"identify", "search_knowledge"}, 0.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RecordTurn(ctx, "s1", []string{"search_knowledge"}, 0.7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, err := s.Stats(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Turns != 2 {
		t.Fatalf("expected 2 turns, got %d", stats.Turns)
	}
	if stats.CapabilityUse["search_knowledge"] != 2 || stats.CapabilityUse["identify"] != 1 {
		t.Fatalf("unexpected capability use: %#v", stats.CapabilityUse)
	}
	if diff := stats.AvgCompleteness - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected avg completeness 0.8, got %f", stats.AvgCompleteness)
	}

	empty, err := s.Stats(ctx, "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty.Turns != 0 || empty.AvgCompleteness != 0 {
		t.Fatalf("unexpected stats for unknown session: %#v", empty)
	}
}

func TestInMemoryClear(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	_ = s.Append(ctx, "s1", Entry{Role: "user", Content: "hi"})
	_ = s.RecordTurn(ctx, "s1", []string{"identify"}, 1)
	if err := s.Clear(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, _ := s.Entries(ctx, "s1")
	if len(entries) != 0 {
		t.Fatalf("clear must drop entries, got %d", len(entries))
	}
	stats, _ := s.Stats(ctx, "s1")
	if stats.Turns != 0 {
		t.Fatalf("clear must drop stats, got %d turns", stats.Turns)
	}
}
