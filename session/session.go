package session

import (
	"context"
	"sync"
	"time"
)

// Entry is one message in a conversation.
type Entry struct {
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	TurnID    string    `json:"turn_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats aggregates per-session orchestration statistics.
type Stats struct {
	Turns           int            `json:"turns"`
	CapabilityUse   map[string]int `json:"capability_use"`
	AvgCompleteness float64        `json:"avg_completeness"`
}

// History stores conversation entries and turn statistics per session.
type History interface {
	Append(ctx context.Context, sessionID string, entry Entry) error
	Entries(ctx context.Context, sessionID string) ([]Entry, error)
	RecordTurn(ctx context.Context, sessionID string, capabilities []string, completeness float64) error
	Stats(ctx context.Context, sessionID string) (Stats, error)
	Clear(ctx context.Context, sessionID string) error
}

type sessionData struct {
	entries           []Entry
	turns             int
	capabilityUse     map[string]int
	completenessTotal float64
}

// InMemory is a map-backed History for single-process deployments and tests.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string]*sessionData
}

// NewInMemory creates an empty in-memory history store.
func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string]*sessionData)}
}

func (s *InMemory) get(sessionID string) *sessionData {
	data, ok := s.sessions[sessionID]
	if !ok {
		data = &sessionData{capabilityUse: make(map[string]int)}
		s.sessions[sessionID] = data
	}
	return data
}

func (s *InMemory) Append(ctx context.Context, sessionID string, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.get(sessionID)
	data.entries = append(data.entries, entry)
	return nil
}

func (s *InMemory) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]Entry, len(data.entries))
	copy(out, data.entries)
	return out, nil
}

func (s *InMemory) RecordTurn(ctx context.Context, sessionID string, capabilities []string, completeness float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.get(sessionID)
	data.turns++
	for _, c := range capabilities {
		data.capabilityUse[c]++
	}
	data.completenessTotal += completeness
	return nil
}

func (s *InMemory) Stats(ctx context.Context, sessionID string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return Stats{CapabilityUse: map[string]int{}}, nil
	}
	use := make(map[string]int, len(data.capabilityUse))
	for k, v := range data.capabilityUse {
		use[k] = v
	}
	st := Stats{Turns: data.turns, CapabilityUse: use}
	if data.turns > 0 {
		st.AvgCompleteness = data.completenessTotal / float64(data.turns)
	}
	return st, nil
}

func (s *InMemory) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
