package redis_session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/session"
)

// Store is a redis-backed session.History. Entries live in a list per
// session, stats in a hash; both carry the configured TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a redis history store from config.
func New(cfg config.RedisConfig) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func entriesKey(sessionID string) string { return fmt.Sprintf("session:%s:entries", sessionID) }
func statsKey(sessionID string) string   { return fmt.Sprintf("session:%s:stats", sessionID) }

func (s *Store) Append(ctx context.Context, sessionID string, entry session.Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	key := entriesKey(sessionID)
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

func (s *Store) Entries(ctx context.Context, sessionID string) ([]session.Entry, error) {
	vals, err := s.client.LRange(ctx, entriesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	out := make([]session.Entry, 0, len(vals))
	for _, v := range vals {
		var e session.Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) RecordTurn(ctx context.Context, sessionID string, capabilities []string, completeness float64) error {
	key := statsKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "turns", 1)
	pipe.HIncrByFloat(ctx, key, "completeness_total", completeness)
	for _, c := range capabilities {
		pipe.HIncrBy(ctx, key, "cap:"+c, 1)
	}
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, sessionID string) (session.Stats, error) {
	vals, err := s.client.HGetAll(ctx, statsKey(sessionID)).Result()
	if err != nil {
		return session.Stats{}, fmt.Errorf("failed to load stats: %w", err)
	}
	st := session.Stats{CapabilityUse: make(map[string]int)}
	var completenessTotal float64
	for k, v := range vals {
		switch {
		case k == "turns":
			fmt.Sscanf(v, "%d", &st.Turns)
		case k == "completeness_total":
			fmt.Sscanf(v, "%f", &completenessTotal)
		case len(k) > 4 && k[:4] == "cap:":
			var n int
			fmt.Sscanf(v, "%d", &n)
			st.CapabilityUse[k[4:]] = n
		}
	}
	if st.Turns > 0 {
		st.AvgCompleteness = completenessTotal / float64(st.Turns)
	}
	return st, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, entriesKey(sessionID), statsKey(sessionID)).Err()
}
