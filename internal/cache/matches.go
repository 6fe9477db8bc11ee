// Package cache publishes sweep results to Redis for other consumers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erazemk/najdeno/internal/model"
)

// MatchesKey holds the latest candidate map as JSON.
const MatchesKey = "najdeno:matches"

// Snapshot is the cached form of a sweep result.
type Snapshot struct {
	ComputedAt time.Time                         `json:"computed_at"`
	Candidates map[string][]model.MatchCandidate `json:"candidates"`
}

// MatchPublisher stores each sweep's candidate map under MatchesKey.
type MatchPublisher struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewMatchPublisher returns a publisher writing to rdb. Entries expire after
// ttl; zero keeps them until overwritten.
func NewMatchPublisher(rdb redis.UniversalClient, ttl time.Duration) *MatchPublisher {
	return &MatchPublisher{rdb: rdb, ttl: ttl}
}

// PublishMatches implements matching.Publisher.
func (p *MatchPublisher) PublishMatches(ctx context.Context, candidates map[int64][]model.MatchCandidate, computedAt time.Time) error {
	snap := Snapshot{ComputedAt: computedAt.UTC(), Candidates: make(map[string][]model.MatchCandidate, len(candidates))}
	for id, list := range candidates {
		snap.Candidates[strconv.FormatInt(id, 10)] = list
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding matches: %w", err)
	}
	if err := p.rdb.Set(ctx, MatchesKey, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("caching matches: %w", err)
	}
	return nil
}

// Latest returns the last published snapshot, or nil if none is cached.
func (p *MatchPublisher) Latest(ctx context.Context) (*Snapshot, error) {
	data, err := p.rdb.Get(ctx, MatchesKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached matches: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding cached matches: %w", err)
	}
	return &snap, nil
}

// Connect opens a Redis client for addr and checks that it answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}
