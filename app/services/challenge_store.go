// Package services provides external service integrations and technical concerns like captcha challenges and bot-risk verification
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChallengeEntry is the server-held half of an issued captcha challenge
type ChallengeEntry struct {
	Answer   string    `json:"answer"`
	IssuedAt time.Time `json:"issued_at"`
}

// ChallengeStore maps challenge tokens to their expected answers.
//
// Take removes the entry atomically (delete-on-read) so a token can never be
// validated twice, whatever the outcome of the comparison. The memory
// implementation additionally sweeps stale entries on a fixed interval; the
// Redis implementation relies on key TTLs and exists so multiple instances
// can share one challenge pool.
type ChallengeStore interface {
	Put(ctx context.Context, token string, entry ChallengeEntry) error
	// Take returns the entry for token and removes it. ok is false if the
	// token is unknown or already consumed.
	Take(ctx context.Context, token string) (ChallengeEntry, bool, error)
	// Stop releases background resources (the memory sweep goroutine).
	Stop()
}

// --- In-memory store with TTL sweep ---

type MemoryChallengeStore struct {
	mu      sync.Mutex
	entries map[string]ChallengeEntry
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewMemoryChallengeStore creates the in-process store and starts its sweep
// goroutine. The sweep bounds memory even when clients abandon the flow.
func NewMemoryChallengeStore(ttl, sweepInterval time.Duration) *MemoryChallengeStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &MemoryChallengeStore{
		entries: make(map[string]ChallengeEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

func (s *MemoryChallengeStore) Put(ctx context.Context, token string, entry ChallengeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = entry
	return nil
}

func (s *MemoryChallengeStore) Take(ctx context.Context, token string) (ChallengeEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return ChallengeEntry{}, false, nil
	}
	delete(s.entries, token)
	return e, true, nil
}

func (s *MemoryChallengeStore) Stop() {
	s.once.Do(func() { close(s.done) })
}

// Len reports the number of live entries. Used by tests and metrics.
func (s *MemoryChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryChallengeStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now().UTC())
		}
	}
}

func (s *MemoryChallengeStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, e := range s.entries {
		if now.Sub(e.IssuedAt) > s.ttl {
			delete(s.entries, token)
		}
	}
}

// --- Redis-backed store ---

// RedisChallengeStore shares challenges across instances. Keys carry a TTL
// slightly above the challenge TTL; the expiry decision itself stays with the
// captcha service so an expired-but-present entry is still reported as
// expired rather than unknown.
type RedisChallengeStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisChallengeStore(client *redis.Client, prefix string, ttl time.Duration) *RedisChallengeStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisChallengeStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisChallengeStore) key(token string) string {
	return s.prefix + "captcha:" + token
}

func (s *RedisChallengeStore) Put(ctx context.Context, token string, entry ChallengeEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge entry: %w", err)
	}
	// Keep the key around a little past the TTL so late consumers get the
	// distinct expired result instead of unknown-token.
	return s.client.Set(ctx, s.key(token), payload, s.ttl+time.Minute).Err()
}

func (s *RedisChallengeStore) Take(ctx context.Context, token string) (ChallengeEntry, bool, error) {
	payload, err := s.client.GetDel(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ChallengeEntry{}, false, nil
		}
		return ChallengeEntry{}, false, fmt.Errorf("failed to consume challenge: %w", err)
	}
	var entry ChallengeEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return ChallengeEntry{}, false, fmt.Errorf("failed to unmarshal challenge entry: %w", err)
	}
	return entry, true, nil
}

func (s *RedisChallengeStore) Stop() {}
