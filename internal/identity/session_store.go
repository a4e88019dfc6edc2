package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"anonfeed/internal/models"

	"github.com/redis/go-redis/v9"
)

// SessionStore is the allowlist of live session token ids.
type SessionStore interface {
	Put(ctx context.Context, tokenID string, id models.Identity, ttl time.Duration) error
	// Get returns the identity registered under tokenID, or ok=false if none is live.
	Get(ctx context.Context, tokenID string) (id models.Identity, ok bool, err error)
	// Delete removes tokenID. Removing an unknown id is not an error.
	Delete(ctx context.Context, tokenID string) error
}

func sessionKey(tokenID string) string {
	return fmt.Sprintf("session:%s", tokenID)
}

type redisSessionStore struct {
	rdb *redis.Client
}

// NewRedisSessionStore keeps sessions under session:<jti> keys with a TTL.
func NewRedisSessionStore(rdb *redis.Client) SessionStore {
	return &redisSessionStore{rdb: rdb}
}

func (s *redisSessionStore) Put(ctx context.Context, tokenID string, id models.Identity, ttl time.Duration) error {
	payload, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(tokenID), payload, ttl).Err()
}

func (s *redisSessionStore) Get(ctx context.Context, tokenID string) (models.Identity, bool, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(tokenID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Identity{}, false, nil
	}
	if err != nil {
		return models.Identity{}, false, err
	}
	var id models.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return models.Identity{}, false, err
	}
	return id, true, nil
}

func (s *redisSessionStore) Delete(ctx context.Context, tokenID string) error {
	return s.rdb.Del(ctx, sessionKey(tokenID)).Err()
}

type memoryEntry struct {
	id        models.Identity
	expiresAt time.Time
}

const memorySweepInterval = time.Minute

// MemorySessionStore is the process-local registry used when Redis is not configured.
// Put drops expired entries at most once per sweep interval.
type MemorySessionStore struct {
	mu        sync.Mutex
	sessions  map[string]memoryEntry
	now       func() time.Time
	nextSweep time.Time
}

// NewMemorySessionStore creates an empty in-process session registry.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemorySessionStore) Put(_ context.Context, tokenID string, id models.Identity, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !now.Before(s.nextSweep) {
		s.sweepLocked(now)
	}
	s.sessions[tokenID] = memoryEntry{id: id, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemorySessionStore) sweepLocked(now time.Time) {
	for tokenID, entry := range s.sessions {
		if !now.Before(entry.expiresAt) {
			delete(s.sessions, tokenID)
		}
	}
	s.nextSweep = now.Add(memorySweepInterval)
}

func (s *MemorySessionStore) Get(_ context.Context, tokenID string) (models.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[tokenID]
	if !ok {
		return models.Identity{}, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.sessions, tokenID)
		return models.Identity{}, false, nil
	}
	return entry.id, true, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenID)
	return nil
}
