package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps the Redis client with the platform's namespaced keys. It
// carries the cross-process state the api/orchestrator split needs: the
// one-execution-per-bot guard and per-credential operator-visible
// snapshots (orphan positions, cooldowns).
type Store struct {
	client *redis.Client
	ttl    TTLSet
}

// NewStore connects to addr (host:port). pass may be empty.
func NewStore(addr, pass string, ttl TTLSet) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: pass}),
		ttl:    ttl,
	}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// AcquireBotLock takes the cross-process execution guard for botID.
// Returns false when another process already holds it. The TTL bounds a
// crashed holder.
func (s *Store) AcquireBotLock(ctx context.Context, botID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, BotExecLockKey(botID), "1", BotExecLockTTL()).Result()
	if err != nil {
		return false, fmt.Errorf("cache: acquire bot lock: %w", err)
	}
	return ok, nil
}

// ReleaseBotLock drops the execution guard.
func (s *Store) ReleaseBotLock(ctx context.Context, botID string) error {
	if err := s.client.Del(ctx, BotExecLockKey(botID)).Err(); err != nil {
		return fmt.Errorf("cache: release bot lock: %w", err)
	}
	return nil
}

// MarkCooldown records a credential's 429 cooldown so a restarted process
// does not hammer the broker before the window elapses.
func (s *Store) MarkCooldown(ctx context.Context, credentialID string, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, RateCooldownKey(credentialID), until.UnixMilli(), d).Err(); err != nil {
		return fmt.Errorf("cache: mark cooldown: %w", err)
	}
	return nil
}

// CooldownUntil returns the persisted cooldown deadline, zero when none.
func (s *Store) CooldownUntil(ctx context.Context, credentialID string) (time.Time, error) {
	ms, err := s.client.Get(ctx, RateCooldownKey(credentialID)).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cache: cooldown lookup: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// PutOrphans publishes the current unattributed broker positions for a
// credential, for operator inspection.
func (s *Store) PutOrphans(ctx context.Context, credentialID string, dealIDs []string) error {
	raw, err := json.Marshal(dealIDs)
	if err != nil {
		return fmt.Errorf("cache: encode orphans: %w", err)
	}
	if err := s.client.Set(ctx, OrphanPositionsKey(credentialID), raw, OrphanPositionsTTL(s.ttl)).Err(); err != nil {
		return fmt.Errorf("cache: put orphans: %w", err)
	}
	return nil
}

// Orphans returns the published orphan deal ids for a credential.
func (s *Store) Orphans(ctx context.Context, credentialID string) ([]string, error) {
	raw, err := s.client.Get(ctx, OrphanPositionsKey(credentialID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: orphans lookup: %w", err)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("cache: decode orphans: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
