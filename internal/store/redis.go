// ABOUTME: Redis-backed CodeStore implementation for single-use codes
// ABOUTME: Uses TTL expiry plus a per-actor index key to supersede prior codes

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCodeStore implements CodeStore on Redis. Codes expire via TTL; the
// single-live-code invariant is enforced by a per-(actor, purpose) index key
// updated in the same Lua script that writes the code, so concurrent issuance
// for one actor is race-free.
type RedisCodeStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ CodeStore = (*RedisCodeStore)(nil)

// NewRedisCodeStore creates a CodeStore backed by the given Redis client.
func NewRedisCodeStore(client *redis.Client, keyPrefix string) *RedisCodeStore {
	if keyPrefix == "" {
		keyPrefix = "shoplane:"
	}
	return &RedisCodeStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisCodeStore) codeKey(purpose CodePurpose, code string) string {
	return fmt.Sprintf("%scode:%s:%s", s.keyPrefix, purpose, code)
}

func (s *RedisCodeStore) indexKey(actorID string, purpose CodePurpose) string {
	return fmt.Sprintf("%sactor:%s:%s", s.keyPrefix, actorID, purpose)
}

// issueScript deletes the previously indexed code (if any) and writes the new
// code plus index entry with the same TTL.
var issueScript = redis.NewScript(`
local old = redis.call("GET", KEYS[2])
if old then
  redis.call("DEL", ARGV[4] .. old)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// IssueCode creates a new live code for (actorID, purpose), superseding any
// prior live code for that pair.
func (s *RedisCodeStore) IssueCode(ctx context.Context, actorID string, purpose CodePurpose, ttl time.Duration) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}

	now := time.Now().UTC()
	c := Code{
		Code:      code,
		ActorID:   actorID,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding code: %w", err)
	}

	keys := []string{s.codeKey(purpose, code), s.indexKey(actorID, purpose)}
	codePrefix := fmt.Sprintf("%scode:%s:", s.keyPrefix, purpose)
	if err := issueScript.Run(ctx, s.client, keys,
		string(raw), code, ttl.Milliseconds(), codePrefix,
	).Err(); err != nil {
		return "", fmt.Errorf("issuing code: %w", err)
	}

	return code, nil
}

// FindCode retrieves a live code. Expired codes disappear via TTL.
func (s *RedisCodeStore) FindCode(ctx context.Context, code string, purpose CodePurpose) (*Code, error) {
	val, err := s.client.Get(ctx, s.codeKey(purpose, code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying code: %w", err)
	}

	var c Code
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		return nil, fmt.Errorf("decoding code: %w", err)
	}
	return &c, nil
}

// DeleteCode removes a code and its index entry. Returns true iff it existed.
func (s *RedisCodeStore) DeleteCode(ctx context.Context, code string, purpose CodePurpose) (bool, error) {
	c, err := s.FindCode(ctx, code, purpose)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	removed, err := s.client.Del(ctx, s.codeKey(purpose, code)).Result()
	if err != nil {
		return false, fmt.Errorf("deleting code: %w", err)
	}
	// Only clear the index if it still points at this code.
	idxKey := s.indexKey(c.ActorID, purpose)
	if current, err := s.client.Get(ctx, idxKey).Result(); err == nil && current == code {
		_ = s.client.Del(ctx, idxKey).Err()
	}

	return removed > 0, nil
}
