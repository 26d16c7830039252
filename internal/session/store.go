package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veraclinic/agendabot/pkg/logging"
)

// Store persists one session per user identifier in Redis with a TTL.
// Every Save resets the TTL, so any activity extends the session's lifetime;
// expiry is left entirely to Redis, there is no active sweep.
//
// Load and Save are a plain read-modify-write with no cross-instance lock.
// Two events for the same user arriving at the same instant can interleave;
// the last write wins, matching single-conversation usage.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewStore creates a session store. ttl must be positive.
func NewStore(redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{redis: redisClient, ttl: ttl, logger: logger}
}

func (s *Store) key(userID string) string {
	return fmt.Sprintf("session:%s", userID)
}

// Load returns the stored session for userID, or nil when none exists.
// A stored payload that fails to decode is treated as absent: the record is
// dropped and the caller starts the user from a fresh session.
func (s *Store) Load(ctx context.Context, userID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Warn("discarding corrupted session record", "user_id", userID, "error", err)
		_ = s.redis.Del(ctx, s.key(userID)).Err()
		return nil, nil
	}
	return &sess, nil
}

// Save writes the session and resets its TTL.
func (s *Store) Save(ctx context.Context, userID string, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Delete removes the session for userID. Deleting a missing session is not
// an error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}
