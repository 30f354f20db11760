package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	userKeyPrefix    = "user:"
	quotaKeyPrefix   = "quota:"
)

// redisStore implements Store using Redis with optimistic locking.
//
// The user index is a plain key set with SETNX, which makes session
// creation conditional at the store. Version checks run inside
// WATCH/MULTI/EXEC transactions, and the combined session+quota commit
// watches both keys so the pair lands atomically.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// CreateSession implements Store.
// Creates a new session with Version set to 1 and sets TTL.
func (s *redisStore) CreateSession(ctx context.Context, data *Data) error {
	now := time.Now()
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1

	val, err := json.Marshal(data)
	if err != nil {
		return err
	}

	// SETNX on the user index is the create-if-absent guard; losing the
	// race means another request already holds the session for this user.
	bound, err := s.client.SetNX(ctx, userKeyPrefix+data.UserID, data.ID, s.ttl).Result()
	if err != nil {
		return err
	}
	if !bound {
		return ErrDuplicateSession
	}

	return s.client.Set(ctx, sessionKeyPrefix+data.ID, val, s.ttl).Err()
}

// GetSession implements Store.
// Returns nil if the session is not found (not an error).
// Refreshes TTL on every read.
func (s *redisStore) GetSession(ctx context.Context, id string) (*Data, error) {
	key := sessionKeyPrefix + id
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	var data Data
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}

	// Refresh TTL on read
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &data, nil
}

// SessionIDByUser implements Store.
func (s *redisStore) SessionIDByUser(ctx context.Context, userID string) (string, error) {
	id, err := s.client.Get(ctx, userKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// UpdateSession implements Store.
// Implements optimistic locking using Redis WATCH/MULTI/EXEC.
func (s *redisStore) UpdateSession(ctx context.Context, data *Data) error {
	key := sessionKeyPrefix + data.ID

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := s.watchedSession(ctx, tx, data.ID)
		if err != nil {
			return err
		}
		if stored.Version != data.Version {
			return ErrVersionConflict
		}

		data.Version++
		data.UpdatedAt = time.Now()

		newVal, err := json.Marshal(data)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		return err
	}, key)
}

// DeleteSession implements Store.
func (s *redisStore) DeleteSession(ctx context.Context, id string) error {
	data, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if data == nil {
		return s.client.Del(ctx, sessionKeyPrefix+id).Err()
	}
	return s.client.Del(ctx, sessionKeyPrefix+id, userKeyPrefix+data.UserID).Err()
}

// GetQuota implements Store.
// Returns nil if the user has no quota record yet (not an error).
func (s *redisStore) GetQuota(ctx context.Context, userID string) (*QuotaRecord, error) {
	val, err := s.client.Get(ctx, quotaKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec QuotaRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutQuota implements Store.
func (s *redisStore) PutQuota(ctx context.Context, rec *QuotaRecord) error {
	key := quotaKeyPrefix + rec.UserID

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		if err := s.checkQuotaVersion(ctx, tx, rec); err != nil {
			return err
		}

		rec.Version++
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, s.ttl)
			return nil
		})
		return err
	}, key)
}

// UpdateSessionAndQuota implements Store. Both keys are WATCHed and both
// writes go through one MULTI/EXEC, so a concurrent touch of either key
// aborts the whole commit with ErrVersionConflict semantics.
func (s *redisStore) UpdateSessionAndQuota(ctx context.Context, data *Data, rec *QuotaRecord) error {
	sessionKey := sessionKeyPrefix + data.ID
	quotaKey := quotaKeyPrefix + rec.UserID

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := s.watchedSession(ctx, tx, data.ID)
		if err != nil {
			return err
		}
		if stored.Version != data.Version {
			return ErrVersionConflict
		}
		if err := s.checkQuotaVersion(ctx, tx, rec); err != nil {
			return err
		}

		data.Version++
		data.UpdatedAt = time.Now()
		rec.Version++

		sessionVal, err := json.Marshal(data)
		if err != nil {
			return err
		}
		quotaVal, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey, sessionVal, s.ttl)
			pipe.Set(ctx, quotaKey, quotaVal, s.ttl)
			return nil
		})
		return err
	}, sessionKey, quotaKey)
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}

// watchedSession reads a session inside a WATCH transaction.
func (s *redisStore) watchedSession(ctx context.Context, tx *redis.Tx, id string) (*Data, error) {
	val, err := tx.Get(ctx, sessionKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var stored Data
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// checkQuotaVersion verifies a quota record's version inside a WATCH
// transaction. A record with Version 0 must not exist yet.
func (s *redisStore) checkQuotaVersion(ctx context.Context, tx *redis.Tx, rec *QuotaRecord) error {
	val, err := tx.Get(ctx, quotaKeyPrefix+rec.UserID).Result()
	if errors.Is(err, redis.Nil) {
		if rec.Version != 0 {
			return ErrVersionConflict
		}
		return nil
	}
	if err != nil {
		return err
	}

	var stored QuotaRecord
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return err
	}
	if stored.Version != rec.Version {
		return ErrVersionConflict
	}
	return nil
}
