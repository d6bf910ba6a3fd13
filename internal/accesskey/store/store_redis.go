package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"referralintake/internal/accesskey/models"
	"referralintake/pkg/platform/sentinel"
)

const (
	recordKeyPrefix = "ak:rec:"
	indexKeyPrefix  = "ak:idx:"

	// retention keeps expired records readable for a while so validation can
	// report Expired (and count the attempt) instead of NotFound.
	retention = 24 * time.Hour

	// txRetries bounds optimistic WATCH retries under contention.
	txRetries = 3
)

// RedisStore is the production access-key store for distributed deployments.
// Per-key atomicity comes from WATCH-guarded transactions on the record key:
// two concurrent Consume calls race, one transaction fails, and the loser
// reloads to find the key already consumed.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed access-key store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, key *models.AccessKey) error {
	payload, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal access key: %w", err)
	}

	ttl := time.Until(key.ExpiresAt) + retention
	recKey := recordKey(key.ID)
	idxKey := indexKey(key.Email)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recKey, payload, ttl)
		pipe.ZAdd(ctx, idxKey, redis.Z{Score: float64(key.CreatedAt.UnixNano()), Member: key.ID.String()})
		pipe.Expire(ctx, idxKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create access key: %w", err)
	}
	return nil
}

func (s *RedisStore) GetMostRecent(ctx context.Context, email string) (*models.AccessKey, error) {
	idxKey := indexKey(models.NormalizeEmail(email))

	ids, err := s.client.ZRevRange(ctx, idxKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read access key index: %w", err)
	}
	for _, id := range ids {
		key, err := s.get(ctx, recordKeyRaw(id))
		if errors.Is(err, sentinel.ErrNotFound) {
			// Record aged out of retention; drop the stale index entry.
			s.client.ZRem(ctx, idxKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		return key, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *RedisStore) CountActive(ctx context.Context, email string, now time.Time) (int, error) {
	idxKey := indexKey(models.NormalizeEmail(email))

	ids, err := s.client.ZRevRange(ctx, idxKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read access key index: %w", err)
	}
	count := 0
	for _, id := range ids {
		key, err := s.get(ctx, recordKeyRaw(id))
		if errors.Is(err, sentinel.ErrNotFound) {
			s.client.ZRem(ctx, idxKey, id)
			continue
		}
		if err != nil {
			return 0, err
		}
		if key.IsActive(now) {
			count++
		}
	}
	return count, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var newCount int
	err := s.update(ctx, id, func(key *models.AccessKey) error {
		key.AttemptCount++
		newCount = key.AttemptCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

func (s *RedisStore) Consume(ctx context.Context, id uuid.UUID) (bool, error) {
	consumed := false
	err := s.update(ctx, id, func(key *models.AccessKey) error {
		if key.IsConsumed {
			consumed = false
			return errAlreadyConsumed
		}
		key.IsConsumed = true
		key.AttemptCount++
		consumed = true
		return nil
	})
	if errors.Is(err, errAlreadyConsumed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return consumed, nil
}

var errAlreadyConsumed = errors.New("access key already consumed")

// update applies mutate inside a WATCH-guarded transaction, retrying a
// bounded number of times when a concurrent writer invalidates the watch.
func (s *RedisStore) update(ctx context.Context, id uuid.UUID, mutate func(*models.AccessKey) error) error {
	recKey := recordKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, recKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read access key: %w", err)
		}
		var key models.AccessKey
		if err := json.Unmarshal(data, &key); err != nil {
			return fmt.Errorf("unmarshal access key: %w", err)
		}
		if err := mutate(&key); err != nil {
			return err
		}
		payload, err := json.Marshal(&key)
		if err != nil {
			return fmt.Errorf("marshal access key: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, recKey, payload, redis.KeepTTL)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < txRetries; i++ {
		err = s.client.Watch(ctx, txn, recKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update access key: %w", sentinel.ErrConflict)
}

func (s *RedisStore) get(ctx context.Context, recKey string) (*models.AccessKey, error) {
	data, err := s.client.Get(ctx, recKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read access key: %w", err)
	}
	var key models.AccessKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("unmarshal access key: %w", err)
	}
	return &key, nil
}

func recordKey(id uuid.UUID) string {
	return recordKeyPrefix + id.String()
}

func recordKeyRaw(id string) string {
	return recordKeyPrefix + id
}

func indexKey(email string) string {
	return indexKeyPrefix + email
}
