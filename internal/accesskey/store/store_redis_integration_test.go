//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"referralintake/internal/accesskey/models"
	"referralintake/internal/accesskey/store"
	"referralintake/pkg/platform/sentinel"
	"referralintake/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = store.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.redis.FlushAll(ctx)
	s.Require().NoError(err)
}

func makeKey(s *RedisStoreSuite, email string, createdAt time.Time) *models.AccessKey {
	key, err := models.NewAccessKey(email, "123456", createdAt, createdAt.Add(10*time.Minute))
	s.Require().NoError(err)
	return key
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	key := makeKey(s, "round@example.com", now)
	s.Require().NoError(s.store.Create(ctx, key))

	found, err := s.store.GetMostRecent(ctx, "round@example.com")
	s.Require().NoError(err)
	s.Equal(key.ID, found.ID)
	s.Equal(key.CodeHash, found.CodeHash)
	s.True(found.ExpiresAt.Equal(key.ExpiresAt))
}

func (s *RedisStoreSuite) TestMostRecentOrdering() {
	ctx := context.Background()
	now := time.Now().UTC()

	older := makeKey(s, "order@example.com", now.Add(-time.Minute))
	s.Require().NoError(s.store.Create(ctx, older))
	newer := makeKey(s, "order@example.com", now)
	s.Require().NoError(s.store.Create(ctx, newer))

	found, err := s.store.GetMostRecent(ctx, "order@example.com")
	s.Require().NoError(err)
	s.Equal(newer.ID, found.ID)
}

func (s *RedisStoreSuite) TestCountActive() {
	ctx := context.Background()
	now := time.Now().UTC()

	live := makeKey(s, "count@example.com", now)
	s.Require().NoError(s.store.Create(ctx, live))

	consumed := makeKey(s, "count@example.com", now.Add(time.Second))
	s.Require().NoError(s.store.Create(ctx, consumed))
	ok, err := s.store.Consume(ctx, consumed.ID)
	s.Require().NoError(err)
	s.Require().True(ok)

	count, err := s.store.CountActive(ctx, "count@example.com", now.Add(2*time.Second))
	s.Require().NoError(err)
	s.Equal(1, count)
}

// TestConcurrentConsume verifies the WATCH transaction admits exactly one
// consumer for a key.
func (s *RedisStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	now := time.Now().UTC()

	key := makeKey(s, "race@example.com", now)
	s.Require().NoError(s.store.Create(ctx, key))

	const goroutines = 20
	var wg sync.WaitGroup
	var winners atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumed, err := s.store.Consume(ctx, key.ID)
			if err == nil && consumed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), winners.Load())

	found, err := s.store.GetMostRecent(ctx, "race@example.com")
	s.Require().NoError(err)
	s.True(found.IsConsumed)
}

func (s *RedisStoreSuite) TestIncrementAttempts() {
	ctx := context.Background()
	now := time.Now().UTC()

	key := makeKey(s, "attempts@example.com", now)
	s.Require().NoError(s.store.Create(ctx, key))

	count, err := s.store.IncrementAttempts(ctx, key.ID)
	s.Require().NoError(err)
	s.Equal(1, count)
	count, err = s.store.IncrementAttempts(ctx, key.ID)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *RedisStoreSuite) TestNotFound() {
	ctx := context.Background()

	_, err := s.store.GetMostRecent(ctx, "nobody@example.com")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
