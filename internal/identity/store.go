// Package identity maps advertising identifiers to stable device entity
// ids and resolves the device identity for each incoming batch.
package identity

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xray-tech/xorc-gateway/internal/metrics"
)

// NilUUID is the all-zero identifier some SDK builds send when ad tracking
// is restricted. It must never reach the store.
const NilUUID = "00000000-0000-0000-0000-000000000000"

// maxConcurrentCalls bounds in-flight store operations.
const maxConcurrentCalls = 16

// Store is the IFA-to-entity lookup.
type Store interface {
	// Get returns the entity id stored for the IFA, or empty when unknown.
	Get(ctx context.Context, appID, ifa string) string
	// Put records the IFA-to-entity pairing.
	Put(ctx context.Context, appID, ifa, entityID string)
}

// RedisStore keeps the IFA pairings in Redis under "ifa:<app_id>:<ifa>".
// Calls retry with a short additive backoff; reads degrade to a miss when
// the store stays down, writes are treated as must-succeed.
type RedisStore struct {
	client   *redis.Client
	attempts int
	sem      *semaphore.Weighted
	logger   *zap.Logger
}

// NewRedisStore wraps an existing client. attempts is the total number of
// tries per operation.
func NewRedisStore(client *redis.Client, attempts int, logger *zap.Logger) *RedisStore {
	if attempts < 1 {
		attempts = 1
	}
	return &RedisStore{
		client:   client,
		attempts: attempts,
		sem:      semaphore.NewWeighted(maxConcurrentCalls),
		logger:   logger,
	}
}

func key(appID, ifa string) string {
	return "ifa:" + appID + ":" + ifa
}

// additiveBackOff waits step, 2*step, 3*step and so on between tries.
type additiveBackOff struct {
	step time.Duration
	next time.Duration
}

func (a *additiveBackOff) NextBackOff() time.Duration {
	a.next += a.step
	return a.next
}

func (a *additiveBackOff) Reset() { a.next = 0 }

func (s *RedisStore) retryPolicy() backoff.BackOff {
	return backoff.WithMaxRetries(&additiveBackOff{step: time.Millisecond}, uint64(s.attempts-1))
}

// Get implements Store. When every attempt fails the IFA is reported as
// unknown rather than failing the batch.
func (s *RedisStore) Get(ctx context.Context, appID, ifa string) string {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return ""
	}
	defer s.sem.Release(1)

	start := time.Now()
	var entityID string
	err := backoff.Retry(func() error {
		value, err := s.client.Get(ctx, key(appID, ifa)).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		entityID = value
		return nil
	}, backoff.WithContext(s.retryPolicy(), ctx))

	metrics.IdentityLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IdentityRequests.WithLabelValues("get", "error").Inc()
		s.logger.Warn("identity lookup failed, treating as unknown ifa",
			zap.String("app_id", appID),
			zap.String("ifa", ifa),
			zap.Error(err))
		return ""
	}

	metrics.IdentityRequests.WithLabelValues("get", "ok").Inc()
	return entityID
}

// Put implements Store. A write that fails every attempt takes the
// process down; lost pairings fork device identities.
func (s *RedisStore) Put(ctx context.Context, appID, ifa, entityID string) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	start := time.Now()
	err := backoff.Retry(func() error {
		return s.client.Set(ctx, key(appID, ifa), entityID, 0).Err()
	}, backoff.WithContext(s.retryPolicy(), ctx))

	metrics.IdentityLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IdentityRequests.WithLabelValues("put", "error").Inc()
		s.logger.Fatal("identity store unavailable for writes",
			zap.String("app_id", appID),
			zap.String("ifa", ifa),
			zap.Error(err))
		return
	}

	metrics.IdentityRequests.WithLabelValues("put", "ok").Inc()
}
