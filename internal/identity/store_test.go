package identity

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, 5, zaptest.NewLogger(t)), mr
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	assert.Empty(t, store.Get(ctx, "1", "bd618bbc-b2d6-4c1a-9b07-f799579f9a22"))

	store.Put(ctx, "1", "bd618bbc-b2d6-4c1a-9b07-f799579f9a22", "8f7f5c07-5eb2-4695-870c-065d886cdc9e")
	assert.Equal(t,
		"8f7f5c07-5eb2-4695-870c-065d886cdc9e",
		store.Get(ctx, "1", "bd618bbc-b2d6-4c1a-9b07-f799579f9a22"))

	// Pairings are per application.
	assert.Empty(t, store.Get(ctx, "2", "bd618bbc-b2d6-4c1a-9b07-f799579f9a22"))
}

func TestStoreKeyLayout(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	store.Put(ctx, "42", "some-ifa", "some-entity")

	value, err := mr.Get("ifa:42:some-ifa")
	require.NoError(t, err)
	assert.Equal(t, "some-entity", value)
}

func TestStoreGetDegradesToMiss(t *testing.T) {
	store, mr := testStore(t)
	mr.Close()

	assert.Empty(t, store.Get(context.Background(), "1", "some-ifa"))
}

func TestStoreGetCancelledContext(t *testing.T) {
	store, _ := testStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, store.Get(ctx, "1", "some-ifa"))
}
